package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/caldew/loom/internal/assemble"
	"github.com/caldew/loom/internal/catalog"
	"github.com/caldew/loom/internal/workflow"
	"github.com/caldew/loom/internal/workspace"
)

// NewMCPServer creates an MCP server mirroring the HTTP surface: record
// lookup and scoring as tools, the ledger as a readable resource.
func NewMCPServer(deps Deps) *server.MCPServer {
	s := server.NewMCPServer(
		"loom",
		"1.0.0",
		server.WithToolCapabilities(true),
		server.WithResourceCapabilities(false, true),
		server.WithInstructions("loom — feature platform workbench: look up online feature records and score feature vectors against the deployed model endpoint."),
		server.WithRecovery(),
	)

	// Tools
	s.AddTool(
		mcp.NewTool("lookup_record",
			mcp.WithDescription("Fetch a record from a feature group's online store by its identifier."),
			mcp.WithString("group", mcp.Description("Feature group name"), mcp.Required()),
			mcp.WithString("id", mcp.Description("Record identifier value"), mcp.Required()),
		),
		mcpLookupRecord(deps),
	)

	s.AddTool(
		mcp.NewTool("score",
			mcp.WithDescription("Assemble the feature vector for an identifier from the configured groups and invoke the deployed model endpoint."),
			mcp.WithString("id", mcp.Description("Record identifier value shared across the configured groups"), mcp.Required()),
		),
		mcpScore(deps),
	)

	// Resources
	s.AddResource(
		mcp.NewResource(
			"loom://workspace/resources",
			"Workspace Resources",
			mcp.WithResourceDescription("Remote platform resources tracked in the local ledger"),
			mcp.WithMIMEType("application/json"),
		),
		mcpResourceLedger(deps),
	)

	return s
}

func mcpLookupRecord(deps Deps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		group, err := req.RequireString("group")
		if err != nil {
			return mcpError("group is required"), nil
		}
		id, err := req.RequireString("id")
		if err != nil {
			return mcpError("id is required"), nil
		}

		rec, err := deps.Records.GetRecord(ctx, group, id)
		if errors.Is(err, catalog.ErrRecordNotFound) {
			return mcpError(fmt.Sprintf("no record %q in group %q", id, group)), nil
		}
		if err != nil {
			return mcpError(fmt.Sprintf("lookup failed: %v", err)), nil
		}

		b, err := json.Marshal(recordResponse{Group: group, ID: id, Values: rec.Values()})
		if err != nil {
			return mcpError(fmt.Sprintf("failed to marshal record: %v", err)), nil
		}

		return mcpText(string(b)), nil
	}
}

func mcpScore(deps Deps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		id, err := req.RequireString("id")
		if err != nil {
			return mcpError("id is required"), nil
		}

		result, err := deps.Scorer.Score(ctx, workflow.ScoreInput{
			ID:       id,
			Groups:   deps.Groups,
			Endpoint: deps.Endpoint,
			Dataset:  deps.Dataset,
		})
		if err != nil {
			var missing *assemble.MissingFieldError
			if errors.As(err, &missing) {
				return mcpError(fmt.Sprintf("cannot assemble feature vector: field %q has no value", missing.Field)), nil
			}
			return mcpError(fmt.Sprintf("scoring failed: %v", err)), nil
		}

		fields := make(map[string]string, len(result.Names))
		for i, name := range result.Names {
			fields[name] = result.Values[i]
		}

		b, err := json.Marshal(scoreResponse{Score: result.Score, Fields: fields})
		if err != nil {
			return mcpError(fmt.Sprintf("failed to marshal result: %v", err)), nil
		}

		return mcpText(string(b)), nil
	}
}

func mcpResourceLedger(deps Deps) server.ResourceHandlerFunc {
	return func(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		resources, err := deps.Ledger.ListResources("")
		if err != nil {
			return nil, fmt.Errorf("listing resources: %w", err)
		}
		if resources == nil {
			resources = []workspace.Resource{}
		}

		b, err := json.Marshal(resources)
		if err != nil {
			return nil, fmt.Errorf("marshaling resources: %w", err)
		}

		return []mcp.ResourceContents{
			mcp.TextResourceContents{
				URI:      req.Params.URI,
				MIMEType: "application/json",
				Text:     string(b),
			},
		}, nil
	}
}

func mcpText(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: text},
		},
	}
}

func mcpError(msg string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: msg},
		},
		IsError: true,
	}
}
