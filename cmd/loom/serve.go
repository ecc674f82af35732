package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"strings"

	"github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"

	"github.com/caldew/loom/internal/gateway"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the inference gateway",
	Long: `Run the inference gateway: online record lookups and assemble-and-score
over HTTP, plus the same tools over MCP stdio with --mcp.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		addr, _ := cmd.Flags().GetString("addr")
		withMCP, _ := cmd.Flags().GetBool("mcp")

		app, err := newApp()
		if err != nil {
			return err
		}
		defer app.Close()

		logLevel := slog.LevelInfo
		if strings.EqualFold(app.cfg.Log.Level, "debug") {
			logLevel = slog.LevelDebug
		}
		logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel}))
		slog.SetDefault(logger)

		if addr == "" {
			addr = app.cfg.Serve.Addr
		}

		deps := gateway.Deps{
			Records:  app.catalog,
			Scorer:   app.runner,
			Ledger:   app.store,
			Pinger:   app.api,
			Groups:   app.cfg.Score.Groups,
			Endpoint: app.cfg.Score.Endpoint,
			Dataset:  app.cfg.Score.Dataset,
			Token:    app.cfg.Serve.Token,
			Logger:   logger,
		}

		if withMCP {
			mcpSrv := gateway.NewMCPServer(deps)
			stdioSrv := server.NewStdioServer(mcpSrv)
			go func() {
				if err := stdioSrv.Listen(cmd.Context(), os.Stdin, os.Stdout); err != nil && !errors.Is(err, context.Canceled) {
					logger.Error("MCP stdio server error", "error", err)
				}
			}()
			logger.Info("MCP server started (stdio transport)")
		}

		return gateway.NewServer(addr, deps).Run()
	},
}

func init() {
	serveCmd.Flags().String("addr", "", "listen address (default: serve.addr from config)")
	serveCmd.Flags().Bool("mcp", false, "also serve MCP tools over stdio")
}
