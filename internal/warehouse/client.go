// Package warehouse is the client for the platform's offline SQL surface:
// submit a query over feature-group offline tables, poll it, fetch results.
package warehouse

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"github.com/google/uuid"

	"github.com/caldew/loom/internal/platform"
	"github.com/caldew/loom/internal/readiness"
)

// QueryState is the execution lifecycle state of a submitted query.
type QueryState string

const (
	QueryQueued    QueryState = "Queued"
	QueryRunning   QueryState = "Running"
	QuerySucceeded QueryState = "Succeeded"
	QueryFailed    QueryState = "Failed"
	QueryCancelled QueryState = "Cancelled"
)

// QueryExecution is the platform's view of one query run.
type QueryExecution struct {
	ID             string     `json:"id"`
	SQL            string     `json:"sql"`
	State          QueryState `json:"state"`
	Reason         string     `json:"reason,omitempty"`
	OutputLocation string     `json:"output_location,omitempty"`
	SubmittedAt    time.Time  `json:"submitted_at"`
}

// Client talks to the Warehouse service.
type Client struct {
	api *platform.Client
}

// NewClient creates a Client on the shared platform transport.
func NewClient(api *platform.Client) *Client {
	return &Client{api: api}
}

type submitRequest struct {
	SQL         string `json:"sql"`
	ClientToken string `json:"client_token"`
}

// Submit starts a query and returns its execution handle. A fresh client
// token makes accidental resubmission harmless.
func (c *Client) Submit(ctx context.Context, sql string) (*QueryExecution, error) {
	if sql == "" {
		return nil, fmt.Errorf("empty query")
	}

	var exec QueryExecution
	req := submitRequest{SQL: sql, ClientToken: uuid.New().String()}
	if err := c.api.Post(ctx, "/v1/queries", req, &exec); err != nil {
		return nil, fmt.Errorf("submitting query: %w", err)
	}
	return &exec, nil
}

// Describe fetches the current state of a query execution.
func (c *Client) Describe(ctx context.Context, id string) (*QueryExecution, error) {
	var exec QueryExecution
	if err := c.api.Get(ctx, "/v1/queries/"+url.PathEscape(id), &exec); err != nil {
		return nil, fmt.Errorf("describing query %s: %w", id, err)
	}
	return &exec, nil
}

type resultsPage struct {
	Columns   []string   `json:"columns"`
	Rows      [][]string `json:"rows"`
	NextToken string     `json:"next_token,omitempty"`
}

// Results fetches the full result set of a succeeded query, following
// pagination until exhausted.
func (c *Client) Results(ctx context.Context, id string) (*ResultSet, error) {
	rs := &ResultSet{}
	token := ""
	for {
		path := "/v1/queries/" + url.PathEscape(id) + "/results"
		if token != "" {
			path += "?next_token=" + url.QueryEscape(token)
		}

		var page resultsPage
		if err := c.api.Get(ctx, path, &page); err != nil {
			return nil, fmt.Errorf("fetching results for query %s: %w", id, err)
		}

		if rs.Columns == nil {
			rs.Columns = page.Columns
		}
		rs.Rows = append(rs.Rows, page.Rows...)

		if page.NextToken == "" {
			return rs, nil
		}
		token = page.NextToken
	}
}

// QueryDone adapts Describe into a readiness probe for query completion.
func (c *Client) QueryDone(id string) readiness.Probe {
	return func(ctx context.Context) (readiness.Status, error) {
		exec, err := c.Describe(ctx, id)
		if err != nil {
			return readiness.Status{}, err
		}
		switch exec.State {
		case QuerySucceeded:
			return readiness.Status{State: readiness.StateReady}, nil
		case QueryFailed, QueryCancelled:
			detail := exec.Reason
			if detail == "" {
				detail = string(exec.State)
			}
			return readiness.Status{State: readiness.StateFailed, Detail: detail}, nil
		default:
			return readiness.Status{State: readiness.StatePending, Detail: string(exec.State)}, nil
		}
	}
}

// Run submits sql, waits for it to finish, and fetches the result set.
func (c *Client) Run(ctx context.Context, waiter readiness.Waiter, sql string) (*ResultSet, error) {
	exec, err := c.Submit(ctx, sql)
	if err != nil {
		return nil, err
	}
	if err := waiter.Wait(ctx, "query "+exec.ID, c.QueryDone(exec.ID)); err != nil {
		return nil, err
	}
	return c.Results(ctx, exec.ID)
}
