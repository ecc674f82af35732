package catalog

import (
	"context"
	"fmt"
	"net/url"

	"github.com/caldew/loom/internal/platform"
	"github.com/caldew/loom/internal/readiness"
)

// Client talks to the Catalog service.
type Client struct {
	api *platform.Client
}

// NewClient creates a Client on the shared platform transport.
func NewClient(api *platform.Client) *Client {
	return &Client{api: api}
}

// CreateGroupInput is the request body for CreateGroup.
type CreateGroupInput struct {
	Name          string `json:"name"`
	Description   string `json:"description,omitempty"`
	Schema        Schema `json:"schema"`
	OnlineEnabled bool   `json:"online_enabled"`
}

// CreateGroup registers a new feature group. The returned group is in status
// Creating; use GroupReady with a readiness.Waiter to block until it is
// usable.
func (c *Client) CreateGroup(ctx context.Context, in CreateGroupInput) (*FeatureGroup, error) {
	if in.Name == "" {
		return nil, fmt.Errorf("feature group name is required")
	}
	if err := in.Schema.Validate(); err != nil {
		return nil, fmt.Errorf("validating schema: %w", err)
	}

	var fg FeatureGroup
	if err := c.api.Post(ctx, "/v1/feature-groups", in, &fg); err != nil {
		return nil, fmt.Errorf("creating feature group %s: %w", in.Name, err)
	}
	return &fg, nil
}

// DescribeGroup fetches the current state of a feature group, including the
// server-assigned offline table and location.
func (c *Client) DescribeGroup(ctx context.Context, name string) (*FeatureGroup, error) {
	var fg FeatureGroup
	if err := c.api.Get(ctx, "/v1/feature-groups/"+url.PathEscape(name), &fg); err != nil {
		return nil, fmt.Errorf("describing feature group %s: %w", name, err)
	}
	return &fg, nil
}

type listGroupsResponse struct {
	FeatureGroups []FeatureGroup `json:"feature_groups"`
}

// ListGroups returns all feature groups visible to the caller.
func (c *Client) ListGroups(ctx context.Context) ([]FeatureGroup, error) {
	var resp listGroupsResponse
	if err := c.api.Get(ctx, "/v1/feature-groups", &resp); err != nil {
		return nil, fmt.Errorf("listing feature groups: %w", err)
	}
	if resp.FeatureGroups == nil {
		return []FeatureGroup{}, nil
	}
	return resp.FeatureGroups, nil
}

// DeleteGroup starts deletion of a feature group and its stores.
func (c *Client) DeleteGroup(ctx context.Context, name string) error {
	if err := c.api.Delete(ctx, "/v1/feature-groups/"+url.PathEscape(name), nil); err != nil {
		return fmt.Errorf("deleting feature group %s: %w", name, err)
	}
	return nil
}

type putRecordRequest struct {
	Record Record `json:"record"`
}

// PutRecord writes a record to the group's online store (and, asynchronously,
// its offline store). Writing the same identifier and event time again is an
// idempotent replace.
func (c *Client) PutRecord(ctx context.Context, group string, rec Record) error {
	if len(rec) == 0 {
		return fmt.Errorf("empty record")
	}
	path := "/v1/feature-groups/" + url.PathEscape(group) + "/records"
	if err := c.api.Put(ctx, path, putRecordRequest{Record: rec}, nil); err != nil {
		return fmt.Errorf("putting record into %s: %w", group, err)
	}
	return nil
}

type getRecordResponse struct {
	Record Record `json:"record"`
}

// GetRecord reads the latest record for id from the group's online store.
// Returns ErrRecordNotFound when the store has no such record.
func (c *Client) GetRecord(ctx context.Context, group, id string) (Record, error) {
	path := "/v1/feature-groups/" + url.PathEscape(group) + "/records?id=" + url.QueryEscape(id)

	var resp getRecordResponse
	if err := c.api.Get(ctx, path, &resp); err != nil {
		if platform.IsNotFound(err) {
			return nil, fmt.Errorf("%w: %s in %s", ErrRecordNotFound, id, group)
		}
		return nil, fmt.Errorf("getting record %s from %s: %w", id, group, err)
	}
	if len(resp.Record) == 0 {
		return nil, fmt.Errorf("%w: %s in %s", ErrRecordNotFound, id, group)
	}
	return resp.Record, nil
}

// GroupReady adapts DescribeGroup into a readiness probe for group creation.
func (c *Client) GroupReady(name string) readiness.Probe {
	return func(ctx context.Context) (readiness.Status, error) {
		fg, err := c.DescribeGroup(ctx, name)
		if err != nil {
			return readiness.Status{}, err
		}
		switch fg.Status {
		case GroupCreated:
			return readiness.Status{State: readiness.StateReady}, nil
		case GroupCreateFailed:
			return readiness.Status{State: readiness.StateFailed, Detail: fg.FailureReason}, nil
		default:
			return readiness.Status{State: readiness.StatePending, Detail: string(fg.Status)}, nil
		}
	}
}

// GroupDeleted adapts DescribeGroup into a readiness probe for group
// deletion: gone means ready.
func (c *Client) GroupDeleted(name string) readiness.Probe {
	return func(ctx context.Context) (readiness.Status, error) {
		fg, err := c.DescribeGroup(ctx, name)
		if err != nil {
			if platform.IsNotFound(err) {
				return readiness.Status{State: readiness.StateReady}, nil
			}
			return readiness.Status{}, err
		}
		if fg.Status == GroupDeleteFailed {
			return readiness.Status{State: readiness.StateFailed, Detail: fg.FailureReason}, nil
		}
		return readiness.Status{State: readiness.StatePending, Detail: string(fg.Status)}, nil
	}
}
