package foundry

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/caldew/loom/internal/platform"
	"github.com/caldew/loom/internal/readiness"
)

// Client talks to the Foundry service.
type Client struct {
	api *platform.Client
}

// NewClient creates a Client on the shared platform transport.
func NewClient(api *platform.Client) *Client {
	return &Client{api: api}
}

// CreateTrainingJob starts a training job. Use TrainingDone with a
// readiness.Waiter to block until it finishes.
func (c *Client) CreateTrainingJob(ctx context.Context, spec TrainingJobSpec) (*TrainingJob, error) {
	if spec.Name == "" {
		return nil, fmt.Errorf("training job name is required")
	}
	if spec.InputURI == "" {
		return nil, fmt.Errorf("training job input URI is required")
	}
	if spec.Algorithm == "" {
		spec.Algorithm = "xgboost"
	}

	var job TrainingJob
	if err := c.api.Post(ctx, "/v1/training-jobs", spec, &job); err != nil {
		return nil, fmt.Errorf("creating training job %s: %w", spec.Name, err)
	}
	return &job, nil
}

// DescribeTrainingJob fetches the current state of a training job.
func (c *Client) DescribeTrainingJob(ctx context.Context, name string) (*TrainingJob, error) {
	var job TrainingJob
	if err := c.api.Get(ctx, "/v1/training-jobs/"+url.PathEscape(name), &job); err != nil {
		return nil, fmt.Errorf("describing training job %s: %w", name, err)
	}
	return &job, nil
}

// TrainingDone adapts DescribeTrainingJob into a readiness probe.
func (c *Client) TrainingDone(name string) readiness.Probe {
	return func(ctx context.Context) (readiness.Status, error) {
		job, err := c.DescribeTrainingJob(ctx, name)
		if err != nil {
			return readiness.Status{}, err
		}
		switch job.Status {
		case JobCompleted:
			return readiness.Status{State: readiness.StateReady}, nil
		case JobFailed, JobStopped:
			detail := job.FailureReason
			if detail == "" {
				detail = string(job.Status)
			}
			return readiness.Status{State: readiness.StateFailed, Detail: detail}, nil
		default:
			return readiness.Status{State: readiness.StatePending, Detail: string(job.Status)}, nil
		}
	}
}

type createEndpointRequest struct {
	Name     string `json:"name"`
	ModelURI string `json:"model_uri"`
}

// CreateEndpoint deploys a trained model behind a named endpoint.
func (c *Client) CreateEndpoint(ctx context.Context, name, modelURI string) (*Endpoint, error) {
	if name == "" {
		return nil, fmt.Errorf("endpoint name is required")
	}
	if modelURI == "" {
		return nil, fmt.Errorf("model URI is required")
	}

	var ep Endpoint
	req := createEndpointRequest{Name: name, ModelURI: modelURI}
	if err := c.api.Post(ctx, "/v1/endpoints", req, &ep); err != nil {
		return nil, fmt.Errorf("creating endpoint %s: %w", name, err)
	}
	return &ep, nil
}

// DescribeEndpoint fetches the current state of an endpoint.
func (c *Client) DescribeEndpoint(ctx context.Context, name string) (*Endpoint, error) {
	var ep Endpoint
	if err := c.api.Get(ctx, "/v1/endpoints/"+url.PathEscape(name), &ep); err != nil {
		return nil, fmt.Errorf("describing endpoint %s: %w", name, err)
	}
	return &ep, nil
}

// DeleteEndpoint tears down an endpoint and stops billing for it.
func (c *Client) DeleteEndpoint(ctx context.Context, name string) error {
	if err := c.api.Delete(ctx, "/v1/endpoints/"+url.PathEscape(name), nil); err != nil {
		return fmt.Errorf("deleting endpoint %s: %w", name, err)
	}
	return nil
}

// EndpointInService adapts DescribeEndpoint into a readiness probe.
func (c *Client) EndpointInService(name string) readiness.Probe {
	return func(ctx context.Context) (readiness.Status, error) {
		ep, err := c.DescribeEndpoint(ctx, name)
		if err != nil {
			return readiness.Status{}, err
		}
		switch ep.Status {
		case EndpointInService:
			return readiness.Status{State: readiness.StateReady}, nil
		case EndpointFailed:
			return readiness.Status{State: readiness.StateFailed, Detail: ep.FailureReason}, nil
		default:
			return readiness.Status{State: readiness.StatePending, Detail: string(ep.Status)}, nil
		}
	}
}

type invokeResponse struct {
	Score float64 `json:"score"`
}

// Invoke sends a feature vector to an endpoint and returns the model's score.
// The vector is serialized as a single CSV row without a trailing newline,
// quoted the same way the training artifact is, and its field order must
// match the order the model was trained with.
func (c *Client) Invoke(ctx context.Context, endpoint string, vector []string) (float64, error) {
	if len(vector) == 0 {
		return 0, fmt.Errorf("empty feature vector")
	}

	var buf bytes.Buffer
	cw := csv.NewWriter(&buf)
	if err := cw.Write(vector); err != nil {
		return 0, fmt.Errorf("encoding feature vector: %w", err)
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return 0, fmt.Errorf("encoding feature vector: %w", err)
	}
	body := strings.TrimSuffix(buf.String(), "\n")
	path := "/v1/endpoints/" + url.PathEscape(endpoint) + "/invocations"

	var resp invokeResponse
	if err := c.api.DoRaw(ctx, http.MethodPost, path, "text/csv", strings.NewReader(body), &resp); err != nil {
		return 0, fmt.Errorf("invoking endpoint %s: %w", endpoint, err)
	}
	return resp.Score, nil
}

type uploadResponse struct {
	URI string `json:"uri"`
}

// UploadArtifact stages bytes (typically a training CSV) under key and
// returns the platform URI to reference them by.
func (c *Client) UploadArtifact(ctx context.Context, key string, r io.Reader) (string, error) {
	if key == "" {
		return "", fmt.Errorf("artifact key is required")
	}

	var resp uploadResponse
	path := "/v1/artifacts/" + url.PathEscape(key)
	if err := c.api.DoRaw(ctx, http.MethodPut, path, "application/octet-stream", r, &resp); err != nil {
		return "", fmt.Errorf("uploading artifact %s: %w", key, err)
	}
	if resp.URI == "" {
		return "", fmt.Errorf("uploading artifact %s: empty URI in response", key)
	}
	return resp.URI, nil
}
