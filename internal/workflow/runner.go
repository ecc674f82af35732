// Package workflow implements the multi-step orchestrations behind the CLI
// verbs: provision a feature group, build a training dataset, train, deploy,
// score, and tear down. Each step reports progress to an io.Writer and
// records what it created in the workspace ledger.
package workflow

import (
	"context"
	"io"

	"github.com/caldew/loom/internal/catalog"
	"github.com/caldew/loom/internal/dataset"
	"github.com/caldew/loom/internal/foundry"
	"github.com/caldew/loom/internal/readiness"
	"github.com/caldew/loom/internal/warehouse"
	"github.com/caldew/loom/internal/workspace"
)

// CatalogClient is the slice of the Catalog service the workflows use.
type CatalogClient interface {
	CreateGroup(ctx context.Context, in catalog.CreateGroupInput) (*catalog.FeatureGroup, error)
	DescribeGroup(ctx context.Context, name string) (*catalog.FeatureGroup, error)
	DeleteGroup(ctx context.Context, name string) error
	GetRecord(ctx context.Context, group, id string) (catalog.Record, error)
	GroupReady(name string) readiness.Probe
	GroupDeleted(name string) readiness.Probe
}

// WarehouseClient is the slice of the Warehouse service the workflows use.
type WarehouseClient interface {
	Submit(ctx context.Context, sql string) (*warehouse.QueryExecution, error)
	Results(ctx context.Context, id string) (*warehouse.ResultSet, error)
	QueryDone(id string) readiness.Probe
}

// FoundryClient is the slice of the Foundry service the workflows use.
type FoundryClient interface {
	CreateTrainingJob(ctx context.Context, spec foundry.TrainingJobSpec) (*foundry.TrainingJob, error)
	DescribeTrainingJob(ctx context.Context, name string) (*foundry.TrainingJob, error)
	TrainingDone(name string) readiness.Probe
	CreateEndpoint(ctx context.Context, name, modelURI string) (*foundry.Endpoint, error)
	DescribeEndpoint(ctx context.Context, name string) (*foundry.Endpoint, error)
	EndpointInService(name string) readiness.Probe
	DeleteEndpoint(ctx context.Context, name string) error
	Invoke(ctx context.Context, endpoint string, vector []string) (float64, error)
	UploadArtifact(ctx context.Context, key string, r io.Reader) (string, error)
}

// Ledger is the slice of the workspace store the workflows use.
type Ledger interface {
	SaveResource(r workspace.Resource) error
	UpdateResourceStatus(kind workspace.ResourceKind, name, status, detail string) error
	DeleteResource(kind workspace.ResourceKind, name string) error
	ListResources(kind workspace.ResourceKind) ([]workspace.Resource, error)
	SaveDataset(m dataset.Manifest) error
	GetDataset(name string) (dataset.Manifest, error)
	LatestDataset() (dataset.Manifest, error)
}

// Runner holds the constructed clients a workflow run needs. Out receives
// human-readable step progress; nil discards it.
type Runner struct {
	Catalog   CatalogClient
	Warehouse WarehouseClient
	Foundry   FoundryClient
	Ledger    Ledger
	Waiter    readiness.Waiter
	Out       io.Writer
}

func (r *Runner) out() io.Writer {
	if r.Out != nil {
		return r.Out
	}
	return io.Discard
}

// manifest returns the named dataset manifest, or the most recent one when
// name is empty.
func (r *Runner) manifest(name string) (dataset.Manifest, error) {
	if name != "" {
		return r.Ledger.GetDataset(name)
	}
	return r.Ledger.LatestDataset()
}
