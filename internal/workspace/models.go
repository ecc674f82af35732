// Package workspace is loom's local ledger: a sqlite database recording the
// remote resources the workbench has provisioned and the dataset artifacts it
// has built, so later commands (and teardown) know what exists.
package workspace

import (
	"errors"
	"time"
)

// ErrNotFound is returned when a requested row does not exist.
var ErrNotFound = errors.New("not found")

// ResourceKind classifies the remote resources the ledger tracks.
type ResourceKind string

const (
	KindFeatureGroup ResourceKind = "feature_group"
	KindTrainingJob  ResourceKind = "training_job"
	KindEndpoint     ResourceKind = "endpoint"
)

// Resource is one remote resource the workbench created and is responsible
// for tearing down. Detail carries kind-specific context, e.g. a training
// job's model URI or a group's offline table name.
type Resource struct {
	ID        string       `json:"id"`
	Kind      ResourceKind `json:"kind"`
	Name      string       `json:"name"`
	Status    string       `json:"status"`
	Detail    string       `json:"detail,omitempty"`
	CreatedAt time.Time    `json:"created_at"`
	UpdatedAt time.Time    `json:"updated_at"`
}
