package workflow

import (
	"context"
	"fmt"

	"github.com/caldew/loom/internal/platform"
	"github.com/caldew/loom/internal/workspace"
)

// TeardownFailure is one resource that could not be destroyed. Its ledger row
// is kept so a later teardown can retry.
type TeardownFailure struct {
	Resource string
	Err      error
}

// TeardownResult reports what a teardown pass did.
type TeardownResult struct {
	Removed  []string
	Failures []TeardownFailure
}

// Teardown destroys every remote resource recorded in the ledger: endpoints
// first, then feature groups (training jobs have no remote lifetime; their
// rows are just cleared). Failures are collected per resource instead of
// aborting the pass, so one stuck resource doesn't strand the rest. A
// resource the platform no longer knows counts as destroyed.
func (r *Runner) Teardown(ctx context.Context) (*TeardownResult, error) {
	res := &TeardownResult{}

	endpoints, err := r.Ledger.ListResources(workspace.KindEndpoint)
	if err != nil {
		return nil, fmt.Errorf("listing endpoints: %w", err)
	}
	for _, ep := range endpoints {
		label := "endpoint " + ep.Name
		if err := r.Foundry.DeleteEndpoint(ctx, ep.Name); err != nil && !platform.IsNotFound(err) {
			res.Failures = append(res.Failures, TeardownFailure{Resource: label, Err: err})
			continue
		}
		if err := r.Ledger.DeleteResource(workspace.KindEndpoint, ep.Name); err != nil {
			res.Failures = append(res.Failures, TeardownFailure{Resource: label, Err: err})
			continue
		}
		fmt.Fprintf(r.out(), "%s: deleted\n", label)
		res.Removed = append(res.Removed, label)
	}

	jobs, err := r.Ledger.ListResources(workspace.KindTrainingJob)
	if err != nil {
		return nil, fmt.Errorf("listing training jobs: %w", err)
	}
	for _, job := range jobs {
		label := "training job " + job.Name
		if err := r.Ledger.DeleteResource(workspace.KindTrainingJob, job.Name); err != nil {
			res.Failures = append(res.Failures, TeardownFailure{Resource: label, Err: err})
			continue
		}
		fmt.Fprintf(r.out(), "%s: cleared\n", label)
		res.Removed = append(res.Removed, label)
	}

	groups, err := r.Ledger.ListResources(workspace.KindFeatureGroup)
	if err != nil {
		return nil, fmt.Errorf("listing feature groups: %w", err)
	}
	for _, fg := range groups {
		label := "feature group " + fg.Name
		err := r.Catalog.DeleteGroup(ctx, fg.Name)
		switch {
		case platform.IsNotFound(err):
			// Already gone remotely; just clear the row.
		case err != nil:
			res.Failures = append(res.Failures, TeardownFailure{Resource: label, Err: err})
			continue
		default:
			if err := r.Waiter.Wait(ctx, label, r.Catalog.GroupDeleted(fg.Name)); err != nil {
				res.Failures = append(res.Failures, TeardownFailure{Resource: label, Err: err})
				continue
			}
		}
		if err := r.Ledger.DeleteResource(workspace.KindFeatureGroup, fg.Name); err != nil {
			res.Failures = append(res.Failures, TeardownFailure{Resource: label, Err: err})
			continue
		}
		fmt.Fprintf(r.out(), "%s: deleted\n", label)
		res.Removed = append(res.Removed, label)
	}

	return res, nil
}
