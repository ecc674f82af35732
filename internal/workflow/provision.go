package workflow

import (
	"context"
	"fmt"

	"github.com/caldew/loom/internal/catalog"
	"github.com/caldew/loom/internal/workspace"
)

// ProvisionGroup creates a feature group, records it in the ledger, and waits
// until the platform reports it Created. The returned group is the post-wait
// Describe response, so the server-assigned offline table is populated.
func (r *Runner) ProvisionGroup(ctx context.Context, in catalog.CreateGroupInput) (*catalog.FeatureGroup, error) {
	fg, err := r.Catalog.CreateGroup(ctx, in)
	if err != nil {
		return nil, err
	}
	if err := r.Ledger.SaveResource(workspace.Resource{
		Kind:   workspace.KindFeatureGroup,
		Name:   fg.Name,
		Status: string(fg.Status),
	}); err != nil {
		return nil, fmt.Errorf("recording feature group %s: %w", fg.Name, err)
	}

	fmt.Fprintf(r.out(), "feature group %s: waiting until created\n", fg.Name)
	if err := r.Waiter.Wait(ctx, "feature group "+fg.Name, r.Catalog.GroupReady(fg.Name)); err != nil {
		_ = r.Ledger.UpdateResourceStatus(workspace.KindFeatureGroup, fg.Name, string(catalog.GroupCreateFailed), err.Error())
		return nil, err
	}

	fg, err = r.Catalog.DescribeGroup(ctx, fg.Name)
	if err != nil {
		return nil, err
	}
	if err := r.Ledger.UpdateResourceStatus(workspace.KindFeatureGroup, fg.Name, string(fg.Status), fg.OfflineTable); err != nil {
		return nil, fmt.Errorf("recording feature group %s: %w", fg.Name, err)
	}
	fmt.Fprintf(r.out(), "feature group %s: created (offline table %s)\n", fg.Name, fg.OfflineTable)
	return fg, nil
}
