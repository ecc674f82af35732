package workflow

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/caldew/loom/internal/catalog"
	"github.com/caldew/loom/internal/dataset"
)

// DatasetSpec describes a training dataset build: a left join of two feature
// groups' offline tables, projected down to target + features.
type DatasetSpec struct {
	Name     string
	Left     string
	Right    string
	JoinOn   string   // empty: the left group's record identifier
	Target   string
	Features []string // empty: every non-key column of both schemas
	Dir      string   // empty: "datasets"
}

// BuildDataset runs the offline join, writes the CSV training artifact,
// stages it for training, and saves the manifest.
func (r *Runner) BuildDataset(ctx context.Context, spec DatasetSpec) (*dataset.Manifest, error) {
	if spec.Name == "" {
		return nil, fmt.Errorf("dataset name is required")
	}
	if spec.Target == "" {
		return nil, fmt.Errorf("target column is required")
	}

	left, err := r.Catalog.DescribeGroup(ctx, spec.Left)
	if err != nil {
		return nil, err
	}
	right, err := r.Catalog.DescribeGroup(ctx, spec.Right)
	if err != nil {
		return nil, err
	}
	if left.OfflineTable == "" {
		return nil, fmt.Errorf("feature group %s has no offline table yet", left.Name)
	}
	if right.OfflineTable == "" {
		return nil, fmt.Errorf("feature group %s has no offline table yet", right.Name)
	}

	joinOn := spec.JoinOn
	if joinOn == "" {
		joinOn = left.Schema.RecordIdentifier
	}
	sql := dataset.JoinSQL(
		dataset.TableRef{Group: left.Name, Table: left.OfflineTable},
		dataset.TableRef{Group: right.Name, Table: right.OfflineTable},
		joinOn,
	)

	fmt.Fprintf(r.out(), "query: joining %s with %s on %s\n", left.Name, right.Name, joinOn)
	exec, err := r.Warehouse.Submit(ctx, sql)
	if err != nil {
		return nil, err
	}
	if err := r.Waiter.Wait(ctx, "query "+exec.ID, r.Warehouse.QueryDone(exec.ID)); err != nil {
		return nil, err
	}
	rs, err := r.Warehouse.Results(ctx, exec.ID)
	if err != nil {
		return nil, err
	}
	fmt.Fprintf(r.out(), "query %s: %d rows\n", exec.ID, len(rs.Rows))

	features := spec.Features
	if len(features) == 0 {
		features = defaultFeatures(left.Schema, right.Schema, joinOn, spec.Target)
	}
	table, err := dataset.Build(rs, spec.Target, features)
	if err != nil {
		return nil, err
	}

	dir := spec.Dir
	if dir == "" {
		dir = "datasets"
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating dataset directory: %w", err)
	}
	path := filepath.Join(dir, spec.Name+".csv")
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("creating %s: %w", path, err)
	}
	if err := dataset.WriteCSV(f, table); err != nil {
		f.Close()
		return nil, fmt.Errorf("writing %s: %w", path, err)
	}
	if err := f.Close(); err != nil {
		return nil, fmt.Errorf("closing %s: %w", path, err)
	}
	fmt.Fprintf(r.out(), "dataset %s: wrote %d rows to %s\n", spec.Name, len(table.Rows), path)

	af, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("reopening %s: %w", path, err)
	}
	defer af.Close()
	uri, err := r.Foundry.UploadArtifact(ctx, spec.Name+".csv", af)
	if err != nil {
		return nil, err
	}
	fmt.Fprintf(r.out(), "dataset %s: staged at %s\n", spec.Name, uri)

	m := dataset.Manifest{
		Name:        spec.Name,
		Path:        path,
		Target:      spec.Target,
		Features:    features,
		Rows:        len(table.Rows),
		QueryID:     exec.ID,
		ArtifactURI: uri,
		CreatedAt:   time.Now().UTC(),
	}
	if err := r.Ledger.SaveDataset(m); err != nil {
		return nil, fmt.Errorf("recording dataset %s: %w", spec.Name, err)
	}
	return &m, nil
}

// defaultFeatures is every feature of both schemas, in schema order, minus
// the key columns (identifiers, event times, the join column) and the target.
// A name appearing in both schemas is taken once.
func defaultFeatures(left, right catalog.Schema, joinOn, target string) []string {
	skip := map[string]bool{
		left.RecordIdentifier:  true,
		left.EventTimeFeature:  true,
		right.RecordIdentifier: true,
		right.EventTimeFeature: true,
		joinOn:                 true,
		target:                 true,
	}

	var features []string
	for _, schema := range []catalog.Schema{left, right} {
		for _, f := range schema.Features {
			if skip[f.Name] {
				continue
			}
			skip[f.Name] = true
			features = append(features, f.Name)
		}
	}
	return features
}
