package workflow

import (
	"context"
	"fmt"

	"github.com/caldew/loom/internal/assemble"
)

// ScoreInput identifies the record to score and where to fetch it from.
type ScoreInput struct {
	ID       string            // identifier used for every group
	IDs      map[string]string // per-group identifier overrides
	Groups   []string          // fetch order; earlier groups win field conflicts
	Endpoint string
	Dataset  string // manifest naming the trained feature order; empty: latest
}

// ScoreResult is one model invocation: the score plus the exact vector sent.
type ScoreResult struct {
	Score  float64
	Names  []string
	Values []string
}

// Score fetches the record from each group, assembles the feature vector in
// the order the model was trained with, and invokes the endpoint.
func (r *Runner) Score(ctx context.Context, in ScoreInput) (*ScoreResult, error) {
	if len(in.Groups) == 0 {
		return nil, fmt.Errorf("no feature groups configured for scoring")
	}
	if in.Endpoint == "" {
		return nil, fmt.Errorf("no endpoint configured for scoring")
	}

	m, err := r.manifest(in.Dataset)
	if err != nil {
		return nil, fmt.Errorf("looking up dataset manifest: %w", err)
	}
	fields, err := assemble.NewFieldSet(m.Features...)
	if err != nil {
		return nil, fmt.Errorf("dataset %s has an unusable feature list: %w", m.Name, err)
	}

	sources := make([]assemble.Values, 0, len(in.Groups))
	for _, group := range in.Groups {
		id := in.ID
		if override, ok := in.IDs[group]; ok {
			id = override
		}
		rec, err := r.Catalog.GetRecord(ctx, group, id)
		if err != nil {
			return nil, fmt.Errorf("fetching %s from %s: %w", id, group, err)
		}
		sources = append(sources, assemble.RecordValues(rec))
	}

	vector, err := fields.Assemble(sources...)
	if err != nil {
		return nil, err
	}

	score, err := r.Foundry.Invoke(ctx, in.Endpoint, vector)
	if err != nil {
		return nil, err
	}
	return &ScoreResult{Score: score, Names: fields.Names(), Values: vector}, nil
}
