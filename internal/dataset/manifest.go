package dataset

import "time"

// Manifest records a built dataset artifact. Serving assembles feature
// vectors in Columns() order minus the target, so the manifest is the single
// source of truth for the order the model was trained with.
type Manifest struct {
	Name        string    `json:"name"`
	Path        string    `json:"path"`
	Target      string    `json:"target"`
	Features    []string  `json:"features"`
	Rows        int       `json:"rows"`
	QueryID     string    `json:"query_id"`
	ArtifactURI string    `json:"artifact_uri"`
	CreatedAt   time.Time `json:"created_at"`
}

// Columns returns the artifact's column order: target first, then features.
func (m Manifest) Columns() []string {
	cols := make([]string, 0, len(m.Features)+1)
	cols = append(cols, m.Target)
	return append(cols, m.Features...)
}
