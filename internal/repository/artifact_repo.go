package repository

import "context"

// ArtifactStore keeps run artifacts such as screenshots and returns a reference to each.
type ArtifactStore interface {
	Save(ctx context.Context, runID, name string, data []byte) (string, error)
}
