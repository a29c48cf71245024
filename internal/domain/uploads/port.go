package uploads

import "context"

// Repository port (interface for persistence). Save is a plain append;
// Latest returns records newest first, bounded by limit.
type Repository interface {
	Save(ctx context.Context, rec *UploadRecord) error
	Latest(ctx context.Context, limit int) ([]*UploadRecord, error)
}

// ArtifactStore port (interface for archiving accepted payloads).
type ArtifactStore interface {
	Put(ctx context.Context, key, contentType string, content []byte) (string, error)
}
