package insight

import "context"

// Client interface for the AI triage backend.
type Client interface {
	Summarize(ctx context.Context, report string) (string, error)
}
