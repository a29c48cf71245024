package scan

import "context"

// Scanner port (interface for the scanning backend).
// Implementations must return a terminal Verdict; a non-nil error is
// folded by the caller into a StatusError verdict, never propagated
// as a request failure.
type Scanner interface {
	Scan(ctx context.Context, filename string, content []byte) (Verdict, error)
}

// ScannerFunc adapts a function to the Scanner port.
type ScannerFunc func(ctx context.Context, filename string, content []byte) (Verdict, error)

func (f ScannerFunc) Scan(ctx context.Context, filename string, content []byte) (Verdict, error) {
	return f(ctx, filename, content)
}
