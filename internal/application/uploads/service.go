package uploads

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/sentinelhq/sentinel-upload/internal/application"
	"github.com/sentinelhq/sentinel-upload/internal/domain/scan"
	domain "github.com/sentinelhq/sentinel-upload/internal/domain/uploads"
)

// Rejection conditions surfaced before any bytes reach the scanner.
var (
	ErrRateLimited     = errors.New("rate limit exceeded")
	ErrUnsupportedType = errors.New("unsupported file type")
	ErrPayloadTooLarge = errors.New("file too large")
)

// Limiter port for the admission gate. Denied calls must not consume a slot.
type Limiter interface {
	Allow(identity string, now time.Time) bool
	Limit() int
	Window() time.Duration
}

// Service implements the admission pipeline use-cases.
// Service is designed to be used concurrently and is thread-safe: the
// limiter owns the only shared mutable state.
type Service struct {
	Limiter      Limiter
	Scanner      scan.Scanner
	Repo         domain.Repository    // nil when no store is configured
	Artifacts    domain.ArtifactStore // nil when archiving is disabled
	Clock        application.Clock
	AllowedTypes map[string]bool
	MaxSizeBytes int64
	ScanTimeout  time.Duration
}

// UploadCommand carries one upload request through the pipeline.
type UploadCommand struct {
	Origin      string
	Filename    string
	ContentType string
	Content     []byte
}

// Outcome is the pipeline's answer for one admission decision.
type Outcome struct {
	Record      *domain.UploadRecord
	StoreStatus domain.StoreStatus
}

// Handle runs the ordered admission gates. Pre-scan rejections come back as
// ErrRateLimited / ErrUnsupportedType / ErrPayloadTooLarge; once the scan
// runs, the decision is always a normal Outcome (fail-closed on any
// non-clean verdict, including scanner failure).
func (s *Service) Handle(ctx context.Context, cmd UploadCommand) (Outcome, error) {
	now := s.Clock.Now()

	if !s.Limiter.Allow(cmd.Origin, now) {
		return Outcome{}, fmt.Errorf("%w: max %d requests per %s", ErrRateLimited, s.Limiter.Limit(), s.Limiter.Window())
	}
	if !s.AllowedTypes[cmd.ContentType] {
		return Outcome{}, fmt.Errorf("%w: %s", ErrUnsupportedType, cmd.ContentType)
	}
	if int64(len(cmd.Content)) > s.MaxSizeBytes {
		return Outcome{}, fmt.Errorf("%w: max %d bytes", ErrPayloadTooLarge, s.MaxSizeBytes)
	}

	verdict := s.scan(ctx, cmd.Filename, cmd.Content)

	rec := &domain.UploadRecord{
		ID:          domain.ID(uuid.New().String()),
		Origin:      cmd.Origin,
		Filename:    cmd.Filename,
		ContentType: cmd.ContentType,
		SizeBytes:   int64(len(cmd.Content)),
		Status:      domain.StatusFor(verdict),
		ScanStatus:  verdict.Status,
		ScanEngine:  verdict.Engine,
		ScanDetail:  verdict.Detail,
		CreatedAt:   now,
	}

	if rec.Status == domain.StatusAccepted && s.Artifacts != nil {
		key := fmt.Sprintf("%s/%s", rec.ID, rec.Filename)
		url, err := s.Artifacts.Put(ctx, key, rec.ContentType, cmd.Content)
		if err != nil {
			// Archive is best effort; the admission decision stands.
			log.Printf("artifact archive failed for %s: %v", rec.ID, err)
		} else {
			rec.ArtifactURL = url
		}
	}

	storeStatus := domain.StoreSkipped
	if s.Repo != nil {
		if err := s.Repo.Save(ctx, rec); err != nil {
			log.Printf("upload record save failed for %s: %v", rec.ID, err)
			storeStatus = domain.StoreUnavailable
		} else {
			storeStatus = domain.StoreStored
		}
	}

	return Outcome{Record: rec, StoreStatus: storeStatus}, nil
}

// scan invokes the backend under a timeout. Backend errors and timeouts
// become error verdicts so the fail-closed derivation applies uniformly;
// an unreachable scanner can never pass bytes through as accepted.
func (s *Service) scan(ctx context.Context, filename string, content []byte) scan.Verdict {
	timeout := s.ScanTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	type result struct {
		verdict scan.Verdict
		err     error
	}
	done := make(chan result, 1)
	go func() {
		v, err := s.Scanner.Scan(ctx, filename, content)
		done <- result{v, err}
	}()

	select {
	case res := <-done:
		if res.err != nil {
			return scan.ErrorVerdict("pipeline", fmt.Sprintf("scan failed: %v", res.err))
		}
		return res.verdict
	case <-ctx.Done():
		return scan.ErrorVerdict("pipeline", "scan timed out")
	}
}

// Latest returns up to limit most recent admission decisions, newest first.
// A repository failure propagates so the transport can answer 503; callers
// must be able to tell "no uploads yet" from "store unreachable".
func (s *Service) Latest(ctx context.Context, limit int) ([]*domain.UploadRecord, error) {
	if s.Repo == nil {
		return nil, errors.New("store not configured")
	}
	if limit <= 0 {
		limit = 50
	}
	if limit > 200 {
		limit = 200
	}
	return s.Repo.Latest(ctx, limit)
}
