package insight

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/sentinelhq/sentinel-upload/internal/domain/insight"
	domain "github.com/sentinelhq/sentinel-upload/internal/domain/uploads"
)

// ErrNotConfigured indicates that no AI backend was configured.
var ErrNotConfigured = errors.New("insight backend not configured")

// Service summarizes recent admission decisions through the AI client.
type Service struct {
	client insight.Client
	repo   domain.Repository
}

func NewService(client insight.Client, repo domain.Repository) *Service {
	return &Service{client: client, repo: repo}
}

// Summarize feeds the latest admission decisions to the AI backend and
// returns its JSON triage summary.
func (s *Service) Summarize(ctx context.Context, limit int) (string, error) {
	if s.client == nil {
		return "", ErrNotConfigured
	}
	if s.repo == nil {
		return "", errors.New("store not configured")
	}
	if limit <= 0 {
		limit = 50
	}

	records, err := s.repo.Latest(ctx, limit)
	if err != nil {
		return "", err
	}

	report, err := json.Marshal(records)
	if err != nil {
		return "", err
	}
	return s.client.Summarize(ctx, string(report))
}
