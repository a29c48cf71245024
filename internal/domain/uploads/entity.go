package uploads

import (
	"time"

	"github.com/sentinelhq/sentinel-upload/internal/domain/scan"
)

// ID type for UploadRecord
type ID string

// Status enum
type Status string

const (
	StatusAccepted Status = "accepted"
	StatusRejected Status = "rejected"
)

// StoreStatus reports how the persistence attempt ended.
type StoreStatus string

const (
	StoreStored      StoreStatus = "stored"
	StoreUnavailable StoreStatus = "unavailable"
	StoreSkipped     StoreStatus = "skipped"
)

// Aggregate Root: UploadRecord, the record of one admission decision.
// Constructed once per request, immutable afterwards.
type UploadRecord struct {
	ID          ID          `json:"-"`
	Origin      string      `json:"-"`
	Filename    string      `json:"filename"`
	ContentType string      `json:"content_type"`
	SizeBytes   int64       `json:"size_bytes"`
	Status      Status      `json:"status"`
	ScanStatus  scan.Status `json:"scan_status"`
	ScanEngine  string      `json:"scan_engine"`
	ScanDetail  string      `json:"scan_detail"`
	ArtifactURL string      `json:"artifact_url,omitempty"`
	CreatedAt   time.Time   `json:"created_at"`
}

// StatusFor derives the admission status from a verdict.
// Fail-closed: accepted iff the verdict is exactly clean.
func StatusFor(v scan.Verdict) Status {
	if v.Clean() {
		return StatusAccepted
	}
	return StatusRejected
}
