package scanner

import (
	"bytes"
	"context"
	"strings"

	"github.com/sentinelhq/sentinel-upload/internal/domain/scan"
)

const engineName = "signature"

// eicarMarker is the substring every AV engine recognizes in the EICAR test file.
var eicarMarker = []byte("EICAR-STANDARD-ANTIVIRUS-TEST-FILE")

// Signature is an in-process signature scanner. It stands in for a real
// engine (ClamAV integration is planned) behind the same Scanner port, so
// swapping backends never touches pipeline logic.
type Signature struct{}

func New() *Signature { return &Signature{} }

func (s *Signature) Scan(ctx context.Context, filename string, content []byte) (scan.Verdict, error) {
	if bytes.Contains(content, eicarMarker) {
		return scan.Verdict{
			Status: scan.StatusMalicious,
			Engine: engineName,
			Detail: "EICAR test signature detected",
		}, nil
	}

	lowered := strings.ToLower(filename)
	if strings.Contains(lowered, "malicious") || strings.Contains(lowered, "eicar") {
		return scan.Verdict{
			Status: scan.StatusMalicious,
			Engine: engineName,
			Detail: "Filename pattern flagged by signature policy",
		}, nil
	}

	return scan.Verdict{
		Status: scan.StatusClean,
		Engine: engineName,
		Detail: "No signature matched",
	}, nil
}
