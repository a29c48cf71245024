package scan

// Status enum (open string, closed semantics: only "clean" admits)
type Status string

const (
	StatusClean     Status = "clean"
	StatusMalicious Status = "malicious"
	StatusError     Status = "error"
)

// Verdict is the terminal result of one scan attempt.
// There is no pending state; every scan produces exactly one Verdict.
type Verdict struct {
	Status Status `json:"status"`
	Engine string `json:"engine"`
	Detail string `json:"detail"`
}

// Clean reports whether the verdict admits the payload.
// Anything other than exactly "clean" rejects.
func (v Verdict) Clean() bool {
	return v.Status == StatusClean
}

// ErrorVerdict wraps a backend failure as a terminal non-clean verdict
// so the fail-closed rule applies uniformly.
func ErrorVerdict(engine, detail string) Verdict {
	return Verdict{Status: StatusError, Engine: engine, Detail: detail}
}
