package uploads

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/sentinelhq/sentinel-upload/internal/domain/scan"
	domain "github.com/sentinelhq/sentinel-upload/internal/domain/uploads"
	"github.com/sentinelhq/sentinel-upload/internal/ratelimit"
)

type fixedClock struct{ t time.Time }

func (c fixedClock) Now() time.Time { return c.t }

type fakeScanner struct {
	verdict scan.Verdict
	err     error
	calls   int
}

func (f *fakeScanner) Scan(ctx context.Context, filename string, content []byte) (scan.Verdict, error) {
	f.calls++
	return f.verdict, f.err
}

type fakeRepo struct {
	saved   []*domain.UploadRecord
	saveErr error
	listErr error
}

func (f *fakeRepo) Save(ctx context.Context, rec *domain.UploadRecord) error {
	if f.saveErr != nil {
		return f.saveErr
	}
	f.saved = append(f.saved, rec)
	return nil
}

func (f *fakeRepo) Latest(ctx context.Context, limit int) ([]*domain.UploadRecord, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	return f.saved, nil
}

func newService(sc *fakeScanner, repo *fakeRepo) *Service {
	svc := &Service{
		Limiter: ratelimit.NewSlidingWindow(10, time.Minute),
		Scanner: sc,
		Clock:   fixedClock{t: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)},
		AllowedTypes: map[string]bool{
			"text/plain":      true,
			"text/markdown":   true,
			"application/pdf": true,
			"image/png":       true,
			"image/jpeg":      true,
		},
		MaxSizeBytes: 1024,
		ScanTimeout:  time.Second,
	}
	if repo != nil {
		svc.Repo = repo
	}
	return svc
}

func plainUpload(content []byte) UploadCommand {
	return UploadCommand{
		Origin:      "198.51.100.7",
		Filename:    "hello.txt",
		ContentType: "text/plain",
		Content:     content,
	}
}

func TestCleanUploadAccepted(t *testing.T) {
	sc := &fakeScanner{verdict: scan.Verdict{Status: scan.StatusClean, Engine: "signature", Detail: "no signature matched"}}
	repo := &fakeRepo{}
	svc := newService(sc, repo)

	out, err := svc.Handle(context.Background(), plainUpload([]byte("hello")))
	if err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if out.Record.Status != domain.StatusAccepted {
		t.Fatalf("status = %s, want accepted", out.Record.Status)
	}
	if out.Record.ScanStatus != scan.StatusClean {
		t.Fatalf("scan_status = %s, want clean", out.Record.ScanStatus)
	}
	if out.StoreStatus != domain.StoreStored {
		t.Fatalf("store status = %s, want stored", out.StoreStatus)
	}
	if len(repo.saved) != 1 {
		t.Fatalf("saved %d records, want 1", len(repo.saved))
	}
}

func TestFailClosedOnNonCleanVerdicts(t *testing.T) {
	cases := []struct {
		name    string
		verdict scan.Verdict
		err     error
	}{
		{"malicious", scan.Verdict{Status: scan.StatusMalicious, Engine: "signature", Detail: "EICAR test signature detected"}, nil},
		{"error status", scan.Verdict{Status: scan.StatusError, Engine: "signature", Detail: "backend unreachable"}, nil},
		{"unknown status", scan.Verdict{Status: "quarantined", Engine: "signature", Detail: "odd"}, nil},
		{"scanner failure", scan.Verdict{}, errors.New("boom")},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			sc := &fakeScanner{verdict: tc.verdict, err: tc.err}
			svc := newService(sc, &fakeRepo{})

			out, err := svc.Handle(context.Background(), plainUpload([]byte("payload")))
			if err != nil {
				t.Fatalf("Handle: %v", err)
			}
			if out.Record.Status != domain.StatusRejected {
				t.Fatalf("status = %s, want rejected", out.Record.Status)
			}
			if out.Record.ScanStatus == scan.StatusClean {
				t.Fatal("rejected outcome must not carry a clean scan status")
			}
		})
	}
}

func TestScannerErrorBecomesErrorVerdict(t *testing.T) {
	sc := &fakeScanner{err: errors.New("engine crashed")}
	svc := newService(sc, nil)

	out, err := svc.Handle(context.Background(), plainUpload([]byte("x")))
	if err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if out.Record.ScanStatus != scan.StatusError {
		t.Fatalf("scan_status = %s, want error", out.Record.ScanStatus)
	}
	if out.Record.Status != domain.StatusRejected {
		t.Fatal("scanner failure must reject")
	}
}

func TestScanTimeoutFailsClosed(t *testing.T) {
	slow := scan.ScannerFunc(func(ctx context.Context, filename string, content []byte) (scan.Verdict, error) {
		<-ctx.Done()
		return scan.Verdict{Status: scan.StatusClean, Engine: "slow"}, ctx.Err()
	})
	svc := newService(&fakeScanner{}, nil)
	svc.Scanner = slow
	svc.ScanTimeout = 10 * time.Millisecond

	out, err := svc.Handle(context.Background(), plainUpload([]byte("x")))
	if err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if out.Record.Status != domain.StatusRejected {
		t.Fatal("timed-out scan must reject")
	}
	if out.Record.ScanStatus != scan.StatusError {
		t.Fatalf("scan_status = %s, want error", out.Record.ScanStatus)
	}
}

func TestUnsupportedTypeShortCircuitsScanner(t *testing.T) {
	sc := &fakeScanner{verdict: scan.Verdict{Status: scan.StatusClean}}
	svc := newService(sc, &fakeRepo{})

	cmd := plainUpload([]byte("MZ..."))
	cmd.ContentType = "application/octet-stream"

	_, err := svc.Handle(context.Background(), cmd)
	if !errors.Is(err, ErrUnsupportedType) {
		t.Fatalf("err = %v, want ErrUnsupportedType", err)
	}
	if sc.calls != 0 {
		t.Fatalf("scanner called %d times, want 0", sc.calls)
	}
}

func TestSizeCeilingBoundary(t *testing.T) {
	sc := &fakeScanner{verdict: scan.Verdict{Status: scan.StatusClean}}
	svc := newService(sc, nil)

	atLimit := plainUpload(make([]byte, 1024))
	if _, err := svc.Handle(context.Background(), atLimit); err != nil {
		t.Fatalf("payload at exactly the ceiling should pass: %v", err)
	}

	overLimit := plainUpload(make([]byte, 1025))
	_, err := svc.Handle(context.Background(), overLimit)
	if !errors.Is(err, ErrPayloadTooLarge) {
		t.Fatalf("err = %v, want ErrPayloadTooLarge", err)
	}
}

func TestRateLimitDeniesBeforeAnyOtherCheck(t *testing.T) {
	sc := &fakeScanner{verdict: scan.Verdict{Status: scan.StatusClean}}
	svc := newService(sc, nil)
	svc.Limiter = ratelimit.NewSlidingWindow(2, time.Minute)

	for i := 0; i < 2; i++ {
		if _, err := svc.Handle(context.Background(), plainUpload([]byte("ok"))); err != nil {
			t.Fatalf("request %d: %v", i+1, err)
		}
	}

	// Even a request that would fail the type check is answered with the
	// rate limit rejection: the rate gate runs first.
	cmd := plainUpload([]byte("x"))
	cmd.ContentType = "application/octet-stream"
	_, err := svc.Handle(context.Background(), cmd)
	if !errors.Is(err, ErrRateLimited) {
		t.Fatalf("err = %v, want ErrRateLimited", err)
	}
	if sc.calls != 2 {
		t.Fatalf("scanner called %d times, want 2", sc.calls)
	}
}

func TestStoreFailureDoesNotChangeDecision(t *testing.T) {
	sc := &fakeScanner{verdict: scan.Verdict{Status: scan.StatusClean, Engine: "signature"}}
	repo := &fakeRepo{saveErr: errors.New("connection refused")}
	svc := newService(sc, repo)

	out, err := svc.Handle(context.Background(), plainUpload([]byte("hello")))
	if err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if out.Record.Status != domain.StatusAccepted {
		t.Fatalf("status = %s, want accepted despite store failure", out.Record.Status)
	}
	if out.StoreStatus != domain.StoreUnavailable {
		t.Fatalf("store status = %s, want unavailable", out.StoreStatus)
	}
}

func TestNoStoreConfiguredSkipsPersistence(t *testing.T) {
	sc := &fakeScanner{verdict: scan.Verdict{Status: scan.StatusClean}}
	svc := newService(sc, nil)

	out, err := svc.Handle(context.Background(), plainUpload([]byte("hello")))
	if err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if out.StoreStatus != domain.StoreSkipped {
		t.Fatalf("store status = %s, want skipped", out.StoreStatus)
	}
}

func TestLatestPropagatesStoreFailure(t *testing.T) {
	svc := newService(&fakeScanner{}, &fakeRepo{listErr: errors.New("store down")})

	if _, err := svc.Latest(context.Background(), 10); err == nil {
		t.Fatal("Latest must surface store failures, not return an empty list")
	}
}

func TestLatestWithoutStoreFails(t *testing.T) {
	svc := newService(&fakeScanner{}, nil)

	if _, err := svc.Latest(context.Background(), 10); err == nil {
		t.Fatal("Latest without a configured store must fail")
	}
}

type archiveStore struct {
	puts int
	err  error
}

func (a *archiveStore) Put(ctx context.Context, key, contentType string, content []byte) (string, error) {
	a.puts++
	if a.err != nil {
		return "", a.err
	}
	return "http://archive.local/" + key, nil
}

func TestAcceptedPayloadArchived(t *testing.T) {
	sc := &fakeScanner{verdict: scan.Verdict{Status: scan.StatusClean}}
	svc := newService(sc, nil)
	store := &archiveStore{}
	svc.Artifacts = store

	out, err := svc.Handle(context.Background(), plainUpload([]byte("hello")))
	if err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if store.puts != 1 {
		t.Fatalf("archive called %d times, want 1", store.puts)
	}
	if out.Record.ArtifactURL == "" {
		t.Fatal("accepted record should carry the archive URL")
	}
}

func TestRejectedPayloadNotArchived(t *testing.T) {
	sc := &fakeScanner{verdict: scan.Verdict{Status: scan.StatusMalicious}}
	svc := newService(sc, nil)
	store := &archiveStore{}
	svc.Artifacts = store

	if _, err := svc.Handle(context.Background(), plainUpload([]byte("bad"))); err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if store.puts != 0 {
		t.Fatalf("archive called %d times for a rejected upload, want 0", store.puts)
	}
}

func TestArchiveFailureDoesNotChangeDecision(t *testing.T) {
	sc := &fakeScanner{verdict: scan.Verdict{Status: scan.StatusClean}}
	svc := newService(sc, &fakeRepo{})
	svc.Artifacts = &archiveStore{err: errors.New("bucket gone")}

	out, err := svc.Handle(context.Background(), plainUpload([]byte("hello")))
	if err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if out.Record.Status != domain.StatusAccepted {
		t.Fatal("archive failure must not change the admission decision")
	}
	if out.Record.ArtifactURL != "" {
		t.Fatal("failed archive must not leave a URL on the record")
	}
}
