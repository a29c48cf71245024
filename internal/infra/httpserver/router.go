package httpserver

import (
	"encoding/json"
	"errors"
	"io"
	"net"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	appinsight "github.com/sentinelhq/sentinel-upload/internal/application/insight"
	appuploads "github.com/sentinelhq/sentinel-upload/internal/application/uploads"
	"github.com/sentinelhq/sentinel-upload/internal/domain/insight"
	domain "github.com/sentinelhq/sentinel-upload/internal/domain/uploads"
	"github.com/sentinelhq/sentinel-upload/internal/middleware"
)

type Router struct {
	uploadsSvc *appuploads.Service
	insightSvc *appinsight.Service
}

func NewRouter(uploadsSvc *appuploads.Service, insightSvc *appinsight.Service) http.Handler {
	r := &Router{uploadsSvc: uploadsSvc, insightSvc: insightSvc}
	mux := chi.NewRouter()

	mux.Use(chimw.RequestID)
	mux.Use(chimw.RealIP)
	mux.Use(chimw.Recoverer)
	mux.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type"},
	}))
	mux.Use(middleware.LoggingMiddleware)
	mux.Use(middleware.MetricsMiddleware)

	mux.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	})
	mux.Handle("/metrics", promhttp.Handler())

	mux.Route("/v1", func(rt chi.Router) {
		rt.Post("/uploads", r.wrap(r.handleUpload))
		rt.Get("/uploads", r.wrap(r.handleList))
		rt.Post("/insights", r.wrap(r.handleInsights))
	})

	return mux
}

type handlerFunc func(http.ResponseWriter, *http.Request) error

// wrap maps pipeline rejections onto transport status codes. Accepted and
// rejected uploads are both 200s; only pre-scan gate failures and
// infrastructure problems become transport errors.
func (r *Router) wrap(h handlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		err := h(w, req)
		if err == nil {
			return
		}
		switch {
		case errors.Is(err, appuploads.ErrRateLimited):
			middleware.ObserveAdmission("rate_limited")
			w.Header().Set("Retry-After", "60")
			http.Error(w, err.Error(), http.StatusTooManyRequests)
		case errors.Is(err, appuploads.ErrUnsupportedType):
			middleware.ObserveAdmission("unsupported_type")
			http.Error(w, err.Error(), http.StatusUnsupportedMediaType)
		case errors.Is(err, appuploads.ErrPayloadTooLarge):
			middleware.ObserveAdmission("too_large")
			http.Error(w, err.Error(), http.StatusRequestEntityTooLarge)
		case errors.Is(err, insight.ErrQuotaExceeded):
			http.Error(w, "ai quota exceeded", http.StatusTooManyRequests)
		case errors.Is(err, appinsight.ErrNotConfigured):
			http.Error(w, "insights not configured", http.StatusServiceUnavailable)
		case errors.Is(err, errStoreUnavailable):
			http.Error(w, "store unavailable", http.StatusServiceUnavailable)
		case errors.Is(err, errBadRequest):
			http.Error(w, err.Error(), http.StatusBadRequest)
		default:
			http.Error(w, err.Error(), http.StatusInternalServerError)
		}
	}
}

var (
	errStoreUnavailable = errors.New("store unavailable")
	errBadRequest       = errors.New("bad request")
)

type uploadResponse struct {
	*domain.UploadRecord
	StoreStatus domain.StoreStatus `json:"store_status"`
}

// POST /v1/uploads
// multipart form with one "file" part; declared filename and content type
// are trusted as-is (no byte sniffing).
func (r *Router) handleUpload(w http.ResponseWriter, req *http.Request) error {
	maxSize := r.uploadsSvc.MaxSizeBytes
	// Slack covers multipart framing so a payload of exactly the ceiling
	// still fits in the request body.
	req.Body = http.MaxBytesReader(w, req.Body, maxSize+1<<20)

	file, header, err := req.FormFile("file")
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			return appuploads.ErrPayloadTooLarge
		}
		return errBadRequest
	}
	defer file.Close()

	// Read at most one byte past the ceiling; the pipeline turns that
	// extra byte into a PayloadTooLarge rejection.
	content, err := io.ReadAll(io.LimitReader(file, maxSize+1))
	if err != nil {
		return err
	}

	out, err := r.uploadsSvc.Handle(req.Context(), appuploads.UploadCommand{
		Origin:      clientIP(req),
		Filename:    header.Filename,
		ContentType: header.Header.Get("Content-Type"),
		Content:     content,
	})
	if err != nil {
		return err
	}

	middleware.ObserveAdmission(string(out.Record.Status))

	w.Header().Set("Content-Type", "application/json")
	return json.NewEncoder(w).Encode(uploadResponse{
		UploadRecord: out.Record,
		StoreStatus:  out.StoreStatus,
	})
}

// GET /v1/uploads?limit=50
func (r *Router) handleList(w http.ResponseWriter, req *http.Request) error {
	limit, _ := strconv.Atoi(req.URL.Query().Get("limit"))

	items, err := r.uploadsSvc.Latest(req.Context(), limit)
	if err != nil {
		// Callers must be able to tell "no uploads yet" from "store down".
		return errStoreUnavailable
	}
	if items == nil {
		items = []*domain.UploadRecord{}
	}

	w.Header().Set("Content-Type", "application/json")
	return json.NewEncoder(w).Encode(map[string]any{"items": items})
}

// POST /v1/insights
// Body: {"limit": 50} (optional)
func (r *Router) handleInsights(w http.ResponseWriter, req *http.Request) error {
	if r.insightSvc == nil {
		return appinsight.ErrNotConfigured
	}

	var body struct {
		Limit int `json:"limit"`
	}
	if req.Body != nil {
		_ = json.NewDecoder(req.Body).Decode(&body)
	}

	summary, err := r.insightSvc.Summarize(req.Context(), body.Limit)
	if err != nil {
		if errors.Is(err, appinsight.ErrNotConfigured) || errors.Is(err, insight.ErrQuotaExceeded) {
			return err
		}
		return errStoreUnavailable
	}

	w.Header().Set("Content-Type", "application/json")
	_, err = w.Write([]byte(summary))
	return err
}

// clientIP extracts the rate-limit identity from the request. RealIP has
// already resolved proxy headers, so RemoteAddr is the caller's origin.
func clientIP(req *http.Request) string {
	host, _, err := net.SplitHostPort(req.RemoteAddr)
	if err != nil {
		return req.RemoteAddr
	}
	return host
}
