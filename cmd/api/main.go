package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/sentinelhq/sentinel-upload/internal/application"
	appinsight "github.com/sentinelhq/sentinel-upload/internal/application/insight"
	appuploads "github.com/sentinelhq/sentinel-upload/internal/application/uploads"
	"github.com/sentinelhq/sentinel-upload/internal/config"
	domain "github.com/sentinelhq/sentinel-upload/internal/domain/uploads"
	aiopenai "github.com/sentinelhq/sentinel-upload/internal/infra/ai/openai"
	"github.com/sentinelhq/sentinel-upload/internal/infra/db/mysql"
	"github.com/sentinelhq/sentinel-upload/internal/infra/db/postgres"
	"github.com/sentinelhq/sentinel-upload/internal/infra/httpserver"
	"github.com/sentinelhq/sentinel-upload/internal/infra/scanner"
	minioStore "github.com/sentinelhq/sentinel-upload/internal/infra/storage"
	"github.com/sentinelhq/sentinel-upload/internal/ratelimit"
)

func main() {
	// path config.yaml
	path := "config.yaml"
	if v := os.Getenv("CONFIG_PATH"); v != "" {
		path = v
	}

	// load config
	cfg, err := config.Load(path)
	if err != nil {
		log.Fatalf("config load error: %v", err)
	}

	ctx := context.Background()

	// connect store; admission must keep working without it
	repo := connectRepo(ctx, cfg)

	// init artifact archive (optional)
	var artifacts domain.ArtifactStore
	if cfg.Minio.Enabled {
		store, err := minioStore.New(ctx,
			cfg.Minio.Endpoint,
			cfg.Minio.Region,
			cfg.Minio.BucketName,
			cfg.Minio.AccessKey,
			cfg.Minio.SecretKey,
			cfg.Minio.UseSSL,
		)
		if err != nil {
			log.Printf("minio init error, archiving disabled: %v", err)
		} else {
			artifacts = store
		}
	}

	// init rate limiter with background sweep
	limiter := ratelimit.NewSlidingWindow(cfg.RateLimit.MaxPerWindow, cfg.RateWindow())
	stopSweep := make(chan struct{})
	limiter.StartSweeper(5*time.Minute, stopSweep)
	defer close(stopSweep)

	// init admission pipeline
	svc := &appuploads.Service{
		Limiter:      limiter,
		Scanner:      scanner.New(),
		Repo:         repo,
		Artifacts:    artifacts,
		Clock:        application.SystemClock{},
		AllowedTypes: cfg.AllowedTypeSet(),
		MaxSizeBytes: cfg.Upload.MaxSizeBytes,
		ScanTimeout:  cfg.ScanTimeout(),
	}

	// init insights (optional)
	var insightSvc *appinsight.Service
	if cfg.AI.APIKey != "" {
		insightSvc = appinsight.NewService(aiopenai.NewClient(cfg.AI.APIKey, cfg.AI.Model), repo)
	}

	// init router
	mux := chi.NewRouter()
	mux.Mount("/", httpserver.NewRouter(svc, insightSvc))

	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      mux,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// run server
	go func() {
		log.Printf("server listening on %s", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server error: %v", err)
		}
	}()

	// graceful shutdown
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop
	log.Println("shutting down server...")

	ctx2, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx2); err != nil {
		log.Printf("shutdown error: %v", err)
	}
}

// connectRepo picks the repository by configured driver. A connect failure
// is logged and leaves the service storeless rather than refusing to start.
func connectRepo(ctx context.Context, cfg *config.Config) domain.Repository {
	switch cfg.Database.Driver {
	case "mysql":
		db, err := mysql.Connect(ctx, cfg.MySQLDSN())
		if err != nil {
			log.Printf("mysql connect error, running without store: %v", err)
			return nil
		}
		return mysql.NewUploadRepository(db)
	case "postgres":
		db, err := postgres.Connect(ctx, cfg.PostgresDSN())
		if err != nil {
			log.Printf("postgres connect error, running without store: %v", err)
			return nil
		}
		return postgres.NewUploadRepository(db)
	case "disabled", "":
		return nil
	default:
		log.Printf("unknown database driver %q, running without store", cfg.Database.Driver)
		return nil
	}
}
