package main

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"

	"github.com/bryanwahyu/vulnscan/internal/application"
	appscans "github.com/bryanwahyu/vulnscan/internal/application/scans"
	"github.com/bryanwahyu/vulnscan/internal/config"
	"github.com/bryanwahyu/vulnscan/internal/domain/scanerrors"
	domain "github.com/bryanwahyu/vulnscan/internal/domain/scans"
	"github.com/bryanwahyu/vulnscan/internal/infra/ai/httpclient"
	aiopenai "github.com/bryanwahyu/vulnscan/internal/infra/ai/openai"
	mysqlp "github.com/bryanwahyu/vulnscan/internal/infra/db/mysql"
	postgresp "github.com/bryanwahyu/vulnscan/internal/infra/db/postgres"
	"github.com/bryanwahyu/vulnscan/internal/infra/httpserver"
	"github.com/bryanwahyu/vulnscan/internal/infra/jobs"
	minioStore "github.com/bryanwahyu/vulnscan/internal/infra/storage"
	gitfetch "github.com/bryanwahyu/vulnscan/internal/infra/vcs/git"
	"github.com/bryanwahyu/vulnscan/internal/middleware"
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

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// connect database
	var db *sql.DB
	var repo domain.Repository
	var errsRepo scanerrors.Repository
	switch cfg.Database.Driver {
	case "postgres":
		db, err = postgresp.Connect(ctx, cfg.PostgresDSN())
		if err != nil {
			log.Fatalf("postgres connect error: %v", err)
		}
		repo = postgresp.NewScanRepository(db)
	default:
		db, err = mysqlp.Connect(ctx, cfg.MySQLDSN())
		if err != nil {
			log.Fatalf("mysql connect error: %v", err)
		}
		repo = mysqlp.NewScanRepository(db)
		errsRepo = mysqlp.NewScanErrorRepository(db)
	}
	defer db.Close()

	// init analyzer
	var analyzer domain.Analyzer
	switch cfg.AI.Provider {
	case "openai":
		analyzer = aiopenai.NewClient(cfg.AI.OpenAI.APIKey, cfg.AI.OpenAI.Model)
	default:
		analyzer = httpclient.New(cfg.AI.BaseURL, time.Duration(cfg.AI.TimeoutSeconds)*time.Second)
	}

	// init source fetcher
	fetcher := gitfetch.NewFetcher(cfg.Limits.MaxFileSizeBytes, cfg.Limits.MaxRepoSizeBytes)

	// init report store
	var reports domain.ReportStore
	if cfg.Artifacts.Enabled {
		store, err := minioStore.New(ctx,
			cfg.Artifacts.Endpoint,
			cfg.Artifacts.Region,
			cfg.Artifacts.BucketName,
			cfg.Artifacts.AccessKey,
			cfg.Artifacts.SecretKey,
			cfg.Artifacts.UseSSL,
		)
		if err != nil {
			log.Fatalf("minio init error: %v", err)
		}
		reports = store
	}

	// init orchestrator + dispatcher
	orch := &appscans.Orchestrator{
		Repo:         repo,
		Analyzer:     analyzer,
		Fetcher:      fetcher,
		Reports:      reports,
		Errors:       errsRepo,
		MaxUnitBytes: cfg.Limits.MaxUnitBytes,
	}
	dispatcher := jobs.NewDispatcher(orch, repo, cfg.Jobs.Workers,
		time.Duration(cfg.Jobs.SweepIntervalSeconds)*time.Second)
	dispatcher.Start(ctx)

	// init service
	svc := &appscans.Service{
		Repo:  repo,
		Jobs:  dispatcher,
		Clock: application.SystemClock{},
	}

	// init rate limiter
	limiter := middleware.NewSlidingWindowLimiter(middleware.RateLimitConfig{
		RequestsPerMinute: cfg.RateLimit.RequestsPerMinute,
		RequestsPerHour:   cfg.RateLimit.RequestsPerHour,
	}, nil)

	// init router
	health := middleware.HealthHandler(map[string]middleware.HealthChecker{
		"database": &middleware.DatabaseHealthChecker{DB: db},
	})

	mux := chi.NewRouter()
	mux.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))
	mux.Use(middleware.LoggingMiddleware)
	mux.Use(middleware.MetricsMiddleware)
	mux.Use(middleware.RateLimit(limiter))
	mux.Mount("/", httpserver.NewRouter(svc, errsRepo, health))

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

	ctx2, cancel2 := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel2()
	if err := srv.Shutdown(ctx2); err != nil {
		log.Printf("shutdown error: %v", err)
	}

	// stop workers after in-flight requests drain
	cancel()
	dispatcher.Wait()
}
