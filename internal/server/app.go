// Package server provides the core application server and dependency wiring.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"sync"
	"syscall"
	"time"

	pubsub "cloud.google.com/go/pubsub/v2"
	"cloud.google.com/go/storage"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/JakeFAU/realtime-site-auditor/internal/api"
	"github.com/JakeFAU/realtime-site-auditor/internal/audit"
	"github.com/JakeFAU/realtime-site-auditor/internal/browser/headless"
	"github.com/JakeFAU/realtime-site-auditor/internal/clock/system"
	"github.com/JakeFAU/realtime-site-auditor/internal/config"
	"github.com/JakeFAU/realtime-site-auditor/internal/frames"
	"github.com/JakeFAU/realtime-site-auditor/internal/gate"
	"github.com/JakeFAU/realtime-site-auditor/internal/hash/sha256"
	"github.com/JakeFAU/realtime-site-auditor/internal/id/uuid"
	"github.com/JakeFAU/realtime-site-auditor/internal/logging"
	"github.com/JakeFAU/realtime-site-auditor/internal/metrics"
	"github.com/JakeFAU/realtime-site-auditor/internal/orchestrator"
	"github.com/JakeFAU/realtime-site-auditor/internal/policy/ratelimit"
	"github.com/JakeFAU/realtime-site-auditor/internal/postprocess"
	"github.com/JakeFAU/realtime-site-auditor/internal/progress"
	progresssinks "github.com/JakeFAU/realtime-site-auditor/internal/progress/sinks"
	memorypublisher "github.com/JakeFAU/realtime-site-auditor/internal/publisher/memory"
	gcppublisher "github.com/JakeFAU/realtime-site-auditor/internal/publisher/pubsub"
	"github.com/JakeFAU/realtime-site-auditor/internal/runner"
	gcsstorage "github.com/JakeFAU/realtime-site-auditor/internal/storage/gcs"
	localstorage "github.com/JakeFAU/realtime-site-auditor/internal/storage/local"
	memorystorage "github.com/JakeFAU/realtime-site-auditor/internal/storage/memory"
	pgstore "github.com/JakeFAU/realtime-site-auditor/internal/storage/postgres"
	"github.com/JakeFAU/realtime-site-auditor/internal/store"
	"github.com/JakeFAU/realtime-site-auditor/internal/telemetry"
)

// App contains the application's dependencies.
type App struct {
	cfg          config.Config
	logger       *zap.Logger
	orch         *orchestrator.Orchestrator
	apiServer    *api.Server
	engine       *headless.Engine
	pool         *postprocess.Pool
	progressHub  *progress.Hub
	pubsubClient *pubsub.Client
	publisher    *gcppublisher.Publisher
	storage      *storage.Client
	db           *pgxpool.Pool
	telemetry    *telemetry.Providers

	closeOnce sync.Once
	closeErr  error
}

// Orchestrator exposes the session orchestrator, used by one-shot commands.
func (a *App) Orchestrator() *orchestrator.Orchestrator {
	return a.orch
}

// Logger returns the root logger.
func (a *App) Logger() *zap.Logger {
	return a.logger
}

// RunAndWait starts the worker pool and runs a single session to a terminal
// status without serving HTTP.
func (a *App) RunAndWait(ctx context.Context, spec audit.JobSpec) (orchestrator.Report, error) {
	a.orch.Start(ctx)
	rep, err := a.orch.RunAndWait(ctx, spec)
	if err != nil {
		return orchestrator.Report{}, fmt.Errorf("run session: %w", err)
	}
	return rep, nil
}

// Run serves the HTTP API and the worker pool until ctx is canceled or a
// termination signal arrives.
func (a *App) Run(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a.orch.Start(ctx)

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", a.cfg.Server.Port),
		Handler:           a.apiServer.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		a.logger.Info("http server started", zap.Int("port", a.cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.logger.Error("http server error", zap.Error(err))
			stop()
		}
	}()

	<-ctx.Done()
	a.logger.Info("shutdown initiated")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		a.logger.Error("server shutdown error", zap.Error(err))
	}

	return a.Close(shutdownCtx)
}

// Close stops the orchestrator and releases every client. Later calls
// return the first result.
func (a *App) Close(ctx context.Context) error {
	a.closeOnce.Do(func() {
		if a.orch != nil {
			a.closeErr = a.orch.Shutdown(ctx)
		}
		a.closeInfrastructure(ctx)
		a.closeObservability(ctx)
		a.logger.Info("shutdown complete")
	})
	return a.closeErr
}

//nolint:gocognit // Shutdown logic is linear but extensive, ignoring complexity check
func (a *App) closeInfrastructure(ctx context.Context) {
	if a.engine != nil {
		if err := a.engine.Close(); err != nil {
			a.logger.Warn("browser engine close failed", zap.Error(err))
		}
	}
	if a.pool != nil {
		if err := a.pool.Close(); err != nil {
			a.logger.Warn("post-process pool close failed", zap.Error(err))
		}
	}
	if a.progressHub != nil {
		if err := a.progressHub.Close(ctx); err != nil {
			a.logger.Warn("progress hub close failed", zap.Error(err))
		}
	}
	if a.publisher != nil {
		a.publisher.Close()
	}
	if a.pubsubClient != nil {
		if err := a.pubsubClient.Close(); err != nil {
			a.logger.Warn("pubsub client close failed", zap.Error(err))
		}
	}
	if a.storage != nil {
		if err := a.storage.Close(); err != nil {
			a.logger.Warn("gcs client close failed", zap.Error(err))
		}
	}
	if a.db != nil {
		a.db.Close()
	}
}

func (a *App) closeObservability(ctx context.Context) {
	if err := a.telemetry.Shutdown(ctx); err != nil {
		a.logger.Warn("telemetry shutdown failed", zap.Error(err))
	}
	_ = a.logger.Sync()
}

// Build creates the application's dependencies.
func Build(ctx context.Context, cfg config.Config) (*App, error) {
	logger, err := logging.New(cfg.Logging.Development, cfg.Logging.Level)
	if err != nil {
		return nil, fmt.Errorf("logger init failed: %w", err)
	}
	zap.ReplaceGlobals(logger)
	logger.Info("building application dependencies",
		zap.Int("server_port", cfg.Server.Port),
		zap.String("storage_backend", cfg.Storage.Backend),
		zap.Int("max_concurrent_audits", cfg.Limits.MaxConcurrentAudits),
	)

	app := &App{cfg: cfg, logger: logger}
	if err := app.build(ctx); err != nil {
		_ = app.Close(ctx)
		return nil, err
	}
	return app, nil
}

func (a *App) build(ctx context.Context) error {
	var err error
	a.telemetry, err = telemetry.Init(ctx, telemetry.Config{
		ServiceName: a.cfg.Telemetry.ServiceName,
		Version:     a.cfg.Telemetry.Version,
		ProjectID:   a.cfg.Telemetry.ProjectID,
	})
	if err != nil {
		return fmt.Errorf("telemetry init failed: %w", err)
	}
	metrics.Init()

	blobs, err := a.setupStorage(ctx)
	if err != nil {
		return err
	}
	sessions, results, err := a.setupDatabase(ctx)
	if err != nil {
		return err
	}
	publisher, err := a.setupPublisher(ctx)
	if err != nil {
		return err
	}
	emitter, err := a.setupProgress(ctx)
	if err != nil {
		return err
	}
	env, err := a.setupRunnerEnv(results, blobs, emitter)
	if err != nil {
		return err
	}

	a.orch, err = orchestrator.New(orchestrator.Config{
		MaxConcurrentAudits: a.cfg.Limits.MaxConcurrentAudits,
		QueueDepth:          a.cfg.Limits.QueueDepth,
		Topic:               a.cfg.PubSub.TopicName,
	}, runner.DefaultSet(), env, sessions, publisher, a.logger)
	if err != nil {
		return fmt.Errorf("orchestrator init failed: %w", err)
	}
	a.apiServer = api.NewServer(a.orch, a.cfg, a.ready, a.logger.Named("api"))
	return nil
}

func (a *App) ready(ctx context.Context) error {
	if a.db == nil {
		return nil
	}
	if err := a.db.Ping(ctx); err != nil {
		return fmt.Errorf("database ping: %w", err)
	}
	return nil
}

func (a *App) setupStorage(ctx context.Context) (audit.BlobStore, error) {
	switch a.cfg.Storage.Backend {
	case "gcs":
		a.logger.Info("using GCS storage backend", zap.String("bucket", a.cfg.Storage.Bucket))
		var err error
		a.storage, err = storage.NewClient(ctx)
		if err != nil {
			return nil, fmt.Errorf("gcs client init failed: %w", err)
		}
		blobs, err := gcsstorage.New(a.storage, gcsstorage.Config{Bucket: a.cfg.Storage.Bucket})
		if err != nil {
			return nil, fmt.Errorf("gcs blob store init failed: %w", err)
		}
		return blobs, nil
	case "local":
		a.logger.Info("using local storage backend", zap.String("path", a.cfg.Storage.Local.BaseDir))
		blobs, err := localstorage.New(localstorage.Config{BaseDir: a.cfg.Storage.Local.BaseDir})
		if err != nil {
			return nil, fmt.Errorf("local blob store init failed: %w", err)
		}
		return blobs, nil
	default:
		a.logger.Info("using in-memory storage backend")
		return memorystorage.NewBlobStore(), nil
	}
}

func (a *App) setupDatabase(ctx context.Context) (store.SessionRepository, store.ResultRepository, error) {
	if a.cfg.Database.DSN == "" {
		a.logger.Warn("no database DSN configured, keeping sessions and results in memory")
		return memorystorage.NewSessionStore(), memorystorage.NewResultStore(), nil
	}
	var err error
	a.db, err = pgstore.Connect(ctx, pgstore.Config{
		DSN:             a.cfg.Database.DSN,
		MaxConns:        a.cfg.Database.MaxConns,
		MinConns:        a.cfg.Database.MinConns,
		MaxConnLifetime: a.cfg.Database.MaxConnLifetime,
	})
	if err != nil {
		return nil, nil, err
	}
	sessions, err := pgstore.NewSessionStore(a.db, a.cfg.Database.SessionsTable)
	if err != nil {
		return nil, nil, fmt.Errorf("session store init failed: %w", err)
	}
	results, err := pgstore.NewResultStore(a.db, a.cfg.Database.ResultsTable)
	if err != nil {
		return nil, nil, fmt.Errorf("result store init failed: %w", err)
	}
	a.logger.Info("postgres stores initialized",
		zap.String("sessions_table", a.cfg.Database.SessionsTable),
		zap.String("results_table", a.cfg.Database.ResultsTable),
	)
	return sessions, results, nil
}

func (a *App) setupPublisher(ctx context.Context) (audit.Publisher, error) {
	if a.cfg.PubSub.TopicName == "" || a.cfg.PubSub.ProjectID == "" {
		a.logger.Warn("no Pub/Sub topic configured, using in-memory publisher")
		return memorypublisher.New(), nil
	}
	var err error
	a.pubsubClient, err = pubsub.NewClient(ctx, a.cfg.PubSub.ProjectID)
	if err != nil {
		return nil, fmt.Errorf("pubsub client init failed: %w", err)
	}
	a.publisher = gcppublisher.New(a.pubsubClient)
	a.logger.Info("Pub/Sub publisher initialized",
		zap.String("project", a.cfg.PubSub.ProjectID),
		zap.String("topic", a.cfg.PubSub.TopicName),
	)
	return a.publisher, nil
}

func (a *App) setupProgress(ctx context.Context) (progress.Emitter, error) {
	if !a.cfg.Progress.Enabled {
		a.logger.Info("progress tracking disabled")
		return progress.Discard, nil
	}
	var sinkList []progress.Sink
	if a.cfg.Progress.LogEnabled {
		sinkList = append(sinkList, progresssinks.NewLogSink(a.logger.Named("progress_log")))
	}
	if a.cfg.Progress.PrometheusEnabled {
		promSink, err := progresssinks.NewPrometheusSink(prometheus.DefaultRegisterer)
		if err != nil {
			return nil, fmt.Errorf("progress prometheus sink init failed: %w", err)
		}
		sinkList = append(sinkList, promSink)
	}
	if len(sinkList) == 0 {
		a.logger.Warn("progress tracking enabled but no sinks configured")
		return progress.Discard, nil
	}
	hubCfg := progress.Config{
		BufferSize:     a.cfg.Progress.BufferSize,
		MaxBatchEvents: a.cfg.Progress.Batch.MaxEvents,
		MaxBatchWait:   time.Duration(a.cfg.Progress.Batch.MaxWaitMs) * time.Millisecond,
		SinkTimeout:    time.Duration(a.cfg.Progress.SinkTimeoutMs) * time.Millisecond,
		BaseContext:    ctx,
		Logger:         a.logger.Named("progress_hub"),
	}
	a.progressHub = progress.NewHub(hubCfg, sinkList...)
	a.logger.Info("progress hub initialized",
		zap.Int("sinks", len(sinkList)),
		zap.Int("buffer_size", hubCfg.BufferSize),
		zap.Duration("max_batch_wait", hubCfg.MaxBatchWait),
	)
	return a.progressHub, nil
}

func (a *App) setupRunnerEnv(
	results store.ResultRepository,
	blobs audit.BlobStore,
	emitter progress.Emitter,
) (*runner.Env, error) {
	userAgents := make(map[string]string, len(a.cfg.Browser.UserAgents))
	for name, ua := range a.cfg.Browser.UserAgents {
		b, err := audit.ParseBrowser(name)
		if err != nil {
			return nil, fmt.Errorf("browser.user_agents: %w", err)
		}
		userAgents[string(b)] = ua
	}
	var err error
	a.engine, err = headless.New(headless.Config{
		ExecPath:          a.cfg.Browser.ExecPath,
		Headless:          a.cfg.Browser.Headless,
		NoSandbox:         a.cfg.Browser.NoSandbox,
		UserAgents:        userAgents,
		NavigationTimeout: a.cfg.NavigationTimeout(),
		ActionTimeout:     time.Duration(a.cfg.Browser.ActionTimeoutSec) * time.Second,
	}, a.logger.Named("browser"))
	if err != nil {
		return nil, fmt.Errorf("browser engine init failed: %w", err)
	}

	var limiter *ratelimit.Limiter
	if a.cfg.RateLimit.Enabled {
		limiter = ratelimit.New(ratelimit.Config{
			DefaultRPS:   a.cfg.RateLimit.DefaultRPS,
			DefaultBurst: a.cfg.RateLimit.DefaultBurst,
		})
		a.logger.Info("navigation rate limiter enabled",
			zap.Float64("default_rps", a.cfg.RateLimit.DefaultRPS),
			zap.Int("default_burst", a.cfg.RateLimit.DefaultBurst),
		)
	}

	a.pool = postprocess.New(a.cfg.Limits.PostprocessWorkers)
	assembler := frames.NewAssembler(
		frames.FFmpeg{Path: a.cfg.Artifacts.FFmpegPath, FPS: a.cfg.Artifacts.VideoFPS},
		a.logger,
		metrics.ObserveVideoEncode,
	)

	timings := runner.DefaultTimings
	timings.StaticNavigation = a.cfg.NavigationTimeout()
	timings.VideoNavigation = a.cfg.NavigationTimeout()

	env := &runner.Env{
		Engine:    a.engine,
		Results:   results,
		Blobs:     blobs,
		Pool:      a.pool,
		Assembler: assembler,
		Limiter:   limiter,
		Emitter:   emitter,
		Clock:     system.New(),
		IDs:       uuid.NewUUIDGenerator(),
		Hasher:    sha256.New(),
		Tracer:    telemetry.Tracer(),
		Logger:    a.logger.Named("runner"),
		Limits: gate.Limits{
			Static:     a.cfg.Limits.StaticParallel,
			Video:      a.cfg.Limits.VideoParallel,
			Inspection: a.cfg.Limits.InspectionParallel,
		},
		Timings:     timings,
		WebPQuality: a.cfg.Artifacts.WebPQuality,
		FramesDir:   a.cfg.Artifacts.TempFramesDir,
	}
	if err := env.Validate(); err != nil {
		return nil, fmt.Errorf("runner env: %w", err)
	}
	return env, nil
}
