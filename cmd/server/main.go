package main

import (
	"context"
	"database/sql"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/docker/docker/client"
	h "github.com/gorilla/handlers"
	"github.com/rs/zerolog"
	"github.com/stanstork/stratum-replicator/internal/config"
	"github.com/stanstork/stratum-replicator/internal/conflict"
	"github.com/stanstork/stratum-replicator/internal/engine"
	"github.com/stanstork/stratum-replicator/internal/handlers"
	"github.com/stanstork/stratum-replicator/internal/job"
	"github.com/stanstork/stratum-replicator/internal/jobbuilder"
	"github.com/stanstork/stratum-replicator/internal/metrics"
	"github.com/stanstork/stratum-replicator/internal/middleware"
	"github.com/stanstork/stratum-replicator/internal/migration"
	"github.com/stanstork/stratum-replicator/internal/notification"
	"github.com/stanstork/stratum-replicator/internal/replication/fs"
	"github.com/stanstork/stratum-replicator/internal/replication/hive"
	"github.com/stanstork/stratum-replicator/internal/repository"
	"github.com/stanstork/stratum-replicator/internal/routes"
	"github.com/stanstork/stratum-replicator/internal/temporal"
	"github.com/stanstork/stratum-replicator/internal/temporal/activities"
	"github.com/stanstork/stratum-replicator/internal/temporal/workflows"
	"github.com/stanstork/stratum-replicator/internal/worker"

	_ "github.com/lib/pq" // PostgreSQL driver
	tc "go.temporal.io/sdk/client"
	tw "go.temporal.io/sdk/worker"
)

type application struct {
	config         *config.Config
	db             *sql.DB
	temporalClient tc.Client
	logger         zerolog.Logger
	notifications  notification.Service
	metrics        *metrics.Collector

	policies  repository.PolicyRepository
	instances repository.InstanceRepository
	clusters  repository.ClusterRepository
	builder   *jobbuilder.Builder
	fsDeps    fs.Deps
	factory   *job.Factory
}

func main() {
	// Set up structured, level-based logging.
	consoleWriter := zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.Kitchen}
	logger := zerolog.New(consoleWriter).With().Timestamp().Logger()

	zerolog.SetGlobalLevel(zerolog.InfoLevel)
	log.SetFlags(0)
	log.SetOutput(logger)

	// Load configuration.
	cfg, err := config.Load()
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to load configuration")
	}
	if level, err := zerolog.ParseLevel(strings.ToLower(cfg.LogLevel)); err == nil && level != zerolog.NoLevel {
		zerolog.SetGlobalLevel(level)
	}

	// Initialize database connection.
	db, err := sql.Open("postgres", cfg.DatabaseURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to connect to the database")
	}
	defer db.Close()
	if err := db.Ping(); err != nil {
		logger.Fatal().Err(err).Msg("Failed to ping database")
	}

	// Run database migrations.
	if err := migration.Run(db, logger); err != nil {
		logger.Fatal().Err(err).Msg("Failed to run migrations")
	}

	// Initialize notification service.
	var notifiers []notification.Notifier
	if strings.TrimSpace(cfg.Email.SMTPHost) != "" {
		emailNotifier, err := notification.NewEmailNotifier(cfg.Email, logger)
		if err != nil {
			logger.Fatal().Err(err).Msg("Failed to configure email notifier")
		}
		notifiers = append(notifiers, emailNotifier)
	}
	notificationService := notification.NewService(repository.NewNotificationRepository(db), logger, notifiers...)

	// Initialize Temporal client.
	temporalClient, err := tc.Dial(tc.Options{
		HostPort:  cfg.Temporal.HostPort,
		Namespace: cfg.Temporal.Namespace,
		Logger:    temporal.NewLoggerAdapter(logger),
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("Unable to create Temporal client")
	}
	defer temporalClient.Close()

	var collector *metrics.Collector
	if cfg.Metrics.Enabled {
		collector = metrics.NewCollector()
	}

	// Create the application instance.
	app := &application{
		config:         cfg,
		db:             db,
		temporalClient: temporalClient,
		logger:         logger,
		notifications:  notificationService,
		metrics:        collector,
		policies:       repository.NewPolicyRepository(db),
		instances:      repository.NewInstanceRepository(db),
		clusters:       repository.NewClusterRepository(db),
	}
	app.builder = jobbuilder.New(app.clusters)
	app.initEngines(logger)

	// Start the Temporal worker in a separate goroutine.
	temporalWorker := app.startTemporalWorker(logger)

	ctx, stop := context.WithCancel(context.Background())
	defer stop()
	app.startBackground(ctx, logger)

	// Initialize the HTTP router and middleware.
	router := app.initRouter(logger)
	loggedRouter := middleware.LoggingMiddleware(app.logger)(router)
	corsHandler := h.CORS(
		h.AllowedOrigins([]string{"*"}),
		h.AllowedMethods([]string{"GET", "POST", "PUT", "DELETE", "OPTIONS"}),
		h.AllowedHeaders([]string{"Content-Type", "Authorization"}),
	)(loggedRouter)
	recovered := h.RecoveryHandler(h.PrintRecoveryStack(true))(corsHandler)

	// Start the HTTP server and handle graceful shutdown.
	app.startServer(recovered, temporalWorker, stop, logger)

	logger.Info().Msg("Application terminated.")
}

// initEngines wires the Hadoop and Hive client tools into the job factory.
func (app *application) initEngines(logger zerolog.Logger) {
	dockerClient, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to create Docker client")
	}
	runner := engine.NewDockerRunner(dockerClient)

	ec := app.config.Engine
	hadoop := engine.NewHadoop(runner, engine.HadoopConfig{
		Container: ec.HadoopContainer,
		HdfsBin:   ec.HdfsBin,
		HadoopBin: ec.HadoopBin,
		MapredBin: ec.MapredBin,
		Timeout:   ec.CommandTimeout,
	}, logger)
	hiveServer := engine.NewHiveServer(runner, engine.HiveConfig{
		Container:  ec.HiveContainer,
		BeelineBin: ec.BeelineBin,
		Timeout:    ec.CommandTimeout,
	}, logger)

	app.fsDeps = fs.Deps{
		Copier:       hadoop,
		FileSystem:   hadoop,
		PollInterval: 10 * time.Second,
	}
	app.factory = job.NewFactory(logger)
	fs.Register(app.factory, app.fsDeps)
	hive.Register(app.factory, hive.Dial{Server: hiveServer})
}

// initRouter sets up all HTTP handlers and returns the router.
func (app *application) initRouter(logger zerolog.Logger) http.Handler {
	detector := conflict.NewDetector(app.policies, logger)

	hs := routes.Handlers{
		Health:       handlers.NewHealthHandler(app.db),
		Clusters:     handlers.NewClusterHandler(app.clusters, logger),
		Policies:     handlers.NewPolicyHandler(app.policies, app.instances, app.builder, detector, app.notifications, app.temporalClient, logger),
		Notification: handlers.NewNotificationHandler(app.notifications, logger),
		Report:       handlers.NewReportHandler(app.instances, logger),
	}
	if app.metrics != nil {
		hs.Metrics = metrics.Handler()
		hs.MetricsPath = app.config.Metrics.Path
	}
	return routes.NewRouter(hs)
}

func (app *application) startTemporalWorker(logger zerolog.Logger) tw.Worker {
	activityImpl := &activities.Activities{
		Policies:          app.policies,
		Instances:         app.instances,
		Builder:           app.builder,
		Factory:           app.factory,
		Notifier:          app.notifications,
		Metrics:           app.metrics,
		Logger:            logger,
		HeartbeatInterval: 30 * time.Second,
	}

	w := tw.New(app.temporalClient, app.config.Temporal.TaskQueue, tw.Options{})

	w.RegisterWorkflow(workflows.ReplicationWorkflow)
	w.RegisterActivity(activityImpl)

	// Start the worker in a goroutine so it doesn't block.
	go func() {
		logger.Info().Msg("Starting Temporal worker...")
		if err := w.Run(tw.InterruptCh()); err != nil {
			logger.Fatal().Err(err).Msg("Unable to start worker")
		}
	}()

	return w
}

// startBackground launches the policy scheduler and the snapshot evictor.
func (app *application) startBackground(ctx context.Context, logger zerolog.Logger) {
	scheduler := worker.NewScheduler(worker.SchedulerConfig{
		PollInterval: app.config.Scheduler.PollInterval,
		BatchSize:    app.config.Scheduler.BatchSize,
		TaskQueue:    app.config.Temporal.TaskQueue,
	}, app.policies, app.temporalClient, app.metrics, logger)
	go func() {
		if err := scheduler.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error().Err(err).Msg("Scheduler stopped")
		}
	}()

	if !app.config.Eviction.Enabled {
		return
	}
	evictor, err := worker.NewEvictor(app.config.Eviction.Schedule, app.policies, app.builder, app.fsDeps, app.metrics, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to configure snapshot evictor")
	}
	go func() {
		if err := evictor.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error().Err(err).Msg("Evictor stopped")
		}
	}()
}

// startServer launches the HTTP server and handles graceful shutdown.
func (app *application) startServer(handler http.Handler, temporalWorker tw.Worker, stopBackground context.CancelFunc, logger zerolog.Logger) {
	server := &http.Server{
		Addr:    ":" + app.config.Server.Port,
		Handler: handler,
	}

	// Channel to listen for server errors
	serverErrCh := make(chan error, 1)
	go func() {
		logger.Info().Msgf("Server listening on %s", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErrCh <- err
		}
	}()

	// Wait for an interrupt signal or a server error.
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)

	select {
	case sig := <-quit:
		logger.Info().Msgf("Received signal: %s. Shutting down...", sig)
	case err := <-serverErrCh:
		logger.Error().Err(err).Msg("Server error occurred")
	}

	stopBackground()

	// Gracefully shut down the HTTP server.
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		logger.Error().Err(err).Msg("HTTP server shutdown error")
	} else {
		logger.Info().Msg("HTTP server shutdown complete.")
	}

	// Stop the Temporal worker.
	logger.Info().Msg("Stopping Temporal worker...")
	temporalWorker.Stop()
	logger.Info().Msg("Temporal worker stopped.")
}
