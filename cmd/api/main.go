package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/civicconnect/civic-backend/api/routes"
	"github.com/civicconnect/civic-backend/internal/auth"
	"github.com/civicconnect/civic-backend/internal/comments"
	"github.com/civicconnect/civic-backend/internal/issues"
	"github.com/civicconnect/civic-backend/internal/notifications"
	"github.com/civicconnect/civic-backend/internal/realtime"
	"github.com/civicconnect/civic-backend/internal/users"
	"github.com/civicconnect/civic-backend/pkg/auth/session"
	"github.com/civicconnect/civic-backend/pkg/config"
	"github.com/civicconnect/civic-backend/pkg/db"
	"github.com/civicconnect/civic-backend/pkg/email"
	"github.com/civicconnect/civic-backend/pkg/instance"
	"github.com/civicconnect/civic-backend/pkg/logger"
	"github.com/civicconnect/civic-backend/pkg/metrics"
	"github.com/civicconnect/civic-backend/pkg/migrate"
	"github.com/civicconnect/civic-backend/pkg/redis"
)

const shutdownTimeout = 20 * time.Second

func main() {
	logg := logger.New(logger.Options{ServiceName: "api"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	logg = logger.New(logger.Options{
		ServiceName: "api",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
		Format:      cfg.App.LogFormat,
		Instance:    instance.ID(),
	})

	dbClient, err := db.New(context.Background(), cfg.DB, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap database", err)
		os.Exit(1)
	}
	defer func() {
		if err := dbClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing database", err)
		}
	}()

	if err := migrate.MaybeRunDev(context.Background(), cfg, logg, dbClient); err != nil {
		logg.Error(context.Background(), "failed to run dev migrations", err)
		os.Exit(1)
	}

	redisClient, err := redis.New(context.Background(), cfg.Redis, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap redis", err)
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing redis", err)
		}
	}()

	sessionManager, err := session.NewManager(redisClient, cfg.JWT)
	if err != nil {
		logg.Error(context.Background(), "failed to create session manager", err)
		os.Exit(1)
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	dispatchMetrics := metrics.NewDispatchMetrics(registry)
	realtimeMetrics := metrics.NewRealtimeMetrics(registry)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	hub, err := realtime.NewHub(realtime.HubParams{Logger: logg, Metrics: realtimeMetrics})
	if err != nil {
		logg.Error(ctx, "failed to create realtime hub", err)
		os.Exit(1)
	}
	hub.Start(ctx)

	userRepo := users.NewRepository(dbClient.DB())
	notificationRepo := notifications.NewRepository(dbClient.DB())

	dispatcher, err := notifications.NewDispatcher(notifications.DispatcherParams{
		Repo:         notificationRepo,
		Users:        userRepo,
		Publisher:    hub,
		Email:        email.NewSender(cfg.SMTP),
		EmailEnabled: cfg.Notifications.EmailEnabled,
		LinkBase:     cfg.Notifications.LinkBase,
		Metrics:      dispatchMetrics,
		Logger:       logg,
	})
	if err != nil {
		logg.Error(ctx, "failed to create notification dispatcher", err)
		os.Exit(1)
	}

	queue, err := notifications.NewQueue(notifications.QueueParams{
		Handler:         dispatcher,
		Size:            cfg.Notifications.QueueSize,
		Workers:         cfg.Notifications.Workers,
		DeliveryTimeout: cfg.Notifications.DeliveryTimeout,
		Metrics:         dispatchMetrics,
		Logger:          logg,
	})
	if err != nil {
		logg.Error(ctx, "failed to create notification queue", err)
		os.Exit(1)
	}
	queue.Start(ctx)

	authService, err := auth.NewService(auth.ServiceParams{
		UserRepo:       userRepo,
		SessionManager: sessionManager,
		JWTConfig:      cfg.JWT,
		PasswordConfig: cfg.Password,
	})
	if err != nil {
		logg.Error(ctx, "failed to create auth service", err)
		os.Exit(1)
	}

	usersService, err := users.NewService(userRepo)
	if err != nil {
		logg.Error(ctx, "failed to create users service", err)
		os.Exit(1)
	}

	issueRepo := issues.NewRepository(dbClient.DB())
	issuesService, err := issues.NewService(issues.ServiceParams{
		Repo:               issueRepo,
		Tx:                 dbClient,
		Users:              userRepo,
		Events:             queue,
		Policy:             issues.TransitionPolicy{Strict: cfg.Issues.StrictTransitions},
		NearbyRadiusMeters: cfg.Issues.NearbyRadiusMeters,
		NearbyLimit:        cfg.Issues.NearbyLimit,
		Logger:             logg,
	})
	if err != nil {
		logg.Error(ctx, "failed to create issues service", err)
		os.Exit(1)
	}

	commentsService, err := comments.NewService(comments.ServiceParams{
		Repo:   comments.NewRepository(dbClient.DB()),
		Issues: issueRepo,
		Users:  userRepo,
		Events: queue,
		Logger: logg,
	})
	if err != nil {
		logg.Error(ctx, "failed to create comments service", err)
		os.Exit(1)
	}

	notificationsService, err := notifications.NewService(notificationRepo)
	if err != nil {
		logg.Error(ctx, "failed to create notifications service", err)
		os.Exit(1)
	}

	wsHandler := realtime.NewHandler(realtime.HandlerParams{
		Hub:            hub,
		JWT:            cfg.JWT,
		Sessions:       sessionManager,
		Realtime:       cfg.Realtime,
		AllowedOrigins: cfg.CORS.AllowedOrigins,
		Logger:         logg,
	})

	port := os.Getenv("PORT")
	if port == "" {
		port = cfg.App.Port
	}
	addr := ":" + port
	ctx = logg.WithFields(ctx, map[string]any{
		"env":  cfg.App.Env,
		"addr": addr,
	})
	logg.Info(ctx, "starting api server")

	server := &http.Server{
		Addr: addr,
		Handler: routes.NewRouter(routes.Params{
			Config:        cfg,
			Logger:        logg,
			DB:            dbClient,
			Redis:         redisClient,
			Sessions:      sessionManager,
			Auth:          authService,
			Users:         usersService,
			Issues:        issuesService,
			Comments:      commentsService,
			Notifications: notificationsService,
			Queue:         queue,
			Realtime:      wsHandler,
			Metrics:       promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		}),
		ReadHeaderTimeout: 10 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	select {
	case <-ctx.Done():
	case err := <-serverErr:
		if err != nil {
			logg.Error(ctx, "api server stopped unexpectedly", err)
		}
	}

	logg.Info(ctx, "api server shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logg.Error(shutdownCtx, "http shutdown failed", err)
	}
	// the hub outlives the signal context; it closes connections only after the drain
	if err := queue.Stop(shutdownCtx); err != nil {
		logg.Error(shutdownCtx, "notification queue did not drain", err)
	}
	hub.Stop()
}
