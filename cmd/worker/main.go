package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	_ "github.com/lib/pq"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"autoleads/internal/config"
	"autoleads/internal/gateway"
	"autoleads/internal/lock"
	"autoleads/internal/logger"
	"autoleads/internal/metrics"
	"autoleads/internal/queue"
	"autoleads/internal/repository"
	"autoleads/internal/service"
)

// shutdownTimeout bounds how long in-flight sends get to finish
const shutdownTimeout = 30 * time.Second

func main() {
	// Load .env file (ignore error in production)
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load config")
	}

	logger.Init(logger.Config{Level: cfg.Log.Level, JSONOutput: cfg.Log.Format == "json"})

	db, err := sql.Open("postgres", cfg.GetDatabaseDSN())
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to database")
	}
	defer db.Close()

	if err := db.Ping(); err != nil {
		log.Fatal().Err(err).Msg("Failed to ping database")
	}
	log.Info().Msg("Connected to database")

	campaignRepo := repository.NewCampaignRepository(db)
	leadRepo := repository.NewLeadRepository(db)
	orgRepo := repository.NewOrganizationRepository(db)
	threadRepo := repository.NewThreadRepository(db)
	messageRepo := repository.NewMessageRepository(db)
	logRepo := repository.NewLogRepository(db)

	var simulator gateway.Sender
	if cfg.Gateway.Mode == config.GatewayModeSimulate {
		simulator = gateway.NewSimulator(cfg.Gateway.SuccessRate, 2*time.Second)
		log.Warn().Float64("success_rate", cfg.Gateway.SuccessRate).Msg("SMS gateway simulator enabled")
	}
	gateways := gateway.NewPool(cfg.Gateway.BaseURL, cfg.Gateway.Timeout, simulator)

	owner := lock.NewOwnerID()
	var locker lock.Locker
	var redisClient redis.UniversalClient
	switch cfg.Dispatch.LeaseBackend {
	case config.LeaseBackendRedis:
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer redisClient.Close()
		locker = lock.NewRedisLocker(redisClient, owner, cfg.Dispatch.LeaseTTL)
	default:
		locker = lock.NewPostgresLocker(campaignRepo, owner, cfg.Dispatch.LeaseTTL)
	}
	log.Info().Str("owner", owner).Str("backend", cfg.Dispatch.LeaseBackend).Msg("Lease backend ready")

	dispatcher := service.NewDispatcher(service.DispatcherDeps{
		Campaigns: campaignRepo,
		Leads:     leadRepo,
		Orgs:      orgRepo,
		Gateways:  gateways,
		Threads:   service.NewThreadService(threadRepo, messageRepo),
		Templates: service.NewTemplateService(),
		Logs:      service.NewLogSink(logRepo),
		Locker:    locker,
		// renew well inside the ttl
		RenewInterval: cfg.Dispatch.LeaseTTL / 3,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	supervisor := service.NewSupervisor(ctx, dispatcher, campaignRepo)

	conn, err := queue.NewConnection(cfg.GetRabbitMQURL())
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to RabbitMQ")
	}
	defer conn.Close()

	consumer, err := queue.NewConsumer(conn, cfg.RabbitMQ.RunsQueue, func(ctx context.Context, job *queue.RunJob) error {
		launched := supervisor.Launch(job.CampaignID)
		log.Info().
			Str("job_id", job.JobID).
			Int("campaign_id", job.CampaignID).
			Bool("launched", launched).
			Msg("Run job received")
		return nil
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create consumer")
	}
	if err := consumer.Start(ctx); err != nil {
		log.Fatal().Err(err).Msg("Failed to start consumer")
	}
	log.Info().Str("queue", cfg.RabbitMQ.RunsQueue).Msg("Worker consuming run jobs")

	go supervisor.RunRecovery(ctx, cfg.Dispatch.RecoveryInterval)

	metrics.InitWorkerMetrics()
	healthSvc := service.NewHealthService(db, cfg.GetRabbitMQURL(), redisClient, "worker")

	metricsMux := http.NewServeMux()
	metricsMux.Handle("/metrics", promhttp.Handler())
	metricsMux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		status := healthSvc.CheckHealth(r.Context())
		code := http.StatusOK
		if status.Status != service.StatusHealthy {
			code = http.StatusServiceUnavailable
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(code)
		_ = json.NewEncoder(w).Encode(status)
	})

	metricsServer := &http.Server{
		Addr:              ":" + cfg.Server.MetricsPort,
		Handler:           metricsMux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		log.Info().Str("addr", metricsServer.Addr).Msg("Metrics server starting")
		if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("Metrics server failed")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("Shutting down worker")

	if err := consumer.Stop(); err != nil {
		log.Error().Err(err).Msg("Error stopping consumer")
	}
	if err := supervisor.Shutdown(shutdownTimeout); err != nil {
		log.Error().Err(err).Msg("Campaign runs did not stop in time")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := metricsServer.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Metrics server shutdown failed")
	}

	log.Info().Msg("Worker stopped")
}
