package main

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	_ "github.com/lib/pq"
	"github.com/rs/zerolog/log"

	"autoleads/internal/config"
	"autoleads/internal/handler"
	"autoleads/internal/logger"
	"autoleads/internal/metrics"
	"autoleads/internal/middleware"
	"autoleads/internal/presets"
	"autoleads/internal/queue"
	"autoleads/internal/repository"
	"autoleads/internal/service"
)

const version = "1.0.0"

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

	conn, err := queue.NewConnection(cfg.GetRabbitMQURL())
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to RabbitMQ")
	}
	defer conn.Close()

	publisher, err := queue.NewPublisher(conn, cfg.RabbitMQ.RunsQueue)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create run publisher")
	}

	templates, err := presets.Load(cfg.Presets.File)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load preset templates")
	}

	// Repositories
	campaignRepo := repository.NewCampaignRepository(db)
	leadRepo := repository.NewLeadRepository(db)
	orgRepo := repository.NewOrganizationRepository(db)
	threadRepo := repository.NewThreadRepository(db)
	messageRepo := repository.NewMessageRepository(db)
	logRepo := repository.NewLogRepository(db)

	// Services
	templateSvc := service.NewTemplateService()
	leadSvc := service.NewLeadService(threadRepo)
	threadSvc := service.NewThreadService(threadRepo, messageRepo)
	logSink := service.NewLogSink(logRepo)
	campaignSvc := service.NewCampaignService(campaignRepo, leadRepo, orgRepo, leadSvc, templateSvc, logSink,
		templates, publisher, cfg.Dispatch.DefaultDelaySeconds)
	healthSvc := service.NewHealthService(db, cfg.GetRabbitMQURL(), nil, version)

	metrics.InitAPIMetrics()

	router := handler.NewRouter(handler.Handlers{
		Campaigns: handler.NewCampaignHandler(campaignSvc),
		Leads:     handler.NewLeadHandler(leadSvc),
		Threads:   handler.NewThreadHandler(threadSvc),
		Health:    handler.NewHealthHandler(healthSvc),
	}, middleware.NewRateLimiter(cfg.RateLimit.PerSecond, cfg.RateLimit.Burst), cfg.Webhook.Secret)
	if cfg.Webhook.Secret == "" {
		log.Warn().Msg("SMS_WEBHOOK_SECRET is not set; gateway webhooks will be rejected")
	}

	server := &http.Server{
		Addr:              ":" + cfg.Server.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Info().Str("addr", server.Addr).Str("env", cfg.Env).Msg("API server starting")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("Server failed")
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	log.Info().Msg("Shutting down API server")
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("Server shutdown failed")
	}
	log.Info().Msg("API server stopped")
}
