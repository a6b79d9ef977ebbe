// Command api runs the campaign control and status HTTP server.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"

	"github.com/leadforge/pipeline/internal/api"
	"github.com/leadforge/pipeline/internal/config"
	"github.com/leadforge/pipeline/internal/control"
	"github.com/leadforge/pipeline/internal/database"
	"github.com/leadforge/pipeline/internal/logger"
	"github.com/leadforge/pipeline/internal/metrics"
	"github.com/leadforge/pipeline/internal/queue"
)

const shutdownTimeout = 30 * time.Second

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "api: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	configPath := flag.String("config", "config.yml", "path to config file")
	flag.Parse()

	// .env is optional; real deployments set the environment directly.
	_ = godotenv.Load()

	cfg, err := config.Load(*configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	log, err := logger.NewLogger(cfg.Debug)
	if err != nil {
		return fmt.Errorf("create logger: %w", err)
	}
	defer func() { _ = log.Sync() }()
	log = log.With(logger.String("service", "pipeline-api"))

	db, err := database.NewPostgresConnection(cfg.Database.DSN())
	if err != nil {
		return err
	}
	defer db.Close()

	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.URL,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer redisClient.Close()

	pingCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := redisClient.Ping(pingCtx).Err(); err != nil {
		return fmt.Errorf("connect to Redis: %w", err)
	}

	m := metrics.New()
	service := control.NewService(control.Deps{
		Campaigns:  database.NewCampaignRepository(db),
		Jobs:       database.NewJobRepository(db),
		Attempts:   database.NewAttemptRepository(db),
		Leads:      database.NewLeadRepository(db),
		LeadQueue:  queue.New(redisClient, queue.LeadFetch, log),
		EmailQueue: queue.New(redisClient, queue.EmailSend, log),
		Logger:     log,
	})

	router := api.NewRouter(service, db, redisClient, m, cfg, log)
	server := router.NewServer()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	serverErr := make(chan error, 1)
	go func() {
		log.Info("api server listening", logger.String("address", cfg.Server.Address))
		serverErr <- server.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		log.Info("shutting down gracefully")
	case err := <-serverErr:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
	}

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancelShutdown()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}
	log.Info("api server stopped")
	return nil
}
