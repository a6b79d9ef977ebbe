// Command worker runs the queue-consuming worker pool: lead-fetch job
// execution and email dispatch.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"

	"github.com/leadforge/pipeline/internal/config"
	"github.com/leadforge/pipeline/internal/database"
	"github.com/leadforge/pipeline/internal/logger"
	"github.com/leadforge/pipeline/internal/mail"
	"github.com/leadforge/pipeline/internal/metrics"
	"github.com/leadforge/pipeline/internal/provider"
	"github.com/leadforge/pipeline/internal/queue"
	"github.com/leadforge/pipeline/internal/ratelimit"
	"github.com/leadforge/pipeline/internal/runner"
	"github.com/leadforge/pipeline/internal/sheet"
	"github.com/leadforge/pipeline/internal/worker"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "worker: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	configPath := flag.String("config", "config.yml", "path to config file")
	flag.Parse()

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
	log = log.With(logger.String("service", "pipeline-worker"))

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
	jobRepo := database.NewJobRepository(db)

	// One limiter per provider, shared by every runner goroutine.
	limiter := ratelimit.New(cfg.Provider.RatePerSecond, cfg.Provider.Burst, log)

	jobRunner := runner.New(runner.Deps{
		Jobs:      jobRepo,
		Attempts:  database.NewAttemptRepository(db),
		Leads:     database.NewLeadRepository(db),
		Campaigns: database.NewCampaignRepository(db),
		Searcher:  provider.NewClient(cfg.Provider.BaseURL, cfg.Provider.APIKey, cfg.Provider.Timeout, log),
		Sheets:    sheet.NewClient(cfg.Sheet.BaseURL, cfg.Sheet.Token, cfg.Sheet.Timeout, log),
		Limiter:   limiter,
		Metrics:   m,
		Logger:    log,
	})

	pool := worker.New(
		queue.New(redisClient, queue.LeadFetch, log),
		queue.New(redisClient, queue.EmailSend, log),
		jobRunner,
		mail.NewLogSender(log),
		jobRepo,
		m,
		log,
		worker.Config{
			LeadFetchConcurrency: cfg.Queue.LeadFetchConcurrency,
			EmailSendConcurrency: cfg.Queue.EmailSendConcurrency,
			PromoteInterval:      cfg.Queue.PromoteInterval,
			StaleJobAge:          cfg.Runner.StaleJobAge,
			ReaperInterval:       cfg.Runner.ReaperInterval,
		},
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pool.Start(ctx)
	<-ctx.Done()
	log.Info("shutting down gracefully")
	pool.Stop()
	return nil
}
