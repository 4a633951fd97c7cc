package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/ilyakaznacheev/cleanenv"
	"github.com/joho/godotenv"

	"github.com/mediakeep/photo-pipeline/internal/api"
	"github.com/mediakeep/photo-pipeline/pkg/photopipe/config"
)

// EnvConfig is the flat environment surface of the pipeline binary. It is
// translated into config options before the pipeline is built.
type EnvConfig struct {
	Port        string `env:"PORT" env-default:"8080"`
	Environment string `env:"ENVIRONMENT" env-default:"development"`

	Broker               string `env:"BROKER" env-default:"memory"`
	Region               string `env:"AWS_REGION" env-default:"us-east-1"`
	TopicARN             string `env:"TOPIC_ARN"`
	WorkQueueURL         string `env:"WORK_QUEUE_URL"`
	DeadLetterQueueURL   string `env:"DEAD_LETTER_QUEUE_URL"`
	ConfirmationQueueURL string `env:"CONFIRMATION_QUEUE_URL"`
	MetadataQueueURL     string `env:"METADATA_QUEUE_URL"`
	MaxAttempts          int    `env:"MAX_ATTEMPTS" env-default:"5"`
	WorkBatchSize        int    `env:"WORK_BATCH_SIZE" env-default:"1"`
	DeadBatchSize        int    `env:"DEAD_BATCH_SIZE" env-default:"5"`
	WaitTimeSeconds      int    `env:"WAIT_TIME_SECONDS" env-default:"19"`
	ApplyRedrive         bool   `env:"APPLY_REDRIVE" env-default:"false"`

	Store       string `env:"STORE" env-default:"memory"`
	TableName   string `env:"TABLE_NAME"`
	DatabaseURL string `env:"DATABASE_URL"`

	Storage string `env:"STORAGE" env-default:"memory"`

	Mailer         string `env:"MAILER" env-default:"memory"`
	EmailRecipient string `env:"EMAIL_RECIPIENT"`
	EmailSender    string `env:"EMAIL_SENDER"`

	RejectionMode string `env:"REJECTION_MODE" env-default:"publish"`
}

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	if err := run(logger); err != nil {
		logger.Error("pipeline failed", "err", err)
		os.Exit(1)
	}
}

func run(logger *slog.Logger) error {
	// .env is optional; real deployments configure through the environment.
	_ = godotenv.Load()

	var env EnvConfig
	if err := cleanenv.ReadEnv(&env); err != nil {
		return fmt.Errorf("failed to read environment: %w", err)
	}

	cfg, err := buildConfig(env)
	if err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	pipeline, err := cfg.BuildPipeline(logger)
	if err != nil {
		return fmt.Errorf("failed to build pipeline: %w", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if env.ApplyRedrive {
		if err := cfg.ApplyRedrive(ctx); err != nil {
			return fmt.Errorf("failed to apply redrive policy: %w", err)
		}
	}

	ops := api.NewOpsHandler(pipeline.Router(), pipeline.QueueDepths(), logger)

	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(middleware.Timeout(60 * time.Second))
	r.Mount("/", ops.Routes())

	server := &http.Server{
		Addr:    fmt.Sprintf(":%s", cfg.Port),
		Handler: r,
	}

	errc := make(chan error, 1)
	go func() {
		logger.Info("ops server starting", "port", cfg.Port, "env", cfg.Environment)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errc <- err
		}
	}()

	go func() {
		logger.Info("pipeline workers starting",
			"broker", cfg.BrokerType, "store", cfg.StoreType,
			"rejection_mode", cfg.RejectionMode)
		if err := pipeline.Run(ctx); err != nil {
			errc <- err
		}
	}()

	select {
	case <-ctx.Done():
	case err := <-errc:
		cancel()
		shutdown(server, logger)
		return err
	}

	logger.Info("shutting down")
	shutdown(server, logger)
	return nil
}

func buildConfig(env EnvConfig) (*config.PipelineConfig, error) {
	opts := []config.Option{
		config.WithPort(env.Port),
		config.WithEnvironment(env.Environment),
		config.WithRegion(env.Region),
		config.WithRecordStore(env.Store, env.TableName, env.DatabaseURL),
		config.WithObjectStorage(env.Storage),
		config.WithMail(env.Mailer, env.EmailRecipient, env.EmailSender),
		config.WithRejectionMode(env.RejectionMode),
		config.WithMaxAttempts(env.MaxAttempts),
		config.WithBatchSizes(env.WorkBatchSize, env.DeadBatchSize),
		config.WithWaitTimeSeconds(env.WaitTimeSeconds),
	}
	if env.Broker == "aws" {
		opts = append(opts, config.WithAWSBroker(
			env.TopicARN,
			env.WorkQueueURL,
			env.DeadLetterQueueURL,
			env.ConfirmationQueueURL,
			env.MetadataQueueURL,
		))
	}
	return config.Load(opts...)
}

func shutdown(server *http.Server, logger *slog.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		logger.Error("server forced to shutdown", "err", err)
	}
}
