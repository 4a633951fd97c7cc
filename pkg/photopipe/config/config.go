package config

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/mediakeep/photo-pipeline/pkg/photopipe"
	"github.com/mediakeep/photo-pipeline/pkg/photopipe/broker"
	"github.com/mediakeep/photo-pipeline/pkg/photopipe/broker/awsmq"
	brokermemory "github.com/mediakeep/photo-pipeline/pkg/photopipe/broker/memory"
	memorymail "github.com/mediakeep/photo-pipeline/pkg/photopipe/mail/memory"
	sesmail "github.com/mediakeep/photo-pipeline/pkg/photopipe/mail/ses"
	dynamostore "github.com/mediakeep/photo-pipeline/pkg/photopipe/store/dynamo"
	memorystore "github.com/mediakeep/photo-pipeline/pkg/photopipe/store/memory"
	pgstore "github.com/mediakeep/photo-pipeline/pkg/photopipe/store/postgres"
	memorystorage "github.com/mediakeep/photo-pipeline/pkg/photopipe/storage/memory"
	s3storage "github.com/mediakeep/photo-pipeline/pkg/photopipe/storage/s3"
)

// Option applies configuration to a PipelineConfig instance.
type Option func(*PipelineConfig) error

// Load constructs a PipelineConfig by applying the supplied options on top
// of library defaults.
func Load(opts ...Option) (*PipelineConfig, error) {
	cfg := defaults()

	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt(&cfg); err != nil {
			return nil, err
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func defaults() PipelineConfig {
	return PipelineConfig{
		Port:            "8080",
		Environment:     "development",
		BrokerType:      "memory",
		StoreType:       "memory",
		StorageType:     "memory",
		MailerType:      "memory",
		Region:          "us-east-1",
		MaxAttempts:     5,
		WorkBatchSize:   1,
		DeadBatchSize:   5,
		WaitTimeSeconds: 19,
		RejectionMode:   string(photopipe.RejectPublish),
	}
}

// PipelineConfig represents runtime configuration for the photo pipeline
// service.
type PipelineConfig struct {
	Port        string
	Environment string // development, production, testing

	// Broker configuration
	BrokerType           string // "memory", "aws"
	Region               string
	TopicARN             string
	WorkQueueURL         string
	DeadLetterQueueURL   string
	ConfirmationQueueURL string
	MetadataQueueURL     string
	MaxAttempts          int
	WorkBatchSize        int
	DeadBatchSize        int
	WaitTimeSeconds      int

	// Record store configuration
	StoreType   string // "memory", "dynamo", "postgres"
	TableName   string
	DatabaseURL string

	// Object storage configuration
	StorageType string // "memory", "s3"

	// Mail configuration
	MailerType     string // "memory", "ses"
	EmailRecipient string
	EmailSender    string

	// Rejection handling: "publish" or "retry"
	RejectionMode string
}

// Validate validates the pipeline configuration. Missing notification
// addresses are a hard error so the process refuses to start rather than
// silently dropping mail.
func (c *PipelineConfig) Validate() error {
	if c.Port == "" {
		return errors.New("port is required")
	}

	switch c.BrokerType {
	case "memory":
	case "aws":
		if c.TopicARN == "" {
			return errors.New("topic_arn is required when using the aws broker")
		}
		if c.WorkQueueURL == "" || c.DeadLetterQueueURL == "" {
			return errors.New("work_queue_url and dead_letter_queue_url are required when using the aws broker")
		}
	default:
		return fmt.Errorf("unsupported broker type: %s", c.BrokerType)
	}

	switch c.StoreType {
	case "memory":
	case "dynamo":
		if c.TableName == "" {
			return errors.New("table_name is required when using dynamo")
		}
	case "postgres":
		if c.DatabaseURL == "" {
			return errors.New("database_url is required when using postgres")
		}
	default:
		return fmt.Errorf("unsupported store type: %s", c.StoreType)
	}

	if c.StorageType != "memory" && c.StorageType != "s3" {
		return fmt.Errorf("unsupported storage type: %s", c.StorageType)
	}

	switch c.MailerType {
	case "memory":
	case "ses":
		if c.EmailSender == "" {
			return errors.New("email_sender is required when using ses")
		}
	default:
		return fmt.Errorf("unsupported mailer type: %s", c.MailerType)
	}

	if c.EmailRecipient == "" {
		return errors.New("email_recipient is required")
	}

	if c.MaxAttempts < 1 {
		return errors.New("max_attempts must be at least 1")
	}

	if _, err := photopipe.ParseRejectionMode(c.RejectionMode); err != nil {
		return err
	}

	return nil
}

// BuildPipeline creates a Pipeline instance from the configuration.
func (c *PipelineConfig) BuildPipeline(logger *slog.Logger) (*photopipe.Pipeline, error) {
	var options []photopipe.Option

	if logger != nil {
		options = append(options, photopipe.WithLogger(logger))
	}

	topic, work, dead, confQueue, metaQueue, err := c.buildBroker()
	if err != nil {
		return nil, fmt.Errorf("failed to build broker: %w", err)
	}
	options = append(options,
		photopipe.WithTopic(topic),
		photopipe.WithWorkQueue(work),
		photopipe.WithDeadLetterQueue(dead),
	)
	if confQueue != nil {
		options = append(options, photopipe.WithConfirmationQueue(confQueue))
	}
	if metaQueue != nil {
		options = append(options, photopipe.WithMetadataQueue(metaQueue))
	}

	records, err := c.buildRecordStore()
	if err != nil {
		return nil, fmt.Errorf("failed to build record store: %w", err)
	}
	options = append(options, photopipe.WithRecordStore(records))

	objects, err := c.buildObjectStore()
	if err != nil {
		return nil, fmt.Errorf("failed to build object store: %w", err)
	}
	options = append(options, photopipe.WithObjectStore(objects))

	mailer, err := c.buildMailer()
	if err != nil {
		return nil, fmt.Errorf("failed to build mailer: %w", err)
	}
	options = append(options, photopipe.WithMailer(mailer))

	sender := c.EmailSender
	if sender == "" {
		sender = c.EmailRecipient
	}
	options = append(options, photopipe.WithNotificationAddresses(c.EmailRecipient, sender))

	mode, err := photopipe.ParseRejectionMode(c.RejectionMode)
	if err != nil {
		return nil, err
	}
	options = append(options,
		photopipe.WithRejectionMode(mode),
		photopipe.WithBatchSizes(c.WorkBatchSize, c.DeadBatchSize),
	)

	return photopipe.New(options...)
}

// buildBroker creates the topic and queues based on the configuration.
func (c *PipelineConfig) buildBroker() (broker.Publisher, broker.Queue, broker.Queue, broker.Queue, broker.Queue, error) {
	switch c.BrokerType {
	case "memory":
		dead := brokermemory.NewQueue(0)
		work := brokermemory.NewQueue(0).WithRedrive(broker.RedrivePolicy{
			MaxAttempts: c.MaxAttempts,
			DeadLetter:  dead,
		})
		return brokermemory.NewTopic(nil), work, dead, nil, nil, nil
	case "aws":
		topic, err := awsmq.NewTopic(awsmq.TopicConfig{
			Region:   c.Region,
			TopicARN: c.TopicARN,
		})
		if err != nil {
			return nil, nil, nil, nil, nil, err
		}
		work, err := awsmq.NewQueue(awsmq.QueueConfig{
			Region:          c.Region,
			QueueURL:        c.WorkQueueURL,
			WaitTimeSeconds: int32(c.WaitTimeSeconds),
		})
		if err != nil {
			return nil, nil, nil, nil, nil, err
		}
		dead, err := awsmq.NewQueue(awsmq.QueueConfig{
			Region:          c.Region,
			QueueURL:        c.DeadLetterQueueURL,
			WaitTimeSeconds: int32(c.WaitTimeSeconds),
		})
		if err != nil {
			return nil, nil, nil, nil, nil, err
		}
		var confQueue, metaQueue broker.Queue
		if c.ConfirmationQueueURL != "" {
			q, err := awsmq.NewQueue(awsmq.QueueConfig{
				Region:          c.Region,
				QueueURL:        c.ConfirmationQueueURL,
				WaitTimeSeconds: int32(c.WaitTimeSeconds),
			})
			if err != nil {
				return nil, nil, nil, nil, nil, err
			}
			confQueue = q
		}
		if c.MetadataQueueURL != "" {
			q, err := awsmq.NewQueue(awsmq.QueueConfig{
				Region:          c.Region,
				QueueURL:        c.MetadataQueueURL,
				WaitTimeSeconds: int32(c.WaitTimeSeconds),
			})
			if err != nil {
				return nil, nil, nil, nil, nil, err
			}
			metaQueue = q
		}
		return topic, work, dead, confQueue, metaQueue, nil
	default:
		return nil, nil, nil, nil, nil, fmt.Errorf("unsupported broker type: %s", c.BrokerType)
	}
}

// ApplyRedrive programs the work queue's redrive policy when running on
// the aws broker. Memory queues carry their policy from construction.
func (c *PipelineConfig) ApplyRedrive(ctx context.Context) error {
	if c.BrokerType != "aws" {
		return nil
	}
	work, err := awsmq.NewQueue(awsmq.QueueConfig{Region: c.Region, QueueURL: c.WorkQueueURL})
	if err != nil {
		return err
	}
	dead, err := awsmq.NewQueue(awsmq.QueueConfig{Region: c.Region, QueueURL: c.DeadLetterQueueURL})
	if err != nil {
		return err
	}
	return work.ApplyRedrive(ctx, c.MaxAttempts, dead)
}

// buildRecordStore creates a RecordStore based on the configuration.
func (c *PipelineConfig) buildRecordStore() (photopipe.RecordStore, error) {
	switch c.StoreType {
	case "memory":
		return memorystore.New(), nil
	case "dynamo":
		return dynamostore.New(dynamostore.Config{
			Region:    c.Region,
			TableName: c.TableName,
		})
	case "postgres":
		if c.DatabaseURL == "" {
			return nil, errors.New("database_url is required for postgres")
		}
		cfg, err := pgxpool.ParseConfig(c.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("failed to parse DATABASE_URL: %w", err)
		}
		pool, err := pgxpool.NewWithConfig(context.Background(), cfg)
		if err != nil {
			return nil, fmt.Errorf("failed to create pgx pool: %w", err)
		}
		return pgstore.NewWithPool(pool), nil
	default:
		return nil, fmt.Errorf("unsupported store type: %s", c.StoreType)
	}
}

// PingPostgres verifies connectivity to Postgres before the pipeline starts.
func PingPostgres(databaseURL string) error {
	if databaseURL == "" {
		return errors.New("database_url is required")
	}
	cfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return fmt.Errorf("failed to parse DATABASE_URL: %w", err)
	}
	pool, err := pgxpool.NewWithConfig(context.Background(), cfg)
	if err != nil {
		return fmt.Errorf("failed to create pgx pool: %w", err)
	}
	defer pool.Close()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := pool.Ping(ctx); err != nil {
		return fmt.Errorf("database ping failed: %w", err)
	}
	return nil
}

// buildObjectStore creates an ObjectStore based on the configuration.
func (c *PipelineConfig) buildObjectStore() (photopipe.ObjectStore, error) {
	switch c.StorageType {
	case "memory":
		return memorystorage.New(), nil
	case "s3":
		return s3storage.New(s3storage.Config{
			Region: c.Region,
		})
	default:
		return nil, fmt.Errorf("unsupported storage type: %s", c.StorageType)
	}
}

// buildMailer creates a Mailer based on the configuration.
func (c *PipelineConfig) buildMailer() (photopipe.Mailer, error) {
	switch c.MailerType {
	case "memory":
		return memorymail.New(), nil
	case "ses":
		return sesmail.New(sesmail.Config{
			Region: c.Region,
			From:   c.EmailSender,
		})
	default:
		return nil, fmt.Errorf("unsupported mailer type: %s", c.MailerType)
	}
}
