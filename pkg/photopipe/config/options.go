package config

import (
	"fmt"

	"github.com/mediakeep/photo-pipeline/pkg/photopipe"
)

// WithPort sets the ops server port
func WithPort(port string) Option {
	return func(c *PipelineConfig) error {
		if port == "" {
			return fmt.Errorf("port cannot be empty")
		}
		c.Port = port
		return nil
	}
}

// WithEnvironment sets the environment (development, production, testing)
func WithEnvironment(env string) Option {
	return func(c *PipelineConfig) error {
		if env == "" {
			return fmt.Errorf("environment cannot be empty")
		}
		c.Environment = env
		return nil
	}
}

// WithMemoryBroker selects the in-process broker
func WithMemoryBroker() Option {
	return func(c *PipelineConfig) error {
		c.BrokerType = "memory"
		return nil
	}
}

// WithAWSBroker selects the managed broker and its addresses. The
// confirmation and metadata queue URLs may be empty when those
// subscriptions are not consumed by this process.
func WithAWSBroker(topicARN, workQueueURL, deadLetterQueueURL, confirmationQueueURL, metadataQueueURL string) Option {
	return func(c *PipelineConfig) error {
		if topicARN == "" {
			return fmt.Errorf("topic ARN cannot be empty")
		}
		if workQueueURL == "" || deadLetterQueueURL == "" {
			return fmt.Errorf("work and dead-letter queue URLs are required")
		}
		c.BrokerType = "aws"
		c.TopicARN = topicARN
		c.WorkQueueURL = workQueueURL
		c.DeadLetterQueueURL = deadLetterQueueURL
		c.ConfirmationQueueURL = confirmationQueueURL
		c.MetadataQueueURL = metadataQueueURL
		return nil
	}
}

// WithRegion sets the region for managed services
func WithRegion(region string) Option {
	return func(c *PipelineConfig) error {
		if region == "" {
			return fmt.Errorf("region cannot be empty")
		}
		c.Region = region
		return nil
	}
}

// WithRecordStore configures the record store backend
func WithRecordStore(storeType, tableName, databaseURL string) Option {
	return func(c *PipelineConfig) error {
		switch storeType {
		case "memory":
		case "dynamo":
			if tableName == "" {
				return fmt.Errorf("table name is required for dynamo")
			}
		case "postgres":
			if databaseURL == "" {
				return fmt.Errorf("database URL is required for postgres")
			}
		default:
			return fmt.Errorf("store type must be 'memory', 'dynamo' or 'postgres', got: %s", storeType)
		}
		c.StoreType = storeType
		c.TableName = tableName
		c.DatabaseURL = databaseURL
		return nil
	}
}

// WithObjectStorage configures the object storage backend
func WithObjectStorage(storageType string) Option {
	return func(c *PipelineConfig) error {
		if storageType != "memory" && storageType != "s3" {
			return fmt.Errorf("storage type must be 'memory' or 's3', got: %s", storageType)
		}
		c.StorageType = storageType
		return nil
	}
}

// WithMail configures the mailer backend and addresses
func WithMail(mailerType, recipient, sender string) Option {
	return func(c *PipelineConfig) error {
		if mailerType != "memory" && mailerType != "ses" {
			return fmt.Errorf("mailer type must be 'memory' or 'ses', got: %s", mailerType)
		}
		c.MailerType = mailerType
		c.EmailRecipient = recipient
		c.EmailSender = sender
		return nil
	}
}

// WithRejectionMode sets how invalid uploads are handled
func WithRejectionMode(mode string) Option {
	return func(c *PipelineConfig) error {
		if _, err := photopipe.ParseRejectionMode(mode); err != nil {
			return err
		}
		c.RejectionMode = mode
		return nil
	}
}

// WithMaxAttempts sets the delivery-attempt bound before dead-lettering
func WithMaxAttempts(n int) Option {
	return func(c *PipelineConfig) error {
		if n < 1 {
			return fmt.Errorf("max attempts must be at least 1, got: %d", n)
		}
		c.MaxAttempts = n
		return nil
	}
}

// WithBatchSizes sets the receive batch sizes for the work and
// dead-letter consumers
func WithBatchSizes(work, dead int) Option {
	return func(c *PipelineConfig) error {
		if work < 1 || dead < 1 {
			return fmt.Errorf("batch sizes must be at least 1")
		}
		c.WorkBatchSize = work
		c.DeadBatchSize = dead
		return nil
	}
}

// WithWaitTimeSeconds sets the long-poll wait on managed queues
func WithWaitTimeSeconds(n int) Option {
	return func(c *PipelineConfig) error {
		if n < 0 || n > 20 {
			return fmt.Errorf("wait time must be between 0 and 20 seconds, got: %d", n)
		}
		c.WaitTimeSeconds = n
		return nil
	}
}
