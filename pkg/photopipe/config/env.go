package config

import (
	"fmt"
	"os"
	"strconv"
)

// WithEnv applies environment variable overrides using the provided prefix.
//
// Environment variable mapping:
//
// Server:
//   PORT - Ops server port (default: "8080")
//   ENVIRONMENT - Runtime environment (default: "development")
//
// Broker:
//   BROKER - "memory" (default) or "aws"
//   AWS_REGION - Region for managed services (default: "us-east-1")
//   TOPIC_ARN - Upload topic ARN (aws broker)
//   WORK_QUEUE_URL - Validation work queue URL (aws broker)
//   DEAD_LETTER_QUEUE_URL - Dead-letter queue URL (aws broker)
//   CONFIRMATION_QUEUE_URL - Confirmation subscription queue URL (optional)
//   METADATA_QUEUE_URL - Metadata subscription queue URL (optional)
//   MAX_ATTEMPTS - Delivery attempts before dead-lettering (default: 5)
//   WORK_BATCH_SIZE - Work queue receive batch (default: 1)
//   DEAD_BATCH_SIZE - Dead-letter receive batch (default: 5)
//   WAIT_TIME_SECONDS - Long-poll wait on managed queues (default: 19)
//
// Record store:
//   STORE - "memory" (default), "dynamo" or "postgres"
//   TABLE_NAME - Record table name (dynamo)
//   DATABASE_URL - Connection string (postgres)
//
// Object storage:
//   STORAGE - "memory" (default) or "s3"
//
// Mail:
//   MAILER - "memory" (default) or "ses"
//   EMAIL_RECIPIENT - Notification recipient (required)
//   EMAIL_SENDER - Notification sender (required for ses)
//
// Rejection handling:
//   REJECTION_MODE - "publish" (default) or "retry"
func WithEnv(prefix string) Option {
	return func(c *PipelineConfig) error {
		if v, ok := lookupEnv(prefix, "PORT"); ok && v != "" {
			c.Port = v
		}
		if v, ok := lookupEnv(prefix, "ENVIRONMENT"); ok && v != "" {
			c.Environment = v
		}

		if v, ok := lookupEnv(prefix, "BROKER"); ok && v != "" {
			c.BrokerType = v
		}
		if v, ok := lookupEnv(prefix, "AWS_REGION"); ok && v != "" {
			c.Region = v
		}
		if v, ok := lookupEnv(prefix, "TOPIC_ARN"); ok {
			c.TopicARN = v
		}
		if v, ok := lookupEnv(prefix, "WORK_QUEUE_URL"); ok {
			c.WorkQueueURL = v
		}
		if v, ok := lookupEnv(prefix, "DEAD_LETTER_QUEUE_URL"); ok {
			c.DeadLetterQueueURL = v
		}
		if v, ok := lookupEnv(prefix, "CONFIRMATION_QUEUE_URL"); ok {
			c.ConfirmationQueueURL = v
		}
		if v, ok := lookupEnv(prefix, "METADATA_QUEUE_URL"); ok {
			c.MetadataQueueURL = v
		}
		if n, ok, err := parseIntEnv(prefix, "MAX_ATTEMPTS"); err != nil {
			return err
		} else if ok {
			c.MaxAttempts = n
		}
		if n, ok, err := parseIntEnv(prefix, "WORK_BATCH_SIZE"); err != nil {
			return err
		} else if ok {
			c.WorkBatchSize = n
		}
		if n, ok, err := parseIntEnv(prefix, "DEAD_BATCH_SIZE"); err != nil {
			return err
		} else if ok {
			c.DeadBatchSize = n
		}
		if n, ok, err := parseIntEnv(prefix, "WAIT_TIME_SECONDS"); err != nil {
			return err
		} else if ok {
			c.WaitTimeSeconds = n
		}

		if v, ok := lookupEnv(prefix, "STORE"); ok && v != "" {
			c.StoreType = v
		}
		if v, ok := lookupEnv(prefix, "TABLE_NAME"); ok {
			c.TableName = v
		}
		if v, ok := lookupEnv(prefix, "DATABASE_URL"); ok {
			c.DatabaseURL = v
		}

		if v, ok := lookupEnv(prefix, "STORAGE"); ok && v != "" {
			c.StorageType = v
		}

		if v, ok := lookupEnv(prefix, "MAILER"); ok && v != "" {
			c.MailerType = v
		}
		if v, ok := lookupEnv(prefix, "EMAIL_RECIPIENT"); ok {
			c.EmailRecipient = v
		}
		if v, ok := lookupEnv(prefix, "EMAIL_SENDER"); ok {
			c.EmailSender = v
		}

		if v, ok := lookupEnv(prefix, "REJECTION_MODE"); ok && v != "" {
			c.RejectionMode = v
		}

		return nil
	}
}

func lookupEnv(prefix, key string) (string, bool) {
	return os.LookupEnv(prefix + key)
}

func parseIntEnv(prefix, key string) (int, bool, error) {
	raw, ok := lookupEnv(prefix, key)
	if !ok || raw == "" {
		return 0, false, nil
	}
	parsed, err := strconv.Atoi(raw)
	if err != nil {
		return 0, false, fmt.Errorf("invalid integer for %s%s: %w", prefix, key, err)
	}
	return parsed, true, nil
}
