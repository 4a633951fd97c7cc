package awsmq

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	sqstypes "github.com/aws/aws-sdk-go-v2/service/sqs/types"

	"github.com/mediakeep/photo-pipeline/pkg/photopipe/broker"
)

// QueueConfig options for an SQS-backed queue.
type QueueConfig struct {
	Region   string
	QueueURL string

	// WaitTimeSeconds enables long polling on Receive. Zero means
	// short polling.
	WaitTimeSeconds int32
}

// Queue adapts an SQS queue to the broker queue contract. Attempts on a
// delivery come from the service's receive counter, so redrive decisions
// survive process restarts.
type Queue struct {
	client   *sqs.Client
	url      string
	waitTime int32
}

// NewQueue creates an SQS-backed queue.
func NewQueue(cfg QueueConfig) (*Queue, error) {
	if cfg.QueueURL == "" {
		return nil, errors.New("queue URL is required")
	}
	if cfg.Region == "" {
		cfg.Region = "us-east-1"
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(context.Background(),
		awsconfig.WithRegion(cfg.Region),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}
	return &Queue{client: sqs.NewFromConfig(awsCfg), url: cfg.QueueURL, waitTime: cfg.WaitTimeSeconds}, nil
}

// NewQueueWithClient creates a queue around an existing client.
func NewQueueWithClient(client *sqs.Client, url string, waitTimeSeconds int32) *Queue {
	return &Queue{client: client, url: url, waitTime: waitTimeSeconds}
}

func (q *Queue) Send(ctx context.Context, m broker.Message) error {
	input := &sqs.SendMessageInput{
		QueueUrl:    aws.String(q.url),
		MessageBody: aws.String(string(m.Body)),
	}
	if len(m.Attributes) > 0 {
		input.MessageAttributes = make(map[string]sqstypes.MessageAttributeValue, len(m.Attributes))
		for name, value := range m.Attributes {
			input.MessageAttributes[name] = sqstypes.MessageAttributeValue{
				DataType:    aws.String("String"),
				StringValue: aws.String(value),
			}
		}
	}
	if _, err := q.client.SendMessage(ctx, input); err != nil {
		return fmt.Errorf("sending to %s: %w", q.url, err)
	}
	return nil
}

func (q *Queue) Receive(ctx context.Context, max int) ([]broker.Delivery, error) {
	if max < 1 {
		max = 1
	}
	if max > 10 {
		max = 10
	}
	out, err := q.client.ReceiveMessage(ctx, &sqs.ReceiveMessageInput{
		QueueUrl:                    aws.String(q.url),
		MaxNumberOfMessages:         int32(max),
		WaitTimeSeconds:             q.waitTime,
		MessageAttributeNames:       []string{"All"},
		MessageSystemAttributeNames: []sqstypes.MessageSystemAttributeName{sqstypes.MessageSystemAttributeNameApproximateReceiveCount},
	})
	if err != nil {
		return nil, fmt.Errorf("receiving from %s: %w", q.url, err)
	}
	deliveries := make([]broker.Delivery, 0, len(out.Messages))
	for _, msg := range out.Messages {
		d := broker.Delivery{
			Message: broker.Message{
				ID:   aws.ToString(msg.MessageId),
				Body: []byte(aws.ToString(msg.Body)),
			},
			Receipt:  aws.ToString(msg.ReceiptHandle),
			Attempts: 1,
		}
		if count, ok := msg.Attributes[string(sqstypes.MessageSystemAttributeNameApproximateReceiveCount)]; ok {
			if n, err := strconv.Atoi(count); err == nil {
				d.Attempts = n
			}
		}
		if len(msg.MessageAttributes) > 0 {
			d.Message.Attributes = make(map[string]string, len(msg.MessageAttributes))
			for name, attr := range msg.MessageAttributes {
				d.Message.Attributes[name] = aws.ToString(attr.StringValue)
			}
		}
		deliveries = append(deliveries, d)
	}
	return deliveries, nil
}

func (q *Queue) Ack(ctx context.Context, receipt string) error {
	_, err := q.client.DeleteMessage(ctx, &sqs.DeleteMessageInput{
		QueueUrl:      aws.String(q.url),
		ReceiptHandle: aws.String(receipt),
	})
	if err != nil {
		return fmt.Errorf("acking on %s: %w", q.url, err)
	}
	return nil
}

// Nack makes the delivery immediately visible again. The queue's redrive
// policy moves it to the dead-letter queue once the receive count passes
// the configured bound.
func (q *Queue) Nack(ctx context.Context, receipt string) error {
	_, err := q.client.ChangeMessageVisibility(ctx, &sqs.ChangeMessageVisibilityInput{
		QueueUrl:          aws.String(q.url),
		ReceiptHandle:     aws.String(receipt),
		VisibilityTimeout: 0,
	})
	if err != nil {
		return fmt.Errorf("nacking on %s: %w", q.url, err)
	}
	return nil
}

// Depth reports the approximate number of visible messages.
func (q *Queue) Depth(ctx context.Context) (int, error) {
	out, err := q.client.GetQueueAttributes(ctx, &sqs.GetQueueAttributesInput{
		QueueUrl:       aws.String(q.url),
		AttributeNames: []sqstypes.QueueAttributeName{sqstypes.QueueAttributeNameApproximateNumberOfMessages},
	})
	if err != nil {
		return 0, fmt.Errorf("querying depth of %s: %w", q.url, err)
	}
	n, err := strconv.Atoi(out.Attributes[string(sqstypes.QueueAttributeNameApproximateNumberOfMessages)])
	if err != nil {
		return 0, fmt.Errorf("parsing depth of %s: %w", q.url, err)
	}
	return n, nil
}

// ARN resolves the queue's ARN.
func (q *Queue) ARN(ctx context.Context) (string, error) {
	out, err := q.client.GetQueueAttributes(ctx, &sqs.GetQueueAttributesInput{
		QueueUrl:       aws.String(q.url),
		AttributeNames: []sqstypes.QueueAttributeName{sqstypes.QueueAttributeNameQueueArn},
	})
	if err != nil {
		return "", fmt.Errorf("resolving ARN of %s: %w", q.url, err)
	}
	arn := out.Attributes[string(sqstypes.QueueAttributeNameQueueArn)]
	if arn == "" {
		return "", fmt.Errorf("queue %s has no ARN attribute", q.url)
	}
	return arn, nil
}

// ApplyRedrive sets the queue's redrive policy so deliveries that keep
// failing move to the dead-letter queue after maxAttempts receives.
func (q *Queue) ApplyRedrive(ctx context.Context, maxAttempts int, deadLetter *Queue) error {
	if maxAttempts < 1 {
		return errors.New("max attempts must be at least 1")
	}
	dlqARN, err := deadLetter.ARN(ctx)
	if err != nil {
		return err
	}
	policy, err := json.Marshal(map[string]string{
		"deadLetterTargetArn": dlqARN,
		"maxReceiveCount":     strconv.Itoa(maxAttempts),
	})
	if err != nil {
		return fmt.Errorf("encoding redrive policy: %w", err)
	}
	_, err = q.client.SetQueueAttributes(ctx, &sqs.SetQueueAttributesInput{
		QueueUrl: aws.String(q.url),
		Attributes: map[string]string{
			string(sqstypes.QueueAttributeNameRedrivePolicy): string(policy),
		},
	})
	if err != nil {
		return fmt.Errorf("applying redrive policy on %s: %w", q.url, err)
	}
	return nil
}
