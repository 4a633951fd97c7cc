// Package awsmq adapts the managed topic and queue services to the broker
// contracts. Fan-out subscriptions and redrive live in the broker itself;
// this package applies them as explicit, configurable policy rather than
// leaving them to out-of-band provisioning.
package awsmq

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	snstypes "github.com/aws/aws-sdk-go-v2/service/sns/types"

	"github.com/mediakeep/photo-pipeline/pkg/photopipe/broker"
)

// TopicConfig options for the SNS-backed publisher.
type TopicConfig struct {
	Region   string
	TopicARN string
}

// Topic publishes to an SNS topic. Subscriptions are managed broker-side;
// use Subscribe to bind a queue with a filter policy.
type Topic struct {
	client *sns.Client
	arn    string
}

// NewTopic creates an SNS-backed publisher.
func NewTopic(cfg TopicConfig) (*Topic, error) {
	if cfg.TopicARN == "" {
		return nil, errors.New("topic ARN is required")
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
	return &Topic{client: sns.NewFromConfig(awsCfg), arn: cfg.TopicARN}, nil
}

// NewTopicWithClient creates a publisher around an existing client.
func NewTopicWithClient(client *sns.Client, arn string) *Topic {
	return &Topic{client: client, arn: arn}
}

func (t *Topic) Publish(ctx context.Context, m broker.Message) error {
	input := &sns.PublishInput{
		TopicArn: aws.String(t.arn),
		Message:  aws.String(string(m.Body)),
	}
	if len(m.Attributes) > 0 {
		input.MessageAttributes = make(map[string]snstypes.MessageAttributeValue, len(m.Attributes))
		for name, value := range m.Attributes {
			input.MessageAttributes[name] = snstypes.MessageAttributeValue{
				DataType:    aws.String("String"),
				StringValue: aws.String(value),
			}
		}
	}
	if _, err := t.client.Publish(ctx, input); err != nil {
		return fmt.Errorf("publishing to %s: %w", t.arn, err)
	}
	return nil
}

// Subscribe binds a queue to the topic, optionally restricted by an
// attribute filter policy. The policy is the broker-side counterpart of
// an in-process filter predicate.
func (t *Topic) Subscribe(ctx context.Context, queueARN string, filterPolicy string) error {
	attrs := map[string]string{
		"RawMessageDelivery": "false",
	}
	if filterPolicy != "" {
		attrs["FilterPolicy"] = filterPolicy
	}
	_, err := t.client.Subscribe(ctx, &sns.SubscribeInput{
		TopicArn:   aws.String(t.arn),
		Protocol:   aws.String("sqs"),
		Endpoint:   aws.String(queueARN),
		Attributes: attrs,
	})
	if err != nil {
		return fmt.Errorf("subscribing %s to %s: %w", queueARN, t.arn, err)
	}
	return nil
}

// AttributeFilterPolicy renders an attribute allow-list as a broker
// filter-policy document.
func AttributeFilterPolicy(name string, allowed []string) (string, error) {
	policy := map[string][]string{name: allowed}
	data, err := json.Marshal(policy)
	if err != nil {
		return "", fmt.Errorf("encoding filter policy: %w", err)
	}
	return string(data), nil
}
