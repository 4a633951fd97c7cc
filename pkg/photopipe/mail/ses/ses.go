// Package ses implements photopipe.Mailer on the managed email service.
package ses

import (
	"context"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/aws/aws-sdk-go-v2/service/sesv2/types"

	"github.com/mediakeep/photo-pipeline/pkg/photopipe"
)

const charset = "UTF-8"

// Config options for the SES mailer.
type Config struct {
	Region string // AWS region the identity is verified in
	From   string // verified sender address
}

// Mailer sends HTML notifications through SES.
type Mailer struct {
	client *sesv2.Client
	from   string
}

// New creates an SES mailer. Region and From are required.
func New(cfg Config) (*Mailer, error) {
	if cfg.Region == "" {
		return nil, errors.New("region is required")
	}
	if cfg.From == "" {
		return nil, errors.New("sender address is required")
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(context.Background(),
		awsconfig.WithRegion(cfg.Region),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}
	return &Mailer{client: sesv2.NewFromConfig(awsCfg), from: cfg.From}, nil
}

// NewWithClient creates a mailer around an existing client.
func NewWithClient(client *sesv2.Client, from string) *Mailer {
	return &Mailer{client: client, from: from}
}

func (m *Mailer) Send(ctx context.Context, req photopipe.NotificationRequest) error {
	_, err := m.client.SendEmail(ctx, &sesv2.SendEmailInput{
		FromEmailAddress: aws.String(m.from),
		Destination: &types.Destination{
			ToAddresses: []string{req.Recipient},
		},
		Content: &types.EmailContent{
			Simple: &types.Message{
				Subject: &types.Content{
					Data:    aws.String(req.Subject),
					Charset: aws.String(charset),
				},
				Body: &types.Body{
					Html: &types.Content{
						Data:    aws.String(req.BodyHTML),
						Charset: aws.String(charset),
					},
				},
			},
		},
	})
	if err != nil {
		return fmt.Errorf("sending email to %s: %w", req.Recipient, err)
	}
	return nil
}
