// Package dynamo implements photopipe.RecordStore on a DynamoDB table
// with partition key fileName.
package dynamo

import (
	"context"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/mediakeep/photo-pipeline/pkg/photopipe"
)

// Config options for the DynamoDB record store.
type Config struct {
	Region          string // AWS region
	TableName       string // table with partition key "fileName"
	AccessKeyID     string // optional static credentials
	SecretAccessKey string
	Endpoint        string // optional custom endpoint (DynamoDB Local)
}

// Store is a DynamoDB-backed implementation of photopipe.RecordStore.
type Store struct {
	client *dynamodb.Client
	table  string
}

// New creates a DynamoDB record store from config.
func New(cfg Config) (*Store, error) {
	if cfg.TableName == "" {
		return nil, errors.New("table name is required")
	}
	if cfg.Region == "" {
		cfg.Region = "us-east-1"
	}

	var awsCfg aws.Config
	var err error
	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		awsCfg, err = awsconfig.LoadDefaultConfig(context.Background(),
			awsconfig.WithRegion(cfg.Region),
			awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
				cfg.AccessKeyID,
				cfg.SecretAccessKey,
				"",
			)),
		)
	} else {
		awsCfg, err = awsconfig.LoadDefaultConfig(context.Background(),
			awsconfig.WithRegion(cfg.Region),
		)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	var opts []func(*dynamodb.Options)
	if cfg.Endpoint != "" {
		opts = append(opts, func(o *dynamodb.Options) {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		})
	}

	return &Store{
		client: dynamodb.NewFromConfig(awsCfg, opts...),
		table:  cfg.TableName,
	}, nil
}

// NewWithClient creates a record store around an existing client.
func NewWithClient(client *dynamodb.Client, table string) *Store {
	return &Store{client: client, table: table}
}

// PutRecord inserts the record if no item with that fileName exists.
// A conditional-check failure means the record is already there, which is
// the desired end state under redelivery.
func (s *Store) PutRecord(ctx context.Context, rec photopipe.ImageRecord) error {
	item, err := attributevalue.MarshalMap(rec)
	if err != nil {
		return fmt.Errorf("marshaling record for %s: %w", rec.FileName, err)
	}

	_, err = s.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:           aws.String(s.table),
		Item:                item,
		ConditionExpression: aws.String("attribute_not_exists(fileName)"),
	})
	if err != nil {
		var ccf *types.ConditionalCheckFailedException
		if errors.As(err, &ccf) {
			return nil
		}
		return fmt.Errorf("putting record for %s: %w", rec.FileName, err)
	}
	return nil
}

// UpdateAttribute sets one named attribute via an update expression,
// leaving the rest of the item untouched. DynamoDB upserts the item when
// it does not exist.
func (s *Store) UpdateAttribute(ctx context.Context, fileName, attr, value string) error {
	if !photopipe.ValidMetadataAttribute(attr) {
		return photopipe.ErrUnknownAttribute
	}

	_, err := s.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName: aws.String(s.table),
		Key: map[string]types.AttributeValue{
			"fileName": &types.AttributeValueMemberS{Value: fileName},
		},
		UpdateExpression: aws.String("SET #meta = :value"),
		ExpressionAttributeNames: map[string]string{
			"#meta": attr,
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":value": &types.AttributeValueMemberS{Value: value},
		},
	})
	if err != nil {
		return fmt.Errorf("updating %s for %s: %w", attr, fileName, err)
	}
	return nil
}

// GetRecord fetches the record for fileName.
func (s *Store) GetRecord(ctx context.Context, fileName string) (*photopipe.ImageRecord, error) {
	out, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(s.table),
		Key: map[string]types.AttributeValue{
			"fileName": &types.AttributeValueMemberS{Value: fileName},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("getting record for %s: %w", fileName, err)
	}
	if len(out.Item) == 0 {
		return nil, photopipe.ErrRecordNotFound
	}

	var rec photopipe.ImageRecord
	if err := attributevalue.UnmarshalMap(out.Item, &rec); err != nil {
		return nil, fmt.Errorf("unmarshaling record for %s: %w", fileName, err)
	}
	return &rec, nil
}
