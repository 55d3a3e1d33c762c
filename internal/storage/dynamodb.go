package storage

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
)

// DynamoDBConfig holds configuration for the DynamoDB client.
type DynamoDBConfig struct {
	// Region is the AWS region. Empty uses the ambient configuration
	// (AWS_REGION in Lambda).
	Region string
	// Endpoint is an optional custom endpoint (DynamoDB Local, LocalStack).
	Endpoint string
}

// Client is the process-wide handle to the sales table. It is created once
// at cold start and shared by every invocation.
type Client struct {
	api   BatchWriteAPI
	table string
}

// NewDynamoDBClient creates a DynamoDB client from the default credential
// chain.
func NewDynamoDBClient(ctx context.Context, cfg DynamoDBConfig) (*dynamodb.Client, error) {
	var opts []func(*config.LoadOptions) error

	if cfg.Region != "" {
		opts = append(opts, config.WithRegion(cfg.Region))
	}

	awsCfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	var ddbOpts []func(*dynamodb.Options)
	if cfg.Endpoint != "" {
		ddbOpts = append(ddbOpts, func(o *dynamodb.Options) {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		})
	}

	return dynamodb.NewFromConfig(awsCfg, ddbOpts...), nil
}

// NewClient creates a Client for table backed by a freshly configured
// DynamoDB client.
func NewClient(ctx context.Context, table string, cfg DynamoDBConfig) (*Client, error) {
	if table == "" {
		return nil, fmt.Errorf("table name is required")
	}
	ddb, err := NewDynamoDBClient(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return NewClientWithAPI(ddb, table), nil
}

// NewClientWithAPI creates a Client with a pre-configured API.
func NewClientWithAPI(api BatchWriteAPI, table string) *Client {
	return &Client{api: api, table: table}
}

// Table returns the table name.
func (c *Client) Table() string {
	return c.table
}

// BatchWriter opens a batched write scope on the table. The caller must
// Close it.
func (c *Client) BatchWriter(cfg WriterConfig) *BatchWriter {
	return NewBatchWriter(c.api, c.table, cfg)
}
