// Package client is the typed entry point: it binds entity schemas, query
// translation, paginated execution and materialization behind a small
// fluent API.
package client

import (
	"context"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"

	"github.com/partiqlabs/partiq/metadata"
	"github.com/partiqlabs/partiq/query"
	"github.com/partiqlabs/partiq/query/executor"
	"github.com/partiqlabs/partiq/runtime/materializer"
	"github.com/partiqlabs/partiq/telemetry"
	"github.com/partiqlabs/partiq/typemap"
)

// Options configures a client.
type Options struct {
	// DefaultPageSize is the per-request evaluation bound used when a
	// query does not set its own. Zero leaves it to the store.
	DefaultPageSize int32
	Policy          executor.Policy
	Retry           executor.RetryConfig
	Telemetry       *telemetry.Collector
	Conventions     metadata.Conventions
	Types           *typemap.Registry
}

// Client executes typed queries against one statement executor.
type Client struct {
	store     executor.StatementExecutor
	schemas   *metadata.Registry
	mat       *materializer.Materializer
	types     *typemap.Registry
	pageSize  query.Limit
	policy    executor.Policy
	retry     executor.RetryConfig
	telemetry *telemetry.Collector
}

// New builds a client over an existing statement executor. Useful for
// tests and for stores other than DynamoDB that speak the same protocol.
func New(store executor.StatementExecutor, opts Options) *Client {
	types := opts.Types
	if types == nil {
		types = typemap.NewRegistry()
	}
	schemas := metadata.NewRegistry(opts.Conventions, types)

	var pageSize query.Limit
	if opts.DefaultPageSize > 0 {
		pageSize = query.LimitOf(opts.DefaultPageSize)
	}
	return &Client{
		store:     store,
		schemas:   schemas,
		mat:       materializer.New(schemas),
		types:     types,
		pageSize:  pageSize,
		policy:    opts.Policy,
		retry:     opts.Retry,
		telemetry: opts.Telemetry,
	}
}

// NewDynamoDB builds a client over a DynamoDB API client.
func NewDynamoDB(api DynamoAPI, opts Options) *Client {
	return New(NewDynamoStore(api), opts)
}

// ConnectOptions configures Connect.
type ConnectOptions struct {
	Region string
	// Endpoint overrides the service endpoint, e.g. for a local store.
	Endpoint string
	// AccessKey and SecretKey configure static credentials; leave empty
	// to use the default credential chain.
	AccessKey string
	SecretKey string

	Options
}

// Connect loads AWS configuration and builds a DynamoDB-backed client.
func Connect(ctx context.Context, opts ConnectOptions) (*Client, error) {
	var loadOpts []func(*config.LoadOptions) error
	if opts.Region != "" {
		loadOpts = append(loadOpts, config.WithRegion(opts.Region))
	}
	if opts.AccessKey != "" {
		loadOpts = append(loadOpts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(opts.AccessKey, opts.SecretKey, "")))
	}
	cfg, err := config.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, err
	}

	api := dynamodb.NewFromConfig(cfg, func(o *dynamodb.Options) {
		if opts.Endpoint != "" {
			o.BaseEndpoint = aws.String(opts.Endpoint)
		}
	})
	return NewDynamoDB(api, opts.Options), nil
}

// Store returns the underlying statement executor, for callers that
// build query models directly instead of going through From.
func (c *Client) Store() executor.StatementExecutor { return c.store }

// Schemas returns the client's schema registry.
func (c *Client) Schemas() *metadata.Registry { return c.schemas }

// Types returns the client's type-mapping registry.
func (c *Client) Types() *typemap.Registry { return c.types }
