// Package executor drives paginated statement execution.
//
// Every enumeration owns an isolated cursor: the continuation token lives
// on the Enumeration value, never on shared request state, so re-running a
// prepared statement always starts token-free. Page fetches within one
// enumeration are strictly sequential.
package executor

import (
	"context"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/google/uuid"

	"github.com/partiqlabs/partiq/internal/debug"
	"github.com/partiqlabs/partiq/query"
	"github.com/partiqlabs/partiq/query/partiqlgen"
	"github.com/partiqlabs/partiq/telemetry"
	"github.com/partiqlabs/partiq/wire"
)

// Request is one read against the store.
type Request struct {
	Statement string
	Params    []types.AttributeValue
	// Limit bounds the items the store evaluates for this request. It is
	// not a row-count bound for the overall query.
	Limit     *int32
	NextToken *string
}

// Page is the store's response to one request. A nil NextToken means no
// more pages exist.
type Page struct {
	Rows      []wire.Row
	NextToken *string
}

// StatementExecutor issues one page request. Implementations must treat
// the request as read-only so an identical fetch can be repeated safely.
type StatementExecutor interface {
	ExecutePage(ctx context.Context, req *Request) (*Page, error)
}

// Policy decides whether an enumeration follows continuation tokens.
type Policy int

const (
	// PolicyAuto follows tokens only for queries carrying a caller-visible
	// result-limiting operation; open-ended scans stop after one request.
	// The trigger is the presence of a limiting operator, not a semantic
	// guarantee: a selective filter without a limit can still under-fetch.
	PolicyAuto Policy = iota
	// PolicyAlways follows tokens until the store stops returning them.
	PolicyAlways
	// PolicyNever stops after the first request even when a token is
	// present, trading complete results for latency.
	PolicyNever
)

func (p Policy) String() string {
	switch p {
	case PolicyAuto:
		return "auto"
	case PolicyAlways:
		return "always"
	case PolicyNever:
		return "never"
	default:
		return "unknown"
	}
}

// Options configures one enumeration.
type Options struct {
	Policy Policy
	// PageSize applies when the model itself carries none.
	PageSize  query.Limit
	Retry     RetryConfig
	Telemetry *telemetry.Collector
}

// Enumeration is the cursor state of one pass over a prepared statement.
// It must not be shared between goroutines; open a fresh one per pass.
type Enumeration struct {
	exec      StatementExecutor
	stmt      *partiqlgen.Statement
	policy    Policy
	limited   bool
	pageSize  *int32
	retry     RetryConfig
	collector *telemetry.Collector
	id        string

	buf       []wire.Row
	pos       int
	nextToken *string
	started   bool
	done      bool
	fetches   int
}

// Open starts a fresh enumeration of stmt. The model supplies the page
// size and the result-limiting flag; opts fill in the rest.
func Open(exec StatementExecutor, stmt *partiqlgen.Statement, m *query.Model, opts Options) *Enumeration {
	pageSize := m.PageSize()
	if !pageSize.IsSet() {
		pageSize = opts.PageSize
	}
	var limit *int32
	if n, ok := pageSize.Resolve(); ok && n > 0 {
		limit = &n
	}

	limited := m.HasResultLimit()
	if limited && limit == nil {
		debug.Warn("result-limited query running without an effective page size",
			"statement", stmt.Text)
	}

	return &Enumeration{
		exec:      exec,
		stmt:      stmt,
		policy:    opts.Policy,
		limited:   limited,
		pageSize:  limit,
		retry:     opts.Retry,
		collector: opts.Telemetry,
		id:        uuid.NewString(),
	}
}

// ID identifies this enumeration in diagnostics.
func (e *Enumeration) ID() string { return e.id }

// Fetches returns the number of page requests issued so far.
func (e *Enumeration) Fetches() int { return e.fetches }

// HasMorePages reports whether the last response carried a token.
func (e *Enumeration) HasMorePages() bool { return e.nextToken != nil }

// Next returns the next row. ok is false when the enumeration is
// exhausted. Rows already buffered from a completed fetch are delivered
// even after ctx is cancelled; cancellation is honored at fetch points.
func (e *Enumeration) Next(ctx context.Context) (row wire.Row, ok bool, err error) {
	for {
		if e.pos < len(e.buf) {
			row = e.buf[e.pos]
			e.pos++
			return row, true, nil
		}
		if e.done {
			return nil, false, nil
		}
		if e.started && (e.nextToken == nil || !e.continueAllowed()) {
			e.finish(nil)
			return nil, false, nil
		}
		if err := e.fetch(ctx); err != nil {
			e.finish(err)
			return nil, false, err
		}
	}
}

func (e *Enumeration) continueAllowed() bool {
	switch e.policy {
	case PolicyAlways:
		return true
	case PolicyNever:
		return false
	default:
		return e.limited
	}
}

func (e *Enumeration) fetch(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	req := &Request{
		Statement: e.stmt.Text,
		Params:    e.stmt.Params,
		Limit:     e.pageSize,
		NextToken: e.nextToken,
	}
	tokenBefore := e.nextToken != nil
	debug.Debug("executing statement page",
		"enumeration", e.id,
		"statement", e.stmt.Text,
		"limit", limitValue(e.pageSize),
		"token_present", tokenBefore,
	)

	start := time.Now()
	var page *Page
	err := e.retry.Do(ctx, func() error {
		var ferr error
		page, ferr = e.exec.ExecutePage(ctx, req)
		return ferr
	})
	elapsed := time.Since(start)

	event := telemetry.Event{
		Type:          telemetry.EventFetch,
		StatementText: e.stmt.Text,
		EnumerationID: e.id,
		FetchCount:    e.fetches + 1,
		Limit:         limitValue(e.pageSize),
		TokenBefore:   tokenBefore,
		Duration:      elapsed,
	}
	if err != nil {
		event.Error = err.Error()
		e.collector.Record(event)
		return err
	}

	e.started = true
	e.fetches++
	e.buf = page.Rows
	e.pos = 0
	e.nextToken = page.NextToken

	event.TokenAfter = page.NextToken != nil
	e.collector.Record(event)
	debug.Debug("statement page received",
		"enumeration", e.id,
		"rows", len(page.Rows),
		"token_present", page.NextToken != nil,
	)
	return nil
}

func (e *Enumeration) finish(err error) {
	if e.done {
		return
	}
	e.done = true
	event := telemetry.Event{
		Type:          telemetry.EventEnumeration,
		StatementText: e.stmt.Text,
		EnumerationID: e.id,
		FetchCount:    e.fetches,
	}
	if err != nil {
		event.Error = err.Error()
	}
	e.collector.Record(event)
}

func limitValue(l *int32) int32 {
	if l == nil {
		return 0
	}
	return *l
}
