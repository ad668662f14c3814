package executor

import (
	"context"
	"errors"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/partiqlabs/partiq/metadata"
	"github.com/partiqlabs/partiq/query"
	"github.com/partiqlabs/partiq/query/partiqlgen"
	"github.com/partiqlabs/partiq/wire"
)

type scriptedPage struct {
	rows  []wire.Row
	token *string
	err   error
}

// fakeStore replays a fixed page script and records every request.
type fakeStore struct {
	script   []scriptedPage
	requests []Request
}

func (f *fakeStore) ExecutePage(ctx context.Context, req *Request) (*Page, error) {
	f.requests = append(f.requests, *req)
	i := len(f.requests) - 1
	if i >= len(f.script) {
		return &Page{}, nil
	}
	p := f.script[i]
	if p.err != nil {
		return nil, p.err
	}
	return &Page{Rows: p.rows, NextToken: p.token}, nil
}

type item struct {
	ID string `partiq:"pk"`
}

func preparedModel(t *testing.T, limited bool, pageSize int32) (*query.Model, *partiqlgen.Statement) {
	t.Helper()
	entity, err := metadata.SchemaOf[item](metadata.NewRegistry(metadata.DefaultConventions(), nil))
	require.NoError(t, err)

	m := query.NewModel("items")
	m.AddEntityProjection()
	if limited {
		m.ApplyOrCombineResultLimit(query.LimitOf(1))
	}
	if pageSize > 0 {
		m.ApplyPageSize(query.LimitOf(pageSize))
	}
	require.NoError(t, m.FinalizeProjections(entity))

	stmt, err := partiqlgen.Render(m)
	require.NoError(t, err)
	return m, stmt
}

func row(id string) wire.Row {
	return wire.Row{"pk": wire.String(id)}
}

func drain(t *testing.T, e *Enumeration) []wire.Row {
	t.Helper()
	var rows []wire.Row
	for {
		r, ok, err := e.Next(context.Background())
		require.NoError(t, err)
		if !ok {
			return rows
		}
		rows = append(rows, r)
	}
}

func TestAutoPolicyFollowsTokensForLimitedQuery(t *testing.T) {
	store := &fakeStore{script: []scriptedPage{
		{rows: nil, token: aws.String("t1")},
		{rows: nil, token: aws.String("t2")},
		{rows: []wire.Row{row("match")}},
	}}
	m, stmt := preparedModel(t, true, 10)

	e := Open(store, stmt, m, Options{Policy: PolicyAuto})
	rows := drain(t, e)

	require.Len(t, rows, 1)
	assert.Equal(t, 3, e.Fetches())
	assert.Nil(t, store.requests[0].NextToken)
	assert.Equal(t, "t1", *store.requests[1].NextToken)
	assert.Equal(t, "t2", *store.requests[2].NextToken)
}

func TestAutoPolicyStopsAfterOnePageWithoutLimit(t *testing.T) {
	store := &fakeStore{script: []scriptedPage{
		{rows: []wire.Row{row("a")}, token: aws.String("t1")},
		{rows: []wire.Row{row("b")}},
	}}
	m, stmt := preparedModel(t, false, 10)

	e := Open(store, stmt, m, Options{Policy: PolicyAuto})
	rows := drain(t, e)

	assert.Len(t, rows, 1)
	assert.Equal(t, 1, e.Fetches())
	assert.True(t, e.HasMorePages())
}

func TestNeverPolicyStopsWithTokenPresent(t *testing.T) {
	store := &fakeStore{script: []scriptedPage{
		{rows: []wire.Row{row("a"), row("b")}, token: aws.String("t1")},
	}}
	m, stmt := preparedModel(t, true, 10)

	e := Open(store, stmt, m, Options{Policy: PolicyNever})
	rows := drain(t, e)

	assert.Len(t, rows, 2)
	assert.Equal(t, 1, e.Fetches())
}

func TestAlwaysPolicyExhaustsTokens(t *testing.T) {
	store := &fakeStore{script: []scriptedPage{
		{rows: []wire.Row{row("a")}, token: aws.String("t1")},
		{rows: []wire.Row{row("b")}, token: aws.String("t2")},
		{rows: []wire.Row{row("c")}},
	}}
	m, stmt := preparedModel(t, false, 0)

	e := Open(store, stmt, m, Options{Policy: PolicyAlways})
	rows := drain(t, e)

	assert.Len(t, rows, 3)
	assert.Equal(t, 3, e.Fetches())
}

func TestReEnumerationStartsTokenFree(t *testing.T) {
	script := []scriptedPage{
		{rows: []wire.Row{row("a")}, token: aws.String("t1")},
		{rows: []wire.Row{row("b")}, token: aws.String("t2")},
	}
	store := &fakeStore{script: script}
	m, stmt := preparedModel(t, true, 5)

	first := Open(store, stmt, m, Options{Policy: PolicyAlways})
	_ = drain(t, first)

	store.requests = nil
	store.script = script
	second := Open(store, stmt, m, Options{Policy: PolicyAlways})
	r, ok, err := second.Next(context.Background())
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "a", r["pk"].(*types.AttributeValueMemberS).Value)

	require.NotEmpty(t, store.requests)
	assert.Nil(t, store.requests[0].NextToken, "fresh enumeration must not reuse a prior token")
	assert.NotSame(t, first, second)
}

func TestPageSizeTravelsOutOfBand(t *testing.T) {
	store := &fakeStore{script: []scriptedPage{{rows: []wire.Row{row("a")}}}}
	m, stmt := preparedModel(t, false, 25)

	e := Open(store, stmt, m, Options{})
	_ = drain(t, e)

	require.NotEmpty(t, store.requests)
	require.NotNil(t, store.requests[0].Limit)
	assert.Equal(t, int32(25), *store.requests[0].Limit)
	assert.NotContains(t, store.requests[0].Statement, "LIMIT")
}

func TestRetryRepeatsIdenticalRequest(t *testing.T) {
	store := &retryStore{failures: 2}
	m, stmt := preparedModel(t, false, 10)

	e := Open(store, stmt, m, Options{Retry: RetryConfig{MaxAttempts: 3}})
	rows := drain(t, e)

	require.Len(t, rows, 1)
	assert.Equal(t, 3, len(store.requests))
	for _, req := range store.requests {
		assert.Equal(t, stmt.Text, req.Statement)
		assert.Nil(t, req.NextToken)
	}
	// One successful page, counted once.
	assert.Equal(t, 1, e.Fetches())
}

type retryStore struct {
	failures int
	requests []Request
}

func (r *retryStore) ExecutePage(ctx context.Context, req *Request) (*Page, error) {
	r.requests = append(r.requests, *req)
	if len(r.requests) <= r.failures {
		return nil, errors.New("throttled")
	}
	return &Page{Rows: []wire.Row{row("a")}}, nil
}

func TestExhaustedRetriesSurfaceError(t *testing.T) {
	store := &retryStore{failures: 5}
	m, stmt := preparedModel(t, false, 10)

	e := Open(store, stmt, m, Options{Retry: RetryConfig{MaxAttempts: 2}})
	_, ok, err := e.Next(context.Background())
	assert.False(t, ok)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "throttled")
}

func TestCancellationDrainsBufferedPageFirst(t *testing.T) {
	store := &fakeStore{script: []scriptedPage{
		{rows: []wire.Row{row("a"), row("b")}, token: aws.String("t1")},
	}}
	m, stmt := preparedModel(t, true, 10)

	ctx, cancel := context.WithCancel(context.Background())
	e := Open(store, stmt, m, Options{Policy: PolicyAlways})

	r, ok, err := e.Next(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	_ = r

	cancel()

	// Second row of the completed fetch still arrives.
	_, ok, err = e.Next(ctx)
	require.NoError(t, err)
	assert.True(t, ok)

	// The next fetch honors cancellation.
	_, ok, err = e.Next(ctx)
	assert.False(t, ok)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, e.Fetches())
}
