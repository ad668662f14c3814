package client_test

import (
	"context"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/partiqlabs/partiq/query/ast"
	"github.com/partiqlabs/partiq/query/executor"
	"github.com/partiqlabs/partiq/runtime/client"
	"github.com/partiqlabs/partiq/wire"
)

type address struct {
	City string `partiq:"city"`
}

type order struct {
	ID    string   `partiq:"pk"`
	Total float64  `partiq:"total"`
	Ship  *address `partiq:"ship_to"`
}

func (order) TableName() string { return "orders" }

type scriptedStore struct {
	pages    []executor.Page
	requests []executor.Request
}

func (s *scriptedStore) ExecutePage(ctx context.Context, req *executor.Request) (*executor.Page, error) {
	s.requests = append(s.requests, *req)
	i := len(s.requests) - 1
	if i >= len(s.pages) {
		return &executor.Page{}, nil
	}
	return &s.pages[i], nil
}

func orderRow(id string, total string) wire.Row {
	return wire.Row{"pk": wire.String(id), "total": wire.Number(total)}
}

func TestQueryEndToEnd(t *testing.T) {
	store := &scriptedStore{pages: []executor.Page{
		{Rows: []wire.Row{orderRow("o#1", "10"), orderRow("o#2", "20")}},
	}}
	c := client.New(store, client.Options{})

	got, err := client.From[order](c).
		WhereField("Total", ast.OpGt, 5.0).
		OrderByDescending("Total").
		ThenBy("ID").
		All(context.Background())
	require.NoError(t, err)

	require.Len(t, got, 2)
	assert.Equal(t, "o#1", got[0].ID)
	assert.Equal(t, 20.0, got[1].Total)

	require.Len(t, store.requests, 1)
	req := store.requests[0]
	assert.Equal(t,
		`SELECT "pk", "total", "ship_to" FROM "orders" WHERE "total" > ? ORDER BY "total" DESC, "pk" ASC`,
		req.Statement)
	require.Len(t, req.Params, 1)
}

func TestQueryTakeCapsResults(t *testing.T) {
	store := &scriptedStore{pages: []executor.Page{
		{Rows: []wire.Row{orderRow("a", "1"), orderRow("b", "2"), orderRow("c", "3")}},
	}}
	c := client.New(store, client.Options{})

	got, err := client.From[order](c).Take(2).All(context.Background())
	require.NoError(t, err)
	assert.Len(t, got, 2)

	// The cap never reaches the store; it bounds the consumer loop only.
	assert.Nil(t, store.requests[0].Limit)
}

func TestQueryRepeatedExecutionStartsFresh(t *testing.T) {
	store := &scriptedStore{pages: []executor.Page{
		{Rows: []wire.Row{orderRow("a", "1")}, NextToken: aws.String("t1")},
		{Rows: []wire.Row{orderRow("b", "2")}},
		{Rows: []wire.Row{orderRow("a", "1")}, NextToken: aws.String("t1")},
		{Rows: []wire.Row{orderRow("b", "2")}},
	}}
	c := client.New(store, client.Options{Policy: executor.PolicyAlways})

	q := client.From[order](c)
	first, err := q.All(context.Background())
	require.NoError(t, err)
	second, err := q.All(context.Background())
	require.NoError(t, err)

	assert.Equal(t, first, second)
	require.Len(t, store.requests, 4)
	assert.Nil(t, store.requests[0].NextToken)
	assert.Nil(t, store.requests[2].NextToken, "second run must not inherit the first run's token")
	assert.Equal(t, store.requests[0].Statement, store.requests[2].Statement)
}

func TestFirst(t *testing.T) {
	store := &scriptedStore{pages: []executor.Page{
		{Rows: []wire.Row{orderRow("a", "1"), orderRow("b", "2")}},
	}}
	c := client.New(store, client.Options{})

	got, err := client.From[order](c).First(context.Background())
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "a", got.ID)

	empty := client.New(&scriptedStore{}, client.Options{})
	none, err := client.From[order](empty).First(context.Background())
	require.NoError(t, err)
	assert.Nil(t, none)
}

func TestSelectProjectsAndReturnsRows(t *testing.T) {
	store := &scriptedStore{pages: []executor.Page{
		{Rows: []wire.Row{{"pk": wire.String("a")}}},
	}}
	c := client.New(store, client.Options{})

	q := client.From[order](c).Select("ID", "Ship.City")
	rows, err := q.Rows(context.Background())
	require.NoError(t, err)
	require.Len(t, rows, 1)

	assert.Equal(t,
		`SELECT "pk" AS "ID", "ship_to"."city" AS "Ship_City" FROM "orders"`,
		store.requests[0].Statement)

	err = q.Each(context.Background(), func(order) error { return nil })
	require.Error(t, err)
	assert.Contains(t, err.Error(), "projected query")
}

func TestUnknownFieldSurfacesAtExecution(t *testing.T) {
	c := client.New(&scriptedStore{}, client.Options{})

	_, err := client.From[order](c).WhereField("Nope", ast.OpEq, 1).All(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), `no member "Nope"`)
}

func TestDefaultPageSizeFlowsToRequests(t *testing.T) {
	store := &scriptedStore{pages: []executor.Page{
		{Rows: []wire.Row{orderRow("a", "1")}},
	}}
	c := client.New(store, client.Options{DefaultPageSize: 50})

	_, err := client.From[order](c).All(context.Background())
	require.NoError(t, err)
	require.NotNil(t, store.requests[0].Limit)
	assert.Equal(t, int32(50), *store.requests[0].Limit)
}

func TestWithoutPaginationStopsAfterOneRequest(t *testing.T) {
	store := &scriptedStore{pages: []executor.Page{
		{Rows: []wire.Row{orderRow("a", "1")}, NextToken: aws.String("t1")},
		{Rows: []wire.Row{orderRow("b", "2")}},
	}}
	c := client.New(store, client.Options{Policy: executor.PolicyAlways})

	got, err := client.From[order](c).WithoutPagination().All(context.Background())
	require.NoError(t, err)
	assert.Len(t, got, 1)
	assert.Len(t, store.requests, 1)
}
