package query

import (
	"reflect"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/partiqlabs/partiq/metadata"
	"github.com/partiqlabs/partiq/query/ast"
)

var stringType = reflect.TypeOf("")

type testAddress struct {
	City string `partiq:"city"`
}

type testOrder struct {
	ID    string       `partiq:"pk"`
	Total float64      `partiq:"total"`
	Ship  *testAddress `partiq:"ship_to"`
}

func testEntity(t *testing.T) *metadata.Entity {
	t.Helper()
	e, err := metadata.SchemaOf[testOrder](metadata.NewRegistry(metadata.DefaultConventions(), nil))
	require.NoError(t, err)
	return e
}

func TestProjectionDedupByAlias(t *testing.T) {
	m := NewModel("orders")
	m.AddProjection(ast.Prop("pk", stringType), "pk")
	m.AddProjection(ast.Prop("pk", stringType), "pk")
	assert.Len(t, m.Projections(), 1)
}

func TestProjectionDedupByExpression(t *testing.T) {
	m := NewModel("orders")
	m.AddProjection(ast.Prop("pk", stringType), "a")
	m.AddProjection(ast.Prop("pk", stringType), "b")
	m.AddProjection(ast.Prop("total", nil), "total")
	require.Len(t, m.Projections(), 2)
	assert.Equal(t, "a", m.Projections()[0].Alias)
	assert.Equal(t, "total", m.Projections()[1].Alias)
}

func TestPredicateAndCombines(t *testing.T) {
	m := NewModel("orders")
	a := ast.Eq(ast.Prop("pk", stringType), ast.Const("1"))
	b := ast.Gt(ast.Prop("total", nil), ast.Const(10.0))
	m.ApplyPredicate(a)
	m.ApplyPredicate(b)

	combined, ok := m.Predicate().(*ast.Binary)
	require.True(t, ok)
	assert.Equal(t, ast.OpAnd, combined.Op)
	assert.True(t, ast.Equal(combined.Left, a))
	assert.True(t, ast.Equal(combined.Right, b))
}

func TestOrderingReplaceAndAppend(t *testing.T) {
	m := NewModel("orders")
	m.ApplyOrdering(ast.Prop("a", nil), true)
	m.AppendOrdering(ast.Prop("b", nil), false)
	require.Len(t, m.Orderings(), 2)

	m.ApplyOrdering(ast.Prop("c", nil), false)
	require.Len(t, m.Orderings(), 1)
	assert.False(t, m.Orderings()[0].Ascending)
}

func TestResultLimitMinCombine(t *testing.T) {
	m := NewModel("orders")
	m.ApplyOrCombineResultLimit(LimitOf(5))
	m.ApplyOrCombineResultLimit(LimitOf(3))
	n, ok := m.ResultLimit().Resolve()
	require.True(t, ok)
	assert.Equal(t, int32(3), n)
	assert.False(t, m.ResultLimit().Deferred())
}

func TestResultLimitDeferredMin(t *testing.T) {
	runtime := int32(2)
	l := CombineMin(LimitOf(5), DeferredLimit(func() int32 { return runtime }))
	assert.True(t, l.Deferred())

	n, ok := l.Resolve()
	require.True(t, ok)
	assert.Equal(t, int32(2), n)

	runtime = 9
	n, _ = l.Resolve()
	assert.Equal(t, int32(5), n)
}

func TestPageSizeLastSetterWins(t *testing.T) {
	m := NewModel("orders")
	m.ApplyPageSize(LimitOf(10))
	m.ApplyPageSize(LimitOf(25))
	n, ok := m.PageSize().Resolve()
	require.True(t, ok)
	assert.Equal(t, int32(25), n)
}

func TestFinalizeExpandsEntityProjection(t *testing.T) {
	m := NewModel("orders")
	m.AddEntityProjection()
	require.NoError(t, m.FinalizeProjections(testEntity(t)))

	var aliases []string
	for _, p := range m.Projections() {
		aliases = append(aliases, p.Alias)
	}
	assert.Equal(t, []string{"pk", "total", "ship_to"}, aliases)

	i, ok := m.ProjectionOrdinal("ship_to")
	require.True(t, ok)
	assert.Equal(t, 2, i)
}

func TestFinalizeIsIdempotent(t *testing.T) {
	m := NewModel("orders")
	m.AddEntityProjection()
	require.NoError(t, m.FinalizeProjections(testEntity(t)))
	before := len(m.Projections())
	require.NoError(t, m.FinalizeProjections(testEntity(t)))
	assert.Equal(t, before, len(m.Projections()))
}

func TestFinalizeEmptyProjectionFails(t *testing.T) {
	m := NewModel("orders")
	err := m.FinalizeProjections(testEntity(t))
	assert.ErrorIs(t, err, ErrEmptyProjection)
}

func TestMutationAfterFinalizePanics(t *testing.T) {
	m := NewModel("orders")
	m.AddEntityProjection()
	require.NoError(t, m.FinalizeProjections(testEntity(t)))
	assert.Panics(t, func() { m.ApplyPredicate(ast.Const(true)) })
	assert.Panics(t, func() { m.ApplyPageSize(LimitOf(1)) })
}
