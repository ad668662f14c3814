package client

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/partiqlabs/partiq/metadata"
	"github.com/partiqlabs/partiq/query"
	"github.com/partiqlabs/partiq/query/ast"
	"github.com/partiqlabs/partiq/query/executor"
	"github.com/partiqlabs/partiq/query/partiqlgen"
	"github.com/partiqlabs/partiq/runtime/materializer"
	"github.com/partiqlabs/partiq/wire"
)

// Query is a fluent, single-use query over entity type T. Builder calls
// accumulate onto the model; the first terminal call freezes it and
// renders the statement. The rendered statement is reused across repeated
// terminal calls, each of which opens an isolated enumeration.
type Query[T any] struct {
	c      *Client
	entity *metadata.Entity
	model  *query.Model
	stmt      *partiqlgen.Statement
	policy    executor.Policy
	projected bool
	err       error
}

// From starts a query over T's table.
func From[T any](c *Client) *Query[T] {
	q := &Query[T]{c: c, policy: c.policy}
	entity, err := metadata.SchemaOf[T](c.schemas)
	if err != nil {
		q.err = err
		return q
	}
	q.entity = entity
	q.model = query.NewModel(entity.Table)
	return q
}

// Select narrows the projection to the named fields. A projected query
// no longer carries every member of T, so its results are surfaced as raw
// rows through Rows rather than materialized entities.
func (q *Query[T]) Select(fields ...string) *Query[T] {
	if q.err != nil {
		return q
	}
	for _, f := range fields {
		path, err := q.fieldPath(f)
		if err != nil {
			q.err = err
			return q
		}
		q.model.AddProjection(path, strings.ReplaceAll(f, ".", "_"))
		q.projected = true
	}
	return q
}

// Where AND-combines pred with any existing filter.
func (q *Query[T]) Where(pred ast.Expr) *Query[T] {
	if q.err != nil {
		return q
	}
	q.model.ApplyPredicate(pred)
	return q
}

// WhereField AND-combines a comparison of the named field against value.
// The field may be a dotted path through embedded objects ("Ship.City").
func (q *Query[T]) WhereField(field string, op ast.Op, value any) *Query[T] {
	if q.err != nil {
		return q
	}
	path, err := q.fieldPath(field)
	if err != nil {
		q.err = err
		return q
	}
	q.model.ApplyPredicate(&ast.Binary{Op: op, Left: path, Right: ast.Const(value)})
	return q
}

// OrderBy replaces the ordering with an ascending key on the named field.
func (q *Query[T]) OrderBy(field string) *Query[T] {
	return q.order(field, true, false)
}

// OrderByDescending replaces the ordering with a descending key.
func (q *Query[T]) OrderByDescending(field string) *Query[T] {
	return q.order(field, false, false)
}

// ThenBy appends a subordinate ascending key.
func (q *Query[T]) ThenBy(field string) *Query[T] {
	return q.order(field, true, true)
}

// ThenByDescending appends a subordinate descending key.
func (q *Query[T]) ThenByDescending(field string) *Query[T] {
	return q.order(field, false, true)
}

func (q *Query[T]) order(field string, ascending, subordinate bool) *Query[T] {
	if q.err != nil {
		return q
	}
	path, err := q.fieldPath(field)
	if err != nil {
		q.err = err
		return q
	}
	if subordinate {
		q.model.AppendOrdering(path, ascending)
	} else {
		q.model.ApplyOrdering(path, ascending)
	}
	return q
}

// Take caps the rows surfaced to the caller. Repeated calls keep the
// smallest cap.
func (q *Query[T]) Take(n int32) *Query[T] {
	if q.err != nil {
		return q
	}
	q.model.ApplyOrCombineResultLimit(query.LimitOf(n))
	return q
}

// WithPageSize bounds the items the store evaluates per request. It does
// not bound the overall result.
func (q *Query[T]) WithPageSize(n int32) *Query[T] {
	if q.err != nil {
		return q
	}
	q.model.ApplyPageSize(query.LimitOf(n))
	return q
}

// WithPagination makes every terminal call follow continuation tokens to
// exhaustion.
func (q *Query[T]) WithPagination() *Query[T] {
	q.policy = executor.PolicyAlways
	return q
}

// WithoutPagination stops every terminal call after the first request.
func (q *Query[T]) WithoutPagination() *Query[T] {
	q.policy = executor.PolicyNever
	return q
}

// prepare freezes the model and renders the statement once.
func (q *Query[T]) prepare() error {
	if q.err != nil {
		return q.err
	}
	if q.stmt != nil {
		return nil
	}
	if !q.model.PageSize().IsSet() && q.c.pageSize.IsSet() {
		q.model.ApplyPageSize(q.c.pageSize)
	}
	if len(q.model.Projections()) == 0 {
		q.model.AddEntityProjection()
	}
	if err := q.model.FinalizeProjections(q.entity); err != nil {
		q.err = err
		return err
	}
	stmt, err := partiqlgen.RenderWith(q.model, q.c.types)
	if err != nil {
		q.err = err
		return err
	}
	q.stmt = stmt
	return nil
}

// Statement renders and returns the statement without executing it.
func (q *Query[T]) Statement() (*partiqlgen.Statement, error) {
	if err := q.prepare(); err != nil {
		return nil, err
	}
	return q.stmt, nil
}

// eachRow streams raw rows until exhaustion, the result cap, or an error
// from fn. Every call opens a fresh enumeration.
func (q *Query[T]) eachRow(ctx context.Context, fn func(wire.Row) error) error {
	if err := q.prepare(); err != nil {
		return err
	}

	// The result cap is enforced here, in the consumer loop: the store
	// never sees it and a page may well carry more rows than the cap.
	remaining := int32(-1)
	if n, ok := q.model.ResultLimit().Resolve(); ok {
		if n <= 0 {
			return nil
		}
		remaining = n
	}

	e := executor.Open(q.c.store, q.stmt, q.model, executor.Options{
		Policy:    q.policy,
		Retry:     q.c.retry,
		Telemetry: q.c.telemetry,
	})
	for {
		row, ok, err := e.Next(ctx)
		if err != nil {
			return err
		}
		if !ok {
			return nil
		}
		if err := fn(row); err != nil {
			return err
		}
		if remaining > 0 {
			remaining--
			if remaining == 0 {
				return nil
			}
		}
	}
}

// Each streams matching entities to fn until the query is exhausted, the
// result cap is reached, or fn returns an error.
func (q *Query[T]) Each(ctx context.Context, fn func(T) error) error {
	if q.projected {
		return fmt.Errorf("client: a projected query cannot materialize %s; use Rows", q.entity.Name)
	}
	return q.eachRow(ctx, func(row wire.Row) error {
		item, err := materializer.Materialize[T](q.c.mat, row)
		if err != nil {
			return err
		}
		return fn(item)
	})
}

// Rows collects matching rows without materializing them.
func (q *Query[T]) Rows(ctx context.Context) ([]wire.Row, error) {
	var out []wire.Row
	err := q.eachRow(ctx, func(row wire.Row) error {
		out = append(out, row)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// All collects every matching entity.
func (q *Query[T]) All(ctx context.Context) ([]T, error) {
	var out []T
	err := q.Each(ctx, func(item T) error {
		out = append(out, item)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// errStop ends an Each loop early without reporting a failure.
var errStop = errors.New("stop iteration")

// First returns the first matching entity, or nil when nothing matches.
func (q *Query[T]) First(ctx context.Context) (*T, error) {
	if q.err == nil && !q.model.Finalized() {
		q.Take(1)
	}
	var out *T
	err := q.Each(ctx, func(item T) error {
		out = &item
		return errStop
	})
	if err != nil && !errors.Is(err, errStop) {
		return nil, err
	}
	return out, nil
}

// fieldPath resolves a dotted Go field path to an attribute access chain.
func (q *Query[T]) fieldPath(field string) (ast.Expr, error) {
	parts := strings.Split(field, ".")
	entity := q.entity
	var expr ast.Expr
	for i, part := range parts {
		last := i == len(parts)-1
		if m := entity.Member(part); m != nil {
			if !last {
				return nil, fmt.Errorf("client: %s.%s is a scalar member, not an object", entity.Name, part)
			}
			return extend(expr, m.Attribute, m.Mapping.GoType), nil
		}
		nav := entity.Navigation(part)
		if nav == nil {
			return nil, fmt.Errorf("client: %s has no member %q", entity.Name, part)
		}
		if nav.Collection {
			return nil, fmt.Errorf("client: %s.%s is a collection and cannot appear in a field path", entity.Name, part)
		}
		expr = extend(expr, nav.Attribute, nil)
		entity = nav.Target
	}
	return expr, nil
}

func extend(parent ast.Expr, attr string, of reflect.Type) ast.Expr {
	if parent == nil {
		return ast.Prop(attr, of)
	}
	return &ast.ObjectAccess{Parent: parent, Attribute: attr, Of: of}
}
