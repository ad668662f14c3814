// Package query holds the in-memory model of one query: table, predicate,
// orderings, projection list and the two independent count bounds (rows
// surfaced to the caller vs. items evaluated per store request).
//
// A model is mutable while the caller composes it and freezes when its
// projections are finalized; text generation reads a finalized model
// without mutating it, so the rendered statement can be reused across
// independent enumerations.
package query

import (
	"errors"

	"github.com/partiqlabs/partiq/metadata"
	"github.com/partiqlabs/partiq/query/ast"
)

// ErrEmptyProjection reports a model that finalized with nothing to
// select. This is a programming-contract violation, never retried.
var ErrEmptyProjection = errors.New("query: model finalized with an empty projection list")

// Ordering is one ORDER BY key.
type Ordering struct {
	Key       ast.Expr
	Ascending bool
}

// Projection is one entry of the select list. An entity-shaped entry
// stands for "all mapped members of the entity" and is expanded exactly
// once during finalization.
type Projection struct {
	Expr  ast.Expr
	Alias string

	entityShaped bool
}

// EntityShaped reports whether the entry still awaits expansion.
func (p Projection) EntityShaped() bool { return p.entityShaped }

// Model is the mutable-until-finalized description of one query.
type Model struct {
	table       string
	predicate   ast.Expr
	orderings   []Ordering
	projections []Projection
	resultLimit Limit
	pageSize    Limit
	finalized   bool
	ordinals    map[string]int
}

// NewModel starts a model for the given table.
func NewModel(table string) *Model {
	return &Model{table: table}
}

// Table returns the queried table name.
func (m *Model) Table() string { return m.table }

// Predicate returns the combined filter, or nil.
func (m *Model) Predicate() ast.Expr { return m.predicate }

// Orderings returns the ordering keys in application order.
func (m *Model) Orderings() []Ordering { return m.orderings }

// Projections returns the projection entries in insertion order.
func (m *Model) Projections() []Projection { return m.projections }

// ResultLimit returns the maximum rows surfaced to the caller.
func (m *Model) ResultLimit() Limit { return m.resultLimit }

// PageSize returns the per-request evaluation bound.
func (m *Model) PageSize() Limit { return m.pageSize }

// HasResultLimit reports whether the caller applied a result-limiting
// operation. The Auto pagination policy keys off this.
func (m *Model) HasResultLimit() bool { return m.resultLimit.IsSet() }

// Finalized reports whether projections have been expanded and the model
// frozen.
func (m *Model) Finalized() bool { return m.finalized }

func (m *Model) mutable() {
	if m.finalized {
		panic("query: model mutated after finalization")
	}
}

// ApplyPredicate AND-combines e with any existing filter.
func (m *Model) ApplyPredicate(e ast.Expr) {
	m.mutable()
	if e == nil {
		return
	}
	if m.predicate == nil {
		m.predicate = e
		return
	}
	m.predicate = ast.And(m.predicate, e)
}

// ApplyOrdering replaces the ordering list with a single key.
func (m *Model) ApplyOrdering(key ast.Expr, ascending bool) {
	m.mutable()
	m.orderings = []Ordering{{Key: key, Ascending: ascending}}
}

// AppendOrdering adds a subordinate ordering key.
func (m *Model) AppendOrdering(key ast.Expr, ascending bool) {
	m.mutable()
	m.orderings = append(m.orderings, Ordering{Key: key, Ascending: ascending})
}

// ApplyOrCombineResultLimit min-combines l with any existing limit.
func (m *Model) ApplyOrCombineResultLimit(l Limit) {
	m.mutable()
	m.resultLimit = CombineMin(m.resultLimit, l)
}

// ApplyPageSize replaces the page size; the last explicit setter wins.
func (m *Model) ApplyPageSize(l Limit) {
	m.mutable()
	m.pageSize = l
}

// AddProjection adds a select entry, deduplicating first by alias and then
// by structural expression equality. The first insertion keeps its slot.
func (m *Model) AddProjection(e ast.Expr, alias string) {
	m.mutable()
	m.addProjection(Projection{Expr: e, Alias: alias})
}

// AddEntityProjection adds an entry standing for the whole entity; it is
// expanded into per-member leaves during finalization.
func (m *Model) AddEntityProjection() {
	m.mutable()
	m.projections = append(m.projections, Projection{entityShaped: true})
}

func (m *Model) addProjection(p Projection) {
	for _, existing := range m.projections {
		if existing.entityShaped {
			continue
		}
		if existing.Alias == p.Alias || ast.Equal(existing.Expr, p.Expr) {
			return
		}
	}
	m.projections = append(m.projections, p)
}

// FinalizeProjections expands entity-shaped entries into one leaf per
// mapped member plus one opaque entry per embedded-object container
// attribute, freezes the model, and records the alias-to-position index.
// Calling it again is a no-op.
func (m *Model) FinalizeProjections(entity *metadata.Entity) error {
	if m.finalized {
		return nil
	}

	pending := m.projections
	m.projections = nil
	for _, p := range pending {
		if !p.entityShaped {
			m.addProjection(p)
			continue
		}
		for _, member := range entity.Members {
			m.addProjection(Projection{
				Expr:  ast.Prop(member.Attribute, member.Mapping.GoType),
				Alias: member.Attribute,
			})
		}
		// Containers stay opaque: embedded objects are selected whole,
		// never flattened into the target entity's own leaves.
		for _, nav := range entity.Navigations {
			m.addProjection(Projection{
				Expr:  ast.Prop(nav.Attribute, nil),
				Alias: nav.Attribute,
			})
		}
	}

	if len(m.projections) == 0 {
		return ErrEmptyProjection
	}

	m.ordinals = make(map[string]int, len(m.projections))
	for i, p := range m.projections {
		m.ordinals[p.Alias] = i
	}
	m.finalized = true
	return nil
}

// ProjectionOrdinal returns the finalized position of the projection with
// the given alias.
func (m *Model) ProjectionOrdinal(alias string) (int, bool) {
	i, ok := m.ordinals[alias]
	return i, ok
}
