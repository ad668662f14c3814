// Package partiqlgen renders a finalized query model to PartiQL text.
//
// Rendering is a read-only pass over the model: the produced statement and
// its positional parameters can be reused across repeated executions. The
// row-count bounds of the model are never rendered into the text; they
// travel out of band as request parameters.
package partiqlgen

import (
	"fmt"
	"reflect"
	"strings"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/partiqlabs/partiq/query"
	"github.com/partiqlabs/partiq/query/ast"
	"github.com/partiqlabs/partiq/typemap"
	"github.com/partiqlabs/partiq/wire"
)

// Statement is the rendered form of one query model.
type Statement struct {
	Text   string
	Params []types.AttributeValue
}

// UnsupportedExprError reports a query construct the generator cannot
// express in PartiQL. It is raised at render time, not at execution time.
type UnsupportedExprError struct {
	Construct string
}

func (e *UnsupportedExprError) Error() string {
	return fmt.Sprintf("partiqlgen: unsupported query construct: %s", e.Construct)
}

// renderFuncs are the predicate functions the generator knows how to emit.
var renderFuncs = map[string]int{
	"begins_with":      2,
	"contains":         2,
	"attribute_exists": 1,
}

var defaultTypes = typemap.NewRegistry()

// Render renders m with positional `?` parameters.
func Render(m *query.Model) (*Statement, error) {
	return RenderWith(m, defaultTypes)
}

// RenderWith renders m, encoding constants through the given registry.
func RenderWith(m *query.Model, reg *typemap.Registry) (*Statement, error) {
	r := &renderer{types: reg}
	if err := r.render(m); err != nil {
		return nil, err
	}
	return &Statement{Text: r.sb.String(), Params: r.params}, nil
}

// RenderInline renders m with literals inlined instead of parameters.
// Intended for diagnostics and dry runs.
func RenderInline(m *query.Model) (string, error) {
	r := &renderer{types: defaultTypes, inline: true}
	if err := r.render(m); err != nil {
		return "", err
	}
	return r.sb.String(), nil
}

// Operator precedence, loosest first. Parenthesization compares a child's
// level against its parent's to preserve the original grouping.
const (
	precOr = iota + 1
	precAnd
	precNot
	precCompare
	precLeaf
)

type renderer struct {
	sb     strings.Builder
	params []types.AttributeValue
	inline bool
	types  *typemap.Registry
}

func (r *renderer) render(m *query.Model) error {
	if !m.Finalized() {
		return fmt.Errorf("partiqlgen: model must be finalized before rendering")
	}

	r.sb.WriteString("SELECT ")
	for i, p := range m.Projections() {
		if i > 0 {
			r.sb.WriteString(", ")
		}
		if err := r.projection(p); err != nil {
			return err
		}
	}

	r.sb.WriteString(" FROM ")
	r.ident(m.Table())

	if pred := m.Predicate(); pred != nil {
		r.sb.WriteString(" WHERE ")
		if err := r.boolean(pred, 0); err != nil {
			return err
		}
	}

	if ords := m.Orderings(); len(ords) > 0 {
		r.sb.WriteString(" ORDER BY ")
		for i, o := range ords {
			if i > 0 {
				r.sb.WriteString(", ")
			}
			if err := r.path(o.Key); err != nil {
				return err
			}
			if o.Ascending {
				r.sb.WriteString(" ASC")
			} else {
				r.sb.WriteString(" DESC")
			}
		}
	}
	return nil
}

func (r *renderer) projection(p query.Projection) error {
	if err := r.path(p.Expr); err != nil {
		return err
	}
	if prop, ok := p.Expr.(*ast.Property); ok && prop.Name == p.Alias {
		return nil
	}
	r.sb.WriteString(" AS ")
	r.ident(p.Alias)
	return nil
}

// boolean renders e in boolean context. A bare property access is
// rewritten to an explicit "= true" comparison.
func (r *renderer) boolean(e ast.Expr, parent int) error {
	switch v := e.(type) {
	case *ast.Binary:
		if v.Op == ast.OpAnd || v.Op == ast.OpOr {
			return r.logical(v, parent)
		}
		return r.comparison(v, parent)
	case *ast.Not:
		return r.parenthesized(precNot, parent, func() error {
			r.sb.WriteString("NOT ")
			return r.boolean(v.Operand, precNot)
		})
	case *ast.Property, *ast.ObjectAccess:
		return r.parenthesized(precCompare, parent, func() error {
			if err := r.path(v); err != nil {
				return err
			}
			r.sb.WriteString(" = true")
			return nil
		})
	case *ast.Function:
		return r.function(v)
	case *ast.Constant:
		if b, ok := v.Value.(bool); ok {
			r.keyword(b)
			return nil
		}
		return &UnsupportedExprError{Construct: "non-boolean constant in predicate position"}
	case *ast.CollectionAccess:
		return &UnsupportedExprError{Construct: "collection access in predicate position"}
	default:
		return &UnsupportedExprError{Construct: fmt.Sprintf("%T in predicate position", e)}
	}
}

func (r *renderer) logical(b *ast.Binary, parent int) error {
	level := precAnd
	word := " AND "
	if b.Op == ast.OpOr {
		level = precOr
		word = " OR "
	}
	return r.parenthesized(level, parent, func() error {
		if err := r.boolean(b.Left, level); err != nil {
			return err
		}
		r.sb.WriteString(word)
		return r.boolean(b.Right, level)
	})
}

func (r *renderer) comparison(b *ast.Binary, parent int) error {
	return r.parenthesized(precCompare, parent, func() error {
		if c, ok := b.Right.(*ast.Constant); ok && c.Value == nil {
			switch b.Op {
			case ast.OpEq:
				if err := r.path(b.Left); err != nil {
					return err
				}
				r.sb.WriteString(" IS NULL")
				return nil
			case ast.OpNe:
				if err := r.path(b.Left); err != nil {
					return err
				}
				r.sb.WriteString(" IS NOT NULL")
				return nil
			default:
				return &UnsupportedExprError{Construct: "null operand under an ordering comparison"}
			}
		}
		if err := r.value(b.Left); err != nil {
			return err
		}
		r.sb.WriteByte(' ')
		r.sb.WriteString(b.Op.String())
		r.sb.WriteByte(' ')
		return r.value(b.Right)
	})
}

func (r *renderer) function(f *ast.Function) error {
	arity, ok := renderFuncs[f.Name]
	if !ok {
		return &UnsupportedExprError{Construct: fmt.Sprintf("function %q", f.Name)}
	}
	if len(f.Args) != arity {
		return &UnsupportedExprError{Construct: fmt.Sprintf("function %q with %d arguments", f.Name, len(f.Args))}
	}
	r.sb.WriteString(f.Name)
	r.sb.WriteByte('(')
	for i, a := range f.Args {
		if i > 0 {
			r.sb.WriteString(", ")
		}
		if err := r.value(a); err != nil {
			return err
		}
	}
	r.sb.WriteByte(')')
	return nil
}

func (r *renderer) parenthesized(level, parent int, body func() error) error {
	needs := level < parent
	if needs {
		r.sb.WriteByte('(')
	}
	if err := body(); err != nil {
		return err
	}
	if needs {
		r.sb.WriteByte(')')
	}
	return nil
}

// value renders an operand: an attribute path or a constant.
func (r *renderer) value(e ast.Expr) error {
	switch v := e.(type) {
	case *ast.Property, *ast.ObjectAccess:
		return r.path(v)
	case *ast.Constant:
		return r.constant(v)
	case *ast.CollectionAccess:
		return &UnsupportedExprError{Construct: "collection access as a comparison operand"}
	default:
		return &UnsupportedExprError{Construct: fmt.Sprintf("%T as a comparison operand", e)}
	}
}

// path renders an attribute access chain.
func (r *renderer) path(e ast.Expr) error {
	switch v := e.(type) {
	case *ast.Property:
		r.ident(v.Name)
		return nil
	case *ast.ObjectAccess:
		if err := r.path(v.Parent); err != nil {
			return err
		}
		r.sb.WriteByte('.')
		r.ident(v.Attribute)
		return nil
	case *ast.CollectionAccess:
		if v.Parent != nil {
			if err := r.path(v.Parent); err != nil {
				return err
			}
			r.sb.WriteByte('.')
		}
		r.ident(v.Attribute)
		return nil
	default:
		return &UnsupportedExprError{Construct: fmt.Sprintf("%T as an attribute path", e)}
	}
}

func (r *renderer) constant(c *ast.Constant) error {
	if c.Value == nil {
		r.sb.WriteString("NULL")
		return nil
	}
	// Booleans always render as keywords, matching the bare-property
	// rewrite; everything else becomes a parameter unless inlining.
	if b, ok := c.Value.(bool); ok {
		r.keyword(b)
		return nil
	}
	av, err := r.encode(c)
	if err != nil {
		return err
	}
	if !r.inline {
		r.sb.WriteByte('?')
		r.params = append(r.params, av)
		return nil
	}
	return r.literal(av)
}

func (r *renderer) encode(c *ast.Constant) (types.AttributeValue, error) {
	t := c.Of
	if t == nil {
		t = reflect.TypeOf(c.Value)
	}
	m, err := r.types.Resolve(t)
	if err != nil {
		return nil, fmt.Errorf("partiqlgen: encode constant: %w", err)
	}
	return m.Encode(reflect.ValueOf(c.Value))
}

// literal writes an attribute value as query text. Strings double embedded
// quotes; numbers are already in invariant form.
func (r *renderer) literal(av types.AttributeValue) error {
	switch v := av.(type) {
	case *types.AttributeValueMemberS:
		r.sb.WriteByte('\'')
		r.sb.WriteString(strings.ReplaceAll(v.Value, "'", "''"))
		r.sb.WriteByte('\'')
		return nil
	case *types.AttributeValueMemberN:
		r.sb.WriteString(v.Value)
		return nil
	case *types.AttributeValueMemberBOOL:
		r.keyword(v.Value)
		return nil
	case *types.AttributeValueMemberNULL:
		r.sb.WriteString("NULL")
		return nil
	default:
		return &UnsupportedExprError{Construct: fmt.Sprintf("inline %s literal", wire.TagName(av))}
	}
}

func (r *renderer) keyword(b bool) {
	if b {
		r.sb.WriteString("true")
	} else {
		r.sb.WriteString("false")
	}
}

// ident writes a double-quoted identifier, doubling embedded quotes.
func (r *renderer) ident(name string) {
	r.sb.WriteByte('"')
	r.sb.WriteString(strings.ReplaceAll(name, `"`, `""`))
	r.sb.WriteByte('"')
}
