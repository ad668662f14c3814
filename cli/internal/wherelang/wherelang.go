// Package wherelang parses the command-line filter language into a query
// expression tree.
//
// The language mirrors the generator's capabilities and nothing more:
// comparisons, and/or/not, parentheses, the store's predicate functions
// and null checks.
//
//	status = 'open' and total > 100
//	begins_with(pk, 'order#') or note = null
//	not archived
package wherelang

import (
	"fmt"
	"strings"

	"github.com/alecthomas/participle/v2"
	"github.com/alecthomas/participle/v2/lexer"
	"github.com/spf13/cast"

	"github.com/partiqlabs/partiq/query/ast"
)

var filterLexer = lexer.MustSimple([]lexer.SimpleRule{
	{Name: "Op", Pattern: `<=|>=|<>|!=|=|<|>`},
	{Name: "LParen", Pattern: `\(`},
	{Name: "RParen", Pattern: `\)`},
	{Name: "Comma", Pattern: `,`},
	{Name: "Dot", Pattern: `\.`},
	{Name: "String", Pattern: `'(?:''|[^'])*'`},
	{Name: "Number", Pattern: `-?\d+(?:\.\d+)?`},
	{Name: "Ident", Pattern: `[\p{L}_][\p{L}\p{N}_]*`},
	{Name: "Whitespace", Pattern: `[ \t\r\n]+`},
})

type expression struct {
	First *andExpr   `parser:"@@"`
	Rest  []*andExpr `parser:"( (\"or\" | \"OR\") @@ )*"`
}

type andExpr struct {
	First *unaryExpr   `parser:"@@"`
	Rest  []*unaryExpr `parser:"( (\"and\" | \"AND\") @@ )*"`
}

type unaryExpr struct {
	Not     *unaryExpr `parser:"  (\"not\" | \"NOT\") @@"`
	Primary *primary   `parser:"| @@"`
}

type primary struct {
	Group   *expression `parser:"  \"(\" @@ \")\""`
	Call    *call       `parser:"| @@"`
	Compare *compare    `parser:"| @@"`
}

type call struct {
	Name string     `parser:"@Ident"`
	Args []*operand `parser:"\"(\" @@ ( \",\" @@ )* \")\""`
}

type compare struct {
	Left  *path    `parser:"@@"`
	Op    string   `parser:"( @Op"`
	Right *operand `parser:"  @@ )?"`
}

type path struct {
	Parts []string `parser:"@Ident ( \".\" @Ident )*"`
}

// Literals come first so that true/false/null are not mistaken for
// attribute names.
type operand struct {
	Lit  *literal `parser:"  @@"`
	Path *path    `parser:"| @@"`
}

type literal struct {
	Str   *string `parser:"  @String"`
	Num   *string `parser:"| @Number"`
	True  bool    `parser:"| @\"true\""`
	False bool    `parser:"| @\"false\""`
	Null  bool    `parser:"| @\"null\""`
}

var filterParser = participle.MustBuild[expression](
	participle.Lexer(filterLexer),
	participle.Elide("Whitespace"),
	participle.UseLookahead(4),
)

// Parse parses a filter expression.
func Parse(input string) (ast.Expr, error) {
	parsed, err := filterParser.ParseString("", input)
	if err != nil {
		return nil, fmt.Errorf("wherelang: %w", err)
	}
	return parsed.expr()
}

func (e *expression) expr() (ast.Expr, error) {
	out, err := e.First.expr()
	if err != nil {
		return nil, err
	}
	for _, a := range e.Rest {
		right, err := a.expr()
		if err != nil {
			return nil, err
		}
		out = ast.Or(out, right)
	}
	return out, nil
}

func (a *andExpr) expr() (ast.Expr, error) {
	out, err := a.First.expr()
	if err != nil {
		return nil, err
	}
	for _, u := range a.Rest {
		right, err := u.expr()
		if err != nil {
			return nil, err
		}
		out = ast.And(out, right)
	}
	return out, nil
}

func (u *unaryExpr) expr() (ast.Expr, error) {
	if u.Not != nil {
		inner, err := u.Not.expr()
		if err != nil {
			return nil, err
		}
		return &ast.Not{Operand: inner}, nil
	}
	return u.Primary.expr()
}

func (p *primary) expr() (ast.Expr, error) {
	switch {
	case p.Group != nil:
		return p.Group.expr()
	case p.Call != nil:
		return p.Call.expr()
	default:
		return p.Compare.expr()
	}
}

func (c *call) expr() (ast.Expr, error) {
	args := make([]ast.Expr, 0, len(c.Args))
	for _, a := range c.Args {
		e, err := a.expr()
		if err != nil {
			return nil, err
		}
		args = append(args, e)
	}
	return &ast.Function{Name: c.Name, Args: args}, nil
}

var ops = map[string]ast.Op{
	"=":  ast.OpEq,
	"!=": ast.OpNe,
	"<>": ast.OpNe,
	"<":  ast.OpLt,
	"<=": ast.OpLe,
	">":  ast.OpGt,
	">=": ast.OpGe,
}

func (c *compare) expr() (ast.Expr, error) {
	left := c.Left.expr()
	if c.Op == "" {
		// A bare attribute is a boolean test.
		return left, nil
	}
	op, ok := ops[c.Op]
	if !ok {
		return nil, fmt.Errorf("wherelang: unknown operator %q", c.Op)
	}
	right, err := c.Right.expr()
	if err != nil {
		return nil, err
	}
	return &ast.Binary{Op: op, Left: left, Right: right}, nil
}

func (p *path) expr() ast.Expr {
	var out ast.Expr = ast.Prop(p.Parts[0], nil)
	for _, part := range p.Parts[1:] {
		out = &ast.ObjectAccess{Parent: out, Attribute: part}
	}
	return out
}

func (o *operand) expr() (ast.Expr, error) {
	if o.Path != nil {
		return o.Path.expr(), nil
	}
	return o.Lit.expr()
}

func (l *literal) expr() (ast.Expr, error) {
	switch {
	case l.Str != nil:
		return ast.Const(unquote(*l.Str)), nil
	case l.Num != nil:
		if strings.ContainsAny(*l.Num, ".") {
			f, err := cast.ToFloat64E(*l.Num)
			if err != nil {
				return nil, fmt.Errorf("wherelang: bad number %q: %w", *l.Num, err)
			}
			return ast.Const(f), nil
		}
		n, err := cast.ToInt64E(*l.Num)
		if err != nil {
			return nil, fmt.Errorf("wherelang: bad number %q: %w", *l.Num, err)
		}
		return ast.Const(n), nil
	case l.True:
		return ast.Const(true), nil
	case l.False:
		return ast.Const(false), nil
	case l.Null:
		return ast.Const(nil), nil
	default:
		return nil, fmt.Errorf("wherelang: empty literal")
	}
}

// unquote strips the surrounding single quotes and collapses doubled
// quotes, the same convention the statement text uses.
func unquote(s string) string {
	s = s[1 : len(s)-1]
	return strings.ReplaceAll(s, "''", "'")
}
