// Package ast defines the query expression tree.
//
// Expr is a closed union: every variant lives in this package and every
// consumer switches over the full set, so adding a variant is a
// compile-time, all-sites-updated change.
package ast

import "reflect"

// Op is a binary operator.
type Op int

const (
	OpEq Op = iota
	OpNe
	OpLt
	OpLe
	OpGt
	OpGe
	OpAnd
	OpOr
)

// String returns the operator's query-language token.
func (o Op) String() string {
	switch o {
	case OpEq:
		return "="
	case OpNe:
		return "<>"
	case OpLt:
		return "<"
	case OpLe:
		return "<="
	case OpGt:
		return ">"
	case OpGe:
		return ">="
	case OpAnd:
		return "AND"
	case OpOr:
		return "OR"
	default:
		return "?"
	}
}

// Expr is one node of the expression tree.
type Expr interface {
	exprNode()
	// ResultType is the static Go shape of the expression's value, or nil
	// when unknown (untyped constants from the DSL).
	ResultType() reflect.Type
}

// Constant is a literal value.
type Constant struct {
	Value any
	Of    reflect.Type
}

// Property is an access of a top-level attribute.
type Property struct {
	Name string
	Of   reflect.Type
}

// ObjectAccess reads an attribute of an embedded object reached through
// Parent. Parent is a Property or another ObjectAccess.
type ObjectAccess struct {
	Parent    Expr
	Attribute string
	Of        reflect.Type
}

// CollectionAccess reads an embedded collection attribute reached through
// Parent. Parent may be nil for a top-level collection.
type CollectionAccess struct {
	Parent    Expr
	Attribute string
	Elem      reflect.Type
}

// Binary applies Op to two operands.
type Binary struct {
	Op    Op
	Left  Expr
	Right Expr
}

// Not negates its operand.
type Not struct {
	Operand Expr
}

// Function is a call to one of the store's predicate functions.
type Function struct {
	Name string
	Args []Expr
}

func (*Constant) exprNode()         {}
func (*Property) exprNode()         {}
func (*ObjectAccess) exprNode()     {}
func (*CollectionAccess) exprNode() {}
func (*Binary) exprNode()           {}
func (*Not) exprNode()              {}
func (*Function) exprNode()         {}

var boolType = reflect.TypeOf(false)

func (c *Constant) ResultType() reflect.Type         { return c.Of }
func (p *Property) ResultType() reflect.Type         { return p.Of }
func (o *ObjectAccess) ResultType() reflect.Type     { return o.Of }
func (c *CollectionAccess) ResultType() reflect.Type { return c.Elem }
func (b *Binary) ResultType() reflect.Type           { return boolType }
func (n *Not) ResultType() reflect.Type              { return boolType }
func (f *Function) ResultType() reflect.Type         { return boolType }

// Const builds a typed constant from a Go value. A nil value yields an
// untyped null constant.
func Const(v any) *Constant {
	if v == nil {
		return &Constant{}
	}
	return &Constant{Value: v, Of: reflect.TypeOf(v)}
}

// Prop builds a property access.
func Prop(name string, of reflect.Type) *Property {
	return &Property{Name: name, Of: of}
}

// Eq builds an equality comparison.
func Eq(l, r Expr) *Binary { return &Binary{Op: OpEq, Left: l, Right: r} }

// Ne builds an inequality comparison.
func Ne(l, r Expr) *Binary { return &Binary{Op: OpNe, Left: l, Right: r} }

// Lt builds a less-than comparison.
func Lt(l, r Expr) *Binary { return &Binary{Op: OpLt, Left: l, Right: r} }

// Le builds a less-or-equal comparison.
func Le(l, r Expr) *Binary { return &Binary{Op: OpLe, Left: l, Right: r} }

// Gt builds a greater-than comparison.
func Gt(l, r Expr) *Binary { return &Binary{Op: OpGt, Left: l, Right: r} }

// Ge builds a greater-or-equal comparison.
func Ge(l, r Expr) *Binary { return &Binary{Op: OpGe, Left: l, Right: r} }

// And folds operands left to right under OpAnd.
func And(exprs ...Expr) Expr { return fold(OpAnd, exprs) }

// Or folds operands left to right under OpOr.
func Or(exprs ...Expr) Expr { return fold(OpOr, exprs) }

func fold(op Op, exprs []Expr) Expr {
	switch len(exprs) {
	case 0:
		return nil
	case 1:
		return exprs[0]
	}
	out := exprs[0]
	for _, e := range exprs[1:] {
		out = &Binary{Op: op, Left: out, Right: e}
	}
	return out
}

// Equal reports structural equality of two expressions.
func Equal(a, b Expr) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	switch av := a.(type) {
	case *Constant:
		bv, ok := b.(*Constant)
		return ok && av.Of == bv.Of && av.Value == bv.Value
	case *Property:
		bv, ok := b.(*Property)
		return ok && av.Name == bv.Name
	case *ObjectAccess:
		bv, ok := b.(*ObjectAccess)
		return ok && av.Attribute == bv.Attribute && Equal(av.Parent, bv.Parent)
	case *CollectionAccess:
		bv, ok := b.(*CollectionAccess)
		return ok && av.Attribute == bv.Attribute && Equal(av.Parent, bv.Parent)
	case *Binary:
		bv, ok := b.(*Binary)
		return ok && av.Op == bv.Op && Equal(av.Left, bv.Left) && Equal(av.Right, bv.Right)
	case *Not:
		bv, ok := b.(*Not)
		return ok && Equal(av.Operand, bv.Operand)
	case *Function:
		bv, ok := b.(*Function)
		if !ok || av.Name != bv.Name || len(av.Args) != len(bv.Args) {
			return false
		}
		for i := range av.Args {
			if !Equal(av.Args[i], bv.Args[i]) {
				return false
			}
		}
		return true
	default:
		return false
	}
}

// Walk visits e and its children depth-first until fn returns false.
func Walk(e Expr, fn func(Expr) bool) {
	if e == nil || !fn(e) {
		return
	}
	switch v := e.(type) {
	case *Constant, *Property:
	case *ObjectAccess:
		Walk(v.Parent, fn)
	case *CollectionAccess:
		Walk(v.Parent, fn)
	case *Binary:
		Walk(v.Left, fn)
		Walk(v.Right, fn)
	case *Not:
		Walk(v.Operand, fn)
	case *Function:
		for _, a := range v.Args {
			Walk(a, fn)
		}
	}
}
