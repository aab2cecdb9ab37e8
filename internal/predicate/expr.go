package predicate

import (
	"hash/fnv"
	"sort"
	"strings"
)

// Expr is a boolean expression over predicates.
//
// This is a sealed interface - only types in this package implement it.
//
// Expr types:
//   - Term: a single predicate
//   - AndExpr / OrExpr: conjunction / disjunction of children
//   - NotExpr: negation
//   - Const: True or False
type Expr interface {
	String() string
	exprNode() // Marker method - seals interface to this package
}

// Term wraps a single predicate.
type Term struct {
	P Predicate
}

func (Term) exprNode() {}

func (t Term) String() string { return t.P.String() }

// AndExpr is true when every child is true.
type AndExpr struct {
	Children []Expr
}

func (AndExpr) exprNode() {}

func (a AndExpr) String() string { return joinExprs(a.Children, " AND ") }

// OrExpr is true when any child is true.
type OrExpr struct {
	Children []Expr
}

func (OrExpr) exprNode() {}

func (o OrExpr) String() string { return joinExprs(o.Children, " OR ") }

// NotExpr negates its child.
type NotExpr struct {
	Child Expr
}

func (NotExpr) exprNode() {}

func (n NotExpr) String() string { return "NOT " + wrap(n.Child) }

// Const is a constant expression.
type Const bool

func (Const) exprNode() {}

func (c Const) String() string {
	if c {
		return "TRUE"
	}
	return "FALSE"
}

var (
	// True matches every live item.
	True Expr = Const(true)
	// False matches nothing.
	False Expr = Const(false)
)

// Of wraps a predicate into an expression.
func Of(p Predicate) Expr {
	return Term{P: p}
}

// And builds the conjunction of exprs.
func And(exprs ...Expr) Expr {
	switch len(exprs) {
	case 0:
		return True
	case 1:
		return exprs[0]
	}
	return AndExpr{Children: append([]Expr(nil), exprs...)}
}

// Or builds the disjunction of exprs.
func Or(exprs ...Expr) Expr {
	switch len(exprs) {
	case 0:
		return False
	case 1:
		return exprs[0]
	}
	return OrExpr{Children: append([]Expr(nil), exprs...)}
}

// Not negates e.
func Not(e Expr) Expr {
	return NotExpr{Child: e}
}

// Normalize returns the canonical form of e.
//
// Rules, applied bottom-up:
//   - nested And/Or are flattened into their parent
//   - True/False children are folded away (And with False is False, ...)
//   - Not(Not(x)) is x, Not(True) is False
//   - duplicate children are dropped and children are sorted by Key
//   - an And/Or with a single child is that child
func Normalize(e Expr) Expr {
	switch x := e.(type) {
	case Term, Const:
		return x
	case NotExpr:
		child := Normalize(x.Child)
		switch c := child.(type) {
		case Const:
			return !c
		case NotExpr:
			return c.Child
		}
		return NotExpr{Child: child}
	case AndExpr:
		return normalizeJunction(x.Children, true)
	case OrExpr:
		return normalizeJunction(x.Children, false)
	}
	return e
}

// normalizeJunction normalizes the children of an And (isAnd) or Or.
// The identity element of And is True and its absorbing element False;
// Or is the dual.
func normalizeJunction(children []Expr, isAnd bool) Expr {
	identity, absorbing := Const(isAnd), Const(!isAnd)

	byKey := make(map[string]Expr)
	var add func(Expr) bool
	add = func(e Expr) bool {
		switch x := e.(type) {
		case Const:
			return x != absorbing
		case AndExpr:
			if isAnd {
				for _, c := range x.Children {
					if !add(c) {
						return false
					}
				}
				return true
			}
		case OrExpr:
			if !isAnd {
				for _, c := range x.Children {
					if !add(c) {
						return false
					}
				}
				return true
			}
		}
		byKey[Key(e)] = e
		return true
	}

	for _, c := range children {
		if !add(Normalize(c)) {
			return absorbing
		}
	}

	switch len(byKey) {
	case 0:
		return identity
	case 1:
		for _, e := range byKey {
			return e
		}
	}

	keys := make([]string, 0, len(byKey))
	for k := range byKey {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]Expr, len(keys))
	for i, k := range keys {
		out[i] = byKey[k]
	}
	if isAnd {
		return AndExpr{Children: out}
	}
	return OrExpr{Children: out}
}

// Key returns the structural identity of e. It is not normalized: use
// Key(Normalize(e)) to compare expressions semantically.
func Key(e Expr) string {
	switch x := e.(type) {
	case Term:
		return x.P.Key()
	case Const:
		if x {
			return "true"
		}
		return "false"
	case NotExpr:
		return "not(" + Key(x.Child) + ")"
	case AndExpr:
		return "and(" + joinKeys(x.Children) + ")"
	case OrExpr:
		return "or(" + joinKeys(x.Children) + ")"
	}
	return "?"
}

// Equal reports whether a and b have the same normalized tree.
func Equal(a, b Expr) bool {
	return Key(Normalize(a)) == Key(Normalize(b))
}

// Hash returns a hash of the normalized tree, consistent with Equal.
func Hash(e Expr) uint64 {
	h := fnv.New64a()
	h.Write([]byte(Key(Normalize(e))))
	return h.Sum64()
}

func joinKeys(children []Expr) string {
	keys := make([]string, len(children))
	for i, c := range children {
		keys[i] = Key(c)
	}
	return strings.Join(keys, ",")
}

func joinExprs(children []Expr, sep string) string {
	parts := make([]string, len(children))
	for i, c := range children {
		parts[i] = wrap(c)
	}
	return strings.Join(parts, sep)
}

func wrap(e Expr) string {
	switch e.(type) {
	case AndExpr, OrExpr:
		return "(" + e.String() + ")"
	}
	return e.String()
}
