package predicate

import (
	"fmt"
	"sort"

	"github.com/roach88/itemsync/internal/item"
	"github.com/roach88/itemsync/internal/store"
)

// Resolve rewrites every resolving predicate in e into its resolved form,
// recursively, and returns the normalized result. Negations are kept above
// the resolved form: Not(P) becomes Not(Resolve(P)).
//
// sub (may be nil) records every attribute the resolution read.
func Resolve(e Expr, r store.Reader, sub *Subscription) (Expr, error) {
	resolved, err := resolve(e, r, sub)
	if err != nil {
		return nil, err
	}
	return Normalize(resolved), nil
}

func resolve(e Expr, r store.Reader, sub *Subscription) (Expr, error) {
	switch x := e.(type) {
	case Const:
		return x, nil
	case Term:
		res, ok := x.P.(Resolver)
		if !ok {
			sub.watchPredicate(x.P)
			return x, nil
		}
		out, err := res.Resolve(r, sub)
		if err != nil {
			return nil, err
		}
		// A resolved form may itself contain resolving predicates.
		return resolve(out, r, sub)
	case NotExpr:
		child, err := resolve(x.Child, r, sub)
		if err != nil {
			return nil, err
		}
		return NotExpr{Child: child}, nil
	case AndExpr:
		children, err := resolveAll(x.Children, r, sub)
		if err != nil {
			return nil, err
		}
		return AndExpr{Children: children}, nil
	case OrExpr:
		children, err := resolveAll(x.Children, r, sub)
		if err != nil {
			return nil, err
		}
		return OrExpr{Children: children}, nil
	}
	return nil, fmt.Errorf("unknown expression type %T", e)
}

func resolveAll(exprs []Expr, r store.Reader, sub *Subscription) ([]Expr, error) {
	out := make([]Expr, len(exprs))
	for i, e := range exprs {
		res, err := resolve(e, r, sub)
		if err != nil {
			return nil, err
		}
		out[i] = res
	}
	return out, nil
}

// Evaluate resolves e and returns the live items matching it, sorted.
func Evaluate(e Expr, r store.Reader) ([]item.ID, error) {
	return evaluate(e, r, nil)
}

// Matches reports whether the live item id matches e.
func Matches(e Expr, r store.Reader, id item.ID) (bool, error) {
	if !r.Exists(id) {
		return false, nil
	}
	resolved, err := Resolve(e, r, nil)
	if err != nil {
		return false, err
	}
	got, err := eval(resolved, r, []item.ID{id})
	if err != nil {
		return false, err
	}
	return len(got) == 1, nil
}

// EvaluateResolved evaluates an already resolved expression.
func EvaluateResolved(resolved Expr, r store.Reader) ([]item.ID, error) {
	return eval(resolved, r, r.Items())
}

func evaluate(e Expr, r store.Reader, sub *Subscription) ([]item.ID, error) {
	resolved, err := Resolve(e, r, sub)
	if err != nil {
		return nil, err
	}
	return eval(resolved, r, r.Items())
}

// eval returns the subset of universe (sorted, live) matching e.
// Conjunctions narrow the universe child by child, so a negation inside an
// And only ranges over the items its siblings admitted.
func eval(e Expr, r store.Reader, universe []item.ID) ([]item.ID, error) {
	if len(universe) == 0 {
		return nil, nil
	}
	switch x := e.(type) {
	case Const:
		if x {
			return universe, nil
		}
		return nil, nil
	case Term:
		return evalTerm(x.P, r, universe)
	case NotExpr:
		matched, err := eval(x.Child, r, universe)
		if err != nil {
			return nil, err
		}
		return minus(universe, matched), nil
	case AndExpr:
		candidates := universe
		for _, c := range orderForAnd(x.Children) {
			var err error
			candidates, err = eval(c, r, candidates)
			if err != nil {
				return nil, err
			}
			if len(candidates) == 0 {
				break
			}
		}
		return candidates, nil
	case OrExpr:
		var out []item.ID
		for _, c := range x.Children {
			matched, err := eval(c, r, universe)
			if err != nil {
				return nil, err
			}
			out = union(out, matched)
		}
		return out, nil
	}
	return nil, fmt.Errorf("unknown expression type %T", e)
}

func evalTerm(p Predicate, r store.Reader, universe []item.ID) ([]item.ID, error) {
	if l, ok := p.(Lowerer); ok {
		if ids, ok := l.Lower(r); ok {
			return intersect(universe, ids), nil
		}
	}
	if ev, ok := p.(Evaluator); ok {
		return filter(r, universe, ev.Accept), nil
	}
	if _, ok := p.(Resolver); ok {
		return nil, fmt.Errorf("predicate %s must be resolved before evaluation", p.Key())
	}
	return nil, fmt.Errorf("predicate %s can neither be lowered nor evaluated", p.Key())
}

// orderForAnd puts lowerable terms first so the universe shrinks through
// index lookups before item-by-item tests run.
func orderForAnd(children []Expr) []Expr {
	out := append([]Expr(nil), children...)
	sort.SliceStable(out, func(i, j int) bool {
		return rank(out[i]) < rank(out[j])
	})
	return out
}

func rank(e Expr) int {
	switch x := e.(type) {
	case Term:
		if _, ok := x.P.(Lowerer); ok {
			return 0
		}
		return 1
	case NotExpr:
		return 3
	}
	return 2
}

func sortUnique(ids []item.ID) []item.ID {
	out := append([]item.ID(nil), ids...)
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	w := 0
	for i, id := range out {
		if i > 0 && id == out[w-1] {
			continue
		}
		out[w] = id
		w++
	}
	return out[:w]
}

// union merges two sorted sets.
func union(a, b []item.ID) []item.ID {
	out := make([]item.ID, 0, len(a)+len(b))
	i, j := 0, 0
	for i < len(a) && j < len(b) {
		switch {
		case a[i] < b[j]:
			out = append(out, a[i])
			i++
		case a[i] > b[j]:
			out = append(out, b[j])
			j++
		default:
			out = append(out, a[i])
			i++
			j++
		}
	}
	out = append(out, a[i:]...)
	return append(out, b[j:]...)
}

// intersect keeps the elements of sorted a present in sorted b.
func intersect(a, b []item.ID) []item.ID {
	out := make([]item.ID, 0, min(len(a), len(b)))
	i, j := 0, 0
	for i < len(a) && j < len(b) {
		switch {
		case a[i] < b[j]:
			i++
		case a[i] > b[j]:
			j++
		default:
			out = append(out, a[i])
			i++
			j++
		}
	}
	return out
}

// minus keeps the elements of sorted a absent from sorted b.
func minus(a, b []item.ID) []item.ID {
	out := make([]item.ID, 0, len(a))
	j := 0
	for _, id := range a {
		for j < len(b) && b[j] < id {
			j++
		}
		if j < len(b) && b[j] == id {
			continue
		}
		out = append(out, id)
	}
	return out
}
