package predicate

import (
	"github.com/roach88/itemsync/internal/item"
	"github.com/roach88/itemsync/internal/store"
)

// Predicate is a boolean test over items.
//
// Key must identify the predicate: two predicates with the same key select
// the same items on every reader. Implementations also implement at least
// one of Evaluator, Lowerer or Resolver.
type Predicate interface {
	Key() string
	String() string
}

// Evaluator tests one item at a time.
type Evaluator interface {
	Predicate
	Accept(r store.Reader, id item.ID) bool
}

// Lowerer selects matching items in bulk. ok is false when the predicate
// cannot be lowered for these arguments; the caller falls back to Accept.
// Returned items are sorted and live.
type Lowerer interface {
	Predicate
	Lower(r store.Reader) (ids []item.ID, ok bool)
}

// Resolver rewrites itself into a directly evaluable expression computed
// from current data. It records what it read in sub (which may be nil).
type Resolver interface {
	Predicate
	Resolve(r store.Reader, sub *Subscription) (Expr, error)
}

// Dependent reports the attributes a predicate reads.
// Predicates that do not implement it are assumed to read anything.
type Dependent interface {
	Attrs() []item.AttrID
}

// Comparison is implemented by predicates that match items whose trunk
// value of an attribute equals one of a fixed list of values.
type Comparison interface {
	Predicate
	Compared() (item.AttrID, []item.Value)
}

// Presence is implemented by predicates that match items holding a
// non-empty trunk value for an attribute.
type Presence interface {
	Predicate
	Present() item.AttrID
}

// Membership is implemented by predicates that match a fixed set of items.
type Membership interface {
	Predicate
	Members() []item.ID
}
