// Package predicate provides boolean expressions over items.
//
// A Predicate is a test over (item, reader). Predicates compose through
// And, Or and Not into an Expr tree which is either evaluated item by item
// or, where a predicate supports it, lowered into a bulk lookup against the
// store's value index.
//
// CAPABILITIES:
//
// A predicate implements one or more of:
//   - Evaluator: Accept(reader, id) tests a single item
//   - Lowerer: Lower(reader) returns the matching items in bulk
//   - Resolver: Resolve(reader, sub) rewrites the predicate into an
//     expression of directly evaluable predicates
//
// RESOLUTION:
//
// Resolving predicates depend on current data (ReferredBy turns into the set
// of items actually referenced). Resolution happens before evaluation and is
// applied below negations: Not(P) resolves to Not(Resolve(P)). A resolved
// expression is only valid for the data it was computed from; callers that
// keep one pass a Subscription, which is invalidated by commits touching the
// attributes the resolution read.
//
// EQUALITY:
//
// Two expressions are equal iff their normalized trees are equal.
// Normalization flattens nested And/Or, folds constants, removes double
// negation, drops duplicate children and orders children by key, so Key of
// a normalized expression can serve as a cache key.
package predicate
