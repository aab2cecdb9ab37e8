// Package querysql lowers predicate expressions to SQL over the store
// tables.
//
// Only trunk values are queried. Comparisons match the canonical value
// encoding written by the store, so a compiled query selects exactly what
// predicate.Evaluate selects on the current snapshot. Predicates that need
// Go code to decide (Func, Contains, resolving predicates) have no SQL form
// and fail with ErrUnsupported.
package querysql
