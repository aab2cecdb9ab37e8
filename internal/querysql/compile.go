package querysql

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/roach88/itemsync/internal/item"
	"github.com/roach88/itemsync/internal/predicate"
	"github.com/roach88/itemsync/internal/store"
)

// ErrUnsupported is returned for expressions holding a predicate that has
// no SQL form, such as a Func or a resolving predicate.
var ErrUnsupported = errors.New("predicate has no SQL form")

// Canonical encodings of empty values. Only Null and empty collections are
// empty, and collections encode as {"k":<kind>,"v":[...]}.
const (
	nullValue        = `{"k":"null"}`
	emptyCollection  = `%"v":[]}`
	nothingSelection = `SELECT id FROM items WHERE 0`
	everySelection   = `SELECT id FROM items`
)

// SQLCompiler lowers predicate expressions to parameterized SQL over the
// store tables.
//
// Every compiled query returns the ids of the matching live items in
// ascending order. Values are always passed as parameters, never
// interpolated.
type SQLCompiler struct {
	params []any
}

// NewSQLCompiler creates a new SQLCompiler.
func NewSQLCompiler() *SQLCompiler {
	return &SQLCompiler{}
}

// Compile converts e to a query and its parameters.
func (c *SQLCompiler) Compile(e predicate.Expr) (string, []any, error) {
	if e == nil {
		return "", nil, fmt.Errorf("cannot compile nil expression")
	}
	c.params = nil

	set, err := c.compile(predicate.Normalize(e))
	if err != nil {
		return "", nil, err
	}
	sql := "SELECT m.id FROM (" + set + ") AS m" +
		" JOIN items AS i ON i.id = m.id" +
		" WHERE i.removed = 0" +
		" ORDER BY m.id ASC"
	return sql, c.params, nil
}

// compile returns a compound select producing a single id column.
func (c *SQLCompiler) compile(e predicate.Expr) (string, error) {
	switch x := e.(type) {
	case predicate.Const:
		if x {
			return everySelection, nil
		}
		return nothingSelection, nil
	case predicate.Term:
		return c.compileTerm(x.P)
	case predicate.AndExpr:
		return c.compileJunction(x.Children, " INTERSECT ")
	case predicate.OrExpr:
		return c.compileJunction(x.Children, " UNION ")
	case predicate.NotExpr:
		child, err := c.compile(x.Child)
		if err != nil {
			return "", err
		}
		return everySelection + " EXCEPT SELECT id FROM (" + child + ")", nil
	default:
		return "", fmt.Errorf("unsupported expression type: %T", e)
	}
}

func (c *SQLCompiler) compileJunction(children []predicate.Expr, op string) (string, error) {
	if len(children) == 0 {
		if op == " INTERSECT " {
			return everySelection, nil
		}
		return nothingSelection, nil
	}
	parts := make([]string, len(children))
	for i, child := range children {
		sql, err := c.compile(child)
		if err != nil {
			return "", err
		}
		parts[i] = "SELECT id FROM (" + sql + ")"
	}
	return strings.Join(parts, op), nil
}

func (c *SQLCompiler) compileTerm(p predicate.Predicate) (string, error) {
	switch pred := p.(type) {
	case predicate.Comparison:
		return c.compileComparison(pred)
	case predicate.Presence:
		c.params = append(c.params, string(pred.Present()), nullValue, emptyCollection)
		return "SELECT item_id AS id FROM item_values" +
			" WHERE slot = 0 AND attribute = ? AND value <> ? AND value NOT LIKE ?", nil
	case predicate.Membership:
		members := pred.Members()
		if len(members) == 0 {
			return nothingSelection, nil
		}
		for _, id := range members {
			c.params = append(c.params, int64(id))
		}
		return "SELECT id FROM items WHERE id IN (" + placeholders(len(members)) + ")", nil
	default:
		return "", fmt.Errorf("%w: %s", ErrUnsupported, p.String())
	}
}

// compileComparison matches the stored canonical encoding, which is
// identical for equal values.
func (c *SQLCompiler) compileComparison(p predicate.Comparison) (string, error) {
	attr, values := p.Compared()
	if len(values) == 0 {
		return nothingSelection, nil
	}
	c.params = append(c.params, string(attr))
	for _, v := range values {
		data, err := item.MarshalCanonical(v)
		if err != nil {
			return "", fmt.Errorf("convert value: %w", err)
		}
		c.params = append(c.params, string(data))
	}
	return "SELECT item_id AS id FROM item_values" +
		" WHERE slot = 0 AND attribute = ? AND value IN (" + placeholders(len(values)) + ")", nil
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}

// Select evaluates e directly against the tables of s.
func Select(ctx context.Context, s *store.Store, e predicate.Expr) ([]item.ID, error) {
	sql, params, err := NewSQLCompiler().Compile(e)
	if err != nil {
		return nil, err
	}
	return s.SelectIDs(ctx, sql, params...)
}
