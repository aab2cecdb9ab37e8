package schema

import (
	_ "embed"
	"fmt"
	"sort"
	"strings"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/errors"
	"cuelang.org/go/cue/token"

	"github.com/roach88/itemsync/internal/item"
	"github.com/roach88/itemsync/internal/merge"
	"github.com/roach88/itemsync/internal/store"
)

//go:embed schema.cue
var definitions string

// Merge rule names.
const (
	RuleLongSets      = "longSets"
	RuleStringSets    = "stringSets"
	RuleUniteSets     = "uniteSets"
	RuleConflictGroup = "conflictGroup"
	RuleCopyRemote    = "copyRemote"
	RuleDiscardAll    = "discardAll"
)

// Rule is one merge rule of a type.
type Rule struct {
	Strategy string
	Attrs    []item.AttrID
	Keep     item.AttrID
}

// Type is a declared item type.
type Type struct {
	Name     string
	Doc      string
	Rules    []Rule
	Strategy merge.AutoMerge
}

// Schema is a compiled schema.
type Schema struct {
	Registry *item.Registry
	Types    map[string]*Type
}

// TypeIdentity returns the identity of the item representing type name.
func TypeIdentity(name string) string {
	return "type:" + name
}

// TypeNames returns the declared type names, sorted.
func (s *Schema) TypeNames() []string {
	names := make([]string, 0, len(s.Types))
	for n := range s.Types {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Install materializes one item per declared type and returns their IDs.
func (s *Schema) Install(tx *store.Tx) map[string]item.ID {
	ids := make(map[string]item.ID, len(s.Types))
	for _, name := range s.TypeNames() {
		ids[name] = tx.Materialize(TypeIdentity(name))
	}
	return ids
}

// TypeOf returns the declared type of id, read through its sys:type item.
func (s *Schema) TypeOf(r store.Reader, id item.ID) (*Type, bool) {
	v, ok := r.Value(id, item.TypeAttr.ID)
	if !ok {
		return nil, false
	}
	typeItem, ok := v.(item.Long)
	if !ok {
		return nil, false
	}
	v, ok = r.Value(item.ID(typeItem), item.IdentityAttr.ID)
	if !ok {
		return nil, false
	}
	ident, ok := v.(item.String)
	if !ok {
		return nil, false
	}
	name, ok := strings.CutPrefix(string(ident), "type:")
	if !ok {
		return nil, false
	}
	t, ok := s.Types[name]
	return t, ok
}

// For returns the merge strategy of the type of id, or merge.None.
func (s *Schema) For(r store.Reader, id item.ID) merge.AutoMerge {
	if t, ok := s.TypeOf(r, id); ok {
		return t.Strategy
	}
	return merge.None
}

// Compile builds a Schema from a CUE value. The value is first unified
// with the #Schema definition, so unknown fields and bad kinds fail early.
func Compile(v cue.Value) (*Schema, error) {
	if err := v.Err(); err != nil {
		return nil, formatCUEError(err)
	}
	defs := v.Context().CompileString(definitions, cue.Filename("schema.cue"))
	if err := defs.Err(); err != nil {
		return nil, fmt.Errorf("compile definitions: %w", err)
	}
	if err := checkStrategies(v); err != nil {
		return nil, err
	}
	v = defs.LookupPath(cue.ParsePath("#Schema")).Unify(v)
	if err := v.Validate(cue.Concrete(true)); err != nil {
		return nil, formatCUEError(err)
	}

	s := &Schema{Registry: item.NewRegistry(), Types: make(map[string]*Type)}
	if err := compileAttributes(s.Registry, v.LookupPath(cue.ParsePath("attributes"))); err != nil {
		return nil, err
	}
	if err := compileTypes(s, v.LookupPath(cue.ParsePath("types"))); err != nil {
		return nil, err
	}
	return s, nil
}

func compileAttributes(reg *item.Registry, v cue.Value) error {
	if !v.Exists() {
		return nil
	}
	nsIter, err := v.Fields()
	if err != nil {
		return formatCUEError(err)
	}
	for nsIter.Next() {
		ns := item.Namespace(nsIter.Label())
		if ns == item.Sys {
			return &CompileError{Field: "attributes.sys", Message: "namespace sys is reserved", Pos: nsIter.Value().Pos()}
		}
		attrIter, err := nsIter.Value().Fields()
		if err != nil {
			return formatCUEError(err)
		}
		for attrIter.Next() {
			name := attrIter.Label()
			av := attrIter.Value()

			kindName, err := av.LookupPath(cue.ParsePath("kind")).String()
			if err != nil {
				return formatCUEError(err)
			}
			kind, err := item.ParseKind(kindName)
			if err != nil {
				return &CompileError{Field: string(ns) + "." + name, Message: err.Error(), Pos: av.Pos()}
			}
			shadowable, err := av.LookupPath(cue.ParsePath("shadowable")).Bool()
			if err != nil {
				return formatCUEError(err)
			}

			a := ns.Attr(name, kind)
			a.Shadowable = shadowable
			reg.Declare(a)
		}
	}
	return nil
}

func compileTypes(s *Schema, v cue.Value) error {
	if !v.Exists() {
		return nil
	}
	iter, err := v.Fields()
	if err != nil {
		return formatCUEError(err)
	}
	for iter.Next() {
		name := iter.Label()
		tv := iter.Value()
		t := &Type{Name: name}
		if dv := tv.LookupPath(cue.ParsePath("doc")); dv.Exists() {
			if t.Doc, err = dv.String(); err != nil {
				return formatCUEError(err)
			}
		}

		rules, err := tv.LookupPath(cue.ParsePath("merge")).List()
		if err != nil {
			return formatCUEError(err)
		}
		var strategies []merge.AutoMerge
		for i := 0; rules.Next(); i++ {
			field := fmt.Sprintf("types.%s.merge[%d]", name, i)
			rule, err := compileRule(s.Registry, rules.Value(), field)
			if err != nil {
				return err
			}
			t.Rules = append(t.Rules, rule)
			strategies = append(strategies, rule.strategy())
		}
		t.Strategy = merge.Composite(strategies...)
		s.Types[name] = t
	}
	return nil
}

func compileRule(reg *item.Registry, v cue.Value, field string) (Rule, error) {
	var r Rule
	var err error
	if r.Strategy, err = v.LookupPath(cue.ParsePath("strategy")).String(); err != nil {
		return r, formatCUEError(err)
	}

	attrs, err := v.LookupPath(cue.ParsePath("attrs")).List()
	if err != nil {
		return r, formatCUEError(err)
	}
	for attrs.Next() {
		id, err := attrs.Value().String()
		if err != nil {
			return r, formatCUEError(err)
		}
		a, ok := reg.Lookup(item.AttrID(id))
		if !ok {
			return r, &CompileError{Field: field, Message: fmt.Sprintf("undeclared attribute %q", id), Pos: attrs.Value().Pos()}
		}
		if !a.Shadowable {
			return r, &CompileError{Field: field, Message: fmt.Sprintf("attribute %s is not shadowable", id), Pos: attrs.Value().Pos()}
		}
		if err := checkKind(r.Strategy, a); err != nil {
			return r, &CompileError{Field: field, Message: err.Error(), Pos: attrs.Value().Pos()}
		}
		r.Attrs = append(r.Attrs, a.ID)
	}

	if kv := v.LookupPath(cue.ParsePath("keep")); kv.Exists() {
		keep, err := kv.String()
		if err != nil {
			return r, formatCUEError(err)
		}
		if _, ok := reg.Lookup(item.AttrID(keep)); !ok {
			return r, &CompileError{Field: field, Message: fmt.Sprintf("undeclared attribute %q", keep), Pos: kv.Pos()}
		}
		r.Keep = item.AttrID(keep)
	}
	if r.Strategy == RuleDiscardAll && len(r.Attrs) > 0 {
		return r, &CompileError{Field: field, Message: "discardAll takes keep, not attrs", Pos: v.Pos()}
	}
	return r, nil
}

func checkKind(strategy string, a item.Attribute) error {
	switch strategy {
	case RuleLongSets:
		if a.Kind != item.KindLongSet {
			return fmt.Errorf("%s needs a longset attribute, %s is %s", strategy, a.ID, a.Kind)
		}
	case RuleStringSets:
		if a.Kind != item.KindStringSet {
			return fmt.Errorf("%s needs a stringset attribute, %s is %s", strategy, a.ID, a.Kind)
		}
	case RuleUniteSets:
		if a.Kind != item.KindLongSet && a.Kind != item.KindStringSet {
			return fmt.Errorf("%s needs a set attribute, %s is %s", strategy, a.ID, a.Kind)
		}
	}
	return nil
}

func (r Rule) strategy() merge.AutoMerge {
	switch r.Strategy {
	case RuleLongSets:
		return merge.LongSets(r.Attrs...)
	case RuleStringSets:
		return merge.StringSets(r.Attrs...)
	case RuleUniteSets:
		return merge.UniteSets(r.Attrs...)
	case RuleConflictGroup:
		return merge.ConflictGroup(r.Attrs...)
	case RuleCopyRemote:
		return merge.CopyRemote(r.Attrs...)
	case RuleDiscardAll:
		return merge.DiscardAll(r.Keep)
	}
	return merge.None
}

// CompileError is a schema error with its source position.
type CompileError struct {
	Field   string
	Message string
	Pos     token.Pos
}

func (e *CompileError) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s: %s",
			e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(),
			e.Field, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// checkStrategies reports unknown merge strategy names by rule. After
// unification they only show up as an empty disjunction on the whole list.
func checkStrategies(v cue.Value) error {
	types, err := v.LookupPath(cue.ParsePath("types")).Fields()
	if err != nil {
		return nil
	}
	for types.Next() {
		rules, err := types.Value().LookupPath(cue.ParsePath("merge")).List()
		if err != nil {
			continue
		}
		for i := 0; rules.Next(); i++ {
			sv := rules.Value().LookupPath(cue.ParsePath("strategy"))
			name, err := sv.String()
			if err != nil || knownRule(name) {
				continue
			}
			return &CompileError{
				Field:   fmt.Sprintf("types.%s.merge.%d.strategy", types.Selector(), i),
				Message: fmt.Sprintf("unknown strategy %q", name),
				Pos:     sv.Pos(),
			}
		}
	}
	return nil
}

func knownRule(name string) bool {
	switch name {
	case RuleLongSets, RuleStringSets, RuleUniteSets, RuleConflictGroup, RuleCopyRemote, RuleDiscardAll:
		return true
	}
	return false
}

// formatCUEError extracts position info from CUE errors. Of several errors
// the one with the deepest path is reported, since disjunction failures also
// raise a vaguer error on the enclosing field.
func formatCUEError(err error) error {
	if err == nil {
		return nil
	}
	errs := errors.Errors(err)
	if len(errs) == 0 {
		return &CompileError{Field: "cue", Message: err.Error()}
	}
	best := errs[0]
	for _, e := range errs[1:] {
		if len(e.Path()) > len(best.Path()) {
			best = e
		}
	}
	ce := &CompileError{Field: "cue", Message: best.Error()}
	if positions := errors.Positions(best); len(positions) > 0 {
		ce.Pos = positions[0]
	}
	return ce
}
