package sqldoc

import (
	"maps"
	"regexp"
	"slices"

	sq "github.com/Masterminds/squirrel"

	"harmony-graphql/internal/document"
	"harmony-graphql/internal/filter"
	"harmony-graphql/internal/model"
	"harmony-graphql/internal/property"
)

var plainField = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// plan is the part of a filter that runs in SQL. Every condition is implied
// by the filter, so the filter still narrows the fetched rows afterwards.
type plan struct {
	where []sq.Sqlizer
	// exact is set when the conditions select exactly the matching rows.
	exact bool
}

func (p plan) apply(b sq.SelectBuilder) sq.SelectBuilder {
	for _, cond := range p.where {
		b = b.Where(cond)
	}
	return b
}

// planFilter translates string equality and membership on top-level fields.
func (a *Adapter) planFilter(m *model.Sanitized, f map[string]any) plan {
	p := plan{exact: true}
	for _, key := range slices.Sorted(maps.Keys(f)) {
		if key != filter.Operators {
			if cond, ok := a.fieldCondition(m, key, "eq", f[key]); ok {
				p.where = append(p.where, cond)
			} else {
				p.exact = false
			}
			continue
		}

		ops, ok := f[key].(map[string]any)
		if !ok {
			p.exact = false
			continue
		}
		for _, field := range slices.Sorted(maps.Keys(ops)) {
			fieldOps, ok := ops[field].(map[string]any)
			if !ok {
				p.exact = false
				continue
			}
			for _, op := range slices.Sorted(maps.Keys(fieldOps)) {
				if cond, ok := a.fieldCondition(m, field, op, fieldOps[op]); ok {
					p.where = append(p.where, cond)
				} else {
					p.exact = false
				}
			}
		}
	}
	return p
}

func (a *Adapter) fieldCondition(m *model.Sanitized, field, op string, arg any) (sq.Sqlizer, bool) {
	col, ok := a.textColumn(m, field)
	if !ok {
		return nil, false
	}
	switch op {
	case "eq":
		s, ok := arg.(string)
		if !ok {
			return nil, false
		}
		return sq.Eq{col: s}, true
	case "in":
		list, ok := arg.([]any)
		if !ok || len(list) == 0 {
			return nil, false
		}
		keys := make([]string, 0, len(list))
		for _, elem := range list {
			s, ok := elem.(string)
			if !ok {
				return nil, false
			}
			keys = append(keys, s)
		}
		return eqOrIn(col, keys), true
	}
	return nil, false
}

// textColumn returns the SQL expression of a field stored as a string: the
// id column for _id, the JSON body otherwise. Lists and other kinds match
// differently in the filter package and are not translated.
func (a *Adapter) textColumn(m *model.Sanitized, field string) (string, bool) {
	if field == document.IDField {
		return a.col(idColumn), true
	}
	if !plainField.MatchString(field) || m.Schemas.Main == nil {
		return "", false
	}
	prop := m.Schemas.Main.Fields.Get(field)
	if prop == nil {
		return "", false
	}
	switch prop.Kind {
	case property.KindString, property.KindID, property.KindReference:
		return a.dialect.JSONText(a.col(bodyColumn), field), true
	}
	return "", false
}

func eqOrIn(col string, keys []string) sq.Eq {
	if len(keys) == 1 {
		return sq.Eq{col: keys[0]}
	}
	return sq.Eq{col: keys}
}
