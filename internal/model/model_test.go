package model

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"harmony-graphql/internal/property"
)

func listModel() Model {
	return Model{
		Name: "list",
		Schema: property.NewFields(
			property.F("title", property.String().Required()),
			property.F("tags", property.Array(property.String())),
			property.F("owner", property.Reference("user")),
		),
	}
}

func TestSanitizeListScenario(t *testing.T) {
	m, err := Sanitize(listModel(), SanitizeOptions{DefaultAdapter: "mock"})
	require.NoError(t, err)

	assert.Equal(t, "list", m.Name)
	assert.Equal(t, "List", m.GraphQLName)
	assert.Equal(t, "mock", m.Adapter)
	assert.Equal(t, []string{"list", "listList", "listCount"}, m.Schemas.Queries.Fields.Names())
	assert.Equal(t, []string{
		"listCreate", "listCreateMany", "listUpdate", "listUpdateMany", "listDelete", "listDeleteMany",
	}, m.Schemas.Mutations.Fields.Names())

	for _, name := range m.Schemas.Main.Fields.Names() {
		assert.Equal(t, property.ModeBoth, m.Schemas.Main.Fields.Get(name).Mode, name)
	}
	assert.Equal(t, "listCreateMany", m.RootField(OpCreateMany))
}

func TestExtendFieldTemplates(t *testing.T) {
	tests := []struct {
		op       Operation
		typeKind property.Kind
		args     []string
	}{
		{OpRead, property.KindRaw, []string{"filter", "skip", "sort"}},
		{OpReadMany, property.KindArray, []string{"filter", "skip", "limit", "sort"}},
		{OpCount, property.KindNumber, []string{"filter"}},
		{OpCreate, property.KindRaw, []string{"record"}},
		{OpCreateMany, property.KindArray, []string{"records"}},
		{OpUpdate, property.KindRaw, []string{"record"}},
		{OpUpdateMany, property.KindArray, []string{"records"}},
		{OpDelete, property.KindRaw, []string{"_id"}},
		{OpDeleteMany, property.KindArray, []string{"_ids"}},
	}
	for _, tt := range tests {
		t.Run(string(tt.op), func(t *testing.T) {
			tmpl, ok := ExtendField(tt.op, "List")
			require.True(t, ok)
			assert.Equal(t, tt.typeKind, tmpl.Type.Kind)
			assert.Equal(t, tt.args, tmpl.Args.Names())
		})
	}

	tmpl, _ := ExtendField(OpCreateMany, "List")
	records := tmpl.Args.Get("records")
	assert.True(t, records.IsRequired)
	assert.True(t, records.Elem.IsRequired)
	assert.Equal(t, "ListCreateInput", records.Elem.Of)

	_, ok := ExtendField("upsert", "List")
	assert.False(t, ok)
}

func TestSanitizeStrictOnlyExposesScopedOperations(t *testing.T) {
	decl := listModel()
	decl.Scopes = map[Operation]ScopeFunc{
		OpRead: func(ctx context.Context, p Params) (map[string]any, error) { return nil, nil },
		OpCreate: func(ctx context.Context, p Params) (map[string]any, error) {
			return nil, nil
		},
	}
	m, err := Sanitize(decl, SanitizeOptions{Strict: true})
	require.NoError(t, err)
	assert.Equal(t, []string{"list"}, m.Schemas.Queries.Fields.Names())
	assert.Equal(t, []string{"listCreate"}, m.Schemas.Mutations.Fields.Names())
}

func TestSanitizeExternalHasNoRootFields(t *testing.T) {
	decl := listModel()
	decl.External = true
	m, err := Sanitize(decl, SanitizeOptions{})
	require.NoError(t, err)
	assert.Equal(t, 0, m.Schemas.Queries.Fields.Len())
	assert.Equal(t, 0, m.Schemas.Mutations.Fields.Len())
	assert.True(t, m.External)
}

func TestSanitizeComputedAndCustomQueries(t *testing.T) {
	decl := listModel()
	decl.Computed = Computed{
		Fields: map[string]ComputedField{
			"itemCount": {Type: property.Number()},
			"summary": {
				Args: property.NewFields(property.F("length", property.Number())),
			},
			"secret": {Type: property.String(), Mode: property.ModeInput},
		},
		Queries: map[string]ComputedQuery{
			"listRecent": {Extends: OpReadMany},
			"listCount":  {Type: property.Float()},
		},
	}
	m, err := Sanitize(decl, SanitizeOptions{})
	require.NoError(t, err)

	computed := m.Schemas.Computed.Fields
	assert.Equal(t, []string{"itemCount", "secret", "summary"}, computed.Names())
	assert.Equal(t, property.ModeOutput, computed.Get("itemCount").Mode)
	assert.Equal(t, property.ModeInput, computed.Get("secret").Mode)
	assert.Equal(t, property.KindJSON, computed.Get("summary").Kind)
	require.NotNil(t, computed.Get("summary").Args)
	assert.Equal(t, []string{"length"}, computed.Get("summary").Args.Fields.Names())

	queries := m.Schemas.Queries.Fields
	assert.Equal(t, []string{"list", "listList", "listCount", "listRecent"}, queries.Names())
	assert.Equal(t, property.KindFloat, queries.Get("listCount").Kind)
	assert.Equal(t, property.ModeOutput, queries.Get("listCount").Mode)

	recent := queries.Get("listRecent")
	assert.Equal(t, property.KindArray, recent.Kind)
	assert.Equal(t, []string{"filter", "skip", "limit", "sort"}, recent.Args.Fields.Names())
}

func TestSanitizeRejectsBadDeclarations(t *testing.T) {
	tests := []struct {
		name string
		decl Model
	}{
		{"missing name", Model{}},
		{"reserved name", Model{Name: "query"}},
		{"unknown scope", Model{Name: "list", Scopes: map[Operation]ScopeFunc{"upsert": nil}}},
		{"unknown transform", Model{Name: "list", Transforms: map[Operation]TransformFunc{"upsert": nil}}},
		{"bad extends", Model{Name: "list", Computed: Computed{Queries: map[string]ComputedQuery{"x": {Extends: "upsert"}}}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Sanitize(tt.decl, SanitizeOptions{})
			assert.Error(t, err)
		})
	}
}

func TestSanitizeDoesNotMutateDeclaration(t *testing.T) {
	decl := listModel()
	_, err := Sanitize(decl, SanitizeOptions{})
	require.NoError(t, err)
	assert.Equal(t, property.Mode(0), decl.Schema.Get("title").Mode)
}

func TestTypeIDsAndReferences(t *testing.T) {
	list, err := Sanitize(listModel(), SanitizeOptions{DefaultAdapter: "mock"})
	require.NoError(t, err)
	user, err := Sanitize(Model{
		Name:    "user",
		Adapter: "sql",
		Schema: property.NewFields(
			property.F("name", property.String()),
			property.F("lists", property.ReversedReference("list", "owner")),
			property.F("friends", property.Array(property.Reference("user"))),
			property.F("external", property.Reference("account")),
			property.F("self", property.ID()),
		),
	}, SanitizeOptions{DefaultAdapter: "mock"})
	require.NoError(t, err)

	require.NoError(t, TypeIDsAndReferences([]*Sanitized{list, user}))

	assert.Equal(t, "sql", list.Schemas.Main.Fields.Get("owner").IsFor)
	assert.Equal(t, "mock", user.Schemas.Main.Fields.Get("lists").IsFor)
	assert.Equal(t, "sql", user.Schemas.Main.Fields.Get("friends").Elem.IsFor)
	assert.Equal(t, "sql", user.Schemas.Main.Fields.Get("external").IsFor)
	assert.Equal(t, "sql", user.Schemas.Main.Fields.Get("self").IsFor)

	deleteArgs := list.Schemas.Mutations.Fields.Get("listDelete").Args
	assert.Equal(t, "mock", deleteArgs.Fields.Get("_id").IsFor)

	found, ok := Lookup([]*Sanitized{list, user}, "user")
	require.True(t, ok)
	assert.Same(t, user, found)
}

func TestTypeIDsAndReferencesUnknownReversedReference(t *testing.T) {
	m, err := Sanitize(Model{
		Name:   "user",
		Schema: property.NewFields(property.F("posts", property.ReversedReference("post", "author"))),
	}, SanitizeOptions{})
	require.NoError(t, err)
	assert.Error(t, TypeIDsAndReferences([]*Sanitized{m}))
}

func TestChain(t *testing.T) {
	ctx := context.Background()

	t.Run("passthrough without hooks", func(t *testing.T) {
		calls := 0
		fn := Chain(func(ctx context.Context, p Params) (any, error) {
			calls++
			return "ok", nil
		}, nil, nil)
		v, err := fn(ctx, Params{})
		require.NoError(t, err)
		assert.Equal(t, "ok", v)
		assert.Equal(t, 1, calls)
	})

	t.Run("scopes replace args in order", func(t *testing.T) {
		fn := Chain(
			func(ctx context.Context, p Params) (any, error) { return p.Args["n"], nil },
			[]ScopeFunc{
				func(ctx context.Context, p Params) (map[string]any, error) {
					return map[string]any{"n": 1}, nil
				},
				func(ctx context.Context, p Params) (map[string]any, error) { return nil, nil },
				func(ctx context.Context, p Params) (map[string]any, error) {
					return map[string]any{"n": p.Args["n"].(int) + 1}, nil
				},
			},
			nil,
		)
		v, err := fn(ctx, Params{Args: map[string]any{"n": 0}})
		require.NoError(t, err)
		assert.Equal(t, 2, v)
	})

	t.Run("scope error skips resolve but runs transforms", func(t *testing.T) {
		denied := errors.New("denied")
		resolved := false
		var seen TransformParams
		fn := Chain(
			func(ctx context.Context, p Params) (any, error) {
				resolved = true
				return "value", nil
			},
			[]ScopeFunc{func(ctx context.Context, p Params) (map[string]any, error) { return nil, denied }},
			[]TransformFunc{func(ctx context.Context, p TransformParams) (any, error) {
				seen = p
				return p.Value, p.Err
			}},
		)
		v, err := fn(ctx, Params{})
		assert.ErrorIs(t, err, denied)
		assert.Nil(t, v)
		assert.False(t, resolved)
		assert.ErrorIs(t, seen.Err, denied)
	})

	t.Run("transform can recover and stops on error", func(t *testing.T) {
		boom := errors.New("boom")
		second := false
		fn := Chain(
			func(ctx context.Context, p Params) (any, error) { return nil, boom },
			nil,
			[]TransformFunc{
				func(ctx context.Context, p TransformParams) (any, error) { return "recovered", nil },
				func(ctx context.Context, p TransformParams) (any, error) {
					return p.Value.(string) + "!", nil
				},
			},
		)
		v, err := fn(ctx, Params{})
		require.NoError(t, err)
		assert.Equal(t, "recovered!", v)

		fn = Chain(
			func(ctx context.Context, p Params) (any, error) { return "v", nil },
			nil,
			[]TransformFunc{
				func(ctx context.Context, p TransformParams) (any, error) { return nil, boom },
				func(ctx context.Context, p TransformParams) (any, error) {
					second = true
					return "late", nil
				},
			},
		)
		_, err = fn(ctx, Params{})
		assert.ErrorIs(t, err, boom)
		assert.False(t, second)
	})
}

func TestAliases(t *testing.T) {
	tests := map[Alias]Operation{
		"get":      OpRead,
		"find":     OpRead,
		"list":     OpReadMany,
		"edit":     OpUpdate,
		"editMany": OpUpdateMany,
		"count":    OpCount,
	}
	for alias, want := range tests {
		got, ok := alias.Resolve()
		require.True(t, ok, alias)
		assert.Equal(t, want, got)
	}
	_, ok := Alias("nope").Resolve()
	assert.False(t, ok)
	assert.Len(t, Aliases(), 14)

	_, err := ParseOperation("upsert")
	assert.Error(t, err)
}
