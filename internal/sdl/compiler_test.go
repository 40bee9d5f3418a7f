package sdl

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vektah/gqlparser/v2/ast"
	"github.com/vektah/gqlparser/v2/parser"

	"harmony-graphql/internal/model"
	"harmony-graphql/internal/property"
)

func buildModels(t *testing.T, decls ...model.Model) []*model.Sanitized {
	t.Helper()
	var models []*model.Sanitized
	for _, decl := range decls {
		m, err := model.Sanitize(decl, model.SanitizeOptions{DefaultAdapter: "mock"})
		require.NoError(t, err)
		models = append(models, m)
	}
	require.NoError(t, model.TypeIDsAndReferences(models))
	return models
}

func listDecl() model.Model {
	return model.Model{
		Name: "list",
		Schema: property.NewFields(
			property.F("title", property.String().Required()),
			property.F("tags", property.Array(property.String())),
			property.F("owner", property.Reference("user")),
			property.F("meta", property.Schema(
				property.F("color", property.String()),
				property.F("size", property.Number()),
			)),
		),
		Computed: model.Computed{
			Fields: map[string]model.ComputedField{
				"summary": {
					Type: property.String(),
					Args: property.NewFields(property.F("length", property.Number())),
				},
			},
		},
	}
}

func userDecl() model.Model {
	return model.Model{
		Name: "user",
		Schema: property.NewFields(
			property.F("name", property.String()),
			property.F("lists", property.Array(property.ReversedReference("list", "owner"))),
		),
	}
}

func TestPrintModelListScenario(t *testing.T) {
	models := buildModels(t, listDecl(), userDecl())
	c := NewCompiler("")
	out, err := c.PrintModel(models[0])
	require.NoError(t, err)

	assert.Contains(t, out, `input ListFilterInput {
  title: String
  tags: [String]
  owner: ID
  meta: ListFilterMetaInput
  _id: ID
  _and: [ListFilterInput]
  _or: [ListFilterInput]
  _nor: [ListFilterInput]
  _operators: ListFilterOperatorsInput
}`)
	assert.Contains(t, out, `input ListSortInput {
  title: Number
  tags: Number
  owner: Number
  meta: ListSortMetaInput
  _id: Number
}`)
	assert.Contains(t, out, `input ListSortMetaInput {
  color: Number
  size: Number
}`)
	assert.Contains(t, out, "input ListCreateInput {\n  title: String!\n")
	assert.Contains(t, out, "input ListUpdateInput {\n  title: String\n")
	assert.Contains(t, out, "input ListUpdateMetaInput {\n")
	assert.Contains(t, out, `type List @key(fields: "_id") {
  title: String!
  tags: [String]
  owner: User
  meta: ListMeta
  summary(length: Number): String
  _id: ID!
}`)
	assert.Contains(t, out, `extend type Query {
  list(filter: ListFilterInput, skip: Number, sort: ListSortInput): List
  listList(filter: ListFilterInput, skip: Number, limit: Number, sort: ListSortInput): [List]
  listCount(filter: ListFilterInput): Number
}`)
	assert.Contains(t, out, `extend type Mutation {
  listCreate(record: ListCreateInput!): List
  listCreateMany(records: [ListCreateInput!]!): [List]
  listUpdate(record: ListUpdateInput!): List
  listUpdateMany(records: [ListUpdateInput!]!): [List]
  listDelete(_id: ID!): List
  listDeleteMany(_ids: [ID!]!): [List]
}`)
	assert.Contains(t, out, "  owner: HarmonyJsOperatorReferenceInput\n")
	assert.Contains(t, out, "  _id: HarmonyJsOperatorIdInput\n")
}

func TestPrintModelReversedReferenceIsOutputOnly(t *testing.T) {
	models := buildModels(t, listDecl(), userDecl())
	out, err := NewCompiler("").PrintModel(models[1])
	require.NoError(t, err)

	assert.Contains(t, out, "  lists: [List]\n")
	assert.NotContains(t, out, "input UserCreateInput {\n  name: String\n  lists")
}

func TestPrintModelExternal(t *testing.T) {
	decl := userDecl()
	decl.External = true
	decl.Schema = property.NewFields(property.F("name", property.String()))
	models := buildModels(t, decl)

	out, err := NewCompiler("").PrintModel(models[0])
	require.NoError(t, err)
	assert.Equal(t, `extend type User @key(fields: "_id") {
  name: String
  _id: ID! @external
}
`, out)
}

func TestPrintModelRequiresAdapterBinding(t *testing.T) {
	m, err := model.Sanitize(listDecl(), model.SanitizeOptions{DefaultAdapter: "mock"})
	require.NoError(t, err)
	_, err = NewCompiler("").PrintModel(m)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "adapter binding")
}

func TestDefineSchemaIsDeterministic(t *testing.T) {
	build := func() string {
		models := buildModels(t, listDecl(), userDecl())
		out, err := NewCompiler("svc").DefineSchema(models, []string{"Url", "Email"})
		require.NoError(t, err)
		return out
	}
	first := build()
	assert.Equal(t, first, build())
}

func TestDefineSchemaPrintsOperatorTypesOnce(t *testing.T) {
	models := buildModels(t, listDecl(), userDecl())
	out, err := NewCompiler("").DefineSchema(models, []string{"Url", "Email"})
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(out, "# Harmony Scalars\nscalar Date\nscalar JSON\nscalar Number\n"))
	assert.Less(t, strings.Index(out, "scalar Email"), strings.Index(out, "scalar Url"))
	assert.Equal(t, 1, strings.Count(out, "input HarmonyJsOperatorStringInput {"))
	assert.Equal(t, 1, strings.Count(out, "input HarmonyJsOperatorIdInput {"))
	assert.Contains(t, out, `input HarmonyJsOperatorNumberInput {
  eq: Number
  neq: Number
  exists: Boolean
  in: [Number]
  nin: [Number]
  gte: Number
  lte: Number
  gt: Number
  lt: Number
}`)
	assert.Contains(t, out, `input HarmonyJsOperatorStringInput {
  eq: String
  neq: String
  exists: Boolean
  in: [String]
  nin: [String]
  regex: String
}`)

	doc, err := parser.ParseSchema(&ast.Source{Name: "schema.graphql", Input: out})
	require.NoError(t, err)
	assert.NotNil(t, doc.Definitions.ForName("ListFilterOperatorsInput"))
	assert.NotNil(t, doc.Definitions.ForName("HarmonyJsOperatorReferenceInput"))
}
