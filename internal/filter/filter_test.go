package filter

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"harmony-graphql/internal/document"
)

func sampleDocs() []*document.Document {
	return []*document.Document{
		document.FromMap(map[string]any{
			"_id": "1", "title": "groceries", "count": 3,
			"tags": []any{"home", "food"},
			"meta": map[string]any{"color": "red", "size": 2},
		}),
		document.FromMap(map[string]any{
			"_id": "2", "title": "work", "count": 10,
			"tags": []any{"office"},
			"meta": map[string]any{"color": "blue", "size": 5},
		}),
		document.FromMap(map[string]any{
			"_id": "3", "title": "garden", "count": 7,
			"meta": map[string]any{"color": "red", "size": 9},
		}),
	}
}

func ids(docs []*document.Document) []string {
	out := make([]string, 0, len(docs))
	for _, d := range docs {
		out = append(out, d.ID())
	}
	return out
}

func TestMatch(t *testing.T) {
	tests := []struct {
		name   string
		filter Filter
		want   []string
	}{
		{"empty", Filter{}, []string{"1", "2", "3"}},
		{"equality", Filter{"title": "work"}, []string{"2"}},
		{"number equality across types", Filter{"count": 3.0}, []string{"1"}},
		{"list contains", Filter{"tags": "food"}, []string{"1"}},
		{"nested", Filter{"meta": map[string]any{"color": "red"}}, []string{"1", "3"}},
		{"and", Filter{"_and": []any{
			map[string]any{"meta": map[string]any{"color": "red"}},
			map[string]any{"title": "garden"},
		}}, []string{"3"}},
		{"or", Filter{"_or": []any{
			map[string]any{"title": "work"},
			map[string]any{"title": "garden"},
		}}, []string{"2", "3"}},
		{"nor", Filter{"_nor": []any{map[string]any{"title": "work"}}}, []string{"1", "3"}},
		{"empty or", Filter{"_or": []any{}}, []string{}},
		{"gt", Filter{"_operators": map[string]any{"count": map[string]any{"gt": 3}}}, []string{"2", "3"}},
		{"range", Filter{"_operators": map[string]any{"count": map[string]any{"gte": 3, "lt": 10}}}, []string{"1", "3"}},
		{"in", Filter{"_operators": map[string]any{"_id": map[string]any{"in": []any{"1", "3"}}}}, []string{"1", "3"}},
		{"nin", Filter{"_operators": map[string]any{"_id": map[string]any{"nin": []any{"1"}}}}, []string{"2", "3"}},
		{"neq", Filter{"_operators": map[string]any{"title": map[string]any{"neq": "work"}}}, []string{"1", "3"}},
		{"exists", Filter{"_operators": map[string]any{"tags": map[string]any{"exists": false}}}, []string{"3"}},
		{"regex", Filter{"_operators": map[string]any{"title": map[string]any{"regex": "^g"}}}, []string{"1", "3"}},
		{"some", Filter{"_operators": map[string]any{"tags": map[string]any{
			"some": map[string]any{"eq": "office"},
		}}}, []string{"2"}},
		{"all", Filter{"_operators": map[string]any{"tags": map[string]any{
			"all": map[string]any{"regex": "o"},
		}}}, []string{"1", "2"}},
		{"match", Filter{"_operators": map[string]any{"meta": map[string]any{
			"match": map[string]any{"size": map[string]any{"gt": 4}},
		}}}, []string{"2", "3"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Query(sampleDocs(), tt.filter, nil, 0, 0)
			require.NoError(t, err)
			assert.Equal(t, tt.want, ids(got))
		})
	}
}

func TestMatchErrors(t *testing.T) {
	tests := []struct {
		name   string
		filter Filter
	}{
		{"unknown operator", Filter{"_operators": map[string]any{"title": map[string]any{"like": "x"}}}},
		{"bad regex", Filter{"_operators": map[string]any{"title": map[string]any{"regex": "("}}}},
		{"bad exists", Filter{"_operators": map[string]any{"title": map[string]any{"exists": "yes"}}}},
		{"bad logical", Filter{"_and": "nope"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Match(sampleDocs()[0], tt.filter)
			assert.Error(t, err)
		})
	}
}

func TestSortAndPage(t *testing.T) {
	docs, err := Query(sampleDocs(), nil, map[string]any{"count": -1}, 0, 0)
	require.NoError(t, err)
	assert.Equal(t, []string{"2", "3", "1"}, ids(docs))

	docs, err = Query(sampleDocs(), nil, map[string]any{"meta": map[string]any{"color": 1, "size": -1}}, 0, 0)
	require.NoError(t, err)
	assert.Equal(t, []string{"2", "3", "1"}, ids(docs))

	docs, err = Query(sampleDocs(), nil, map[string]any{"title": 1}, 1, 1)
	require.NoError(t, err)
	assert.Equal(t, []string{"1"}, ids(docs))

	docs, err = Query(sampleDocs(), nil, nil, 5, 0)
	require.NoError(t, err)
	assert.Empty(t, docs)

	_, err = SortKeys(map[string]any{"title": "up"})
	assert.Error(t, err)
}

func TestSortKeysFollowPathOrder(t *testing.T) {
	keys, err := SortKeys(map[string]any{
		"title": int64(1),
		"_id":   int64(-1),
		"count": 0,
		"meta":  map[string]any{"size": -1.0, "color": int64(1)},
	})
	require.NoError(t, err)
	assert.Equal(t, []SortKey{
		{Path: "_id", Descending: true},
		{Path: "meta.color"},
		{Path: "meta.size", Descending: true},
		{Path: "title"},
	}, keys)
}
