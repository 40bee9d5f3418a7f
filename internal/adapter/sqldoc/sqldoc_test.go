package sqldoc

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/go-sql-driver/mysql"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"harmony-graphql/internal/adapter"
	"harmony-graphql/internal/adapter/mock"
	"harmony-graphql/internal/dbexec"
	"harmony-graphql/internal/document"
	"harmony-graphql/internal/events"
	"harmony-graphql/internal/model"
	"harmony-graphql/internal/property"
)

func listModel(t *testing.T) *model.Sanitized {
	t.Helper()
	m, err := model.Sanitize(model.Model{
		Name:    "list",
		Adapter: Name,
		Schema: property.NewFields(
			property.F("title", property.String()),
			property.F("rank", property.Number()),
			property.F("tags", property.Array(property.String())),
			property.F("owner", property.String()),
		),
	}, model.SanitizeOptions{})
	require.NoError(t, err)
	return m
}

func openSQLite(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	// Every connection to :memory: is a separate database.
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func newSQLiteAdapter(t *testing.T, models ...*model.Sanitized) *Adapter {
	t.Helper()
	a, err := New(dbexec.NewStandardExecutor(openSQLite(t)), Config{Dialect: "sqlite"})
	require.NoError(t, err)
	require.NoError(t, a.Initialize(context.Background(), adapter.InitArgs{Models: models}))
	return a
}

func TestSQLiteRoundTrip(t *testing.T) {
	ctx := context.Background()
	m := listModel(t)
	a := newSQLiteAdapter(t, m)

	record := document.New().Set("title", "groceries").Set("rank", int64(2))
	created, err := a.Create(ctx, m, record)
	require.NoError(t, err)
	require.NotEmpty(t, created.ID())
	assert.Equal(t, []string{"_id", "title", "rank"}, created.Keys())

	read, err := a.Read(ctx, m, adapter.QueryArgs{Filter: map[string]any{"_id": created.ID()}})
	require.NoError(t, err)
	assert.True(t, document.Equal(created, read))
	assert.Equal(t, []string{"_id", "title", "rank"}, read.Keys())

	_, err = a.Create(ctx, m, document.New().Set("_id", created.ID()).Set("title", "again"))
	require.ErrorIs(t, err, adapter.ErrAlreadyExists)

	missing, err := a.Read(ctx, m, adapter.QueryArgs{Filter: map[string]any{"_id": "nope"}})
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestSQLiteUpdateAndDelete(t *testing.T) {
	ctx := context.Background()
	m := listModel(t)
	a := newSQLiteAdapter(t, m)

	created, err := a.Create(ctx, m, document.FromMap(map[string]any{"_id": "l1", "title": "a", "rank": int64(1)}))
	require.NoError(t, err)

	updated, err := a.Update(ctx, m, document.New().Set("_id", created.ID()).Set("rank", int64(5)))
	require.NoError(t, err)
	assert.Equal(t, "a", updated.Value("title"))
	assert.Equal(t, int64(5), updated.Value("rank"))

	_, err = a.Update(ctx, m, document.New().Set("_id", "missing").Set("rank", int64(1)))
	var status interface{ Status() int }
	require.True(t, errors.As(err, &status))
	assert.Equal(t, 404, status.Status())

	deleted, err := a.DeleteMany(ctx, m, []string{"l1", "l1"})
	require.NoError(t, err)
	require.Len(t, deleted, 2)
	assert.Equal(t, "l1", deleted[0].ID())
	assert.Nil(t, deleted[1])

	count, err := a.Count(ctx, m, adapter.QueryArgs{})
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestSQLiteCreateManyIsAtomic(t *testing.T) {
	ctx := context.Background()
	m := listModel(t)
	a := newSQLiteAdapter(t, m)

	_, err := a.CreateMany(ctx, m, []*document.Document{
		document.New().Set("_id", "x").Set("title", "first"),
		document.New().Set("_id", "x").Set("title", "duplicate"),
	})
	require.ErrorIs(t, err, adapter.ErrAlreadyExists)

	count, err := a.Count(ctx, m, adapter.QueryArgs{})
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestSQLiteResolveBatch(t *testing.T) {
	ctx := context.Background()
	m := listModel(t)
	a := newSQLiteAdapter(t, m)

	for _, fields := range []map[string]any{
		{"_id": "a", "owner": "u1", "tags": []any{"red"}},
		{"_id": "b", "owner": "u2", "tags": []any{"red", "blue"}},
		{"_id": "c", "owner": "u3"},
	} {
		_, err := a.Create(ctx, m, document.FromMap(fields))
		require.NoError(t, err)
	}

	byID, err := a.ResolveBatch(ctx, adapter.BatchArgs{Model: m, FieldName: "_id", Keys: []string{"c", "a"}})
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "c"}, ids(byID))

	byOwner, err := a.ResolveBatch(ctx, adapter.BatchArgs{Model: m, FieldName: "owner", Keys: []string{"u2", "u3"}})
	require.NoError(t, err)
	assert.Equal(t, []string{"b", "c"}, ids(byOwner))

	byTag, err := a.ResolveBatch(ctx, adapter.BatchArgs{Model: m, FieldName: "tags", Keys: []string{"blue"}})
	require.NoError(t, err)
	assert.Equal(t, []string{"b"}, ids(byTag))
}

func TestSQLiteEventsArePublished(t *testing.T) {
	ctx := context.Background()
	m := listModel(t)
	a, err := New(dbexec.NewStandardExecutor(openSQLite(t)), Config{Dialect: "sqlite", IDs: "nanoid"})
	require.NoError(t, err)
	bus := events.NewBus(4)
	defer bus.Close()
	sub, cancel := bus.Subscribe()
	defer cancel()
	require.NoError(t, a.Initialize(ctx, adapter.InitArgs{Models: []*model.Sanitized{m}, Events: bus}))

	created, err := a.Create(ctx, m, document.New().Set("title", "t"))
	require.NoError(t, err)

	event := <-sub
	assert.Equal(t, events.Created, event.Kind)
	assert.Equal(t, "list", event.Model)
	assert.Equal(t, created.ID(), event.Entity.ID())
}

// The same queries must give the same answers on every adapter.
func TestFilterParityWithMock(t *testing.T) {
	ctx := context.Background()
	m := listModel(t)
	sqlAdapter := newSQLiteAdapter(t, m)
	memAdapter, err := mock.New(mock.Config{})
	require.NoError(t, err)
	require.NoError(t, memAdapter.Initialize(ctx, adapter.InitArgs{}))

	seed := []map[string]any{
		{"_id": "1", "title": "alpha", "rank": int64(3), "tags": []any{"x"}},
		{"_id": "2", "title": "beta", "rank": int64(1), "tags": []any{"x", "y"}},
		{"_id": "3", "title": "gamma", "rank": int64(2)},
		{"_id": "4", "title": "delta", "rank": int64(5), "tags": []any{"y"}},
	}
	for _, fields := range seed {
		_, err := sqlAdapter.Create(ctx, m, document.FromMap(fields))
		require.NoError(t, err)
		_, err = memAdapter.Create(ctx, m, document.FromMap(fields))
		require.NoError(t, err)
	}

	tests := []struct {
		name string
		args adapter.QueryArgs
		want []string
	}{
		{"all", adapter.QueryArgs{}, []string{"1", "2", "3", "4"}},
		{"eq", adapter.QueryArgs{Filter: map[string]any{"title": "beta"}}, []string{"2"}},
		{"by id", adapter.QueryArgs{Filter: map[string]any{"_id": "3"}}, []string{"3"}},
		{"list contains", adapter.QueryArgs{Filter: map[string]any{"tags": "y"}}, []string{"2", "4"}},
		{"or", adapter.QueryArgs{Filter: map[string]any{"_or": []any{
			map[string]any{"title": "alpha"},
			map[string]any{"rank": int64(5)},
		}}}, []string{"1", "4"}},
		{"nor", adapter.QueryArgs{Filter: map[string]any{"_nor": []any{
			map[string]any{"title": "alpha"},
		}}}, []string{"2", "3", "4"}},
		{"sorted page", adapter.QueryArgs{Sort: map[string]any{"rank": int64(-1)}, Skip: 1, Limit: 2}, []string{"1", "3"}},
		{"page in sql", adapter.QueryArgs{Filter: map[string]any{"_operators": map[string]any{
			"title": map[string]any{"in": []any{"alpha", "gamma", "delta"}},
		}}, Skip: 1, Limit: 2}, []string{"3", "4"}},
		{"page after partial pushdown", adapter.QueryArgs{Filter: map[string]any{"_operators": map[string]any{
			"title": map[string]any{"in": []any{"alpha", "beta", "gamma"}},
			"rank":  map[string]any{"gt": int64(1)},
		}}, Skip: 1, Limit: 1}, []string{"3"}},
		{"no match", adapter.QueryArgs{Filter: map[string]any{"title": "omega"}}, []string{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fromSQL, err := sqlAdapter.ReadMany(ctx, m, tt.args)
			require.NoError(t, err)
			fromMem, err := memAdapter.ReadMany(ctx, m, tt.args)
			require.NoError(t, err)
			assert.Equal(t, tt.want, ids(fromSQL))
			assert.Equal(t, tt.want, ids(fromMem))

			sqlCount, err := sqlAdapter.Count(ctx, m, adapter.QueryArgs{Filter: tt.args.Filter})
			require.NoError(t, err)
			memCount, err := memAdapter.Count(ctx, m, adapter.QueryArgs{Filter: tt.args.Filter})
			require.NoError(t, err)
			assert.Equal(t, memCount, sqlCount)
		})
	}
}

func TestMySQLStatements(t *testing.T) {
	db, sqlMock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	ctx := context.Background()
	m := listModel(t)
	a, err := New(dbexec.NewStandardExecutor(db), Config{Dialect: "mysql"})
	require.NoError(t, err)

	sqlMock.ExpectExec(regexp.QuoteMeta("CREATE TABLE IF NOT EXISTS `lists`")).
		WillReturnResult(sqlmock.NewResult(0, 0))
	require.NoError(t, a.Initialize(ctx, adapter.InitArgs{Models: []*model.Sanitized{m}}))

	sqlMock.ExpectExec(regexp.QuoteMeta("INSERT INTO `lists`")).
		WithArgs("l1", `{"title":"x"}`).
		WillReturnResult(sqlmock.NewResult(1, 1))
	_, err = a.Create(ctx, m, document.New().Set("_id", "l1").Set("title", "x"))
	require.NoError(t, err)

	sqlMock.ExpectExec(regexp.QuoteMeta("INSERT INTO `lists`")).
		WillReturnError(&mysql.MySQLError{Number: 1062, Message: "Duplicate entry"})
	_, err = a.Create(ctx, m, document.New().Set("_id", "l1").Set("title", "x"))
	require.ErrorIs(t, err, adapter.ErrAlreadyExists)

	sqlMock.ExpectQuery(regexp.QuoteMeta("FROM `lists` WHERE `id` = ? ORDER BY `seq`")).
		WithArgs("l1").
		WillReturnRows(sqlmock.NewRows([]string{"id", "body"}).AddRow("l1", []byte(`{"title":"x"}`)))
	doc, err := a.Read(ctx, m, adapter.QueryArgs{Filter: map[string]any{"_id": "l1"}})
	require.NoError(t, err)
	assert.Equal(t, "x", doc.Value("title"))

	sqlMock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM `lists`")).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(7))
	count, err := a.Count(ctx, m, adapter.QueryArgs{})
	require.NoError(t, err)
	assert.Equal(t, int64(7), count)

	sqlMock.ExpectBegin()
	sqlMock.ExpectQuery(regexp.QuoteMeta("FROM `lists` WHERE `id` = ?")).
		WithArgs("l1").
		WillReturnRows(sqlmock.NewRows([]string{"id", "body"}).AddRow("l1", []byte(`{"title":"x"}`)))
	sqlMock.ExpectExec(regexp.QuoteMeta("UPDATE `lists` SET `body` = ? WHERE `id` = ?")).
		WithArgs(`{"title":"y"}`, "l1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	sqlMock.ExpectCommit()
	updated, err := a.Update(ctx, m, document.New().Set("_id", "l1").Set("title", "y"))
	require.NoError(t, err)
	assert.Equal(t, "y", updated.Value("title"))

	assert.NoError(t, sqlMock.ExpectationsWereMet())
}

func anchored(query string) string {
	return "^" + regexp.QuoteMeta(query) + "$"
}

func TestMySQLPushdown(t *testing.T) {
	db, sqlMock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	ctx := context.Background()
	m := listModel(t)
	a, err := New(dbexec.NewStandardExecutor(db), Config{Dialect: "mysql"})
	require.NoError(t, err)
	rows := func() *sqlmock.Rows {
		return sqlmock.NewRows([]string{"id", "body"}).
			AddRow("l2", []byte(`{"title":"beta","rank":2,"tags":["x"],"owner":"u1"}`))
	}

	sqlMock.ExpectQuery(anchored("SELECT `id`, `body` FROM `lists` WHERE JSON_UNQUOTE(JSON_EXTRACT(`body`, '$.title')) = ? ORDER BY `seq` LIMIT 2 OFFSET 1")).
		WithArgs("beta").
		WillReturnRows(rows())
	docs, err := a.ReadMany(ctx, m, adapter.QueryArgs{Filter: map[string]any{"title": "beta"}, Skip: 1, Limit: 2})
	require.NoError(t, err)
	assert.Equal(t, []string{"l2"}, ids(docs))

	sqlMock.ExpectQuery(anchored("SELECT `id`, `body` FROM `lists` WHERE `id` = ? AND JSON_UNQUOTE(JSON_EXTRACT(`body`, '$.owner')) IN (?,?) ORDER BY `seq`")).
		WithArgs("l2", "u1", "u2").
		WillReturnRows(rows())
	docs, err = a.ReadMany(ctx, m, adapter.QueryArgs{Filter: map[string]any{
		"_operators": map[string]any{"owner": map[string]any{"in": []any{"u1", "u2"}}},
		"_id":        "l2",
	}})
	require.NoError(t, err)
	assert.Equal(t, []string{"l2"}, ids(docs))

	// A number filter is evaluated in Go, so the page is too.
	sqlMock.ExpectQuery(anchored("SELECT `id`, `body` FROM `lists` WHERE JSON_UNQUOTE(JSON_EXTRACT(`body`, '$.title')) = ? ORDER BY `seq`")).
		WithArgs("beta").
		WillReturnRows(rows())
	docs, err = a.ReadMany(ctx, m, adapter.QueryArgs{Filter: map[string]any{"title": "beta", "rank": int64(2)}, Limit: 5})
	require.NoError(t, err)
	assert.Equal(t, []string{"l2"}, ids(docs))

	// Sorting keeps paging in Go.
	sqlMock.ExpectQuery(anchored("SELECT `id`, `body` FROM `lists` ORDER BY `seq`")).
		WillReturnRows(rows())
	docs, err = a.ReadMany(ctx, m, adapter.QueryArgs{Sort: map[string]any{"title": int64(1)}, Limit: 1})
	require.NoError(t, err)
	assert.Equal(t, []string{"l2"}, ids(docs))

	sqlMock.ExpectQuery(anchored("SELECT COUNT(*) FROM `lists` WHERE JSON_UNQUOTE(JSON_EXTRACT(`body`, '$.title')) = ?")).
		WithArgs("beta").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(3))
	count, err := a.Count(ctx, m, adapter.QueryArgs{Filter: map[string]any{"title": "beta"}})
	require.NoError(t, err)
	assert.Equal(t, int64(3), count)

	sqlMock.ExpectQuery(anchored("SELECT `id`, `body` FROM `lists` WHERE JSON_UNQUOTE(JSON_EXTRACT(`body`, '$.owner')) IN (?,?) ORDER BY `seq`")).
		WithArgs("u1", "u9").
		WillReturnRows(rows())
	docs, err = a.ResolveBatch(ctx, adapter.BatchArgs{Model: m, FieldName: "owner", Keys: []string{"u1", "u9"}})
	require.NoError(t, err)
	assert.Equal(t, []string{"l2"}, ids(docs))

	// List fields match on any element, which the JSON accessor cannot express.
	sqlMock.ExpectQuery(anchored("SELECT `id`, `body` FROM `lists` ORDER BY `seq`")).
		WillReturnRows(rows())
	docs, err = a.ResolveBatch(ctx, adapter.BatchArgs{Model: m, FieldName: "tags", Keys: []string{"x"}})
	require.NoError(t, err)
	assert.Equal(t, []string{"l2"}, ids(docs))

	assert.NoError(t, sqlMock.ExpectationsWereMet())
}

func TestJSONTextPerDialect(t *testing.T) {
	tests := []struct {
		dialect string
		want    string
	}{
		{"mysql", "JSON_UNQUOTE(JSON_EXTRACT(`body`, '$.owner'))"},
		{"postgres", `"body"->>'owner'`},
		{"sqlite", `json_extract("body", '$.owner')`},
	}
	for _, tt := range tests {
		t.Run(tt.dialect, func(t *testing.T) {
			d, err := LookupDialect(tt.dialect)
			require.NoError(t, err)
			assert.Equal(t, tt.want, d.JSONText(d.Quote("body"), "owner"))
		})
	}
}

func TestPostgresPlaceholders(t *testing.T) {
	db, sqlMock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	m := listModel(t)
	a, err := New(dbexec.NewStandardExecutor(db), Config{Dialect: "postgres"})
	require.NoError(t, err)

	sqlMock.ExpectQuery(regexp.QuoteMeta(`SELECT "id", "body" FROM "lists" WHERE "id" IN ($1,$2) ORDER BY "seq"`)).
		WithArgs("a", "b").
		WillReturnRows(sqlmock.NewRows([]string{"id", "body"}).AddRow("a", []byte(`{}`)))
	docs, err := a.ResolveBatch(context.Background(), adapter.BatchArgs{Model: m, FieldName: "_id", Keys: []string{"a", "b"}})
	require.NoError(t, err)
	assert.Equal(t, []string{"a"}, ids(docs))

	sqlMock.ExpectQuery(regexp.QuoteMeta(`SELECT "id", "body" FROM "lists" WHERE "body"->>'owner' = $1 ORDER BY "seq"`)).
		WithArgs("u1").
		WillReturnRows(sqlmock.NewRows([]string{"id", "body"}).AddRow("a", []byte(`{"owner":"u1"}`)))
	docs, err = a.ResolveBatch(context.Background(), adapter.BatchArgs{Model: m, FieldName: "owner", Keys: []string{"u1"}})
	require.NoError(t, err)
	assert.Equal(t, []string{"a"}, ids(docs))
	assert.NoError(t, sqlMock.ExpectationsWereMet())
}

func TestNewRejectsBadConfig(t *testing.T) {
	_, err := New(nil, Config{Dialect: "sqlite"})
	require.Error(t, err)

	_, err = New(dbexec.NewStandardExecutor(nil), Config{Dialect: "oracle"})
	require.ErrorContains(t, err, "unknown sqldoc dialect")

	_, err = New(dbexec.NewStandardExecutor(nil), Config{Dialect: "sqlite", IDs: "serial"})
	require.ErrorContains(t, err, "unknown id generator")
}

func ids(docs []*document.Document) []string {
	out := make([]string, 0, len(docs))
	for _, doc := range docs {
		out = append(out, doc.ID())
	}
	return out
}
