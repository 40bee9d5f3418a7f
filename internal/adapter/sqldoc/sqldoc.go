// Package sqldoc stores entities as JSON documents in SQL tables, one table
// per model. String equality and membership on top-level fields run in SQL
// through the dialect's JSON accessor; the shared filter package evaluates
// the full filter and sort afterwards so results match the mock adapter.
package sqldoc

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	sq "github.com/Masterminds/squirrel"

	"harmony-graphql/internal/adapter"
	"harmony-graphql/internal/dbexec"
	"harmony-graphql/internal/document"
	"harmony-graphql/internal/events"
	"harmony-graphql/internal/filter"
	"harmony-graphql/internal/logging"
	"harmony-graphql/internal/model"
	"harmony-graphql/internal/naming"
)

// Name is the adapter name models refer to.
const Name = "sqldoc"

// Config configures the sqldoc adapter.
type Config struct {
	// Dialect is one of mysql, postgres or sqlite.
	Dialect string `mapstructure:"dialect"`
	// IDs selects the generator of new _id values: "uuid" or "nanoid".
	IDs    string        `mapstructure:"ids"`
	Naming naming.Config `mapstructure:"naming"`
}

// Adapter is the SQL document adapter.
type Adapter struct {
	dialect Dialect
	exec    dbexec.QueryExecutor
	newID   adapter.IDGenerator
	namer   *naming.Namer

	mu     sync.RWMutex
	tables map[string]string

	events *events.Bus
	logger *logging.Logger
}

var _ adapter.Adapter = (*Adapter)(nil)

// New creates an adapter that runs its statements through exec.
func New(exec dbexec.QueryExecutor, cfg Config) (*Adapter, error) {
	if exec == nil {
		return nil, fmt.Errorf("sqldoc adapter requires a query executor")
	}
	dialect, err := LookupDialect(cfg.Dialect)
	if err != nil {
		return nil, err
	}
	newID, err := adapter.NewIDGenerator(cfg.IDs)
	if err != nil {
		return nil, err
	}
	return &Adapter{
		dialect: dialect,
		exec:    exec,
		newID:   newID,
		namer:   naming.New(cfg.Naming),
		tables:  make(map[string]string),
		logger:  logging.Nop(),
	}, nil
}

func (a *Adapter) Name() string {
	return Name
}

// Initialize creates the table of every model bound to this adapter.
func (a *Adapter) Initialize(ctx context.Context, args adapter.InitArgs) error {
	a.events = args.Events
	if args.Logger != nil {
		a.logger = args.Logger.Component("adapter.sqldoc")
	}

	created := 0
	for _, m := range args.Models {
		if m.Adapter != Name || m.External {
			continue
		}
		table := a.table(m)
		if _, err := a.exec.ExecContext(ctx, a.dialect.CreateTable(table)); err != nil {
			return fmt.Errorf("failed to create table %s for model %s: %w", table, m.Name, err)
		}
		created++
		a.logger.Debug("document table ready", slog.String("model", m.Name), slog.String("table", table))
	}
	a.logger.Info("sqldoc adapter initialized",
		slog.String("dialect", a.dialect.Name),
		slog.Int("tables", created),
	)
	return nil
}

// Close releases nothing; the database handle belongs to the caller.
func (a *Adapter) Close(ctx context.Context) error {
	return nil
}

// table returns the table name of m, derived once per model.
func (a *Adapter) table(m *model.Sanitized) string {
	a.mu.RLock()
	table, ok := a.tables[m.Name]
	a.mu.RUnlock()
	if ok {
		return table
	}
	table = a.namer.TableName(m.Name)
	a.mu.Lock()
	a.tables[m.Name] = table
	a.mu.Unlock()
	return table
}

func (a *Adapter) col(name string) string {
	return a.dialect.Quote(name)
}

func (a *Adapter) selectDocs(m *model.Sanitized) sq.SelectBuilder {
	return sq.Select(a.col(idColumn), a.col(bodyColumn)).
		From(a.col(a.table(m))).
		OrderBy(a.col(seqColumn)).
		PlaceholderFormat(a.dialect.Placeholder)
}

func (a *Adapter) fetch(ctx context.Context, exec dbexec.QueryExecutor, b sq.SelectBuilder) ([]*document.Document, error) {
	query, args, err := b.ToSql()
	if err != nil {
		return nil, err
	}
	rows, err := exec.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*document.Document
	for rows.Next() {
		var id string
		var body []byte
		if err := rows.Scan(&id, &body); err != nil {
			return nil, err
		}
		doc, err := decodeBody(id, body)
		if err != nil {
			return nil, err
		}
		out = append(out, doc)
	}
	return out, rows.Err()
}

func (a *Adapter) fetchByID(ctx context.Context, exec dbexec.QueryExecutor, m *model.Sanitized, id string) (*document.Document, error) {
	docs, err := a.fetch(ctx, exec, a.selectDocs(m).Where(sq.Eq{a.col(idColumn): id}))
	if err != nil || len(docs) == 0 {
		return nil, err
	}
	return docs[0], nil
}

// decodeBody rebuilds an entity with _id first, as it was created.
func decodeBody(id string, body []byte) (*document.Document, error) {
	stored, err := document.Parse(body)
	if err != nil {
		return nil, fmt.Errorf("failed to decode document %s: %w", id, err)
	}
	doc := document.New().Set(document.IDField, id)
	stored.Range(func(key string, value any) bool {
		if key != document.IDField {
			doc.Set(key, value)
		}
		return true
	})
	return doc, nil
}

// encodeBody stores every field except _id, which has its own column.
func encodeBody(doc *document.Document) (string, error) {
	body := doc.Clone()
	body.Delete(document.IDField)
	data, err := body.MarshalJSON()
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func (a *Adapter) exec1(ctx context.Context, exec dbexec.QueryExecutor, b interface {
	ToSql() (string, []interface{}, error)
}) (int64, error) {
	query, args, err := b.ToSql()
	if err != nil {
		return 0, err
	}
	result, err := exec.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

// query runs the translatable part of the filter in SQL and evaluates the
// whole filter, sort and page on the fetched documents. Paging moves into
// SQL when nothing is left for the filter to reject and rows keep their
// insertion order.
func (a *Adapter) query(ctx context.Context, m *model.Sanitized, args adapter.QueryArgs, limit int) ([]*document.Document, error) {
	keys, err := filter.SortKeys(args.Sort)
	if err != nil {
		return nil, err
	}
	p := a.planFilter(m, args.Filter)
	b := p.apply(a.selectDocs(m))
	skip := args.Skip
	if p.exact && len(keys) == 0 && limit > 0 {
		b = b.Limit(uint64(limit))
		if skip > 0 {
			b = b.Offset(uint64(skip))
		}
		skip = 0
	}

	docs, err := a.fetch(ctx, a.exec, b)
	if err != nil {
		return nil, fmt.Errorf("failed to query %s: %w", m.Name, err)
	}
	return filter.Query(docs, args.Filter, args.Sort, skip, limit)
}

// ResolveBatch looks entities up in SQL when the field is stored as a
// string, and scans the table otherwise. List fields match on any element.
func (a *Adapter) ResolveBatch(ctx context.Context, args adapter.BatchArgs) ([]*document.Document, error) {
	if len(args.Keys) == 0 {
		return nil, nil
	}
	b := a.selectDocs(args.Model)
	if col, ok := a.textColumn(args.Model, args.FieldName); ok {
		b = b.Where(eqOrIn(col, args.Keys))
	}
	docs, err := a.fetch(ctx, a.exec, b)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve %s by %s: %w", args.Model.Name, args.FieldName, err)
	}
	keys := adapter.KeySet(args.Keys)
	out := docs[:0]
	for _, doc := range docs {
		if adapter.MatchAny(doc.Value(args.FieldName), keys) {
			out = append(out, doc)
		}
	}
	return out, nil
}

func (a *Adapter) Read(ctx context.Context, m *model.Sanitized, args adapter.QueryArgs) (*document.Document, error) {
	docs, err := a.query(ctx, m, args, 1)
	if err != nil || len(docs) == 0 {
		return nil, err
	}
	return docs[0], nil
}

func (a *Adapter) ReadMany(ctx context.Context, m *model.Sanitized, args adapter.QueryArgs) ([]*document.Document, error) {
	return a.query(ctx, m, args, args.Limit)
}

// Count runs COUNT(*) when the filter translates to SQL entirely and counts
// matching documents otherwise.
func (a *Adapter) Count(ctx context.Context, m *model.Sanitized, args adapter.QueryArgs) (int64, error) {
	p := a.planFilter(m, args.Filter)
	if !p.exact {
		docs, err := a.query(ctx, m, adapter.QueryArgs{Filter: args.Filter}, 0)
		if err != nil {
			return 0, err
		}
		return int64(len(docs)), nil
	}

	b := sq.Select("COUNT(*)").
		From(a.col(a.table(m))).
		PlaceholderFormat(a.dialect.Placeholder)
	query, qargs, err := p.apply(b).ToSql()
	if err != nil {
		return 0, err
	}
	rows, err := a.exec.QueryContext(ctx, query, qargs...)
	if err != nil {
		return 0, fmt.Errorf("failed to count %s: %w", m.Name, err)
	}
	defer rows.Close()
	var count int64
	if rows.Next() {
		if err := rows.Scan(&count); err != nil {
			return 0, err
		}
	}
	return count, rows.Err()
}

func (a *Adapter) insert(ctx context.Context, exec dbexec.QueryExecutor, m *model.Sanitized, record *document.Document) (*document.Document, error) {
	id := record.ID()
	if id == "" {
		generated, err := a.newID()
		if err != nil {
			return nil, fmt.Errorf("failed to generate id: %w", err)
		}
		id = generated
	}
	doc := document.New().Set(document.IDField, id)
	record.Range(func(key string, value any) bool {
		if key != document.IDField {
			doc.Set(key, value)
		}
		return true
	})

	body, err := encodeBody(doc)
	if err != nil {
		return nil, fmt.Errorf("failed to encode %s %s: %w", m.Name, id, err)
	}
	_, err = a.exec1(ctx, exec, sq.Insert(a.col(a.table(m))).
		Columns(a.col(idColumn), a.col(bodyColumn)).
		Values(id, body).
		PlaceholderFormat(a.dialect.Placeholder))
	if a.dialect.IsDuplicate(err) {
		return nil, fmt.Errorf("%s %s: %w", m.Name, id, adapter.ErrAlreadyExists)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to insert %s %s: %w", m.Name, id, err)
	}
	return doc, nil
}

func (a *Adapter) Create(ctx context.Context, m *model.Sanitized, record *document.Document) (*document.Document, error) {
	doc, err := a.insert(ctx, a.exec, m, record)
	if err != nil {
		return nil, err
	}
	a.publish(m, events.Created, doc)
	return doc, nil
}

// CreateMany inserts every record in one transaction. Nothing is stored
// when one insert fails.
func (a *Adapter) CreateMany(ctx context.Context, m *model.Sanitized, records []*document.Document) ([]*document.Document, error) {
	out := make([]*document.Document, 0, len(records))
	err := dbexec.InTx(ctx, a.exec, func(exec dbexec.QueryExecutor) error {
		for _, record := range records {
			doc, err := a.insert(ctx, exec, m, record)
			if err != nil {
				return err
			}
			out = append(out, doc)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	for _, doc := range out {
		a.publish(m, events.Created, doc)
	}
	return out, nil
}

func (a *Adapter) update(ctx context.Context, exec dbexec.QueryExecutor, m *model.Sanitized, record *document.Document) (*document.Document, error) {
	id := record.ID()
	existing, err := a.fetchByID(ctx, exec, m, id)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s %s: %w", m.Name, id, err)
	}
	if existing == nil {
		return nil, fmt.Errorf("%s %s: %w", m.Name, id, adapter.ErrNotFound)
	}
	patch := record.Clone()
	patch.Delete(document.IDField)
	updated := existing.Merge(patch)

	body, err := encodeBody(updated)
	if err != nil {
		return nil, fmt.Errorf("failed to encode %s %s: %w", m.Name, id, err)
	}
	if _, err := a.exec1(ctx, exec, sq.Update(a.col(a.table(m))).
		Set(a.col(bodyColumn), body).
		Where(sq.Eq{a.col(idColumn): id}).
		PlaceholderFormat(a.dialect.Placeholder)); err != nil {
		return nil, fmt.Errorf("failed to update %s %s: %w", m.Name, id, err)
	}
	return updated, nil
}

// Update deep-merges record into the stored entity.
func (a *Adapter) Update(ctx context.Context, m *model.Sanitized, record *document.Document) (*document.Document, error) {
	var out *document.Document
	err := dbexec.InTx(ctx, a.exec, func(exec dbexec.QueryExecutor) error {
		var err error
		out, err = a.update(ctx, exec, m, record)
		return err
	})
	if err != nil {
		return nil, err
	}
	a.publish(m, events.Updated, out)
	return out, nil
}

func (a *Adapter) UpdateMany(ctx context.Context, m *model.Sanitized, records []*document.Document) ([]*document.Document, error) {
	out := make([]*document.Document, 0, len(records))
	err := dbexec.InTx(ctx, a.exec, func(exec dbexec.QueryExecutor) error {
		for _, record := range records {
			doc, err := a.update(ctx, exec, m, record)
			if err != nil {
				return err
			}
			out = append(out, doc)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	for _, doc := range out {
		a.publish(m, events.Updated, doc)
	}
	return out, nil
}

func (a *Adapter) remove(ctx context.Context, exec dbexec.QueryExecutor, m *model.Sanitized, id string) (*document.Document, error) {
	existing, err := a.fetchByID(ctx, exec, m, id)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s %s: %w", m.Name, id, err)
	}
	if existing == nil {
		return nil, nil
	}
	if _, err := a.exec1(ctx, exec, sq.Delete(a.col(a.table(m))).
		Where(sq.Eq{a.col(idColumn): id}).
		PlaceholderFormat(a.dialect.Placeholder)); err != nil {
		return nil, fmt.Errorf("failed to delete %s %s: %w", m.Name, id, err)
	}
	return existing, nil
}

// Delete removes one entity. Deleting a missing entity returns nil.
func (a *Adapter) Delete(ctx context.Context, m *model.Sanitized, id string) (*document.Document, error) {
	var out *document.Document
	err := dbexec.InTx(ctx, a.exec, func(exec dbexec.QueryExecutor) error {
		var err error
		out, err = a.remove(ctx, exec, m, id)
		return err
	})
	if err != nil || out == nil {
		return nil, err
	}
	a.publish(m, events.Deleted, out)
	return out, nil
}

// DeleteMany removes entities in one transaction. Missing entities yield
// nil entries.
func (a *Adapter) DeleteMany(ctx context.Context, m *model.Sanitized, ids []string) ([]*document.Document, error) {
	out := make([]*document.Document, 0, len(ids))
	err := dbexec.InTx(ctx, a.exec, func(exec dbexec.QueryExecutor) error {
		for _, id := range ids {
			doc, err := a.remove(ctx, exec, m, id)
			if err != nil {
				return err
			}
			out = append(out, doc)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	for _, doc := range out {
		if doc != nil {
			a.publish(m, events.Deleted, doc)
		}
	}
	return out, nil
}

func (a *Adapter) publish(m *model.Sanitized, kind events.Kind, doc *document.Document) {
	a.events.Publish(events.Event{Model: m.Name, Kind: kind, Entity: doc.Clone()})
}
