// Package mock is an in-memory adapter. It keeps every model in process
// memory and can persist a msgpack snapshot between runs.
package mock

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/vmihailenco/msgpack/v5"

	"harmony-graphql/internal/adapter"
	"harmony-graphql/internal/document"
	"harmony-graphql/internal/events"
	"harmony-graphql/internal/filter"
	"harmony-graphql/internal/logging"
	"harmony-graphql/internal/model"
)

// Name is the adapter name models refer to.
const Name = "mock"

// Config configures the mock adapter.
type Config struct {
	// SnapshotPath, when set, is loaded on Initialize and written on Close.
	SnapshotPath string `mapstructure:"snapshot_path"`
	// IDs selects the generator of new _id values: "uuid" or "nanoid".
	IDs string `mapstructure:"ids"`
}

type collection struct {
	order []string
	docs  map[string]*document.Document
}

func newCollection() *collection {
	return &collection{docs: make(map[string]*document.Document)}
}

func (c *collection) all() []*document.Document {
	out := make([]*document.Document, 0, len(c.order))
	for _, id := range c.order {
		out = append(out, c.docs[id])
	}
	return out
}

func (c *collection) put(doc *document.Document) {
	id := doc.ID()
	if _, exists := c.docs[id]; !exists {
		c.order = append(c.order, id)
	}
	c.docs[id] = doc
}

func (c *collection) remove(id string) {
	if _, exists := c.docs[id]; !exists {
		return
	}
	delete(c.docs, id)
	for i, existing := range c.order {
		if existing == id {
			c.order = append(c.order[:i], c.order[i+1:]...)
			break
		}
	}
}

// Adapter is the in-memory adapter.
type Adapter struct {
	cfg   Config
	newID adapter.IDGenerator

	mu          sync.RWMutex
	collections map[string]*collection
	loaded      bool

	events *events.Bus
	logger *logging.Logger
}

var _ adapter.Adapter = (*Adapter)(nil)

// New creates an empty mock adapter.
func New(cfg Config) (*Adapter, error) {
	newID, err := adapter.NewIDGenerator(cfg.IDs)
	if err != nil {
		return nil, err
	}
	return &Adapter{
		cfg:         cfg,
		newID:       newID,
		collections: make(map[string]*collection),
		logger:      logging.Nop(),
	}, nil
}

func (a *Adapter) Name() string {
	return Name
}

// Initialize loads the snapshot when one is configured and present. The
// snapshot is read once; initializing again for a rebuilt schema keeps the
// documents in memory.
func (a *Adapter) Initialize(ctx context.Context, args adapter.InitArgs) error {
	a.events = args.Events
	if args.Logger != nil {
		a.logger = args.Logger.Component("adapter.mock")
	}
	if a.cfg.SnapshotPath == "" || a.loaded {
		return nil
	}
	a.loaded = true
	loaded, err := a.load()
	if err != nil {
		return err
	}
	a.logger.Info("mock adapter initialized",
		"snapshot", a.cfg.SnapshotPath,
		"entities", loaded,
		"models", len(args.Models),
	)
	return nil
}

// Close writes the snapshot when one is configured.
func (a *Adapter) Close(ctx context.Context) error {
	if a.cfg.SnapshotPath == "" {
		return nil
	}
	return a.save()
}

type snapshotCollection struct {
	Model string               `msgpack:"model"`
	Docs  []*document.Document `msgpack:"docs"`
}

type snapshot struct {
	Version     int                  `msgpack:"version"`
	Collections []snapshotCollection `msgpack:"collections"`
}

func (a *Adapter) load() (int, error) {
	data, err := os.ReadFile(a.cfg.SnapshotPath)
	if errors.Is(err, os.ErrNotExist) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to read snapshot: %w", err)
	}
	var snap snapshot
	if err := msgpack.Unmarshal(data, &snap); err != nil {
		return 0, fmt.Errorf("failed to decode snapshot %s: %w", a.cfg.SnapshotPath, err)
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	count := 0
	for _, sc := range snap.Collections {
		c := newCollection()
		for _, doc := range sc.Docs {
			if doc == nil || doc.ID() == "" {
				continue
			}
			c.put(doc)
			count++
		}
		a.collections[sc.Model] = c
	}
	return count, nil
}

func (a *Adapter) save() error {
	a.mu.RLock()
	snap := snapshot{Version: 1}
	for _, name := range sortedNames(a.collections) {
		snap.Collections = append(snap.Collections, snapshotCollection{
			Model: name,
			Docs:  a.collections[name].all(),
		})
	}
	data, err := msgpack.Marshal(&snap)
	a.mu.RUnlock()
	if err != nil {
		return fmt.Errorf("failed to encode snapshot: %w", err)
	}

	if dir := filepath.Dir(a.cfg.SnapshotPath); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create snapshot directory: %w", err)
		}
	}
	tmp := a.cfg.SnapshotPath + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("failed to write snapshot: %w", err)
	}
	if err := os.Rename(tmp, a.cfg.SnapshotPath); err != nil {
		return fmt.Errorf("failed to replace snapshot: %w", err)
	}
	return nil
}

// collection returns the collection of m, creating it when asked to.
// Callers must hold the lock matching create.
func (a *Adapter) collection(m *model.Sanitized, create bool) *collection {
	c, ok := a.collections[m.Name]
	if !ok && create {
		c = newCollection()
		a.collections[m.Name] = c
	}
	return c
}

// snapshotOf returns clones of every document of m.
func (a *Adapter) snapshotOf(m *model.Sanitized) []*document.Document {
	a.mu.RLock()
	defer a.mu.RUnlock()
	c := a.collection(m, false)
	if c == nil {
		return nil
	}
	docs := c.all()
	out := make([]*document.Document, len(docs))
	for i, doc := range docs {
		out[i] = doc.Clone()
	}
	return out
}

func (a *Adapter) ResolveBatch(ctx context.Context, args adapter.BatchArgs) ([]*document.Document, error) {
	keys := adapter.KeySet(args.Keys)
	var out []*document.Document
	for _, doc := range a.snapshotOf(args.Model) {
		if adapter.MatchAny(doc.Value(args.FieldName), keys) {
			out = append(out, doc)
		}
	}
	return out, nil
}

func (a *Adapter) Read(ctx context.Context, m *model.Sanitized, args adapter.QueryArgs) (*document.Document, error) {
	docs, err := filter.Query(a.snapshotOf(m), args.Filter, args.Sort, args.Skip, 1)
	if err != nil || len(docs) == 0 {
		return nil, err
	}
	return docs[0], nil
}

func (a *Adapter) ReadMany(ctx context.Context, m *model.Sanitized, args adapter.QueryArgs) ([]*document.Document, error) {
	return filter.Query(a.snapshotOf(m), args.Filter, args.Sort, args.Skip, args.Limit)
}

func (a *Adapter) Count(ctx context.Context, m *model.Sanitized, args adapter.QueryArgs) (int64, error) {
	docs, err := filter.Query(a.snapshotOf(m), args.Filter, nil, 0, 0)
	if err != nil {
		return 0, err
	}
	return int64(len(docs)), nil
}

func (a *Adapter) Create(ctx context.Context, m *model.Sanitized, record *document.Document) (*document.Document, error) {
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

	a.mu.Lock()
	c := a.collection(m, true)
	if _, exists := c.docs[id]; exists {
		a.mu.Unlock()
		return nil, fmt.Errorf("%s %s: %w", m.Name, id, adapter.ErrAlreadyExists)
	}
	c.put(doc)
	out := doc.Clone()
	a.mu.Unlock()

	a.events.Publish(events.Event{Model: m.Name, Kind: events.Created, Entity: out.Clone()})
	return out, nil
}

func (a *Adapter) CreateMany(ctx context.Context, m *model.Sanitized, records []*document.Document) ([]*document.Document, error) {
	out := make([]*document.Document, 0, len(records))
	for _, record := range records {
		doc, err := a.Create(ctx, m, record)
		if err != nil {
			return out, err
		}
		out = append(out, doc)
	}
	return out, nil
}

func (a *Adapter) Update(ctx context.Context, m *model.Sanitized, record *document.Document) (*document.Document, error) {
	id := record.ID()
	patch := record.Clone()
	patch.Delete(document.IDField)

	a.mu.Lock()
	c := a.collection(m, false)
	var existing *document.Document
	if c != nil {
		existing = c.docs[id]
	}
	if existing == nil {
		a.mu.Unlock()
		return nil, fmt.Errorf("%s %s: %w", m.Name, id, adapter.ErrNotFound)
	}
	updated := existing.Clone().Merge(patch)
	c.put(updated)
	out := updated.Clone()
	a.mu.Unlock()

	a.events.Publish(events.Event{Model: m.Name, Kind: events.Updated, Entity: out.Clone()})
	return out, nil
}

func (a *Adapter) UpdateMany(ctx context.Context, m *model.Sanitized, records []*document.Document) ([]*document.Document, error) {
	out := make([]*document.Document, 0, len(records))
	for _, record := range records {
		doc, err := a.Update(ctx, m, record)
		if err != nil {
			return out, err
		}
		out = append(out, doc)
	}
	return out, nil
}

// Delete removes one entity. Deleting a missing entity returns nil.
func (a *Adapter) Delete(ctx context.Context, m *model.Sanitized, id string) (*document.Document, error) {
	a.mu.Lock()
	c := a.collection(m, false)
	var existing *document.Document
	if c != nil {
		existing = c.docs[id]
		c.remove(id)
	}
	a.mu.Unlock()

	if existing == nil {
		return nil, nil
	}
	a.events.Publish(events.Event{Model: m.Name, Kind: events.Deleted, Entity: existing.Clone()})
	return existing, nil
}

// DeleteMany removes entities one by one. Missing entities yield nil
// entries.
func (a *Adapter) DeleteMany(ctx context.Context, m *model.Sanitized, ids []string) ([]*document.Document, error) {
	out := make([]*document.Document, 0, len(ids))
	for _, id := range ids {
		doc, err := a.Delete(ctx, m, id)
		if err != nil {
			return out, err
		}
		out = append(out, doc)
	}
	return out, nil
}

func sortedNames(m map[string]*collection) []string {
	names := make([]string, 0, len(m))
	for name := range m {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
