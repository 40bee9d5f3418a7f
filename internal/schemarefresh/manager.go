// Package schemarefresh builds schema snapshots from the model file and
// swaps them in when the file changes or a reload is requested.
package schemarefresh

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"

	"harmony-graphql/internal/executable"
	"harmony-graphql/internal/logging"
	"harmony-graphql/internal/observability"
	"harmony-graphql/internal/persistence"
)

// DefaultDebounce collapses the burst of events an editor save produces.
const DefaultDebounce = 250 * time.Millisecond

// Reload triggers reported to metrics and logs.
const (
	TriggerStartup = "startup"
	TriggerManual  = "manual"
	TriggerWatch   = "watch"
)

// Snapshot contains an immutable view of the current schema state.
type Snapshot struct {
	Instance    *persistence.Instance
	Handler     http.Handler
	BuiltAt     time.Time
	Fingerprint string
	Models      int
}

// SDL returns the printed schema of the snapshot.
func (s *Snapshot) SDL() string {
	return s.Instance.SDL()
}

// Config controls schema building and reloads.
type Config struct {
	ModelFile string
	Build     BuildFunc
	Handler   executable.HandlerConfig
	// Watch rebuilds the schema when the model file changes on disk.
	Watch    bool
	Debounce time.Duration
	Logger   *logging.Logger
	Metrics  *observability.ReloadMetrics
}

// Manager maintains the active schema snapshot.
type Manager struct {
	path       string
	build      BuildFunc
	handlerCfg executable.HandlerConfig
	watch      bool
	debounce   time.Duration
	logger     *logging.Logger
	metrics    *observability.ReloadMetrics

	active   atomic.Pointer[Snapshot]
	reloadMu sync.Mutex
	wg       sync.WaitGroup
}

// NewManager builds the initial snapshot and returns a manager.
func NewManager(ctx context.Context, cfg Config) (*Manager, error) {
	if cfg.ModelFile == "" {
		return nil, fmt.Errorf("schema manager requires a model file")
	}
	if cfg.Build == nil {
		return nil, fmt.Errorf("schema manager requires a build function")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = logging.Nop()
	}
	debounce := cfg.Debounce
	if debounce <= 0 {
		debounce = DefaultDebounce
	}

	m := &Manager{
		path:       filepath.Clean(cfg.ModelFile),
		build:      cfg.Build,
		handlerCfg: cfg.Handler,
		watch:      cfg.Watch,
		debounce:   debounce,
		logger:     logger.Component("schema_refresh"),
		metrics:    cfg.Metrics,
	}

	start := time.Now()
	src, err := readSource(m.path)
	if err != nil {
		m.recordReload(ctx, time.Since(start), false, TriggerStartup, 0)
		return nil, err
	}
	snapshot, err := m.buildSnapshot(ctx, src)
	if err != nil {
		m.recordReload(ctx, time.Since(start), false, TriggerStartup, 0)
		return nil, err
	}
	m.active.Store(snapshot)
	m.recordReload(ctx, time.Since(start), true, TriggerStartup, snapshot.Models)
	m.logger.Info("schema built",
		slog.String("model_file", m.path),
		slog.Int("models", snapshot.Models),
		slog.String("fingerprint", snapshot.Fingerprint),
	)
	return m, nil
}

// Start watches the model file when watching is enabled. The watch stops
// when ctx is canceled.
func (m *Manager) Start(ctx context.Context) error {
	if !m.watch {
		m.logger.Info("model file watching disabled")
		return nil
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create model file watcher: %w", err)
	}
	// Editors often replace the file, so the directory is watched.
	if err := watcher.Add(filepath.Dir(m.path)); err != nil {
		_ = watcher.Close()
		return fmt.Errorf("failed to watch %s: %w", filepath.Dir(m.path), err)
	}

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		defer watcher.Close()
		m.watchLoop(ctx, watcher)
	}()
	m.logger.Info("watching model file", slog.String("model_file", m.path), slog.Duration("debounce", m.debounce))
	return nil
}

func (m *Manager) watchLoop(ctx context.Context, watcher *fsnotify.Watcher) {
	timer := time.NewTimer(m.debounce)
	timer.Stop()
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			m.logger.Info("model file watch stopped")
			return
		case event, ok := <-watcher.Events:
			if !ok {
				return
			}
			if !m.relevant(event) {
				continue
			}
			m.logger.Debug("model file changed", slog.String("op", event.Op.String()))
			timer.Reset(m.debounce)
		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			m.logger.Warn("model file watcher error", slog.String("error", err.Error()))
		case <-timer.C:
			if _, err := m.reload(ctx, TriggerWatch, true); err != nil {
				m.logger.Error("failed to reload schema, keeping the previous one", slog.String("error", err.Error()))
			}
		}
	}
}

func (m *Manager) relevant(event fsnotify.Event) bool {
	if filepath.Clean(event.Name) != m.path {
		return false
	}
	return event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) != 0
}

// Handler serves each request with the snapshot active when it arrives.
func (m *Manager) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		snapshot := m.CurrentSnapshot()
		if snapshot == nil {
			http.Error(w, "schema not ready", http.StatusServiceUnavailable)
			return
		}
		snapshot.Handler.ServeHTTP(w, r)
	})
}

// CurrentSnapshot returns the active snapshot, or nil after Close.
func (m *Manager) CurrentSnapshot() *Snapshot {
	return m.active.Load()
}

// Reload rebuilds the schema from the model file and swaps it in. On error
// the previous snapshot stays active.
func (m *Manager) Reload(ctx context.Context) (*Snapshot, error) {
	return m.reload(ctx, TriggerManual, false)
}

func (m *Manager) reload(ctx context.Context, trigger string, skipUnchanged bool) (*Snapshot, error) {
	m.reloadMu.Lock()
	defer m.reloadMu.Unlock()

	start := time.Now()
	current := m.active.Load()
	if current == nil {
		return nil, fmt.Errorf("schema manager is closed")
	}
	src, err := readSource(m.path)
	if err != nil {
		m.recordReload(ctx, time.Since(start), false, trigger, current.Models)
		return nil, err
	}
	if skipUnchanged && src.fingerprint == current.Fingerprint {
		m.recordReload(ctx, time.Since(start), true, trigger+"_no_change", current.Models)
		return current, nil
	}

	snapshot, err := m.buildSnapshot(ctx, src)
	if err != nil {
		m.recordReload(ctx, time.Since(start), false, trigger, current.Models)
		return nil, err
	}
	if !m.active.CompareAndSwap(current, snapshot) {
		snapshot.Instance.Detach()
		return nil, fmt.Errorf("schema manager is closed")
	}
	current.Instance.Detach()

	m.recordReload(ctx, time.Since(start), true, trigger, snapshot.Models)
	m.logger.Info("schema reloaded",
		slog.String("trigger", trigger),
		slog.Int("models", snapshot.Models),
		slog.String("fingerprint", snapshot.Fingerprint),
		slog.Duration("duration", time.Since(start)),
	)
	return snapshot, nil
}

// Wait blocks until the watch loop exits or the context is canceled.
func (m *Manager) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close retires the active snapshot and closes its adapters.
func (m *Manager) Close(ctx context.Context) error {
	m.reloadMu.Lock()
	defer m.reloadMu.Unlock()
	snapshot := m.active.Swap(nil)
	if snapshot == nil {
		return nil
	}
	return snapshot.Instance.Close(ctx)
}

func (m *Manager) recordReload(ctx context.Context, duration time.Duration, success bool, trigger string, models int) {
	m.metrics.RecordReload(ctx, duration, success, trigger, models)
}
