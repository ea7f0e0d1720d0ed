package config

import (
	"context"
	"sync"

	"clewdr-go/internal/events"

	"github.com/fsnotify/fsnotify"
	log "github.com/sirupsen/logrus"
)

// Manager owns the active configuration snapshot and publishes a
// TopicConfigUpdated event whenever the on-disk document is reloaded,
// mirroring the teacher's ConfigManager.
type Manager struct {
	mu        sync.RWMutex
	cfg       *Config
	path      string
	publisher events.Publisher
	watcher   *fsnotify.Watcher
}

var (
	globalMu      sync.RWMutex
	globalManager *Manager
)

// NewManager loads path and returns a Manager wrapping the result.
func NewManager(path string) (*Manager, error) {
	cfg, err := Load(path)
	if err != nil {
		return nil, err
	}
	m := &Manager{cfg: cfg, path: path}

	globalMu.Lock()
	globalManager = m
	globalMu.Unlock()

	return m, nil
}

// GetManager returns the most recently constructed Manager, or nil.
func GetManager() *Manager {
	globalMu.RLock()
	defer globalMu.RUnlock()
	return globalManager
}

// SetEventPublisher wires a publisher used to announce reloads.
func (m *Manager) SetEventPublisher(p events.Publisher) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.publisher = p
}

// Get returns the current configuration snapshot. Callers must not mutate
// the returned pointer's fields directly; use Reload or Save instead.
func (m *Manager) Get() *Config {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.cfg
}

// Reload re-reads the TOML document plus environment overrides and swaps
// the active snapshot atomically, publishing TopicConfigUpdated.
func (m *Manager) Reload() error {
	cfg, err := Load(m.path)
	if err != nil {
		return err
	}
	m.mu.Lock()
	m.cfg = cfg
	pub := m.publisher
	m.mu.Unlock()

	if pub != nil {
		pub.Publish(context.Background(), events.TopicConfigUpdated, nil, nil)
	}
	return nil
}

// Save persists cfg and swaps it in as the active snapshot.
func (m *Manager) Save(cfg *Config) error {
	if err := Save(m.path, cfg); err != nil {
		return err
	}
	m.mu.Lock()
	m.cfg = cfg
	pub := m.publisher
	m.mu.Unlock()
	if pub != nil {
		pub.Publish(context.Background(), events.TopicConfigUpdated, nil, nil)
	}
	return nil
}

// WatchFile starts an fsnotify watch on the backing document and calls
// Reload on every write event, logging (not failing) reload errors.
func (m *Manager) WatchFile(ctx context.Context) error {
	if m.path == "" {
		return nil
	}
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	if err := w.Add(m.path); err != nil {
		_ = w.Close()
		return err
	}
	m.mu.Lock()
	m.watcher = w
	m.mu.Unlock()

	go func() {
		defer w.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-w.Events:
				if !ok {
					return
				}
				if ev.Op&(fsnotify.Write|fsnotify.Create) != 0 {
					if err := m.Reload(); err != nil {
						log.WithError(err).Warn("config reload failed")
					}
				}
			case err, ok := <-w.Errors:
				if !ok {
					return
				}
				log.WithError(err).Warn("config watcher error")
			}
		}
	}()
	return nil
}
