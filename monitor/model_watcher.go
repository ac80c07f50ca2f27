package monitor

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/loiht2/getaround-pricing/backend/registry"
)

// Warmer resolves the served reference and loads its artifact. *serving.Service implements it.
type Warmer interface {
	Warm(ctx context.Context) (registry.Entry, error)
}

// ModelWatcher periodically warms the prediction cache so a newly
// registered version is loaded before the first request needs it.
type ModelWatcher struct {
	warmer   Warmer
	interval time.Duration
	logger   *slog.Logger
	stopChan chan struct{}
	wg       sync.WaitGroup

	mu      sync.Mutex
	version int
}

// NewModelWatcher creates a watcher ticking at interval
func NewModelWatcher(warmer Warmer, interval time.Duration, logger *slog.Logger) *ModelWatcher {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &ModelWatcher{
		warmer:   warmer,
		interval: interval,
		logger:   logger,
		stopChan: make(chan struct{}),
	}
}

// Start warms once immediately, then on every tick
func (w *ModelWatcher) Start() {
	w.wg.Add(1)
	go w.loop()
	w.logger.Info("model watcher started", "interval", w.interval)
}

// Stop stops the watcher gracefully
func (w *ModelWatcher) Stop() {
	close(w.stopChan)
	w.wg.Wait()
	w.logger.Info("model watcher stopped")
}

// Version is the last version loaded by the watcher, 0 before the first success
func (w *ModelWatcher) Version() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.version
}

func (w *ModelWatcher) loop() {
	defer w.wg.Done()

	w.check()
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-w.stopChan:
			return
		case <-ticker.C:
			w.check()
		}
	}
}

func (w *ModelWatcher) check() {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	entry, err := w.warmer.Warm(ctx)
	if err != nil {
		w.logger.Warn("failed to warm model", "error", err)
		return
	}

	w.mu.Lock()
	previous := w.version
	w.version = entry.Version
	w.mu.Unlock()

	if previous != entry.Version {
		w.logger.Info("serving model version changed", "name", entry.Name, "from", previous, "to", entry.Version)
	}
}
