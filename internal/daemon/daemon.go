// Package daemon provides the background process that keeps a project's
// local files flowing into the cloud sync engine.
//
// The daemon:
// 1. Watches for file changes in chapters/ and entities/ directories
// 2. Enqueues sync operations for changed files (debounced)
// 3. Periodically drains the sync queue so retries happen on schedule
// 4. Polls the credential provider so sign-in is picked up while running
// 5. Handles graceful shutdown
package daemon

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/inkwell-app/inkwell/internal/project"
	"github.com/inkwell-app/inkwell/internal/syncengine"
	"github.com/inkwell-app/inkwell/internal/watcher"
)

// Config holds configuration for the daemon.
type Config struct {
	// DrainInterval is how often to attempt a drain cycle. Retry delays
	// are computed by the engine; the ticker only provides the heartbeat.
	DrainInterval time.Duration

	// DebounceInterval is how long to wait before processing file changes.
	// This batches rapid editor saves together.
	DebounceInterval time.Duration

	// CredentialPollInterval is how often to check whether the user has
	// signed in while the engine is offline.
	CredentialPollInterval time.Duration

	// Logger for daemon activity
	Logger *log.Logger
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		DrainInterval:          30 * time.Second,
		DebounceInterval:       100 * time.Millisecond,
		CredentialPollInterval: 5 * time.Second,
		Logger:                 log.New(os.Stderr, "[daemon] ", log.LstdFlags),
	}
}

// Daemon orchestrates file watching and sync queue draining for one
// project.
type Daemon struct {
	engine *syncengine.Engine
	layout project.Layout
	config *Config

	watcher       *watcher.FileWatcher
	changeQueue   map[string]queuedChange // filepath -> change
	changeQueueMu sync.Mutex

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

type queuedChange struct {
	scope    syncengine.Scope
	queuedAt time.Time
}

// New creates a new Daemon instance. Use Start() to begin watching and
// syncing.
func New(engine *syncengine.Engine, layout project.Layout, config *Config) (*Daemon, error) {
	if engine == nil {
		return nil, fmt.Errorf("engine cannot be nil")
	}
	if layout.Root == "" {
		return nil, fmt.Errorf("project root cannot be empty")
	}
	if config == nil {
		config = DefaultConfig()
	}

	fw, err := watcher.NewFileWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create watcher: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Daemon{
		engine:      engine,
		layout:      layout,
		config:      config,
		watcher:     fw,
		changeQueue: make(map[string]queuedChange),
		ctx:         ctx,
		cancel:      cancel,
	}, nil
}

// Start begins the daemon's operation.
//
// The daemon will:
// 1. Enqueue any local content not yet known to the sync engine
// 2. Start watching for file changes
// 3. Drain the queue periodically and after debounced changes
//
// This blocks until ctx is cancelled or an error occurs.
func (d *Daemon) Start(ctx context.Context) error {
	d.config.Logger.Println("Starting daemon")

	if err := os.MkdirAll(d.layout.ChaptersDir(), 0755); err != nil {
		return fmt.Errorf("failed to create chapters directory: %w", err)
	}
	if err := os.MkdirAll(d.layout.EntitiesDir(), 0755); err != nil {
		return fmt.Errorf("failed to create entities directory: %w", err)
	}

	// Catch up on anything created or edited while the daemon was down.
	if err := d.EnqueueBacklog(ctx); err != nil {
		return fmt.Errorf("initial scan failed: %w", err)
	}

	if err := d.watcher.Start(d.layout.ChaptersDir(), d.layout.EntitiesDir()); err != nil {
		return fmt.Errorf("failed to start watcher: %w", err)
	}

	d.config.Logger.Printf("Watching: %s, %s", d.layout.ChaptersDir(), d.layout.EntitiesDir())

	d.wg.Add(3)
	go d.watchFileEvents()
	go d.processChangeQueue()
	go d.drainLoop()

	// Initial drain so queued work does not wait for the first tick.
	if err := d.engine.RunDrainCycle(d.ctx); err != nil {
		d.config.Logger.Printf("Initial drain failed: %v", err)
	}

	select {
	case <-ctx.Done():
		d.config.Logger.Println("Shutdown signal received")
		return d.Stop()
	case <-d.ctx.Done():
		return nil
	}
}

// Stop gracefully shuts down the daemon.
func (d *Daemon) Stop() error {
	d.config.Logger.Println("Stopping daemon")

	d.cancel()

	if err := d.watcher.Stop(); err != nil {
		d.config.Logger.Printf("Error stopping watcher: %v", err)
	}

	d.wg.Wait()

	d.engine.Close()

	d.config.Logger.Println("Daemon stopped")
	return nil
}

// EnqueueBacklog scans the project directories and enqueues a sync
// operation for every chapter and entity that has no remote id yet.
// It's called on startup and can be triggered manually.
func (d *Daemon) EnqueueBacklog(ctx context.Context) error {
	chapters, err := project.ReadAllChapterFiles(d.layout.ChaptersDir())
	if err != nil {
		return fmt.Errorf("failed to read chapters: %w", err)
	}
	for _, ch := range chapters {
		if _, ok := d.engine.RemoteIDFor(syncengine.ScopeChapter, ch.LocalID); ok {
			continue
		}
		if err := d.engine.Enqueue(ctx, syncengine.OpCreateChapter, ch.LocalID, ch.SyncPayload()); err != nil {
			d.config.Logger.Printf("Warning: failed to enqueue chapter %s: %v", ch.LocalID, err)
		}
	}

	entities, err := project.ReadAllEntityFiles(d.layout.EntitiesDir())
	if err != nil {
		return fmt.Errorf("failed to read entities: %w", err)
	}
	for _, ent := range entities {
		if _, ok := d.engine.RemoteIDFor(syncengine.ScopeEntity, ent.LocalID); ok {
			continue
		}
		if err := d.engine.Enqueue(ctx, syncengine.OpCreateEntity, ent.LocalID, ent.SyncPayload()); err != nil {
			d.config.Logger.Printf("Warning: failed to enqueue entity %s: %v", ent.LocalID, err)
		}
	}

	d.config.Logger.Printf("Backlog scan complete: %d pending", d.engine.PendingCount())
	return nil
}

// watchFileEvents monitors filesystem events and queues changes.
func (d *Daemon) watchFileEvents() {
	defer d.wg.Done()

	for {
		select {
		case <-d.ctx.Done():
			return

		case event, ok := <-d.watcher.Events():
			if !ok {
				return
			}

			// Deletions don't produce sync operations; the record for a
			// deleted file is coalesced away by later edits or simply
			// fails against the remote.
			if event.Op == watcher.OpDelete {
				continue
			}

			d.config.Logger.Printf("File event: %s %s", event.Op, event.Path)
			d.queueChange(event.Path, event.Scope)

		case err, ok := <-d.watcher.Errors():
			if !ok {
				return
			}
			d.config.Logger.Printf("Watcher error: %v", err)
		}
	}
}

// queueChange adds a file to the change queue with debouncing.
func (d *Daemon) queueChange(path string, scope syncengine.Scope) {
	d.changeQueueMu.Lock()
	defer d.changeQueueMu.Unlock()

	d.changeQueue[path] = queuedChange{scope: scope, queuedAt: time.Now()}
}

// processChangeQueue processes queued file changes with debouncing.
func (d *Daemon) processChangeQueue() {
	defer d.wg.Done()

	ticker := time.NewTicker(d.config.DebounceInterval)
	defer ticker.Stop()

	for {
		select {
		case <-d.ctx.Done():
			return

		case <-ticker.C:
			d.processPendingChanges()
		}
	}
}

// processPendingChanges enqueues files that have been queued for long
// enough, then kicks a drain cycle if anything was enqueued.
func (d *Daemon) processPendingChanges() {
	d.changeQueueMu.Lock()

	now := time.Now()
	var ready []string
	var scopes []syncengine.Scope
	for path, change := range d.changeQueue {
		if now.Sub(change.queuedAt) < d.config.DebounceInterval {
			continue
		}
		ready = append(ready, path)
		scopes = append(scopes, change.scope)
		delete(d.changeQueue, path)
	}
	d.changeQueueMu.Unlock()

	if len(ready) == 0 {
		return
	}

	for i, path := range ready {
		if err := d.enqueueFile(path, scopes[i]); err != nil {
			d.config.Logger.Printf("Error enqueueing %s: %v", path, err)
		}
	}

	if err := d.engine.RunDrainCycle(d.ctx); err != nil {
		d.config.Logger.Printf("Drain failed: %v", err)
	}
}

// enqueueFile reads a changed file and enqueues the corresponding sync
// operation. A file that vanished between the event and the read is
// skipped.
func (d *Daemon) enqueueFile(path string, scope syncengine.Scope) error {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil
	}

	switch scope {
	case syncengine.ScopeChapter:
		ch, err := project.ReadChapterFile(path)
		if err != nil {
			return fmt.Errorf("failed to read chapter file: %w", err)
		}
		return d.engine.Enqueue(d.ctx, syncengine.OpCreateChapter, ch.LocalID, ch.SyncPayload())

	case syncengine.ScopeEntity:
		ent, err := project.ReadEntityFile(path)
		if err != nil {
			return fmt.Errorf("failed to read entity file: %w", err)
		}
		return d.engine.Enqueue(d.ctx, syncengine.OpCreateEntity, ent.LocalID, ent.SyncPayload())

	default:
		return fmt.Errorf("unknown scope for %s", filepath.Base(path))
	}
}

// drainLoop periodically drains the sync queue so scheduled retries run
// even when no files change, and re-checks credentials while offline.
func (d *Daemon) drainLoop() {
	defer d.wg.Done()

	drainTicker := time.NewTicker(d.config.DrainInterval)
	defer drainTicker.Stop()

	credTicker := time.NewTicker(d.config.CredentialPollInterval)
	defer credTicker.Stop()

	for {
		select {
		case <-d.ctx.Done():
			return

		case <-drainTicker.C:
			if err := d.engine.RunDrainCycle(d.ctx); err != nil {
				d.config.Logger.Printf("Drain failed: %v", err)
			}

		case <-credTicker.C:
			// A drain while offline is cheap: the engine re-checks the
			// credential and either stays offline or starts syncing.
			if d.engine.Status() == syncengine.StatusOffline {
				if err := d.engine.RunDrainCycle(d.ctx); err != nil {
					d.config.Logger.Printf("Drain failed: %v", err)
				}
			}
		}
	}
}
