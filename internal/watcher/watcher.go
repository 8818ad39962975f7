// Package watcher provides file system watching for Inkwell project
// directories.
package watcher

import (
	"fmt"
	"path/filepath"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"

	"github.com/inkwell-app/inkwell/internal/syncengine"
)

// EventOp represents the type of file system operation.
type EventOp int

const (
	// OpCreate indicates a new file was created.
	OpCreate EventOp = iota
	// OpModify indicates an existing file was modified.
	OpModify
	// OpDelete indicates a file was deleted.
	OpDelete
)

// String returns a human-readable representation of the operation.
func (op EventOp) String() string {
	switch op {
	case OpCreate:
		return "create"
	case OpModify:
		return "modify"
	case OpDelete:
		return "delete"
	default:
		return "unknown"
	}
}

// FileEvent represents a file system event under a project directory.
type FileEvent struct {
	// Path is the absolute path to the file that changed.
	Path string
	// Scope indicates whether this is a chapter or entity file.
	Scope syncengine.Scope
	// Op is the operation that occurred (create, modify, delete).
	Op EventOp
}

// FileWatcher watches the chapters/ and entities/ directories of a project
// for changes. It uses fsnotify for cross-platform file system event
// monitoring.
type FileWatcher struct {
	watcher     *fsnotify.Watcher
	events      chan FileEvent
	errors      chan error
	done        chan struct{}
	wg          sync.WaitGroup
	mu          sync.Mutex
	running     bool
	chaptersDir string
	entitiesDir string
}

// NewFileWatcher creates a new FileWatcher instance.
// The watcher must be started with Start() before it will emit events.
func NewFileWatcher() (*FileWatcher, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create fsnotify watcher: %w", err)
	}

	return &FileWatcher{
		watcher: watcher,
		events:  make(chan FileEvent, 100),
		errors:  make(chan error, 10),
		done:    make(chan struct{}),
	}, nil
}

// Start begins watching the specified directories for *.json file events.
// Returns an error if the directories cannot be watched.
func (fw *FileWatcher) Start(chaptersDir, entitiesDir string) error {
	fw.mu.Lock()
	defer fw.mu.Unlock()

	if fw.running {
		return fmt.Errorf("watcher already running")
	}

	fw.chaptersDir = chaptersDir
	fw.entitiesDir = entitiesDir

	if err := fw.watcher.Add(chaptersDir); err != nil {
		return fmt.Errorf("failed to watch chapters directory %s: %w", chaptersDir, err)
	}

	if err := fw.watcher.Add(entitiesDir); err != nil {
		// Clean up the chapters watch if the entities watch fails
		fw.watcher.Remove(chaptersDir)
		return fmt.Errorf("failed to watch entities directory %s: %w", entitiesDir, err)
	}

	fw.running = true
	fw.wg.Add(1)
	go fw.processEvents()

	return nil
}

// Stop stops watching for file system events and cleans up resources.
// It blocks until the event processing goroutine has exited.
func (fw *FileWatcher) Stop() error {
	fw.mu.Lock()
	if !fw.running {
		fw.mu.Unlock()
		return nil
	}
	fw.running = false
	fw.mu.Unlock()

	close(fw.done)

	// Closing the underlying watcher unblocks the event loop.
	if err := fw.watcher.Close(); err != nil {
		return fmt.Errorf("failed to close watcher: %w", err)
	}

	fw.wg.Wait()

	close(fw.events)
	close(fw.errors)

	return nil
}

// Events returns the channel that emits FileEvent notifications.
// This channel is closed when the watcher is stopped.
func (fw *FileWatcher) Events() <-chan FileEvent {
	return fw.events
}

// Errors returns the channel that emits error notifications.
// This channel is closed when the watcher is stopped.
func (fw *FileWatcher) Errors() <-chan error {
	return fw.errors
}

// processEvents is the main event loop that processes fsnotify events
// and converts them to FileEvent notifications.
func (fw *FileWatcher) processEvents() {
	defer fw.wg.Done()

	for {
		select {
		case <-fw.done:
			return

		case event, ok := <-fw.watcher.Events:
			if !ok {
				return
			}

			if fileEvent, ok := fw.convertEvent(event); ok {
				select {
				case fw.events <- fileEvent:
				case <-fw.done:
					return
				}
			}

		case err, ok := <-fw.watcher.Errors:
			if !ok {
				return
			}

			select {
			case fw.errors <- err:
			case <-fw.done:
				return
			}
		}
	}
}

// convertEvent converts an fsnotify event to a FileEvent.
// Returns (FileEvent, true) if the event should be processed,
// or (FileEvent{}, false) if the event should be ignored.
func (fw *FileWatcher) convertEvent(event fsnotify.Event) (FileEvent, bool) {
	// Only process .json files
	if !strings.HasSuffix(event.Name, ".json") {
		return FileEvent{}, false
	}

	scope, ok := fw.determineScope(event.Name)
	if !ok {
		return FileEvent{}, false
	}

	var op EventOp
	switch {
	case event.Has(fsnotify.Create):
		op = OpCreate
	case event.Has(fsnotify.Write):
		op = OpModify
	case event.Has(fsnotify.Remove):
		op = OpDelete
	case event.Has(fsnotify.Rename):
		// Treat rename as delete (the new name will trigger a create)
		op = OpDelete
	default:
		// Ignore chmod and other events
		return FileEvent{}, false
	}

	return FileEvent{
		Path:  event.Name,
		Scope: scope,
		Op:    op,
	}, true
}

// determineScope checks if the file path is in chapters/ or entities/
// and returns the corresponding identifier scope.
func (fw *FileWatcher) determineScope(path string) (syncengine.Scope, bool) {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return "", false
	}

	dir := filepath.Dir(absPath)

	absChaptersDir, _ := filepath.Abs(fw.chaptersDir)
	absEntitiesDir, _ := filepath.Abs(fw.entitiesDir)

	if dir == absChaptersDir {
		return syncengine.ScopeChapter, true
	}
	if dir == absEntitiesDir {
		return syncengine.ScopeEntity, true
	}

	return "", false
}

// IsRunning returns true if the watcher is currently running.
func (fw *FileWatcher) IsRunning() bool {
	fw.mu.Lock()
	defer fw.mu.Unlock()
	return fw.running
}
