package watcher

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/inkwell-app/inkwell/internal/syncengine"
)

// setupDirs creates chapters/ and entities/ under a temp root.
func setupDirs(t *testing.T) (string, string) {
	t.Helper()
	tmpDir := t.TempDir()
	chaptersDir := filepath.Join(tmpDir, "chapters")
	entitiesDir := filepath.Join(tmpDir, "entities")

	if err := os.MkdirAll(chaptersDir, 0755); err != nil {
		t.Fatalf("Failed to create chapters dir: %v", err)
	}
	if err := os.MkdirAll(entitiesDir, 0755); err != nil {
		t.Fatalf("Failed to create entities dir: %v", err)
	}
	return chaptersDir, entitiesDir
}

// TestNewFileWatcher verifies that creating a new FileWatcher succeeds.
func TestNewFileWatcher(t *testing.T) {
	fw, err := NewFileWatcher()
	if err != nil {
		t.Fatalf("NewFileWatcher() failed: %v", err)
	}
	defer fw.Stop()

	if fw.IsRunning() {
		t.Error("Newly created watcher should not be running")
	}
}

// TestFileWatcher_StartStop verifies that the watcher can start and stop cleanly.
func TestFileWatcher_StartStop(t *testing.T) {
	chaptersDir, entitiesDir := setupDirs(t)

	fw, err := NewFileWatcher()
	if err != nil {
		t.Fatalf("NewFileWatcher() failed: %v", err)
	}

	if err := fw.Start(chaptersDir, entitiesDir); err != nil {
		t.Fatalf("Start() failed: %v", err)
	}
	if !fw.IsRunning() {
		t.Error("Watcher should be running after Start()")
	}

	if err := fw.Stop(); err != nil {
		t.Fatalf("Stop() failed: %v", err)
	}
	if fw.IsRunning() {
		t.Error("Watcher should not be running after Stop()")
	}
}

// TestFileWatcher_StartAlreadyRunning verifies that starting twice fails.
func TestFileWatcher_StartAlreadyRunning(t *testing.T) {
	chaptersDir, entitiesDir := setupDirs(t)

	fw, err := NewFileWatcher()
	if err != nil {
		t.Fatalf("NewFileWatcher() failed: %v", err)
	}
	defer fw.Stop()

	if err := fw.Start(chaptersDir, entitiesDir); err != nil {
		t.Fatalf("First Start() failed: %v", err)
	}
	if err := fw.Start(chaptersDir, entitiesDir); err == nil {
		t.Error("Second Start() should fail when watcher is already running")
	}
}

// TestFileWatcher_ChapterFileCreated verifies that creating a chapter file
// triggers a chapter-scoped event.
func TestFileWatcher_ChapterFileCreated(t *testing.T) {
	chaptersDir, entitiesDir := setupDirs(t)

	fw, err := NewFileWatcher()
	if err != nil {
		t.Fatalf("NewFileWatcher() failed: %v", err)
	}
	defer fw.Stop()

	if err := fw.Start(chaptersDir, entitiesDir); err != nil {
		t.Fatalf("Start() failed: %v", err)
	}

	path := filepath.Join(chaptersDir, "ch-test.json")
	if err := os.WriteFile(path, []byte(`{"local_id":"ch-test"}`), 0644); err != nil {
		t.Fatalf("Failed to write chapter file: %v", err)
	}

	select {
	case event := <-fw.Events():
		if event.Scope != syncengine.ScopeChapter {
			t.Errorf("Expected chapter scope, got %v", event.Scope)
		}
		if event.Op != OpCreate {
			t.Errorf("Expected OpCreate, got %v", event.Op)
		}
		if filepath.Base(event.Path) != "ch-test.json" {
			t.Errorf("Expected ch-test.json, got %s", filepath.Base(event.Path))
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Timeout waiting for chapter create event")
	}
}

// TestFileWatcher_EntityFileModified verifies that modifying an entity file
// triggers an entity-scoped modify event.
func TestFileWatcher_EntityFileModified(t *testing.T) {
	chaptersDir, entitiesDir := setupDirs(t)

	path := filepath.Join(entitiesDir, "en-test.json")
	if err := os.WriteFile(path, []byte(`{"local_id":"en-test"}`), 0644); err != nil {
		t.Fatalf("Failed to write entity file: %v", err)
	}

	fw, err := NewFileWatcher()
	if err != nil {
		t.Fatalf("NewFileWatcher() failed: %v", err)
	}
	defer fw.Stop()

	if err := fw.Start(chaptersDir, entitiesDir); err != nil {
		t.Fatalf("Start() failed: %v", err)
	}

	// Give watcher time to stabilize
	time.Sleep(100 * time.Millisecond)

	if err := os.WriteFile(path, []byte(`{"local_id":"en-test","name":"Ana"}`), 0644); err != nil {
		t.Fatalf("Failed to update entity file: %v", err)
	}

	select {
	case event := <-fw.Events():
		if event.Scope != syncengine.ScopeEntity {
			t.Errorf("Expected entity scope, got %v", event.Scope)
		}
		if event.Op != OpModify {
			t.Errorf("Expected OpModify, got %v", event.Op)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Timeout waiting for entity modify event")
	}
}

// TestFileWatcher_IgnoresNonJSON verifies that non-JSON files produce no
// events.
func TestFileWatcher_IgnoresNonJSON(t *testing.T) {
	chaptersDir, entitiesDir := setupDirs(t)

	fw, err := NewFileWatcher()
	if err != nil {
		t.Fatalf("NewFileWatcher() failed: %v", err)
	}
	defer fw.Stop()

	if err := fw.Start(chaptersDir, entitiesDir); err != nil {
		t.Fatalf("Start() failed: %v", err)
	}

	path := filepath.Join(chaptersDir, "notes.txt")
	if err := os.WriteFile(path, []byte("scratch"), 0644); err != nil {
		t.Fatalf("Failed to write file: %v", err)
	}

	select {
	case event := <-fw.Events():
		t.Errorf("Unexpected event for non-JSON file: %+v", event)
	case <-time.After(300 * time.Millisecond):
		// No event: expected.
	}
}
