package daemon

import (
	"context"
	"fmt"
	"io"
	"log"
	"sync"
	"testing"
	"time"

	"github.com/inkwell-app/inkwell/internal/project"
	"github.com/inkwell-app/inkwell/internal/remote"
	"github.com/inkwell-app/inkwell/internal/syncengine"
)

// memStore keeps sync state in memory so daemon tests don't need a
// database on disk.
type memStore struct {
	mu    sync.Mutex
	metas map[string]*syncengine.Metadata
}

func newMemStore() *memStore {
	return &memStore{metas: make(map[string]*syncengine.Metadata)}
}

func (s *memStore) Load(ctx context.Context, projectID string) (*syncengine.Metadata, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if meta, ok := s.metas[projectID]; ok {
		return meta, nil
	}
	return syncengine.NewMetadata(), nil
}

func (s *memStore) Save(ctx context.Context, projectID string, meta *syncengine.Metadata) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.metas[projectID] = meta
	return nil
}

func (s *memStore) Reset(ctx context.Context, projectID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.metas, projectID)
	return nil
}

// stubTransport accepts every upload and hands out sequential remote ids.
type stubTransport struct {
	mu      sync.Mutex
	nextID  int
	uploads int
}

func (t *stubTransport) CreateProject(ctx context.Context, metadata map[string]any) (string, error) {
	return "rp-1", nil
}

func (t *stubTransport) CreateOrUpdate(ctx context.Context, remoteProjectID, kind string, payload map[string]any) (string, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.nextID++
	t.uploads++
	return fmt.Sprintf("r-%d", t.nextID), nil
}

func (t *stubTransport) uploadCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.uploads
}

// testEngine builds an engine over in-memory fakes rooted at a temp
// project directory.
func testEngine(t *testing.T, token string) (*syncengine.Engine, project.Layout) {
	t.Helper()

	layout := project.Layout{Root: t.TempDir()}

	engine, err := syncengine.New(context.Background(), "proj-1", map[string]any{"title": "Test"},
		newMemStore(), &stubTransport{}, remote.NewStaticProvider(token), &syncengine.Config{
			RetryPolicy: syncengine.DefaultRetryPolicy(),
			Logger:      log.New(io.Discard, "", 0),
		})
	if err != nil {
		t.Fatalf("Failed to create engine: %v", err)
	}

	return engine, layout
}

func writeChapter(t *testing.T, layout project.Layout, title string, order int) *project.ChapterFile {
	t.Helper()

	ch := project.NewChapter(title, order)
	if err := project.WriteChapterFile(layout.ChaptersDir(), ch); err != nil {
		t.Fatalf("Failed to write chapter: %v", err)
	}
	return ch
}

func writeEntity(t *testing.T, layout project.Layout, name string) *project.EntityFile {
	t.Helper()

	ent := project.NewEntity(name, project.EntityCharacter)
	if err := project.WriteEntityFile(layout.EntitiesDir(), ent); err != nil {
		t.Fatalf("Failed to write entity: %v", err)
	}
	return ent
}

func quietConfig() *Config {
	return &Config{
		DrainInterval:          100 * time.Millisecond,
		DebounceInterval:       50 * time.Millisecond,
		CredentialPollInterval: 100 * time.Millisecond,
		Logger:                 log.New(io.Discard, "", 0),
	}
}

func TestNewValidation(t *testing.T) {
	engine, layout := testEngine(t, "")
	defer engine.Close()

	if _, err := New(nil, layout, nil); err == nil {
		t.Error("Expected error for nil engine")
	}

	if _, err := New(engine, project.Layout{}, nil); err == nil {
		t.Error("Expected error for empty project root")
	}

	d, err := New(engine, layout, nil)
	if err != nil {
		t.Fatalf("Failed to create daemon: %v", err)
	}
	if d == nil {
		t.Fatal("Expected daemon instance")
	}
}

func TestEnqueueBacklog(t *testing.T) {
	engine, layout := testEngine(t, "") // signed out, nothing uploads
	defer engine.Close()

	ctx := context.Background()

	writeChapter(t, layout, "Chapter One", 1)
	writeChapter(t, layout, "Chapter Two", 2)
	writeEntity(t, layout, "Protagonist")

	d, err := New(engine, layout, quietConfig())
	if err != nil {
		t.Fatalf("Failed to create daemon: %v", err)
	}

	if err := d.EnqueueBacklog(ctx); err != nil {
		t.Fatalf("Backlog scan failed: %v", err)
	}

	if got := engine.PendingCount(); got != 3 {
		t.Errorf("Expected 3 pending operations, got %d", got)
	}

	// A second scan must not duplicate anything.
	if err := d.EnqueueBacklog(ctx); err != nil {
		t.Fatalf("Second backlog scan failed: %v", err)
	}

	if got := engine.PendingCount(); got != 3 {
		t.Errorf("Expected rescan to keep 3 pending operations, got %d", got)
	}
}

func TestEnqueueBacklogSkipsSynced(t *testing.T) {
	engine, layout := testEngine(t, "test-token")
	defer engine.Close()

	ctx := context.Background()

	ch := writeChapter(t, layout, "Chapter One", 1)

	d, err := New(engine, layout, quietConfig())
	if err != nil {
		t.Fatalf("Failed to create daemon: %v", err)
	}

	if err := d.EnqueueBacklog(ctx); err != nil {
		t.Fatalf("Backlog scan failed: %v", err)
	}
	if err := engine.RunDrainCycle(ctx); err != nil {
		t.Fatalf("Drain failed: %v", err)
	}

	if _, ok := engine.RemoteIDFor(syncengine.ScopeChapter, ch.LocalID); !ok {
		t.Fatal("Expected chapter to be mapped after drain")
	}

	// Only the new chapter should be picked up by the next scan.
	writeChapter(t, layout, "Chapter Two", 2)

	if err := d.EnqueueBacklog(ctx); err != nil {
		t.Fatalf("Second backlog scan failed: %v", err)
	}

	if got := engine.PendingCount(); got != 1 {
		t.Errorf("Expected 1 pending operation after rescan, got %d", got)
	}
}

func TestEnqueueBacklogEmptyProject(t *testing.T) {
	engine, layout := testEngine(t, "")
	defer engine.Close()

	d, err := New(engine, layout, quietConfig())
	if err != nil {
		t.Fatalf("Failed to create daemon: %v", err)
	}

	// Directories don't exist yet; the scan treats them as empty.
	if err := d.EnqueueBacklog(context.Background()); err != nil {
		t.Fatalf("Backlog scan failed: %v", err)
	}

	if got := engine.PendingCount(); got != 0 {
		t.Errorf("Expected 0 pending operations, got %d", got)
	}
}

func TestDaemonSyncsNewFile(t *testing.T) {
	engine, layout := testEngine(t, "test-token")

	d, err := New(engine, layout, quietConfig())
	if err != nil {
		t.Fatalf("Failed to create daemon: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	errCh := make(chan error, 1)
	go func() {
		errCh <- d.Start(ctx)
	}()

	// Give the watcher time to come up before writing.
	time.Sleep(200 * time.Millisecond)

	ch := writeChapter(t, layout, "Written While Running", 1)

	// The change is debounced, enqueued, and drained in the background.
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if _, ok := engine.RemoteIDFor(syncengine.ScopeChapter, ch.LocalID); ok {
			break
		}
		time.Sleep(50 * time.Millisecond)
	}

	if _, ok := engine.RemoteIDFor(syncengine.ScopeChapter, ch.LocalID); !ok {
		t.Error("Expected chapter to sync while daemon was running")
	}

	if got := engine.Status(); got != syncengine.StatusSynced {
		t.Errorf("Expected status %s, got %s", syncengine.StatusSynced, got)
	}

	cancel()
	if err := <-errCh; err != nil {
		t.Fatalf("Daemon exited with error: %v", err)
	}
}
