package syncengine

import (
	"context"
	"fmt"
	"log"
	"os"
	"sync"
	"time"

	"github.com/inkwell-app/inkwell/internal/remote"
)

// PayloadChapterRef is the payload key an entity operation uses to reference
// its parent chapter by local id. The engine translates it to the remote id
// before transmission; a record whose parent is not yet mapped is skipped
// and retried next cycle.
const PayloadChapterRef = "chapter_local_id"

// payloadChapterKey is the translated key sent over the wire.
const payloadChapterKey = "chapter_id"

// Config holds engine configuration.
type Config struct {
	// RetryPolicy controls backoff delays and the retry ceiling.
	RetryPolicy RetryPolicy

	// TransportTimeout bounds each remote call. A call exceeding it counts
	// as a transient failure.
	TransportTimeout time.Duration

	// Clock supplies the current time. Defaults to time.Now; tests inject
	// a fixed clock.
	Clock func() time.Time

	// Logger for engine activity.
	Logger *log.Logger

	// OnStatusChange, if set, is invoked after every status transition.
	// It is called without engine locks held and must not block.
	OnStatusChange func(prev, next Status)
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		RetryPolicy:      DefaultRetryPolicy(),
		TransportTimeout: 30 * time.Second,
		Clock:            time.Now,
		Logger:           log.New(os.Stderr, "[syncengine] ", log.LstdFlags),
	}
}

// Engine is the reconciliation coordinator for one open project.
//
// It runs as a single logical background task: a drain cycle in progress
// causes a newly triggered cycle to be coalesced into a run-again flag
// rather than started in parallel. All queue and identifier-map mutations
// happen inside that task; status and count reads are safe from any
// goroutine at any time.
type Engine struct {
	projectID   string
	projectInfo map[string]any

	store     Store
	transport remote.Transport
	creds     remote.CredentialProvider

	policy   RetryPolicy
	timeout  time.Duration
	clock    func() time.Time
	logger   *log.Logger
	onStatus func(prev, next Status)

	mu       sync.Mutex
	meta     *Metadata
	draining bool
	rerun    bool
	closed   bool

	// Create-project retry bookkeeping, subject to the same backoff table
	// as queue records. In-memory only: a restart grants a fresh set of
	// attempts.
	projectRetries     int
	projectLastAttempt *time.Time
	projectFailed      bool
}

// New creates an engine for the given project, loading persisted sync
// metadata from the store and deriving the initial status.
//
// projectInfo is the local metadata document sent when the project is first
// created on the remote store (title, author, and so on).
//
// Example:
//
//	store, err := syncstore.Open(filepath.Join(dir, ".inkwell", "sync.db"))
//	if err != nil {
//	    return err
//	}
//	client := remote.NewClient(cfg.RemoteURL, creds, nil)
//	eng, err := syncengine.New(ctx, projectID, info, store, client, creds, nil)
func New(ctx context.Context, projectID string, projectInfo map[string]any, store Store, transport remote.Transport, creds remote.CredentialProvider, config *Config) (*Engine, error) {
	if projectID == "" {
		return nil, fmt.Errorf("project id is required")
	}
	if store == nil {
		return nil, fmt.Errorf("store cannot be nil")
	}
	if transport == nil {
		return nil, fmt.Errorf("transport cannot be nil")
	}
	if creds == nil {
		return nil, fmt.Errorf("credential provider cannot be nil")
	}
	if config == nil {
		config = DefaultConfig()
	}
	if config.Clock == nil {
		config.Clock = time.Now
	}
	if config.Logger == nil {
		config.Logger = log.New(os.Stderr, "[syncengine] ", log.LstdFlags)
	}
	if config.TransportTimeout <= 0 {
		config.TransportTimeout = 30 * time.Second
	}
	if config.RetryPolicy.MaxAttempts() == 0 {
		config.RetryPolicy = DefaultRetryPolicy()
	}

	meta, err := store.Load(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("failed to load sync metadata: %w", err)
	}

	e := &Engine{
		projectID:   projectID,
		projectInfo: projectInfo,
		store:       store,
		transport:   transport,
		creds:       creds,
		policy:      config.RetryPolicy,
		timeout:     config.TransportTimeout,
		clock:       config.Clock,
		logger:      config.Logger,
		onStatus:    config.OnStatusChange,
		meta:        meta,
	}

	// Initial status on project open.
	_, present := creds.Token()
	e.meta.Status = deriveStatus(present, meta.Queue.Len(), meta.Queue.TerminalCount(), meta.RemoteProjectID)
	if err := store.Save(ctx, projectID, meta); err != nil {
		return nil, fmt.Errorf("failed to persist sync metadata: %w", err)
	}

	return e, nil
}

// Enqueue records a local mutation for transmission. An operation for an
// object already pending coalesces into the existing record, replacing only
// its payload.
//
// The caller is responsible for triggering a drain cycle afterwards; the
// daemon does this on every enqueue.
func (e *Engine) Enqueue(ctx context.Context, kind OperationKind, localID string, payload map[string]any) error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return fmt.Errorf("sync engine is closed")
	}
	if err := e.meta.Queue.Enqueue(kind, localID, payload); err != nil {
		e.mu.Unlock()
		return err
	}
	prev, next := e.recomputeStatusLocked()
	err := e.persistLocked(ctx)
	e.mu.Unlock()

	e.notifyStatus(prev, next)
	if err != nil {
		return fmt.Errorf("failed to persist queue: %w", err)
	}
	return nil
}

// RunDrainCycle attempts to transmit all currently-due records. If a cycle
// is already in progress the request is coalesced: the running cycle will
// run once more after it finishes.
func (e *Engine) RunDrainCycle(ctx context.Context) error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return fmt.Errorf("sync engine is closed")
	}
	if e.draining {
		e.rerun = true
		e.mu.Unlock()
		return nil
	}
	e.draining = true
	e.mu.Unlock()

	for {
		err := e.drainOnce(ctx)

		e.mu.Lock()
		again := e.rerun && err == nil && !e.closed && ctx.Err() == nil
		e.rerun = false
		if again {
			e.mu.Unlock()
			continue
		}
		e.draining = false
		// The stay-syncing override in recomputeStatusLocked no longer
		// applies once the cycle ends: records waiting out backoff (or an
		// unmapped parent) report pending, not syncing.
		var prev, next Status
		if !e.closed && e.meta.Status == StatusSyncing {
			prev, next = e.recomputeStatusLocked()
			e.persistWarnLocked(ctx)
		}
		e.mu.Unlock()
		e.notifyStatus(prev, next)
		return err
	}
}

// ManualRetry resets terminally failed records' retry counters, making them
// immediately eligible, and runs a drain cycle.
func (e *Engine) ManualRetry(ctx context.Context) error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return fmt.Errorf("sync engine is closed")
	}
	revived := e.meta.Queue.ResetFailed()
	e.projectRetries = 0
	e.projectLastAttempt = nil
	e.projectFailed = false
	prev, next := e.recomputeStatusLocked()
	err := e.persistLocked(ctx)
	e.mu.Unlock()

	e.notifyStatus(prev, next)
	if err != nil {
		return fmt.Errorf("failed to persist queue: %w", err)
	}
	if revived > 0 {
		e.logger.Printf("Manual retry: revived %d failed record(s)", revived)
	}
	return e.RunDrainCycle(ctx)
}

// Disconnect resets the project's sync state to empty: remote project id,
// identifier maps, and queue are all discarded. The local project files are
// untouched.
func (e *Engine) Disconnect(ctx context.Context) error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return fmt.Errorf("sync engine is closed")
	}
	if err := e.store.Reset(ctx, e.projectID); err != nil {
		e.mu.Unlock()
		return fmt.Errorf("failed to reset sync metadata: %w", err)
	}
	prev := e.meta.Status
	e.meta = NewMetadata()
	e.projectRetries = 0
	e.projectLastAttempt = nil
	e.projectFailed = false
	_, present := e.creds.Token()
	e.meta.Status = deriveStatus(present, 0, 0, "")
	next := e.meta.Status
	e.mu.Unlock()

	e.notifyStatus(prev, next)
	e.logger.Printf("Project %s disconnected from cloud", e.projectID)
	return nil
}

// Close marks the engine closed. An in-flight transport call is allowed to
// complete or time out, but its result is discarded rather than applied to
// a project that is no longer open.
func (e *Engine) Close() {
	e.mu.Lock()
	e.closed = true
	e.mu.Unlock()
}

// Status returns the current sync status. Safe from any goroutine.
func (e *Engine) Status() Status {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.meta.Status
}

// PendingCount returns the number of queued records. Safe from any goroutine.
func (e *Engine) PendingCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.meta.Queue.Len()
}

// RemoteIDFor returns the server-issued id for a local object, or ok=false
// if the object has no cloud counterpart yet.
func (e *Engine) RemoteIDFor(scope Scope, localID string) (string, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.meta.idMap(scope).Remote(localID)
}

// Snapshot returns an immutable point-in-time view for UI readers.
func (e *Engine) Snapshot() Snapshot {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.meta.snapshot()
}

// drainOnce performs one drain cycle.
func (e *Engine) drainOnce(ctx context.Context) error {
	now := e.clock()

	if _, ok := e.creds.Token(); !ok {
		e.setStatus(ctx, StatusOffline)
		return nil
	}

	e.setStatus(ctx, StatusSyncing)

	succeeded := 0

	// The project must exist remotely before any chapter or entity upload.
	e.mu.Lock()
	needProject := e.meta.RemoteProjectID == ""
	e.mu.Unlock()
	if needProject {
		ok, err := e.createRemoteProject(ctx)
		if err != nil || !ok {
			return err
		}
		succeeded++
	}

	e.mu.Lock()
	due := e.meta.Queue.DequeueDue(now, e.policy)
	e.mu.Unlock()

	for i := range due {
		rec := &due[i]

		e.mu.Lock()
		translated, ready := e.translatePayloadLocked(rec)
		remoteProjectID := e.meta.RemoteProjectID
		e.mu.Unlock()
		if !ready {
			// Parent not mapped yet: leave the record queued. Insertion
			// order guarantees the parent-creating record was enqueued
			// first, so it becomes eligible again next cycle.
			e.logger.Printf("Skipping %s %s: parent chapter not yet mapped", rec.Kind, rec.LocalID)
			continue
		}

		callCtx, cancel := context.WithTimeout(ctx, e.timeout)
		remoteID, err := e.transport.CreateOrUpdate(callCtx, remoteProjectID, rec.Kind.String(), translated)
		cancel()

		if stop := e.applyResult(ctx, rec, remoteID, err, &succeeded); stop {
			return nil
		}
	}

	e.finishCycle(ctx, succeeded)
	return nil
}

// createRemoteProject attempts the create-project call. Returns ok=false
// when the cycle must end without uploading records. Failed attempts follow
// the same backoff table as queue records; without the remote project id
// nothing else can upload, so an unbounded retry here would hammer the
// store on every drain tick.
func (e *Engine) createRemoteProject(ctx context.Context) (bool, error) {
	now := e.clock()

	e.mu.Lock()
	gate := Record{RetryCount: e.projectRetries, LastAttemptAt: e.projectLastAttempt, Failed: e.projectFailed}
	due := e.policy.Due(&gate, now)
	e.mu.Unlock()
	if !due {
		e.finishCycle(ctx, 0)
		return false, nil
	}

	callCtx, cancel := context.WithTimeout(ctx, e.timeout)
	remoteID, err := e.transport.CreateProject(callCtx, e.projectInfo)
	cancel()

	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return false, nil
	}
	e.mu.Unlock()

	if err != nil {
		switch remote.Classify(err) {
		case remote.KindDuplicate:
			// The project exists from a prior attempt whose response was
			// lost. Recover the id if the store reported it.
			if id := remote.DuplicateID(err); id != "" {
				e.logger.Printf("Project already exists remotely, adopting id %s", id)
				remoteID = id
			} else {
				e.logger.Printf("Project already exists remotely but no id reported: %v", err)
				e.markProjectAttemptFailed(ctx, now)
				return false, nil
			}
		case remote.KindAuth:
			e.logger.Printf("Authentication failure creating project: %v", err)
			e.setStatus(ctx, StatusOffline)
			return false, nil
		default:
			e.logger.Printf("Failed to create remote project: %v", err)
			e.markProjectAttemptFailed(ctx, now)
			return false, nil
		}
	}

	e.mu.Lock()
	e.meta.RemoteProjectID = remoteID
	e.projectRetries = 0
	e.projectLastAttempt = nil
	e.projectFailed = false
	perr := e.persistLocked(ctx)
	e.mu.Unlock()
	if perr != nil {
		return false, fmt.Errorf("failed to persist remote project id: %w", perr)
	}
	e.logger.Printf("Created remote project %s", remoteID)
	return true, nil
}

// markProjectAttemptFailed records a failed create-project attempt. At the
// retry ceiling, every queued record is marked terminal: none of them can
// upload without the remote project id, and the resulting failed status
// surfaces the condition so a manual retry can revive everything at once.
func (e *Engine) markProjectAttemptFailed(ctx context.Context, now time.Time) {
	e.mu.Lock()
	e.projectRetries++
	t := now
	e.projectLastAttempt = &t
	if e.projectRetries >= e.policy.MaxAttempts() && !e.projectFailed {
		e.projectFailed = true
		e.logger.Printf("Remote project creation exhausted %d attempts; waiting for manual retry", e.projectRetries)
		for _, rec := range e.meta.Queue.Records() {
			e.meta.Queue.MarkTerminal(rec.LocalID, now)
		}
	}
	e.mu.Unlock()

	e.finishCycle(ctx, 0)
}

// applyResult folds one transport outcome into queue state. Returns true
// when the drain cycle must stop (auth failure or closed engine).
func (e *Engine) applyResult(ctx context.Context, rec *Record, remoteID string, err error, succeeded *int) bool {
	now := e.clock()

	e.mu.Lock()
	defer e.mu.Unlock()

	// Project identity guard: never mutate a queue for a project that is
	// no longer open.
	if e.closed {
		return true
	}

	if err == nil {
		e.recordSuccessLocked(ctx, rec, remoteID)
		*succeeded++
		return false
	}

	switch remote.Classify(err) {
	case remote.KindDuplicate:
		// A prior attempt committed remotely but its response was lost.
		// Treat as success: synthesize the mapping if the store reported
		// the duplicate's id, otherwise drop the record as an idempotent
		// no-op.
		if id := remote.DuplicateID(err); id != "" {
			e.recordSuccessLocked(ctx, rec, id)
		} else {
			e.meta.Queue.Remove(rec.LocalID)
			e.persistWarnLocked(ctx)
		}
		e.logger.Printf("Duplicate for %s %s, treating as success: %v", rec.Kind, rec.LocalID, err)
		*succeeded++
		return false

	case remote.KindAuth:
		// Queue preserved untouched; retried once the credential returns.
		e.logger.Printf("Authentication failure for %s %s: %v", rec.Kind, rec.LocalID, err)
		e.setStatusLockedNotify(ctx, StatusOffline)
		return true

	case remote.KindMalformed:
		// Resubmitting unchanged data cannot succeed.
		e.logger.Printf("Malformed payload for %s %s, failing permanently: %v", rec.Kind, rec.LocalID, err)
		e.meta.Queue.MarkTerminal(rec.LocalID, now)
		e.persistWarnLocked(ctx)
		return false

	default:
		terminal := e.meta.Queue.MarkFailed(rec.LocalID, now, e.policy)
		if terminal {
			e.logger.Printf("Record %s %s exhausted retries: %v", rec.Kind, rec.LocalID, err)
		} else {
			e.logger.Printf("Transient failure for %s %s (attempt %d): %v", rec.Kind, rec.LocalID, rec.RetryCount+1, err)
		}
		e.persistWarnLocked(ctx)
		return false
	}
}

// recordSuccessLocked stores the id mapping and removes the record.
// Caller holds e.mu.
func (e *Engine) recordSuccessLocked(ctx context.Context, rec *Record, remoteID string) {
	if scope, ok := rec.Kind.Scope(); ok && remoteID != "" {
		if err := e.meta.idMap(scope).Put(rec.LocalID, remoteID); err != nil {
			e.logger.Printf("Warning: id mapping for %s rejected: %v", rec.LocalID, err)
		}
	}

	// An edit may have coalesced in while the upload was in flight; in that
	// case keep the newer payload queued for the next cycle.
	if e.sameQueuedPayloadLocked(rec) {
		e.meta.Queue.Remove(rec.LocalID)
	}
	e.persistWarnLocked(ctx)
}

// sameQueuedPayloadLocked reports whether the queued record for rec's local
// id still carries the payload revision that was transmitted. A higher
// revision means an edit coalesced in while the upload was in flight.
func (e *Engine) sameQueuedPayloadLocked(rec *Record) bool {
	for _, cur := range e.meta.Queue.Records() {
		if cur.LocalID == rec.LocalID {
			return cur.revision == rec.revision
		}
	}
	return false
}

// translatePayloadLocked resolves local-id references inside the payload to
// remote ids. ready is false when a referenced parent has no mapping yet.
// Caller holds e.mu.
func (e *Engine) translatePayloadLocked(rec *Record) (map[string]any, bool) {
	ref, ok := rec.Payload[PayloadChapterRef].(string)
	if !ok || ref == "" {
		return rec.Payload, true
	}

	remoteID, mapped := e.meta.ChapterIDs.Remote(ref)
	if !mapped {
		return nil, false
	}

	translated := make(map[string]any, len(rec.Payload))
	for k, v := range rec.Payload {
		if k == PayloadChapterRef {
			continue
		}
		translated[k] = v
	}
	translated[payloadChapterKey] = remoteID
	return translated, true
}

// finishCycle recomputes status after a drain cycle and stamps lastSyncedAt
// when the queue drained fully with at least one successful transmission.
func (e *Engine) finishCycle(ctx context.Context, succeeded int) {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return
	}
	if e.meta.Queue.Len() == 0 && succeeded > 0 {
		now := e.clock()
		e.meta.LastSyncedAt = &now
	}
	prev, next := e.recomputeStatusLocked()
	e.persistWarnLocked(ctx)
	e.mu.Unlock()

	e.notifyStatus(prev, next)
}

// recomputeStatusLocked derives the status from current state. Returns the
// old and new values for change notification. Caller holds e.mu.
func (e *Engine) recomputeStatusLocked() (prev, next Status) {
	_, present := e.creds.Token()
	prev = e.meta.Status
	next = deriveStatus(present, e.meta.Queue.Len(), e.meta.Queue.TerminalCount(), e.meta.RemoteProjectID)
	// A drain in progress stays visibly syncing until the cycle finishes.
	if e.draining && prev == StatusSyncing && next == StatusPending {
		next = StatusSyncing
	}
	e.meta.Status = next
	return prev, next
}

// setStatus sets an explicit status (syncing, offline) and persists.
func (e *Engine) setStatus(ctx context.Context, s Status) {
	e.mu.Lock()
	e.setStatusLockedNotify(ctx, s)
	e.mu.Unlock()
}

// setStatusLockedNotify sets the status, persists, and schedules the change
// notification. Caller holds e.mu; the notification fires inline because
// OnStatusChange is documented non-blocking.
func (e *Engine) setStatusLockedNotify(ctx context.Context, s Status) {
	prev := e.meta.Status
	e.meta.Status = s
	e.persistWarnLocked(ctx)
	if prev != s && e.onStatus != nil {
		e.onStatus(prev, s)
	}
}

// persistLocked saves the aggregate. Caller holds e.mu.
func (e *Engine) persistLocked(ctx context.Context) error {
	return e.store.Save(ctx, e.projectID, e.meta)
}

// persistWarnLocked saves the aggregate, logging rather than propagating
// failures: no error crosses the engine boundary from inside a drain cycle.
func (e *Engine) persistWarnLocked(ctx context.Context) {
	if err := e.store.Save(ctx, e.projectID, e.meta); err != nil {
		e.logger.Printf("Warning: failed to persist sync metadata: %v", err)
	}
}

// notifyStatus fires the status-change callback outside engine locks.
func (e *Engine) notifyStatus(prev, next Status) {
	if prev != next && e.onStatus != nil {
		e.onStatus(prev, next)
	}
}
