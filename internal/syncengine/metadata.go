package syncengine

import (
	"context"
	"time"
)

// Metadata is the per-project sync aggregate: everything the engine must
// persist to survive a restart. It is created empty when a project is first
// opened, mutated exclusively on the engine's drain task, and reset only
// when the user explicitly disconnects the project from the cloud.
type Metadata struct {
	// RemoteProjectID is the server-issued project identifier; empty until
	// the project has been created on the remote store.
	RemoteProjectID string

	// ChapterIDs and EntityIDs translate local ids to remote ids, populated
	// only after a successful round trip.
	ChapterIDs *IDMap
	EntityIDs  *IDMap

	// LastSyncedAt is set only when the queue transitions to fully empty
	// after at least one successful transmission.
	LastSyncedAt *time.Time

	// Status is the current aggregate health signal.
	Status Status

	// Queue holds the pending operation records in insertion order.
	Queue *Queue
}

// NewMetadata creates an empty aggregate for a freshly opened project.
func NewMetadata() *Metadata {
	return &Metadata{
		ChapterIDs: NewIDMap(),
		EntityIDs:  NewIDMap(),
		Status:     StatusPending,
		Queue:      NewQueue(),
	}
}

// idMap returns the identifier map for a scope.
func (m *Metadata) idMap(scope Scope) *IDMap {
	if scope == ScopeEntity {
		return m.EntityIDs
	}
	return m.ChapterIDs
}

// Snapshot is the immutable view handed to UI-facing readers. It can be
// taken from any goroutine at any time.
type Snapshot struct {
	Status          Status     `json:"status"`
	PendingCount    int        `json:"pending_count"`
	FailedCount     int        `json:"failed_count"`
	RemoteProjectID string     `json:"remote_project_id,omitempty"`
	LastSyncedAt    *time.Time `json:"last_synced_at,omitempty"`
}

// snapshot builds a point-in-time copy. Caller holds the engine lock.
func (m *Metadata) snapshot() Snapshot {
	s := Snapshot{
		Status:          m.Status,
		PendingCount:    m.Queue.Len(),
		FailedCount:     m.Queue.TerminalCount(),
		RemoteProjectID: m.RemoteProjectID,
	}
	if m.LastSyncedAt != nil {
		t := *m.LastSyncedAt
		s.LastSyncedAt = &t
	}
	return s
}

// Store persists the sync aggregate. Save is called after every mutation to
// the queue, the identifier maps, or the status, so a crash mid-cycle loses
// at most the in-flight attempt.
type Store interface {
	// Load returns the persisted aggregate for the project, or a fresh
	// empty one if the project has never been synced.
	Load(ctx context.Context, projectID string) (*Metadata, error)

	// Save persists the whole aggregate atomically.
	Save(ctx context.Context, projectID string, meta *Metadata) error

	// Reset deletes all persisted sync state for the project. Used when the
	// user disconnects the project from the cloud.
	Reset(ctx context.Context, projectID string) error
}
