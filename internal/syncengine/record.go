// Package syncengine implements the local-first reconciliation engine.
//
// The engine reconciles a project stored as local files with its cloud-backed
// copy reachable through an unreliable network and an eventually-available
// credential. Local mutations become operation records in a durable queue;
// a single background drain task transmits due records, maps local
// identifiers to server-issued ones, retries failures with bounded backoff,
// and publishes a low-cardinality status signal for the rest of the app.
package syncengine

import (
	"fmt"
	"time"
)

// OperationKind identifies the type of a pending local mutation.
//
// The set is closed: adding a kind means extending every switch that
// consumes it, which the compiler surfaces via the default branches below.
type OperationKind int

const (
	// OpCreateChapter uploads a chapter document. Repeated edits to the same
	// chapter coalesce into this one kind; the remote call is an upsert.
	OpCreateChapter OperationKind = iota

	// OpCreateEntity uploads a story entity (character, location, item).
	OpCreateEntity

	// OpUpdateProject uploads the project-level metadata document.
	OpUpdateProject
)

// String returns the wire name of the operation kind.
func (k OperationKind) String() string {
	switch k {
	case OpCreateChapter:
		return "create-chapter"
	case OpCreateEntity:
		return "create-entity"
	case OpUpdateProject:
		return "update-project"
	default:
		return fmt.Sprintf("operation-kind-%d", int(k))
	}
}

// ParseOperationKind converts a wire name back to an OperationKind.
func ParseOperationKind(s string) (OperationKind, error) {
	switch s {
	case "create-chapter":
		return OpCreateChapter, nil
	case "create-entity":
		return OpCreateEntity, nil
	case "update-project":
		return OpUpdateProject, nil
	default:
		return 0, fmt.Errorf("unknown operation kind %q", s)
	}
}

// Scope returns the identifier-map scope the operation's result belongs to.
// ok is false for operations that do not produce a new object mapping.
func (k OperationKind) Scope() (Scope, bool) {
	switch k {
	case OpCreateChapter:
		return ScopeChapter, true
	case OpCreateEntity:
		return ScopeEntity, true
	default:
		return "", false
	}
}

// Record describes one pending local mutation that has not yet been
// confirmed by the remote store.
//
// A record is immutable from the caller's perspective; only the queue
// mutates retry bookkeeping, and only on the engine's drain task.
type Record struct {
	// Kind is the operation type.
	Kind OperationKind `json:"kind"`

	// LocalID is the client-generated identifier of the object this
	// operation concerns. Unique within the project, never reused.
	LocalID string `json:"local_id"`

	// Payload is the opaque document to send. Its shape is the remote
	// store's concern; the engine only translates local-ID references.
	Payload map[string]any `json:"payload"`

	// RetryCount is the number of failed transmission attempts so far.
	RetryCount int `json:"retry_count"`

	// LastAttemptAt is the time of the most recent attempt; nil before the
	// first one.
	LastAttemptAt *time.Time `json:"last_attempt_at,omitempty"`

	// Failed marks the terminal sub-state: the retry ceiling was exhausted
	// (or the payload was rejected as malformed) and the record waits for
	// an explicit manual retry.
	Failed bool `json:"failed"`

	// revision counts payload coalesces. The drain cycle compares the
	// revision it transmitted against the queued one to detect an edit that
	// arrived while the upload was in flight. In-memory only; a restart has
	// no in-flight attempt to reconcile.
	revision uint64
}

// clone returns a copy of the record safe to hand to readers. The payload
// map is shared; callers treat it as read-only.
func (r *Record) clone() Record {
	c := *r
	if r.LastAttemptAt != nil {
		t := *r.LastAttemptAt
		c.LastAttemptAt = &t
	}
	return c
}
