package syncengine

import "fmt"

// Status is the aggregate health signal the rest of the application renders.
// It has deliberately low cardinality: five states, no per-record detail.
type Status string

const (
	// StatusOffline means no credential is available or the store rejected
	// the last one. The queue is preserved and drains once a credential
	// returns.
	StatusOffline Status = "offline"

	// StatusPending means records are waiting to be transmitted (including
	// records merely waiting out backoff).
	StatusPending Status = "pending"

	// StatusSyncing means a drain cycle is in progress.
	StatusSyncing Status = "syncing"

	// StatusSynced means the queue is empty and the project has a remote
	// counterpart.
	StatusSynced Status = "synced"

	// StatusFailed means every remaining record is terminally failed and
	// user intervention (manual retry) is required.
	StatusFailed Status = "failed"
)

// Valid reports whether s is one of the defined states.
func (s Status) Valid() bool {
	switch s {
	case StatusOffline, StatusPending, StatusSyncing, StatusSynced, StatusFailed:
		return true
	}
	return false
}

// ParseStatus converts a persisted string back to a Status.
func ParseStatus(s string) (Status, error) {
	st := Status(s)
	if !st.Valid() {
		return "", fmt.Errorf("unknown sync status %q", s)
	}
	return st, nil
}

// deriveStatus computes the status from queue and credential state. It is a
// pure function: deriving twice from the same inputs yields the same result.
//
//   - No credential: offline, regardless of everything else.
//   - Empty queue with a remote counterpart: synced.
//   - Empty queue, never synced (brand-new project): pending.
//   - Non-empty queue where every record is terminally failed: failed.
//   - Otherwise: pending (records in flight or waiting out backoff).
//
// StatusSyncing is never derived; the engine sets it explicitly for the
// duration of a drain cycle.
func deriveStatus(credentialPresent bool, queueLen, terminalCount int, remoteProjectID string) Status {
	if !credentialPresent {
		return StatusOffline
	}
	if queueLen == 0 {
		if remoteProjectID != "" {
			return StatusSynced
		}
		return StatusPending
	}
	if terminalCount == queueLen {
		return StatusFailed
	}
	return StatusPending
}
