package syncengine

import (
	"fmt"
	"time"
)

// Queue is the ordered holding area for operation records awaiting
// transmission. It is plain in-memory state; durability comes from the
// engine persisting the whole metadata aggregate after every mutation.
//
// Invariant: a given local id appears at most once. An update to an object
// already pending collapses into the existing record by replacing its
// payload, keeping the record's retry bookkeeping and queue position.
type Queue struct {
	records []*Record
	byLocal map[string]*Record
}

// NewQueue creates an empty queue.
func NewQueue() *Queue {
	return &Queue{byLocal: make(map[string]*Record)}
}

// Enqueue adds a record for (kind, localID) or coalesces into the existing
// one. Coalescing replaces only the payload: position, retry count, and the
// terminal flag are untouched, so an edit to a terminally failed object
// does not silently re-arm automatic retries.
func (q *Queue) Enqueue(kind OperationKind, localID string, payload map[string]any) error {
	if localID == "" {
		return fmt.Errorf("local id is required")
	}
	if existing, ok := q.byLocal[localID]; ok {
		if existing.Kind != kind {
			return fmt.Errorf("local id %s already queued as %s (got %s)", localID, existing.Kind, kind)
		}
		existing.Payload = payload
		existing.revision++
		return nil
	}
	rec := &Record{Kind: kind, LocalID: localID, Payload: payload}
	q.records = append(q.records, rec)
	q.byLocal[localID] = rec
	return nil
}

// DequeueDue returns copies of records eligible for an attempt at now, in
// original insertion order. Records are not removed; removal happens only
// after a definitive outcome. Terminally failed records are excluded until
// a manual retry revives them.
func (q *Queue) DequeueDue(now time.Time, policy RetryPolicy) []Record {
	var due []Record
	for _, rec := range q.records {
		if policy.Due(rec, now) {
			due = append(due, rec.clone())
		}
	}
	return due
}

// Remove deletes the record for localID after a confirmed outcome.
// Removing an absent id is a no-op.
func (q *Queue) Remove(localID string) {
	if _, ok := q.byLocal[localID]; !ok {
		return
	}
	delete(q.byLocal, localID)
	for i, rec := range q.records {
		if rec.LocalID == localID {
			q.records = append(q.records[:i], q.records[i+1:]...)
			break
		}
	}
}

// MarkFailed records a failed attempt at now: increments the retry count,
// stamps the attempt time, and transitions to the terminal failed sub-state
// once the policy's ceiling is reached. Returns true if the record is now
// terminally failed.
func (q *Queue) MarkFailed(localID string, now time.Time, policy RetryPolicy) bool {
	rec, ok := q.byLocal[localID]
	if !ok {
		return false
	}
	rec.RetryCount++
	t := now
	rec.LastAttemptAt = &t
	if rec.RetryCount >= policy.MaxAttempts() {
		rec.Failed = true
	}
	return rec.Failed
}

// MarkTerminal moves the record directly to the terminal failed sub-state,
// bypassing the backoff table. Used for malformed payloads, which cannot
// succeed on resubmission.
func (q *Queue) MarkTerminal(localID string, now time.Time) {
	rec, ok := q.byLocal[localID]
	if !ok {
		return
	}
	t := now
	rec.LastAttemptAt = &t
	rec.Failed = true
}

// ResetFailed clears the terminal state and retry counters of every failed
// record, making them immediately eligible again. Returns the number of
// records revived. Called on explicit manual retry.
func (q *Queue) ResetFailed() int {
	n := 0
	for _, rec := range q.records {
		if rec.Failed {
			rec.Failed = false
			rec.RetryCount = 0
			rec.LastAttemptAt = nil
			n++
		}
	}
	return n
}

// Len returns the number of queued records.
func (q *Queue) Len() int {
	return len(q.records)
}

// TerminalCount returns the number of terminally failed records.
func (q *Queue) TerminalCount() int {
	n := 0
	for _, rec := range q.records {
		if rec.Failed {
			n++
		}
	}
	return n
}

// Records returns copies of all records in insertion order, for persistence
// and read-only inspection.
func (q *Queue) Records() []Record {
	out := make([]Record, 0, len(q.records))
	for _, rec := range q.records {
		out = append(out, rec.clone())
	}
	return out
}

// Restore rebuilds the queue from persisted records, preserving order.
func (q *Queue) Restore(records []Record) error {
	for i := range records {
		rec := records[i]
		if _, ok := q.byLocal[rec.LocalID]; ok {
			return fmt.Errorf("duplicate local id %s in persisted queue", rec.LocalID)
		}
		r := rec.clone()
		q.records = append(q.records, &r)
		q.byLocal[r.LocalID] = &r
	}
	return nil
}
