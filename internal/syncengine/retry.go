package syncengine

import "time"

// RetryPolicy maps a record's retry count to the delay before its next
// automatic attempt. It is a value object so tests can inject compressed
// delays without weakening the production default.
type RetryPolicy struct {
	// Delays is the backoff table. Delays[k] is the wait between attempt k
	// and attempt k+1 (attempts numbered from zero). Once a record has
	// failed len(Delays) times it is terminally failed and only a manual
	// retry can revive it.
	Delays []time.Duration
}

// DefaultRetryPolicy returns the production backoff table: 5s, 15s, 45s,
// 2m, 5m, then permanent failure. The monotonically increasing delays bound
// retry storms against a recovering or rate-limited store while keeping the
// worst case at five automatic attempts.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		Delays: []time.Duration{
			5 * time.Second,
			15 * time.Second,
			45 * time.Second,
			120 * time.Second,
			300 * time.Second,
		},
	}
}

// MaxAttempts returns the retry ceiling: the number of automatic attempts
// allowed before a record becomes terminally failed.
func (p RetryPolicy) MaxAttempts() int {
	return len(p.Delays)
}

// NextEligible returns the earliest time the record may be attempted again.
// ok is false when no automatic attempt is allowed (terminal failure).
//
// A record that has never been attempted is immediately eligible. After the
// k-th failure (RetryCount == k) the record waits Delays[k-1] from the
// failed attempt, so the gap between attempt k and k+1 is exactly Delays[k]
// for zero-based attempt numbering.
func (p RetryPolicy) NextEligible(rec *Record) (time.Time, bool) {
	if rec.Failed || rec.RetryCount >= p.MaxAttempts() {
		return time.Time{}, false
	}
	if rec.LastAttemptAt == nil || rec.RetryCount == 0 {
		return time.Time{}, true
	}
	return rec.LastAttemptAt.Add(p.Delays[rec.RetryCount-1]), true
}

// Due reports whether the record is eligible for an attempt at now.
func (p RetryPolicy) Due(rec *Record, now time.Time) bool {
	at, ok := p.NextEligible(rec)
	if !ok {
		return false
	}
	return !at.After(now)
}
