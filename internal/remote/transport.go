// Package remote defines the contract with the cloud-backed object store and
// provides the REST client that implements it.
//
// The remote store is opaque to the rest of the application: it accepts a
// key-value payload document and returns a server-issued identifier, or an
// error carrying a classification. The sync engine makes every retry and
// status decision based solely on that classification.
package remote

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// Kind classifies a transport failure. The reconciliation engine folds every
// failure into queue state based on this value alone.
type Kind int

const (
	// KindTransient covers network errors, timeouts, and server errors that
	// are worth retrying with backoff.
	KindTransient Kind = iota

	// KindDuplicate means the remote store reported the object already
	// exists. Treated as success by the engine: a prior attempt committed
	// remotely but its response was lost.
	KindDuplicate

	// KindAuth means the credential was rejected. Drives the engine to the
	// offline state; the queue is preserved untouched.
	KindAuth

	// KindMalformed means the remote store rejected the payload itself.
	// Never retried, because resubmitting unchanged data cannot succeed.
	KindMalformed
)

// String returns a human-readable representation of the classification.
func (k Kind) String() string {
	switch k {
	case KindTransient:
		return "transient"
	case KindDuplicate:
		return "duplicate"
	case KindAuth:
		return "auth"
	case KindMalformed:
		return "malformed"
	default:
		return "unknown"
	}
}

// duplicateMarker is the substring the remote store includes in error
// messages for objects that already exist. Matching on it is the documented
// contract with the store; do not change it without coordinating a
// structured error code on the server side.
const duplicateMarker = "already exists"

// Error is a classified transport failure.
type Error struct {
	// Kind is the failure classification.
	Kind Kind

	// Op names the transport call that failed, for diagnostics.
	Op string

	// RemoteID carries the existing object's server-issued identifier when
	// the store reports a duplicate and includes one. Empty otherwise.
	RemoteID string

	// Message is the error detail reported by the store or the network layer.
	Message string
}

// Error implements the error interface.
func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s (%s)", e.Op, e.Message, e.Kind)
}

// Classify returns the classification for a transport error.
//
// Errors produced by this package carry an explicit Kind. Anything else
// (wrapped network errors, context deadlines) is transient: the caller
// retries it with backoff. A message containing the duplicate marker is
// classified as duplicate regardless of how the error was produced.
func Classify(err error) Kind {
	var re *Error
	if errors.As(err, &re) {
		return re.Kind
	}
	if err != nil && strings.Contains(err.Error(), duplicateMarker) {
		return KindDuplicate
	}
	return KindTransient
}

// DuplicateID extracts the reported remote identifier from a
// duplicate-classified error, if the store included one.
func DuplicateID(err error) string {
	var re *Error
	if errors.As(err, &re) && re.Kind == KindDuplicate {
		return re.RemoteID
	}
	return ""
}

// Transport is the narrow interface the reconciliation engine uses to reach
// the remote object store. Implementations must bound every call with a
// timeout and return classified errors.
type Transport interface {
	// CreateProject creates the remote counterpart of a local project and
	// returns its server-issued identifier.
	CreateProject(ctx context.Context, metadata map[string]any) (string, error)

	// CreateOrUpdate transmits one operation payload. kind is the wire name
	// of the operation ("create-chapter", "create-entity", "update-project").
	// Returns the server-issued identifier of the affected object.
	CreateOrUpdate(ctx context.Context, remoteProjectID, kind string, payload map[string]any) (string, error)
}
