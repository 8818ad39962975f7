package syncengine

import "fmt"

// Scope separates the chapter and entity identifier namespaces.
type Scope string

const (
	// ScopeChapter is the chapter identifier map.
	ScopeChapter Scope = "chapter"
	// ScopeEntity is the entity identifier map.
	ScopeEntity Scope = "entity"
)

// IDMap is a bidirectional table translating client-generated local
// identifiers to server-issued remote identifiers for one scope.
//
// The map is append-only during normal operation: an id, once mapped, is
// never remapped while the project exists, and no two local objects may
// resolve to the same remote object.
type IDMap struct {
	toRemote map[string]string
	toLocal  map[string]string
}

// NewIDMap creates an empty identifier map.
func NewIDMap() *IDMap {
	return &IDMap{
		toRemote: make(map[string]string),
		toLocal:  make(map[string]string),
	}
}

// Put records a localID -> remoteID mapping.
//
// Re-adding the identical pair is a no-op, which is what the duplicate
// recovery path relies on. Remapping either side to a different value is an
// error.
func (m *IDMap) Put(localID, remoteID string) error {
	if localID == "" || remoteID == "" {
		return fmt.Errorf("id map entries must be non-empty (local=%q remote=%q)", localID, remoteID)
	}
	if existing, ok := m.toRemote[localID]; ok {
		if existing == remoteID {
			return nil
		}
		return fmt.Errorf("local id %s already mapped to %s (refusing remap to %s)", localID, existing, remoteID)
	}
	if existing, ok := m.toLocal[remoteID]; ok {
		return fmt.Errorf("remote id %s already mapped to local %s", remoteID, existing)
	}
	m.toRemote[localID] = remoteID
	m.toLocal[remoteID] = localID
	return nil
}

// Remote returns the remote counterpart of a local id.
func (m *IDMap) Remote(localID string) (string, bool) {
	id, ok := m.toRemote[localID]
	return id, ok
}

// Local returns the local counterpart of a remote id.
func (m *IDMap) Local(remoteID string) (string, bool) {
	id, ok := m.toLocal[remoteID]
	return id, ok
}

// Len returns the number of mappings.
func (m *IDMap) Len() int {
	return len(m.toRemote)
}

// Each calls fn for every localID -> remoteID pair, in unspecified order.
func (m *IDMap) Each(fn func(localID, remoteID string)) {
	for l, r := range m.toRemote {
		fn(l, r)
	}
}
