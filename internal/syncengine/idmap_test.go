package syncengine

import "testing"

// TestIDMap_PutAndLookup tests bidirectional lookup.
func TestIDMap_PutAndLookup(t *testing.T) {
	m := NewIDMap()
	if err := m.Put("local-1", "remote-1"); err != nil {
		t.Fatalf("Put() failed: %v", err)
	}

	if got, ok := m.Remote("local-1"); !ok || got != "remote-1" {
		t.Errorf("Remote(local-1) = %q, %v; want remote-1, true", got, ok)
	}
	if got, ok := m.Local("remote-1"); !ok || got != "local-1" {
		t.Errorf("Local(remote-1) = %q, %v; want local-1, true", got, ok)
	}
	if _, ok := m.Remote("unknown"); ok {
		t.Error("Remote(unknown) ok = true")
	}
	if m.Len() != 1 {
		t.Errorf("Len() = %d, want 1", m.Len())
	}
}

// TestIDMap_IdempotentPut tests that re-adding the identical pair succeeds,
// which happens when a duplicate response replays a mapping already stored.
func TestIDMap_IdempotentPut(t *testing.T) {
	m := NewIDMap()
	_ = m.Put("local-1", "remote-1")

	if err := m.Put("local-1", "remote-1"); err != nil {
		t.Errorf("identical re-Put failed: %v", err)
	}
	if m.Len() != 1 {
		t.Errorf("Len() = %d after re-Put, want 1", m.Len())
	}
}

// TestIDMap_RejectsRemap tests that a local id cannot be remapped and a
// remote id cannot serve two locals. Mappings are permanent for the life
// of the project link.
func TestIDMap_RejectsRemap(t *testing.T) {
	m := NewIDMap()
	_ = m.Put("local-1", "remote-1")

	if err := m.Put("local-1", "remote-other"); err == nil {
		t.Error("remapping a local id did not fail")
	}
	if err := m.Put("local-other", "remote-1"); err == nil {
		t.Error("reusing a remote id did not fail")
	}

	// Failed puts must not corrupt the map.
	if got, _ := m.Remote("local-1"); got != "remote-1" {
		t.Errorf("Remote(local-1) = %q after rejected puts, want remote-1", got)
	}
	if m.Len() != 1 {
		t.Errorf("Len() = %d, want 1", m.Len())
	}
}

// TestIDMap_Each tests enumeration for persistence.
func TestIDMap_Each(t *testing.T) {
	m := NewIDMap()
	_ = m.Put("l1", "r1")
	_ = m.Put("l2", "r2")

	seen := map[string]string{}
	m.Each(func(localID, remoteID string) {
		seen[localID] = remoteID
	})

	if len(seen) != 2 || seen["l1"] != "r1" || seen["l2"] != "r2" {
		t.Errorf("Each() visited %v, want {l1:r1 l2:r2}", seen)
	}
}
