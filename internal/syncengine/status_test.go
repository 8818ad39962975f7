package syncengine

import "testing"

// TestDeriveStatus covers the status derivation table: credential presence,
// queue depth, terminal failures, and remote linkage.
func TestDeriveStatus(t *testing.T) {
	tests := []struct {
		name            string
		credential      bool
		queueLen        int
		terminalCount   int
		remoteProjectID string
		want            Status
	}{
		{"no credential", false, 0, 0, "", StatusOffline},
		{"no credential with queue", false, 3, 0, "rp-1", StatusOffline},
		{"empty queue never synced", true, 0, 0, "", StatusPending},
		{"empty queue with remote link", true, 0, 0, "rp-1", StatusSynced},
		{"work pending", true, 2, 0, "rp-1", StatusPending},
		{"some failed some pending", true, 3, 1, "rp-1", StatusPending},
		{"all failed", true, 2, 2, "rp-1", StatusFailed},
		{"all failed without remote link", true, 1, 1, "", StatusFailed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := deriveStatus(tt.credential, tt.queueLen, tt.terminalCount, tt.remoteProjectID)
			if got != tt.want {
				t.Errorf("deriveStatus(%v, %d, %d, %q) = %s, want %s",
					tt.credential, tt.queueLen, tt.terminalCount, tt.remoteProjectID, got, tt.want)
			}
		})
	}
}

// TestParseStatus tests round-tripping status names.
func TestParseStatus(t *testing.T) {
	for _, s := range []Status{StatusOffline, StatusPending, StatusSyncing, StatusSynced, StatusFailed} {
		got, err := ParseStatus(string(s))
		if err != nil {
			t.Errorf("ParseStatus(%q) failed: %v", s, err)
		}
		if got != s {
			t.Errorf("ParseStatus(%q) = %s, want %s", s, got, s)
		}
		if !s.Valid() {
			t.Errorf("%s.Valid() = false", s)
		}
	}

	if _, err := ParseStatus("bogus"); err == nil {
		t.Error("ParseStatus(\"bogus\") did not fail")
	}
	if Status("bogus").Valid() {
		t.Error("Status(\"bogus\").Valid() = true")
	}
}
