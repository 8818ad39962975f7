package project

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/inkwell-app/inkwell/internal/syncengine"
)

// EntityKind classifies story entities.
type EntityKind string

const (
	EntityCharacter EntityKind = "character"
	EntityLocation  EntityKind = "location"
	EntityItem      EntityKind = "item"
	EntityNote      EntityKind = "note"
)

// Valid reports whether the kind is one of the known entity kinds.
func (k EntityKind) Valid() bool {
	switch k {
	case EntityCharacter, EntityLocation, EntityItem, EntityNote:
		return true
	}
	return false
}

// EntityFile represents a story entity stored as an individual JSON file
// in entities/*.json. An entity may reference the chapter it first appears
// in by the chapter's local identifier.
type EntityFile struct {
	LocalID string `json:"local_id"`

	Name string     `json:"name"`
	Kind EntityKind `json:"kind"`

	Description string `json:"description,omitempty"`

	// ChapterLocalID is the local id of the chapter this entity first
	// appears in, if any. The sync layer translates it to the remote
	// chapter id before transmission.
	ChapterLocalID string `json:"chapter_local_id,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// NewEntity creates an entity with a fresh UUID and current timestamps.
func NewEntity(name string, kind EntityKind) *EntityFile {
	now := time.Now().UTC()
	return &EntityFile{
		LocalID:   uuid.NewString(),
		Name:      name,
		Kind:      kind,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// Validate checks if the EntityFile has valid field values.
func (e *EntityFile) Validate() error {
	if e.LocalID == "" {
		return fmt.Errorf("local_id is required")
	}
	if e.Name == "" {
		return fmt.Errorf("name is required")
	}
	if len(e.Name) > 500 {
		return fmt.Errorf("name must be 500 characters or less (got %d)", len(e.Name))
	}
	if !e.Kind.Valid() {
		return fmt.Errorf("unknown entity kind %q", e.Kind)
	}
	if e.CreatedAt.IsZero() {
		return fmt.Errorf("created_at is required")
	}
	if e.UpdatedAt.IsZero() {
		return fmt.Errorf("updated_at is required")
	}
	return nil
}

// Filename returns the canonical filename for this entity: {local_id}.json
func (e *EntityFile) Filename() string {
	return fmt.Sprintf("%s.json", e.LocalID)
}

// UpdateTimestamp sets UpdatedAt to current time.
func (e *EntityFile) UpdateTimestamp() {
	e.UpdatedAt = time.Now().UTC()
}

// SyncPayload returns the entity as a sync operation payload. The chapter
// reference is carried under its local-id key so the sync layer can defer
// the operation until the parent chapter has a remote id.
func (e *EntityFile) SyncPayload() map[string]any {
	payload := map[string]any{
		"name":       e.Name,
		"kind":       string(e.Kind),
		"updated_at": e.UpdatedAt.Format(time.RFC3339Nano),
	}
	if e.Description != "" {
		payload["description"] = e.Description
	}
	if e.ChapterLocalID != "" {
		payload[syncengine.PayloadChapterRef] = e.ChapterLocalID
	}
	return payload
}

// ReadEntityFile reads and parses an entity JSON file from the given path.
func ReadEntityFile(path string) (*EntityFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read entity file %s: %w", path, err)
	}

	var ent EntityFile
	if err := json.Unmarshal(data, &ent); err != nil {
		return nil, fmt.Errorf("failed to parse entity file %s: %w", path, err)
	}

	if err := ent.Validate(); err != nil {
		return nil, fmt.Errorf("invalid entity file %s: %w", path, err)
	}

	return &ent, nil
}

// WriteEntityFile writes an entity to entitiesDir/{local_id}.json.
func WriteEntityFile(entitiesDir string, ent *EntityFile) error {
	if err := ent.Validate(); err != nil {
		return fmt.Errorf("cannot write invalid entity: %w", err)
	}

	if err := os.MkdirAll(entitiesDir, 0755); err != nil {
		return fmt.Errorf("failed to create entities directory: %w", err)
	}

	data, err := json.MarshalIndent(ent, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal entity %s: %w", ent.LocalID, err)
	}

	path := filepath.Join(entitiesDir, ent.Filename())
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write entity file %s: %w", path, err)
	}

	return nil
}

// ReadAllEntityFiles reads all entity files from the given directory.
// Invalid files are skipped with a warning to stderr.
func ReadAllEntityFiles(entitiesDir string) ([]*EntityFile, error) {
	var entities []*EntityFile
	err := readJSONFiles(entitiesDir, func(path string) error {
		ent, err := ReadEntityFile(path)
		if err != nil {
			return err
		}
		entities = append(entities, ent)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return entities, nil
}
