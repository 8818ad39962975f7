// Package project provides data structures for Inkwell project files.
//
// A project is a directory on disk:
//
//	project.json       project metadata
//	chapters/*.json    one file per chapter
//	entities/*.json    one file per entity (character, location, ...)
//
// Each file is flat JSON with last-write-wins semantics: fields update
// independently and timestamps resolve conflicts. Local identifiers are
// UUIDs minted at creation time and never change; remote identifiers are
// assigned by the cloud service and tracked separately by the sync layer.
package project

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Layout resolves the on-disk paths of a project directory.
type Layout struct {
	Root string
}

// ProjectPath returns the path of the project metadata file.
func (l Layout) ProjectPath() string { return filepath.Join(l.Root, "project.json") }

// ChaptersDir returns the directory holding chapter files.
func (l Layout) ChaptersDir() string { return filepath.Join(l.Root, "chapters") }

// EntitiesDir returns the directory holding entity files.
func (l Layout) EntitiesDir() string { return filepath.Join(l.Root, "entities") }

// ProjectFile represents the project.json metadata file.
type ProjectFile struct {
	ID    string `json:"id"`
	Title string `json:"title"`

	Description string `json:"description,omitempty"`
	Author      string `json:"author,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// NewProject creates a project with a fresh UUID and current timestamps.
func NewProject(title string) *ProjectFile {
	now := time.Now().UTC()
	return &ProjectFile{
		ID:        uuid.NewString(),
		Title:     title,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// Validate checks if the ProjectFile has valid field values.
func (p *ProjectFile) Validate() error {
	if p.ID == "" {
		return fmt.Errorf("id is required")
	}
	if p.Title == "" {
		return fmt.Errorf("title is required")
	}
	if len(p.Title) > 500 {
		return fmt.Errorf("title must be 500 characters or less (got %d)", len(p.Title))
	}
	if p.CreatedAt.IsZero() {
		return fmt.Errorf("created_at is required")
	}
	if p.UpdatedAt.IsZero() {
		return fmt.Errorf("updated_at is required")
	}
	return nil
}

// UpdateTimestamp sets UpdatedAt to current time. Call whenever any field
// is modified.
func (p *ProjectFile) UpdateTimestamp() {
	p.UpdatedAt = time.Now().UTC()
}

// SyncPayload returns the project metadata as a sync operation payload.
func (p *ProjectFile) SyncPayload() map[string]any {
	payload := map[string]any{
		"title":      p.Title,
		"updated_at": p.UpdatedAt.Format(time.RFC3339Nano),
	}
	if p.Description != "" {
		payload["description"] = p.Description
	}
	if p.Author != "" {
		payload["author"] = p.Author
	}
	return payload
}

// ReadProjectFile reads and parses project.json from the project root.
func ReadProjectFile(layout Layout) (*ProjectFile, error) {
	path := layout.ProjectPath()
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read project file %s: %w", path, err)
	}

	var proj ProjectFile
	if err := json.Unmarshal(data, &proj); err != nil {
		return nil, fmt.Errorf("failed to parse project file %s: %w", path, err)
	}

	if err := proj.Validate(); err != nil {
		return nil, fmt.Errorf("invalid project file %s: %w", path, err)
	}

	return &proj, nil
}

// WriteProjectFile writes project.json with pretty-printed formatting.
func WriteProjectFile(layout Layout, proj *ProjectFile) error {
	if err := proj.Validate(); err != nil {
		return fmt.Errorf("cannot write invalid project: %w", err)
	}

	if err := os.MkdirAll(layout.Root, 0755); err != nil {
		return fmt.Errorf("failed to create project directory: %w", err)
	}

	data, err := json.MarshalIndent(proj, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal project %s: %w", proj.ID, err)
	}

	if err := os.WriteFile(layout.ProjectPath(), data, 0644); err != nil {
		return fmt.Errorf("failed to write project file: %w", err)
	}

	return nil
}

// readJSONFiles reads all *.json files from dir, parsing each with parse.
// Invalid files are skipped with a warning to stderr. A missing directory
// is treated as empty.
func readJSONFiles(dir string, parse func(path string) error) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to read directory %s: %w", dir, err)
	}

	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		path := filepath.Join(dir, entry.Name())
		if err := parse(path); err != nil {
			fmt.Fprintf(os.Stderr, "Warning: skipping invalid file %s: %v\n", entry.Name(), err)
		}
	}
	return nil
}
