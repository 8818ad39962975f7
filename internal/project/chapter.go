package project

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/google/uuid"
)

// ChapterFile represents a chapter stored as an individual JSON file in
// chapters/*.json.
type ChapterFile struct {
	LocalID string `json:"local_id"`

	Title string `json:"title"`
	Body  string `json:"body,omitempty"`

	// Order positions the chapter in the manuscript. Lower sorts first.
	Order int `json:"order"`

	WordCount int `json:"word_count"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// NewChapter creates a chapter with a fresh UUID and current timestamps.
func NewChapter(title string, order int) *ChapterFile {
	now := time.Now().UTC()
	return &ChapterFile{
		LocalID:   uuid.NewString(),
		Title:     title,
		Order:     order,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// Validate checks if the ChapterFile has valid field values.
func (c *ChapterFile) Validate() error {
	if c.LocalID == "" {
		return fmt.Errorf("local_id is required")
	}
	if c.Title == "" {
		return fmt.Errorf("title is required")
	}
	if len(c.Title) > 500 {
		return fmt.Errorf("title must be 500 characters or less (got %d)", len(c.Title))
	}
	if c.Order < 0 {
		return fmt.Errorf("order must be non-negative (got %d)", c.Order)
	}
	if c.CreatedAt.IsZero() {
		return fmt.Errorf("created_at is required")
	}
	if c.UpdatedAt.IsZero() {
		return fmt.Errorf("updated_at is required")
	}
	return nil
}

// Filename returns the canonical filename for this chapter: {local_id}.json
func (c *ChapterFile) Filename() string {
	return fmt.Sprintf("%s.json", c.LocalID)
}

// UpdateTimestamp sets UpdatedAt to current time.
func (c *ChapterFile) UpdateTimestamp() {
	c.UpdatedAt = time.Now().UTC()
}

// SyncPayload returns the chapter as a sync operation payload. Identifiers
// stay local; the sync layer translates them before transmission.
func (c *ChapterFile) SyncPayload() map[string]any {
	return map[string]any{
		"title":      c.Title,
		"body":       c.Body,
		"order":      c.Order,
		"word_count": c.WordCount,
		"updated_at": c.UpdatedAt.Format(time.RFC3339Nano),
	}
}

// ReadChapterFile reads and parses a chapter JSON file from the given path.
func ReadChapterFile(path string) (*ChapterFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read chapter file %s: %w", path, err)
	}

	var ch ChapterFile
	if err := json.Unmarshal(data, &ch); err != nil {
		return nil, fmt.Errorf("failed to parse chapter file %s: %w", path, err)
	}

	if err := ch.Validate(); err != nil {
		return nil, fmt.Errorf("invalid chapter file %s: %w", path, err)
	}

	return &ch, nil
}

// WriteChapterFile writes a chapter to chaptersDir/{local_id}.json.
func WriteChapterFile(chaptersDir string, ch *ChapterFile) error {
	if err := ch.Validate(); err != nil {
		return fmt.Errorf("cannot write invalid chapter: %w", err)
	}

	if err := os.MkdirAll(chaptersDir, 0755); err != nil {
		return fmt.Errorf("failed to create chapters directory: %w", err)
	}

	data, err := json.MarshalIndent(ch, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal chapter %s: %w", ch.LocalID, err)
	}

	path := filepath.Join(chaptersDir, ch.Filename())
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write chapter file %s: %w", path, err)
	}

	return nil
}

// ReadAllChapterFiles reads all chapter files from the given directory,
// sorted by manuscript order. Invalid files are skipped with a warning
// to stderr.
func ReadAllChapterFiles(chaptersDir string) ([]*ChapterFile, error) {
	var chapters []*ChapterFile
	err := readJSONFiles(chaptersDir, func(path string) error {
		ch, err := ReadChapterFile(path)
		if err != nil {
			return err
		}
		chapters = append(chapters, ch)
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.SliceStable(chapters, func(i, j int) bool {
		return chapters[i].Order < chapters[j].Order
	})
	return chapters, nil
}
