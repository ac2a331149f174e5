// Package store provides storage backends for reply templates and persona.
//
// This file implements the flat-file JSON store.
package store

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/replydesk/replydesk/internal/models"
)

// Constants for JSON store configuration
const (
	// DefaultTemplatesFileName is the default templates file name inside the state directory.
	DefaultTemplatesFileName = "templates.json"
	// DefaultPersonaFileName is the default persona file name inside the state directory.
	DefaultPersonaFileName = "persona.json"
	// DefaultDirPermissions defines the default permissions for state directories.
	DefaultDirPermissions = 0755
	// DefaultFilePermissions defines the default permissions for persisted JSON files.
	DefaultFilePermissions = 0644
)

// JSONStore persists templates and persona to two flat JSON documents,
// rewriting each file wholesale on every mutation. There is no atomicity
// guarantee beyond the underlying file write.
type JSONStore struct {
	mu            sync.Mutex
	templatesPath string
	personaPath   string
	templates     []models.Template
	persona       models.Persona
}

// NewJSONStore creates a JSON-backed store, loading existing state from disk.
// Missing files yield defaults (no templates, the default persona); files that
// exist but cannot be parsed cause a startup failure.
func NewJSONStore(opts ...Option) (*JSONStore, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.TemplatesPath == "" {
		cfg.TemplatesPath = DefaultTemplatesFileName
	}
	if cfg.PersonaPath == "" {
		cfg.PersonaPath = DefaultPersonaFileName
	}
	slog.Debug("NewJSONStore invoked", "templates_path", cfg.TemplatesPath, "persona_path", cfg.PersonaPath)

	for _, p := range []string{cfg.TemplatesPath, cfg.PersonaPath} {
		dir := filepath.Dir(p)
		if err := os.MkdirAll(dir, DefaultDirPermissions); err != nil {
			slog.Error("Failed to create store directory", "error", err, "dir", dir)
			return nil, fmt.Errorf("failed to create store directory: %w", err)
		}
	}

	s := &JSONStore{
		templatesPath: cfg.TemplatesPath,
		personaPath:   cfg.PersonaPath,
		persona:       models.DefaultPersona(),
	}

	if err := loadJSONFile(cfg.TemplatesPath, &s.templates); err != nil {
		return nil, fmt.Errorf("failed to load templates: %w", err)
	}
	if err := loadJSONFile(cfg.PersonaPath, &s.persona); err != nil {
		return nil, fmt.Errorf("failed to load persona: %w", err)
	}

	slog.Info("JSONStore loaded", "templates", len(s.templates), "persona_brand", s.persona.Brand)
	return s, nil
}

// loadJSONFile reads the file at path into out. A missing file leaves out
// untouched; a malformed file returns models.ErrMalformedStore.
func loadJSONFile(path string, out interface{}) error {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		slog.Debug("JSONStore file absent, using defaults", "path", path)
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", path, err)
	}
	if err := json.Unmarshal(data, out); err != nil {
		slog.Error("JSONStore file is malformed", "path", path, "error", err)
		return fmt.Errorf("%w: %s: %v", models.ErrMalformedStore, path, err)
	}
	return nil
}

// saveJSONFile rewrites the file at path with the JSON encoding of v.
func saveJSONFile(path string, v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", path, err)
	}
	if err := os.WriteFile(path, data, DefaultFilePermissions); err != nil {
		slog.Error("JSONStore write failed", "path", path, "error", err)
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return nil
}

// Templates returns the current templates in insertion order.
func (s *JSONStore) Templates() []models.Template {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.Template, len(s.templates))
	copy(out, s.templates)
	return out
}

// AddTemplate appends a template and rewrites the templates file.
func (s *JSONStore) AddTemplate(t models.Template) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.templates = append(s.templates, t)
	if err := saveJSONFile(s.templatesPath, s.templates); err != nil {
		return err
	}
	slog.Debug("JSONStore template added", "trigger", t.Trigger, "count", len(s.templates))
	return nil
}

// RemoveTemplate deletes the template at index and rewrites the templates
// file. Out-of-range indexes are silently ignored.
func (s *JSONStore) RemoveTemplate(index int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if index < 0 || index >= len(s.templates) {
		slog.Debug("JSONStore remove ignored, index out of range", "index", index, "count", len(s.templates))
		return nil
	}
	s.templates = append(s.templates[:index], s.templates[index+1:]...)
	if err := saveJSONFile(s.templatesPath, s.templates); err != nil {
		return err
	}
	slog.Debug("JSONStore template removed", "index", index, "count", len(s.templates))
	return nil
}

// Persona returns the current persona record.
func (s *JSONStore) Persona() models.Persona {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.persona
}

// SetPersona replaces the persona and rewrites the persona file.
func (s *JSONStore) SetPersona(p models.Persona) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.persona = p
	if err := saveJSONFile(s.personaPath, s.persona); err != nil {
		return err
	}
	slog.Debug("JSONStore persona replaced", "brand", p.Brand)
	return nil
}
