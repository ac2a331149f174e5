// Package store provides storage backends for reply templates and persona.
//
// This file implements the in-memory store used by the ephemeral server
// variant and by tests. State is lost on restart.
package store

import (
	"sync"

	"github.com/replydesk/replydesk/internal/models"
)

// InMemoryStore keeps templates and persona in process memory only.
type InMemoryStore struct {
	mu        sync.Mutex
	templates []models.Template
	persona   models.Persona
}

// NewInMemoryStore creates an empty in-memory store with the default persona.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{persona: models.DefaultPersona()}
}

// Templates returns the current templates in insertion order.
func (s *InMemoryStore) Templates() []models.Template {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.Template, len(s.templates))
	copy(out, s.templates)
	return out
}

// AddTemplate appends a template.
func (s *InMemoryStore) AddTemplate(t models.Template) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.templates = append(s.templates, t)
	return nil
}

// RemoveTemplate deletes the template at index; out-of-range is a no-op.
func (s *InMemoryStore) RemoveTemplate(index int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if index < 0 || index >= len(s.templates) {
		return nil
	}
	s.templates = append(s.templates[:index], s.templates[index+1:]...)
	return nil
}

// Persona returns the current persona record.
func (s *InMemoryStore) Persona() models.Persona {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.persona
}

// SetPersona replaces the persona wholesale.
func (s *InMemoryStore) SetPersona(p models.Persona) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.persona = p
	return nil
}
