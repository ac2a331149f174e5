// Package store provides storage backends for reply templates and the
// assistant persona.
//
// Two implementations exist: a flat-file JSON store that rewrites its backing
// files on every mutation, and an in-memory store for tests and ephemeral
// deployments. A missing backing file means "use defaults"; a present but
// malformed file is a startup error the operator must fix.
package store

import (
	"github.com/replydesk/replydesk/internal/models"
)

// Store is the persistence abstraction for templates and persona.
// Mutations persist synchronously before returning.
type Store interface {
	// Templates returns the current templates in insertion order.
	Templates() []models.Template

	// AddTemplate appends a template and persists.
	AddTemplate(t models.Template) error

	// RemoveTemplate deletes the template at the given position and persists.
	// An out-of-range index is a silent no-op.
	RemoveTemplate(index int) error

	// Persona returns the current persona record.
	Persona() models.Persona

	// SetPersona replaces the persona wholesale and persists.
	SetPersona(p models.Persona) error
}

// Opts holds configuration options for store backends.
type Opts struct {
	TemplatesPath string // path to the templates JSON file
	PersonaPath   string // path to the persona JSON file
}

// Option defines a configuration option for store backends.
type Option func(*Opts)

// WithTemplatesPath sets the templates JSON file path.
func WithTemplatesPath(path string) Option {
	return func(o *Opts) {
		o.TemplatesPath = path
	}
}

// WithPersonaPath sets the persona JSON file path.
func WithPersonaPath(path string) Option {
	return func(o *Opts) {
		o.PersonaPath = path
	}
}
