package store

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/replydesk/replydesk/internal/models"
)

func newTestJSONStore(t *testing.T) (*JSONStore, string) {
	t.Helper()
	dir := t.TempDir()
	s, err := NewJSONStore(
		WithTemplatesPath(filepath.Join(dir, "templates.json")),
		WithPersonaPath(filepath.Join(dir, "persona.json")),
	)
	if err != nil {
		t.Fatalf("failed to create JSON store: %v", err)
	}
	return s, dir
}

func TestJSONStoreDefaults(t *testing.T) {
	s, _ := newTestJSONStore(t)
	if got := s.Templates(); len(got) != 0 {
		t.Errorf("expected no templates initially, got %d", len(got))
	}
	if got := s.Persona(); got != models.DefaultPersona() {
		t.Errorf("expected default persona, got %+v", got)
	}
}

func TestJSONStoreTemplateCRUD(t *testing.T) {
	s, _ := newTestJSONStore(t)

	if err := s.AddTemplate(models.Template{Trigger: "merhaba", Reply: "Hoş geldiniz"}); err != nil {
		t.Fatalf("add failed: %v", err)
	}
	if err := s.AddTemplate(models.Template{Trigger: "fiyat", Reply: "Listemiz sitede"}); err != nil {
		t.Fatalf("add failed: %v", err)
	}

	got := s.Templates()
	if len(got) != 2 || got[0].Trigger != "merhaba" || got[1].Trigger != "fiyat" {
		t.Fatalf("expected insertion order preserved, got %+v", got)
	}

	// Repeated reads without mutation are identical.
	again := s.Templates()
	for i := range got {
		if got[i] != again[i] {
			t.Errorf("expected idempotent listing, got %+v vs %+v", got, again)
		}
	}

	if err := s.RemoveTemplate(0); err != nil {
		t.Fatalf("remove failed: %v", err)
	}
	got = s.Templates()
	if len(got) != 1 || got[0].Trigger != "fiyat" {
		t.Errorf("expected indices shifted down after delete, got %+v", got)
	}
}

func TestJSONStoreRemoveOutOfRange(t *testing.T) {
	s, _ := newTestJSONStore(t)
	if err := s.AddTemplate(models.Template{Trigger: "a", Reply: "b"}); err != nil {
		t.Fatalf("add failed: %v", err)
	}
	// Out-of-range deletes are silent no-ops.
	if err := s.RemoveTemplate(5); err != nil {
		t.Errorf("expected no error for out-of-range index, got %v", err)
	}
	if err := s.RemoveTemplate(-1); err != nil {
		t.Errorf("expected no error for negative index, got %v", err)
	}
	if got := s.Templates(); len(got) != 1 {
		t.Errorf("expected template untouched, got %+v", got)
	}
}

func TestJSONStorePersistsAcrossReopen(t *testing.T) {
	s, dir := newTestJSONStore(t)

	if err := s.AddTemplate(models.Template{Trigger: "merhaba", Reply: "Hoş geldiniz"}); err != nil {
		t.Fatalf("add failed: %v", err)
	}
	want := models.Persona{Brand: "Acme", Address: "Main St", Tone: "short", ExtraInstructions: "help"}
	if err := s.SetPersona(want); err != nil {
		t.Fatalf("set persona failed: %v", err)
	}

	reopened, err := NewJSONStore(
		WithTemplatesPath(filepath.Join(dir, "templates.json")),
		WithPersonaPath(filepath.Join(dir, "persona.json")),
	)
	if err != nil {
		t.Fatalf("reopen failed: %v", err)
	}
	if got := reopened.Templates(); len(got) != 1 || got[0].Reply != "Hoş geldiniz" {
		t.Errorf("expected persisted templates after reopen, got %+v", got)
	}
	if got := reopened.Persona(); got != want {
		t.Errorf("expected persisted persona after reopen, got %+v", got)
	}
}

func TestJSONStoreMalformedFileFailsFast(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "templates.json")
	if err := os.WriteFile(path, []byte("{not json"), 0644); err != nil {
		t.Fatalf("failed to write malformed file: %v", err)
	}
	_, err := NewJSONStore(
		WithTemplatesPath(path),
		WithPersonaPath(filepath.Join(dir, "persona.json")),
	)
	if err == nil {
		t.Fatal("expected error for malformed templates file, got nil")
	}
	if !errors.Is(err, models.ErrMalformedStore) {
		t.Errorf("expected ErrMalformedStore, got %v", err)
	}
}

func TestInMemoryStore(t *testing.T) {
	s := NewInMemoryStore()
	if err := s.AddTemplate(models.Template{Trigger: "hi", Reply: "hello"}); err != nil {
		t.Fatalf("add failed: %v", err)
	}
	if got := s.Templates(); len(got) != 1 {
		t.Fatalf("expected one template, got %+v", got)
	}
	if err := s.RemoveTemplate(3); err != nil {
		t.Errorf("expected out-of-range remove to be a no-op, got %v", err)
	}
	if err := s.RemoveTemplate(0); err != nil {
		t.Fatalf("remove failed: %v", err)
	}
	if got := s.Templates(); len(got) != 0 {
		t.Errorf("expected empty templates, got %+v", got)
	}
	p := models.Persona{Brand: "B", Address: "A", Tone: "T", ExtraInstructions: "E"}
	if err := s.SetPersona(p); err != nil {
		t.Fatalf("set persona failed: %v", err)
	}
	if got := s.Persona(); got != p {
		t.Errorf("expected persona replaced, got %+v", got)
	}
}
