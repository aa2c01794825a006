package provider

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/yblis/nova/internal/infra/llm"
	"github.com/yblis/nova/pkg/secrets"
)

func newTestRegistry(t *testing.T) *Registry {
	t.Helper()
	sealer, err := secrets.NewSealer([]byte("0123456789abcdef0123456789abcdef"))
	if err != nil {
		t.Fatalf("NewSealer: %v", err)
	}
	r, err := NewRegistry(filepath.Join(t.TempDir(), "providers.json"), sealer)
	if err != nil {
		t.Fatalf("NewRegistry: %v", err)
	}
	return r
}

func TestNewRegistry_SeedsDefaultOllama(t *testing.T) {
	t.Parallel()

	r := newTestRegistry(t)
	list := r.List()
	if len(list) != 1 {
		t.Fatalf("expected seeded registry with 1 provider, got %d", len(list))
	}
	p := list[0]
	if p.Type != llm.TypeOllama || p.URL != "http://localhost:11434" {
		t.Errorf("unexpected seed provider: %+v", p)
	}
	if !p.Active {
		t.Error("seed provider should be active")
	}
}

func TestRegistry_AddSealsCredential(t *testing.T) {
	t.Parallel()

	r := newTestRegistry(t)
	sum, err := r.Add(AddInput{Name: "OpenAI", Type: llm.TypeOpenAI, APIKey: "sk-proj-secret123"})
	if err != nil {
		t.Fatalf("Add: %v", err)
	}
	if !sum.HasAPIKey {
		t.Error("HasAPIKey should be true")
	}
	if strings.Contains(sum.APIKeyMasked, "secret") {
		t.Errorf("masked key leaks secret: %q", sum.APIKeyMasked)
	}
	if sum.URL != "https://api.openai.com/v1" {
		t.Errorf("empty URL should fall back to type default, got %q", sum.URL)
	}

	// Raw file must not contain the clear credential.
	raw, _ := os.ReadFile(r.path)
	if strings.Contains(string(raw), "sk-proj-secret123") {
		t.Error("clear credential persisted to disk")
	}

	// The descriptor opens it back.
	d, err := r.Descriptor(sum.ID)
	if err != nil {
		t.Fatalf("Descriptor: %v", err)
	}
	if d.Credential != "sk-proj-secret123" {
		t.Errorf("credential round trip = %q", d.Credential)
	}
}

func TestRegistry_AddRejectsUnknownType(t *testing.T) {
	t.Parallel()

	r := newTestRegistry(t)
	if _, err := r.Add(AddInput{Name: "x", Type: "carrier-pigeon"}); !errors.Is(err, ErrUnknownType) {
		t.Errorf("expected ErrUnknownType, got %v", err)
	}
}

func TestRegistry_UpdatePartial(t *testing.T) {
	t.Parallel()

	r := newTestRegistry(t)
	sum, _ := r.Add(AddInput{Name: "OpenAI", Type: llm.TypeOpenAI, APIKey: "sk-old"})

	name := "OpenAI prod"
	updated, err := r.Update(sum.ID, UpdateInput{Name: &name})
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if updated.Name != "OpenAI prod" {
		t.Errorf("name = %q", updated.Name)
	}
	// Credential untouched by a name-only update.
	d, _ := r.Descriptor(sum.ID)
	if d.Credential != "sk-old" {
		t.Errorf("credential changed on unrelated update: %q", d.Credential)
	}

	// Empty api_key in the update keeps the existing one.
	empty := ""
	r.Update(sum.ID, UpdateInput{APIKey: &empty}) //nolint:errcheck
	d, _ = r.Descriptor(sum.ID)
	if d.Credential != "sk-old" {
		t.Errorf("empty api_key should keep existing credential, got %q", d.Credential)
	}

	key := "sk-new"
	r.Update(sum.ID, UpdateInput{APIKey: &key}) //nolint:errcheck
	d, _ = r.Descriptor(sum.ID)
	if d.Credential != "sk-new" {
		t.Errorf("credential = %q, want sk-new", d.Credential)
	}
}

func TestRegistry_DeleteReassignsActive(t *testing.T) {
	t.Parallel()

	r := newTestRegistry(t)
	seed := r.List()[0]
	second, _ := r.Add(AddInput{Name: "Groq", Type: llm.TypeGroq, APIKey: "gsk-x"})

	if err := r.Delete(seed.ID); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if got := r.ActiveID(); got != second.ID {
		t.Errorf("active should move to remaining provider, got %q", got)
	}
	if err := r.Delete("missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestRegistry_SetActiveAndFallback(t *testing.T) {
	t.Parallel()

	r := newTestRegistry(t)
	second, _ := r.Add(AddInput{Name: "Groq", Type: llm.TypeGroq, APIKey: "gsk-x"})

	if err := r.SetActive(second.ID); err != nil {
		t.Fatalf("SetActive: %v", err)
	}
	d, err := r.Active()
	if err != nil {
		t.Fatalf("Active: %v", err)
	}
	if d.ID != second.ID {
		t.Errorf("active descriptor = %q, want %q", d.ID, second.ID)
	}
	if err := r.SetActive("missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestRegistry_SetDefaultModel(t *testing.T) {
	t.Parallel()

	r := newTestRegistry(t)
	p := r.List()[0]
	if err := r.SetDefaultModel(p.ID, "llama3:8b"); err != nil {
		t.Fatalf("SetDefaultModel: %v", err)
	}
	d, _ := r.Descriptor(p.ID)
	if d.DefaultModel != "llama3:8b" {
		t.Errorf("default model = %q", d.DefaultModel)
	}
}

func TestRegistry_ByType(t *testing.T) {
	t.Parallel()

	r := newTestRegistry(t)
	if _, err := r.ByType(llm.TypeCohere); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
	r.Add(AddInput{Name: "Cohere", Type: llm.TypeCohere, APIKey: "co-x"}) //nolint:errcheck
	d, err := r.ByType(llm.TypeCohere)
	if err != nil {
		t.Fatalf("ByType: %v", err)
	}
	if d.Type != llm.TypeCohere {
		t.Errorf("descriptor type = %q", d.Type)
	}
}
