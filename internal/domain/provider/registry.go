// Package provider manages the configured LLM providers: a JSON-file-backed
// registry of descriptors with sealed API keys and a single active selection.
// The registry is the only writer of providers.json; credentials go through
// pkg/secrets and never leave the package in clear text except inside an
// llm.Descriptor built for an adapter.
package provider

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/yblis/nova/internal/infra/llm"
	"github.com/yblis/nova/pkg/secrets"
)

var (
	// ErrNotFound is returned when no provider has the requested id.
	ErrNotFound = errors.New("provider: not found")
	// ErrUnknownType is returned for a type the adapter factory cannot build.
	ErrUnknownType = errors.New("provider: unknown type")
	// ErrNoneConfigured is returned when the registry is empty.
	ErrNoneConfigured = errors.New("provider: none configured")
)

// record is the persisted shape of one provider entry.
type record struct {
	ID           string            `json:"id"`
	Name         string            `json:"name"`
	Type         string            `json:"type"`
	URL          string            `json:"url"`
	APIKeySealed string            `json:"api_key_encrypted"`
	ExtraHeaders map[string]string `json:"extra_headers"`
	DefaultModel string            `json:"default_model"`
	CreatedAt    int64             `json:"created_at"`
	UpdatedAt    int64             `json:"updated_at"`
}

type store struct {
	ActiveProviderID string   `json:"active_provider_id"`
	Providers        []record `json:"providers"`
}

// Summary is the outward-facing view of a provider: the credential is reduced
// to a presence flag and a masked rendering.
type Summary struct {
	ID           string            `json:"id"`
	Name         string            `json:"name"`
	Type         string            `json:"type"`
	URL          string            `json:"url"`
	HasAPIKey    bool              `json:"has_api_key"`
	APIKeyMasked string            `json:"api_key_masked,omitempty"`
	ExtraHeaders map[string]string `json:"extra_headers,omitempty"`
	DefaultModel string            `json:"default_model,omitempty"`
	Active       bool              `json:"active"`
}

// AddInput carries the fields for a new provider. APIKey arrives in clear
// text and is sealed before persisting.
type AddInput struct {
	Name         string            `json:"name"`
	Type         string            `json:"type"`
	URL          string            `json:"url"`
	APIKey       string            `json:"api_key"`
	ExtraHeaders map[string]string `json:"extra_headers"`
	DefaultModel string            `json:"default_model"`
}

// UpdateInput carries a partial update. Nil pointers leave the field as is;
// an empty APIKey keeps the existing sealed credential.
type UpdateInput struct {
	Name         *string            `json:"name"`
	URL          *string            `json:"url"`
	APIKey       *string            `json:"api_key"`
	ExtraHeaders *map[string]string `json:"extra_headers"`
	DefaultModel *string            `json:"default_model"`
}

// Registry is the providers.json-backed store. All operations read the file
// fresh and write it back whole under a mutex; the file is small and this
// keeps external edits visible.
type Registry struct {
	mu     sync.Mutex
	path   string
	sealer *secrets.Sealer
}

// NewRegistry opens (or creates) the registry at path. A fresh file is seeded
// with a local Ollama provider so the app is usable before any configuration.
func NewRegistry(path string, sealer *secrets.Sealer) (*Registry, error) {
	r := &Registry{path: path, sealer: sealer}
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		id := uuid.NewString()
		now := time.Now().Unix()
		seed := store{
			ActiveProviderID: id,
			Providers: []record{{
				ID: id, Name: "Ollama (localhost)", Type: llm.TypeOllama,
				URL: "http://localhost:11434", ExtraHeaders: map[string]string{},
				CreatedAt: now, UpdatedAt: now,
			}},
		}
		if err := r.save(seed); err != nil {
			return nil, err
		}
		slog.Info("seeded provider registry with default Ollama provider", "path", path)
	}
	return r, nil
}

func (r *Registry) load() store {
	raw, err := os.ReadFile(r.path)
	if err != nil {
		return store{}
	}
	var s store
	if err := json.Unmarshal(raw, &s); err != nil {
		slog.Error("provider registry unreadable, treating as empty", "path", r.path, "err", err)
		return store{}
	}
	return s
}

func (r *Registry) save(s store) error {
	if err := os.MkdirAll(filepath.Dir(r.path), 0o755); err != nil {
		return fmt.Errorf("provider: create data dir: %w", err)
	}
	raw, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return fmt.Errorf("provider: encode registry: %w", err)
	}
	tmp := r.path + ".tmp"
	if err := os.WriteFile(tmp, raw, 0o600); err != nil {
		return fmt.Errorf("provider: write registry: %w", err)
	}
	if err := os.Rename(tmp, r.path); err != nil {
		return fmt.Errorf("provider: replace registry: %w", err)
	}
	return nil
}

func (r *Registry) summarize(rec record, activeID string) Summary {
	s := Summary{
		ID: rec.ID, Name: rec.Name, Type: rec.Type, URL: rec.URL,
		HasAPIKey:    rec.APIKeySealed != "",
		ExtraHeaders: rec.ExtraHeaders,
		DefaultModel: rec.DefaultModel,
		Active:       rec.ID == activeID,
	}
	if rec.APIKeySealed != "" {
		if plain, err := r.sealer.Open(rec.APIKeySealed); err == nil {
			s.APIKeyMasked = secrets.Mask(plain)
		}
	}
	return s
}

// List returns all providers in stored order, credentials masked.
func (r *Registry) List() []Summary {
	r.mu.Lock()
	defer r.mu.Unlock()
	s := r.load()
	out := make([]Summary, 0, len(s.Providers))
	for _, rec := range s.Providers {
		out = append(out, r.summarize(rec, s.ActiveProviderID))
	}
	return out
}

// Get returns one provider by id, credential masked.
func (r *Registry) Get(id string) (Summary, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s := r.load()
	for _, rec := range s.Providers {
		if rec.ID == id {
			return r.summarize(rec, s.ActiveProviderID), nil
		}
	}
	return Summary{}, ErrNotFound
}

// Descriptor builds the adapter-facing descriptor for a provider, opening the
// sealed credential. An unopenable credential is an error, not a silent
// empty key: the caller would otherwise see a misleading auth failure.
func (r *Registry) Descriptor(id string) (llm.Descriptor, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s := r.load()
	for _, rec := range s.Providers {
		if rec.ID == id {
			return r.descriptor(rec)
		}
	}
	return llm.Descriptor{}, ErrNotFound
}

func (r *Registry) descriptor(rec record) (llm.Descriptor, error) {
	cred := ""
	if rec.APIKeySealed != "" {
		plain, err := r.sealer.Open(rec.APIKeySealed)
		if err != nil {
			return llm.Descriptor{}, fmt.Errorf("provider %s: unseal credential: %w", rec.ID, err)
		}
		cred = plain
	}
	return llm.Descriptor{
		ID: rec.ID, Name: rec.Name, Type: rec.Type, URL: rec.URL,
		Credential: cred, ExtraHeaders: rec.ExtraHeaders, DefaultModel: rec.DefaultModel,
	}, nil
}

// Active returns the descriptor of the active provider, falling back to the
// first configured one when the stored active id is stale.
func (r *Registry) Active() (llm.Descriptor, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s := r.load()
	if len(s.Providers) == 0 {
		return llm.Descriptor{}, ErrNoneConfigured
	}
	for _, rec := range s.Providers {
		if rec.ID == s.ActiveProviderID {
			return r.descriptor(rec)
		}
	}
	return r.descriptor(s.Providers[0])
}

// ActiveID returns the stored active provider id, which may be empty.
func (r *Registry) ActiveID() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.load().ActiveProviderID
}

// Add validates, seals the credential and persists a new provider. The first
// provider added to an empty registry becomes active. An empty URL falls back
// to the type's default.
func (r *Registry) Add(in AddInput) (Summary, error) {
	meta, ok := llm.MetaFor(in.Type)
	if !ok {
		return Summary{}, fmt.Errorf("%w: %q", ErrUnknownType, in.Type)
	}
	url := in.URL
	if url == "" {
		url = meta.DefaultURL
	}
	sealed, err := r.sealer.Seal(in.APIKey)
	if err != nil {
		return Summary{}, fmt.Errorf("provider: seal credential: %w", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	s := r.load()
	now := time.Now().Unix()
	rec := record{
		ID: uuid.NewString(), Name: in.Name, Type: in.Type, URL: url,
		APIKeySealed: sealed, ExtraHeaders: in.ExtraHeaders,
		DefaultModel: in.DefaultModel, CreatedAt: now, UpdatedAt: now,
	}
	if rec.ExtraHeaders == nil {
		rec.ExtraHeaders = map[string]string{}
	}
	s.Providers = append(s.Providers, rec)
	if s.ActiveProviderID == "" {
		s.ActiveProviderID = rec.ID
	}
	if err := r.save(s); err != nil {
		return Summary{}, err
	}
	return r.summarize(rec, s.ActiveProviderID), nil
}

// Update applies a partial update to an existing provider.
func (r *Registry) Update(id string, in UpdateInput) (Summary, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s := r.load()
	for i := range s.Providers {
		rec := &s.Providers[i]
		if rec.ID != id {
			continue
		}
		if in.Name != nil {
			rec.Name = *in.Name
		}
		if in.URL != nil {
			rec.URL = *in.URL
		}
		if in.APIKey != nil && *in.APIKey != "" {
			sealed, err := r.sealer.Seal(*in.APIKey)
			if err != nil {
				return Summary{}, fmt.Errorf("provider: seal credential: %w", err)
			}
			rec.APIKeySealed = sealed
		}
		if in.ExtraHeaders != nil {
			rec.ExtraHeaders = *in.ExtraHeaders
		}
		if in.DefaultModel != nil {
			rec.DefaultModel = *in.DefaultModel
		}
		rec.UpdatedAt = time.Now().Unix()
		if err := r.save(s); err != nil {
			return Summary{}, err
		}
		return r.summarize(*rec, s.ActiveProviderID), nil
	}
	return Summary{}, ErrNotFound
}

// Delete removes a provider. When the active provider is deleted, the first
// remaining one becomes active.
func (r *Registry) Delete(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	s := r.load()
	kept := s.Providers[:0]
	found := false
	for _, rec := range s.Providers {
		if rec.ID == id {
			found = true
			continue
		}
		kept = append(kept, rec)
	}
	if !found {
		return ErrNotFound
	}
	s.Providers = kept
	if s.ActiveProviderID == id {
		s.ActiveProviderID = ""
		if len(s.Providers) > 0 {
			s.ActiveProviderID = s.Providers[0].ID
		}
	}
	return r.save(s)
}

// SetActive marks a provider as the active one.
func (r *Registry) SetActive(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	s := r.load()
	for _, rec := range s.Providers {
		if rec.ID == id {
			s.ActiveProviderID = id
			return r.save(s)
		}
	}
	return ErrNotFound
}

// SetDefaultModel records the preferred model for a provider.
func (r *Registry) SetDefaultModel(id, model string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	s := r.load()
	for i := range s.Providers {
		if s.Providers[i].ID == id {
			s.Providers[i].DefaultModel = model
			s.Providers[i].UpdatedAt = time.Now().Unix()
			return r.save(s)
		}
	}
	return ErrNotFound
}

// ByType returns the first provider of a given type, if any.
func (r *Registry) ByType(providerType string) (llm.Descriptor, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s := r.load()
	for _, rec := range s.Providers {
		if rec.Type == providerType {
			return r.descriptor(rec)
		}
	}
	return llm.Descriptor{}, ErrNotFound
}
