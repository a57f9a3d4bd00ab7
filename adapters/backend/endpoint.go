package backend

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"

	"github.com/layer-3/chomp-auth/core"
	"github.com/layer-3/chomp-auth/ports"
)

// SelectionKey is the store key holding the last selected backend
const SelectionKey = "backend"

// Backend is a directory entry: a base URL plus display metadata
type Backend struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	URL         string `json:"url"`
	Logo        string `json:"logo,omitempty"`
	Contributor string `json:"contributor,omitempty"`
}

// Validate checks that the backend has an absolute http(s) URL
func (b Backend) Validate() error {
	u, err := url.Parse(b.URL)
	if err != nil {
		return fmt.Errorf("invalid backend url %q: %w", b.URL, err)
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("invalid backend url %q: must be an absolute http(s) url", b.URL)
	}
	return nil
}

// Endpoint holds the currently selected backend. It can be switched at any
// time independently of a running flow; each request reads it once.
type Endpoint struct {
	mu      sync.RWMutex
	current Backend
	store   ports.Store
}

// NewEndpoint creates an endpoint pointing at the given backend
func NewEndpoint(initial Backend) (*Endpoint, error) {
	if err := initial.Validate(); err != nil {
		return nil, err
	}
	return &Endpoint{current: initial}, nil
}

// WithStore makes selections durable. Call Restore to load a previous selection.
func (e *Endpoint) WithStore(store ports.Store) *Endpoint {
	e.mu.Lock()
	e.store = store
	e.mu.Unlock()
	return e
}

// Current returns the selected backend
func (e *Endpoint) Current() Backend {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.current
}

// BaseURL returns the selected backend's URL without a trailing slash
func (e *Endpoint) BaseURL() string {
	return strings.TrimRight(e.Current().URL, "/")
}

// Select switches to another backend and persists the choice if a store is set
func (e *Endpoint) Select(ctx context.Context, b Backend) error {
	if err := b.Validate(); err != nil {
		return err
	}

	e.mu.Lock()
	e.current = b
	store := e.store
	e.mu.Unlock()

	if store == nil {
		return nil
	}
	payload, err := json.Marshal(b)
	if err != nil {
		return fmt.Errorf("failed to encode backend: %w", err)
	}
	return store.Set(ctx, SelectionKey, string(payload), 0)
}

// Restore loads a persisted selection; it keeps the current backend when none exists
func (e *Endpoint) Restore(ctx context.Context) error {
	e.mu.RLock()
	store := e.store
	e.mu.RUnlock()
	if store == nil {
		return nil
	}

	raw, err := store.Get(ctx, SelectionKey)
	if errors.Is(err, core.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}

	var b Backend
	if err := json.Unmarshal([]byte(raw), &b); err != nil {
		return fmt.Errorf("failed to decode stored backend: %w", err)
	}
	if err := b.Validate(); err != nil {
		return err
	}

	e.mu.Lock()
	e.current = b
	e.mu.Unlock()
	return nil
}
