package provider

import (
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"
)

// Config carries the credentials and transport policy for a provider.
// Credentials come from the environment or a secret store, never from run settings.
type Config struct {
	Login         string
	Password      string
	BaseURL       string
	Timeout       time.Duration
	MaxAttempts   int
	RetryDelay    time.Duration
	RatePerSecond float64
}

// Factory builds a provider from configuration. It must fail fast when
// required credentials are missing.
type Factory func(cfg Config) (Provider, error)

// Registry maps configuration keys to provider constructors.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]Factory
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{factories: make(map[string]Factory)}
}

// DefaultRegistry returns a registry with every built-in provider.
func DefaultRegistry() *Registry {
	r := NewRegistry()
	r.Register(NameDataForSEO, func(cfg Config) (Provider, error) {
		return NewDataForSEO(cfg)
	})
	return r
}

// Register adds or replaces the factory for name.
func (r *Registry) Register(name string, f Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[name] = f
}

// New constructs the provider registered under name.
func (r *Registry) New(name string, cfg Config) (Provider, error) {
	r.mu.RLock()
	f, ok := r.factories[name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %q (registered: %s)", ErrUnknownProvider, name, strings.Join(r.Names(), ", "))
	}
	return f(cfg)
}

// Names returns the registered provider names in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.factories))
	for name := range r.factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// WithCache returns a registry whose providers read through store, keeping
// successful responses for ttl. A nil store or non-positive ttl disables it.
func (r *Registry) WithCache(store Storage, ttl time.Duration, logger *slog.Logger) *Registry {
	out := NewRegistry()
	r.mu.RLock()
	defer r.mu.RUnlock()
	for name, f := range r.factories {
		out.factories[name] = func(cfg Config) (Provider, error) {
			p, err := f(cfg)
			if err != nil {
				return nil, err
			}
			return NewCached(p, store, ttl, logger), nil
		}
	}
	return out
}
