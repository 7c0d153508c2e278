package testutil

import (
	"context"
	"fmt"
	"sync"

	"backlinks/internal/provider"
)

// StubProvider serves canned data with limit/offset paging and records every
// call it receives.
type StubProvider struct {
	mu sync.Mutex

	Summary    provider.Summary
	Backlinks  []provider.BacklinkItem
	RefDomains []provider.RefDomainItem
	Anchors    []provider.AnchorItem

	calls map[string][]int
	fail  map[string]error
}

// NewStubProvider returns an empty stub.
func NewStubProvider() *StubProvider {
	return &StubProvider{calls: make(map[string][]int), fail: make(map[string]error)}
}

// FailOn makes every later call to op ("summary", "backlinks", "ref_domains",
// "anchors") return err. A nil err clears it.
func (s *StubProvider) FailOn(op string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err == nil {
		delete(s.fail, op)
		return
	}
	s.fail[op] = err
}

// Offsets returns the offsets requested for op, in call order.
func (s *StubProvider) Offsets(op string) []int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]int(nil), s.calls[op]...)
}

// Factory returns a provider.Factory that always yields s.
func (s *StubProvider) Factory() provider.Factory {
	return func(provider.Config) (provider.Provider, error) { return s, nil }
}

func (s *StubProvider) Name() string { return "stub" }

func (s *StubProvider) enter(op string, offset int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls[op] = append(s.calls[op], offset)
	if err := s.fail[op]; err != nil {
		return fmt.Errorf("stub %s: %w", op, err)
	}
	return nil
}

func (s *StubProvider) FetchSummary(ctx context.Context, host string) (*provider.Summary, error) {
	if err := s.enter("summary", 0); err != nil {
		return nil, err
	}
	sum := s.Summary
	return &sum, ctx.Err()
}

func (s *StubProvider) FetchBacklinks(ctx context.Context, host string, limit, offset int) (*provider.Page[provider.BacklinkItem], error) {
	if err := s.enter("backlinks", offset); err != nil {
		return nil, err
	}
	return page(s.Backlinks, limit, offset), ctx.Err()
}

func (s *StubProvider) FetchRefDomains(ctx context.Context, host string, limit, offset int) (*provider.Page[provider.RefDomainItem], error) {
	if err := s.enter("ref_domains", offset); err != nil {
		return nil, err
	}
	return page(s.RefDomains, limit, offset), ctx.Err()
}

func (s *StubProvider) FetchAnchors(ctx context.Context, host string, limit, offset int) (*provider.Page[provider.AnchorItem], error) {
	if err := s.enter("anchors", offset); err != nil {
		return nil, err
	}
	return page(s.Anchors, limit, offset), ctx.Err()
}

func page[T any](all []T, limit, offset int) *provider.Page[T] {
	start := min(offset, len(all))
	end := min(start+limit, len(all))
	return &provider.Page[T]{Items: append([]T(nil), all[start:end]...), Total: len(all)}
}
