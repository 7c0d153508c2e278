package provider

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingProvider struct {
	calls int
}

func (p *countingProvider) Name() string { return "counting" }

func (p *countingProvider) FetchSummary(_ context.Context, _ string) (*Summary, error) {
	p.calls++
	return &Summary{TotalBacklinks: 7}, nil
}

func (p *countingProvider) FetchBacklinks(_ context.Context, _ string, limit, offset int) (*Page[BacklinkItem], error) {
	p.calls++
	return &Page[BacklinkItem]{Items: []BacklinkItem{{SourceURL: "https://a.example/", Rel: "follow"}}, Total: 1}, nil
}

func (p *countingProvider) FetchRefDomains(_ context.Context, _ string, _, _ int) (*Page[RefDomainItem], error) {
	p.calls++
	return &Page[RefDomainItem]{}, nil
}

func (p *countingProvider) FetchAnchors(_ context.Context, _ string, _, _ int) (*Page[AnchorItem], error) {
	p.calls++
	return nil, errors.New("anchors unavailable")
}

type mapStorage struct {
	mu   sync.Mutex
	data map[string][]byte
}

func (m *mapStorage) Get(key string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.data[key], nil
}

func (m *mapStorage) Set(key string, val []byte, _ time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = val
	return nil
}

func TestRegistry_DefaultHasDataForSEO(t *testing.T) {
	r := DefaultRegistry()
	assert.Equal(t, []string{NameDataForSEO}, r.Names())

	p, err := r.New(NameDataForSEO, Config{Login: "l", Password: "p"})
	require.NoError(t, err)
	assert.Equal(t, NameDataForSEO, p.Name())

	_, err = r.New(NameDataForSEO, Config{})
	assert.ErrorIs(t, err, ErrMissingCredentials)
}

func TestRegistry_Unknown(t *testing.T) {
	_, err := DefaultRegistry().New("ahrefs", Config{})
	assert.ErrorIs(t, err, ErrUnknownProvider)
	assert.Contains(t, err.Error(), `"ahrefs" (registered: `+NameDataForSEO+`)`)
}

func TestRegistry_Register(t *testing.T) {
	r := NewRegistry()
	r.Register("counting", func(Config) (Provider, error) { return &countingProvider{}, nil })

	p, err := r.New("counting", Config{})
	require.NoError(t, err)
	assert.Equal(t, "counting", p.Name())
}

func TestCached_ServesRepeatCallsFromStorage(t *testing.T) {
	inner := &countingProvider{}
	store := &mapStorage{data: map[string][]byte{}}
	p := NewCached(inner, store, time.Minute, nil)

	for i := 0; i < 3; i++ {
		summary, err := p.FetchSummary(context.Background(), "example.com")
		require.NoError(t, err)
		assert.Equal(t, 7, summary.TotalBacklinks)

		page, err := p.FetchBacklinks(context.Background(), "example.com", 100, 0)
		require.NoError(t, err)
		require.Len(t, page.Items, 1)
	}
	assert.Equal(t, 2, inner.calls)

	_, err := p.FetchBacklinks(context.Background(), "example.com", 100, 100)
	require.NoError(t, err)
	assert.Equal(t, 3, inner.calls)
}

func TestCached_ErrorsAreNotCached(t *testing.T) {
	inner := &countingProvider{}
	store := &mapStorage{data: map[string][]byte{}}
	p := NewCached(inner, store, time.Minute, nil)

	_, err := p.FetchAnchors(context.Background(), "example.com", 100, 0)
	require.Error(t, err)
	_, err = p.FetchAnchors(context.Background(), "example.com", 100, 0)
	require.Error(t, err)
	assert.Equal(t, 2, inner.calls)
	assert.Empty(t, store.data)
}

func TestNewCached_DisabledReturnsInner(t *testing.T) {
	inner := &countingProvider{}
	assert.Same(t, Provider(inner), NewCached(inner, nil, time.Minute, nil))
	assert.Same(t, Provider(inner), NewCached(inner, &mapStorage{}, 0, nil))
}

func TestRegistry_WithCache(t *testing.T) {
	inner := &countingProvider{}
	r := NewRegistry()
	r.Register("counting", func(Config) (Provider, error) { return inner, nil })
	r.Register("broken", func(Config) (Provider, error) { return nil, ErrMissingCredentials })

	cached := r.WithCache(&mapStorage{data: map[string][]byte{}}, time.Minute, nil)
	assert.Equal(t, r.Names(), cached.Names())

	p, err := cached.New("counting", Config{})
	require.NoError(t, err)
	for i := 0; i < 2; i++ {
		_, err := p.FetchSummary(context.Background(), "example.com")
		require.NoError(t, err)
	}
	assert.Equal(t, 1, inner.calls)

	_, err = cached.New("broken", Config{})
	assert.ErrorIs(t, err, ErrMissingCredentials)
}
