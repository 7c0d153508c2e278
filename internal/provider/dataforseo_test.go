package provider

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"backlinks/internal/models"
)

func noSleep(ctx context.Context, _ time.Duration) error { return ctx.Err() }

func newTestClient(t *testing.T, handler http.HandlerFunc) *DataForSEO {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	client, err := NewDataForSEO(Config{
		Login:       "user",
		Password:    "secret",
		BaseURL:     srv.URL,
		MaxAttempts: 3,
	}, WithSleep(noSleep))
	require.NoError(t, err)
	return client
}

func writeTask(w http.ResponseWriter, result any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"status_code": 20000,
		"tasks": []map[string]any{{
			"status_code":    20000,
			"status_message": "Ok.",
			"result":         []any{result},
		}},
	})
}

func TestNewDataForSEO_MissingCredentials(t *testing.T) {
	tests := []struct {
		name string
		cfg  Config
	}{
		{"no login", Config{Password: "x"}},
		{"no password", Config{Login: "x"}},
		{"blank", Config{Login: " ", Password: " "}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewDataForSEO(tt.cfg)
			assert.ErrorIs(t, err, ErrMissingCredentials)
		})
	}
}

func TestDataForSEO_FetchSummary(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		user, pass, ok := r.BasicAuth()
		assert.True(t, ok)
		assert.Equal(t, "user", user)
		assert.Equal(t, "secret", pass)
		assert.Equal(t, "/v3/backlinks/summary/live", r.URL.Path)

		var body []dfsRequest
		data, _ := io.ReadAll(r.Body)
		assert.NoError(t, json.Unmarshal(data, &body))
		if assert.Len(t, body, 1) {
			assert.Equal(t, "example.com", body[0].Target)
		}

		writeTask(w, map[string]any{
			"backlinks":                  150,
			"referring_domains":          40,
			"referring_domains_nofollow": 10,
		})
	})

	summary, err := client.FetchSummary(context.Background(), "example.com")
	require.NoError(t, err)
	assert.Equal(t, &Summary{TotalBacklinks: 150, RefDomains: 40, Follow: 30, Nofollow: 10}, summary)
}

func TestDataForSEO_FetchBacklinks_Normalizes(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		var body []dfsRequest
		data, _ := io.ReadAll(r.Body)
		assert.NoError(t, json.Unmarshal(data, &body))
		if assert.Len(t, body, 1) {
			assert.Equal(t, 100, body[0].Limit)
			assert.Equal(t, 200, body[0].Offset)
		}

		writeTask(w, map[string]any{
			"total_count": 2,
			"items": []map[string]any{
				{
					"url_from":            "https://www.Blog.example.org/post",
					"domain_from":         "www.Blog.example.org",
					"url_to":              "https://example.com/",
					"anchor":              "  seo tools ",
					"dofollow":            true,
					"attributes":          []string{"ugc", "sponsored"},
					"first_seen":          "2024-01-02 03:04:05 +00:00",
					"last_seen":           "2024-02-02 03:04:05 +00:00",
					"domain_from_country": "de",
				},
				{
					"url_from": "https://spam.xyz/page",
					"url_to":   "https://example.com/a",
					"anchor":   "",
					"dofollow": true,
				},
			},
		})
	})

	page, err := client.FetchBacklinks(context.Background(), "example.com", 100, 200)
	require.NoError(t, err)
	require.Len(t, page.Items, 2)
	assert.Equal(t, 2, page.Total)

	first := page.Items[0]
	assert.Equal(t, "blog.example.org", first.SourceDomain)
	assert.Equal(t, "seo tools", first.Anchor)
	assert.Equal(t, models.RelSponsored, first.Rel)
	assert.Equal(t, "DE", first.Country)
	assert.Equal(t, "org", first.TLD)
	require.NotNil(t, first.FirstSeen)
	assert.Equal(t, 2024, first.FirstSeen.Year())

	second := page.Items[1]
	assert.Equal(t, "spam.xyz", second.SourceDomain)
	assert.Equal(t, "xyz", second.TLD)
	assert.Equal(t, models.RelFollow, second.Rel)
}

func TestDataForSEO_FetchAnchors_ClassifiesType(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		writeTask(w, map[string]any{
			"total_count": 3,
			"items": []map[string]any{
				{"anchor": "click here", "backlinks": 4},
				{"anchor": "https://example.com", "backlinks": 2},
				{"anchor": "SEO", "backlinks": 9},
			},
		})
	})

	page, err := client.FetchAnchors(context.Background(), "example.com", 100, 0)
	require.NoError(t, err)
	require.Len(t, page.Items, 3)
	assert.Equal(t, models.AnchorGeneric, page.Items[0].Type)
	assert.Equal(t, models.AnchorURL, page.Items[1].Type)
	assert.Equal(t, models.AnchorExact, page.Items[2].Type)
	assert.Equal(t, 9, page.Items[2].Count)
}

func TestDataForSEO_RetriesRateLimit(t *testing.T) {
	var calls atomic.Int32
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		writeTask(w, map[string]any{"total_count": 0, "items": []any{}})
	})

	page, err := client.FetchRefDomains(context.Background(), "example.com", 100, 0)
	require.NoError(t, err)
	assert.Empty(t, page.Items)
	assert.Equal(t, int32(3), calls.Load())
}

func TestDataForSEO_RateLimitExhausted(t *testing.T) {
	var calls atomic.Int32
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusTooManyRequests)
	})

	_, err := client.FetchBacklinks(context.Background(), "example.com", 100, 0)
	require.Error(t, err)

	var fetchErr *FetchError
	require.True(t, errors.As(err, &fetchErr))
	assert.Equal(t, http.StatusTooManyRequests, fetchErr.StatusCode)
	assert.Equal(t, 3, fetchErr.Attempts)
	assert.ErrorIs(t, err, ErrRateLimited)
	assert.Equal(t, int32(3), calls.Load())
}

func TestDataForSEO_ServerErrorNotRetried(t *testing.T) {
	var calls atomic.Int32
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, "boom", http.StatusInternalServerError)
	})

	_, err := client.FetchSummary(context.Background(), "example.com")

	var fetchErr *FetchError
	require.True(t, errors.As(err, &fetchErr))
	assert.Equal(t, http.StatusInternalServerError, fetchErr.StatusCode)
	assert.Contains(t, fetchErr.Error(), "boom")
	assert.Equal(t, int32(1), calls.Load())
}

func TestDataForSEO_TaskError(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"status_code": 20000,
			"tasks": []map[string]any{{
				"status_code":    40501,
				"status_message": "Invalid Field: 'target'.",
			}},
		})
	})

	_, err := client.FetchSummary(context.Background(), "")

	var fetchErr *FetchError
	require.True(t, errors.As(err, &fetchErr))
	assert.Contains(t, fetchErr.Message, "40501")
}

func TestDataForSEO_ContextCancelledDuringRetry(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	t.Cleanup(srv.Close)

	ctx, cancel := context.WithCancel(context.Background())
	client, err := NewDataForSEO(Config{Login: "u", Password: "p", BaseURL: srv.URL, MaxAttempts: 5},
		WithSleep(func(ctx context.Context, _ time.Duration) error {
			cancel()
			return ctx.Err()
		}))
	require.NoError(t, err)

	_, err = client.FetchSummary(ctx, "example.com")
	assert.ErrorIs(t, err, context.Canceled)
}
