package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"backlinks/internal/fingerprint"
	"backlinks/internal/metrics"
)

// NameDataForSEO is the registry key of the DataForSEO provider.
const NameDataForSEO = "dataforseo"

const (
	defaultDataForSEOURL = "https://api.dataforseo.com"
	defaultTimeout       = 30 * time.Second
	defaultMaxAttempts   = 3
	defaultRetryDelay    = 2 * time.Second

	// taskOK is the DataForSEO task-level success code.
	taskOK = 20000
)

// DataForSEO fetches backlink data from the DataForSEO Backlinks API.
type DataForSEO struct {
	cfg     Config
	client  *http.Client
	limiter *rate.Limiter
	sleep   func(ctx context.Context, d time.Duration) error
}

// Option customizes a DataForSEO client.
type Option func(*DataForSEO)

// WithHTTPClient replaces the HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(d *DataForSEO) { d.client = c }
}

// WithSleep replaces the pause between retries.
func WithSleep(fn func(ctx context.Context, d time.Duration) error) Option {
	return func(d *DataForSEO) { d.sleep = fn }
}

// NewDataForSEO creates a client. Missing login or password is a
// configuration error reported before any network call.
func NewDataForSEO(cfg Config, opts ...Option) (*DataForSEO, error) {
	if strings.TrimSpace(cfg.Login) == "" || strings.TrimSpace(cfg.Password) == "" {
		return nil, fmt.Errorf("%s: %w", NameDataForSEO, ErrMissingCredentials)
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultDataForSEOURL
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = defaultMaxAttempts
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = defaultRetryDelay
	}

	limit := rate.Inf
	if cfg.RatePerSecond > 0 {
		limit = rate.Limit(cfg.RatePerSecond)
	}

	d := &DataForSEO{
		cfg:     cfg,
		client:  &http.Client{Timeout: cfg.Timeout},
		limiter: rate.NewLimiter(limit, 1),
		sleep:   sleepContext,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d, nil
}

// Name returns the registry key.
func (d *DataForSEO) Name() string {
	return NameDataForSEO
}

type dfsTask[T any] struct {
	StatusCode    int    `json:"status_code"`
	StatusMessage string `json:"status_message"`
	Result        []T    `json:"result"`
}

type dfsResponse[T any] struct {
	StatusCode    int          `json:"status_code"`
	StatusMessage string       `json:"status_message"`
	Tasks         []dfsTask[T] `json:"tasks"`
}

type dfsList[T any] struct {
	TotalCount int `json:"total_count"`
	Items      []T `json:"items"`
}

type dfsSummary struct {
	Backlinks                int `json:"backlinks"`
	ReferringDomains         int `json:"referring_domains"`
	ReferringDomainsNofollow int `json:"referring_domains_nofollow"`
}

type dfsBacklink struct {
	URLFrom    string   `json:"url_from"`
	DomainFrom string   `json:"domain_from"`
	URLTo      string   `json:"url_to"`
	Anchor     string   `json:"anchor"`
	Dofollow   bool     `json:"dofollow"`
	Attributes []string `json:"attributes"`
	FirstSeen  string   `json:"first_seen"`
	LastSeen   string   `json:"last_seen"`
	Country    string   `json:"domain_from_country"`
	TLD        string   `json:"tld_from"`
}

type dfsRefDomain struct {
	Domain    string `json:"domain"`
	Backlinks int    `json:"backlinks"`
	FirstSeen string `json:"first_seen"`
	LastSeen  string `json:"last_seen"`
	Country   string `json:"country"`
	TLD       string `json:"tld"`
}

type dfsAnchor struct {
	Anchor    string `json:"anchor"`
	Backlinks int    `json:"backlinks"`
}

type dfsRequest struct {
	Target            string `json:"target"`
	Limit             int    `json:"limit,omitempty"`
	Offset            int    `json:"offset,omitempty"`
	Mode              string `json:"mode,omitempty"`
	IncludeSubdomains bool   `json:"include_subdomains"`
}

// FetchSummary returns the headline counts for host.
func (d *DataForSEO) FetchSummary(ctx context.Context, host string) (*Summary, error) {
	result, err := call[dfsSummary](ctx, d, "summary", "/v3/backlinks/summary/live",
		dfsRequest{Target: host, IncludeSubdomains: true})
	if err != nil {
		return nil, err
	}
	if result == nil {
		return &Summary{}, nil
	}
	return &Summary{
		TotalBacklinks: result.Backlinks,
		RefDomains:     result.ReferringDomains,
		Follow:         max(result.ReferringDomains-result.ReferringDomainsNofollow, 0),
		Nofollow:       result.ReferringDomainsNofollow,
	}, nil
}

// FetchBacklinks returns one page of backlinks for host.
func (d *DataForSEO) FetchBacklinks(ctx context.Context, host string, limit, offset int) (*Page[BacklinkItem], error) {
	result, err := call[dfsList[dfsBacklink]](ctx, d, "backlinks", "/v3/backlinks/backlinks/live",
		dfsRequest{Target: host, Limit: limit, Offset: offset, Mode: "as_is", IncludeSubdomains: true})
	if err != nil {
		return nil, err
	}
	page := &Page[BacklinkItem]{}
	if result == nil {
		return page, nil
	}
	page.Total = result.TotalCount
	page.Items = make([]BacklinkItem, 0, len(result.Items))
	for _, it := range result.Items {
		source := fingerprint.NormalizeDomain(it.DomainFrom)
		if source == "" {
			source = fingerprint.Host(it.URLFrom)
		}
		tld := strings.ToLower(it.TLD)
		if tld == "" {
			tld = fingerprint.TLD(source)
		}
		page.Items = append(page.Items, BacklinkItem{
			SourceURL:    strings.TrimSpace(it.URLFrom),
			SourceDomain: source,
			TargetURL:    strings.TrimSpace(it.URLTo),
			Anchor:       strings.TrimSpace(it.Anchor),
			Rel:          relFromAttributes(it.Attributes, it.Dofollow),
			FirstSeen:    parseTime(it.FirstSeen),
			LastSeen:     parseTime(it.LastSeen),
			Country:      strings.ToUpper(it.Country),
			TLD:          tld,
		})
	}
	return page, nil
}

// FetchRefDomains returns one page of referring domains for host.
func (d *DataForSEO) FetchRefDomains(ctx context.Context, host string, limit, offset int) (*Page[RefDomainItem], error) {
	result, err := call[dfsList[dfsRefDomain]](ctx, d, "referring_domains", "/v3/backlinks/referring_domains/live",
		dfsRequest{Target: host, Limit: limit, Offset: offset, IncludeSubdomains: true})
	if err != nil {
		return nil, err
	}
	page := &Page[RefDomainItem]{}
	if result == nil {
		return page, nil
	}
	page.Total = result.TotalCount
	page.Items = make([]RefDomainItem, 0, len(result.Items))
	for _, it := range result.Items {
		domain := fingerprint.NormalizeDomain(it.Domain)
		tld := strings.ToLower(it.TLD)
		if tld == "" {
			tld = fingerprint.TLD(domain)
		}
		page.Items = append(page.Items, RefDomainItem{
			Domain:         domain,
			BacklinksCount: it.Backlinks,
			FirstSeen:      parseTime(it.FirstSeen),
			LastSeen:       parseTime(it.LastSeen),
			TLD:            tld,
			Country:        strings.ToUpper(it.Country),
		})
	}
	return page, nil
}

// FetchAnchors returns one page of anchor aggregates for host.
func (d *DataForSEO) FetchAnchors(ctx context.Context, host string, limit, offset int) (*Page[AnchorItem], error) {
	result, err := call[dfsList[dfsAnchor]](ctx, d, "anchors", "/v3/backlinks/anchors/live",
		dfsRequest{Target: host, Limit: limit, Offset: offset, IncludeSubdomains: true})
	if err != nil {
		return nil, err
	}
	page := &Page[AnchorItem]{}
	if result == nil {
		return page, nil
	}
	page.Total = result.TotalCount
	page.Items = make([]AnchorItem, 0, len(result.Items))
	for _, it := range result.Items {
		page.Items = append(page.Items, AnchorItem{
			Anchor: it.Anchor,
			Count:  it.Backlinks,
			Type:   fingerprint.ClassifyAnchor(it.Anchor),
		})
	}
	return page, nil
}

// call posts a single-task request and returns the first task result, or nil
// when the task produced no result.
func call[T any](ctx context.Context, d *DataForSEO, op, path string, req dfsRequest) (*T, error) {
	body, err := d.post(ctx, op, path, []dfsRequest{req})
	if err != nil {
		return nil, err
	}

	var resp dfsResponse[T]
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, &FetchError{Provider: NameDataForSEO, Operation: op, Message: "invalid response body", Cause: err}
	}
	if len(resp.Tasks) == 0 {
		return nil, &FetchError{Provider: NameDataForSEO, Operation: op, Message: "response contained no tasks"}
	}
	task := resp.Tasks[0]
	if task.StatusCode != taskOK {
		return nil, &FetchError{
			Provider:  NameDataForSEO,
			Operation: op,
			Message:   fmt.Sprintf("task status %d: %s", task.StatusCode, task.StatusMessage),
		}
	}
	if len(task.Result) == 0 {
		return nil, nil
	}
	return &task.Result[0], nil
}

// post sends payload and returns the response body. Rate-limited responses
// and client timeouts are retried after a fixed delay until MaxAttempts is
// reached; every other failure is returned at once.
func (d *DataForSEO) post(ctx context.Context, op, path string, payload any) ([]byte, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, &FetchError{Provider: NameDataForSEO, Operation: op, Message: "encode request", Cause: err}
	}

	var lastErr error
	var lastStatus int
	for attempt := 1; attempt <= d.cfg.MaxAttempts; attempt++ {
		if attempt > 1 {
			metrics.RecordProviderRetry(NameDataForSEO, op)
			if err := d.sleep(ctx, d.cfg.RetryDelay); err != nil {
				return nil, &FetchError{Provider: NameDataForSEO, Operation: op, Attempts: attempt - 1, Cause: err}
			}
		}
		if err := d.limiter.Wait(ctx); err != nil {
			return nil, &FetchError{Provider: NameDataForSEO, Operation: op, Attempts: attempt - 1, Cause: err}
		}

		status, body, err := d.do(ctx, path, data)
		switch {
		case err != nil && isTimeout(err) && ctx.Err() == nil:
			metrics.RecordProviderRequest(NameDataForSEO, op, "timeout")
			lastErr, lastStatus = err, 0
			continue
		case err != nil:
			metrics.RecordProviderRequest(NameDataForSEO, op, "error")
			return nil, &FetchError{Provider: NameDataForSEO, Operation: op, Attempts: attempt, Cause: err}
		case status == http.StatusTooManyRequests:
			metrics.RecordProviderRequest(NameDataForSEO, op, "rate_limited")
			lastErr, lastStatus = ErrRateLimited, status
			continue
		case status < 200 || status >= 300:
			metrics.RecordProviderRequest(NameDataForSEO, op, "error")
			return nil, &FetchError{
				Provider:   NameDataForSEO,
				Operation:  op,
				StatusCode: status,
				Attempts:   attempt,
				Message:    snippet(body),
			}
		}

		metrics.RecordProviderRequest(NameDataForSEO, op, "ok")
		return body, nil
	}

	return nil, &FetchError{
		Provider:   NameDataForSEO,
		Operation:  op,
		StatusCode: lastStatus,
		Attempts:   d.cfg.MaxAttempts,
		Cause:      lastErr,
	}
}

func (d *DataForSEO) do(ctx context.Context, path string, data []byte) (int, []byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.cfg.BaseURL+path, bytes.NewReader(data))
	if err != nil {
		return 0, nil, err
	}
	req.SetBasicAuth(d.cfg.Login, d.cfg.Password)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := d.client.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 32<<20))
	if err != nil {
		return resp.StatusCode, nil, err
	}
	return resp.StatusCode, body, nil
}

func isTimeout(err error) bool {
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

func snippet(body []byte) string {
	s := strings.TrimSpace(string(body))
	if len(s) > 200 {
		s = s[:200] + "..."
	}
	return s
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
