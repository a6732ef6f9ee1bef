// Package recordapi reads visit submissions and beneficiary registrations
// from the remote record API.
package recordapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/sells-group/flw-audit/internal/resilience"
)

// ErrAuthExpired is matched with errors.Is when the API rejects the
// configured credentials (HTTP 401/403).
var ErrAuthExpired = errors.New("recordapi: authorization expired")

const (
	resourceVisits        = "visits"
	resourceRegistrations = "registrations"
)

// Client defines the record API operations the fetch layer depends on.
type Client interface {
	// CountVisits returns the number of visit submissions available for domain.
	CountVisits(ctx context.Context, domain string) (int, error)
	// ListVisits returns every visit submission for domain.
	ListVisits(ctx context.Context, domain string) ([]VisitRow, error)
	// CountRegistrations returns the number of registration records for domain.
	CountRegistrations(ctx context.Context, domain string) (int, error)
	// ListRegistrations returns every registration record for domain.
	ListRegistrations(ctx context.Context, domain string) ([]RegistrationRow, error)
}

// Option configures the HTTP client.
type Option func(*HTTPClient)

// WithBaseURL sets a custom base URL (for testing).
func WithBaseURL(u string) Option {
	return func(c *HTTPClient) {
		c.baseURL = strings.TrimRight(u, "/")
	}
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *HTTPClient) {
		c.http = hc
	}
}

// WithPageSize sets the number of objects requested per page.
func WithPageSize(n int) Option {
	return func(c *HTTPClient) {
		if n > 0 {
			c.pageSize = n
		}
	}
}

// WithRateLimit throttles requests to rps per second. Zero disables throttling.
func WithRateLimit(rps float64) Option {
	return func(c *HTTPClient) {
		if rps > 0 {
			c.limiter = rate.NewLimiter(rate.Limit(rps), max(int(rps), 1))
		} else {
			c.limiter = nil
		}
	}
}

// WithRetry overrides the retry policy applied to each page request.
func WithRetry(cfg resilience.RetryConfig) Option {
	return func(c *HTTPClient) {
		c.retry = cfg
	}
}

// HTTPClient implements Client over the paged REST API.
type HTTPClient struct {
	baseURL  string
	pageSize int
	http     *http.Client
	limiter  *rate.Limiter
	retry    resilience.RetryConfig

	mu       sync.RWMutex
	username string
	apiKey   string
}

// NewClient creates a record API client authenticating as username with apiKey.
func NewClient(username, apiKey string, opts ...Option) *HTTPClient {
	c := &HTTPClient{
		baseURL:  "https://www.commcarehq.org",
		pageSize: 1000,
		http: &http.Client{
			Timeout: 60 * time.Second,
			Transport: &http.Transport{
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		limiter:  rate.NewLimiter(5, 5),
		retry:    resilience.DefaultRetryConfig(),
		username: username,
		apiKey:   apiKey,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// SetCredentials replaces the credentials used by subsequent requests.
func (c *HTTPClient) SetCredentials(username, apiKey string) {
	c.mu.Lock()
	c.username, c.apiKey = username, apiKey
	c.mu.Unlock()
}

func (c *HTTPClient) authHeader() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return fmt.Sprintf("ApiKey %s:%s", c.username, c.apiKey)
}

type pageMeta struct {
	TotalCount int    `json:"total_count"`
	Next       string `json:"next"`
}

type page[T any] struct {
	Meta    pageMeta `json:"meta"`
	Objects []T      `json:"objects"`
}

func (c *HTTPClient) CountVisits(ctx context.Context, domain string) (int, error) {
	p, err := getPage[VisitRow](ctx, c, domain, resourceVisits, 1, 0)
	if err != nil {
		return 0, err
	}
	return p.Meta.TotalCount, nil
}

func (c *HTTPClient) ListVisits(ctx context.Context, domain string) ([]VisitRow, error) {
	return listAll[VisitRow](ctx, c, domain, resourceVisits)
}

func (c *HTTPClient) CountRegistrations(ctx context.Context, domain string) (int, error) {
	p, err := getPage[RegistrationRow](ctx, c, domain, resourceRegistrations, 1, 0)
	if err != nil {
		return 0, err
	}
	return p.Meta.TotalCount, nil
}

func (c *HTTPClient) ListRegistrations(ctx context.Context, domain string) ([]RegistrationRow, error) {
	return listAll[RegistrationRow](ctx, c, domain, resourceRegistrations)
}

// listAll walks the offset pages until the API reports no next page.
func listAll[T any](ctx context.Context, c *HTTPClient, domain, resource string) ([]T, error) {
	var out []T
	offset := 0
	for {
		p, err := getPage[T](ctx, c, domain, resource, c.pageSize, offset)
		if err != nil {
			return nil, err
		}
		out = append(out, p.Objects...)
		offset += len(p.Objects)

		zap.L().Debug("recordapi: page fetched",
			zap.String("domain", domain),
			zap.String("resource", resource),
			zap.Int("fetched", offset),
			zap.Int("total", p.Meta.TotalCount),
		)

		if p.Meta.Next == "" || len(p.Objects) == 0 {
			break
		}
		if p.Meta.TotalCount > 0 && offset >= p.Meta.TotalCount {
			break
		}
	}
	if out == nil {
		out = []T{}
	}
	return out, nil
}

func getPage[T any](ctx context.Context, c *HTTPClient, domain, resource string, limit, offset int) (*page[T], error) {
	if domain == "" {
		return nil, eris.New("recordapi: domain is required")
	}
	q := url.Values{}
	q.Set("limit", strconv.Itoa(limit))
	q.Set("offset", strconv.Itoa(offset))
	endpoint := fmt.Sprintf("%s/a/%s/api/v1/%s/?%s", c.baseURL, url.PathEscape(domain), resource, q.Encode())

	retry := c.retry
	if retry.OnRetry == nil {
		retry.OnRetry = resilience.RetryLogger("recordapi", resource)
	}

	body, err := resilience.DoVal(ctx, retry, func(ctx context.Context) ([]byte, error) {
		return c.get(ctx, endpoint)
	})
	if err != nil {
		return nil, err
	}

	var p page[T]
	if err := json.Unmarshal(body, &p); err != nil {
		return nil, eris.Wrapf(err, "recordapi: decode %s page", resource)
	}
	return &p, nil
}

func (c *HTTPClient) get(ctx context.Context, endpoint string) ([]byte, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, eris.Wrap(err, "recordapi: rate limit")
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, eris.Wrap(err, "recordapi: create request")
	}
	req.Header.Set("Authorization", c.authHeader())
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, eris.Wrap(err, "recordapi: request")
	}
	defer resp.Body.Close() //nolint:errcheck

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, eris.Wrap(err, "recordapi: read body")
	}

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return nil, resilience.NewAuthExpiredError(
			eris.Wrapf(ErrAuthExpired, "status %d", resp.StatusCode), resp.StatusCode)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, resilience.ClassifyHTTPStatus(resp.StatusCode,
			eris.Errorf("recordapi: status %d: %s", resp.StatusCode, truncate(string(body), 200)))
	}
	return body, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
