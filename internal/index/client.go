// Package index fetches, with caching and throttling, the set of
// released versions and per-version requirement strings for a
// package name from a package-index metadata service.
package index

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"net/http"
	"time"

	"golang.org/x/time/rate"

	"github.com/pipaudit/pipaudit/internal/version"
)

const (
	defaultBaseURL     = "https://pypi.org/pypi"
	maxRetries         = 3
	clientTimeout      = 30 * time.Second
	defaultMinInterval = 200 * time.Millisecond
)

// Client is the contract the resolver depends on.
type Client interface {
	// Versions returns the package's released versions, descending.
	Versions(ctx context.Context, name string) ([]version.Version, error)
	// Requires returns the raw requirement strings for one release.
	Requires(ctx context.Context, name, ver string) ([]string, error)
}

// Option configures a Service.
type Option func(*Service)

// WithHTTPClient sets the HTTP client used for index requests.
func WithHTTPClient(c *http.Client) Option {
	return func(s *Service) {
		if c != nil {
			s.httpClient = c
		}
	}
}

// WithBaseURL overrides the index base URL (useful for testing
// against an httptest.Server).
func WithBaseURL(url string) Option {
	return func(s *Service) {
		if url != "" {
			s.baseURL = url
		}
	}
}

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithMinInterval sets the minimum spacing between outbound index
// requests. Defaults to 200ms, per the throttling requirement.
func WithMinInterval(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.limiter = rate.NewLimiter(rate.Every(d), 1)
		}
	}
}

// WithDiskCache enables an on-disk cache of raw index responses in
// dir, persisting across invocations. Without this option only the
// per-invocation in-memory cache applies.
func WithDiskCache(dir string) Option {
	return func(s *Service) {
		s.diskCacheDir = dir
	}
}

// Service communicates with a PyPI-shaped JSON index over HTTP.
type Service struct {
	httpClient   *http.Client
	baseURL      string
	logger       *slog.Logger
	limiter      *rate.Limiter
	diskCacheDir string
	disk         *diskCache

	memo map[string]*memoEntry // per-invocation cache, keyed by "name@version" ("name@" for the project document)
}

type memoEntry struct {
	info *packageInfo
	err  error
}

var _ Client = (*Service)(nil)

// New creates a new index client.
func New(opts ...Option) *Service {
	s := &Service{
		httpClient: &http.Client{Timeout: clientTimeout},
		baseURL:    defaultBaseURL,
		logger:     slog.Default(),
		limiter:    rate.NewLimiter(rate.Every(defaultMinInterval), 1),
		memo:       make(map[string]*memoEntry),
	}

	for _, opt := range opts {
		opt(s)
	}

	if s.diskCacheDir != "" {
		if disk, err := newDiskCache(s.diskCacheDir); err != nil {
			s.logger.Debug("index disk cache unavailable, continuing without it",
				slog.String("error", err.Error()))
		} else {
			s.disk = disk
		}
	}

	return s
}

// Versions returns name's released versions, descending. Yanked and
// file-less releases are dropped. Pre-releases are excluded unless
// every available version is a pre-release.
func (s *Service) Versions(ctx context.Context, name string) ([]version.Version, error) {
	info, err := s.fetch(ctx, name, "")
	if err != nil {
		return nil, err
	}

	var all, stable []version.Version

	for raw, files := range info.Releases {
		if !hasNonYankedFile(files) {
			continue
		}

		v := version.Parse(raw)
		if v.Unknown() {
			continue
		}

		all = append(all, v)

		if !v.IsPreRelease() {
			stable = append(stable, v)
		}
	}

	result := stable
	if len(result) == 0 {
		result = all
	}

	version.SortDescending(result)

	return result, nil
}

// Requires returns the raw requires_dist entries for name at ver.
func (s *Service) Requires(ctx context.Context, name, ver string) ([]string, error) {
	info, err := s.fetch(ctx, name, ver)
	if err != nil {
		return nil, err
	}

	return info.Info.RequiresDist, nil
}

func hasNonYankedFile(files []fileRef) bool {
	if len(files) == 0 {
		return false
	}

	for _, f := range files {
		if !f.Yanked {
			return true
		}
	}

	return false
}

// fetch retrieves package metadata, consulting the in-memory cache
// first, then the optional disk cache, then the network. ver == ""
// fetches the project-level document.
func (s *Service) fetch(ctx context.Context, name, ver string) (*packageInfo, error) {
	memoKey := name + "@" + ver

	if e, ok := s.memo[memoKey]; ok {
		return e.info, e.err
	}

	info, err := s.fetchUncached(ctx, name, ver)
	s.memo[memoKey] = &memoEntry{info: info, err: err}

	return info, err
}

func (s *Service) fetchUncached(ctx context.Context, name, ver string) (*packageInfo, error) {
	diskKey := diskCacheKey(name, ver)

	if s.disk != nil {
		if data, ok := s.disk.get(diskKey); ok {
			var info packageInfo
			if err := json.Unmarshal(data, &info); err == nil {
				return &info, nil
			}
		}
	}

	url := s.baseURL + "/" + name + "/json"
	if ver != "" {
		url = s.baseURL + "/" + name + "/" + ver + "/json"
	}

	body, err := s.fetchWithRetry(ctx, url, name)
	if err != nil {
		return nil, err
	}

	var info packageInfo
	if err := json.Unmarshal(body, &info); err != nil {
		return nil, fmt.Errorf("decoding response from %s: %w", url, err)
	}

	if s.disk != nil {
		if err := s.disk.put(diskKey, body); err != nil {
			s.logger.Debug("failed to populate index disk cache", slog.String("error", err.Error()))
		}
	}

	return &info, nil
}

func diskCacheKey(name, ver string) string {
	if ver == "" {
		return name + ".json"
	}

	return name + "@" + ver + ".json"
}

// retryableError wraps a transient error — network failure or 5xx —
// that fetchWithRetry should retry with backoff.
type retryableError struct{ err error }

func (e *retryableError) Error() string { return e.err.Error() }
func (e *retryableError) Unwrap() error { return e.err }

// fetchWithRetry performs an HTTP GET with throttling, retry, and
// exponential backoff. Only transient errors are retried; permanent
// ones (404, malformed JSON upstream of this call) return immediately.
func (s *Service) fetchWithRetry(ctx context.Context, url, name string) ([]byte, error) {
	var lastErr error

	for attempt := range maxRetries {
		if attempt > 0 {
			backoff := time.Duration(math.Pow(2, float64(attempt))) * 500 * time.Millisecond

			s.logger.Debug("retrying index request",
				slog.String("package", name),
				slog.Int("attempt", attempt+1),
				slog.Duration("backoff", backoff),
			)

			select {
			case <-ctx.Done():
				return nil, fmt.Errorf("fetching %s: %w", name, ctx.Err())
			case <-time.After(backoff):
			}
		}

		if err := s.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("waiting for rate limiter: %w", err)
		}

		body, err := s.doRequest(ctx, url)
		if err == nil {
			return body, nil
		}

		var re *retryableError
		if !errors.As(err, &re) {
			return nil, fmt.Errorf("fetching %s: %w", name, err)
		}

		lastErr = err
		s.logger.Debug("index request failed",
			slog.String("package", name),
			slog.Int("attempt", attempt+1),
			slog.String("error", err.Error()),
		)
	}

	return nil, fmt.Errorf("fetching %s after %d attempts: %w", name, maxRetries, lastErr)
}

func (s *Service) doRequest(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request for %s: %w", url, err)
	}

	req.Header.Set("Accept", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, &retryableError{err: fmt.Errorf("requesting %s: %w", url, err)}
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode == http.StatusNotFound {
		return nil, fmt.Errorf("package not found at %s", url)
	}

	if resp.StatusCode >= http.StatusInternalServerError {
		return nil, &retryableError{err: fmt.Errorf("server error %d from %s", resp.StatusCode, url)}
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d from %s", resp.StatusCode, url)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &retryableError{err: fmt.Errorf("reading response from %s: %w", url, err)}
	}

	return body, nil
}
