// Package ingest fetches items from the configured sources and normalizes
// them into RawItem records. One driver exists per source kind; all drivers
// pace their HTTP calls through a token bucket and retry transient failures
// (429, 5xx, network errors) with exponential backoff.
package ingest

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"math/rand"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"

	"github.com/newsloom/newsloom/pkg/config"
	"github.com/newsloom/newsloom/pkg/models"
)

// FetchParams narrows one fetch run. Zero values fall back to the source
// descriptor's defaults.
type FetchParams struct {
	// MaxItems caps the total items returned across all filters.
	MaxItems int
	// Filter selects subreddits, hubs, channels, or tags depending on kind.
	Filter []string
}

func (p FetchParams) withDefaults(src *config.SourceConfig) FetchParams {
	out := p
	if out.MaxItems <= 0 {
		out.MaxItems = src.MaxItems
	}
	if out.MaxItems <= 0 {
		out.MaxItems = 10
	}
	if len(out.Filter) == 0 {
		out.Filter = src.Filters
	}
	return out
}

// FetchResult carries the normalized items plus scrape-side counters that
// end up in the job result.
type FetchResult struct {
	Items []models.RawItem
	// Blocked counts article pages judged bot-blocked after retries.
	Blocked int
	// RSSUsed counts items whose body came from feed metadata instead of
	// the article page.
	RSSUsed int
}

// Driver fetches and normalizes items from one source family. Items come
// back in source-defined order with FetchedAt assigned on normalization.
type Driver interface {
	Kind() models.SourceKind
	FetchItems(ctx context.Context, params FetchParams) (FetchResult, error)
}

// New builds the driver for a source kind from its descriptor.
func New(kind models.SourceKind, src *config.SourceConfig) (Driver, error) {
	if src == nil {
		return nil, fmt.Errorf("ingest: no source descriptor for %q", kind)
	}
	switch kind {
	case models.SourceForumPost:
		return NewForumDriver(src), nil
	case models.SourceTechArticle:
		return NewTechDriver(src), nil
	case models.SourceChatMessage:
		return NewChatDriver(src), nil
	case models.SourceBlogArticle:
		return NewBlogDriver(src), nil
	default:
		return nil, fmt.Errorf("ingest: unsupported source kind %q", kind)
	}
}

// Registry builds one driver per source kind present in the descriptor.
func Registry(sources *config.SourcesConfig) (map[models.SourceKind]Driver, error) {
	drivers := make(map[models.SourceKind]Driver, len(models.AllSourceKinds))
	for _, kind := range models.AllSourceKinds {
		src := sources.ForKind(kind)
		if src == nil {
			continue
		}
		driver, err := New(kind, src)
		if err != nil {
			return nil, err
		}
		drivers[kind] = driver
	}
	return drivers, nil
}

const (
	maxFetchAttempts = 3

	defaultUserAgent = "newsloom/1.0 (news aggregation)"
)

// Retry waits double per attempt up to the cap: 5s, 10s, ... Tests shrink
// them.
var (
	retryInitialWait = 5 * time.Second
	retryMaxWait     = 30 * time.Second
)

// fetcher is the HTTP front shared by all drivers of one source: token-bucket
// pacing, User-Agent rotation, and retries on transient failures.
type fetcher struct {
	client     *http.Client
	limiter    *rate.Limiter
	userAgents []string
	uaIndex    atomic.Uint64
	logger     *slog.Logger
}

func newFetcher(src *config.SourceConfig, logger *slog.Logger) *fetcher {
	rps := src.RequestsPerSecond
	if rps <= 0 {
		rps = 1
	}
	return &fetcher{
		client:     &http.Client{Timeout: 30 * time.Second},
		limiter:    rate.NewLimiter(rate.Limit(rps), 1),
		userAgents: src.UserAgents,
		logger:     logger,
	}
}

func (f *fetcher) userAgent() string {
	if len(f.userAgents) == 0 {
		return defaultUserAgent
	}
	i := f.uaIndex.Add(1) - 1
	return f.userAgents[i%uint64(len(f.userAgents))]
}

// get reads one URL, retrying rate-limit and server-side failures. Every
// attempt waits on the token bucket first so retries stay paced too.
func (f *fetcher) get(ctx context.Context, url string) ([]byte, error) {
	var lastErr error
	wait := retryInitialWait

	for attempt := 0; attempt < maxFetchAttempts; attempt++ {
		if attempt > 0 {
			sleep := time.Duration(float64(wait) * (0.5 + rand.Float64()))
			if sleep > retryMaxWait {
				sleep = retryMaxWait
			}
			f.logger.Warn("retrying fetch",
				"url", url, "attempt", attempt+1, "delay", sleep.String())
			select {
			case <-time.After(sleep):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
			wait *= 2
			if wait > retryMaxWait {
				wait = retryMaxWait
			}
		}

		if err := f.limiter.Wait(ctx); err != nil {
			return nil, err
		}

		data, retryable, err := f.getOnce(ctx, url)
		if err == nil {
			return data, nil
		}
		lastErr = err
		if !retryable {
			return nil, err
		}
	}
	return nil, lastErr
}

func (f *fetcher) getOnce(ctx context.Context, url string) (data []byte, retryable bool, err error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, false, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("User-Agent", f.userAgent())

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, true, err
	}
	defer resp.Body.Close()

	data, err = io.ReadAll(resp.Body)
	if err != nil {
		return nil, true, err
	}

	switch {
	case resp.StatusCode == http.StatusOK:
		return data, false, nil
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return nil, true, fmt.Errorf("http %d from %s", resp.StatusCode, url)
	default:
		return nil, false, fmt.Errorf("unexpected status %d from %s", resp.StatusCode, url)
	}
}

func truncateRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}

func trimBaseURL(raw string) string {
	return strings.TrimRight(strings.TrimSpace(raw), "/")
}
