package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"github.com/newsloom/newsloom/pkg/config"
	"github.com/newsloom/newsloom/pkg/models"
)

// blogSummaryLimit caps the body taken from a feed entry's description.
const blogSummaryLimit = 500

// blogPostIDPattern matches the compact post id in canonical /p/ links.
var blogPostIDPattern = regexp.MustCompile(`/p/([A-Za-z0-9]+)`)

// BlogDriver pulls long-form posts from a blogging platform's per-tag RSS
// feeds. Feeds carry a summary only, so the body is the trimmed description.
type BlogDriver struct {
	baseURL string
	src     *config.SourceConfig
	fetch   *fetcher
	logger  *slog.Logger
}

// NewBlogDriver builds the blog_article driver from its source descriptor.
func NewBlogDriver(src *config.SourceConfig) *BlogDriver {
	logger := slog.With("component", "ingest", "kind", models.SourceBlogArticle)
	return &BlogDriver{
		baseURL: trimBaseURL(src.BaseURL),
		src:     src,
		fetch:   newFetcher(src, logger),
		logger:  logger,
	}
}

// Kind implements Driver.
func (d *BlogDriver) Kind() models.SourceKind { return models.SourceBlogArticle }

// FetchItems walks the requested tags' feeds until the item cap is reached.
// A tag that fails after retries is skipped; the fetch only errors when
// nothing at all could be read.
func (d *BlogDriver) FetchItems(ctx context.Context, params FetchParams) (FetchResult, error) {
	params = params.withDefaults(d.src)
	if len(params.Filter) == 0 {
		return FetchResult{}, fmt.Errorf("ingest: no tags configured for %s", d.Kind())
	}

	var (
		items []models.RawItem
		errs  []error
	)
	for _, tag := range params.Filter {
		if err := ctx.Err(); err != nil {
			return FetchResult{Items: items}, err
		}
		remaining := params.MaxItems - len(items)
		if remaining <= 0 {
			break
		}

		entries, err := d.fetchTagFeed(ctx, tag, remaining)
		if err != nil {
			d.logger.Warn("tag feed fetch failed", "tag", tag, "error", err)
			errs = append(errs, fmt.Errorf("tag %s: %w", tag, err))
			continue
		}
		items = append(items, entries...)
	}

	if len(items) == 0 && len(errs) > 0 {
		return FetchResult{}, errors.Join(errs...)
	}
	d.logger.Info("blog fetch complete",
		"items", len(items), "tags", len(params.Filter), "failed", len(errs))
	return FetchResult{Items: items}, nil
}

func (d *BlogDriver) fetchTagFeed(ctx context.Context, tag string, limit int) ([]models.RawItem, error) {
	url := fmt.Sprintf("%s/feed/tag/%s", d.baseURL, normalizeTag(tag))
	data, err := d.fetch.get(ctx, url)
	if err != nil {
		return nil, err
	}

	feed, err := decodeRSS(data)
	if err != nil {
		return nil, err
	}

	items := make([]models.RawItem, 0, limit)
	for _, entry := range feed.Channel.Items {
		if len(items) >= limit {
			break
		}
		item, ok := d.normalize(tag, entry)
		if !ok {
			continue
		}
		items = append(items, item)
	}
	return items, nil
}

func (d *BlogDriver) normalize(tag string, entry rssItem) (models.RawItem, bool) {
	id := blogPostID(entry)
	if id == "" {
		d.logger.Warn("feed entry without id or link, skipping", "title", entry.Title)
		return models.RawItem{}, false
	}

	item := models.RawItem{
		SourceKind:  models.SourceBlogArticle,
		SourceID:    id,
		Title:       strings.TrimSpace(entry.Title),
		Body:        truncateRunes(htmlText(entry.Description), blogSummaryLimit),
		URL:         stripQuery(entry.Link),
		Author:      strings.TrimSpace(entry.Creator),
		PublishedAt: parseFeedTime(entry.PubDate),
		FetchedAt:   time.Now().UTC(),
		SourceMetadata: map[string]any{
			"tag":  tag,
			"tags": strings.Join(entry.Categories, ","),
		},
	}
	return item, true
}

// blogPostID derives a stable id: the compact /p/ token when the GUID or
// link carries one, otherwise the query-stripped GUID or link itself.
func blogPostID(entry rssItem) string {
	for _, candidate := range []string{entry.GUID, entry.Link} {
		candidate = stripQuery(candidate)
		if candidate == "" {
			continue
		}
		if m := blogPostIDPattern.FindStringSubmatch(candidate); m != nil {
			return m[1]
		}
		return candidate
	}
	return ""
}

// normalizeTag maps a display tag to its feed path form.
func normalizeTag(tag string) string {
	return strings.ReplaceAll(strings.ToLower(strings.TrimSpace(tag)), " ", "-")
}

func stripQuery(raw string) string {
	raw = strings.TrimSpace(raw)
	if i := strings.IndexByte(raw, '?'); i >= 0 {
		raw = raw[:i]
	}
	return raw
}
