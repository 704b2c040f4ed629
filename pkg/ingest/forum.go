package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/newsloom/newsloom/pkg/config"
	"github.com/newsloom/newsloom/pkg/models"
)

// listingPageLimit is the largest page size the public listing API honors.
const listingPageLimit = 100

// ForumDriver pulls new posts from a link-aggregator forum through its
// public JSON listing API, one subreddit per request.
type ForumDriver struct {
	baseURL string
	src     *config.SourceConfig
	fetch   *fetcher
	logger  *slog.Logger
}

// NewForumDriver builds the forum_post driver from its source descriptor.
func NewForumDriver(src *config.SourceConfig) *ForumDriver {
	logger := slog.With("component", "ingest", "kind", models.SourceForumPost)
	return &ForumDriver{
		baseURL: trimBaseURL(src.BaseURL),
		src:     src,
		fetch:   newFetcher(src, logger),
		logger:  logger,
	}
}

// Kind implements Driver.
func (d *ForumDriver) Kind() models.SourceKind { return models.SourceForumPost }

// FetchItems lists the newest posts of each requested subreddit until the
// item cap is reached. A subreddit that fails after retries is skipped; the
// fetch only errors when nothing at all could be read.
func (d *ForumDriver) FetchItems(ctx context.Context, params FetchParams) (FetchResult, error) {
	params = params.withDefaults(d.src)
	if len(params.Filter) == 0 {
		return FetchResult{}, fmt.Errorf("ingest: no subreddits configured for %s", d.Kind())
	}

	var (
		items []models.RawItem
		errs  []error
	)
	for _, sub := range params.Filter {
		if err := ctx.Err(); err != nil {
			return FetchResult{Items: items}, err
		}
		remaining := params.MaxItems - len(items)
		if remaining <= 0 {
			break
		}

		listed, err := d.fetchSubreddit(ctx, sub, remaining)
		if err != nil {
			d.logger.Warn("subreddit fetch failed", "subreddit", sub, "error", err)
			errs = append(errs, fmt.Errorf("r/%s: %w", sub, err))
			continue
		}
		items = append(items, listed...)
	}

	if len(items) == 0 && len(errs) > 0 {
		return FetchResult{}, errors.Join(errs...)
	}
	d.logger.Info("forum fetch complete",
		"items", len(items), "subreddits", len(params.Filter), "failed", len(errs))
	return FetchResult{Items: items}, nil
}

func (d *ForumDriver) fetchSubreddit(ctx context.Context, sub string, limit int) ([]models.RawItem, error) {
	if limit > listingPageLimit {
		limit = listingPageLimit
	}
	url := fmt.Sprintf("%s/r/%s/new.json?limit=%d&raw_json=1", d.baseURL, sub, limit)

	data, err := d.fetch.get(ctx, url)
	if err != nil {
		return nil, err
	}

	var listing listingResponse
	if err := json.Unmarshal(data, &listing); err != nil {
		return nil, fmt.Errorf("decode listing: %w", err)
	}

	items := make([]models.RawItem, 0, len(listing.Data.Children))
	for _, child := range listing.Data.Children {
		if child.Kind != "" && child.Kind != "t3" {
			continue
		}
		if child.Data.ID == "" {
			continue
		}
		if len(items) >= limit {
			break
		}
		items = append(items, d.normalize(child.Data))
	}
	return items, nil
}

func (d *ForumDriver) normalize(p listingPost) models.RawItem {
	author := p.Author
	if author == "" {
		author = "[deleted]"
	}

	metadata := map[string]any{
		"subreddit":    p.Subreddit,
		"score":        p.Score,
		"num_comments": p.NumComments,
		"permalink":    d.baseURL + p.Permalink,
	}
	if p.LinkFlairText != "" {
		metadata["flair"] = p.LinkFlairText
	}

	url := p.URL
	if url == "" {
		url = d.baseURL + p.Permalink
	}

	item := models.RawItem{
		SourceKind:     models.SourceForumPost,
		SourceID:       p.ID,
		Title:          p.Title,
		Body:           p.SelfText,
		URL:            url,
		Author:         author,
		FetchedAt:      time.Now().UTC(),
		SourceMetadata: metadata,
	}
	if p.CreatedUTC > 0 {
		published := time.Unix(int64(p.CreatedUTC), 0).UTC()
		item.PublishedAt = &published
	}
	return item
}

// Listing API response envelope.

type listingResponse struct {
	Data struct {
		Children []listingChild `json:"children"`
		After    string         `json:"after"`
	} `json:"data"`
}

type listingChild struct {
	Kind string      `json:"kind"`
	Data listingPost `json:"data"`
}

type listingPost struct {
	ID            string  `json:"id"`
	Subreddit     string  `json:"subreddit"`
	Title         string  `json:"title"`
	Author        string  `json:"author"`
	SelfText      string  `json:"selftext"`
	URL           string  `json:"url"`
	Permalink     string  `json:"permalink"`
	Score         int     `json:"score"`
	NumComments   int     `json:"num_comments"`
	CreatedUTC    float64 `json:"created_utc"`
	LinkFlairText string  `json:"link_flair_text"`
}
