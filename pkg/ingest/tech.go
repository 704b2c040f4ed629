package ingest

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"html"
	"log/slog"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"

	"github.com/newsloom/newsloom/pkg/config"
	"github.com/newsloom/newsloom/pkg/models"
)

const (
	// blockedPageBytes is the size threshold below which an article page is
	// treated as an anti-bot stub rather than real content.
	blockedPageBytes = 10000
	// blockedMaxAttempts bounds re-fetches of a suspected-blocked page.
	blockedMaxAttempts = 3
	// minArticleChars drops articles whose final body is shorter.
	minArticleChars = 100
	// rssFallbackChars switches the body to the feed description when the
	// extracted page text is shorter.
	rssFallbackChars = 150
)

// articleIDPattern extracts the numeric article id from both the current and
// the legacy URL schemes.
var articleIDPattern = regexp.MustCompile(`/(?:articles|post)/(\d+)`)

// TechDriver pulls articles from a tech publishing site: per-hub RSS feeds
// for discovery, optionally followed by an article-page fetch to extract the
// full text.
type TechDriver struct {
	baseURL string
	src     *config.SourceConfig
	fetch   *fetcher
	logger  *slog.Logger
}

// NewTechDriver builds the tech_article driver from its source descriptor.
func NewTechDriver(src *config.SourceConfig) *TechDriver {
	logger := slog.With("component", "ingest", "kind", models.SourceTechArticle)
	return &TechDriver{
		baseURL: trimBaseURL(src.BaseURL),
		src:     src,
		fetch:   newFetcher(src, logger),
		logger:  logger,
	}
}

// Kind implements Driver.
func (d *TechDriver) Kind() models.SourceKind { return models.SourceTechArticle }

type techStats struct {
	items   int
	skipped int
	blocked int
	rssUsed int
	errors  int
}

// FetchItems walks the requested hubs' feeds until the item cap is reached.
// With FetchFullContent set, each article page is fetched and its text
// extracted; blocked or unreadable pages fall back to the feed metadata.
func (d *TechDriver) FetchItems(ctx context.Context, params FetchParams) (FetchResult, error) {
	params = params.withDefaults(d.src)
	if len(params.Filter) == 0 {
		return FetchResult{}, fmt.Errorf("ingest: no hubs configured for %s", d.Kind())
	}

	var (
		items []models.RawItem
		stats techStats
		errs  []error
	)
	for _, hub := range params.Filter {
		if err := ctx.Err(); err != nil {
			return FetchResult{Items: items, Blocked: stats.blocked, RSSUsed: stats.rssUsed}, err
		}
		if len(items) >= params.MaxItems {
			break
		}

		feed, err := d.fetchHubFeed(ctx, hub)
		if err != nil {
			d.logger.Warn("hub feed fetch failed", "hub", hub, "error", err)
			errs = append(errs, fmt.Errorf("hub %s: %w", hub, err))
			continue
		}

		for _, entry := range feed.Channel.Items {
			if len(items) >= params.MaxItems {
				break
			}
			item, ok := d.normalize(ctx, hub, entry, &stats)
			if !ok {
				continue
			}
			items = append(items, item)
			stats.items++
		}
	}

	if len(items) == 0 && len(errs) > 0 {
		return FetchResult{}, errors.Join(errs...)
	}
	d.logger.Info("tech fetch complete",
		"items", stats.items, "skipped", stats.skipped,
		"blocked", stats.blocked, "rss_used", stats.rssUsed, "errors", stats.errors)
	return FetchResult{Items: items, Blocked: stats.blocked, RSSUsed: stats.rssUsed}, nil
}

func (d *TechDriver) fetchHubFeed(ctx context.Context, hub string) (*rssFeed, error) {
	url := fmt.Sprintf("%s/ru/rss/hub/%s/articles/", d.baseURL, hub)
	data, err := d.fetch.get(ctx, url)
	if err != nil {
		return nil, err
	}
	return decodeRSS(data)
}

// normalize converts one feed entry into a RawItem, optionally enriching it
// from the article page. ok is false when the entry must be skipped.
func (d *TechDriver) normalize(ctx context.Context, hub string, entry rssItem, stats *techStats) (models.RawItem, bool) {
	id := articleID(entry.Link)
	if id == "" {
		d.logger.Warn("no article id in link", "link", entry.Link)
		stats.skipped++
		return models.RawItem{}, false
	}

	description := htmlText(entry.Description)
	item := models.RawItem{
		SourceKind:  models.SourceTechArticle,
		SourceID:    id,
		Title:       strings.TrimSpace(entry.Title),
		Body:        description,
		URL:         entry.Link,
		Author:      strings.TrimSpace(entry.Creator),
		PublishedAt: parseFeedTime(entry.PubDate),
		FetchedAt:   time.Now().UTC(),
		SourceMetadata: map[string]any{
			"hub":  hub,
			"hubs": strings.Join(entry.Categories, ","),
		},
	}

	if d.src.FetchFullContent {
		d.enrichFromPage(ctx, &item, description, stats)
	} else {
		stats.rssUsed++
	}

	if utf8.RuneCountInString(item.Body) < minArticleChars {
		d.logger.Warn("article body too short, skipping",
			"id", id, "chars", utf8.RuneCountInString(item.Body))
		stats.skipped++
		return models.RawItem{}, false
	}
	return item, true
}

// enrichFromPage fetches the article page and replaces the feed-derived
// fields with extracted ones. Any failure keeps the feed metadata.
func (d *TechDriver) enrichFromPage(ctx context.Context, item *models.RawItem, description string, stats *techStats) {
	page, blocked, err := d.articleHTML(ctx, item.URL)
	if err != nil {
		d.logger.Warn("article fetch failed, falling back to feed metadata",
			"url", item.URL, "error", err)
		stats.errors++
		stats.rssUsed++
		return
	}
	if blocked {
		d.logger.Warn("article page blocked, falling back to feed metadata", "url", item.URL)
		stats.blocked++
		stats.rssUsed++
		return
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(page))
	if err != nil {
		d.logger.Warn("article parse failed", "url", item.URL, "error", err)
		stats.errors++
		stats.rssUsed++
		return
	}

	if title := extractArticleTitle(doc); title != "" {
		item.Title = title
	}
	if author := extractArticleAuthor(doc); author != "" {
		item.Author = author
	}
	if published := extractArticleTime(doc); published != nil {
		item.PublishedAt = published
	}
	if image := extractArticleImage(doc, d.baseURL); image != "" {
		item.SourceMetadata["image"] = image
	}

	content := extractArticleText(doc)
	if utf8.RuneCountInString(content) < rssFallbackChars {
		d.logger.Debug("extracted text too short, using feed description", "url", item.URL)
		stats.rssUsed++
		return
	}
	item.Body = content
}

// articleHTML fetches an article page, re-requesting suspiciously small
// responses. blocked is true when every attempt stayed under the threshold.
func (d *TechDriver) articleHTML(ctx context.Context, url string) (page []byte, blocked bool, err error) {
	for attempt := 1; attempt <= blockedMaxAttempts; attempt++ {
		data, err := d.fetch.get(ctx, url)
		if err != nil {
			return nil, false, err
		}
		if len(data) >= blockedPageBytes {
			return data, false, nil
		}
		d.logger.Debug("short article page, possible block",
			"url", url, "bytes", len(data), "attempt", attempt)
	}
	return nil, true, nil
}

func articleID(link string) string {
	m := articleIDPattern.FindStringSubmatch(link)
	if m == nil {
		return ""
	}
	return m[1]
}

// Extraction selectors cover both the current and the legacy page layouts.
var (
	articleTitleSelectors = []string{
		"h1 span[class*='title']",
		"h1[class*='title']",
		"h1 span",
		"h1",
	}
	articleAuthorSelectors = []string{
		"a[class*='user'] span",
		"a[class*='author']",
		"[class*='author'] a",
	}
	articleContentSelectors = []string{
		"article[id*='post']",
		"div[class*='article-formatted']",
		"div[id*='post-content']",
		"div.tm-article-body",
		"article.tm-article-presenter__body",
		"div.post__text",
		"div.content",
	}
	articleImageSelectors = []string{
		"article img",
		"div[class*='article'] img",
		"img[class*='article']",
	}
)

func extractArticleTitle(doc *goquery.Document) string {
	for _, sel := range articleTitleSelectors {
		if title := strings.TrimSpace(doc.Find(sel).First().Text()); title != "" {
			return title
		}
	}
	if title, ok := doc.Find("meta[property='og:title']").Attr("content"); ok {
		if title = strings.TrimSpace(title); title != "" {
			return title
		}
	}
	return strings.TrimSpace(doc.Find("title").First().Text())
}

func extractArticleAuthor(doc *goquery.Document) string {
	for _, sel := range articleAuthorSelectors {
		if author := strings.TrimSpace(doc.Find(sel).First().Text()); author != "" {
			return author
		}
	}
	if author, ok := doc.Find("meta[name='author']").Attr("content"); ok {
		return strings.TrimSpace(author)
	}
	return ""
}

func extractArticleTime(doc *goquery.Document) *time.Time {
	if raw, ok := doc.Find("time[datetime]").First().Attr("datetime"); ok {
		if t, err := time.Parse(time.RFC3339, strings.TrimSpace(raw)); err == nil {
			ts := t.UTC()
			return &ts
		}
	}
	if raw, ok := doc.Find("meta[property='article:published_time']").Attr("content"); ok {
		if t, err := time.Parse(time.RFC3339, strings.TrimSpace(raw)); err == nil {
			ts := t.UTC()
			return &ts
		}
	}
	return nil
}

// extractArticleText walks the top-level blocks of the article container:
// code blocks keep a <code> wrapper, headings get padded, and tiny fragments
// are dropped.
func extractArticleText(doc *goquery.Document) string {
	doc.Find("script, style, nav, header, footer, aside, form, iframe, noscript").Remove()

	var container *goquery.Selection
	for _, sel := range articleContentSelectors {
		if s := doc.Find(sel).First(); s.Length() > 0 {
			container = s
			break
		}
	}
	if container == nil {
		container = doc.Find("article").First()
	}
	if container.Length() == 0 {
		return ""
	}

	var parts []string
	container.Children().Each(func(_ int, block *goquery.Selection) {
		switch {
		case block.Is("pre, code") || block.Find("pre, code").Length() > 0:
			if text := strings.TrimSpace(block.Text()); text != "" {
				parts = append(parts, "<code>"+html.EscapeString(text)+"</code>")
			}
		case block.Is("h1, h2, h3, h4, h5, h6") || block.Find("h1, h2, h3, h4, h5, h6").Length() > 0:
			if text := strings.TrimSpace(block.Text()); text != "" {
				parts = append(parts, "\n"+text+"\n")
			}
		default:
			if text := strings.TrimSpace(block.Text()); utf8.RuneCountInString(text) > 5 {
				parts = append(parts, text)
			}
		}
	})
	return strings.TrimSpace(strings.Join(parts, "\n\n"))
}

// extractArticleImage returns the first content image, skipping decorative
// assets and resolving protocol-relative and site-relative sources.
func extractArticleImage(doc *goquery.Document, baseURL string) string {
	for _, sel := range articleImageSelectors {
		var found string
		doc.Find(sel).EachWithBreak(func(_ int, img *goquery.Selection) bool {
			src, ok := img.Attr("src")
			if !ok || src == "" {
				return true
			}
			lower := strings.ToLower(src)
			for _, skip := range []string{"icon", "avatar", "emoji", "logo"} {
				if strings.Contains(lower, skip) {
					return true
				}
			}
			switch {
			case strings.HasPrefix(src, "//"):
				src = "https:" + src
			case strings.HasPrefix(src, "/"):
				src = baseURL + src
			}
			found = src
			return false
		})
		if found != "" {
			return found
		}
	}
	return ""
}
