package ingest

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/newsloom/newsloom/pkg/config"
	"github.com/newsloom/newsloom/pkg/models"
)

// ChatDriver reads public channel preview pages of a messaging platform.
// The preview shows the most recent messages without needing platform
// credentials.
type ChatDriver struct {
	baseURL string
	src     *config.SourceConfig
	fetch   *fetcher
	logger  *slog.Logger
}

// NewChatDriver builds the chat_message driver from its source descriptor.
func NewChatDriver(src *config.SourceConfig) *ChatDriver {
	logger := slog.With("component", "ingest", "kind", models.SourceChatMessage)
	return &ChatDriver{
		baseURL: trimBaseURL(src.BaseURL),
		src:     src,
		fetch:   newFetcher(src, logger),
		logger:  logger,
	}
}

// Kind implements Driver.
func (d *ChatDriver) Kind() models.SourceKind { return models.SourceChatMessage }

// FetchItems scrapes each requested channel's preview page. The page lists
// messages oldest-first; the newest ones are kept when the cap bites.
func (d *ChatDriver) FetchItems(ctx context.Context, params FetchParams) (FetchResult, error) {
	params = params.withDefaults(d.src)
	if len(params.Filter) == 0 {
		return FetchResult{}, fmt.Errorf("ingest: no channels configured for %s", d.Kind())
	}

	var (
		items []models.RawItem
		errs  []error
	)
	for _, channel := range params.Filter {
		if err := ctx.Err(); err != nil {
			return FetchResult{Items: items}, err
		}
		remaining := params.MaxItems - len(items)
		if remaining <= 0 {
			break
		}

		messages, err := d.fetchChannel(ctx, channel, remaining)
		if err != nil {
			d.logger.Warn("channel fetch failed", "channel", channel, "error", err)
			errs = append(errs, fmt.Errorf("channel %s: %w", channel, err))
			continue
		}
		items = append(items, messages...)
	}

	if len(items) == 0 && len(errs) > 0 {
		return FetchResult{}, errors.Join(errs...)
	}
	d.logger.Info("chat fetch complete",
		"items", len(items), "channels", len(params.Filter), "failed", len(errs))
	return FetchResult{Items: items}, nil
}

func (d *ChatDriver) fetchChannel(ctx context.Context, channel string, limit int) ([]models.RawItem, error) {
	url := d.baseURL + "/" + strings.TrimPrefix(channel, "@")
	data, err := d.fetch.get(ctx, url)
	if err != nil {
		return nil, err
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("parse preview page: %w", err)
	}

	var items []models.RawItem
	doc.Find("div.tgme_widget_message").Each(func(_ int, msg *goquery.Selection) {
		item, ok := d.normalize(channel, msg)
		if !ok {
			return
		}
		items = append(items, item)
	})

	// Keep the newest messages when over the limit.
	if len(items) > limit {
		items = items[len(items)-limit:]
	}
	return items, nil
}

// normalize converts one message block. Media-only and service messages
// carry no text and are skipped.
func (d *ChatDriver) normalize(channel string, msg *goquery.Selection) (models.RawItem, bool) {
	post, ok := msg.Attr("data-post")
	if !ok || post == "" {
		return models.RawItem{}, false
	}

	text := strings.TrimSpace(msg.Find("div.tgme_widget_message_text").First().Text())
	if text == "" {
		return models.RawItem{}, false
	}

	title, _, _ := strings.Cut(text, "\n")

	metadata := map[string]any{"channel": channel}
	if views, ok := parseViews(msg.Find("span.tgme_widget_message_views").First().Text()); ok {
		metadata["views"] = views
	}

	item := models.RawItem{
		SourceKind:     models.SourceChatMessage,
		SourceID:       post,
		Title:          strings.TrimSpace(title),
		Body:           text,
		URL:            d.messageURL(post),
		FetchedAt:      time.Now().UTC(),
		SourceMetadata: metadata,
	}
	if raw, ok := msg.Find("time[datetime]").First().Attr("datetime"); ok {
		if t, err := time.Parse(time.RFC3339, strings.TrimSpace(raw)); err == nil {
			ts := t.UTC()
			item.PublishedAt = &ts
		}
	}
	return item, true
}

// messageURL converts a data-post reference ("channel/123") into the
// message's canonical URL, dropping the preview path segment.
func (d *ChatDriver) messageURL(post string) string {
	return strings.TrimSuffix(d.baseURL, "/s") + "/" + post
}

// parseViews reads the abbreviated view counter ("987", "1.2K", "3M").
func parseViews(raw string) (int64, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, false
	}

	mult := int64(1)
	switch {
	case strings.HasSuffix(raw, "K"):
		mult = 1_000
		raw = strings.TrimSuffix(raw, "K")
	case strings.HasSuffix(raw, "M"):
		mult = 1_000_000
		raw = strings.TrimSuffix(raw, "M")
	}

	f, err := strconv.ParseFloat(strings.ReplaceAll(raw, ",", ""), 64)
	if err != nil {
		return 0, false
	}
	return int64(f * float64(mult)), true
}
