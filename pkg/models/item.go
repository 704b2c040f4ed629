package models

import (
	"time"

	"github.com/google/uuid"
)

// RawItem is the normalized output of any ingestion driver. (source_kind,
// source_id) is unique across the store; the record is immutable after the
// initial write except for the vector_id attachment.
type RawItem struct {
	ID             int64          `json:"id,omitempty"`
	SourceKind     SourceKind     `json:"source_kind"`
	SourceID       string         `json:"source_id"`
	Title          string         `json:"title"`
	Body           string         `json:"body"`
	URL            string         `json:"url"`
	Author         string         `json:"author,omitempty"`
	PublishedAt    *time.Time     `json:"published_at,omitempty"`
	FetchedAt      time.Time      `json:"fetched_at"`
	SourceMetadata map[string]any `json:"source_metadata,omitempty"`
	VectorID       *uuid.UUID     `json:"vector_id,omitempty"`
}

// ContentText returns the text used for length gating, embedding, and
// editorial review: title and body joined by a blank line.
func (r RawItem) ContentText() string {
	if r.Body == "" {
		return r.Title
	}
	return r.Title + "\n\n" + r.Body
}

// ContentType classifies an editorial verdict into a small fixed set.
type ContentType string

// Content type labels.
const (
	ContentNews       ContentType = "news"
	ContentResearch   ContentType = "research"
	ContentTutorial   ContentType = "tutorial"
	ContentHumor      ContentType = "humor"
	ContentDiscussion ContentType = "discussion"
	ContentMeme       ContentType = "meme"
)

// ProcessedItem is the editorial product of a RawItem. Exactly one exists
// per raw item; when IsRelevant is false the editorial fields stay empty.
type ProcessedItem struct {
	ID              int64       `json:"id,omitempty"`
	SourceKind      SourceKind  `json:"source_kind"`
	SourceID        string      `json:"source_id"`
	IsRelevant      bool        `json:"is_relevant"`
	RelevanceScore  float64     `json:"relevance_score"`
	RelevanceReason string      `json:"relevance_reason"`
	EditorialTitle  string      `json:"editorial_title,omitempty"`
	EditorialTeaser string      `json:"editorial_teaser,omitempty"`
	EditorialBody   string      `json:"editorial_body,omitempty"`
	ImagePrompt     string      `json:"image_prompt,omitempty"`
	ContentType     ContentType `json:"content_type,omitempty"`
	ModelName       string      `json:"model_name"`
	ProcessingMS    int         `json:"processing_ms"`
	ProcessedAt     time.Time   `json:"processed_at"`
}

// ShortFormItem is the size-bounded rendering of a relevant ProcessedItem
// for a chat-platform channel. CharCount counts Formatted's runes;
// IsPublished holds iff both PublishedAt and PlatformMessageID are set.
type ShortFormItem struct {
	ID                int64      `json:"id,omitempty"`
	SourceKind        SourceKind `json:"source_kind"`
	SourceID          string     `json:"source_id"`
	Title             string     `json:"title"`
	Body              string     `json:"body"`
	Hashtags          []string   `json:"hashtags"`
	Formatted         string     `json:"formatted"`
	CharCount         int        `json:"char_count"`
	CreatedAt         time.Time  `json:"created_at"`
	PublishedAt       *time.Time `json:"published_at,omitempty"`
	PlatformMessageID *int64     `json:"platform_message_id,omitempty"`
	IsPublished       bool       `json:"is_published"`
}

// MaxShortFormChars bounds the formatted short-form body.
const MaxShortFormChars = 3500

// VectorRef ties a raw item to its point in the per-kind vector collection.
// The index entry may be gone (vector-side data loss); callers treat that
// state as "not vectorized".
type VectorRef struct {
	VectorID   uuid.UUID  `json:"vector_id"`
	SourceID   string     `json:"source_id"`
	SourceKind SourceKind `json:"source_kind"`
}
