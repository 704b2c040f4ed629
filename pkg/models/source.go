// Package models defines the domain entities shared across the pipeline:
// raw items, processed items, short-form renderings, jobs, and log sessions.
package models

import "fmt"

// SourceKind identifies the source family an item was ingested from.
// It selects the per-source vector collection and editorial policy overrides.
type SourceKind string

// Known source kinds.
const (
	SourceForumPost   SourceKind = "forum_post"
	SourceTechArticle SourceKind = "tech_article"
	SourceChatMessage SourceKind = "chat_message"
	SourceBlogArticle SourceKind = "blog_article"
)

// AllSourceKinds lists every supported source kind in canonical order.
var AllSourceKinds = []SourceKind{
	SourceForumPost,
	SourceTechArticle,
	SourceChatMessage,
	SourceBlogArticle,
}

// collectionNames maps each source kind to its vector collection.
// Duplicate detection is scoped per collection; cross-kind near-duplicates
// are intentionally not considered.
var collectionNames = map[SourceKind]string{
	SourceForumPost:   "forum_posts",
	SourceTechArticle: "tech_articles",
	SourceChatMessage: "chat_messages",
	SourceBlogArticle: "blog_articles",
}

// ParseSourceKind converts a string (e.g. a URL path segment) into a
// SourceKind, rejecting unknown values.
func ParseSourceKind(s string) (SourceKind, error) {
	kind := SourceKind(s)
	if _, ok := collectionNames[kind]; !ok {
		return "", fmt.Errorf("unknown source kind %q", s)
	}
	return kind, nil
}

// String returns the wire representation of the source kind.
func (k SourceKind) String() string { return string(k) }

// Valid reports whether the kind is one of the supported source families.
func (k SourceKind) Valid() bool {
	_, ok := collectionNames[k]
	return ok
}

// Collection returns the vector-index collection name for the kind.
func (k SourceKind) Collection() string { return collectionNames[k] }
