package e2e

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"testing"
	"time"
)

// ListingPost is one post served by the listing mock.
type ListingPost struct {
	ID       string
	Title    string
	Body     string
	Author   string
	URL      string
	Score    int
	Comments int
	Flair    string
	// CreatedAt, when set, is reported as the post's publication time.
	CreatedAt time.Time
}

// ListingServer mimics the forum listing API: GET /r/{subreddit}/new.json
// returns the posts registered for that subreddit, newest-first exactly as
// registered, honoring the limit parameter. Unknown subreddits return an
// empty listing.
type ListingServer struct {
	t   *testing.T
	srv *httptest.Server

	mu       sync.Mutex
	posts    map[string][]ListingPost
	requests int
}

// NewListingServer starts the mock. It is closed via t.Cleanup.
func NewListingServer(t *testing.T) *ListingServer {
	t.Helper()
	s := &ListingServer{t: t, posts: make(map[string][]ListingPost)}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /r/{subreddit}/new.json", s.handleListing)

	s.srv = httptest.NewServer(mux)
	t.Cleanup(s.srv.Close)
	return s
}

// URL returns the server's base URL.
func (s *ListingServer) URL() string { return s.srv.URL }

// SetPosts replaces the posts served for a subreddit.
func (s *ListingServer) SetPosts(subreddit string, posts ...ListingPost) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.posts[subreddit] = posts
}

// Requests returns how many listing requests were served.
func (s *ListingServer) Requests() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.requests
}

func (s *ListingServer) handleListing(w http.ResponseWriter, r *http.Request) {
	subreddit := r.PathValue("subreddit")

	s.mu.Lock()
	s.requests++
	posts := s.posts[subreddit]
	s.mu.Unlock()

	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		limit, err := strconv.Atoi(limitStr)
		if err != nil || limit < 0 {
			http.Error(w, "bad limit", http.StatusBadRequest)
			return
		}
		if limit < len(posts) {
			posts = posts[:limit]
		}
	}

	children := make([]map[string]any, 0, len(posts))
	for _, p := range posts {
		data := map[string]any{
			"id":           p.ID,
			"subreddit":    subreddit,
			"title":        p.Title,
			"selftext":     p.Body,
			"author":       p.Author,
			"url":          p.URL,
			"permalink":    fmt.Sprintf("/r/%s/comments/%s/", subreddit, p.ID),
			"score":        p.Score,
			"num_comments": p.Comments,
		}
		if p.Flair != "" {
			data["link_flair_text"] = p.Flair
		}
		if !p.CreatedAt.IsZero() {
			data["created_utc"] = float64(p.CreatedAt.Unix())
		}
		children = append(children, map[string]any{"kind": "t3", "data": data})
	}

	writeJSON(w, map[string]any{
		"data": map[string]any{
			"children": children,
			"after":    "",
		},
	})
}
