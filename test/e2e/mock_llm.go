package e2e

import (
	"encoding/json"
	"hash/fnv"
	"math"
	"math/rand"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
)

// Prompt prefixes the editorial service sends. The mock routes chat calls
// by them: review prompts get verdict scripts, rendering prompts get
// short-form scripts.
const (
	reviewPromptPrefix    = "Review the following post:"
	shortFormPromptPrefix = "Render the following editorial piece as a channel post:"
)

// VerdictScript is one scripted review response. The first script whose
// Match occurs in the user prompt answers the call; scripts are reusable,
// so one script can serve many items.
type VerdictScript struct {
	Match string

	IsNews        bool
	Score         float64
	Reason        string
	Title         string
	Teaser        string
	RewrittenPost string
	ImagePrompt   string
	ContentType   string

	// Raw, when set, is returned verbatim instead of the assembled JSON.
	Raw string
	// Fail answers the call with HTTP 400, failing the review outright.
	Fail bool
}

func (v VerdictScript) body() string {
	if v.Raw != "" {
		return v.Raw
	}
	fields := map[string]any{
		"is_news":          v.IsNews,
		"relevance_score":  v.Score,
		"relevance_reason": v.Reason,
	}
	if v.IsNews {
		fields["title"] = v.Title
		fields["teaser"] = v.Teaser
		fields["rewritten_post"] = v.RewrittenPost
		if v.ImagePrompt != "" {
			fields["image_prompt"] = v.ImagePrompt
		}
		if v.ContentType != "" {
			fields["content_type"] = v.ContentType
		}
	}
	data, _ := json.Marshal(fields)
	return string(data)
}

// ShortFormScript is one scripted short-form rendering, matched against the
// rendering prompt by substring. The verdict's title appears in that prompt,
// so Match usually names the scripted verdict title.
type ShortFormScript struct {
	Match    string
	Title    string
	Body     string
	Hashtags []string

	Raw  string
	Fail bool
}

func (s ShortFormScript) body() string {
	if s.Raw != "" {
		return s.Raw
	}
	data, _ := json.Marshal(map[string]any{
		"title":    s.Title,
		"body":     s.Body,
		"hashtags": s.Hashtags,
	})
	return string(data)
}

type embedAlias struct {
	match string
	key   string
}

// ScriptedLLMServer speaks the generation backend's HTTP wire protocol with
// scripted content: embeddings are deterministic unit vectors derived from
// the prompt text, chat completions are verdict or short-form JSON selected
// by prompt substring. SetHealthy(false) makes every endpoint answer 503,
// simulating a down backend.
type ScriptedLLMServer struct {
	t   *testing.T
	srv *httptest.Server
	dim int

	mu         sync.Mutex
	healthy    bool
	verdicts   []VerdictScript
	shortForms []ShortFormScript
	aliases    []embedAlias

	reviewCalls    int
	shortFormCalls int
	embedCalls     int
}

// NewScriptedLLMServer starts the mock backend. It is closed via t.Cleanup.
func NewScriptedLLMServer(t *testing.T, dim int) *ScriptedLLMServer {
	t.Helper()
	s := &ScriptedLLMServer{t: t, dim: dim, healthy: true}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/tags", s.handleTags)
	mux.HandleFunc("POST /api/chat", s.handleChat)
	mux.HandleFunc("POST /api/generate", s.handleGenerate)
	mux.HandleFunc("POST /api/embeddings", s.handleEmbeddings)

	s.srv = httptest.NewServer(mux)
	t.Cleanup(s.srv.Close)
	return s
}

// URL returns the server's base URL.
func (s *ScriptedLLMServer) URL() string { return s.srv.URL }

// SetHealthy toggles the backend between answering and returning 503
// everywhere.
func (s *ScriptedLLMServer) SetHealthy(healthy bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.healthy = healthy
}

// ScriptVerdict registers a review response.
func (s *ScriptedLLMServer) ScriptVerdict(v VerdictScript) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.verdicts = append(s.verdicts, v)
}

// ScriptShortForm registers a short-form rendering response.
func (s *ScriptedLLMServer) ScriptShortForm(sf ShortFormScript) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.shortForms = append(s.shortForms, sf)
}

// AliasEmbedding makes every prompt containing match embed as the canonical
// key instead of as its own text. Two texts aliased to the same key embed
// identically, so the dedup service sees them as exact semantic duplicates.
// Aliases are checked in registration order; the first match wins.
func (s *ScriptedLLMServer) AliasEmbedding(match, key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.aliases = append(s.aliases, embedAlias{match: match, key: key})
}

// ReviewCalls returns how many review prompts were answered.
func (s *ScriptedLLMServer) ReviewCalls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.reviewCalls
}

// ShortFormCalls returns how many rendering prompts were answered.
func (s *ScriptedLLMServer) ShortFormCalls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.shortFormCalls
}

// EmbedCalls returns how many embedding requests were answered.
func (s *ScriptedLLMServer) EmbedCalls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.embedCalls
}

func (s *ScriptedLLMServer) isHealthy() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.healthy
}

func (s *ScriptedLLMServer) handleTags(w http.ResponseWriter, _ *http.Request) {
	if !s.isHealthy() {
		http.Error(w, "backend down", http.StatusServiceUnavailable)
		return
	}
	writeJSON(w, map[string]any{
		"models": []map[string]any{
			{"name": "test-model"},
			{"name": "test-embed"},
		},
	})
}

func (s *ScriptedLLMServer) handleChat(w http.ResponseWriter, r *http.Request) {
	if !s.isHealthy() {
		http.Error(w, "backend down", http.StatusServiceUnavailable)
		return
	}
	var req struct {
		Model    string `json:"model"`
		Messages []struct {
			Role    string `json:"role"`
			Content string `json:"content"`
		} `json:"messages"`
		Stream bool `json:"stream"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "bad chat request: "+err.Error(), http.StatusBadRequest)
		return
	}
	var user string
	for _, msg := range req.Messages {
		if msg.Role == "user" {
			user = msg.Content
		}
	}

	content, fail := s.completionFor(user)
	if fail {
		http.Error(w, "scripted failure", http.StatusBadRequest)
		return
	}
	writeJSON(w, map[string]any{
		"message": map[string]any{"role": "assistant", "content": content},
		"done":    true,
	})
}

func (s *ScriptedLLMServer) handleGenerate(w http.ResponseWriter, r *http.Request) {
	if !s.isHealthy() {
		http.Error(w, "backend down", http.StatusServiceUnavailable)
		return
	}
	var req struct {
		Model  string `json:"model"`
		Prompt string `json:"prompt"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "bad generate request: "+err.Error(), http.StatusBadRequest)
		return
	}

	content, fail := s.completionFor(req.Prompt)
	if fail {
		http.Error(w, "scripted failure", http.StatusBadRequest)
		return
	}
	writeJSON(w, map[string]any{"response": content, "done": true})
}

func (s *ScriptedLLMServer) handleEmbeddings(w http.ResponseWriter, r *http.Request) {
	if !s.isHealthy() {
		http.Error(w, "backend down", http.StatusServiceUnavailable)
		return
	}
	var req struct {
		Model  string `json:"model"`
		Prompt string `json:"prompt"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "bad embeddings request: "+err.Error(), http.StatusBadRequest)
		return
	}

	s.mu.Lock()
	s.embedCalls++
	key := req.Prompt
	for _, alias := range s.aliases {
		if strings.Contains(req.Prompt, alias.match) {
			key = alias.key
			break
		}
	}
	s.mu.Unlock()

	writeJSON(w, map[string]any{"embedding": unitVector(key, s.dim)})
}

// completionFor routes one prompt to its script. Unrouted prompts flag the
// test and fall back to an irrelevant verdict so the run stays deterministic.
func (s *ScriptedLLMServer) completionFor(prompt string) (content string, fail bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch {
	case strings.HasPrefix(prompt, reviewPromptPrefix):
		s.reviewCalls++
		for _, v := range s.verdicts {
			if strings.Contains(prompt, v.Match) {
				return v.body(), v.Fail
			}
		}
		s.t.Errorf("scripted llm: no verdict script matches review prompt: %.120q", prompt)
		return `{"is_news": false, "relevance_score": 0.1, "relevance_reason": "unscripted item"}`, false

	case strings.HasPrefix(prompt, shortFormPromptPrefix):
		s.shortFormCalls++
		for _, sf := range s.shortForms {
			if strings.Contains(prompt, sf.Match) {
				return sf.body(), sf.Fail
			}
		}
		s.t.Errorf("scripted llm: no short-form script matches rendering prompt: %.120q", prompt)
		return `{"title": "Unscripted", "body": "Unscripted rendering.", "hashtags": ["#a", "#b", "#c"]}`, false

	default:
		s.t.Errorf("scripted llm: unrecognized prompt: %.120q", prompt)
		return `{"is_news": false, "relevance_score": 0.1, "relevance_reason": "unrecognized prompt"}`, false
	}
}

// unitVector derives a deterministic unit vector from key. Identical keys
// embed identically (cosine 1.0); distinct keys produce independent random
// directions, which at this dimension are far below any duplicate threshold.
func unitVector(key string, dim int) []float64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(key))
	r := rand.New(rand.NewSource(int64(h.Sum64())))

	vec := make([]float64, dim)
	var norm float64
	for i := range vec {
		vec[i] = r.NormFloat64()
		norm += vec[i] * vec[i]
	}
	norm = math.Sqrt(norm)
	for i := range vec {
		vec[i] /= norm
	}
	return vec
}

func writeJSON(w http.ResponseWriter, body any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(body)
}
