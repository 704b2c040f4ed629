package api

// SubmitScrapeRequest is the body of POST /scrape/:source_kind. Pointer
// fields distinguish omitted from zero: omitted max_items falls back to the
// source descriptor's default, omitted toggles default to on, matching the
// behavior callers relied on before the toggles existed.
type SubmitScrapeRequest struct {
	MaxItems            *int     `json:"max_items"`
	Filter              []string `json:"filter"`
	EnableLLM           *bool    `json:"enable_llm"`
	EnableDeduplication *bool    `json:"enable_deduplication"`
}
