package llm

import "errors"

// Sentinel errors for backend failures. The API layer maps these to HTTP
// statuses; the pipeline maps them to skip reasons.
var (
	// ErrBackendUnavailable covers connection failures, timeouts, and
	// persistent 5xx responses.
	ErrBackendUnavailable = errors.New("llm backend unavailable")

	// ErrBackendRejected covers 4xx responses other than 429. These are
	// never retried.
	ErrBackendRejected = errors.New("llm backend rejected request")

	// ErrRateLimited is returned when 429 responses persist through all
	// retry attempts.
	ErrRateLimited = errors.New("llm backend rate limited")

	// ErrMalformedResponse is returned when the backend answers 200 but the
	// payload is unusable (no text, empty vector, invalid JSON).
	ErrMalformedResponse = errors.New("malformed llm response")
)
