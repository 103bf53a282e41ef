package types

import "errors"

var (
	// ErrSourceMissing marks a configured corpus directory that does not exist.
	ErrSourceMissing = errors.New("source directory missing")
	// ErrRepresentationFailed marks a failed search-representation rewrite.
	ErrRepresentationFailed = errors.New("search representation failed")
	ErrIndexUnavailable     = errors.New("vector index unavailable")
	ErrCondensationFailed   = errors.New("question condensation failed")
	ErrRetrievalFailed      = errors.New("retrieval failed")
	ErrSynthesisFailed      = errors.New("answer synthesis failed")
	ErrInvalidQuery         = errors.New("invalid query")
	ErrSessionBusy          = errors.New("session is already answering a question")
	ErrSessionNotFound      = errors.New("session not found")
)
