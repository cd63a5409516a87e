package model

import "errors"

// Error taxonomy shared by the repository, cache and API layers. Callers match
// with errors.Is; concrete errors wrap one of these with context.
var (
	// ErrNotFound indicates a referenced template does not exist.
	ErrNotFound = errors.New("not found")
	// ErrExtraction indicates a chart response carried no plausible image payload.
	ErrExtraction = errors.New("no image payload in response")
	// ErrNetwork indicates a transport failure or a non-success HTTP status.
	ErrNetwork = errors.New("network error")
	// ErrPersistence indicates a storage operation failed.
	ErrPersistence = errors.New("persistence error")
	// ErrInvalid indicates a template failed validation.
	ErrInvalid = errors.New("invalid template")
)
