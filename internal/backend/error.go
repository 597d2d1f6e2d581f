package backend

import "errors"

// Error definitions for the backend package.
var (
	ErrNotFound          = errors.New("backend not found in registry")
	ErrAlreadyRegistered = errors.New("backend is already registered in the registry")
	ErrProviderFailed    = errors.New("provider call failed")
	ErrBadResponse       = errors.New("provider returned a malformed response")
)
