package model

import "errors"

// Error definitions for the model package.
var (
	ErrModelLoad = errors.New("model load failed")
	ErrNotReady  = errors.New("models are not loaded")
)
