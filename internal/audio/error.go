package audio

import "errors"

// Error definitions for the audio package.
var (
	ErrDecode      = errors.New("audio decode failed")
	ErrInvalidRate = errors.New("invalid sample rate")
)
