package service

import (
	"errors"
	"fmt"
)

// Error definitions for the service package.
var (
	ErrInvalidEmbedding = errors.New("invalid embedding")
	ErrInvalidRequest   = errors.New("invalid request")
	ErrSpectrogramCount = errors.New("synthesizer returned the wrong number of spectrograms")
	ErrEmptyWaveform    = errors.New("vocoder returned no samples")
)

// Kind classifies pipeline failures. The set is closed.
type Kind string

const (
	KindModelLoad        Kind = "model_load"
	KindDecode           Kind = "decode"
	KindInvalidEmbedding Kind = "invalid_embedding"
	KindInvalidRequest   Kind = "invalid_request"
	KindStage            Kind = "stage"
)

// Stage names the provider call that failed.
type Stage string

const (
	StageEmbedding Stage = "embedding"
	StageSynthesis Stage = "synthesis"
	StageVocoding  Stage = "vocoding"
)

var stageLabels = map[Stage]string{
	StageEmbedding: "embedding extraction",
	StageSynthesis: "synthesis",
	StageVocoding:  "vocoding",
}

// Error is the only error type the pipeline returns.
type Error struct {
	Err   error
	Kind  Kind
	Stage Stage
	// Item is the 1-based batch position, 0 outside batches.
	Item int
}

func (e *Error) Error() string {
	msg := e.Err.Error()
	if e.Kind == KindStage {
		msg = fmt.Sprintf("%s failed: %s", stageLabels[e.Stage], msg)
	}
	if e.Item > 0 {
		msg = fmt.Sprintf("item %d: %s", e.Item, msg)
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// KindOf returns the kind of a pipeline error, or "" for anything else.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

func stageError(stage Stage, item int, err error) *Error {
	return &Error{Kind: KindStage, Stage: stage, Item: item, Err: err}
}

func invalidRequest(format string, args ...any) *Error {
	return &Error{Kind: KindInvalidRequest, Err: fmt.Errorf("%w: %s", ErrInvalidRequest, fmt.Sprintf(format, args...))}
}
