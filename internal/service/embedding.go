package service

import (
	"encoding/json"
	"fmt"
	"math"
	"strings"

	"github.com/ekisa-team/voxclone/internal/backend"
)

// ParseEmbedding decodes a JSON array of numbers.
func ParseEmbedding(raw string) (backend.Embedding, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, &Error{Kind: KindInvalidEmbedding, Err: fmt.Errorf("%w: empty", ErrInvalidEmbedding)}
	}

	var values []float64
	if err := json.Unmarshal([]byte(raw), &values); err != nil {
		return nil, &Error{Kind: KindInvalidEmbedding, Err: fmt.Errorf("%w: %w", ErrInvalidEmbedding, err)}
	}

	return FromFloat64(values)
}

// FromFloat64 converts caller-supplied values, rejecting any that do not fit a float32.
func FromFloat64(values []float64) (backend.Embedding, error) {
	out := make(backend.Embedding, len(values))
	for i, v := range values {
		if math.Abs(v) > math.MaxFloat32 {
			return nil, &Error{Kind: KindInvalidEmbedding, Err: fmt.Errorf("%w: value %d out of range", ErrInvalidEmbedding, i)}
		}
		out[i] = float32(v)
	}
	return out, nil
}

func checkDimension(e backend.Embedding, want int) error {
	if len(e) != want {
		return &Error{Kind: KindInvalidEmbedding, Err: fmt.Errorf("%w: got %d values, want %d", ErrInvalidEmbedding, len(e), want)}
	}
	return nil
}
