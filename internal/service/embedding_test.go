package service

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ekisa-team/voxclone/internal/backend"
)

func TestParseEmbedding(t *testing.T) {
	emb, err := ParseEmbedding(" [0.5, -2, 2.5e-1] ")
	require.NoError(t, err)
	assert.Equal(t, backend.Embedding{0.5, -2, 0.25}, emb)
}

func TestParseEmbedding_Invalid(t *testing.T) {
	for _, raw := range []string{"", "[1,", `{"a":1}`, `["x"]`, "[1e39]", "null garbage"} {
		t.Run(raw, func(t *testing.T) {
			_, err := ParseEmbedding(raw)
			assert.ErrorIs(t, err, ErrInvalidEmbedding)
			assert.Equal(t, KindInvalidEmbedding, KindOf(err))
		})
	}
}

func TestError_Message(t *testing.T) {
	err := stageError(StageVocoding, 3, assert.AnError)
	assert.Equal(t, "item 3: vocoding failed: "+assert.AnError.Error(), err.Error())
	assert.ErrorIs(t, err, assert.AnError)

	assert.Equal(t, Kind(""), KindOf(assert.AnError))
}
