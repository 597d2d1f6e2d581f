package http

import (
	"errors"
	"net/http"
	"testing"

	"github.com/danielgtaylor/huma/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ekisa-team/voxclone/internal/service"
)

func TestStatusFor(t *testing.T) {
	tests := map[service.Kind]int{
		service.KindModelLoad:        http.StatusServiceUnavailable,
		service.KindDecode:           http.StatusBadRequest,
		service.KindInvalidEmbedding: http.StatusBadRequest,
		service.KindInvalidRequest:   http.StatusBadRequest,
		service.KindStage:            http.StatusInternalServerError,
	}

	for kind, status := range tests {
		assert.Equal(t, status, StatusFor(&service.Error{Kind: kind, Err: errors.New("x")}), kind)
	}
	assert.Equal(t, http.StatusInternalServerError, StatusFor(errors.New("plain")))
}

func TestToHTTPError_HidesUnclassifiedDetail(t *testing.T) {
	err := toHTTPError("test", errors.New("panic: nil map at /srv/internal/file.go:12"))

	var se huma.StatusError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, http.StatusInternalServerError, se.GetStatus())
	assert.Equal(t, "internal error", err.Error())
}

func TestAttachmentName(t *testing.T) {
	assert.Equal(t, "ref.wav", attachmentName("ref.wav"))
	assert.Equal(t, "ref.wav", attachmentName("../../etc/ref.wav"))
	assert.Equal(t, "ref.wav", attachmentName(`C:\Users\me\ref.wav`))
	assert.Equal(t, "evilname.wav", attachmentName("evil\";name.wav"))
	assert.Equal(t, defaultAudioName, attachmentName(""))
}
