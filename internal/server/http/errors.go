package http

import (
	"log/slog"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"github.com/ekisa-team/voxclone/internal/service"
)

// statusByKind maps each pipeline error kind to its transport status.
var statusByKind = map[service.Kind]int{
	service.KindModelLoad:        http.StatusServiceUnavailable,
	service.KindDecode:           http.StatusBadRequest,
	service.KindInvalidEmbedding: http.StatusBadRequest,
	service.KindInvalidRequest:   http.StatusBadRequest,
	service.KindStage:            http.StatusInternalServerError,
}

// StatusFor returns the HTTP status for a pipeline error.
func StatusFor(err error) int {
	if status, ok := statusByKind[service.KindOf(err)]; ok {
		return status
	}
	return http.StatusInternalServerError
}

// toHTTPError converts a pipeline error into a huma problem response.
// Unclassified errors are logged and reported without detail.
func toHTTPError(op string, err error) error {
	status := StatusFor(err)

	if service.KindOf(err) == "" {
		slog.Error("Unclassified error", "op", op, "error", err)
		return huma.NewError(status, "internal error")
	}

	return huma.NewError(status, err.Error())
}
