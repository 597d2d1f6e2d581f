package http

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"net/url"
	"path/filepath"
	"strings"

	"github.com/danielgtaylor/huma/v2"

	"github.com/ekisa-team/voxclone/internal/codec"
	"github.com/ekisa-team/voxclone/internal/service"
)

const (
	contentTypeURLEncoded = "application/x-www-form-urlencoded"
	contentTypeMultipart  = "multipart/form-data"

	formFieldEmbedding = "embedding"
	formFieldText      = "text"
)

const (
	batchFilename       = "batch_synthesis.zip"
	synthesizedFilename = "synthesized.wav"
	defaultAudioName    = "audio.wav"
)

type (
	ExtractEmbeddingResponseDTO struct {
		Success   bool      `json:"success"`
		Embedding []float32 `json:"embedding,omitempty"`
		Dimension int       `json:"dimension,omitempty"`
		Error     string    `json:"error,omitempty"`
	}

	BatchSynthesizeRequestDTO struct {
		Embedding []float64 `json:"embedding" doc:"Speaker embedding"`
		Texts     []string  `json:"texts" doc:"Texts to synthesize, in output order"`
	}
)

type (
	ExtractEmbeddingInput struct {
		RawBody huma.MultipartFormFiles[struct {
			Audio huma.FormFile `form:"audio" contentType:"audio/*,application/octet-stream" required:"true"`
		}]
	}

	ExtractEmbeddingOutput struct {
		Body ExtractEmbeddingResponseDTO
	}

	CloneVoiceInput struct {
		RawBody huma.MultipartFormFiles[struct {
			Audio huma.FormFile `form:"audio" contentType:"audio/*,application/octet-stream" required:"true"`
			Text  string        `form:"text" required:"true"`
		}]
	}

	BatchSynthesizeInput struct {
		Body BatchSynthesizeRequestDTO
	}

	// SynthesizeWithEmbeddingInput is a url-encoded or multipart form with the
	// embedding (JSON array of numbers) and text fields.
	SynthesizeWithEmbeddingInput struct {
		ContentType string `header:"Content-Type"`
		RawBody     []byte `contentType:"multipart/form-data"`
	}

	// FileOutput is a binary attachment.
	FileOutput struct {
		ContentType        string `header:"Content-Type"`
		ContentDisposition string `header:"Content-Disposition"`
		Body               []byte
	}
)

// VoiceHandler handles HTTP requests for voice cloning.
type VoiceHandler struct {
	cloner *service.Cloner
	codec  *codec.Codec
}

// NewVoiceHandler creates a new VoiceHandler instance.
func NewVoiceHandler(api huma.API, cloner *service.Cloner, c *codec.Codec) *VoiceHandler {
	h := &VoiceHandler{cloner: cloner, codec: c}

	huma.Register(api, huma.Operation{
		OperationID:   "extract-embedding",
		Method:        http.MethodPost,
		Path:          "/api/v1/extract-embedding",
		Summary:       "Extract a speaker embedding from reference audio",
		Description:   "Inference failures are reported with success=false and status 200.",
		Tags:          []string{"voice"},
		DefaultStatus: http.StatusOK,
		MaxBodyBytes:  maxUploadBytes,
	}, h.handleExtractEmbedding)

	huma.Register(api, huma.Operation{
		OperationID:   "clone-voice",
		Method:        http.MethodPost,
		Path:          "/api/v1/clone-voice",
		Summary:       "Synthesize text in the voice of reference audio",
		Tags:          []string{"voice"},
		DefaultStatus: http.StatusOK,
		MaxBodyBytes:  maxUploadBytes,
		Responses:     binaryResponses(codec.ContentTypeWAV),
	}, h.handleCloneVoice)

	huma.Register(api, huma.Operation{
		OperationID:   "batch-synthesize",
		Method:        http.MethodPost,
		Path:          "/api/v1/batch-synthesize",
		Summary:       "Synthesize several texts with one embedding into a zip archive",
		Tags:          []string{"voice"},
		DefaultStatus: http.StatusOK,
		MaxBodyBytes:  maxUploadBytes,
		Responses:     binaryResponses(codec.ContentTypeZip),
	}, h.handleBatchSynthesize)

	huma.Register(api, huma.Operation{
		OperationID:   "synthesize-with-embedding",
		Method:        http.MethodPost,
		Path:          "/api/v1/synthesize-with-embedding",
		Summary:       "Synthesize text with a precomputed embedding",
		Tags:          []string{"voice"},
		DefaultStatus: http.StatusOK,
		MaxBodyBytes:  maxUploadBytes,
		RequestBody:   formRequestBody(),
		Responses:     binaryResponses(codec.ContentTypeWAV),
	}, h.handleSynthesizeWithEmbedding)

	return h
}

// formRequestBody documents the synthesize-with-embedding form in both encodings.
func formRequestBody() *huma.RequestBody {
	schema := func() *huma.Schema {
		return &huma.Schema{
			Type:     huma.TypeObject,
			Required: []string{formFieldEmbedding, formFieldText},
			Properties: map[string]*huma.Schema{
				formFieldEmbedding: {Type: huma.TypeString, Description: "Speaker embedding as a JSON array of numbers"},
				formFieldText:      {Type: huma.TypeString, Description: "Text to synthesize"},
			},
		}
	}

	return &huma.RequestBody{
		Required: true,
		Content: map[string]*huma.MediaType{
			contentTypeURLEncoded: {Schema: schema()},
			contentTypeMultipart:  {Schema: schema()},
		},
	}
}

func binaryResponses(contentType string) map[string]*huma.Response {
	return map[string]*huma.Response{
		"200": {
			Description: "Audio attachment",
			Content: map[string]*huma.MediaType{
				contentType: {Schema: &huma.Schema{Type: "string", Format: "binary"}},
			},
		},
	}
}

// handleExtractEmbedding reports every pipeline failure in the body.
func (h *VoiceHandler) handleExtractEmbedding(ctx context.Context, input *ExtractEmbeddingInput) (*ExtractEmbeddingOutput, error) {
	audioBytes, err := readFile(input.RawBody.Data().Audio)
	if err != nil {
		return nil, err
	}

	emb, err := h.cloner.ExtractEmbedding(ctx, audioBytes)
	if err != nil {
		return &ExtractEmbeddingOutput{
			Body: ExtractEmbeddingResponseDTO{Success: false, Error: err.Error()},
		}, nil
	}

	return &ExtractEmbeddingOutput{
		Body: ExtractEmbeddingResponseDTO{
			Success:   true,
			Embedding: emb,
			Dimension: len(emb),
		},
	}, nil
}

// handleCloneVoice handles the clone-voice operation.
func (h *VoiceHandler) handleCloneVoice(ctx context.Context, input *CloneVoiceInput) (*FileOutput, error) {
	form := input.RawBody.Data()

	audioBytes, err := readFile(form.Audio)
	if err != nil {
		return nil, err
	}

	w, err := h.cloner.Clone(ctx, audioBytes, form.Text)
	if err != nil {
		return nil, toHTTPError("clone-voice", err)
	}

	data, err := h.codec.EncodeSingle(w)
	if err != nil {
		return nil, toHTTPError("clone-voice", err)
	}

	return attachment(codec.ContentTypeWAV, "cloned_"+attachmentName(form.Audio.Filename), data), nil
}

// handleBatchSynthesize handles the batch-synthesize operation.
func (h *VoiceHandler) handleBatchSynthesize(ctx context.Context, input *BatchSynthesizeInput) (*FileOutput, error) {
	emb, err := service.FromFloat64(input.Body.Embedding)
	if err != nil {
		return nil, toHTTPError("batch-synthesize", err)
	}

	items, err := h.cloner.BatchSynthesize(ctx, emb, input.Body.Texts)
	if err != nil {
		return nil, toHTTPError("batch-synthesize", err)
	}

	data, err := h.codec.EncodeBatch(items)
	if err != nil {
		return nil, toHTTPError("batch-synthesize", err)
	}

	return attachment(codec.ContentTypeZip, batchFilename, data), nil
}

// handleSynthesizeWithEmbedding handles the synthesize-with-embedding operation.
func (h *VoiceHandler) handleSynthesizeWithEmbedding(ctx context.Context, input *SynthesizeWithEmbeddingInput) (*FileOutput, error) {
	values, err := parseForm(input.ContentType, input.RawBody)
	if err != nil {
		return nil, err
	}

	var missing []error
	for _, field := range []string{formFieldEmbedding, formFieldText} {
		if values.Get(field) == "" {
			missing = append(missing, &huma.ErrorDetail{
				Location: "body." + field,
				Message:  "required form field is missing",
			})
		}
	}
	if len(missing) > 0 {
		return nil, huma.Error422UnprocessableEntity("validation failed", missing...)
	}

	emb, err := service.ParseEmbedding(values.Get(formFieldEmbedding))
	if err != nil {
		return nil, toHTTPError("synthesize-with-embedding", err)
	}

	w, err := h.cloner.SynthesizeWithEmbedding(ctx, emb, values.Get(formFieldText))
	if err != nil {
		return nil, toHTTPError("synthesize-with-embedding", err)
	}

	data, err := h.codec.EncodeSingle(w)
	if err != nil {
		return nil, toHTTPError("synthesize-with-embedding", err)
	}

	return attachment(codec.ContentTypeWAV, synthesizedFilename, data), nil
}

// parseForm decodes an application/x-www-form-urlencoded or multipart/form-data body.
func parseForm(contentType string, body []byte) (url.Values, error) {
	mediaType, params, err := mime.ParseMediaType(contentType)
	if err != nil {
		return nil, huma.Error415UnsupportedMediaType("expected a url-encoded or multipart form")
	}

	switch mediaType {
	case contentTypeURLEncoded:
		values, err := url.ParseQuery(string(body))
		if err != nil {
			return nil, huma.Error400BadRequest("malformed form body", err)
		}
		return values, nil
	case contentTypeMultipart:
		f, err := multipart.NewReader(bytes.NewReader(body), params["boundary"]).ReadForm(maxUploadBytes)
		if err != nil {
			return nil, huma.Error400BadRequest("malformed multipart form", err)
		}
		defer f.RemoveAll()
		return url.Values(f.Value), nil
	default:
		return nil, huma.Error415UnsupportedMediaType("expected a url-encoded or multipart form, got " + mediaType)
	}
}

func readFile(f huma.FormFile) ([]byte, error) {
	if !f.IsSet {
		return nil, huma.Error400BadRequest("audio file is required")
	}

	data, err := io.ReadAll(f)
	if err != nil {
		return nil, huma.Error400BadRequest("failed to read audio file", err)
	}
	return data, nil
}

func attachment(contentType, filename string, data []byte) *FileOutput {
	return &FileOutput{
		ContentType:        contentType,
		ContentDisposition: fmt.Sprintf("attachment; filename=%s", filename),
		Body:               data,
	}
}

// attachmentName keeps the base name of an uploaded file, without characters
// that would break the Content-Disposition header.
func attachmentName(name string) string {
	name = filepath.Base(strings.ReplaceAll(name, `\`, "/"))
	name = strings.Map(func(r rune) rune {
		if r == '"' || r == ';' || r < 0x20 || r == 0x7f {
			return -1
		}
		return r
	}, name)

	if name == "" || name == "." || name == "/" {
		return defaultAudioName
	}
	return name
}
