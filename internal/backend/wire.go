package backend

// Wire types shared by the exec and http backends.

// InfoResponse describes a loaded provider.
type InfoResponse struct {
	Dimension int `json:"dimension"`
}

// EmbedRequest is the encoder input.
type EmbedRequest struct {
	Samples    []float32 `json:"samples"`
	SampleRate int       `json:"sample_rate"`
}

// EmbedResponse is the encoder output.
type EmbedResponse struct {
	Embedding Embedding `json:"embedding"`
}

// SynthesizeRequest holds parallel lists of texts and embeddings.
type SynthesizeRequest struct {
	Texts      []string    `json:"texts"`
	Embeddings []Embedding `json:"embeddings"`
}

// SynthesizeResponse holds one spectrogram per request pair.
type SynthesizeResponse struct {
	Spectrograms []Spectrogram `json:"spectrograms"`
}

// VocodeRequest is the vocoder input.
type VocodeRequest struct {
	Spectrogram Spectrogram `json:"spectrogram"`
}

// VocodeResponse is the vocoder output. A zero SampleRate means the service rate.
type VocodeResponse struct {
	Samples    []float32 `json:"samples"`
	SampleRate int       `json:"sample_rate"`
}
