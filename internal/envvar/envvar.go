package envvar

const (
	// VoxcloneEnv is the environment variable used to determine the environment
	VoxcloneEnv = "VOXCLONE_ENV"

	// VoxcloneHTTPAddr is the environment variable used to determine the HTTP bind address
	VoxcloneHTTPAddr = "VOXCLONE_HTTP_ADDR"

	// VoxcloneGRPCAddr is the environment variable used to determine the gRPC health bind address
	VoxcloneGRPCAddr = "VOXCLONE_GRPC_ADDR"

	// VoxcloneModelsPath is the environment variable used to determine the models directory
	VoxcloneModelsPath = "VOXCLONE_MODELS_PATH"

	// VoxcloneTraceExporter is the environment variable used to select the trace exporter
	VoxcloneTraceExporter = "VOXCLONE_TRACE_EXPORTER"

	// APIHost and APIPort are the legacy bind variables, kept for existing deployments.
	APIHost = "API_HOST"
	APIPort = "API_PORT"

	// ModelEncoderPath, ModelSynthesizerPath and ModelVocoderPath override provider locations.
	ModelEncoderPath     = "MODEL_ENCODER_PATH"
	ModelSynthesizerPath = "MODEL_SYNTHESIZER_PATH"
	ModelVocoderPath     = "MODEL_VOCODER_PATH"
)
