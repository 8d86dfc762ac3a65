package types

// GenerateRequest is the payload of POST /generate.
type GenerateRequest struct {
	// Text to synthesize, 1..max_text_length characters.
	Text string `json:"text"`
	// Voice identifier; the server default is used when empty.
	Voice string `json:"voice,omitempty"`
	// Speed multiplier in [0.5, 2.0]; 1.0 when omitted.
	Speed *float64 `json:"speed,omitempty"`
	// Output format: wav, ogg, mp3 or pcm; wav when empty.
	Format string `json:"format,omitempty"`
}

// ErrorResponse is a consistent JSON error payload.
type ErrorResponse struct {
	Error     string `json:"error"`
	Detail    string `json:"detail,omitempty"`
	RequestID string `json:"request_id,omitempty"`
}

// VoicesResponse is returned by GET /voices.
type VoicesResponse struct {
	Voices       []Voice `json:"voices"`
	DefaultVoice string  `json:"default_voice"`
}

// HealthResponse is returned by GET /health.
type HealthResponse struct {
	// healthy when the engine is loaded, degraded otherwise.
	Status        string  `json:"status"`
	Version       string  `json:"version"`
	UptimeSeconds float64 `json:"uptime_seconds"`
	ModelLoaded   bool    `json:"model_loaded"`
	// Whether the counter store answered the probe.
	StoreConnected bool `json:"store_connected"`
	// Current queue depth; 0 when the store is unreachable.
	QueueSize            int  `json:"queue_size"`
	AcceleratorAvailable bool `json:"accelerator_available"`
	// Why the model is not loaded, when a load has failed.
	Detail string `json:"detail,omitempty"`
}

// InfoResponse is returned by GET /.
type InfoResponse struct {
	Name      string            `json:"name"`
	Version   string            `json:"version"`
	Health    string            `json:"health"`
	Endpoints map[string]string `json:"endpoints"`
}
