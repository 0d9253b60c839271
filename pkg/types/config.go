package types

// Config is the application configuration, merged from config files and
// environment overrides.
type Config struct {
	// Model is the default model in "provider/model" form,
	// e.g. "openrouter/x-ai/grok-4-fast".
	Model string `json:"model,omitempty"`

	// DataDir holds durable state (transcript blobs, the SQLite index).
	DataDir string `json:"dataDir,omitempty"`

	// ContentDir is the root of the project/clip/song/playlist library.
	ContentDir string `json:"contentDir,omitempty"`

	// AgentsDir holds agent system prompt files (<name>.md).
	AgentsDir string `json:"agentsDir,omitempty"`

	Server   ServerConfig              `json:"server,omitempty"`
	Provider map[string]ProviderConfig `json:"provider,omitempty"`
	Log      LogConfig                 `json:"log,omitempty"`

	// WindowLimit caps the number of transcript entries sent to the model.
	// Zero or negative means the full transcript is sent.
	WindowLimit int `json:"windowLimit,omitempty"`

	// ToolTimeoutMS is the default deadline for remote tool requests.
	ToolTimeoutMS int64 `json:"toolTimeoutMS,omitempty"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port       int  `json:"port,omitempty"`
	EnableCORS bool `json:"enableCORS,omitempty"`
}

// ProviderConfig holds per-provider credentials and endpoint overrides.
type ProviderConfig struct {
	APIKey    string `json:"apiKey,omitempty"`
	BaseURL   string `json:"baseURL,omitempty"`
	Model     string `json:"model,omitempty"`
	MaxTokens int    `json:"maxTokens,omitempty"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level  string `json:"level,omitempty"`
	Pretty bool   `json:"pretty,omitempty"`
}
