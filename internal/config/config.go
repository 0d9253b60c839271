// Package config provides configuration loading and path management.
package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"github.com/tidwall/jsonc"

	"github.com/strudel-ai/strudel/pkg/types"
)

// Load loads configuration from multiple sources (priority order, later
// sources override earlier ones):
//  1. Global config (~/.config/strudel/strudel.json[c])
//  2. Working-directory config (strudel.json[c])
//  3. STRUDEL_CONFIG file
//  4. Environment variables
func Load(directory string) (*types.Config, error) {
	paths := GetPaths()

	config := &types.Config{
		DataDir:       paths.Data,
		ContentDir:    filepath.Join(paths.Data, "content"),
		AgentsDir:     "agents",
		Provider:      make(map[string]types.ProviderConfig),
		WindowLimit:   24,
		ToolTimeoutMS: 30000,
		Server: types.ServerConfig{
			Port:       8034,
			EnableCORS: true,
		},
	}

	loaded := make(map[string]bool)
	loadOnce := func(path string) {
		absPath, err := filepath.Abs(path)
		if err != nil || loaded[absPath] {
			return
		}
		if loadConfigFile(path, config) == nil {
			loaded[absPath] = true
		}
	}

	loadOnce(filepath.Join(paths.Config, "strudel.json"))
	loadOnce(filepath.Join(paths.Config, "strudel.jsonc"))

	if directory != "" {
		loadOnce(filepath.Join(directory, "strudel.json"))
		loadOnce(filepath.Join(directory, "strudel.jsonc"))
	}

	if configPath := os.Getenv("STRUDEL_CONFIG"); configPath != "" {
		loadOnce(configPath)
	}

	applyEnvOverrides(config)

	return config, nil
}

// loadConfigFile loads a single config file with interpolation support.
func loadConfigFile(path string, config *types.Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err // File doesn't exist, skip
	}

	// Strip JSONC comments, then resolve {env:VAR} placeholders.
	data = jsonc.ToJSON(data)
	data = interpolate(data)

	var fileConfig types.Config
	if err := json.Unmarshal(data, &fileConfig); err != nil {
		return err
	}

	mergeConfig(config, &fileConfig)
	return nil
}

var envPattern = regexp.MustCompile(`\{env:([^}]+)\}`)

// interpolate replaces {env:VAR} placeholders with environment values.
func interpolate(data []byte) []byte {
	return envPattern.ReplaceAllFunc(data, func(match []byte) []byte {
		name := envPattern.FindSubmatch(match)[1]
		return []byte(os.Getenv(string(name)))
	})
}

// mergeConfig overlays src onto dst, field by field.
func mergeConfig(dst, src *types.Config) {
	if src.Model != "" {
		dst.Model = src.Model
	}
	if src.DataDir != "" {
		dst.DataDir = src.DataDir
	}
	if src.ContentDir != "" {
		dst.ContentDir = src.ContentDir
	}
	if src.AgentsDir != "" {
		dst.AgentsDir = src.AgentsDir
	}
	if src.WindowLimit != 0 {
		dst.WindowLimit = src.WindowLimit
	}
	if src.ToolTimeoutMS != 0 {
		dst.ToolTimeoutMS = src.ToolTimeoutMS
	}
	if src.Server.Port != 0 {
		dst.Server.Port = src.Server.Port
	}
	if src.Server.EnableCORS {
		dst.Server.EnableCORS = true
	}
	if src.Log.Level != "" {
		dst.Log.Level = src.Log.Level
	}
	if src.Log.Pretty {
		dst.Log.Pretty = true
	}
	for id, pc := range src.Provider {
		existing := dst.Provider[id]
		if pc.APIKey != "" {
			existing.APIKey = pc.APIKey
		}
		if pc.BaseURL != "" {
			existing.BaseURL = pc.BaseURL
		}
		if pc.Model != "" {
			existing.Model = pc.Model
		}
		if pc.MaxTokens != 0 {
			existing.MaxTokens = pc.MaxTokens
		}
		dst.Provider[id] = existing
	}
}

// applyEnvOverrides applies environment variables with the highest priority.
func applyEnvOverrides(config *types.Config) {
	if v := os.Getenv("STRUDEL_MODEL"); v != "" {
		config.Model = v
	}
	if v := os.Getenv("STRUDEL_DATA_DIR"); v != "" {
		config.DataDir = v
	}
	if v := os.Getenv("STRUDEL_CONTENT_DIR"); v != "" {
		config.ContentDir = v
	}
	if v := os.Getenv("STRUDEL_LOG_LEVEL"); v != "" {
		config.Log.Level = v
	}
	if v := os.Getenv("STRUDEL_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			config.Server.Port = port
		}
	}

	// OpenRouter is the default provider when only a key is present.
	if key := os.Getenv("OPENROUTER_API_KEY"); key != "" {
		pc := config.Provider["openrouter"]
		pc.APIKey = key
		if pc.BaseURL == "" {
			pc.BaseURL = "https://openrouter.ai/api/v1"
		}
		config.Provider["openrouter"] = pc
	}
}

// SplitModelRef splits a "provider/model" reference. The model part may
// itself contain slashes (OpenRouter model ids do).
func SplitModelRef(ref string) (providerID, modelID string) {
	parts := strings.SplitN(ref, "/", 2)
	if len(parts) != 2 {
		return "", ref
	}
	return parts[0], parts[1]
}
