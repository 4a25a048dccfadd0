package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/MegaGrindStone/llama-web-ui/internal/bridge"
	"github.com/MegaGrindStone/llama-web-ui/internal/handlers"
	"github.com/MegaGrindStone/llama-web-ui/internal/services"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

const configDirName = "llamachat"

type config struct {
	Port         string                 `yaml:"port"`
	APIURL       string                 `yaml:"apiURL"`
	APIKey       string                 `yaml:"apiKey"`
	DevOrigin    string                 `yaml:"devOrigin"`
	DefaultModel string                 `yaml:"defaultModel"`
	Models       []handlers.ModelOption `yaml:"models"`
	OllamaHost   string                 `yaml:"ollamaHost"`
	ErrorMessage string                 `yaml:"errorMessage"`
	Bridge       bridgeConfig           `yaml:"bridge"`
}

type bridgeConfig struct {
	Listen    string   `yaml:"listen"`
	Prefix    string   `yaml:"prefix"`
	Provider  string   `yaml:"provider"`
	Host      string   `yaml:"host"`
	APIKey    string   `yaml:"apiKey"`
	MaxTokens int      `yaml:"maxTokens"`
	Models    []string `yaml:"models"`
}

func defaultConfig() config {
	return config{
		Port:         "8080",
		DevOrigin:    "http://localhost:8000",
		DefaultModel: "deepseek-coder:6.7b",
		Models: []handlers.ModelOption{
			{ID: "deepseek-coder:6.7b", Label: "💻 DeepSeek Coder (6.7B)"},
			{ID: "llama3.2", Label: "🦙 Llama 3.2 (3B)"},
			{ID: "llama3.2:1b", Label: "🦙 Llama 3.2 (1B)"},
			{ID: "mistral", Label: "🌀 Mistral"},
			{ID: "codellama", Label: "💻 Code Llama"},
		},
		Bridge: bridgeConfig{
			Listen:   ":8000",
			Prefix:   services.DefaultBaseURL,
			Provider: "ollama",
		},
	}
}

// configDir returns the directory holding the config file and the preference store.
func configDir() (string, error) {
	cfgDir, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("error getting user config dir: %w", err)
	}
	return filepath.Join(cfgDir, configDirName), nil
}

// loadConfig reads the yaml file at path over the defaults. A missing or empty file leaves the
// defaults untouched. An empty path means config.yaml in the user config directory.
func loadConfig(path string) (config, error) {
	cfg := defaultConfig()

	if path == "" {
		dir, err := configDir()
		if err != nil {
			return cfg, err
		}
		path = filepath.Join(dir, "config.yaml")
	}

	f, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return cfg, nil
	}
	if err != nil {
		return cfg, fmt.Errorf("error opening config file: %w", err)
	}
	defer f.Close()

	if err := yaml.NewDecoder(f).Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return cfg, fmt.Errorf("error decoding config file %s: %w", path, err)
	}
	return cfg, nil
}

// applyEnv overrides the file values with the environment.
func (c *config) applyEnv(getenv func(string) string) {
	if v := getenv("LLAMACHAT_API_URL"); v != "" {
		c.APIURL = v
	}
	if v := getenv("LLAMACHAT_API_KEY"); v != "" {
		c.APIKey = v
	}
	if v := getenv("OLLAMA_HOST"); v != "" {
		if c.OllamaHost == "" {
			c.OllamaHost = v
		}
		if c.Bridge.Provider == "ollama" && c.Bridge.Host == "" {
			c.Bridge.Host = v
		}
	}
	if v := getenv("OPENAI_API_KEY"); v != "" && c.Bridge.Provider == "openai" && c.Bridge.APIKey == "" {
		c.Bridge.APIKey = v
	}
	if v := getenv("ANTHROPIC_API_KEY"); v != "" && c.Bridge.Provider == "anthropic" && c.Bridge.APIKey == "" {
		c.Bridge.APIKey = v
	}
}

func (c config) validate() error {
	if c.Port == "" {
		return fmt.Errorf("port is required")
	}
	for i, m := range c.Models {
		if m.ID == "" {
			return fmt.Errorf("models[%d]: id is required", i)
		}
	}
	return c.Bridge.validate()
}

// baseURL resolves the API base the chat requests are sent to.
func (c config) baseURL() (string, error) {
	return services.ResolveBaseURL(c.APIURL, c.DevOrigin)
}

// modelOptions returns the configured models followed by the discovered ones that are not configured.
func (c config) modelOptions(discovered []string) []handlers.ModelOption {
	opts := append([]handlers.ModelOption(nil), c.Models...)
	for _, name := range discovered {
		known := false
		for _, o := range opts {
			if o.ID == name {
				known = true
				break
			}
		}
		if !known {
			opts = append(opts, handlers.ModelOption{ID: name, Label: name})
		}
	}
	return opts
}

func (b bridgeConfig) validate() error {
	switch b.Provider {
	case "ollama", "openai", "anthropic":
	default:
		return fmt.Errorf("unknown bridge provider: %q", b.Provider)
	}
	if b.Listen == "" {
		return fmt.Errorf("bridge listen address is required")
	}
	return nil
}

func (b bridgeConfig) provider(logger *zap.Logger) (bridge.Provider, error) {
	switch b.Provider {
	case "ollama":
		return services.NewOllama(b.Host, logger)
	case "openai":
		return services.NewOpenAI(b.APIKey, b.Host, b.Models, logger), nil
	case "anthropic":
		return services.NewAnthropic(b.APIKey, b.Host, b.MaxTokens, b.Models, logger), nil
	default:
		return nil, fmt.Errorf("unknown bridge provider: %q", b.Provider)
	}
}
