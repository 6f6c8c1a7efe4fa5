// Package config provides configuration management for the dispute letter
// service. Configuration is read from a YAML file on top of DefaultConfig,
// with ${VAR} and ${VAR:-default} environment expansion.
package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// Input shapes accepted by the dispute endpoint. Exactly one is active per deployment.
const (
	ShapeFlat   = "flat"
	ShapeNested = "nested"
)

// Config represents the complete service configuration.
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	LLM        LLMConfig        `yaml:"llm"`
	Dispute    DisputeConfig    `yaml:"dispute"`
	Processing ProcessingConfig `yaml:"processing"`
	Logging    LoggingConfig    `yaml:"logging"`
}

// ServerConfig holds settings for the HTTP listener.
type ServerConfig struct {
	// Host is the interface to bind (default: 0.0.0.0)
	Host string `yaml:"host"`

	// Port specifies the HTTP server port (default: 5000)
	Port int `yaml:"port" validate:"gte=0,lte=65535"`

	// ReadTimeout is the maximum duration for reading the entire request (default: 30s)
	ReadTimeout time.Duration `yaml:"read_timeout" validate:"gte=0"`

	// WriteTimeout is the maximum duration before timing out writes of the
	// response. It must leave room for the outbound completion call (default: 90s)
	WriteTimeout time.Duration `yaml:"write_timeout" validate:"gte=0"`

	// MaxHeaderBytes bounds request header size (default: 1MB)
	MaxHeaderBytes int `yaml:"max_header_bytes" validate:"gte=0"`

	// MaxBodyBytes bounds the request body size (default: 1MB)
	MaxBodyBytes int64 `yaml:"max_body_bytes" validate:"gte=0"`

	// ShutdownTimeout is how long in-flight requests get on SIGTERM (default: 30s)
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" validate:"gte=0"`
}

// Addr returns the listen address.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// LLMConfig holds the text generation provider settings. The credential is
// read once at startup and handed to the completion client.
type LLMConfig struct {
	// Provider labels metrics and logs (e.g. "openai")
	Provider string `yaml:"provider" validate:"required"`

	// BaseURL is the root of an OpenAI-compatible API (default: https://api.openai.com/v1)
	BaseURL string `yaml:"base_url" validate:"required,url"`

	// Model is the fixed model identifier
	Model string `yaml:"model" validate:"required"`

	// APIKey is the provider credential. Use ${OPENAI_API_KEY}.
	// An empty key is not rejected here: authentication fails per request.
	APIKey string `yaml:"api_key"`

	// SystemPrompt is the fixed system instruction sent with every request
	SystemPrompt string `yaml:"system_prompt" validate:"required"`

	// MaxTokens bounds the completion length (default: 350)
	MaxTokens int `yaml:"max_tokens" validate:"gt=0"`

	// Temperature is the sampling temperature (default: 0.7)
	Temperature float64 `yaml:"temperature" validate:"gte=0,lte=2"`

	// Timeout optionally bounds the outbound call; 0 leaves the transport default
	Timeout time.Duration `yaml:"timeout" validate:"gte=0"`

	// MaxContextTokens is the model context window. When positive, prompts
	// whose token count plus MaxTokens exceed it are rejected before the call.
	MaxContextTokens int `yaml:"max_context_tokens" validate:"gte=0"`
}

// DisputeConfig selects the input shape and the defaults used when
// extracting fields from the nested shape.
type DisputeConfig struct {
	// Shape is either "flat" or "nested"
	Shape string `yaml:"shape" validate:"oneof=flat nested"`

	// FragmentPrefix selects the keys of "original" holding breach descriptions
	FragmentPrefix string `yaml:"fragment_prefix" validate:"required"`

	// NoBreachText replaces the breach details when no fragment is present
	NoBreachText string `yaml:"no_breach_text" validate:"required"`

	// UnknownName replaces the name when first and last name are blank
	UnknownName string `yaml:"unknown_name" validate:"required"`
}

// LoggingConfig holds logging-specific configuration.
type LoggingConfig struct {
	// Level sets logging verbosity: debug, info, warn, error
	Level string `yaml:"level" validate:"oneof=debug info warn error"`

	// Format specifies log output format: json or text
	Format string `yaml:"format" validate:"oneof=json text"`
}

// DefaultConfig returns the configuration the service runs with when no
// file is given: flat shape, gpt-3.5-turbo, 350 tokens at temperature 0.7.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            5000,
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    90 * time.Second,
			MaxHeaderBytes:  1 << 20,
			MaxBodyBytes:    1 << 20,
			ShutdownTimeout: 30 * time.Second,
		},
		LLM: LLMConfig{
			Provider:         "openai",
			BaseURL:          "https://api.openai.com/v1",
			Model:            "gpt-3.5-turbo",
			APIKey:           "${OPENAI_API_KEY}",
			SystemPrompt:     "You are an assistant that drafts professional dispute letters.",
			MaxTokens:        350,
			Temperature:      0.7,
			MaxContextTokens: 4096,
		},
		Dispute: DisputeConfig{
			Shape:          ShapeFlat,
			FragmentPrefix: "description_",
			NoBreachText:   "No applicable breaches identified.",
			UnknownName:    "Unknown Name",
		},
		Processing: ProcessingConfig{
			RequestTemplates: map[string]string{
				ShapeFlat:   DefaultFlatTemplate,
				ShapeNested: DefaultNestedTemplate,
			},
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// LoadFile loads configuration from a YAML file. A missing file yields the
// defaults with environment expansion applied, so the service can run from
// environment variables alone.
func LoadFile(filename string) (*Config, error) {
	f, err := os.Open(filename)
	if errors.Is(err, os.ErrNotExist) {
		return Load(strings.NewReader(""))
	}
	if err != nil {
		return nil, fmt.Errorf("open config file: %w", err)
	}
	defer f.Close()

	return Load(f)
}

// expandEnvVars resolves ${VAR} and ${VAR:-default} references.
// Unset variables without a default expand to the empty string.
func expandEnvVars(s string) string {
	return os.Expand(s, func(key string) string {
		if i := strings.Index(key, ":-"); i >= 0 {
			if val := os.Getenv(key[:i]); val != "" {
				return val
			}
			return key[i+2:]
		}
		return os.Getenv(key)
	})
}

// Load loads configuration from an io.Reader
func Load(r io.Reader) (*Config, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	// Start with defaults
	config := DefaultConfig()

	// Decode YAML on top of defaults. An empty document leaves them untouched.
	dec := yaml.NewDecoder(strings.NewReader(expandEnvVars(string(data))))
	if err := dec.Decode(config); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("decode config: %w", err)
	}

	// Defaults may themselves reference the environment (the API key does)
	config.LLM.APIKey = expandEnvVars(config.LLM.APIKey)

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return config, nil
}

var validate = validator.New()

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			fe := verrs[0]
			return fmt.Errorf("invalid %s: %v (rule %s)", fe.Namespace(), fe.Value(), fe.Tag())
		}
		return err
	}

	if c.LLM.MaxContextTokens > 0 && c.LLM.MaxTokens >= c.LLM.MaxContextTokens {
		return fmt.Errorf("max tokens (%d) must be below max context tokens (%d)", c.LLM.MaxTokens, c.LLM.MaxContextTokens)
	}

	if _, ok := c.Processing.RequestTemplates[c.Dispute.Shape]; !ok {
		return fmt.Errorf("no request template for shape %q", c.Dispute.Shape)
	}

	return nil
}
