// Package config loads exmacro settings from a YAML file and EXMACRO_* environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config is the complete application configuration.
type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Auth       AuthConfig       `mapstructure:"auth"`
	LLM        LLMConfig        `mapstructure:"llm"`
	Extraction ExtractionConfig `mapstructure:"extraction"`
	Logging    LoggingConfig    `mapstructure:"logging"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Addr        string `mapstructure:"addr"`
	MaxUploadMB int64  `mapstructure:"max_upload_mb"`
	// TempDir is where uploads are staged. Empty means the system default.
	TempDir string `mapstructure:"temp_dir"`
}

// AuthConfig holds the shared login. A password starting with "$2" is
// treated as a bcrypt hash.
type AuthConfig struct {
	Username   string        `mapstructure:"username"`
	Password   string        `mapstructure:"password"`
	SessionTTL time.Duration `mapstructure:"session_ttl"`
}

// Enabled reports whether a shared login is configured.
func (a AuthConfig) Enabled() bool {
	return a.Username != "" && a.Password != ""
}

// LLMConfig selects the translation provider.
type LLMConfig struct {
	Provider    string        `mapstructure:"provider"`
	APIKey      string        `mapstructure:"api_key"`
	Endpoint    string        `mapstructure:"endpoint"`
	Deployment  string        `mapstructure:"deployment"`
	APIVersion  string        `mapstructure:"api_version"`
	Model       string        `mapstructure:"model"`
	Temperature float64       `mapstructure:"temperature"`
	MaxTokens   int           `mapstructure:"max_tokens"`
	Timeout     time.Duration `mapstructure:"timeout"`
}

// ExtractionConfig sets extraction defaults.
type ExtractionConfig struct {
	Mode  string `mapstructure:"mode"`
	Debug bool   `mapstructure:"debug"`
}

// LoggingConfig configures the zerolog output.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"` // "console" or "json"
}

// EnvPrefix prefixes every environment override, e.g. EXMACRO_LLM_API_KEY.
const EnvPrefix = "EXMACRO"

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.addr", ":8080")
	v.SetDefault("server.max_upload_mb", 50)
	v.SetDefault("server.temp_dir", "")
	v.SetDefault("auth.username", "")
	v.SetDefault("auth.password", "")
	v.SetDefault("auth.session_ttl", 12*time.Hour)
	v.SetDefault("llm.provider", "openai")
	v.SetDefault("llm.api_key", "")
	v.SetDefault("llm.endpoint", "")
	v.SetDefault("llm.deployment", "")
	v.SetDefault("llm.api_version", "2024-02-15-preview")
	v.SetDefault("llm.model", "")
	v.SetDefault("llm.temperature", 0.1)
	v.SetDefault("llm.max_tokens", 4096)
	v.SetDefault("llm.timeout", 120*time.Second)
	v.SetDefault("extraction.mode", "standard")
	v.SetDefault("extraction.debug", false)
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "console")
}

// Load reads configuration. When file is empty, exmacro.yaml is searched in
// the working directory and $HOME/.config/exmacro; a missing file is not an
// error. Environment variables override file values.
func Load(file string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if file != "" {
		v.SetConfigFile(file)
	} else {
		v.SetConfigName("exmacro")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(filepath.Join(home, ".config", "exmacro"))
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if file != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	return cfg, nil
}
