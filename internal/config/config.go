package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/menta2k/webar-studio/pkg/compiler"
	"github.com/menta2k/webar-studio/pkg/features"
	"github.com/menta2k/webar-studio/pkg/upload"
)

// EnvPrefix prefixes every environment override
const EnvPrefix = "WEBAR_"

// Config holds the application configuration
type Config struct {
	Compiler CompilerConfig `json:"compiler"`
	Upload   UploadConfig   `json:"upload"`
	Server   ServerConfig   `json:"server"`
	Logging  LoggingConfig  `json:"logging"`
}

// CompilerConfig holds configuration for target compilation
type CompilerConfig struct {
	MaxDimension     int      `json:"max_dimension"`
	MinFeatures      int      `json:"min_features"`
	Stride           int      `json:"stride"`
	Threshold        float64  `json:"threshold"`
	MaxPoints        int      `json:"max_points"`
	AllowPlaceholder bool     `json:"allow_placeholder"`
	Library          string   `json:"library"`      // external compiler executable, empty for native only
	LibraryArgs      []string `json:"library_args"` // arguments placed before input and output paths
}

// UploadConfig holds configuration for the upload orchestrator
type UploadConfig struct {
	BackendURL        string   `json:"backend_url"`
	CredentialURL     string   `json:"credential_url"` // derived from backend_url when empty
	FallbackURL       string   `json:"fallback_url"`   // derived from backend_url when empty
	DisableFallback   bool     `json:"disable_fallback"`
	OptimizeThreshold int64    `json:"optimize_threshold"`
	CredentialTimeout Duration `json:"credential_timeout"`
	TransferTimeout   Duration `json:"transfer_timeout"`
	FallbackTimeout   Duration `json:"fallback_timeout"`
	MaxAttempts       int      `json:"max_attempts"`
	RetryDelay        Duration `json:"retry_delay"`
}

// ServerConfig holds configuration for the development backend
type ServerConfig struct {
	Addr          string   `json:"addr"`
	PublicURL     string   `json:"public_url"` // base URL handed out in credentials, derived from addr when empty
	DataDir       string   `json:"data_dir"`
	CredentialTTL Duration `json:"credential_ttl"`
	MaxUploadSize int64    `json:"max_upload_size"`
}

// LoggingConfig controls logging verbosity and format
type LoggingConfig struct {
	Level  string `json:"level"`  // debug, info, warn, error
	Format string `json:"format"` // text, json
}

// Duration is a time.Duration written as a string such as "10s"
type Duration time.Duration

// Std returns the value as a time.Duration
func (d Duration) Std() time.Duration { return time.Duration(d) }

func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

func (d *Duration) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		v, err := time.ParseDuration(s)
		if err != nil {
			return fmt.Errorf("invalid duration %q: %w", s, err)
		}
		*d = Duration(v)
		return nil
	}
	var n int64
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("duration must be a string like \"10s\" or nanoseconds")
	}
	*d = Duration(n)
	return nil
}

// Default returns a configuration with default values
func Default() *Config {
	native := compiler.DefaultNativeConfig()
	up := upload.DefaultConfig("http://localhost:8080")
	return &Config{
		Compiler: CompilerConfig{
			MaxDimension: native.MaxDimension,
			MinFeatures:  native.MinFeatures,
			Stride:       native.Features.Stride,
			Threshold:    native.Features.Threshold,
			MaxPoints:    native.Features.Cap,
		},
		Upload: UploadConfig{
			BackendURL:        "http://localhost:8080",
			OptimizeThreshold: up.OptimizeThreshold,
			CredentialTimeout: Duration(up.CredentialTimeout),
			TransferTimeout:   Duration(up.TransferTimeout),
			FallbackTimeout:   Duration(up.FallbackTimeout),
			MaxAttempts:       up.MaxAttempts,
			RetryDelay:        Duration(up.RetryDelay),
		},
		Server: ServerConfig{
			Addr:          ":8080",
			DataDir:       "./data",
			CredentialTTL: Duration(15 * time.Minute),
			MaxUploadSize: 200 << 20,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// LoadFromFile loads configuration from a JSON file. Fields absent from the
// file keep their default values.
func LoadFromFile(filename string) (*Config, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := Default()
	if err := json.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	return config, nil
}

// Load reads filename (GetConfigPath when empty), tolerating a missing file,
// then applies environment overrides and validates the result.
func Load(filename string) (*Config, error) {
	if filename == "" {
		filename = GetConfigPath()
	}

	config, err := LoadFromFile(filename)
	if errors.Is(err, os.ErrNotExist) {
		config = Default()
	} else if err != nil {
		return nil, err
	}

	if err := config.ApplyEnv(); err != nil {
		return nil, err
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

// SaveToFile saves configuration to a JSON file
func (c *Config) SaveToFile(filename string) error {
	dir := filepath.Dir(filename)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(filename, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// ApplyEnv loads the given dotenv files (".env" when none are given, ignored
// if missing) and overlays WEBAR_* variables onto c.
func (c *Config) ApplyEnv(envFiles ...string) error {
	if len(envFiles) == 0 {
		_ = godotenv.Load()
	} else if err := godotenv.Load(envFiles...); err != nil {
		return fmt.Errorf("failed to load env file: %w", err)
	}
	return c.applyEnv(os.LookupEnv)
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	str := func(name string, dst *string) {
		if v, ok := lookup(EnvPrefix + name); ok && v != "" {
			*dst = v
		}
	}
	var errs []error
	num := func(name string, dst *int) {
		if v, ok := lookup(EnvPrefix + name); ok && v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s%s: %w", EnvPrefix, name, err))
				return
			}
			*dst = n
		}
	}
	dur := func(name string, dst *Duration) {
		if v, ok := lookup(EnvPrefix + name); ok && v != "" {
			d, err := time.ParseDuration(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s%s: %w", EnvPrefix, name, err))
				return
			}
			*dst = Duration(d)
		}
	}

	str("BACKEND_URL", &c.Upload.BackendURL)
	num("UPLOAD_MAX_ATTEMPTS", &c.Upload.MaxAttempts)
	dur("UPLOAD_RETRY_DELAY", &c.Upload.RetryDelay)
	dur("UPLOAD_TRANSFER_TIMEOUT", &c.Upload.TransferTimeout)
	str("COMPILER_LIBRARY", &c.Compiler.Library)
	num("COMPILER_MAX_DIMENSION", &c.Compiler.MaxDimension)
	str("SERVER_ADDR", &c.Server.Addr)
	str("SERVER_PUBLIC_URL", &c.Server.PublicURL)
	str("DATA_DIR", &c.Server.DataDir)
	str("LOG_LEVEL", &c.Logging.Level)
	str("LOG_FORMAT", &c.Logging.Format)

	return errors.Join(errs...)
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Compiler.MaxDimension < 1 {
		return fmt.Errorf("compiler.max_dimension must be positive")
	}
	if c.Compiler.MinFeatures < 0 {
		return fmt.Errorf("compiler.min_features must not be negative")
	}
	if err := c.FeaturesConfig().Validate(); err != nil {
		return fmt.Errorf("compiler: %w", err)
	}

	if strings.TrimSpace(c.Upload.BackendURL) == "" && c.Upload.CredentialURL == "" {
		return fmt.Errorf("upload.backend_url or upload.credential_url is required")
	}
	if err := c.UploadConfig().Validate(); err != nil {
		return fmt.Errorf("upload: %w", err)
	}

	if c.Server.Addr == "" {
		return fmt.Errorf("server.addr cannot be empty")
	}
	if c.Server.CredentialTTL <= 0 {
		return fmt.Errorf("server.credential_ttl must be positive")
	}
	if c.Server.MaxUploadSize < 1 {
		return fmt.Errorf("server.max_upload_size must be positive")
	}

	switch strings.ToLower(c.Logging.Level) {
	case "debug", "info", "warn", "warning", "error":
	default:
		return fmt.Errorf("logging.level must be one of debug, info, warn, error")
	}
	switch strings.ToLower(c.Logging.Format) {
	case "text", "json":
	default:
		return fmt.Errorf("logging.format must be text or json")
	}

	return nil
}

// FeaturesConfig converts the compiler section to extractor settings
func (c *Config) FeaturesConfig() features.Config {
	return features.Config{
		Stride:    c.Compiler.Stride,
		Threshold: c.Compiler.Threshold,
		Cap:       c.Compiler.MaxPoints,
	}
}

// NativeConfig converts the compiler section to native compiler settings
func (c *Config) NativeConfig() compiler.NativeConfig {
	return compiler.NativeConfig{
		MaxDimension:     c.Compiler.MaxDimension,
		MinFeatures:      c.Compiler.MinFeatures,
		AllowPlaceholder: c.Compiler.AllowPlaceholder,
		Features:         c.FeaturesConfig(),
	}
}

// UploadConfig converts the upload section to orchestrator settings
func (c *Config) UploadConfig() upload.Config {
	base := strings.TrimSuffix(strings.TrimSpace(c.Upload.BackendURL), "/")
	out := upload.DefaultConfig(base)
	if c.Upload.CredentialURL != "" {
		out.CredentialURL = c.Upload.CredentialURL
	}
	if c.Upload.FallbackURL != "" {
		out.FallbackURL = c.Upload.FallbackURL
	}
	if c.Upload.DisableFallback {
		out.FallbackURL = ""
	}
	out.OptimizeThreshold = c.Upload.OptimizeThreshold
	out.CredentialTimeout = c.Upload.CredentialTimeout.Std()
	out.TransferTimeout = c.Upload.TransferTimeout.Std()
	out.FallbackTimeout = c.Upload.FallbackTimeout.Std()
	out.MaxAttempts = c.Upload.MaxAttempts
	out.RetryDelay = c.Upload.RetryDelay.Std()
	return out
}

// ServerPublicURL returns the base URL the development backend advertises
func (c *Config) ServerPublicURL() string {
	if c.Server.PublicURL != "" {
		return strings.TrimSuffix(c.Server.PublicURL, "/")
	}
	addr := c.Server.Addr
	if strings.HasPrefix(addr, ":") {
		addr = "localhost" + addr
	}
	return "http://" + addr
}

// GetConfigPath returns the default configuration file path. WEBAR_CONFIG
// overrides it.
func GetConfigPath() string {
	if p := os.Getenv(EnvPrefix + "CONFIG"); p != "" {
		return p
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "./config.json"
	}
	return filepath.Join(home, ".config", "webar-studio", "config.json")
}
