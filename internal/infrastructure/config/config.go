package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds all configuration for the application
type Config struct {
	App           AppConfig         `mapstructure:"app"`
	Server        ServerConfig      `mapstructure:"server"`
	Logger        LoggerConfig      `mapstructure:"logger"`
	Security      SecurityConfig    `mapstructure:"security"`
	Metrics       MetricsConfig     `mapstructure:"metrics"`
	RootDirectory string            `mapstructure:"root_directory" validate:"required"`

	// MIMETypes and Redirects are decoded separately from the raw file, see
	// loadRawMaps.
	MIMETypes map[string]string `mapstructure:"-"`
	Redirects map[string]string `mapstructure:"-"`
	// File is the config file the values were read from, if any.
	File string `mapstructure:"-"`
}

// AppConfig holds application-specific configuration
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Version     string `mapstructure:"version"`
	Environment string `mapstructure:"environment" validate:"oneof=development production test"`
}

// ServerConfig holds the data-plane listener configuration
type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port" validate:"min=1,max=65535"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout" validate:"min=0"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout" validate:"min=0"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" validate:"min=0"`
	MaxRequestBytes int           `mapstructure:"max_request_bytes" validate:"min=64,max=1048576"`
}

// LoggerConfig holds logging configuration
type LoggerConfig struct {
	Level    string `mapstructure:"level" validate:"oneof=debug info warn error dpanic panic fatal"`
	Format   string `mapstructure:"format" validate:"oneof=json console"`
	Output   string `mapstructure:"output" validate:"oneof=stdout file"`
	Filename string `mapstructure:"filename" validate:"required_if=Output file"`
}

// SecurityConfig holds per-client admission limits. Zero disables limiting.
type SecurityConfig struct {
	RateLimitRequests int `mapstructure:"rate_limit_requests" validate:"min=0"`
	RateLimitBurst    int `mapstructure:"rate_limit_burst" validate:"min=0"`
}

// MetricsConfig holds the admin server configuration
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Host    string `mapstructure:"host"`
	Port    int    `mapstructure:"port" validate:"min=1,max=65535"`
}

// Load loads configuration from defaults, the environment and, when path is
// not empty, the JSON file at path.
func Load(path string) (*Config, error) {
	// Load .env file if it exists (ignore errors)
	_ = godotenv.Load()

	v := viper.New()
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setDefaults(v)
	bindEnvVars(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if path != "" {
		raw, err := loadRawMaps(path)
		if err != nil {
			return nil, err
		}
		cfg.Redirects = raw.RedirectMap
		cfg.MIMETypes = raw.MIMETypes
		cfg.File = path
	}
	if cfg.Redirects == nil {
		cfg.Redirects = map[string]string{}
	}

	root, err := resolveRoot(cfg.RootDirectory, path)
	if err != nil {
		return nil, err
	}
	cfg.RootDirectory = root

	// Validate configuration
	if err := validateConfig(&cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	// App defaults
	v.SetDefault("app.name", "rootserve")
	v.SetDefault("app.version", "1.0.0")
	v.SetDefault("app.environment", "development")

	// Server defaults
	v.SetDefault("server.host", "localhost")
	v.SetDefault("server.port", 3000)
	v.SetDefault("server.read_timeout", "10s")
	v.SetDefault("server.write_timeout", "30s")
	v.SetDefault("server.shutdown_timeout", "15s")
	v.SetDefault("server.max_request_bytes", 8192)

	// Content defaults
	v.SetDefault("root_directory", "public")

	// Logger defaults
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "json")
	v.SetDefault("logger.output", "stdout")
	v.SetDefault("logger.filename", "")

	// Security defaults
	v.SetDefault("security.rate_limit_requests", 0)
	v.SetDefault("security.rate_limit_burst", 0)

	// Metrics defaults
	v.SetDefault("metrics.enabled", false)
	v.SetDefault("metrics.host", "localhost")
	v.SetDefault("metrics.port", 9090)
}

func bindEnvVars(v *viper.Viper) {
	// App
	v.BindEnv("app.name", "APP_NAME")
	v.BindEnv("app.version", "APP_VERSION")
	v.BindEnv("app.environment", "APP_ENVIRONMENT")

	// Server
	v.BindEnv("server.host", "SERVER_HOST")
	v.BindEnv("server.port", "SERVER_PORT")
	v.BindEnv("server.read_timeout", "SERVER_READ_TIMEOUT")
	v.BindEnv("server.write_timeout", "SERVER_WRITE_TIMEOUT")
	v.BindEnv("server.shutdown_timeout", "SERVER_SHUTDOWN_TIMEOUT")
	v.BindEnv("server.max_request_bytes", "SERVER_MAX_REQUEST_BYTES")

	// Content
	v.BindEnv("root_directory", "ROOT_DIRECTORY")

	// Logger
	v.BindEnv("logger.level", "LOG_LEVEL")
	v.BindEnv("logger.format", "LOG_FORMAT")
	v.BindEnv("logger.output", "LOG_OUTPUT")
	v.BindEnv("logger.filename", "LOG_FILENAME")

	// Security
	v.BindEnv("security.rate_limit_requests", "RATE_LIMIT_REQUESTS")
	v.BindEnv("security.rate_limit_burst", "RATE_LIMIT_BURST")

	// Metrics
	v.BindEnv("metrics.enabled", "ENABLE_METRICS")
	v.BindEnv("metrics.host", "METRICS_HOST")
	v.BindEnv("metrics.port", "METRICS_PORT")
}

type rawMaps struct {
	RedirectMap map[string]string `json:"redirect_map"`
	MIMETypes   map[string]string `json:"mime_types"`
}

// loadRawMaps decodes redirect_map and mime_types straight from the file.
// Viper lowercases keys and splits them on dots, which would corrupt
// exact-match paths such as "/Old.HTML" and extensions such as ".wasm".
func loadRawMaps(path string) (rawMaps, error) {
	var raw rawMaps

	data, err := os.ReadFile(path)
	if err != nil {
		return raw, fmt.Errorf("failed to read config file: %w", err)
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return raw, fmt.Errorf("failed to decode config file: %w", err)
	}
	if m, ok := fields["redirect_map"]; ok {
		if err := json.Unmarshal(m, &raw.RedirectMap); err != nil {
			return raw, fmt.Errorf("failed to decode redirect_map: %w", err)
		}
	}
	if m, ok := fields["mime_types"]; ok {
		if err := json.Unmarshal(m, &raw.MIMETypes); err != nil {
			return raw, fmt.Errorf("failed to decode mime_types: %w", err)
		}
	}
	return raw, nil
}

// resolveRoot makes a relative root directory absolute, relative to the
// directory of the config file (or the working directory without one).
func resolveRoot(root, configPath string) (string, error) {
	if root == "" {
		return "", nil
	}
	if !filepath.IsAbs(root) && configPath != "" {
		root = filepath.Join(filepath.Dir(configPath), root)
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return "", fmt.Errorf("failed to resolve root directory: %w", err)
	}
	return abs, nil
}

func validateConfig(cfg *Config) error {
	if err := validator.New().Struct(cfg); err != nil {
		return err
	}

	info, err := os.Stat(cfg.RootDirectory)
	if err != nil {
		return fmt.Errorf("root directory: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("root directory %s is not a directory", cfg.RootDirectory)
	}

	for from, to := range cfg.Redirects {
		if from == "" || to == "" {
			return fmt.Errorf("redirect_map entries must not be empty (%q -> %q)", from, to)
		}
	}

	for ext, contentType := range cfg.MIMETypes {
		if strings.TrimPrefix(ext, ".") == "" || contentType == "" {
			return fmt.Errorf("mime_types entries must not be empty (%q -> %q)", ext, contentType)
		}
	}

	return nil
}

// Address returns the data-plane listen address
func (cfg *ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)
}

// Address returns the admin listen address
func (cfg *MetricsConfig) Address() string {
	return fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)
}

// IsDevelopment returns true if the environment is development
func (cfg *AppConfig) IsDevelopment() bool {
	return cfg.Environment == "development"
}
