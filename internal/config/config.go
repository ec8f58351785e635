package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"strconv"

	"github.com/spf13/viper"
)

// Config represents the complete riq configuration (v1 schema)
type Config struct {
	Version  int    `json:"version" mapstructure:"version"`
	RepoRoot string `json:"repoRoot" mapstructure:"repoRoot"`

	Analysis   AnalysisConfig   `json:"analysis" mapstructure:"analysis"`
	Cache      CacheConfig      `json:"cache" mapstructure:"cache"`
	Estimation EstimationConfig `json:"estimation" mapstructure:"estimation"`
	Server     ServerConfig     `json:"server" mapstructure:"server"`
	Logging    LoggingConfig    `json:"logging" mapstructure:"logging"`
}

// AnalysisConfig bounds the cost of a repository walk and fact extraction
type AnalysisConfig struct {
	MaxFilesPerCategory int      `json:"maxFilesPerCategory" mapstructure:"maxFilesPerCategory"`
	MaxFileSizeBytes    int64    `json:"maxFileSizeBytes" mapstructure:"maxFileSizeBytes"`
	SampleEvery         int      `json:"sampleEvery" mapstructure:"sampleEvery"`
	DetectorTimeoutMs   int      `json:"detectorTimeoutMs" mapstructure:"detectorTimeoutMs"`
	Exclude             []string `json:"exclude" mapstructure:"exclude"`
}

// CacheConfig contains analysis cache configuration
type CacheConfig struct {
	Enabled          bool   `json:"enabled" mapstructure:"enabled"`
	TtlSeconds       int    `json:"ttlSeconds" mapstructure:"ttlSeconds"`
	MaxMemoryEntries int    `json:"maxMemoryEntries" mapstructure:"maxMemoryEntries"`
	Path             string `json:"path" mapstructure:"path"`
	Compression      bool   `json:"compression" mapstructure:"compression"`
}

// EstimationConfig carries the effort bucket thresholds. Scores below
// SmallMax land in S, below MediumMax in M, below LargeMax in L, above in XL.
type EstimationConfig struct {
	SmallMax  float64 `json:"smallMax" mapstructure:"smallMax"`
	MediumMax float64 `json:"mediumMax" mapstructure:"mediumMax"`
	LargeMax  float64 `json:"largeMax" mapstructure:"largeMax"`
}

// ServerConfig contains the HTTP status server configuration
type ServerConfig struct {
	Host      string `json:"host" mapstructure:"host"`
	Port      int    `json:"port" mapstructure:"port"`
	TokenFile string `json:"tokenFile" mapstructure:"tokenFile"`
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Format string `json:"format" mapstructure:"format"`
	Level  string `json:"level" mapstructure:"level"`
}

// DefaultConfig returns the default configuration
func DefaultConfig() *Config {
	return &Config{
		Version:  1,
		RepoRoot: ".",
		Analysis: AnalysisConfig{
			MaxFilesPerCategory: 300,
			MaxFileSizeBytes:    1 << 20,
			SampleEvery:         0,
			DetectorTimeoutMs:   30000,
			Exclude:             []string{},
		},
		Cache: CacheConfig{
			Enabled:          true,
			TtlSeconds:       3600,
			MaxMemoryEntries: 256,
			Path:             ".riq/cache/riq.db",
			Compression:      true,
		},
		Estimation: EstimationConfig{
			SmallMax:  10,
			MediumMax: 25,
			LargeMax:  50,
		},
		Server: ServerConfig{
			Host:      "localhost",
			Port:      9310,
			TokenFile: ".riq/token",
		},
		Logging: LoggingConfig{
			Format: "human",
			Level:  "info",
		},
	}
}

// LoadConfig loads configuration from .riq/config.json
func LoadConfig(repoRoot string) (*Config, error) {
	v := viper.New()

	// Set defaults
	v.SetDefault("version", 1)
	v.SetDefault("repoRoot", ".")

	// Configure viper
	v.SetConfigName("config")
	v.SetConfigType("json")
	v.AddConfigPath(filepath.Join(repoRoot, ".riq"))

	// Read config file
	if err := v.ReadInConfig(); err != nil {
		// If config doesn't exist, return default config
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return DefaultConfig(), nil
		}
		return nil, err
	}

	// Unmarshal into config struct, starting from defaults so absent
	// sections keep their default values
	cfg := DefaultConfig()
	if err := v.Unmarshal(cfg); err != nil {
		return nil, err
	}

	applyEnvOverrides(cfg)
	return cfg, nil
}

// EnvOverride records one environment variable applied over the file config
type EnvOverride struct {
	Variable string
	Field    string
	Value    string
}

type envSetter struct {
	field string
	apply func(cfg *Config, raw string) bool
}

// envVarMappings enumerates the RIQ_* variables recognized on top of the
// config file. Invalid values are skipped, keeping the file/default value.
var envVarMappings = map[string]envSetter{
	"RIQ_LOG_LEVEL": {"logging.level", func(cfg *Config, raw string) bool {
		cfg.Logging.Level = raw
		return true
	}},
	"RIQ_LOG_FORMAT": {"logging.format", func(cfg *Config, raw string) bool {
		cfg.Logging.Format = raw
		return true
	}},
	"RIQ_CACHE_ENABLED": {"cache.enabled", func(cfg *Config, raw string) bool {
		b, err := strconv.ParseBool(raw)
		if err != nil {
			return false
		}
		cfg.Cache.Enabled = b
		return true
	}},
	"RIQ_CACHE_TTL_SECONDS": {"cache.ttlSeconds", func(cfg *Config, raw string) bool {
		n, err := strconv.Atoi(raw)
		if err != nil {
			return false
		}
		cfg.Cache.TtlSeconds = n
		return true
	}},
	"RIQ_MAX_FILES_PER_CATEGORY": {"analysis.maxFilesPerCategory", func(cfg *Config, raw string) bool {
		n, err := strconv.Atoi(raw)
		if err != nil {
			return false
		}
		cfg.Analysis.MaxFilesPerCategory = n
		return true
	}},
	"RIQ_MAX_FILE_SIZE_BYTES": {"analysis.maxFileSizeBytes", func(cfg *Config, raw string) bool {
		n, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return false
		}
		cfg.Analysis.MaxFileSizeBytes = n
		return true
	}},
	"RIQ_DETECTOR_TIMEOUT_MS": {"analysis.detectorTimeoutMs", func(cfg *Config, raw string) bool {
		n, err := strconv.Atoi(raw)
		if err != nil {
			return false
		}
		cfg.Analysis.DetectorTimeoutMs = n
		return true
	}},
	"RIQ_SERVER_HOST": {"server.host", func(cfg *Config, raw string) bool {
		cfg.Server.Host = raw
		return true
	}},
	"RIQ_SERVER_PORT": {"server.port", func(cfg *Config, raw string) bool {
		n, err := strconv.Atoi(raw)
		if err != nil {
			return false
		}
		cfg.Server.Port = n
		return true
	}},
	"RIQ_TOKEN_FILE": {"server.tokenFile", func(cfg *Config, raw string) bool {
		cfg.Server.TokenFile = raw
		return true
	}},
}

func applyEnvOverrides(cfg *Config) []EnvOverride {
	var applied []EnvOverride
	for name, setter := range envVarMappings {
		raw, ok := os.LookupEnv(name)
		if !ok || raw == "" {
			continue
		}
		if setter.apply(cfg, raw) {
			applied = append(applied, EnvOverride{Variable: name, Field: setter.field, Value: raw})
		}
	}
	sort.Slice(applied, func(i, j int) bool { return applied[i].Variable < applied[j].Variable })
	return applied
}

// GetSupportedEnvVars returns the environment variables riq honors, sorted.
func GetSupportedEnvVars() []string {
	vars := make([]string, 0, len(envVarMappings))
	for name := range envVarMappings {
		vars = append(vars, name)
	}
	sort.Strings(vars)
	return vars
}

// Save writes the configuration to .riq/config.json
func (c *Config) Save(repoRoot string) error {
	configDir := filepath.Join(repoRoot, ".riq")
	if err := os.MkdirAll(configDir, 0o755); err != nil {
		return err
	}
	configPath := filepath.Join(configDir, "config.json")

	// Marshal to JSON with indentation
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return err
	}

	// Write to file
	return os.WriteFile(configPath, data, 0o644)
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Version != 1 {
		return &ConfigError{Field: "version", Message: "unsupported config version"}
	}
	if c.Analysis.MaxFilesPerCategory <= 0 {
		return &ConfigError{Field: "analysis.maxFilesPerCategory", Message: "must be positive"}
	}
	if c.Analysis.MaxFileSizeBytes <= 0 {
		return &ConfigError{Field: "analysis.maxFileSizeBytes", Message: "must be positive"}
	}
	if c.Analysis.SampleEvery < 0 {
		return &ConfigError{Field: "analysis.sampleEvery", Message: "must not be negative"}
	}
	if c.Cache.TtlSeconds < 0 {
		return &ConfigError{Field: "cache.ttlSeconds", Message: "must not be negative"}
	}
	// Bucket thresholds must stay strictly ascending or bucketing loses monotonicity
	if c.Estimation.SmallMax <= 0 {
		return &ConfigError{Field: "estimation.smallMax", Message: "must be positive"}
	}
	if c.Estimation.MediumMax <= c.Estimation.SmallMax {
		return &ConfigError{Field: "estimation.mediumMax", Message: "must be greater than smallMax"}
	}
	if c.Estimation.LargeMax <= c.Estimation.MediumMax {
		return &ConfigError{Field: "estimation.largeMax", Message: "must be greater than mediumMax"}
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return &ConfigError{Field: "server.port", Message: "must be a valid TCP port"}
	}
	return nil
}

// ConfigError represents a configuration error
type ConfigError struct {
	Field   string
	Message string
}

func (e *ConfigError) Error() string {
	return "config error in field '" + e.Field + "': " + e.Message
}
