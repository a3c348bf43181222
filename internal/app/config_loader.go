package app

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"

	"github.com/nhdinh03/Download-Video/internal/domain"
)

// EnvPrefix prefixes every environment override, e.g. DLVIDEO_POOL_SIZE
const EnvPrefix = "DLVIDEO"

// LoadConfig loads configuration from file and environment
func LoadConfig(configPath string) (*domain.Config, error) {
	// Start with default config
	config := domain.DefaultConfig()

	v := viper.New()
	v.SetConfigType("yaml")

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.AddConfigPath("./configs")
		v.AddConfigPath("$HOME/.download-video")
		v.AddConfigPath("/etc/download-video")
	}

	// Defaults make every key visible to AutomaticEnv
	setDefaults(v, config)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		// Config file not found, use defaults
	}

	if err := v.Unmarshal(config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	config = expandPaths(config)

	if err := validateConfig(config); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return config, nil
}

func setDefaults(v *viper.Viper, config *domain.Config) {
	v.SetDefault("server.host", config.Server.Host)
	v.SetDefault("server.port", config.Server.Port)
	v.SetDefault("server.cors_origins", config.Server.CORSOrigins)
	v.SetDefault("server.stream_timeout", config.Server.StreamTimeout)
	v.SetDefault("server.preview_timeout", config.Server.PreviewTimeout)
	v.SetDefault("server.shutdown_grace", config.Server.ShutdownGrace)

	v.SetDefault("tools.extractor_binary", config.Tools.ExtractorBinary)
	v.SetDefault("tools.reencoder_binary", config.Tools.ReencoderBinary)
	v.SetDefault("tools.probe_timeout", config.Tools.ProbeTimeout)
	v.SetDefault("tools.probe_ttl", config.Tools.ProbeTTL)
	v.SetDefault("tools.user_agent", config.Tools.UserAgent)
	v.SetDefault("tools.insecure_tls", config.Tools.InsecureTLS)

	v.SetDefault("download.scratch_dir", config.Download.ScratchDir)
	v.SetDefault("download.file_extension", config.Download.FileExtension)
	v.SetDefault("download.proxy", config.Download.Proxy)
	v.SetDefault("download.cookies_path", config.Download.CookiesPath)
	v.SetDefault("download.max_attempts", config.Download.MaxAttempts)
	v.SetDefault("download.retry_backoff", config.Download.RetryBackoff)
	v.SetDefault("download.drop_proxy_on_failure", config.Download.DropProxyOnFailure)
	v.SetDefault("download.cookies_require_proxy", config.Download.CookiesRequireProxy)
	v.SetDefault("download.retention", config.Download.Retention)
	v.SetDefault("download.reclaim_interval", config.Download.ReclaimInterval)
	v.SetDefault("download.diagnostics_lines", config.Download.DiagnosticsLines)

	v.SetDefault("pool.size", config.Pool.Size)
	v.SetDefault("pool.queue_size", config.Pool.QueueSize)

	v.SetDefault("logging.level", config.Logging.Level)
	v.SetDefault("logging.format", config.Logging.Format)
	v.SetDefault("logging.output_path", config.Logging.OutputPath)
}

// expandPaths expands environment variables in path configurations
func expandPaths(config *domain.Config) *domain.Config {
	config.Download.ScratchDir = expandPath(config.Download.ScratchDir)
	config.Download.CookiesPath = expandPath(config.Download.CookiesPath)

	if config.Logging.OutputPath != "stdout" && config.Logging.OutputPath != "stderr" {
		config.Logging.OutputPath = expandPath(config.Logging.OutputPath)
	}

	return config
}

// expandPath expands environment variables and ~ in paths. $TMPDIR falls back
// to the platform temp directory when unset.
func expandPath(path string) string {
	path = os.Expand(path, func(key string) string {
		if key == "TMPDIR" {
			if dir := os.Getenv(key); dir != "" {
				return strings.TrimSuffix(dir, string(os.PathSeparator))
			}
			return strings.TrimSuffix(os.TempDir(), string(os.PathSeparator))
		}
		return os.Getenv(key)
	})

	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err == nil {
			path = filepath.Join(home, path[2:])
		}
	}

	return path
}

// validateConfig validates the configuration
func validateConfig(config *domain.Config) error {
	if config.Server.Port < 1 || config.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", config.Server.Port)
	}

	if config.Server.StreamTimeout <= 0 || config.Server.PreviewTimeout <= 0 {
		return fmt.Errorf("stream and preview timeouts must be positive")
	}

	if config.Tools.ExtractorBinary == "" {
		return fmt.Errorf("extractor binary not configured")
	}

	if config.Download.ScratchDir == "" {
		return fmt.Errorf("scratch directory not configured")
	}

	if config.Download.MaxAttempts < 1 {
		return fmt.Errorf("max attempts must be at least 1")
	}

	if config.Download.RetryBackoff < 0 {
		return fmt.Errorf("retry backoff cannot be negative")
	}

	if config.Download.Retention <= 0 || config.Download.ReclaimInterval <= 0 {
		return fmt.Errorf("retention and reclaim interval must be positive")
	}

	if config.Pool.Size < 1 {
		return fmt.Errorf("pool size must be at least 1")
	}

	if config.Pool.QueueSize < 0 {
		return fmt.Errorf("pool queue size cannot be negative")
	}

	if config.Logging.Level == "" {
		config.Logging.Level = "info"
	}

	return nil
}

// SaveConfig saves configuration to file
func SaveConfig(config *domain.Config, path string) error {
	v := viper.New()
	v.SetConfigType("yaml")

	v.Set("server", config.Server)
	v.Set("tools", config.Tools)
	v.Set("download", config.Download)
	v.Set("pool", config.Pool)
	v.Set("platforms", config.Platforms)
	v.Set("logging", config.Logging)

	// Ensure directory exists
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	if err := v.WriteConfigAs(path); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}
