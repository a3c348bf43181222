package domain

import "time"

// Config represents the application configuration
type Config struct {
	Server    ServerConfig              `mapstructure:"server" yaml:"server"`
	Tools     ToolsConfig               `mapstructure:"tools" yaml:"tools"`
	Download  DownloadConfig            `mapstructure:"download" yaml:"download"`
	Pool      PoolConfig                `mapstructure:"pool" yaml:"pool"`
	Platforms map[string]PlatformConfig `mapstructure:"platforms" yaml:"platforms"`
	Logging   LoggingConfig             `mapstructure:"logging" yaml:"logging"`
}

// ServerConfig contains HTTP server configuration
type ServerConfig struct {
	Host           string        `mapstructure:"host" yaml:"host"`
	Port           int           `mapstructure:"port" yaml:"port"`
	CORSOrigins    []string      `mapstructure:"cors_origins" yaml:"cors_origins"`
	StreamTimeout  time.Duration `mapstructure:"stream_timeout" yaml:"stream_timeout"`
	PreviewTimeout time.Duration `mapstructure:"preview_timeout" yaml:"preview_timeout"`
	ShutdownGrace  time.Duration `mapstructure:"shutdown_grace" yaml:"shutdown_grace"`
}

// ToolsConfig contains external binary configuration
type ToolsConfig struct {
	ExtractorBinary string        `mapstructure:"extractor_binary" yaml:"extractor_binary"`
	ReencoderBinary string        `mapstructure:"reencoder_binary" yaml:"reencoder_binary"`
	ProbeTimeout    time.Duration `mapstructure:"probe_timeout" yaml:"probe_timeout"`
	ProbeTTL        time.Duration `mapstructure:"probe_ttl" yaml:"probe_ttl"`
	UserAgent       string        `mapstructure:"user_agent" yaml:"user_agent"`
	InsecureTLS     bool          `mapstructure:"insecure_tls" yaml:"insecure_tls"` // passes --no-check-certificate
}

// DownloadConfig contains retry policy and scratch directory configuration
type DownloadConfig struct {
	ScratchDir          string        `mapstructure:"scratch_dir" yaml:"scratch_dir"`
	FileExtension       string        `mapstructure:"file_extension" yaml:"file_extension"`
	Proxy               string        `mapstructure:"proxy" yaml:"proxy"`
	CookiesPath         string        `mapstructure:"cookies_path" yaml:"cookies_path"`
	MaxAttempts         int           `mapstructure:"max_attempts" yaml:"max_attempts"`
	RetryBackoff        time.Duration `mapstructure:"retry_backoff" yaml:"retry_backoff"`
	DropProxyOnFailure  bool          `mapstructure:"drop_proxy_on_failure" yaml:"drop_proxy_on_failure"`
	CookiesRequireProxy bool          `mapstructure:"cookies_require_proxy" yaml:"cookies_require_proxy"`
	Retention           time.Duration `mapstructure:"retention" yaml:"retention"`
	ReclaimInterval     time.Duration `mapstructure:"reclaim_interval" yaml:"reclaim_interval"`
	DiagnosticsLines    int           `mapstructure:"diagnostics_lines" yaml:"diagnostics_lines"`
}

// PoolConfig contains worker pool configuration
type PoolConfig struct {
	Size      int `mapstructure:"size" yaml:"size"`
	QueueSize int `mapstructure:"queue_size" yaml:"queue_size"`
}

// PlatformConfig overrides a built-in platform profile. Empty fields keep the built-in value.
type PlatformConfig struct {
	Domains         []string `mapstructure:"domains" yaml:"domains,omitempty"`
	ThumbnailHosts  []string `mapstructure:"thumbnail_hosts" yaml:"thumbnail_hosts,omitempty"`
	Referer         string   `mapstructure:"referer" yaml:"referer,omitempty"`
	Origin          string   `mapstructure:"origin" yaml:"origin,omitempty"`
	Format          string   `mapstructure:"format" yaml:"format,omitempty"`
	PreviewRequires string   `mapstructure:"preview_requires" yaml:"preview_requires,omitempty"` // thumbnail, direct_url
	Reencode        *bool    `mapstructure:"reencode" yaml:"reencode,omitempty"`
}

// LoggingConfig contains logging-related configuration
type LoggingConfig struct {
	Level      string `mapstructure:"level" yaml:"level"`             // debug, info, warn, error
	Format     string `mapstructure:"format" yaml:"format"`           // json, console
	OutputPath string `mapstructure:"output_path" yaml:"output_path"` // stdout, stderr, or file path
}

// DefaultConfig returns a configuration with default values
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:           "localhost",
			Port:           8080,
			CORSOrigins:    []string{"http://localhost:3000"},
			StreamTimeout:  5 * time.Minute,
			PreviewTimeout: 30 * time.Second,
			ShutdownGrace:  60 * time.Second,
		},
		Tools: ToolsConfig{
			ExtractorBinary: "yt-dlp",
			ReencoderBinary: "ffmpeg",
			ProbeTimeout:    5 * time.Second,
			ProbeTTL:        time.Minute,
			UserAgent:       "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/91.0.4472.124 Safari/537.36",
		},
		Download: DownloadConfig{
			ScratchDir:         "$TMPDIR/download-video",
			FileExtension:      ".mp4",
			MaxAttempts:        3,
			RetryBackoff:       time.Second,
			DropProxyOnFailure: true,
			Retention:          24 * time.Hour,
			ReclaimInterval:    time.Hour,
			DiagnosticsLines:   50,
		},
		Pool: PoolConfig{
			Size:      10,
			QueueSize: 100,
		},
		Platforms: map[string]PlatformConfig{},
		Logging: LoggingConfig{
			Level:      "info",
			Format:     "console",
			OutputPath: "stdout",
		},
	}
}
