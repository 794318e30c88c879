package config

import (
	"os"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Log       LogConfig       `yaml:"log"`
	Minio     MinioConfig     `yaml:"minio"`
	Extractor ExtractorConfig `yaml:"extractor"`
	Analyzer  AnalyzerConfig  `yaml:"analyzer"`
	Audit     AuditConfig     `yaml:"audit"`
	Store     StoreConfig     `yaml:"store"`
	Auth      AuthConfig      `yaml:"auth"`
	Users     []User          `yaml:"users"`
}

type ServerConfig struct {
	Port int `yaml:"port"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

type MinioConfig struct {
	Endpoint   string `yaml:"endpoint"`
	AccessKey  string `yaml:"access_key"`
	SecretKey  string `yaml:"secret_key"`
	Bucket     string `yaml:"bucket"`
	UseSSL     bool   `yaml:"use_ssl"`
	ExpireDays int    `yaml:"expire_days"`
}

// ExtractorConfig configures the external page-extraction backend that
// rasterizes documents and returns per-page text and images.
type ExtractorConfig struct {
	APIURL          string `yaml:"api_url"`
	APIToken        string `yaml:"api_token"`
	PollIntervalSec int    `yaml:"poll_interval_sec"`
	TimeoutSec      int    `yaml:"timeout_sec"`
}

// AnalyzerConfig configures the OpenAI-compatible inference backend
// used to catalog required input fields on NSV pages.
type AnalyzerConfig struct {
	APIURL     string `yaml:"api_url"`
	APIKey     string `yaml:"api_key"`
	Model      string `yaml:"model"`
	TimeoutSec int    `yaml:"timeout_sec"`
	MaxTokens  int    `yaml:"max_tokens"`
}

// AuditConfig tunes the verification pipeline.
type AuditConfig struct {
	TempDir          string `yaml:"temp_dir"`
	PixelThreshold   int    `yaml:"pixel_threshold"`
	DilateIterations int    `yaml:"dilate_iterations"`
	BBoxPadding      int    `yaml:"bbox_padding"`
	// AbortOnDefinitiveFailure stops the pipeline at the first page
	// known to fail irrecoverably instead of auditing the rest.
	AbortOnDefinitiveFailure *bool `yaml:"abort_on_definitive_failure"`
}

type StoreConfig struct {
	MaxVerifications int `yaml:"max_verifications"`
}

type AuthConfig struct {
	JWTSecret        string `yaml:"jwt_secret"`
	TokenExpireHours int    `yaml:"token_expire_hours"`
}

type User struct {
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	Tenant   string `yaml:"tenant"`
}

var GlobalConfig *Config

func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}

	// Set defaults
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Minio.ExpireDays == 0 {
		cfg.Minio.ExpireDays = 7
	}
	if cfg.Auth.TokenExpireHours == 0 {
		cfg.Auth.TokenExpireHours = 24
	}
	if cfg.Extractor.PollIntervalSec == 0 {
		cfg.Extractor.PollIntervalSec = 5
	}
	if cfg.Extractor.TimeoutSec == 0 {
		cfg.Extractor.TimeoutSec = 300
	}
	if cfg.Analyzer.TimeoutSec == 0 {
		cfg.Analyzer.TimeoutSec = 120
	}
	if cfg.Analyzer.MaxTokens == 0 {
		cfg.Analyzer.MaxTokens = 4096
	}
	if cfg.Audit.TempDir == "" {
		cfg.Audit.TempDir = os.TempDir()
	}
	if cfg.Audit.PixelThreshold == 0 {
		cfg.Audit.PixelThreshold = 30
	}
	if cfg.Audit.DilateIterations == 0 {
		cfg.Audit.DilateIterations = 2
	}
	if cfg.Audit.BBoxPadding == 0 {
		cfg.Audit.BBoxPadding = 5
	}
	if cfg.Audit.AbortOnDefinitiveFailure == nil {
		abort := true
		cfg.Audit.AbortOnDefinitiveFailure = &abort
	}
	if cfg.Store.MaxVerifications == 0 {
		cfg.Store.MaxVerifications = 100
	}

	GlobalConfig = &cfg
	return &cfg, nil
}

// FindUser finds a user by username
func (c *Config) FindUser(username string) *User {
	for i := range c.Users {
		if c.Users[i].Username == username {
			return &c.Users[i]
		}
	}
	return nil
}
