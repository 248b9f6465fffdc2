package config

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server ServerConfig `mapstructure:"server"`
	Data   DataConfig   `mapstructure:"data"`
	Gemini GeminiConfig `mapstructure:"gemini"`
	Lock   LockConfig   `mapstructure:"lock"`
	Redis  RedisConfig  `mapstructure:"redis"`
	Log    LogConfig    `mapstructure:"log"`
}

type ServerConfig struct {
	Port        int    `mapstructure:"port"`
	StaticDir   string `mapstructure:"static_dir"`
	MaxUploadMB int64  `mapstructure:"max_upload_mb"`
}

type DataConfig struct {
	Dir            string `mapstructure:"dir"`
	CampaignsFile  string `mapstructure:"campaigns_file"`
	PersonsFile    string `mapstructure:"persons_file"`
	ArtifactsDir   string `mapstructure:"artifacts_dir"`
	ArtifactPrefix string `mapstructure:"artifact_prefix"`
}

type GeminiConfig struct {
	APIKey  string        `mapstructure:"api_key"`
	Model   string        `mapstructure:"model"`
	Timeout time.Duration `mapstructure:"timeout"`
}

type LockConfig struct {
	// Backend is "local" for an in-process mutex or "redis".
	Backend string        `mapstructure:"backend"`
	Timeout time.Duration `mapstructure:"timeout"`
}

type RedisConfig struct {
	Address    string        `mapstructure:"address"`
	Password   string        `mapstructure:"password"`
	DB         int           `mapstructure:"db"`
	LockTTL    time.Duration `mapstructure:"lock_ttl"`
	Retries    int           `mapstructure:"retries"`
	RetryDelay time.Duration `mapstructure:"retry_delay"`
}

type LogConfig struct {
	File    string `mapstructure:"file"`
	Verbose bool   `mapstructure:"verbose"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8000)
	v.SetDefault("server.static_dir", "public")
	v.SetDefault("server.max_upload_mb", 20)

	v.SetDefault("data.dir", ".")
	v.SetDefault("data.campaigns_file", "actions.json")
	v.SetDefault("data.persons_file", "personendaten.json")
	v.SetDefault("data.artifacts_dir", "saved_data")
	v.SetDefault("data.artifact_prefix", "gzg")

	v.SetDefault("gemini.api_key", "")
	v.SetDefault("gemini.model", "gemini-2.5-flash")
	v.SetDefault("gemini.timeout", 2*time.Minute)

	v.SetDefault("lock.backend", "local")
	v.SetDefault("lock.timeout", 10*time.Second)

	v.SetDefault("redis.address", "localhost:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.lock_ttl", 30*time.Second)
	v.SetDefault("redis.retries", 50)
	v.SetDefault("redis.retry_delay", 100*time.Millisecond)

	v.SetDefault("log.file", "")
	v.SetDefault("log.verbose", false)
}

// Load reads configuration from the optional file at configPath, then
// applies RECEIPTS_* environment overrides. PORT and GEMINI_API_KEY are
// honoured as well.
func Load(configPath string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("RECEIPTS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	if err := v.BindEnv("server.port", "RECEIPTS_SERVER_PORT", "PORT"); err != nil {
		return nil, fmt.Errorf("failed to bind env: %w", err)
	}
	if err := v.BindEnv("gemini.api_key", "RECEIPTS_GEMINI_API_KEY", "GEMINI_API_KEY"); err != nil {
		return nil, fmt.Errorf("failed to bind env: %w", err)
	}

	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	switch c.Lock.Backend {
	case "local", "redis":
	default:
		return fmt.Errorf("unknown lock backend %q", c.Lock.Backend)
	}
	if c.Server.Port <= 0 {
		return fmt.Errorf("invalid server port %d", c.Server.Port)
	}
	return nil
}

// CampaignsPath is the campaign collection file.
func (d DataConfig) CampaignsPath() string {
	return d.resolve(d.CampaignsFile)
}

// PersonsPath is the person registry file.
func (d DataConfig) PersonsPath() string {
	return d.resolve(d.PersonsFile)
}

// ArtifactsPath is the directory holding contribution artifacts.
func (d DataConfig) ArtifactsPath() string {
	return d.resolve(d.ArtifactsDir)
}

func (d DataConfig) resolve(p string) string {
	if filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(d.Dir, p)
}
