package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Telegram     TelegramConfig `yaml:"telegram"`
	LogLevel     string         `yaml:"log_level"`
	SessionFile  string         `yaml:"session_file"`
	SettingsFile string         `yaml:"settings_file"`
	Auth         AuthConfig     `yaml:"auth"`
	Upload       UploadConfig   `yaml:"upload"`
}

// TelegramConfig seeds the settings store on first run.
type TelegramConfig struct {
	APIID   int    `yaml:"api_id"`
	APIHash string `yaml:"api_hash"`
	Phone   string `yaml:"phone"`
}

type AuthConfig struct {
	// CodeTimeout bounds the wait for a login code or second-factor secret.
	CodeTimeout time.Duration `yaml:"code_timeout"`
}

type UploadConfig struct {
	DelaySeconds int    `yaml:"delay_seconds"`
	Concurrency  int    `yaml:"concurrency"`
	CaptionLimit int    `yaml:"caption_limit"`
	WarmDialogs  int    `yaml:"warm_dialogs"`
	FFProbe      string `yaml:"ffprobe"`
}

const DefaultDelaySeconds = 1

func Dir() string {
	cfgDir, err := os.UserConfigDir()
	if err != nil {
		cfgDir = filepath.Join(os.Getenv("HOME"), ".config")
	}
	return filepath.Join(cfgDir, "tg-upload")
}

// Default returns the configuration used when no file exists.
func Default() *Config {
	cfg := &Config{Upload: UploadConfig{DelaySeconds: DefaultDelaySeconds}}
	cfg.applyDefaults(Dir())
	return cfg
}

func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	// Keys absent from the file keep these values; an explicit 0 disables the delay.
	cfg := Config{Upload: UploadConfig{DelaySeconds: DefaultDelaySeconds}}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	cfg.applyDefaults(filepath.Dir(path))
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// LoadOptional is Load, except that a missing file yields defaults rooted
// next to path.
func LoadOptional(path string) (*Config, error) {
	cfg, err := Load(path)
	if errors.Is(err, fs.ErrNotExist) {
		cfg = &Config{Upload: UploadConfig{DelaySeconds: DefaultDelaySeconds}}
		cfg.applyDefaults(filepath.Dir(path))
		return cfg, nil
	}
	return cfg, err
}

func (c *Config) applyDefaults(dir string) {
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if c.SessionFile == "" {
		c.SessionFile = filepath.Join(dir, "session.json")
	}
	if c.SettingsFile == "" {
		c.SettingsFile = filepath.Join(dir, "settings.json")
	}
	if c.Auth.CodeTimeout == 0 {
		c.Auth.CodeTimeout = 120 * time.Second
	}
	if c.Upload.Concurrency == 0 {
		c.Upload.Concurrency = 4
	}
	if c.Upload.CaptionLimit == 0 {
		c.Upload.CaptionLimit = 1024
	}
	if c.Upload.WarmDialogs == 0 {
		c.Upload.WarmDialogs = 100
	}
	if c.Upload.FFProbe == "" {
		c.Upload.FFProbe = "ffprobe"
	}
}

func (c *Config) validate() error {
	if c.Upload.DelaySeconds < 0 {
		return fmt.Errorf("upload.delay_seconds must not be negative")
	}
	switch c.Upload.Concurrency {
	case 1, 4, 8:
	default:
		return fmt.Errorf("upload.concurrency must be 1, 4 or 8, got %d", c.Upload.Concurrency)
	}
	if c.Auth.CodeTimeout < 0 {
		return fmt.Errorf("auth.code_timeout must not be negative")
	}
	return nil
}
