package gateway

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/goccy/go-yaml"

	"github.com/haivivi/scribe/pkg/archive"
	"github.com/haivivi/scribe/pkg/sauc"
)

const (
	defaultListen      = ":8000"
	defaultDataDir     = "./data"
	defaultIdleSeconds = 300
)

// Config is the scribed configuration, loaded from YAML with environment
// overrides. Environment variables win over file values.
type Config struct {
	Listen                     string            `yaml:"listen"`
	DataDir                    string            `yaml:"data_dir"`
	TranscribeWSIdleTimeoutSec int               `yaml:"transcribe_ws_idle_timeout_sec"`
	Volcengine                 VolcengineConfig  `yaml:"volcengine"`
	S3                         *archive.S3Config `yaml:"s3"`
}

// VolcengineConfig carries the upstream recognition and Ark rewrite
// credentials.
type VolcengineConfig struct {
	AppKey     string `yaml:"app_key"`
	AccessKey  string `yaml:"access_key"`
	ResourceID string `yaml:"resource_id"`
	ArkAPIKey  string `yaml:"ark_api_key"`
	ArkModelID string `yaml:"ark_model_id"`
}

// Load reads the config file at path and applies environment overrides.
// An empty path skips the file and uses defaults plus environment.
func Load(path string) (*Config, error) {
	cfg := &Config{
		Listen:                     defaultListen,
		DataDir:                    defaultDataDir,
		TranscribeWSIdleTimeoutSec: defaultIdleSeconds,
		Volcengine: VolcengineConfig{
			ResourceID: sauc.DefaultResourceID,
		},
	}
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("gateway: read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("gateway: parse %s: %w", path, err)
		}
	}
	cfg.applyEnv()
	if cfg.TranscribeWSIdleTimeoutSec <= 0 {
		cfg.TranscribeWSIdleTimeoutSec = defaultIdleSeconds
	}
	if cfg.Volcengine.ResourceID == "" {
		cfg.Volcengine.ResourceID = sauc.DefaultResourceID
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	setString := func(dst *string, key string) {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}
	setString(&c.Listen, "SCRIBE_LISTEN")
	setString(&c.DataDir, "SCRIBE_DATA_DIR")
	setString(&c.Volcengine.AppKey, "VOLC_APP_KEY")
	setString(&c.Volcengine.AccessKey, "VOLC_ACCESS_KEY")
	setString(&c.Volcengine.ResourceID, "VOLC_RESOURCE_ID")
	setString(&c.Volcengine.ArkAPIKey, "ARK_API_KEY")
	setString(&c.Volcengine.ArkModelID, "ARK_MODEL_ID")
	if v := os.Getenv("SCRIBE_WS_IDLE_TIMEOUT_SEC"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.TranscribeWSIdleTimeoutSec = n
		} else {
			slog.Warn("gateway: ignoring bad SCRIBE_WS_IDLE_TIMEOUT_SEC", "value", v)
		}
	}
}

// IdleTimeout returns the default streaming-session idle timeout.
func (c *Config) IdleTimeout() time.Duration {
	return time.Duration(c.TranscribeWSIdleTimeoutSec) * time.Second
}

// RecordsDir is where the badger record store lives.
func (c *Config) RecordsDir() string {
	return filepath.Join(c.DataDir, "records")
}

// UploadsDir is where the local upload archive lives.
func (c *Config) UploadsDir() string {
	return filepath.Join(c.DataDir, "uploads")
}
