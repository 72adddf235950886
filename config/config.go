package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/knadh/koanf/parsers/json"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"github.com/kilianp07/medqueue/core/dispatch"
	"github.com/kilianp07/medqueue/core/factory"
	"github.com/kilianp07/medqueue/core/metrics"
	"github.com/kilianp07/medqueue/core/scheduler"
	"github.com/kilianp07/medqueue/infra/redisqueue"
	"github.com/kilianp07/medqueue/infra/sqlstore"
)

type Config struct {
	Redis        redisqueue.Config    `json:"redis"`
	Database     sqlstore.Config      `json:"database"`
	Store        StoreConfig          `json:"store"`
	Queue        QueueConfig          `json:"queue"`
	Dispatch     dispatch.Config      `json:"dispatch"`
	Housekeeping scheduler.Config     `json:"housekeeping"`
	Metrics      metrics.Config       `json:"metrics"`
	Logging      LoggingConfig        `json:"logging"`
	Sentry       SentryConfig         `json:"sentry"`
	Notify       factory.ModuleConfig `json:"notify"`
	API          APIConfig            `json:"api"`
	Prediction   PredictionConfig     `json:"prediction"`
}

// Load reads the file at path, applies K_ environment overrides (K_REDIS__ADDR
// sets redis.addr) and validates every section. An empty path loads defaults
// and the environment only.
func Load(path string) (*Config, error) {
	k := koanf.New(".")
	if path != "" {
		ext := strings.ToLower(filepath.Ext(path))
		var parser koanf.Parser
		switch ext {
		case ".yaml", ".yml":
			parser = yaml.Parser()
		case ".json":
			parser = json.Parser()
		default:
			return nil, fmt.Errorf("unsupported config format: %s", ext)
		}
		if err := k.Load(file.Provider(path), parser); err != nil {
			return nil, err
		}
	}
	// Optional environment overrides
	if err := k.Load(env.Provider("K_", "__", func(s string) string {
		s = strings.TrimPrefix(strings.ToLower(s), "k_")
		return strings.ReplaceAll(s, "__", ".")
	}), nil); err != nil {
		return nil, err
	}
	var cfg Config
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "json"}); err != nil {
		return nil, err
	}
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// SetDefaults fills every section.
func (c *Config) SetDefaults() {
	c.Store.SetDefaults()
	c.Queue.SetDefaults()
	if c.Store.Backend == BackendSQL {
		c.Database.SetDefaults()
	}
	if c.Queue.Backend == BackendRedis {
		c.Redis.SetDefaults()
	}
	c.Dispatch.SetDefaults()
	c.Logging.SetDefaults()
	c.Prediction.SetDefaults()
}

// Validate joins the errors of every section.
func (c *Config) Validate() error {
	errs := []error{
		c.Store.Validate(),
		c.Queue.Validate(),
		c.Dispatch.Validate(),
		c.Housekeeping.Validate(),
		c.Logging.Validate(),
		c.Prediction.Validate(),
	}
	if c.Store.Backend == BackendSQL {
		errs = append(errs, c.Database.Validate())
	}
	if c.API.Enabled && c.Metrics.PrometheusAddr == "" {
		errs = append(errs, errors.New("api: requires metrics.prometheus_addr"))
	}
	if c.Queue.Backend == BackendRedis && c.Redis.Addr == "" {
		errs = append(errs, errors.New("redis: addr is required"))
	}
	return errors.Join(errs...)
}
