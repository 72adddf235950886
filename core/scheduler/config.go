package scheduler

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config defines when the workload reset runs.
type Config struct {
	// Hour of the day (0-23) at which workloads are reset.
	ResetHour int `json:"reset_hour" yaml:"reset_hour"`
	// Timezone is an IANA name. Empty means UTC.
	Timezone string `json:"timezone" yaml:"timezone"`
	// Hospitals restricts the reset. Empty resets every hospital.
	Hospitals []string `json:"hospitals" yaml:"hospitals"`
	Disabled  bool     `json:"disabled" yaml:"disabled"`
}

// Validate checks the hour and resolves the time zone.
func (c Config) Validate() error {
	if c.ResetHour < 0 || c.ResetHour > 23 {
		return fmt.Errorf("reset_hour %d outside 0-23", c.ResetHour)
	}
	if _, err := c.Location(); err != nil {
		return err
	}
	return nil
}

// Location returns the configured time zone.
func (c Config) Location() (*time.Location, error) {
	if c.Timezone == "" {
		return time.UTC, nil
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, fmt.Errorf("timezone %q: %w", c.Timezone, err)
	}
	return loc, nil
}

// LoadConfig loads Config from a JSON or YAML file.
func LoadConfig(path string) (Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return Config{}, err
	}
	defer f.Close()
	ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(path)), ".")
	return DecodeConfig(f, ext)
}

// DecodeConfig reads from r to decode a Config.
func DecodeConfig(r io.Reader, format string) (Config, error) {
	var cfg Config
	switch strings.ToLower(format) {
	case "yaml", "yml":
		if err := yaml.NewDecoder(r).Decode(&cfg); err != nil {
			return cfg, err
		}
	case "json":
		if err := json.NewDecoder(r).Decode(&cfg); err != nil {
			return cfg, err
		}
	default:
		return cfg, fmt.Errorf("unsupported format: %s", format)
	}
	return cfg, cfg.Validate()
}
