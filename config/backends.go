package config

import (
	"fmt"
	"os"
)

// Backend names.
const (
	BackendMemory = "memory"
	BackendSQL    = "sql"
	BackendRedis  = "redis"
)

// StoreConfig selects where entities live.
type StoreConfig struct {
	// Backend is memory or sql.
	Backend string `json:"backend"`
	// Migrate applies the SQL schema when the service starts.
	Migrate bool `json:"migrate"`
}

func (c *StoreConfig) SetDefaults() {
	if c.Backend == "" {
		c.Backend = BackendMemory
	}
}

func (c StoreConfig) Validate() error {
	if c.Backend != BackendMemory && c.Backend != BackendSQL {
		return fmt.Errorf("store: unknown backend %q", c.Backend)
	}
	return nil
}

// QueueConfig selects the deadline index and lock backend.
type QueueConfig struct {
	// Backend is memory or redis.
	Backend string `json:"backend"`
}

func (c *QueueConfig) SetDefaults() {
	if c.Backend == "" {
		c.Backend = BackendMemory
	}
}

func (c QueueConfig) Validate() error {
	if c.Backend != BackendMemory && c.Backend != BackendRedis {
		return fmt.Errorf("queue: unknown backend %q", c.Backend)
	}
	return nil
}

// Predictor types.
const (
	PredictionNone   = "none"
	PredictionLinear = "linear"
)

// PredictionConfig enables the external score contribution.
type PredictionConfig struct {
	Type      string  `json:"type"`
	ModelPath string  `json:"model_path"`
	Weight    float64 `json:"weight"`
}

func (c *PredictionConfig) SetDefaults() {
	if c.Type == "" {
		c.Type = PredictionNone
	}
	if c.Type == PredictionLinear && c.Weight == 0 {
		c.Weight = 0.1
	}
}

func (c PredictionConfig) Validate() error {
	switch c.Type {
	case PredictionNone:
		return nil
	case PredictionLinear:
		if c.ModelPath == "" {
			return fmt.Errorf("prediction: model_path is required")
		}
		if _, err := os.Stat(c.ModelPath); err != nil {
			return fmt.Errorf("prediction: %w", err)
		}
		return nil
	default:
		return fmt.Errorf("prediction: unknown type %q", c.Type)
	}
}
