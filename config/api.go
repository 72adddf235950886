package config

// APIConfig controls the read-only case API served next to /metrics.
type APIConfig struct {
	Enabled bool `json:"enabled"`
	// Token, when set, must be sent as "Authorization: Bearer <token>".
	Token string `json:"token"`
}
