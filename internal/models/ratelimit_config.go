package models

import "time"

// RatelimitConfig holds the global flood guard rate in ulule/limiter format (e.g. "50-S", "1000-M").
type RatelimitConfig struct {
	ConfigKey string    `json:"config_key"`
	Rate      string    `json:"rate"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
