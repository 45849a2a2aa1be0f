package ratelimit

import (
	"fmt"
	"os"
	"sort"
	"time"

	"github.com/inkwell/inkwell-api/internal/validation"
	"gopkg.in/yaml.v3"
)

// Tier names used by the HTTP routes.
const (
	TierAPI             = "api"
	TierSearch          = "search"
	TierAuth            = "auth"
	TierAdminMonitoring = "admin-monitoring"
)

// Config is the budget for one tier: at most MaxRequests per Window, after which the key is
// blocked for BlockDuration. A zero BlockDuration rejects until the window ends.
type Config struct {
	Window        time.Duration `json:"window" validate:"gt=0"`
	MaxRequests   int           `json:"max_requests" validate:"min=1"`
	BlockDuration time.Duration `json:"block_duration" validate:"min=0"`
}

// Validate checks the config invariants.
func (c Config) Validate() error {
	if err := validation.Validate.Struct(c); err != nil {
		return fmt.Errorf("invalid rate limit config: %v", validation.FieldErrors(err))
	}
	return nil
}

// Tiers maps a tier name to its budget.
type Tiers map[string]Config

// DefaultTiers returns the built-in budgets.
func DefaultTiers() Tiers {
	return Tiers{
		TierAPI:             {Window: time.Minute, MaxRequests: 100, BlockDuration: 5 * time.Minute},
		TierSearch:          {Window: time.Minute, MaxRequests: 30, BlockDuration: 10 * time.Minute},
		TierAuth:            {Window: 15 * time.Minute, MaxRequests: 10, BlockDuration: 30 * time.Minute},
		TierAdminMonitoring: {Window: time.Minute, MaxRequests: 20, BlockDuration: 5 * time.Minute},
	}
}

// Names returns the tier names in sorted order.
func (t Tiers) Names() []string {
	names := make([]string, 0, len(t))
	for name := range t {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Validate checks every tier.
func (t Tiers) Validate() error {
	if len(t) == 0 {
		return fmt.Errorf("at least one rate limit tier is required")
	}
	for _, name := range t.Names() {
		if !validation.IsTierName(name) {
			return fmt.Errorf("invalid tier name %q", name)
		}
		if err := t[name].Validate(); err != nil {
			return fmt.Errorf("tier %s: %w", name, err)
		}
	}
	return nil
}

type tierFile struct {
	Tiers map[string]tierSpec `yaml:"tiers"`
}

// tierSpec accepts either Go duration strings or millisecond integers.
type tierSpec struct {
	Window          string `yaml:"window"`
	WindowMs        *int64 `yaml:"window_ms"`
	MaxRequests     int    `yaml:"max_requests"`
	BlockDuration   string `yaml:"block_duration"`
	BlockDurationMs *int64 `yaml:"block_duration_ms"`
}

// ParseTiers merges the YAML document in data over base and validates the result.
func ParseTiers(data []byte, base Tiers) (Tiers, error) {
	var doc tierFile
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse rate limit tiers: %w", err)
	}
	out := make(Tiers, len(base)+len(doc.Tiers))
	for name, cfg := range base {
		out[name] = cfg
	}
	for name, spec := range doc.Tiers {
		cfg := out[name]
		window, err := pickDuration(spec.Window, spec.WindowMs, cfg.Window)
		if err != nil {
			return nil, fmt.Errorf("tier %s window: %w", name, err)
		}
		block, err := pickDuration(spec.BlockDuration, spec.BlockDurationMs, cfg.BlockDuration)
		if err != nil {
			return nil, fmt.Errorf("tier %s block_duration: %w", name, err)
		}
		cfg.Window = window
		cfg.BlockDuration = block
		if spec.MaxRequests != 0 {
			cfg.MaxRequests = spec.MaxRequests
		}
		out[name] = cfg
	}
	if err := out.Validate(); err != nil {
		return nil, err
	}
	return out, nil
}

// LoadTiers reads path and merges it over the defaults. An empty path returns the defaults.
func LoadTiers(path string) (Tiers, error) {
	if path == "" {
		return DefaultTiers(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read rate limit tiers: %w", err)
	}
	return ParseTiers(data, DefaultTiers())
}

func pickDuration(s string, ms *int64, fallback time.Duration) (time.Duration, error) {
	switch {
	case s != "":
		return time.ParseDuration(s)
	case ms != nil:
		return time.Duration(*ms) * time.Millisecond, nil
	default:
		return fallback, nil
	}
}
