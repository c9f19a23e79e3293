package nn

import (
	"encoding/json"
	"fmt"
	"math"
	"os"
)

// Config is the immutable configuration of a normalization layer. Fields a
// variant does not use (Groups outside GroupNorm, the renorm ceilings outside
// BatchRenorm) are carried through Map unchanged.
type Config struct {
	Axis        Axis    `json:"axis"`
	Epsilon     float64 `json:"epsilon"`
	Momentum    float64 `json:"momentum"`
	Center      bool    `json:"center"`
	Scale       bool    `json:"scale"`
	Groups      int     `json:"groups"`
	RMaxCeiling float64 `json:"r_max_ceiling"`
	DMaxCeiling float64 `json:"d_max_ceiling"`
	TDelta      float64 `json:"t_delta"`
	Trainable   bool    `json:"trainable"`
}

// DefaultConfig returns the shared defaults with the feature axis on the
// last dimension.
func DefaultConfig() Config {
	return Config{
		Axis:        AxisAt(-1),
		Epsilon:     1e-3,
		Momentum:    0.99,
		Center:      true,
		Scale:       true,
		Groups:      32,
		RMaxCeiling: 3,
		DMaxCeiling: 5,
		TDelta:      1,
		Trainable:   true,
	}
}

// DefaultInstanceNormConfig normalizes each sample over all of its elements.
func DefaultInstanceNormConfig() Config {
	cfg := DefaultConfig()
	cfg.Axis = NoAxis
	return cfg
}

func DefaultGroupNormConfig(groups int) Config {
	cfg := DefaultConfig()
	cfg.Groups = groups
	return cfg
}

func DefaultBatchRenormConfig() Config {
	return DefaultConfig()
}

// Validate checks the hyperparameters that do not depend on the input shape.
func (c Config) Validate() error {
	if !(c.Epsilon > 0) || math.IsInf(c.Epsilon, 0) {
		return fmt.Errorf("%w: epsilon must be positive, got %g", ErrConfiguration, c.Epsilon)
	}
	if !(c.Momentum > 0 && c.Momentum < 1) {
		return fmt.Errorf("%w: momentum must be in (0, 1), got %g", ErrConfiguration, c.Momentum)
	}
	if !(c.RMaxCeiling >= 1) {
		return fmt.Errorf("%w: r_max ceiling must be >= 1, got %g", ErrConfiguration, c.RMaxCeiling)
	}
	if !(c.DMaxCeiling >= 0) {
		return fmt.Errorf("%w: d_max ceiling must be >= 0, got %g", ErrConfiguration, c.DMaxCeiling)
	}
	if !(c.TDelta > 0) {
		return fmt.Errorf("%w: t_delta must be positive, got %g", ErrConfiguration, c.TDelta)
	}
	return nil
}

// Map exports every field as a flat map. The axis is an int, or nil for
// NoAxis. ConfigFromMap(c.Map()) == c.
func (c Config) Map() map[string]any {
	m := map[string]any{
		"axis":          nil,
		"epsilon":       c.Epsilon,
		"momentum":      c.Momentum,
		"center":        c.Center,
		"scale":         c.Scale,
		"groups":        c.Groups,
		"r_max_ceiling": c.RMaxCeiling,
		"d_max_ceiling": c.DMaxCeiling,
		"t_delta":       c.TDelta,
		"trainable":     c.Trainable,
	}
	if idx, ok := c.Axis.Index(); ok {
		m["axis"] = idx
	}
	return m
}

// ConfigFromMap rebuilds a Config from Map output. Keys that are absent keep
// their DefaultConfig value; numbers may arrive as int or float64 (JSON).
func ConfigFromMap(m map[string]any) (Config, error) {
	cfg := DefaultConfig()
	if raw, ok := m["axis"]; ok {
		if raw == nil {
			cfg.Axis = NoAxis
		} else {
			idx, err := intValue("axis", raw)
			if err != nil {
				return Config{}, err
			}
			cfg.Axis = AxisAt(idx)
		}
	}
	floatFields := map[string]*float64{
		"epsilon":       &cfg.Epsilon,
		"momentum":      &cfg.Momentum,
		"r_max_ceiling": &cfg.RMaxCeiling,
		"d_max_ceiling": &cfg.DMaxCeiling,
		"t_delta":       &cfg.TDelta,
	}
	for key, dst := range floatFields {
		raw, ok := m[key]
		if !ok {
			continue
		}
		v, err := floatValue(key, raw)
		if err != nil {
			return Config{}, err
		}
		*dst = v
	}
	boolFields := map[string]*bool{
		"center":    &cfg.Center,
		"scale":     &cfg.Scale,
		"trainable": &cfg.Trainable,
	}
	for key, dst := range boolFields {
		raw, ok := m[key]
		if !ok {
			continue
		}
		v, ok := raw.(bool)
		if !ok {
			return Config{}, fmt.Errorf("%w: %s must be a bool, got %T", ErrConfiguration, key, raw)
		}
		*dst = v
	}
	if raw, ok := m["groups"]; ok {
		g, err := intValue("groups", raw)
		if err != nil {
			return Config{}, err
		}
		cfg.Groups = g
	}
	return cfg, nil
}

// LoadConfigFile reads a JSON layer config. Missing fields keep defaults.
func LoadConfigFile(path string) (Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return Config{}, err
	}
	cfg := DefaultConfig()
	if err := json.Unmarshal(raw, &cfg); err != nil {
		return Config{}, fmt.Errorf("%w: %s: %v", ErrConfiguration, path, err)
	}
	return cfg, nil
}

func intValue(key string, raw any) (int, error) {
	switch v := raw.(type) {
	case int:
		return v, nil
	case int64:
		return int(v), nil
	case float64:
		if v != math.Trunc(v) {
			return 0, fmt.Errorf("%w: %s must be an integer, got %g", ErrConfiguration, key, v)
		}
		return int(v), nil
	default:
		return 0, fmt.Errorf("%w: %s must be an integer, got %T", ErrConfiguration, key, raw)
	}
}

func floatValue(key string, raw any) (float64, error) {
	switch v := raw.(type) {
	case float64:
		return v, nil
	case int:
		return float64(v), nil
	default:
		return 0, fmt.Errorf("%w: %s must be a number, got %T", ErrConfiguration, key, raw)
	}
}
