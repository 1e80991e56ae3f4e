package policy

import (
	"fmt"
	"math"
	"os"

	"gopkg.in/yaml.v3"
)

// Config tunes the decision and learning behavior of the engine. The zero
// value is not usable; start from DefaultConfig and override fields, or
// load a YAML file with LoadConfig.
type Config struct {
	// LearningRate is the α of the incremental update rule
	// Q' = Q + α·(r − Q). Range: (0, 1]. Default: 0.1.
	LearningRate float64 `yaml:"learning_rate"`

	// TieEpsilon is the action-value gap below which two actions count as
	// tied for tie-break purposes. Range: [0, RewardMax−RewardMin).
	// Default: 0.05 on the normalized rating scale.
	TieEpsilon float64 `yaml:"tie_epsilon"`

	// NeutralPrior is the value assumed for a (state, action) cell the
	// first time it receives feedback. Default: 0.5, the midpoint belief.
	NeutralPrior float64 `yaml:"neutral_prior"`

	// RewardMin and RewardMax delimit the normalized rating scale.
	// Rewards and table values outside the range are tolerated but logged
	// as anomalous. Defaults: 0.25 and 1.0.
	RewardMin float64 `yaml:"reward_min"`
	RewardMax float64 `yaml:"reward_max"`
}

// DefaultConfig returns the design-default engine configuration.
func DefaultConfig() Config {
	return Config{
		LearningRate: 0.1,
		TieEpsilon:   0.05,
		NeutralPrior: 0.5,
		RewardMin:    0.25,
		RewardMax:    1.0,
	}
}

// Validate returns an error describing the first invalid field, if any.
func (c Config) Validate() error {
	if c.LearningRate <= 0 || c.LearningRate > 1 ||
		math.IsNaN(c.LearningRate) || math.IsInf(c.LearningRate, 0) {
		return fmt.Errorf("learning_rate must be in (0, 1], got %v", c.LearningRate)
	}
	if !isFinite(c.RewardMin) || !isFinite(c.RewardMax) || c.RewardMin >= c.RewardMax {
		return fmt.Errorf("reward range must satisfy reward_min < reward_max, got [%v, %v]",
			c.RewardMin, c.RewardMax)
	}
	if c.TieEpsilon < 0 || c.TieEpsilon >= c.RewardMax-c.RewardMin ||
		math.IsNaN(c.TieEpsilon) {
		return fmt.Errorf("tie_epsilon must be in [0, %v), got %v",
			c.RewardMax-c.RewardMin, c.TieEpsilon)
	}
	if !isFinite(c.NeutralPrior) {
		return fmt.Errorf("neutral_prior must be finite, got %v", c.NeutralPrior)
	}
	return nil
}

// LoadConfig reads a YAML config file over the defaults: keys absent from
// the file keep their DefaultConfig values. The result is validated.
func LoadConfig(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("reading engine config: %w", err)
	}
	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parsing engine config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("engine config %s: %w", path, err)
	}
	return cfg, nil
}
