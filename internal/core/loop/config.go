package loop

import (
	"errors"
	"fmt"
	"math"

	"gopkg.in/yaml.v3"
)

// Config describes one loop instance.
type Config struct {
	Name       string  `json:"name" yaml:"name"`
	UpdateRate int     `json:"update_rate" yaml:"update_rate"`
	TimeScale  float64 `json:"time_scale" yaml:"time_scale"`
}

// DefaultConfig returns a 60 ticks/s loop named "main" at normal speed.
func DefaultConfig() Config {
	return Config{
		Name:       "main",
		UpdateRate: 60,
		TimeScale:  1.0,
	}
}

// Validate returns every problem with the config joined together.
func (c Config) Validate() error {
	var errs []error
	if c.Name == "" {
		errs = append(errs, ErrMissingName)
	}
	if c.UpdateRate <= 0 {
		errs = append(errs, fmt.Errorf("%w: got %d", ErrInvalidUpdateRate, c.UpdateRate))
	}
	if !validTimeScale(c.TimeScale) {
		errs = append(errs, fmt.Errorf("%w: got %v", ErrInvalidTimeScale, c.TimeScale))
	}
	return errors.Join(errs...)
}

func validTimeScale(scale float64) bool {
	return scale >= 0 && !math.IsNaN(scale) && !math.IsInf(scale, 0)
}

// UnmarshalYAML fills fields missing from the document with DefaultConfig values.
func (c *Config) UnmarshalYAML(value *yaml.Node) error {
	type plain Config
	p := plain(DefaultConfig())
	if err := value.Decode(&p); err != nil {
		return err
	}
	*c = Config(p)
	return nil
}
