package scape

import (
	"fmt"

	"sigevo/internal/scapeid"
)

// Config selects and parameterizes a scape. Zero fields fall back to the
// scape's defaults.
type Config struct {
	Name    string  `yaml:"name"`
	Width   int     `yaml:"width,omitempty"`
	Height  int     `yaml:"height,omitempty"`
	Food    int     `yaml:"food,omitempty"`
	Turns   int     `yaml:"turns,omitempty"`
	Energy  float64 `yaml:"energy,omitempty"`
	Seed    int64   `yaml:"seed,omitempty"`
	Repeats int     `yaml:"repeats,omitempty"`
}

func New(cfg Config) (Scape, error) {
	switch scapeid.Normalize(cfg.Name) {
	case scapeid.Forage:
		f := DefaultForage()
		if cfg.Width > 0 {
			f.Width = cfg.Width
		}
		if cfg.Height > 0 {
			f.Height = cfg.Height
		}
		if cfg.Food > 0 {
			f.Food = cfg.Food
		}
		if cfg.Turns > 0 {
			f.Turns = cfg.Turns
		}
		if cfg.Energy > 0 {
			f.Energy = cfg.Energy
		}
		if cfg.Seed != 0 {
			f.Seed = cfg.Seed
		}
		if err := f.Validate(); err != nil {
			return nil, err
		}
		return f, nil
	case scapeid.XOR:
		return XOR{Repeats: max(cfg.Repeats, 1)}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownScape, cfg.Name)
	}
}
