package models

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// EmulationSettings configures the synthesis engine. Supplied once at
// engine construction and immutable for the engine's lifetime.
type EmulationSettings struct {
	// MaxDepth is the maximum number of price levels kept per side before
	// worst-level trimming kicks in, and the bound on spread backfill.
	MaxDepth int `json:"max_depth" mapstructure:"max_depth"`
	// SpreadSizeSteps is the synthetic spread width in price steps.
	SpreadSizeSteps int `json:"spread_size_steps" mapstructure:"spread_size_steps"`
	// IncreaseDepthVolumeOnRegister pre-inflates opposite-side depth when a
	// registered order is larger than the visible volume it would cross.
	IncreaseDepthVolumeOnRegister bool `json:"increase_depth_volume_on_register" mapstructure:"increase_depth_volume_on_register"`
	// VolumeMultiplier scales the one-step volume pad added to in-spread
	// resting orders.
	VolumeMultiplier decimal.Decimal `json:"volume_multiplier" mapstructure:"volume_multiplier"`
}

// DefaultEmulationSettings mirrors the defaults used by the emulation layer.
func DefaultEmulationSettings() EmulationSettings {
	return EmulationSettings{
		MaxDepth:         5,
		SpreadSizeSteps:  2,
		VolumeMultiplier: decimal.NewFromInt(1),
	}
}

// Validate rejects settings the engine cannot run with.
func (s EmulationSettings) Validate() error {
	if s.MaxDepth <= 0 {
		return fmt.Errorf("max depth must be positive, got %d", s.MaxDepth)
	}
	if s.SpreadSizeSteps <= 0 {
		return fmt.Errorf("spread size must be positive, got %d", s.SpreadSizeSteps)
	}
	if !s.VolumeMultiplier.IsPositive() {
		return fmt.Errorf("volume multiplier must be positive, got %s", s.VolumeMultiplier)
	}
	return nil
}
