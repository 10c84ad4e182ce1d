package models

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultSettingsValidate(t *testing.T) {
	require.NoError(t, DefaultEmulationSettings().Validate())
}

func TestValidateRejectsBadSettings(t *testing.T) {
	s := DefaultEmulationSettings()
	s.MaxDepth = 0
	assert.Error(t, s.Validate())

	s = DefaultEmulationSettings()
	s.SpreadSizeSteps = -1
	assert.Error(t, s.Validate())

	s = DefaultEmulationSettings()
	s.VolumeMultiplier = decimal.Zero
	assert.Error(t, s.Validate())
}

func TestSideInvert(t *testing.T) {
	assert.Equal(t, SideSell, SideBuy.Invert())
	assert.Equal(t, SideBuy, SideSell.Invert())
}
