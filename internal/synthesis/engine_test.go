package synthesis

import (
	"errors"
	"math/rand/v2"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/halcyontrade/marketsynth/pkg/models"
)

func testSettings() models.EmulationSettings {
	return models.EmulationSettings{
		MaxDepth:         5,
		SpreadSizeSteps:  2,
		VolumeMultiplier: decimal.NewFromInt(1),
	}
}

func testMeta() models.MessageMeta {
	ts := time.Date(2014, 6, 16, 10, 30, 0, 0, time.UTC)
	return models.MessageMeta{SecurityID: "ESU4", ServerTime: ts, LocalTime: ts}
}

func newTestConverter(t *testing.T) *converter {
	t.Helper()
	return newConverter("ESU4", testSettings(), rand.New(rand.NewPCG(1, 2)), zap.NewNop())
}

func TestNewEngineValidatesSettings(t *testing.T) {
	_, err := NewEngine(models.EmulationSettings{}, 1, nil)
	require.Error(t, err)

	engine, err := NewEngine(testSettings(), 1, nil)
	require.NoError(t, err)
	require.NotNil(t, engine)
}

func TestProcessRejectsBadInput(t *testing.T) {
	engine, err := NewEngine(testSettings(), 1, nil)
	require.NoError(t, err)

	_, err = engine.Process(nil)
	assert.ErrorIs(t, err, ErrInvalidArgument)

	_, err = engine.Process(&models.TradeMessage{Price: d("100"), Volume: d("1")})
	assert.ErrorIs(t, err, ErrInvalidArgument, "missing security id")
}

func TestEngineIsolatesInstruments(t *testing.T) {
	engine, err := NewEngine(testSettings(), 1, nil)
	require.NoError(t, err)

	metaA := testMeta()
	metaB := testMeta()
	metaB.SecurityID = "NQU4"

	_, err = engine.Process(&models.SnapshotMessage{
		MessageMeta: metaA,
		Bids:        []models.QuoteLevel{ql("99", "10")},
		Asks:        []models.QuoteLevel{ql("101", "10")},
		IsSorted:    true,
	})
	require.NoError(t, err)

	_, err = engine.Process(&models.TradeMessage{MessageMeta: metaB, Price: d("50"), Volume: d("5")})
	require.NoError(t, err)

	bids, asks, ok := engine.Depth("ESU4")
	require.True(t, ok)
	require.Len(t, bids, 1)
	require.Len(t, asks, 1)
	assert.True(t, bids[0].Price.Equal(d("99")))

	bids, asks, ok = engine.Depth("NQU4")
	require.True(t, ok)
	require.Len(t, bids, 1)
	require.Len(t, asks, 1)
	assert.True(t, bids[0].Price.Equal(d("48")), "seeded one spread below the print")
	assert.True(t, asks[0].Price.Equal(d("52")), "seeded one spread above the print")

	_, _, ok = engine.Depth("unknown")
	assert.False(t, ok)
}

func TestEngineDeterministicBySeed(t *testing.T) {
	stream := []models.Message{
		&models.SnapshotMessage{
			MessageMeta: testMeta(),
			Bids:        []models.QuoteLevel{ql("90", "10")},
			Asks:        []models.QuoteLevel{ql("110", "10")},
			IsSorted:    true,
		},
		// Inside the spread: triggers jittered backfill.
		&models.TradeMessage{MessageMeta: testMeta(), Price: d("100"), Volume: d("5")},
		&models.TradeMessage{MessageMeta: testMeta(), Price: d("95"), Volume: d("2")},
	}

	replayStream := func(seed uint64) []models.SyntheticEvent {
		engine, err := NewEngine(testSettings(), seed, nil)
		require.NoError(t, err)
		var all []models.SyntheticEvent
		for _, msg := range stream {
			events, err := engine.Process(msg)
			require.NoError(t, err)
			all = append(all, events...)
		}
		return all
	}

	first := replayStream(7)
	second := replayStream(7)
	require.Equal(t, len(first), len(second))
	for i := range first {
		assert.True(t, first[i].Price.Equal(second[i].Price), "event %d price", i)
		assert.True(t, first[i].Volume.Equal(second[i].Volume), "event %d volume", i)
		assert.Equal(t, first[i].Side, second[i].Side, "event %d side", i)
	}
}

func TestSecurityDefinitionOverridesInference(t *testing.T) {
	engine, err := NewEngine(testSettings(), 1, nil)
	require.NoError(t, err)

	step := d("0.5")
	_, err = engine.Process(&models.SecurityDefinitionMessage{
		MessageMeta: testMeta(),
		PriceStep:   &step,
		VolumeStep:  &step,
	})
	require.NoError(t, err)

	// With priceStep pinned at 0.5 the empty-book straddle sits one
	// spread (2 steps = 1.0) around the print, not 2.0 as scale
	// inference from an integer price would give.
	_, err = engine.Process(&models.TradeMessage{MessageMeta: testMeta(), Price: d("100"), Volume: d("5")})
	require.NoError(t, err)

	bids, asks, ok := engine.Depth("ESU4")
	require.True(t, ok)
	require.Len(t, bids, 1)
	require.Len(t, asks, 1)
	assert.True(t, bids[0].Price.Equal(d("99")))
	assert.True(t, asks[0].Price.Equal(d("101")))
}

func TestUnknownIntentKind(t *testing.T) {
	engine, err := NewEngine(testSettings(), 1, nil)
	require.NoError(t, err)

	_, err = engine.Process(&models.OrderIntentMessage{MessageMeta: testMeta(), Kind: "SHRED"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInvalidArgument))
}
