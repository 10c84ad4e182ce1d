package synthesis

import (
	"math/rand/v2"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/halcyontrade/marketsynth/pkg/models"
)

func snapshot(bids, asks []models.QuoteLevel) *models.SnapshotMessage {
	return &models.SnapshotMessage{
		MessageMeta: testMeta(),
		Bids:        bids,
		Asks:        asks,
		IsSorted:    true,
	}
}

func TestDiffSingleVolumeAdjustment(t *testing.T) {
	conv := newTestConverter(t)

	_, err := conv.processSnapshot(snapshot(
		[]models.QuoteLevel{ql("99", "10"), ql("98", "5")},
		[]models.QuoteLevel{ql("101", "10")},
	))
	require.NoError(t, err)

	events, err := conv.processSnapshot(snapshot(
		[]models.QuoteLevel{ql("99", "10"), ql("98", "3")},
		[]models.QuoteLevel{ql("101", "10")},
	))
	require.NoError(t, err)

	require.Len(t, events, 1, "unchanged levels must emit nothing")
	assert.Equal(t, models.SideBuy, events[0].Side)
	assert.True(t, events[0].IsCancel)
	assert.True(t, events[0].Price.Equal(d("98")))
	assert.True(t, events[0].Volume.Equal(d("2")))
}

func TestDiffIdempotence(t *testing.T) {
	conv := newTestConverter(t)
	msg := snapshot(
		[]models.QuoteLevel{ql("99", "10"), ql("98", "5"), ql("97", "1")},
		[]models.QuoteLevel{ql("101", "10"), ql("102", "4")},
	)

	first, err := conv.processSnapshot(msg)
	require.NoError(t, err)
	assert.NotEmpty(t, first)

	second, err := conv.processSnapshot(msg)
	require.NoError(t, err)
	assert.Empty(t, second, "feeding the same snapshot twice must be a no-op")
}

func TestDiffLevelConservation(t *testing.T) {
	conv := newTestConverter(t)

	snapshots := [][2][]models.QuoteLevel{
		{{ql("99", "10"), ql("98", "5")}, {ql("101", "10")}},
		{{ql("100", "2"), ql("99", "7")}, {ql("101", "3"), ql("103", "8")}},
		{{ql("97", "4")}, {ql("98", "1")}},
	}
	for _, s := range snapshots {
		_, err := conv.processSnapshot(snapshot(s[0], s[1]))
		require.NoError(t, err)
	}

	last := snapshots[len(snapshots)-1]
	requireQuotesEqual(t, last[0], conv.book.bids.SyntheticQuotes())
	requireQuotesEqual(t, last[1], conv.book.asks.SyntheticQuotes())
}

func requireQuotesEqual(t *testing.T, want, got []models.QuoteLevel) {
	t.Helper()
	require.Len(t, got, len(want))
	for i := range want {
		assert.True(t, want[i].Price.Equal(got[i].Price), "level %d price: want %s got %s", i, want[i].Price, got[i].Price)
		assert.True(t, want[i].Volume.Equal(got[i].Volume), "level %d volume: want %s got %s", i, want[i].Volume, got[i].Volume)
	}
}

func TestDiffUnsortedSnapshot(t *testing.T) {
	conv := newTestConverter(t)

	_, err := conv.processSnapshot(&models.SnapshotMessage{
		MessageMeta: testMeta(),
		Bids:        []models.QuoteLevel{ql("97", "1"), ql("99", "10"), ql("98", "5")},
		Asks:        []models.QuoteLevel{ql("102", "4"), ql("101", "10")},
	})
	require.NoError(t, err)

	best, ok := conv.book.BestBid()
	require.True(t, ok)
	assert.True(t, best.Price.Equal(d("99")))
	best, ok = conv.book.BestAsk()
	require.True(t, ok)
	assert.True(t, best.Price.Equal(d("101")))
}

// shadowBook applies a sequenced event stream one event at a time and
// fails the test the moment the book would cross.
type shadowBook struct {
	bids map[string]decimal.Decimal
	asks map[string]decimal.Decimal
}

func newShadowBook() *shadowBook {
	return &shadowBook{bids: map[string]decimal.Decimal{}, asks: map[string]decimal.Decimal{}}
}

func (s *shadowBook) apply(ev models.SyntheticEvent) {
	if ev.IsTrade {
		return
	}
	side := s.bids
	if ev.Side == models.SideSell {
		side = s.asks
	}
	key := ev.Price.String()
	cur := side[key]
	if ev.IsCancel {
		cur = cur.Sub(ev.Volume)
	} else {
		cur = cur.Add(ev.Volume)
	}
	if cur.IsPositive() {
		side[key] = cur
	} else {
		delete(side, key)
	}
}

func (s *shadowBook) crossed() bool {
	var bestBid, bestAsk decimal.Decimal
	for k := range s.bids {
		p := decimal.RequireFromString(k)
		if bestBid.IsZero() || p.GreaterThan(bestBid) {
			bestBid = p
		}
	}
	for k := range s.asks {
		p := decimal.RequireFromString(k)
		if bestAsk.IsZero() || p.LessThan(bestAsk) {
			bestAsk = p
		}
	}
	return !bestBid.IsZero() && !bestAsk.IsZero() && bestBid.GreaterThanOrEqual(bestAsk)
}

func TestSequencerNeverCrossesOnTheWayDown(t *testing.T) {
	conv := newTestConverter(t)
	shadow := newShadowBook()

	first, err := conv.processSnapshot(snapshot(
		[]models.QuoteLevel{ql("99", "10")},
		[]models.QuoteLevel{ql("101", "10")},
	))
	require.NoError(t, err)
	for _, ev := range first {
		shadow.apply(ev)
		assert.False(t, shadow.crossed())
	}

	// Market gaps down: the new ask lands on the old bid price.
	second, err := conv.processSnapshot(snapshot(
		[]models.QuoteLevel{ql("97", "10")},
		[]models.QuoteLevel{ql("99", "10")},
	))
	require.NoError(t, err)
	for i, ev := range second {
		if i > 0 {
			assert.True(t, ev.Price.GreaterThanOrEqual(second[i-1].Price),
				"downward moves apply bottom-up")
		}
		shadow.apply(ev)
		assert.False(t, shadow.crossed(), "transient cross after event %d", i)
	}
}

func TestSequencerNeverCrossesOnTheWayUp(t *testing.T) {
	conv := newTestConverter(t)
	shadow := newShadowBook()

	first, err := conv.processSnapshot(snapshot(
		[]models.QuoteLevel{ql("99", "10")},
		[]models.QuoteLevel{ql("101", "10")},
	))
	require.NoError(t, err)
	for _, ev := range first {
		shadow.apply(ev)
	}

	// Market gaps up: the new bid lands on the old ask price.
	second, err := conv.processSnapshot(snapshot(
		[]models.QuoteLevel{ql("101", "10")},
		[]models.QuoteLevel{ql("103", "10")},
	))
	require.NoError(t, err)
	for i, ev := range second {
		if i > 0 {
			assert.True(t, ev.Price.LessThanOrEqual(second[i-1].Price),
				"upward moves apply top-down")
		}
		shadow.apply(ev)
		assert.False(t, shadow.crossed(), "transient cross after event %d", i)
	}
}

func TestTopOfBookCancelMayPrintHalfVolumeTick(t *testing.T) {
	var withTick, withoutTick int
	for seed := uint64(0); seed < 20; seed++ {
		conv := newConverter("ESU4", testSettings(), rand.New(rand.NewPCG(seed, seed+1)), zap.NewNop())

		_, err := conv.processSnapshot(snapshot(
			[]models.QuoteLevel{ql("99", "10")},
			[]models.QuoteLevel{ql("101", "10")},
		))
		require.NoError(t, err)

		// The best bid disappears entirely: a top-of-book cancel of 10.
		events, err := conv.processSnapshot(snapshot(
			[]models.QuoteLevel{ql("98", "10")},
			[]models.QuoteLevel{ql("101", "10")},
		))
		require.NoError(t, err)

		tickIdx, cancelIdx := -1, -1
		for i, ev := range events {
			switch {
			case ev.IsTrade:
				tickIdx = i
				assert.Equal(t, models.SideBuy, ev.Side)
				assert.True(t, ev.Price.Equal(d("99")))
				assert.True(t, ev.Volume.Equal(d("5")), "tick carries half the cancelled volume")
			case ev.IsCancel:
				cancelIdx = i
				assert.True(t, ev.Price.Equal(d("99")))
			}
		}
		require.NotEqual(t, -1, cancelIdx)
		if tickIdx >= 0 {
			assert.Less(t, tickIdx, cancelIdx, "the tick lands before the cancel it explains")
			withTick++
		} else {
			withoutTick++
		}
	}
	assert.Greater(t, withTick, 0, "half the seeds should print a tick")
	assert.Greater(t, withoutTick, 0, "pulled liquidity is only sometimes a trade")
}

func TestStepInferenceFromSnapshot(t *testing.T) {
	conv := newTestConverter(t)

	_, err := conv.processSnapshot(snapshot(
		[]models.QuoteLevel{ql("99.25", "0.5")},
		[]models.QuoteLevel{ql("101.75", "1.5")},
	))
	require.NoError(t, err)

	assert.True(t, conv.priceStep.Equal(d("0.01")))
	assert.True(t, conv.volumeStep.Equal(d("0.1")))
	assert.True(t, conv.priceStepSet)
	assert.True(t, conv.volumeStepSet)
}

func TestMidpoint(t *testing.T) {
	assert.True(t, midpoint(d("99"), d("101")).Equal(d("100")))
	assert.True(t, midpoint(d("99"), decimal.Zero).Equal(d("99")))
	assert.True(t, midpoint(decimal.Zero, d("101")).Equal(d("101")))
	assert.True(t, midpoint(decimal.Zero, decimal.Zero).IsZero())
}
