package synthesis

import (
	"sort"

	"github.com/shopspring/decimal"

	"github.com/halcyontrade/marketsynth/pkg/models"
)

var (
	one = decimal.NewFromInt(1)
	two = decimal.NewFromInt(2)
)

// processSnapshot diffs a full depth snapshot against the current book and
// returns the incremental events that transform one into the other.
func (c *converter) processSnapshot(msg *models.SnapshotMessage) ([]models.SyntheticEvent, error) {
	if msg == nil {
		return nil, ErrInvalidArgument
	}
	bids := normalizeQuotes(msg.Bids, models.SideBuy, msg.IsSorted)
	asks := normalizeQuotes(msg.Asks, models.SideSell, msg.IsSorted)

	if !c.priceStepSet || !c.volumeStepSet {
		quote := firstQuote(bids, asks)
		if quote != nil {
			c.priceStep = stepFromScale(quote.Price)
			c.volumeStep = stepFromScale(quote.Volume)
			c.priceStepSet = true
			c.volumeStepSet = true
		}
	}

	// Real depth was observed: heavy gap filling stays off for the rest of
	// the calendar day.
	c.book.markFullSnapshot(msg.LocalTime)

	return c.processQuoteChange(msg.MessageMeta, bids, asks), nil
}

// processQuoteChange diffs both sides, sequences the merged event list in
// the direction the market moved and then installs the new snapshot as
// the book's synthetic structure.
func (c *converter) processQuoteChange(meta models.MessageMeta, bids, asks []models.QuoteLevel) []models.SyntheticEvent {
	var diff []models.SyntheticEvent
	bestBid := c.diffSide(&diff, meta, models.SideBuy, c.book.bids.SyntheticQuotes(), bids)
	bestAsk := c.diffSide(&diff, meta, models.SideSell, c.book.asks.SyntheticQuotes(), asks)

	events := c.sequence(diff, bestBid, bestAsk)

	c.book.bids.replaceSynthetic(bids)
	c.book.asks.replaceSynthetic(asks)
	return events
}

// diffSide walks the old and new level sequences with two cursors and
// emits one event per changed level: a full add for new-only levels, a
// full cancel for old-only levels and a signed adjustment when the price
// matches but the volume differs. Unchanged levels emit nothing, which is
// what makes a repeated snapshot a no-op. Returns the best price seen in
// the new sequence (zero when it is empty).
func (c *converter) diffSide(out *[]models.SyntheticEvent, meta models.MessageMeta, side models.Side, old, new []models.QuoteLevel) decimal.Decimal {
	best := decimal.Zero
	if len(new) > 0 {
		best = new[0].Price
	}

	// Both sequences are best-first; the sign multiplier folds the two
	// orderings into one merge.
	mult := one
	if side == models.SideBuy {
		mult = mult.Neg()
	}

	i, j := 0, 0
	for i < len(old) || j < len(new) {
		switch {
		case i >= len(old):
			c.appendDiff(out, meta, side, new[j].Price, new[j].Volume, false)
			j++
		case j >= len(new):
			c.appendDiff(out, meta, side, old[i].Price, old[i].Volume.Neg(), i == 0)
			i++
		case old[i].Price.Equal(new[j].Price):
			if !old[i].Volume.Equal(new[j].Volume) {
				c.appendDiff(out, meta, side, new[j].Price, new[j].Volume.Sub(old[i].Volume), i == 0)
			}
			i++
			j++
		case old[i].Price.Mul(mult).GreaterThan(new[j].Price.Mul(mult)):
			// The new level sits nearer the top than the old cursor.
			c.appendDiff(out, meta, side, new[j].Price, new[j].Volume, i == 0)
			j++
		default:
			c.appendDiff(out, meta, side, old[i].Price, old[i].Volume.Neg(), i == 0)
			i++
		}
	}
	return best
}

// appendDiff turns a signed level delta into events. Cancelling volume at
// the best old level sometimes yields a synthetic tick for half the
// volume first: pulled top-of-book liquidity was plausibly traded, not
// withdrawn.
func (c *converter) appendDiff(out *[]models.SyntheticEvent, meta models.MessageMeta, side models.Side, price, volume decimal.Decimal, topOfBook bool) {
	if volume.IsPositive() {
		*out = append(*out, c.newEvent(meta, side, price, volume, models.TimeInForceGTC, false))
		return
	}
	volume = volume.Abs()
	if topOfBook && volume.GreaterThan(one) && c.rng.IntN(2) == 0 {
		tick := c.newEvent(meta, side, price, volume.Div(two).Floor(), models.TimeInForceGTC, false)
		tick.IsTrade = true
		*out = append(*out, tick)
	}
	*out = append(*out, c.newEvent(meta, side, price, volume, models.TimeInForceGTC, true))
}

// normalizeQuotes drops empty levels and sorts best-first unless the
// feed already did.
func normalizeQuotes(quotes []models.QuoteLevel, side models.Side, sorted bool) []models.QuoteLevel {
	out := make([]models.QuoteLevel, 0, len(quotes))
	for _, q := range quotes {
		if q.Price.IsPositive() && q.Volume.IsPositive() {
			out = append(out, q)
		}
	}
	if !sorted {
		if side == models.SideBuy {
			sort.Slice(out, func(a, b int) bool { return out[a].Price.GreaterThan(out[b].Price) })
		} else {
			sort.Slice(out, func(a, b int) bool { return out[a].Price.LessThan(out[b].Price) })
		}
	}
	return out
}

func firstQuote(bids, asks []models.QuoteLevel) *models.QuoteLevel {
	if len(bids) > 0 {
		return &bids[0]
	}
	if len(asks) > 0 {
		return &asks[0]
	}
	return nil
}

// stepFromScale infers a price or volume step from the decimal scale of
// an observed value: 99.25 implies 0.01, 100 implies 1.
func stepFromScale(v decimal.Decimal) decimal.Decimal {
	if v.Exponent() >= 0 {
		return one
	}
	return decimal.New(1, v.Exponent())
}
