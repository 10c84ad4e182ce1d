package synthesis

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/halcyontrade/marketsynth/pkg/models"
)

// level1Cache holds the last seen value of the four tracked top-of-book
// fields. Nil means the field has never been seen (or was zeroed out).
// The jitter fields pin the volume substituted for a price quoted without
// one, so repeated bridge emissions stay stable for the unchanged side.
type level1Cache struct {
	bidPrice  *decimal.Decimal
	bidVolume *decimal.Decimal
	askPrice  *decimal.Decimal
	askVolume *decimal.Decimal

	bidJitter *decimal.Decimal
	askJitter *decimal.Decimal
}

// processLevel1 folds a partial top-of-book update into the tracked
// fields and, when anything actually changed, routes the result through
// the snapshot diff as a one-level-per-side book. An embedded last trade
// is reconciled first.
func (c *converter) processLevel1(msg *models.Level1Message) ([]models.SyntheticEvent, error) {
	if msg == nil {
		return nil, fmt.Errorf("level1 message: %w", ErrInvalidArgument)
	}

	var out []models.SyntheticEvent
	if msg.LastTradePrice != nil {
		volume := one
		if msg.LastTradeVolume != nil {
			volume = *msg.LastTradeVolume
		}
		tick, err := c.processTrade(&models.TradeMessage{
			MessageMeta: msg.MessageMeta,
			Price:       *msg.LastTradePrice,
			Volume:      volume,
		})
		if err != nil {
			return nil, err
		}
		out = append(out, tick...)
	}

	prev := c.level1
	c.level1.bidPrice = pickPrice(msg.BestBidPrice, c.level1.bidPrice)
	c.level1.bidVolume = pick(msg.BestBidVolume, c.level1.bidVolume)
	c.level1.askPrice = pickPrice(msg.BestAskPrice, c.level1.askPrice)
	c.level1.askVolume = pick(msg.BestAskVolume, c.level1.askVolume)

	// A real volume or a moved price invalidates the pinned substitute.
	if !decEqual(c.level1.bidPrice, prev.bidPrice) || (msg.BestBidVolume != nil && msg.BestBidVolume.IsPositive()) {
		c.level1.bidJitter = nil
	}
	if !decEqual(c.level1.askPrice, prev.askPrice) || (msg.BestAskVolume != nil && msg.BestAskVolume.IsPositive()) {
		c.level1.askJitter = nil
	}

	// Identical top-of-book values produce no downstream churn.
	if c.level1.equal(prev) {
		return out, nil
	}

	var bids, asks []models.QuoteLevel
	if c.level1.bidPrice != nil {
		bids = append(bids, models.QuoteLevel{Price: *c.level1.bidPrice, Volume: c.quoteVolume(c.level1.bidVolume, &c.level1.bidJitter)})
	}
	if c.level1.askPrice != nil {
		asks = append(asks, models.QuoteLevel{Price: *c.level1.askPrice, Volume: c.quoteVolume(c.level1.askVolume, &c.level1.askJitter)})
	}
	return append(out, c.processQuoteChange(msg.MessageMeta, bids, asks)...), nil
}

// quoteVolume substitutes a jittered volume when the feed never reported
// one for the quoted price. The substitute is drawn once and pinned so an
// update touching only the other side does not churn this one.
func (c *converter) quoteVolume(v *decimal.Decimal, jitter **decimal.Decimal) decimal.Decimal {
	if v != nil && !v.IsZero() {
		return *v
	}
	if *jitter == nil {
		j := c.jitterVolume()
		*jitter = &j
	}
	return **jitter
}

func pick(update, prev *decimal.Decimal) *decimal.Decimal {
	if update != nil {
		return update
	}
	return prev
}

// pickPrice is pick with zero normalized to absent.
func pickPrice(update, prev *decimal.Decimal) *decimal.Decimal {
	p := pick(update, prev)
	if p != nil && p.IsZero() {
		return nil
	}
	return p
}

func (l level1Cache) equal(other level1Cache) bool {
	return decEqual(l.bidPrice, other.bidPrice) &&
		decEqual(l.bidVolume, other.bidVolume) &&
		decEqual(l.askPrice, other.askPrice) &&
		decEqual(l.askVolume, other.askVolume)
}

func decEqual(a, b *decimal.Decimal) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.Equal(*b)
}
