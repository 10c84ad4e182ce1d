package synthesis

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/halcyontrade/marketsynth/pkg/models"
)

// processTrade reconciles a single historical trade print against the
// book: a print at or through a best quote means a marketable order swept
// that side, a print inside the spread means resting liquidity we never
// saw, and a print against an empty side means the book needs seeding.
func (c *converter) processTrade(msg *models.TradeMessage) ([]models.SyntheticEvent, error) {
	if msg == nil {
		return nil, fmt.Errorf("trade message: %w", ErrInvalidArgument)
	}
	if !msg.Price.IsPositive() {
		return nil, fmt.Errorf("trade price %s: %w", msg.Price, ErrOutOfRange)
	}
	if msg.Volume.IsNegative() {
		return nil, fmt.Errorf("trade volume %s: %w", msg.Volume, ErrOutOfRange)
	}

	if !c.priceStepSet {
		c.priceStep = stepFromScale(msg.Price)
		c.priceStepSet = true
	}
	if !c.volumeStepSet && msg.Volume.IsPositive() {
		c.volumeStep = stepFromScale(msg.Volume)
		c.volumeStepSet = true
	}

	price := msg.Price
	volume := msg.Volume
	if volume.IsZero() {
		volume = one
	}

	meta := msg.MessageMeta
	var out []models.SyntheticEvent

	bestBid, hasBid := c.book.BestBid()
	bestAsk, hasAsk := c.book.BestAsk()

	switch {
	case hasBid && price.LessThanOrEqual(bestBid.Price):
		// The print hit the bids: a large sell order went through.
		c.sweepSide(&out, meta, c.book.bids, models.SideSell, price, volume)
		c.pullOppositeQuote(&out, meta, models.SideBuy, price, volume)
	case hasAsk && price.GreaterThanOrEqual(bestAsk.Price):
		c.sweepSide(&out, meta, c.book.asks, models.SideBuy, price, volume)
		c.pullOppositeQuote(&out, meta, models.SideSell, price, volume)
	case hasBid && hasAsk:
		// Inside the spread: an unseen resting order produced this print.
		c.fillSpread(&out, meta, msg, price, volume, bestBid.Price, bestAsk.Price)
	default:
		c.seedEmptyBook(&out, meta, msg, price, volume, hasBid, hasAsk)
	}

	c.trimDepth(&out, meta)
	c.book.lastTradePrice = price
	return out, nil
}

// sweepSide reconstructs the marketable order that produced a print at or
// through the swept side's best quote. The order is sized to everything
// it must have consumed: all levels priced better than the print plus the
// print's own volume at its level. A quote one price step beyond the
// print suppresses the gap fill; otherwise the consumed level at the
// print price is restored so the book keeps a plausible top.
func (c *converter) sweepSide(out *[]models.SyntheticEvent, meta models.MessageMeta, swept *BookSide, orderSide models.Side, price, volume decimal.Decimal) {
	sign := one
	if orderSide == models.SideBuy {
		sign = one.Neg()
	}

	consumed := decimal.Zero
	adjacentQuote := false
	swept.Scan(func(l *PriceLevel) bool {
		switch {
		case l.Price.Mul(sign).GreaterThan(price.Mul(sign)):
			consumed = consumed.Add(l.AggregateVolume())
			return true
		case l.Price.Equal(price):
			consumed = consumed.Add(volume)
			return true
		default:
			adjacentQuote = l.Price.Sub(price).Abs().Equal(c.priceStep)
			return false
		}
	})

	marketable := c.newEvent(meta, orderSide, price, consumed, models.TimeInForceFOK, false)
	*out = append(*out, marketable)
	c.book.applyMarketable(marketable)

	if !adjacentQuote {
		c.emitResting(out, meta, orderSide.Invert(), price, volume)
	}
}

// pullOppositeQuote re-seeds the opposite side one synthetic spread away
// from the print when it improves on (or fills an absent) opposite best.
// Skipped entirely on days with real observed depth.
func (c *converter) pullOppositeQuote(out *[]models.SyntheticEvent, meta models.MessageMeta, originSide models.Side, price, volume decimal.Decimal) {
	if c.book.hasDepthOn(meta.LocalTime) {
		return
	}

	dir := one.Neg()
	if originSide == models.SideBuy {
		dir = one
	}
	oppositePrice := price.Add(c.spreadStep().Mul(dir))
	if !oppositePrice.IsPositive() {
		return
	}

	opposite := c.book.SideOf(originSide.Invert())
	if best, ok := opposite.Best(); ok {
		if originSide == models.SideBuy && !oppositePrice.LessThan(best.Price) {
			return
		}
		if originSide == models.SideSell && !oppositePrice.GreaterThan(best.Price) {
			return
		}
	}
	c.emitResting(out, meta, originSide.Invert(), oppositePrice, volume)
}

// fillSpread handles a print strictly between the best quotes. A resting
// order (padded by one volume step, scaled by the settings multiplier) is
// placed at the print price, jittered levels are backfilled outward until
// an existing quote or the depth bound is reached, and a matching
// opposite match-or-cancel order lets the pair execute downstream.
func (c *converter) fillSpread(out *[]models.SyntheticEvent, meta models.MessageMeta, msg *models.TradeMessage, price, volume, bestBid, bestAsk decimal.Decimal) {
	originSide := c.tradeOriginSide(msg)

	pad := c.volumeStep.Mul(c.settings.VolumeMultiplier)
	c.emitResting(out, meta, originSide, price, volume.Add(pad))

	spreadStep := c.spreadStep()

	next := price.Add(spreadStep)
	for depth := c.settings.MaxDepth - 1; depth > 0; depth-- {
		if !bestAsk.Sub(next).IsPositive() {
			break
		}
		c.emitResting(out, meta, models.SideSell, next, decimal.Zero)
		next = next.Add(spreadStep.Mul(c.strideFactor()))
	}

	next = price.Sub(spreadStep)
	for depth := c.settings.MaxDepth - 1; depth > 0; depth-- {
		if !next.Sub(bestBid).IsPositive() {
			break
		}
		c.emitResting(out, meta, models.SideBuy, next, decimal.Zero)
		next = next.Sub(spreadStep.Mul(c.strideFactor()))
	}

	match := c.newEvent(meta, originSide.Invert(), price, volume, models.TimeInForceFOK, false)
	*out = append(*out, match)
	c.book.applyMarketable(match)
}

// seedEmptyBook synthesizes quotes around a print that reached an empty
// side: whatever the order hit had to exist. With both sides empty a
// symmetric straddle one synthetic spread around the print is created;
// with one side populated only the empty side is seeded.
func (c *converter) seedEmptyBook(out *[]models.SyntheticEvent, meta models.MessageMeta, msg *models.TradeMessage, price, volume decimal.Decimal, hasBid, hasAsk bool) {
	spread := c.spreadStep()
	switch {
	case !hasBid && !hasAsk:
		bidPrice := price.Sub(spread)
		askPrice := price.Add(spread)
		if c.tradeOriginSide(msg) == models.SideSell {
			c.emitResting(out, meta, models.SideSell, askPrice, volume)
			if bidPrice.IsPositive() {
				c.emitResting(out, meta, models.SideBuy, bidPrice, volume)
			}
		} else {
			if bidPrice.IsPositive() {
				c.emitResting(out, meta, models.SideBuy, bidPrice, volume)
			}
			c.emitResting(out, meta, models.SideSell, askPrice, volume)
		}
	case !hasAsk:
		c.emitResting(out, meta, models.SideSell, price.Add(spread), volume)
	default:
		bidPrice := price.Sub(spread)
		if bidPrice.IsPositive() {
			c.emitResting(out, meta, models.SideBuy, bidPrice, volume)
		}
	}
}

// tradeOriginSide infers the side of the resting order a print executed
// against: the aggressor's opposite when the feed tagged it, otherwise
// from the direction the price moved since the previous print.
func (c *converter) tradeOriginSide(msg *models.TradeMessage) models.Side {
	if msg.OriginSide != "" {
		return msg.OriginSide.Invert()
	}
	if msg.Price.GreaterThan(c.book.lastTradePrice) {
		return models.SideSell
	}
	return models.SideBuy
}

// emitResting appends a put-in-queue event and rests it in the book.
func (c *converter) emitResting(out *[]models.SyntheticEvent, meta models.MessageMeta, side models.Side, price, volume decimal.Decimal) {
	ev := c.newEvent(meta, side, price, volume, models.TimeInForceGTC, false)
	*out = append(*out, ev)
	c.book.rest(ev)
}
