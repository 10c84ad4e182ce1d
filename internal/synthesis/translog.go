package synthesis

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/halcyontrade/marketsynth/pkg/models"
)

// processIntent maps an abstract order lifecycle intent into the
// synthetic event vocabulary. The resulting events are tagged as
// external-owned so the depth and reconciliation heuristics leave the
// emulated trader's resting interest alone.
func (c *converter) processIntent(msg *models.OrderIntentMessage) ([]models.SyntheticEvent, error) {
	if msg == nil {
		return nil, fmt.Errorf("order intent: %w", ErrInvalidArgument)
	}

	var out []models.SyntheticEvent
	switch msg.Kind {
	case models.IntentRegister:
		if err := c.registerOrder(&out, msg); err != nil {
			return nil, err
		}
	case models.IntentReplace:
		if err := c.cancelOrder(&out, msg, msg.OriginTransactionID); err != nil {
			return nil, err
		}
		if err := c.registerOrder(&out, msg); err != nil {
			return nil, err
		}
	case models.IntentCancel:
		if err := c.cancelOrder(&out, msg, msg.OriginTransactionID); err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("order intent kind %q: %w", msg.Kind, ErrInvalidArgument)
	}
	return out, nil
}

func (c *converter) registerOrder(out *[]models.SyntheticEvent, msg *models.OrderIntentMessage) error {
	if !msg.Price.IsPositive() {
		return fmt.Errorf("order price %s: %w", msg.Price, ErrOutOfRange)
	}
	if !msg.Volume.IsPositive() {
		return fmt.Errorf("order volume %s: %w", msg.Volume, ErrOutOfRange)
	}
	if msg.Side != models.SideBuy && msg.Side != models.SideSell {
		return fmt.Errorf("order side %q: %w", msg.Side, ErrInvalidArgument)
	}

	// A marketable register bigger than everything it can cross would walk
	// off the book in the emulation; pre-inflate the opposite depth first.
	if c.settings.IncreaseDepthVolumeOnRegister && c.isMarketable(msg.Side, msg.Price) {
		visible := c.visibleOppositeVolume(msg.Side, msg.Price)
		if visible.LessThan(msg.Volume) {
			c.inflateDepth(out, msg.MessageMeta, msg.Side, msg.Volume.Sub(visible))
		}
	}

	ev := models.SyntheticEvent{
		SecurityID:    msg.SecurityID,
		Side:          msg.Side,
		Price:         msg.Price,
		Volume:        msg.Volume,
		TimeInForce:   models.TimeInForceGTC,
		Owner:         models.OwnerExternal,
		TransactionID: msg.TransactionID,
		ServerTime:    msg.ServerTime,
		LocalTime:     msg.LocalTime,
	}
	*out = append(*out, ev)
	c.book.rest(ev)
	return nil
}

func (c *converter) cancelOrder(out *[]models.SyntheticEvent, msg *models.OrderIntentMessage, originTxn int64) error {
	var price, volume decimal.Decimal
	var side models.Side
	if p, v, ok := c.book.bids.removeExternal(originTxn); ok {
		price, volume, side = p, v, models.SideBuy
	} else if p, v, ok := c.book.asks.removeExternal(originTxn); ok {
		price, volume, side = p, v, models.SideSell
	} else {
		return fmt.Errorf("cancel of unknown order transaction %d: %w", originTxn, ErrInvariantViolation)
	}

	*out = append(*out, models.SyntheticEvent{
		SecurityID:          msg.SecurityID,
		Side:                side,
		Price:               price,
		Volume:              volume,
		IsCancel:            true,
		TimeInForce:         models.TimeInForceGTC,
		Owner:               models.OwnerExternal,
		OrderID:             msg.OrderID,
		TransactionID:       msg.TransactionID,
		OriginTransactionID: originTxn,
		ServerTime:          msg.ServerTime,
		LocalTime:           msg.LocalTime,
	})
	return nil
}

// isMarketable reports whether an order priced at price would cross the
// current best opposite quote.
func (c *converter) isMarketable(side models.Side, price decimal.Decimal) bool {
	if side == models.SideBuy {
		best, ok := c.book.BestAsk()
		return ok && price.GreaterThanOrEqual(best.Price)
	}
	best, ok := c.book.BestBid()
	return ok && price.LessThanOrEqual(best.Price)
}

// visibleOppositeVolume sums the visible opposite-side volume at or
// through the given price.
func (c *converter) visibleOppositeVolume(side models.Side, price decimal.Decimal) decimal.Decimal {
	opposite := c.book.SideOf(side.Invert())
	sign := one
	if side == models.SideSell {
		sign = one.Neg()
	}
	total := decimal.Zero
	opposite.Scan(func(l *PriceLevel) bool {
		if l.Price.Mul(sign).GreaterThan(price.Mul(sign)) {
			return false
		}
		total = total.Add(l.AggregateVolume())
		return true
	})
	return total
}

// inflateDepth walks outward from the worst opposite quote, doubling the
// appended volume and stepping the price one step further each iteration,
// until the still-uncovered order volume is exhausted.
func (c *converter) inflateDepth(out *[]models.SyntheticEvent, meta models.MessageMeta, orderSide models.Side, leftVolume decimal.Decimal) {
	opposite := c.book.SideOf(orderSide.Invert())
	worst, ok := opposite.Worst()
	if !ok {
		return
	}

	side := orderSide.Invert()
	dir := one
	if side == models.SideBuy {
		dir = one.Neg()
	}

	lastVolume := worst.AggregateVolume()
	lastPrice := worst.Price
	for leftVolume.IsPositive() {
		lastVolume = lastVolume.Mul(two)
		lastPrice = lastPrice.Add(c.priceStep.Mul(dir))
		if !lastPrice.IsPositive() {
			break
		}
		leftVolume = leftVolume.Sub(lastVolume)
		c.emitResting(out, meta, side, lastPrice, lastVolume)
	}
}
