package synthesis

import (
	"sort"

	"github.com/shopspring/decimal"

	"github.com/halcyontrade/marketsynth/pkg/models"
)

// sequence orders a merged bid/ask diff by price in the direction the
// market moved. A consumer applying the events strictly in sequence then
// never observes a transient self-cross: when the market moved down, the
// stale bids above the new ask are cancelled before the ask appears, and
// symmetrically on the way up.
func (c *converter) sequence(events []models.SyntheticEvent, bestBid, bestAsk decimal.Decimal) []models.SyntheticEvent {
	mid := midpoint(bestBid, bestAsk)
	ascending := mid.LessThan(c.book.lastMidpoint)
	sort.SliceStable(events, func(a, b int) bool {
		cmp := events[a].Price.Cmp(events[b].Price)
		if cmp == 0 {
			// At a tied price the removal must land before the addition,
			// or a bid and an ask briefly coexist at the same price.
			return applyRank(events[a]) < applyRank(events[b])
		}
		if ascending {
			return cmp < 0
		}
		return cmp > 0
	})
	c.book.lastMidpoint = mid
	return events
}

func applyRank(ev models.SyntheticEvent) int {
	switch {
	case ev.IsTrade:
		return 0
	case ev.IsCancel:
		return 1
	default:
		return 2
	}
}

// midpoint is the effective mid price, falling back to whichever side has
// a best price when the other is absent.
func midpoint(bestBid, bestAsk decimal.Decimal) decimal.Decimal {
	switch {
	case bestAsk.IsZero():
		return bestBid
	case bestBid.IsZero():
		return bestAsk
	default:
		return bestAsk.Sub(bestBid).Div(two).Add(bestBid)
	}
}
