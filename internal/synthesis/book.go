package synthesis

import (
	"time"

	"github.com/shopspring/decimal"
	"github.com/tidwall/btree"

	"github.com/halcyontrade/marketsynth/pkg/models"
)

// SyntheticOrder is a single resting order at a price level. External
// orders belong to the emulated trader and are never touched by the
// synthesis heuristics; TransactionID is set for external orders only.
type SyntheticOrder struct {
	Volume        decimal.Decimal
	Owner         models.Owner
	TransactionID int64
}

// PriceLevel is one price of a book side. Orders keep insertion order;
// the level's aggregate volume is always the sum of its orders.
type PriceLevel struct {
	Price  decimal.Decimal
	Orders []SyntheticOrder
}

// AggregateVolume sums all resting volume at the level.
func (l *PriceLevel) AggregateVolume() decimal.Decimal {
	total := decimal.Zero
	for _, o := range l.Orders {
		total = total.Add(o.Volume)
	}
	return total
}

// OwnedVolume sums the volume contributed by orders with the given owner.
func (l *PriceLevel) OwnedVolume(owner models.Owner) decimal.Decimal {
	total := decimal.Zero
	for _, o := range l.Orders {
		if o.Owner == owner {
			total = total.Add(o.Volume)
		}
	}
	return total
}

// BookSide is a sorted map of price to level. Bids sort descending and
// asks ascending, so the best level is always first.
type BookSide struct {
	side   models.Side
	levels *btree.BTreeG[*PriceLevel]
}

func newBookSide(side models.Side) *BookSide {
	var less func(a, b *PriceLevel) bool
	if side == models.SideBuy {
		less = func(a, b *PriceLevel) bool { return a.Price.GreaterThan(b.Price) }
	} else {
		less = func(a, b *PriceLevel) bool { return a.Price.LessThan(b.Price) }
	}
	return &BookSide{side: side, levels: btree.NewBTreeG(less)}
}

// Side reports which side of the book this is.
func (s *BookSide) Side() models.Side { return s.side }

// Len is the number of price levels.
func (s *BookSide) Len() int { return s.levels.Len() }

// Best returns the best (first) level.
func (s *BookSide) Best() (*PriceLevel, bool) { return s.levels.Min() }

// Worst returns the farthest-from-best level.
func (s *BookSide) Worst() (*PriceLevel, bool) { return s.levels.Max() }

// Level returns the level at an exact price.
func (s *BookSide) Level(price decimal.Decimal) (*PriceLevel, bool) {
	return s.levels.Get(&PriceLevel{Price: price})
}

// Scan iterates levels best-first until fn returns false. The callback
// must not mutate the side.
func (s *BookSide) Scan(fn func(*PriceLevel) bool) {
	s.levels.Scan(fn)
}

// Quotes returns the aggregate volume per level, best-first.
func (s *BookSide) Quotes() []models.QuoteLevel {
	out := make([]models.QuoteLevel, 0, s.levels.Len())
	s.levels.Scan(func(l *PriceLevel) bool {
		out = append(out, models.QuoteLevel{Price: l.Price, Volume: l.AggregateVolume()})
		return true
	})
	return out
}

// SyntheticQuotes returns the synthetic aggregate per level, best-first,
// skipping levels held alive only by external orders. Historical snapshot
// diffs compare against this view so the emulated trader's resting
// interest never shows up as historical liquidity.
func (s *BookSide) SyntheticQuotes() []models.QuoteLevel {
	out := make([]models.QuoteLevel, 0, s.levels.Len())
	s.levels.Scan(func(l *PriceLevel) bool {
		v := l.OwnedVolume(models.OwnerSynthetic)
		if v.IsPositive() {
			out = append(out, models.QuoteLevel{Price: l.Price, Volume: v})
		}
		return true
	})
	return out
}

func (s *BookSide) addOrder(price decimal.Decimal, order SyntheticOrder) {
	level, ok := s.Level(price)
	if !ok {
		level = &PriceLevel{Price: price}
		s.levels.Set(level)
	}
	level.Orders = append(level.Orders, order)
}

// consumeSyntheticAt removes up to volume of synthetic orders from the
// level and reports how much was removed. The level is dropped once no
// orders remain.
func (s *BookSide) consumeSyntheticAt(level *PriceLevel, volume decimal.Decimal) decimal.Decimal {
	consumed := decimal.Zero
	remaining := level.Orders[:0]
	for _, o := range level.Orders {
		left := volume.Sub(consumed)
		if o.Owner != models.OwnerSynthetic || !left.IsPositive() {
			remaining = append(remaining, o)
			continue
		}
		if o.Volume.GreaterThan(left) {
			o.Volume = o.Volume.Sub(left)
			consumed = consumed.Add(left)
			remaining = append(remaining, o)
		} else {
			consumed = consumed.Add(o.Volume)
		}
	}
	level.Orders = remaining
	if len(level.Orders) == 0 {
		s.levels.Delete(level)
	}
	return consumed
}

// dropSynthetic removes every synthetic order at the level and returns
// the removed volume. External orders keep the level alive.
func (s *BookSide) dropSynthetic(level *PriceLevel) decimal.Decimal {
	return s.consumeSyntheticAt(level, level.OwnedVolume(models.OwnerSynthetic))
}

// removeExternal removes the external order registered under txnID.
func (s *BookSide) removeExternal(txnID int64) (decimal.Decimal, decimal.Decimal, bool) {
	var found *PriceLevel
	var idx int
	s.levels.Scan(func(l *PriceLevel) bool {
		for i, o := range l.Orders {
			if o.Owner == models.OwnerExternal && o.TransactionID == txnID {
				found, idx = l, i
				return false
			}
		}
		return true
	})
	if found == nil {
		return decimal.Zero, decimal.Zero, false
	}
	price, volume := found.Price, found.Orders[idx].Volume
	found.Orders = append(found.Orders[:idx], found.Orders[idx+1:]...)
	if len(found.Orders) == 0 {
		s.levels.Delete(found)
	}
	return price, volume, true
}

// replaceSynthetic resets the side's synthetic structure to the given
// snapshot, preserving external resting orders at their levels.
func (s *BookSide) replaceSynthetic(quotes []models.QuoteLevel) {
	external := make(map[string][]SyntheticOrder)
	var prices []decimal.Decimal
	s.levels.Scan(func(l *PriceLevel) bool {
		for _, o := range l.Orders {
			if o.Owner == models.OwnerExternal {
				external[l.Price.String()] = append(external[l.Price.String()], o)
			}
		}
		prices = append(prices, l.Price)
		return true
	})
	for _, p := range prices {
		s.levels.Delete(&PriceLevel{Price: p})
	}
	for _, q := range quotes {
		if !q.Volume.IsPositive() {
			continue
		}
		s.addOrder(q.Price, SyntheticOrder{Volume: q.Volume, Owner: models.OwnerSynthetic})
	}
	for key, orders := range external {
		price, _ := decimal.NewFromString(key)
		for _, o := range orders {
			s.addOrder(price, o)
		}
	}
}

// BookState owns one side per direction plus the bookkeeping the
// heuristics depend on. It is owned exclusively by one engine instance
// and mutated only by the synthesis components.
type BookState struct {
	bids *BookSide
	asks *BookSide

	// lastMidpoint is the previous effective mid price, used only to pick
	// the output ordering direction.
	lastMidpoint decimal.Decimal
	// lastFullSnapshotDate gates the heuristic depth synthesis: once a
	// full snapshot was observed on a calendar day, gap fills stay light.
	lastFullSnapshotDate time.Time
	// lastTradePrice infers trade direction when the book is empty.
	lastTradePrice decimal.Decimal
}

// NewBookState creates an empty per-instrument book.
func NewBookState() *BookState {
	return &BookState{
		bids: newBookSide(models.SideBuy),
		asks: newBookSide(models.SideSell),
	}
}

// SideOf returns the requested book side.
func (b *BookState) SideOf(side models.Side) *BookSide {
	if side == models.SideBuy {
		return b.bids
	}
	return b.asks
}

// BestBid returns the highest bid level.
func (b *BookState) BestBid() (*PriceLevel, bool) { return b.bids.Best() }

// BestAsk returns the lowest ask level.
func (b *BookState) BestAsk() (*PriceLevel, bool) { return b.asks.Best() }

// LastTradePrice is the price of the most recent reconciled trade.
func (b *BookState) LastTradePrice() decimal.Decimal { return b.lastTradePrice }

func (b *BookState) markFullSnapshot(t time.Time) {
	y, m, d := t.Date()
	b.lastFullSnapshotDate = time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

// hasDepthOn reports whether a full snapshot was observed on t's calendar
// day, meaning real depth exists and heavy gap filling must not run.
func (b *BookState) hasDepthOn(t time.Time) bool {
	if b.lastFullSnapshotDate.IsZero() {
		return false
	}
	y1, m1, d1 := b.lastFullSnapshotDate.Date()
	y2, m2, d2 := t.Date()
	return y1 == y2 && m1 == m2 && d1 == d2
}

// rest records an emitted put-in-queue add in the book, keeping the
// internal state in sync with what the downstream engine will hold.
func (b *BookState) rest(ev models.SyntheticEvent) {
	owner := ev.Owner
	if owner == "" {
		owner = models.OwnerSynthetic
	}
	b.SideOf(ev.Side).addOrder(ev.Price, SyntheticOrder{
		Volume:        ev.Volume,
		Owner:         owner,
		TransactionID: ev.TransactionID,
	})
}

// applyMarketable consumes synthetic volume from opposite-side levels the
// order crosses, best-first, mirroring the downstream match of a
// match-or-cancel event. External volume is never consumed here; fills
// against the emulated trader are the downstream engine's business.
func (b *BookState) applyMarketable(ev models.SyntheticEvent) {
	opposite := b.SideOf(ev.Side.Invert())
	sign := decimal.NewFromInt(1)
	if ev.Side == models.SideSell {
		sign = decimal.NewFromInt(-1)
	}
	var crossed []*PriceLevel
	opposite.Scan(func(l *PriceLevel) bool {
		// A buy crosses asks priced at or below it, a sell crosses bids
		// priced at or above it.
		if l.Price.Mul(sign).GreaterThan(ev.Price.Mul(sign)) {
			return false
		}
		crossed = append(crossed, l)
		return true
	})
	left := ev.Volume
	for _, l := range crossed {
		if !left.IsPositive() {
			break
		}
		left = left.Sub(opposite.consumeSyntheticAt(l, left))
	}
}
