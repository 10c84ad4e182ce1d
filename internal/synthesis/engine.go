package synthesis

import (
	"fmt"
	"hash/fnv"
	"math/rand/v2"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/halcyontrade/marketsynth/pkg/models"
)

// Engine converts a chronological stream of heterogeneous historical
// market data messages into a synthetic order log. It owns one book per
// instrument and is driven by exactly one goroutine; run one Engine per
// instrument worker for parallel replays.
type Engine struct {
	settings   models.EmulationSettings
	seed       uint64
	logger     *zap.Logger
	converters map[string]*converter
}

// NewEngine validates the settings and builds an engine. The seed drives
// every jitter and spread-matching decision, so equal seeds over equal
// inputs produce identical synthetic logs. A nil logger is replaced with
// a nop logger.
func NewEngine(settings models.EmulationSettings, seed uint64, logger *zap.Logger) (*Engine, error) {
	if err := settings.Validate(); err != nil {
		return nil, fmt.Errorf("emulation settings: %w", err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{
		settings:   settings,
		seed:       seed,
		logger:     logger,
		converters: make(map[string]*converter),
	}, nil
}

// Process consumes one inbound message and returns the synthetic events
// it implies, in consumption order. Any returned error is fatal to the
// message's instrument: the book state can no longer be trusted.
func (e *Engine) Process(msg models.Message) ([]models.SyntheticEvent, error) {
	if msg == nil {
		return nil, fmt.Errorf("message: %w", ErrInvalidArgument)
	}
	meta := msg.Meta()
	if meta.SecurityID == "" {
		return nil, fmt.Errorf("security id: %w", ErrInvalidArgument)
	}
	conv := e.converterFor(meta.SecurityID)

	switch m := msg.(type) {
	case *models.SnapshotMessage:
		return conv.processSnapshot(m)
	case *models.TradeMessage:
		return conv.processTrade(m)
	case *models.Level1Message:
		return conv.processLevel1(m)
	case *models.OrderIntentMessage:
		return conv.processIntent(m)
	case *models.SecurityDefinitionMessage:
		conv.updateSecurityDefinition(m)
		return nil, nil
	default:
		return nil, fmt.Errorf("message type %T: %w", msg, ErrInvalidArgument)
	}
}

// Depth returns a read-only aggregate view of an instrument's book,
// best-first per side.
func (e *Engine) Depth(securityID string) (bids, asks []models.QuoteLevel, ok bool) {
	conv, found := e.converters[securityID]
	if !found {
		return nil, nil, false
	}
	return conv.book.bids.Quotes(), conv.book.asks.Quotes(), true
}

func (e *Engine) converterFor(securityID string) *converter {
	if conv, ok := e.converters[securityID]; ok {
		return conv
	}
	h := fnv.New64a()
	h.Write([]byte(securityID))
	conv := newConverter(
		securityID,
		e.settings,
		rand.New(rand.NewPCG(e.seed, h.Sum64())),
		e.logger.With(zap.String("security_id", securityID)),
	)
	e.converters[securityID] = conv
	return conv
}

// converter holds the per-instrument synthesis state. All five processing
// components operate on it; nothing else mutates the book.
type converter struct {
	securityID string
	settings   models.EmulationSettings
	book       *BookState
	rng        *rand.Rand
	logger     *zap.Logger

	priceStep     decimal.Decimal
	volumeStep    decimal.Decimal
	priceStepSet  bool
	volumeStepSet bool

	level1 level1Cache
}

func newConverter(securityID string, settings models.EmulationSettings, rng *rand.Rand, logger *zap.Logger) *converter {
	return &converter{
		securityID: securityID,
		settings:   settings,
		book:       NewBookState(),
		rng:        rng,
		logger:     logger,
		priceStep:  one,
		volumeStep: one,
	}
}

// updateSecurityDefinition applies an explicit step override. A supplied
// field is pinned (heuristic inference stops for it); an absent field
// falls back to the default and becomes inferable again.
func (c *converter) updateSecurityDefinition(msg *models.SecurityDefinitionMessage) {
	if msg.PriceStep != nil && msg.PriceStep.IsPositive() {
		c.priceStep = *msg.PriceStep
		c.priceStepSet = true
	} else {
		c.priceStep = one
		c.priceStepSet = false
	}
	if msg.VolumeStep != nil && msg.VolumeStep.IsPositive() {
		c.volumeStep = *msg.VolumeStep
		c.volumeStepSet = true
	} else {
		c.volumeStep = one
		c.volumeStepSet = false
	}
	c.logger.Debug("security definition updated",
		zap.String("price_step", c.priceStep.String()),
		zap.String("volume_step", c.volumeStep.String()))
}

// spreadStep is the synthetic spread width in price units.
func (c *converter) spreadStep() decimal.Decimal {
	return c.priceStep.Mul(decimal.NewFromInt(int64(c.settings.SpreadSizeSteps)))
}

// jitterVolume picks a plausible volume for a level whose real size was
// never observed: 10 to 99 volume steps.
func (c *converter) jitterVolume() decimal.Decimal {
	return c.volumeStep.Mul(decimal.NewFromInt(int64(10 + c.rng.IntN(90))))
}

// strideFactor randomizes the backfill stride in spread-step units.
func (c *converter) strideFactor() decimal.Decimal {
	if c.settings.SpreadSizeSteps <= 1 {
		return one
	}
	return decimal.NewFromInt(int64(1 + c.rng.IntN(c.settings.SpreadSizeSteps-1)))
}

// newEvent builds a synthetic event, substituting a jittered volume when
// the caller has no observed size to assign.
func (c *converter) newEvent(meta models.MessageMeta, side models.Side, price, volume decimal.Decimal, tif models.TimeInForce, isCancel bool) models.SyntheticEvent {
	if volume.IsZero() {
		volume = c.jitterVolume()
	}
	return models.SyntheticEvent{
		SecurityID:  meta.SecurityID,
		Side:        side,
		Price:       price,
		Volume:      volume,
		IsCancel:    isCancel,
		TimeInForce: tif,
		Owner:       models.OwnerSynthetic,
		ServerTime:  meta.ServerTime,
		LocalTime:   meta.LocalTime,
	}
}
