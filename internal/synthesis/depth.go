package synthesis

import (
	"github.com/halcyontrade/marketsynth/pkg/models"
)

// trimDepth caps both sides at the configured maximum depth.
func (c *converter) trimDepth(out *[]models.SyntheticEvent, meta models.MessageMeta) {
	c.trimWorst(out, meta, c.book.bids)
	c.trimWorst(out, meta, c.book.asks)
}

// trimWorst cancels the synthetic volume of the worst level when a side
// has grown past maxDepth. Only one level is trimmed per invocation, and
// only its synthetic orders: external resting interest is never counted
// and keeps its level alive even beyond the depth cap.
func (c *converter) trimWorst(out *[]models.SyntheticEvent, meta models.MessageMeta, side *BookSide) {
	if side.Len() <= c.settings.MaxDepth {
		return
	}
	worst, ok := side.Worst()
	if !ok {
		return
	}
	volume := worst.OwnedVolume(models.OwnerSynthetic)
	if !volume.IsPositive() {
		return
	}
	*out = append(*out, c.newEvent(meta, side.Side(), worst.Price, volume, models.TimeInForceGTC, true))
	side.dropSynthetic(worst)
}
