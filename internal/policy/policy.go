// Package policy implements §4.D PlacementPolicy: regime-based thinning of
// the counter-trend side of the ladder set.
package policy

import (
	"github.com/hedgegrid/core/internal/model"
)

// Config holds the `policy.*` configuration keys.
type Config struct {
	LongKeepLevels  int
	ShortKeepLevels int
}

// ShapeLadders thins the counter-trend side in a trending regime, keeping
// the first N rungs (closest levels) of the thinned side. Level indices of
// the kept rungs are preserved — the diff engine correlates by level, not
// position.
func ShapeLadders(long, short model.Ladder, regime model.Regime, cfg Config) (model.Ladder, model.Ladder) {
	switch regime {
	case model.RegimeUp:
		return long, keepFirst(short, cfg.ShortKeepLevels)
	case model.RegimeDown:
		return keepFirst(long, cfg.LongKeepLevels), short
	default:
		return long, short
	}
}

func keepFirst(l model.Ladder, n int) model.Ladder {
	if n >= len(l.Rungs) {
		return l
	}
	if n < 0 {
		n = 0
	}
	out := model.Ladder{Side: l.Side, Rungs: make([]model.Rung, n)}
	copy(out.Rungs, l.Rungs[:n])
	return out
}
