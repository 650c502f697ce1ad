// Package grid implements §4.C GridEngine: symmetric price ladder
// construction around a stable center price, generalizing the teacher's
// single-side trailing grid (internal/trading/grid/strategy.go,
// pkg/tradingutils.CalculatePriceLevels/FindNearestGridPrice) to a
// dual-side (LONG+SHORT) hedge-mode ladder with regime-directional bias.
package grid

import (
	"github.com/hedgegrid/core/internal/model"
	"github.com/shopspring/decimal"
)

// Config holds the `grid.*` configuration keys.
type Config struct {
	GridStepBps          decimal.Decimal
	NRungs               int
	BaseQty              decimal.Decimal
	RecenterThresholdBps decimal.Decimal
	UpBias               decimal.Decimal
	DownBias             decimal.Decimal
	SideBias             decimal.Decimal
}

var ten000 = decimal.NewFromInt(10000)

// BuildLadders constructs the LONG and SHORT ladders around center. Rung i
// (1-indexed) sits at an offset of i*grid_step_bps basis points from
// center. Quantity is base_qty scaled by a regime-directional bias: more
// inventory builds on the counter-trend side (SHORT in an UP regime, LONG
// in a DOWN regime), since that side accumulates further from price as the
// trend extends; SIDE applies side_bias symmetrically to both sides.
func BuildLadders(center decimal.Decimal, cfg Config, regime model.Regime) (long, short model.Ladder) {
	long = model.Ladder{Side: model.Long, Rungs: make([]model.Rung, 0, cfg.NRungs)}
	short = model.Ladder{Side: model.Short, Rungs: make([]model.Rung, 0, cfg.NRungs)}

	for i := 1; i <= cfg.NRungs; i++ {
		offset := center.Mul(cfg.GridStepBps).Mul(decimal.NewFromInt(int64(i))).Div(ten000)

		longQty := cfg.BaseQty
		shortQty := cfg.BaseQty
		switch regime {
		case model.RegimeUp:
			shortQty = shortQty.Mul(cfg.UpBias)
		case model.RegimeDown:
			longQty = longQty.Mul(cfg.DownBias)
		case model.RegimeSide:
			longQty = longQty.Mul(cfg.SideBias)
			shortQty = shortQty.Mul(cfg.SideBias)
		}

		long.Rungs = append(long.Rungs, model.Rung{
			Side: model.Long, Level: i, Price: center.Sub(offset), Qty: longQty,
		})
		short.Rungs = append(short.Rungs, model.Rung{
			Side: model.Short, Level: i, Price: center.Add(offset), Qty: shortQty,
		})
	}
	return long, short
}

// RecenterNeeded reports whether the market has drifted far enough from
// the last center to justify rebuilding the ladders around a new one.
func RecenterNeeded(mid, lastCenter decimal.Decimal, cfg Config) bool {
	if lastCenter.IsZero() {
		return true
	}
	drift := mid.Sub(lastCenter).Abs().Div(lastCenter).Mul(ten000)
	return drift.GreaterThan(cfg.RecenterThresholdBps)
}
