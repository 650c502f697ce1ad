// Package funding implements §4.E FundingGuard: reduces or suppresses
// exposure on the side that pays funding when a funding event is near and
// projected to be costly. Grounded on the per-symbol rate cache shape of
// internal/trading/monitor.FundingMonitor, scoped to the single instrument
// a Controller owns.
package funding

import (
	"time"

	"github.com/hedgegrid/core/internal/model"
	"github.com/shopspring/decimal"
)

// Config holds the `funding.*` configuration keys.
type Config struct {
	FundingWindowMinutes int
	FundingMaxCostBps    decimal.Decimal
}

// Guard is passive (AdjustLadders is a no-op) until fed a rate via Update
// — backtest environments without funding data never trigger it.
type Guard struct {
	hasRate         bool
	rate            decimal.Decimal
	nextFundingTime time.Time
}

func New() *Guard {
	return &Guard{}
}

// Update records the latest funding rate and next funding timestamp.
func (g *Guard) Update(rate decimal.Decimal, nextFundingTime time.Time) {
	g.hasRate = true
	g.rate = rate
	g.nextFundingTime = nextFundingTime
}

// payingSide returns the side that pays funding for the current rate:
// longs pay when rate > 0, shorts pay when rate < 0.
func (g *Guard) payingSide() (model.Side, bool) {
	if g.rate.IsPositive() {
		return model.Long, true
	}
	if g.rate.IsNegative() {
		return model.Short, true
	}
	return model.Long, false
}

// inventoryProxy approximates the ladder's notional exposure on a side as
// the sum of price*qty across its rungs.
func inventoryProxy(l model.Ladder) decimal.Decimal {
	total := decimal.Zero
	for _, r := range l.Rungs {
		total = total.Add(r.Price.Mul(r.Qty))
	}
	return total
}

// AdjustLadders suppresses the paying side's ladder entirely (returns it
// with no rungs) when now is within the funding window and the projected
// 8h cost exceeds the configured maximum; otherwise the ladders pass
// through unchanged. It never thins a ladder partially.
func (g *Guard) AdjustLadders(long, short model.Ladder, now time.Time, cfg Config) (model.Ladder, model.Ladder) {
	if !g.hasRate {
		return long, short
	}

	window := time.Duration(cfg.FundingWindowMinutes) * time.Minute
	if g.nextFundingTime.IsZero() || now.Before(g.nextFundingTime.Add(-window)) || now.After(g.nextFundingTime) {
		return long, short
	}

	side, paying := g.payingSide()
	if !paying {
		return long, short
	}

	// Projected 8h funding cost in bps of the paying side's notional. The
	// inventory proxy multiplies in and divides back out, so the result is
	// |rate| * 10000 whatever is resting on that side; a paying side with
	// no notional leaves the ladders unchanged.
	target := long
	if side == model.Short {
		target = short
	}
	proxy := inventoryProxy(target)
	if proxy.IsZero() {
		return long, short
	}
	projectedCostBps := g.rate.Abs().Mul(proxy).Div(proxy).Mul(decimal.NewFromInt(10000))

	if projectedCostBps.LessThanOrEqual(cfg.FundingMaxCostBps) {
		return long, short
	}

	suppressed := model.Ladder{Side: target.Side}
	if side == model.Long {
		return suppressed, short
	}
	return long, suppressed
}
