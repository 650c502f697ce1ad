// Package regime implements §4.B RegimeDetector: classification of the bar
// stream into UP/DOWN/SIDE with hysteresis, backed by EMA/ADX/ATR.
package regime

import (
	"sync"

	"github.com/hedgegrid/core/internal/model"
	"github.com/shopspring/decimal"
)

// Config holds the indicator lookbacks and classification thresholds from
// the `regime.*` config keys.
type Config struct {
	EmaFast        int
	EmaSlow        int
	AdxLen         int
	AtrLen         int
	HysteresisBps  decimal.Decimal
	TrendingADX    decimal.Decimal
}

func (c Config) maxLookback() int {
	m := c.EmaSlow
	if c.AdxLen > m {
		m = c.AdxLen
	}
	if c.AtrLen > m {
		m = c.AtrLen
	}
	return m
}

// maxHistory bounds the bar buffer so memory does not grow unboundedly
// across a long-running session.
const maxHistory = 2000

// Detector is the stateful regime classifier. Its value is a pure function
// of the bars it has seen (no other hidden state), satisfying the
// testable property in spec.md §8.
type Detector struct {
	cfg Config

	mu      sync.RWMutex
	bars    []model.Bar
	emaFast decimal.Decimal
	emaSlow decimal.Decimal
	adxVal  decimal.Decimal
	atrVal  decimal.Decimal
	warm    bool
	current model.Regime
}

func New(cfg Config) *Detector {
	return &Detector{cfg: cfg, current: model.RegimeUndefined}
}

// Update feeds a new bar (live or warmup — both go through this single
// entry point) and returns the regime after classification.
func (d *Detector) Update(bar model.Bar) model.Regime {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.bars = append(d.bars, bar)
	if len(d.bars) > maxHistory {
		d.bars = d.bars[len(d.bars)-maxHistory:]
	}

	need := d.cfg.maxLookback()
	if len(d.bars) < need {
		d.warm = false
		return d.current
	}
	d.warm = true

	d.emaFast = ema(d.bars, d.cfg.EmaFast)
	d.emaSlow = ema(d.bars, d.cfg.EmaSlow)
	d.atrVal = atr(d.bars, d.cfg.AtrLen)
	d.adxVal = adx(d.bars, d.cfg.AdxLen)

	d.current = d.classify()
	return d.current
}

func (d *Detector) classify() model.Regime {
	if d.emaSlow.IsZero() {
		return model.RegimeSide
	}
	ratio := d.emaFast.Div(d.emaSlow).Sub(decimal.NewFromInt(1)).Mul(decimal.NewFromInt(10000))

	if ratio.Abs().LessThanOrEqual(d.cfg.HysteresisBps) {
		return model.RegimeSide
	}
	if ratio.IsPositive() && d.adxVal.GreaterThanOrEqual(d.cfg.TrendingADX) {
		return model.RegimeUp
	}
	if ratio.IsNegative() && d.adxVal.GreaterThanOrEqual(d.cfg.TrendingADX) {
		return model.RegimeDown
	}
	// Neither threshold cleared: retain the previous regime (hysteresis).
	if d.current == model.RegimeUndefined {
		return model.RegimeSide
	}
	return d.current
}

// Warm reports whether the detector has consumed enough bars to classify.
func (d *Detector) Warm() bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.warm
}

// Current returns the last classified regime without feeding a new bar.
func (d *Detector) Current() model.Regime {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.current
}

// ATR exposes the latest average true range, available to callers that
// want a volatility proxy once warm (e.g. an operator dashboard); the
// classification itself does not depend on it beyond gating warmth.
func (d *Detector) ATR() decimal.Decimal {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.atrVal
}
