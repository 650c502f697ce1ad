// Package precision implements §4.A PrecisionGuard: pure, stateless
// clamping of planned ladder rungs to venue tick/step/notional rules.
package precision

import (
	"github.com/hedgegrid/core/internal/apperrors"
	"github.com/hedgegrid/core/internal/model"
	"github.com/shopspring/decimal"
)

// Guard clamps prices and quantities to an instrument's precision rules.
// It holds no mutable state and is safe to call from any goroutine.
type Guard struct {
	precision model.InstrumentPrecision
}

func New(p model.InstrumentPrecision) Guard {
	return Guard{precision: p}
}

// ClampPrice rounds to the nearest tick, not floor, minimizing displacement
// from the caller's intent.
func (g Guard) ClampPrice(p decimal.Decimal) decimal.Decimal {
	tick := g.precision.PriceTick
	if tick.IsZero() {
		return p
	}
	units := p.DivRound(tick, 0)
	return units.Mul(tick)
}

// ClampQty floors to the step (never ceils — conservative for risk), then
// zeroes out below min_qty or caps at max_qty.
func (g Guard) ClampQty(q decimal.Decimal) decimal.Decimal {
	step := g.precision.QtyStep
	var clamped decimal.Decimal
	if step.IsZero() {
		clamped = q
	} else {
		units := q.Div(step).Floor()
		clamped = units.Mul(step)
	}
	if clamped.LessThan(g.precision.MinQty) {
		return decimal.Zero
	}
	if clamped.GreaterThan(g.precision.MaxQty) {
		return g.precision.MaxQty
	}
	return clamped
}

// ValidateNotional reports whether price*qty clears the venue minimum.
func (g Guard) ValidateNotional(p, q decimal.Decimal) bool {
	return p.Mul(q).GreaterThanOrEqual(g.precision.MinNotional)
}

// ClampRung clamps a rung's price and qty, preserving side/tp/sl/tag. It
// returns ok=false when the clamped qty is zero or the clamped notional
// fails the venue minimum — the caller must drop such rungs.
func (g Guard) ClampRung(r model.Rung) (model.Rung, bool) {
	out := r
	out.Price = g.ClampPrice(r.Price)
	out.Qty = g.ClampQty(r.Qty)
	if out.Qty.IsZero() {
		return model.Rung{}, false
	}
	if !g.ValidateNotional(out.Price, out.Qty) {
		return model.Rung{}, false
	}
	if r.HasTP {
		out.TPPrice = g.ClampPrice(r.TPPrice)
	}
	if r.HasSL {
		out.SLPrice = g.ClampPrice(r.SLPrice)
	}
	return out, true
}

// Precision exposes the underlying instrument rules (read-only).
func (g Guard) Precision() model.InstrumentPrecision {
	return g.precision
}

// ValidateRung reports ErrInvalidRung for a rung malformed enough that it
// should never reach ClampRung: non-positive price/qty, or a TP/SL on the
// wrong side of a resting order.
func ValidateRung(r model.Rung) error {
	if !r.Price.IsPositive() || !r.Qty.IsPositive() {
		return apperrors.ErrInvalidRung
	}
	if r.HasTP {
		if r.Side == model.Long && r.TPPrice.LessThanOrEqual(r.Price) {
			return apperrors.ErrInvalidRung
		}
		if r.Side == model.Short && r.TPPrice.GreaterThanOrEqual(r.Price) {
			return apperrors.ErrInvalidRung
		}
	}
	if r.HasSL {
		if r.Side == model.Long && r.SLPrice.GreaterThanOrEqual(r.Price) {
			return apperrors.ErrInvalidRung
		}
		if r.Side == model.Short && r.SLPrice.LessThanOrEqual(r.Price) {
			return apperrors.ErrInvalidRung
		}
	}
	return nil
}

// ValidatePrecision reports ErrInvalidPrecision when an instrument's tick
// /step/notional rules are internally inconsistent (non-positive tick/step,
// or min_qty exceeding max_qty) — a guard built from such rules would clamp
// every rung to zero or never validate notional.
func (g Guard) ValidatePrecision() error {
	p := g.precision
	if !p.PriceTick.IsPositive() || !p.QtyStep.IsPositive() {
		return apperrors.ErrInvalidPrecision
	}
	if p.MaxQty.IsPositive() && p.MinQty.GreaterThan(p.MaxQty) {
		return apperrors.ErrInvalidPrecision
	}
	return nil
}
