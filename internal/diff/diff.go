// Package diff implements §4.F OrderDiff, the core reconciler: it turns a
// desired pair of ladders and the observed live orders into the minimal
// Create/Replace/Cancel operation set, generalizing the ghost-fill/zombie
// -slot matching of internal/trading/reconciler.ReconcileOrders from a
// single price-keyed slot map to a (side, level) keyed comparison against
// client-order-id encoded intent.
package diff

import (
	"github.com/hedgegrid/core/internal/model"
	"github.com/hedgegrid/core/internal/precision"
	"github.com/shopspring/decimal"
)

// Config holds the `execution.order_diff_*` tolerance keys.
type Config struct {
	PriceToleranceBps decimal.Decimal
	QtyTolerancePct   decimal.Decimal
}

type rungKey struct {
	side  model.Side
	level int
}

// Diff computes the DiffResult transitioning live toward a precision
// -clamped projection of long and short, per the §4.F algorithm. strategy
// and nowMs seed newly minted client-order ids.
func Diff(long, short model.Ladder, live []model.LiveOrder, guard precision.Guard, cfg Config, strategy string, nowMs int64) model.DiffResult {
	var result model.DiffResult

	type liveEntry struct {
		key    rungKey
		order  model.LiveOrder
		parsed bool
	}
	liveByKey := make(map[rungKey]model.LiveOrder)
	var liveOrder []liveEntry
	for _, o := range live {
		if o.Status != model.StatusOpen {
			continue
		}
		cid, ok := model.ParseClientOrderID(o.ClientOrderID)
		if !ok {
			// Unparseable ids can never match a desired rung: left
			// unmatched, they are cancelled below.
			liveOrder = append(liveOrder, liveEntry{order: o})
			continue
		}
		if cid.Kind != model.KindGrid {
			continue
		}
		k := rungKey{side: cid.Side, level: cid.Level}
		liveByKey[k] = o
		liveOrder = append(liveOrder, liveEntry{key: k, parsed: true})
	}
	matched := make(map[rungKey]bool)

	process := func(l model.Ladder) {
		for _, r := range l.Rungs {
			if precision.ValidateRung(r) != nil {
				continue
			}
			clamped, ok := guard.ClampRung(r)
			if !ok {
				continue
			}
			k := rungKey{side: clamped.Side, level: clamped.Level}
			newCid := model.FormatClientOrderID(model.ClientOrderId{
				Strategy: strategy, Kind: model.KindGrid, Side: clamped.Side,
				Level: clamped.Level, TimestampMs: nowMs, Counter: model.NextCounter(),
			})

			liveOrd, exists := liveByKey[k]
			if !exists {
				result.Adds = append(result.Adds, intentFor(model.IntentCreate, newCid, "", clamped))
				continue
			}
			matched[k] = true
			if matches(liveOrd, clamped, cfg) {
				continue
			}
			intent := intentFor(model.IntentReplace, liveOrd.ClientOrderID, newCid, clamped)
			result.Replaces = append(result.Replaces, intent)
		}
	}
	process(long)
	process(short)

	for _, e := range liveOrder {
		o := e.order
		if e.parsed {
			if matched[e.key] {
				continue
			}
			o = liveByKey[e.key]
		}
		result.Cancels = append(result.Cancels, model.OrderIntent{
			Kind: model.IntentCancel, ClientOrderID: o.ClientOrderID, Side: o.Side,
		})
	}

	return result
}

// matches reports whether a live order already satisfies a desired rung
// within the configured price/qty tolerance. Side identity must be exact.
func matches(live model.LiveOrder, desired model.Rung, cfg Config) bool {
	if live.Side != desired.Side {
		return false
	}
	if live.Price.IsZero() {
		return false
	}
	priceDriftBps := desired.Price.Sub(live.Price).Abs().Div(live.Price).Mul(decimal.NewFromInt(10000))
	if priceDriftBps.GreaterThan(cfg.PriceToleranceBps) {
		return false
	}
	if live.Qty.IsZero() {
		return false
	}
	qtyDrift := desired.Qty.Sub(live.Qty).Abs().Div(live.Qty)
	if qtyDrift.GreaterThan(cfg.QtyTolerancePct) {
		return false
	}
	return true
}

func intentFor(kind model.IntentKind, cid, replaceWith string, r model.Rung) model.OrderIntent {
	return model.OrderIntent{
		Kind: kind, ClientOrderID: cid, ReplaceWith: replaceWith,
		Side: r.Side, Price: r.Price, Qty: r.Qty,
		Meta: model.OrderMeta{TPPrice: r.TPPrice, HasTP: r.HasTP, SLPrice: r.SLPrice, HasSL: r.HasSL, Tag: r.Tag},
	}
}
