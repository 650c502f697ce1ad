// Package exit implements §4.H ExitManager: TP/SL order pairs attached to
// each filled grid rung, OCO-like cancellation between a pair, and the
// postpone-on-position-lag and recenter-triggered teardown behavior.
// Grounded directly on original_source's hedge_grid_v1 exit manager (the
// two-position-per-instrument hedge-mode model has no surviving Go
// analogue in the retrieved pack), expressed in the teacher's mutex
// -guarded-map style (internal/core tools, pkg/tradingutils helpers).
package exit

import (
	"strconv"
	"sync"

	"github.com/hedgegrid/core/internal/model"
	"github.com/hedgegrid/core/internal/precision"
	"github.com/shopspring/decimal"
)

// Config holds the `exit.tp_steps`/`exit.sl_steps` keys, the grid step
// the TP/SL offsets are measured in, and the position-lag retry bound.
type Config struct {
	TPSteps                int
	SLSteps                int
	GridStepBps             decimal.Decimal
	MaxPositionLagRetries   int
}

// pair tracks the TP/SL client-order ids attached to one filled rung.
type pair struct {
	tpCid string
	slCid string
	side  model.Side
}

// PositionLookup resolves the currently known quantity held on a side, so
// TP/SL sizing never exceeds what the position cache has confirmed.
type PositionLookup func(side model.Side) decimal.Decimal

// Manager owns the exit-order pair registry for one instrument.
type Manager struct {
	mu             sync.Mutex
	pairs          map[string]pair  // fill_key -> pair
	fillsWithExits map[string]bool  // fill_key -> has exits
	retryCounts    map[string]int   // fill_key -> postpone count
	guard          precision.Guard
	strategy       string
}

func New(strategy string, guard precision.Guard) *Manager {
	return &Manager{
		pairs:          make(map[string]pair),
		fillsWithExits: make(map[string]bool),
		retryCounts:    make(map[string]int),
		guard:          guard,
		strategy:       strategy,
	}
}

func fillKey(side model.Side, level int) string {
	if side == model.Short {
		return "SHORT-" + strconv.Itoa(level)
	}
	return "LONG-" + strconv.Itoa(level)
}

// OnGridFill computes the TP/SL pair for a grid fill and returns the two
// Create intents, or ok=false when position-cache lag postpones creation.
// availableQty is the position cache's currently confirmed quantity for
// the fill's side; when it is less than fillQty the fill is postponed up
// to cfg.MaxPositionLagRetries times.
func (m *Manager) OnGridFill(side model.Side, level int, fillPrice, fillQty, availableQty decimal.Decimal, cfg Config, nowMs int64) ([]model.OrderIntent, bool) {
	key := fillKey(side, level)

	m.mu.Lock()
	if availableQty.LessThan(fillQty) {
		m.retryCounts[key]++
		count := m.retryCounts[key]
		delete(m.fillsWithExits, key)
		m.mu.Unlock()
		if count > cfg.MaxPositionLagRetries {
			m.mu.Lock()
			delete(m.retryCounts, key)
			m.mu.Unlock()
		}
		return nil, false
	}
	delete(m.retryCounts, key)
	m.mu.Unlock()

	step := fillPrice.Mul(cfg.GridStepBps).Div(decimal.NewFromInt(10000))
	tpOffset := step.Mul(decimal.NewFromInt(int64(cfg.TPSteps)))
	slOffset := step.Mul(decimal.NewFromInt(int64(cfg.SLSteps)))

	var tpPrice, slPrice decimal.Decimal
	if side == model.Long {
		tpPrice = fillPrice.Add(tpOffset)
		slPrice = floorAboveZero(fillPrice.Sub(slOffset))
	} else {
		tpPrice = floorAboveZero(fillPrice.Sub(tpOffset))
		slPrice = fillPrice.Add(slOffset)
	}
	tpPrice = m.guard.ClampPrice(tpPrice)
	slPrice = m.guard.ClampPrice(slPrice)

	tpCid := model.FormatClientOrderID(model.ClientOrderId{Strategy: m.strategy, Kind: model.KindTP, Side: side, Level: level, TimestampMs: nowMs, Counter: model.NextCounter()})
	slCid := model.FormatClientOrderID(model.ClientOrderId{Strategy: m.strategy, Kind: model.KindSL, Side: side, Level: level, TimestampMs: nowMs, Counter: model.NextCounter()})

	m.mu.Lock()
	m.pairs[key] = pair{tpCid: tpCid, slCid: slCid, side: side}
	m.fillsWithExits[key] = true
	m.mu.Unlock()

	return []model.OrderIntent{
		{Kind: model.IntentCreate, ClientOrderID: tpCid, Side: side.Opposite(), Price: tpPrice, Qty: fillQty, Meta: model.OrderMeta{Tag: "TP"}},
		{Kind: model.IntentCreate, ClientOrderID: slCid, Side: side.Opposite(), Price: slPrice, Qty: fillQty, Meta: model.OrderMeta{Tag: "SL"}},
	}, true
}

func floorAboveZero(p decimal.Decimal) decimal.Decimal {
	if p.IsNegative() {
		return decimal.Zero
	}
	return p
}

// OnExitFilled cancels the sibling of whichever exit filled, per the
// OCO contract. positionClosed additionally triggers orphan cleanup of
// every other exit order resting on that side.
func (m *Manager) OnExitFilled(filledCid string, positionClosed bool) []model.OrderIntent {
	cid, ok := model.ParseClientOrderID(filledCid)
	if !ok {
		return nil
	}
	key := fillKey(cid.Side, cid.Level)

	m.mu.Lock()
	p, found := m.pairs[key]
	if found {
		delete(m.pairs, key)
		delete(m.fillsWithExits, key)
	}
	var orphans []pair
	if positionClosed {
		for k, other := range m.pairs {
			if other.side == cid.Side {
				orphans = append(orphans, other)
				delete(m.pairs, k)
				delete(m.fillsWithExits, k)
			}
		}
	}
	m.mu.Unlock()

	var cancels []model.OrderIntent
	if found {
		sibling := p.slCid
		if cid.Kind == model.KindSL {
			sibling = p.tpCid
		}
		if sibling != "" && sibling != filledCid {
			cancels = append(cancels, model.OrderIntent{Kind: model.IntentCancel, ClientOrderID: sibling, Side: cid.Side})
		}
	}
	for _, o := range orphans {
		cancels = append(cancels, model.OrderIntent{Kind: model.IntentCancel, ClientOrderID: o.tpCid, Side: o.side})
		cancels = append(cancels, model.OrderIntent{Kind: model.IntentCancel, ClientOrderID: o.slCid, Side: o.side})
	}
	return cancels
}

// OnRecenter cancels every tracked exit order and clears the registry,
// so the caller can rebuild exit coverage (§4.K position reconciliation)
// for whatever positions survive at the new grid center.
func (m *Manager) OnRecenter() []model.OrderIntent {
	m.mu.Lock()
	defer m.mu.Unlock()

	var cancels []model.OrderIntent
	for _, p := range m.pairs {
		cancels = append(cancels, model.OrderIntent{Kind: model.IntentCancel, ClientOrderID: p.tpCid, Side: p.side})
		cancels = append(cancels, model.OrderIntent{Kind: model.IntentCancel, ClientOrderID: p.slCid, Side: p.side})
	}
	m.pairs = make(map[string]pair)
	m.fillsWithExits = make(map[string]bool)
	return cancels
}

// HasExits reports whether a fill key currently has a tracked exit pair.
func (m *Manager) HasExits(side model.Side, level int) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.fillsWithExits[fillKey(side, level)]
}

// PendingCount reports how many exit pairs are currently tracked.
func (m *Manager) PendingCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.pairs)
}
