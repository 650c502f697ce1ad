// Package model defines the data types shared by every component of the
// grid engine core: sides, regimes, rungs, ladders, live orders, intents,
// and the events/snapshots the Controller exchanges with its collaborators.
package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Side is the trading direction of a hedge-mode position or order.
type Side int

const (
	Long Side = iota
	Short
)

func (s Side) String() string {
	if s == Short {
		return "SHORT"
	}
	return "LONG"
}

// Abbrev returns the single-letter side code used in client-order ids.
func (s Side) Abbrev() string {
	if s == Short {
		return "S"
	}
	return "L"
}

// Opposite returns the other side of the hedge pair.
func (s Side) Opposite() Side {
	if s == Short {
		return Long
	}
	return Short
}

// Regime classifies the market as trending or ranging. RegimeUndefined is
// reported before the detector has consumed enough bars to be "warm".
type Regime int

const (
	RegimeUndefined Regime = iota
	RegimeUp
	RegimeDown
	RegimeSide
)

func (r Regime) String() string {
	switch r {
	case RegimeUp:
		return "UP"
	case RegimeDown:
		return "DOWN"
	case RegimeSide:
		return "SIDE"
	default:
		return "UNDEFINED"
	}
}

// OrderStatus mirrors the lifecycle states a LiveOrder can be observed in.
type OrderStatus int

const (
	StatusOpen OrderStatus = iota
	StatusPending
	StatusFilled
	StatusCanceled
)

func (s OrderStatus) String() string {
	switch s {
	case StatusOpen:
		return "OPEN"
	case StatusPending:
		return "PENDING"
	case StatusFilled:
		return "FILLED"
	case StatusCanceled:
		return "CANCELED"
	default:
		return "UNKNOWN"
	}
}

// Rung is an intended order at a single grid level.
type Rung struct {
	Side     Side
	Level    int
	Price    decimal.Decimal
	Qty      decimal.Decimal
	TPPrice  decimal.Decimal
	HasTP    bool
	SLPrice  decimal.Decimal
	HasSL    bool
	Tag      string
}

// Valid reports whether the rung satisfies the data-model invariant:
// positive price and quantity, and TP/SL (if present) on the correct
// side of price for the rung's side.
func (r Rung) Valid() bool {
	if !r.Price.IsPositive() || !r.Qty.IsPositive() {
		return false
	}
	if r.HasTP {
		if r.Side == Long && !r.TPPrice.GreaterThan(r.Price) {
			return false
		}
		if r.Side == Short && !r.TPPrice.LessThan(r.Price) {
			return false
		}
	}
	if r.HasSL {
		if r.Side == Long && !r.SLPrice.LessThan(r.Price) {
			return false
		}
		if r.Side == Short && !r.SLPrice.GreaterThan(r.Price) {
			return false
		}
	}
	return true
}

// Ladder is an ordered sequence of rungs sharing a single side.
type Ladder struct {
	Side  Side
	Rungs []Rung
}

// FilterPlaceable removes rungs that would cross the spread at mid, so a
// post-only limit order can still rest as maker.
func (l Ladder) FilterPlaceable(mid decimal.Decimal) Ladder {
	out := Ladder{Side: l.Side, Rungs: make([]Rung, 0, len(l.Rungs))}
	for _, r := range l.Rungs {
		if l.Side == Long && !r.Price.LessThan(mid) {
			continue
		}
		if l.Side == Short && !r.Price.GreaterThan(mid) {
			continue
		}
		out.Rungs = append(out.Rungs, r)
	}
	return out
}

// LiveOrder is an observed exchange order.
type LiveOrder struct {
	ClientOrderID string
	Side          Side
	Price         decimal.Decimal
	Qty           decimal.Decimal
	Status        OrderStatus
}

// Position is the per-(instrument, side) exposure mirrored by the
// PositionCache. AvgEntryPx is meaningful only when Qty > 0.
type Position struct {
	Side       Side
	Qty        decimal.Decimal
	AvgEntryPx decimal.Decimal
}

// InstrumentPrecision holds a venue's tick/step/notional rules.
type InstrumentPrecision struct {
	PriceTick   decimal.Decimal
	QtyStep     decimal.Decimal
	MinNotional decimal.Decimal
	MinQty      decimal.Decimal
	MaxQty      decimal.Decimal
}

// Bar is a single OHLCV market data bar.
type Bar struct {
	Open, High, Low, Close, Volume decimal.Decimal
	TsEvent                        time.Time
	TsInit                         time.Time
}

// MarkPriceUpdate carries the mark price and, when available, the
// instrument's funding rate and next funding timestamp.
type MarkPriceUpdate struct {
	Mark            decimal.Decimal
	FundingRate     decimal.Decimal
	NextFundingTime time.Time
	HasFunding      bool
}

// LiquiditySide distinguishes maker/taker fills.
type LiquiditySide int

const (
	LiquidityMaker LiquiditySide = iota
	LiquidityTaker
)

// FillEvent is delivered by the gateway when an order fills (fully or
// partially).
type FillEvent struct {
	ClientOrderID string
	LastPx        decimal.Decimal
	LastQty       decimal.Decimal
	Liquidity     LiquiditySide
	TsEvent       time.Time
}

// OrderEventKind tags the variant carried by an OrderEvent.
type OrderEventKind int

const (
	EventAccepted OrderEventKind = iota
	EventCanceled
	EventRejected
	EventDenied
	EventExpired
	EventCancelRejected
	EventFilled
)

// OrderEvent is the single union type the gateway delivers on its event
// stream; only the fields relevant to Kind are populated.
type OrderEvent struct {
	Kind          OrderEventKind
	ClientOrderID string
	Reason        string
	Ts            time.Time
	Fill          FillEvent
}

// IntentKind tags the variant carried by an OrderIntent.
type IntentKind int

const (
	IntentCreate IntentKind = iota
	IntentCancel
	IntentReplace
)

// OrderMeta carries the auxiliary fields a Create/Replace intent needs to
// round-trip through the retry handler.
type OrderMeta struct {
	TPPrice      decimal.Decimal
	HasTP        bool
	SLPrice      decimal.Decimal
	HasSL        bool
	Tag          string
	RetryCount   int
	OriginalPrice decimal.Decimal
}

// OrderIntent is an operation the Controller may submit to the gateway.
type OrderIntent struct {
	Kind         IntentKind
	ClientOrderID string // Create: new id. Cancel: id to cancel. Replace: id being replaced.
	ReplaceWith  string // Replace only: the new client-order id.
	Side         Side
	Price        decimal.Decimal
	Qty          decimal.Decimal
	Meta         OrderMeta
}

// DiffResult is the minimal operation set that reconciles live exchange
// orders against a desired ladder state.
type DiffResult struct {
	Adds     []OrderIntent
	Cancels  []OrderIntent
	Replaces []OrderIntent
}

// Empty reports whether the diff produced no operations at all.
func (d DiffResult) Empty() bool {
	return len(d.Adds) == 0 && len(d.Cancels) == 0 && len(d.Replaces) == 0
}

// PersistedState is the on-disk representation of §4.J StatePersistence.
type PersistedState struct {
	PeakBalance  decimal.Decimal `json:"peak_balance"`
	RealizedPnL  decimal.Decimal `json:"realized_pnl"`
	LastSaved    string          `json:"last_saved"`
	InstrumentID string          `json:"instrument_id"`
}

// LaddersSnapshot is the read-only view the operator API consumes.
type LaddersSnapshot struct {
	Center      decimal.Decimal
	LastMid     decimal.Decimal
	Regime      Regime
	Long        Ladder
	Short       Ladder
	GeneratedAt time.Time
}

// MetricsSnapshot is the read-only view the metrics exporter consumes.
type MetricsSnapshot struct {
	Regime               Regime
	DrawdownTriggered    bool
	CircuitBreakerActive bool
	PauseTrading         bool
	CriticalError        bool
	PeakBalance          decimal.Decimal
	RealizedPnL          decimal.Decimal
	OpenOrders           int
	PendingRetries       int
	ErrorWindowSize      int
}

// Logger is the structured-logging interface every component depends on.
// Concrete implementations (internal/logging) wrap zap; tests use a no-op
// or recording stub.
type Logger interface {
	Debug(msg string, fields ...interface{})
	Info(msg string, fields ...interface{})
	Warn(msg string, fields ...interface{})
	Error(msg string, fields ...interface{})
	WithField(key string, value interface{}) Logger
	WithFields(fields map[string]interface{}) Logger
}
