// Package ports defines the external collaborators the Controller consumes,
// as named interfaces only. Historical data ingestion, HTTP exposition, the
// backtest host, and venue-specific wire adapters live outside this module
// and are expected to implement these ports; the module's own
// cmd/hedgegridctl host implements them with an in-memory paper venue.
package ports

import (
	"context"
	"time"

	"github.com/hedgegrid/core/internal/model"
	"github.com/shopspring/decimal"
)

// Clock is the single injected time source. Every timestamp in the core
// must come from here — never from a mix of wall-clock and bar time.
type Clock interface {
	Now() time.Time
}

// MarketDataFeed delivers bars and, where the venue supports it, mark
// price/funding updates. Subscribe blocks delivering callbacks until ctx
// is canceled; it is the host's job to run it on its own goroutine.
type MarketDataFeed interface {
	SubscribeBars(ctx context.Context, onBar func(model.Bar)) error
	SubscribeMarkPrice(ctx context.Context, onMark func(model.MarkPriceUpdate)) error
}

// OrderGateway is the best-effort submit/cancel surface; results are
// delivered asynchronously via the event stream the host wires into the
// Controller's OnOrderEvent.
type OrderGateway interface {
	Submit(ctx context.Context, intent model.OrderIntent) error
	Cancel(ctx context.Context, clientOrderID string) error
	OpenOrders(ctx context.Context, clientIDPrefix string) ([]model.LiveOrder, error)
}

// PositionCache mirrors exchange-owned position state.
type PositionCache interface {
	Positions(ctx context.Context) ([]model.Position, error)
	AccountBalance(ctx context.Context, ccy string) (total, free decimal.Decimal, err error)
}

// StateStore persists and restores §4.J PersistedState.
type StateStore interface {
	Save(ctx context.Context, s model.PersistedState) error
	Load(ctx context.Context) (model.PersistedState, error)
}
