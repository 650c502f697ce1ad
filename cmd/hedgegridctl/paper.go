package main

import (
	"context"
	"sync"
	"time"

	"github.com/hedgegrid/core/internal/model"
	"github.com/shopspring/decimal"
)

// paperVenue is a minimal in-memory stand-in for a real exchange adapter,
// implementing ports.OrderGateway and ports.PositionCache directly so
// hedgegridctl can run end-to-end without network access. It accepts every
// order unconditionally and never fills it — enough to exercise the
// Controller's placement/diff/recenter loop, not a backtest engine.
type paperVenue struct {
	instrument string
	precision  model.InstrumentPrecision

	mu    sync.Mutex
	open  map[string]model.LiveOrder
	mark  decimal.Decimal
	total decimal.Decimal
}

func newPaperVenue(instrument string) *paperVenue {
	return &paperVenue{
		instrument: instrument,
		precision: model.InstrumentPrecision{
			PriceTick: decimal.NewFromFloat(0.1), QtyStep: decimal.NewFromFloat(0.001),
			MinNotional: decimal.NewFromInt(5), MinQty: decimal.NewFromFloat(0.001),
			MaxQty: decimal.NewFromInt(1000),
		},
		open:  make(map[string]model.LiveOrder),
		mark:  decimal.NewFromInt(50000),
		total: decimal.NewFromInt(10000),
	}
}

func (p *paperVenue) Submit(_ context.Context, intent model.OrderIntent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.open[intent.ClientOrderID] = model.LiveOrder{
		ClientOrderID: intent.ClientOrderID, Side: intent.Side,
		Price: intent.Price, Qty: intent.Qty, Status: model.StatusOpen,
	}
	return nil
}

func (p *paperVenue) Cancel(_ context.Context, cid string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.open, cid)
	return nil
}

func (p *paperVenue) OpenOrders(_ context.Context, _ string) ([]model.LiveOrder, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]model.LiveOrder, 0, len(p.open))
	for _, o := range p.open {
		out = append(out, o)
	}
	return out, nil
}

func (p *paperVenue) Positions(_ context.Context) ([]model.Position, error) {
	return nil, nil
}

func (p *paperVenue) AccountBalance(_ context.Context, _ string) (decimal.Decimal, decimal.Decimal, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.total, p.total, nil
}

// SubscribeBars emits a synthetic one-minute bar on a ticker, walking the
// mark price by a small random step each tick.
func (p *paperVenue) SubscribeBars(ctx context.Context, onBar func(model.Bar)) error {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			now := time.Now()
			p.mu.Lock()
			stepBps := decimal.NewFromFloat((rng.Float64() - 0.5) * 20)
			p.mark = p.mark.Mul(decimal.NewFromInt(1).Add(stepBps.Div(decimal.NewFromInt(10000))))
			mark := p.mark
			p.mu.Unlock()
			onBar(model.Bar{Open: mark, High: mark, Low: mark, Close: mark, Volume: decimal.Zero, TsEvent: now, TsInit: now})
		}
	}
}

// SubscribeMarkPrice mirrors the same walked price with no funding data —
// a venue without a funding feed simply never reports HasFunding.
func (p *paperVenue) SubscribeMarkPrice(ctx context.Context, onMark func(model.MarkPriceUpdate)) error {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			p.mu.Lock()
			mark := p.mark
			p.mu.Unlock()
			onMark(model.MarkPriceUpdate{Mark: mark})
		}
	}
}
