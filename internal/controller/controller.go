// Package controller implements §4.K Controller: the per-bar
// orchestration loop that wires RegimeDetector, GridEngine,
// PlacementPolicy, FundingGuard, OrderDiff, PostOnlyRetryHandler,
// ExitManager, RiskManager, and StatePersistence together, and the
// per-event routing that keeps the live-order cache authoritative.
// Grounded on the lean-orchestrator shape of
// internal/engine/gridengine.GridEngine (mutex-protected state,
// OnPriceUpdate → CalculateActions → execute) generalized from a single
// price callback to the full bar/event lifecycle, and on
// internal/risk.RiskMonitor's worker-pool-backed concurrent dispatch.
package controller

import (
	"context"
	"sync"
	"time"

	"github.com/hedgegrid/core/internal/apperrors"
	"github.com/hedgegrid/core/internal/diff"
	"github.com/hedgegrid/core/internal/exit"
	"github.com/hedgegrid/core/internal/funding"
	"github.com/hedgegrid/core/internal/grid"
	"github.com/hedgegrid/core/internal/model"
	"github.com/hedgegrid/core/internal/policy"
	"github.com/hedgegrid/core/internal/ports"
	"github.com/hedgegrid/core/internal/precision"
	"github.com/hedgegrid/core/internal/regime"
	"github.com/hedgegrid/core/internal/retry"
	"github.com/hedgegrid/core/internal/risk"
	"github.com/hedgegrid/core/pkg/concurrency"
	"github.com/shopspring/decimal"
)

const (
	maxPendingRetries      = 50
	maxProcessedRejections = 100
)

// Config bundles every sub-component's configuration, mirroring the
// `§6 Config keys consumed` grouping.
type Config struct {
	Grid      grid.Config
	Regime    regime.Config
	Policy    policy.Config
	Funding   funding.Config
	Diff      diff.Config
	Retry     retry.Config
	Exit      exit.Config
	Risk      risk.Config
	MaxBarStaleness time.Duration
	OptimizationMode bool
}

// Controller is the single per-instrument orchestrator. Its own state is
// guarded by one mutex, c.mu, which each exported method holds for its
// whole body, including the gateway and position-cache calls it makes
// (with a nil pool, order dispatch also runs synchronously under it).
type Controller struct {
	logger       model.Logger
	clock        ports.Clock
	gateway      ports.OrderGateway
	posCache     ports.PositionCache
	stateStore   ports.StateStore
	guard        precision.Guard
	strategy     string
	instrumentID string
	pool         *concurrency.WorkerPool

	detector      *regime.Detector
	fundingGuard  *funding.Guard
	retryHandler  *retry.Handler
	exitManager   *exit.Manager
	riskManager   *risk.Manager
	cfg           Config

	mu               sync.Mutex
	center           decimal.Decimal
	lastMid          decimal.Decimal
	lastBarTs        time.Time
	startTime        time.Time
	reconciledOnce   bool
	gridOrdersCache  map[string]model.LiveOrder
	pendingRetries   map[string]bool
	pendingOrder     []string
	processedRejects map[string]bool
	rejectOrder      []string
	lastLong         model.Ladder
	lastShort        model.Ladder
	realizedPnL      decimal.Decimal
}

// New constructs a Controller for one instrument.
func New(
	logger model.Logger,
	clock ports.Clock,
	gateway ports.OrderGateway,
	posCache ports.PositionCache,
	stateStore ports.StateStore,
	guard precision.Guard,
	strategy, instrumentID string,
	pool *concurrency.WorkerPool,
	cfg Config,
) *Controller {
	if err := guard.ValidatePrecision(); err != nil {
		logger.Error("instrument precision is malformed", "instrument", instrumentID, "error", err.Error())
	}
	return &Controller{
		logger:           logger.WithField("component", "controller").WithField("instrument", instrumentID),
		clock:            clock,
		gateway:          gateway,
		posCache:         posCache,
		stateStore:       stateStore,
		guard:            guard,
		strategy:         strategy,
		instrumentID:     instrumentID,
		pool:             pool,
		detector:         regime.New(cfg.Regime),
		fundingGuard:     funding.New(),
		retryHandler:     retry.New(strategy, guard, cfg.Retry),
		exitManager:      exit.New(strategy, guard),
		riskManager:      risk.New(),
		cfg:              cfg,
		gridOrdersCache:  make(map[string]model.LiveOrder),
		pendingRetries:   make(map[string]bool),
		processedRejects: make(map[string]bool),
	}
}

// Start runs the startup sequence: hydrate the live-order cache from the
// gateway, load persisted state, and record the start time.
func (c *Controller) Start(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.startTime = c.clock.Now()

	if open, err := c.gateway.OpenOrders(ctx, c.strategy); err != nil {
		c.logger.Warn("failed to hydrate live order cache", "error", err.Error())
	} else {
		for _, o := range open {
			c.gridOrdersCache[o.ClientOrderID] = o
		}
	}

	if !c.cfg.OptimizationMode {
		if st, err := c.stateStore.Load(ctx); err == nil && st.InstrumentID != "" {
			c.realizedPnL = st.RealizedPnL
			c.riskManager.CheckDrawdown(st.PeakBalance, c.cfg.Risk)
			c.logger.Info("restored persisted strategy state", "peak_balance", st.PeakBalance.String())
		}
	}

	return nil
}

// OnMarkPrice feeds a mark-price/funding update to the FundingGuard. Venues
// without a mark-price stream simply never call this, leaving the guard
// passive (AdjustLadders becomes a no-op) per its documented zero-value
// behavior.
func (c *Controller) OnMarkPrice(update model.MarkPriceUpdate) {
	if !update.HasFunding {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.fundingGuard.Update(update.FundingRate, update.NextFundingTime)
}

// OnBar runs one iteration of the per-bar loop (§4.K steps 1-11).
func (c *Controller) OnBar(ctx context.Context, bar model.Bar) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	// Step 1: halt check.
	if c.riskManager.ShouldHalt() {
		return nil
	}

	// Step 2: drawdown check, unconditional, even during warmup.
	if total, _, err := c.posCache.AccountBalance(ctx, ""); err == nil {
		if c.riskManager.CheckDrawdown(total, c.cfg.Risk) {
			c.cancelAll(ctx)
			c.logger.Error("drawdown threshold breached, trading paused")
			return nil
		}
	}

	// Step 3: bar staleness.
	c.lastBarTs = bar.TsEvent
	stale := c.cfg.MaxBarStaleness > 0 && c.clock.Now().Sub(bar.TsEvent) > c.cfg.MaxBarStaleness

	// Step 4: feed regime detector; require warm.
	regimeNow := c.detector.Update(bar)
	if !c.detector.Warm() {
		return nil
	}

	// Step 5: circuit breaker cooldown check.
	now := c.clock.Now()
	if c.riskManager.CircuitBreakerActive(now, c.cfg.Risk) {
		return nil
	}

	if stale {
		return nil
	}

	mid := bar.Close

	// Step 6: one-shot position reconciliation.
	if !c.reconciledOnce {
		c.reconcilePositions(ctx)
		c.reconciledOnce = true
	}

	// Step 7: recenter.
	if grid.RecenterNeeded(mid, c.center, c.cfg.Grid) {
		for _, cancel := range c.exitManager.OnRecenter() {
			c.submit(ctx, cancel)
		}
		c.center = mid
		c.reconcilePositions(ctx)
	}
	c.lastMid = mid

	// Step 8: build + shape ladders.
	long, short := grid.BuildLadders(c.center, c.cfg.Grid, regimeNow)
	long, short = policy.ShapeLadders(long, short, regimeNow, c.cfg.Policy)
	long, short = c.fundingGuard.AdjustLadders(long, short, now, c.cfg.Funding)
	long = long.FilterPlaceable(mid)
	short = short.FilterPlaceable(mid)

	// Step 9: snapshot.
	c.lastLong, c.lastShort = long, short

	// Step 10: diff against the live cache.
	live := make([]model.LiveOrder, 0, len(c.gridOrdersCache))
	for _, o := range c.gridOrdersCache {
		live = append(live, o)
	}
	result := diff.Diff(long, short, live, c.guard, c.cfg.Diff, c.strategy, now.UnixMilli())

	// Step 11: submit.
	c.submitDiff(ctx, result)

	return nil
}

func (c *Controller) submitDiff(ctx context.Context, result model.DiffResult) {
	total, _, err := c.posCache.AccountBalance(ctx, "")
	if err != nil {
		total = decimal.Zero
	}
	positions, err := c.posCache.Positions(ctx)
	if err != nil {
		positions = nil
	}
	for _, add := range result.Adds {
		existingQty, existingAvgPx := positionExposure(positions, add.Side)
		notional := add.Price.Mul(add.Qty)
		if !c.riskManager.ValidatePositionSize(existingQty, existingAvgPx, c.pendingNotional(add.Side), notional, total, c.cfg.Risk) {
			c.logger.Warn("rejecting create", "cid", add.ClientOrderID, "error", apperrors.ErrPositionLimitExceeded.Error())
			continue
		}
		c.submit(ctx, add)
		c.trackPendingRetry(add.ClientOrderID)
	}
	for _, replace := range result.Replaces {
		c.submit(ctx, replace)
	}
	for _, cancel := range result.Cancels {
		c.submit(ctx, cancel)
	}
}

// positionExposure returns the currently held qty/avg-entry-price for
// side, or zeros when no position is open on that side.
func positionExposure(positions []model.Position, side model.Side) (qty, avgPx decimal.Decimal) {
	for _, p := range positions {
		if p.Side == side {
			return p.Qty, p.AvgEntryPx
		}
	}
	return decimal.Zero, decimal.Zero
}

func (c *Controller) pendingNotional(side model.Side) decimal.Decimal {
	total := decimal.Zero
	for _, o := range c.gridOrdersCache {
		if o.Side == side {
			total = total.Add(o.Price.Mul(o.Qty))
		}
	}
	return total
}

func (c *Controller) submit(ctx context.Context, intent model.OrderIntent) {
	dispatch := func() {
		if err := c.dispatch(ctx, intent); err != nil {
			c.logger.Warn("gateway call failed", "cid", intent.ClientOrderID, "error", err.Error())
		}
	}
	if c.pool != nil {
		_ = c.pool.Submit(dispatch)
		return
	}
	dispatch()
}

func (c *Controller) dispatch(ctx context.Context, intent model.OrderIntent) error {
	switch intent.Kind {
	case model.IntentCancel:
		return c.gateway.Cancel(ctx, intent.ClientOrderID)
	default:
		return c.gateway.Submit(ctx, intent)
	}
}

func (c *Controller) cancelAll(ctx context.Context) {
	for cid := range c.gridOrdersCache {
		c.submit(ctx, model.OrderIntent{Kind: model.IntentCancel, ClientOrderID: cid})
	}
}

// reconcilePositions attaches a level-0 TP/SL pair, sized to the full
// position quantity, to every non-empty position whose side has no
// tracked level-0 pair yet. Exit orders at other levels are not counted
// as coverage, so the attached quantity is not netted against them.
func (c *Controller) reconcilePositions(ctx context.Context) {
	positions, err := c.posCache.Positions(ctx)
	if err != nil {
		c.logger.Warn("position reconciliation: failed to read positions", "error", err.Error())
		return
	}
	for _, p := range positions {
		if p.Qty.IsZero() {
			continue
		}
		if c.exitManager.HasExits(p.Side, 0) {
			continue
		}
		intents, ok := c.exitManager.OnGridFill(p.Side, 0, p.AvgEntryPx, p.Qty, p.Qty, c.cfg.Exit, c.clock.Now().UnixMilli())
		if !ok {
			continue
		}
		for _, intent := range intents {
			c.submit(ctx, intent)
		}
	}
}

func (c *Controller) trackPendingRetry(cid string) {
	if _, exists := c.pendingRetries[cid]; exists {
		return
	}
	if len(c.pendingOrder) >= maxPendingRetries {
		oldest := c.pendingOrder[0]
		c.pendingOrder = c.pendingOrder[1:]
		delete(c.pendingRetries, oldest)
	}
	c.pendingRetries[cid] = true
	c.pendingOrder = append(c.pendingOrder, cid)
}

func (c *Controller) markProcessedRejection(key string) bool {
	if c.processedRejects[key] {
		return true
	}
	if len(c.rejectOrder) >= maxProcessedRejections {
		oldest := c.rejectOrder[0]
		c.rejectOrder = c.rejectOrder[1:]
		delete(c.processedRejects, oldest)
	}
	c.processedRejects[key] = true
	c.rejectOrder = append(c.rejectOrder, key)
	return false
}

// OnOrderEvent routes one gateway event per §4.K's per-event table.
func (c *Controller) OnOrderEvent(ctx context.Context, ev model.OrderEvent) {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch ev.Kind {
	case model.EventAccepted:
		delete(c.pendingRetries, ev.ClientOrderID)
		c.retryHandler.OnAccepted(ev.ClientOrderID)

	case model.EventCanceled, model.EventExpired:
		delete(c.gridOrdersCache, ev.ClientOrderID)

	case model.EventRejected:
		rejectKey := ev.ClientOrderID + "|" + ev.Ts.String()
		if c.markProcessedRejection(rejectKey) {
			return
		}
		live, found := c.liveByID(ev.ClientOrderID)
		if !found {
			c.logger.Warn("rejection for untracked order", "cid", ev.ClientOrderID, "error", apperrors.ErrUnknownLiveOrder.Error())
		} else if intent, ok := c.retryHandler.OnRejected(ev.ClientOrderID, live.Side, live.Price, live.Qty, ev.Reason, ev.Ts); ok {
			c.submit(ctx, intent)
		} else if retry.IsRetryableReason(ev.Reason) {
			c.logger.Warn("post-only retry abandoned", "cid", ev.ClientOrderID, "error", apperrors.ErrRetryAbandoned.Error())
		} else {
			c.logger.Warn("rejection not retryable", "cid", ev.ClientOrderID, "reason", ev.Reason, "error", apperrors.ErrNonRetryable.Error())
		}
		delete(c.gridOrdersCache, ev.ClientOrderID)
		c.riskManager.RecordRejection(ev.Ts, c.cfg.Risk)

	case model.EventDenied:
		delete(c.pendingRetries, ev.ClientOrderID)
		delete(c.gridOrdersCache, ev.ClientOrderID)
		c.riskManager.RecordRejection(ev.Ts, c.cfg.Risk)

	case model.EventCancelRejected:
		c.logger.Warn("cancel rejected", "cid", ev.ClientOrderID, "reason", ev.Reason)
		if !c.stillOpenOnGateway(ctx, ev.ClientOrderID) {
			delete(c.gridOrdersCache, ev.ClientOrderID)
			c.logger.Info("evicted ghost order after cancel rejection", "cid", ev.ClientOrderID)
		}

	case model.EventFilled:
		c.onFilled(ctx, ev)
	}
}

func (c *Controller) liveByID(cid string) (model.LiveOrder, bool) {
	o, ok := c.gridOrdersCache[cid]
	return o, ok
}

// stillOpenOnGateway reports whether cid is still present in the
// gateway's open-order set, used to confirm an order is genuinely
// terminal before evicting its ghost cache entry.
func (c *Controller) stillOpenOnGateway(ctx context.Context, cid string) bool {
	open, err := c.gateway.OpenOrders(ctx, c.strategy)
	if err != nil {
		return true
	}
	for _, o := range open {
		if o.ClientOrderID == cid {
			return true
		}
	}
	return false
}

func (c *Controller) onFilled(ctx context.Context, ev model.OrderEvent) {
	delete(c.gridOrdersCache, ev.ClientOrderID)

	if model.IsExitID(ev.ClientOrderID) {
		exitCid, ok := model.ParseClientOrderID(ev.ClientOrderID)
		if !ok {
			c.logger.Warn("exit fill for unparseable client order id", "cid", ev.ClientOrderID, "error", apperrors.ErrUnparseableClientID.Error())
			return
		}

		remainingQty, avgEntryPx, havePosition := decimal.Zero, decimal.Zero, false
		if positions, err := c.posCache.Positions(ctx); err == nil {
			for _, p := range positions {
				if p.Side == exitCid.Side {
					remainingQty, avgEntryPx, havePosition = p.Qty, p.AvgEntryPx, true
				}
			}
		}

		// PnL delta from closing/reducing exitCid.Side at the fill price
		// against the position's average entry price (§4.K / §4.J).
		if havePosition {
			delta := ev.Fill.LastPx.Sub(avgEntryPx).Mul(ev.Fill.LastQty)
			if exitCid.Side == model.Short {
				delta = avgEntryPx.Sub(ev.Fill.LastPx).Mul(ev.Fill.LastQty)
			}
			c.realizedPnL = c.realizedPnL.Add(delta)
		}

		positionClosed := !havePosition || remainingQty.IsZero()
		for _, cancel := range c.exitManager.OnExitFilled(ev.ClientOrderID, positionClosed) {
			c.submit(ctx, cancel)
		}
		if err := c.persistLocked(ctx); err != nil {
			c.logger.Warn("failed to persist realized pnl after exit fill", "error", err.Error())
		}
		return
	}

	cid, ok := model.ParseClientOrderID(ev.ClientOrderID)
	if !ok {
		c.logger.Warn("fill for unparseable client order id", "cid", ev.ClientOrderID, "error", apperrors.ErrUnparseableClientID.Error())
		return
	}
	available := ev.Fill.LastQty
	if positions, err := c.posCache.Positions(ctx); err == nil {
		for _, p := range positions {
			if p.Side == cid.Side {
				available = p.Qty
			}
		}
	}

	intents, ok := c.exitManager.OnGridFill(cid.Side, cid.Level, ev.Fill.LastPx, ev.Fill.LastQty, available, c.cfg.Exit, ev.Ts.UnixMilli())
	if ok {
		for _, intent := range intents {
			c.submit(ctx, intent)
		}
	}
}

// LaddersSnapshot returns the operator-facing view of the last built
// ladders.
func (c *Controller) LaddersSnapshot() model.LaddersSnapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return model.LaddersSnapshot{
		Center: c.center, LastMid: c.lastMid, Regime: c.detector.Current(),
		Long: c.lastLong, Short: c.lastShort, GeneratedAt: c.clock.Now(),
	}
}

// MetricsSnapshot returns the read-only view the metrics exporter consumes.
func (c *Controller) MetricsSnapshot() model.MetricsSnapshot {
	c.mu.Lock()
	defer c.mu.Unlock()

	drawdownTriggered, cbActive, pause, critical, peak, errWindow := c.riskManager.Snapshot()
	return model.MetricsSnapshot{
		Regime: c.detector.Current(), DrawdownTriggered: drawdownTriggered,
		CircuitBreakerActive: cbActive, PauseTrading: pause, CriticalError: critical,
		PeakBalance: peak, RealizedPnL: c.realizedPnL, OpenOrders: len(c.gridOrdersCache),
		PendingRetries: len(c.pendingRetries), ErrorWindowSize: errWindow,
	}
}

// HealthError reports the sentinel matching the Controller's current halt
// condition, or nil when trading is live — a host can surface this
// directly on its health/readiness endpoint without re-deriving it from
// MetricsSnapshot's boolean fields.
func (c *Controller) HealthError() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	drawdownTriggered, cbActive, pause, critical, _, _ := c.riskManager.Snapshot()
	switch {
	case critical:
		return apperrors.ErrCriticalError
	case drawdownTriggered:
		return apperrors.ErrDrawdownTriggered
	case cbActive:
		return apperrors.ErrCircuitBreakerOpen
	case pause:
		return apperrors.ErrPauseTrading
	default:
		return nil
	}
}

// Persist writes current peak balance and realized PnL through the
// bound StateStore. It is skipped when cfg.OptimizationMode is set; a
// state.Store built with an empty directory also turns the save into a
// no-op through its own Enabled() gate.
func (c *Controller) Persist(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.persistLocked(ctx)
}

// persistLocked is Persist's body, callable from methods that already
// hold c.mu (e.g. onFilled after an exit fill updates realized_pnl).
func (c *Controller) persistLocked(ctx context.Context) error {
	if c.cfg.OptimizationMode {
		return nil
	}
	_, _, _, _, peak, _ := c.riskManager.Snapshot()
	return c.stateStore.Save(ctx, model.PersistedState{
		PeakBalance: peak, RealizedPnL: c.realizedPnL, InstrumentID: c.instrumentID,
	})
}
