// Package retry implements §4.G PostOnlyRetryHandler: walking a rejected
// post-only order away from the spread and resubmitting it under a fresh
// client-order id, generalizing the rate-limited retry loop of
// internal/trading/order.OrderExecutor.placeOrderWithRetry from
// network/5xx retries to price-walk retries keyed on a specific class of
// post-only rejection reason.
package retry

import (
	"strings"
	"sync"
	"time"

	"github.com/hedgegrid/core/internal/model"
	"github.com/hedgegrid/core/internal/precision"
	"github.com/jpillora/backoff"
	"github.com/shopspring/decimal"
	"golang.org/x/time/rate"
)

// Config holds the `execution.retry_*` and `execution.use_post_only_retries`
// configuration keys.
type Config struct {
	Enabled      bool
	MaxAttempts  int
	DelayMillis  int
}

// retryableReasons are substrings of an exchange rejection reason
// indicating the order would have crossed the spread as taker.
var retryableReasons = []string{
	"post-only",
	"would be filled immediately",
	"would take liquidity",
	"would cross",
	"taker",
}

// nonRetryableCode is a specific venue error code marking "post-only would
// trade" as a hard rejection rather than a price-walk candidate.
const nonRetryableCode = "POST_ONLY_REJECT_FINAL"

// Attempt records one retry for observability.
type Attempt struct {
	AttemptNo     int
	OriginalPrice decimal.Decimal
	AdjustedPrice decimal.Decimal
	Reason        string
	Ts            time.Time
}

// Handler tracks in-flight retry histories per client-order id. It also
// holds a shared rate limiter (25/sec, burst 30) and a capped exponential
// backoff, exposed through Allow and NextDelay; OnRejected itself neither
// waits nor consults the limiter, so resubmissions are paced only where a
// caller uses those two methods.
type Handler struct {
	mu          sync.Mutex
	history     map[string][]Attempt
	limiter     *rate.Limiter
	backoffBase *backoff.Backoff
	cfg         Config
	strategy    string
	guard       precision.Guard
	tick        decimal.Decimal
}

// New constructs a Handler. strategy seeds newly generated client-order
// ids; guard clamps the walked price back to the venue's tick grid.
func New(strategy string, guard precision.Guard, cfg Config) *Handler {
	return &Handler{
		history:     make(map[string][]Attempt),
		limiter:     rate.NewLimiter(rate.Limit(25), 30),
		backoffBase: &backoff.Backoff{Min: time.Duration(cfg.DelayMillis) * time.Millisecond, Max: 10 * time.Second, Factor: 2, Jitter: true},
		cfg:         cfg,
		strategy:    strategy,
		guard:       guard,
		tick:        guard.Precision().PriceTick,
	}
}

// IsRetryableReason reports whether reason matches the post-only rejection
// substring set and is not the venue's specific non-retryable code.
func IsRetryableReason(reason string) bool {
	if strings.Contains(reason, nonRetryableCode) {
		return false
	}
	lower := strings.ToLower(reason)
	for _, r := range retryableReasons {
		if strings.Contains(lower, r) {
			return true
		}
	}
	return false
}

// NextDelay returns the backoff delay to wait before resubmitting.
func (h *Handler) NextDelay() time.Duration {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.backoffBase.Duration()
}

// ResetDelay clears the backoff's attempt counter, called after a
// successful resubmission.
func (h *Handler) ResetDelay() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.backoffBase.Reset()
}

// Allow reports whether the shared rate limiter currently permits a
// resubmission.
func (h *Handler) Allow() bool {
	return h.limiter.Allow()
}

// OnRejected handles a retryable rejection of rejectedCid at originalPrice.
// It returns the Create intent for the walked price and ok=true, or
// ok=false when retries are disabled, the reason is not retryable, or
// max_attempts has been exhausted (abandoned).
func (h *Handler) OnRejected(rejectedCid string, side model.Side, originalPrice, qty decimal.Decimal, reason string, now time.Time) (model.OrderIntent, bool) {
	if !h.cfg.Enabled || !IsRetryableReason(reason) {
		return model.OrderIntent{}, false
	}

	cid, ok := model.ParseClientOrderID(rejectedCid)
	if !ok {
		return model.OrderIntent{}, false
	}
	attempt := cid.Attempt + 1
	baseCid := cid
	baseCid.Attempt = 0
	baseID := model.FormatClientOrderID(baseCid)

	if attempt > h.cfg.MaxAttempts {
		h.clearHistory(baseID)
		return model.OrderIntent{}, false
	}

	walk := h.tick.Mul(decimal.NewFromInt(int64(attempt)))
	adjusted := originalPrice.Sub(walk)
	if side == model.Short {
		adjusted = originalPrice.Add(walk)
	}
	adjusted = h.guard.ClampPrice(adjusted)

	newCid := cid
	newCid.Attempt = attempt
	newID := model.FormatClientOrderID(newCid)

	h.recordAttempt(baseID, Attempt{AttemptNo: attempt, OriginalPrice: originalPrice, AdjustedPrice: adjusted, Reason: reason, Ts: now})

	return model.OrderIntent{
		Kind: model.IntentCreate, ClientOrderID: newID, Side: side, Price: adjusted, Qty: qty,
		Meta: model.OrderMeta{RetryCount: attempt, OriginalPrice: originalPrice},
	}, true
}

// OnAccepted clears the retry history for an id that no longer needs it —
// either it was accepted outright or a walked resubmission succeeded.
func (h *Handler) OnAccepted(cid string) {
	// History is recorded under the base id, so a walked "-R{n}" id is
	// mapped back to it before clearing.
	if parsed, ok := model.ParseClientOrderID(cid); ok && parsed.Attempt > 0 {
		parsed.Attempt = 0
		cid = model.FormatClientOrderID(parsed)
	}
	h.clearHistory(cid)
}

// History returns a copy of the recorded attempts for a client-order id,
// for observability surfaces.
func (h *Handler) History(cid string) []Attempt {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]Attempt, len(h.history[cid]))
	copy(out, h.history[cid])
	return out
}

// PendingCount reports how many ids currently have retry history.
func (h *Handler) PendingCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.history)
}

func (h *Handler) recordAttempt(cid string, a Attempt) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.history[cid] = append(h.history[cid], a)
}

func (h *Handler) clearHistory(cid string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.history, cid)
}
