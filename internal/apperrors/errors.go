// Package apperrors holds the sentinel error taxonomy shared by the grid
// engine core, mirroring the teacher's pkg/errors package-level style.
package apperrors

import "errors"

var (
	// Domain validation — fail hard at construction, never reach the gateway.
	ErrInvalidRung          = errors.New("invalid rung: price and qty must be positive and tp/sl on the correct side")
	ErrInvalidPrecision     = errors.New("invalid instrument precision")
	ErrUnparseableClientID  = errors.New("client order id does not match the grid/exit grammar")

	// Risk breaches.
	ErrDrawdownTriggered     = errors.New("drawdown protection triggered, trading paused")
	ErrCircuitBreakerOpen    = errors.New("circuit breaker open")
	ErrPositionLimitExceeded = errors.New("proposed order exceeds max position notional")
	ErrPauseTrading          = errors.New("trading paused")
	ErrCriticalError         = errors.New("critical error, operator reset required")

	// Retry handler.
	ErrRetryAbandoned    = errors.New("post-only retry abandoned after max attempts")
	ErrNonRetryable      = errors.New("rejection reason is not retryable")

	// State persistence.
	ErrStateNotFound = errors.New("no persisted state found")

	// Order diff / lifecycle.
	ErrUnknownLiveOrder = errors.New("live order does not correspond to a tracked client order id")
)
