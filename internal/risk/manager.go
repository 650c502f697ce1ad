// Package risk implements §4.I RiskManager: drawdown protection, a
// rolling-window circuit breaker, and pre-submit position-size
// validation, adapting the teacher's CircuitBreaker (internal/risk
// /circuit_breaker.go) from a PnL-streak trip condition to a
// rejection-rate-per-window one, per the spec's contract.
package risk

import (
	"sync"
	"time"

	"github.com/shopspring/decimal"
)

// Config holds the `risk.*` drawdown and circuit-breaker keys and
// `position.max_position_pct`.
type Config struct {
	MaxDrawdownPct                decimal.Decimal
	MaxErrorsPerMinute            int
	CircuitBreakerWindowSeconds   int
	CircuitBreakerCooldownSeconds int
	EnableDrawdownProtection      bool
	EnableCircuitBreaker          bool
	MaxPositionPct                decimal.Decimal
}

// Manager owns the drawdown, circuit-breaker, and critical-error state for
// one instrument. Once drawdown_triggered or critical_error latch, the
// core never auto-resets them; only a fresh Manager (operator restart)
// clears them.
type Manager struct {
	mu sync.Mutex

	peakBalance       decimal.Decimal
	drawdownTriggered bool
	pauseTrading      bool
	criticalError     bool

	errorWindow    []time.Time
	breakerOpen    bool
	breakerTripped time.Time
}

func New() *Manager {
	return &Manager{}
}

// CheckDrawdown updates peak_balance and, if the drawdown from peak
// exceeds max_drawdown_pct, latches drawdown_triggered and pause_trading.
// It reports whether the caller must cancel all orders and close all
// positions this call (the transition edge, not the steady state).
func (m *Manager) CheckDrawdown(currentBalance decimal.Decimal, cfg Config) (triggeredNow bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !cfg.EnableDrawdownProtection {
		return false
	}
	if currentBalance.GreaterThan(m.peakBalance) {
		m.peakBalance = currentBalance
	}
	if m.drawdownTriggered || m.peakBalance.IsZero() {
		return false
	}

	drawdownPct := m.peakBalance.Sub(currentBalance).Div(m.peakBalance).Mul(decimal.NewFromInt(100))
	if drawdownPct.GreaterThan(cfg.MaxDrawdownPct) {
		m.drawdownTriggered = true
		m.pauseTrading = true
		return true
	}
	return false
}

// RecordRejection appends a rejection/denial timestamp to the rolling
// error window and trips the circuit breaker when the count within
// circuit_breaker_window_seconds exceeds max_errors_per_minute. Returns
// true on the edge where the breaker newly opens.
func (m *Manager) RecordRejection(now time.Time, cfg Config) (trippedNow bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !cfg.EnableCircuitBreaker {
		return false
	}

	m.errorWindow = append(m.errorWindow, now)
	window := time.Duration(cfg.CircuitBreakerWindowSeconds) * time.Second
	cutoff := now.Add(-window)
	kept := m.errorWindow[:0]
	for _, ts := range m.errorWindow {
		if ts.After(cutoff) {
			kept = append(kept, ts)
		}
	}
	m.errorWindow = kept

	if m.breakerOpen {
		return false
	}
	if len(m.errorWindow) > cfg.MaxErrorsPerMinute {
		m.breakerOpen = true
		m.breakerTripped = now
		return true
	}
	return false
}

// CircuitBreakerActive reports whether the breaker is currently open,
// auto-resetting it once circuit_breaker_cooldown_seconds has elapsed.
func (m *Manager) CircuitBreakerActive(now time.Time, cfg Config) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.breakerOpen {
		return false
	}
	cooldown := time.Duration(cfg.CircuitBreakerCooldownSeconds) * time.Second
	if cooldown > 0 && now.Sub(m.breakerTripped) > cooldown {
		m.breakerOpen = false
		m.errorWindow = nil
		return false
	}
	return true
}

// ValidatePositionSize rejects a proposed Create when existing exposure
// plus pending-order notional plus the new order's notional would exceed
// max_position_pct of total balance. Any error in computing the check
// (represented here by a negative totalBalance) fails safe — it rejects.
func (m *Manager) ValidatePositionSize(existingQty, existingAvgPx, pendingNotional, newNotional, totalBalance decimal.Decimal, cfg Config) bool {
	if totalBalance.IsNegative() {
		return false
	}
	existingExposure := existingQty.Mul(existingAvgPx)
	projected := existingExposure.Add(pendingNotional).Add(newNotional)
	limit := cfg.MaxPositionPct.Mul(totalBalance)
	return projected.LessThanOrEqual(limit)
}

// TriggerCriticalError latches critical_error and pause_trading. It does
// not auto-clear; the caller (Controller) is responsible for cancelling
// all orders on this edge.
func (m *Manager) TriggerCriticalError() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.criticalError = true
	m.pauseTrading = true
}

// Snapshot returns the read-only risk fields for the metrics surface.
func (m *Manager) Snapshot() (drawdownTriggered, circuitBreakerActive, pauseTrading, criticalError bool, peakBalance decimal.Decimal, errorWindowSize int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.drawdownTriggered, m.breakerOpen, m.pauseTrading, m.criticalError, m.peakBalance, len(m.errorWindow)
}

// ShouldHalt reports whether the Controller's per-bar loop must return
// immediately per step 1 of §4.K: critical_error or pause_trading latched.
func (m *Manager) ShouldHalt() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.criticalError || m.pauseTrading
}
