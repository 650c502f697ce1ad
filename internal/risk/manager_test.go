package risk

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func testCfg() Config {
	return Config{
		MaxDrawdownPct:                decimal.NewFromInt(10),
		MaxErrorsPerMinute:            3,
		CircuitBreakerWindowSeconds:   60,
		CircuitBreakerCooldownSeconds: 30,
		EnableDrawdownProtection:      true,
		EnableCircuitBreaker:          true,
		MaxPositionPct:                decimal.NewFromFloat(0.5),
	}
}

func TestCheckDrawdown_TracksPeakAndTriggersOverThreshold(t *testing.T) {
	m := New()
	require.False(t, m.CheckDrawdown(decimal.NewFromInt(1000), testCfg()))
	require.False(t, m.CheckDrawdown(decimal.NewFromInt(1100), testCfg()))
	// Drawdown from peak 1100 to 950 = 13.6% > 10%.
	require.True(t, m.CheckDrawdown(decimal.NewFromInt(950), testCfg()))
	_, _, pause, _, _, _ := m.Snapshot()
	require.True(t, pause)
}

func TestCheckDrawdown_NeverAutoResetsOnceTriggered(t *testing.T) {
	m := New()
	m.CheckDrawdown(decimal.NewFromInt(1000), testCfg())
	m.CheckDrawdown(decimal.NewFromInt(800), testCfg())
	require.False(t, m.CheckDrawdown(decimal.NewFromInt(1000), testCfg()))
	drawdownTriggered, _, _, _, _, _ := m.Snapshot()
	require.True(t, drawdownTriggered)
}

func TestCheckDrawdown_DisabledNeverTriggers(t *testing.T) {
	m := New()
	cfg := testCfg()
	cfg.EnableDrawdownProtection = false
	m.CheckDrawdown(decimal.NewFromInt(1000), cfg)
	require.False(t, m.CheckDrawdown(decimal.NewFromInt(100), cfg))
}

func TestRecordRejection_TripsBreakerOverThreshold(t *testing.T) {
	m := New()
	cfg := testCfg()
	now := time.Now()
	require.False(t, m.RecordRejection(now, cfg))
	require.False(t, m.RecordRejection(now, cfg))
	require.False(t, m.RecordRejection(now, cfg))
	require.True(t, m.RecordRejection(now, cfg))
	require.True(t, m.CircuitBreakerActive(now, cfg))
}

func TestRecordRejection_WindowExpiryDropsOldEntries(t *testing.T) {
	m := New()
	cfg := testCfg()
	cfg.CircuitBreakerWindowSeconds = 1
	base := time.Now()
	for i := 0; i < 3; i++ {
		m.RecordRejection(base, cfg)
	}
	later := base.Add(5 * time.Second)
	require.False(t, m.RecordRejection(later, cfg))
}

func TestCircuitBreakerActive_AutoResetsAfterCooldown(t *testing.T) {
	m := New()
	cfg := testCfg()
	cfg.MaxErrorsPerMinute = 1
	now := time.Now()
	m.RecordRejection(now, cfg)
	require.True(t, m.RecordRejection(now, cfg))
	require.True(t, m.CircuitBreakerActive(now, cfg))

	later := now.Add(time.Duration(cfg.CircuitBreakerCooldownSeconds+1) * time.Second)
	require.False(t, m.CircuitBreakerActive(later, cfg))
}

func TestValidatePositionSize_RejectsOverLimit(t *testing.T) {
	m := New()
	cfg := testCfg()
	ok := m.ValidatePositionSize(decimal.NewFromInt(10), decimal.NewFromInt(100), decimal.Zero, decimal.NewFromInt(500), decimal.NewFromInt(1000), cfg)
	require.False(t, ok) // 10*100 + 500 = 1500 > 0.5*1000=500
}

func TestValidatePositionSize_AllowsWithinLimit(t *testing.T) {
	m := New()
	cfg := testCfg()
	ok := m.ValidatePositionSize(decimal.Zero, decimal.Zero, decimal.Zero, decimal.NewFromInt(100), decimal.NewFromInt(1000), cfg)
	require.True(t, ok)
}

func TestValidatePositionSize_NegativeBalanceFailsSafe(t *testing.T) {
	m := New()
	cfg := testCfg()
	ok := m.ValidatePositionSize(decimal.Zero, decimal.Zero, decimal.Zero, decimal.NewFromInt(1), decimal.NewFromInt(-1), cfg)
	require.False(t, ok)
}

func TestTriggerCriticalError_LatchesHalt(t *testing.T) {
	m := New()
	require.False(t, m.ShouldHalt())
	m.TriggerCriticalError()
	require.True(t, m.ShouldHalt())
	_, _, pause, critical, _, _ := m.Snapshot()
	require.True(t, pause)
	require.True(t, critical)
}
