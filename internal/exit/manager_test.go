package exit

import (
	"testing"

	"github.com/hedgegrid/core/internal/model"
	"github.com/hedgegrid/core/internal/precision"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func testGuard() precision.Guard {
	return precision.New(model.InstrumentPrecision{
		PriceTick: decimal.NewFromFloat(0.01), QtyStep: decimal.NewFromFloat(0.001),
		MinNotional: decimal.Zero, MinQty: decimal.Zero, MaxQty: decimal.NewFromInt(1000),
	})
}

func testConfig() Config {
	return Config{TPSteps: 2, SLSteps: 3, GridStepBps: decimal.NewFromInt(10), MaxPositionLagRetries: 3}
}

func TestOnGridFill_LongComputesTPAboveAndSLBelow(t *testing.T) {
	m := New("GRID", testGuard())
	intents, ok := m.OnGridFill(model.Long, 1, decimal.NewFromInt(1000), decimal.NewFromInt(1), decimal.NewFromInt(1), testConfig(), 1000)
	require.True(t, ok)
	require.Len(t, intents, 2)
	require.True(t, intents[0].Price.GreaterThan(decimal.NewFromInt(1000)))
	require.True(t, intents[1].Price.LessThan(decimal.NewFromInt(1000)))
	require.True(t, m.HasExits(model.Long, 1))
}

func TestOnGridFill_ShortComputesTPBelowAndSLAbove(t *testing.T) {
	m := New("GRID", testGuard())
	intents, ok := m.OnGridFill(model.Short, 1, decimal.NewFromInt(1000), decimal.NewFromInt(1), decimal.NewFromInt(1), testConfig(), 1000)
	require.True(t, ok)
	require.True(t, intents[0].Price.LessThan(decimal.NewFromInt(1000)))
	require.True(t, intents[1].Price.GreaterThan(decimal.NewFromInt(1000)))
}

func TestOnGridFill_SLFlooredAboveZero(t *testing.T) {
	m := New("GRID", testGuard())
	cfg := Config{TPSteps: 2, SLSteps: 100000, GridStepBps: decimal.NewFromInt(10), MaxPositionLagRetries: 3}
	intents, ok := m.OnGridFill(model.Long, 1, decimal.NewFromInt(10), decimal.NewFromInt(1), decimal.NewFromInt(1), cfg, 1000)
	require.True(t, ok)
	require.True(t, intents[1].Price.GreaterThanOrEqual(decimal.Zero))
}

func TestOnGridFill_PositionLagPostponesAndReturnsFalse(t *testing.T) {
	m := New("GRID", testGuard())
	_, ok := m.OnGridFill(model.Long, 1, decimal.NewFromInt(1000), decimal.NewFromInt(2), decimal.NewFromInt(1), testConfig(), 1000)
	require.False(t, ok)
	require.False(t, m.HasExits(model.Long, 1))
}

func TestOnGridFill_PositionLagReleasesAfterMaxRetries(t *testing.T) {
	m := New("GRID", testGuard())
	cfg := Config{TPSteps: 2, SLSteps: 3, GridStepBps: decimal.NewFromInt(10), MaxPositionLagRetries: 2}
	for i := 0; i < 3; i++ {
		_, ok := m.OnGridFill(model.Long, 1, decimal.NewFromInt(1000), decimal.NewFromInt(2), decimal.NewFromInt(1), cfg, 1000)
		require.False(t, ok)
	}
	// Fourth attempt with sufficient qty succeeds again (key was released).
	_, ok := m.OnGridFill(model.Long, 1, decimal.NewFromInt(1000), decimal.NewFromInt(1), decimal.NewFromInt(1), cfg, 1000)
	require.True(t, ok)
}

func TestOnExitFilled_CancelsSibling(t *testing.T) {
	m := New("GRID", testGuard())
	intents, ok := m.OnGridFill(model.Long, 1, decimal.NewFromInt(1000), decimal.NewFromInt(1), decimal.NewFromInt(1), testConfig(), 1000)
	require.True(t, ok)
	tpCid := intents[0].ClientOrderID
	slCid := intents[1].ClientOrderID

	cancels := m.OnExitFilled(tpCid, false)
	require.Len(t, cancels, 1)
	require.Equal(t, slCid, cancels[0].ClientOrderID)
	require.False(t, m.HasExits(model.Long, 1))
}

func TestOnExitFilled_PositionClosedCleansOrphans(t *testing.T) {
	m := New("GRID", testGuard())
	i1, _ := m.OnGridFill(model.Long, 1, decimal.NewFromInt(1000), decimal.NewFromInt(1), decimal.NewFromInt(1), testConfig(), 1000)
	_, _ = m.OnGridFill(model.Long, 2, decimal.NewFromInt(1000), decimal.NewFromInt(1), decimal.NewFromInt(1), testConfig(), 2000)
	require.Equal(t, 2, m.PendingCount())

	cancels := m.OnExitFilled(i1[0].ClientOrderID, true)
	require.Equal(t, 0, m.PendingCount())
	require.Len(t, cancels, 3) // sibling of level-1 pair + both of level-2's orphan pair
}

func TestOnRecenter_CancelsAllAndClearsRegistry(t *testing.T) {
	m := New("GRID", testGuard())
	_, _ = m.OnGridFill(model.Long, 1, decimal.NewFromInt(1000), decimal.NewFromInt(1), decimal.NewFromInt(1), testConfig(), 1000)
	_, _ = m.OnGridFill(model.Short, 1, decimal.NewFromInt(1000), decimal.NewFromInt(1), decimal.NewFromInt(1), testConfig(), 2000)

	cancels := m.OnRecenter()
	require.Len(t, cancels, 4)
	require.Equal(t, 0, m.PendingCount())
}
