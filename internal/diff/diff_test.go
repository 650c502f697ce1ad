package diff

import (
	"testing"

	"github.com/hedgegrid/core/internal/model"
	"github.com/hedgegrid/core/internal/precision"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func testGuard() precision.Guard {
	return precision.New(model.InstrumentPrecision{
		PriceTick:   decimal.NewFromFloat(0.01),
		QtyStep:     decimal.NewFromFloat(0.001),
		MinNotional: decimal.NewFromInt(1),
		MinQty:      decimal.NewFromFloat(0.001),
		MaxQty:      decimal.NewFromInt(1000),
	})
}

func testConfig() Config {
	return Config{PriceToleranceBps: decimal.NewFromInt(5), QtyTolerancePct: decimal.NewFromFloat(0.01)}
}

func rung(side model.Side, level int, price, qty float64) model.Rung {
	return model.Rung{Side: side, Level: level, Price: decimal.NewFromFloat(price), Qty: decimal.NewFromFloat(qty)}
}

func TestDiff_EmptyLaddersAndLiveProducesEmptyDiff(t *testing.T) {
	result := Diff(model.Ladder{Side: model.Long}, model.Ladder{Side: model.Short}, nil, testGuard(), testConfig(), "GRID", 1000)
	require.True(t, result.Empty())
}

func TestDiff_MatchingRungIsNoOp(t *testing.T) {
	long := model.Ladder{Side: model.Long, Rungs: []model.Rung{rung(model.Long, 1, 100, 1)}}
	short := model.Ladder{Side: model.Short}
	cid := model.FormatClientOrderID(model.ClientOrderId{Strategy: "GRID", Side: model.Long, Level: 1, TimestampMs: 1, Counter: 1})
	live := []model.LiveOrder{{ClientOrderID: cid, Side: model.Long, Price: decimal.NewFromInt(100), Qty: decimal.NewFromInt(1), Status: model.StatusOpen}}

	result := Diff(long, short, live, testGuard(), testConfig(), "GRID", 2000)
	require.True(t, result.Empty())
}

func TestDiff_WithinToleranceIsNoOp(t *testing.T) {
	long := model.Ladder{Side: model.Long, Rungs: []model.Rung{rung(model.Long, 1, 100.001, 1)}}
	short := model.Ladder{Side: model.Short}
	cid := model.FormatClientOrderID(model.ClientOrderId{Strategy: "GRID", Side: model.Long, Level: 1, TimestampMs: 1, Counter: 1})
	live := []model.LiveOrder{{ClientOrderID: cid, Side: model.Long, Price: decimal.NewFromInt(100), Qty: decimal.NewFromInt(1), Status: model.StatusOpen}}

	result := Diff(long, short, live, testGuard(), testConfig(), "GRID", 2000)
	require.True(t, result.Empty())
}

func TestDiff_UnmatchedLiveOrderIsCanceled(t *testing.T) {
	long := model.Ladder{Side: model.Long}
	short := model.Ladder{Side: model.Short}
	cid := model.FormatClientOrderID(model.ClientOrderId{Strategy: "GRID", Side: model.Long, Level: 1, TimestampMs: 1, Counter: 1})
	live := []model.LiveOrder{{ClientOrderID: cid, Side: model.Long, Price: decimal.NewFromInt(100), Qty: decimal.NewFromInt(1), Status: model.StatusOpen}}

	result := Diff(long, short, live, testGuard(), testConfig(), "GRID", 2000)
	require.Len(t, result.Cancels, 1)
	require.Equal(t, cid, result.Cancels[0].ClientOrderID)
}

func TestDiff_MismatchEmitsReplace(t *testing.T) {
	long := model.Ladder{Side: model.Long, Rungs: []model.Rung{rung(model.Long, 1, 110, 1)}}
	short := model.Ladder{Side: model.Short}
	cid := model.FormatClientOrderID(model.ClientOrderId{Strategy: "GRID", Side: model.Long, Level: 1, TimestampMs: 1, Counter: 1})
	live := []model.LiveOrder{{ClientOrderID: cid, Side: model.Long, Price: decimal.NewFromInt(100), Qty: decimal.NewFromInt(1), Status: model.StatusOpen}}

	result := Diff(long, short, live, testGuard(), testConfig(), "GRID", 2000)
	require.Empty(t, result.Cancels)
	require.Empty(t, result.Adds)
	require.Len(t, result.Replaces, 1)
	require.Equal(t, cid, result.Replaces[0].ClientOrderID)
	require.NotEmpty(t, result.Replaces[0].ReplaceWith)
	require.True(t, result.Replaces[0].Price.Equal(decimal.NewFromInt(110)))
}

func TestDiff_NewRungEmitsCreate(t *testing.T) {
	long := model.Ladder{Side: model.Long, Rungs: []model.Rung{rung(model.Long, 1, 100, 1)}}
	short := model.Ladder{Side: model.Short}

	result := Diff(long, short, nil, testGuard(), testConfig(), "GRID", 2000)
	require.Len(t, result.Adds, 1)
	require.Equal(t, model.Long, result.Adds[0].Side)
}

func TestDiff_NonOpenLiveOrdersIgnored(t *testing.T) {
	long := model.Ladder{Side: model.Long}
	short := model.Ladder{Side: model.Short}
	cid := model.FormatClientOrderID(model.ClientOrderId{Strategy: "GRID", Side: model.Long, Level: 1, TimestampMs: 1, Counter: 1})
	live := []model.LiveOrder{{ClientOrderID: cid, Side: model.Long, Price: decimal.NewFromInt(100), Qty: decimal.NewFromInt(1), Status: model.StatusFilled}}

	result := Diff(long, short, live, testGuard(), testConfig(), "GRID", 2000)
	require.True(t, result.Empty())
}

func TestDiff_UnparseableClientIDTreatedAsUnmatched(t *testing.T) {
	long := model.Ladder{Side: model.Long}
	short := model.Ladder{Side: model.Short}
	live := []model.LiveOrder{{ClientOrderID: "not-a-real-cid", Side: model.Long, Price: decimal.NewFromInt(100), Qty: decimal.NewFromInt(1), Status: model.StatusOpen}}

	result := Diff(long, short, live, testGuard(), testConfig(), "GRID", 2000)
	require.Empty(t, result.Adds)
	require.Empty(t, result.Replaces)
	require.Len(t, result.Cancels, 1)
	require.Equal(t, "not-a-real-cid", result.Cancels[0].ClientOrderID)
}

func TestDiff_ZeroQtyRungDroppedByGuardProducesNoOp(t *testing.T) {
	long := model.Ladder{Side: model.Long, Rungs: []model.Rung{rung(model.Long, 1, 100, 0.0001)}}
	short := model.Ladder{Side: model.Short}

	result := Diff(long, short, nil, testGuard(), testConfig(), "GRID", 2000)
	require.True(t, result.Empty())
}
