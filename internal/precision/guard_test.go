package precision

import (
	"testing"

	"github.com/hedgegrid/core/internal/model"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func dec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

func testPrecision() model.InstrumentPrecision {
	return model.InstrumentPrecision{
		PriceTick:   dec("0.01"),
		QtyStep:     dec("0.001"),
		MinNotional: dec("5"),
		MinQty:      dec("0.001"),
		MaxQty:      dec("1000"),
	}
}

func TestClampPrice_ExactTick(t *testing.T) {
	g := New(testPrecision())
	require.True(t, g.ClampPrice(dec("100.00")).Equal(dec("100.00")))
}

func TestClampPrice_Midway_RoundsNearest(t *testing.T) {
	g := New(testPrecision())
	// 100.005 is exactly midway between 100.00 and 100.01 ticks.
	got := g.ClampPrice(dec("100.005"))
	require.True(t, got.Equal(dec("100.01")) || got.Equal(dec("100.00")), "got %s", got)
}

func TestClampQty_AtMinQty(t *testing.T) {
	g := New(testPrecision())
	require.True(t, g.ClampQty(dec("0.001")).Equal(dec("0.001")))
}

func TestClampQty_BelowMinQty_IsZero(t *testing.T) {
	g := New(testPrecision())
	require.True(t, g.ClampQty(dec("0.0009")).IsZero())
}

func TestClampQty_AboveMaxQty_Caps(t *testing.T) {
	g := New(testPrecision())
	require.True(t, g.ClampQty(dec("2000")).Equal(dec("1000")))
}

func TestClampQty_FloorsToZeroUnits(t *testing.T) {
	g := New(testPrecision())
	// floor(0.0005/0.001) == 0
	require.True(t, g.ClampQty(dec("0.0005")).IsZero())
}

func TestClampRung_DropsOnZeroQty(t *testing.T) {
	g := New(testPrecision())
	r := model.Rung{Side: model.Long, Price: dec("100"), Qty: dec("0.0001")}
	_, ok := g.ClampRung(r)
	require.False(t, ok)
}

func TestClampRung_DropsOnFailedNotional(t *testing.T) {
	g := New(testPrecision())
	r := model.Rung{Side: model.Long, Price: dec("1"), Qty: dec("0.001")}
	_, ok := g.ClampRung(r)
	require.False(t, ok)
}

func TestClampRung_PreservesSideAndTag(t *testing.T) {
	g := New(testPrecision())
	r := model.Rung{Side: model.Short, Level: 3, Price: dec("100"), Qty: dec("1"), Tag: "grid"}
	out, ok := g.ClampRung(r)
	require.True(t, ok)
	require.Equal(t, model.Short, out.Side)
	require.Equal(t, "grid", out.Tag)
	require.Equal(t, 3, out.Level)
}

func TestValidateNotional(t *testing.T) {
	g := New(testPrecision())
	require.True(t, g.ValidateNotional(dec("100"), dec("1")))
	require.False(t, g.ValidateNotional(dec("1"), dec("1")))
}

func TestValidateRung_RejectsNonPositivePriceOrQty(t *testing.T) {
	require.Error(t, ValidateRung(model.Rung{Side: model.Long, Price: dec("0"), Qty: dec("1")}))
	require.Error(t, ValidateRung(model.Rung{Side: model.Long, Price: dec("100"), Qty: dec("0")}))
}

func TestValidateRung_RejectsTPOnWrongSide(t *testing.T) {
	r := model.Rung{Side: model.Long, Price: dec("100"), Qty: dec("1"), HasTP: true, TPPrice: dec("99")}
	require.Error(t, ValidateRung(r))
}

func TestValidateRung_AcceptsWellFormedLongWithTPAndSL(t *testing.T) {
	r := model.Rung{
		Side: model.Long, Price: dec("100"), Qty: dec("1"),
		HasTP: true, TPPrice: dec("101"), HasSL: true, SLPrice: dec("99"),
	}
	require.NoError(t, ValidateRung(r))
}

func TestValidatePrecision_RejectsNonPositiveTickOrStep(t *testing.T) {
	g := New(model.InstrumentPrecision{PriceTick: dec("0"), QtyStep: dec("0.001")})
	require.Error(t, g.ValidatePrecision())
}

func TestValidatePrecision_RejectsMinQtyAboveMaxQty(t *testing.T) {
	g := New(model.InstrumentPrecision{PriceTick: dec("0.01"), QtyStep: dec("0.001"), MinQty: dec("10"), MaxQty: dec("1")})
	require.Error(t, g.ValidatePrecision())
}

func TestValidatePrecision_AcceptsWellFormedPrecision(t *testing.T) {
	require.NoError(t, New(testPrecision()).ValidatePrecision())
}
