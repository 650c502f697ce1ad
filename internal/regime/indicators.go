package regime

import (
	"github.com/hedgegrid/core/internal/model"
	"github.com/shopspring/decimal"
)

// ema computes the exponential moving average of closes over period,
// seeded with a simple average of the first `period` closes and then
// smoothed forward — the same two-phase shape the teacher's RSI/ATR
// calculations use for Wilder's smoothing (internal/trading/monitor/regime.go).
func ema(bars []model.Bar, period int) decimal.Decimal {
	if len(bars) < period || period <= 0 {
		return decimal.Zero
	}
	seed := decimal.Zero
	for i := 0; i < period; i++ {
		seed = seed.Add(bars[i].Close)
	}
	value := seed.Div(decimal.NewFromInt(int64(period)))

	alpha := decimal.NewFromInt(2).Div(decimal.NewFromInt(int64(period + 1)))
	for i := period; i < len(bars); i++ {
		value = bars[i].Close.Sub(value).Mul(alpha).Add(value)
	}
	return value
}

func trueRange(cur, prev model.Bar) decimal.Decimal {
	hl := cur.High.Sub(cur.Low)
	hc := cur.High.Sub(prev.Close).Abs()
	lc := cur.Low.Sub(prev.Close).Abs()
	tr := hl
	if hc.GreaterThan(tr) {
		tr = hc
	}
	if lc.GreaterThan(tr) {
		tr = lc
	}
	return tr
}

// atr computes Wilder-smoothed average true range over period.
func atr(bars []model.Bar, period int) decimal.Decimal {
	if len(bars) < period+1 || period <= 0 {
		return decimal.Zero
	}
	sum := decimal.Zero
	for i := 1; i <= period; i++ {
		sum = sum.Add(trueRange(bars[i], bars[i-1]))
	}
	value := sum.Div(decimal.NewFromInt(int64(period)))
	n := decimal.NewFromInt(int64(period))
	nMinus1 := decimal.NewFromInt(int64(period - 1))
	for i := period + 1; i < len(bars); i++ {
		tr := trueRange(bars[i], bars[i-1])
		value = value.Mul(nMinus1).Add(tr).Div(n)
	}
	return value
}

// adx computes Wilder's Average Directional Index over period: +DI/-DI from
// smoothed directional movement and true range, DX from their divergence,
// and ADX as the Wilder-smoothed average of DX. Standard formulation;
// implemented with the same smoothing style as the teacher's RSI/ATR
// (internal/trading/monitor/regime.go) since no ADX implementation exists
// in the retrieved pack.
func adx(bars []model.Bar, period int) decimal.Decimal {
	need := 2*period + 1
	if len(bars) < need || period <= 0 {
		return decimal.Zero
	}

	n := decimal.NewFromInt(int64(period))
	nMinus1 := decimal.NewFromInt(int64(period - 1))
	hundred := decimal.NewFromInt(100)

	plusDM := make([]decimal.Decimal, len(bars))
	minusDM := make([]decimal.Decimal, len(bars))
	tr := make([]decimal.Decimal, len(bars))
	for i := 1; i < len(bars); i++ {
		upMove := bars[i].High.Sub(bars[i-1].High)
		downMove := bars[i-1].Low.Sub(bars[i].Low)
		if upMove.IsPositive() && upMove.GreaterThan(downMove) {
			plusDM[i] = upMove
		}
		if downMove.IsPositive() && downMove.GreaterThan(upMove) {
			minusDM[i] = downMove
		}
		tr[i] = trueRange(bars[i], bars[i-1])
	}

	sumPlus, sumMinus, sumTR := decimal.Zero, decimal.Zero, decimal.Zero
	for i := 1; i <= period; i++ {
		sumPlus = sumPlus.Add(plusDM[i])
		sumMinus = sumMinus.Add(minusDM[i])
		sumTR = sumTR.Add(tr[i])
	}

	dxValues := make([]decimal.Decimal, 0, len(bars))
	computeDX := func(sp, sm, str decimal.Decimal) decimal.Decimal {
		if str.IsZero() {
			return decimal.Zero
		}
		plusDI := sp.Div(str).Mul(hundred)
		minusDI := sm.Div(str).Mul(hundred)
		sum := plusDI.Add(minusDI)
		if sum.IsZero() {
			return decimal.Zero
		}
		return plusDI.Sub(minusDI).Abs().Div(sum).Mul(hundred)
	}
	dxValues = append(dxValues, computeDX(sumPlus, sumMinus, sumTR))

	for i := period + 1; i < len(bars); i++ {
		sumPlus = sumPlus.Mul(nMinus1).Add(plusDM[i]).Div(n)
		sumMinus = sumMinus.Mul(nMinus1).Add(minusDM[i]).Div(n)
		sumTR = sumTR.Mul(nMinus1).Add(tr[i]).Div(n)
		dxValues = append(dxValues, computeDX(sumPlus, sumMinus, sumTR))
	}

	if len(dxValues) < period {
		return decimal.Zero
	}
	adxValue := decimal.Zero
	for i := 0; i < period; i++ {
		adxValue = adxValue.Add(dxValues[i])
	}
	adxValue = adxValue.Div(n)
	for i := period; i < len(dxValues); i++ {
		adxValue = adxValue.Mul(nMinus1).Add(dxValues[i]).Div(n)
	}
	return adxValue
}
