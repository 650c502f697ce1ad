package state

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/hedgegrid/core/internal/apperrors"
	"github.com/hedgegrid/core/internal/model"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func TestSaveLoad_RoundTrips(t *testing.T) {
	dir := t.TempDir()
	s := New(dir)
	st := model.PersistedState{PeakBalance: decimal.NewFromInt(1000), RealizedPnL: decimal.NewFromInt(50), InstrumentID: "BTC-PERP.BINANCE"}
	require.NoError(t, s.Save(st, time.Now()))

	loaded, ok := s.Load("BTC-PERP.BINANCE", nil)
	require.True(t, ok)
	require.True(t, loaded.PeakBalance.Equal(decimal.NewFromInt(1000)))
	require.True(t, loaded.RealizedPnL.Equal(decimal.NewFromInt(50)))
	require.NotEmpty(t, loaded.LastSaved)
}

func TestSave_UsesSafeIDInFilename(t *testing.T) {
	dir := t.TempDir()
	s := New(dir)
	st := model.PersistedState{PeakBalance: decimal.NewFromInt(1), InstrumentID: "BTC-PERP.BINANCE"}
	require.NoError(t, s.Save(st, time.Now()))

	_, err := os.Stat(filepath.Join(dir, "strategy_state_BTC-PERP_BINANCE.json"))
	require.NoError(t, err)
}

func TestLoad_MissingFileReturnsNotOK(t *testing.T) {
	s := New(t.TempDir())
	_, ok := s.Load("NONE", nil)
	require.False(t, ok)
}

func TestLoad_NonPositivePeakBalanceIgnored(t *testing.T) {
	dir := t.TempDir()
	s := New(dir)
	st := model.PersistedState{PeakBalance: decimal.Zero, InstrumentID: "X"}
	require.NoError(t, s.Save(st, time.Now()))

	_, ok := s.Load("X", nil)
	require.False(t, ok)
}

func TestLoad_InvalidJSONIgnoredNonFatal(t *testing.T) {
	dir := t.TempDir()
	s := New(dir)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "strategy_state_X.json"), []byte("{not json"), 0o600))

	_, ok := s.Load("X", nil)
	require.False(t, ok)
}

func TestDisabledStore_SaveAndLoadAreNoOps(t *testing.T) {
	s := New("")
	require.False(t, s.Enabled())
	require.NoError(t, s.Save(model.PersistedState{InstrumentID: "X"}, time.Now()))
	_, ok := s.Load("X", nil)
	require.False(t, ok)
}

func TestBound_LoadRoundTripsThroughSave(t *testing.T) {
	dir := t.TempDir()
	s := New(dir)
	b := s.ForInstrument("BTC-PERP.BINANCE", nil)
	ctx := context.Background()

	require.NoError(t, b.Save(ctx, model.PersistedState{PeakBalance: decimal.NewFromInt(500)}))

	loaded, err := b.Load(ctx)
	require.NoError(t, err)
	require.True(t, loaded.PeakBalance.Equal(decimal.NewFromInt(500)))
	require.Equal(t, "BTC-PERP.BINANCE", loaded.InstrumentID)
}

func TestBound_LoadReturnsErrStateNotFoundWhenNothingPersisted(t *testing.T) {
	b := New(t.TempDir()).ForInstrument("BTC-PERP.BINANCE", nil)
	_, err := b.Load(context.Background())
	require.ErrorIs(t, err, apperrors.ErrStateNotFound)
}
