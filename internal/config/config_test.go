package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

const validYAML = `
instrument: BTC-PERP
strategy: hg1
state_path: ${TEST_STATE_DIR}

grid:
  grid_step_bps: 50
  n_rungs: 5
  base_qty: 0.01
  recenter_threshold_bps: 200

regime:
  ema_fast: 12
  ema_slow: 26
  adx_len: 14
  atr_len: 14
  hysteresis_bps: 10
  trending_adx: 25

exit:
  tp_steps: 2
  sl_steps: 2
`

func writeTempConfig(t *testing.T, contents string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o600))
	return path
}

func TestLoad_ValidConfigExpandsEnvAndValidates(t *testing.T) {
	os.Setenv("TEST_STATE_DIR", "/tmp/hedgegrid-state")
	defer os.Unsetenv("TEST_STATE_DIR")

	path := writeTempConfig(t, validYAML)
	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, "BTC-PERP", cfg.Instrument)
	require.Equal(t, "/tmp/hedgegrid-state", cfg.StatePath)
	require.Equal(t, 5, cfg.Grid.NRungs)
}

func TestLoad_MissingFileReturnsError(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
}

func TestLoad_InvalidYAMLReturnsError(t *testing.T) {
	path := writeTempConfig(t, "instrument: [unterminated")
	_, err := Load(path)
	require.Error(t, err)
}

func TestValidate_RejectsMissingInstrumentAndStrategy(t *testing.T) {
	cfg := &Config{}
	err := cfg.Validate()
	require.Error(t, err)
	require.Contains(t, err.Error(), "instrument")
	require.Contains(t, err.Error(), "strategy")
}

func TestValidate_RejectsNonPositiveGridFields(t *testing.T) {
	cfg := &Config{Instrument: "x", Strategy: "y", Regime: RegimeConfig{EmaFast: 1, EmaSlow: 2}, Exit: ExitConfig{TPSteps: 1, SLSteps: 1}}
	err := cfg.Validate()
	require.Error(t, err)
	require.Contains(t, err.Error(), "grid.n_rungs")
	require.Contains(t, err.Error(), "grid.base_qty")
}

func TestValidate_RejectsEmaFastNotShorterThanSlow(t *testing.T) {
	cfg := validConfig()
	cfg.Regime.EmaFast = 26
	cfg.Regime.EmaSlow = 12
	err := cfg.Validate()
	require.Error(t, err)
	require.Contains(t, err.Error(), "regime.ema_fast")
}

func TestValidate_RejectsNonPositiveExitSteps(t *testing.T) {
	cfg := validConfig()
	cfg.Exit.TPSteps = 0
	err := cfg.Validate()
	require.Error(t, err)
	require.Contains(t, err.Error(), "exit.tp_steps")
}

func TestValidate_AcceptsWellFormedConfig(t *testing.T) {
	require.NoError(t, validConfig().Validate())
}

func validConfig() *Config {
	return &Config{
		Instrument: "BTC-PERP",
		Strategy:   "hg1",
		Grid:       GridConfig{NRungs: 5, BaseQty: decimal.NewFromInt(1)},
		Regime:     RegimeConfig{EmaFast: 12, EmaSlow: 26, AdxLen: 14, AtrLen: 14},
		Exit:       ExitConfig{TPSteps: 2, SLSteps: 2},
	}
}
