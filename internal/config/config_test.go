package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeTemp(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	p := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(p, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return p
}

func TestLoad_ValidBacktestConfig(t *testing.T) {
	p := writeTemp(t, `
engine:
  mode: backtest
  symbols: ["BTCUSDT"]
risk:
  daily_loss_limit: 0.1
  max_open_orders: 50
  start_equity: 10000
backtest:
  start_ms: 0
  end_ms: 1000
  initial_balance: 10000
  data_source:
    type: csv
    path: data.csv
    symbol: BTCUSDT
`)
	cfg, err := Load(p)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Engine.Mode != "backtest" {
		t.Errorf("mode = %q", cfg.Engine.Mode)
	}
}

func TestLoad_RejectsMissingDataSourceInBacktestMode(t *testing.T) {
	p := writeTemp(t, `
engine:
  mode: backtest
  symbols: ["BTCUSDT"]
risk:
  daily_loss_limit: 0.1
  max_open_orders: 50
  start_equity: 10000
backtest:
  start_ms: 0
  end_ms: 1000
`)
	if _, err := Load(p); err == nil {
		t.Fatal("expected validation error for missing data_source")
	}
}

func TestLoad_EnvVarExpansion(t *testing.T) {
	t.Setenv("TEST_API_KEY", "secret123")
	p := writeTemp(t, `
engine:
  mode: live
  symbols: ["BTCUSDT"]
risk:
  daily_loss_limit: 0.1
  max_open_orders: 50
  start_equity: 10000
venues:
  binance:
    api_key: ${TEST_API_KEY}
`)
	cfg, err := Load(p)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Venues["binance"].APIKey != "secret123" {
		t.Errorf("api_key = %q", cfg.Venues["binance"].APIKey)
	}
}
