package usecase_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vitos/crypto_paper_bot/internal/domain"
	"github.com/vitos/crypto_paper_bot/internal/usecase"
	"go.uber.org/zap"
)

type fakeFeed struct {
	tickers []domain.Ticker
}

func (f *fakeFeed) GetPrice(ctx context.Context, symbol string) (float64, error) { return 0, nil }
func (f *fakeFeed) GetTickers(ctx context.Context) ([]domain.Ticker, error) {
	return f.tickers, nil
}
func (f *fakeFeed) OnPriceUpdate(callback func(symbol string, price float64)) {}
func (f *fakeFeed) Connect(symbols []string) error                            { return nil }
func (f *fakeFeed) Subscribe(symbols []string) error                          { return nil }
func (f *fakeFeed) Close() error                                              { return nil }

func scannerConfig() usecase.MomentumConfig {
	cfg := usecase.DefaultMomentumConfig()
	cfg.MinVolumeUSD = 100000
	cfg.MinChangePct = 4
	cfg.MaxChangePct = 25
	cfg.MinScore = 60
	cfg.CooldownMinutes = 60
	return cfg
}

func TestEvaluateFiltersTickers(t *testing.T) {
	ledger := newTestLedger(t, 1000)
	svc := usecase.NewMomentumService(&fakeFeed{}, ledger, scannerConfig(), zap.NewNop())

	tickers := []domain.Ticker{
		{Symbol: "GOODUSDT", LastPrice: 2.5, Price24hPcnt: 12, Volume24h: 5_000_000},
		{Symbol: "THINUSDT", LastPrice: 1.0, Price24hPcnt: 10, Volume24h: 50_000},  // volume floor
		{Symbol: "FLATUSDT", LastPrice: 1.0, Price24hPcnt: 1, Volume24h: 900_000}, // too quiet
		{Symbol: "WILDUSDT", LastPrice: 1.0, Price24hPcnt: 80, Volume24h: 900_000}, // blow-off top
		{Symbol: "ZEROUSDT", LastPrice: 0, Price24hPcnt: 10, Volume24h: 900_000},
	}

	signals := svc.Evaluate(tickers)
	require.Len(t, signals, 1)
	assert.Equal(t, "GOODUSDT", signals[0].Symbol)
	assert.Equal(t, 2.5, signals[0].Price)
	assert.Equal(t, "top_gainer", signals[0].Features["signal_type"])
}

func TestEvaluateOrdersByScore(t *testing.T) {
	ledger := newTestLedger(t, 1000)
	svc := usecase.NewMomentumService(&fakeFeed{}, ledger, scannerConfig(), zap.NewNop())

	tickers := []domain.Ticker{
		{Symbol: "MIDUSDT", LastPrice: 1, Price24hPcnt: 8, Volume24h: 500_000},
		{Symbol: "HOTUSDT", LastPrice: 1, Price24hPcnt: 20, Volume24h: 9_000_000},
	}

	signals := svc.Evaluate(tickers)
	require.Len(t, signals, 2)
	assert.Equal(t, "HOTUSDT", signals[0].Symbol)
}

func TestEvaluateSkipsHeldSymbols(t *testing.T) {
	ledger := newTestLedger(t, 1000)
	_, err := ledger.Buy("GOODUSDT", 2.5, 1, 0, nil)
	require.NoError(t, err)

	svc := usecase.NewMomentumService(&fakeFeed{}, ledger, scannerConfig(), zap.NewNop())
	signals := svc.Evaluate([]domain.Ticker{
		{Symbol: "GOODUSDT", LastPrice: 2.5, Price24hPcnt: 12, Volume24h: 5_000_000},
	})
	assert.Empty(t, signals)
}

func TestScanRespectsCooldown(t *testing.T) {
	feed := &fakeFeed{tickers: []domain.Ticker{
		{Symbol: "GOODUSDT", LastPrice: 2.5, Price24hPcnt: 12, Volume24h: 5_000_000},
	}}
	ledger := newTestLedger(t, 1000)
	svc := usecase.NewMomentumService(feed, ledger, scannerConfig(), zap.NewNop())

	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	svc.SetClock(func() time.Time { return now })

	svc.Scan(context.Background())
	require.True(t, ledger.HasPosition("GOODUSDT"))

	// Close the position; a rescan inside the cooldown must not re-enter.
	_, err := ledger.Sell("GOODUSDT", 2.6, domain.ReasonManual)
	require.NoError(t, err)

	now = now.Add(30 * time.Minute)
	svc.Scan(context.Background())
	assert.False(t, ledger.HasPosition("GOODUSDT"))

	// After the cooldown it is tradable again.
	now = now.Add(31 * time.Minute)
	svc.Scan(context.Background())
	assert.True(t, ledger.HasPosition("GOODUSDT"))
}
