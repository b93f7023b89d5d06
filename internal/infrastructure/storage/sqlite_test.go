package storage_test

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vitos/crypto_paper_bot/internal/domain"
	"github.com/vitos/crypto_paper_bot/internal/infrastructure/storage"
)

func newTestStore(t *testing.T) *storage.SQLiteStore {
	t.Helper()
	store, err := storage.NewSQLiteStore(filepath.Join(t.TempDir(), "bot.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func TestLoadSnapshotFreshStore(t *testing.T) {
	store := newTestStore(t)

	snap, err := store.LoadSnapshot(context.Background())
	require.NoError(t, err)
	assert.Nil(t, snap)
}

func TestSnapshotRoundTrip(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	entry := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)
	saved := &domain.PortfolioSnapshot{
		InitialCapital: 1000,
		Cash:           912.5,
		TotalTrades:    3,
		WinningTrades:  2,
		LosingTrades:   1,
		Positions: []domain.Position{
			{
				Symbol:            "BTCUSDT",
				EntryPrice:        100,
				Amount:            0.4,
				OriginalAmount:    1,
				EntryTime:         entry,
				StopLoss:          103.425,
				HighestPrice:      105,
				TrailingActivated: true,
				TP1Hit:            true,
				TP2Hit:            true,
				LastMovementTime:  entry.Add(45 * time.Minute),
				Features: map[string]any{
					"signal_type": "top_gainer",
					"score":       84.5,
				},
			},
			{
				Symbol:           "ETHUSDT",
				EntryPrice:       50,
				Amount:           2,
				OriginalAmount:   2,
				EntryTime:        entry.Add(5 * time.Minute),
				StopLoss:         48.5,
				HighestPrice:     50,
				LastMovementTime: entry.Add(5 * time.Minute),
			},
		},
		RecentTrades: []domain.Trade{
			{
				ID:         "t-1",
				Symbol:     "SOLUSDT",
				EntryPrice: 20,
				ExitPrice:  20.6,
				Amount:     4,
				PnL:        2.4,
				PnLPercent: 3,
				Reason:     domain.ReasonTakeProfit1,
				EntryTime:  entry.Add(-2 * time.Hour),
				ExitTime:   entry.Add(-1 * time.Hour),
			},
		},
		SavedAt: entry.Add(time.Hour),
	}

	require.NoError(t, store.SaveSnapshot(ctx, saved))

	loaded, err := store.LoadSnapshot(ctx)
	require.NoError(t, err)
	require.NotNil(t, loaded)

	assert.Equal(t, saved.InitialCapital, loaded.InitialCapital)
	assert.Equal(t, saved.Cash, loaded.Cash)
	assert.Equal(t, saved.TotalTrades, loaded.TotalTrades)
	assert.Equal(t, saved.WinningTrades, loaded.WinningTrades)
	assert.Equal(t, saved.LosingTrades, loaded.LosingTrades)
	assert.True(t, saved.SavedAt.Equal(loaded.SavedAt))

	require.Len(t, loaded.Positions, 2)
	byt := positionBySymbol(t, loaded.Positions, "BTCUSDT")
	assert.Equal(t, 100.0, byt.EntryPrice)
	assert.Equal(t, 0.4, byt.Amount)
	assert.Equal(t, 1.0, byt.OriginalAmount)
	assert.Equal(t, 103.425, byt.StopLoss)
	assert.Equal(t, 105.0, byt.HighestPrice)
	assert.True(t, byt.TrailingActivated)
	assert.True(t, byt.TP1Hit)
	assert.True(t, byt.TP2Hit)
	assert.False(t, byt.TP3Hit)
	assert.True(t, byt.EntryTime.Equal(entry))
	assert.True(t, byt.LastMovementTime.Equal(entry.Add(45*time.Minute)))
	assert.Equal(t, "top_gainer", byt.Features["signal_type"])
	assert.Equal(t, 84.5, byt.Features["score"])

	eth := positionBySymbol(t, loaded.Positions, "ETHUSDT")
	assert.False(t, eth.TrailingActivated)
	assert.Nil(t, eth.Features)

	require.Len(t, loaded.RecentTrades, 1)
	trade := loaded.RecentTrades[0]
	assert.Equal(t, "t-1", trade.ID)
	assert.Equal(t, domain.ReasonTakeProfit1, trade.Reason)
	assert.Equal(t, 2.4, trade.PnL)
	assert.True(t, trade.ExitTime.Equal(entry.Add(-1*time.Hour)))
}

func TestSnapshotOverwritesPositions(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	now := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)

	first := &domain.PortfolioSnapshot{
		InitialCapital: 1000,
		Cash:           900,
		Positions: []domain.Position{
			{Symbol: "BTCUSDT", EntryPrice: 100, Amount: 1, OriginalAmount: 1, EntryTime: now, StopLoss: 97, HighestPrice: 100, LastMovementTime: now},
		},
		SavedAt: now,
	}
	require.NoError(t, store.SaveSnapshot(ctx, first))

	// The position closed; the next snapshot must not resurrect it.
	second := &domain.PortfolioSnapshot{
		InitialCapital: 1000,
		Cash:           1005,
		TotalTrades:    1,
		WinningTrades:  1,
		SavedAt:        now.Add(time.Minute),
	}
	require.NoError(t, store.SaveSnapshot(ctx, second))

	loaded, err := store.LoadSnapshot(ctx)
	require.NoError(t, err)
	require.NotNil(t, loaded)
	assert.Empty(t, loaded.Positions)
	assert.Equal(t, 1005.0, loaded.Cash)
	assert.Equal(t, 1, loaded.TotalTrades)
}

func TestTradePersistenceIsAppendOnly(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	base := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)

	for i := 0; i < 3; i++ {
		trade := &domain.Trade{
			ID:         string(rune('a' + i)),
			Symbol:     "BTCUSDT",
			EntryPrice: 100,
			ExitPrice:  101 + float64(i),
			Amount:     1,
			PnL:        1 + float64(i),
			PnLPercent: 1 + float64(i),
			Reason:     domain.ReasonManual,
			EntryTime:  base,
			ExitTime:   base.Add(time.Duration(i) * time.Minute),
		}
		require.NoError(t, store.SaveTrade(ctx, trade))
	}

	trades, err := store.ListTrades(ctx, 2)
	require.NoError(t, err)
	require.Len(t, trades, 2)
	assert.Equal(t, "c", trades[0].ID)
	assert.Equal(t, "b", trades[1].ID)

	// Re-saving an existing trade must not duplicate it.
	require.NoError(t, store.SaveTrade(ctx, &domain.Trade{
		ID: "c", Symbol: "BTCUSDT", EntryPrice: 100, ExitPrice: 103, Amount: 1,
		PnL: 3, PnLPercent: 3, Reason: domain.ReasonManual,
		EntryTime: base, ExitTime: base.Add(2 * time.Minute),
	}))
	trades, err = store.ListTrades(ctx, 10)
	require.NoError(t, err)
	assert.Len(t, trades, 3)
}

func positionBySymbol(t *testing.T, positions []domain.Position, symbol string) domain.Position {
	t.Helper()
	for _, p := range positions {
		if p.Symbol == symbol {
			return p
		}
	}
	t.Fatalf("position %s not found", symbol)
	return domain.Position{}
}
