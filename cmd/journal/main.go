package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/vitos/crypto_paper_bot/internal/infrastructure/storage"
)

// Prints the persisted portfolio and recent trades for offline inspection.
func main() {
	dbPath := flag.String("db", "paper_bot.db", "path to the bot database")
	limit := flag.Int("limit", 20, "number of trades to show")
	flag.Parse()

	store, err := storage.NewSQLiteStore(*dbPath)
	if err != nil {
		fmt.Printf("Failed to open database: %v\n", err)
		os.Exit(1)
	}
	defer store.Close()

	ctx := context.Background()
	snap, err := store.LoadSnapshot(ctx)
	if err != nil {
		fmt.Printf("Failed to load snapshot: %v\n", err)
		os.Exit(1)
	}
	if snap == nil {
		fmt.Println("No saved state found.")
		return
	}

	fmt.Printf("Portfolio (saved %s)\n", snap.SavedAt.Format("2006-01-02 15:04:05"))
	fmt.Printf("  Initial capital: $%.2f\n", snap.InitialCapital)
	fmt.Printf("  Cash:            $%.2f\n", snap.Cash)
	fmt.Printf("  Trades:          %d (won %d, lost %d)\n", snap.TotalTrades, snap.WinningTrades, snap.LosingTrades)

	fmt.Printf("\nOpen positions: %d\n", len(snap.Positions))
	for _, p := range snap.Positions {
		fmt.Printf("  %-12s entry $%.6f amount %.4f stop $%.6f high $%.6f trail=%v tp=[%v %v %v]\n",
			p.Symbol, p.EntryPrice, p.Amount, p.StopLoss, p.HighestPrice,
			p.TrailingActivated, p.TP1Hit, p.TP2Hit, p.TP3Hit)
	}

	trades, err := store.ListTrades(ctx, *limit)
	if err != nil {
		fmt.Printf("Failed to list trades: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("\nRecent trades: %d\n", len(trades))
	for _, t := range trades {
		fmt.Printf("  %s %-12s %.4f @ $%.6f -> $%.6f pnl $%.2f (%+.2f%%) %s\n",
			t.ExitTime.Format("2006-01-02 15:04"), t.Symbol, t.Amount,
			t.EntryPrice, t.ExitPrice, t.PnL, t.PnLPercent, t.Reason)
	}
}
