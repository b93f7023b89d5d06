package domain

import "context"

// PriceFeed delivers market data to the bot. Push updates arrive through
// the registered callback in per-symbol arrival order.
type PriceFeed interface {
	GetPrice(ctx context.Context, symbol string) (float64, error)
	GetTickers(ctx context.Context) ([]Ticker, error)
	OnPriceUpdate(callback func(symbol string, price float64))
	Connect(symbols []string) error
	Subscribe(symbols []string) error
	Close() error
}

// StateRepository persists and restores full ledger snapshots. Load
// returns a nil snapshot (not an error) when none has been saved yet.
type StateRepository interface {
	SaveSnapshot(ctx context.Context, snap *PortfolioSnapshot) error
	LoadSnapshot(ctx context.Context) (*PortfolioSnapshot, error)
}

// TradeRepository is the durable, append-only trade journal.
type TradeRepository interface {
	SaveTrade(ctx context.Context, trade *Trade) error
	ListTrades(ctx context.Context, limit int) ([]*Trade, error)
}

// Notifier reports ledger events to an external channel. Implementations
// may drop, delay or fail without affecting ledger correctness.
type Notifier interface {
	Notify(ctx context.Context, event Event) error
}

// EventSink accepts ledger events. Publish must not block; an overloaded
// sink drops the event.
type EventSink interface {
	Publish(event Event)
}
