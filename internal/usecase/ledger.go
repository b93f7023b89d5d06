package usecase

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/vitos/crypto_paper_bot/internal/domain"
	"go.uber.org/zap"
)

// Ledger is the paper-trading portfolio: cash plus the set of open
// positions, with the exit-rule machine applied on every price tick.
//
// All mutation is serialized by one mutex over the position map and the
// cash balance; a buy or sell never interleaves with an in-progress price
// update. Operations are transactional over the in-memory state: a
// rejected call leaves nothing changed. Events are enqueued to the sink
// synchronously but the sink must never block, so persistence or
// notification latency cannot delay tick processing.
type Ledger struct {
	mu sync.Mutex

	cash           float64
	initialCapital float64
	positions      map[string]*domain.Position
	lastPrices     map[string]float64

	journal *Journal
	engine  *ExitEngine
	cfg     ExitConfig

	sink   domain.EventSink
	logger *zap.Logger
	now    func() time.Time
}

func NewLedger(cfg ExitConfig, logger *zap.Logger) *Ledger {
	if cfg.InitialCapital <= 0 {
		cfg.InitialCapital = DefaultExitConfig().InitialCapital
	}
	return &Ledger{
		cash:           cfg.InitialCapital,
		initialCapital: cfg.InitialCapital,
		positions:      make(map[string]*domain.Position),
		lastPrices:     make(map[string]float64),
		journal:        NewJournal(cfg.JournalCap),
		engine:         NewExitEngine(cfg),
		cfg:            cfg,
		logger:         logger,
		now:            time.Now,
	}
}

// SetSink attaches the outbound event queue. Safe to call once during
// wiring, before any trading starts.
func (l *Ledger) SetSink(sink domain.EventSink) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.sink = sink
}

// SetClock overrides the time source. Used by simulations and tests.
func (l *Ledger) SetClock(now func() time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.now = now
}

// Buy opens a position. A quantity of 0 sizes the order from the
// configured fraction of current cash. Returns a detached copy of the
// created position, or a rejection without any state change.
func (l *Ledger) Buy(symbol string, price, quantity, stopLossPct float64, features map[string]any) (*domain.Position, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.buyLocked(symbol, price, quantity, stopLossPct, features)
}

// Open executes a buy intent from a signal source, honoring its sizing
// hint and stop-loss suggestion.
func (l *Ledger) Open(sig domain.BuySignal) (*domain.Position, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if sig.Price <= 0 {
		return nil, fmt.Errorf("open %s: %w", sig.Symbol, domain.ErrInvalidPrice)
	}
	frac := sig.SizingHint
	if frac <= 0 || frac > 1 {
		frac = l.cfg.SizingFraction
	}
	quantity := l.cash * frac / sig.Price
	return l.buyLocked(sig.Symbol, sig.Price, quantity, sig.StopLossPct, sig.Features)
}

func (l *Ledger) buyLocked(symbol string, price, quantity, stopLossPct float64, features map[string]any) (*domain.Position, error) {
	if price <= 0 {
		return nil, fmt.Errorf("buy %s: %w", symbol, domain.ErrInvalidPrice)
	}
	if quantity < 0 || stopLossPct < 0 || stopLossPct >= 1 {
		return nil, fmt.Errorf("buy %s: %w", symbol, domain.ErrInvalidQuantity)
	}
	if _, exists := l.positions[symbol]; exists {
		return nil, fmt.Errorf("buy %s: %w", symbol, domain.ErrDuplicatePosition)
	}

	if quantity == 0 {
		quantity = l.cash * l.cfg.SizingFraction / price
	}
	if quantity <= 0 {
		return nil, fmt.Errorf("buy %s: %w", symbol, domain.ErrInvalidQuantity)
	}

	cost := price * quantity
	if cost > l.cash {
		return nil, fmt.Errorf("buy %s: need %.2f, have %.2f: %w", symbol, cost, l.cash, domain.ErrInsufficientFunds)
	}

	slPct := stopLossPct
	if slPct == 0 {
		slPct = l.cfg.DefaultStopLossPct
	}

	now := l.now()
	pos := &domain.Position{
		Symbol:           symbol,
		EntryPrice:       price,
		Amount:           quantity,
		OriginalAmount:   quantity,
		EntryTime:        now,
		StopLoss:         price * (1 - slPct),
		HighestPrice:     price,
		LastMovementTime: now,
		Features:         copyFeatures(features),
	}

	l.cash -= cost
	l.positions[symbol] = pos
	l.lastPrices[symbol] = price

	l.logger.Info("position opened",
		zap.String("symbol", symbol),
		zap.Float64("price", price),
		zap.Float64("amount", quantity),
		zap.Float64("cost", cost),
		zap.Float64("stop_loss", pos.StopLoss),
	)

	l.emit(domain.Event{
		Type:       domain.EventPositionOpened,
		Symbol:     symbol,
		EntryPrice: price,
		Amount:     quantity,
		Cost:       cost,
		Features:   copyFeatures(features),
		Time:       now,
	})

	out := *pos
	out.Features = copyFeatures(pos.Features)
	return &out, nil
}

// ApplyPriceUpdate runs the exit-rule machine over one batch of prices.
// Each held symbol present in the batch is processed atomically in the
// engine's fixed check order; symbols absent from the batch are skipped.
func (l *Ledger) ApplyPriceUpdate(prices map[string]float64) {
	l.mu.Lock()
	defer l.mu.Unlock()

	for symbol, price := range prices {
		if price > 0 {
			l.lastPrices[symbol] = price
		}
	}

	now := l.now()
	for symbol, pos := range l.positions {
		price, ok := prices[symbol]
		if !ok || price <= 0 {
			continue
		}

		for _, action := range l.engine.Evaluate(pos, price, now) {
			switch action.Kind {
			case ActionPartialClose:
				l.partialSellLocked(pos, price, action.Amount, action.Reason)
			case ActionClose:
				l.sellLocked(pos, price, action.Reason)
			}
			if _, open := l.positions[symbol]; !open {
				break
			}
		}
	}
}

// Sell closes the entire remaining position at the given price.
func (l *Ledger) Sell(symbol string, price float64, reason domain.CloseReason) (*domain.Trade, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if price <= 0 {
		return nil, fmt.Errorf("sell %s: %w", symbol, domain.ErrInvalidPrice)
	}
	pos, ok := l.positions[symbol]
	if !ok {
		return nil, fmt.Errorf("sell %s: %w", symbol, domain.ErrPositionNotFound)
	}
	trade := l.sellLocked(pos, price, reason)
	return trade, nil
}

// PartialSell closes part of a position. The quantity must be positive and
// no greater than the remaining amount; closing the full remainder removes
// the position and counts a completed trade.
func (l *Ledger) PartialSell(symbol string, price, quantity float64, reason domain.CloseReason) (*domain.Trade, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if price <= 0 {
		return nil, fmt.Errorf("partial sell %s: %w", symbol, domain.ErrInvalidPrice)
	}
	pos, ok := l.positions[symbol]
	if !ok {
		return nil, fmt.Errorf("partial sell %s: %w", symbol, domain.ErrPositionNotFound)
	}
	if quantity <= 0 || quantity > pos.Amount {
		return nil, fmt.Errorf("partial sell %s: %w", symbol, domain.ErrInvalidQuantity)
	}
	trade := l.partialSellLocked(pos, price, quantity, reason)
	return trade, nil
}

func (l *Ledger) sellLocked(pos *domain.Position, price float64, reason domain.CloseReason) *domain.Trade {
	amount := pos.Amount
	pnl := (price - pos.EntryPrice) * amount
	pnlPct := (price - pos.EntryPrice) / pos.EntryPrice * 100

	l.cash += price * amount
	delete(l.positions, pos.Symbol)

	trade := domain.Trade{
		ID:         uuid.NewString(),
		Symbol:     pos.Symbol,
		EntryPrice: pos.EntryPrice,
		ExitPrice:  price,
		Amount:     amount,
		PnL:        pnl,
		PnLPercent: pnlPct,
		Reason:     reason,
		EntryTime:  pos.EntryTime,
		ExitTime:   l.now(),
	}
	l.journal.Record(trade, true)

	l.logger.Info("position closed",
		zap.String("symbol", pos.Symbol),
		zap.Float64("exit_price", price),
		zap.Float64("pnl", pnl),
		zap.Float64("pnl_percent", pnlPct),
		zap.String("reason", string(reason)),
	)

	l.emit(domain.Event{
		Type:       domain.EventPositionClosed,
		Symbol:     pos.Symbol,
		EntryPrice: pos.EntryPrice,
		ExitPrice:  price,
		Amount:     amount,
		PnL:        pnl,
		PnLPercent: pnlPct,
		Reason:     reason,
		Features:   copyFeatures(pos.Features),
		Time:       trade.ExitTime,
		Trade:      &trade,
	})

	return &trade
}

func (l *Ledger) partialSellLocked(pos *domain.Position, price, quantity float64, reason domain.CloseReason) *domain.Trade {
	if quantity > pos.Amount {
		quantity = pos.Amount
	}

	pnl := (price - pos.EntryPrice) * quantity
	pnlPct := (price - pos.EntryPrice) / pos.EntryPrice * 100

	l.cash += price * quantity
	pos.Amount -= quantity

	final := pos.Amount <= 0
	if final {
		delete(l.positions, pos.Symbol)
	}

	trade := domain.Trade{
		ID:         uuid.NewString(),
		Symbol:     pos.Symbol,
		EntryPrice: pos.EntryPrice,
		ExitPrice:  price,
		Amount:     quantity,
		PnL:        pnl,
		PnLPercent: pnlPct,
		Reason:     reason,
		EntryTime:  pos.EntryTime,
		ExitTime:   l.now(),
	}
	l.journal.Record(trade, final)

	l.logger.Info("position partially closed",
		zap.String("symbol", pos.Symbol),
		zap.Float64("exit_price", price),
		zap.Float64("amount", quantity),
		zap.Float64("remaining", pos.Amount),
		zap.String("reason", string(reason)),
	)

	evType := domain.EventPositionPartClose
	if final {
		evType = domain.EventPositionClosed
	}
	l.emit(domain.Event{
		Type:       evType,
		Symbol:     pos.Symbol,
		EntryPrice: pos.EntryPrice,
		ExitPrice:  price,
		Amount:     quantity,
		PnL:        pnl,
		PnLPercent: pnlPct,
		Reason:     reason,
		Features:   copyFeatures(pos.Features),
		Time:       trade.ExitTime,
		Trade:      &trade,
	})

	return &trade
}

// OpenPositions returns detached copies of every open position.
func (l *Ledger) OpenPositions() []domain.Position {
	l.mu.Lock()
	defer l.mu.Unlock()

	out := make([]domain.Position, 0, len(l.positions))
	for _, pos := range l.positions {
		p := *pos
		p.Features = copyFeatures(pos.Features)
		out = append(out, p)
	}
	return out
}

// HasPosition reports whether a position is open for the symbol.
func (l *Ledger) HasPosition(symbol string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	_, ok := l.positions[symbol]
	return ok
}

// RecentTrades returns up to n most recent journal entries, oldest first.
func (l *Ledger) RecentTrades(n int) []domain.Trade {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.journal.Recent(n)
}

// Stats computes the derived portfolio metrics. Equity marks open
// positions at their last seen price, falling back to entry price for a
// symbol that has not ticked yet.
func (l *Ledger) Stats() domain.PortfolioStats {
	l.mu.Lock()
	defer l.mu.Unlock()

	equity := l.cash
	for symbol, pos := range l.positions {
		price, ok := l.lastPrices[symbol]
		if !ok {
			price = pos.EntryPrice
		}
		equity += pos.Amount * price
	}

	total, wins, losses := l.journal.Counters()
	return domain.PortfolioStats{
		InitialCapital: l.initialCapital,
		Cash:           l.cash,
		Equity:         equity,
		TotalPnL:       equity - l.initialCapital,
		TotalPnLPct:    (equity - l.initialCapital) / l.initialCapital * 100,
		TotalTrades:    total,
		WinningTrades:  wins,
		LosingTrades:   losses,
		WinRate:        l.journal.WinRate(),
		OpenPositions:  len(l.positions),
	}
}

// Snapshot serializes the full ledger state for persistence.
func (l *Ledger) Snapshot() *domain.PortfolioSnapshot {
	l.mu.Lock()
	defer l.mu.Unlock()

	snap := &domain.PortfolioSnapshot{
		InitialCapital: l.initialCapital,
		Cash:           l.cash,
		SavedAt:        l.now(),
	}
	snap.TotalTrades, snap.WinningTrades, snap.LosingTrades = l.journal.Counters()
	for _, pos := range l.positions {
		p := *pos
		p.Features = copyFeatures(pos.Features)
		snap.Positions = append(snap.Positions, p)
	}
	sort.Slice(snap.Positions, func(i, j int) bool {
		return snap.Positions[i].Symbol < snap.Positions[j].Symbol
	})
	snap.RecentTrades = l.journal.Recent(0)
	return snap
}

// Restore replaces ledger state with a persisted snapshot. Called once at
// startup, before the first price update.
func (l *Ledger) Restore(snap *domain.PortfolioSnapshot) {
	if snap == nil {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	if snap.InitialCapital > 0 {
		l.initialCapital = snap.InitialCapital
	}
	l.cash = snap.Cash
	l.positions = make(map[string]*domain.Position, len(snap.Positions))
	for i := range snap.Positions {
		p := snap.Positions[i]
		p.Features = copyFeatures(p.Features)
		l.positions[p.Symbol] = &p
		l.lastPrices[p.Symbol] = p.EntryPrice
	}
	l.journal.restore(snap.RecentTrades, snap.TotalTrades, snap.WinningTrades, snap.LosingTrades)

	l.logger.Info("ledger restored",
		zap.Float64("cash", l.cash),
		zap.Int("positions", len(l.positions)),
		zap.Int("total_trades", snap.TotalTrades),
	)
}

// HeldSymbols returns the symbols with open positions.
func (l *Ledger) HeldSymbols() []string {
	l.mu.Lock()
	defer l.mu.Unlock()

	out := make([]string, 0, len(l.positions))
	for symbol := range l.positions {
		out = append(out, symbol)
	}
	return out
}

func (l *Ledger) emit(ev domain.Event) {
	if l.sink != nil {
		l.sink.Publish(ev)
	}
}

func copyFeatures(features map[string]any) map[string]any {
	if features == nil {
		return nil
	}
	out := make(map[string]any, len(features))
	for k, v := range features {
		out[k] = v
	}
	return out
}
