package domain

import "time"

// CloseReason identifies what triggered a (partial) position close.
type CloseReason string

const (
	ReasonStopLoss     CloseReason = "STOP_LOSS"
	ReasonTrailingStop CloseReason = "TRAILING_STOP"
	ReasonTakeProfit1  CloseReason = "TAKE_PROFIT_1"
	ReasonTakeProfit2  CloseReason = "TAKE_PROFIT_2"
	ReasonTakeProfit3  CloseReason = "TAKE_PROFIT_3"
	ReasonTimeout      CloseReason = "TIMEOUT"
	ReasonManual       CloseReason = "MANUAL"
)

// Position is an open, partially-liquidatable holding in one symbol.
// Amount never exceeds OriginalAmount; a position whose Amount reaches 0 is
// removed from the open set. StopLoss and HighestPrice only ever move up,
// and the Activated/Hit flags are latches: once true they stay true.
type Position struct {
	Symbol         string
	EntryPrice     float64
	Amount         float64
	OriginalAmount float64
	EntryTime      time.Time

	StopLoss          float64
	HighestPrice      float64
	TrailingActivated bool

	TP1Hit bool
	TP2Hit bool
	TP3Hit bool

	LastMovementTime time.Time

	// Features is the opaque signal metadata attached at entry. The ledger
	// stores and forwards it but never branches on its contents.
	Features map[string]any
}

// Value returns the position value at its entry price.
func (p *Position) Value() float64 {
	return p.EntryPrice * p.Amount
}

// Trade is an immutable record of a completed full or partial close.
type Trade struct {
	ID         string
	Symbol     string
	EntryPrice float64
	ExitPrice  float64
	Amount     float64
	PnL        float64
	PnLPercent float64
	Reason     CloseReason
	EntryTime  time.Time
	ExitTime   time.Time
}

// PortfolioStats are the derived journal metrics, computed on demand.
type PortfolioStats struct {
	InitialCapital float64 `json:"initial_capital"`
	Cash           float64 `json:"cash"`
	Equity         float64 `json:"equity"`
	TotalPnL       float64 `json:"total_pnl"`
	TotalPnLPct    float64 `json:"total_pnl_percent"`
	TotalTrades    int     `json:"total_trades"`
	WinningTrades  int     `json:"winning_trades"`
	LosingTrades   int     `json:"losing_trades"`
	WinRate        float64 `json:"win_rate"`
	OpenPositions  int     `json:"open_positions"`
}

// PortfolioSnapshot is a full, detached serialization of ledger state.
// Round-tripping through the state repository must be lossless for every
// field, latch booleans included.
type PortfolioSnapshot struct {
	InitialCapital float64
	Cash           float64
	TotalTrades    int
	WinningTrades  int
	LosingTrades   int
	Positions      []Position
	RecentTrades   []Trade
	SavedAt        time.Time
}
