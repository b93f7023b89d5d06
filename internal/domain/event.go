package domain

import "time"

type EventType string

const (
	EventPositionOpened    EventType = "POSITION_OPENED"
	EventPositionClosed    EventType = "POSITION_CLOSED"
	EventPositionPartClose EventType = "POSITION_PARTIALLY_CLOSED"
)

// Event is a ledger lifecycle notification. Delivery is best-effort: the
// ledger enqueues events synchronously and never waits on, or fails
// because of, a downstream consumer.
type Event struct {
	Type       EventType
	Symbol     string
	EntryPrice float64
	ExitPrice  float64
	Amount     float64
	Cost       float64
	PnL        float64
	PnLPercent float64
	Reason     CloseReason
	Features   map[string]any
	Time       time.Time

	// Trade carries the journal record for close events, nil otherwise.
	Trade *Trade
}
