package usecase

import (
	"context"
	"sync/atomic"

	"github.com/vitos/crypto_paper_bot/internal/domain"
	"go.uber.org/zap"
)

// Dispatcher is the outbound side of the ledger: it queues events and
// drains them on a worker goroutine, notifying the external channel and
// writing through a fresh snapshot after every mutation. The queue is
// bounded; when it is full, Publish drops the event instead of blocking
// the ledger, and persistence catches up on the next event or the periodic
// snapshot.
type Dispatcher struct {
	events   chan domain.Event
	notifier domain.Notifier
	states   domain.StateRepository
	trades   domain.TradeRepository
	snapshot func() *domain.PortfolioSnapshot
	logger   *zap.Logger
	dropped  atomic.Int64
}

func NewDispatcher(
	queueSize int,
	notifier domain.Notifier,
	states domain.StateRepository,
	trades domain.TradeRepository,
	snapshot func() *domain.PortfolioSnapshot,
	logger *zap.Logger,
) *Dispatcher {
	if queueSize <= 0 {
		queueSize = 256
	}
	return &Dispatcher{
		events:   make(chan domain.Event, queueSize),
		notifier: notifier,
		states:   states,
		trades:   trades,
		snapshot: snapshot,
		logger:   logger,
	}
}

// Publish enqueues an event without blocking. Implements domain.EventSink.
func (d *Dispatcher) Publish(event domain.Event) {
	select {
	case d.events <- event:
	default:
		d.dropped.Add(1)
		d.logger.Warn("event queue full, dropping event",
			zap.String("type", string(event.Type)),
			zap.String("symbol", event.Symbol),
		)
	}
}

// Dropped returns how many events have been discarded due to backpressure.
func (d *Dispatcher) Dropped() int64 {
	return d.dropped.Load()
}

// Start launches the drain worker. It stops when ctx is cancelled.
func (d *Dispatcher) Start(ctx context.Context) {
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case event := <-d.events:
				d.handle(ctx, event)
			}
		}
	}()
}

func (d *Dispatcher) handle(ctx context.Context, event domain.Event) {
	if d.notifier != nil {
		if err := d.notifier.Notify(ctx, event); err != nil {
			d.logger.Warn("notification failed",
				zap.String("type", string(event.Type)),
				zap.String("symbol", event.Symbol),
				zap.Error(err),
			)
		}
	}

	if d.trades != nil && event.Trade != nil {
		if err := d.trades.SaveTrade(ctx, event.Trade); err != nil {
			d.logger.Error("failed to persist trade",
				zap.String("trade_id", event.Trade.ID),
				zap.Error(err),
			)
		}
	}

	// Persistence is best-effort durability, not a transaction: a failed
	// save never rolls back the in-memory ledger.
	if d.states != nil && d.snapshot != nil {
		if err := d.states.SaveSnapshot(ctx, d.snapshot()); err != nil {
			d.logger.Error("failed to persist snapshot", zap.Error(err))
		}
	}
}
