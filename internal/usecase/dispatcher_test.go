package usecase_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vitos/crypto_paper_bot/internal/domain"
	"github.com/vitos/crypto_paper_bot/internal/usecase"
	"go.uber.org/zap"
)

type fakeNotifier struct {
	events chan domain.Event
	fail   bool
}

func (f *fakeNotifier) Notify(ctx context.Context, event domain.Event) error {
	f.events <- event
	if f.fail {
		return errors.New("telegram down")
	}
	return nil
}

type fakeStateRepo struct {
	mu    sync.Mutex
	saves []*domain.PortfolioSnapshot
}

func (f *fakeStateRepo) SaveSnapshot(ctx context.Context, snap *domain.PortfolioSnapshot) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.saves = append(f.saves, snap)
	return nil
}

func (f *fakeStateRepo) LoadSnapshot(ctx context.Context) (*domain.PortfolioSnapshot, error) {
	return nil, nil
}

func (f *fakeStateRepo) saveCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.saves)
}

func TestDispatcherDeliversAndPersists(t *testing.T) {
	notifier := &fakeNotifier{events: make(chan domain.Event, 8)}
	states := &fakeStateRepo{}

	ledger := newTestLedger(t, 1000)
	d := usecase.NewDispatcher(8, notifier, states, nil, ledger.Snapshot, zap.NewNop())
	ledger.SetSink(d)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	d.Start(ctx)

	_, err := ledger.Buy("BTCUSDT", 100, 1, 0.05, nil)
	require.NoError(t, err)

	select {
	case ev := <-notifier.events:
		assert.Equal(t, domain.EventPositionOpened, ev.Type)
		assert.Equal(t, "BTCUSDT", ev.Symbol)
		assert.InDelta(t, 100.0, ev.Cost, 1e-9)
	case <-time.After(2 * time.Second):
		t.Fatal("expected an opened event")
	}

	_, err = ledger.Sell("BTCUSDT", 110, domain.ReasonManual)
	require.NoError(t, err)

	select {
	case ev := <-notifier.events:
		assert.Equal(t, domain.EventPositionClosed, ev.Type)
		require.NotNil(t, ev.Trade)
		assert.InDelta(t, 10.0, ev.Trade.PnL, 1e-9)
	case <-time.After(2 * time.Second):
		t.Fatal("expected a closed event")
	}

	// Write-through: every event produced a snapshot save.
	assert.Eventually(t, func() bool { return states.saveCount() >= 2 }, 2*time.Second, 10*time.Millisecond)
}

func TestNotifierFailureDoesNotAffectLedger(t *testing.T) {
	notifier := &fakeNotifier{events: make(chan domain.Event, 8), fail: true}

	ledger := newTestLedger(t, 1000)
	d := usecase.NewDispatcher(8, notifier, nil, nil, nil, zap.NewNop())
	ledger.SetSink(d)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	d.Start(ctx)

	_, err := ledger.Buy("BTCUSDT", 100, 1, 0.05, nil)
	require.NoError(t, err)
	<-notifier.events

	// The mutation stands even though delivery failed.
	assert.Equal(t, 1, ledger.Stats().OpenPositions)
	assert.InDelta(t, 900.0, ledger.Stats().Cash, 1e-9)
}

func TestPublishDropsWhenQueueFull(t *testing.T) {
	// No worker draining: the second publish must drop, not block.
	d := usecase.NewDispatcher(1, nil, nil, nil, nil, zap.NewNop())

	d.Publish(domain.Event{Type: domain.EventPositionOpened, Symbol: "A"})
	d.Publish(domain.Event{Type: domain.EventPositionOpened, Symbol: "B"})

	assert.Equal(t, int64(1), d.Dropped())
}
