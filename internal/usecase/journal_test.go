package usecase_test

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/vitos/crypto_paper_bot/internal/domain"
	"github.com/vitos/crypto_paper_bot/internal/usecase"
)

func TestJournalCounters(t *testing.T) {
	j := usecase.NewJournal(10)

	j.Record(domain.Trade{ID: "1", PnL: 5}, true)
	j.Record(domain.Trade{ID: "2", PnL: -3}, true)
	j.Record(domain.Trade{ID: "3", PnL: 0}, true) // flat close counts as a loss
	j.Record(domain.Trade{ID: "4", PnL: 2}, false)

	total, wins, losses := j.Counters()
	assert.Equal(t, 3, total)
	assert.Equal(t, 1, wins)
	assert.Equal(t, 2, losses)
	assert.Len(t, j.Recent(0), 4)
	assert.InDelta(t, 100.0/3, j.WinRate(), 1e-9)
}

func TestJournalEvictionKeepsCounters(t *testing.T) {
	j := usecase.NewJournal(5)

	for i := 0; i < 20; i++ {
		j.Record(domain.Trade{ID: fmt.Sprintf("T%d", i), PnL: 1}, true)
	}

	total, wins, _ := j.Counters()
	assert.Equal(t, 20, total)
	assert.Equal(t, 20, wins)
	assert.Equal(t, 100.0, j.WinRate())

	recent := j.Recent(0)
	assert.Len(t, recent, 5)
	// Retained window is the newest entries, oldest first.
	assert.Equal(t, "T15", recent[0].ID)
	assert.Equal(t, "T19", recent[4].ID)
}

func TestJournalRecentLimit(t *testing.T) {
	j := usecase.NewJournal(10)
	for i := 0; i < 4; i++ {
		j.Record(domain.Trade{ID: fmt.Sprintf("T%d", i)}, true)
	}

	recent := j.Recent(2)
	assert.Len(t, recent, 2)
	assert.Equal(t, "T2", recent[0].ID)
	assert.Equal(t, "T3", recent[1].ID)

	assert.Empty(t, usecase.NewJournal(10).Recent(5))
	assert.Equal(t, 0.0, usecase.NewJournal(10).WinRate())
}
