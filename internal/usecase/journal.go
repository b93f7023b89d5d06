package usecase

import "github.com/vitos/crypto_paper_bot/internal/domain"

// Journal keeps the aggregate trade counters and a bounded, time-ascending
// window of recent trades. Counters are maintained independently of the
// retained entries, so evicting old trades never skews the win rate.
//
// The Journal is owned by a Ledger and is only touched under the ledger
// lock; it carries no locking of its own.
type Journal struct {
	cap    int
	trades []domain.Trade

	total  int
	wins   int
	losses int
}

func NewJournal(capacity int) *Journal {
	if capacity <= 0 {
		capacity = 100
	}
	return &Journal{cap: capacity}
}

// Record appends a trade. Only final closes (a full sell, or a partial sell
// that empties the position) advance the completed-trade counters; an
// intermediate partial close is journaled but not counted.
func (j *Journal) Record(trade domain.Trade, final bool) {
	j.trades = append(j.trades, trade)
	if len(j.trades) > j.cap {
		j.trades = j.trades[len(j.trades)-j.cap:]
	}

	if !final {
		return
	}
	j.total++
	if trade.PnL > 0 {
		j.wins++
	} else {
		j.losses++
	}
}

// Recent returns up to n most recent trades, oldest first. n <= 0 returns
// the whole retained window.
func (j *Journal) Recent(n int) []domain.Trade {
	if n <= 0 || n > len(j.trades) {
		n = len(j.trades)
	}
	out := make([]domain.Trade, n)
	copy(out, j.trades[len(j.trades)-n:])
	return out
}

// Counters returns (total, winning, losing) completed trades.
func (j *Journal) Counters() (int, int, int) {
	return j.total, j.wins, j.losses
}

// WinRate is the winning percentage of completed trades, 0 when none.
func (j *Journal) WinRate() float64 {
	if j.total == 0 {
		return 0
	}
	return float64(j.wins) / float64(j.total) * 100
}

func (j *Journal) restore(trades []domain.Trade, total, wins, losses int) {
	j.trades = append(j.trades[:0], trades...)
	if len(j.trades) > j.cap {
		j.trades = j.trades[len(j.trades)-j.cap:]
	}
	j.total = total
	j.wins = wins
	j.losses = losses
}
