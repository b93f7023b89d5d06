package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
	"github.com/vitos/crypto_paper_bot/internal/domain"
)

// SQLiteStore persists ledger snapshots and the trade journal. It
// implements domain.StateRepository and domain.TradeRepository.
type SQLiteStore struct {
	db *sql.DB
}

func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, err
	}

	store := &SQLiteStore{db: db}
	if err := store.initSchema(); err != nil {
		return nil, err
	}
	return store, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) initSchema() error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS portfolio (
			id INTEGER PRIMARY KEY CHECK (id = 1),
			initial_capital REAL NOT NULL,
			cash REAL NOT NULL,
			total_trades INTEGER NOT NULL,
			winning_trades INTEGER NOT NULL,
			losing_trades INTEGER NOT NULL,
			saved_at DATETIME NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS positions (
			symbol TEXT PRIMARY KEY,
			entry_price REAL NOT NULL,
			amount REAL NOT NULL,
			original_amount REAL NOT NULL,
			entry_time DATETIME NOT NULL,
			stop_loss REAL NOT NULL,
			highest_price REAL NOT NULL,
			trailing_activated BOOLEAN NOT NULL DEFAULT 0,
			tp1_hit BOOLEAN NOT NULL DEFAULT 0,
			tp2_hit BOOLEAN NOT NULL DEFAULT 0,
			tp3_hit BOOLEAN NOT NULL DEFAULT 0,
			last_movement_time DATETIME NOT NULL,
			features TEXT
		);`,
		`CREATE TABLE IF NOT EXISTS trades (
			id TEXT PRIMARY KEY,
			symbol TEXT NOT NULL,
			entry_price REAL NOT NULL,
			exit_price REAL NOT NULL,
			amount REAL NOT NULL,
			pnl REAL NOT NULL,
			pnl_percent REAL NOT NULL,
			reason TEXT NOT NULL,
			entry_time DATETIME NOT NULL,
			exit_time DATETIME NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_trades_exit_time ON trades(exit_time);`,
	}

	for _, q := range queries {
		if _, err := s.db.Exec(q); err != nil {
			return fmt.Errorf("failed to exec query %s: %w", q, err)
		}
	}
	return nil
}

// StateRepository implementation

func (s *SQLiteStore) SaveSnapshot(ctx context.Context, snap *domain.PortfolioSnapshot) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `INSERT INTO portfolio (id, initial_capital, cash, total_trades, winning_trades, losing_trades, saved_at)
		VALUES (1, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
		initial_capital=excluded.initial_capital,
		cash=excluded.cash,
		total_trades=excluded.total_trades,
		winning_trades=excluded.winning_trades,
		losing_trades=excluded.losing_trades,
		saved_at=excluded.saved_at`,
		snap.InitialCapital, snap.Cash, snap.TotalTrades, snap.WinningTrades, snap.LosingTrades, snap.SavedAt)
	if err != nil {
		return err
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM positions`); err != nil {
		return err
	}
	for i := range snap.Positions {
		p := &snap.Positions[i]
		var features []byte
		if p.Features != nil {
			features, err = json.Marshal(p.Features)
			if err != nil {
				return fmt.Errorf("failed to marshal features for %s: %w", p.Symbol, err)
			}
		}
		_, err = tx.ExecContext(ctx, `INSERT INTO positions
			(symbol, entry_price, amount, original_amount, entry_time, stop_loss, highest_price, trailing_activated, tp1_hit, tp2_hit, tp3_hit, last_movement_time, features)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			p.Symbol, p.EntryPrice, p.Amount, p.OriginalAmount, p.EntryTime, p.StopLoss, p.HighestPrice,
			p.TrailingActivated, p.TP1Hit, p.TP2Hit, p.TP3Hit, p.LastMovementTime, nullableText(features))
		if err != nil {
			return err
		}
	}

	// Journal rows are append-only; snapshots re-assert the retained
	// window without touching older entries.
	for i := range snap.RecentTrades {
		if err := insertTrade(ctx, tx, &snap.RecentTrades[i]); err != nil {
			return err
		}
	}

	return tx.Commit()
}

// LoadSnapshot returns the last saved snapshot, or (nil, nil) when nothing
// has been persisted yet.
func (s *SQLiteStore) LoadSnapshot(ctx context.Context) (*domain.PortfolioSnapshot, error) {
	var snap domain.PortfolioSnapshot
	row := s.db.QueryRowContext(ctx, `SELECT initial_capital, cash, total_trades, winning_trades, losing_trades, saved_at FROM portfolio WHERE id = 1`)
	err := row.Scan(&snap.InitialCapital, &snap.Cash, &snap.TotalTrades, &snap.WinningTrades, &snap.LosingTrades, &snap.SavedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `SELECT symbol, entry_price, amount, original_amount, entry_time, stop_loss, highest_price, trailing_activated, tp1_hit, tp2_hit, tp3_hit, last_movement_time, features FROM positions`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var p domain.Position
		var features sql.NullString
		if err := rows.Scan(&p.Symbol, &p.EntryPrice, &p.Amount, &p.OriginalAmount, &p.EntryTime, &p.StopLoss, &p.HighestPrice,
			&p.TrailingActivated, &p.TP1Hit, &p.TP2Hit, &p.TP3Hit, &p.LastMovementTime, &features); err != nil {
			return nil, err
		}
		if features.Valid && features.String != "" {
			if err := json.Unmarshal([]byte(features.String), &p.Features); err != nil {
				return nil, fmt.Errorf("failed to unmarshal features for %s: %w", p.Symbol, err)
			}
		}
		snap.Positions = append(snap.Positions, p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	trades, err := s.ListTrades(ctx, 100)
	if err != nil {
		return nil, err
	}
	// ListTrades is newest-first; the journal wants ascending time.
	for i := len(trades) - 1; i >= 0; i-- {
		snap.RecentTrades = append(snap.RecentTrades, *trades[i])
	}

	return &snap, nil
}

// TradeRepository implementation

func (s *SQLiteStore) SaveTrade(ctx context.Context, trade *domain.Trade) error {
	return insertTrade(ctx, s.db, trade)
}

func (s *SQLiteStore) ListTrades(ctx context.Context, limit int) ([]*domain.Trade, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, symbol, entry_price, exit_price, amount, pnl, pnl_percent, reason, entry_time, exit_time
		FROM trades ORDER BY exit_time DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var trades []*domain.Trade
	for rows.Next() {
		var t domain.Trade
		var reason string
		if err := rows.Scan(&t.ID, &t.Symbol, &t.EntryPrice, &t.ExitPrice, &t.Amount, &t.PnL, &t.PnLPercent, &reason, &t.EntryTime, &t.ExitTime); err != nil {
			return nil, err
		}
		t.Reason = domain.CloseReason(reason)
		trades = append(trades, &t)
	}
	return trades, rows.Err()
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func insertTrade(ctx context.Context, db execer, t *domain.Trade) error {
	_, err := db.ExecContext(ctx, `INSERT OR REPLACE INTO trades
		(id, symbol, entry_price, exit_price, amount, pnl, pnl_percent, reason, entry_time, exit_time)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.ID, t.Symbol, t.EntryPrice, t.ExitPrice, t.Amount, t.PnL, t.PnLPercent, string(t.Reason), t.EntryTime, t.ExitTime)
	return err
}

func nullableText(b []byte) any {
	if len(b) == 0 {
		return nil
	}
	return string(b)
}
