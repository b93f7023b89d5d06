package usecase

import (
	"time"

	"github.com/vitos/crypto_paper_bot/internal/domain"
)

type ActionKind string

const (
	ActionPartialClose ActionKind = "PARTIAL_CLOSE"
	ActionClose        ActionKind = "CLOSE"
)

// ExitAction is one close decision produced for a single tick. Actions for
// a symbol are executed in the order returned.
type ExitAction struct {
	Kind   ActionKind
	Amount float64
	Reason domain.CloseReason
}

// ExitConfig holds every tunable of the exit-rule machine. Threshold fields
// ending in Pct are gain percentages (3.0 means +3%); Fraction fields and
// the stop distances are plain fractions (0.25 means 25%).
type ExitConfig struct {
	InitialCapital float64 `yaml:"initial_capital"`

	SizingFraction     float64 `yaml:"sizing_fraction"`
	DefaultStopLossPct float64 `yaml:"default_stop_loss_pct"`

	TrailingStopPct     float64 `yaml:"trailing_stop_pct"`
	TrailingActivatePct float64 `yaml:"trailing_activate_pct"`

	TP1Pct      float64 `yaml:"tp1_pct"`
	TP1Fraction float64 `yaml:"tp1_fraction"`
	TP2Pct      float64 `yaml:"tp2_pct"`
	TP2Fraction float64 `yaml:"tp2_fraction"`
	TP3Pct      float64 `yaml:"tp3_pct"`

	MovementPct       float64 `yaml:"movement_pct"`
	StagnationMinutes int     `yaml:"stagnation_minutes"`
	StagnationMaxPct  float64 `yaml:"stagnation_max_pct"`

	JournalCap int `yaml:"journal_cap"`
}

// DefaultExitConfig returns the tuned production defaults.
func DefaultExitConfig() ExitConfig {
	return ExitConfig{
		InitialCapital:      10000,
		SizingFraction:      0.08,
		DefaultStopLossPct:  0.03,
		TrailingStopPct:     0.015,
		TrailingActivatePct: 2.0,
		TP1Pct:              3.0,
		TP1Fraction:         0.25,
		TP2Pct:              5.0,
		TP2Fraction:         0.35,
		TP3Pct:              8.0,
		MovementPct:         1.0,
		StagnationMinutes:   180,
		StagnationMaxPct:    0.8,
		JournalCap:          100,
	}
}

func (c ExitConfig) stagnationWindow() time.Duration {
	return time.Duration(c.StagnationMinutes) * time.Minute
}

// ExitEngine evaluates the per-tick exit rules for one position. It owns no
// state of its own: all latches live on the Position, so a restored
// snapshot resumes exactly where it left off.
type ExitEngine struct {
	cfg ExitConfig
}

func NewExitEngine(cfg ExitConfig) *ExitEngine {
	return &ExitEngine{cfg: cfg}
}

// Evaluate applies one price tick to a position, mutating its trailing and
// latch state, and returns the close actions the tick triggers. The checks
// run in a fixed order: stagnation timeout, movement refresh, high-water
// update, trailing activation and ratchet, TP1, TP2, TP3, then stop-loss.
// TP3 is a full exit and takes precedence over a stop breached by the same
// tick.
func (e *ExitEngine) Evaluate(pos *domain.Position, price float64, now time.Time) []ExitAction {
	pnlPct := (price - pos.EntryPrice) / pos.EntryPrice * 100

	if pos.LastMovementTime.IsZero() {
		pos.LastMovementTime = pos.EntryTime
	}

	// Stagnant position: nothing else is checked this tick.
	if now.Sub(pos.LastMovementTime) >= e.cfg.stagnationWindow() && abs(pnlPct) < e.cfg.StagnationMaxPct {
		return []ExitAction{{Kind: ActionClose, Amount: pos.Amount, Reason: domain.ReasonTimeout}}
	}

	if abs(pnlPct) > e.cfg.MovementPct {
		pos.LastMovementTime = now
	}

	if price > pos.HighestPrice {
		pos.HighestPrice = price
	}

	if !pos.TrailingActivated && pnlPct >= e.cfg.TrailingActivatePct {
		pos.TrailingActivated = true
	}

	if pos.TrailingActivated {
		// The stop only ever rises, even if price later declines.
		if candidate := pos.HighestPrice * (1 - e.cfg.TrailingStopPct); candidate > pos.StopLoss {
			pos.StopLoss = candidate
		}
	}

	var actions []ExitAction
	remaining := pos.Amount

	// Scaled take-profits, each sized against the original amount so an
	// earlier slice never shrinks a later one.
	if !pos.TP1Hit && pnlPct >= e.cfg.TP1Pct {
		slice := pos.OriginalAmount * e.cfg.TP1Fraction
		if slice > 0 && remaining >= slice {
			actions = append(actions, ExitAction{Kind: ActionPartialClose, Amount: slice, Reason: domain.ReasonTakeProfit1})
			remaining -= slice
			pos.TP1Hit = true
		}
	}

	if !pos.TP2Hit && pnlPct >= e.cfg.TP2Pct {
		slice := pos.OriginalAmount * e.cfg.TP2Fraction
		if slice > 0 && remaining >= slice {
			actions = append(actions, ExitAction{Kind: ActionPartialClose, Amount: slice, Reason: domain.ReasonTakeProfit2})
			remaining -= slice
			pos.TP2Hit = true
		}
	}

	if !pos.TP3Hit && pnlPct >= e.cfg.TP3Pct && remaining > 0 {
		pos.TP3Hit = true
		actions = append(actions, ExitAction{Kind: ActionClose, Amount: remaining, Reason: domain.ReasonTakeProfit3})
		return actions
	}

	if pos.StopLoss > 0 && price <= pos.StopLoss && remaining > 0 {
		reason := domain.ReasonStopLoss
		if pos.TrailingActivated {
			reason = domain.ReasonTrailingStop
		}
		actions = append(actions, ExitAction{Kind: ActionClose, Amount: remaining, Reason: reason})
	}

	return actions
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
