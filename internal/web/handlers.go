package web

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"go.uber.org/zap"
)

func (s *Server) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logger.Error("failed to encode response", zap.Error(err))
	}
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	stats := s.ledger.Stats()
	s.writeJSON(w, http.StatusOK, map[string]any{
		"status":     "running",
		"uptime_sec": int(time.Since(s.startedAt).Seconds()),
		"portfolio":  stats,
		"checked_at": time.Now().UTC(),
	})
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.ledger.Stats())
}

func (s *Server) handlePositions(w http.ResponseWriter, r *http.Request) {
	positions := s.ledger.OpenPositions()
	out := make([]map[string]any, 0, len(positions))
	for _, p := range positions {
		out = append(out, map[string]any{
			"symbol":             p.Symbol,
			"entry_price":        p.EntryPrice,
			"amount":             p.Amount,
			"original_amount":    p.OriginalAmount,
			"entry_time":         p.EntryTime,
			"stop_loss":          p.StopLoss,
			"highest_price":      p.HighestPrice,
			"trailing_activated": p.TrailingActivated,
			"tp1_hit":            p.TP1Hit,
			"tp2_hit":            p.TP2Hit,
			"tp3_hit":            p.TP3Hit,
			"features":           p.Features,
		})
	}
	s.writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleTrades(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 {
			limit = n
		}
	}

	// Prefer the durable journal; fall back to the in-memory window if the
	// store is unavailable.
	if s.tradeRepo != nil {
		trades, err := s.tradeRepo.ListTrades(r.Context(), limit)
		if err == nil {
			s.writeJSON(w, http.StatusOK, trades)
			return
		}
		s.logger.Warn("trade repo unavailable, serving in-memory journal", zap.Error(err))
	}
	s.writeJSON(w, http.StatusOK, s.ledger.RecentTrades(limit))
}
