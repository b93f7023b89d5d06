package web

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/vitos/crypto_paper_bot/internal/domain"
	"github.com/vitos/crypto_paper_bot/internal/usecase"
	"go.uber.org/zap"
)

// Server exposes the read-only JSON API the dashboard consumes.
type Server struct {
	router    *http.ServeMux
	server    *http.Server
	ledger    *usecase.Ledger
	tradeRepo domain.TradeRepository
	logger    *zap.Logger
	startedAt time.Time
}

func NewServer(port int, ledger *usecase.Ledger, tradeRepo domain.TradeRepository, logger *zap.Logger) *Server {
	s := &Server{
		router:    http.NewServeMux(),
		ledger:    ledger,
		tradeRepo: tradeRepo,
		logger:    logger,
		startedAt: time.Now(),
	}
	s.routes()
	s.server = &http.Server{
		Addr:    fmt.Sprintf(":%d", port),
		Handler: s.router,
	}
	return s
}

func (s *Server) routes() {
	s.router.HandleFunc("GET /status", s.handleStatus)
	s.router.HandleFunc("GET /positions", s.handlePositions)
	s.router.HandleFunc("GET /trades", s.handleTrades)
	s.router.HandleFunc("GET /stats", s.handleStats)
}

func (s *Server) Start() error {
	s.logger.Info("starting web server", zap.String("addr", s.server.Addr))
	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}
