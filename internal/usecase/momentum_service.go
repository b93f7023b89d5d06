package usecase

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/vitos/crypto_paper_bot/internal/domain"
	"go.uber.org/zap"
)

// MomentumConfig tunes the gainer scan. Change bounds are 24h percent
// moves; Cooldown keeps a symbol out of rotation after a trade.
type MomentumConfig struct {
	IntervalSeconds  int     `yaml:"interval_seconds"`
	MinVolumeUSD     float64 `yaml:"min_volume_usd"`
	MinChangePct     float64 `yaml:"min_change_pct"`
	MaxChangePct     float64 `yaml:"max_change_pct"`
	MinScore         float64 `yaml:"min_score"`
	CooldownMinutes  int     `yaml:"cooldown_minutes"`
	MaxOpenPositions int     `yaml:"max_open_positions"`
	StopLossPct      float64 `yaml:"stop_loss_pct"`
	MaxCandidates    int     `yaml:"max_candidates"`
}

func DefaultMomentumConfig() MomentumConfig {
	return MomentumConfig{
		IntervalSeconds:  60,
		MinVolumeUSD:     300000,
		MinChangePct:     4.0,
		MaxChangePct:     25.0,
		MinScore:         72,
		CooldownMinutes:  360,
		MaxOpenPositions: 5,
		StopLossPct:      0.03,
		MaxCandidates:    30,
	}
}

// MomentumService scans 24h tickers for strong gainers and feeds buy
// intents into the ledger. Scoring is a coarse volume/change blend; the
// interesting part is the plumbing, not the formula.
type MomentumService struct {
	feed   domain.PriceFeed
	ledger *Ledger
	cfg    MomentumConfig
	logger *zap.Logger

	mu        sync.Mutex
	lastTrade map[string]time.Time
	now       func() time.Time
}

func NewMomentumService(feed domain.PriceFeed, ledger *Ledger, cfg MomentumConfig, logger *zap.Logger) *MomentumService {
	return &MomentumService{
		feed:      feed,
		ledger:    ledger,
		cfg:       cfg,
		logger:    logger,
		lastTrade: make(map[string]time.Time),
		now:       time.Now,
	}
}

// SetClock overrides the time source for tests.
func (s *MomentumService) SetClock(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
}

// Start runs the scan loop until ctx is cancelled.
func (s *MomentumService) Start(ctx context.Context) {
	interval := time.Duration(s.cfg.IntervalSeconds) * time.Second
	if interval <= 0 {
		interval = time.Minute
	}
	s.logger.Info("starting momentum scanner", zap.Duration("interval", interval))

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		s.Scan(ctx)
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.Scan(ctx)
			}
		}
	}()
}

// Scan fetches tickers, evaluates them and opens positions for the
// resulting signals.
func (s *MomentumService) Scan(ctx context.Context) {
	tickers, err := s.feed.GetTickers(ctx)
	if err != nil {
		s.logger.Error("failed to fetch tickers", zap.Error(err))
		return
	}

	for _, sig := range s.Evaluate(tickers) {
		if s.cfg.MaxOpenPositions > 0 && len(s.ledger.HeldSymbols()) >= s.cfg.MaxOpenPositions {
			return
		}

		pos, err := s.ledger.Open(sig)
		if err != nil {
			if !errors.Is(err, domain.ErrDuplicatePosition) && !errors.Is(err, domain.ErrInsufficientFunds) {
				s.logger.Warn("buy intent rejected", zap.String("symbol", sig.Symbol), zap.Error(err))
			}
			continue
		}

		s.mu.Lock()
		s.lastTrade[sig.Symbol] = s.now()
		s.mu.Unlock()

		if err := s.feed.Subscribe([]string{sig.Symbol}); err != nil {
			s.logger.Warn("failed to subscribe feed", zap.String("symbol", sig.Symbol), zap.Error(err))
		}

		s.logger.Info("momentum entry",
			zap.String("symbol", pos.Symbol),
			zap.Float64("price", pos.EntryPrice),
			zap.Any("features", sig.Features),
		)
	}
}

// Evaluate filters and scores a ticker batch into buy signals, strongest
// first. Symbols in cooldown or already held are excluded.
func (s *MomentumService) Evaluate(tickers []domain.Ticker) []domain.BuySignal {
	s.mu.Lock()
	now := s.now()
	cooldown := time.Duration(s.cfg.CooldownMinutes) * time.Minute
	var signals []domain.BuySignal
	for _, t := range tickers {
		if t.LastPrice <= 0 || t.Volume24h < s.cfg.MinVolumeUSD {
			continue
		}
		if t.Price24hPcnt < s.cfg.MinChangePct || t.Price24hPcnt > s.cfg.MaxChangePct {
			continue
		}
		if last, ok := s.lastTrade[t.Symbol]; ok && now.Sub(last) < cooldown {
			continue
		}

		score := scoreTicker(t, s.cfg)
		if score < s.cfg.MinScore {
			continue
		}

		signals = append(signals, domain.BuySignal{
			Symbol:      t.Symbol,
			Price:       t.LastPrice,
			StopLossPct: s.cfg.StopLossPct,
			Features: map[string]any{
				"signal_type":    "top_gainer",
				"score":          score,
				"change_percent": t.Price24hPcnt,
				"volume_usd":     t.Volume24h,
			},
			Time: now,
		})
	}
	s.mu.Unlock()

	sort.Slice(signals, func(i, j int) bool {
		return signals[i].Features["score"].(float64) > signals[j].Features["score"].(float64)
	})
	if s.cfg.MaxCandidates > 0 && len(signals) > s.cfg.MaxCandidates {
		signals = signals[:s.cfg.MaxCandidates]
	}

	var out []domain.BuySignal
	for _, sig := range signals {
		if !s.ledger.HasPosition(sig.Symbol) {
			out = append(out, sig)
		}
	}
	return out
}

// scoreTicker maps a ticker onto a 0-100 confidence score: half from the
// strength of the move inside the accepted band, half from turnover above
// the volume floor.
func scoreTicker(t domain.Ticker, cfg MomentumConfig) float64 {
	band := cfg.MaxChangePct - cfg.MinChangePct
	if band <= 0 {
		band = 1
	}
	changeScore := (t.Price24hPcnt - cfg.MinChangePct) / band * 50
	if changeScore > 50 {
		changeScore = 50
	}

	volumeScore := 0.0
	if cfg.MinVolumeUSD > 0 {
		ratio := t.Volume24h / cfg.MinVolumeUSD
		switch {
		case ratio >= 10:
			volumeScore = 50
		case ratio >= 1:
			volumeScore = ratio / 10 * 50
		}
	}

	return 50 + changeScore*0.5 + volumeScore*0.5
}
