package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/vitos/crypto_paper_bot/internal/infrastructure/exchange"
	"github.com/vitos/crypto_paper_bot/internal/infrastructure/logger"
	"github.com/vitos/crypto_paper_bot/internal/infrastructure/notify"
	"github.com/vitos/crypto_paper_bot/internal/infrastructure/storage"
	"github.com/vitos/crypto_paper_bot/internal/usecase"
	"github.com/vitos/crypto_paper_bot/internal/web"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Exchange struct {
		RESTEndpoint string   `yaml:"rest_endpoint"`
		WSEndpoint   string   `yaml:"ws_endpoint"`
		Symbols      []string `yaml:"symbols"`
	} `yaml:"exchange"`
	Ledger  usecase.ExitConfig     `yaml:"ledger"`
	Scanner usecase.MomentumConfig `yaml:"scanner"`
	Storage struct {
		Path              string `yaml:"path"`
		SnapshotIntervalS int    `yaml:"snapshot_interval_seconds"`
	} `yaml:"storage"`
	Dispatcher struct {
		QueueSize int `yaml:"queue_size"`
	} `yaml:"dispatcher"`
	Logging struct {
		Level string `yaml:"level"`
	} `yaml:"logging"`
	Server struct {
		Port int `yaml:"port"`
	} `yaml:"server"`
}

func loadConfig(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	cfg := &Config{
		Ledger:  usecase.DefaultExitConfig(),
		Scanner: usecase.DefaultMomentumConfig(),
	}
	if err := yaml.NewDecoder(f).Decode(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func main() {
	// Secrets (Telegram credentials) come from the environment; .env is
	// optional.
	if err := godotenv.Load(); err != nil {
		fmt.Println("No .env file found, using system environment")
	}

	cfgPath := "config/config.yaml"
	if len(os.Args) > 1 {
		cfgPath = os.Args[1]
	}
	cfg, err := loadConfig(cfgPath)
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.NewLogger(cfg.Logging.Level)
	if err != nil {
		fmt.Printf("Failed to init logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	dbPath := cfg.Storage.Path
	if dbPath == "" {
		dbPath = "paper_bot.db"
	}
	store, err := storage.NewSQLiteStore(dbPath)
	if err != nil {
		log.Fatal("Failed to init sqlite", zap.Error(err))
	}
	defer store.Close()

	ledger := usecase.NewLedger(cfg.Ledger, log)

	// Restore the previous session if a usable snapshot exists; a missing
	// or unreadable one means a fresh ledger at initial capital.
	snap, err := store.LoadSnapshot(context.Background())
	if err != nil {
		log.Warn("Snapshot unreadable, starting fresh", zap.Error(err))
	} else if snap != nil {
		ledger.Restore(snap)
	}

	telegram := notify.NewTelegramNotifier(os.Getenv("TELEGRAM_BOT_TOKEN"), os.Getenv("TELEGRAM_CHAT_ID"))
	if telegram.Enabled() {
		log.Info("Telegram notifications enabled")
	}

	dispatcher := usecase.NewDispatcher(cfg.Dispatcher.QueueSize, telegram, store, store, ledger.Snapshot, log)
	ledger.SetSink(dispatcher)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	dispatcher.Start(ctx)

	feed := exchange.NewBinanceAdapter(cfg.Exchange.RESTEndpoint, cfg.Exchange.WSEndpoint, log)
	feed.OnPriceUpdate(func(symbol string, price float64) {
		ledger.ApplyPriceUpdate(map[string]float64{symbol: price})
	})

	// Watch configured symbols plus anything restored as an open position.
	symbols := append([]string{}, cfg.Exchange.Symbols...)
	symbols = append(symbols, ledger.HeldSymbols()...)
	if err := feed.Connect(symbols); err != nil {
		log.Fatal("Failed to connect price feed", zap.Error(err))
	}
	defer feed.Close()

	scanner := usecase.NewMomentumService(feed, ledger, cfg.Scanner, log)
	scanner.Start(ctx)

	// Periodic snapshot as a safety net behind the write-through saves.
	snapshotInterval := time.Duration(cfg.Storage.SnapshotIntervalS) * time.Second
	if snapshotInterval <= 0 {
		snapshotInterval = time.Minute
	}
	go func() {
		ticker := time.NewTicker(snapshotInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := store.SaveSnapshot(ctx, ledger.Snapshot()); err != nil {
					log.Error("Periodic snapshot failed", zap.Error(err))
				}
			}
		}
	}()

	server := web.NewServer(cfg.Server.Port, ledger, store, log)
	go func() {
		if err := server.Start(); err != nil {
			log.Error("Web server failed", zap.Error(err))
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop

	log.Info("Shutting down")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("Web server shutdown failed", zap.Error(err))
	}
	if err := store.SaveSnapshot(shutdownCtx, ledger.Snapshot()); err != nil {
		log.Error("Final snapshot failed", zap.Error(err))
	}
}
