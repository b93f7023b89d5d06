package exchange

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/vitos/crypto_paper_bot/internal/domain"
	"go.uber.org/zap"
)

const (
	BinanceBaseURL = "https://api.binance.com"
	BinanceWSURL   = "wss://stream.binance.com:9443/ws"
)

// BinanceAdapter implements domain.PriceFeed against the public Binance
// spot API: REST for ticker snapshots and a websocket mini-ticker stream
// for push updates. Paper trading never places orders, so no endpoint here
// is authenticated.
type BinanceAdapter struct {
	baseURL string
	wsURL   string
	client  *http.Client
	logger  *zap.Logger

	mu         sync.Mutex
	wsConn     *websocket.Conn
	wsDone     chan struct{}
	subscribed map[string]bool
	callbacks  []func(symbol string, price float64)
	reqID      int
}

func NewBinanceAdapter(baseURL, wsURL string, logger *zap.Logger) *BinanceAdapter {
	if baseURL == "" {
		baseURL = BinanceBaseURL
	}
	if wsURL == "" {
		wsURL = BinanceWSURL
	}
	return &BinanceAdapter{
		baseURL:    baseURL,
		wsURL:      wsURL,
		client:     &http.Client{Timeout: 10 * time.Second},
		logger:     logger,
		subscribed: make(map[string]bool),
	}
}

// --- REST ---

func (b *BinanceAdapter) get(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, b.baseURL+path, nil)
	if err != nil {
		return err
	}

	resp, err := b.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if resp.StatusCode >= 400 {
		return fmt.Errorf("binance API error %d: %s", resp.StatusCode, string(body))
	}
	return json.Unmarshal(body, out)
}

func (b *BinanceAdapter) GetPrice(ctx context.Context, symbol string) (float64, error) {
	var payload struct {
		Symbol string `json:"symbol"`
		Price  string `json:"price"`
	}
	if err := b.get(ctx, "/api/v3/ticker/price?symbol="+symbol, &payload); err != nil {
		return 0, err
	}
	return strconv.ParseFloat(payload.Price, 64)
}

func (b *BinanceAdapter) GetTickers(ctx context.Context) ([]domain.Ticker, error) {
	var payload []struct {
		Symbol             string `json:"symbol"`
		LastPrice          string `json:"lastPrice"`
		PriceChangePercent string `json:"priceChangePercent"`
		QuoteVolume        string `json:"quoteVolume"`
		HighPrice          string `json:"highPrice"`
		LowPrice           string `json:"lowPrice"`
	}
	if err := b.get(ctx, "/api/v3/ticker/24hr", &payload); err != nil {
		return nil, err
	}

	tickers := make([]domain.Ticker, 0, len(payload))
	for _, raw := range payload {
		last, _ := strconv.ParseFloat(raw.LastPrice, 64)
		change, _ := strconv.ParseFloat(raw.PriceChangePercent, 64)
		volume, _ := strconv.ParseFloat(raw.QuoteVolume, 64)
		high, _ := strconv.ParseFloat(raw.HighPrice, 64)
		low, _ := strconv.ParseFloat(raw.LowPrice, 64)
		tickers = append(tickers, domain.Ticker{
			Symbol:       raw.Symbol,
			LastPrice:    last,
			Price24hPcnt: change,
			Volume24h:    volume,
			High24h:      high,
			Low24h:       low,
		})
	}
	return tickers, nil
}

// --- WebSocket ---

func (b *BinanceAdapter) OnPriceUpdate(callback func(symbol string, price float64)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.callbacks = append(b.callbacks, callback)
}

// Connect dials the stream endpoint and subscribes the given symbols.
func (b *BinanceAdapter) Connect(symbols []string) error {
	conn, _, err := websocket.DefaultDialer.Dial(b.wsURL, nil)
	if err != nil {
		return fmt.Errorf("binance ws dial: %w", err)
	}

	b.mu.Lock()
	b.wsConn = conn
	b.wsDone = make(chan struct{})
	b.mu.Unlock()

	go b.readLoop()

	return b.Subscribe(symbols)
}

// Subscribe adds symbols to the mini-ticker stream. Already-subscribed
// symbols are skipped.
func (b *BinanceAdapter) Subscribe(symbols []string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.wsConn == nil {
		// Not connected yet; remember them for Connect.
		for _, s := range symbols {
			b.subscribed[s] = false
		}
		return nil
	}

	var params []string
	for _, s := range symbols {
		if b.subscribed[s] {
			continue
		}
		params = append(params, strings.ToLower(s)+"@miniTicker")
		b.subscribed[s] = true
	}
	if len(params) == 0 {
		return nil
	}

	b.reqID++
	msg := map[string]any{
		"method": "SUBSCRIBE",
		"params": params,
		"id":     b.reqID,
	}
	return b.wsConn.WriteJSON(msg)
}

func (b *BinanceAdapter) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.wsDone != nil {
		close(b.wsDone)
		b.wsDone = nil
	}
	if b.wsConn != nil {
		err := b.wsConn.Close()
		b.wsConn = nil
		return err
	}
	return nil
}

type miniTickerEvent struct {
	EventType string `json:"e"`
	Symbol    string `json:"s"`
	Close     string `json:"c"`
}

func (b *BinanceAdapter) readLoop() {
	b.mu.Lock()
	conn := b.wsConn
	done := b.wsDone
	b.mu.Unlock()
	if conn == nil {
		return
	}

	for {
		select {
		case <-done:
			return
		default:
		}

		_, raw, err := conn.ReadMessage()
		if err != nil {
			select {
			case <-done:
				return
			default:
			}
			b.logger.Warn("binance ws read failed, reconnecting", zap.Error(err))
			b.reconnect()
			return
		}

		var ev miniTickerEvent
		if err := json.Unmarshal(raw, &ev); err != nil || ev.EventType != "24hrMiniTicker" {
			continue // subscription acks and unrelated frames
		}
		price, err := strconv.ParseFloat(ev.Close, 64)
		if err != nil || price <= 0 {
			continue
		}

		b.mu.Lock()
		callbacks := make([]func(string, float64), len(b.callbacks))
		copy(callbacks, b.callbacks)
		b.mu.Unlock()

		for _, cb := range callbacks {
			cb(ev.Symbol, price)
		}
	}
}

func (b *BinanceAdapter) reconnect() {
	b.mu.Lock()
	if b.wsConn != nil {
		b.wsConn.Close()
		b.wsConn = nil
	}
	var symbols []string
	for s := range b.subscribed {
		symbols = append(symbols, s)
		b.subscribed[s] = false
	}
	b.mu.Unlock()

	for attempt := 1; ; attempt++ {
		backoff := time.Duration(attempt) * time.Second
		if backoff > 30*time.Second {
			backoff = 30 * time.Second
		}
		time.Sleep(backoff)

		if err := b.Connect(symbols); err != nil {
			b.logger.Warn("binance ws reconnect failed",
				zap.Int("attempt", attempt),
				zap.Error(err),
			)
			continue
		}
		b.logger.Info("binance ws reconnected", zap.Int("attempt", attempt))
		return
	}
}
