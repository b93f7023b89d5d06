package domain

import "time"

// BuySignal is a buy intent produced by a signal source. SizingHint is the
// fraction of cash to commit (0 means use the ledger default). Features is
// free-form metadata for audit and notification only.
type BuySignal struct {
	Symbol      string
	Price       float64
	StopLossPct float64
	SizingHint  float64
	Features    map[string]any
	Time        time.Time
}

// Ticker is a 24h market summary for one symbol, as returned by the
// exchange ticker endpoint.
type Ticker struct {
	Symbol       string  `json:"symbol"`
	LastPrice    float64 `json:"last_price"`
	Price24hPcnt float64 `json:"price_24h_pcnt"`
	Volume24h    float64 `json:"volume_24h"` // quote turnover (USD)
	High24h      float64 `json:"high_24h"`
	Low24h       float64 `json:"low_24h"`
}
