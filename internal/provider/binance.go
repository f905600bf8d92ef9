package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"regime-seeker/internal/model"
)

// Binance fetches klines from a Binance-compatible REST API
// (binance.us or binance.com). Symbols are quoted in USDT.
type Binance struct {
	name       string
	baseURL    string
	httpClient *http.Client
}

// NewBinance creates a Binance provider for baseURL.
func NewBinance(name, baseURL string, client *http.Client) *Binance {
	return &Binance{name: name, baseURL: strings.TrimRight(baseURL, "/"), httpClient: client}
}

func (b *Binance) Name() string { return b.name }

// FetchCandles calls GET /api/v3/klines?symbol={SYMBOL}USDT&interval=&limit=.
func (b *Binance) FetchCandles(ctx context.Context, symbol, interval string, limit int) ([]model.Candle, error) {
	if limit <= 0 {
		limit = DefaultLimit
	}
	params := url.Values{}
	params.Set("symbol", strings.ToUpper(symbol)+"USDT")
	params.Set("interval", interval)
	params.Set("limit", strconv.Itoa(limit))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, b.baseURL+"/api/v3/klines?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("provider: %s: build request: %w", b.name, err)
	}
	resp, err := b.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("provider: %s: %w", b.name, err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusTooManyRequests:
		return nil, fmt.Errorf("%w: %s", ErrRateLimited, b.name)
	case http.StatusUnavailableForLegalReasons:
		return nil, fmt.Errorf("%w: %s", ErrRegionBlocked, b.name)
	default:
		return nil, &HTTPError{Exchange: b.name, Status: resp.StatusCode}
	}

	var rows [][]json.RawMessage
	if err := json.NewDecoder(resp.Body).Decode(&rows); err != nil {
		return nil, fmt.Errorf("provider: %s: decode: %w", b.name, err)
	}
	if len(rows) == 0 {
		return nil, ErrNoData
	}

	out := make([]model.Candle, 0, len(rows))
	for i, row := range rows {
		c, err := parseBinanceRow(row)
		if err != nil {
			return nil, fmt.Errorf("provider: %s: row %d: %w", b.name, i, err)
		}
		out = append(out, c)
	}
	return out, nil
}

// parseBinanceRow reads [openTimeMs, "o", "h", "l", "c", "v", ...].
func parseBinanceRow(row []json.RawMessage) (model.Candle, error) {
	if len(row) < 6 {
		return model.Candle{}, fmt.Errorf("short kline (%d fields)", len(row))
	}
	var openMs int64
	if err := json.Unmarshal(row[0], &openMs); err != nil {
		return model.Candle{}, fmt.Errorf("open time: %w", err)
	}
	var f [5]float64
	for i := 0; i < 5; i++ {
		v, err := jsonFloat(row[i+1])
		if err != nil {
			return model.Candle{}, err
		}
		f[i] = v
	}
	return model.Candle{
		Time:   openMs / 1000,
		Open:   f[0],
		High:   f[1],
		Low:    f[2],
		Close:  f[3],
		Volume: f[4],
	}, nil
}

// jsonFloat accepts a quoted or bare JSON number.
func jsonFloat(raw json.RawMessage) (float64, error) {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return strconv.ParseFloat(s, 64)
	}
	var f float64
	if err := json.Unmarshal(raw, &f); err != nil {
		return 0, fmt.Errorf("not a number: %s", raw)
	}
	return f, nil
}
