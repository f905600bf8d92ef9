package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"

	"regime-seeker/internal/model"
)

// krakenIntervals maps interval names to Kraken's minutes.
var krakenIntervals = map[string]int{
	"1m": 1, "5m": 5, "15m": 15, "30m": 30,
	"1h": 60, "4h": 240, "1d": 1440, "1w": 10080, "1M": 43200,
}

// KrakenMinutes returns Kraken's interval in minutes; unknown names are 60.
func KrakenMinutes(interval string) int {
	if m, ok := krakenIntervals[interval]; ok {
		return m
	}
	return 60
}

// KrakenProvider fetches OHLC data from Kraken's public API. Symbols are
// quoted in USD.
type KrakenProvider struct {
	baseURL    string
	httpClient *http.Client
}

// NewKraken creates a Kraken provider for baseURL.
func NewKraken(baseURL string, client *http.Client) *KrakenProvider {
	return &KrakenProvider{baseURL: strings.TrimRight(baseURL, "/"), httpClient: client}
}

func (k *KrakenProvider) Name() string { return Kraken }

type krakenResponse struct {
	Error  []string                   `json:"error"`
	Result map[string]json.RawMessage `json:"result"`
}

// FetchCandles calls GET /0/public/OHLC?pair={SYMBOL}USD&interval={minutes}.
// Kraken returns up to 720 bars; only the last limit are kept.
func (k *KrakenProvider) FetchCandles(ctx context.Context, symbol, interval string, limit int) ([]model.Candle, error) {
	if limit <= 0 {
		limit = DefaultLimit
	}
	params := url.Values{}
	params.Set("pair", strings.ToUpper(symbol)+"USD")
	params.Set("interval", strconv.Itoa(KrakenMinutes(interval)))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, k.baseURL+"/0/public/OHLC?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("provider: kraken: build request: %w", err)
	}
	resp, err := k.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("provider: kraken: %w", err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusTooManyRequests:
		return nil, fmt.Errorf("%w: %s", ErrRateLimited, Kraken)
	default:
		return nil, &HTTPError{Exchange: Kraken, Status: resp.StatusCode}
	}

	var body krakenResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("provider: kraken: decode: %w", err)
	}
	if len(body.Error) > 0 {
		return nil, fmt.Errorf("provider: kraken API error: %s", strings.Join(body.Error, ", "))
	}

	// result holds one pair key plus "last"; take the first pair key.
	keys := make([]string, 0, len(body.Result))
	for key := range body.Result {
		if key != "last" {
			keys = append(keys, key)
		}
	}
	if len(keys) == 0 {
		return nil, ErrNoData
	}
	sort.Strings(keys)

	var rows [][]json.RawMessage
	if err := json.Unmarshal(body.Result[keys[0]], &rows); err != nil {
		return nil, fmt.Errorf("provider: kraken: decode %s: %w", keys[0], err)
	}
	if len(rows) == 0 {
		return nil, ErrNoData
	}
	if len(rows) > limit {
		rows = rows[len(rows)-limit:]
	}

	out := make([]model.Candle, 0, len(rows))
	for i, row := range rows {
		c, err := parseKrakenRow(row)
		if err != nil {
			return nil, fmt.Errorf("provider: kraken: row %d: %w", i, err)
		}
		out = append(out, c)
	}
	return out, nil
}

// parseKrakenRow reads [time, "o", "h", "l", "c", "vwap", "volume", count].
func parseKrakenRow(row []json.RawMessage) (model.Candle, error) {
	if len(row) < 7 {
		return model.Candle{}, fmt.Errorf("short OHLC row (%d fields)", len(row))
	}
	var ts int64
	if err := json.Unmarshal(row[0], &ts); err != nil {
		return model.Candle{}, fmt.Errorf("time: %w", err)
	}
	idx := [5]int{1, 2, 3, 4, 6}
	var f [5]float64
	for i, j := range idx {
		v, err := jsonFloat(row[j])
		if err != nil {
			return model.Candle{}, err
		}
		f[i] = v
	}
	return model.Candle{
		Time:   ts,
		Open:   f[0],
		High:   f[1],
		Low:    f[2],
		Close:  f[3],
		Volume: f[4],
	}, nil
}
