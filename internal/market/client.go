package market

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"math/rand"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

// Source supplies validated candle series to the engine. Fetching happens
// strictly outside the simulation loop, at session start or between bars.
type Source interface {
	Klines(ctx context.Context, symbol string, interval Interval, limit int) ([]Candle, error)
}

// Client fetches candles from the Binance public REST API
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient creates a new market data client
func NewClient(baseURL string) *Client {
	if baseURL == "" {
		baseURL = "https://api.binance.com"
	}
	return &Client{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
}

// Klines fetches up to limit candles for a symbol and interval
func (c *Client) Klines(ctx context.Context, symbol string, interval Interval, limit int) ([]Candle, error) {
	params := url.Values{}
	params.Set("symbol", symbol)
	params.Set("interval", string(interval))
	params.Set("limit", strconv.Itoa(limit))

	endpoint := fmt.Sprintf("%s/api/v3/klines?%s", c.baseURL, params.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("error building klines request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("error fetching klines: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("error reading response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("API error: %s", string(body))
	}

	var rawKlines [][]interface{}
	if err := json.Unmarshal(body, &rawKlines); err != nil {
		return nil, fmt.Errorf("error parsing klines: %w", err)
	}

	candles := make([]Candle, len(rawKlines))
	for i, raw := range rawKlines {
		if len(raw) < 7 {
			return nil, fmt.Errorf("malformed kline at index %d", i)
		}
		candles[i] = Candle{
			OpenTime:  int64(raw[0].(float64)),
			Open:      parseFloat(raw[1]),
			High:      parseFloat(raw[2]),
			Low:       parseFloat(raw[3]),
			Close:     parseFloat(raw[4]),
			Volume:    parseFloat(raw[5]),
			CloseTime: int64(raw[6].(float64)),
		}
	}

	return candles, nil
}

func parseFloat(v interface{}) float64 {
	switch val := v.(type) {
	case string:
		f, _ := strconv.ParseFloat(val, 64)
		return f
	case float64:
		return val
	default:
		return 0
	}
}

// MockSource generates deterministic synthetic candles for testing and dry
// runs when the exchange API is unavailable.
type MockSource struct {
	BasePrice float64
	Drift     float64 // per-bar relative drift, e.g. 0.001 for a rising market
	Amplitude float64 // relative oscillation amplitude
	Seed      int64
}

// NewMockSource creates a mock candle source around a base price
func NewMockSource(basePrice float64) *MockSource {
	return &MockSource{
		BasePrice: basePrice,
		Amplitude: 0.005,
		Seed:      42,
	}
}

// Klines generates a synthetic candle series ending at the current time
func (m *MockSource) Klines(_ context.Context, _ string, interval Interval, limit int) ([]Candle, error) {
	step := interval.Duration()
	if step == 0 {
		return nil, fmt.Errorf("%w: %q", ErrUnknownInterval, interval)
	}

	rng := rand.New(rand.NewSource(m.Seed))
	stepMs := step.Milliseconds()
	start := time.Now().Truncate(step).Add(-step * time.Duration(limit)).UnixMilli()

	candles := make([]Candle, limit)
	price := m.BasePrice
	for i := 0; i < limit; i++ {
		wave := math.Sin(float64(i)/8) * m.Amplitude * price
		noise := (rng.Float64() - 0.5) * m.Amplitude * price
		open := price
		close := price*(1+m.Drift) + wave + noise
		high := math.Max(open, close) * (1 + m.Amplitude/2)
		low := math.Min(open, close) * (1 - m.Amplitude/2)

		candles[i] = Candle{
			OpenTime:  start + int64(i)*stepMs,
			Open:      open,
			High:      high,
			Low:       low,
			Close:     close,
			Volume:    1000 + rng.Float64()*500,
			CloseTime: start + int64(i+1)*stepMs - 1,
		}
		price = close
	}

	return candles, nil
}
