package bybit

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/quantpool/multi-engine-bot/pkg/types"
)

// Kline intervals accepted by the V5 API.
var intervalCodes = map[string]string{
	"1m": "1", "3m": "3", "5m": "5", "15m": "15", "30m": "30",
	"1h": "60", "2h": "120", "4h": "240", "6h": "360", "12h": "720",
	"1d": "D", "1w": "W",
}

// IntervalCode translates a human interval like "1h" to the API code.
// Already-encoded values pass through unchanged.
func IntervalCode(interval string) string {
	if code, ok := intervalCodes[interval]; ok {
		return code
	}
	return interval
}

// GetKlines fetches up to limit candles for symbol, oldest first.
func (c *Client) GetKlines(ctx context.Context, symbol, interval string, limit int) ([]types.OHLCV, error) {
	if limit <= 0 {
		limit = 200
	}
	if limit > 1000 {
		limit = 1000
	}
	params := map[string]interface{}{
		"category": c.category,
		"symbol":   symbol,
		"interval": IntervalCode(interval),
		"limit":    limit,
	}

	var result struct {
		List [][]string `json:"list"`
	}
	err := c.withRetry(ctx, func() error {
		resp, err := c.httpClient.NewUtaBybitServiceWithParams(params).GetMarketKline(ctx)
		if err != nil {
			return fmt.Errorf("get klines: %w", err)
		}
		return decodeResult("get klines", resp, &result)
	})
	if err != nil {
		return nil, err
	}

	// The API returns newest first; callers expect chronological order.
	candles := make([]types.OHLCV, 0, len(result.List))
	for i := len(result.List) - 1; i >= 0; i-- {
		row := result.List[i]
		if len(row) < 6 {
			continue
		}
		ms, err := strconv.ParseInt(row[0], 10, 64)
		if err != nil {
			continue
		}
		candles = append(candles, types.OHLCV{
			Timestamp: time.UnixMilli(ms),
			Open:      parseFloat(row[1]),
			High:      parseFloat(row[2]),
			Low:       parseFloat(row[3]),
			Close:     parseFloat(row[4]),
			Volume:    parseFloat(row[5]),
		})
	}
	return candles, nil
}

// GetTicker fetches the latest traded price for symbol.
func (c *Client) GetTicker(ctx context.Context, symbol string) (*types.Ticker, error) {
	params := map[string]interface{}{
		"category": c.category,
		"symbol":   symbol,
	}

	var result struct {
		List []struct {
			Symbol    string `json:"symbol"`
			LastPrice string `json:"lastPrice"`
			Volume24h string `json:"volume24h"`
		} `json:"list"`
	}
	err := c.withRetry(ctx, func() error {
		resp, err := c.httpClient.NewUtaBybitServiceWithParams(params).GetMarketTickers(ctx)
		if err != nil {
			return fmt.Errorf("get ticker: %w", err)
		}
		return decodeResult("get ticker", resp, &result)
	})
	if err != nil {
		return nil, err
	}
	if len(result.List) == 0 {
		return nil, fmt.Errorf("get ticker: no data for %s", symbol)
	}

	t := result.List[0]
	return &types.Ticker{
		Symbol:    t.Symbol,
		Price:     parseFloat(t.LastPrice),
		Volume:    parseFloat(t.Volume24h),
		Timestamp: time.Now(),
	}, nil
}
