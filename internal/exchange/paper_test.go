package exchange

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quantpool/multi-engine-bot/internal/config"
	"github.com/quantpool/multi-engine-bot/internal/errors"
	"github.com/quantpool/multi-engine-bot/pkg/types"
)

func TestFactory_SelectsExchange(t *testing.T) {
	ex, err := New(config.ExchangeConfig{Name: "paper"})
	require.NoError(t, err)
	assert.Equal(t, "paper", ex.Name())

	_, err = New(config.ExchangeConfig{Name: "bybit"})
	assert.Error(t, err, "bybit without credentials")

	ex, err = New(config.ExchangeConfig{
		Name:     "bybit",
		Category: "linear",
		Bybit:    &config.BybitConfig{APIKey: "k", APISecret: "s", Demo: true},
	})
	require.NoError(t, err)
	assert.Equal(t, "bybit-demo", ex.Name())

	_, err = New(config.ExchangeConfig{Name: "kraken"})
	assert.Error(t, err)
}

func TestPaper_MarketOrderFillsAtSeededPrice(t *testing.T) {
	ex := NewPaperExchange()
	ex.SetPrice("BTCUSDT", 50000)
	ctx := context.Background()

	order, err := ex.CreateOrder(ctx, OrderRequest{
		Symbol: "BTCUSDT",
		Side:   types.OrderSideBuy,
		Kind:   types.OrderKindMarket,
		Amount: 0.1,
	})
	require.NoError(t, err)
	assert.Equal(t, types.OrderStatusFilled, order.Status)
	assert.InDelta(t, 0.1, order.FilledAmount, 1e-9)
	assert.InDelta(t, 50000.0, order.AvgFillPrice, 1e-9)

	// The fill reserves 5000 of the 10000 starting balance.
	pf, err := ex.GetBalance(ctx)
	require.NoError(t, err)
	assert.InDelta(t, 5000.0, pf.AvailableBalance, 1e-9)

	fetched, err := ex.GetOrderStatus(ctx, order.ID, "BTCUSDT")
	require.NoError(t, err)
	assert.Equal(t, types.OrderStatusFilled, fetched.Status)
}

func TestPaper_LimitOrderRestsUntilCancelled(t *testing.T) {
	ex := NewPaperExchange()
	ctx := context.Background()

	order, err := ex.CreateOrder(ctx, OrderRequest{
		Symbol: "ETHUSDT",
		Side:   types.OrderSideBuy,
		Kind:   types.OrderKindLimit,
		Amount: 1,
		Price:  2800,
	})
	require.NoError(t, err)
	assert.Equal(t, types.OrderStatusOpen, order.Status)

	require.NoError(t, ex.CancelOrder(ctx, order.ID, "ETHUSDT"))
	fetched, err := ex.GetOrderStatus(ctx, order.ID, "ETHUSDT")
	require.NoError(t, err)
	assert.Equal(t, types.OrderStatusCancelled, fetched.Status)

	assert.Error(t, ex.CancelOrder(ctx, order.ID, "ETHUSDT"), "terminal orders cannot be cancelled")
}

func TestPaper_FailNextInjectsExchangeError(t *testing.T) {
	ex := NewPaperExchange()
	ex.SetPrice("BTCUSDT", 50000)
	ex.FailNext(fmt.Errorf("simulated outage"))
	ctx := context.Background()

	_, err := ex.CreateOrder(ctx, OrderRequest{
		Symbol: "BTCUSDT", Side: types.OrderSideBuy,
		Kind: types.OrderKindMarket, Amount: 0.1,
	})
	require.Error(t, err)
	assert.Equal(t, errors.CategoryExchange, errors.CategoryOf(err))
	assert.True(t, errors.IsRetryable(err))

	// The failure is one-shot.
	_, err = ex.CreateOrder(ctx, OrderRequest{
		Symbol: "BTCUSDT", Side: types.OrderSideBuy,
		Kind: types.OrderKindMarket, Amount: 0.1,
	})
	assert.NoError(t, err)
}

func TestPaper_CandleWindowRespectsLimit(t *testing.T) {
	ex := NewPaperExchange()
	candles := make([]types.OHLCV, 10)
	for i := range candles {
		candles[i].Close = float64(100 + i)
	}
	ex.SetCandles("BTCUSDT", candles)

	got, err := ex.GetOHLCV(context.Background(), "BTCUSDT", "1h", 3)
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.InDelta(t, 109.0, got[2].Close, 1e-9, "newest candles kept")
}

func TestTranslateStatus(t *testing.T) {
	assert.Equal(t, types.OrderStatusOpen, translateStatus("New"))
	assert.Equal(t, types.OrderStatusPartiallyFilled, translateStatus("PartiallyFilled"))
	assert.Equal(t, types.OrderStatusFilled, translateStatus("Filled"))
	assert.Equal(t, types.OrderStatusCancelled, translateStatus("Cancelled"))
	assert.Equal(t, types.OrderStatusRejected, translateStatus("Rejected"))
	assert.Equal(t, types.OrderStatusExpired, translateStatus("Expired"))
	assert.Equal(t, types.OrderStatusPending, translateStatus("SomethingNew"))
}
