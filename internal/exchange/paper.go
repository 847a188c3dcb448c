package exchange

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/quantpool/multi-engine-bot/internal/errors"
	"github.com/quantpool/multi-engine-bot/pkg/types"
)

// PaperExchange is an in-memory exchange for dry runs. Market orders fill
// instantly at the seeded price; limit orders rest until cancelled. Prices
// and candles are supplied by the caller, either seeded by tests or mirrored
// from a real feed.
type PaperExchange struct {
	mu       sync.Mutex
	balance  types.Portfolio
	prices   map[string]float64
	candles  map[string][]types.OHLCV
	orders   map[string]*types.Order
	failNext error
}

func NewPaperExchange() *PaperExchange {
	return &PaperExchange{
		balance: types.Portfolio{
			TotalBalance:     10000,
			AvailableBalance: 10000,
			UpdatedAt:        time.Now(),
		},
		prices:  make(map[string]float64),
		candles: make(map[string][]types.OHLCV),
		orders:  make(map[string]*types.Order),
	}
}

func (e *PaperExchange) Name() string { return "paper" }

// SetBalance seeds the simulated account.
func (e *PaperExchange) SetBalance(total, available float64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.balance.TotalBalance = total
	e.balance.AvailableBalance = available
	e.balance.UpdatedAt = time.Now()
}

// SetPrice seeds the last traded price for symbol.
func (e *PaperExchange) SetPrice(symbol string, price float64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.prices[symbol] = price
}

// SetCandles seeds the candle history returned by GetOHLCV.
func (e *PaperExchange) SetCandles(symbol string, candles []types.OHLCV) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.candles[symbol] = candles
}

// FailNext makes the next order placement fail with err.
func (e *PaperExchange) FailNext(err error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.failNext = err
}

func (e *PaperExchange) GetBalance(ctx context.Context) (*types.Portfolio, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	snapshot := e.balance
	return &snapshot, nil
}

func (e *PaperExchange) GetTicker(ctx context.Context, symbol string) (*types.Ticker, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	price, ok := e.prices[symbol]
	if !ok {
		return nil, errors.NewExchangeError("paper", "get_ticker", fmt.Errorf("no price for %s", symbol))
	}
	return &types.Ticker{Symbol: symbol, Price: price, Timestamp: time.Now()}, nil
}

func (e *PaperExchange) GetOHLCV(ctx context.Context, symbol, interval string, limit int) ([]types.OHLCV, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	candles := e.candles[symbol]
	if limit > 0 && len(candles) > limit {
		candles = candles[len(candles)-limit:]
	}
	out := make([]types.OHLCV, len(candles))
	copy(out, candles)
	return out, nil
}

func (e *PaperExchange) CreateOrder(ctx context.Context, req OrderRequest) (*types.Order, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.failNext != nil {
		err := e.failNext
		e.failNext = nil
		return nil, errors.NewExchangeError("paper", "create_order", err)
	}
	if req.Amount <= 0 {
		return nil, errors.NewExchangeError("paper", "create_order", fmt.Errorf("amount must be positive"))
	}

	now := time.Now()
	order := &types.Order{
		ID:         uuid.NewString(),
		Symbol:     req.Symbol,
		Side:       req.Side,
		Kind:       req.Kind,
		Amount:     req.Amount,
		Price:      req.Price,
		Status:     types.OrderStatusOpen,
		StopLoss:   req.StopLoss,
		TakeProfit: req.TakeProfit,
		ReduceOnly: req.ReduceOnly,
		CreatedAt:  now,
		UpdatedAt:  now,
	}

	if req.Kind == types.OrderKindMarket {
		price, ok := e.prices[req.Symbol]
		if !ok {
			return nil, errors.NewExchangeError("paper", "create_order", fmt.Errorf("no price for %s", req.Symbol))
		}
		order.Status = types.OrderStatusFilled
		order.FilledAmount = req.Amount
		order.AvgFillPrice = price

		notional := req.Amount * price
		if req.ReduceOnly {
			e.balance.AvailableBalance += notional
		} else {
			e.balance.AvailableBalance -= notional
		}
	}

	e.orders[order.ID] = order
	return cloneOrder(order), nil
}

func (e *PaperExchange) GetOrderStatus(ctx context.Context, orderID, symbol string) (*types.Order, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	order, ok := e.orders[orderID]
	if !ok {
		return nil, errors.NewExchangeError("paper", "get_order_status", fmt.Errorf("order %s not found", orderID))
	}
	return cloneOrder(order), nil
}

func (e *PaperExchange) CancelOrder(ctx context.Context, orderID, symbol string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	order, ok := e.orders[orderID]
	if !ok {
		return errors.NewExchangeError("paper", "cancel_order", fmt.Errorf("order %s not found", orderID))
	}
	if order.Status.IsTerminal() {
		return errors.NewExchangeError("paper", "cancel_order", fmt.Errorf("order %s already terminal", orderID))
	}
	order.Status = types.OrderStatusCancelled
	order.UpdatedAt = time.Now()
	return nil
}

func (e *PaperExchange) Close() error { return nil }

func cloneOrder(o *types.Order) *types.Order {
	c := *o
	return &c
}
