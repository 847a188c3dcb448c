package exchange

import (
	"context"
	"time"

	"github.com/quantpool/multi-engine-bot/internal/config"
	"github.com/quantpool/multi-engine-bot/internal/errors"
	"github.com/quantpool/multi-engine-bot/internal/exchange/bybit"
	"github.com/quantpool/multi-engine-bot/pkg/types"
)

// BybitExchange adapts the Bybit V5 client to the Exchange interface.
type BybitExchange struct {
	client *bybit.Client
}

func NewBybitExchange(cfg config.ExchangeConfig) *BybitExchange {
	return &BybitExchange{
		client: bybit.NewClient(bybit.Config{
			APIKey:    cfg.Bybit.APIKey,
			APISecret: cfg.Bybit.APISecret,
			Category:  cfg.Category,
			Testnet:   cfg.Bybit.Testnet,
			Demo:      cfg.Bybit.Demo,
		}),
	}
}

func (e *BybitExchange) Name() string { return "bybit-" + e.client.Environment() }

func (e *BybitExchange) GetBalance(ctx context.Context) (*types.Portfolio, error) {
	wallet, err := e.client.GetWalletBalance(ctx)
	if err != nil {
		return nil, errors.NewExchangeError("bybit", "get_balance", err)
	}
	return &types.Portfolio{
		TotalBalance:     wallet.TotalEquity,
		AvailableBalance: wallet.TotalAvailable,
		UpdatedAt:        time.Now(),
	}, nil
}

func (e *BybitExchange) GetTicker(ctx context.Context, symbol string) (*types.Ticker, error) {
	ticker, err := e.client.GetTicker(ctx, symbol)
	if err != nil {
		return nil, errors.NewExchangeError("bybit", "get_ticker", err)
	}
	return ticker, nil
}

func (e *BybitExchange) GetOHLCV(ctx context.Context, symbol, interval string, limit int) ([]types.OHLCV, error) {
	candles, err := e.client.GetKlines(ctx, symbol, interval, limit)
	if err != nil {
		return nil, errors.NewExchangeError("bybit", "get_ohlcv", err)
	}
	return candles, nil
}

func (e *BybitExchange) CreateOrder(ctx context.Context, req OrderRequest) (*types.Order, error) {
	params := bybit.PlaceOrderParams{
		Symbol:      req.Symbol,
		Side:        string(req.Side),
		OrderType:   string(req.Kind),
		Qty:         bybit.FormatQty(req.Amount),
		OrderLinkID: req.LinkID,
		ReduceOnly:  req.ReduceOnly,
	}
	if req.Kind == types.OrderKindLimit {
		params.Price = bybit.FormatQty(req.Price)
	}
	if req.StopLoss > 0 {
		params.StopLoss = bybit.FormatQty(req.StopLoss)
	}
	if req.TakeProfit > 0 {
		params.TakeProfit = bybit.FormatQty(req.TakeProfit)
	}

	orderID, err := e.client.PlaceOrder(ctx, params)
	if err != nil {
		return nil, errors.NewExchangeError("bybit", "create_order", err)
	}

	now := time.Now()
	return &types.Order{
		ID:         orderID,
		Symbol:     req.Symbol,
		Side:       req.Side,
		Kind:       req.Kind,
		Amount:     req.Amount,
		Price:      req.Price,
		Status:     types.OrderStatusPending,
		StopLoss:   req.StopLoss,
		TakeProfit: req.TakeProfit,
		ReduceOnly: req.ReduceOnly,
		CreatedAt:  now,
		UpdatedAt:  now,
	}, nil
}

func (e *BybitExchange) GetOrderStatus(ctx context.Context, orderID, symbol string) (*types.Order, error) {
	order, err := e.client.GetOrder(ctx, symbol, orderID)
	if err != nil {
		return nil, errors.NewExchangeError("bybit", "get_order_status", err)
	}

	return &types.Order{
		ID:           order.OrderID,
		Symbol:       order.Symbol,
		Side:         types.OrderSide(order.Side),
		Kind:         types.OrderKind(order.OrderType),
		Amount:       order.Quantity(),
		Status:       translateStatus(order.OrderStatus),
		FilledAmount: order.FilledQty(),
		AvgFillPrice: order.FillPrice(),
		ReduceOnly:   order.ReduceOnly,
		UpdatedAt:    time.Now(),
	}, nil
}

func (e *BybitExchange) CancelOrder(ctx context.Context, orderID, symbol string) error {
	if err := e.client.CancelOrder(ctx, symbol, orderID); err != nil {
		return errors.NewExchangeError("bybit", "cancel_order", err)
	}
	return nil
}

func (e *BybitExchange) Close() error { return nil }

// translateStatus maps Bybit V5 order statuses onto the internal lifecycle.
func translateStatus(status string) types.OrderStatus {
	switch status {
	case "New", "Untriggered":
		return types.OrderStatusOpen
	case "PartiallyFilled":
		return types.OrderStatusPartiallyFilled
	case "Filled":
		return types.OrderStatusFilled
	case "Cancelled", "PartiallyFilledCanceled":
		return types.OrderStatusCancelled
	case "Rejected":
		return types.OrderStatusRejected
	case "Expired", "Deactivated":
		return types.OrderStatusExpired
	}
	return types.OrderStatusPending
}
