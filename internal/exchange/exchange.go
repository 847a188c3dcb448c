package exchange

import (
	"context"
	"strings"

	"github.com/quantpool/multi-engine-bot/internal/config"
	"github.com/quantpool/multi-engine-bot/internal/errors"
	"github.com/quantpool/multi-engine-bot/pkg/types"
)

// OrderRequest is everything the orchestrator specifies when placing an order.
// IDs and fill state are assigned by the exchange.
type OrderRequest struct {
	Symbol     string
	Side       types.OrderSide
	Kind       types.OrderKind
	Amount     float64
	Price      float64 // limit orders only
	StopLoss   float64
	TakeProfit float64
	ReduceOnly bool
	LinkID     string // client-side idempotency key
}

// Exchange is the single abstraction the orchestrator trades through. All
// calls are synchronous request/response; order fills are discovered by
// polling GetOrderStatus.
type Exchange interface {
	Name() string

	GetBalance(ctx context.Context) (*types.Portfolio, error)
	GetTicker(ctx context.Context, symbol string) (*types.Ticker, error)
	GetOHLCV(ctx context.Context, symbol, interval string, limit int) ([]types.OHLCV, error)

	CreateOrder(ctx context.Context, req OrderRequest) (*types.Order, error)
	GetOrderStatus(ctx context.Context, orderID, symbol string) (*types.Order, error)
	CancelOrder(ctx context.Context, orderID, symbol string) error

	Close() error
}

// New builds the exchange named in the config.
func New(cfg config.ExchangeConfig) (Exchange, error) {
	switch strings.ToLower(cfg.Name) {
	case "bybit":
		if cfg.Bybit == nil {
			return nil, errors.NewConfigError("exchange", "bybit exchange requires bybit credentials")
		}
		return NewBybitExchange(cfg), nil
	case "paper":
		return NewPaperExchange(), nil
	}
	return nil, errors.NewConfigError("exchange", "unsupported exchange: "+cfg.Name)
}
