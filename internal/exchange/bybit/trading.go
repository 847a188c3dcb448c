package bybit

import (
	"context"
	"fmt"
	"strconv"
)

// PlaceOrderParams holds the V5 order placement parameters the bot uses.
type PlaceOrderParams struct {
	Symbol      string
	Side        string // "Buy" or "Sell"
	OrderType   string // "Market" or "Limit"
	Qty         string
	Price       string // limit orders only
	TimeInForce string
	OrderLinkID string
	TakeProfit  string
	StopLoss    string
	ReduceOnly  bool
}

// Order is an order record as returned by the open-orders and order-history
// endpoints. Numeric fields stay string-encoded as on the wire.
type Order struct {
	OrderID     string `json:"orderId"`
	OrderLinkID string `json:"orderLinkId"`
	Symbol      string `json:"symbol"`
	Side        string `json:"side"`
	OrderType   string `json:"orderType"`
	Qty         string `json:"qty"`
	Price       string `json:"price"`
	OrderStatus string `json:"orderStatus"`
	CumExecQty  string `json:"cumExecQty"`
	AvgPrice    string `json:"avgPrice"`
	ReduceOnly  bool   `json:"reduceOnly"`
}

// Quantity returns the requested order quantity as a float.
func (o *Order) Quantity() float64 { return parseFloat(o.Qty) }

// FilledQty returns the executed quantity as a float.
func (o *Order) FilledQty() float64 { return parseFloat(o.CumExecQty) }

// FillPrice returns the average execution price as a float.
func (o *Order) FillPrice() float64 { return parseFloat(o.AvgPrice) }

// PlaceOrder submits an order and returns the exchange-assigned order ID.
func (c *Client) PlaceOrder(ctx context.Context, params PlaceOrderParams) (string, error) {
	if params.Symbol == "" {
		return "", fmt.Errorf("place order: symbol is required")
	}
	if params.Qty == "" {
		return "", fmt.Errorf("place order: qty is required")
	}
	if params.OrderType == "Limit" && params.Price == "" {
		return "", fmt.Errorf("place order: price is required for limit orders")
	}
	if params.OrderType == "Limit" && params.TimeInForce == "" {
		params.TimeInForce = "GTC"
	}

	apiParams := map[string]interface{}{
		"category":  c.category,
		"symbol":    params.Symbol,
		"side":      params.Side,
		"orderType": params.OrderType,
		"qty":       params.Qty,
	}
	if params.Price != "" {
		apiParams["price"] = params.Price
	}
	if params.TimeInForce != "" {
		apiParams["timeInForce"] = params.TimeInForce
	}
	if params.OrderLinkID != "" {
		apiParams["orderLinkId"] = params.OrderLinkID
	}
	if params.TakeProfit != "" {
		apiParams["takeProfit"] = params.TakeProfit
	}
	if params.StopLoss != "" {
		apiParams["stopLoss"] = params.StopLoss
	}
	if params.ReduceOnly {
		apiParams["reduceOnly"] = true
	}

	var result struct {
		OrderID string `json:"orderId"`
	}
	err := c.withRetry(ctx, func() error {
		resp, err := c.httpClient.NewUtaBybitServiceWithParams(apiParams).PlaceOrder(ctx)
		if err != nil {
			return fmt.Errorf("place order: %w", err)
		}
		return decodeResult("place order", resp, &result)
	})
	if err != nil {
		return "", err
	}
	if result.OrderID == "" {
		return "", fmt.Errorf("place order: empty order id in response")
	}
	return result.OrderID, nil
}

// GetOrder looks an order up by ID, first among open orders and then in
// history once the order has reached a terminal status.
func (c *Client) GetOrder(ctx context.Context, symbol, orderID string) (*Order, error) {
	order, err := c.queryOrder(ctx, symbol, orderID, false)
	if err != nil {
		return nil, err
	}
	if order != nil {
		return order, nil
	}

	order, err = c.queryOrder(ctx, symbol, orderID, true)
	if err != nil {
		return nil, err
	}
	if order == nil {
		return nil, newAPIError("get order", ErrCodeOrderNotFound, "order "+orderID+" not found")
	}
	return order, nil
}

func (c *Client) queryOrder(ctx context.Context, symbol, orderID string, history bool) (*Order, error) {
	params := map[string]interface{}{
		"category": c.category,
		"symbol":   symbol,
		"orderId":  orderID,
	}

	var result struct {
		List []Order `json:"list"`
	}
	err := c.withRetry(ctx, func() error {
		service := c.httpClient.NewUtaBybitServiceWithParams(params)
		var resp interface{}
		var err error
		if history {
			resp, err = service.GetOrderHistory(ctx)
		} else {
			resp, err = service.GetOpenOrders(ctx)
		}
		if err != nil {
			return fmt.Errorf("get order: %w", err)
		}
		return decodeResult("get order", resp, &result)
	})
	if err != nil {
		return nil, err
	}

	for i := range result.List {
		if result.List[i].OrderID == orderID {
			return &result.List[i], nil
		}
	}
	return nil, nil
}

// CancelOrder cancels an open order.
func (c *Client) CancelOrder(ctx context.Context, symbol, orderID string) error {
	params := map[string]interface{}{
		"category": c.category,
		"symbol":   symbol,
		"orderId":  orderID,
	}

	return c.withRetry(ctx, func() error {
		resp, err := c.httpClient.NewUtaBybitServiceWithParams(params).CancelOrder(ctx)
		if err != nil {
			return fmt.Errorf("cancel order: %w", err)
		}
		var result struct{}
		return decodeResult("cancel order", resp, &result)
	})
}

// FormatQty renders a quantity with enough precision for the API.
func FormatQty(qty float64) string {
	return strconv.FormatFloat(qty, 'f', -1, 64)
}
