package bybit

import (
	bybit_api "github.com/bybit-exchange/bybit.go.api"
)

// Client wraps the Bybit V5 unified trading API for the subset of calls the
// bot needs: wallet balance, klines, tickers, and order management.
type Client struct {
	httpClient *bybit_api.Client
	category   string
	testnet    bool
	demo       bool
}

// Config selects credentials and environment for the client.
type Config struct {
	APIKey    string
	APISecret string
	Category  string // "spot" or "linear"
	Testnet   bool
	Demo      bool
}

// NewClient creates a Bybit client against mainnet, testnet, or the demo
// trading environment.
func NewClient(cfg Config) *Client {
	var baseURL string
	switch {
	case cfg.Demo:
		baseURL = "https://api-demo.bybit.com"
	case cfg.Testnet:
		baseURL = bybit_api.TESTNET
	default:
		baseURL = bybit_api.MAINNET
	}

	category := cfg.Category
	if category == "" {
		category = "linear"
	}

	return &Client{
		httpClient: bybit_api.NewBybitHttpClient(
			cfg.APIKey,
			cfg.APISecret,
			bybit_api.WithBaseURL(baseURL),
		),
		category: category,
		testnet:  cfg.Testnet,
		demo:     cfg.Demo,
	}
}

// Environment returns a label for the configured trading environment.
func (c *Client) Environment() string {
	switch {
	case c.demo:
		return "demo"
	case c.testnet:
		return "testnet"
	}
	return "mainnet"
}
