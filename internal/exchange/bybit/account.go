package bybit

import (
	"context"
	"fmt"
)

// WalletBalance is the unified-account equity snapshot.
type WalletBalance struct {
	TotalEquity    float64
	TotalAvailable float64
}

// GetWalletBalance fetches the unified account balance in quote terms.
func (c *Client) GetWalletBalance(ctx context.Context) (*WalletBalance, error) {
	params := map[string]interface{}{
		"accountType": "UNIFIED",
	}

	var result struct {
		List []struct {
			TotalEquity           string `json:"totalEquity"`
			TotalAvailableBalance string `json:"totalAvailableBalance"`
		} `json:"list"`
	}
	err := c.withRetry(ctx, func() error {
		resp, err := c.httpClient.NewUtaBybitServiceWithParams(params).GetAccountWallet(ctx)
		if err != nil {
			return fmt.Errorf("get wallet balance: %w", err)
		}
		return decodeResult("get wallet balance", resp, &result)
	})
	if err != nil {
		return nil, err
	}
	if len(result.List) == 0 {
		return nil, fmt.Errorf("get wallet balance: empty account list")
	}

	acct := result.List[0]
	return &WalletBalance{
		TotalEquity:    parseFloat(acct.TotalEquity),
		TotalAvailable: parseFloat(acct.TotalAvailableBalance),
	}, nil
}
