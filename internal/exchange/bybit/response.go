package bybit

import (
	"encoding/json"
	"fmt"
	"strconv"

	bybit_api "github.com/bybit-exchange/bybit.go.api"
)

// decodeResult checks the envelope retCode and unmarshals the result payload
// into out.
func decodeResult(operation string, resp interface{}, out interface{}) error {
	serverResp, ok := resp.(*bybit_api.ServerResponse)
	if !ok {
		return fmt.Errorf("bybit %s: unexpected response type %T", operation, resp)
	}
	if serverResp.RetCode != 0 {
		return newAPIError(operation, serverResp.RetCode, serverResp.RetMsg)
	}

	raw, err := json.Marshal(serverResp.Result)
	if err != nil {
		return fmt.Errorf("bybit %s: marshal result: %w", operation, err)
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("bybit %s: unmarshal result: %w", operation, err)
	}
	return nil
}

// parseFloat converts the API's string-encoded numbers, treating empty as 0.
func parseFloat(s string) float64 {
	if s == "" {
		return 0
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0
	}
	return f
}
