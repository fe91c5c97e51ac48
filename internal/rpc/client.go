package rpc

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math/big"
	"net/http"
	"strings"
	"time"

	"github.com/trypto13/jeet-tracker/shared/logger"
)

// Client is a thin JSON-RPC 2.0 client for the chain node. All calls carry
// caller-side timeouts; a timeout is surfaced as an error and the tick that
// issued it aborts without advancing the cursor.
type Client struct {
	url        string
	httpClient *http.Client
	appLogger  *logger.Logger
}

func NewClient(url string, appLogger *logger.Logger) *Client {
	return &Client{
		url:        url,
		httpClient: &http.Client{Timeout: 20 * time.Second},
		appLogger:  appLogger,
	}
}

type rpcRequest struct {
	JSONRPC string        `json:"jsonrpc"`
	ID      int64         `json:"id"`
	Method  string        `json:"method"`
	Params  []interface{} `json:"params"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

type rpcResponse struct {
	Result json.RawMessage `json:"result"`
	Error  *rpcError       `json:"error"`
}

func (c *Client) call(ctx context.Context, method string, params []interface{}, out interface{}) error {
	reqBody, err := json.Marshal(rpcRequest{JSONRPC: "2.0", ID: 1, Method: method, Params: params})
	if err != nil {
		return fmt.Errorf("failed to marshal %s request: %w", method, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(reqBody))
	if err != nil {
		return fmt.Errorf("failed to create %s request: %w", method, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("RPC %s request failed: %w", method, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read %s response: %w", method, err)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("RPC %s returned status %d: %s", method, resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var rpcResp rpcResponse
	if err := json.Unmarshal(body, &rpcResp); err != nil {
		return fmt.Errorf("failed to decode %s response: %w", method, err)
	}
	if rpcResp.Error != nil {
		return fmt.Errorf("RPC %s error %d: %s", method, rpcResp.Error.Code, rpcResp.Error.Message)
	}
	if out != nil && len(rpcResp.Result) > 0 && string(rpcResp.Result) != "null" {
		if err := json.Unmarshal(rpcResp.Result, out); err != nil {
			return fmt.Errorf("failed to decode %s result: %w", method, err)
		}
	}
	return nil
}

// GetBlockNumber returns the current chain tip height.
func (c *Client) GetBlockNumber(ctx context.Context) (int64, error) {
	var raw json.Number
	if err := c.call(ctx, "btc_blockNumber", nil, &raw); err != nil {
		return 0, err
	}
	height, err := raw.Int64()
	if err != nil {
		return 0, fmt.Errorf("failed to parse block number %q: %w", raw.String(), err)
	}
	return height, nil
}

// GetBlock fetches a block with full transactions.
func (c *Client) GetBlock(ctx context.Context, height int64) (*Block, error) {
	var block Block
	if err := c.call(ctx, "btc_getBlockByNumber", []interface{}{height, true}, &block); err != nil {
		return nil, err
	}
	return &block, nil
}

// GetPublicKeyInfo returns the owner-info record for an address, or nil when
// the chain holds no key material for it.
func (c *Client) GetPublicKeyInfo(ctx context.Context, address string) (*OwnerInfo, error) {
	var info OwnerInfo
	if err := c.call(ctx, "btc_getPublicKeyInfo", []interface{}{address, true}, &info); err != nil {
		return nil, err
	}
	if info.MLDSAHash == "" {
		return nil, nil
	}
	return &info, nil
}

// GetBalance returns the native balance of an address in satoshis.
func (c *Client) GetBalance(ctx context.Context, address string, confirmedOnly bool) (*big.Int, error) {
	var raw json.Number
	if err := c.call(ctx, "btc_getBalance", []interface{}{address, confirmedOnly}, &raw); err != nil {
		return nil, err
	}
	balance, ok := new(big.Int).SetString(raw.String(), 10)
	if !ok {
		return nil, fmt.Errorf("failed to parse balance %q for %s", raw.String(), address)
	}
	return balance, nil
}

// GetCSV1ForAddress returns the CSV-timelocked address form derived from the
// same identity as the owner address.
func (c *Client) GetCSV1ForAddress(ctx context.Context, owner string) (string, error) {
	var result struct {
		Address string `json:"address"`
	}
	if err := c.call(ctx, "btc_getCSV1ForAddress", []interface{}{owner}, &result); err != nil {
		return "", err
	}
	return result.Address, nil
}

// GetUTXOs returns the current unspent outputs for an address. CSV-form
// addresses resolve through a distinct node-side path.
func (c *Client) GetUTXOs(ctx context.Context, address string, isCSV bool) ([]UTXO, error) {
	params := []interface{}{map[string]interface{}{
		"address":           address,
		"isCSV":             isCSV,
		"mergePendingUTXOs": false,
	}}
	var utxos []UTXO
	if err := c.call(ctx, "btc_getUTXOs", params, &utxos); err != nil {
		return nil, err
	}
	return utxos, nil
}
