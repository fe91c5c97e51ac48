package indexer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/trypto13/jeet-tracker/shared/logger"
)

// ErrRateLimited is returned when the indexer answers 429; the tick aborts
// and retries on the next interval.
var ErrRateLimited = errors.New("indexer rate limited")

// Client consumes the indexer HTTP API. The indexer is the primary source
// for contract-level activity; the chain RPC only covers raw BTC movement.
type Client struct {
	baseURL    string
	httpClient *http.Client
	appLogger  *logger.Logger
}

func NewClient(baseURL string, appLogger *logger.Logger) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: 20 * time.Second},
		appLogger:  appLogger,
	}
}

func (c *Client) get(ctx context.Context, path string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("failed to create indexer request %s: %w", path, err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("indexer request %s failed: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		return fmt.Errorf("indexer %s: %w", path, ErrRateLimited)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read indexer response %s: %w", path, err)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("indexer %s returned status %d: %s", path, resp.StatusCode, strings.TrimSpace(string(body)))
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("failed to decode indexer response %s: %w", path, err)
	}
	return nil
}

// Events returns the typed event batch for blocks >= since, along with the
// greatest block the indexer has fully processed.
func (c *Client) Events(ctx context.Context, since int64, limit int) (*EventsResponse, error) {
	path := fmt.Sprintf("/events?since=%d", since)
	if limit > 0 {
		path = fmt.Sprintf("%s&limit=%d", path, limit)
	}
	var resp EventsResponse
	if err := c.get(ctx, path, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Balances returns the fungible balances held by an address, per contract.
func (c *Client) Balances(ctx context.Context, address string) ([]TokenBalance, error) {
	var balances []TokenBalance
	if err := c.get(ctx, "/balances/"+url.PathEscape(address), &balances); err != nil {
		return nil, err
	}
	return balances, nil
}

// Listings returns the NativeSwap provider queues for a contract.
func (c *Client) Listings(ctx context.Context, contract string) (*Listings, error) {
	var listings Listings
	if err := c.get(ctx, "/listings/"+url.PathEscape(contract), &listings); err != nil {
		return nil, err
	}
	return &listings, nil
}

// Prices returns current virtual reserves and recent price changes for a
// contract. Callers tolerate a nil result; price data is best effort.
func (c *Client) Prices(ctx context.Context, contract string) (*PriceInfo, error) {
	var info PriceInfo
	if err := c.get(ctx, "/prices/"+url.PathEscape(contract), &info); err != nil {
		return nil, err
	}
	return &info, nil
}

// Reservations lists reservations filtered by status.
func (c *Client) Reservations(ctx context.Context, status string, limit int) ([]ReservationRecord, error) {
	path := "/reservations"
	query := url.Values{}
	if status != "" {
		query.Set("status", status)
	}
	if limit > 0 {
		query.Set("limit", fmt.Sprintf("%d", limit))
	}
	if encoded := query.Encode(); encoded != "" {
		path += "?" + encoded
	}
	var records []ReservationRecord
	if err := c.get(ctx, path, &records); err != nil {
		return nil, err
	}
	return records, nil
}

// Transfers pages the historical transfers for an identity hash. Used by the
// historical scanner to seed the seen-contract set.
func (c *Client) Transfers(ctx context.Context, mldsaHash string, limit, skip int) ([]TransferRecord, error) {
	path := fmt.Sprintf("/transfers/%s?limit=%d&skip=%d", url.PathEscape(mldsaHash), limit, skip)
	var records []TransferRecord
	if err := c.get(ctx, path, &records); err != nil {
		return nil, err
	}
	return records, nil
}
