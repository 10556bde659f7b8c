// Copyright (c) 2025 BVK Chaitanya

// Package binance implements the exchange interface over the binance spot
// REST api. There is no push channel in this deployment; order state is
// observed by the reconciler through polling.
package binance

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/bvk/shiftbot/exchange"
	"github.com/shopspring/decimal"
	"golang.org/x/time/rate"
)

const (
	RestURL        = "https://api.binance.com"
	TestnetRestURL = "https://testnet.binance.vision"
)

// Error is an exchange-level failure decoded from a binance error response.
type Error struct {
	HTTPStatus int
	Code       int    `json:"code"`
	Msg        string `json:"msg"`
}

func (e *Error) Error() string {
	return fmt.Sprintf("binance: %s (code %d, http %d)", e.Msg, e.Code, e.HTTPStatus)
}

type Options struct {
	RestURL string

	HttpClientTimeout time.Duration

	RecvWindow time.Duration
}

func (v *Options) setDefaults() {
	if len(v.RestURL) == 0 {
		v.RestURL = RestURL
	}
	if v.HttpClientTimeout == 0 {
		v.HttpClientTimeout = 10 * time.Second
	}
	if v.RecvWindow == 0 {
		v.RecvWindow = 5 * time.Second
	}
}

type Client struct {
	opts Options

	key    string
	secret []byte

	client *http.Client

	limiter *rate.Limiter
}

var _ exchange.Exchange = (*Client)(nil)

// New creates a client for the binance spot api. The key and secret may be
// empty for public-data-only use.
func New(key, secret string, opts *Options) *Client {
	if opts == nil {
		opts = new(Options)
	}
	opts.setDefaults()
	return &Client{
		opts:   *opts,
		key:    key,
		secret: []byte(secret),
		client: &http.Client{
			Timeout: opts.HttpClientTimeout,
		},
		limiter: rate.NewLimiter(20, 1),
	}
}

// sign returns the HMAC-SHA256 digest of the query string exactly as it is
// sent on the wire.
func (c *Client) sign(query string) string {
	mac := hmac.New(sha256.New, c.secret)
	io.WriteString(mac, query)
	return hex.EncodeToString(mac.Sum(nil))
}

func (c *Client) do(ctx context.Context, method, apiPath string, values url.Values, signed bool, result any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}
	if values == nil {
		values = make(url.Values)
	}
	if signed {
		values.Set("timestamp", strconv.FormatInt(time.Now().UnixMilli(), 10))
		values.Set("recvWindow", strconv.FormatInt(c.opts.RecvWindow.Milliseconds(), 10))
	}
	u, err := url.Parse(c.opts.RestURL)
	if err != nil {
		return fmt.Errorf("invalid rest url %q: %w", c.opts.RestURL, err)
	}
	u.Path = apiPath
	// The signature covers the query string byte-for-byte and must be the
	// last parameter.
	query := values.Encode()
	if signed {
		query = query + "&signature=" + c.sign(query)
	}
	u.RawQuery = query

	req, err := http.NewRequestWithContext(ctx, method, u.String(), nil)
	if err != nil {
		return err
	}
	if signed {
		req.Header.Set("X-MBX-APIKEY", c.key)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("could not %s %s: %w", method, apiPath, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("could not read %s response: %w", apiPath, err)
	}
	if resp.StatusCode != http.StatusOK {
		apiErr := &Error{HTTPStatus: resp.StatusCode}
		if err := json.Unmarshal(body, apiErr); err != nil {
			apiErr.Msg = string(body)
		}
		slog.Warn("binance api returned failure", "method", method, "path", apiPath, "status", resp.StatusCode, "code", apiErr.Code)
		return apiErr
	}
	if result != nil {
		if err := json.Unmarshal(body, result); err != nil {
			return fmt.Errorf("could not decode %s response: %w", apiPath, err)
		}
	}
	return nil
}

func (c *Client) GetBalance(ctx context.Context, asset string) (*exchange.Balance, error) {
	var acct accountResponse
	if err := c.do(ctx, http.MethodGet, "/api/v3/account", nil, true, &acct); err != nil {
		return nil, err
	}
	for _, b := range acct.Balances {
		if b.Asset == asset {
			return &exchange.Balance{Asset: b.Asset, Free: b.Free, Locked: b.Locked}, nil
		}
	}
	return &exchange.Balance{Asset: asset}, nil
}

func (c *Client) GetOrder(ctx context.Context, symbol string, orderID int64) (*exchange.Order, error) {
	values := make(url.Values)
	values.Set("symbol", symbol)
	values.Set("orderId", strconv.FormatInt(orderID, 10))
	var order orderResponse
	if err := c.do(ctx, http.MethodGet, "/api/v3/order", values, true, &order); err != nil {
		return nil, err
	}
	return order.export(symbol), nil
}

func (c *Client) GetSymbolInfo(ctx context.Context, symbol string) (*exchange.SymbolInfo, error) {
	values := make(url.Values)
	values.Set("symbol", symbol)
	var info exchangeInfoResponse
	if err := c.do(ctx, http.MethodGet, "/api/v3/exchangeInfo", values, false, &info); err != nil {
		return nil, err
	}
	for _, s := range info.Symbols {
		if s.Symbol == symbol {
			return &exchange.SymbolInfo{Symbol: s.Symbol, BaseAsset: s.BaseAsset, QuoteAsset: s.QuoteAsset}, nil
		}
	}
	return nil, fmt.Errorf("symbol %q is not known to the exchange", symbol)
}

func (c *Client) GetPrice(ctx context.Context, symbol string) (decimal.Decimal, error) {
	values := make(url.Values)
	values.Set("symbol", symbol)
	var ticker tickerResponse
	if err := c.do(ctx, http.MethodGet, "/api/v3/ticker/price", values, false, &ticker); err != nil {
		return decimal.Zero, err
	}
	return ticker.Price, nil
}

func (c *Client) placeOrder(ctx context.Context, values url.Values) (*exchange.Order, error) {
	// FULL responses carry fill data for market orders.
	values.Set("newOrderRespType", "FULL")
	var order orderResponse
	if err := c.do(ctx, http.MethodPost, "/api/v3/order", values, true, &order); err != nil {
		return nil, err
	}
	return order.export(values.Get("symbol")), nil
}

func (c *Client) MarketBuy(ctx context.Context, symbol string, quoteQty decimal.Decimal, clientOrderID string) (*exchange.Order, error) {
	values := make(url.Values)
	values.Set("symbol", symbol)
	values.Set("side", "BUY")
	values.Set("type", "MARKET")
	values.Set("quoteOrderQty", quoteQty.String())
	values.Set("newClientOrderId", clientOrderID)
	return c.placeOrder(ctx, values)
}

func (c *Client) MarketSell(ctx context.Context, symbol string, qty decimal.Decimal, clientOrderID string) (*exchange.Order, error) {
	values := make(url.Values)
	values.Set("symbol", symbol)
	values.Set("side", "SELL")
	values.Set("type", "MARKET")
	values.Set("quantity", qty.String())
	values.Set("newClientOrderId", clientOrderID)
	return c.placeOrder(ctx, values)
}

func (c *Client) LimitBuy(ctx context.Context, symbol string, qty, price decimal.Decimal, clientOrderID string) (*exchange.Order, error) {
	values := make(url.Values)
	values.Set("symbol", symbol)
	values.Set("side", "BUY")
	values.Set("type", "LIMIT")
	values.Set("timeInForce", "GTC")
	values.Set("quantity", qty.String())
	values.Set("price", price.String())
	values.Set("newClientOrderId", clientOrderID)
	return c.placeOrder(ctx, values)
}

func (c *Client) LimitSell(ctx context.Context, symbol string, qty, price decimal.Decimal, clientOrderID string) (*exchange.Order, error) {
	values := make(url.Values)
	values.Set("symbol", symbol)
	values.Set("side", "SELL")
	values.Set("type", "LIMIT")
	values.Set("timeInForce", "GTC")
	values.Set("quantity", qty.String())
	values.Set("price", price.String())
	values.Set("newClientOrderId", clientOrderID)
	return c.placeOrder(ctx, values)
}

func (c *Client) CancelOrder(ctx context.Context, symbol string, orderID int64) error {
	values := make(url.Values)
	values.Set("symbol", symbol)
	values.Set("orderId", strconv.FormatInt(orderID, 10))
	return c.do(ctx, http.MethodDelete, "/api/v3/order", values, true, nil)
}
