package uiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"golang.org/x/time/rate"
)

// RemoteClient drives the trading window through an HTTP bridge running on
// the Windows host next to the THS client.
type RemoteClient struct {
	baseURL    string
	httpClient *http.Client
	auth       Authenticator
	limiter    *rate.Limiter
}

type RemoteOption func(*RemoteClient)

func WithAuthenticator(auth Authenticator) RemoteOption {
	return func(c *RemoteClient) {
		c.auth = auth
	}
}

// WithRateLimit paces calls to the bridge. The window can't take bursts.
func WithRateLimit(perSecond float64, burst int) RemoteOption {
	return func(c *RemoteClient) {
		if perSecond <= 0 {
			c.limiter = rate.NewLimiter(rate.Inf, 0)
			return
		}
		if burst < 1 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(perSecond), burst)
	}
}

func NewRemoteClient(baseURL string, timeout time.Duration, opts ...RemoteOption) *RemoteClient {
	c := &RemoteClient{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: timeout},
		auth:       NoAuth{},
		limiter:    rate.NewLimiter(rate.Limit(5), 1),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type prepareRequest struct {
	User     string `json:"user"`
	Password string `json:"password"`
	ExePath  string `json:"exe_path"`
}

type orderRequest struct {
	Security string  `json:"security"`
	Price    float64 `json:"price"`
	Amount   int     `json:"amount"`
}

type cancelRequest struct {
	EntrustNo string `json:"entrust_no"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func (c *RemoteClient) Login(ctx context.Context, user, password, exePath string) error {
	_, err := c.do(ctx, http.MethodPost, "/prepare", prepareRequest{User: user, Password: password, ExePath: exePath})
	return err
}

func (c *RemoteClient) Exit(ctx context.Context) error {
	_, err := c.do(ctx, http.MethodPost, "/exit", nil)
	return err
}

func (c *RemoteClient) Refresh(ctx context.Context) error {
	_, err := c.do(ctx, http.MethodPost, "/refresh", nil)
	return err
}

func (c *RemoteClient) Balance(ctx context.Context) (*Frame, error) {
	return c.frame(ctx, "/balance")
}

func (c *RemoteClient) Position(ctx context.Context) (*Frame, error) {
	return c.frame(ctx, "/position")
}

func (c *RemoteClient) TodayEntrusts(ctx context.Context) (*Frame, error) {
	return c.frame(ctx, "/today_entrusts")
}

func (c *RemoteClient) TodayTrades(ctx context.Context) (*Frame, error) {
	return c.frame(ctx, "/today_trades")
}

func (c *RemoteClient) Buy(ctx context.Context, security string, price float64, amount int) (*OrderReply, error) {
	return c.order(ctx, "/buy", security, price, amount)
}

func (c *RemoteClient) Sell(ctx context.Context, security string, price float64, amount int) (*OrderReply, error) {
	return c.order(ctx, "/sell", security, price, amount)
}

func (c *RemoteClient) CancelEntrust(ctx context.Context, entrustNo string) (*CancelReply, error) {
	body, err := c.do(ctx, http.MethodPost, "/cancel_entrust", cancelRequest{EntrustNo: entrustNo})
	if err != nil {
		return nil, err
	}
	if isNull(body) {
		return nil, nil
	}

	var reply CancelReply
	if err := json.Unmarshal(body, &reply); err != nil {
		return nil, fmt.Errorf("decode cancel reply: %w", err)
	}
	return &reply, nil
}

func (c *RemoteClient) order(ctx context.Context, path, security string, price float64, amount int) (*OrderReply, error) {
	body, err := c.do(ctx, http.MethodPost, path, orderRequest{Security: security, Price: price, Amount: amount})
	if err != nil {
		return nil, err
	}
	if isNull(body) {
		return nil, nil
	}

	var reply OrderReply
	if err := json.Unmarshal(body, &reply); err != nil {
		return nil, fmt.Errorf("decode order reply: %w", err)
	}
	return &reply, nil
}

func (c *RemoteClient) frame(ctx context.Context, path string) (*Frame, error) {
	body, err := c.do(ctx, http.MethodGet, path, nil)
	if err != nil {
		return nil, err
	}

	var frame Frame
	if err := json.Unmarshal(body, &frame); err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	return &frame, nil
}

func (c *RemoteClient) do(ctx context.Context, method, path string, payload any) ([]byte, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limit wait: %w", err)
	}

	var reqBody io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("encode request: %w", err)
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	if err := c.auth.AddAuthHeaders(req); err != nil {
		return nil, err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var e errorResponse
		if json.Unmarshal(body, &e) == nil && e.Error != "" {
			return nil, fmt.Errorf("bridge error (%d): %s", resp.StatusCode, e.Error)
		}
		return nil, fmt.Errorf("bridge error (%d): %s", resp.StatusCode, bytes.TrimSpace(body))
	}

	return body, nil
}

func isNull(body []byte) bool {
	body = bytes.TrimSpace(body)
	return len(body) == 0 || bytes.Equal(body, []byte("null"))
}
