package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"time"
)

// Client talks to the mobile-money gateway's merchant API.
type Client struct {
	BaseURL string
	APIKey  string
	client  *http.Client
}

func NewClient(baseURL, apiKey string) *Client {
	return &Client{
		BaseURL: baseURL,
		APIKey:  apiKey,
		client:  &http.Client{Timeout: 10 * time.Second},
	}
}

type initiateReq struct {
	Amount      int64  `json:"amount"`
	Currency    string `json:"currency"`
	Account     string `json:"account"`
	CallbackURL string `json:"callback_url"`
	Reference   string `json:"reference"`
	Description string `json:"description"`
}

type initiateResp struct {
	Status  string `json:"status"`
	PayID   string `json:"pay_id"`
	Message string `json:"message"`
}

func (c *Client) InitiatePayment(ctx context.Context, req InitiationRequest) (*InitiationResponse, error) {
	if err := req.validate(); err != nil {
		return nil, err
	}
	payload := initiateReq{
		Amount:      req.AmountMinor,
		Currency:    req.Currency,
		Account:     req.Account,
		CallbackURL: req.CallbackURL,
		Reference:   req.Reference,
		Description: req.Description,
	}
	log.Printf("[Gateway] POST %s/api/v1/payments reference=%s account=%s amount=%d", c.BaseURL, req.Reference, req.Account, req.AmountMinor)
	var out initiateResp
	if err := c.post(ctx, "/api/v1/payments", payload, &out); err != nil {
		return nil, err
	}
	log.Printf("[Gateway] initiated pay_id=%s status=%s message=%q", out.PayID, out.Status, out.Message)
	return &InitiationResponse{PayID: out.PayID, Status: out.Status, Message: out.Message}, nil
}

type statusResp struct {
	PayID   string `json:"pay_id"`
	Status  string `json:"status"`
	Amount  int64  `json:"amount"`
	Message string `json:"message"`
}

func (c *Client) CheckStatus(ctx context.Context, payID string) (*StatusResponse, error) {
	if payID == "" {
		return nil, fmt.Errorf("%w: pay_id is required", ErrRejected)
	}
	var out statusResp
	if err := c.get(ctx, "/api/v1/payments/"+payID, &out); err != nil {
		return nil, err
	}
	return &StatusResponse{PayID: out.PayID, Status: out.Status, AmountMinor: out.Amount, Message: out.Message}, nil
}

type balanceResp struct {
	Balance int64 `json:"balance"`
}

func (c *Client) Balance(ctx context.Context) (int64, error) {
	var out balanceResp
	if err := c.get(ctx, "/api/v1/balance", &out); err != nil {
		return 0, err
	}
	return out.Balance, nil
}

func (c *Client) post(ctx context.Context, path string, payload, out interface{}) error {
	body, _ := json.Marshal(payload)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+path, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.APIKey)
	return c.do(req, out)
}

func (c *Client) get(ctx context.Context, path string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.BaseURL+path, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+c.APIKey)
	return c.do(req, out)
}

func (c *Client) do(req *http.Request, out interface{}) error {
	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()
	respBody, _ := io.ReadAll(resp.Body)
	switch {
	case resp.StatusCode >= 500:
		return fmt.Errorf("%w: status %d", ErrUnavailable, resp.StatusCode)
	case resp.StatusCode >= 400:
		return fmt.Errorf("%w: status %d body=%s", ErrRejected, resp.StatusCode, string(respBody))
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("%w: bad response body: %v", ErrUnavailable, err)
	}
	return nil
}
