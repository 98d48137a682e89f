package sms

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"time"
)

// Sender delivers a text message to a mobile-money account holder.
type Sender interface {
	Send(ctx context.Context, to, message string) error
}

// Client posts messages to the SMS gateway's HTTP API.
type Client struct {
	BaseURL  string
	APIKey   string
	SenderID string
	client   *http.Client
}

func NewClient(baseURL, apiKey, senderID string) *Client {
	return &Client{
		BaseURL:  baseURL,
		APIKey:   apiKey,
		SenderID: senderID,
		client:   &http.Client{Timeout: 10 * time.Second},
	}
}

type sendReq struct {
	From    string `json:"from"`
	To      string `json:"to"`
	Message string `json:"message"`
}

func (c *Client) Send(ctx context.Context, to, message string) error {
	body, _ := json.Marshal(sendReq{From: c.SenderID, To: to, Message: message})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+"/api/v1/sms", bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.APIKey)
	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return fmt.Errorf("sms gateway: status %d", resp.StatusCode)
	}
	log.Printf("[SMS] sent to=%s", to)
	return nil
}

// NopSender discards messages; used in development when no SMS gateway
// is configured.
type NopSender struct{}

func (NopSender) Send(ctx context.Context, to, message string) error {
	log.Printf("[SMS] (nop) to=%s message=%q", to, message)
	return nil
}
