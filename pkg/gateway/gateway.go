package gateway

import (
	"context"
	"errors"
	"fmt"
	"net/url"
)

// ErrUnavailable covers transient failures: the gateway could not be
// reached or answered with a server error. Retrying the initiation is
// the caller's decision, never the client's.
var ErrUnavailable = errors.New("gateway unavailable")

// ErrRejected covers permanent failures: the gateway understood the
// request and refused it.
var ErrRejected = errors.New("gateway rejected request")

// InitiationRequest is the internal shape of a payment initiation.
// Reference is the merchant-side idempotency key sent to the gateway.
type InitiationRequest struct {
	AmountMinor int64
	Currency    string
	Account     string
	CallbackURL string
	Reference   string
	Description string
}

// InitiationResponse is the gateway's immediate synchronous acknowledgement.
// PayID is assigned by the gateway and identifies the transaction in every
// later callback.
type InitiationResponse struct {
	PayID   string
	Status  string
	Message string
}

// StatusResponse is the result of a polled status query.
type StatusResponse struct {
	PayID       string
	Status      string
	AmountMinor int64
	Message     string
}

// Provider is the outbound contract to the mobile-money gateway.
// Implementations hold no transaction state and never touch the store.
type Provider interface {
	InitiatePayment(ctx context.Context, req InitiationRequest) (*InitiationResponse, error)
	CheckStatus(ctx context.Context, payID string) (*StatusResponse, error)
	Balance(ctx context.Context) (int64, error)
}

func (r InitiationRequest) validate() error {
	if r.AmountMinor <= 0 {
		return fmt.Errorf("%w: amount must be positive", ErrRejected)
	}
	if r.Account == "" {
		return fmt.Errorf("%w: payer account is required", ErrRejected)
	}
	u, err := url.Parse(r.CallbackURL)
	if err != nil || !u.IsAbs() {
		return fmt.Errorf("%w: callback URL must be absolute", ErrRejected)
	}
	return nil
}
