package gateway

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// Stub is a no-op provider for development: every initiation is
// acknowledged as PENDING and every status query reports SUCCESS.
type Stub struct{}

func (s *Stub) InitiatePayment(ctx context.Context, req InitiationRequest) (*InitiationResponse, error) {
	if err := req.validate(); err != nil {
		return nil, err
	}
	return &InitiationResponse{
		PayID:   fmt.Sprintf("stub_%d", time.Now().UnixNano()),
		Status:  "PENDING",
		Message: "stub gateway accepted",
	}, nil
}

func (s *Stub) CheckStatus(ctx context.Context, payID string) (*StatusResponse, error) {
	if !strings.HasPrefix(payID, "stub_") {
		return nil, fmt.Errorf("%w: unknown pay_id %s", ErrRejected, payID)
	}
	return &StatusResponse{PayID: payID, Status: "SUCCESS", Message: "stub gateway settled"}, nil
}

func (s *Stub) Balance(ctx context.Context) (int64, error) {
	return 1_000_000, nil
}
