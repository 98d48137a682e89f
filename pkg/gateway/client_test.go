package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func testRequest() InitiationRequest {
	return InitiationRequest{
		AmountMinor: 50000,
		Currency:    "XOF",
		Account:     "221771234567",
		CallbackURL: "https://admin.example.com/api/v1/webhooks/gateway",
		Reference:   "ref-1",
		Description: "reimbursement #1",
	}
}

func TestInitiatePayment(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v1/payments" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer key" {
			t.Errorf("unexpected auth header %q", got)
		}
		var req initiateReq
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		if req.Amount != 50000 || req.Account != "221771234567" {
			t.Errorf("unexpected payload: %+v", req)
		}
		json.NewEncoder(w).Encode(initiateResp{Status: "PENDING", PayID: "PAY123", Message: "accepted"})
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "key")
	resp, err := c.InitiatePayment(context.Background(), testRequest())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.PayID != "PAY123" || resp.Status != "PENDING" {
		t.Errorf("unexpected response: %+v", resp)
	}
}

func TestInitiatePaymentValidation(t *testing.T) {
	c := NewClient("http://unused", "key")
	cases := []struct {
		name   string
		mutate func(*InitiationRequest)
	}{
		{"zero amount", func(r *InitiationRequest) { r.AmountMinor = 0 }},
		{"empty account", func(r *InitiationRequest) { r.Account = "" }},
		{"relative callback", func(r *InitiationRequest) { r.CallbackURL = "/webhooks/gateway" }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := testRequest()
			tc.mutate(&req)
			if _, err := c.InitiatePayment(context.Background(), req); !errors.Is(err, ErrRejected) {
				t.Errorf("expected ErrRejected, got %v", err)
			}
		})
	}
}

func TestInitiatePaymentFailureClasses(t *testing.T) {
	for _, tc := range []struct {
		name   string
		status int
		want   error
	}{
		{"server error is transient", http.StatusBadGateway, ErrUnavailable},
		{"client error is permanent", http.StatusUnprocessableEntity, ErrRejected},
	} {
		t.Run(tc.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tc.status)
			}))
			defer srv.Close()
			c := NewClient(srv.URL, "key")
			if _, err := c.InitiatePayment(context.Background(), testRequest()); !errors.Is(err, tc.want) {
				t.Errorf("expected %v, got %v", tc.want, err)
			}
		})
	}
}

func TestInitiatePaymentNetworkError(t *testing.T) {
	c := NewClient("http://127.0.0.1:1", "key")
	if _, err := c.InitiatePayment(context.Background(), testRequest()); !errors.Is(err, ErrUnavailable) {
		t.Errorf("expected ErrUnavailable, got %v", err)
	}
}

func TestCheckStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v1/payments/PAY123" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		json.NewEncoder(w).Encode(statusResp{PayID: "PAY123", Status: "SUCCESS", Amount: 50000})
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "key")
	st, err := c.CheckStatus(context.Background(), "PAY123")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if st.Status != "SUCCESS" || st.AmountMinor != 50000 {
		t.Errorf("unexpected status: %+v", st)
	}
}

func TestBalance(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(balanceResp{Balance: 420000})
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "key")
	b, err := c.Balance(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if b != 420000 {
		t.Errorf("expected 420000, got %d", b)
	}
}
