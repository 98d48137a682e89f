package handler

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"
	"time"

	"avanspay/internal/metrics"
	"avanspay/internal/models"
	"avanspay/internal/service"

	"github.com/gin-gonic/gin"
)

// GatewayCallback is the webhook payload the payment gateway posts after
// a mobile-money payment settles or fails.
type GatewayCallback struct {
	PayID   string `json:"pay_id"`
	Status  string `json:"status"`
	Amount  int64  `json:"amount"`
	Message string `json:"message"`
	Account string `json:"account"`
}

// Reconciling is the slice of the reconciler the webhook needs.
type Reconciling interface {
	Reconcile(ctx context.Context, cb service.Callback) (*service.ReconcileOutcome, error)
}

type GatewayWebhookHandler struct {
	reconciler Reconciling
	metrics    *metrics.ReconcilerMetrics
}

func NewGatewayWebhookHandler(reconciler Reconciling, m *metrics.ReconcilerMetrics) *GatewayWebhookHandler {
	return &GatewayWebhookHandler{reconciler: reconciler, metrics: m}
}

// Handle processes the gateway callback. Missing pay_id or status is a
// client error answered before any store access. Every other input is
// acknowledged with 200: the gateway only cares that delivery succeeded,
// and a non-2xx on a permanently unrecognizable pay_id would make it
// retry forever.
func (h *GatewayWebhookHandler) Handle(c *gin.Context) {
	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		log.Printf("[Gateway callback] ReadBody error: %v", err)
		h.metrics.RecordCallback("malformed")
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid body"})
		return
	}
	log.Printf("[Gateway callback] raw body: %s", string(body))
	var payload GatewayCallback
	if err := json.Unmarshal(body, &payload); err != nil {
		log.Printf("[Gateway callback] json unmarshal error: %v", err)
		h.metrics.RecordCallback("malformed")
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	if payload.PayID == "" || payload.Status == "" {
		log.Printf("[Gateway callback] missing pay_id or status, rejecting")
		h.metrics.RecordCallback("malformed")
		c.JSON(http.StatusBadRequest, gin.H{"error": "pay_id and status are required"})
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 10*time.Second)
	defer cancel()
	out, err := h.reconciler.Reconcile(ctx, service.Callback{
		PayID:   payload.PayID,
		Status:  payload.Status,
		Amount:  payload.Amount,
		Message: payload.Message,
		Account: payload.Account,
		Raw:     string(body),
		Actor:   models.ActorCallback,
	})
	switch {
	case err == nil:
		log.Printf("[Gateway callback] pay_id=%s outcome=%s %s->%s", payload.PayID, out.Kind, out.From, out.To)
		h.metrics.RecordCallback("accepted")
	case errors.Is(err, service.ErrUnknownTransaction):
		// Logged and dropped; still a delivery success for the gateway.
		h.metrics.RecordCallback("unknown")
	case errors.Is(err, service.ErrConcurrentUpdate):
		log.Printf("[Gateway callback] pay_id=%s: %v (redelivery will retry)", payload.PayID, err)
		h.metrics.RecordCallback("retry_exhausted")
	default:
		log.Printf("[Gateway callback] pay_id=%s reconciliation error: %v", payload.PayID, err)
		h.metrics.RecordCallback("error")
	}
	c.JSON(http.StatusOK, gin.H{"received": true})
}
