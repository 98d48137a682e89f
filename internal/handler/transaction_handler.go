package handler

import (
	"errors"
	"log"
	"net/http"
	"strconv"

	"avanspay/internal/models"
	"avanspay/internal/repository"
	"avanspay/internal/service"
	"avanspay/pkg/gateway"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

type TransactionHandler struct {
	txRepo     *repository.TransactionRepository
	reconciler *service.Reconciler
}

func NewTransactionHandler(txRepo *repository.TransactionRepository, reconciler *service.Reconciler) *TransactionHandler {
	return &TransactionHandler{txRepo: txRepo, reconciler: reconciler}
}

func (h *TransactionHandler) List(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	status := models.Status(c.Query("status"))
	txs, err := h.txRepo.List(c.Request.Context(), status, limit, offset)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list transactions"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"transactions": txs, "limit": limit, "offset": offset})
}

func (h *TransactionHandler) Get(c *gin.Context) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return
	}
	tx, err := h.txRepo.GetByID(c.Request.Context(), uint(id))
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "transaction not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "lookup failed"})
		return
	}
	rb, err := h.txRepo.LinkedReimbursement(c.Request.Context(), tx)
	if err != nil {
		log.Printf("[Transactions] linked reimbursement lookup for %d failed: %v", tx.ID, err)
	}
	c.JSON(http.StatusOK, gin.H{"transaction": tx, "reimbursement": rb})
}

// Reconcile runs the polled-status variant: ask the gateway for the
// transaction's current status and apply it through the same algorithm
// as a webhook callback. Used when a callback was lost.
func (h *TransactionHandler) Reconcile(c *gin.Context) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return
	}
	out, err := h.reconciler.ReconcilePolled(c.Request.Context(), uint(id))
	switch {
	case err == nil:
		c.JSON(http.StatusOK, gin.H{"outcome": out.Kind, "from": out.From, "to": out.To})
	case errors.Is(err, service.ErrUnknownTransaction):
		c.JSON(http.StatusNotFound, gin.H{"error": "transaction not found"})
	case errors.Is(err, service.ErrConcurrentUpdate):
		c.JSON(http.StatusConflict, gin.H{"error": "concurrent update, try again"})
	case errors.Is(err, gateway.ErrUnavailable):
		c.JSON(http.StatusBadGateway, gin.H{"error": "gateway unavailable"})
	case errors.Is(err, gateway.ErrRejected):
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": "gateway rejected status query"})
	default:
		log.Printf("[Transactions] reconcile %d failed: %v", id, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "reconciliation failed"})
	}
}

type cancelRequest struct {
	Reason string `json:"reason"`
}

// Cancel is the administrative PENDING -> CANCELLED override.
func (h *TransactionHandler) Cancel(c *gin.Context) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return
	}
	var req cancelRequest
	_ = c.ShouldBindJSON(&req)
	out, err := h.reconciler.Cancel(c.Request.Context(), uint(id), req.Reason)
	switch {
	case err == nil:
		c.JSON(http.StatusOK, gin.H{"outcome": out.Kind, "from": out.From, "to": out.To})
	case errors.Is(err, service.ErrUnknownTransaction):
		c.JSON(http.StatusNotFound, gin.H{"error": "transaction not found"})
	case errors.Is(err, service.ErrAlreadyFinal):
		c.JSON(http.StatusConflict, gin.H{"error": "transaction already in a terminal status"})
	default:
		log.Printf("[Transactions] cancel %d failed: %v", id, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "cancel failed"})
	}
}
