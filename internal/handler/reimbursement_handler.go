package handler

import (
	"errors"
	"log"
	"net/http"
	"strconv"
	"time"

	"avanspay/config"
	"avanspay/internal/models"
	"avanspay/internal/repository"
	"avanspay/pkg/gateway"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

type ReimbursementHandler struct {
	cfg    *config.Config
	rbRepo *repository.ReimbursementRepository
	txRepo *repository.TransactionRepository
	gw     gateway.Provider
}

func NewReimbursementHandler(cfg *config.Config, rbRepo *repository.ReimbursementRepository, txRepo *repository.TransactionRepository, gw gateway.Provider) *ReimbursementHandler {
	return &ReimbursementHandler{cfg: cfg, rbRepo: rbRepo, txRepo: txRepo, gw: gw}
}

type createReimbursementRequest struct {
	PartnerName    string `json:"partner_name" binding:"required"`
	PayerAccount   string `json:"payer_account" binding:"required"`
	PrincipalMinor int64  `json:"principal_minor" binding:"required"`
	FeeMinor       int64  `json:"fee_minor"`
	DueDate        string `json:"due_date"`
}

func (h *ReimbursementHandler) Create(c *gin.Context) {
	var req createReimbursementRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.PrincipalMinor <= 0 || req.FeeMinor < 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "amounts must be positive"})
		return
	}
	due := time.Now().AddDate(0, 1, 0)
	if req.DueDate != "" {
		d, err := time.Parse("2006-01-02", req.DueDate)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "due_date must be YYYY-MM-DD"})
			return
		}
		due = d
	}
	rb := &models.Reimbursement{
		PartnerName:    req.PartnerName,
		PayerAccount:   req.PayerAccount,
		PrincipalMinor: req.PrincipalMinor,
		FeeMinor:       req.FeeMinor,
		TotalMinor:     req.PrincipalMinor + req.FeeMinor,
		Status:         models.StatusPending,
		DueDate:        due,
	}
	if err := h.rbRepo.Create(c.Request.Context(), rb); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to create reimbursement"})
		return
	}
	c.JSON(http.StatusCreated, rb)
}

func (h *ReimbursementHandler) List(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	status := models.Status(c.Query("status"))
	rbs, err := h.rbRepo.List(c.Request.Context(), status, limit, offset)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list reimbursements"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"reimbursements": rbs, "limit": limit, "offset": offset})
}

func (h *ReimbursementHandler) Get(c *gin.Context) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return
	}
	rb, err := h.rbRepo.GetByID(c.Request.Context(), uint(id))
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "reimbursement not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "lookup failed"})
		return
	}
	c.JSON(http.StatusOK, rb)
}

type initiatePaymentRequest struct {
	Account string `json:"account"`
}

// InitiatePayment collects a reimbursement through the gateway. The
// conditional claim guarantees at most one in-flight payment per
// obligation even across server instances; losing the claim means a
// payment is already running.
func (h *ReimbursementHandler) InitiatePayment(c *gin.Context) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return
	}
	ctx := c.Request.Context()
	rb, err := h.rbRepo.GetByID(ctx, uint(id))
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "reimbursement not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "lookup failed"})
		return
	}
	if rb.Status != models.StatusPending {
		c.JSON(http.StatusConflict, gin.H{"error": "reimbursement is not awaiting payment"})
		return
	}

	var req initiatePaymentRequest
	_ = c.ShouldBindJSON(&req)
	account := req.Account
	if account == "" {
		account = rb.PayerAccount
	}

	reference := uuid.NewString()
	claimed, err := h.rbRepo.ClaimForPayment(ctx, rb.ID, reference)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "claim failed"})
		return
	}
	if !claimed {
		c.JSON(http.StatusConflict, gin.H{"error": "a payment is already in progress for this reimbursement"})
		return
	}

	resp, err := h.gw.InitiatePayment(ctx, gateway.InitiationRequest{
		AmountMinor: rb.TotalMinor,
		Currency:    "XOF",
		Account:     account,
		CallbackURL: h.cfg.Gateway.WebhookBaseURL + "/api/v1/webhooks/gateway",
		Reference:   reference,
		Description: "reimbursement " + strconv.FormatUint(uint64(rb.ID), 10) + " - " + rb.PartnerName,
	})
	if err != nil {
		if relErr := h.rbRepo.ReleaseClaim(ctx, rb.ID); relErr != nil {
			log.Printf("[Reimbursements] release claim %d after gateway failure: %v", rb.ID, relErr)
		}
		switch {
		case errors.Is(err, gateway.ErrRejected):
			c.JSON(http.StatusUnprocessableEntity, gin.H{"error": "gateway rejected the payment", "detail": err.Error()})
		default:
			c.JSON(http.StatusBadGateway, gin.H{"error": "gateway unavailable"})
		}
		return
	}

	rbID := rb.ID
	tx := &models.Transaction{
		PayID:           resp.PayID,
		AmountMinor:     rb.TotalMinor,
		Currency:        "XOF",
		Account:         account,
		Description:     "reimbursement " + strconv.FormatUint(uint64(rb.ID), 10),
		IdempotencyKey:  reference,
		Status:          models.StatusPending,
		ReimbursementID: &rbID,
	}
	if err := h.txRepo.Create(ctx, tx); err != nil {
		log.Printf("[Reimbursements] create transaction pay_id=%s failed: %v", resp.PayID, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to record transaction"})
		return
	}
	if err := h.rbRepo.SetPayID(ctx, rb.ID, resp.PayID); err != nil {
		log.Printf("[Reimbursements] link pay_id=%s to reimbursement %d failed: %v", resp.PayID, rb.ID, err)
	}
	log.Printf("[Reimbursements] initiated pay_id=%s for reimbursement %d amount=%d", resp.PayID, rb.ID, rb.TotalMinor)
	c.JSON(http.StatusCreated, gin.H{
		"transaction":    tx,
		"gateway_status": resp.Status,
		"message":        resp.Message,
	})
}
