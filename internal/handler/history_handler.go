package handler

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"avanspay/internal/models"
	"avanspay/internal/repository"

	"github.com/gin-gonic/gin"
)

// HistoryLister is the slice of the history repository the handler needs.
type HistoryLister interface {
	List(ctx context.Context, f repository.HistoryFilter) ([]models.TransactionHistory, error)
}

type HistoryHandler struct {
	historyRepo HistoryLister
}

func NewHistoryHandler(historyRepo HistoryLister) *HistoryHandler {
	return &HistoryHandler{historyRepo: historyRepo}
}

// List is the audit read model: every transition attempt, including
// ignored duplicates and conflicts, filterable by reimbursement, action
// and time range, paginated.
func (h *HistoryHandler) List(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))
	rbID, _ := strconv.ParseUint(c.Query("reimbursement_id"), 10, 32)
	var from, to time.Time
	if v := c.Query("from"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "from must be RFC3339"})
			return
		}
		from = t
	}
	if v := c.Query("to"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "to must be RFC3339"})
			return
		}
		to = t
	}
	rows, err := h.historyRepo.List(c.Request.Context(), repository.HistoryFilter{
		ReimbursementID: uint(rbID),
		Action:          c.Query("action"),
		From:            from,
		To:              to,
		Limit:           limit,
		Offset:          offset,
	})
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list history"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"history": rows, "limit": limit, "offset": offset})
}
