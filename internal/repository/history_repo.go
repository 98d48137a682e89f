package repository

import (
	"context"
	"time"

	"avanspay/internal/models"

	"gorm.io/gorm"
)

// HistoryFilter narrows the audit read model. Zero values mean "any".
type HistoryFilter struct {
	ReimbursementID uint
	Action          string
	From            time.Time
	To              time.Time
	Limit           int
	Offset          int
}

// HistoryRepository is append-only: rows are never updated or deleted.
type HistoryRepository struct {
	db *gorm.DB
}

func NewHistoryRepository(db *gorm.DB) *HistoryRepository {
	return &HistoryRepository{db: db}
}

func (r *HistoryRepository) Create(ctx context.Context, h *models.TransactionHistory) error {
	return r.db.WithContext(ctx).Create(h).Error
}

func (r *HistoryRepository) List(ctx context.Context, f HistoryFilter) ([]models.TransactionHistory, error) {
	limit := f.Limit
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	q := r.db.WithContext(ctx).Model(&models.TransactionHistory{}).Order("created_at DESC")
	if f.ReimbursementID != 0 {
		q = q.Where("reimbursement_id = ?", f.ReimbursementID)
	}
	if f.Action != "" {
		q = q.Where("action = ?", f.Action)
	}
	if !f.From.IsZero() {
		q = q.Where("created_at >= ?", f.From)
	}
	if !f.To.IsZero() {
		q = q.Where("created_at <= ?", f.To)
	}
	var rows []models.TransactionHistory
	if err := q.Limit(limit).Offset(f.Offset).Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}
