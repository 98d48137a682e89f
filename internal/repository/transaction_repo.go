package repository

import (
	"context"
	"time"

	"avanspay/internal/models"

	"gorm.io/gorm"
)

type TransactionRepository struct {
	db *gorm.DB
}

func NewTransactionRepository(db *gorm.DB) *TransactionRepository {
	return &TransactionRepository{db: db}
}

func (r *TransactionRepository) Create(ctx context.Context, tx *models.Transaction) error {
	return r.db.WithContext(ctx).Create(tx).Error
}

func (r *TransactionRepository) GetByID(ctx context.Context, id uint) (*models.Transaction, error) {
	var tx models.Transaction
	if err := r.db.WithContext(ctx).First(&tx, id).Error; err != nil {
		return nil, err
	}
	return &tx, nil
}

func (r *TransactionRepository) GetByPayID(ctx context.Context, payID string) (*models.Transaction, error) {
	var tx models.Transaction
	if err := r.db.WithContext(ctx).Where("pay_id = ?", payID).First(&tx).Error; err != nil {
		return nil, err
	}
	return &tx, nil
}

// CASUpdateStatus performs the single atomic state transition: the UPDATE
// only matches while the row still holds the expected status, so of two
// racing reconciliations at most one wins. Returns false when zero rows
// were affected (the caller re-reads and retries).
func (r *TransactionRepository) CASUpdateStatus(ctx context.Context, id uint, expected, next models.Status, fields map[string]interface{}) (bool, error) {
	updates := map[string]interface{}{"status": next}
	for k, v := range fields {
		updates[k] = v
	}
	res := r.db.WithContext(ctx).Model(&models.Transaction{}).
		Where("id = ? AND status = ?", id, expected).
		Updates(updates)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// LinkedReimbursement returns the reimbursement the transaction settles,
// or nil when the transaction is stand-alone.
func (r *TransactionRepository) LinkedReimbursement(ctx context.Context, tx *models.Transaction) (*models.Reimbursement, error) {
	if tx.ReimbursementID == nil {
		return nil, nil
	}
	var rb models.Reimbursement
	if err := r.db.WithContext(ctx).First(&rb, *tx.ReimbursementID).Error; err != nil {
		return nil, err
	}
	return &rb, nil
}

func (r *TransactionRepository) List(ctx context.Context, status models.Status, limit, offset int) ([]models.Transaction, error) {
	q := r.db.WithContext(ctx).Model(&models.Transaction{}).Order("created_at DESC")
	if status != "" {
		q = q.Where("status = ?", status)
	}
	var txs []models.Transaction
	if err := q.Limit(limit).Offset(offset).Find(&txs).Error; err != nil {
		return nil, err
	}
	return txs, nil
}

// ListPendingOlderThan feeds the polling sweep: transactions whose callback
// never arrived and that have been PENDING since before the cutoff.
func (r *TransactionRepository) ListPendingOlderThan(ctx context.Context, cutoff time.Time, limit int) ([]models.Transaction, error) {
	var txs []models.Transaction
	err := r.db.WithContext(ctx).
		Where("status = ? AND created_at < ?", models.StatusPending, cutoff).
		Order("created_at ASC").
		Limit(limit).
		Find(&txs).Error
	if err != nil {
		return nil, err
	}
	return txs, nil
}
