package repository

import (
	"context"
	"time"

	"avanspay/internal/models"

	"gorm.io/gorm"
)

type ReimbursementRepository struct {
	db *gorm.DB
}

func NewReimbursementRepository(db *gorm.DB) *ReimbursementRepository {
	return &ReimbursementRepository{db: db}
}

func (r *ReimbursementRepository) Create(ctx context.Context, rb *models.Reimbursement) error {
	return r.db.WithContext(ctx).Create(rb).Error
}

func (r *ReimbursementRepository) GetByID(ctx context.Context, id uint) (*models.Reimbursement, error) {
	var rb models.Reimbursement
	if err := r.db.WithContext(ctx).First(&rb, id).Error; err != nil {
		return nil, err
	}
	return &rb, nil
}

func (r *ReimbursementRepository) List(ctx context.Context, status models.Status, limit, offset int) ([]models.Reimbursement, error) {
	q := r.db.WithContext(ctx).Model(&models.Reimbursement{}).Order("due_date ASC")
	if status != "" {
		q = q.Where("status = ?", status)
	}
	var rbs []models.Reimbursement
	if err := q.Limit(limit).Offset(offset).Find(&rbs).Error; err != nil {
		return nil, err
	}
	return rbs, nil
}

// ClaimForPayment marks the reimbursement as having a payment in flight.
// The conditional WHERE enforces at-most-one in-flight payment per
// obligation even with multiple server instances: only one caller can
// move pay_id from NULL to a reference.
func (r *ReimbursementRepository) ClaimForPayment(ctx context.Context, id uint, reference string) (bool, error) {
	res := r.db.WithContext(ctx).Model(&models.Reimbursement{}).
		Where("id = ? AND status = ? AND pay_id IS NULL", id, models.StatusPending).
		Update("pay_id", reference)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// SetPayID replaces the provisional claim reference with the external id
// the gateway assigned at initiation.
func (r *ReimbursementRepository) SetPayID(ctx context.Context, id uint, payID string) error {
	return r.db.WithContext(ctx).Model(&models.Reimbursement{}).
		Where("id = ?", id).
		Update("pay_id", payID).Error
}

// ReleaseClaim clears the in-flight link after a FAILED or CANCELLED
// payment, making the reimbursement eligible for a new attempt.
func (r *ReimbursementRepository) ReleaseClaim(ctx context.Context, id uint) error {
	return r.db.WithContext(ctx).Model(&models.Reimbursement{}).
		Where("id = ?", id).
		Update("pay_id", nil).Error
}

// Settle moves the reimbursement to SUCCEEDED, guarded the same way as
// the transaction update so a concurrent settle cannot double-apply.
func (r *ReimbursementRepository) Settle(ctx context.Context, id uint) (bool, error) {
	now := time.Now()
	res := r.db.WithContext(ctx).Model(&models.Reimbursement{}).
		Where("id = ? AND status = ?", id, models.StatusPending).
		Updates(map[string]interface{}{"status": models.StatusSucceeded, "settled_at": &now})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}
