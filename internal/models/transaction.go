package models

import "time"

// Transaction represents one money movement attempted through the
// payment gateway. PayID is assigned by the gateway at initiation,
// exactly once, and is the idempotency key for callbacks.
type Transaction struct {
	ID              uint       `gorm:"primaryKey" json:"id"`
	PayID           string     `gorm:"size:128;uniqueIndex;not null" json:"pay_id"`
	AmountMinor     int64      `gorm:"not null" json:"amount_minor"`
	Currency        string     `gorm:"size:3;default:'XOF'" json:"currency"`
	Account         string     `gorm:"size:32;not null" json:"account"`
	Description     string     `gorm:"size:255" json:"description"`
	IdempotencyKey  string     `gorm:"size:64;uniqueIndex" json:"-"`
	Status          Status     `gorm:"size:20;not null;index" json:"status"`
	RawCallback     string     `gorm:"type:text" json:"raw_callback,omitempty"`
	ReimbursementID *uint      `gorm:"index" json:"reimbursement_id,omitempty"`
	CompletedAt     *time.Time `json:"completed_at"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`

	Reimbursement *Reimbursement `gorm:"foreignKey:ReimbursementID" json:"-"`
}

func (Transaction) TableName() string {
	return "transactions"
}
