package models

import "time"

// Reimbursement is an obligation a partner owes the platform. It may be
// settled by at most one in-flight transaction at a time: PayID acts as
// the claim, set by a conditional update when a payment is initiated and
// cleared again when that payment fails or is cancelled.
type Reimbursement struct {
	ID             uint       `gorm:"primaryKey" json:"id"`
	PartnerName    string     `gorm:"size:128;not null" json:"partner_name"`
	PayerAccount   string     `gorm:"size:32;not null" json:"payer_account"`
	PrincipalMinor int64      `gorm:"not null" json:"principal_minor"`
	FeeMinor       int64      `gorm:"not null" json:"fee_minor"`
	TotalMinor     int64      `gorm:"not null" json:"total_minor"`
	Status         Status     `gorm:"size:20;not null;index" json:"status"`
	DueDate        time.Time  `json:"due_date"`
	PayID          *string    `gorm:"size:128;uniqueIndex" json:"pay_id,omitempty"`
	SettledAt      *time.Time `json:"settled_at"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
}

func (Reimbursement) TableName() string {
	return "reimbursements"
}
