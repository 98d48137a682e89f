package models

import "time"

// History actions. Ignored deliveries get their own tags so the admin
// views can tell genuine transitions from duplicates and conflicts.
const (
	ActionTransition       = "TRANSITION"
	ActionDuplicateIgnored = "DUPLICATE_IGNORED"
	ActionConflictIgnored  = "CONFLICT_IGNORED"
)

// History actors.
const (
	ActorCallback = "CALLBACK"
	ActorPoll     = "POLL"
	ActorAdmin    = "ADMIN"
)

// TransactionHistory is one append-only row per transition attempt,
// including ignored duplicates and conflicts. Rows are never updated
// or deleted.
type TransactionHistory struct {
	ID              uint      `gorm:"primaryKey" json:"id"`
	TransactionID   uint      `gorm:"not null;index" json:"transaction_id"`
	PayID           string    `gorm:"size:128;index" json:"pay_id"`
	ReimbursementID *uint     `gorm:"index" json:"reimbursement_id,omitempty"`
	Action          string    `gorm:"size:32;not null;index" json:"action"`
	Actor           string    `gorm:"size:16;not null" json:"actor"`
	FromStatus      Status    `gorm:"size:20;not null" json:"from_status"`
	ToStatus        Status    `gorm:"size:20;not null" json:"to_status"`
	AmountBefore    int64     `json:"amount_before"`
	AmountAfter     int64     `json:"amount_after"`
	Description     string    `gorm:"size:512" json:"description"`
	CreatedAt       time.Time `json:"created_at"`
}

func (TransactionHistory) TableName() string {
	return "transaction_histories"
}
