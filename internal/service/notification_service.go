package service

import (
	"context"
	"fmt"

	"avanspay/internal/models"
	"avanspay/pkg/sms"
)

// NotificationService texts the payer about the outcome of a payment.
// Delivery is best-effort: the reconciler logs and counts failures but
// never fails a reconciliation over them.
type NotificationService struct {
	sender sms.Sender
}

func NewNotificationService(sender sms.Sender) *NotificationService {
	return &NotificationService{sender: sender}
}

func (s *NotificationService) Notify(ctx context.Context, tx *models.Transaction, outcome models.Status) error {
	if tx.Account == "" {
		return nil
	}
	var msg string
	switch outcome {
	case models.StatusSucceeded:
		msg = fmt.Sprintf("Your payment of %d %s (ref %s) was received. Thank you.", tx.AmountMinor, tx.Currency, tx.PayID)
	case models.StatusFailed:
		msg = fmt.Sprintf("Your payment of %d %s (ref %s) failed. Please try again.", tx.AmountMinor, tx.Currency, tx.PayID)
	case models.StatusCancelled:
		msg = fmt.Sprintf("Your payment request (ref %s) was cancelled.", tx.PayID)
	default:
		return nil
	}
	return s.sender.Send(ctx, tx.Account, msg)
}
