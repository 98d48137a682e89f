package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"avanspay/internal/metrics"
	"avanspay/internal/models"
	"avanspay/pkg/gateway"

	"gorm.io/gorm"
)

// casRetryLimit bounds the re-read/retry loop when a concurrent
// reconciliation wins the row update first.
const casRetryLimit = 3

// TransactionStore is the persistence contract the reconciler needs.
// Satisfied by repository.TransactionRepository; tests use an in-memory
// fake. No delete operation exists on this contract.
type TransactionStore interface {
	GetByID(ctx context.Context, id uint) (*models.Transaction, error)
	GetByPayID(ctx context.Context, payID string) (*models.Transaction, error)
	CASUpdateStatus(ctx context.Context, id uint, expected, next models.Status, fields map[string]interface{}) (bool, error)
	ListPendingOlderThan(ctx context.Context, cutoff time.Time, limit int) ([]models.Transaction, error)
}

type ReimbursementStore interface {
	Settle(ctx context.Context, id uint) (bool, error)
	ReleaseClaim(ctx context.Context, id uint) error
}

type HistoryStore interface {
	Create(ctx context.Context, h *models.TransactionHistory) error
}

// Notifier is the fire-and-forget outcome sink. Its failure is logged
// and counted, never escalated: the financial state transition is the
// source of truth, notification is advisory.
type Notifier interface {
	Notify(ctx context.Context, tx *models.Transaction, outcome models.Status) error
}

// StatusChecker is the slice of the gateway the polled variant needs.
type StatusChecker interface {
	CheckStatus(ctx context.Context, payID string) (*gateway.StatusResponse, error)
}

// Callback is the normalized inbound report, whether it arrived over the
// webhook or from a polled status query.
type Callback struct {
	PayID   string
	Status  string
	Amount  int64
	Message string
	Account string
	Raw     string
	Actor   string
}

// Reconciliation outcomes.
const (
	OutcomeApplied   = "applied"
	OutcomeDuplicate = "duplicate"
	OutcomeConflict  = "conflict"
	OutcomePending   = "pending"
)

type ReconcileOutcome struct {
	Kind        string
	From        models.Status
	To          models.Status
	Retries     int
	Transaction *models.Transaction
}

// Reconciler turns an inbound callback or a polled status into a
// validated, idempotent state transition on the stored transaction and,
// if linked, its reimbursement.
type Reconciler struct {
	transactions   TransactionStore
	reimbursements ReimbursementStore
	history        HistoryStore
	notifier       Notifier
	gateway        StatusChecker
	metrics        *metrics.ReconcilerMetrics
}

func NewReconciler(
	transactions TransactionStore,
	reimbursements ReimbursementStore,
	history HistoryStore,
	notifier Notifier,
	gw StatusChecker,
	m *metrics.ReconcilerMetrics,
) *Reconciler {
	return &Reconciler{
		transactions:   transactions,
		reimbursements: reimbursements,
		history:        history,
		notifier:       notifier,
		gateway:        gw,
		metrics:        m,
	}
}

// Reconcile applies one reported status to the stored transaction.
// Safe to call repeatedly and concurrently for the same pay_id:
// correctness comes from the store's compare-and-swap update, not from
// an application-level lock.
func (s *Reconciler) Reconcile(ctx context.Context, cb Callback) (*ReconcileOutcome, error) {
	start := time.Now()
	defer func() { s.metrics.ObserveReconcileDuration(time.Since(start).Seconds()) }()

	if cb.PayID == "" || cb.Status == "" {
		return nil, ErrMalformedCallback
	}
	if cb.Actor == "" {
		cb.Actor = models.ActorCallback
	}
	mapped, known := models.FromGatewayStatus(cb.Status)
	warn := ""
	if !known {
		// Gateway vocabularies are not contractually guaranteed; an
		// unrecognized value fails the payment instead of crashing.
		warn = fmt.Sprintf("unrecognized gateway status %q treated as FAILED; ", cb.Status)
		log.Printf("[Reconciler] pay_id=%s: %s", cb.PayID, warn)
	}

	for attempt := 0; attempt < casRetryLimit; attempt++ {
		tx, err := s.transactions.GetByPayID(ctx, cb.PayID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				log.Printf("[Reconciler] dropping callback for unknown pay_id=%s reported=%s", cb.PayID, cb.Status)
				return nil, ErrUnknownTransaction
			}
			return nil, err
		}

		if tx.Status.Terminal() {
			out, err := s.recordIgnored(ctx, tx, cb, mapped)
			if err == nil {
				out.Retries = attempt
			}
			return out, err
		}

		if mapped == models.StatusPending {
			// Not a transition attempt: the gateway just confirmed the
			// payment is still in flight.
			s.metrics.RecordReconciliation(OutcomePending)
			return &ReconcileOutcome{Kind: OutcomePending, From: tx.Status, To: tx.Status, Transaction: tx, Retries: attempt}, nil
		}

		now := time.Now()
		fields := map[string]interface{}{"completed_at": &now}
		if cb.Raw != "" {
			fields["raw_callback"] = cb.Raw
		}
		won, err := s.transactions.CASUpdateStatus(ctx, tx.ID, tx.Status, mapped, fields)
		if err != nil {
			return nil, err
		}
		if !won {
			s.metrics.RecordCASRetry()
			continue
		}

		from := tx.Status
		tx.Status = mapped
		tx.CompletedAt = &now
		if cb.Raw != "" {
			tx.RawCallback = cb.Raw
		}
		desc, amountAfter := s.describeCallback(tx, cb, warn)
		s.finishTransition(ctx, tx, cb.Actor, from, mapped, amountAfter, desc)
		s.metrics.RecordReconciliation(OutcomeApplied)
		return &ReconcileOutcome{Kind: OutcomeApplied, From: from, To: mapped, Transaction: tx, Retries: attempt}, nil
	}
	s.metrics.RecordReconciliation("error")
	return nil, ErrConcurrentUpdate
}

// recordIgnored handles redeliveries after finality. Identical reports
// are duplicates (webhook senders commonly retry); diverging reports are
// conflicts. Either way the stored terminal status is never overwritten
// and no notification is sent, but an audit row is appended so the
// dashboards can show what the gateway claimed.
func (s *Reconciler) recordIgnored(ctx context.Context, tx *models.Transaction, cb Callback, mapped models.Status) (*ReconcileOutcome, error) {
	action := models.ActionDuplicateIgnored
	desc := fmt.Sprintf("ignored duplicate delivery reporting %s", mapped)
	if mapped != tx.Status {
		action = models.ActionConflictIgnored
		desc = fmt.Sprintf("ignored conflicting terminal callback: stored %s, reported %s (%q)", tx.Status, cb.Status, cb.Message)
		log.Printf("[Reconciler] conflicting callback for pay_id=%s: stored=%s reported=%s", cb.PayID, tx.Status, cb.Status)
	}
	s.appendHistory(ctx, tx, action, cb.Actor, tx.Status, tx.Status, tx.AmountMinor, desc)
	kind := OutcomeDuplicate
	if action == models.ActionConflictIgnored {
		kind = OutcomeConflict
	}
	s.metrics.RecordReconciliation(kind)
	return &ReconcileOutcome{Kind: kind, From: tx.Status, To: tx.Status, Transaction: tx}, nil
}

// describeCallback builds the audit description for a callback-driven
// transition and applies the proceed-and-flag amount policy: the
// initiation amount stays the store of record, the discrepancy goes to
// the audit trail for review.
func (s *Reconciler) describeCallback(tx *models.Transaction, cb Callback, warn string) (string, int64) {
	desc := warn + fmt.Sprintf("%s reported %s", cb.Actor, cb.Status)
	amountAfter := tx.AmountMinor
	if cb.Amount > 0 && cb.Amount != tx.AmountMinor {
		amountAfter = cb.Amount
		desc += fmt.Sprintf("; amount mismatch: callback reported %d, stored %d", cb.Amount, tx.AmountMinor)
		log.Printf("[Reconciler] amount mismatch for pay_id=%s: callback=%d stored=%d", tx.PayID, cb.Amount, tx.AmountMinor)
	}
	if cb.Message != "" {
		desc += fmt.Sprintf("; gateway message: %q", cb.Message)
	}
	return desc, amountAfter
}

// finishTransition runs the post-commit side effects: audit row,
// reimbursement propagation, notification. The status update is already
// durable; none of these may fail the reconciliation. Shared by the
// callback, polled and administrative paths.
func (s *Reconciler) finishTransition(ctx context.Context, tx *models.Transaction, actor string, from, to models.Status, amountAfter int64, desc string) {
	s.appendHistory(ctx, tx, models.ActionTransition, actor, from, to, amountAfter, desc)

	if tx.ReimbursementID != nil {
		s.propagateToReimbursement(ctx, tx, to)
	}

	if s.notifier != nil {
		if err := s.notifier.Notify(ctx, tx, to); err != nil {
			s.metrics.RecordNotificationFailure()
			log.Printf("[Reconciler] notification failed for pay_id=%s: %v", tx.PayID, err)
		}
	}
}

func (s *Reconciler) propagateToReimbursement(ctx context.Context, tx *models.Transaction, to models.Status) {
	rbID := *tx.ReimbursementID
	switch to {
	case models.StatusSucceeded:
		settled, err := s.reimbursements.Settle(ctx, rbID)
		if err != nil {
			log.Printf("[Reconciler] settle reimbursement %d failed: %v", rbID, err)
		} else if !settled {
			log.Printf("[Reconciler] reimbursement %d already out of PENDING, settle skipped", rbID)
		}
	case models.StatusFailed, models.StatusCancelled:
		// The obligation stays open and becomes eligible for a fresh
		// payment attempt.
		if err := s.reimbursements.ReleaseClaim(ctx, rbID); err != nil {
			log.Printf("[Reconciler] release reimbursement %d failed: %v", rbID, err)
		}
	}
}

func (s *Reconciler) appendHistory(ctx context.Context, tx *models.Transaction, action, actor string, from, to models.Status, amountAfter int64, desc string) {
	h := &models.TransactionHistory{
		TransactionID:   tx.ID,
		PayID:           tx.PayID,
		ReimbursementID: tx.ReimbursementID,
		Action:          action,
		Actor:           actor,
		FromStatus:      from,
		ToStatus:        to,
		AmountBefore:    tx.AmountMinor,
		AmountAfter:     amountAfter,
		Description:     desc,
	}
	if err := s.history.Create(ctx, h); err != nil {
		log.Printf("[Reconciler] history append failed for pay_id=%s: %v", tx.PayID, err)
	}
}

// ReconcilePolled queries the gateway for the transaction's current
// status and feeds the answer through the same algorithm as an inbound
// callback. This recovers transactions whose callback never arrived.
func (s *Reconciler) ReconcilePolled(ctx context.Context, txID uint) (*ReconcileOutcome, error) {
	tx, err := s.transactions.GetByID(ctx, txID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUnknownTransaction
		}
		return nil, err
	}
	st, err := s.gateway.CheckStatus(ctx, tx.PayID)
	if err != nil {
		return nil, err
	}
	return s.Reconcile(ctx, Callback{
		PayID:   tx.PayID,
		Status:  st.Status,
		Amount:  st.AmountMinor,
		Message: st.Message,
		Actor:   models.ActorPoll,
	})
}

// Cancel is the administrative PENDING -> CANCELLED transition. It goes
// through the same store contract and CAS guard as callback-driven
// transitions.
func (s *Reconciler) Cancel(ctx context.Context, txID uint, reason string) (*ReconcileOutcome, error) {
	tx, err := s.transactions.GetByID(ctx, txID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUnknownTransaction
		}
		return nil, err
	}
	if tx.Status.Terminal() {
		return nil, ErrAlreadyFinal
	}
	now := time.Now()
	won, err := s.transactions.CASUpdateStatus(ctx, tx.ID, tx.Status, models.StatusCancelled, map[string]interface{}{"completed_at": &now})
	if err != nil {
		return nil, err
	}
	if !won {
		// A callback settled the transaction between read and update.
		return nil, ErrAlreadyFinal
	}
	from := tx.Status
	tx.Status = models.StatusCancelled
	tx.CompletedAt = &now
	desc := "cancelled by administrator"
	if reason != "" {
		desc += ": " + reason
	}
	s.finishTransition(ctx, tx, models.ActorAdmin, from, models.StatusCancelled, tx.AmountMinor, desc)
	s.metrics.RecordReconciliation(OutcomeApplied)
	return &ReconcileOutcome{Kind: OutcomeApplied, From: from, To: models.StatusCancelled, Transaction: tx}, nil
}

// ReconcileStale polls every transaction stuck in PENDING since before
// the cutoff. Called from the background sweep; errors are logged per
// transaction so one bad row cannot stall the rest.
func (s *Reconciler) ReconcileStale(ctx context.Context, olderThan time.Duration, limit int) int {
	cutoff := time.Now().Add(-olderThan)
	txs, err := s.transactions.ListPendingOlderThan(ctx, cutoff, limit)
	if err != nil {
		log.Printf("[Reconciler] stale sweep query failed: %v", err)
		return 0
	}
	applied := 0
	for _, tx := range txs {
		out, err := s.ReconcilePolled(ctx, tx.ID)
		if err != nil {
			log.Printf("[Reconciler] stale sweep pay_id=%s: %v", tx.PayID, err)
			continue
		}
		if out.Kind == OutcomeApplied {
			applied++
		}
	}
	if len(txs) > 0 {
		log.Printf("[Reconciler] stale sweep: %d checked, %d settled", len(txs), applied)
	}
	return applied
}
