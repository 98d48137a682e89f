package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"avanspay/internal/models"
	"avanspay/pkg/gateway"

	"gorm.io/gorm"
)

// fakeTransactionStore implements TransactionStore in memory with the
// same compare-and-swap semantics as the SQL repository.
type fakeTransactionStore struct {
	mu      sync.Mutex
	byID    map[uint]*models.Transaction
	onRead   func() // invoked at the start of GetByPayID, outside the lock
	postRead func() // invoked after GetByPayID has copied the row, outside the lock
	casFail  bool   // every CASUpdateStatus loses without changing the row
}

func newFakeTransactionStore() *fakeTransactionStore {
	return &fakeTransactionStore{
		byID: make(map[uint]*models.Transaction),
	}
}

func (f *fakeTransactionStore) put(tx models.Transaction) {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := tx
	f.byID[tx.ID] = &cp
}

func (f *fakeTransactionStore) GetByID(ctx context.Context, id uint) (*models.Transaction, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	tx, ok := f.byID[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	cp := *tx
	return &cp, nil
}

func (f *fakeTransactionStore) GetByPayID(ctx context.Context, payID string) (*models.Transaction, error) {
	if f.onRead != nil {
		f.onRead()
	}
	f.mu.Lock()
	var found *models.Transaction
	for _, tx := range f.byID {
		if tx.PayID == payID {
			cp := *tx
			found = &cp
			break
		}
	}
	f.mu.Unlock()
	if found == nil {
		return nil, gorm.ErrRecordNotFound
	}
	if f.postRead != nil {
		f.postRead()
	}
	return found, nil
}

func (f *fakeTransactionStore) CASUpdateStatus(ctx context.Context, id uint, expected, next models.Status, fields map[string]interface{}) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.casFail {
		return false, nil
	}
	tx, ok := f.byID[id]
	if !ok || tx.Status != expected {
		return false, nil
	}
	tx.Status = next
	if v, ok := fields["completed_at"]; ok {
		tx.CompletedAt = v.(*time.Time)
	}
	if v, ok := fields["raw_callback"]; ok {
		tx.RawCallback = v.(string)
	}
	return true, nil
}

func (f *fakeTransactionStore) ListPendingOlderThan(ctx context.Context, cutoff time.Time, limit int) ([]models.Transaction, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.Transaction
	for _, tx := range f.byID {
		if tx.Status == models.StatusPending && tx.CreatedAt.Before(cutoff) && len(out) < limit {
			out = append(out, *tx)
		}
	}
	return out, nil
}

type fakeReimbursementStore struct {
	mu       sync.Mutex
	statuses map[uint]models.Status
	claims   map[uint]bool
	settles  int
	releases int
}

func newFakeReimbursementStore() *fakeReimbursementStore {
	return &fakeReimbursementStore{
		statuses: make(map[uint]models.Status),
		claims:   make(map[uint]bool),
	}
}

func (f *fakeReimbursementStore) Settle(ctx context.Context, id uint) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.statuses[id] != models.StatusPending {
		return false, nil
	}
	f.statuses[id] = models.StatusSucceeded
	f.settles++
	return true, nil
}

func (f *fakeReimbursementStore) ReleaseClaim(ctx context.Context, id uint) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.claims[id] = false
	f.releases++
	return nil
}

type fakeHistoryStore struct {
	mu   sync.Mutex
	rows []models.TransactionHistory
	err  error
}

func (f *fakeHistoryStore) Create(ctx context.Context, h *models.TransactionHistory) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.rows = append(f.rows, *h)
	return nil
}

func (f *fakeHistoryStore) byAction(action string) []models.TransactionHistory {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.TransactionHistory
	for _, r := range f.rows {
		if r.Action == action {
			out = append(out, r)
		}
	}
	return out
}

type fakeNotifier struct {
	mu    sync.Mutex
	calls int
	err   error
}

func (f *fakeNotifier) Notify(ctx context.Context, tx *models.Transaction, outcome models.Status) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return f.err
}

func (f *fakeNotifier) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type fakeChecker struct {
	resp *gateway.StatusResponse
	err  error
}

func (f *fakeChecker) CheckStatus(ctx context.Context, payID string) (*gateway.StatusResponse, error) {
	return f.resp, f.err
}

type fixture struct {
	txs      *fakeTransactionStore
	rbs      *fakeReimbursementStore
	history  *fakeHistoryStore
	notifier *fakeNotifier
	checker  *fakeChecker
	rec      *Reconciler
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		txs:      newFakeTransactionStore(),
		rbs:      newFakeReimbursementStore(),
		history:  &fakeHistoryStore{},
		notifier: &fakeNotifier{},
		checker:  &fakeChecker{},
	}
	f.rec = NewReconciler(f.txs, f.rbs, f.history, f.notifier, f.checker, nil)
	return f
}

func pendingTransaction(id uint, payID string, amount int64) models.Transaction {
	return models.Transaction{
		ID:          id,
		PayID:       payID,
		AmountMinor: amount,
		Currency:    "XOF",
		Account:     "221771234567",
		Status:      models.StatusPending,
		CreatedAt:   time.Now().Add(-time.Hour),
	}
}

func TestReconcileMalformed(t *testing.T) {
	f := newFixture(t)
	for _, cb := range []Callback{
		{PayID: "", Status: "SUCCESS"},
		{PayID: "PAY123", Status: ""},
	} {
		if _, err := f.rec.Reconcile(context.Background(), cb); !errors.Is(err, ErrMalformedCallback) {
			t.Errorf("expected ErrMalformedCallback, got %v", err)
		}
	}
	if len(f.history.rows) != 0 {
		t.Errorf("malformed callback must not touch storage, got %d history rows", len(f.history.rows))
	}
}

func TestReconcileUnknownTransaction(t *testing.T) {
	f := newFixture(t)
	_, err := f.rec.Reconcile(context.Background(), Callback{PayID: "UNKNOWN999", Status: "SUCCESS"})
	if !errors.Is(err, ErrUnknownTransaction) {
		t.Fatalf("expected ErrUnknownTransaction, got %v", err)
	}
	if len(f.txs.byID) != 0 || len(f.history.rows) != 0 {
		t.Error("unknown pay_id must never create records")
	}
}

func TestReconcileAppliesTransition(t *testing.T) {
	f := newFixture(t)
	f.txs.put(pendingTransaction(1, "PAY123", 50000))

	out, err := f.rec.Reconcile(context.Background(), Callback{
		PayID: "PAY123", Status: "SUCCESS", Amount: 50000, Raw: `{"pay_id":"PAY123"}`,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out.Kind != OutcomeApplied || out.From != models.StatusPending || out.To != models.StatusSucceeded {
		t.Errorf("unexpected outcome: %+v", out)
	}
	stored, _ := f.txs.GetByPayID(context.Background(), "PAY123")
	if stored.Status != models.StatusSucceeded {
		t.Errorf("stored status = %s, want SUCCEEDED", stored.Status)
	}
	if stored.CompletedAt == nil {
		t.Error("completion timestamp must be set on terminal status")
	}
	if stored.RawCallback == "" {
		t.Error("raw callback payload must be stored")
	}
	if rows := f.history.byAction(models.ActionTransition); len(rows) != 1 {
		t.Fatalf("expected 1 transition history row, got %d", len(rows))
	}
	if f.notifier.count() != 1 {
		t.Errorf("expected 1 notification, got %d", f.notifier.count())
	}
}

func TestReconcileDuplicateDelivery(t *testing.T) {
	f := newFixture(t)
	f.txs.put(pendingTransaction(1, "PAY123", 50000))
	cb := Callback{PayID: "PAY123", Status: "SUCCESS", Amount: 50000}

	if _, err := f.rec.Reconcile(context.Background(), cb); err != nil {
		t.Fatalf("first delivery: %v", err)
	}
	out, err := f.rec.Reconcile(context.Background(), cb)
	if err != nil {
		t.Fatalf("second delivery must succeed: %v", err)
	}
	if out.Kind != OutcomeDuplicate {
		t.Errorf("outcome = %s, want duplicate", out.Kind)
	}
	if rows := f.history.byAction(models.ActionTransition); len(rows) != 1 {
		t.Errorf("expected exactly 1 transition row, got %d", len(rows))
	}
	if rows := f.history.byAction(models.ActionDuplicateIgnored); len(rows) != 1 {
		t.Errorf("expected 1 duplicate-tagged row, got %d", len(rows))
	}
	if f.notifier.count() != 1 {
		t.Errorf("duplicate must not trigger a second notification, got %d", f.notifier.count())
	}
}

func TestReconcileConflictingTerminalCallback(t *testing.T) {
	f := newFixture(t)
	f.txs.put(pendingTransaction(1, "PAY123", 50000))

	if _, err := f.rec.Reconcile(context.Background(), Callback{PayID: "PAY123", Status: "SUCCESS"}); err != nil {
		t.Fatalf("first delivery: %v", err)
	}
	out, err := f.rec.Reconcile(context.Background(), Callback{PayID: "PAY123", Status: "FAILED"})
	if err != nil {
		t.Fatalf("conflicting delivery must not error: %v", err)
	}
	if out.Kind != OutcomeConflict {
		t.Errorf("outcome = %s, want conflict", out.Kind)
	}
	stored, _ := f.txs.GetByPayID(context.Background(), "PAY123")
	if stored.Status != models.StatusSucceeded {
		t.Errorf("terminal status was overwritten to %s", stored.Status)
	}
	rows := f.history.byAction(models.ActionConflictIgnored)
	if len(rows) != 1 {
		t.Fatalf("expected 1 conflict-tagged row, got %d", len(rows))
	}
	if !strings.Contains(rows[0].Description, "conflicting") {
		t.Errorf("conflict row should say so: %q", rows[0].Description)
	}
}

func TestReconcileAmountMismatchProceedsAndFlags(t *testing.T) {
	f := newFixture(t)
	f.txs.put(pendingTransaction(1, "PAY123", 50000))

	out, err := f.rec.Reconcile(context.Background(), Callback{PayID: "PAY123", Status: "SUCCESS", Amount: 49000})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out.Kind != OutcomeApplied {
		t.Fatalf("mismatch must not block settlement, got %s", out.Kind)
	}
	rows := f.history.byAction(models.ActionTransition)
	if len(rows) != 1 {
		t.Fatalf("expected 1 transition row, got %d", len(rows))
	}
	if !strings.Contains(rows[0].Description, "amount mismatch") {
		t.Errorf("description must flag the mismatch: %q", rows[0].Description)
	}
	if rows[0].AmountBefore != 50000 || rows[0].AmountAfter != 49000 {
		t.Errorf("amounts recorded as %d/%d, want 50000/49000", rows[0].AmountBefore, rows[0].AmountAfter)
	}
}

func TestReconcileUnrecognizedStatusFailsWithWarning(t *testing.T) {
	f := newFixture(t)
	f.txs.put(pendingTransaction(1, "PAY123", 50000))

	out, err := f.rec.Reconcile(context.Background(), Callback{PayID: "PAY123", Status: "BANANA"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out.To != models.StatusFailed {
		t.Errorf("unrecognized status must map to FAILED, got %s", out.To)
	}
	rows := f.history.byAction(models.ActionTransition)
	if len(rows) != 1 || !strings.Contains(rows[0].Description, "unrecognized") {
		t.Errorf("history must carry the warning, rows=%+v", rows)
	}
}

func TestReconcilePendingReportIsNoop(t *testing.T) {
	f := newFixture(t)
	f.txs.put(pendingTransaction(1, "PAY123", 50000))

	out, err := f.rec.Reconcile(context.Background(), Callback{PayID: "PAY123", Status: "EN_ATTENTE"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out.Kind != OutcomePending {
		t.Errorf("outcome = %s, want pending", out.Kind)
	}
	if len(f.history.rows) != 0 {
		t.Errorf("a still-pending report is not a transition attempt, got %d rows", len(f.history.rows))
	}
	stored, _ := f.txs.GetByPayID(context.Background(), "PAY123")
	if stored.Status != models.StatusPending || stored.CompletedAt != nil {
		t.Errorf("transaction must stay untouched: %+v", stored)
	}
}

func TestReconcileSettlesLinkedReimbursement(t *testing.T) {
	f := newFixture(t)
	rbID := uint(7)
	f.rbs.statuses[rbID] = models.StatusPending
	tx := pendingTransaction(1, "PAY123", 50000)
	tx.ReimbursementID = &rbID
	f.txs.put(tx)

	if _, err := f.rec.Reconcile(context.Background(), Callback{PayID: "PAY123", Status: "SUCCESS"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if f.rbs.statuses[rbID] != models.StatusSucceeded {
		t.Errorf("reimbursement status = %s, want SUCCEEDED", f.rbs.statuses[rbID])
	}
	if f.rbs.settles != 1 {
		t.Errorf("expected 1 settle, got %d", f.rbs.settles)
	}
}

func TestReconcileFailureReleasesReimbursementClaim(t *testing.T) {
	f := newFixture(t)
	rbID := uint(7)
	f.rbs.statuses[rbID] = models.StatusPending
	tx := pendingTransaction(1, "PAY123", 50000)
	tx.ReimbursementID = &rbID
	f.txs.put(tx)

	if _, err := f.rec.Reconcile(context.Background(), Callback{PayID: "PAY123", Status: "FAILED"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if f.rbs.statuses[rbID] != models.StatusPending {
		t.Errorf("failed payment must leave the reimbursement awaiting payment, got %s", f.rbs.statuses[rbID])
	}
	if f.rbs.releases != 1 {
		t.Errorf("expected the claim released once, got %d", f.rbs.releases)
	}
}

func TestReconcileNotificationFailureDoesNotFail(t *testing.T) {
	f := newFixture(t)
	f.notifier.err = fmt.Errorf("sms gateway down")
	f.txs.put(pendingTransaction(1, "PAY123", 50000))

	out, err := f.rec.Reconcile(context.Background(), Callback{PayID: "PAY123", Status: "SUCCESS"})
	if err != nil {
		t.Fatalf("notification failure must not fail reconciliation: %v", err)
	}
	if out.Kind != OutcomeApplied {
		t.Errorf("outcome = %s, want applied", out.Kind)
	}
	stored, _ := f.txs.GetByPayID(context.Background(), "PAY123")
	if stored.Status != models.StatusSucceeded {
		t.Errorf("state transition must commit before notification, got %s", stored.Status)
	}
}

func TestReconcileConcurrentRace(t *testing.T) {
	f := newFixture(t)
	f.txs.put(pendingTransaction(1, "PAY123", 50000))
	cb := Callback{PayID: "PAY123", Status: "SUCCESS", Amount: 50000}

	// Force both reconciliations to read the PENDING row before either
	// attempts the CAS, so exactly one loses and retries.
	var barrier sync.WaitGroup
	barrier.Add(2)
	var reads int32
	f.txs.postRead = func() {
		if atomic.AddInt32(&reads, 1) <= 2 {
			barrier.Done()
			barrier.Wait()
		}
	}

	var wg sync.WaitGroup
	outcomes := make([]*ReconcileOutcome, 2)
	errs := make([]error, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			outcomes[i], errs[i] = f.rec.Reconcile(context.Background(), cb)
		}(i)
	}
	wg.Wait()

	applied, duplicates := 0, 0
	for i := 0; i < 2; i++ {
		if errs[i] != nil {
			t.Fatalf("racing reconciliation %d failed: %v", i, errs[i])
		}
		switch outcomes[i].Kind {
		case OutcomeApplied:
			applied++
		case OutcomeDuplicate:
			duplicates++
			if outcomes[i].Retries < 1 {
				t.Errorf("the losing reconciliation should have retried, retries=%d", outcomes[i].Retries)
			}
		}
	}
	if applied != 1 || duplicates != 1 {
		t.Fatalf("expected exactly one applied and one duplicate, got applied=%d duplicates=%d", applied, duplicates)
	}
	if rows := f.history.byAction(models.ActionTransition); len(rows) != 1 {
		t.Errorf("expected exactly 1 transition row, got %d", len(rows))
	}
	if f.notifier.count() != 1 {
		t.Errorf("expected exactly 1 notification, got %d", f.notifier.count())
	}
}

func TestReconcileConcurrentUpdateAfterRetriesExhausted(t *testing.T) {
	f := newFixture(t)
	f.txs.put(pendingTransaction(1, "PAY123", 50000))
	// The row stays PENDING but every update loses, as when another
	// writer keeps winning between the read and the conditional update.
	f.txs.casFail = true

	var reads int32
	f.txs.onRead = func() { atomic.AddInt32(&reads, 1) }

	_, err := f.rec.Reconcile(context.Background(), Callback{PayID: "PAY123", Status: "SUCCESS"})
	if !errors.Is(err, ErrConcurrentUpdate) {
		t.Fatalf("expected ErrConcurrentUpdate, got %v", err)
	}
	if got := atomic.LoadInt32(&reads); got != casRetryLimit {
		t.Errorf("expected %d re-reads before giving up, got %d", casRetryLimit, got)
	}
	if len(f.history.rows) != 0 {
		t.Errorf("no transition committed, so no history rows expected, got %d", len(f.history.rows))
	}
	if f.notifier.count() != 0 {
		t.Errorf("no transition committed, so no notification expected, got %d", f.notifier.count())
	}
}

func TestReconcilePolled(t *testing.T) {
	f := newFixture(t)
	f.txs.put(pendingTransaction(1, "PAY123", 50000))
	f.checker.resp = &gateway.StatusResponse{PayID: "PAY123", Status: "SUCCESS", AmountMinor: 50000}

	out, err := f.rec.ReconcilePolled(context.Background(), 1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out.Kind != OutcomeApplied || out.To != models.StatusSucceeded {
		t.Errorf("unexpected outcome: %+v", out)
	}
	rows := f.history.byAction(models.ActionTransition)
	if len(rows) != 1 || rows[0].Actor != models.ActorPoll {
		t.Errorf("polled transition must be tagged actor POLL, rows=%+v", rows)
	}
}

func TestReconcilePolledGatewayError(t *testing.T) {
	f := newFixture(t)
	f.txs.put(pendingTransaction(1, "PAY123", 50000))
	f.checker.err = fmt.Errorf("%w: status 503", gateway.ErrUnavailable)

	if _, err := f.rec.ReconcilePolled(context.Background(), 1); !errors.Is(err, gateway.ErrUnavailable) {
		t.Errorf("expected gateway error to surface, got %v", err)
	}
	stored, _ := f.txs.GetByPayID(context.Background(), "PAY123")
	if stored.Status != models.StatusPending {
		t.Errorf("a failed poll must not change state, got %s", stored.Status)
	}
}

func TestCancel(t *testing.T) {
	f := newFixture(t)
	rbID := uint(7)
	f.rbs.statuses[rbID] = models.StatusPending
	tx := pendingTransaction(1, "PAY123", 50000)
	tx.ReimbursementID = &rbID
	f.txs.put(tx)

	out, err := f.rec.Cancel(context.Background(), 1, "partner requested")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out.To != models.StatusCancelled {
		t.Errorf("outcome.To = %s, want CANCELLED", out.To)
	}
	stored, _ := f.txs.GetByPayID(context.Background(), "PAY123")
	if stored.Status != models.StatusCancelled || stored.CompletedAt == nil {
		t.Errorf("unexpected stored state: %+v", stored)
	}
	rows := f.history.byAction(models.ActionTransition)
	if len(rows) != 1 || rows[0].Actor != models.ActorAdmin {
		t.Errorf("cancel must be recorded with actor ADMIN, rows=%+v", rows)
	}
	if f.rbs.releases != 1 {
		t.Errorf("cancel must release the reimbursement claim, releases=%d", f.rbs.releases)
	}
	if f.notifier.count() != 1 {
		t.Errorf("cancel must notify exactly once, got %d", f.notifier.count())
	}

	if _, err := f.rec.Cancel(context.Background(), 1, ""); !errors.Is(err, ErrAlreadyFinal) {
		t.Errorf("second cancel must report ErrAlreadyFinal, got %v", err)
	}
}

func TestReconcileStale(t *testing.T) {
	f := newFixture(t)
	f.txs.put(pendingTransaction(1, "PAY123", 50000))
	f.checker.resp = &gateway.StatusResponse{PayID: "PAY123", Status: "SUCCESS"}

	applied := f.rec.ReconcileStale(context.Background(), time.Minute, 10)
	if applied != 1 {
		t.Fatalf("expected 1 stale transaction settled, got %d", applied)
	}
	stored, _ := f.txs.GetByPayID(context.Background(), "PAY123")
	if stored.Status != models.StatusSucceeded {
		t.Errorf("stale sweep should have settled the transaction, got %s", stored.Status)
	}
}
