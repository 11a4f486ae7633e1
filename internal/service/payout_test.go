package service

import (
	"context"
	"errors"
	"testing"

	"github.com/koyif/cashdesk/internal/domain"
	"github.com/shopspring/decimal"
)

// Passes the Luhn check; standard test card number.
const testCardNumber = "4539148803436467"

func newTestPayoutService(store *fakeStore, gw *fakeGateway, notifier *fakeNotifier) *PayoutService {
	dir := &fakeDirectory{
		users: map[int64]*domain.User{
			testUserID: {ID: testUserID, Login: "player", GatewayUserID: testGatewayUserID},
		},
		admins: []int64{testAdminID},
	}
	return NewPayoutService(store, dir, gw, notifier)
}

func requestPayout(t *testing.T, s *PayoutService, store *fakeStore, amount int64) *domain.Payout {
	t.Helper()
	store.setBalance(testUserID, decimal.NewFromInt(1000))
	payout, err := s.Request(context.Background(), testUserID, decimal.NewFromInt(amount), domain.PaymentMethodCard, testCardNumber, "4851")
	if err != nil {
		t.Fatalf("error requesting payout: %v", err)
	}
	return payout
}

func TestRequestValidation(t *testing.T) {
	store := newFakeStore()
	store.setBalance(testUserID, decimal.NewFromInt(1000))
	s := newTestPayoutService(store, &fakeGateway{}, newFakeNotifier())
	ctx := context.Background()

	_, err := s.Request(ctx, testUserID, decimal.NewFromInt(100), "cheque", "", "")
	if !errors.Is(err, domain.ErrUnknownPaymentMethod) {
		t.Errorf("expected ErrUnknownPaymentMethod, got %v", err)
	}

	_, err = s.Request(ctx, testUserID, decimal.Zero, domain.PaymentMethodCard, testCardNumber, "")
	if !errors.Is(err, domain.ErrAmountNotPositive) {
		t.Errorf("expected ErrAmountNotPositive, got %v", err)
	}

	_, err = s.Request(ctx, testUserID, decimal.NewFromInt(100), domain.PaymentMethodCard, "4539148803436468", "")
	if !errors.Is(err, domain.ErrInvalidDestination) {
		t.Errorf("expected ErrInvalidDestination for a bad check digit, got %v", err)
	}

	_, err = s.Request(ctx, testUserID, decimal.NewFromInt(100), domain.PaymentMethodCard, "not a number", "")
	if !errors.Is(err, domain.ErrInvalidDestination) {
		t.Errorf("expected ErrInvalidDestination for a non-numeric destination, got %v", err)
	}
}

func TestRequestInsufficientFunds(t *testing.T) {
	store := newFakeStore()
	store.setBalance(testUserID, decimal.NewFromInt(50))
	s := newTestPayoutService(store, &fakeGateway{}, newFakeNotifier())

	_, err := s.Request(context.Background(), testUserID, decimal.NewFromInt(100), domain.PaymentMethodCard, testCardNumber, "")
	if !errors.Is(err, domain.ErrInsufficientFunds) {
		t.Errorf("expected ErrInsufficientFunds, got %v", err)
	}
}

func TestApprove(t *testing.T) {
	store := newFakeStore()
	gw := &fakeGateway{}
	s := newTestPayoutService(store, gw, newFakeNotifier())

	payout := requestPayout(t, s, store, 300)

	if err := s.Approve(context.Background(), payout.ID, testAdminID); err != nil {
		t.Fatalf("error approving: %v", err)
	}

	if got := store.payoutStatus(payout.ID); got != domain.PayoutStatusCompleted {
		t.Errorf("status = %s, want COMPLETED", got)
	}
	if gw.payoutCalls() != 1 {
		t.Errorf("gateway payout calls = %d, want 1", gw.payoutCalls())
	}
	if gw.lastUserID != testGatewayUserID || gw.lastCode != "4851" {
		t.Errorf("gateway called with user %d, code %q", gw.lastUserID, gw.lastCode)
	}
	if !store.balance(testUserID).Equal(decimal.NewFromInt(700)) {
		t.Errorf("balance = %s, want 700 after a single debit", store.balance(testUserID))
	}
}

func TestApproveGatewayFailureKeepsRequestRetryable(t *testing.T) {
	store := newFakeStore()
	gw := &fakeGateway{}
	s := newTestPayoutService(store, gw, newFakeNotifier())
	ctx := context.Background()

	payout := requestPayout(t, s, store, 300)

	gw.failPayouts(testGatewayError())

	err := s.Approve(ctx, payout.ID, testAdminID)
	var gatewayErr *domain.GatewayError
	if !errors.As(err, &gatewayErr) {
		t.Fatalf("expected *domain.GatewayError, got %v", err)
	}
	if got := store.payoutStatus(payout.ID); got != domain.PayoutStatusRequested {
		t.Fatalf("status after failed approve = %s, want REQUESTED", got)
	}
	if !store.balance(testUserID).Equal(decimal.NewFromInt(1000)) {
		t.Fatalf("balance changed despite gateway failure: %s", store.balance(testUserID))
	}

	gw.failPayouts(nil)

	if err := s.Approve(ctx, payout.ID, testAdminID); err != nil {
		t.Fatalf("error retrying approve: %v", err)
	}
	if !store.balance(testUserID).Equal(decimal.NewFromInt(700)) {
		t.Errorf("balance = %s, want exactly one debit to 700", store.balance(testUserID))
	}
}

func TestConcurrentApproveRedeemsCodeOnce(t *testing.T) {
	store := newFakeStore()
	gw := &fakeGateway{}
	s := newTestPayoutService(store, gw, newFakeNotifier())
	ctx := context.Background()

	payout := requestPayout(t, s, store, 300)

	entered, release := gw.blockPayouts()

	done := make(chan error, 1)
	go func() {
		done <- s.Approve(ctx, payout.ID, testAdminID)
	}()

	<-entered

	// The first approve is at the gateway; a second one must be turned away
	// before it redeems the same code again.
	if err := s.Approve(ctx, payout.ID, testAdminID); !errors.Is(err, domain.ErrFinalizeInProgress) {
		t.Errorf("expected ErrFinalizeInProgress for a concurrent approve, got %v", err)
	}
	if err := s.Cancel(ctx, payout.ID, testUserID); !errors.Is(err, domain.ErrFinalizeInProgress) {
		t.Errorf("expected ErrFinalizeInProgress for a cancel during approve, got %v", err)
	}

	close(release)
	if err := <-done; err != nil {
		t.Fatalf("error approving: %v", err)
	}

	if gw.payoutCalls() != 1 {
		t.Errorf("gateway payout calls = %d, want 1", gw.payoutCalls())
	}
	if got := store.payoutStatus(payout.ID); got != domain.PayoutStatusCompleted {
		t.Errorf("status = %s, want COMPLETED", got)
	}
	if !store.balance(testUserID).Equal(decimal.NewFromInt(700)) {
		t.Errorf("balance = %s, want a single debit to 700", store.balance(testUserID))
	}
}

func TestApproveTwice(t *testing.T) {
	store := newFakeStore()
	s := newTestPayoutService(store, &fakeGateway{}, newFakeNotifier())
	ctx := context.Background()

	payout := requestPayout(t, s, store, 300)

	if err := s.Approve(ctx, payout.ID, testAdminID); err != nil {
		t.Fatalf("error approving: %v", err)
	}
	if err := s.Approve(ctx, payout.ID, testAdminID); !errors.Is(err, domain.ErrInvalidState) {
		t.Errorf("expected ErrInvalidState on a second approve, got %v", err)
	}
	if !store.balance(testUserID).Equal(decimal.NewFromInt(700)) {
		t.Errorf("balance = %s, want a single debit to 700", store.balance(testUserID))
	}
}

func TestCancelOwnership(t *testing.T) {
	store := newFakeStore()
	s := newTestPayoutService(store, &fakeGateway{}, newFakeNotifier())
	ctx := context.Background()

	payout := requestPayout(t, s, store, 300)

	if err := s.Cancel(ctx, payout.ID, testUserID+1); !errors.Is(err, domain.ErrUnauthorized) {
		t.Errorf("expected ErrUnauthorized, got %v", err)
	}

	if err := s.Cancel(ctx, payout.ID, testUserID); err != nil {
		t.Fatalf("error cancelling: %v", err)
	}
	if got := store.payoutStatus(payout.ID); got != domain.PayoutStatusCancelled {
		t.Errorf("status = %s, want CANCELLED", got)
	}
}

func TestRejectPayout(t *testing.T) {
	store := newFakeStore()
	s := newTestPayoutService(store, &fakeGateway{}, newFakeNotifier())

	payout := requestPayout(t, s, store, 300)

	if err := s.Reject(context.Background(), payout.ID, testAdminID); err != nil {
		t.Fatalf("error rejecting: %v", err)
	}

	got, err := store.Payout(payout.ID)
	if err != nil {
		t.Fatalf("error fetching payout: %v", err)
	}
	if got.Status != domain.PayoutStatusRejected {
		t.Errorf("status = %s, want REJECTED", got.Status)
	}
	if got.AdminID == nil || *got.AdminID != testAdminID {
		t.Errorf("admin id not recorded on reject: %v", got.AdminID)
	}
}
