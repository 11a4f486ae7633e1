package service

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/koyif/cashdesk/internal/domain"
	"github.com/koyif/cashdesk/pkg/dto"
	"github.com/koyif/cashdesk/pkg/logger"
	"github.com/shopspring/decimal"
	"github.com/theplant/luhn"
)

type payoutRepository interface {
	CreatePayout(userID int64, amount decimal.Decimal, method domain.PaymentMethod, destination, code string) (*domain.Payout, error)
	Payout(id int64) (*domain.Payout, error)
	PayoutsByUser(userID int64) ([]domain.Payout, error)
	PayoutsByStatus(status domain.PayoutStatus) ([]domain.Payout, error)
	TransitionPayout(id int64, from, to domain.PayoutStatus, adminID *int64) (bool, error)
	CompletePayout(id, adminID int64) error
	Balance(userID int64) (*domain.Balance, error)
}

type payoutGateway interface {
	Payout(ctx context.Context, userID int64, code string) (*dto.GatewayPayoutResponse, error)
}

// PayoutService owns payout requests: the user asks, an admin approves, the
// gateway pays out against the redemption code, the tracked balance is
// debited. Transitions on one request are serialized through a per-record
// mutex; the record lock is not held across the gateway call, an in-flight
// marker keeps a second approve or a cancel from redeeming the same code
// twice.
type PayoutService struct {
	repo     payoutRepository
	users    userDirectory
	gateway  payoutGateway
	notifier Notifier

	mu        sync.Mutex
	locks     map[int64]*sync.Mutex
	approving map[int64]struct{}
}

func NewPayoutService(repo payoutRepository, users userDirectory, gateway payoutGateway, notifier Notifier) *PayoutService {
	return &PayoutService{
		repo:      repo,
		users:     users,
		gateway:   gateway,
		notifier:  notifier,
		locks:     map[int64]*sync.Mutex{},
		approving: map[int64]struct{}{},
	}
}

// Request opens a payout request after checking the amount against the
// tracked balance. Card destinations must pass the Luhn check.
func (s *PayoutService) Request(ctx context.Context, userID int64, amount decimal.Decimal, method domain.PaymentMethod, destination, code string) (*domain.Payout, error) {
	if !method.Valid() {
		return nil, fmt.Errorf("%w: %s", domain.ErrUnknownPaymentMethod, method)
	}

	if amount.LessThanOrEqual(decimal.Zero) {
		return nil, domain.ErrAmountNotPositive
	}

	if method == domain.PaymentMethodCard && !validCardNumber(destination) {
		return nil, fmt.Errorf("%w: card number failed validation", domain.ErrInvalidDestination)
	}

	balance, err := s.repo.Balance(userID)
	if err != nil {
		return nil, err
	}

	if balance.Current.LessThan(amount) {
		logger.Log.Warn("insufficient funds for payout request",
			logger.Int64("user_id", userID),
			logger.String("amount", amount.String()),
			logger.String("balance", balance.Current.String()),
		)
		return nil, domain.ErrInsufficientFunds
	}

	payout, err := s.repo.CreatePayout(userID, amount, method, destination, code)
	if err != nil {
		return nil, err
	}

	s.notifyAdmins(ctx, fmt.Sprintf(
		"new payout request #%d: user %d, %s via %s",
		payout.ID, userID, amount, method,
	))

	return payout, nil
}

// Approve redeems the payout through the gateway and debits the balance. On a
// gateway failure the request stays REQUESTED, so Approve can be retried. The
// gateway redeems the code at most once: a concurrent approve is rejected
// before the call, not after it.
func (s *PayoutService) Approve(ctx context.Context, id, adminID int64) error {
	unlock := s.lockRecord(id)

	payout, err := s.repo.Payout(id)
	if err != nil {
		unlock()
		return err
	}

	if payout.Status != domain.PayoutStatusRequested {
		unlock()
		return fmt.Errorf("%w: payout #%d is %s", domain.ErrInvalidState, id, payout.Status)
	}

	if !s.beginApprove(id) {
		unlock()
		return domain.ErrFinalizeInProgress
	}
	defer s.endApprove(id)

	unlock()

	user, err := s.users.UserByID(payout.UserID)
	if err != nil {
		return err
	}

	_, err = s.gateway.Payout(ctx, user.GatewayUserID, payout.Code)
	if err != nil {
		logger.Log.Error("gateway payout failed",
			logger.Int64("payout_id", id),
			logger.Int64("user_id", payout.UserID),
			logger.Error(err),
		)
		s.notifier.Notify(ctx, payout.UserID, fmt.Sprintf(
			"payout #%d could not be processed, please try again later or contact support",
			id,
		))
		return err
	}

	unlock = s.lockRecord(id)
	err = s.repo.CompletePayout(id, adminID)
	unlock()

	if err != nil {
		return err
	}

	s.notifier.Notify(ctx, payout.UserID, fmt.Sprintf("payout #%d completed, %s paid out", id, payout.Amount))

	return nil
}

func (s *PayoutService) Reject(ctx context.Context, id, adminID int64) error {
	unlock := s.lockRecord(id)

	payout, err := s.repo.Payout(id)
	if err != nil {
		unlock()
		return err
	}

	if s.isApproving(id) {
		unlock()
		return domain.ErrFinalizeInProgress
	}

	ok, err := s.repo.TransitionPayout(id, domain.PayoutStatusRequested, domain.PayoutStatusRejected, &adminID)
	if err != nil {
		unlock()
		return err
	}
	if !ok {
		unlock()
		return fmt.Errorf("%w: payout #%d is %s", domain.ErrInvalidState, id, payout.Status)
	}

	unlock()

	s.notifier.Notify(ctx, payout.UserID, fmt.Sprintf("payout #%d rejected by the operator", id))

	return nil
}

func (s *PayoutService) Cancel(ctx context.Context, id, userID int64) error {
	unlock := s.lockRecord(id)
	defer unlock()

	payout, err := s.repo.Payout(id)
	if err != nil {
		return err
	}

	if payout.UserID != userID {
		return domain.ErrUnauthorized
	}

	if s.isApproving(id) {
		return domain.ErrFinalizeInProgress
	}

	ok, err := s.repo.TransitionPayout(id, domain.PayoutStatusRequested, domain.PayoutStatusCancelled, nil)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: payout #%d is %s", domain.ErrInvalidState, id, payout.Status)
	}

	return nil
}

func (s *PayoutService) Payouts(userID int64) ([]domain.Payout, error) {
	return s.repo.PayoutsByUser(userID)
}

func (s *PayoutService) PayoutsByStatus(status domain.PayoutStatus) ([]domain.Payout, error) {
	return s.repo.PayoutsByStatus(status)
}

func (s *PayoutService) notifyAdmins(ctx context.Context, message string) {
	adminIDs, err := s.users.AdminIDs()
	if err != nil {
		logger.Log.Error("error fetching admins", logger.Error(err))
		return
	}

	for _, adminID := range adminIDs {
		s.notifier.Notify(ctx, adminID, message)
	}
}

func (s *PayoutService) lockRecord(id int64) func() {
	s.mu.Lock()
	m, ok := s.locks[id]
	if !ok {
		m = &sync.Mutex{}
		s.locks[id] = m
	}
	s.mu.Unlock()

	m.Lock()
	return m.Unlock
}

func (s *PayoutService) beginApprove(id int64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.approving[id]; ok {
		return false
	}
	s.approving[id] = struct{}{}
	return true
}

func (s *PayoutService) endApprove(id int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.approving, id)
}

func (s *PayoutService) isApproving(id int64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.approving[id]
	return ok
}

func validCardNumber(destination string) bool {
	digits := strings.ReplaceAll(strings.TrimSpace(destination), " ", "")
	number, err := strconv.Atoi(digits)
	if err != nil {
		return false
	}

	return luhn.Valid(number)
}
