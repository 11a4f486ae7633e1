package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/koyif/cashdesk/internal/domain"
	"github.com/koyif/cashdesk/pkg/dto"
	"github.com/koyif/cashdesk/pkg/logger"
	"github.com/shopspring/decimal"
)

type depositRepository interface {
	CreateDeposit(userID int64, amount decimal.Decimal, method domain.PaymentMethod) (*domain.Deposit, error)
	Deposit(id int64) (*domain.Deposit, error)
	DepositsByUser(userID int64) ([]domain.Deposit, error)
	DepositsByStatus(status domain.DepositStatus) ([]domain.Deposit, error)
	LatestDepositInStatus(userID int64, status domain.DepositStatus) (*domain.Deposit, error)
	AttachInstructions(id int64, text string, adminID int64) error
	SubmitProof(id int64, artifactRef string) error
	TransitionDeposit(id int64, from, to domain.DepositStatus, adminID *int64) (bool, error)
	CompleteDeposit(id, adminID int64) error
	OverdueInstructionDeposits(cutoff time.Time) ([]domain.Deposit, error)
}

type depositGateway interface {
	Deposit(ctx context.Context, userID int64, amount decimal.Decimal) (*dto.GatewayDepositResponse, error)
}

type userDirectory interface {
	UserByID(id int64) (*domain.User, error)
	AdminIDs() ([]int64, error)
}

// Notifier is the messaging-transport collaborator. Both calls are
// best-effort and must never block a state transition.
type Notifier interface {
	Notify(ctx context.Context, recipient int64, message string)
	DeliverArtifact(ctx context.Context, recipient int64, artifactRef, caption string)
}

// DepositService owns the deposit state machine. Transitions on one record are
// serialized through a per-record mutex; the timeout watchdog and the overdue
// sweep go through a conditional compare-and-transition on the stored record,
// so a timer firing late can never clobber a transition the user or an admin
// already made.
type DepositService struct {
	repo     depositRepository
	users    userDirectory
	gateway  depositGateway
	notifier Notifier

	minDeposit decimal.Decimal
	timeout    time.Duration

	mu         sync.Mutex
	locks      map[int64]*sync.Mutex
	timers     map[int64]*time.Timer
	finalizing map[int64]struct{}
}

func NewDepositService(repo depositRepository, users userDirectory, gateway depositGateway, notifier Notifier, minDeposit decimal.Decimal, timeout time.Duration) *DepositService {
	return &DepositService{
		repo:       repo,
		users:      users,
		gateway:    gateway,
		notifier:   notifier,
		minDeposit: minDeposit,
		timeout:    timeout,
		locks:      map[int64]*sync.Mutex{},
		timers:     map[int64]*time.Timer{},
		finalizing: map[int64]struct{}{},
	}
}

// Create opens a new deposit in AWAITING_PAYMENT and tells the admins about
// it.
func (s *DepositService) Create(ctx context.Context, userID int64, amount decimal.Decimal, method domain.PaymentMethod) (*domain.Deposit, error) {
	if !method.Valid() {
		return nil, fmt.Errorf("%w: %s", domain.ErrUnknownPaymentMethod, method)
	}

	if amount.LessThan(s.minDeposit) {
		return nil, fmt.Errorf("%w: minimum is %s", domain.ErrAmountBelowMinimum, s.minDeposit)
	}

	deposit, err := s.repo.CreateDeposit(userID, amount, method)
	if err != nil {
		return nil, err
	}

	s.notifyAdmins(ctx, fmt.Sprintf(
		"new deposit #%d: user %d, %s via %s",
		deposit.ID, userID, amount, method,
	))

	return deposit, nil
}

// AttachInstructions delivers the admin's payment details to the requester
// and arms the payment timeout.
func (s *DepositService) AttachInstructions(ctx context.Context, id int64, text string, adminID int64) error {
	unlock := s.lockRecord(id)

	deposit, err := s.repo.Deposit(id)
	if err != nil {
		unlock()
		return err
	}

	if deposit.Status != domain.DepositStatusAwaitingPayment {
		unlock()
		return fmt.Errorf("%w: deposit #%d is %s", domain.ErrInvalidState, id, deposit.Status)
	}

	if err := s.repo.AttachInstructions(id, text, adminID); err != nil {
		unlock()
		return err
	}

	s.armTimer(id)
	unlock()

	s.notifier.Notify(ctx, deposit.UserID, fmt.Sprintf(
		"deposit #%d: pay %s within %s\n%s",
		id, deposit.Amount, s.timeout, text,
	))

	return nil
}

// ConfirmPaid records the requester's "I paid" and disarms the timeout.
func (s *DepositService) ConfirmPaid(ctx context.Context, id, userID int64) error {
	unlock := s.lockRecord(id)

	deposit, err := s.repo.Deposit(id)
	if err != nil {
		unlock()
		return err
	}

	if deposit.UserID != userID {
		unlock()
		return domain.ErrUnauthorized
	}

	ok, err := s.repo.TransitionDeposit(id, domain.DepositStatusInstructionsSent, domain.DepositStatusConfirmedPaid, nil)
	if err != nil {
		unlock()
		return err
	}
	if !ok {
		unlock()
		return fmt.Errorf("%w: deposit #%d is %s", domain.ErrInvalidState, id, deposit.Status)
	}

	s.stopTimer(id)
	unlock()

	s.notifyAdmins(ctx, fmt.Sprintf(
		"deposit #%d: user %d confirmed payment of %s, awaiting proof",
		id, userID, deposit.Amount,
	))

	return nil
}

// SubmitProof attaches the payment proof and forwards it to the admins. With
// id 0 the upload is matched to the requester's newest deposit awaiting a
// proof.
func (s *DepositService) SubmitProof(ctx context.Context, id, userID int64, artifactRef string) error {
	if id == 0 {
		deposit, err := s.repo.LatestDepositInStatus(userID, domain.DepositStatusConfirmedPaid)
		if err != nil {
			return err
		}
		id = deposit.ID
	}

	unlock := s.lockRecord(id)

	deposit, err := s.repo.Deposit(id)
	if err != nil {
		unlock()
		return err
	}

	if deposit.UserID != userID {
		unlock()
		return domain.ErrUnauthorized
	}

	if err := s.repo.SubmitProof(id, artifactRef); err != nil {
		unlock()
		return err
	}

	unlock()

	caption := fmt.Sprintf("proof for deposit #%d: user %d, %s via %s", id, userID, deposit.Amount, deposit.Method)
	adminIDs, err := s.users.AdminIDs()
	if err != nil {
		logger.Log.Error("error fetching admins", logger.Error(err))
		return nil
	}
	for _, adminID := range adminIDs {
		s.notifier.DeliverArtifact(ctx, adminID, artifactRef, caption)
	}

	return nil
}

// Finalize credits the deposit through the gateway. The record lock is not
// held across the network call; the terminal transition is applied only if
// the record is still PROOF_SUBMITTED afterwards. On a gateway failure the
// record is left untouched, so Finalize is a safe retry point.
func (s *DepositService) Finalize(ctx context.Context, id, adminID int64) error {
	unlock := s.lockRecord(id)

	deposit, err := s.repo.Deposit(id)
	if err != nil {
		unlock()
		return err
	}

	if deposit.Status != domain.DepositStatusProofSubmitted {
		unlock()
		return fmt.Errorf("%w: deposit #%d is %s", domain.ErrInvalidState, id, deposit.Status)
	}

	if !s.beginFinalize(id) {
		unlock()
		return domain.ErrFinalizeInProgress
	}
	defer s.endFinalize(id)

	unlock()

	user, err := s.users.UserByID(deposit.UserID)
	if err != nil {
		return err
	}

	_, err = s.gateway.Deposit(ctx, user.GatewayUserID, deposit.Amount)
	if err != nil {
		logger.Log.Error("gateway deposit failed",
			logger.Int64("deposit_id", id),
			logger.Int64("user_id", deposit.UserID),
			logger.Error(err),
		)
		s.notifier.Notify(ctx, deposit.UserID, fmt.Sprintf(
			"deposit #%d could not be credited, please try again later or contact support",
			id,
		))
		return err
	}

	unlock = s.lockRecord(id)
	err = s.repo.CompleteDeposit(id, adminID)
	unlock()

	if err != nil {
		if errors.Is(err, domain.ErrInvalidState) {
			// The gateway accepted the money but the record moved while the
			// call was in flight. Surface loudly, this needs an operator.
			logger.Log.Error("deposit credited at gateway but record left its pre-call state",
				logger.Int64("deposit_id", id),
			)
		}
		return err
	}

	s.notifier.Notify(ctx, deposit.UserID, fmt.Sprintf(
		"deposit #%d completed, %s credited to your account",
		id, deposit.Amount,
	))

	return nil
}

// Cancel is the requester-driven cancellation, valid from any non-terminal
// state. It never preempts a finalize that already started.
func (s *DepositService) Cancel(ctx context.Context, id, userID int64) error {
	return s.close(ctx, id, &userID, nil, domain.DepositStatusCancelled, "cancelled")
}

// Reject is the admin-driven counterpart of Cancel.
func (s *DepositService) Reject(ctx context.Context, id, adminID int64) error {
	return s.close(ctx, id, nil, &adminID, domain.DepositStatusRejected, "rejected by the operator")
}

func (s *DepositService) close(ctx context.Context, id int64, userID, adminID *int64, to domain.DepositStatus, reason string) error {
	unlock := s.lockRecord(id)

	deposit, err := s.repo.Deposit(id)
	if err != nil {
		unlock()
		return err
	}

	if userID != nil && deposit.UserID != *userID {
		unlock()
		return domain.ErrUnauthorized
	}

	if deposit.Status.Terminal() {
		unlock()
		return fmt.Errorf("%w: deposit #%d is %s", domain.ErrInvalidState, id, deposit.Status)
	}

	if s.isFinalizing(id) {
		unlock()
		return domain.ErrFinalizeInProgress
	}

	ok, err := s.repo.TransitionDeposit(id, deposit.Status, to, adminID)
	if err != nil {
		unlock()
		return err
	}
	if !ok {
		unlock()
		return fmt.Errorf("%w: deposit #%d", domain.ErrInvalidState, id)
	}

	s.stopTimer(id)
	unlock()

	s.notifier.Notify(ctx, deposit.UserID, fmt.Sprintf("deposit #%d %s", id, reason))

	return nil
}

// Deposits lists the requester's deposit history.
func (s *DepositService) Deposits(userID int64) ([]domain.Deposit, error) {
	return s.repo.DepositsByUser(userID)
}

// DepositsByStatus backs the admin listings.
func (s *DepositService) DepositsByStatus(status domain.DepositStatus) ([]domain.Deposit, error) {
	return s.repo.DepositsByStatus(status)
}

func (s *DepositService) Deposit(id int64) (*domain.Deposit, error) {
	return s.repo.Deposit(id)
}

// ExpireOverdue cancels INSTRUCTIONS_SENT deposits whose payment window
// closed. It backs the periodic sweep that covers timers lost on restart.
func (s *DepositService) ExpireOverdue(ctx context.Context) error {
	deposits, err := s.repo.OverdueInstructionDeposits(time.Now().Add(-s.timeout))
	if err != nil {
		return err
	}

	for _, deposit := range deposits {
		s.expire(ctx, deposit.ID)
	}

	return nil
}

// expire is the watchdog body: cancel the deposit only if it is still waiting
// for the payment. The conditional transition re-reads the authoritative
// record, so a user who confirmed just before the timer fired wins the race.
func (s *DepositService) expire(ctx context.Context, id int64) {
	unlock := s.lockRecord(id)

	ok, err := s.repo.TransitionDeposit(id, domain.DepositStatusInstructionsSent, domain.DepositStatusCancelled, nil)
	s.stopTimer(id)
	unlock()

	if err != nil {
		logger.Log.Error("error cancelling expired deposit", logger.Int64("deposit_id", id), logger.Error(err))
		return
	}
	if !ok {
		return
	}

	deposit, err := s.repo.Deposit(id)
	if err != nil {
		logger.Log.Error("error fetching expired deposit", logger.Int64("deposit_id", id), logger.Error(err))
		return
	}

	logger.Log.Warn("deposit cancelled by timeout", logger.Int64("deposit_id", id))
	s.notifier.Notify(ctx, deposit.UserID, fmt.Sprintf("deposit #%d cancelled: payment time expired", id))
}

func (s *DepositService) notifyAdmins(ctx context.Context, message string) {
	adminIDs, err := s.users.AdminIDs()
	if err != nil {
		logger.Log.Error("error fetching admins", logger.Error(err))
		return
	}

	for _, adminID := range adminIDs {
		s.notifier.Notify(ctx, adminID, message)
	}
}

func (s *DepositService) lockRecord(id int64) func() {
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

func (s *DepositService) armTimer(id int64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if t, ok := s.timers[id]; ok {
		t.Stop()
	}
	s.timers[id] = time.AfterFunc(s.timeout, func() {
		s.expire(context.Background(), id)
	})
}

func (s *DepositService) stopTimer(id int64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if t, ok := s.timers[id]; ok {
		t.Stop()
		delete(s.timers, id)
	}
}

func (s *DepositService) beginFinalize(id int64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.finalizing[id]; ok {
		return false
	}
	s.finalizing[id] = struct{}{}
	return true
}

func (s *DepositService) endFinalize(id int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.finalizing, id)
}

func (s *DepositService) isFinalizing(id int64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.finalizing[id]
	return ok
}
