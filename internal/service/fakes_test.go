package service

import (
	"context"
	"sync"
	"time"

	"github.com/koyif/cashdesk/internal/domain"
	"github.com/koyif/cashdesk/pkg/dto"
	"github.com/shopspring/decimal"
)

// fakeStore is an in-memory stand-in for the postgres layer. It keeps the
// same conditional-transition semantics: a transition applies only when the
// record is still in the expected state, and completion both transitions and
// settles the balance in one step.
type fakeStore struct {
	mu       sync.Mutex
	seq      int64
	deposits map[int64]*domain.Deposit
	payouts  map[int64]*domain.Payout
	balances map[int64]decimal.Decimal
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		deposits: map[int64]*domain.Deposit{},
		payouts:  map[int64]*domain.Payout{},
		balances: map[int64]decimal.Decimal{},
	}
}

func (f *fakeStore) CreateDeposit(userID int64, amount decimal.Decimal, method domain.PaymentMethod) (*domain.Deposit, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.seq++
	d := &domain.Deposit{
		ID:        f.seq,
		UserID:    userID,
		Amount:    amount,
		Method:    method,
		Status:    domain.DepositStatusAwaitingPayment,
		CreatedAt: time.Now(),
	}
	f.deposits[d.ID] = d

	copied := *d
	return &copied, nil
}

func (f *fakeStore) Deposit(id int64) (*domain.Deposit, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	d, ok := f.deposits[id]
	if !ok {
		return nil, domain.ErrDepositNotFound
	}

	copied := *d
	return &copied, nil
}

func (f *fakeStore) DepositsByUser(userID int64) ([]domain.Deposit, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	var out []domain.Deposit
	for _, d := range f.deposits {
		if d.UserID == userID {
			out = append(out, *d)
		}
	}
	return out, nil
}

func (f *fakeStore) DepositsByStatus(status domain.DepositStatus) ([]domain.Deposit, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	var out []domain.Deposit
	for _, d := range f.deposits {
		if d.Status == status {
			out = append(out, *d)
		}
	}
	return out, nil
}

func (f *fakeStore) LatestDepositInStatus(userID int64, status domain.DepositStatus) (*domain.Deposit, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	var latest *domain.Deposit
	for _, d := range f.deposits {
		if d.UserID != userID || d.Status != status {
			continue
		}
		if latest == nil || d.ID > latest.ID {
			latest = d
		}
	}
	if latest == nil {
		return nil, domain.ErrNoEligibleDeposit
	}

	copied := *latest
	return &copied, nil
}

func (f *fakeStore) AttachInstructions(id int64, text string, adminID int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	d, ok := f.deposits[id]
	if !ok {
		return domain.ErrDepositNotFound
	}
	if d.Status != domain.DepositStatusAwaitingPayment {
		return domain.ErrInvalidState
	}

	now := time.Now()
	d.Status = domain.DepositStatusInstructionsSent
	d.Instructions = &text
	d.AdminID = &adminID
	d.InstructionsSentAt = &now
	return nil
}

func (f *fakeStore) SubmitProof(id int64, artifactRef string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	d, ok := f.deposits[id]
	if !ok {
		return domain.ErrDepositNotFound
	}
	if d.Status != domain.DepositStatusConfirmedPaid {
		return domain.ErrInvalidState
	}

	d.Status = domain.DepositStatusProofSubmitted
	d.ProofRef = &artifactRef
	return nil
}

func (f *fakeStore) TransitionDeposit(id int64, from, to domain.DepositStatus, adminID *int64) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	d, ok := f.deposits[id]
	if !ok {
		return false, domain.ErrDepositNotFound
	}
	if d.Status != from {
		return false, nil
	}

	d.Status = to
	if adminID != nil {
		d.AdminID = adminID
	}
	return true, nil
}

func (f *fakeStore) CompleteDeposit(id, adminID int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	d, ok := f.deposits[id]
	if !ok {
		return domain.ErrDepositNotFound
	}
	if d.Status != domain.DepositStatusProofSubmitted {
		return domain.ErrInvalidState
	}

	now := time.Now()
	d.Status = domain.DepositStatusCompleted
	d.AdminID = &adminID
	d.CompletedAt = &now
	f.balances[d.UserID] = f.balances[d.UserID].Add(d.Amount)
	return nil
}

func (f *fakeStore) OverdueInstructionDeposits(cutoff time.Time) ([]domain.Deposit, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	var out []domain.Deposit
	for _, d := range f.deposits {
		if d.Status == domain.DepositStatusInstructionsSent && d.InstructionsSentAt != nil && d.InstructionsSentAt.Before(cutoff) {
			out = append(out, *d)
		}
	}
	return out, nil
}

func (f *fakeStore) CreatePayout(userID int64, amount decimal.Decimal, method domain.PaymentMethod, destination, code string) (*domain.Payout, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.seq++
	p := &domain.Payout{
		ID:          f.seq,
		UserID:      userID,
		Amount:      amount,
		Method:      method,
		Destination: destination,
		Code:        code,
		Status:      domain.PayoutStatusRequested,
		CreatedAt:   time.Now(),
	}
	f.payouts[p.ID] = p

	copied := *p
	return &copied, nil
}

func (f *fakeStore) Payout(id int64) (*domain.Payout, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	p, ok := f.payouts[id]
	if !ok {
		return nil, domain.ErrPayoutNotFound
	}

	copied := *p
	return &copied, nil
}

func (f *fakeStore) PayoutsByUser(userID int64) ([]domain.Payout, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	var out []domain.Payout
	for _, p := range f.payouts {
		if p.UserID == userID {
			out = append(out, *p)
		}
	}
	return out, nil
}

func (f *fakeStore) PayoutsByStatus(status domain.PayoutStatus) ([]domain.Payout, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	var out []domain.Payout
	for _, p := range f.payouts {
		if p.Status == status {
			out = append(out, *p)
		}
	}
	return out, nil
}

func (f *fakeStore) TransitionPayout(id int64, from, to domain.PayoutStatus, adminID *int64) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	p, ok := f.payouts[id]
	if !ok {
		return false, domain.ErrPayoutNotFound
	}
	if p.Status != from {
		return false, nil
	}

	p.Status = to
	if adminID != nil {
		p.AdminID = adminID
	}
	return true, nil
}

func (f *fakeStore) CompletePayout(id, adminID int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	p, ok := f.payouts[id]
	if !ok {
		return domain.ErrPayoutNotFound
	}
	if p.Status != domain.PayoutStatusRequested {
		return domain.ErrInvalidState
	}
	if f.balances[p.UserID].LessThan(p.Amount) {
		return domain.ErrInsufficientFunds
	}

	now := time.Now()
	p.Status = domain.PayoutStatusCompleted
	p.AdminID = &adminID
	p.ProcessedAt = &now
	f.balances[p.UserID] = f.balances[p.UserID].Sub(p.Amount)
	return nil
}

func (f *fakeStore) Balance(userID int64) (*domain.Balance, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	return &domain.Balance{Current: f.balances[userID]}, nil
}

func (f *fakeStore) setBalance(userID int64, amount decimal.Decimal) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.balances[userID] = amount
}

func (f *fakeStore) balance(userID int64) decimal.Decimal {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.balances[userID]
}

func (f *fakeStore) depositStatus(id int64) domain.DepositStatus {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.deposits[id].Status
}

func (f *fakeStore) payoutStatus(id int64) domain.PayoutStatus {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.payouts[id].Status
}

type fakeDirectory struct {
	users  map[int64]*domain.User
	admins []int64
}

func (f *fakeDirectory) UserByID(id int64) (*domain.User, error) {
	u, ok := f.users[id]
	if !ok {
		return nil, domain.ErrUserNotFound
	}
	return u, nil
}

func (f *fakeDirectory) AdminIDs() ([]int64, error) {
	return f.admins, nil
}

type fakeNotifier struct {
	mu        sync.Mutex
	messages  map[int64][]string
	artifacts map[int64][]string
}

func newFakeNotifier() *fakeNotifier {
	return &fakeNotifier{
		messages:  map[int64][]string{},
		artifacts: map[int64][]string{},
	}
}

func (f *fakeNotifier) Notify(_ context.Context, recipient int64, message string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.messages[recipient] = append(f.messages[recipient], message)
}

func (f *fakeNotifier) DeliverArtifact(_ context.Context, recipient int64, artifactRef, _ string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.artifacts[recipient] = append(f.artifacts[recipient], artifactRef)
}

func (f *fakeNotifier) received(recipient int64) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.messages[recipient])
}

// fakeGateway counts calls and can be told to fail or to block until
// released, which is how the in-flight finalize and approve scenarios are
// driven.
type fakeGateway struct {
	mu                 sync.Mutex
	depositErr         error
	payoutErr          error
	depositCnt         int
	payoutCnt          int
	lastUserID         int64
	lastCode           string
	blockEnter         chan struct{}
	blockRelease       chan struct{}
	payoutBlockEnter   chan struct{}
	payoutBlockRelease chan struct{}
}

func (f *fakeGateway) failDeposits(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.depositErr = err
}

func (f *fakeGateway) failPayouts(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.payoutErr = err
}

func (f *fakeGateway) block() (entered, release chan struct{}) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.blockEnter = make(chan struct{})
	f.blockRelease = make(chan struct{})
	return f.blockEnter, f.blockRelease
}

func (f *fakeGateway) blockPayouts() (entered, release chan struct{}) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.payoutBlockEnter = make(chan struct{})
	f.payoutBlockRelease = make(chan struct{})
	return f.payoutBlockEnter, f.payoutBlockRelease
}

func (f *fakeGateway) Deposit(_ context.Context, userID int64, _ decimal.Decimal) (*dto.GatewayDepositResponse, error) {
	f.mu.Lock()
	f.depositCnt++
	f.lastUserID = userID
	err := f.depositErr
	entered, release := f.blockEnter, f.blockRelease
	f.blockEnter, f.blockRelease = nil, nil
	f.mu.Unlock()

	if entered != nil {
		close(entered)
		<-release
	}
	if err != nil {
		return nil, err
	}
	return &dto.GatewayDepositResponse{Success: true}, nil
}

func (f *fakeGateway) Payout(_ context.Context, userID int64, code string) (*dto.GatewayPayoutResponse, error) {
	f.mu.Lock()
	f.payoutCnt++
	f.lastUserID = userID
	f.lastCode = code
	err := f.payoutErr
	entered, release := f.payoutBlockEnter, f.payoutBlockRelease
	f.payoutBlockEnter, f.payoutBlockRelease = nil, nil
	f.mu.Unlock()

	if entered != nil {
		close(entered)
		<-release
	}
	if err != nil {
		return nil, err
	}
	return &dto.GatewayPayoutResponse{Success: true}, nil
}

func (f *fakeGateway) depositCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.depositCnt
}

func (f *fakeGateway) payoutCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.payoutCnt
}

func testGatewayError() error {
	return &domain.GatewayError{StatusCode: 500, Message: "gateway down"}
}
