package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type User struct {
	ID            int64
	Login         string
	Password      string
	GatewayUserID int64
	IsAdmin       bool
	RegisteredAt  time.Time
}

type DepositStatus string

const (
	DepositStatusAwaitingPayment  DepositStatus = "AWAITING_PAYMENT"
	DepositStatusInstructionsSent DepositStatus = "INSTRUCTIONS_SENT"
	DepositStatusConfirmedPaid    DepositStatus = "CONFIRMED_PAID"
	DepositStatusProofSubmitted   DepositStatus = "PROOF_SUBMITTED"
	DepositStatusCompleted        DepositStatus = "COMPLETED"
	DepositStatusCancelled        DepositStatus = "CANCELLED"
	DepositStatusRejected         DepositStatus = "REJECTED"
)

// Terminal reports whether no further transition is allowed from the status.
func (s DepositStatus) Terminal() bool {
	return s == DepositStatusCompleted || s == DepositStatusCancelled || s == DepositStatusRejected
}

type PaymentMethod string

const (
	PaymentMethodCard    PaymentMethod = "card"
	PaymentMethodEWallet PaymentMethod = "ewallet"
	PaymentMethodMobile  PaymentMethod = "mobile"
	PaymentMethodCrypto  PaymentMethod = "crypto"
)

func (m PaymentMethod) Valid() bool {
	switch m {
	case PaymentMethodCard, PaymentMethodEWallet, PaymentMethodMobile, PaymentMethodCrypto:
		return true
	}
	return false
}

type Deposit struct {
	ID                 int64
	UserID             int64
	Amount             decimal.Decimal
	Method             PaymentMethod
	Status             DepositStatus
	Instructions       *string
	ProofRef           *string
	AdminID            *int64
	CreatedAt          time.Time
	InstructionsSentAt *time.Time
	CompletedAt        *time.Time
}

type PayoutStatus string

const (
	PayoutStatusRequested PayoutStatus = "REQUESTED"
	PayoutStatusCompleted PayoutStatus = "COMPLETED"
	PayoutStatusCancelled PayoutStatus = "CANCELLED"
	PayoutStatusRejected  PayoutStatus = "REJECTED"
)

func (s PayoutStatus) Terminal() bool {
	return s == PayoutStatusCompleted || s == PayoutStatusCancelled || s == PayoutStatusRejected
}

type Payout struct {
	ID          int64
	UserID      int64
	Amount      decimal.Decimal
	Method      PaymentMethod
	Destination string
	Code        string
	Status      PayoutStatus
	AdminID     *int64
	CreatedAt   time.Time
	ProcessedAt *time.Time
}

type Balance struct {
	Current        decimal.Decimal
	TotalDeposited decimal.Decimal
	DepositsCount  int64
}

type CashdeskBalance struct {
	Balance   decimal.Decimal
	Limit     decimal.Decimal
	Available decimal.Decimal
}

type Stats struct {
	TotalUsers      int64
	TotalDeposits   int64
	TotalAmount     decimal.Decimal
	PendingDeposits int64
}
