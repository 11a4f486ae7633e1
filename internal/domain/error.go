package domain

import (
	"errors"
	"fmt"
)

var (
	ErrUserNotFound         = errors.New("user not found")
	ErrUserExists           = errors.New("user already exists")
	ErrIncorrectCredentials = errors.New("incorrect credentials")
	ErrDepositNotFound      = errors.New("deposit not found")
	ErrPayoutNotFound       = errors.New("payout request not found")
	ErrAmountBelowMinimum   = errors.New("amount is below the minimum deposit")
	ErrAmountNotPositive    = errors.New("amount must be positive")
	ErrUnknownPaymentMethod = errors.New("unknown payment method")
	ErrInvalidState         = errors.New("operation not permitted in the current status")
	ErrUnauthorized         = errors.New("record belongs to another user")
	ErrInsufficientFunds    = errors.New("insufficient funds")
	ErrFinalizeInProgress   = errors.New("finalization already in progress")
	ErrNoEligibleDeposit    = errors.New("no deposit awaiting a proof upload")
	ErrInvalidDestination   = errors.New("invalid payout destination")
	ErrSignatureRejected    = errors.New("gateway rejected the request signature")
)

// GatewayError is a retryable failure of the external cashier API: a non-2xx
// response, a transport fault, or a success=false payload on HTTP 200.
type GatewayError struct {
	StatusCode int
	Message    string
}

func (e *GatewayError) Error() string {
	if e.StatusCode == 0 {
		return fmt.Sprintf("gateway unreachable: %s", e.Message)
	}
	return fmt.Sprintf("gateway error: HTTP %d: %s", e.StatusCode, e.Message)
}
