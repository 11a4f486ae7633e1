package dto

import (
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

type CreatePayout struct {
	Amount      decimal.Decimal `json:"amount"`
	Method      string          `json:"method"`
	Destination string          `json:"destination"`
	Code        string          `json:"code"`
}

func (p CreatePayout) IsValid() error {
	var amountErr, methodErr, codeErr error

	if p.Amount.LessThanOrEqual(decimal.Zero) {
		amountErr = fmt.Errorf("amount must be positive")
	}

	if strings.TrimSpace(p.Method) == "" {
		methodErr = fmt.Errorf("method is required")
	}

	if strings.TrimSpace(p.Code) == "" {
		codeErr = fmt.Errorf("code is required")
	}

	return errors.Join(amountErr, methodErr, codeErr)
}

type Payout struct {
	ID          int64           `json:"id"`
	Amount      decimal.Decimal `json:"amount"`
	Method      string          `json:"method"`
	Destination string          `json:"destination,omitempty"`
	Status      string          `json:"status"`
	CreatedAt   string          `json:"created_at"`
	ProcessedAt *string         `json:"processed_at,omitempty"`
}
