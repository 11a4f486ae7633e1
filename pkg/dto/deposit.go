package dto

import (
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

type CreateDeposit struct {
	Amount decimal.Decimal `json:"amount"`
	Method string          `json:"method"`
}

func (d CreateDeposit) IsValid() error {
	var amountErr, methodErr error

	if d.Amount.LessThanOrEqual(decimal.Zero) {
		amountErr = fmt.Errorf("amount must be positive")
	}

	if strings.TrimSpace(d.Method) == "" {
		methodErr = fmt.Errorf("method is required")
	}

	return errors.Join(amountErr, methodErr)
}

/**
  {
      "id": 17,
      "amount": "500",
      "method": "card",
      "status": "INSTRUCTIONS_SENT",
      "instructions": "card 2200 ...",
      "created_at": "2025-08-30T15:15:45+03:00"
  }
*/

type Deposit struct {
	ID           int64           `json:"id"`
	Amount       decimal.Decimal `json:"amount"`
	Method       string          `json:"method"`
	Status       string          `json:"status"`
	Instructions *string         `json:"instructions,omitempty"`
	CreatedAt    string          `json:"created_at"`
}

type Instructions struct {
	DepositID int64  `json:"deposit_id,omitempty"`
	Text      string `json:"text"`
}

func (i Instructions) IsValid() error {
	if strings.TrimSpace(i.Text) == "" {
		return fmt.Errorf("text is required")
	}

	return nil
}

type Proof struct {
	ArtifactRef string `json:"artifact_ref"`
}
