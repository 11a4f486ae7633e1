package dto

import "github.com/shopspring/decimal"

type Balance struct {
	Current        decimal.Decimal `json:"current"`
	TotalDeposited decimal.Decimal `json:"total_deposited"`
	DepositsCount  int64           `json:"deposits_count"`
}

type CashdeskBalance struct {
	Balance   decimal.Decimal `json:"balance"`
	Limit     decimal.Decimal `json:"limit"`
	Available decimal.Decimal `json:"available"`
}

type Stats struct {
	TotalUsers      int64           `json:"total_users"`
	TotalDeposits   int64           `json:"total_deposits"`
	TotalAmount     decimal.Decimal `json:"total_amount"`
	PendingDeposits int64           `json:"pending_deposits"`
}
