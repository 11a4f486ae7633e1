package service

import "github.com/koyif/cashdesk/internal/domain"

type balanceRepository interface {
	Balance(userID int64) (*domain.Balance, error)
}

type BalanceService struct {
	repo balanceRepository
}

func NewBalanceService(repo balanceRepository) *BalanceService {
	return &BalanceService{
		repo: repo,
	}
}

func (b BalanceService) Balance(userID int64) (*domain.Balance, error) {
	return b.repo.Balance(userID)
}
