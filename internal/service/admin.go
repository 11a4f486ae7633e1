package service

import (
	"context"
	"errors"

	"github.com/koyif/cashdesk/internal/domain"
	"github.com/koyif/cashdesk/pkg/dto"
	"github.com/koyif/cashdesk/pkg/logger"
)

type adminRepository interface {
	Stats() (*domain.Stats, error)
	UserByID(id int64) (*domain.User, error)
}

type adminGateway interface {
	Balance(ctx context.Context) (*domain.CashdeskBalance, error)
	FindUser(ctx context.Context, userID int64) (*dto.GatewayUser, error)
}

// AdminService backs the operator tooling: stats, cashdesk balance, user
// lookup with a gateway fallback.
type AdminService struct {
	repo    adminRepository
	gateway adminGateway
}

func NewAdminService(repo adminRepository, gateway adminGateway) *AdminService {
	return &AdminService{
		repo:    repo,
		gateway: gateway,
	}
}

func (s *AdminService) Stats() (*domain.Stats, error) {
	return s.repo.Stats()
}

func (s *AdminService) CashdeskBalance(ctx context.Context) (*domain.CashdeskBalance, error) {
	return s.gateway.Balance(ctx)
}

// LookupUser checks the local registry first and falls back to the gateway
// for players that never registered with this service.
func (s *AdminService) LookupUser(ctx context.Context, id int64) (*domain.User, *dto.GatewayUser, error) {
	user, err := s.repo.UserByID(id)
	if err == nil {
		return user, nil, nil
	}
	if !errors.Is(err, domain.ErrUserNotFound) {
		return nil, nil, err
	}

	logger.Log.Info("user not registered locally, querying gateway", logger.Int64("user_id", id))

	gatewayUser, err := s.gateway.FindUser(ctx, id)
	if err != nil {
		return nil, nil, err
	}

	return nil, gatewayUser, nil
}
