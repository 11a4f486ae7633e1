package balancehandler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/koyif/cashdesk/internal/domain"
	"github.com/koyif/cashdesk/pkg/dto"
	"github.com/koyif/cashdesk/pkg/logger"
	"github.com/shopspring/decimal"
)

type balanceService interface {
	Balance(userID int64) (*domain.Balance, error)
}

type payoutService interface {
	Request(ctx context.Context, userID int64, amount decimal.Decimal, method domain.PaymentMethod, destination, code string) (*domain.Payout, error)
	Cancel(ctx context.Context, id, userID int64) error
	Payouts(userID int64) ([]domain.Payout, error)
}

type BalanceHandler struct {
	balanceService balanceService
	payoutService  payoutService
}

func New(balanceSvc balanceService, payoutSvc payoutService) *BalanceHandler {
	return &BalanceHandler{
		balanceService: balanceSvc,
		payoutService:  payoutSvc,
	}
}

func (h BalanceHandler) Balance(w http.ResponseWriter, r *http.Request) {
	userID, ok := userID(w, r)
	if !ok {
		return
	}

	balance, err := h.balanceService.Balance(userID)
	if err != nil {
		logger.Log.Error("error while fetching balance", logger.Int64("user_id", userID), logger.Error(err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	resp := dto.Balance{
		Current:        balance.Current,
		TotalDeposited: balance.TotalDeposited,
		DepositsCount:  balance.DepositsCount,
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	err = json.NewEncoder(w).Encode(resp)
	if err != nil {
		logger.Log.Error("error while encoding balance to JSON", logger.Int64("user_id", userID), logger.Error(err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
}

func (h BalanceHandler) RequestPayout(w http.ResponseWriter, r *http.Request) {
	userID, ok := userID(w, r)
	if !ok {
		return
	}

	var req dto.CreatePayout
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		logger.Log.Warn("error while decoding a payout request")
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	if err := req.IsValid(); err != nil {
		logger.Log.Warn("invalid payout fields", logger.Error(err))
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	payout, err := h.payoutService.Request(r.Context(), userID, req.Amount, domain.PaymentMethod(req.Method), req.Destination, req.Code)
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrInsufficientFunds):
			logger.Log.Warn("insufficient funds", logger.Int64("user_id", userID))
			http.Error(w, err.Error(), http.StatusPaymentRequired)
		case errors.Is(err, domain.ErrInvalidDestination), errors.Is(err, domain.ErrUnknownPaymentMethod), errors.Is(err, domain.ErrAmountNotPositive):
			logger.Log.Warn("payout request rejected", logger.Int64("user_id", userID), logger.Error(err))
			http.Error(w, err.Error(), http.StatusUnprocessableEntity)
		default:
			logger.Log.Error("error while creating payout request", logger.Int64("user_id", userID), logger.Error(err))
			http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		}
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	if err := json.NewEncoder(w).Encode(toDTO(*payout)); err != nil {
		logger.Log.Error("error while encoding payout to JSON", logger.Int64("user_id", userID), logger.Error(err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
}

func (h BalanceHandler) CancelPayout(w http.ResponseWriter, r *http.Request) {
	userID, ok := userID(w, r)
	if !ok {
		return
	}

	raw := chi.URLParam(r, "id")
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		logger.Log.Warn("invalid payout ID", logger.String("id", raw), logger.Error(err))
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	if err := h.payoutService.Cancel(r.Context(), id, userID); err != nil {
		switch {
		case errors.Is(err, domain.ErrPayoutNotFound):
			http.Error(w, err.Error(), http.StatusNotFound)
		case errors.Is(err, domain.ErrUnauthorized):
			http.Error(w, err.Error(), http.StatusForbidden)
		case errors.Is(err, domain.ErrInvalidState):
			http.Error(w, err.Error(), http.StatusConflict)
		default:
			logger.Log.Error("error while cancelling payout", logger.Int64("payout_id", id), logger.Error(err))
			http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		}
		return
	}

	w.WriteHeader(http.StatusOK)
}

func (h BalanceHandler) Payouts(w http.ResponseWriter, r *http.Request) {
	userID, ok := userID(w, r)
	if !ok {
		return
	}

	payouts, err := h.payoutService.Payouts(userID)
	if err != nil {
		logger.Log.Error("error while fetching payouts", logger.Int64("user_id", userID), logger.Error(err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	if len(payouts) == 0 {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	dtos := make([]dto.Payout, len(payouts))
	for i, payout := range payouts {
		dtos[i] = toDTO(payout)
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if err := json.NewEncoder(w).Encode(dtos); err != nil {
		logger.Log.Error("error while encoding payouts to JSON", logger.Int64("user_id", userID), logger.Error(err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
}

func toDTO(payout domain.Payout) dto.Payout {
	resp := dto.Payout{
		ID:          payout.ID,
		Amount:      payout.Amount,
		Method:      string(payout.Method),
		Destination: payout.Destination,
		Status:      string(payout.Status),
		CreatedAt:   payout.CreatedAt.Format(time.RFC3339),
	}
	if payout.ProcessedAt != nil {
		processedAt := payout.ProcessedAt.Format(time.RFC3339)
		resp.ProcessedAt = &processedAt
	}

	return resp
}

func userID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	userIDHeader := r.Header.Get("User-ID")
	id, err := strconv.ParseInt(userIDHeader, 10, 64)
	if err != nil {
		logger.Log.Error("error while parsing user ID from header", logger.String("user_id", userIDHeader), logger.Error(err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return 0, false
	}

	return id, true
}
