package deposithandler

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

type DepositService interface {
	Create(ctx context.Context, userID int64, amount decimal.Decimal, method domain.PaymentMethod) (*domain.Deposit, error)
	ConfirmPaid(ctx context.Context, id, userID int64) error
	SubmitProof(ctx context.Context, id, userID int64, artifactRef string) error
	Cancel(ctx context.Context, id, userID int64) error
	Deposits(userID int64) ([]domain.Deposit, error)
}

type DepositHandler struct {
	srv DepositService
}

func New(srv DepositService) *DepositHandler {
	return &DepositHandler{
		srv: srv,
	}
}

func (h DepositHandler) Create(w http.ResponseWriter, r *http.Request) {
	userID, ok := userID(w, r)
	if !ok {
		return
	}

	var req dto.CreateDeposit
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		logger.Log.Warn("error while decoding a deposit request")
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	if err := req.IsValid(); err != nil {
		logger.Log.Warn("invalid deposit fields", logger.Error(err))
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	deposit, err := h.srv.Create(r.Context(), userID, req.Amount, domain.PaymentMethod(req.Method))
	if err != nil {
		if errors.Is(err, domain.ErrAmountBelowMinimum) || errors.Is(err, domain.ErrUnknownPaymentMethod) {
			logger.Log.Warn("deposit rejected", logger.Int64("user_id", userID), logger.Error(err))
			http.Error(w, err.Error(), http.StatusUnprocessableEntity)
			return
		}

		logger.Log.Error("error while creating deposit", logger.Int64("user_id", userID), logger.Error(err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	if err := json.NewEncoder(w).Encode(toDTO(*deposit)); err != nil {
		logger.Log.Error("error while encoding deposit to JSON", logger.Int64("user_id", userID), logger.Error(err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
}

func (h DepositHandler) ConfirmPaid(w http.ResponseWriter, r *http.Request) {
	userID, ok := userID(w, r)
	if !ok {
		return
	}

	id, ok := depositID(w, r)
	if !ok {
		return
	}

	if err := h.srv.ConfirmPaid(r.Context(), id, userID); err != nil {
		writeDepositError(w, id, userID, err)
		return
	}

	w.WriteHeader(http.StatusOK)
}

func (h DepositHandler) SubmitProof(w http.ResponseWriter, r *http.Request) {
	userID, ok := userID(w, r)
	if !ok {
		return
	}

	// The id is optional: without one the proof goes to the newest deposit
	// awaiting it.
	var id int64
	if raw := chi.URLParam(r, "id"); raw != "" {
		parsed, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			logger.Log.Warn("invalid deposit ID", logger.Error(err))
			http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
			return
		}
		id = parsed
	}

	var proof dto.Proof
	if err := json.NewDecoder(r.Body).Decode(&proof); err != nil {
		logger.Log.Warn("error while decoding a proof request")
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	if proof.ArtifactRef == "" {
		logger.Log.Warn("missing artifact reference", logger.Int64("user_id", userID))
		http.Error(w, "artifact_ref is required", http.StatusBadRequest)
		return
	}

	if err := h.srv.SubmitProof(r.Context(), id, userID, proof.ArtifactRef); err != nil {
		if errors.Is(err, domain.ErrNoEligibleDeposit) {
			http.Error(w, err.Error(), http.StatusNotFound)
			return
		}
		writeDepositError(w, id, userID, err)
		return
	}

	w.WriteHeader(http.StatusOK)
}

func (h DepositHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	userID, ok := userID(w, r)
	if !ok {
		return
	}

	id, ok := depositID(w, r)
	if !ok {
		return
	}

	if err := h.srv.Cancel(r.Context(), id, userID); err != nil {
		writeDepositError(w, id, userID, err)
		return
	}

	w.WriteHeader(http.StatusOK)
}

func (h DepositHandler) Deposits(w http.ResponseWriter, r *http.Request) {
	userID, ok := userID(w, r)
	if !ok {
		return
	}

	deposits, err := h.srv.Deposits(userID)
	if err != nil {
		logger.Log.Error("error while fetching deposits", logger.Int64("user_id", userID), logger.Error(err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	if len(deposits) == 0 {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	dtos := make([]dto.Deposit, len(deposits))
	for i, deposit := range deposits {
		dtos[i] = toDTO(deposit)
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if err := json.NewEncoder(w).Encode(dtos); err != nil {
		logger.Log.Error("error while encoding deposits to JSON", logger.Int64("user_id", userID), logger.Error(err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
}

func toDTO(deposit domain.Deposit) dto.Deposit {
	return dto.Deposit{
		ID:           deposit.ID,
		Amount:       deposit.Amount,
		Method:       string(deposit.Method),
		Status:       string(deposit.Status),
		Instructions: deposit.Instructions,
		CreatedAt:    deposit.CreatedAt.Format(time.RFC3339),
	}
}

func writeDepositError(w http.ResponseWriter, id, userID int64, err error) {
	switch {
	case errors.Is(err, domain.ErrDepositNotFound):
		http.Error(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, domain.ErrUnauthorized):
		logger.Log.Warn("deposit belongs to another user", logger.Int64("deposit_id", id), logger.Int64("user_id", userID))
		http.Error(w, err.Error(), http.StatusForbidden)
	case errors.Is(err, domain.ErrInvalidState), errors.Is(err, domain.ErrFinalizeInProgress):
		logger.Log.Warn("deposit transition rejected", logger.Int64("deposit_id", id), logger.Error(err))
		http.Error(w, err.Error(), http.StatusConflict)
	default:
		logger.Log.Error("error while updating deposit", logger.Int64("deposit_id", id), logger.Error(err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
	}
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

func depositID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	raw := chi.URLParam(r, "id")
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		logger.Log.Warn("invalid deposit ID", logger.String("id", raw), logger.Error(err))
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return 0, false
	}

	return id, true
}
