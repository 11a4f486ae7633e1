package adminhandler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/koyif/cashdesk/internal/domain"
	"github.com/koyif/cashdesk/internal/session"
	"github.com/koyif/cashdesk/pkg/dto"
	"github.com/koyif/cashdesk/pkg/logger"
)

type depositService interface {
	AttachInstructions(ctx context.Context, id int64, text string, adminID int64) error
	Finalize(ctx context.Context, id, adminID int64) error
	Reject(ctx context.Context, id, adminID int64) error
	Deposits(userID int64) ([]domain.Deposit, error)
	DepositsByStatus(status domain.DepositStatus) ([]domain.Deposit, error)
}

type payoutService interface {
	Approve(ctx context.Context, id, adminID int64) error
	Reject(ctx context.Context, id, adminID int64) error
	PayoutsByStatus(status domain.PayoutStatus) ([]domain.Payout, error)
}

type adminService interface {
	Stats() (*domain.Stats, error)
	CashdeskBalance(ctx context.Context) (*domain.CashdeskBalance, error)
	LookupUser(ctx context.Context, id int64) (*domain.User, *dto.GatewayUser, error)
}

type sessionStore interface {
	SetPending(ctx context.Context, userID int64, pending session.Pending) error
	Pending(ctx context.Context, userID int64) (*session.Pending, error)
	Clear(ctx context.Context, userID int64) error
}

type AdminHandler struct {
	deposits depositService
	payouts  payoutService
	admin    adminService
	sessions sessionStore
}

func New(deposits depositService, payouts payoutService, admin adminService, sessions sessionStore) *AdminHandler {
	return &AdminHandler{
		deposits: deposits,
		payouts:  payouts,
		admin:    admin,
		sessions: sessions,
	}
}

func (h AdminHandler) Deposits(w http.ResponseWriter, r *http.Request) {
	status := domain.DepositStatus(r.URL.Query().Get("status"))
	if status == "" {
		status = domain.DepositStatusAwaitingPayment
	}

	deposits, err := h.deposits.DepositsByStatus(status)
	if err != nil {
		logger.Log.Error("error while fetching deposits", logger.String("status", string(status)), logger.Error(err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	h.writeDeposits(w, deposits)
}

// UserDeposits lists one requester's full deposit history for the operator.
func (h AdminHandler) UserDeposits(w http.ResponseWriter, r *http.Request) {
	id, ok := recordID(w, r)
	if !ok {
		return
	}

	deposits, err := h.deposits.Deposits(id)
	if err != nil {
		logger.Log.Error("error while fetching user deposits", logger.Int64("user_id", id), logger.Error(err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	h.writeDeposits(w, deposits)
}

func (h AdminHandler) writeDeposits(w http.ResponseWriter, deposits []domain.Deposit) {
	if len(deposits) == 0 {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	dtos := make([]dto.Deposit, len(deposits))
	for i, deposit := range deposits {
		dtos[i] = dto.Deposit{
			ID:           deposit.ID,
			Amount:       deposit.Amount,
			Method:       string(deposit.Method),
			Status:       string(deposit.Status),
			Instructions: deposit.Instructions,
			CreatedAt:    deposit.CreatedAt.Format(time.RFC3339),
		}
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if err := json.NewEncoder(w).Encode(dtos); err != nil {
		logger.Log.Error("error while encoding deposits to JSON", logger.Error(err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
}

// Accept stores the accepted deposit as the admin's pending operation. The
// instructions the admin sends next are matched to it without the id having
// to be repeated.
func (h AdminHandler) Accept(w http.ResponseWriter, r *http.Request) {
	adminID, ok := actorID(w, r)
	if !ok {
		return
	}

	id, ok := recordID(w, r)
	if !ok {
		return
	}

	pending := session.Pending{Action: session.ActionAttachInstructions, DepositID: id}
	if err := h.sessions.SetPending(r.Context(), adminID, pending); err != nil {
		logger.Log.Error("error while storing pending operation", logger.Int64("admin_id", adminID), logger.Error(err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	w.WriteHeader(http.StatusOK)
}

func (h AdminHandler) AttachInstructions(w http.ResponseWriter, r *http.Request) {
	adminID, ok := actorID(w, r)
	if !ok {
		return
	}

	var req dto.Instructions
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		logger.Log.Warn("error while decoding an instructions request")
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	if err := req.IsValid(); err != nil {
		logger.Log.Warn("invalid instructions fields", logger.Error(err))
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	id := req.DepositID
	if raw := chi.URLParam(r, "id"); raw != "" {
		parsed, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			logger.Log.Warn("invalid deposit ID", logger.String("id", raw), logger.Error(err))
			http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
			return
		}
		id = parsed
	}

	if id == 0 {
		pending, err := h.sessions.Pending(r.Context(), adminID)
		if err != nil {
			logger.Log.Error("error while fetching pending operation", logger.Int64("admin_id", adminID), logger.Error(err))
			http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
			return
		}
		if pending == nil || pending.Action != session.ActionAttachInstructions {
			http.Error(w, "no accepted deposit to attach instructions to", http.StatusConflict)
			return
		}
		id = pending.DepositID
	}

	if err := h.deposits.AttachInstructions(r.Context(), id, req.Text, adminID); err != nil {
		writeTransitionError(w, id, err)
		return
	}

	if err := h.sessions.Clear(r.Context(), adminID); err != nil {
		logger.Log.Error("error while clearing pending operation", logger.Int64("admin_id", adminID), logger.Error(err))
	}

	w.WriteHeader(http.StatusOK)
}

func (h AdminHandler) Finalize(w http.ResponseWriter, r *http.Request) {
	adminID, ok := actorID(w, r)
	if !ok {
		return
	}

	id, ok := recordID(w, r)
	if !ok {
		return
	}

	if err := h.deposits.Finalize(r.Context(), id, adminID); err != nil {
		writeGatewayError(w, id, err)
		return
	}

	w.WriteHeader(http.StatusOK)
}

func (h AdminHandler) RejectDeposit(w http.ResponseWriter, r *http.Request) {
	adminID, ok := actorID(w, r)
	if !ok {
		return
	}

	id, ok := recordID(w, r)
	if !ok {
		return
	}

	if err := h.deposits.Reject(r.Context(), id, adminID); err != nil {
		writeTransitionError(w, id, err)
		return
	}

	w.WriteHeader(http.StatusOK)
}

func (h AdminHandler) Payouts(w http.ResponseWriter, r *http.Request) {
	status := domain.PayoutStatus(r.URL.Query().Get("status"))
	if status == "" {
		status = domain.PayoutStatusRequested
	}

	payouts, err := h.payouts.PayoutsByStatus(status)
	if err != nil {
		logger.Log.Error("error while fetching payouts", logger.String("status", string(status)), logger.Error(err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	if len(payouts) == 0 {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	dtos := make([]dto.Payout, len(payouts))
	for i, payout := range payouts {
		dtos[i] = dto.Payout{
			ID:          payout.ID,
			Amount:      payout.Amount,
			Method:      string(payout.Method),
			Destination: payout.Destination,
			Status:      string(payout.Status),
			CreatedAt:   payout.CreatedAt.Format(time.RFC3339),
		}
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if err := json.NewEncoder(w).Encode(dtos); err != nil {
		logger.Log.Error("error while encoding payouts to JSON", logger.Error(err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
}

func (h AdminHandler) ApprovePayout(w http.ResponseWriter, r *http.Request) {
	adminID, ok := actorID(w, r)
	if !ok {
		return
	}

	id, ok := recordID(w, r)
	if !ok {
		return
	}

	if err := h.payouts.Approve(r.Context(), id, adminID); err != nil {
		if errors.Is(err, domain.ErrInsufficientFunds) {
			http.Error(w, err.Error(), http.StatusPaymentRequired)
			return
		}
		writeGatewayError(w, id, err)
		return
	}

	w.WriteHeader(http.StatusOK)
}

func (h AdminHandler) RejectPayout(w http.ResponseWriter, r *http.Request) {
	adminID, ok := actorID(w, r)
	if !ok {
		return
	}

	id, ok := recordID(w, r)
	if !ok {
		return
	}

	if err := h.payouts.Reject(r.Context(), id, adminID); err != nil {
		writeTransitionError(w, id, err)
		return
	}

	w.WriteHeader(http.StatusOK)
}

func (h AdminHandler) Stats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.admin.Stats()
	if err != nil {
		logger.Log.Error("error while fetching stats", logger.Error(err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	resp := dto.Stats{
		TotalUsers:      stats.TotalUsers,
		TotalDeposits:   stats.TotalDeposits,
		TotalAmount:     stats.TotalAmount,
		PendingDeposits: stats.PendingDeposits,
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		logger.Log.Error("error while encoding stats to JSON", logger.Error(err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
}

func (h AdminHandler) CashdeskBalance(w http.ResponseWriter, r *http.Request) {
	balance, err := h.admin.CashdeskBalance(r.Context())
	if err != nil {
		writeGatewayError(w, 0, err)
		return
	}

	resp := dto.CashdeskBalance{
		Balance:   balance.Balance,
		Limit:     balance.Limit,
		Available: balance.Available,
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		logger.Log.Error("error while encoding cashdesk balance to JSON", logger.Error(err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
}

func (h AdminHandler) LookupUser(w http.ResponseWriter, r *http.Request) {
	id, ok := recordID(w, r)
	if !ok {
		return
	}

	user, gatewayUser, err := h.admin.LookupUser(r.Context(), id)
	if err != nil {
		writeGatewayError(w, id, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)

	var payload any
	if user != nil {
		payload = map[string]any{
			"source":          "local",
			"id":              user.ID,
			"login":           user.Login,
			"gateway_user_id": user.GatewayUserID,
			"registered_at":   user.RegisteredAt.Format(time.RFC3339),
		}
	} else {
		payload = map[string]any{
			"source": "gateway",
			"user":   gatewayUser,
		}
	}

	if err := json.NewEncoder(w).Encode(payload); err != nil {
		logger.Log.Error("error while encoding user lookup to JSON", logger.Error(err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
}

// writeGatewayError surfaces gateway failures to the admin verbatim: they are
// the retry signal. Signature rejections are called out separately, they need
// a configuration fix, not a retry.
func writeGatewayError(w http.ResponseWriter, id int64, err error) {
	var gatewayErr *domain.GatewayError

	switch {
	case errors.Is(err, domain.ErrSignatureRejected):
		logger.Log.Error("gateway signature rejected", logger.Int64("record_id", id), logger.Error(err))
		http.Error(w, err.Error(), http.StatusBadGateway)
	case errors.As(err, &gatewayErr):
		logger.Log.Warn("gateway call failed", logger.Int64("record_id", id), logger.Error(err))
		http.Error(w, gatewayErr.Error(), http.StatusBadGateway)
	default:
		writeTransitionError(w, id, err)
	}
}

func writeTransitionError(w http.ResponseWriter, id int64, err error) {
	switch {
	case errors.Is(err, domain.ErrDepositNotFound), errors.Is(err, domain.ErrPayoutNotFound), errors.Is(err, domain.ErrUserNotFound):
		http.Error(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, domain.ErrInvalidState), errors.Is(err, domain.ErrFinalizeInProgress):
		logger.Log.Warn("transition rejected", logger.Int64("record_id", id), logger.Error(err))
		http.Error(w, err.Error(), http.StatusConflict)
	default:
		logger.Log.Error("error while handling admin request", logger.Int64("record_id", id), logger.Error(err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
	}
}

func actorID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	userIDHeader := r.Header.Get("User-ID")
	id, err := strconv.ParseInt(userIDHeader, 10, 64)
	if err != nil {
		logger.Log.Error("error while parsing user ID from header", logger.String("user_id", userIDHeader), logger.Error(err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return 0, false
	}

	return id, true
}

func recordID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	raw := chi.URLParam(r, "id")
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		logger.Log.Warn("invalid record ID", logger.String("id", raw), logger.Error(err))
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return 0, false
	}

	return id, true
}
