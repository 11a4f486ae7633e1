package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/koyif/cashdesk/internal/domain"
	"github.com/koyif/cashdesk/pkg/dto"
	"github.com/shopspring/decimal"
)

func testClient(baseURL string) *Client {
	c := NewClient(baseURL, "ru", testSecrets)
	c.now = func() time.Time {
		return time.Date(2026, 1, 2, 15, 4, 5, 0, time.UTC)
	}
	return c
}

func TestBalance(t *testing.T) {
	var gotPath, gotSign, gotConfirm, gotDt string

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotSign = r.Header.Get("sign")
		gotConfirm = r.URL.Query().Get("confirm")
		gotDt = r.URL.Query().Get("dt")

		_ = json.NewEncoder(w).Encode(dto.GatewayBalanceResponse{Balance: 4500.5, Limit: 10000})
	}))
	defer server.Close()

	balance, err := testClient(server.URL).Balance(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if gotPath != "/Cashdesk/77/Balance" {
		t.Errorf("path = %q, want /Cashdesk/77/Balance", gotPath)
	}
	if gotDt != "2026.01.02 15:04:05" {
		t.Errorf("dt = %q, want 2026.01.02 15:04:05", gotDt)
	}
	if want := NewSigner(testSecrets).ConfirmToken("77"); gotConfirm != want {
		t.Errorf("confirm = %q, want %q", gotConfirm, want)
	}
	if want := NewSigner(testSecrets).BalanceSignature(gotDt); gotSign != want {
		t.Errorf("sign header = %q, want %q", gotSign, want)
	}

	if !balance.Balance.Equal(decimal.NewFromFloat(4500.5)) {
		t.Errorf("balance = %s, want 4500.5", balance.Balance)
	}
	if !balance.Available.Equal(decimal.NewFromFloat(5499.5)) {
		t.Errorf("available = %s, want 5499.5", balance.Available)
	}
}

func TestFindUser(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/Users/19747" {
			t.Errorf("path = %q, want /Users/19747", r.URL.Path)
		}
		if want := NewSigner(testSecrets).FindUserSignature(19747); r.Header.Get("sign") != want {
			t.Errorf("sign header = %q, want %q", r.Header.Get("sign"), want)
		}

		_ = json.NewEncoder(w).Encode(dto.GatewayUser{UserID: 19747, Name: "player", CurrencyID: 1})
	}))
	defer server.Close()

	user, err := testClient(server.URL).FindUser(context.Background(), 19747)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if user.Name != "player" {
		t.Errorf("name = %q, want player", user.Name)
	}
}

func TestDeposit(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/Deposit/19747/Add" {
			t.Errorf("path = %q, want /Deposit/19747/Add", r.URL.Path)
		}

		var req dto.GatewayDepositRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("error decoding request body: %v", err)
		}
		if req.CashdeskID != 77 || req.Lng != "ru" || req.Summa != 250.5 {
			t.Errorf("unexpected request body: %+v", req)
		}
		if want := NewSigner(testSecrets).ConfirmToken("19747"); req.Confirm != want {
			t.Errorf("confirm = %q, want %q", req.Confirm, want)
		}
		if want := NewSigner(testSecrets).DepositSignature(19747, "250.5", "ru"); r.Header.Get("sign") != want {
			t.Errorf("sign header = %q, want %q", r.Header.Get("sign"), want)
		}

		_ = json.NewEncoder(w).Encode(dto.GatewayDepositResponse{Success: true, Summa: 250.5, Message: "OK"})
	}))
	defer server.Close()

	res, err := testClient(server.URL).Deposit(context.Background(), 19747, decimal.NewFromFloat(250.5))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Summa != 250.5 {
		t.Errorf("summa = %v, want 250.5", res.Summa)
	}
}

func TestDepositGatewayRefusal(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(dto.GatewayDepositResponse{Success: false, Message: "limit exceeded"})
	}))
	defer server.Close()

	_, err := testClient(server.URL).Deposit(context.Background(), 19747, decimal.NewFromInt(100))

	var gatewayErr *domain.GatewayError
	if !errors.As(err, &gatewayErr) {
		t.Fatalf("expected *domain.GatewayError, got %v", err)
	}
	if gatewayErr.StatusCode != http.StatusOK {
		t.Errorf("status = %d, want 200", gatewayErr.StatusCode)
	}
	if gatewayErr.Message != "limit exceeded" {
		t.Errorf("message = %q, want %q", gatewayErr.Message, "limit exceeded")
	}
}

func TestServerErrorMapsToGatewayError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer server.Close()

	_, err := testClient(server.URL).Balance(context.Background())

	var gatewayErr *domain.GatewayError
	if !errors.As(err, &gatewayErr) {
		t.Fatalf("expected *domain.GatewayError, got %v", err)
	}
	if gatewayErr.StatusCode != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", gatewayErr.StatusCode)
	}
}

func TestSignatureRejection(t *testing.T) {
	for _, status := range []int{http.StatusUnauthorized, http.StatusForbidden} {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "bad sign", status)
		}))

		_, err := testClient(server.URL).Payout(context.Background(), 19747, "4851")
		server.Close()

		if !errors.Is(err, domain.ErrSignatureRejected) {
			t.Errorf("HTTP %d: expected ErrSignatureRejected, got %v", status, err)
		}
	}
}

func TestTransportErrorMapsToGatewayError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	server.Close()

	_, err := testClient(server.URL).Balance(context.Background())

	var gatewayErr *domain.GatewayError
	if !errors.As(err, &gatewayErr) {
		t.Fatalf("expected *domain.GatewayError for a transport fault, got %v", err)
	}
}
