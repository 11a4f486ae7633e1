package app

import (
	"github.com/go-chi/chi/v5"
	"github.com/koyif/cashdesk/internal/gateway"
	"github.com/koyif/cashdesk/internal/handler/admin"
	"github.com/koyif/cashdesk/internal/handler/balance"
	"github.com/koyif/cashdesk/internal/handler/deposit"
	"github.com/koyif/cashdesk/internal/handler/middleware"
	"github.com/koyif/cashdesk/internal/handler/user"
	"github.com/koyif/cashdesk/internal/notify"
	"github.com/koyif/cashdesk/internal/postgres"
	"github.com/koyif/cashdesk/internal/service"
	"github.com/koyif/cashdesk/internal/session"
	"github.com/shopspring/decimal"
)

func (app *App) Router() *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.WithRequestID)
	r.Use(middleware.WithAuth(app.Config))

	p := postgres.New(app.DB)
	sessions := session.New(app.Redis, app.Config.SessionTTL)
	notifier := notify.LogNotifier{}

	gatewayClient := gateway.NewClient(app.Config.GatewayBaseURL, app.Config.GatewayLanguage, gateway.Secrets{
		Hash:        app.Config.GatewayHash,
		CashierPass: app.Config.GatewayCashierPass,
		CashdeskID:  app.Config.GatewayCashdeskID,
	})

	userService := service.NewUserService(p, app.Config)
	userHandler := userhandler.New(userService)

	depositService := service.NewDepositService(
		p, p, gatewayClient, notifier,
		decimal.NewFromFloat(app.Config.MinDeposit),
		app.Config.DepositTimeout,
	)
	depositHandler := deposithandler.New(depositService)

	payoutService := service.NewPayoutService(p, p, gatewayClient, notifier)

	balanceService := service.NewBalanceService(p)
	balanceHandler := balancehandler.New(balanceService, payoutService)

	adminService := service.NewAdminService(p, gatewayClient)
	adminHandler := adminhandler.New(depositService, payoutService, adminService, sessions)

	app.sweeper = service.NewSweeper(depositService)

	r.Route("/api/user", func(r chi.Router) {
		r.Post("/register", userHandler.Register)
		r.Post("/login", userHandler.Login)

		r.Post("/deposits", depositHandler.Create)
		r.Get("/deposits", depositHandler.Deposits)
		r.Post("/deposits/{id}/confirm-paid", depositHandler.ConfirmPaid)
		r.Post("/deposits/{id}/proof", depositHandler.SubmitProof)
		r.Post("/deposits/proof", depositHandler.SubmitProof)
		r.Post("/deposits/{id}/cancel", depositHandler.Cancel)

		r.Get("/balance", balanceHandler.Balance)
		r.Post("/payouts", balanceHandler.RequestPayout)
		r.Get("/payouts", balanceHandler.Payouts)
		r.Post("/payouts/{id}/cancel", balanceHandler.CancelPayout)
	})

	r.Route("/api/admin", func(r chi.Router) {
		r.Use(middleware.WithAdmin)

		r.Get("/deposits", adminHandler.Deposits)
		r.Post("/deposits/{id}/accept", adminHandler.Accept)
		r.Post("/deposits/{id}/instructions", adminHandler.AttachInstructions)
		r.Post("/deposits/instructions", adminHandler.AttachInstructions)
		r.Post("/deposits/{id}/finalize", adminHandler.Finalize)
		r.Post("/deposits/{id}/reject", adminHandler.RejectDeposit)

		r.Get("/payouts", adminHandler.Payouts)
		r.Post("/payouts/{id}/approve", adminHandler.ApprovePayout)
		r.Post("/payouts/{id}/reject", adminHandler.RejectPayout)

		r.Get("/stats", adminHandler.Stats)
		r.Get("/users/{id}", adminHandler.LookupUser)
		r.Get("/users/{id}/deposits", adminHandler.UserDeposits)
		r.Get("/cashier-balance", adminHandler.CashdeskBalance)
	})

	return r
}
