package main

import (
	"context"
	"errors"
	"log"
	"net"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/koyif/cashdesk/internal/app"
	"github.com/koyif/cashdesk/internal/config"
	"github.com/koyif/cashdesk/pkg/logger"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Printf("no .env file loaded: %v", err)
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("error loading config: %v", err)
	}

	if err = logger.Initialize(); err != nil {
		log.Fatalf("error starting logger: %v", err)
	}

	a, err := app.New(cfg)
	if err != nil {
		logger.Log.Fatal("error creating app", logger.Error(err))
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer cancel()

	router := a.Router()

	if err = a.Run(ctx); err != nil {
		logger.Log.Fatal("error starting app", logger.Error(err))
	}

	ongoingCtx, cancelOngoingRequests := context.WithCancel(context.Background())
	server := &http.Server{
		Addr:    cfg.Addr,
		Handler: router,
		BaseContext: func(_ net.Listener) context.Context {
			return ongoingCtx
		},
	}

	go startServer(server)

	<-ctx.Done()
	logger.Log.Info("shutting down")

	a.Stop()

	logger.Log.Info("stopping server")
	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancelShutdown()
	if err = server.Shutdown(shutdownCtx); err != nil {
		logger.Log.Error("error shutting down server", logger.Error(err))
	}
	cancelOngoingRequests()
	logger.Log.Info("server stopped")

	logger.Log.Info("closing redis connection")
	if err = a.Redis.Close(); err != nil {
		logger.Log.Error("error closing redis connection", logger.Error(err))
	}

	logger.Log.Info("closing database connection")
	if err = a.DB.Close(); err != nil {
		logger.Log.Error("error closing database connection", logger.Error(err))
	}
	logger.Log.Info("database connection closed")

	logger.Log.Info("shutdown complete")
}

func startServer(server *http.Server) {
	logger.Log.Info("starting server", logger.String("address", server.Addr))
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Log.Error("server error", logger.Error(err))
	}
}
