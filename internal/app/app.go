package app

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/koyif/cashdesk/internal/config"
	"github.com/koyif/cashdesk/internal/service"
	"github.com/redis/go-redis/v9"
)

type App struct {
	Config *config.Config
	DB     *sql.DB
	Redis  *redis.Client

	sweeper *service.Sweeper
}

func New(cfg *config.Config) (*App, error) {
	dbPool, err := initDB(cfg.DatabaseURL)
	if err != nil {
		return nil, err
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
	})

	return &App{
		Config: cfg,
		DB:     dbPool,
		Redis:  rdb,
	}, nil
}

func initDB(url string) (*sql.DB, error) {
	db, err := sql.Open("pgx", url)
	if err != nil {
		return nil, fmt.Errorf("error opening database: %w", err)
	}

	if err = db.Ping(); err != nil {
		err := db.Close()
		if err != nil {
			return nil, fmt.Errorf("error closing database after ping failure: %w", err)
		}
		return nil, fmt.Errorf("error pinging database: %w", err)
	}

	return db, nil
}

func (app *App) Run(ctx context.Context) error {
	if err := app.Redis.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("error pinging redis: %w", err)
	}

	if app.sweeper != nil {
		if err := app.sweeper.Start(); err != nil {
			return err
		}
	}

	return nil
}

func (app *App) Stop() {
	if app.sweeper != nil {
		app.sweeper.Stop()
	}
}
