package config

import (
	"flag"
	"fmt"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

type Config struct {
	Addr             string   `env:"RUN_ADDRESS" env-default:"localhost:8081"`
	DatabaseURL      string   `env:"DATABASE_URI"`
	RedisAddr        string   `env:"REDIS_ADDRESS" env-default:"localhost:6379"`
	RedisPassword    string   `env:"REDIS_PASSWORD"`
	PrivateKey       string   `env:"PRIVATE_KEY" env-default:"privatekey"`
	AuthDisabledURLs []string `env:"AUTH_DISABLED_URLS" env-default:"/login,/register" env-separator:","`

	GatewayBaseURL     string `env:"GATEWAY_BASE_URL" env-default:"https://partners.servcul.com/CashdeskBotAPI/"`
	GatewayHash        string `env:"GATEWAY_HASH"`
	GatewayCashierPass string `env:"GATEWAY_CASHIERPASS"`
	GatewayCashdeskID  int    `env:"GATEWAY_CASHDESK_ID" env-default:"77"`
	GatewayLanguage    string `env:"GATEWAY_LANGUAGE" env-default:"ru"`

	MinDeposit     float64       `env:"MIN_DEPOSIT" env-default:"100"`
	DepositTimeout time.Duration `env:"DEPOSIT_TIMEOUT" env-default:"600s"`
	SessionTTL     time.Duration `env:"SESSION_TTL" env-default:"1h"`
}

func Load() (*Config, error) {
	cfg := &Config{}

	flag.StringVar(&cfg.Addr, "a", "localhost:8081", "адрес эндпоинта HTTP-сервера")
	flag.StringVar(&cfg.DatabaseURL, "d", "", "URL базы данных")
	flag.StringVar(&cfg.GatewayBaseURL, "g", "https://partners.servcul.com/CashdeskBotAPI/", "базовый URL кассового API")

	flag.Parse()

	err := cleanenv.ReadEnv(cfg)
	if err != nil {
		return nil, fmt.Errorf("couldn't read environment variables: %w", err)
	}

	return cfg, nil
}
