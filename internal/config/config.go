package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

type Config struct {
	Port          string
	AllowedOrigin string
	DatabaseURL   string
	RedisAddr     string
	RedisPassword string
	RedisDB       int

	BranchID   string
	BranchCode string

	TaxRatePercent       float64
	SlipToleranceSatang  int64
	SlipRecencyHours     int
	ShopAccounts         []string
	SlipAPIURL           string
	SlipAPIKey           string
	SlipTimeoutSeconds   int
	UnpaidCancelAfterMin int

	AuthSecret            string
	AccessTokenTTLMinutes int
}

func Load() Config {
	// Local development reads a .env file if present; real deployments set
	// the environment directly.
	_ = godotenv.Load()

	redisDB, _ := strconv.Atoi(getEnv("REDIS_DB", "0"))

	taxRate, err := strconv.ParseFloat(getEnv("TAX_RATE_PERCENT", "7"), 64)
	if err != nil || taxRate < 0 {
		taxRate = 7
	}
	tolerance, err := strconv.ParseInt(getEnv("SLIP_TOLERANCE_SATANG", "100"), 10, 64)
	if err != nil || tolerance < 0 {
		tolerance = 100
	}
	recency, err := strconv.Atoi(getEnv("SLIP_RECENCY_HOURS", "24"))
	if err != nil || recency < 1 {
		recency = 24
	}
	slipTimeout, err := strconv.Atoi(getEnv("SLIP_TIMEOUT_SECONDS", "10"))
	if err != nil || slipTimeout < 1 {
		slipTimeout = 10
	}
	unpaidCancel, err := strconv.Atoi(getEnv("UNPAID_CANCEL_AFTER_MINUTES", "30"))
	if err != nil || unpaidCancel < 1 {
		unpaidCancel = 30
	}
	tokenTTL, err := strconv.Atoi(getEnv("ACCESS_TOKEN_TTL_MINUTES", "480"))
	if err != nil || tokenTTL < 1 {
		tokenTTL = 480
	}

	cfg := Config{
		Port:          getEnv("PORT", "8080"),
		AllowedOrigin: getEnv("ALLOWED_ORIGIN", "http://127.0.0.1:3000"),
		DatabaseURL:   os.Getenv("DATABASE_URL"),
		RedisAddr:     os.Getenv("REDIS_ADDR"),
		RedisPassword: os.Getenv("REDIS_PASSWORD"),
		RedisDB:       redisDB,

		BranchID:   getEnv("BRANCH_ID", "branch_001"),
		BranchCode: getEnv("BRANCH_CODE", "SAR"),

		TaxRatePercent:       taxRate,
		SlipToleranceSatang:  tolerance,
		SlipRecencyHours:     recency,
		ShopAccounts:         splitList(os.Getenv("SHOP_BANK_ACCOUNTS")),
		SlipAPIURL:           os.Getenv("SLIP_API_URL"),
		SlipAPIKey:           strings.TrimSpace(os.Getenv("SLIP_API_KEY")),
		SlipTimeoutSeconds:   slipTimeout,
		UnpaidCancelAfterMin: unpaidCancel,

		AuthSecret:            strings.TrimSpace(os.Getenv("AUTH_SECRET")),
		AccessTokenTTLMinutes: tokenTTL,
	}

	return cfg
}

func (c Config) Address() string {
	return fmt.Sprintf(":%s", c.Port)
}

func getEnv(key string, fallback string) string {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	return val
}

func splitList(raw string) []string {
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
