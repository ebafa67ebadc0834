package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

type Config struct {
	Port                  string
	AllowedOrigin         string
	DatabaseURL           string
	RedisAddr             string
	RedisPassword         string
	RedisDB               int
	SparepartCategoryID   int64
	SalesCacheTTLSeconds  int
	LowStockThreshold     int
	AuthSecret            string
	AccessTokenTTLMinutes int
	SnowflakeNodeID       int64
}

func Load() Config {
	redisDB, _ := strconv.Atoi(getEnv("REDIS_DB", "0"))
	ttl, err := strconv.Atoi(getEnv("SALES_CACHE_TTL_SECONDS", "30"))
	if err != nil || ttl < 1 {
		ttl = 30
	}
	tokenTTL, err := strconv.Atoi(getEnv("ACCESS_TOKEN_TTL_MINUTES", "480"))
	if err != nil || tokenTTL < 1 {
		tokenTTL = 480
	}
	lowStock, err := strconv.Atoi(getEnv("LOW_STOCK_THRESHOLD", "5"))
	if err != nil || lowStock < 1 {
		lowStock = 5
	}
	sparepartCategoryID, err := strconv.ParseInt(getEnv("SPAREPART_CATEGORY_ID", "1"), 10, 64)
	if err != nil || sparepartCategoryID < 1 {
		sparepartCategoryID = 1
	}
	nodeID, err := strconv.ParseInt(getEnv("SNOWFLAKE_NODE_ID", "1"), 10, 64)
	if err != nil || nodeID < 0 {
		nodeID = 1
	}

	cfg := Config{
		Port:                  getEnv("PORT", "8080"),
		AllowedOrigin:         getEnv("ALLOWED_ORIGIN", "http://127.0.0.1:3000"),
		DatabaseURL:           os.Getenv("DATABASE_URL"),
		RedisAddr:             os.Getenv("REDIS_ADDR"),
		RedisPassword:         os.Getenv("REDIS_PASSWORD"),
		RedisDB:               redisDB,
		SparepartCategoryID:   sparepartCategoryID,
		SalesCacheTTLSeconds:  ttl,
		LowStockThreshold:     lowStock,
		AuthSecret:            strings.TrimSpace(os.Getenv("AUTH_SECRET")),
		AccessTokenTTLMinutes: tokenTTL,
		SnowflakeNodeID:       nodeID,
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
