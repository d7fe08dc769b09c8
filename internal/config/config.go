package config

import (
	"errors"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

var AppEnv Config

type Config struct {
	Port           string
	MongoURI       string
	DBName         string
	JWTSecret      string
	AccessTokenTTL time.Duration

	PayHereMerchantID     string
	PayHereMerchantSecret string
	PayHereCheckoutURL    string
	PayHereCurrency       string

	// PublicBaseURL is where this API is reachable by the gateway.
	PublicBaseURL string
	// StorefrontURL is where the browser returns after checkout.
	StorefrontURL string

	RedisAddr    string
	KafkaBrokers []string

	ServiceName string
	LogLevel    string
}

func Load() {
	if err := godotenv.Load(); err != nil {
		log.Println(".env not loaded:", err)
	}
	AppEnv = FromEnv()
}

// FromEnv reads the configuration from the process environment.
func FromEnv() Config {
	publicBaseURL := getEnvOrDefault("PUBLIC_BASE_URL", "http://localhost:8080")
	return Config{
		Port:                  getEnvOrDefault("PORT", "8080"),
		MongoURI:              getEnvOrDefault("MONGO_URI", ""),
		DBName:                getEnvOrDefault("DB_NAME", "storefront"),
		JWTSecret:             getEnvOrDefault("JWT_SECRET", ""),
		AccessTokenTTL:        getDurationEnv("ACCESS_TOKEN_TTL", 20, time.Minute),
		PayHereMerchantID:     getEnvOrDefault("PAYHERE_MERCHANT_ID", ""),
		PayHereMerchantSecret: getEnvOrDefault("PAYHERE_MERCHANT_SECRET", ""),
		PayHereCheckoutURL:    getEnvOrDefault("PAYHERE_CHECKOUT_URL", ""),
		PayHereCurrency:       getEnvOrDefault("PAYHERE_CURRENCY", "LKR"),
		PublicBaseURL:         publicBaseURL,
		StorefrontURL:         getEnvOrDefault("STOREFRONT_URL", publicBaseURL),
		RedisAddr:             getEnvOrDefault("REDIS_ADDR", ""),
		KafkaBrokers:          splitCSV(getEnvOrDefault("KAFKA_BROKERS", "")),
		ServiceName:           getEnvOrDefault("SERVICE_NAME", "storefront"),
		LogLevel:              getEnvOrDefault("LOG_LEVEL", "info"),
	}
}

// Validate reports every missing required setting.
func (c Config) Validate() error {
	var errs []error
	if c.MongoURI == "" {
		errs = append(errs, errors.New("MONGO_URI is required"))
	}
	if c.JWTSecret == "" {
		errs = append(errs, errors.New("JWT_SECRET is required"))
	}
	if c.PayHereMerchantID == "" || c.PayHereMerchantSecret == "" {
		errs = append(errs, errors.New("PAYHERE_MERCHANT_ID and PAYHERE_MERCHANT_SECRET are required"))
	}
	return errors.Join(errs...)
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return defaultValue
}

func getDurationEnv(key string, defaultValue int, unit time.Duration) time.Duration {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil && parsed > 0 {
			return time.Duration(parsed) * unit
		}
	}
	return time.Duration(defaultValue) * unit
}

func splitCSV(value string) []string {
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
