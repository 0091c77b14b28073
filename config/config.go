package config

import (
	"errors"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	payGateTestID  = "10011072130"
	payGateTestKey = "test"
)

type Config struct {
	App               AppConfig
	HTTP              ServerConfig
	MySQL             MySQLConfig
	Log               LogConfig
	InternalEndpoints InternalEndpointsConfig
	PayHost           PayHostConfig
	PayBatch          PayBatchConfig
	Gateway           GatewayConfig
	Rates             RatesConfig
	Jobs              JobsConfig
}

type AppConfig struct {
	ServiceName string
}

type ServerConfig struct {
	Host string
	Port string
}

type MySQLConfig struct {
	DSN             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

type LogConfig struct {
	Level  string
	Format string
}

type InternalEndpointsConfig struct {
	AuthGRPCAddr string
}

type PayHostConfig struct {
	ID          string
	Key         string
	APIURL      string
	ProcessURL  string
	HTTPTimeout time.Duration
}

type PayBatchConfig struct {
	ID                 string
	Key                string
	APIURL             string
	NotifyURL          string
	HTTPTimeout        time.Duration
	QueryRatePerSecond float64
}

// GatewayConfig carries the merchant switches resolved once at startup.
type GatewayConfig struct {
	ID               string
	TestMode         bool
	Vaulting         bool
	DisableRecurring bool
	EnableIframe     bool
	Locale           string
	Country          string
	CustomerTitle    string
	RedirectURL      string
	CheckoutURL      string
	ShopBaseURL      string
}

type RatesConfig struct {
	APIURL             string
	SettlementCurrency string
	AllowedCurrencies  []string
	HTTPTimeout        time.Duration
}

type JobsConfig struct {
	SubmitInterval  time.Duration
	QueryInterval   time.Duration
	OrderPageSize   int
	MaxAuthAttempts int
	LockTimeout     time.Duration
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	mysqlDSN := os.Getenv("MYSQL_DSN")
	if mysqlDSN == "" {
		return nil, errors.New("MYSQL_DSN environment variable is required")
	}

	cfg := &Config{
		App: AppConfig{
			ServiceName: getEnv("APP_SERVICE_NAME", "paygate-service"),
		},
		HTTP: ServerConfig{
			Host: getEnv("HTTP_HOST", "0.0.0.0"),
			Port: getEnv("HTTP_PORT", "8080"),
		},
		MySQL: MySQLConfig{
			DSN:             mysqlDSN,
			MaxOpenConns:    getIntEnv("MYSQL_MAX_OPEN_CONNS", 10),
			MaxIdleConns:    getIntEnv("MYSQL_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: getMinutesEnv("MYSQL_CONN_MAX_LIFETIME_MINUTES", 30*time.Minute),
		},
		Log: LogConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "json"),
		},
		InternalEndpoints: InternalEndpointsConfig{
			AuthGRPCAddr: getEnv("AUTH_SERVICE_GRPC_ADDR", "localhost:9090"),
		},
		PayHost: PayHostConfig{
			ID:          getEnv("PAYHOST_ID", ""),
			Key:         getEnv("PAYHOST_KEY", ""),
			APIURL:      getEnv("PAYHOST_API_URL", "https://secure.paygate.co.za/payhost/process.trans"),
			ProcessURL:  getEnv("PAYHOST_PROCESS_URL", "https://secure.paygate.co.za/payhost/process.trans"),
			HTTPTimeout: getSecondsEnv("PAYHOST_HTTP_TIMEOUT_SECONDS", 30*time.Second),
		},
		PayBatch: PayBatchConfig{
			ID:                 getEnv("PAYBATCH_ID", ""),
			Key:                getEnv("PAYBATCH_KEY", ""),
			APIURL:             getEnv("PAYBATCH_API_URL", "https://secure.paygate.co.za/paybatch/1.2/process.trans"),
			NotifyURL:          getEnv("PAYBATCH_NOTIFY_URL", ""),
			HTTPTimeout:        getSecondsEnv("PAYBATCH_HTTP_TIMEOUT_SECONDS", 60*time.Second),
			QueryRatePerSecond: getFloatEnv("PAYBATCH_QUERY_RATE_PER_SECOND", 2),
		},
		Gateway: GatewayConfig{
			ID:               getEnv("GATEWAY_ID", "payhostpaybatch"),
			TestMode:         getBoolEnv("GATEWAY_TEST_MODE", true),
			Vaulting:         getBoolEnv("GATEWAY_VAULTING", true),
			DisableRecurring: getBoolEnv("GATEWAY_DISABLE_RECURRING", false),
			EnableIframe:     getBoolEnv("GATEWAY_ENABLE_IFRAME", true),
			Locale:           getEnv("GATEWAY_LOCALE", "en-us"),
			Country:          getEnv("GATEWAY_COUNTRY", "ZAF"),
			CustomerTitle:    getEnv("GATEWAY_CUSTOMER_TITLE", "Mr"),
			RedirectURL:      getEnv("GATEWAY_REDIRECT_URL", ""),
			CheckoutURL:      getEnv("GATEWAY_CHECKOUT_URL", "/index.php/checkout"),
			ShopBaseURL:      getEnv("GATEWAY_SHOP_BASE_URL", ""),
		},
		Rates: RatesConfig{
			APIURL:             getEnv("RATES_API_URL", "https://api.exchangeratesapi.io/latest"),
			SettlementCurrency: strings.ToUpper(getEnv("RATES_SETTLEMENT_CURRENCY", "ZAR")),
			AllowedCurrencies:  getListEnv("RATES_ALLOWED_CURRENCIES", []string{"ZAR", "USD", "EUR", "GBP"}),
			HTTPTimeout:        getSecondsEnv("RATES_HTTP_TIMEOUT_SECONDS", 10*time.Second),
		},
		Jobs: JobsConfig{
			SubmitInterval:  getMinutesEnv("PAYBATCH_SUBMIT_INTERVAL_MINUTES", 24*time.Hour),
			QueryInterval:   getMinutesEnv("PAYBATCH_QUERY_INTERVAL_MINUTES", time.Hour),
			OrderPageSize:   getIntEnv("PAYBATCH_ORDER_PAGE_SIZE", 10),
			MaxAuthAttempts: getIntEnv("PAYBATCH_MAX_AUTH_ATTEMPTS", 10),
			LockTimeout:     getSecondsEnv("PAYBATCH_LOCK_TIMEOUT_SECONDS", 0),
		},
	}

	if cfg.Gateway.TestMode {
		cfg.PayHost.ID = payGateTestID
		cfg.PayHost.Key = payGateTestKey
		cfg.PayBatch.ID = payGateTestID
		cfg.PayBatch.Key = payGateTestKey
	}

	return cfg, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return defaultValue
}

func getFloatEnv(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.ParseFloat(value, 64); err == nil {
			return n
		}
	}
	return defaultValue
}

// getBoolEnv also accepts the yes/no spelling used by the shop settings export.
func getBoolEnv(key string, defaultValue bool) bool {
	value := strings.ToLower(strings.TrimSpace(os.Getenv(key)))
	switch value {
	case "":
		return defaultValue
	case "yes", "y", "on":
		return true
	case "no", "n", "off":
		return false
	}
	if b, err := strconv.ParseBool(value); err == nil {
		return b
	}
	return defaultValue
}

func getListEnv(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if strings.TrimSpace(value) == "" {
		return defaultValue
	}
	items := make([]string, 0)
	for _, part := range strings.Split(value, ",") {
		part = strings.ToUpper(strings.TrimSpace(part))
		if part != "" {
			items = append(items, part)
		}
	}
	if len(items) == 0 {
		return defaultValue
	}
	return items
}

func getMinutesEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if minutes, err := strconv.Atoi(value); err == nil {
			return time.Duration(minutes) * time.Minute
		}
	}
	return defaultValue
}

func getSecondsEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if seconds, err := strconv.Atoi(value); err == nil {
			return time.Duration(seconds) * time.Second
		}
	}
	return defaultValue
}
