package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
)

// Ledger holds the external ledger integration settings. The identifiers are
// rows that already exist in the ledger and are stamped on every entry.
type Ledger struct {
	Enabled             bool
	Connection          string
	DSN                 string
	StaffID             int64
	BankAccountID       int64
	PaymentSubtypeID    int64
	DebitMemoSubtypeID  int64
	CreditMemoSubtypeID int64
	ReferenceWidth      int
}

type Gateway struct {
	BaseURL   string
	SecretKey string
	Timeout   time.Duration
}

type Fees struct {
	CardPercent decimal.Decimal
	BankFlat    decimal.Decimal
}

type Config struct {
	Port     string
	Env      string
	LogLevel string

	MongoURI      string
	MongoDatabase string

	AlertWebhookURL string

	Ledger  Ledger
	Gateway Gateway
	Fees    Fees
}

// Load reads an optional .env file and then the process environment.
func Load() (*Config, error) {
	_ = godotenv.Load(".env")

	cfg := &Config{
		Port:            getenv("SERVER_PORT", "8080"),
		Env:             getenv("ENVIRONMENT", "development"),
		LogLevel:        getenv("LOG_LEVEL", "info"),
		MongoURI:        os.Getenv("MONGO_URI"),
		MongoDatabase:   getenv("MONGO_DATABASE", "paysync"),
		AlertWebhookURL: os.Getenv("ALERT_WEBHOOK_URL"),
	}
	if cfg.MongoURI == "" {
		return nil, fmt.Errorf("MONGO_URI environment variable is required")
	}

	var err error
	if cfg.Ledger, err = loadLedger(); err != nil {
		return nil, err
	}
	if cfg.Gateway, err = loadGateway(); err != nil {
		return nil, err
	}
	if cfg.Fees, err = loadFees(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func loadLedger() (Ledger, error) {
	l := Ledger{
		Connection:     getenv("LEDGER_CONNECTION", "primary"),
		ReferenceWidth: 16,
	}

	enabled, err := strconv.ParseBool(getenv("LEDGER_ENABLED", "false"))
	if err != nil {
		return l, fmt.Errorf("LEDGER_ENABLED: %w", err)
	}
	l.Enabled = enabled
	if !l.Enabled {
		return l, nil
	}

	// Named connections let one deployment point at several ledger databases.
	dsnKey := "LEDGER_DSN_" + strings.ToUpper(l.Connection)
	l.DSN = os.Getenv(dsnKey)
	if l.DSN == "" {
		return l, fmt.Errorf("%s environment variable is required when LEDGER_ENABLED is set", dsnKey)
	}

	ids := []struct {
		key string
		dst *int64
	}{
		{"LEDGER_STAFF_ID", &l.StaffID},
		{"LEDGER_BANK_ACCOUNT_ID", &l.BankAccountID},
		{"LEDGER_PAYMENT_SUBTYPE_ID", &l.PaymentSubtypeID},
		{"LEDGER_DEBIT_MEMO_SUBTYPE_ID", &l.DebitMemoSubtypeID},
		{"LEDGER_CREDIT_MEMO_SUBTYPE_ID", &l.CreditMemoSubtypeID},
	}
	for _, id := range ids {
		v, err := strconv.ParseInt(os.Getenv(id.key), 10, 64)
		if err != nil || v <= 0 {
			return l, fmt.Errorf("%s must be a positive integer", id.key)
		}
		*id.dst = v
	}

	if w := os.Getenv("LEDGER_REFERENCE_WIDTH"); w != "" {
		width, err := strconv.Atoi(w)
		if err != nil || width <= 0 {
			return l, fmt.Errorf("LEDGER_REFERENCE_WIDTH must be a positive integer")
		}
		l.ReferenceWidth = width
	}
	return l, nil
}

func loadGateway() (Gateway, error) {
	g := Gateway{
		BaseURL:   os.Getenv("GATEWAY_BASE_URL"),
		SecretKey: os.Getenv("GATEWAY_SECRET_KEY"),
		Timeout:   10 * time.Second,
	}
	if g.BaseURL == "" {
		return g, fmt.Errorf("GATEWAY_BASE_URL environment variable is required")
	}
	if t := os.Getenv("GATEWAY_TIMEOUT"); t != "" {
		d, err := time.ParseDuration(t)
		if err != nil {
			return g, fmt.Errorf("GATEWAY_TIMEOUT: %w", err)
		}
		g.Timeout = d
	}
	return g, nil
}

func loadFees() (Fees, error) {
	card, err := decimal.NewFromString(getenv("FEE_CARD_PERCENT", "2.9"))
	if err != nil {
		return Fees{}, fmt.Errorf("FEE_CARD_PERCENT: %w", err)
	}
	bank, err := decimal.NewFromString(getenv("FEE_BANK_FLAT", "1.00"))
	if err != nil {
		return Fees{}, fmt.Errorf("FEE_BANK_FLAT: %w", err)
	}
	return Fees{CardPercent: card, BankFlat: bank}, nil
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
