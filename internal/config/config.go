package config

import (
	"os"
	"strconv"
	"time"

	handlerConfig "github.com/mcelebi/qrtransfer/internal/handler/config"
	loggerConfig "github.com/mcelebi/qrtransfer/internal/logger/config"
	mailboxConfig "github.com/mcelebi/qrtransfer/internal/mailbox/config"
	mailtaskConfig "github.com/mcelebi/qrtransfer/internal/mailtask/config"
	serviceConfig "github.com/mcelebi/qrtransfer/internal/service/config"
	storeConfig "github.com/mcelebi/qrtransfer/internal/store/config"
)

type Config struct {
	Handler  handlerConfig.Config
	Logger   loggerConfig.Config
	Store    storeConfig.Config
	Mailbox  mailboxConfig.Config
	Mailtask mailtaskConfig.Config
	Service  serviceConfig.Config
}

// GetConfig reads the whole configuration surface from the environment.
func GetConfig() Config {
	var cfg Config

	cfg.Handler.ServerAddr = envOr("RUN_ADDRESS", ":8080")
	cfg.Logger.LogLevel = envOr("LOG_LEVEL", "info")
	cfg.Store.DBDsn = os.Getenv("DATABASE_DSN")

	cfg.Mailbox.Host = os.Getenv("IMAP_HOST")
	cfg.Mailbox.Port = envIntOr("IMAP_PORT", 993)
	cfg.Mailbox.Security = envOr("IMAP_SECURITY", mailboxConfig.SecurityTLS)
	cfg.Mailbox.Username = os.Getenv("IMAP_USERNAME")
	cfg.Mailbox.Password = os.Getenv("IMAP_PASSWORD")

	cfg.Mailtask.Interval = envDurationOr("MAIL_SCAN_INTERVAL", time.Minute)
	cfg.Mailtask.CompletedAddr = envOr("COMPLETED_ADDRESS", "http://localhost:8080")

	cfg.Service.RecipientName = os.Getenv("QR_RECIPIENT_NAME")
	cfg.Service.RecipientIBAN = os.Getenv("QR_RECIPIENT_IBAN")
	cfg.Service.BankCode = os.Getenv("QR_BANK_CODE")
	cfg.Service.Dynamic = envBool("QR_DYNAMIC")
	cfg.Service.ReferenceNo = os.Getenv("QR_REFERENCE_NO")
	cfg.Service.PaymentDescription = os.Getenv("PAYMENT_DESCRIPTION")
	cfg.Service.DescriptionText = os.Getenv("DESCRIPTION_TEXT")
	cfg.Service.AdditionalFee = envFloat("ADDITIONAL_FEE")
	cfg.Service.AdditionalFeePercentage = envBool("ADDITIONAL_FEE_PERCENTAGE")
	cfg.Service.DisplayOrder = envIntOr("DISPLAY_ORDER", 0)

	return cfg
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envIntOr(key string, fallback int) int {
	if v, err := strconv.Atoi(os.Getenv(key)); err == nil {
		return v
	}
	return fallback
}

func envDurationOr(key string, fallback time.Duration) time.Duration {
	if v, err := time.ParseDuration(os.Getenv(key)); err == nil {
		return v
	}
	return fallback
}

func envBool(key string) bool {
	v, _ := strconv.ParseBool(os.Getenv(key))
	return v
}

func envFloat(key string) float64 {
	v, _ := strconv.ParseFloat(os.Getenv(key), 64)
	return v
}
