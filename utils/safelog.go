// utils/safelog.go
// Structured logging with masking of personal and financial data in production.

package utils

import (
	"io"
	"log/slog"
	"os"
	"regexp"
	"strings"

	"github.com/shopspring/decimal"
)

// LogConfig controls how SetupLogger builds the process logger.
type LogConfig struct {
	Level string
	// Production switches to JSON output and masks sensitive values.
	Production bool
	Output     io.Writer
}

var (
	emailRegex = regexp.MustCompile(`[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}`)

	// 50k, 1.5tr, 120.000đ, 200000 VND
	amountWithUnitRegex = regexp.MustCompile(`(?i)\b\d+([.,]\d+)*\s*(triệu|nghìn|ngàn|đồng|vnd|tr|k|đ)`)

	cardRegex = regexp.MustCompile(`\b\d{4}[\s-]?\d{4}[\s-]?\d{4}[\s-]?\d{4}\b`)

	uuidRegex = regexp.MustCompile(`[0-9a-fA-F]{8}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{12}`)
)

// sensitive attribute keys are always masked in production regardless of content.
var sensitiveKeys = map[string]bool{
	"email":    true,
	"amount":   true,
	"spent":    true,
	"limit":    true,
	"text":     true,
	"password": true,
	"token":    true,
}

// ParseLogLevel converts DEBUG/INFO/WARN/ERROR to a slog level, defaulting to INFO.
func ParseLogLevel(level string) slog.Level {
	switch strings.ToUpper(level) {
	case "DEBUG":
		return slog.LevelDebug
	case "WARN", "WARNING":
		return slog.LevelWarn
	case "ERROR":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// SetupLogger installs the default slog logger and returns it.
func SetupLogger(cfg LogConfig) *slog.Logger {
	if cfg.Output == nil {
		cfg.Output = os.Stderr
	}

	opts := &slog.HandlerOptions{Level: ParseLogLevel(cfg.Level)}

	var handler slog.Handler
	if cfg.Production {
		opts.ReplaceAttr = maskAttr
		handler = slog.NewJSONHandler(cfg.Output, opts)
	} else {
		handler = slog.NewTextHandler(cfg.Output, opts)
	}

	logger := slog.New(handler)
	slog.SetDefault(logger)
	return logger
}

func maskAttr(_ []string, a slog.Attr) slog.Attr {
	if a.Key == slog.TimeKey || a.Key == slog.LevelKey {
		return a
	}
	if sensitiveKeys[strings.ToLower(a.Key)] {
		return slog.String(a.Key, "***")
	}
	if strings.HasSuffix(a.Key, "user_id") || strings.HasSuffix(a.Key, "_id") {
		return slog.String(a.Key, MaskID(a.Value.String()))
	}
	if a.Value.Kind() == slog.KindString {
		return slog.String(a.Key, MaskString(a.Value.String()))
	}
	return a
}

// MaskString hides emails, card numbers and amounts, and shortens UUIDs.
func MaskString(input string) string {
	result := emailRegex.ReplaceAllString(input, "***@***.***")
	result = cardRegex.ReplaceAllString(result, "****-****-****-****")
	result = amountWithUnitRegex.ReplaceAllString(result, "***")
	return uuidRegex.ReplaceAllStringFunc(result, MaskID)
}

// MaskID keeps the first 8 characters of an identifier.
func MaskID(id string) string {
	if len(id) <= 8 {
		return "***"
	}
	return id[:8] + "..."
}

func MaskEmail(email string) string {
	at := strings.LastIndex(email, "@")
	if at <= 0 {
		return "***"
	}
	return email[:1] + "***" + email[at:]
}

// MaskAmount renders an amount, or *** when masking is on.
func MaskAmount(amount decimal.Decimal, production bool) string {
	if production {
		return "***"
	}
	return amount.StringFixed(2)
}
