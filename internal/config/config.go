package config

import (
	"fmt"
	"math"
	"net/url"
	"os"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"cardwatch/internal/core"
)

// DateLayout is accepted for range bounds alongside core.TimestampLayout.
const DateLayout = "2006-01-02"

type Config struct {
	// Scan
	Threshold  string
	Step       string
	RangeStart string
	RangeEnd   string
	Workers    int

	// Input
	Source       string
	InputPath    string
	LedgerDBPath string

	// AMQP alerts, off when AMQPURL is empty
	AMQPURL        string
	AMQPExchange   string
	AMQPRoutingKey string

	// Observability
	MetricsFile string
	LogLevel    string
	LogFormat   string
}

func Load() *Config {
	cfg := &Config{
		Threshold:  getEnv("CARDWATCH_THRESHOLD", ""),
		Step:       getEnv("CARDWATCH_STEP", ""),
		RangeStart: getEnv("CARDWATCH_RANGE_START", ""),
		RangeEnd:   getEnv("CARDWATCH_RANGE_END", ""),
		Workers:    getEnvInt("CARDWATCH_WORKERS", runtime.GOMAXPROCS(0)),

		Source:       getEnv("CARDWATCH_SOURCE", "csv"),
		InputPath:    getEnv("CARDWATCH_INPUT", "transactions.csv"),
		LedgerDBPath: getEnv("LEDGER_DB_PATH", "./data/cardwatch.db"),

		AMQPURL:        getEnv("AMQP_URL", ""),
		AMQPExchange:   getEnv("AMQP_EXCHANGE", "cardwatch"),
		AMQPRoutingKey: getEnv("AMQP_ROUTING_KEY", "fraud.flagged"),

		MetricsFile: getEnv("METRICS_FILE", ""),
		LogLevel:    getEnv("LOG_LEVEL", "info"),
		LogFormat:   getEnv("LOG_FORMAT", "text"),
	}

	return cfg
}

// Validate checks every setting and reports all problems at once. The
// returned error matches core.ErrInvalidConfig.
func (c *Config) Validate() error {
	var errors []string

	if c.Threshold != "" {
		if _, err := ParseThreshold(c.Threshold); err != nil {
			errors = append(errors, err.Error())
		}
	}

	if c.Step != "" {
		if _, err := ParseStep(c.Step); err != nil {
			errors = append(errors, err.Error())
		}
	}

	if _, _, err := c.Range(); err != nil {
		errors = append(errors, err.Error())
	}

	if c.Workers < 1 {
		errors = append(errors, fmt.Sprintf("invalid workers %d: must be at least 1", c.Workers))
	} else if c.Workers > 1024 {
		errors = append(errors, fmt.Sprintf("invalid workers %d: must be at most 1024", c.Workers))
	}

	switch c.Source {
	case "csv":
		if c.InputPath == "" {
			errors = append(errors, "input path cannot be empty when using csv source")
		}
	case "ledger":
		if c.LedgerDBPath == "" {
			errors = append(errors, "ledger database path cannot be empty when using ledger source")
		}
	default:
		errors = append(errors, fmt.Sprintf("invalid source '%s': must be one of [csv ledger]", c.Source))
	}

	// Validate AMQP URL if provided
	if c.AMQPURL != "" {
		if parsedURL, err := url.Parse(c.AMQPURL); err != nil {
			errors = append(errors, fmt.Sprintf("invalid AMQP URL '%s': %v", c.AMQPURL, err))
		} else if parsedURL.Scheme != "amqp" && parsedURL.Scheme != "amqps" {
			errors = append(errors, fmt.Sprintf("invalid AMQP URL scheme '%s': must be 'amqp' or 'amqps'", parsedURL.Scheme))
		}
		if c.AMQPExchange == "" {
			errors = append(errors, "AMQP exchange name cannot be empty when AMQP URL is provided")
		}
		if c.AMQPRoutingKey == "" {
			errors = append(errors, "AMQP routing key cannot be empty when AMQP URL is provided")
		}
	}

	switch strings.ToLower(c.LogFormat) {
	case "text", "json":
	default:
		errors = append(errors, fmt.Sprintf("invalid log format '%s': must be 'text' or 'json'", c.LogFormat))
	}

	if len(errors) > 0 {
		return &core.ConfigError{
			Field:  "configuration",
			Reason: "\n- " + strings.Join(errors, "\n- "),
		}
	}

	return nil
}

// Range returns the configured scan range. ok is false when neither bound
// is set; setting only one of them is an error.
func (c *Config) Range() (rng core.TimeRange, ok bool, err error) {
	if c.RangeStart == "" && c.RangeEnd == "" {
		return core.TimeRange{}, false, nil
	}
	if c.RangeStart == "" || c.RangeEnd == "" {
		return core.TimeRange{}, false, &core.ConfigError{Field: "range", Reason: "start and end must be set together"}
	}
	start, err := ParseTime(c.RangeStart)
	if err != nil {
		return core.TimeRange{}, false, err
	}
	end, err := ParseTime(c.RangeEnd)
	if err != nil {
		return core.TimeRange{}, false, err
	}
	rng, err = core.NewTimeRange(start, end)
	if err != nil {
		return core.TimeRange{}, false, err
	}
	return rng, true, nil
}

// ScanStep returns the configured distance between window centers. There is
// no default: a scan without a step is a configuration error.
func (c *Config) ScanStep() (time.Duration, error) {
	if strings.TrimSpace(c.Step) == "" {
		return 0, &core.ConfigError{Field: "step", Reason: "required (set --step or CARDWATCH_STEP)"}
	}
	return ParseStep(c.Step)
}

// ParseStep parses a positive step given either as whole hours ("12") or as
// a Go duration ("90m", "6h").
func ParseStep(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	var d time.Duration
	if hours, err := strconv.ParseInt(s, 10, 64); err == nil {
		if hours > int64(math.MaxInt64/int64(time.Hour)) {
			return 0, &core.ConfigError{Field: "step", Reason: fmt.Sprintf("%q: too large", s)}
		}
		d = time.Duration(hours) * time.Hour
	} else if d, err = time.ParseDuration(s); err != nil {
		return 0, &core.ConfigError{Field: "step", Reason: fmt.Sprintf("%q: want whole hours or a duration like 6h", s)}
	}
	if d <= 0 {
		return 0, &core.ConfigError{Field: "step", Reason: fmt.Sprintf("%q: must be positive", s)}
	}
	return d, nil
}

// ParseThreshold parses a non-negative decimal amount.
func ParseThreshold(s string) (decimal.Decimal, error) {
	d, err := core.ParseAmount(s)
	if err != nil {
		return decimal.Decimal{}, &core.ConfigError{Field: "threshold", Reason: fmt.Sprintf("%q: %v", s, err)}
	}
	return d, nil
}

// ParseTime parses a range bound given either as a full timestamp or as a
// date, which means midnight UTC.
func ParseTime(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if t, err := core.ParseTimestamp(s); err == nil {
		return t, nil
	}
	if t, err := time.ParseInLocation(DateLayout, s, time.UTC); err == nil {
		return t, nil
	}
	return time.Time{}, &core.ConfigError{
		Field:  "range",
		Reason: fmt.Sprintf("%q: want %s or %s", s, core.TimestampLayout, DateLayout),
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}
