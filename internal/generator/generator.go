// Package generator produces synthetic card transactions for tests, benchmarks
// and the generate command. Output is fully determined by Config.Seed.
package generator

import (
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"math"
	"math/rand/v2"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"cardwatch/internal/core"
)

const (
	payloadDigits = 15
	defaultSigma  = 100.0
	defaultMaxGap = 24 * time.Hour
)

type Config struct {
	Cards int
	Range core.TimeRange
	Seed  uint64

	// Sigma is the spread of |N(0, Sigma)| amounts (default 100).
	Sigma float64

	// MaxGap bounds the time between two transactions of one card (default 24h, at least 1s).
	MaxGap time.Duration
}

func (c Config) withDefaults() Config {
	if c.Sigma <= 0 {
		c.Sigma = defaultSigma
	}
	if c.MaxGap < time.Second {
		c.MaxGap = defaultMaxGap
	}
	return c
}

// Generate returns transactions for cfg.Cards cards. Each card transacts in
// chronological order, every next timestamp drawn uniformly within MaxGap of
// the previous one, until the range end. Entity keys are HashCard of a
// Luhn-valid card number.
func Generate(cfg Config) ([]core.Transaction, error) {
	if cfg.Cards < 0 {
		return nil, fmt.Errorf("cards must not be negative, got %d", cfg.Cards)
	}
	if err := cfg.Range.Validate(); err != nil {
		return nil, err
	}
	cfg = cfg.withDefaults()

	r := rand.New(rand.NewPCG(cfg.Seed, cfg.Seed^0x9e3779b97f4a7c15))
	var out []core.Transaction
	for c := 0; c < cfg.Cards; c++ {
		key := HashCard(CardNumber(r))
		stamp := cfg.Range.Start
		for {
			stamp = RandomTime(r, stamp, stamp.Add(cfg.MaxGap))
			if !stamp.Before(cfg.Range.End) {
				break
			}
			out = append(out, core.Transaction{
				EntityKey:  key,
				OccurredAt: stamp,
				Amount:     Amount(r, cfg.Sigma),
			})
		}
	}
	return out, nil
}

// LuhnCheckDigit returns the digit that makes payload+digit pass the Luhn check.
func LuhnCheckDigit(payload string) (int, error) {
	sum := 0
	for i := 0; i < len(payload); i++ {
		ch := payload[len(payload)-1-i]
		if ch < '0' || ch > '9' {
			return 0, fmt.Errorf("non-digit %q in card payload", ch)
		}
		d := int(ch - '0')
		// the check digit will sit to the right, so the rightmost payload digit is doubled
		if i%2 == 0 {
			d *= 2
			if d > 9 {
				d -= 9
			}
		}
		sum += d
	}
	return (10 - sum%10) % 10, nil
}

// LuhnValid reports whether number passes the Luhn check.
func LuhnValid(number string) bool {
	if len(number) < 2 {
		return false
	}
	check := number[len(number)-1]
	want, err := LuhnCheckDigit(number[:len(number)-1])
	if err != nil {
		return false
	}
	return int(check-'0') == want
}

// CardNumber returns a random 16-digit Luhn-valid card number.
func CardNumber(r *rand.Rand) string {
	var b strings.Builder
	b.Grow(payloadDigits + 1)
	b.WriteByte(byte('1' + r.IntN(9)))
	for i := 1; i < payloadDigits; i++ {
		b.WriteByte(byte('0' + r.IntN(10)))
	}
	check, _ := LuhnCheckDigit(b.String())
	b.WriteByte(byte('0' + check))
	return b.String()
}

// HashCard returns the hex MD5 of a card number, used as the entity key.
func HashCard(number string) string {
	sum := md5.Sum([]byte(number))
	return hex.EncodeToString(sum[:])
}

// RandomTime returns a second-aligned instant in [start, end).
func RandomTime(r *rand.Rand, start, end time.Time) time.Time {
	span := int64(end.Sub(start) / time.Second)
	if span <= 0 {
		return start
	}
	return start.Add(time.Duration(r.Int64N(span)) * time.Second).Truncate(time.Second)
}

// Amount draws |N(0, sigma)| rounded to cents.
func Amount(r *rand.Rand, sigma float64) decimal.Decimal {
	return decimal.NewFromFloat(math.Abs(r.NormFloat64() * sigma)).Round(2)
}
