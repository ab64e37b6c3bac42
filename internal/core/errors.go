package core

import (
	"errors"
	"fmt"
)

var (
	// ErrParse marks malformed input records. It fails the whole batch.
	ErrParse = errors.New("parse error")

	// ErrInvalidConfig marks scan parameters rejected before any scanning.
	ErrInvalidConfig = errors.New("invalid config")

	ErrEmptyEntityKey = errors.New("empty entity key")
	ErrZeroTimestamp  = errors.New("zero timestamp")
	ErrInvalidAmount  = errors.New("invalid amount")
	ErrNegativeAmount = errors.New("negative amount")
	ErrFieldCount     = errors.New("expected 3 fields: entity_key,timestamp,amount")
)

// ParseError describes a malformed record. Line is the input line (CSV) or
// row id (ledger); zero when unknown.
type ParseError struct {
	Line  int
	Field string
	Value string
	Err   error
}

func (e *ParseError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("line %d: invalid %s %q: %v", e.Line, e.Field, e.Value, e.Err)
	}
	return fmt.Sprintf("invalid %s %q: %v", e.Field, e.Value, e.Err)
}

// Unwrap lets errors.Is match both ErrParse and the underlying cause.
func (e *ParseError) Unwrap() []error {
	return []error{ErrParse, e.Err}
}

// ConfigError describes a rejected scan parameter.
type ConfigError struct {
	Field  string
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

func (e *ConfigError) Unwrap() error {
	return ErrInvalidConfig
}

// FieldOf names the record field a Transaction.Validate error refers to.
func FieldOf(err error) string {
	switch {
	case errors.Is(err, ErrEmptyEntityKey):
		return "entity_key"
	case errors.Is(err, ErrZeroTimestamp):
		return "timestamp"
	case errors.Is(err, ErrNegativeAmount), errors.Is(err, ErrInvalidAmount):
		return "amount"
	default:
		return "record"
	}
}
