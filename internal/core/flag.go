package core

import (
	"time"

	"github.com/shopspring/decimal"
)

// Flag records one entity exceeding the threshold in one window.
type Flag struct {
	EntityKey    string
	WindowCenter time.Time
	Sum          decimal.Decimal
	Threshold    decimal.Decimal
}

// Window returns the window the flag was raised in.
func (f Flag) Window() Window {
	return NewWindow(f.WindowCenter)
}
