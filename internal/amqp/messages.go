package amqp

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"

	"cardwatch/internal/alerts"
	"cardwatch/internal/core"
)

// AMQP message types, carried in the Type property.
const (
	TypeFlagAlert   = "cardwatch.flag"
	TypeScanSummary = "cardwatch.summary"
)

// FlagAlertMessage announces one entity exceeding the threshold in one window
type FlagAlertMessage struct {
	RunID        string          `json:"run_id"`
	EntityKey    string          `json:"entity_key"`
	WindowStart  string          `json:"window_start"`
	WindowCenter string          `json:"window_center"`
	WindowEnd    string          `json:"window_end"`
	Sum          decimal.Decimal `json:"sum"`
	Threshold    decimal.Decimal `json:"threshold"`
	Timestamp    time.Time       `json:"timestamp"`
}

func NewFlagAlertMessage(runID string, f core.Flag) *FlagAlertMessage {
	w := f.Window()
	return &FlagAlertMessage{
		RunID:        runID,
		EntityKey:    f.EntityKey,
		WindowStart:  core.FormatTimestamp(w.Start()),
		WindowCenter: core.FormatTimestamp(w.Center),
		WindowEnd:    core.FormatTimestamp(w.End()),
		Sum:          f.Sum,
		Threshold:    f.Threshold,
		Timestamp:    time.Now(),
	}
}

// ToJSON converts the message to JSON bytes
func (m *FlagAlertMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

// FlagAlertMessageFromJSON creates a message from JSON bytes
func FlagAlertMessageFromJSON(data []byte) (*FlagAlertMessage, error) {
	var msg FlagAlertMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}

// ScanSummaryMessage closes a scan run
type ScanSummaryMessage struct {
	RunID      string          `json:"run_id"`
	RangeStart string          `json:"range_start"`
	RangeEnd   string          `json:"range_end"`
	Step       string          `json:"step"`
	Threshold  decimal.Decimal `json:"threshold"`
	Windows    int             `json:"windows"`
	Records    int             `json:"records"`
	Entities   int             `json:"entities"`
	Flags      int             `json:"flags"`
	Flagged    []string        `json:"flagged"`
	DurationMS int64           `json:"duration_ms"`
	Timestamp  time.Time       `json:"timestamp"`
}

func NewScanSummaryMessage(s alerts.Summary) *ScanSummaryMessage {
	flagged := s.Flagged
	if flagged == nil {
		flagged = []string{}
	}
	return &ScanSummaryMessage{
		RunID:      s.RunID.String(),
		RangeStart: core.FormatTimestamp(s.Range.Start),
		RangeEnd:   core.FormatTimestamp(s.Range.End),
		Step:       s.Step.String(),
		Threshold:  s.Threshold,
		Windows:    s.Windows,
		Records:    s.Records,
		Entities:   s.Entities,
		Flags:      s.Flags,
		Flagged:    flagged,
		DurationMS: s.Elapsed.Milliseconds(),
		Timestamp:  time.Now(),
	}
}

// ToJSON converts the message to JSON bytes
func (m *ScanSummaryMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

// ScanSummaryMessageFromJSON creates a message from JSON bytes
func ScanSummaryMessageFromJSON(data []byte) (*ScanSummaryMessage, error) {
	var msg ScanSummaryMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}
