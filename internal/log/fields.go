package log

import (
	"time"

	"cardwatch/internal/core"
)

// Common field names for structured logging
const (
	FieldComponent    = "component"
	FieldRunID        = "run_id"
	FieldDuration     = "duration_ms"
	FieldError        = "error"
	FieldOperation    = "operation"
	FieldEntityKey    = "entity_key"
	FieldWindowCenter = "window_center"
	FieldWindowStart  = "window_start"
	FieldWindowEnd    = "window_end"
	FieldWindowSum    = "window_sum"
	FieldThreshold    = "threshold"
	FieldStep         = "step"
	FieldRangeStart   = "range_start"
	FieldRangeEnd     = "range_end"
	FieldRecords      = "records"
	FieldEntities     = "entities"
	FieldWindows      = "windows"
	FieldFlagged      = "flagged"
	FieldWorkers      = "workers"
	FieldSource       = "source"
	FieldPath         = "path"
)

// Components defines standard component names
const (
	ComponentApp     = "app"
	ComponentCLI     = "cli"
	ComponentDetect  = "detect"
	ComponentIngest  = "ingest"
	ComponentLedger  = "ledger"
	ComponentSource  = "source"
	ComponentAMQP    = "amqp"
	ComponentMetrics = "metrics"
)

// Operations defines standard operation names
const (
	OpScan     = "scan"
	OpImport   = "import"
	OpGenerate = "generate"
	OpLoad     = "load"
	OpPublish  = "publish"
	OpValidate = "validate"
	OpParse    = "parse"
)

// ErrorTypes defines standard error type categories
const (
	ErrorTypeValidation    = "validation_error"
	ErrorTypeConfiguration = "configuration_error"
	ErrorTypeParse         = "parse_error"
	ErrorTypeDatabase      = "database_error"
	ErrorTypeNetwork       = "network_error"
	ErrorTypeInternal      = "internal_error"
)

// LogFields provides a builder pattern for structured log fields
type LogFields map[string]any

// NewFields creates a new LogFields instance
func NewFields() LogFields {
	return make(LogFields)
}

// WithComponent adds component field
func (f LogFields) WithComponent(component string) LogFields {
	f[FieldComponent] = component
	return f
}

// WithError adds error field
func (f LogFields) WithError(err error) LogFields {
	if err != nil {
		f[FieldError] = err.Error()
	}
	return f
}

// WithOperation adds operation field
func (f LogFields) WithOperation(op string) LogFields {
	f[FieldOperation] = op
	return f
}

// WithWindow adds window center and bounds
func (f LogFields) WithWindow(w core.Window) LogFields {
	f[FieldWindowCenter] = core.FormatTimestamp(w.Center)
	f[FieldWindowStart] = core.FormatTimestamp(w.Start())
	f[FieldWindowEnd] = core.FormatTimestamp(w.End())
	return f
}

// WithFlag adds the fields describing a flagged entity
func (f LogFields) WithFlag(fl core.Flag) LogFields {
	f[FieldEntityKey] = fl.EntityKey
	f[FieldWindowSum] = fl.Sum.String()
	f[FieldThreshold] = fl.Threshold.String()
	return f.WithWindow(fl.Window())
}

// WithRange adds the scan horizon
func (f LogFields) WithRange(r core.TimeRange) LogFields {
	f[FieldRangeStart] = core.FormatTimestamp(r.Start)
	f[FieldRangeEnd] = core.FormatTimestamp(r.End)
	return f
}

// WithDuration adds an elapsed time in milliseconds
func (f LogFields) WithDuration(d time.Duration) LogFields {
	f[FieldDuration] = d.Milliseconds()
	return f
}

// ToSlice converts LogFields to a slice for slog
func (f LogFields) ToSlice() []any {
	slice := make([]any, 0, len(f)*2)
	for k, v := range f {
		slice = append(slice, k, v)
	}
	return slice
}
