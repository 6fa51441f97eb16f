package logging

import (
	"context"
	"log/slog"
)

const (
	// FieldComponent is the standardized structured logging key for component names.
	FieldComponent = "component"
	// FieldWorker is the standardized structured logging key for the logged-in operator.
	FieldWorker = "worker"
	// FieldMode is the standardized structured logging key for the station mode.
	FieldMode = "mode"
	// FieldMasterLabel is the standardized structured logging key for the active master label.
	FieldMasterLabel = "master_label"
	// FieldSessionID is the standardized structured logging key for inspection session identifiers.
	FieldSessionID = "session_id"
	// FieldEventType tags a log line with a stable machine-readable event name.
	FieldEventType = "event_type"
	// FieldErrorHint carries the operator's next step for a warning or error.
	FieldErrorHint = "error_hint"
	// FieldImpact is the standardized key for user-facing consequence of a warning.
	FieldImpact = "impact"
)

type contextKey int

const (
	workerKey contextKey = iota
	modeKey
)

// WithWorker records the operator name on ctx for later log enrichment.
func WithWorker(ctx context.Context, worker string) context.Context {
	return context.WithValue(ctx, workerKey, worker)
}

// WithMode records the station mode on ctx for later log enrichment.
func WithMode(ctx context.Context, mode string) context.Context {
	return context.WithValue(ctx, modeKey, mode)
}

// ContextFields extracts standardized slog attributes from the provided context.
func ContextFields(ctx context.Context) []slog.Attr {
	if ctx == nil {
		return nil
	}
	fields := make([]slog.Attr, 0, 2)
	if worker, ok := ctx.Value(workerKey).(string); ok && worker != "" {
		fields = append(fields, slog.String(FieldWorker, worker))
	}
	if mode, ok := ctx.Value(modeKey).(string); ok && mode != "" {
		fields = append(fields, slog.String(FieldMode, mode))
	}
	return fields
}

// WithContext returns a logger augmented with structured fields derived from the supplied context.
func WithContext(ctx context.Context, logger *slog.Logger) *slog.Logger {
	if logger == nil {
		logger = NewNop()
	}
	fields := ContextFields(ctx)
	if len(fields) == 0 {
		return logger
	}
	return logger.With(attrsToArgs(fields)...)
}
