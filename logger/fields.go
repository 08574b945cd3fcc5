package logger

import (
	"context"

	"go.uber.org/zap"
)

// Standard field names for consistent structured logging.
// Use these constants instead of raw strings.
const (
	// Identity
	FieldRunID    = "run_id"
	FieldTask     = "task"
	FieldRecordID = "record_id"
	FieldCrate    = "crate"
	FieldVersion  = "version"

	// Components
	FieldComponent = "component"
	FieldWorker    = "worker_id"

	// Files and paths
	FieldPath    = "path"
	FieldJournal = "journal"
	FieldSQLFile = "sql_file"

	// Timing
	FieldDuration = "duration"

	// Errors
	FieldError = "error"

	// Counts and sizes
	FieldCount     = "count"
	FieldTotal     = "total"
	FieldSize      = "size"
	FieldBatchSize = "batch_size"
	FieldBatches   = "batches"
	FieldAffected  = "affected"
)

type contextKey string

const (
	runIDKey contextKey = "logger_run_id"
	taskKey  contextKey = "logger_task"
)

// WithRunID adds a run ID to the context for logging
func WithRunID(ctx context.Context, runID string) context.Context {
	return context.WithValue(ctx, runIDKey, runID)
}

// WithTask adds a task name to the context for logging
func WithTask(ctx context.Context, task string) context.Context {
	return context.WithValue(ctx, taskKey, task)
}

// FieldsFromContext extracts logging fields from context.
// Returns key-value pairs suitable for use with Infow/Warnw/etc.
func FieldsFromContext(ctx context.Context) []interface{} {
	var fields []interface{}

	if runID, ok := ctx.Value(runIDKey).(string); ok && runID != "" {
		fields = append(fields, FieldRunID, runID)
	}
	if task, ok := ctx.Value(taskKey).(string); ok && task != "" {
		fields = append(fields, FieldTask, task)
	}

	return fields
}

// FromContext returns log with the run and task fields carried by ctx.
func FromContext(ctx context.Context, log *zap.SugaredLogger) *zap.SugaredLogger {
	if log == nil {
		log = Logger
	}
	if fields := FieldsFromContext(ctx); len(fields) > 0 {
		return log.With(fields...)
	}
	return log
}
