package observability

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

const (
	correlationIDField = "correlationId"
	runIDField         = "runId"
)

type logFieldsKey struct{}

// logFields holds the identifiers attached to a request as it moves through a run.
type logFields struct {
	correlationID string
	runID         string
}

// NewLogger builds the JSON logger. Output goes to stderr so that CLI reports on stdout stay clean.
func NewLogger(level string) (*zap.Logger, error) {
	parsedLevel, err := parseLevel(level)
	if err != nil {
		return nil, err
	}

	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(parsedLevel)
	cfg.OutputPaths = []string{"stderr"}
	cfg.ErrorOutputPaths = []string{"stderr"}
	cfg.EncoderConfig.TimeKey = "timestamp"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	cfg.DisableStacktrace = true
	cfg.InitialFields = map[string]any{"service": "onboarding-engine"}

	logger, err := cfg.Build(zap.AddCaller())
	if err != nil {
		return nil, fmt.Errorf("failed to build logger: %w", err)
	}

	return logger, nil
}

func parseLevel(level string) (zapcore.Level, error) {
	normalized := strings.ToLower(strings.TrimSpace(level))
	switch normalized {
	case "":
		return zapcore.InfoLevel, nil
	case "warning":
		normalized = "warn"
	}

	var parsed zapcore.Level
	if err := parsed.UnmarshalText([]byte(normalized)); err != nil {
		return 0, fmt.Errorf("invalid log level %q: %w", level, err)
	}
	return parsed, nil
}

func fieldsFrom(ctx context.Context) logFields {
	if ctx == nil {
		return logFields{}
	}
	fields, _ := ctx.Value(logFieldsKey{}).(logFields)
	return fields
}

func withFields(ctx context.Context, update func(*logFields)) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	fields := fieldsFrom(ctx)
	update(&fields)
	return context.WithValue(ctx, logFieldsKey{}, fields)
}

func WithCorrelationID(ctx context.Context, correlationID string) context.Context {
	return withFields(ctx, func(f *logFields) { f.correlationID = correlationID })
}

func CorrelationIDFromContext(ctx context.Context) (string, bool) {
	id := fieldsFrom(ctx).correlationID
	return id, id != ""
}

func WithRunID(ctx context.Context, runID string) context.Context {
	return withFields(ctx, func(f *logFields) { f.runID = runID })
}

func RunIDFromContext(ctx context.Context) (string, bool) {
	id := fieldsFrom(ctx).runID
	return id, id != ""
}

// WithContextLogger decorates logger with the correlation and run ids carried by ctx.
func WithContextLogger(logger *zap.Logger, ctx context.Context) *zap.Logger {
	if logger == nil {
		return nil
	}

	fields := fieldsFrom(ctx)
	zapFields := make([]zap.Field, 0, 2)
	if fields.correlationID != "" {
		zapFields = append(zapFields, zap.String(correlationIDField, fields.correlationID))
	}
	if fields.runID != "" {
		zapFields = append(zapFields, zap.String(runIDField, fields.runID))
	}
	if len(zapFields) == 0 {
		return logger
	}

	return logger.With(zapFields...)
}
