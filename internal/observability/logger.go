package observability

import (
	"context"
	"strings"

	"github.com/MarkoPoloResearchLab/boxoffice/pkg/boxoffice"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

const securityDetailPrefix = "security:"

// ZapOperationLogger writes engine operations as structured log entries.
type ZapOperationLogger struct {
	logger *zap.Logger
}

// NewZapOperationLogger wraps logger; a nil logger discards everything.
func NewZapOperationLogger(logger *zap.Logger) *ZapOperationLogger {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ZapOperationLogger{logger: logger}
}

// LogOperation implements boxoffice.OperationLogger.
func (operationLogger *ZapOperationLogger) LogOperation(_ context.Context, entry boxoffice.OperationLog) {
	fields := []zap.Field{
		zap.String("operation", entry.Operation),
		zap.String("status", entry.Status),
	}
	if !entry.Reference.IsZero() {
		fields = append(fields, zap.String("reference", entry.Reference.String()))
	}
	if entry.UnitID != "" {
		fields = append(fields, zap.String("unit_id", entry.UnitID))
	}
	if entry.Quantity != 0 {
		fields = append(fields, zap.Int64("quantity", entry.Quantity))
	}
	if entry.Amount != 0 {
		fields = append(fields, zap.String("amount", entry.Amount.String()))
	}
	if entry.Provider != "" {
		fields = append(fields, zap.String("provider", entry.Provider.String()))
	}
	if entry.Subject != "" {
		fields = append(fields, zap.String("subject", entry.Subject))
	}
	if entry.Detail != "" {
		fields = append(fields, zap.String("detail", entry.Detail))
	}
	if entry.Error != nil {
		category, reason := boxoffice.Classify(entry.Error)
		fields = append(fields,
			zap.String("error_category", string(category)),
			zap.String("error_reason", reason),
			zap.Error(entry.Error),
		)
	}
	if checked := operationLogger.logger.Check(levelFor(entry), "boxoffice operation"); checked != nil {
		checked.Write(fields...)
	}
}

func levelFor(entry boxoffice.OperationLog) zapcore.Level {
	if strings.HasPrefix(entry.Detail, securityDetailPrefix) {
		return zapcore.WarnLevel
	}
	if entry.Error == nil {
		return zapcore.InfoLevel
	}
	switch category, _ := boxoffice.Classify(entry.Error); category {
	case boxoffice.CategoryFatal, boxoffice.CategoryTransient:
		return zapcore.ErrorLevel
	case boxoffice.CategoryAuthenticity:
		return zapcore.WarnLevel
	default:
		return zapcore.InfoLevel
	}
}

// FanOut forwards every operation to each logger in order.
type FanOut []boxoffice.OperationLogger

// LogOperation implements boxoffice.OperationLogger.
func (loggers FanOut) LogOperation(ctx context.Context, entry boxoffice.OperationLog) {
	for _, logger := range loggers {
		if logger != nil {
			logger.LogOperation(ctx, entry)
		}
	}
}
