// Package oplog writes ledger operation events to zap.
package oplog

import (
	"context"

	"github.com/MarkoPoloResearchLab/cipherledger/internal/faults"
	"github.com/MarkoPoloResearchLab/cipherledger/pkg/ledger"
	"go.uber.org/zap"
)

const (
	logMessage     = "ledger operation"
	fieldOperation = "operation"
	fieldStatus    = "status"
	fieldEntryIDs  = "entry_ids"
	fieldError     = "error"
	fieldRequestID = "request_id"
)

type requestIDKey struct{}

// WithRequestID returns a context whose operation logs carry requestID.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, requestID)
}

// RequestID returns the request id stored by WithRequestID.
func RequestID(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	requestID, _ := ctx.Value(requestIDKey{}).(string)
	return requestID
}

// ZapLogger implements ledger.OperationLogger.
type ZapLogger struct {
	logger *zap.Logger
}

// NewZapLogger wraps logger. A nil logger discards everything.
func NewZapLogger(logger *zap.Logger) *ZapLogger {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ZapLogger{logger: logger}
}

// LogOperation logs one operation. Error text is masked.
func (zapLogger *ZapLogger) LogOperation(ctx context.Context, entry ledger.OperationLog) {
	ids := make([]int64, 0, len(entry.EntryIDs))
	for _, entryID := range entry.EntryIDs {
		ids = append(ids, entryID.Int64())
	}
	fields := []zap.Field{
		zap.String(fieldOperation, entry.Operation),
		zap.String(fieldStatus, entry.Status),
		zap.Int64s(fieldEntryIDs, ids),
	}
	if requestID := RequestID(ctx); requestID != "" {
		fields = append(fields, zap.String(fieldRequestID, requestID))
	}
	if entry.Error != nil {
		fields = append(fields, zap.String(fieldError, faults.Mask(entry.Error.Error())))
		zapLogger.logger.Warn(logMessage, fields...)
		return
	}
	zapLogger.logger.Info(logMessage, fields...)
}
