package log

import (
	"context"
	"log/slog"
	"net/http"

	"sewa/internal/core"
)

type contextKey struct{}

// NewContext returns ctx carrying logger.
func NewContext(ctx context.Context, logger *Logger) context.Context {
	return context.WithValue(ctx, contextKey{}, logger)
}

// FromContext returns the request logger, or an app logger over
// slog.Default when none was attached.
func FromContext(ctx context.Context) *Logger {
	if logger, ok := ctx.Value(contextKey{}).(*Logger); ok {
		return logger
	}
	return &Logger{Logger: slog.Default(), component: ComponentApp}
}

// Middleware attaches logger to every request context.
func Middleware(logger *Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			next.ServeHTTP(w, r.WithContext(NewContext(r.Context(), logger)))
		})
	}
}

// StructuredLogger writes the request and ledger events with a fixed
// field vocabulary.
type StructuredLogger struct {
	logger *Logger
}

func NewStructuredLogger(logger *Logger) *StructuredLogger {
	return &StructuredLogger{logger: logger}
}

// LogHTTPStart logs the start of an HTTP request
func (sl *StructuredLogger) LogHTTPStart(ctx context.Context, r *http.Request, clientIP string) {
	fields := NewFields().
		WithHTTPRequest(r.Method, r.URL.Path, r.URL.RawQuery, r.Header.Get("User-Agent"), r.Header.Get("Referer")).
		WithClientIP(clientIP)

	sl.logger.WithComponent(ComponentHTTP).InfoContext(ctx, "HTTP request started", fields.ToSlice()...)
}

// LogHTTPEnd logs the completion of an HTTP request, at warn level for
// client errors and error level for server errors.
func (sl *StructuredLogger) LogHTTPEnd(ctx context.Context, r *http.Request, statusCode int, durationMs int64, clientIP string) {
	level := slog.LevelInfo
	switch {
	case statusCode >= 500:
		level = slog.LevelError
	case statusCode >= 400:
		level = slog.LevelWarn
	}

	fields := NewFields().
		WithHTTPRequest(r.Method, r.URL.Path, r.URL.RawQuery, "", "").
		WithHTTPResponse(statusCode, durationMs, statusCode < 400).
		WithClientIP(clientIP).
		WithComponent(ComponentHTTP)

	sl.logger.Logger.Log(ctx, level, "HTTP request completed", fields.ToSlice()...)
}

// LogBillRecorded logs a ledger append.
func (sl *StructuredLogger) LogBillRecorded(ctx context.Context, rec core.BillingRecord) {
	fields := NewFields().
		WithAssignment(rec.Tenant, rec.Unit, rec.Room).
		WithBill(rec.ID, rec.UnitsUsed, rec.Total).
		WithOperation(OpSubmit)
	fields[FieldInitial] = rec.IsInitial()

	sl.logger.WithComponent(ComponentBilling).InfoContext(ctx, "Bill recorded", fields.ToSlice()...)
}

// LogTenantRegistered logs a new tenant.
func (sl *StructuredLogger) LogTenantRegistered(ctx context.Context, t core.Tenant) {
	fields := NewFields().
		WithAssignment(t.Name, t.Unit, t.Room).
		WithOperation(OpRegister)
	fields[FieldTenantID] = t.ID

	sl.logger.WithComponent(ComponentDirectory).InfoContext(ctx, "Tenant registered", fields.ToSlice()...)
}

// LogRejected logs a request refused for a domain reason, such as an
// unknown tenant or a reading below the previous one.
func (sl *StructuredLogger) LogRejected(ctx context.Context, operation string, err error, fields LogFields) {
	if fields == nil {
		fields = NewFields()
	}
	fields.WithError(err, core.ErrorKind(err)).WithOperation(operation)

	sl.logger.WithComponent(ComponentBilling).WarnContext(ctx, "Request rejected", fields.ToSlice()...)
}

// LogError logs err under component at error level.
func (sl *StructuredLogger) LogError(ctx context.Context, msg string, err error, component string, operation string, fields LogFields) {
	if fields == nil {
		fields = NewFields()
	}
	fields.WithError(err, core.ErrorKind(err)).WithOperation(operation)

	sl.logger.WithComponent(component).ErrorContext(ctx, msg, fields.ToSlice()...)
}
