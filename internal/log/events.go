package log

import (
	"context"
	"log/slog"
	"net/http"
	"time"
)

// RequestStarted is logged at debug so production logs keep one line per
// request.
func (l *Logger) RequestStarted(ctx context.Context, r *http.Request, clientIP string) {
	l.WithComponent(ComponentHTTP).DebugContext(ctx, "HTTP request started",
		Fields{}.Request(r).Add(FieldClientIP, clientIP)...)
}

// RequestFinished logs at info, warn for 4xx and error for 5xx.
func (l *Logger) RequestFinished(ctx context.Context, r *http.Request, clientIP string, status int, elapsed time.Duration, bytes int64) {
	level := slog.LevelInfo
	switch {
	case status >= 500:
		level = slog.LevelError
	case status >= 400:
		level = slog.LevelWarn
	}
	fields := Fields{}.Request(r).Add(FieldClientIP, clientIP).Response(status, elapsed, bytes)
	l.WithComponent(ComponentHTTP).log(ctx, level, "HTTP request completed", fields...)
}

// ExpenseChanged records a committed create or update.
func (l *Logger) ExpenseChanged(ctx context.Context, op, id, userID string, amountCents int64, category string) {
	l.WithComponent(ComponentExpense).InfoContext(ctx, "Expense "+op+"d",
		Fields{}.Add(FieldOperation, op).Expense(id, userID, amountCents, category)...)
}

// Failure logs err at error level under component.
func (l *Logger) Failure(ctx context.Context, msg string, err error, component, op string, extra Fields) {
	fields := append(Fields{}, extra...).Err(err).Add(FieldOperation, op)
	l.WithComponent(component).ErrorContext(ctx, msg, fields...)
}
