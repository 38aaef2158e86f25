package domain

import (
	"context"
)

// Logger is the structured logging port used across the service.
// Every method takes the request context first so adapters can lift request-scoped values
// (request_id, group_id, user_id, asset_id) into the log line.
// `fields` are alternating key/value pairs.
type Logger interface {
	Debug(ctx context.Context, msg string, fields ...any)
	Info(ctx context.Context, msg string, fields ...any)
	Warn(ctx context.Context, msg string, fields ...any)
	Error(ctx context.Context, msg string, fields ...any)
	Fatal(ctx context.Context, msg string, fields ...any) // Fatal exits the process after logging

	// With returns a child logger that always carries the given key/value pairs.
	With(fields ...any) Logger
}
