package middleware

import "context"

type contextKey string

const (
	ctxProfileID  contextKey = "profile_id"
	ctxCheckpoint contextKey = "idempotency_checkpoint"
)

// ProfileIDFromContext returns the anonymous browser profile attached by Profile.
func ProfileIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if v, ok := ctx.Value(ctxProfileID).(string); ok {
		return v
	}
	return ""
}

func WithProfileID(ctx context.Context, profileID string) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, ctxProfileID, profileID)
}
