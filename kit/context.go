package kit

import "context"

type contextKey string

const (
	userKey      contextKey = "kit_user"
	transportKey contextKey = "kit_transport" // "http", "mcp", "cli"
	requestIDKey contextKey = "kit_request_id"
)

// WithUser records the authenticated user name.
func WithUser(ctx context.Context, user string) context.Context {
	return context.WithValue(ctx, userKey, user)
}

func GetUser(ctx context.Context) string {
	v, _ := ctx.Value(userKey).(string)
	return v
}

func WithTransport(ctx context.Context, t string) context.Context {
	return context.WithValue(ctx, transportKey, t)
}

// GetTransport defaults to "cli".
func GetTransport(ctx context.Context) string {
	if v, ok := ctx.Value(transportKey).(string); ok {
		return v
	}
	return "cli"
}

func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey, id)
}

func GetRequestID(ctx context.Context) string {
	v, _ := ctx.Value(requestIDKey).(string)
	return v
}
