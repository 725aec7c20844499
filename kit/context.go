package kit

import "context"

type contextKey string

// TransportKey marks which surface an endpoint invocation came through.
const TransportKey contextKey = "kit_transport" // "http", "mcp"

func WithTransport(ctx context.Context, t string) context.Context {
	return context.WithValue(ctx, TransportKey, t)
}

func GetTransport(ctx context.Context) string {
	if v, ok := ctx.Value(TransportKey).(string); ok {
		return v
	}
	return "http"
}
