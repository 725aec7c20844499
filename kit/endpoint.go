// Package kit provides the transport-agnostic endpoint abstraction shared by
// the HTTP control surface and the MCP tool surface: one Endpoint signature,
// composable middleware, and per-transport adapters.
package kit

import (
	"context"
	"log/slog"
	"time"
)

// Endpoint is a single transport-agnostic operation.
type Endpoint func(ctx context.Context, req any) (any, error)

// Middleware wraps an Endpoint with cross-cutting behaviour.
type Middleware func(Endpoint) Endpoint

// Chain composes middlewares; the first argument is the outermost.
func Chain(mws ...Middleware) Middleware {
	return func(next Endpoint) Endpoint {
		for i := len(mws) - 1; i >= 0; i-- {
			next = mws[i](next)
		}
		return next
	}
}

// Logging records each invocation of the wrapped endpoint with the transport
// it arrived through and how long it took.
func Logging(log *slog.Logger, name string) Middleware {
	if log == nil {
		log = slog.Default()
	}
	return func(next Endpoint) Endpoint {
		return func(ctx context.Context, req any) (any, error) {
			start := time.Now()
			resp, err := next(ctx, req)
			if err != nil {
				log.Warn("kit: endpoint failed", "endpoint", name,
					"transport", GetTransport(ctx), "duration", time.Since(start), "error", err)
				return nil, err
			}
			log.Debug("kit: endpoint handled", "endpoint", name,
				"transport", GetTransport(ctx), "duration", time.Since(start))
			return resp, nil
		}
	}
}
