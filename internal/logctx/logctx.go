package logctx

import (
	"context"
	"log/slog"
)

// Handler decorates records with the request, tool and work-item data carried
// in the context.
type Handler struct {
	slog.Handler
}

func (h Handler) Handle(ctx context.Context, r slog.Record) error {
	if msg, ok := ctx.Value(rpcMsg{}).(*RPCMessage); ok {
		r.AddAttrs(slog.Group("rpc",
			slog.String("method", msg.Method),
			slog.String("id", msg.ID),
		))
	}

	if td, ok := ctx.Value(toolCallDataKey{}).(*ToolCallData); ok {
		r.AddAttrs(slog.Group("tool",
			slog.String("id", td.ToolID),
		))
	}

	if wd, ok := ctx.Value(workDataKey{}).(*WorkData); ok {
		r.AddAttrs(slog.Group("work",
			slog.String("id", wd.WorkID),
		))
	}

	return h.Handler.Handle(ctx, r)
}

func (h Handler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return Handler{h.Handler.WithAttrs(attrs)}
}

func (h Handler) WithGroup(name string) slog.Handler {
	return Handler{h.Handler.WithGroup(name)}
}

type rpcMsg struct{}

type RPCMessage struct {
	Method string
	ID     string
}

func WithRPCMessage(ctx context.Context, msg *RPCMessage) context.Context {
	return context.WithValue(ctx, rpcMsg{}, msg)
}

type toolCallDataKey struct{}

type ToolCallData struct {
	ToolID string
}

func WithToolCallData(ctx context.Context, data *ToolCallData) context.Context {
	return context.WithValue(ctx, toolCallDataKey{}, data)
}

type workDataKey struct{}

// WorkData identifies a dispatcher work item.
type WorkData struct {
	WorkID string
}

func WithWorkData(ctx context.Context, data *WorkData) context.Context {
	return context.WithValue(ctx, workDataKey{}, data)
}
