package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/ggoodman/hostbridge/dispatch"
	"github.com/ggoodman/hostbridge/internal/jsonrpc"
	"github.com/ggoodman/hostbridge/internal/logctx"
	"github.com/ggoodman/hostbridge/tools"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

type callParams struct {
	Tool      string         `json:"tool"`
	Arguments map[string]any `json:"arguments"`
}

type callResult struct {
	Tool        string         `json:"tool"`
	Output      map[string]any `json:"output"`
	Diagnostics []string       `json:"diagnostics,omitempty"`
}

type listParams struct {
	Category string `json:"category"`
	Tier     string `json:"tier"`
}

type listResult struct {
	Tools []tools.Summary `json:"tools"`
}

type describeParams struct {
	Tool string `json:"tool"`
}

func (e *Engine) handleToolsCall(ctx context.Context, req *jsonrpc.Request) *jsonrpc.Response {
	start := time.Now()
	log := e.log.With(slog.String("method", req.Method))

	var params callParams
	if err := jsonrpc.DecodeParams(req.Params, &params); err != nil {
		log.InfoContext(ctx, "engine.handle_request.invalid", slog.String("err", err.Error()), slog.Int64("dur_ms", time.Since(start).Milliseconds()))
		return jsonrpc.NewErrorResponse(req.ID, jsonrpc.ErrorCodeInvalidParams, "invalid params: "+err.Error(), nil)
	}
	if params.Tool == "" {
		log.InfoContext(ctx, "engine.handle_request.invalid", slog.String("err", "missing tool"), slog.Int64("dur_ms", time.Since(start).Milliseconds()))
		return jsonrpc.NewErrorResponse(req.ID, jsonrpc.ErrorCodeInvalidParams, "invalid params: tool is required", nil)
	}

	return e.callTool(ctx, req, params, start)
}

// handleServerInfo serves the deprecated alias by calling the server.info tool.
func (e *Engine) handleServerInfo(ctx context.Context, req *jsonrpc.Request) *jsonrpc.Response {
	start := time.Now()

	var params callParams
	if err := jsonrpc.DecodeParams(req.Params, &params); err != nil {
		e.log.InfoContext(ctx, "engine.handle_request.invalid", slog.String("err", err.Error()), slog.Int64("dur_ms", time.Since(start).Milliseconds()))
		return jsonrpc.NewErrorResponse(req.ID, jsonrpc.ErrorCodeInvalidParams, "invalid params: "+err.Error(), nil)
	}
	params.Tool = ServerInfoTool

	resp := e.callTool(ctx, req, params, start, serverInfoDeprecation)
	e.log.WarnContext(ctx, "engine.handle_request.deprecated", slog.String("method", req.Method))
	return resp
}

func (e *Engine) callTool(ctx context.Context, req *jsonrpc.Request, params callParams, start time.Time, extraDiagnostics ...string) *jsonrpc.Response {
	log := e.log.With(slog.String("method", req.Method))
	ctx = logctx.WithToolCallData(ctx, &logctx.ToolCallData{ToolID: params.Tool})
	trace.SpanFromContext(ctx).SetAttributes(attribute.String("hostbridge.tool", params.Tool))

	v, err := e.disp.Submit(ctx, e.callTimeout, func(ctx context.Context) (any, error) {
		return e.registry.Invoke(ctx, params.Tool, params.Arguments)
	})
	if err != nil {
		log.InfoContext(ctx, "engine.handle_request.fail", slog.String("err", err.Error()), slog.Int64("dur_ms", time.Since(start).Milliseconds()))
		return errorResponse(req.ID, params.Tool, err)
	}

	res, ok := v.(tools.Result)
	if !ok {
		log.ErrorContext(ctx, "engine.handle_request.fail", slog.String("err", fmt.Sprintf("unexpected result type %T", v)))
		return jsonrpc.NewToolErrorResponse(req.ID, jsonrpc.ErrorCodeInternalError, "internal error", params.Tool, nil)
	}

	out := callResult{Tool: params.Tool, Output: res.Output, Diagnostics: res.Diagnostics}
	out.Diagnostics = append(out.Diagnostics, extraDiagnostics...)
	if out.Output == nil {
		out.Output = map[string]any{}
	}

	resp, err := jsonrpc.NewResultResponse(req.ID, out)
	if err != nil {
		log.ErrorContext(ctx, "engine.handle_request.fail", slog.String("err", err.Error()))
		return jsonrpc.NewToolErrorResponse(req.ID, jsonrpc.ErrorCodeInternalError, "internal error", params.Tool, map[string]any{
			"faultType": fmt.Sprintf("%T", err),
			"message":   err.Error(),
		})
	}

	log.InfoContext(ctx, "engine.handle_request.ok", slog.Int64("dur_ms", time.Since(start).Milliseconds()))
	return resp
}

func (e *Engine) handleToolsList(ctx context.Context, req *jsonrpc.Request) *jsonrpc.Response {
	start := time.Now()
	log := e.log.With(slog.String("method", req.Method))

	var params listParams
	if err := jsonrpc.DecodeParams(req.Params, &params); err != nil {
		log.InfoContext(ctx, "engine.handle_request.invalid", slog.String("err", err.Error()), slog.Int64("dur_ms", time.Since(start).Milliseconds()))
		return jsonrpc.NewErrorResponse(req.ID, jsonrpc.ErrorCodeInvalidParams, "invalid params: "+err.Error(), nil)
	}

	v, err := e.disp.Submit(ctx, e.metadataTimeout, func(ctx context.Context) (any, error) {
		return e.registry.List(params.Category, params.Tier), nil
	})
	if err != nil {
		log.InfoContext(ctx, "engine.handle_request.fail", slog.String("err", err.Error()), slog.Int64("dur_ms", time.Since(start).Milliseconds()))
		return errorResponse(req.ID, "", err)
	}

	summaries, _ := v.([]tools.Summary)
	if summaries == nil {
		summaries = []tools.Summary{}
	}
	resp, err := jsonrpc.NewResultResponse(req.ID, listResult{Tools: summaries})
	if err != nil {
		log.ErrorContext(ctx, "engine.handle_request.fail", slog.String("err", err.Error()))
		return jsonrpc.NewErrorResponse(req.ID, jsonrpc.ErrorCodeInternalError, "internal error", nil)
	}

	log.InfoContext(ctx, "engine.handle_request.ok", slog.Int64("dur_ms", time.Since(start).Milliseconds()), slog.Int("tool_count", len(summaries)))
	return resp
}

func (e *Engine) handleToolsDescribe(ctx context.Context, req *jsonrpc.Request) *jsonrpc.Response {
	start := time.Now()
	log := e.log.With(slog.String("method", req.Method))

	var params describeParams
	if err := jsonrpc.DecodeParams(req.Params, &params); err != nil {
		log.InfoContext(ctx, "engine.handle_request.invalid", slog.String("err", err.Error()), slog.Int64("dur_ms", time.Since(start).Milliseconds()))
		return jsonrpc.NewErrorResponse(req.ID, jsonrpc.ErrorCodeInvalidParams, "invalid params: "+err.Error(), nil)
	}
	if params.Tool == "" {
		log.InfoContext(ctx, "engine.handle_request.invalid", slog.String("err", "missing tool"), slog.Int64("dur_ms", time.Since(start).Milliseconds()))
		return jsonrpc.NewErrorResponse(req.ID, jsonrpc.ErrorCodeInvalidParams, "invalid params: tool is required", nil)
	}
	ctx = logctx.WithToolCallData(ctx, &logctx.ToolCallData{ToolID: params.Tool})
	trace.SpanFromContext(ctx).SetAttributes(attribute.String("hostbridge.tool", params.Tool))

	type described struct {
		def tools.Definition
		ok  bool
	}
	v, err := e.disp.Submit(ctx, e.metadataTimeout, func(ctx context.Context) (any, error) {
		def, ok := e.registry.Describe(params.Tool)
		return described{def: def, ok: ok}, nil
	})
	if err != nil {
		log.InfoContext(ctx, "engine.handle_request.fail", slog.String("err", err.Error()), slog.Int64("dur_ms", time.Since(start).Milliseconds()))
		return errorResponse(req.ID, params.Tool, err)
	}

	d, _ := v.(described)
	if !d.ok {
		log.InfoContext(ctx, "engine.handle_request.not_found", slog.Int64("dur_ms", time.Since(start).Milliseconds()))
		return jsonrpc.NewToolErrorResponse(req.ID, jsonrpc.ErrorCodeToolNotFound, fmt.Sprintf("tool not found: %s", params.Tool), params.Tool, nil)
	}

	resp, err := jsonrpc.NewResultResponse(req.ID, d.def)
	if err != nil {
		log.ErrorContext(ctx, "engine.handle_request.fail", slog.String("err", err.Error()))
		return jsonrpc.NewToolErrorResponse(req.ID, jsonrpc.ErrorCodeInternalError, "internal error", params.Tool, nil)
	}

	log.InfoContext(ctx, "engine.handle_request.ok", slog.Int64("dur_ms", time.Since(start).Milliseconds()))
	return resp
}

// errorResponse maps registry and dispatcher failures onto the wire taxonomy.
func errorResponse(id *jsonrpc.RequestID, tool string, err error) *jsonrpc.Response {
	var (
		te *tools.Error
		to *dispatch.TimeoutError
		fe *dispatch.FaultError
	)
	switch {
	case errors.As(err, &te):
		code := jsonrpc.ErrorCodeToolExecutionError
		switch te.Kind {
		case tools.KindNotFound:
			code = jsonrpc.ErrorCodeToolNotFound
		case tools.KindInvalidArguments:
			code = jsonrpc.ErrorCodeInvalidToolArguments
		}
		return jsonrpc.NewToolErrorResponse(id, code, te.Message, te.Tool, te.Details)
	case errors.As(err, &to):
		return jsonrpc.NewToolErrorResponse(id, jsonrpc.ErrorCodeToolExecutionTimeout,
			fmt.Sprintf("timed out after %s", to.Timeout), tool,
			map[string]any{"timeoutMs": to.Timeout.Milliseconds()})
	case errors.As(err, &fe):
		return jsonrpc.NewToolErrorResponse(id, jsonrpc.ErrorCodeToolExecutionError, fe.Error(), tool, map[string]any{
			"faultType": fmt.Sprintf("%T", fe.Value),
			"message":   fmt.Sprint(fe.Value),
			"stack":     fe.Stack,
		})
	case errors.Is(err, dispatch.ErrClosed):
		return jsonrpc.NewToolErrorResponse(id, jsonrpc.ErrorCodeInternalError, "bridge is shutting down", tool, nil)
	}
	return jsonrpc.NewToolErrorResponse(id, jsonrpc.ErrorCodeInternalError, "internal error", tool, map[string]any{
		"faultType": fmt.Sprintf("%T", err),
		"message":   err.Error(),
	})
}
