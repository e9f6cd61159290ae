package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"time"

	"github.com/ggoodman/hostbridge/dispatch"
	"github.com/ggoodman/hostbridge/internal/jsonrpc"
	"github.com/ggoodman/hostbridge/internal/logctx"
	"github.com/ggoodman/hostbridge/tools"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

const (
	DefaultCallTimeout     = 30 * time.Second
	DefaultMetadataTimeout = 10 * time.Second
)

// Wire method names.
const (
	MethodToolsCall     = "tools/call"
	MethodToolsList     = "tools/list"
	MethodToolsDescribe = "tools/describe"
	MethodServerInfo    = "server/info"
)

// ServerInfoTool is the tool the deprecated server/info method forwards to.
const ServerInfoTool = "server.info"

const serverInfoDeprecation = `server/info is deprecated; use tools/call with tool "server.info"`

const instrumentationName = "github.com/ggoodman/hostbridge"

// Engine routes decoded requests to the tool registry. Every registry access
// is marshaled onto the host thread through the dispatcher.
type Engine struct {
	registry *tools.Registry
	disp     *dispatch.Dispatcher
	log      *slog.Logger

	callTimeout     time.Duration
	metadataTimeout time.Duration

	tracerProvider trace.TracerProvider
	meterProvider  metric.MeterProvider
	tracer         trace.Tracer
	requests       metric.Int64Counter
	duration       metric.Float64Histogram
}

type EngineOption func(*Engine)

// WithLogger sets a custom logger for the Engine.
func WithLogger(l *slog.Logger) EngineOption {
	return func(e *Engine) {
		if l != nil {
			e.log = l
		}
	}
}

// WithCallTimeout bounds tools/call and server/info. Non-positive values are ignored.
func WithCallTimeout(d time.Duration) EngineOption {
	return func(e *Engine) {
		if d > 0 {
			e.callTimeout = d
		}
	}
}

// WithMetadataTimeout bounds tools/list and tools/describe. Non-positive values are ignored.
func WithMetadataTimeout(d time.Duration) EngineOption {
	return func(e *Engine) {
		if d > 0 {
			e.metadataTimeout = d
		}
	}
}

// WithTracerProvider overrides the global OpenTelemetry tracer provider.
func WithTracerProvider(tp trace.TracerProvider) EngineOption {
	return func(e *Engine) {
		if tp != nil {
			e.tracerProvider = tp
		}
	}
}

// WithMeterProvider overrides the global OpenTelemetry meter provider.
func WithMeterProvider(mp metric.MeterProvider) EngineOption {
	return func(e *Engine) {
		if mp != nil {
			e.meterProvider = mp
		}
	}
}

func NewEngine(registry *tools.Registry, disp *dispatch.Dispatcher, opts ...EngineOption) (*Engine, error) {
	e := &Engine{
		registry:        registry,
		disp:            disp,
		log:             slog.Default(),
		callTimeout:     DefaultCallTimeout,
		metadataTimeout: DefaultMetadataTimeout,
		tracerProvider:  otel.GetTracerProvider(),
		meterProvider:   otel.GetMeterProvider(),
	}
	for _, opt := range opts {
		opt(e)
	}

	e.tracer = e.tracerProvider.Tracer(instrumentationName)
	meter := e.meterProvider.Meter(instrumentationName)

	var err error
	e.requests, err = meter.Int64Counter("hostbridge.requests",
		metric.WithDescription("Number of handled requests"),
	)
	if err != nil {
		return nil, fmt.Errorf("create requests counter: %w", err)
	}
	e.duration, err = meter.Float64Histogram("hostbridge.request.duration",
		metric.WithDescription("Duration of request handling in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, fmt.Errorf("create duration histogram: %w", err)
	}

	return e, nil
}

// HandleLine decodes one wire line and routes it. It always returns a
// response; malformed input yields ParseError or InvalidRequest.
func (e *Engine) HandleLine(ctx context.Context, line []byte) *jsonrpc.Response {
	req, err := jsonrpc.DecodeRequest(line)
	if err != nil {
		var de *jsonrpc.DecodeError
		if !errors.As(err, &de) {
			de = &jsonrpc.DecodeError{ID: jsonrpc.NullRequestID(), Code: jsonrpc.ErrorCodeParseError, Msg: err.Error()}
		}
		e.log.InfoContext(ctx, "engine.handle_line.invalid", slog.String("err", de.Msg), slog.Int("code", int(de.Code)))
		e.record(ctx, "", de.Code.Name(), 0)
		return de.Response()
	}
	return e.HandleRequest(ctx, req)
}

// HandleRequest routes a decoded request. Faults raised while routing are
// recovered and reported as InternalError.
func (e *Engine) HandleRequest(ctx context.Context, req *jsonrpc.Request) (resp *jsonrpc.Response) {
	start := time.Now()
	ctx = logctx.WithRPCMessage(ctx, &logctx.RPCMessage{Method: req.Method, ID: req.ID.String()})

	ctx, span := e.tracer.Start(ctx, req.Method,
		trace.WithSpanKind(trace.SpanKindServer),
		trace.WithAttributes(attribute.String("rpc.method", req.Method)),
	)
	defer span.End()

	defer func() {
		if rec := recover(); rec != nil {
			e.log.ErrorContext(ctx, "engine.handle_request.panic", slog.Any("panic", rec))
			resp = jsonrpc.NewErrorResponse(req.ID, jsonrpc.ErrorCodeInternalError, "internal error", map[string]any{
				"faultType": fmt.Sprintf("%T", rec),
				"message":   fmt.Sprint(rec),
				"stack":     string(debug.Stack()),
			})
		}

		outcome := "ok"
		if resp.Error != nil {
			outcome = resp.Error.Data.Type
			span.SetAttributes(attribute.Int("hostbridge.error_code", int(resp.Error.Code)))
			span.SetStatus(codes.Error, resp.Error.Message)
		} else {
			span.SetStatus(codes.Ok, "")
		}
		e.record(ctx, req.Method, outcome, time.Since(start))
	}()

	switch req.Method {
	case MethodToolsCall:
		return e.handleToolsCall(ctx, req)
	case MethodToolsList:
		return e.handleToolsList(ctx, req)
	case MethodToolsDescribe:
		return e.handleToolsDescribe(ctx, req)
	case MethodServerInfo:
		return e.handleServerInfo(ctx, req)
	}

	e.log.InfoContext(ctx, "engine.handle_request.unsupported", slog.Int64("dur_ms", time.Since(start).Milliseconds()))
	return jsonrpc.NewErrorResponse(req.ID, jsonrpc.ErrorCodeMethodNotFound, fmt.Sprintf("method not found: %s", req.Method), nil)
}

func (e *Engine) record(ctx context.Context, method, outcome string, elapsed time.Duration) {
	switch method {
	case MethodToolsCall, MethodToolsList, MethodToolsDescribe, MethodServerInfo:
	default:
		method = "unknown"
	}
	attrs := metric.WithAttributes(
		attribute.String("rpc.method", method),
		attribute.String("outcome", outcome),
	)
	e.requests.Add(ctx, 1, attrs)
	e.duration.Record(ctx, elapsed.Seconds(), attrs)
}
