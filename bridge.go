package hostbridge

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/ggoodman/hostbridge/builtin"
	"github.com/ggoodman/hostbridge/dispatch"
	"github.com/ggoodman/hostbridge/internal/engine"
	"github.com/ggoodman/hostbridge/internal/jsonrpc"
	"github.com/ggoodman/hostbridge/stdio"
	"github.com/ggoodman/hostbridge/tools"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

// Bridge owns the tool registry, the host-thread dispatcher and the router.
// Construct it once with New, serve it with Serve and release it with
// Shutdown.
type Bridge struct {
	registry *tools.Registry
	disp     *dispatch.Dispatcher
	engine   *engine.Engine
	log      *slog.Logger

	instanceID string
	started    time.Time

	name    string
	version string
	tools   []tools.Tool

	callTimeout     time.Duration
	metadataTimeout time.Duration
	tracerProvider  trace.TracerProvider
	meterProvider   metric.MeterProvider

	stdioOpts []stdio.Option
}

// Option configures a Bridge.
type Option func(*Bridge)

// WithTools registers collaborator tools after the built-in ones.
func WithTools(ts ...tools.Tool) Option {
	return func(b *Bridge) { b.tools = append(b.tools, ts...) }
}

// WithLogger sets the logger shared by every component.
func WithLogger(l *slog.Logger) Option {
	return func(b *Bridge) {
		if l != nil {
			b.log = l
		}
	}
}

// WithServerInfo sets the name and version reported by server.info.
func WithServerInfo(name, version string) Option {
	return func(b *Bridge) {
		if name != "" {
			b.name = name
		}
		if version != "" {
			b.version = version
		}
	}
}

// WithCallTimeout bounds each tool invocation. Default 30s.
func WithCallTimeout(d time.Duration) Option {
	return func(b *Bridge) { b.callTimeout = d }
}

// WithMetadataTimeout bounds tools/list and tools/describe. Default 10s.
func WithMetadataTimeout(d time.Duration) Option {
	return func(b *Bridge) { b.metadataTimeout = d }
}

// WithTelemetry overrides the global OpenTelemetry providers. Nil values keep the globals.
func WithTelemetry(tp trace.TracerProvider, mp metric.MeterProvider) Option {
	return func(b *Bridge) {
		b.tracerProvider = tp
		b.meterProvider = mp
	}
}

// WithStdioOptions passes options through to the stdio transport.
func WithStdioOptions(opts ...stdio.Option) Option {
	return func(b *Bridge) { b.stdioOpts = append(b.stdioOpts, opts...) }
}

// New builds a Bridge whose tool handlers run on the thread behind sched.
// The built-in tools are registered first; a collaborator tool reusing one of
// their ids is an error.
func New(sched dispatch.Scheduler, opts ...Option) (*Bridge, error) {
	if sched == nil {
		return nil, fmt.Errorf("hostbridge: nil scheduler")
	}
	b := &Bridge{
		log:        slog.Default(),
		instanceID: uuid.NewString(),
		started:    time.Now(),
		name:       "hostbridge",
		version:    "dev",
	}
	for _, opt := range opts {
		opt(b)
	}

	b.registry = tools.NewRegistry(tools.WithLogger(b.log))
	if err := b.registry.RegisterAll(builtin.Tools(builtin.Info{
		Name:       b.name,
		Version:    b.version,
		InstanceID: b.instanceID,
		Started:    b.started,
		Catalog:    b.registry,
	})...); err != nil {
		return nil, fmt.Errorf("register built-in tools: %w", err)
	}
	if err := b.registry.RegisterAll(b.tools...); err != nil {
		return nil, fmt.Errorf("register tools: %w", err)
	}

	b.disp = dispatch.New(sched, dispatch.WithLogger(b.log))

	var err error
	b.engine, err = engine.NewEngine(b.registry, b.disp,
		engine.WithLogger(b.log),
		engine.WithCallTimeout(b.callTimeout),
		engine.WithMetadataTimeout(b.metadataTimeout),
		engine.WithTracerProvider(b.tracerProvider),
		engine.WithMeterProvider(b.meterProvider),
	)
	if err != nil {
		return nil, fmt.Errorf("build router: %w", err)
	}

	b.log.Info("hostbridge.new",
		slog.String("instance_id", b.instanceID),
		slog.Int("tool_count", b.registry.Len()),
	)
	return b, nil
}

// Registry exposes the tool catalog.
func (b *Bridge) Registry() *tools.Registry { return b.registry }

// InstanceID identifies this bridge process.
func (b *Bridge) InstanceID() string { return b.instanceID }

// Serve runs the stdio transport until EOF or ctx is done. r and w default to
// stdin and stdout when nil.
func (b *Bridge) Serve(ctx context.Context, r io.Reader, w io.Writer) error {
	opts := append([]stdio.Option{stdio.WithLogger(b.log), stdio.WithIO(r, w)}, b.stdioOpts...)
	return stdio.NewHandler(b.engine, opts...).Serve(ctx)
}

// HandleLine answers one protocol line in-process and returns the encoded
// response line without its terminator.
func (b *Bridge) HandleLine(ctx context.Context, line []byte) ([]byte, error) {
	return jsonrpc.Marshal(b.engine.HandleLine(ctx, line))
}

// Shutdown stops accepting host-thread work and clears the catalog. Requests
// arriving afterwards fail with InternalError or ToolNotFound.
func (b *Bridge) Shutdown() {
	b.disp.Close()
	b.registry.Clear()
	b.log.Info("hostbridge.shutdown", slog.String("instance_id", b.instanceID))
}
