package tools

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sort"
	"sync"
	"time"
)

type entry struct {
	def     Definition
	handler Handler
}

// Registry is the catalog of invokable tools. It is read-mostly: tools are
// registered in bulk at startup and cleared together at shutdown. All methods
// are safe for concurrent use.
//
// Clear races with in-flight invocations. An invocation that has already
// resolved its handler runs to completion; later lookups report not-found.
type Registry struct {
	mu    sync.RWMutex
	tools map[string]entry
	log   *slog.Logger
}

// Option configures a Registry.
type Option func(*Registry)

// WithLogger overrides the logger.
func WithLogger(l *slog.Logger) Option {
	return func(r *Registry) {
		if l != nil {
			r.log = l
		}
	}
}

// NewRegistry constructs an empty Registry.
func NewRegistry(opts ...Option) *Registry {
	r := &Registry{tools: make(map[string]entry), log: slog.Default()}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Register adds a tool. It fails if the id is empty or already present, the
// handler is nil, or the input schema is malformed.
func (r *Registry) Register(def Definition, h Handler) error {
	if err := checkDefinition(def); err != nil {
		return err
	}
	if h == nil {
		return fmt.Errorf("%w: tool %q: nil handler", ErrInvalidDefinition, def.ID)
	}
	if def.Name == "" {
		def.Name = def.ID
	}
	if def.Tier == "" {
		def.Tier = TierCore
	}
	if def.SafetyLevel == "" {
		def.SafetyLevel = SafetyReadOnly
	}
	if def.InputSchema == nil {
		def.InputSchema = map[string]ParameterSchema{}
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.tools[def.ID]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateTool, def.ID)
	}
	r.tools[def.ID] = entry{def: def, handler: h}
	r.log.Debug("tools.register", slog.String("tool", def.ID), slog.String("category", def.Category))
	return nil
}

// RegisterAll registers tools in order and stops at the first failure.
func (r *Registry) RegisterAll(ts ...Tool) error {
	for _, t := range ts {
		if err := r.Register(t.Definition, t.Handler); err != nil {
			return err
		}
	}
	return nil
}

// Describe returns the definition registered under id. The returned value
// shares schema maps with the registry and must not be modified.
func (r *Registry) Describe(id string) (Definition, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.tools[id]
	return e.def, ok
}

// List returns summaries of all tools matching the filters, sorted by id.
// An empty filter matches everything.
func (r *Registry) List(category, tier string) []Summary {
	r.mu.RLock()
	out := make([]Summary, 0, len(r.tools))
	for _, e := range r.tools {
		if category != "" && e.def.Category != category {
			continue
		}
		if tier != "" && e.def.Tier != tier {
			continue
		}
		out = append(out, e.def.Summary())
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Len returns the number of registered tools.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.tools)
}

// Clear removes every tool.
func (r *Registry) Clear() {
	r.mu.Lock()
	n := len(r.tools)
	r.tools = make(map[string]entry)
	r.mu.Unlock()
	r.log.Debug("tools.clear", slog.Int("count", n))
}

// Invoke validates args against the tool's input schema and runs its handler.
// Any failure, including a handler panic, is returned as *Error; nothing
// escapes as a panic.
func (r *Registry) Invoke(ctx context.Context, id string, args map[string]any) (Result, error) {
	start := time.Now()
	log := r.log.With(slog.String("tool", id))

	r.mu.RLock()
	e, ok := r.tools[id]
	r.mu.RUnlock()
	if !ok {
		log.InfoContext(ctx, "tools.invoke.not_found")
		return Result{}, notFound(id)
	}

	if args == nil {
		args = map[string]any{}
	}
	if errs := Validate(e.def.InputSchema, args); len(errs) > 0 {
		log.InfoContext(ctx, "tools.invoke.invalid", slog.Int("error_count", len(errs)))
		return Result{}, invalidArguments(id, errs)
	}

	res, err := callHandler(ctx, e.handler, Arguments(normalize(e.def.InputSchema, args)))
	if err != nil {
		log.ErrorContext(ctx, "tools.invoke.fail", slog.String("err", err.Error()), slog.Int64("dur_ms", time.Since(start).Milliseconds()))
		return Result{}, executionFailure(id, err)
	}
	if res.Output == nil {
		res.Output = map[string]any{}
	}
	log.InfoContext(ctx, "tools.invoke.ok", slog.Int64("dur_ms", time.Since(start).Milliseconds()))
	return res, nil
}

func callHandler(ctx context.Context, h Handler, args Arguments) (res Result, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = &PanicError{Value: rec, Stack: string(debug.Stack())}
		}
	}()
	return h(ctx, args)
}
