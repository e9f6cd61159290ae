package stdio

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/ggoodman/hostbridge/internal/jsonrpc"
	"github.com/ggoodman/hostbridge/internal/linecodec"
	"golang.org/x/time/rate"
)

// Router turns one inbound line into exactly one response.
type Router interface {
	HandleLine(ctx context.Context, line []byte) *jsonrpc.Response
}

// Handler is a single-connection stdio transport. It reads newline-delimited
// requests from an io.Reader and writes one response line per request to an
// io.Writer. By default it uses os.Stdin and os.Stdout.
//
// Requests are handled strictly one at a time in arrival order.
type Handler struct {
	router Router

	r io.Reader
	w io.Writer
	l *slog.Logger

	maxLineBytes int
	limiter      *rate.Limiter
}

// NewHandler constructs a stdio Handler with defaults and applies options.
func NewHandler(router Router, opts ...Option) *Handler {
	h := &Handler{
		router:       router,
		r:            os.Stdin,
		w:            os.Stdout,
		l:            slog.Default(),
		maxLineBytes: linecodec.DefaultMaxLineBytes,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

type readResult struct {
	line []byte
	err  error
}

// Serve runs the read loop until EOF on the reader or the context is
// canceled. A clean EOF returns nil. Malformed or oversized lines are answered
// with an error response and the loop continues with the next line.
//
// Serve is safe to call at most once per Handler.
func (h *Handler) Serve(ctx context.Context) error {
	// Releases the reader goroutine when Serve returns early.
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	reader := linecodec.NewReader(h.r, h.maxLineBytes)
	writer := linecodec.NewWriter(h.w)

	lines := make(chan readResult)
	go func() {
		defer close(lines)
		for {
			line, err := reader.ReadLine()
			if line != nil {
				line = bytes.Clone(line)
			}
			select {
			case lines <- readResult{line: line, err: err}:
			case <-ctx.Done():
				return
			}
			if err != nil && !errors.Is(err, linecodec.ErrLineTooLong) {
				return
			}
		}
	}()

	h.l.InfoContext(ctx, "stdio.serve.start", slog.Int("max_line_bytes", h.maxLineBytes))

	for {
		var rr readResult
		select {
		case <-ctx.Done():
			h.l.InfoContext(ctx, "stdio.serve.stop", slog.String("reason", "context done"))
			return ctx.Err()
		case res, ok := <-lines:
			if !ok {
				return ctx.Err()
			}
			rr = res
		}

		switch {
		case rr.err == nil:
		case errors.Is(rr.err, linecodec.ErrLineTooLong):
			h.l.WarnContext(ctx, "stdio.read.too_long", slog.Int("max_line_bytes", h.maxLineBytes))
			resp := jsonrpc.NewErrorResponse(nil, jsonrpc.ErrorCodeParseError,
				fmt.Sprintf("parse error: line exceeds %d bytes", h.maxLineBytes), nil)
			if err := h.write(ctx, writer, resp); err != nil {
				return err
			}
			continue
		case errors.Is(rr.err, io.EOF):
			h.l.InfoContext(ctx, "stdio.serve.stop", slog.String("reason", "eof"))
			return nil
		default:
			h.l.ErrorContext(ctx, "stdio.read.fail", slog.String("err", rr.err.Error()))
			return fmt.Errorf("read request: %w", rr.err)
		}

		if h.limiter != nil {
			if err := h.limiter.Wait(ctx); err != nil {
				return err
			}
		}

		start := time.Now()
		resp := h.router.HandleLine(ctx, rr.line)
		if err := h.write(ctx, writer, resp); err != nil {
			return err
		}
		h.l.DebugContext(ctx, "stdio.handle_line.ok", slog.Int64("dur_ms", time.Since(start).Milliseconds()))
	}
}

func (h *Handler) write(ctx context.Context, w *linecodec.Writer, resp *jsonrpc.Response) error {
	b, err := jsonrpc.Marshal(resp)
	if err != nil {
		h.l.ErrorContext(ctx, "stdio.write.encode_fail", slog.String("err", err.Error()))
		fallback := jsonrpc.NewErrorResponse(resp.ID, jsonrpc.ErrorCodeInternalError, "internal error: response encoding failed", nil)
		if b, err = jsonrpc.Marshal(fallback); err != nil {
			return fmt.Errorf("encode response: %w", err)
		}
	}
	if err := w.WriteLine(b); err != nil {
		h.l.ErrorContext(ctx, "stdio.write.fail", slog.String("err", err.Error()))
		return fmt.Errorf("write response: %w", err)
	}
	return nil
}
