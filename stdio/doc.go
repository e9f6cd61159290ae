// Package stdio implements the single-connection line transport over
// stdin/stdout. It is intended for running the bridge as a subprocess of the
// client that drives it.
//
// Characteristics
//
//	Connection model : 1 process <-> 1 client
//	Framing          : one JSON object per line, UTF-8, optional leading BOM
//	Ordering         : strictly sequential, one response per request line
//	Line cap         : 1 MiB by default (WithMaxLineBytes)
//
// Options allow supplying alternate io.Reader / io.Writer, a custom logger or
// inbound pacing.
//
// Example:
//
//	h := stdio.NewHandler(router, stdio.WithLogger(log))
//	if err := h.Serve(ctx); err != nil { log.Error("serve", "err", err) }
//
// Most programs use hostbridge.New, which wires the registry, dispatcher and
// router into a Handler.
package stdio
