// Package hostbridge lets an external client invoke named operations inside a
// long-running, single-threaded host application over a line-delimited JSON
// protocol on stdio.
//
// The host supplies a dispatch.Scheduler that runs callbacks on its designated
// thread. Every tool handler, and every catalog lookup, is marshaled onto that
// thread; the stdio reader never touches host state directly.
//
//	loop := dispatch.NewLoop(log)
//	go loop.Run(ctx)
//
//	b, err := hostbridge.New(loop,
//	    hostbridge.WithLogger(log),
//	    hostbridge.WithTools(echo.Tool()),
//	)
//	if err != nil { ... }
//	defer b.Shutdown()
//	err = b.Serve(ctx, os.Stdin, os.Stdout)
//
// A request line looks like
//
//	{"protocolVersion":"2.0","id":1,"method":"tools/call","params":{"tool":"ping","arguments":{}}}
//
// and is answered with exactly one line echoing the id:
//
//	{"protocolVersion":"2.0","id":1,"result":{"tool":"ping","output":{"pong":true}}}
//
// Supported methods are tools/call, tools/list, tools/describe and the
// deprecated server/info.
package hostbridge
