package stdio

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"runtime"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ggoodman/hostbridge/dispatch"
	"github.com/ggoodman/hostbridge/internal/engine"
	"github.com/ggoodman/hostbridge/internal/jsonrpc"
	"github.com/ggoodman/hostbridge/tools"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// testHarness encapsulates pipes and collected output for stdio handler tests.
type testHarness struct {
	t       *testing.T
	stdinW  *io.PipeWriter
	outMu   sync.Mutex
	lines   []string
	serveCh chan error
}

func newRouter(t *testing.T, ctx context.Context) Router {
	t.Helper()

	reg := tools.NewRegistry()
	require.NoError(t, reg.RegisterAll(
		tools.Tool{
			Definition: tools.Definition{ID: "ping"},
			Handler: func(ctx context.Context, args tools.Arguments) (tools.Result, error) {
				return tools.Result{Output: map[string]any{"pong": true}}, nil
			},
		},
		tools.Tool{
			Definition: tools.Definition{
				ID:          "demo.hello",
				InputSchema: map[string]tools.ParameterSchema{"name": {Type: tools.TypeString, Required: true}},
			},
			Handler: func(ctx context.Context, args tools.Arguments) (tools.Result, error) {
				return tools.Result{Output: map[string]any{"greeting": "hello " + args["name"].(string)}}, nil
			},
		},
	))

	loop := dispatch.NewLoop(nil)
	go func() { _ = loop.Run(ctx) }()

	e, err := engine.NewEngine(reg, dispatch.New(loop))
	require.NoError(t, err)
	return e
}

func newHarness(t *testing.T, opts ...Option) *testHarness {
	t.Helper()

	inR, inW := io.Pipe()
	outR, outW := io.Pipe()

	ctx, cancel := context.WithCancel(context.Background())
	h := NewHandler(newRouter(t, ctx), append([]Option{WithIO(inR, outW)}, opts...)...)
	th := &testHarness{t: t, stdinW: inW, serveCh: make(chan error, 1)}

	go func() {
		th.serveCh <- h.Serve(ctx)
		_ = outW.Close()
	}()

	go func() {
		sc := bufio.NewScanner(outR)
		for sc.Scan() {
			line := sc.Text()
			th.t.Logf("OUT: %s", line)
			th.outMu.Lock()
			th.lines = append(th.lines, line)
			th.outMu.Unlock()
		}
	}()

	t.Cleanup(func() {
		cancel()
		_ = inW.Close()
		_ = outR.Close()
	})
	return th
}

func (th *testHarness) send(raw string) {
	th.t.Helper()
	_, err := th.stdinW.Write([]byte(raw))
	require.NoError(th.t, err)
}

func (th *testHarness) nextLine(timeout time.Duration) (string, error) {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		th.outMu.Lock()
		if len(th.lines) > 0 {
			s := th.lines[0]
			th.lines = th.lines[1:]
			th.outMu.Unlock()
			return s, nil
		}
		th.outMu.Unlock()
		time.Sleep(2 * time.Millisecond)
	}
	return "", fmt.Errorf("timeout waiting for output line")
}

func (th *testHarness) expectLine() string {
	th.t.Helper()
	line, err := th.nextLine(2 * time.Second)
	require.NoError(th.t, err)
	return line
}

func (th *testHarness) expectError(code jsonrpc.ErrorCode) map[string]any {
	th.t.Helper()
	var m map[string]any
	require.NoError(th.t, json.Unmarshal([]byte(th.expectLine()), &m))
	e, ok := m["error"].(map[string]any)
	require.True(th.t, ok, "expected error response, got %v", m)
	assert.Equal(th.t, float64(code), e["code"])
	return m
}

func TestServe_PingRoundTrip(t *testing.T) {
	th := newHarness(t)
	th.send(`{"protocolVersion":"2.0","id":1,"method":"tools/call","params":{"tool":"ping","arguments":{}}}` + "\n")
	assert.Equal(t, `{"protocolVersion":"2.0","id":1,"result":{"tool":"ping","output":{"pong":true}}}`, th.expectLine())
}

func TestServe_ResponsesInRequestOrder(t *testing.T) {
	th := newHarness(t)
	var batch strings.Builder
	for i := 0; i < 20; i++ {
		fmt.Fprintf(&batch, `{"protocolVersion":"2.0","id":%d,"method":"tools/call","params":{"tool":"ping"}}`+"\n", i)
	}
	th.send(batch.String())

	for i := 0; i < 20; i++ {
		assert.True(t, strings.HasPrefix(th.expectLine(), fmt.Sprintf(`{"protocolVersion":"2.0","id":%d,`, i)))
	}
}

func TestServe_MalformedLineThenContinues(t *testing.T) {
	th := newHarness(t)
	th.send("this is not json\n")
	m := th.expectError(jsonrpc.ErrorCodeParseError)
	assert.Nil(t, m["id"])

	th.send(`{"protocolVersion":"2.0","id":"a","method":"tools/call"}{}` + "\n")
	th.expectError(jsonrpc.ErrorCodeParseError)

	th.send(`{"id":"b","method":"tools/list"}` + "\n")
	m = th.expectError(jsonrpc.ErrorCodeInvalidRequest)
	assert.Equal(t, "b", m["id"])

	th.send(`{"protocolVersion":"2.0","id":2,"method":"tools/call","params":{"tool":"ping"}}` + "\n")
	assert.Contains(t, th.expectLine(), `"pong":true`)
}

func TestServe_BOMAndBlankLines(t *testing.T) {
	th := newHarness(t)
	th.send("\xEF\xBB\xBF\n   \n" + `{"protocolVersion":"2.0","id":1,"method":"tools/call","params":{"tool":"ping"}}` + "\r\n")
	assert.Equal(t, `{"protocolVersion":"2.0","id":1,"result":{"tool":"ping","output":{"pong":true}}}`, th.expectLine())
}

func TestServe_OversizedLine(t *testing.T) {
	th := newHarness(t, WithMaxLineBytes(128))
	big := `{"protocolVersion":"2.0","id":1,"method":"tools/call","params":{"tool":"ping","arguments":{"pad":"` + strings.Repeat("x", 4096) + `"}}}`
	th.send(big + "\n")
	m := th.expectError(jsonrpc.ErrorCodeParseError)
	assert.Nil(t, m["id"])

	th.send(`{"protocolVersion":"2.0","id":2,"method":"tools/call","params":{"tool":"ping"}}` + "\n")
	assert.Contains(t, th.expectLine(), `"id":2`)
}

func TestServe_ToolScenarios(t *testing.T) {
	th := newHarness(t)

	th.send(`{"protocolVersion":"2.0","id":1,"method":"tools/call","params":{"tool":"nonexistent"}}` + "\n")
	th.expectError(jsonrpc.ErrorCodeToolNotFound)

	th.send(`{"protocolVersion":"2.0","id":2,"method":"tools/call","params":{"tool":"demo.hello","arguments":{}}}` + "\n")
	m := th.expectError(jsonrpc.ErrorCodeInvalidToolArguments)
	details := m["error"].(map[string]any)["data"].(map[string]any)["details"].(map[string]any)
	errs := details["errors"].([]any)
	require.Len(t, errs, 1)
	assert.Equal(t, "name", errs[0].(map[string]any)["fieldPath"])
}

func TestServe_EOFEndsCleanly(t *testing.T) {
	th := newHarness(t)
	th.send(`{"protocolVersion":"2.0","id":1,"method":"tools/call","params":{"tool":"ping"}}`)
	require.NoError(t, th.stdinW.Close())

	assert.Contains(t, th.expectLine(), `"pong":true`)
	select {
	case err := <-th.serveCh:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Serve did not return after EOF")
	}
}

func TestServe_ContextCancel(t *testing.T) {
	inR, _ := io.Pipe()
	var out bytes.Buffer
	ctx, cancel := context.WithCancel(context.Background())
	h := NewHandler(newRouter(t, ctx), WithIO(inR, &out))

	done := make(chan error, 1)
	go func() { done <- h.Serve(ctx) }()
	cancel()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("Serve did not return after cancel")
	}
}

type routerFunc func(ctx context.Context, line []byte) *jsonrpc.Response

func (f routerFunc) HandleLine(ctx context.Context, line []byte) *jsonrpc.Response {
	return f(ctx, line)
}

type failingWriter struct{}

func (failingWriter) Write([]byte) (int, error) { return 0, io.ErrClosedPipe }

// readerGoroutines counts live goroutines running the Serve read loop.
func readerGoroutines() int {
	buf := make([]byte, 1<<20)
	buf = buf[:runtime.Stack(buf, true)]
	n := 0
	for _, g := range strings.Split(string(buf), "\n\n") {
		if strings.Contains(g, "stdio.(*Handler).Serve.func") {
			n++
		}
	}
	return n
}

func TestServe_WriteFailureStopsReader(t *testing.T) {
	before := readerGoroutines()

	var in strings.Builder
	for i := 0; i < 3; i++ {
		fmt.Fprintf(&in, `{"protocolVersion":"2.0","id":%d,"method":"tools/list"}`+"\n", i)
	}
	router := routerFunc(func(ctx context.Context, line []byte) *jsonrpc.Response {
		resp, err := jsonrpc.NewResultResponse(jsonrpc.NewRequestID(1), map[string]any{})
		require.NoError(t, err)
		return resp
	})
	h := NewHandler(router, WithIO(strings.NewReader(in.String()), failingWriter{}))

	err := h.Serve(context.Background())
	assert.ErrorIs(t, err, io.ErrClosedPipe)

	assert.Eventually(t, func() bool {
		return readerGoroutines() <= before
	}, 2*time.Second, 10*time.Millisecond)
}

func TestServe_RateLimitStillAnswersEverything(t *testing.T) {
	th := newHarness(t, WithRateLimit(200, 1))
	var batch strings.Builder
	for i := 0; i < 5; i++ {
		fmt.Fprintf(&batch, `{"protocolVersion":"2.0","id":%d,"method":"tools/call","params":{"tool":"ping"}}`+"\n", i)
	}
	th.send(batch.String())
	for i := 0; i < 5; i++ {
		assert.Contains(t, th.expectLine(), fmt.Sprintf(`"id":%d`, i))
	}
}
