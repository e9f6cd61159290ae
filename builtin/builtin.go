// Package builtin provides the diagnostic tools every bridge registers.
package builtin

import (
	"context"
	"fmt"
	"os"
	"runtime"
	"time"

	"github.com/ggoodman/hostbridge/internal/jsonrpc"
	"github.com/ggoodman/hostbridge/tools"
	"github.com/shirou/gopsutil/v3/process"
)

const categoryDiagnostics = "diagnostics"

// Catalog reports the number of registered tools.
type Catalog interface {
	Len() int
}

// Info describes the running bridge for the server.info tool.
type Info struct {
	Name       string
	Version    string
	InstanceID string
	Started    time.Time
	Catalog    Catalog
}

// Tools returns ping, server.info and host.process.
func Tools(info Info) []tools.Tool {
	return []tools.Tool{Ping(), ServerInfo(info), HostProcess()}
}

type noArgs struct{}

type pingOutput struct {
	Pong bool `json:"pong"`
}

// Ping answers {"pong":true}. Clients use it as a liveness check.
func Ping() tools.Tool {
	return tools.NewTool(tools.Definition{
		ID:          "ping",
		Name:        "Ping",
		Description: "Checks that the bridge and the host thread are responsive.",
		Category:    categoryDiagnostics,
		SafetyLevel: tools.SafetyReadOnly,
	}, func(ctx context.Context, r *tools.Request[noArgs]) (pingOutput, error) {
		return pingOutput{Pong: true}, nil
	})
}

type serverInfoOutput struct {
	Name            string `json:"name" jsonschema:"description=Bridge name"`
	Version         string `json:"version" jsonschema:"description=Bridge version"`
	ProtocolVersion string `json:"protocolVersion" jsonschema:"description=Wire protocol version"`
	InstanceID      string `json:"instanceId" jsonschema:"description=Unique id of this bridge process"`
	ToolCount       int    `json:"toolCount" jsonschema:"description=Number of registered tools"`
	UptimeMs        int64  `json:"uptimeMs" jsonschema:"description=Milliseconds since the bridge started"`
	GoVersion       string `json:"goVersion"`
}

// ServerInfo reports identity and uptime of the bridge.
func ServerInfo(info Info) tools.Tool {
	return tools.NewTool(tools.Definition{
		ID:          "server.info",
		Name:        "Server info",
		Description: "Returns the bridge name, version, protocol version and uptime.",
		Category:    categoryDiagnostics,
		SafetyLevel: tools.SafetyReadOnly,
	}, func(ctx context.Context, r *tools.Request[noArgs]) (serverInfoOutput, error) {
		out := serverInfoOutput{
			Name:            info.Name,
			Version:         info.Version,
			ProtocolVersion: jsonrpc.ProtocolVersion,
			InstanceID:      info.InstanceID,
			GoVersion:       runtime.Version(),
		}
		if info.Catalog != nil {
			out.ToolCount = info.Catalog.Len()
		}
		if !info.Started.IsZero() {
			out.UptimeMs = time.Since(info.Started).Milliseconds()
		}
		return out, nil
	})
}

type hostProcessArgs struct {
	IncludeCPU bool `json:"includeCpu,omitempty" jsonschema:"description=Also sample CPU usage (defaults to false)"`
}

type hostProcessOutput struct {
	PID        int32    `json:"pid"`
	RSSBytes   uint64   `json:"rssBytes"`
	VMSBytes   uint64   `json:"vmsBytes"`
	NumThreads int32    `json:"numThreads"`
	CPUPercent *float64 `json:"cpuPercent,omitempty"`
}

// HostProcess reports resource usage of the host process.
func HostProcess() tools.Tool {
	return tools.NewTool(tools.Definition{
		ID:          "host.process",
		Name:        "Host process",
		Description: "Reports memory, thread and optionally CPU usage of the host process.",
		Category:    categoryDiagnostics,
		SafetyLevel: tools.SafetyReadOnly,
		Notes:       "CPU usage is averaged over the process lifetime.",
	}, func(ctx context.Context, r *tools.Request[hostProcessArgs]) (hostProcessOutput, error) {
		pid := int32(os.Getpid())
		p, err := process.NewProcessWithContext(ctx, pid)
		if err != nil {
			return hostProcessOutput{}, fmt.Errorf("inspect process %d: %w", pid, err)
		}

		out := hostProcessOutput{PID: pid}
		mem, err := p.MemoryInfoWithContext(ctx)
		if err != nil {
			return hostProcessOutput{}, fmt.Errorf("read memory info: %w", err)
		}
		out.RSSBytes = mem.RSS
		out.VMSBytes = mem.VMS

		if n, err := p.NumThreadsWithContext(ctx); err == nil {
			out.NumThreads = n
		} else {
			r.Warnf("thread count unavailable: %v", err)
		}

		if r.Args().IncludeCPU {
			pct, err := p.CPUPercentWithContext(ctx)
			if err != nil {
				r.Warnf("cpu usage unavailable: %v", err)
			} else {
				out.CPUPercent = &pct
			}
		}
		return out, nil
	})
}
