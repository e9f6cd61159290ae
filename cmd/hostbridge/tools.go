package main

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"

	"github.com/ggoodman/hostbridge"
	"github.com/ggoodman/hostbridge/dispatch"
	"github.com/spf13/cobra"
)

func newToolsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tools",
		Short: "Print the registered tool catalog as JSON",
		Args:  cobra.NoArgs,
		RunE:  runTools,
	}
	cmd.Flags().Bool("full", false, "Print full definitions including schemas")
	cmd.Flags().String("category", "", "Only list tools in this category")
	return cmd
}

func runTools(cmd *cobra.Command, _ []string) error {
	cfg, _, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	// The catalog is read directly; nothing is submitted to the host thread.
	inline := dispatch.SchedulerFunc(func(fn func()) error {
		fn()
		return nil
	})
	b, err := hostbridge.New(inline,
		hostbridge.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
		hostbridge.WithServerInfo(cfg.Name, version),
		hostbridge.WithTools(collaboratorTools(cmd)...),
	)
	if err != nil {
		return fmt.Errorf("build bridge: %w", err)
	}
	defer b.Shutdown()

	category, _ := cmd.Flags().GetString("category")
	summaries := b.Registry().List(category, "")

	var out any = summaries
	if full, _ := cmd.Flags().GetBool("full"); full {
		defs := make([]any, 0, len(summaries))
		for _, s := range summaries {
			if def, ok := b.Registry().Describe(s.ID); ok {
				defs = append(defs, def)
			}
		}
		out = defs
	}

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	return enc.Encode(out)
}
