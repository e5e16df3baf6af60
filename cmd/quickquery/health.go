package main

import (
	"context"
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"github.com/ricesearch/quickquery/internal/app"
	"github.com/ricesearch/quickquery/internal/manager"
)

func healthCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Run the health probe through the fast path",
		RunE: func(cmd *cobra.Command, args []string) error {
			if c := remote(cmd); c != nil {
				h, err := c.Health(cmd.Context())
				if err != nil {
					return err
				}
				return printHealth(cmd, h)
			}
			return withApp(cmd, func(ctx context.Context, a *app.App) error {
				h, _ := a.Manager.Health(ctx)
				return printHealth(cmd, h)
			})
		},
	}
}

func printHealth(cmd *cobra.Command, h *manager.Health) error {
	out := cmd.OutOrStdout()
	if outputJSON(cmd) {
		if err := printJSON(out, h); err != nil {
			return err
		}
	} else {
		fmt.Fprintf(out, "Status: %s (%.1fms)\n", h.Status, h.LatencyMs)
		names := make([]string, 0, len(h.Components))
		for name := range h.Components {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			c := h.Components[name]
			state := "ok"
			if !c.OK {
				state = "FAIL"
			}
			fmt.Fprintf(out, "  %-12s %-4s %s\n", name, state, c.Message)
		}
	}
	if !h.Healthy {
		return fmt.Errorf("unhealthy")
	}
	return nil
}
