package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/ricesearch/quickquery/internal/app"
	"github.com/ricesearch/quickquery/internal/metrics"
)

func windowFlag(cmd *cobra.Command) {
	cmd.Flags().StringP("window", "w", "24h", "time window (1h, 24h, 7d, 30d, all)")
}

func parseWindowFlag(cmd *cobra.Command) (metrics.Window, error) {
	raw, _ := cmd.Flags().GetString("window")
	return metrics.ParseWindow(raw)
}

func statsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show aggregate query statistics",
		RunE: func(cmd *cobra.Command, args []string) error {
			w, err := parseWindowFlag(cmd)
			if err != nil {
				return err
			}
			if c := remote(cmd); c != nil {
				s, err := c.Stats(cmd.Context(), w)
				if err != nil {
					return err
				}
				return printStats(cmd, *s)
			}
			return withApp(cmd, func(ctx context.Context, a *app.App) error {
				return printStats(cmd, a.Metrics.Stats(ctx, w))
			})
		},
	}
	windowFlag(cmd)
	return cmd
}

func printStats(cmd *cobra.Command, s metrics.Stats) error {
	out := cmd.OutOrStdout()
	if outputJSON(cmd) {
		return printJSON(out, s)
	}

	fmt.Fprintf(out, "Window:        %s\n", s.Window)
	fmt.Fprintf(out, "Queries:       %d\n", s.Total)
	fmt.Fprintf(out, "Success rate:  %.1f%%\n", s.SuccessRate)
	fmt.Fprintf(out, "Avg / p95 ms:  %.2f / %.2f\n", s.ResponseTimes.Avg, s.ResponseTimes.P95)
	fmt.Fprintf(out, "Cache hits:    %d (%.1f%%)\n", s.Cache.Hits, s.Cache.HitRate)
	for _, m := range s.Methods {
		fmt.Fprintf(out, "  %-12s %d\n", m.Method, m.Count)
	}
	return nil
}

func reportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "report",
		Short: "Print the performance report",
		RunE: func(cmd *cobra.Command, args []string) error {
			w, err := parseWindowFlag(cmd)
			if err != nil {
				return err
			}
			if c := remote(cmd); c != nil {
				report, err := c.Report(cmd.Context(), w)
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), report)
				return nil
			}
			return withApp(cmd, func(ctx context.Context, a *app.App) error {
				fmt.Fprintln(cmd.OutOrStdout(), a.Metrics.Report(ctx, w))
				return nil
			})
		},
	}
	windowFlag(cmd)
	return cmd
}

func exportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export metric records as CSV",
		RunE: func(cmd *cobra.Command, args []string) error {
			w, err := parseWindowFlag(cmd)
			if err != nil {
				return err
			}
			path, _ := cmd.Flags().GetString("output")

			if c := remote(cmd); c != nil {
				csv, err := c.ExportCSV(cmd.Context(), w)
				if err != nil {
					return err
				}
				return writeCSV(cmd, path, csv)
			}
			return withApp(cmd, func(ctx context.Context, a *app.App) error {
				csv, err := a.Metrics.ExportCSV(ctx, w)
				if err != nil {
					return err
				}
				return writeCSV(cmd, path, csv)
			})
		},
	}
	windowFlag(cmd)
	cmd.Flags().StringP("output", "o", "", "output file (default stdout)")
	return cmd
}

func writeCSV(cmd *cobra.Command, path, csv string) error {
	if path == "" || path == "-" {
		_, err := fmt.Fprint(cmd.OutOrStdout(), csv)
		return err
	}
	if err := os.WriteFile(path, []byte(csv), 0o644); err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}
	fmt.Fprintf(cmd.ErrOrStderr(), "Wrote %s\n", path)
	return nil
}
