package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/ricesearch/quickquery/internal/app"
	"github.com/ricesearch/quickquery/internal/manager"
	"github.com/ricesearch/quickquery/internal/server"
)

// withApp builds the pipeline, runs fn and closes the pipeline again.
func withApp(cmd *cobra.Command, fn func(ctx context.Context, a *app.App) error) error {
	cfg, log, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	a, err := app.New(ctx, cfg, log)
	if err != nil {
		return err
	}

	runErr := fn(ctx, a)

	closeCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := a.Close(closeCtx); err != nil && runErr == nil {
		runErr = err
	}
	return runErr
}

func askCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ask <question>",
		Short: "Answer a question with the local pipeline",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			user, _ := cmd.Flags().GetString("user")
			bypass, _ := cmd.Flags().GetBool("no-cache")
			fastOnly, _ := cmd.Flags().GetBool("fast-only")
			text := strings.Join(args, " ")

			if c := remote(cmd); c != nil {
				if fastOnly {
					return fmt.Errorf("--fast-only is not available with --server")
				}
				ans, err := c.Answer(cmd.Context(), server.AnswerRequest{Query: text, UserID: user, BypassCache: bypass})
				if err != nil {
					return err
				}
				return printAnswer(cmd, ans)
			}

			return withApp(cmd, func(ctx context.Context, a *app.App) error {
				opts := manager.Options{UserID: user, BypassCache: bypass}

				var ans *manager.AnswerResult
				if fastOnly {
					ans = a.Manager.Answer(ctx, text, opts)
				} else {
					ans = a.Manager.ProcessQuery(ctx, text, opts)
				}
				return printAnswer(cmd, ans)
			})
		},
	}

	cmd.Flags().String("user", "", "user ID recorded with the metric")
	cmd.Flags().Bool("no-cache", false, "bypass the similarity cache")
	cmd.Flags().Bool("fast-only", false, "never use the fallback answerer")

	return cmd
}

func printAnswer(cmd *cobra.Command, ans *manager.AnswerResult) error {
	out := cmd.OutOrStdout()
	if outputJSON(cmd) {
		return printJSON(out, ans)
	}

	fmt.Fprintln(out, ans.Answer)
	fmt.Fprintf(out, "\n[%s] intent=%s confidence=%.2f time=%.1fms", ans.Method, ans.Intent, ans.Confidence, ans.ProcessingTimeMs)
	if ans.FromCache {
		fmt.Fprintf(out, " cached(similarity=%.2f)", ans.Similarity)
	}
	if ans.Speed != "" {
		fmt.Fprintf(out, " speed=%s", ans.Speed)
	}
	if !ans.Success && ans.ErrorKind != "" {
		fmt.Fprintf(out, " error=%s", ans.ErrorKind)
	}
	fmt.Fprintln(out)
	return nil
}

func compareCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "compare <question>",
		Short: "Run the fast path and the fallback side by side",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			user, _ := cmd.Flags().GetString("user")
			force, _ := cmd.Flags().GetBool("force")
			text := strings.Join(args, " ")

			if c := remote(cmd); c != nil {
				cmp, err := c.Compare(cmd.Context(), server.CompareRequest{Query: text, UserID: user, Force: force})
				if err != nil {
					return err
				}
				return printComparison(cmd, cmp)
			}

			return withApp(cmd, func(ctx context.Context, a *app.App) error {
				return printComparison(cmd, a.Manager.CompareVersions(ctx, text, manager.Options{UserID: user, ForceComparison: force}))
			})
		},
	}

	cmd.Flags().String("user", "", "user ID recorded with the metrics")
	cmd.Flags().Bool("force", false, "run the fallback even when the fast path succeeds")

	return cmd
}

func printComparison(cmd *cobra.Command, cmp *manager.Comparison) error {
	out := cmd.OutOrStdout()
	if outputJSON(cmd) {
		return printJSON(out, cmp)
	}

	printSide(cmd, "Fast", cmp.Fast)
	if cmp.Fallback != nil {
		printSide(cmd, "Fallback", cmp.Fallback)
	}
	if s := cmp.Summary; s != nil {
		fmt.Fprintf(out, "Summary: fast %.1fms vs fallback %.1fms (%.1f%% faster), %s, length ratio %.1f (%s)\n",
			s.FastMs, s.FallbackMs, s.SpeedDeltaPercent, s.Recommendation, s.LengthRatio, s.Accuracy)
	}
	return nil
}

func printSide(cmd *cobra.Command, name string, ans *manager.AnswerResult) {
	out := cmd.OutOrStdout()
	status := "ok"
	if !ans.Success {
		status = "failed: " + ans.Error
	}
	fmt.Fprintf(out, "== %s (%s, %.1fms)\n%s\n\n", name, status, ans.ProcessingTimeMs, ans.Answer)
}
