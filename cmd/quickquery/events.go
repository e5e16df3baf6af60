package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/ricesearch/quickquery/internal/bus"
	"github.com/ricesearch/quickquery/internal/config"
	"github.com/ricesearch/quickquery/internal/feedback"
	"github.com/ricesearch/quickquery/internal/pkg/logger"
)

func eventsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "events",
		Short: "List telemetry events from the on-disk event log or follow them live",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := loadConfig(cmd)
			if err != nil {
				return err
			}

			if follow, _ := cmd.Flags().GetBool("follow"); follow {
				return followEvents(cmd, cfg.Bus, log)
			}

			path, _ := cmd.Flags().GetString("path")
			if path == "" {
				path = cfg.Bus.EventLog
			}
			if path == "" {
				return fmt.Errorf("no event log configured (set bus.event_log or pass --path)")
			}

			sinceRaw, _ := cmd.Flags().GetString("since")
			since, err := parseSince(sinceRaw, time.Now())
			if err != nil {
				return err
			}
			limit, _ := cmd.Flags().GetInt("limit")

			if replay, _ := cmd.Flags().GetBool("replay"); replay {
				return replayEvents(cmd, cfg.Bus, path, since, log)
			}

			events, err := bus.ReadEvents(path, since, limit)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if outputJSON(cmd) {
				return printJSON(out, events)
			}
			if len(events) == 0 {
				fmt.Fprintln(out, "No events.")
				return nil
			}
			for _, e := range events {
				fmt.Fprintf(out, "%s  %-40s %v\n", e.Timestamp.UTC().Format(time.RFC3339), e.Topic, e.Event.Payload)
			}
			return nil
		},
	}

	cmd.Flags().String("since", "24h", "only events newer than this duration ago or RFC3339 time (empty = all)")
	cmd.Flags().Int("limit", 100, "maximum number of events (0 = no limit)")
	cmd.Flags().String("path", "", "event log path (overrides config)")
	cmd.Flags().Bool("replay", false, "republish the selected events to the configured bus")
	cmd.Flags().Bool("follow", false, "consume feedback events from the kafka bus until interrupted")

	return cmd
}

// replayEvents republishes logged events to the configured transport, for
// example to backfill a Kafka topic after an outage.
func replayEvents(cmd *cobra.Command, busCfg config.BusConfig, path string, since time.Time, log *logger.Logger) error {
	events, err := bus.OpenEventLog(path)
	if err != nil {
		return err
	}
	defer events.Close()

	// The target must not log to the file being replayed.
	busCfg.EventLog = ""
	target, err := bus.NewBus(busCfg, nil, log)
	if err != nil {
		return err
	}
	defer target.Close()

	n, err := events.Replay(cmd.Context(), target, since)
	if err != nil {
		return fmt.Errorf("replayed %d events: %w", n, err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Replayed %d events to the %s bus\n", n, busCfg.Type)
	return nil
}

// followEvents prints feedback events as they arrive on the Kafka topics.
// An in-memory bus only carries events of its own process, so following
// one would never print anything.
func followEvents(cmd *cobra.Command, busCfg config.BusConfig, log *logger.Logger) error {
	if busCfg.Type != "kafka" {
		return fmt.Errorf("--follow needs a kafka bus, got %q", busCfg.Type)
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	busCfg.EventLog = ""
	source, err := bus.NewBus(busCfg, nil, log)
	if err != nil {
		return err
	}
	defer source.Close()

	return consumeFeedback(ctx, cmd, source)
}

// consumeFeedback writes each feedback event of b to the command output
// until ctx is done.
func consumeFeedback(ctx context.Context, cmd *cobra.Command, b bus.Bus) error {
	out := cmd.OutOrStdout()
	asJSON := outputJSON(cmd)

	var mu sync.Mutex
	err := feedback.Subscribe(ctx, b, func(_ context.Context, e bus.Event) error {
		mu.Lock()
		defer mu.Unlock()
		if asJSON {
			return printJSON(out, e)
		}
		ts := time.UnixMilli(e.Timestamp).UTC().Format(time.RFC3339)
		_, err := fmt.Fprintf(out, "%s  %-40s %v\n", ts, e.Type, e.Payload)
		return err
	})
	if err != nil {
		return err
	}

	<-ctx.Done()
	return nil
}

// parseSince accepts a duration ("2h") or an RFC3339 timestamp.
func parseSince(raw string, now time.Time) (time.Time, error) {
	if raw == "" {
		return time.Time{}, nil
	}
	if d, err := time.ParseDuration(raw); err == nil {
		return now.Add(-d), nil
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid --since %q: want a duration or RFC3339 time", raw)
	}
	return t, nil
}
