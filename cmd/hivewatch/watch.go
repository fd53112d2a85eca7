// ABOUTME: The watch command: follows a running server's event stream
// ABOUTME: Logs agent-state transitions derived by the consumer client

package main

import (
	"context"
	"log/slog"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/hivewatch/hivewatch/internal/client"
	"github.com/hivewatch/hivewatch/internal/config"
	"github.com/hivewatch/hivewatch/internal/state"
)

func newWatchCmd() *cobra.Command {
	var (
		addr       string
		session    string
		configPath string
	)

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Follow the live agent-state view of a running hivewatch server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWatch(cmd.Context(), addr, session, configPath)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "127.0.0.1:4567", "server address")
	cmd.Flags().StringVar(&session, "session", "", "only follow one session")
	cmd.Flags().StringVarP(&configPath, "config", "c", "", "path to config file (optional)")

	return cmd
}

func runWatch(parent context.Context, addr, session, configPath string) error {
	ctx, cancel := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	cfg := config.Default()
	if configPath != "" {
		loaded, err := config.Load(configPath)
		if err != nil {
			return err
		}
		cfg = loaded
	}

	logger := setupLogger(cfg.Logging)
	slog.SetDefault(logger)

	c := client.New(client.Options{
		URL:           "ws://" + addr + "/ws",
		SessionID:     session,
		ReducerConfig: reducerConfigFrom(cfg.State),
		BufferDelay:   cfg.State.BufferDelay,
		Logger:        logger,
	})

	go logTransitions(ctx, c, logger)

	err := c.Run(ctx)
	if ctx.Err() != nil {
		return nil
	}
	return err
}

// reducerConfigFrom overlays configured durations on the reducer defaults.
// Zero values keep the default.
func reducerConfigFrom(sc config.StateConfig) state.Config {
	cfg := state.DefaultConfig()
	if sc.SpawnActivateDelay > 0 {
		cfg.SpawnActivateDelay = sc.SpawnActivateDelay
	}
	if sc.CompletedRemoveDelay > 0 {
		cfg.CompletedRemoveDelay = sc.CompletedRemoveDelay
	}
	if sc.ErrorRevertDelay > 0 {
		cfg.ErrorRevertDelay = sc.ErrorRevertDelay
	}
	if sc.ThinkingAfter > 0 {
		cfg.ThinkingAfter = sc.ThinkingAfter
	}
	if sc.StaleAfter > 0 {
		cfg.StaleAfter = sc.StaleAfter
	}
	if sc.RootStaleAfter > 0 {
		cfg.RootStaleAfter = sc.RootStaleAfter
	}
	return cfg
}

// logTransitions polls the derived state and logs each agent whose status
// changed since the last poll.
func logTransitions(ctx context.Context, c *client.Client, logger *slog.Logger) {
	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()

	last := make(map[string]state.Status)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		snap := c.Snapshot()
		for id, node := range snap.Agents {
			if last[id] == node.Status {
				continue
			}
			last[id] = node.Status
			attrs := []any{"agent", id, "status", node.Status}
			if node.ActiveToolCall != nil {
				attrs = append(attrs, "tool", node.ActiveToolCall.ToolName)
			}
			if node.NotificationMessage != "" {
				attrs = append(attrs, "notification", node.NotificationMessage)
			}
			attrs = append(attrs, "agents", len(snap.Agents))
			logger.Info("status changed", attrs...)
		}
		for id := range last {
			if _, ok := snap.Agents[id]; !ok {
				delete(last, id)
				logger.Info("agent removed", "agent", id, "agents", len(snap.Agents))
			}
		}
	}
}
