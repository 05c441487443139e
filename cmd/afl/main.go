package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	cl "agentflow/internal/cli"
	"agentflow/internal/config"
	"agentflow/internal/sim"
	"agentflow/internal/syncq"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

func main() {
	cfg := config.LoadCLIFromEnv()
	apiBase := cfg.APIBaseURL

	root := &cobra.Command{
		Use:          "afl",
		Short:        "AgentFlow command-line client",
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&apiBase, "api", apiBase, "API base URL")

	root.AddCommand(
		newLoginCmd(),
		newLogoutCmd(),
		newStateCmd(&apiBase),
		newCatalogCmd(&apiBase),
		newClickCmd(&apiBase),
		newBuyCmd(&apiBase),
		newPrestigeCmd(&apiBase),
		newResetCmd(&apiBase),
		newLeaderboardCmd(&apiBase),
		newSyncCmd(&apiBase),
		newSimCmd(),
	)

	if err := root.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func newClient(apiBase *string) (*cl.Client, error) {
	sess, err := cl.EnsureSession()
	if err != nil {
		return nil, fmt.Errorf("load session: %w", err)
	}
	return cl.NewClient(strings.TrimRight(strings.TrimSpace(*apiBase), "/"), sess), nil
}

func newLoginCmd() *cobra.Command {
	var initData string
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Store Telegram init data, or start a fresh visitor profile",
		RunE: func(cmd *cobra.Command, args []string) error {
			initData = strings.TrimSpace(initData)
			if initData == "" {
				sess := cl.Session{VisitorID: uuid.NewString()}
				if err := cl.SaveSession(sess); err != nil {
					return err
				}
				printSuccess("Playing as visitor " + sess.VisitorID[:8] + ".")
				return nil
			}
			if err := cl.SaveSession(cl.Session{InitData: initData}); err != nil {
				return err
			}
			printSuccess("Telegram credentials saved.")
			return nil
		},
	}
	cmd.Flags().StringVar(&initData, "init-data", "", "raw Telegram WebApp init data")
	return cmd
}

func newLogoutCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Forget local credentials",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := cl.ClearSession(); err != nil {
				return err
			}
			printSuccess("Logged out.")
			return nil
		},
	}
}

func newStateCmd(apiBase *string) *cobra.Command {
	return &cobra.Command{
		Use:     "state",
		Short:   "Show your company",
		Aliases: []string{"dash"},
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := newClient(apiBase)
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()
			out, err := client.State(ctx)
			if err != nil {
				return err
			}
			return renderState(out)
		},
	}
}

func newCatalogCmd(apiBase *string) *cobra.Command {
	return &cobra.Command{
		Use:   "catalog",
		Short: "List agents, manual actions and store items",
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := newClient(apiBase)
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()
			out, err := client.Catalog(ctx)
			if err != nil {
				return err
			}
			return renderCatalog(out)
		},
	}
}

func newClickCmd(apiBase *string) *cobra.Command {
	var times int
	cmd := &cobra.Command{
		Use:   "click [action_id]",
		Short: "Do a manual action by hand",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			actionID, err := argOrPrompt(args, "Action ID")
			if err != nil {
				return err
			}
			client, err := newClient(apiBase)
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), 60*time.Second)
			defer cancel()

			var last map[string]any
			for i := 0; i < max(times, 1); i++ {
				idem := uuid.NewString()
				out, err := client.Click(ctx, actionID, idem)
				if err != nil {
					return queueOnNetworkError(err, syncq.Op{Kind: syncq.KindClick, Target: actionID, IdempotencyKey: idem})
				}
				last = out
				if times > 1 {
					time.Sleep(150 * time.Millisecond)
				}
			}
			return renderClick(last)
		},
	}
	cmd.Flags().IntVarP(&times, "times", "n", 1, "repeat the action")
	return cmd
}

func newBuyCmd(apiBase *string) *cobra.Command {
	return &cobra.Command{
		Use:   "buy [agent_id]",
		Short: "Hire one more unit of an agent",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			agentID, err := argOrPrompt(args, "Agent ID")
			if err != nil {
				return err
			}
			client, err := newClient(apiBase)
			if err != nil {
				return err
			}
			idem := uuid.NewString()
			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()
			out, err := client.Buy(ctx, agentID, idem)
			if err != nil {
				return queueOnNetworkError(err, syncq.Op{Kind: syncq.KindBuy, Target: agentID, IdempotencyKey: idem})
			}
			return renderPurchase(out)
		},
	}
}

func newPrestigeCmd(apiBase *string) *cobra.Command {
	var yes bool
	cmd := &cobra.Command{
		Use:   "prestige",
		Short: "Sell the company and restart with a permanent multiplier",
		RunE: func(cmd *cobra.Command, args []string) error {
			if !yes {
				ok, err := promptConfirm("Sell the company and start over?")
				if err != nil {
					return err
				}
				if !ok {
					printInfo("Cancelled.")
					return nil
				}
			}
			client, err := newClient(apiBase)
			if err != nil {
				return err
			}
			idem := uuid.NewString()
			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()
			out, err := client.Prestige(ctx, idem)
			if err != nil {
				return queueOnNetworkError(err, syncq.Op{Kind: syncq.KindPrestige, IdempotencyKey: idem})
			}
			printSuccess("Company sold. Welcome back, founder.")
			return renderState(out)
		},
	}
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "skip confirmation")
	return cmd
}

func newResetCmd(apiBase *string) *cobra.Command {
	var yes bool
	cmd := &cobra.Command{
		Use:   "reset",
		Short: "Wipe all progress, prestige included",
		RunE: func(cmd *cobra.Command, args []string) error {
			if !yes {
				ok, err := promptConfirm("This deletes everything, prestige included. Continue?")
				if err != nil {
					return err
				}
				if !ok {
					printInfo("Cancelled.")
					return nil
				}
			}
			client, err := newClient(apiBase)
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()
			if _, err := client.Reset(ctx, uuid.NewString()); err != nil {
				return err
			}
			printWarn("Progress wiped.")
			return nil
		},
	}
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "skip confirmation")
	return cmd
}

func newLeaderboardCmd(apiBase *string) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:     "leaderboard",
		Short:   "Top companies by valuation",
		Aliases: []string{"lb"},
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := newClient(apiBase)
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()
			out, err := client.Leaderboard(ctx, limit)
			if err != nil {
				return err
			}
			return renderLeaderboard(out)
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 20, "rows to show")
	return cmd
}

func newSyncCmd(apiBase *string) *cobra.Command {
	return &cobra.Command{
		Use:   "sync",
		Short: "Replay commands queued while offline",
		RunE: func(cmd *cobra.Command, args []string) error {
			queue, err := syncq.Load()
			if err != nil {
				return err
			}
			if len(queue) == 0 {
				printInfo("Sync queue is empty.")
				return nil
			}
			client, err := newClient(apiBase)
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), 60*time.Second)
			defer cancel()

			rep, err := syncq.Replay(ctx, client, cl.Retryable)
			for _, f := range rep.Dropped {
				printWarn(fmt.Sprintf("Dropped %s (queued %s): %v", f.Op, humanize.Time(f.Op.QueuedAt), f.Err))
			}
			if err != nil {
				return err
			}
			if rep.Left > 0 {
				printError(fmt.Sprintf("Server still unreachable; %d moves left in the queue.", rep.Left))
			}
			printSuccess(fmt.Sprintf("Sync complete: replayed=%d dropped=%d remaining=%d", rep.Sent, len(rep.Dropped), rep.Left))
			return nil
		},
	}
}

func newSimCmd() *cobra.Command {
	var (
		duration     time.Duration
		clicks       int
		ceiling      float64
		autoPrestige bool
		balanceFile  string
	)
	cmd := &cobra.Command{
		Use:   "sim",
		Short: "Simulate a greedy player offline against a balance file",
		RunE: func(cmd *cobra.Command, args []string) error {
			engine, err := config.LoadEngine(balanceFile)
			if err != nil {
				return err
			}
			rep, err := sim.Run(cmd.Context(), engine, sim.Options{
				Duration:      duration,
				ClicksPerStep: clicks,
				StressCeiling: ceiling,
				AutoPrestige:  autoPrestige,
			})
			if err != nil {
				return err
			}
			return renderSimReport(rep)
		},
	}
	cmd.Flags().DurationVar(&duration, "duration", 2*time.Hour, "simulated play time")
	cmd.Flags().IntVar(&clicks, "clicks", 4, "manual clicks per second, -1 for none")
	cmd.Flags().Float64Var(&ceiling, "stress-ceiling", 70, "stop clicking above this stress")
	cmd.Flags().BoolVar(&autoPrestige, "auto-prestige", false, "prestige as soon as allowed")
	cmd.Flags().StringVar(&balanceFile, "balance", os.Getenv("AGENTFLOW_BALANCE_FILE"), "YAML balance overrides")
	return cmd
}

func queueOnNetworkError(err error, op syncq.Op) error {
	if err == nil {
		return nil
	}
	if !cl.Retryable(err) {
		return err
	}
	if qerr := syncq.Push(op); qerr != nil {
		return fmt.Errorf("request failed: %w (queue: %v)", err, qerr)
	}
	printWarn("Server unreachable; queued for `afl sync`.")
	return nil
}

func argOrPrompt(args []string, label string) (string, error) {
	if len(args) > 0 {
		return strings.TrimSpace(args[0]), nil
	}
	return promptRequired(label)
}
