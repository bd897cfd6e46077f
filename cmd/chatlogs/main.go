package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/vadim/chatlogs/internal/app"
	"github.com/vadim/chatlogs/internal/config"
)

var (
	jsonOutput bool
	configPath string
)

func main() {
	rootCmd := &cobra.Command{
		Use:           "chatlogs",
		Short:         "Ingest, repair and archive chat conversations",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().BoolVarP(&jsonOutput, "json", "j", false, "Output as JSON")
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "YAML config file (defaults to the environment)")

	rootCmd.AddCommand(
		syncCmd(),
		ingestCmd(),
		cleanCmd(),
		archiveCmd(),
		migrateCmd(),
		watchCmd(),
		resetSendersCmd(),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		os.Exit(1)
	}
}

func loadConfig() (config.Config, error) {
	if configPath != "" {
		return config.LoadFromFile(configPath)
	}
	_ = godotenv.Load()
	return config.Load()
}

// withChatlogs wires the domain for one command and tears it down afterwards
func withChatlogs(cmd *cobra.Command, fn func(ctx context.Context, c *app.Chatlogs) error) error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	ctx := cmd.Context()
	c, err := app.NewChatlogs(ctx, cfg, app.NewLogger(os.Stderr, cfg.Log))
	if err != nil {
		return err
	}
	defer c.Close()

	return fn(ctx, c)
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func syncCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sync",
		Short: "Ingest new log records, then merge orphaned conversations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withChatlogs(cmd, func(ctx context.Context, c *app.Chatlogs) error {
				out, err := c.Policy.Sync(ctx)
				if err != nil {
					return err
				}
				if jsonOutput {
					return printJSON(cmd.OutOrStdout(), out)
				}
				return writeSyncSummary(cmd.OutOrStdout(), out)
			})
		},
	}
}

func ingestCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "ingest",
		Short: "Ingest new log records without reconciling",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withChatlogs(cmd, func(ctx context.Context, c *app.Chatlogs) error {
				out, err := c.Policy.Ingest(ctx)
				if err != nil {
					return err
				}
				if jsonOutput {
					return printJSON(cmd.OutOrStdout(), out)
				}
				return writeIngestSummary(cmd.OutOrStdout(), out)
			})
		},
	}
}

func cleanCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "clean",
		Short: "Merge orphaned conversations and fix stale counts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withChatlogs(cmd, func(ctx context.Context, c *app.Chatlogs) error {
				out, err := c.Policy.Reconcile(ctx)
				if err != nil {
					return err
				}
				if jsonOutput {
					return printJSON(cmd.OutOrStdout(), out)
				}
				return writeReconcileSummary(cmd.OutOrStdout(), out)
			})
		},
	}
}

func archiveCmd() *cobra.Command {
	var latest bool

	cmd := &cobra.Command{
		Use:   "archive [conversation-id...]",
		Short: "Upload rendered conversation pages to the archive bucket",
		RunE: func(cmd *cobra.Command, args []string) error {
			ids, err := parseIDs(args)
			if err != nil {
				return err
			}
			if len(ids) == 0 && !latest {
				return errors.New("pass conversation ids or --latest")
			}

			return withChatlogs(cmd, func(ctx context.Context, c *app.Chatlogs) error {
				if latest {
					id, err := c.Policy.LatestConversationID(ctx)
					if err != nil {
						return err
					}
					if id == 0 {
						return errors.New("no conversations to archive")
					}
					ids = append(ids, id)
				}

				urls := make(map[int64]string, len(ids))
				for _, id := range ids {
					url, err := c.Policy.Archive(ctx, id)
					if err != nil {
						return err
					}
					urls[id] = url
					if !jsonOutput {
						fmt.Fprintf(cmd.OutOrStdout(), "%d\t%s\n", id, url)
					}
				}
				if jsonOutput {
					return printJSON(cmd.OutOrStdout(), urls)
				}
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&latest, "latest", false, "Archive the most recent conversation")
	return cmd
}

func parseIDs(args []string) ([]int64, error) {
	ids := make([]int64, 0, len(args))
	for _, arg := range args {
		id, err := strconv.ParseInt(arg, 10, 64)
		if err != nil || id <= 0 {
			return nil, fmt.Errorf("invalid conversation id %q", arg)
		}
		ids = append(ids, id)
	}
	return ids, nil
}

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create the chat log tables",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withChatlogs(cmd, func(ctx context.Context, c *app.Chatlogs) error {
				if err := c.Migrate(ctx); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), "Schema is up to date.")
				return nil
			})
		},
	}
}

func watchCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "watch",
		Short: "Print run notifications as they are published",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withChatlogs(cmd, func(ctx context.Context, c *app.Chatlogs) error {
				if c.Events == nil {
					return errors.New("NATS_URL is not configured")
				}

				out := cmd.OutOrStdout()
				err := c.Events.Subscribe(func(subject string, data []byte) {
					fmt.Fprintf(out, "%s\t%s\n", subject, data)
				})
				if err != nil {
					return err
				}

				<-ctx.Done()
				return nil
			})
		},
	}
}

func resetSendersCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "reset-senders",
		Short: "Forget the cached sender identities",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withChatlogs(cmd, func(ctx context.Context, c *app.Chatlogs) error {
				if c.Senders == nil {
					return errors.New("REDIS_ADDR is not configured")
				}
				if err := c.Senders.Reset(ctx); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), "Known senders cleared.")
				return nil
			})
		},
	}
}
