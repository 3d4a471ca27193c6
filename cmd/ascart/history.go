package main

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"pkt.systems/ascart/core"
	"pkt.systems/ascart/schema"
)

func newHistoryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history",
		Short: "List or delete worker history entries",
	}
	cmd.AddCommand(newHistoryListCmd())
	cmd.AddCommand(newHistoryDeleteCmd())
	return cmd
}

func newHistoryListCmd() *cobra.Command {
	var cfgPath string
	var timeout time.Duration
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List history entries with their indices",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cfg, err := loadConfig(ctx, cfgPath)
			if err != nil {
				return err
			}
			bridge, err := startBridge(ctx, cfg)
			if err != nil {
				return err
			}
			defer closeBridge(ctx, bridge)

			entries, err := fetchHistory(ctx, bridge, timeout)
			if err != nil {
				return err
			}
			return printHistory(cmd.OutOrStdout(), entries)
		},
	}
	cmd.Flags().StringVarP(&cfgPath, "config", "c", "", "config path (default ~/.ascart/config.yaml)")
	cmd.Flags().DurationVar(&timeout, "timeout", defaultReplyTimeout, "how long to wait for the worker")
	return cmd
}

func newHistoryDeleteCmd() *cobra.Command {
	var cfgPath string
	var timeout time.Duration
	cmd := &cobra.Command{
		Use:   "delete <index>",
		Short: "Delete the history entry at an index shown by history list",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			index, err := strconv.Atoi(args[0])
			if err != nil {
				return fmt.Errorf("%w: index must be an integer", schema.ErrInvalidRequest)
			}
			ctx := cmd.Context()
			cfg, err := loadConfig(ctx, cfgPath)
			if err != nil {
				return err
			}
			bridge, err := startBridge(ctx, cfg)
			if err != nil {
				return err
			}
			defer closeBridge(ctx, bridge)

			before, err := fetchHistory(ctx, bridge, timeout)
			if err != nil {
				return err
			}
			if index >= 0 && index < len(before) {
				_, _ = fmt.Fprintf(cmd.ErrOrStderr(), "deleting %d: %s\n", index, historyTitle(before[index]))
			}
			// The bridge refreshes the list after the delete; wait for it.
			after, err := awaitReply(ctx, bridge, timeout, func(ctx context.Context) error {
				return bridge.DeleteHistoryAt(ctx, index)
			}, isHistory)
			if err != nil {
				return err
			}
			return printHistory(cmd.OutOrStdout(), after.History)
		},
	}
	cmd.Flags().StringVarP(&cfgPath, "config", "c", "", "config path (default ~/.ascart/config.yaml)")
	cmd.Flags().DurationVar(&timeout, "timeout", defaultReplyTimeout, "how long to wait for the worker")
	return cmd
}

func fetchHistory(ctx context.Context, bridge core.Bridge, timeout time.Duration) ([]schema.HistoryEntry, error) {
	msg, err := awaitReply(ctx, bridge, timeout, bridge.RequestHistory, isHistory)
	if err != nil {
		return nil, err
	}
	return msg.History, nil
}

func printHistory(w io.Writer, entries []schema.HistoryEntry) error {
	if len(entries) == 0 {
		_, err := fmt.Fprintln(w, "history is empty")
		return err
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	_, _ = fmt.Fprintln(tw, "INDEX\tWHEN\tKIND\tPREVIEW")
	for i, entry := range entries {
		kind := "image"
		if entry.IsGIF {
			kind = fmt.Sprintf("gif (%d frames)", len(entry.Frames))
		}
		_, _ = fmt.Fprintf(tw, "%d\t%s\t%s\t%s\n", i, historyWhen(entry), kind, historyTitle(entry))
	}
	return tw.Flush()
}

func historyWhen(entry schema.HistoryEntry) string {
	if at, ok := entry.Time(); ok {
		return at.Local().Format(time.DateTime)
	}
	return entry.Timestamp
}

// historyTitle is the first non-blank line of the entry preview.
func historyTitle(entry schema.HistoryEntry) string {
	text := entry.Preview
	if text == "" {
		text = entry.ASCII
	}
	for _, line := range strings.Split(text, "\n") {
		if line = strings.TrimSpace(line); line != "" {
			if len(line) > 40 {
				line = line[:40]
			}
			return line
		}
	}
	return "-"
}
