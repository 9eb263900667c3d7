package cmd

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"slices"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/carcatalog-crawler/internal/checkpoint"
	"github.com/JakeFAU/carcatalog-crawler/internal/crawler"
)

func newCheckpointCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "checkpoint",
		Short: "Inspects or clears crawl progress",
	}
	cmd.AddCommand(newCheckpointStatusCmd())
	cmd.AddCommand(newCheckpointResetCmd())
	return cmd
}

func newCheckpointStatusCmd() *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Shows completed items by kind and the saved frontier size",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			appInstance, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			store, err := appInstance.Checkpoint(cmd.Context())
			if err != nil {
				return err
			}
			stats := store.Stats()
			if asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(stats)
			}
			printStats(cmd.OutOrStdout(), appInstance.Config().Checkpoint.Backend, stats)
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print as JSON")
	return cmd
}

func newCheckpointResetCmd() *cobra.Command {
	var yes bool
	cmd := &cobra.Command{
		Use:   "reset",
		Short: "Discards all crawl progress",
		Long: `Deletes every completed item and the saved frontier so the next crawl
starts from the site index. Records already written are kept.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if !yes {
				return errors.New("refusing to reset checkpoint without --yes")
			}
			appInstance, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			store, err := appInstance.Checkpoint(cmd.Context())
			if err != nil {
				return err
			}
			before := store.Stats().Completed
			if err := store.Reset(cmd.Context()); err != nil {
				return fmt.Errorf("reset checkpoint: %w", err)
			}
			appInstance.Logger().Info("checkpoint reset", zap.Int("discarded", before))
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "checkpoint reset (%d completed items discarded)\n", before)
			return nil
		},
	}
	cmd.Flags().BoolVar(&yes, "yes", false, "confirm the reset")
	return cmd
}

func printStats(w io.Writer, backend string, stats checkpoint.Stats) {
	_, _ = fmt.Fprintf(w, "backend:   %s\n", backend)
	_, _ = fmt.Fprintf(w, "completed: %d\n", stats.Completed)
	kinds := make([]crawler.Kind, 0, len(stats.ByKind))
	for k := range stats.ByKind {
		kinds = append(kinds, k)
	}
	slices.Sort(kinds)
	for _, k := range kinds {
		_, _ = fmt.Fprintf(w, "  %-12s %d\n", k, stats.ByKind[k])
	}
	_, _ = fmt.Fprintf(w, "frontier:  %d\n", stats.Frontier)
	if !stats.UpdatedAt.IsZero() {
		_, _ = fmt.Fprintf(w, "updated:   %s\n", stats.UpdatedAt.Format("2006-01-02 15:04:05 MST"))
	}
}
