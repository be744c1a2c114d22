package cli

import (
	"context"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/vietddude/gigwatch/internal/core/domain"
	"github.com/vietddude/gigwatch/internal/indexing/feed"
)

var (
	historyBlocks uint64
	historyKinds  []string
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Print recent marketplace events read directly from the chain",
	Run:   runHistory,
}

func init() {
	historyCmd.Flags().Uint64Var(&historyBlocks, "blocks", 0, "number of blocks to look back (default chain.backfill_blocks)")
	historyCmd.Flags().StringSliceVar(&historyKinds, "kind", nil, "event types to include (default all)")
	rootCmd.AddCommand(historyCmd)
}

func runHistory(cmd *cobra.Command, args []string) {
	cfg := loadConfig()

	kinds := domain.AllKinds()
	if len(historyKinds) > 0 {
		kinds = kinds[:0:0]
		for _, s := range historyKinds {
			k, err := domain.ParseKind(s)
			if err != nil {
				slog.Error("Invalid --kind", "error", err)
				os.Exit(1)
			}
			kinds = append(kinds, k)
		}
	}

	blocks := historyBlocks
	if blocks == 0 {
		blocks = cfg.Chain.BackfillBlocks
	}

	_, source, err := newSource(cfg)
	if err != nil {
		slog.Error("Failed to create log source", "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), 2*time.Minute)
	defer cancel()

	events, err := feed.Backfill(ctx, source, kinds, blocks)
	if err != nil {
		slog.Error("Failed to fetch history", "error", err)
		os.Exit(1)
	}

	printEvents(os.Stdout, feed.Merge(events, nil, 0))
}
