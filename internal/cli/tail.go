package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sort"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/vietddude/gigwatch/internal/core/domain"
	"github.com/vietddude/gigwatch/internal/indexing/feed"
	"github.com/vietddude/gigwatch/internal/indexing/filter"
	"github.com/vietddude/gigwatch/internal/infra/sse"
)

var (
	tailServer     string
	tailCategories []string
	tailMax        int
	tailBlocks     uint64
	tailAddresses  []string
)

var tailCmd = &cobra.Command{
	Use:   "tail",
	Short: "Follow the merged live feed of a running gigwatch server",
	Run:   runTail,
}

func init() {
	tailCmd.Flags().StringVar(&tailServer, "server", "", "relay base URL (default feed.server_url)")
	tailCmd.Flags().StringSliceVar(&tailCategories, "category", []string{"jobs", "bids"}, "categories to stream")
	tailCmd.Flags().IntVar(&tailMax, "max", 0, "events to keep in the feed (default feed.max_events)")
	tailCmd.Flags().Uint64Var(&tailBlocks, "blocks", 0, "history window in blocks (default chain.backfill_blocks)")
	tailCmd.Flags().StringSliceVar(&tailAddresses, "address", nil, "only show events involving these addresses")
	rootCmd.AddCommand(tailCmd)
}

func runTail(cmd *cobra.Command, args []string) {
	cfg := loadConfig()

	server := tailServer
	if server == "" {
		server = cfg.Feed.ServerURL
	}
	maxEvents := tailMax
	if maxEvents == 0 {
		maxEvents = cfg.Feed.MaxEvents
	}
	blocks := tailBlocks
	if blocks == 0 {
		blocks = cfg.Chain.BackfillBlocks
	}

	categories := make([]domain.Category, 0, len(tailCategories))
	for _, s := range tailCategories {
		c, err := domain.ParseCategory(s)
		if err != nil {
			slog.Error("Invalid --category", "error", err)
			os.Exit(1)
		}
		categories = append(categories, c)
	}

	addresses, err := filter.ParseAddresses(tailAddresses)
	if err != nil {
		slog.Error("Invalid --address", "error", err)
		os.Exit(1)
	}
	participants := filter.NewMemoryFilter()
	participants.AddBatch(addresses)

	streams := feed.NewHTTPStreams(server, sse.NewClient(nil))
	streams.Addresses = addresses
	agg := feed.NewAggregator(
		&feed.HTTPHistory{BaseURL: server, Blocks: blocks, HTTP: &http.Client{Timeout: time.Minute}, Filter: participants},
		streams,
		feed.Options{Categories: categories, MaxEvents: maxEvents, BufferSize: cfg.Feed.BufferSize},
	)

	cancelSub := agg.Subscribe(func(s feed.Snapshot) {
		render(os.Stdout, s)
	})
	defer cancelSub()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	slog.Info("Following feed", "server", server, "categories", categories)
	if err := agg.Run(ctx); err != nil && ctx.Err() == nil {
		slog.Error("Feed stopped", "error", err)
		os.Exit(1)
	}
}

func render(out io.Writer, s feed.Snapshot) {
	status := "disconnected"
	if s.IsConnected {
		status = "connected"
	}

	cats := make([]string, 0, len(s.Counts))
	for c := range s.Counts {
		cats = append(cats, string(c))
	}
	sort.Strings(cats)
	counts := ""
	for _, c := range cats {
		counts += fmt.Sprintf(" %s=%d", c, s.Counts[domain.Category(c)])
	}

	_, _ = fmt.Fprintf(out, "\n[%s] %s live:%s\n", time.Now().Format(time.TimeOnly), status, counts)
	printEvents(out, s.Events)
}
