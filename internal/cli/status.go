package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/vietddude/gigwatch/internal/infra/storage/postgres"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show chain head, RPC provider health and data stream usage",
	Run:   runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, args []string) {
	cfg := loadConfig()

	client, source, err := newSource(cfg)
	if err != nil {
		slog.Error("Failed to create log source", "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
	defer cancel()

	head, err := source.LatestBlock(ctx)
	if err != nil {
		slog.Error("Chain head unreachable", "error", err)
	} else {
		fmt.Printf("Chain %s head: %d\n", cfg.Chain.ChainID, head)
	}
	fmt.Println()
	fmt.Print(client.Dashboard())

	if cfg.Database.URL == "" {
		return
	}

	db, err := postgres.NewDB(ctx, cfg.Database)
	if err != nil {
		slog.Error("Failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer func() {
		_ = db.Close()
	}()

	rows, err := db.QueryContext(ctx, `
		SELECT s.id, s.name, COUNT(r.data_id), COALESCE(MAX(r.updated_at), s.created_at)
		FROM stream_schemas s
		LEFT JOIN stream_records r ON r.schema_id = s.id
		GROUP BY s.id, s.name, s.created_at
		ORDER BY s.name`)
	if err != nil {
		slog.Error("Failed to query stream schemas", "error", err)
		os.Exit(1)
	}
	defer func() {
		_ = rows.Close()
	}()

	fmt.Println()
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', tabwriter.Debug)
	_, _ = fmt.Fprintln(w, "SCHEMA\tNAME\tRECORDS\tUPDATED")

	for rows.Next() {
		var (
			id, name  string
			count     int64
			updatedAt time.Time
		)
		if err := rows.Scan(&id, &name, &count, &updatedAt); err != nil {
			continue
		}
		_, _ = fmt.Fprintf(w, "%s\t%s\t%d\t%s\n", shortHash(id), name, count, updatedAt.Format(time.RFC3339))
	}
	_ = w.Flush()
}
