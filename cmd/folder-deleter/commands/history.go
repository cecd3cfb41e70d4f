package commands

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/maruaican/Quick-Folder-Deleter/internal/database"
	"github.com/maruaican/Quick-Folder-Deleter/internal/exitcodes"
)

type historyOptions struct {
	dbPath     string
	recent     int
	opID       string
	outcome    string
	kinds      []string
	stats      bool
	jsonOutput bool
}

func (c *CLI) newHistoryCmd() *cobra.Command {
	opts := historyOptions{}
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Query the deletion history",
		Example: `  folder-deleter history --recent 10            # 10 most recent operations
  folder-deleter history --outcome incomplete    # operations that left something behind
  folder-deleter history --op <id> --kind error  # failures of one operation
  folder-deleter history --stats                 # totals per outcome`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.runHistory(cmd, opts)
		},
	}
	cmd.Flags().StringVar(&opts.dbPath, "db", "", "Path to history database (default from config)")
	cmd.Flags().IntVarP(&opts.recent, "recent", "n", 10, "Show N most recent operations")
	cmd.Flags().StringVar(&opts.opID, "op", "", "Show the recorded events of one operation")
	cmd.Flags().StringVar(&opts.outcome, "outcome", "", "Filter operations by outcome (success, incomplete, scan_failed, running)")
	cmd.Flags().StringSliceVar(&opts.kinds, "kind", nil, "With --op, only show events of these kinds")
	cmd.Flags().BoolVar(&opts.stats, "stats", false, "Show history statistics")
	cmd.Flags().BoolVar(&opts.jsonOutput, "json", false, "Output in JSON format")
	return cmd
}

func (c *CLI) runHistory(cmd *cobra.Command, opts historyOptions) error {
	dbPath := opts.dbPath
	if dbPath == "" {
		cfg, err := c.loadConfig(cmd)
		if err != nil {
			return err
		}
		dbPath = cfg.DatabasePath
	}
	if opts.recent <= 0 {
		return withCode(exitcodes.InvalidConfig, fmt.Errorf("--recent must be positive, got %d", opts.recent))
	}

	db, err := database.NewHistoryDB(dbPath)
	if err != nil {
		return fmt.Errorf("open history %s: %w", dbPath, err)
	}
	defer db.Close()

	switch {
	case opts.stats:
		return c.showStats(db, opts.jsonOutput)
	case opts.opID != "":
		return c.showOperation(db, opts.opID, opts.kinds, opts.jsonOutput)
	case opts.outcome != "":
		records, err := db.GetOperationsByOutcome(opts.outcome, opts.recent)
		if err != nil {
			return fmt.Errorf("query by outcome: %w", err)
		}
		return c.printOperations(records, opts.jsonOutput)
	default:
		records, err := db.GetRecentOperations(opts.recent)
		if err != nil {
			return fmt.Errorf("query recent operations: %w", err)
		}
		return c.printOperations(records, opts.jsonOutput)
	}
}

func (c *CLI) showStats(db *database.HistoryDB, jsonOutput bool) error {
	stats, err := db.GetDatabaseStats()
	if err != nil {
		return fmt.Errorf("database stats: %w", err)
	}
	byOutcome, err := db.GetOperationCountByOutcome()
	if err != nil {
		return fmt.Errorf("count by outcome: %w", err)
	}

	if jsonOutput {
		stats["by_outcome"] = byOutcome
		return writeJSON(c.out, stats)
	}

	fmt.Fprintf(c.out, "Operations:     %v\n", stats["total_operations"])
	fmt.Fprintf(c.out, "Recorded items: %v\n", stats["total_items"])
	if size, ok := stats["database_size_bytes"].(int64); ok {
		fmt.Fprintf(c.out, "Database size:  %s\n", formatBytes(size))
	}
	if len(byOutcome) > 0 {
		fmt.Fprintln(c.out, "\nBy Outcome:")
		for outcome, count := range byOutcome {
			fmt.Fprintf(c.out, "  %-15s %d\n", outcome, count)
		}
	}
	return nil
}

func (c *CLI) showOperation(db *database.HistoryDB, id string, kinds []string, jsonOutput bool) error {
	op, err := db.GetOperation(id)
	if err != nil {
		return fmt.Errorf("operation %s: %w", id, err)
	}
	items, err := db.GetOperationItems(id, kinds...)
	if err != nil {
		return fmt.Errorf("items of %s: %w", id, err)
	}

	if jsonOutput {
		return writeJSON(c.out, map[string]interface{}{"operation": op, "items": items})
	}

	fmt.Fprintf(c.out, "Operation %s\nTarget:   %s\nOutcome:  %s\nProgress: %d%% (%d/%d items, %s)\n\n",
		op.ID, op.Target, op.Outcome, op.FinalProgress, op.Processed, op.Total, formatBytes(op.Bytes))

	if len(items) == 0 {
		fmt.Fprintln(c.out, "No events recorded")
		return nil
	}
	w := tabwriter.NewWriter(c.out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "Seq\tTimestamp\tKind\tProgress\tMessage")
	_, _ = fmt.Fprintln(w, "---\t---------\t----\t--------\t-------")
	for _, it := range items {
		_, _ = fmt.Fprintf(w, "%d\t%s\t%s\t%d%%\t%s\n",
			it.Seq, it.Timestamp.Format("2006-01-02 15:04:05.000"), it.Kind, it.Progress, it.Message)
	}
	return w.Flush()
}

func (c *CLI) printOperations(records []database.OperationRecord, jsonOutput bool) error {
	if jsonOutput {
		if records == nil {
			records = []database.OperationRecord{}
		}
		return writeJSON(c.out, records)
	}

	if len(records) == 0 {
		fmt.Fprintln(c.out, "No records found")
		return nil
	}

	w := tabwriter.NewWriter(c.out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "ID\tStarted\tOutcome\tProgress\tDeleted\tSkipped\tFailed\tSize\tTarget")
	_, _ = fmt.Fprintln(w, "--\t-------\t-------\t--------\t-------\t-------\t------\t----\t------")
	for _, r := range records {
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%d%%\t%d\t%d\t%d\t%s\t%s\n",
			r.ID, r.StartedAt.Format("2006-01-02 15:04:05"), r.Outcome, r.FinalProgress,
			r.Deleted, r.Skipped, r.Failed, formatBytes(r.Bytes), r.Target)
	}
	return w.Flush()
}

func writeJSON(w io.Writer, v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, string(data))
	return err
}

func formatBytes(bytes int64) string {
	const unit = 1024
	if bytes < unit {
		return fmt.Sprintf("%d B", bytes)
	}
	div, exp := int64(unit), 0
	for n := bytes / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(bytes)/float64(div), "KMGTPE"[exp])
}
