package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"
	"text/tabwriter"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
	"github.com/warp/stock-ledger/ledger"
	"github.com/warp/stock-ledger/seed"
)

const dateLayout = "2006-01-02"

// =============================================================================
// COMMAND FLAGS
// =============================================================================

var (
	levelsLowOnly bool

	historyType  string
	historyStart string
	historyEnd   string

	snapshotList bool

	reportTopN int
	reportAsOf string

	seedFile string
)

// =============================================================================
// COMMAND DEFINITIONS
// =============================================================================

var levelsCmd = &cobra.Command{
	Use:   "levels",
	Short: "Print stock levels",
	Args:  cobra.NoArgs,
	RunE:  runLevels,
}

var historyCmd = &cobra.Command{
	Use:   "history INGREDIENT_ID",
	Short: "Print an ingredient's movement history, newest first",
	Long: `Print an ingredient's movement history, newest first.

Dates are YYYY-MM-DD; the end date is inclusive.

Examples:
  stockledger history 3
  stockledger history 3 --type waste --start 2025-03-01 --end 2025-03-31`,
	Args: cobra.ExactArgs(1),
	RunE: runHistory,
}

var verifyCmd = &cobra.Command{
	Use:   "verify INGREDIENT_ID",
	Short: "Replay an ingredient's history and compare it with current stock",
	Args:  cobra.ExactArgs(1),
	RunE:  runVerify,
}

var snapshotCmd = &cobra.Command{
	Use:   "snapshot",
	Short: "Take a snapshot of every stock level",
	Args:  cobra.NoArgs,
	RunE:  runSnapshot,
}

var reportCmd = &cobra.Command{
	Use:   "report inventory|low-stock|high-value|monthly",
	Short: "Print a read-side report",
	Long: `Print a read-side report.

Reports:
  inventory   Every level with status and value, plus totals
  low-stock   Levels at or below minimum, with the shortfall
  high-value  Top-N levels by value (--n, default REPORT_TOP_N)
  monthly     Value change over REPORT_WINDOW_DAYS ending --as-of (default today)`,
	Args:      cobra.ExactArgs(1),
	ValidArgs: []string{"inventory", "low-stock", "high-value", "monthly"},
	RunE:      runReport,
}

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Load a catalog file with opening stock",
	Long: `Load a YAML catalog file. Ingredients are matched by name; opening
stock is written as a correction so it appears in the history. Running the
same file twice changes nothing the second time.`,
	Args: cobra.NoArgs,
	RunE: runSeed,
}

func init() {
	levelsCmd.Flags().BoolVar(&levelsLowOnly, "low", false, "Only levels at or below minimum")

	historyCmd.Flags().StringVar(&historyType, "type", ledger.TypeFilterAll, "Change type filter")
	historyCmd.Flags().StringVar(&historyStart, "start", "", "First day (YYYY-MM-DD)")
	historyCmd.Flags().StringVar(&historyEnd, "end", "", "Last day, inclusive (YYYY-MM-DD)")

	snapshotCmd.Flags().BoolVar(&snapshotList, "list", false, "List snapshots instead of taking one")

	reportCmd.Flags().IntVar(&reportTopN, "n", 0, "Rows for high-value (default REPORT_TOP_N)")
	reportCmd.Flags().StringVar(&reportAsOf, "as-of", "", "Last day of the monthly window (YYYY-MM-DD)")

	seedCmd.Flags().StringVarP(&seedFile, "file", "f", "", "Catalog file")
	_ = seedCmd.MarkFlagRequired("file")
}

// =============================================================================
// COMMAND HANDLERS
// =============================================================================

func runLevels(cmd *cobra.Command, args []string) error {
	a, err := openApp(os.Stderr)
	if err != nil {
		return err
	}
	defer a.Close()

	var levels []ledger.StockLevel
	if levelsLowOnly {
		levels, err = a.ledger.GetLowStockItems(cmd.Context())
	} else {
		levels, err = a.ledger.GetLevels(cmd.Context())
	}
	if err != nil {
		return err
	}
	printLevels(cmd.OutOrStdout(), levels)
	return nil
}

func runHistory(cmd *cobra.Command, args []string) error {
	id, err := parseID(args[0])
	if err != nil {
		return err
	}
	start, err := parseDay(historyStart)
	if err != nil {
		return err
	}
	end, err := parseDay(historyEnd)
	if err != nil {
		return err
	}

	a, err := openApp(os.Stderr)
	if err != nil {
		return err
	}
	defer a.Close()

	entries, err := a.ledger.GetHistory(cmd.Context(), ledger.IngredientID(id), historyType, start, end)
	if err != nil {
		return err
	}

	tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 2, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tDATE\tTYPE\tPREVIOUS\tNEW\tCHANGE\tVALUE\tREASON")
	for _, e := range entries {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			e.ID, e.ChangeDate.Format(time.RFC3339), e.ChangeType,
			e.PreviousStock, e.NewStock, e.ChangeAmount,
			e.ValueChange().StringFixed(2), e.Reason)
	}
	return tw.Flush()
}

func runVerify(cmd *cobra.Command, args []string) error {
	id, err := parseID(args[0])
	if err != nil {
		return err
	}
	a, err := openApp(os.Stderr)
	if err != nil {
		return err
	}
	defer a.Close()

	result, err := a.ledger.VerifyIngredient(cmd.Context(), ledger.IngredientID(id))
	if err != nil {
		return err
	}
	if err := writeJSON(cmd.OutOrStdout(), result); err != nil {
		return err
	}
	if !result.Consistent {
		return fmt.Errorf("history of ingredient %d does not reproduce its stock", id)
	}
	return nil
}

func runSnapshot(cmd *cobra.Command, args []string) error {
	a, err := openApp(os.Stderr)
	if err != nil {
		return err
	}
	defer a.Close()

	if !snapshotList {
		if _, err := a.ledger.TakeSnapshot(cmd.Context()); err != nil {
			return err
		}
	}
	summaries, err := a.ledger.ListSnapshots(cmd.Context())
	if err != nil {
		return err
	}
	if !snapshotList && len(summaries) > 0 {
		summaries = summaries[:1]
	}

	tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 2, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tDATE\tINGREDIENTS\tVALUE")
	for _, s := range summaries {
		fmt.Fprintf(tw, "%d\t%s\t%d\t%s\n",
			s.SnapshotID, s.SnapshotDate.Format(time.RFC3339), s.IngredientCount, s.TotalValue.StringFixed(2))
	}
	return tw.Flush()
}

func runReport(cmd *cobra.Command, args []string) error {
	a, err := openApp(os.Stderr)
	if err != nil {
		return err
	}
	defer a.Close()

	ctx := cmd.Context()
	out := cmd.OutOrStdout()

	switch args[0] {
	case "inventory":
		report, err := a.ledger.CurrentInventory(ctx)
		if err != nil {
			return err
		}
		levels := make([]ledger.StockLevel, len(report.Lines))
		for i, line := range report.Lines {
			levels[i] = line.Level
		}
		printLevels(out, levels)
		fmt.Fprintf(out, "\ntotal value %s, %d low stock, %d overstocked\n",
			report.TotalValue.StringFixed(2), report.LowStockCount, report.OverstockedCount)
		return nil

	case "low-stock":
		lines, err := a.ledger.LowStockReport(ctx)
		if err != nil {
			return err
		}
		tw := tabwriter.NewWriter(out, 0, 2, 2, ' ', 0)
		fmt.Fprintln(tw, "ID\tNAME\tSTOCK\tMINIMUM\tSHORTFALL\tUNIT")
		for _, line := range lines {
			fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\t%s\n",
				line.Level.IngredientID, line.Level.Name, line.Level.CurrentStock,
				line.Level.MinimumStock.Decimal, line.Shortfall, line.Level.Unit)
		}
		return tw.Flush()

	case "high-value":
		n := reportTopN
		if n == 0 {
			n = a.cfg.Report.TopN
		}
		levels, err := a.ledger.HighValueItems(ctx, n)
		if err != nil {
			return err
		}
		printLevels(out, levels)
		return nil

	case "monthly":
		asOf := time.Now().UTC()
		day, err := parseDay(reportAsOf)
		if err != nil {
			return err
		}
		if day != nil {
			asOf = day.AddDate(0, 0, 1)
		}
		cmp, err := a.ledger.MonthlyComparison(ctx, asOf)
		if err != nil {
			return err
		}
		tw := tabwriter.NewWriter(out, 0, 2, 2, ' ', 0)
		fmt.Fprintf(tw, "window %s .. %s vs %s .. %s\n\n",
			cmp.Current.Start.Format(dateLayout), cmp.Current.End.Format(dateLayout),
			cmp.Previous.Start.Format(dateLayout), cmp.Previous.End.Format(dateLayout))
		fmt.Fprintln(tw, "ID\tNAME\tCURRENT\tPREVIOUS\tDELTA\tCHANGE %")
		for _, line := range cmp.Lines {
			fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\t%s\n",
				line.IngredientID, line.Name, line.CurrentValue.StringFixed(2),
				line.PreviousValue.StringFixed(2), line.Delta.StringFixed(2), line.ChangePercent.StringFixed(1))
		}
		fmt.Fprintf(tw, "\tTOTAL\t%s\t%s\t%s\t%s\n",
			cmp.CurrentValue.StringFixed(2), cmp.PreviousValue.StringFixed(2),
			cmp.Delta.StringFixed(2), cmp.ChangePercent.StringFixed(1))
		return tw.Flush()
	}
	return fmt.Errorf("unknown report %q", args[0])
}

func runSeed(cmd *cobra.Command, args []string) error {
	f, err := seed.ReadFile(seedFile)
	if err != nil {
		return err
	}
	a, err := openApp(os.Stderr)
	if err != nil {
		return err
	}
	defer a.Close()

	result, err := seed.Apply(cmd.Context(), f, a.store, a.ledger)
	if err != nil {
		return err
	}
	a.log.Info().
		Str("file", seedFile).
		Int("created", result.Created).
		Int("updated", result.Updated).
		Int("stocked", result.Stocked).
		Msg("catalog seeded")
	return writeJSON(cmd.OutOrStdout(), result)
}

// =============================================================================
// HELPERS
// =============================================================================

func printLevels(out io.Writer, levels []ledger.StockLevel) {
	tw := tabwriter.NewWriter(out, 0, 2, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tNAME\tSTOCK\tUNIT\tMIN\tMAX\tUNIT COST\tVALUE\tSTATUS")
	for _, l := range levels {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			l.IngredientID, l.Name, l.CurrentStock, l.Unit,
			threshold(l.MinimumStock), threshold(l.MaximumStock),
			l.UnitCost.StringFixed(2), l.TotalValue().StringFixed(2), l.Status())
	}
	tw.Flush()
}

func threshold(v decimal.NullDecimal) string {
	if !v.Valid {
		return "-"
	}
	return v.Decimal.String()
}

func writeJSON(out io.Writer, v any) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func parseID(s string) (int64, error) {
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid ingredient id %q", s)
	}
	return id, nil
}

func parseDay(s string) (*time.Time, error) {
	if s == "" {
		return nil, nil
	}
	t, err := time.Parse(dateLayout, s)
	if err != nil {
		return nil, fmt.Errorf("invalid date %q, expected YYYY-MM-DD", s)
	}
	return &t, nil
}
