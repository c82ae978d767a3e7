package cli

import (
	"encoding/csv"
	"fmt"
	"io"
	"iter"
	"os"
	"strconv"
	"text/tabwriter"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"arblog/internal/model"
)

const timeLayout = "2006-01-02 15:04:05"

var csvHeader = []string{
	"id",
	"timestamp",
	"start_amount_usdt",
	"end_amount_usdt",
	"profit_usdt",
	"profit_percentage",
	"base_token",
	"path",
	"routers",
	"executed",
}

// filterFlags are shared by query, stats and export.
type filterFlags struct {
	id        int64
	from      string
	to        string
	executed  bool
	baseToken string
	minProfit string
	limit     int
	offset    int
	order     string
}

func (f *filterFlags) register(cmd *cobra.Command, paging bool) {
	cmd.Flags().Int64Var(&f.id, "id", 0, "Only the attempt with this id")
	cmd.Flags().StringVar(&f.from, "from", "", "Earliest timestamp, inclusive (RFC 3339 or YYYY-MM-DD)")
	cmd.Flags().StringVar(&f.to, "to", "", "Latest timestamp, exclusive (RFC 3339 or YYYY-MM-DD)")
	cmd.Flags().BoolVar(&f.executed, "executed", false, "Only executed attempts (--executed=false for skipped ones)")
	cmd.Flags().StringVar(&f.baseToken, "base-token", "", "Filter by base token")
	cmd.Flags().StringVar(&f.minProfit, "min-profit", "", "Minimum profit in USDT")
	if paging {
		cmd.Flags().IntVar(&f.limit, "limit", 0, "Maximum number of attempts (0 = all)")
		cmd.Flags().IntVar(&f.offset, "offset", 0, "Number of attempts to skip")
		cmd.Flags().StringVar(&f.order, "order", "asc", "Order by id: asc or desc")
	}
}

func (f *filterFlags) build(cmd *cobra.Command) (model.Filter, error) {
	var filter model.Filter

	if cmd.Flags().Changed("id") {
		id := f.id
		filter.ID = &id
	}
	if cmd.Flags().Changed("executed") {
		executed := f.executed
		filter.Executed = &executed
	}
	var err error
	if filter.From, err = parseTime(f.from); err != nil {
		return filter, fmt.Errorf("invalid --from: %w", err)
	}
	if filter.To, err = parseTime(f.to); err != nil {
		return filter, fmt.Errorf("invalid --to: %w", err)
	}
	filter.BaseToken = f.baseToken
	if filter.MinProfit, err = parseAmount(f.minProfit); err != nil {
		return filter, fmt.Errorf("invalid --min-profit: %w", err)
	}
	if filter.MinProfit, err = model.CheckAmount("min_profit", filter.MinProfit); err != nil {
		return filter, err
	}
	if f.limit < 0 || f.offset < 0 {
		return filter, fmt.Errorf("--limit and --offset must not be negative")
	}
	filter.Limit = f.limit
	filter.Offset = f.offset
	switch f.order {
	case "", "asc":
	case "desc":
		filter.Descending = true
	default:
		return filter, fmt.Errorf("invalid --order %q: must be asc or desc", f.order)
	}
	return filter, nil
}

func parseTime(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	return time.ParseInLocation("2006-01-02", s, time.Local)
}

func parseAmount(s string) (decimal.NullDecimal, error) {
	if s == "" {
		return decimal.NullDecimal{}, nil
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.NullDecimal{}, err
	}
	return model.Amount(d), nil
}

func newAppendCommand() *cobra.Command {
	var (
		timestamp string
		start     string
		end       string
		profit    string
		profitPct string
		attempt   model.ArbitrageAttempt
	)

	cmd := &cobra.Command{
		Use:   "append",
		Short: "Record one arbitrage attempt",
		Long: `Record one arbitrage attempt and print its identifier.

Profit and profit percentage are derived from the amounts when omitted.

Example:
  arblog append --base-token USDT --path "USDT→WBNB→CAKE→USDT" \
    --routers pancakeswap,biswap,pancakeswap --start 1000 --end 1005.25 --executed`,
		RunE: func(cmd *cobra.Command, args []string) error {
			var err error
			if attempt.Timestamp, err = parseTime(timestamp); err != nil {
				return fmt.Errorf("invalid --timestamp: %w", err)
			}
			for _, a := range []struct {
				flag  string
				value string
				dst   *decimal.NullDecimal
			}{
				{"start", start, &attempt.StartAmountUSDT},
				{"end", end, &attempt.EndAmountUSDT},
				{"profit", profit, &attempt.ProfitUSDT},
				{"profit-pct", profitPct, &attempt.ProfitPercentage},
			} {
				if *a.dst, err = parseAmount(a.value); err != nil {
					return fmt.Errorf("invalid --%s: %w", a.flag, err)
				}
			}

			repo, err := openRepository(cmd.Context())
			if err != nil {
				return err
			}
			defer repo.Pool.Close()

			id, err := repo.Append(cmd.Context(), attempt)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), id)
			return nil
		},
	}

	cmd.Flags().StringVar(&timestamp, "timestamp", "", "When the attempt was evaluated (default: now)")
	cmd.Flags().StringVar(&start, "start", "", "Start amount in USDT")
	cmd.Flags().StringVar(&end, "end", "", "End amount in USDT")
	cmd.Flags().StringVar(&profit, "profit", "", "Profit in USDT (default: end - start)")
	cmd.Flags().StringVar(&profitPct, "profit-pct", "", "Profit percentage (default: profit / start * 100)")
	cmd.Flags().StringVar(&attempt.BaseToken, "base-token", "", "Base token of the cycle")
	cmd.Flags().StringVar(&attempt.Path, "path", "", `Cycle path, e.g. "USDT→WBNB→CAKE→USDT"`)
	cmd.Flags().StringVar(&attempt.Routers, "routers", "", "Comma-separated router per hop")
	cmd.Flags().BoolVar(&attempt.Executed, "executed", false, "The cycle was executed on chain")

	return cmd
}

func newQueryCommand() *cobra.Command {
	var flags filterFlags

	cmd := &cobra.Command{
		Use:   "query",
		Short: "List recorded attempts",
		Long: `List recorded attempts with optional filtering, ordered by id.

Examples:
  arblog query --executed --limit 20 --order desc
  arblog query --from 2025-01-01 --to 2025-01-02 --base-token USDT
  arblog query --min-profit 1.5`,
		RunE: func(cmd *cobra.Command, args []string) error {
			filter, err := flags.build(cmd)
			if err != nil {
				return err
			}

			repo, err := openRepository(cmd.Context())
			if err != nil {
				return err
			}
			defer repo.Pool.Close()

			n, err := displayAttempts(cmd.OutOrStdout(), repo.Query(cmd.Context(), filter))
			if err != nil {
				return fmt.Errorf("failed to query attempts: %w", err)
			}
			if n == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No attempts found")
			}
			return nil
		},
	}

	flags.register(cmd, true)

	return cmd
}

func newStatsCommand() *cobra.Command {
	var (
		flags filterFlags
		hours int
	)

	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Summarise recorded attempts",
		Long: `Summarise recorded attempts: counts, profit totals and percentiles.

Examples:
  arblog stats --hours 24
  arblog stats --executed --base-token USDT`,
		RunE: func(cmd *cobra.Command, args []string) error {
			filter, err := flags.build(cmd)
			if err != nil {
				return err
			}
			if hours < 0 {
				return fmt.Errorf("--hours must not be negative")
			}
			if hours > 0 {
				filter.From = time.Now().Add(-time.Duration(hours) * time.Hour)
			}

			repo, err := openRepository(cmd.Context())
			if err != nil {
				return err
			}
			defer repo.Pool.Close()

			st, err := repo.Stats(cmd.Context(), filter)
			if err != nil {
				return fmt.Errorf("failed to compute stats: %w", err)
			}
			displayStats(cmd.OutOrStdout(), st)
			return nil
		},
	}

	flags.register(cmd, false)
	cmd.Flags().IntVar(&hours, "hours", 0, "Only the last N hours (overrides --from)")

	return cmd
}

func newExportCommand() *cobra.Command {
	var (
		flags  filterFlags
		output string
	)

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export recorded attempts as CSV",
		Long: `Export recorded attempts as CSV, one row per attempt.

Examples:
  arblog export --output attempts.csv
  arblog export --output - --executed`,
		RunE: func(cmd *cobra.Command, args []string) error {
			filter, err := flags.build(cmd)
			if err != nil {
				return err
			}

			repo, err := openRepository(cmd.Context())
			if err != nil {
				return err
			}
			defer repo.Pool.Close()

			w := cmd.OutOrStdout()
			if output != "-" {
				file, err := os.Create(output)
				if err != nil {
					return fmt.Errorf("failed to create CSV file: %w", err)
				}
				defer file.Close()
				w = file
			}

			n, err := writeCSV(w, repo.Query(cmd.Context(), filter))
			if err != nil {
				return fmt.Errorf("failed to export attempts: %w", err)
			}
			if output != "-" {
				fmt.Fprintf(cmd.OutOrStdout(), "✓ Exported %d attempts to %s\n", n, output)
			}
			return nil
		},
	}

	flags.register(cmd, true)
	cmd.Flags().StringVarP(&output, "output", "o", "", "Output file ('-' for stdout) [required]")
	cmd.MarkFlagRequired("output")

	return cmd
}

func formatAmount(d decimal.NullDecimal) string {
	if !d.Valid {
		return ""
	}
	return d.Decimal.String()
}

func displayAttempts(out io.Writer, attempts iter.Seq2[model.ArbitrageAttempt, error]) (int, error) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tTIMESTAMP\tBASE\tPATH\tROUTERS\tSTART\tEND\tPROFIT\tPROFIT %\tEXECUTED")

	n := 0
	for a, err := range attempts {
		if err != nil {
			return n, err
		}
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\t%s\t%s\t%s\t%s\t%t\n",
			a.ID,
			a.Timestamp.Local().Format(timeLayout),
			a.BaseToken,
			a.Path,
			a.Routers,
			formatAmount(a.StartAmountUSDT),
			formatAmount(a.EndAmountUSDT),
			formatAmount(a.ProfitUSDT),
			formatAmount(a.ProfitPercentage),
			a.Executed,
		)
		n++
	}
	if n == 0 {
		return 0, nil
	}
	return n, w.Flush()
}

func displayStats(out io.Writer, st model.Stats) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "Attempts:\t%d\n", st.TotalAttempts)
	fmt.Fprintf(w, "Executed:\t%d\n", st.ExecutedAttempts)
	fmt.Fprintf(w, "Profitable:\t%d\n", st.ProfitableAttempts)
	fmt.Fprintf(w, "Total profit (USDT):\t%s\n", formatAmount(st.TotalProfitUSDT))
	fmt.Fprintf(w, "Average profit (USDT):\t%s\n", formatAmount(st.AvgProfitUSDT))
	fmt.Fprintf(w, "Median profit (USDT):\t%s\n", formatAmount(st.MedianProfitUSDT))
	fmt.Fprintf(w, "P95 profit (USDT):\t%s\n", formatAmount(st.P95ProfitUSDT))
	fmt.Fprintf(w, "Max profit (USDT):\t%s\n", formatAmount(st.MaxProfitUSDT))
	fmt.Fprintf(w, "Min profit (USDT):\t%s\n", formatAmount(st.MinProfitUSDT))
	fmt.Fprintf(w, "Average profit %%:\t%s\n", formatAmount(st.AvgProfitPercentage))
	if st.FirstAttemptAt != nil && st.LastAttemptAt != nil {
		fmt.Fprintf(w, "Window:\t%s .. %s\n",
			st.FirstAttemptAt.Local().Format(timeLayout),
			st.LastAttemptAt.Local().Format(timeLayout))
	}
	w.Flush()
}

// writeCSV writes the header and one row per attempt, returning the row count.
func writeCSV(out io.Writer, attempts iter.Seq2[model.ArbitrageAttempt, error]) (int, error) {
	writer := csv.NewWriter(out)
	if err := writer.Write(csvHeader); err != nil {
		return 0, err
	}

	n := 0
	for a, err := range attempts {
		if err != nil {
			return n, err
		}
		row := []string{
			strconv.FormatInt(a.ID, 10),
			a.Timestamp.UTC().Format(time.RFC3339Nano),
			formatAmount(a.StartAmountUSDT),
			formatAmount(a.EndAmountUSDT),
			formatAmount(a.ProfitUSDT),
			formatAmount(a.ProfitPercentage),
			a.BaseToken,
			a.Path,
			a.Routers,
			strconv.FormatBool(a.Executed),
		}
		if err := writer.Write(row); err != nil {
			return n, err
		}
		n++
	}
	writer.Flush()
	return n, writer.Error()
}
