package cli

import (
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/Toltar/energy-monitoring-app/pkg/dateinput"
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Show recorded usage readings",
	RunE:  runHistory,
}

func init() {
	rootCmd.AddCommand(historyCmd)
	historyCmd.Flags().String("from", "", "Start date (YYYY-MM-DD, inclusive)")
	historyCmd.Flags().String("to", "", "End date (YYYY-MM-DD, inclusive)")
	historyCmd.Flags().StringP("user", "u", "", "User ID (default from config)")
}

func runHistory(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	from, _ := cmd.Flags().GetString("from")
	to, _ := cmd.Flags().GetString("to")
	userID, _ := cmd.Flags().GetString("user")

	if userID == "" {
		userID = cfg.Defaults.UserID
	}
	if userID == "" {
		return fmt.Errorf("no user ID given: pass --user or set defaults.user_id")
	}

	var fromDate, toDate time.Time
	if from != "" {
		if fromDate, err = dateinput.ToCanonicalDate(from); err != nil {
			return fmt.Errorf("invalid --from date %q: %w", from, err)
		}
	}
	if to != "" {
		if toDate, err = dateinput.ToCanonicalDate(to); err != nil {
			return fmt.Errorf("invalid --to date %q: %w", to, err)
		}
	}

	logger := newLogger(cfg)

	store, err := initStorage(cfg, logger)
	if err != nil {
		return err
	}
	defer store.Close()

	records, err := store.QueryUsage(cmd.Context(), userID, fromDate, toDate)
	if err != nil {
		return fmt.Errorf("query usage: %w", err)
	}

	if len(records) == 0 {
		fmt.Println("No readings recorded for the given range.")
		return nil
	}

	var total float64
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "DATE\tUSAGE (kWh)\tRECORDED AT\n")
	for _, r := range records {
		day := r.Date
		if t, err := time.Parse(time.RFC3339, r.Date); err == nil {
			day = t.Format(time.DateOnly)
		}
		fmt.Fprintf(w, "%s\t%.2f\t%s\n", day, r.Usage, r.Timestamp.Format(time.RFC3339))
		total += r.Usage
	}
	fmt.Fprintf(w, "TOTAL\t%.2f\t\n", total)
	w.Flush()

	return nil
}
