package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Toltar/energy-monitoring-app/pkg/ingest"
)

var submitCmd = &cobra.Command{
	Use:   "submit",
	Short: "Record a single energy usage reading",
	Long:  `Record one energy usage reading for a calendar date, in kWh.`,
	RunE:  runSubmit,
}

func init() {
	rootCmd.AddCommand(submitCmd)
	submitCmd.Flags().StringP("date", "d", "", "Reading date (YYYY-MM-DD)")
	submitCmd.Flags().Float64("usage", 0, "Usage in kWh")
	submitCmd.Flags().StringP("user", "u", "", "User ID (default from config)")
	_ = submitCmd.MarkFlagRequired("date")
	_ = submitCmd.MarkFlagRequired("usage")
}

func runSubmit(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	date, _ := cmd.Flags().GetString("date")
	usage, _ := cmd.Flags().GetFloat64("usage")
	userID, _ := cmd.Flags().GetString("user")

	if userID == "" {
		userID = cfg.Defaults.UserID
	}
	if userID == "" {
		return fmt.Errorf("no user ID given: pass --user or set defaults.user_id")
	}

	logger := newLogger(cfg)

	store, err := initStorage(cfg, logger)
	if err != nil {
		return err
	}
	defer store.Close()

	single := ingest.NewSingleIngestor(store, logger)
	record, err := single.Ingest(cmd.Context(), userID, &ingest.ReadingInput{
		Date:  &date,
		Usage: &usage,
	})
	if err != nil {
		return fmt.Errorf("submit reading: %w", err)
	}

	fmt.Printf("Recorded reading:\n")
	fmt.Printf("  User:  %s\n", record.UserID)
	fmt.Printf("  Date:  %s\n", record.Date)
	fmt.Printf("  Usage: %.2f kWh\n", record.Usage)

	return nil
}
