package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Toltar/energy-monitoring-app/pkg/model"
)

var alertsCmd = &cobra.Command{
	Use:   "alerts",
	Short: "Manage threshold alert configuration",
}

var alertsSetCmd = &cobra.Command{
	Use:   "set",
	Short: "Create or update a usage threshold alert",
	RunE:  runAlertsSet,
}

var alertsShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the configured threshold alert",
	RunE:  runAlertsShow,
}

func init() {
	rootCmd.AddCommand(alertsCmd)
	alertsCmd.AddCommand(alertsSetCmd)
	alertsCmd.AddCommand(alertsShowCmd)

	alertsSetCmd.Flags().Float64P("threshold", "t", 0, "Daily usage threshold in kWh")
	alertsSetCmd.Flags().StringP("email", "e", "", "Email to notify (default from config)")
	alertsSetCmd.Flags().StringP("user", "u", "", "User ID (default from config)")
	_ = alertsSetCmd.MarkFlagRequired("threshold")

	alertsShowCmd.Flags().StringP("user", "u", "", "User ID (default from config)")
}

func runAlertsSet(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	threshold, _ := cmd.Flags().GetFloat64("threshold")
	email, _ := cmd.Flags().GetString("email")
	userID, _ := cmd.Flags().GetString("user")

	if userID == "" {
		userID = cfg.Defaults.UserID
	}
	if userID == "" {
		return fmt.Errorf("no user ID given: pass --user or set defaults.user_id")
	}
	if email == "" {
		email = cfg.Defaults.Email
	}
	if !model.IsValidEmail(email) {
		return fmt.Errorf("invalid email address %q", email)
	}
	if threshold <= 0 {
		return fmt.Errorf("threshold must be greater than zero")
	}

	logger := newLogger(cfg)

	store, err := initStorage(cfg, logger)
	if err != nil {
		return err
	}
	defer store.Close()

	alert := &model.ThresholdAlertConfig{
		UserID:    userID,
		Email:     email,
		Threshold: threshold,
	}
	if err := store.SetThreshold(cmd.Context(), alert); err != nil {
		return fmt.Errorf("set threshold: %w", err)
	}

	fmt.Printf("Threshold alert set:\n")
	fmt.Printf("  User:      %s\n", userID)
	fmt.Printf("  Email:     %s\n", model.RedactEmail(email))
	fmt.Printf("  Threshold: %.2f kWh\n", threshold)

	return nil
}

func runAlertsShow(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

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

	alert, err := store.GetThreshold(cmd.Context(), userID)
	if err != nil {
		return fmt.Errorf("get threshold: %w", err)
	}
	if alert == nil {
		fmt.Println("No threshold alert configured. Use 'energymon alerts set' to create one.")
		return nil
	}

	fmt.Printf("Threshold alert:\n")
	fmt.Printf("  User:      %s\n", alert.UserID)
	fmt.Printf("  Email:     %s\n", model.RedactEmail(alert.Email))
	fmt.Printf("  Threshold: %.2f kWh\n", alert.Threshold)

	return nil
}
