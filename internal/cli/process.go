package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Toltar/energy-monitoring-app/pkg/ingest"
)

var processCmd = &cobra.Command{
	Use:   "process <key>...",
	Short: "Ingest CSV objects already in the object store",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runProcess,
}

func init() {
	rootCmd.AddCommand(processCmd)
	processCmd.Flags().StringP("bucket", "b", "", "Bucket holding the objects (default from config)")
}

func runProcess(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	bucket, _ := cmd.Flags().GetString("bucket")
	if bucket == "" {
		bucket = cfg.Objects.Bucket
	}

	logger := newLogger(cfg)

	objects, err := initObjects(cfg)
	if err != nil {
		return err
	}

	store, err := initStorage(cfg, logger)
	if err != nil {
		return err
	}
	defer store.Close()

	refs := make([]ingest.ObjectRef, 0, len(args))
	for _, key := range args {
		refs = append(refs, ingest.ObjectRef{Bucket: bucket, Key: key})
	}

	bulk := ingest.NewBulkIngestor(objects, store, logger)
	if err := bulk.ProcessObjects(cmd.Context(), refs); err != nil {
		return fmt.Errorf("process objects: %w", err)
	}

	fmt.Printf("Processed %d object(s)\n", len(refs))
	return nil
}
