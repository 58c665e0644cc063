package cli

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/Toltar/energy-monitoring-app/pkg/ingest"
	"github.com/Toltar/energy-monitoring-app/pkg/objectstore"
)

var uploadCmd = &cobra.Command{
	Use:   "upload <file>",
	Short: "Upload a usage CSV file and ingest its rows",
	Long: `Stores a CSV file of daily usage readings in the object store, tagged
with the owning user, then runs the bulk ingestor over it. The file
needs a header row with Date and Usage(kWh) columns.`,
	Args: cobra.ExactArgs(1),
	RunE: runUpload,
}

func init() {
	rootCmd.AddCommand(uploadCmd)
	uploadCmd.Flags().StringP("user", "u", "", "User ID the readings belong to (default from config)")
	uploadCmd.Flags().String("key", "", "Object key (default: the file name)")
	uploadCmd.Flags().Bool("no-ingest", false, "Store the object without ingesting it")
}

func runUpload(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	userID, _ := cmd.Flags().GetString("user")
	key, _ := cmd.Flags().GetString("key")
	noIngest, _ := cmd.Flags().GetBool("no-ingest")

	if userID == "" {
		userID = cfg.Defaults.UserID
	}
	if userID == "" {
		return fmt.Errorf("no user ID given: pass --user or set defaults.user_id")
	}

	path := args[0]
	if key == "" {
		key = filepath.Base(path)
	}

	body, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read file: %w", err)
	}

	logger := newLogger(cfg)

	objects, err := initObjects(cfg)
	if err != nil {
		return err
	}

	obj := &objectstore.Object{
		Metadata: map[string]string{objectstore.MetadataUserID: userID},
		Body:     body,
	}
	if err := objects.PutObject(cmd.Context(), cfg.Objects.Bucket, key, obj); err != nil {
		return fmt.Errorf("store object: %w", err)
	}
	fmt.Printf("Uploaded %s to %s/%s (%d bytes)\n", path, cfg.Objects.Bucket, key, len(body))

	if noIngest {
		return nil
	}

	store, err := initStorage(cfg, logger)
	if err != nil {
		return err
	}
	defer store.Close()

	bulk := ingest.NewBulkIngestor(objects, store, logger)
	if err := bulk.ProcessObjects(cmd.Context(), []ingest.ObjectRef{{Bucket: cfg.Objects.Bucket, Key: key}}); err != nil {
		return fmt.Errorf("ingest object: %w", err)
	}

	fmt.Println("Ingested uploaded readings")
	return nil
}
