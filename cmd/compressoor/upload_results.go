package main

import (
	"fmt"

	"github.com/ethpandaops/compressoor/pkg/upload"
	"github.com/spf13/cobra"
)

var uploadDatabase string

var uploadResultsCmd = &cobra.Command{
	Use:   "upload-results",
	Short: "Upload the result database to remote storage",
	Long:  `Upload the SQLite result database to S3-compatible storage using the config file settings.`,
	RunE:  runUploadResults,
}

func init() {
	rootCmd.AddCommand(uploadResultsCmd)
	uploadResultsCmd.Flags().StringVarP(&uploadDatabase, "database", "d", "",
		"SQLite database file to upload (defaults to database.sqlite.path)")
}

func runUploadResults(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	if !s3Enabled(cfg) {
		return fmt.Errorf("S3 upload is not configured or not enabled in config")
	}

	path := uploadDatabase
	if path == "" {
		if cfg.Database.Driver != "sqlite" {
			return fmt.Errorf("--database is required when database.driver is %q", cfg.Database.Driver)
		}

		path = cfg.Database.SQLite.Path
	}

	uploader, err := upload.NewS3Uploader(log, cfg.Upload.S3)
	if err != nil {
		return fmt.Errorf("creating S3 uploader: %w", err)
	}

	log.WithField("database", path).Info("Uploading results")

	key, err := uploader.UploadFile(cmd.Context(), path)
	if err != nil {
		return fmt.Errorf("uploading results: %w", err)
	}

	log.WithField("key", key).Info("Upload completed successfully")

	return nil
}
