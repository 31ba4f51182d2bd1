package main

import (
	"fmt"
	"path/filepath"
	"strings"

	"cloud.google.com/go/civil"
	"github.com/spf13/cobra"

	"github.com/dvloznov/crypto-etl/internal/config"
	"github.com/dvloznov/crypto-etl/internal/gcs"
	"github.com/dvloznov/crypto-etl/internal/ingest"
)

func (a *app) uploadCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "upload",
		Short: "Stage a local parquet export at its canonical GCS path",
		RunE: func(cmd *cobra.Command, args []string) error {
			filePath, _ := cmd.Flags().GetString("file")
			kind, _ := cmd.Flags().GetString("kind")
			if filePath == "" {
				return fmt.Errorf("--file is required")
			}
			if a.cfg.Bucket == "" {
				return fmt.Errorf("--bucket is required")
			}
			date, err := parseDateFlag(cmd, "date")
			if err != nil {
				return err
			}

			object, err := uploadObject(a.cfg, kind, date, filePath)
			if err != nil {
				return err
			}

			ctx, cancel := a.context(cmd)
			defer cancel()

			storage, err := gcs.NewGCSStorageService(ctx)
			if err != nil {
				return err
			}
			defer storage.Close()

			a.log.Info().
				Str("bucket", a.cfg.Bucket).
				Str("object", object).
				Str("file", filePath).
				Msg("Uploading file to GCS")

			if err := storage.UploadFile(ctx, a.cfg.Bucket, object, filePath); err != nil {
				return fmt.Errorf("upload failed: %w", err)
			}
			printf(cmd, "Uploaded %s to %s\n", filePath, gcs.URI(a.cfg.Bucket, object))
			return nil
		},
	}
	cmd.Flags().String("file", "", "Path to local parquet file")
	cmd.Flags().String("kind", "transactions", "Export kind: prices or transactions")
	cmd.Flags().String("date", "", "Processing date (YYYY-MM-DD)")
	return cmd
}

// uploadObject is the object path load reads the file back from.
func uploadObject(cfg config.Config, kind string, date civil.Date, filePath string) (string, error) {
	switch kind {
	case "prices":
		width, err := cfg.BarWidth()
		if err != nil {
			return "", err
		}
		return ingest.PricesObject(cfg.Asset, date, width.Label), nil
	case "transactions":
		part := strings.TrimSuffix(filepath.Base(filePath), filepath.Ext(filePath))
		return ingest.TransactionsPrefix(cfg.Asset, date) + "_" + part + ".parquet", nil
	default:
		return "", fmt.Errorf("--kind must be prices or transactions, got %q", kind)
	}
}
