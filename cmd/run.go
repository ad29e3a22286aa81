package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"quickedit/internal/keyset"
	"quickedit/internal/match"
	"quickedit/internal/models"
)

func newRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run one sync job and print its summary",
	}

	var inventoryTag string
	inventory := &cobra.Command{
		Use:   "inventory",
		Short: "Draft products whose variants are all out of stock",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runOnce(cmd.Context(), models.InventoryJob(inventoryTag))
		},
	}
	inventory.Flags().StringVar(&inventoryTag, "tag", "", "tag added to drafted products")

	var (
		file, column, vendor, tag, status string
	)
	keySet := &cobra.Command{
		Use:   "keyset",
		Short: "Tag products whose barcode is listed in a workbook column",
		RunE: func(cmd *cobra.Command, _ []string) error {
			keys, err := readColumn(file, column)
			if err != nil {
				return err
			}
			return runOnce(cmd.Context(), models.KeySetJob("excel_sync", keys, "", vendor, tag, status))
		},
	}
	keySet.Flags().StringVar(&file, "file", "", "xlsx or csv file")
	keySet.Flags().StringVar(&column, "column", "", "column holding the barcodes")
	keySet.Flags().StringVar(&vendor, "vendor", "", "only products whose vendor metafield equals this value")
	keySet.Flags().StringVar(&tag, "tag", "", "tag to add")
	keySet.Flags().StringVar(&status, "status", "", "status to set (ACTIVE, DRAFT, ARCHIVED)")
	_ = keySet.MarkFlagRequired("file")
	_ = keySet.MarkFlagRequired("column")

	var eanFile, eanTag, eanStatus string
	ean := &cobra.Command{
		Use:   "ean",
		Short: "Tag products whose barcode is listed in a text file",
		RunE: func(cmd *cobra.Command, _ []string) error {
			f, err := os.Open(eanFile)
			if err != nil {
				return err
			}
			defer f.Close()
			keys, err := keyset.FromText(f)
			if err != nil {
				return err
			}
			return runOnce(cmd.Context(), models.KeySetJob("ean_sync", keys, "", "", eanTag, eanStatus))
		},
	}
	ean.Flags().StringVar(&eanFile, "file", "", "text file with one barcode per line")
	ean.Flags().StringVar(&eanTag, "tag", "", "tag to add")
	ean.Flags().StringVar(&eanStatus, "status", "", "status to set (ACTIVE, DRAFT, ARCHIVED)")
	_ = ean.MarkFlagRequired("file")

	cmd.AddCommand(inventory, keySet, ean)
	return cmd
}

func readColumn(path, column string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	table, err := keyset.Read(filepath.Base(path), f)
	if err != nil {
		return nil, err
	}
	return table.Keys(column)
}

// runOnce executes job through the scheduler so the run is recorded like any other.
func runOnce(ctx context.Context, job models.SyncJob) error {
	cfg, logger, err := loadConfig()
	if err != nil {
		return err
	}
	defer logger.Sync()

	if job.Criterion.Kind == models.CriterionKeySet {
		job.Criterion.VendorKey = cfg.Sync.VendorKey
	}
	if _, err := match.New(job.Criterion, job.Mutation); err != nil {
		return err
	}

	a := newApp(cfg, logger)
	summary, runErr := a.scheduler.RunNow(ctx, job)
	if summary != nil {
		out, err := json.MarshalIndent(summary, "", "  ")
		if err != nil {
			return err
		}
		fmt.Println(string(out))
	}
	if runErr != nil {
		return fmt.Errorf("%s failed: %w", strings.ReplaceAll(job.Name, "_", " "), runErr)
	}
	return nil
}
