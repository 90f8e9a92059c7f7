// Copyright 2025 The sheetbridge Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/sheetbridge/sheetbridge/internal/server"
	"github.com/sheetbridge/sheetbridge/sheetbridge"
)

var (
	resyncTable         string
	resyncSnapshotPath  string
	resyncDeleteMissing bool
)

var resyncCmd = &cobra.Command{
	Use:   "resync",
	Short: "Reconcile the record store against a full snapshot file",
	Long: `Reads a JSON snapshot file (an array of {rowId, fields} objects) and
batch-diffs it against the record store. Rows missing from the store are
inserted, diverged rows updated, and rows absent from the snapshot deleted
when --delete-missing is set. This covers row deletions the spreadsheet edit
trigger cannot signal.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		logger := newLogger(&cfg.Logging)

		table := resyncTable
		if table == "" {
			table = cfg.DefaultTable()
		}
		if table == "" {
			return fmt.Errorf("no --table given and no tables configured")
		}

		data, err := os.ReadFile(resyncSnapshotPath)
		if err != nil {
			return fmt.Errorf("failed to read snapshot file: %w", err)
		}
		var rows []sheetbridge.SnapshotRow
		if err := json.Unmarshal(data, &rows); err != nil {
			return fmt.Errorf("failed to parse snapshot file: %w", err)
		}

		ctx := context.Background()
		components, err := server.Setup(ctx, cfg, logger)
		if err != nil {
			return err
		}
		defer components.Close()

		summary, err := components.Service.ReconcileSnapshot(ctx, table, rows, resyncDeleteMissing)
		if err != nil {
			return err
		}

		fmt.Printf("resync complete: inserted=%d updated=%d deleted=%d unchanged=%d\n",
			summary.Inserted, summary.Updated, summary.Deleted, summary.Unchanged)
		return nil
	},
}

func init() {
	resyncCmd.Flags().StringVar(&resyncTable, "table", "", "entity table to reconcile (defaults to the first configured table)")
	resyncCmd.Flags().StringVar(&resyncSnapshotPath, "snapshot", "", "path to JSON snapshot file")
	resyncCmd.Flags().BoolVar(&resyncDeleteMissing, "delete-missing", false, "delete rows absent from the snapshot")
	_ = resyncCmd.MarkFlagRequired("snapshot")
}
