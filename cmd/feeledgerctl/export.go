package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	gsheet "feeledger/internal/sheets/google"
	"feeledger/internal/worker"
)

func newExportCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Copy payments to the Google Sheets payment register",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "pending",
		Short: "Export every payment that has not reached the register yet",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if a.cfg.GoogleSpreadsheetID == "" || a.cfg.GoogleSheetName == "" {
				return errors.New("GOOGLE_SPREADSHEET_ID and GOOGLE_SHEET_NAME are required for export")
			}
			ctx := cmd.Context()

			register, err := gsheet.New(ctx, gsheet.Config{
				SpreadsheetID:   a.cfg.GoogleSpreadsheetID,
				SheetName:       a.cfg.GoogleSheetName,
				CredentialsJSON: a.cfg.GoogleServiceAccountJSON,
				CredentialsFile: a.cfg.GoogleServiceAccountFile,
			})
			if err != nil {
				return fmt.Errorf("initialize Google Sheets client: %w", err)
			}

			repo, err := a.openRepository(ctx)
			if err != nil {
				return err
			}
			defer repo.Close()

			exporter := worker.NewExportWorker(repo, register, a.cfg.SyncBatchSize, a.logger)
			n, err := exporter.ProcessPending(ctx)
			if err != nil {
				return err
			}
			cmd.Printf("exported %d payments\n", n)
			return nil
		},
	})
	return cmd
}
