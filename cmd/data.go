package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ekaya-inc/survey-engine/pkg/models"
	"github.com/ekaya-inc/survey-engine/pkg/retry"
	"github.com/ekaya-inc/survey-engine/pkg/services"
)

func importCommand(opts *options) *cobra.Command {
	var req services.UploadRequest
	var providerType string

	cmd := &cobra.Command{
		Use:   "import <file.csv>",
		Short: "Import a survey CSV into the local store",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			userID, err := opts.requireUser()
			if err != nil {
				return err
			}
			pt, ok := models.ParseProviderType(providerType)
			if !ok {
				return fmt.Errorf("unknown provider type %q", providerType)
			}
			req.ProviderType = pt
			if req.Name == "" {
				req.Name = strings.TrimSuffix(filepath.Base(args[0]), filepath.Ext(args[0]))
			}

			f, err := os.Open(args[0])
			if err != nil {
				return fmt.Errorf("failed to open %s: %w", args[0], err)
			}
			defer f.Close()

			a, err := newApp(cmd.Context(), opts.cfg, opts.logger)
			if err != nil {
				return err
			}
			defer a.Close()
			// Mirror writes go straight to the store instead of the offline queue.
			a.monitor.Refresh(cmd.Context())

			result, err := a.surveys.Upload(cmd.Context(), userID, &req, f)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Imported %q: %d rows (%d skipped), id %s\n",
				result.Survey.Name, result.Survey.RowCount, result.SkippedRows, result.Survey.ID)
			return nil
		},
	}

	cmd.Flags().StringVar(&req.Name, "name", "", "Survey name (defaults to the file name)")
	cmd.Flags().StringVar(&req.Type, "type", "", "Survey vendor, used as the survey source (required)")
	cmd.Flags().IntVar(&req.Year, "year", 0, "Survey year")
	cmd.Flags().StringVar(&providerType, "provider-type", "", "PHYSICIAN, APP, CALL or CUSTOM (inferred when empty)")
	_ = cmd.MarkFlagRequired("type")
	return cmd
}

func exportCommand(opts *options) *cobra.Command {
	var (
		out  string
		xlsx bool
	)

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export all surveys as a JSON backup, or mappings as XLSX",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			userID, err := opts.requireUser()
			if err != nil {
				return err
			}
			a, err := newApp(cmd.Context(), opts.cfg, opts.logger)
			if err != nil {
				return err
			}
			defer a.Close()

			var w io.Writer = cmd.OutOrStdout()
			if out != "" && out != "-" {
				f, err := os.Create(out)
				if err != nil {
					return fmt.Errorf("failed to create %s: %w", out, err)
				}
				defer f.Close()
				w = f
			}

			if xlsx {
				return a.exports.WriteMappingsWorkbook(cmd.Context(), userID, w)
			}

			backup, err := a.surveys.Export(cmd.Context(), userID)
			if err != nil {
				return err
			}
			enc := json.NewEncoder(w)
			enc.SetIndent("", "  ")
			if err := enc.Encode(backup); err != nil {
				return fmt.Errorf("failed to write backup: %w", err)
			}
			opts.logger.Info("Exported backup", zap.Int("surveys", backup.TotalSurveys))
			return nil
		},
	}

	cmd.Flags().StringVarP(&out, "out", "o", "", "Output file (stdout when empty)")
	cmd.Flags().BoolVar(&xlsx, "xlsx", false, "Write the mapping workbook instead of the JSON backup")
	return cmd
}

func migrateCommand(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Push every local survey to the cloud store",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			userID, err := opts.requireUser()
			if err != nil {
				return err
			}
			a, err := newApp(cmd.Context(), opts.cfg, opts.logger)
			if err != nil {
				return err
			}
			defer a.Close()

			if a.adapter == nil {
				return fmt.Errorf("cloud sync is not configured")
			}
			err = retry.Do(cmd.Context(), retry.DefaultConfig(), func() error {
				if status := a.monitor.Refresh(cmd.Context()); !status.Online {
					return fmt.Errorf("remote store is offline: %s", status.LastError)
				}
				return nil
			})
			if err != nil {
				return err
			}

			backup, err := a.surveys.Export(cmd.Context(), userID)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			result, err := a.adapter.MigrateSurveys(cmd.Context(), userID, backup.Surveys, func(percent float64) {
				fmt.Fprintf(out, "\rMigrating... %3.0f%%", percent)
			})
			fmt.Fprintln(out)
			if err != nil {
				return err
			}

			fmt.Fprintf(out, "Migrated %d surveys, %d failed\n", result.Migrated, result.Failed)
			for _, e := range result.Errors {
				fmt.Fprintf(out, "  %s\n", e)
			}
			if result.Failed > 0 {
				return fmt.Errorf("%d surveys failed to migrate", result.Failed)
			}
			return nil
		},
	}
}
