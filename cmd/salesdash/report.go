package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"salesdash/internal/export"
)

var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "Run the analytics and print the result as JSON",
	Example: `  salesdash report --preset ytd --granularity month
  salesdash report --preset custom --start 2024-01-01 --end 2024-03-31 --basis cash`,
	RunE: runReport,
}

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Run the analytics and write an xlsx workbook",
	RunE:  runExport,
}

func init() {
	rootCmd.AddCommand(reportCmd)
	rootCmd.AddCommand(exportCmd)

	addFilterFlags(reportCmd)
	reportCmd.Flags().Bool("pretty", true, "indent JSON output")

	addFilterFlags(exportCmd)
	exportCmd.Flags().String("out", "", "output path (default OUTPUT_DIR/sales_<start>_<end>.xlsx)")
}

func runReport(cmd *cobra.Command, _ []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	tenant, err := a.tenant(cmd)
	if err != nil {
		return err
	}
	offline, _ := cmd.Flags().GetBool("offline-catalog")
	if offline {
		a.refreshSnapshot(cmd.Context(), tenant)
	}
	res, err := a.engine(offline).Run(cmd.Context(), tenant, filtersFromFlags(cmd))
	if err != nil {
		return err
	}

	enc := json.NewEncoder(os.Stdout)
	if pretty, _ := cmd.Flags().GetBool("pretty"); pretty {
		enc.SetIndent("", "  ")
	}
	return enc.Encode(res)
}

func runExport(cmd *cobra.Command, _ []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	tenant, err := a.tenant(cmd)
	if err != nil {
		return err
	}
	offline, _ := cmd.Flags().GetBool("offline-catalog")
	if offline {
		a.refreshSnapshot(cmd.Context(), tenant)
	}
	res, err := a.engine(offline).Run(cmd.Context(), tenant, filtersFromFlags(cmd))
	if err != nil {
		return err
	}

	out, _ := cmd.Flags().GetString("out")
	if out == "" {
		out = filepath.Join(a.cfg.OutputDir, fmt.Sprintf("sales_%s_%s_%s.xlsx", res.Filters.Start, res.Filters.End, time.Now().UTC().Format("20060102T150405")))
	}
	if err := export.WriteFile(res, out); err != nil {
		return err
	}
	fmt.Printf("export written: %s (series=%d products=%d)\n", out, len(res.Series), len(res.SalesByProduct))
	return nil
}
