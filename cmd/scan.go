package cmd

import (
	"github.com/spf13/cobra"

	"gamebatch/internal/models"
	"gamebatch/pkg/utils"
)

var scanCmd = &cobra.Command{
	Use:   "scan [game folders...]",
	Short: "Show the work items a run would submit",
	Long: `Scan game folders and print the work items that the run command would
submit, including detected app ids and folder sizes.`,
	Example: `  # Scan two game folders
  gamebatch scan "games/Portal" "games/Half-Life 2"

  # Scan for an upload-only batch
  gamebatch scan games/* --no-crack --no-compress`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runScan(cmd, args)
	},
}

type scanResult struct {
	Items          []models.WorkItem `json:"items"`
	TotalItems     int               `json:"total_items"`
	TotalSizeBytes int64             `json:"total_size_bytes"`
	TotalSizeHuman string            `json:"total_size_human"`
}

func runScan(cmd *cobra.Command, args []string) error {
	items, err := discoverItems(args, getStageFlags(cmd))
	if err != nil {
		utils.PrintError(err, "scan")
		return err
	}

	if err := utils.PrintJSON(newScanResult(items)); err != nil {
		utils.PrintError(err, "scan")
		return err
	}
	return nil
}

func newScanResult(items []models.WorkItem) scanResult {
	var total int64
	for _, it := range items {
		total += it.SizeBytes
	}
	return scanResult{
		Items:          items,
		TotalItems:     len(items),
		TotalSizeBytes: total,
		TotalSizeHuman: utils.FormatBytes(total),
	}
}

func init() {
	addStageFlags(scanCmd)
}
