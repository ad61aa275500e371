package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"gamebatch/internal/models"
	"gamebatch/pkg/utils"
)

type stageFlags struct {
	crack    bool
	compress bool
	upload   bool
}

func addStageFlags(c *cobra.Command) {
	c.Flags().Bool("no-crack", false, "Skip the crack stage")
	c.Flags().Bool("no-compress", false, "Skip the compress stage (uploads the folder as is)")
	c.Flags().Bool("no-upload", false, "Skip the upload stage")
}

func getStageFlags(c *cobra.Command) stageFlags {
	noCrack, _ := c.Flags().GetBool("no-crack")
	noCompress, _ := c.Flags().GetBool("no-compress")
	noUpload, _ := c.Flags().GetBool("no-upload")
	return stageFlags{crack: !noCrack, compress: !noCompress, upload: !noUpload}
}

// discoverItems turns game folders into work items. The item name is the
// folder name and the external id comes from steam_appid.txt if present.
func discoverItems(dirs []string, stages stageFlags) ([]models.WorkItem, error) {
	if err := utils.ValidatePaths(dirs); err != nil {
		return nil, err
	}

	items := make([]models.WorkItem, 0, len(dirs))
	for _, dir := range dirs {
		if !isDirectory(dir) {
			return nil, fmt.Errorf("%s is not a directory", dir)
		}
		abs, err := filepath.Abs(dir)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve %s: %w", dir, err)
		}
		items = append(items, models.WorkItem{
			Name:       filepath.Base(abs),
			SourcePath: abs,
			ExternalID: readAppID(abs),
			DoCrack:    stages.crack,
			DoCompress: stages.compress,
			DoUpload:   stages.upload,
		})
	}
	return items, scanSizes(items)
}

// loadItems reads a JSON array of work items.
func loadItems(path string) ([]models.WorkItem, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read items file: %w", err)
	}
	var items []models.WorkItem
	if err := json.Unmarshal(data, &items); err != nil {
		return nil, fmt.Errorf("failed to parse items file %s: %w", path, err)
	}
	for i := range items {
		if items[i].Name == "" && items[i].SourcePath != "" {
			items[i].Name = filepath.Base(items[i].SourcePath)
		}
	}
	return items, scanSizes(items)
}

// scanSizes fills in SizeBytes for items that do not carry one.
func scanSizes(items []models.WorkItem) error {
	for i := range items {
		if items[i].SizeBytes > 0 || items[i].SourcePath == "" {
			continue
		}
		size, err := utils.PathSize(items[i].SourcePath)
		if err != nil {
			return fmt.Errorf("failed to scan %s: %w", items[i].SourcePath, err)
		}
		items[i].SizeBytes = size
	}
	return nil
}

func readAppID(dir string) string {
	data, err := os.ReadFile(filepath.Join(dir, "steam_appid.txt"))
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(data))
}

func isDirectory(path string) bool {
	fileInfo, err := os.Stat(path)
	if err != nil {
		return false
	}
	return fileInfo.IsDir()
}
