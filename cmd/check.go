package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"gamebatch/internal/s3client"
	"gamebatch/pkg/utils"
)

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Check that the upload bucket is reachable",
	Long: `Probe the configured S3 bucket with the configured credentials and report
whether uploads would currently go through.
The bucket name is taken from the configuration file unless overridden with --bucket flag.`,
	Example: `  # Check the configured bucket
  gamebatch check

  # Check a specific bucket
  gamebatch check --bucket my-other-bucket`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runCheck(cmd)
	},
}

func runCheck(cmd *cobra.Command) error {
	client, err := s3client.New(cfg)
	if err != nil {
		utils.PrintError(err, "check")
		return err
	}

	timeout, _ := cmd.Flags().GetInt("timeout")
	ctx, cancel := context.WithTimeout(context.Background(), time.Duration(timeout)*time.Second)
	defer cancel()

	if isVerbose(cmd) {
		cmd.Printf("Checking bucket: %s\n", getBucketName(cmd))
	}

	info := client.GetConnectivityInfo(ctx)
	if err := utils.PrintJSON(info); err != nil {
		utils.PrintError(err, "check")
		return err
	}

	if !info.Online {
		return fmt.Errorf("bucket %s is unreachable: %s", info.BucketName, info.Error)
	}
	return nil
}

func init() {
	checkCmd.Flags().Int("timeout", 30, "Timeout in seconds for the check")
}
