package cmd

import (
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"gamebatch/config"
)

var (
	cfg *config.Config
)

var rootCmd = &cobra.Command{
	Use:   "gamebatch",
	Short: "Batch crack, compress and upload game folders",
	Long: `gamebatch processes a batch of game folders through crack, compress,
upload and link conversion, reporting combined progress while it runs.
Crack and compress run one game at a time; uploads run in parallel slots.
Configuration is loaded from .env file or environment variables`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		if bucket, _ := cmd.Flags().GetString("bucket"); bucket != "" {
			cfg.BucketName = bucket
		}
		setupLogging(cmd)
	},
}

func Execute(config *config.Config) error {
	cfg = config
	return rootCmd.Execute()
}

func init() {
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(scanCmd)
	rootCmd.AddCommand(checkCmd)

	rootCmd.PersistentFlags().StringP("bucket", "b", "", "Override bucket name from config")
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "Enable verbose output")
}

func setupLogging(cmd *cobra.Command) {
	level := cfg.SlogLevel()
	if isVerbose(cmd) {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
}

func getBucketName(cmd *cobra.Command) string {
	bucket, _ := cmd.Flags().GetString("bucket")
	if bucket != "" {
		return bucket
	}
	return cfg.BucketName
}

func isVerbose(cmd *cobra.Command) bool {
	verbose, _ := cmd.Flags().GetBool("verbose")
	return verbose
}
