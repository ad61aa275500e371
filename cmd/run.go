package cmd

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"gamebatch/internal/batch"
	"gamebatch/internal/console"
	"gamebatch/internal/executor"
	"gamebatch/internal/models"
	"gamebatch/internal/netcheck"
	"gamebatch/internal/report"
	"gamebatch/internal/s3client"
	"gamebatch/pkg/utils"
)

var runCmd = &cobra.Command{
	Use:   "run [game folders...]",
	Short: "Process a batch of games",
	Long: `Run every game folder through crack, compress, upload and optional link
conversion.

Crack and compress handle one game at a time in the given order. As soon as a
game is compressed its upload starts in one of the parallel upload slots while
the next game is being cracked. A failing game never stops the batch.

Press Ctrl+C to cancel the batch. With --interactive, typing "skip N" skips the
upload running in slot N and "slots" lists what each slot is doing.`,
	Example: `  # Process two games with defaults from .env
  gamebatch run "games/Portal" "games/Half-Life 2" --confirm

  # Items from a file, 7z with password, presigned links, report written out
  gamebatch run --items batch.json --format 7z --password --convert-links --report report.txt

  # Upload already packed folders with 4 slots and a short summary
  gamebatch run games/* --no-crack --no-compress --slots 4 --summary

  # Show what would run without touching anything
  gamebatch run games/* --dry-run`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runBatch(cmd, args)
	},
}

func addRunFlags(c *cobra.Command) {
	addStageFlags(c)
	c.Flags().String("items", "", "JSON file with work items instead of folder arguments")
	c.Flags().String("format", "", "Archive format: zip or 7z")
	c.Flags().Int("level", 0, "Compression level 0-9")
	c.Flags().Bool("password", false, "Protect archives with ARCHIVE_PASSWORD")
	c.Flags().Bool("alt-emulator", false, "Use the emulator build from ALT_EMULATOR_DIR")
	c.Flags().Bool("convert-links", false, "Turn upload URLs into presigned download links")
	c.Flags().Int("slots", 0, "Number of parallel uploads")
	c.Flags().Int("retries", 0, "Upload retries after the first attempt")
	c.Flags().Duration("retry-delay", 0, "Delay between upload attempts")
	c.Flags().String("report", "", "Write the tag formatted report to this file")
	c.Flags().Bool("summary", false, "Print a short summary instead of the JSON result")
	c.Flags().Bool("interactive", false, "Read skip commands from stdin while running")
	c.Flags().Bool("confirm", false, "Skip confirmation prompt")
	c.Flags().Bool("dry-run", false, "Show the items and settings without processing anything")
}

// settingsFromFlags overrides base with every flag the user set.
func settingsFromFlags(c *cobra.Command, base models.BatchSettings) models.BatchSettings {
	s := base
	flags := c.Flags()
	if flags.Changed("format") {
		s.CompressionFormat, _ = flags.GetString("format")
		s.CompressionFormat = strings.ToLower(s.CompressionFormat)
	}
	if flags.Changed("level") {
		s.CompressionLevel, _ = flags.GetInt("level")
	}
	if flags.Changed("password") {
		s.UsePassword, _ = flags.GetBool("password")
	}
	if flags.Changed("alt-emulator") {
		s.UseAltEmulator, _ = flags.GetBool("alt-emulator")
	}
	if flags.Changed("convert-links") {
		s.ConvertLinks, _ = flags.GetBool("convert-links")
	}
	if flags.Changed("slots") {
		s.MaxConcurrentUploads, _ = flags.GetInt("slots")
	}
	if flags.Changed("retries") {
		s.MaxRetries, _ = flags.GetInt("retries")
	}
	if flags.Changed("retry-delay") {
		s.RetryDelay, _ = flags.GetDuration("retry-delay")
	}
	return s
}

func runBatch(cmd *cobra.Command, args []string) error {
	items, err := collectItems(cmd, args)
	if err != nil {
		utils.PrintError(err, "run")
		return err
	}
	settings := settingsFromFlags(cmd, cfg.BatchSettings())
	if err := settings.Validate(); err != nil {
		utils.PrintError(err, "run")
		return err
	}

	if dryRun, _ := cmd.Flags().GetBool("dry-run"); dryRun {
		return utils.PrintJSON(map[string]any{
			"bucket_name": getBucketName(cmd),
			"settings":    settings,
			"scan":        newScanResult(items),
			"dry_run":     true,
		})
	}

	if confirm, _ := cmd.Flags().GetBool("confirm"); !confirm {
		printRunSummary(cmd, items, settings)
		fmt.Print("Continue with batch? (y/N): ")
		var response string
		fmt.Scanln(&response)
		if response != "y" && response != "yes" && response != "Y" && response != "YES" {
			fmt.Println("Batch cancelled.")
			return nil
		}
	}

	logger := slog.Default()
	stages, connectivity, err := buildStages(items, settings, logger)
	if err != nil {
		utils.PrintError(err, "run")
		return err
	}

	opts := []batch.Option{batch.WithLogger(logger)}
	if connectivity != nil {
		opts = append(opts, batch.WithConnectivity(connectivity))
	}
	orch := batch.New(stages, opts...)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if interactive, _ := cmd.Flags().GetBool("interactive"); interactive {
		go readSkipCommands(ctx, os.Stdin, cmd.ErrOrStderr(), orch)
	}

	sink := console.NewTerminalSink(cmd.ErrOrStderr(), 30, isTerminal(os.Stderr))
	res, err := orch.Run(ctx, items, settings, sink.Sink)
	sink.Close()
	if err != nil {
		utils.PrintError(err, "run")
		return err
	}

	if path, _ := cmd.Flags().GetString("report"); path != "" {
		if err := writeReport(path, items, res); err != nil {
			utils.PrintError(err, "run")
			return err
		}
		logger.Info("Report written", "path", path)
	}

	if summary, _ := cmd.Flags().GetBool("summary"); summary {
		fmt.Println(console.RenderSummary(res))
		return nil
	}
	if err := utils.PrintJSON(res); err != nil {
		utils.PrintError(err, "run")
		return err
	}
	return nil
}

func collectItems(cmd *cobra.Command, args []string) ([]models.WorkItem, error) {
	path, _ := cmd.Flags().GetString("items")
	switch {
	case path != "" && len(args) > 0:
		return nil, fmt.Errorf("use either --items or folder arguments, not both")
	case path != "":
		return loadItems(path)
	case len(args) == 0:
		return nil, fmt.Errorf("no game folders given")
	}
	return discoverItems(args, getStageFlags(cmd))
}

// buildStages wires only the executors the batch needs, so a crack-only
// run works without bucket credentials.
func buildStages(items []models.WorkItem, settings models.BatchSettings, logger *slog.Logger) (batch.Stages, batch.Connectivity, error) {
	var needCrack, needCompress, needUpload bool
	for _, it := range items {
		needCrack = needCrack || it.DoCrack
		needCompress = needCompress || it.DoCompress
		needUpload = needUpload || it.DoUpload
	}

	var stages batch.Stages
	if needCrack {
		emulatorDir := cfg.EmulatorDir
		if settings.UseAltEmulator {
			emulatorDir = cfg.AltEmulatorDir
		}
		stages.Cracker = executor.NewCracker(emulatorDir, cfg.UnpackerPath, logger)
	}
	if needCompress {
		stages.Compressor = executor.NewCompressor(cfg.OutputDir, cfg.SevenZipPath, cfg.ArchivePassword, logger)
	}
	if !needUpload && !settings.ConvertLinks {
		return stages, nil, nil
	}

	client, err := s3client.New(cfg)
	if err != nil {
		return stages, nil, err
	}
	stages.Uploader = client
	if settings.ConvertLinks {
		stages.Converter = client
	}

	ttl := time.Duration(cfg.OnlineCheckTTL) * time.Second
	connectivity := netcheck.NewCached(client.Ping, ttl, 10*time.Second, logger)
	return stages, connectivity, nil
}

func printRunSummary(cmd *cobra.Command, items []models.WorkItem, settings models.BatchSettings) {
	scan := newScanResult(items)
	fmt.Printf("Batch summary:\n")
	fmt.Printf("  Bucket: %s\n", getBucketName(cmd))
	fmt.Printf("  Games: %d (%s)\n", scan.TotalItems, scan.TotalSizeHuman)
	for _, it := range items {
		fmt.Printf("    %s  crack=%t compress=%t upload=%t\n", it.Name, it.DoCrack, it.DoCompress, it.DoUpload)
	}
	fmt.Printf("  Archive: %s level %d password=%t\n", settings.CompressionFormat, settings.CompressionLevel, settings.UsePassword)
	fmt.Printf("  Upload slots: %d, retries: %d every %s\n", settings.MaxConcurrentUploads, settings.MaxRetries, settings.RetryDelay)
}

func writeReport(path string, items []models.WorkItem, res *models.BatchResult) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create report: %w", err)
	}
	if err := report.Render(f, items, res); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

type slotController interface {
	CancelSlot(index int) bool
	Slots() []models.UploadSlot
}

// readSkipCommands handles "skip N" and "slots" lines until ctx ends or
// input closes.
func readSkipCommands(ctx context.Context, in io.Reader, out io.Writer, slots slotController) {
	scanner := bufio.NewScanner(in)
	for scanner.Scan() {
		if ctx.Err() != nil {
			return
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "slots" {
			fmt.Fprintln(out, console.RenderSlots(slots.Slots()))
			continue
		}
		index, ok := parseSkipCommand(line)
		if !ok {
			if line != "" {
				fmt.Fprintf(out, "unknown command %q, use \"skip N\" or \"slots\"\n", line)
			}
			continue
		}
		if !slots.CancelSlot(index) {
			fmt.Fprintf(out, "slot %d is idle\n", index)
			continue
		}
		fmt.Fprintf(out, "skipping upload in slot %d\n", index)
	}
}

func parseSkipCommand(line string) (int, bool) {
	fields := strings.Fields(line)
	if len(fields) != 2 || !strings.EqualFold(fields[0], "skip") {
		return 0, false
	}
	n, err := strconv.Atoi(fields[1])
	if err != nil || n < 0 {
		return 0, false
	}
	return n, true
}

func isTerminal(f *os.File) bool {
	info, err := f.Stat()
	if err != nil {
		return false
	}
	return info.Mode()&os.ModeCharDevice != 0
}

func init() {
	addRunFlags(runCmd)
}
