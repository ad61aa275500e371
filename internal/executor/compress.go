package executor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"gamebatch/internal/batch"
	"gamebatch/internal/models"
	"gamebatch/pkg/utils"
)

var ErrNoPassword = errors.New("archive password requested but none configured")

// Compressor packs a game folder into OutputDir. Plain zip archives are
// written in-process; 7z and password-protected archives go through the
// 7-Zip command line tool.
type Compressor struct {
	OutputDir    string
	SevenZipPath string
	Password     string
	Logger       *slog.Logger
}

func NewCompressor(outputDir, sevenZipPath, password string, logger *slog.Logger) *Compressor {
	if sevenZipPath == "" {
		sevenZipPath = "7z"
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Compressor{
		OutputDir:    outputDir,
		SevenZipPath: sevenZipPath,
		Password:     password,
		Logger:       logger,
	}
}

var _ batch.Compressor = (*Compressor)(nil)

func (c *Compressor) Compress(ctx context.Context, item models.WorkItem, settings models.BatchSettings) (batch.CompressReport, error) {
	if err := utils.ValidatePaths([]string{item.SourcePath}); err != nil {
		return batch.CompressReport{}, err
	}
	if settings.UsePassword && c.Password == "" {
		return batch.CompressReport{}, ErrNoPassword
	}
	if err := os.MkdirAll(c.OutputDir, 0755); err != nil {
		return batch.CompressReport{}, fmt.Errorf("failed to create output dir: %w", err)
	}

	name := utils.GenerateArchiveName([]string{item.SourcePath}, "."+settings.CompressionFormat)
	final := filepath.Join(c.OutputDir, name)
	tmp := filepath.Join(c.OutputDir, "."+uuid.NewString()+".partial")

	log := c.Logger.With("item", item.Name, "format", settings.CompressionFormat, "level", settings.CompressionLevel)
	log.Debug("Compressing", "source", item.SourcePath, "output", final)

	var err error
	if settings.CompressionFormat == models.FormatZip && !settings.UsePassword {
		_, err = utils.CreateArchive(ctx, []string{item.SourcePath}, tmp, settings.CompressionLevel)
	} else {
		err = c.sevenZip(ctx, item.SourcePath, tmp, settings)
	}
	if err != nil {
		utils.CleanupTempFile(tmp)
		return batch.CompressReport{}, err
	}

	if err := os.Rename(tmp, final); err != nil {
		utils.CleanupTempFile(tmp)
		return batch.CompressReport{}, fmt.Errorf("failed to move archive into place: %w", err)
	}

	info, err := os.Stat(final)
	if err != nil {
		return batch.CompressReport{}, fmt.Errorf("failed to get archive info: %w", err)
	}
	return batch.CompressReport{OutputPath: final, OutputSizeBytes: info.Size()}, nil
}

func (c *Compressor) sevenZip(ctx context.Context, source, output string, settings models.BatchSettings) error {
	args := []string{
		"a",
		"-t" + settings.CompressionFormat,
		"-mx=" + strconv.Itoa(settings.CompressionLevel),
	}
	if settings.UsePassword {
		args = append(args, "-p"+c.Password)
		if settings.CompressionFormat == models.FormatSevenZip {
			args = append(args, "-mhe=on")
		}
	}
	args = append(args, "-y", output, source)

	out, err := exec.CommandContext(ctx, c.SevenZipPath, args...).CombinedOutput()
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		return fmt.Errorf("7z failed: %w: %s", err, lastLine(string(out)))
	}
	if _, err := os.Stat(output); err != nil {
		return fmt.Errorf("7z produced no archive: %w", err)
	}
	return nil
}

func lastLine(s string) string {
	lines := strings.Split(strings.TrimSpace(s), "\n")
	return strings.TrimSpace(lines[len(lines)-1])
}
