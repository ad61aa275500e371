package utils

import (
	"archive/zip"
	"compress/flate"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gamebatch/internal/models"
)

// CreateArchive zips paths into outputPath. level follows compress/flate;
// level 0 stores entries uncompressed. A partial archive is removed when
// ctx is cancelled or any path fails.
func CreateArchive(ctx context.Context, paths []string, outputPath string, level int) (info *models.ArchiveInfo, err error) {
	if level < flate.NoCompression || level > flate.BestCompression {
		return nil, fmt.Errorf("invalid compression level %d", level)
	}

	outFile, err := os.Create(outputPath)
	if err != nil {
		return nil, fmt.Errorf("failed to create archive file: %w", err)
	}
	defer func() {
		outFile.Close()
		if err != nil {
			os.Remove(outputPath)
		}
	}()

	zipWriter := zip.NewWriter(outFile)
	zipWriter.RegisterCompressor(zip.Deflate, func(w io.Writer) (io.WriteCloser, error) {
		return flate.NewWriter(w, level)
	})
	method := zip.Deflate
	if level == flate.NoCompression {
		method = zip.Store
	}

	var originalSize int64
	createdAt := time.Now()

	for _, path := range paths {
		if err := addToArchive(ctx, zipWriter, path, method); err != nil {
			zipWriter.Close()
			return nil, fmt.Errorf("failed to add %s to archive: %w", path, err)
		}

		size, err := PathSize(path)
		if err != nil {
			zipWriter.Close()
			return nil, fmt.Errorf("failed to calculate size for %s: %w", path, err)
		}
		originalSize += size
	}

	if err := zipWriter.Close(); err != nil {
		return nil, fmt.Errorf("failed to finalize archive: %w", err)
	}

	fileInfo, err := outFile.Stat()
	if err != nil {
		return nil, fmt.Errorf("failed to get archive info: %w", err)
	}
	compressedSize := fileInfo.Size()

	compressionRatio := 0.0
	if originalSize > 0 {
		compressionRatio = float64(compressedSize) / float64(originalSize)
	}

	return &models.ArchiveInfo{
		ArchivePath:      outputPath,
		OriginalPaths:    paths,
		CompressedSize:   compressedSize,
		OriginalSize:     originalSize,
		CompressionRatio: compressionRatio,
		CreatedAt:        createdAt,
	}, nil
}

// addToArchive stores sourcePath under its base name, so a game directory
// unpacks into a folder of the same name.
func addToArchive(ctx context.Context, zipWriter *zip.Writer, sourcePath string, method uint16) error {
	return filepath.Walk(sourcePath, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if info.IsDir() {
			return nil
		}

		header, err := zip.FileInfoHeader(info)
		if err != nil {
			return err
		}

		if sourcePath == path {
			header.Name = filepath.Base(path)
		} else {
			relPath, err := filepath.Rel(filepath.Dir(sourcePath), path)
			if err != nil {
				return err
			}
			header.Name = relPath
		}
		header.Name = filepath.ToSlash(header.Name)
		header.Method = method

		writer, err := zipWriter.CreateHeader(header)
		if err != nil {
			return err
		}

		file, err := os.Open(path)
		if err != nil {
			return err
		}
		defer file.Close()

		_, err = io.Copy(writer, file)
		return err
	})
}

// PathSize returns the total size of the regular files under path.
func PathSize(path string) (int64, error) {
	var size int64
	err := filepath.Walk(path, func(_ string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if !info.IsDir() {
			size += info.Size()
		}
		return nil
	})

	return size, err
}

func GenerateArchiveName(paths []string, extension string) string {
	if len(paths) == 1 {
		baseName := filepath.Base(paths[0])
		if ext := filepath.Ext(baseName); ext != "" {
			baseName = strings.TrimSuffix(baseName, ext)
		}
		return fmt.Sprintf("%s_%s%s", baseName, time.Now().Format("20060102_150405"), extension)
	}

	return fmt.Sprintf("archive_%s%s", time.Now().Format("20060102_150405"), extension)
}

func ValidatePaths(paths []string) error {
	for _, path := range paths {
		if _, err := os.Stat(path); err != nil {
			if os.IsNotExist(err) {
				return fmt.Errorf("path does not exist: %s", path)
			}
			return fmt.Errorf("cannot access path %s: %w", path, err)
		}
	}
	return nil
}

func CleanupTempFile(path string) error {
	if path == "" {
		return nil
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to cleanup temporary file %s: %w", path, err)
	}
	return nil
}
