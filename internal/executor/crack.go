// Package executor holds the stage executors that touch the local disk:
// replacing the Steam API with an emulator build and packing game folders.
package executor

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"gamebatch/internal/batch"
	"gamebatch/internal/models"
	"gamebatch/pkg/utils"
)

const appIDFile = "steam_appid.txt"

var steamAPIFiles = []string{"steam_api.dll", "steam_api64.dll"}

var ErrNoSteamAPI = errors.New("no steam_api dll found")

// Cracker swaps every steam_api dll under a game folder for the build found
// in EmulatorDir. When UnpackerPath is set it also runs the unpacker over
// each executable.
type Cracker struct {
	EmulatorDir  string
	UnpackerPath string
	Logger       *slog.Logger
}

func NewCracker(emulatorDir, unpackerPath string, logger *slog.Logger) *Cracker {
	if logger == nil {
		logger = slog.Default()
	}
	return &Cracker{EmulatorDir: emulatorDir, UnpackerPath: unpackerPath, Logger: logger}
}

var _ batch.Cracker = (*Cracker)(nil)

func (c *Cracker) Crack(ctx context.Context, item models.WorkItem) (batch.CrackReport, error) {
	var rep batch.CrackReport
	if err := utils.ValidatePaths([]string{item.SourcePath, c.EmulatorDir}); err != nil {
		return rep, err
	}
	log := c.Logger.With("item", item.Name)

	dlls, exes, err := scanGame(ctx, item.SourcePath)
	if err != nil {
		return rep, fmt.Errorf("failed to scan %s: %w", item.SourcePath, err)
	}

	dirs := map[string]bool{}
	for _, dll := range dlls {
		if err := ctx.Err(); err != nil {
			return rep, err
		}
		backedUp, err := c.replaceDLL(dll)
		if backedUp {
			rep.FilesBackedUp = append(rep.FilesBackedUp, dll+".bak")
		}
		if err != nil {
			rep.Errors = append(rep.Errors, err.Error())
			continue
		}
		rep.FilesReplaced = append(rep.FilesReplaced, dll)
		dirs[filepath.Dir(dll)] = true
		log.Debug("Replaced steam api", "path", dll)
	}

	if item.ExternalID != "" {
		if len(dirs) == 0 {
			dirs[item.SourcePath] = true
		}
		for dir := range dirs {
			path := filepath.Join(dir, appIDFile)
			if err := os.WriteFile(path, []byte(item.ExternalID), 0644); err != nil {
				rep.Errors = append(rep.Errors, fmt.Sprintf("failed to write %s: %v", path, err))
			}
		}
	}

	if c.UnpackerPath != "" {
		for _, exe := range exes {
			if err := ctx.Err(); err != nil {
				return rep, err
			}
			rep.ExesAttempted = append(rep.ExesAttempted, exe)
			if err := c.unpack(ctx, exe); err != nil {
				rep.Errors = append(rep.Errors, err.Error())
				continue
			}
			rep.ExesUnpacked = append(rep.ExesUnpacked, exe)
			log.Debug("Unpacked executable", "path", exe)
		}
	}

	if len(rep.FilesReplaced) == 0 && len(rep.ExesUnpacked) == 0 {
		if len(dlls) == 0 {
			return rep, ErrNoSteamAPI
		}
		return rep, fmt.Errorf("no steam_api dll could be replaced (%d found)", len(dlls))
	}
	return rep, nil
}

// scanGame lists steam api dlls and executables below root. Backups and
// unpacker output are skipped.
func scanGame(ctx context.Context, root string) (dlls, exes []string, err error) {
	err = filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if info.IsDir() {
			return nil
		}
		name := strings.ToLower(info.Name())
		switch {
		case isSteamAPI(name):
			dlls = append(dlls, path)
		case strings.HasSuffix(name, ".exe") && !strings.HasSuffix(name, ".unpacked.exe"):
			exes = append(exes, path)
		}
		return nil
	})
	return dlls, exes, err
}

func isSteamAPI(name string) bool {
	for _, n := range steamAPIFiles {
		if name == n {
			return true
		}
	}
	return false
}

// replaceDLL keeps the first backup it ever made, so cracking a folder twice
// never overwrites the original dll with the emulator build.
func (c *Cracker) replaceDLL(dll string) (backedUp bool, err error) {
	src := filepath.Join(c.EmulatorDir, strings.ToLower(filepath.Base(dll)))
	if _, err := os.Stat(src); err != nil {
		return false, fmt.Errorf("emulator build missing for %s: %w", filepath.Base(dll), err)
	}

	backup := dll + ".bak"
	if _, err := os.Stat(backup); os.IsNotExist(err) {
		if err := copyFile(dll, backup); err != nil {
			return false, fmt.Errorf("failed to back up %s: %w", dll, err)
		}
		backedUp = true
	}

	if err := copyFile(src, dll); err != nil {
		return backedUp, fmt.Errorf("failed to replace %s: %w", dll, err)
	}
	return backedUp, nil
}

// unpack runs the unpacker on exe. The unpacker writes <name>.unpacked.exe
// next to its input; that output replaces the original after a backup.
func (c *Cracker) unpack(ctx context.Context, exe string) error {
	out, err := exec.CommandContext(ctx, c.UnpackerPath, exe).CombinedOutput()
	if err != nil {
		return fmt.Errorf("unpacker failed on %s: %w: %s", filepath.Base(exe), err, strings.TrimSpace(string(out)))
	}

	unpacked := strings.TrimSuffix(exe, filepath.Ext(exe)) + ".unpacked.exe"
	if _, err := os.Stat(unpacked); err != nil {
		return fmt.Errorf("unpacker produced no output for %s", filepath.Base(exe))
	}

	backup := exe + ".bak"
	if _, err := os.Stat(backup); os.IsNotExist(err) {
		if err := copyFile(exe, backup); err != nil {
			return fmt.Errorf("failed to back up %s: %w", exe, err)
		}
	}
	if err := os.Rename(unpacked, exe); err != nil {
		return fmt.Errorf("failed to swap in unpacked %s: %w", exe, err)
	}
	return nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	info, err := in.Stat()
	if err != nil {
		return err
	}

	out, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, info.Mode().Perm())
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}
