package executor

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"gamebatch/internal/models"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatalf("Failed to create dir: %v", err)
	}
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("Failed to write %s: %v", path, err)
	}
}

func readFile(t *testing.T, path string) string {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("Failed to read %s: %v", path, err)
	}
	return string(data)
}

func emulatorDir(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "steam_api.dll"), "emu32")
	writeFile(t, filepath.Join(dir, "steam_api64.dll"), "emu64")
	return dir
}

func TestCracker_ReplacesSteamAPI(t *testing.T) {
	game := t.TempDir()
	dll := filepath.Join(game, "bin", "steam_api64.dll")
	writeFile(t, dll, "original")
	writeFile(t, filepath.Join(game, "readme.txt"), "hi")

	c := NewCracker(emulatorDir(t), "", quietLogger())
	item := models.WorkItem{Name: "Game", SourcePath: game, ExternalID: "480"}

	rep, err := c.Crack(context.Background(), item)
	if err != nil {
		t.Fatalf("Crack() error = %v", err)
	}

	if len(rep.FilesReplaced) != 1 || rep.FilesReplaced[0] != dll {
		t.Errorf("FilesReplaced = %v, want [%s]", rep.FilesReplaced, dll)
	}
	if len(rep.FilesBackedUp) != 1 {
		t.Errorf("FilesBackedUp = %v, want one backup", rep.FilesBackedUp)
	}
	if got := readFile(t, dll); got != "emu64" {
		t.Errorf("dll content = %q, want emulator build", got)
	}
	if got := readFile(t, dll+".bak"); got != "original" {
		t.Errorf("backup content = %q, want original", got)
	}
	if got := readFile(t, filepath.Join(game, "bin", appIDFile)); got != "480" {
		t.Errorf("%s = %q, want 480", appIDFile, got)
	}

	// A second pass must keep the original backup.
	rep, err = c.Crack(context.Background(), item)
	if err != nil {
		t.Fatalf("second Crack() error = %v", err)
	}
	if len(rep.FilesBackedUp) != 0 {
		t.Errorf("second pass backed up %v again", rep.FilesBackedUp)
	}
	if got := readFile(t, dll+".bak"); got != "original" {
		t.Errorf("backup content after second pass = %q, want original", got)
	}
}

func TestCracker_Failures(t *testing.T) {
	tests := []struct {
		name    string
		setup   func(t *testing.T, game string)
		emuDir  func(t *testing.T) string
		wantErr error
	}{
		{
			name:    "No steam api",
			setup:   func(t *testing.T, game string) { writeFile(t, filepath.Join(game, "game.exe"), "exe") },
			emuDir:  emulatorDir,
			wantErr: ErrNoSteamAPI,
		},
		{
			name:  "Emulator build missing",
			setup: func(t *testing.T, game string) { writeFile(t, filepath.Join(game, "steam_api.dll"), "original") },
			emuDir: func(t *testing.T) string {
				return t.TempDir()
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			game := t.TempDir()
			tt.setup(t, game)
			c := NewCracker(tt.emuDir(t), "", quietLogger())

			rep, err := c.Crack(context.Background(), models.WorkItem{Name: "Game", SourcePath: game})
			if err == nil {
				t.Fatal("Crack() error = nil, want failure")
			}
			if tt.wantErr != nil && !errors.Is(err, tt.wantErr) {
				t.Errorf("Crack() error = %v, want %v", err, tt.wantErr)
			}
			if len(rep.FilesReplaced) != 0 {
				t.Errorf("FilesReplaced = %v, want none", rep.FilesReplaced)
			}
		})
	}
}

func TestCracker_MissingSource(t *testing.T) {
	c := NewCracker(emulatorDir(t), "", quietLogger())
	_, err := c.Crack(context.Background(), models.WorkItem{Name: "Gone", SourcePath: filepath.Join(t.TempDir(), "gone")})
	if err == nil {
		t.Error("Crack() on missing folder should return error")
	}
}

func TestCracker_Unpacker(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("unpacker stub is a shell script")
	}

	game := t.TempDir()
	writeFile(t, filepath.Join(game, "steam_api.dll"), "original")
	exe := filepath.Join(game, "game.exe")
	writeFile(t, exe, "packed")
	writeFile(t, filepath.Join(game, "broken.exe"), "packed")

	unpacker := filepath.Join(t.TempDir(), "unpack.sh")
	script := "#!/bin/sh\ncase \"$1\" in *broken.exe) echo 'bad header' >&2; exit 1;; esac\nprintf unpacked > \"${1%.exe}.unpacked.exe\"\n"
	if err := os.WriteFile(unpacker, []byte(script), 0755); err != nil {
		t.Fatalf("Failed to write unpacker: %v", err)
	}

	c := NewCracker(emulatorDir(t), unpacker, quietLogger())
	rep, err := c.Crack(context.Background(), models.WorkItem{Name: "Game", SourcePath: game})
	if err != nil {
		t.Fatalf("Crack() error = %v", err)
	}

	if len(rep.ExesAttempted) != 2 {
		t.Errorf("ExesAttempted = %v, want 2", rep.ExesAttempted)
	}
	if len(rep.ExesUnpacked) != 1 || rep.ExesUnpacked[0] != exe {
		t.Errorf("ExesUnpacked = %v, want [%s]", rep.ExesUnpacked, exe)
	}
	if len(rep.Errors) != 1 {
		t.Errorf("Errors = %v, want the broken.exe failure", rep.Errors)
	}
	if got := readFile(t, exe); got != "unpacked" {
		t.Errorf("exe content = %q, want unpacked", got)
	}
	if got := readFile(t, exe+".bak"); got != "packed" {
		t.Errorf("exe backup = %q, want packed", got)
	}
}
