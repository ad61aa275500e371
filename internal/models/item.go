package models

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

const (
	FormatZip      = "zip"
	FormatSevenZip = "7z"
)

type DepotManifest struct {
	ManifestID string `json:"manifest_id"`
	SizeBytes  int64  `json:"size_bytes"`
}

// VersionInfo is reporting-only metadata; processing never reads it.
type VersionInfo struct {
	BuildID         string                   `json:"build_id,omitempty"`
	LastUpdatedUnix int64                    `json:"last_updated_unix,omitempty"`
	Branch          string                   `json:"branch,omitempty"`
	Platform        string                   `json:"platform,omitempty"`
	Depots          map[string]DepotManifest `json:"depots,omitempty"`
}

// WorkItem is one game submitted to a batch.
type WorkItem struct {
	Name       string       `json:"name"`
	SourcePath string       `json:"source_path"`
	ExternalID string       `json:"external_id,omitempty"`
	DoCrack    bool         `json:"do_crack"`
	DoCompress bool         `json:"do_compress"`
	DoUpload   bool         `json:"do_upload"`
	SizeBytes  int64        `json:"size_bytes"`
	Version    *VersionInfo `json:"version,omitempty"`
}

type BatchSettings struct {
	CompressionFormat    string        `json:"compression_format"`
	CompressionLevel     int           `json:"compression_level"`
	UsePassword          bool          `json:"use_password"`
	UseAltEmulator       bool          `json:"use_alt_emulator"`
	ConvertLinks         bool          `json:"convert_links"`
	MaxConcurrentUploads int           `json:"max_concurrent_uploads"`
	MaxRetries           int           `json:"max_retries"`
	RetryDelay           time.Duration `json:"-"`
}

// MarshalJSON writes the retry delay as retry_delay_ms, the unit config uses.
func (s BatchSettings) MarshalJSON() ([]byte, error) {
	type plain BatchSettings
	return json.Marshal(struct {
		plain
		RetryDelayMS int64 `json:"retry_delay_ms"`
	}{plain(s), s.RetryDelay.Milliseconds()})
}

func (s *BatchSettings) UnmarshalJSON(data []byte) error {
	type plain BatchSettings
	aux := struct {
		*plain
		RetryDelayMS int64 `json:"retry_delay_ms"`
	}{plain: (*plain)(s)}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	s.RetryDelay = time.Duration(aux.RetryDelayMS) * time.Millisecond
	return nil
}

// Validate reports every setting that is out of range.
func (s BatchSettings) Validate() error {
	var errs []error
	if s.MaxConcurrentUploads < 1 {
		errs = append(errs, fmt.Errorf("max concurrent uploads must be at least 1, got %d", s.MaxConcurrentUploads))
	}
	if s.MaxRetries < 0 {
		errs = append(errs, fmt.Errorf("max retries must not be negative, got %d", s.MaxRetries))
	}
	if s.RetryDelay < 0 {
		errs = append(errs, fmt.Errorf("retry delay must not be negative, got %s", s.RetryDelay))
	}
	if s.CompressionLevel < 0 || s.CompressionLevel > 9 {
		errs = append(errs, fmt.Errorf("compression level must be between 0 and 9, got %d", s.CompressionLevel))
	}
	switch s.CompressionFormat {
	case FormatZip, FormatSevenZip:
	default:
		errs = append(errs, fmt.Errorf("unsupported compression format %q", s.CompressionFormat))
	}
	return errors.Join(errs...)
}
