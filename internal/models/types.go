package models

import "time"

type ConnectivityInfo struct {
	BucketName  string    `json:"bucket_name"`
	Region      string    `json:"region"`
	APIEndpoint string    `json:"api_endpoint,omitempty"`
	Online      bool      `json:"online"`
	Latency     string    `json:"latency"`
	CheckedAt   time.Time `json:"checked_at"`
	Error       string    `json:"error,omitempty"`
}

type ErrorResponse struct {
	Error     string `json:"error"`
	Timestamp string `json:"timestamp"`
	Command   string `json:"command"`
}

type ArchiveInfo struct {
	ArchivePath      string    `json:"archive_path"`
	OriginalPaths    []string  `json:"original_paths"`
	CompressedSize   int64     `json:"compressed_size"`
	OriginalSize     int64     `json:"original_size"`
	CompressionRatio float64   `json:"compression_ratio"`
	CreatedAt        time.Time `json:"created_at"`
}
