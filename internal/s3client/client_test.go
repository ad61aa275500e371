package s3client

import (
	"context"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"gamebatch/config"
	"gamebatch/internal/models"
)

func TestBuildRemotePath(t *testing.T) {
	c := &Client{config: &config.Config{}}

	tests := []struct {
		name        string
		destination string
		filename    string
		expected    string
	}{
		{"No prefix", "", "game.zip", "game.zip"},
		{"Plain prefix", "games", "game.zip", "games/game.zip"},
		{"Leading slash", "/games", "game.zip", "games/game.zip"},
		{"Trailing slash", "games/", "game.zip", "games/game.zip"},
		{"Nested", "games/2024", "Portal/bin/portal.exe", "games/2024/Portal/bin/portal.exe"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := c.buildRemotePath(tt.destination, tt.filename); got != tt.expected {
				t.Errorf("buildRemotePath() = %s, want %s", got, tt.expected)
			}
		})
	}
}

func TestDetectContentType(t *testing.T) {
	c := &Client{config: &config.Config{}}

	tests := []struct {
		filename string
		expected string
	}{
		{"game.zip", "application/zip"},
		{"GAME.7Z", "application/x-7z-compressed"},
		{"steam_api.dll", "application/vnd.microsoft.portable-executable"},
		{"save.dat", "application/octet-stream"},
		{"noext", "application/octet-stream"},
	}

	for _, tt := range tests {
		t.Run(tt.filename, func(t *testing.T) {
			if got := c.detectContentType(tt.filename); got != tt.expected {
				t.Errorf("detectContentType(%s) = %s, want %s", tt.filename, got, tt.expected)
			}
		})
	}
}

func TestObjectURL(t *testing.T) {
	tests := []struct {
		name     string
		cfg      *config.Config
		key      string
		expected string
	}{
		{
			name:     "AWS virtual host",
			cfg:      &config.Config{BucketName: "releases", Region: "eu-west-1"},
			key:      "games/Portal.zip",
			expected: "https://releases.s3.eu-west-1.amazonaws.com/games/Portal.zip",
		},
		{
			name:     "Custom endpoint path style",
			cfg:      &config.Config{BucketName: "releases", ApiURL: "https://s3.example.com/"},
			key:      "games/Half Life 2.zip",
			expected: "https://s3.example.com/releases/games/Half%20Life%202.zip",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := &Client{config: tt.cfg}
			got := c.objectURL(tt.key)
			if got != tt.expected {
				t.Errorf("objectURL() = %s, want %s", got, tt.expected)
			}

			key, err := c.keyFromURL(got)
			if err != nil {
				t.Fatalf("keyFromURL() error = %v", err)
			}
			if key != tt.key {
				t.Errorf("keyFromURL() = %s, want %s", key, tt.key)
			}
		})
	}
}

func TestKeyFromURL_Rejects(t *testing.T) {
	c := &Client{config: &config.Config{BucketName: "releases", Region: "eu-west-1"}}

	tests := []struct {
		name string
		url  string
	}{
		{"Other bucket", "https://other.s3.eu-west-1.amazonaws.com/games/a.zip"},
		{"Folder", "https://releases.s3.eu-west-1.amazonaws.com/games/Portal/"},
		{"Bucket root", "https://releases.s3.eu-west-1.amazonaws.com/"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := c.keyFromURL(tt.url); err == nil {
				t.Errorf("keyFromURL(%s) error = nil, want error", tt.url)
			}
		})
	}
}

func TestPresignExpiry(t *testing.T) {
	tests := []struct {
		hours    int
		expected time.Duration
	}{
		{0, time.Hour},
		{24, 24 * time.Hour},
		{1000, 168 * time.Hour},
	}

	for _, tt := range tests {
		c := &Client{config: &config.Config{PresignExpiryHours: tt.hours}}
		if got := c.presignExpiry(); got != tt.expected {
			t.Errorf("presignExpiry(%d) = %s, want %s", tt.hours, got, tt.expected)
		}
	}
}

func TestConvertLink_Offline(t *testing.T) {
	cfg := &config.Config{
		BucketName:         "releases",
		Region:             "us-east-1",
		AccessKey:          "AKIDEXAMPLE",
		SecretKey:          "secret",
		PresignExpiryHours: 2,
	}
	client, err := New(cfg)
	if err != nil {
		t.Fatalf("Failed to create client: %v", err)
	}

	link, err := client.ConvertLink(context.Background(), client.objectURL("games/Portal.zip"))
	if err != nil {
		t.Fatalf("ConvertLink() error = %v", err)
	}

	u, err := url.Parse(link)
	if err != nil {
		t.Fatalf("presigned link is not a URL: %v", err)
	}
	if !strings.HasSuffix(u.Path, "/games/Portal.zip") {
		t.Errorf("presigned path = %s, want object key", u.Path)
	}
	if got := u.Query().Get("X-Amz-Expires"); got != "7200" {
		t.Errorf("X-Amz-Expires = %s, want 7200", got)
	}
	if u.Query().Get("X-Amz-Signature") == "" {
		t.Error("presigned link carries no signature")
	}
}

// Integration tests below need a real S3 connection and are skipped by
// default. Set S3_INTEGRATION_TEST=true to run them.

func integrationConfig(t *testing.T) *config.Config {
	t.Helper()
	if os.Getenv("S3_INTEGRATION_TEST") != "true" {
		t.Skip("Skipping integration test; set S3_INTEGRATION_TEST=true to run")
	}
	return &config.Config{
		BucketName:         os.Getenv("TEST_BUCKET_NAME"),
		Region:             os.Getenv("TEST_REGION"),
		ApiURL:             os.Getenv("TEST_API_URL"),
		AccessKey:          os.Getenv("TEST_ACCESS_KEY"),
		SecretKey:          os.Getenv("TEST_SECRET_KEY"),
		UploadPrefix:       "test-" + time.Now().Format("20060102-150405"),
		PresignExpiryHours: 1,
	}
}

func TestPing(t *testing.T) {
	cfg := integrationConfig(t)

	client, err := New(cfg)
	if err != nil {
		t.Fatalf("Failed to create client: %v", err)
	}

	if err := client.Ping(context.Background()); err != nil {
		t.Fatalf("Ping() error = %v", err)
	}

	info := client.GetConnectivityInfo(context.Background())
	if !info.Online || info.BucketName != cfg.BucketName {
		t.Errorf("GetConnectivityInfo() = %+v, want online %s", info, cfg.BucketName)
	}
}

func TestUploadAndConvert(t *testing.T) {
	cfg := integrationConfig(t)

	client, err := New(cfg)
	if err != nil {
		t.Fatalf("Failed to create client: %v", err)
	}

	tempFile := filepath.Join(t.TempDir(), "game.zip")
	if err := os.WriteFile(tempFile, []byte("test content for S3 upload"), 0644); err != nil {
		t.Fatalf("Failed to write temp file: %v", err)
	}

	objectURL, err := client.Upload(context.Background(), models.WorkItem{Name: "Test"}, tempFile)
	if err != nil {
		t.Fatalf("Upload() error = %v", err)
	}
	if !strings.HasSuffix(objectURL, cfg.UploadPrefix+"/game.zip") {
		t.Errorf("Upload() URL = %s, want key under %s", objectURL, cfg.UploadPrefix)
	}

	link, err := client.ConvertLink(context.Background(), objectURL)
	if err != nil {
		t.Fatalf("ConvertLink() error = %v", err)
	}
	if !strings.Contains(link, "X-Amz-Signature") {
		t.Errorf("ConvertLink() = %s, want presigned URL", link)
	}
}
