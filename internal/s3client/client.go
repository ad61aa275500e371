package s3client

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	appConfig "gamebatch/config"
	"gamebatch/internal/batch"
	"gamebatch/internal/models"
)

const uploadPartSize = 64 * 1024 * 1024

type Client struct {
	s3Client *s3.Client
	presign  *s3.PresignClient
	config   *appConfig.Config
	logger   *slog.Logger
}

var (
	_ batch.Uploader      = (*Client)(nil)
	_ batch.LinkConverter = (*Client)(nil)
)

func New(cfg *appConfig.Config) (*Client, error) {
	awsConfig, err := config.LoadDefaultConfig(context.TODO(),
		config.WithRegion(cfg.Region),
		config.WithCredentialsProvider(credentials.StaticCredentialsProvider{
			Value: aws.Credentials{
				AccessKeyID:     cfg.AccessKey,
				SecretAccessKey: cfg.SecretKey,
			},
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	var s3Client *s3.Client
	if cfg.ApiURL != "" {
		s3Client = s3.NewFromConfig(awsConfig, func(o *s3.Options) {
			o.BaseEndpoint = aws.String(cfg.ApiURL)
			o.UsePathStyle = true
		})
	} else {
		s3Client = s3.NewFromConfig(awsConfig)
	}

	return &Client{
		s3Client: s3Client,
		presign:  s3.NewPresignClient(s3Client),
		config:   cfg,
		logger:   slog.Default().With("bucket", cfg.BucketName),
	}, nil
}

// Upload stores localPath under UPLOAD_PREFIX and returns its object URL.
// A directory is uploaded file by file below a folder of the same name and
// the folder URL is returned.
func (c *Client) Upload(ctx context.Context, item models.WorkItem, localPath string) (string, error) {
	fileInfo, err := os.Stat(localPath)
	if err != nil {
		return "", fmt.Errorf("failed to stat %s: %w", localPath, err)
	}

	uploader := manager.NewUploader(c.s3Client, func(u *manager.Uploader) {
		u.PartSize = uploadPartSize
	})

	start := time.Now()
	if !fileInfo.IsDir() {
		remotePath := c.buildRemotePath(c.config.UploadPrefix, filepath.Base(localPath))
		if err := c.uploadSingleFile(ctx, uploader, localPath, remotePath); err != nil {
			return "", err
		}
		c.logger.Debug("Uploaded object", "item", item.Name, "key", remotePath, "duration", time.Since(start))
		return c.objectURL(remotePath), nil
	}

	folder := c.buildRemotePath(c.config.UploadPrefix, filepath.Base(localPath))
	files := 0
	err = filepath.Walk(localPath, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			return nil
		}
		relPath, err := filepath.Rel(localPath, path)
		if err != nil {
			return err
		}
		files++
		return c.uploadSingleFile(ctx, uploader, path, c.buildRemotePath(folder, filepath.ToSlash(relPath)))
	})
	if err != nil {
		return "", fmt.Errorf("failed to upload %s: %w", localPath, err)
	}
	c.logger.Debug("Uploaded folder", "item", item.Name, "prefix", folder, "files", files, "duration", time.Since(start))
	return c.objectURL(folder + "/"), nil
}

// ConvertLink turns an object URL from Upload into a presigned download
// link valid for PRESIGN_EXPIRY_HOURS.
func (c *Client) ConvertLink(ctx context.Context, objectURL string) (string, error) {
	key, err := c.keyFromURL(objectURL)
	if err != nil {
		return "", err
	}

	req, err := c.presign.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(c.config.BucketName),
		Key:    aws.String(key),
	}, s3.WithPresignExpires(c.presignExpiry()))
	if err != nil {
		return "", fmt.Errorf("failed to presign %s: %w", key, err)
	}
	return req.URL, nil
}

// Ping checks that the bucket is reachable with the configured credentials.
func (c *Client) Ping(ctx context.Context) error {
	_, err := c.s3Client.HeadBucket(ctx, &s3.HeadBucketInput{
		Bucket: aws.String(c.config.BucketName),
	})
	if err != nil {
		return fmt.Errorf("failed to reach bucket: %w", err)
	}
	return nil
}

func (c *Client) GetConnectivityInfo(ctx context.Context) *models.ConnectivityInfo {
	start := time.Now()
	err := c.Ping(ctx)

	info := &models.ConnectivityInfo{
		BucketName:  c.config.BucketName,
		Region:      c.config.Region,
		APIEndpoint: c.config.ApiURL,
		Online:      err == nil,
		Latency:     time.Since(start).Round(time.Millisecond).String(),
		CheckedAt:   start,
	}
	if err != nil {
		info.Error = err.Error()
		return info
	}

	locationResp, err := c.s3Client.GetBucketLocation(ctx, &s3.GetBucketLocationInput{
		Bucket: aws.String(c.config.BucketName),
	})
	if err == nil && locationResp.LocationConstraint != "" {
		info.Region = string(locationResp.LocationConstraint)
	}
	return info
}

func (c *Client) uploadSingleFile(ctx context.Context, uploader *manager.Uploader, localPath, remotePath string) error {
	file, err := os.Open(localPath)
	if err != nil {
		return fmt.Errorf("failed to open file %s: %w", localPath, err)
	}
	defer file.Close()

	contentType := c.detectContentType(localPath)

	_, err = uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(c.config.BucketName),
		Key:         aws.String(remotePath),
		Body:        file,
		ContentType: aws.String(contentType),
	})

	if err != nil {
		return fmt.Errorf("failed to upload to S3: %w", err)
	}

	return nil
}

func (c *Client) presignExpiry() time.Duration {
	hours := c.config.PresignExpiryHours
	if hours <= 0 {
		hours = 1
	}
	// S3 rejects presigned URLs valid for more than a week.
	if hours > 168 {
		hours = 168
	}
	return time.Duration(hours) * time.Hour
}

func (c *Client) baseURL() string {
	if c.config.ApiURL != "" {
		return strings.TrimSuffix(c.config.ApiURL, "/") + "/" + c.config.BucketName + "/"
	}
	return fmt.Sprintf("https://%s.s3.%s.amazonaws.com/", c.config.BucketName, c.config.Region)
}

func (c *Client) objectURL(key string) string {
	segments := strings.Split(key, "/")
	for i, s := range segments {
		segments[i] = url.PathEscape(s)
	}
	return c.baseURL() + strings.Join(segments, "/")
}

func (c *Client) keyFromURL(objectURL string) (string, error) {
	base := c.baseURL()
	if !strings.HasPrefix(objectURL, base) {
		return "", fmt.Errorf("%s is not an object of bucket %s", objectURL, c.config.BucketName)
	}
	key, err := url.PathUnescape(strings.TrimPrefix(objectURL, base))
	if err != nil {
		return "", fmt.Errorf("invalid object URL %s: %w", objectURL, err)
	}
	if key == "" || strings.HasSuffix(key, "/") {
		return "", fmt.Errorf("%s does not name a single object", objectURL)
	}
	return key, nil
}

func (c *Client) buildRemotePath(destinationPath, filename string) string {
	if destinationPath == "" {
		return filename
	}

	destinationPath = strings.TrimPrefix(destinationPath, "/")

	if !strings.HasSuffix(destinationPath, "/") {
		destinationPath += "/"
	}

	return destinationPath + filename
}

func (c *Client) detectContentType(filename string) string {
	ext := strings.ToLower(filepath.Ext(filename))

	contentTypes := map[string]string{
		".txt":  "text/plain",
		".json": "application/json",
		".zip":  "application/zip",
		".7z":   "application/x-7z-compressed",
		".rar":  "application/vnd.rar",
		".tar":  "application/x-tar",
		".gz":   "application/gzip",
		".exe":  "application/vnd.microsoft.portable-executable",
		".dll":  "application/vnd.microsoft.portable-executable",
		".jpg":  "image/jpeg",
		".png":  "image/png",
	}

	if contentType, exists := contentTypes[ext]; exists {
		return contentType
	}

	return "application/octet-stream"
}
