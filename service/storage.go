package service

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"path/filepath"
	"time"

	"PromptToVideo-server/config"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

var MinioClient *minio.Client

// InitMinIO connects to the artifact store; called from main.
func InitMinIO() {
	cfg := config.AppConfig.MinIO
	var err error
	MinioClient, err = minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		log.Fatalf("MinIO init failed: %v", err)
	}
	log.Println("MinIO connected")
}

// Artifact object keys, namespaced by project so keys never collide across
// projects. Within one project only the owning run writes.
func ScriptObjectName(projectID string) string {
	return fmt.Sprintf("projects/%s/script.json", projectID)
}

func TimelineObjectName(projectID string) string {
	return fmt.Sprintf("projects/%s/timeline.json", projectID)
}

func VoiceoverObjectName(projectID string) string {
	return fmt.Sprintf("projects/%s/voiceover.mp3", projectID)
}

func OutputObjectName(projectID string) string {
	return fmt.Sprintf("projects/%s/output.mp4", projectID)
}

// UploadArtifact writes bytes to the artifact store and returns a presigned
// GET URL. Metadata tags describe provenance (voice/model ids for audio,
// attribution for stock media).
func UploadArtifact(ctx context.Context, objectName string, data []byte, metadata map[string]string) (string, error) {
	return UploadArtifactStream(ctx, objectName, bytes.NewReader(data), int64(len(data)), metadata)
}

// UploadArtifactStream is the io.Reader variant used when relaying a
// download (e.g. the rendered video) without buffering it fully.
func UploadArtifactStream(ctx context.Context, objectName string, reader io.Reader, size int64, metadata map[string]string) (string, error) {
	cfg := config.AppConfig.MinIO
	bucketName := cfg.Bucket

	exists, err := MinioClient.BucketExists(ctx, bucketName)
	if err != nil {
		return "", fmt.Errorf("check bucket: %w", err)
	}
	if !exists {
		if err := MinioClient.MakeBucket(ctx, bucketName, minio.MakeBucketOptions{}); err != nil {
			return "", fmt.Errorf("create bucket: %w", err)
		}
		log.Printf("bucket %q created", bucketName)
	}

	contentType := contentTypeFor(objectName)
	_, err = MinioClient.PutObject(ctx, bucketName, objectName, reader, size, minio.PutObjectOptions{
		ContentType:  contentType,
		UserMetadata: metadata,
	})
	if err != nil {
		return "", fmt.Errorf("upload to MinIO: %w", err)
	}

	expiry := 72 * time.Hour
	presignedURL, err := MinioClient.PresignedGetObject(ctx, bucketName, objectName, expiry, make(url.Values))
	if err != nil {
		return "", fmt.Errorf("presign URL: %w", err)
	}

	log.Printf("artifact stored: %s", objectName)
	return presignedURL.String(), nil
}

// DownloadAndStore fetches a remote resource (render output, provider asset)
// and re-homes it in the artifact store.
func DownloadAndStore(ctx context.Context, sourceURL, objectName string, metadata map[string]string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, sourceURL, nil)
	if err != nil {
		return "", err
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("download failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("download status: %d", resp.StatusCode)
	}
	return UploadArtifactStream(ctx, objectName, resp.Body, resp.ContentLength, metadata)
}

func contentTypeFor(objectName string) string {
	switch filepath.Ext(objectName) {
	case ".json":
		return "application/json"
	case ".mp4":
		return "video/mp4"
	case ".mp3":
		return "audio/mpeg"
	case ".wav":
		return "audio/wav"
	case ".jpg", ".jpeg":
		return "image/jpeg"
	case ".png":
		return "image/png"
	default:
		return "application/octet-stream"
	}
}
