package dataset

import (
	"bytes"
	"context"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/rs/zerolog/log"
	"github.com/uniframe-io/uniframe-backend/internal/config"
)

// Store reads uploaded datasets and persists batch result artifacts.
type Store interface {
	// LoadTable fetches and parses the dataset identified by key.
	LoadTable(ctx context.Context, key string) (*Table, error)
	// SaveResult uploads the batch matching result for a (task, owner) pair
	// and returns the artifact key.
	SaveResult(ctx context.Context, taskID, ownerID int64, result *Table) (string, error)
	// ResultURL returns a time-limited download URL for an artifact key.
	ResultURL(ctx context.Context, key string, expiry time.Duration) (string, error)
}

// DatasetKey is the canonical object key of an uploaded dataset.
func DatasetKey(datasetID int64) string {
	return fmt.Sprintf("datasets/%d.csv", datasetID)
}

func resultKey(taskID, ownerID int64) string {
	return fmt.Sprintf("results/%d/%d-%s.csv", ownerID, taskID, time.Now().UTC().Format("20060102-150405"))
}

// MinioStore keeps datasets and artifacts in one S3-compatible bucket.
type MinioStore struct {
	client *minio.Client
	bucket string
}

func NewMinioStore(conf *config.UFConfig) (*MinioStore, error) {
	client, err := minio.New(conf.Storage.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(conf.Storage.AccessKey, conf.Storage.SecretKey, ""),
		Secure: conf.Storage.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("connect object storage: %w", err)
	}
	return &MinioStore{client: client, bucket: conf.Storage.Bucket}, nil
}

func (s *MinioStore) LoadTable(ctx context.Context, key string) (*Table, error) {
	obj, err := s.client.GetObject(ctx, s.bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, fmt.Errorf("get object %s: %w", key, err)
	}
	defer obj.Close()
	return ReadCSV(obj)
}

func (s *MinioStore) SaveResult(ctx context.Context, taskID, ownerID int64, result *Table) (string, error) {
	var buf bytes.Buffer
	if err := result.WriteCSV(&buf); err != nil {
		return "", err
	}

	key := resultKey(taskID, ownerID)
	_, err := s.client.PutObject(ctx, s.bucket, key, &buf, int64(buf.Len()), minio.PutObjectOptions{
		ContentType: "text/csv",
	})
	if err != nil {
		return "", fmt.Errorf("put result %s: %w", key, err)
	}

	log.Info().
		Int64("task_id", taskID).
		Str("key", key).
		Int("rows", result.NumRows()).
		Msg("Saved batch result artifact")
	return key, nil
}

func (s *MinioStore) ResultURL(ctx context.Context, key string, expiry time.Duration) (string, error) {
	u, err := s.client.PresignedGetObject(ctx, s.bucket, key, expiry, url.Values{})
	if err != nil {
		return "", err
	}
	return u.String(), nil
}

// FSStore keeps everything under one directory. Used by the local topology
// and tests.
type FSStore struct {
	Root string
}

func (s *FSStore) LoadTable(_ context.Context, key string) (*Table, error) {
	return ReadCSVFile(filepath.Join(s.Root, key))
}

func (s *FSStore) SaveResult(_ context.Context, taskID, ownerID int64, result *Table) (string, error) {
	key := resultKey(taskID, ownerID)
	path := filepath.Join(s.Root, key)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", err
	}

	f, err := os.Create(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	if err := result.WriteCSV(f); err != nil {
		return "", err
	}
	return key, nil
}

func (s *FSStore) ResultURL(_ context.Context, key string, _ time.Duration) (string, error) {
	return "file://" + filepath.Join(s.Root, key), nil
}
