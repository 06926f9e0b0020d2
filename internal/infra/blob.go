package infra

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"cloud.google.com/go/storage"
	"github.com/vincent-petithory/dataurl"
)

// InlineStore はドキュメントをdata URIとしてレコードに埋め込む。外部ストレージは使わない。
type InlineStore struct{}

// NewInlineStore は新しいInlineStoreを生成する。
func NewInlineStore() *InlineStore {
	return &InlineStore{}
}

// Upload はdataをdata URIに変換して返す。
func (s *InlineStore) Upload(ctx context.Context, name string, data []byte, contentType string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	return dataurl.New(data, contentType).String(), nil
}

// Delete は何もしない。
func (s *InlineStore) Delete(ctx context.Context, name string) error {
	return nil
}

// GCSStore はCloud Storageにドキュメントを保存する。
type GCSStore struct {
	client  *storage.Client
	bucket  string
	baseURL string
}

// NewGCSStore はCloud Storageクライアントを生成する。認証はADCを使う。
func NewGCSStore(ctx context.Context, bucket, baseURL string) (*GCSStore, error) {
	if bucket == "" {
		return nil, fmt.Errorf("GCS_BUCKET environment variable is required")
	}

	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("creating storage client: %w", err)
	}

	return &GCSStore{
		client:  client,
		bucket:  bucket,
		baseURL: strings.TrimSuffix(baseURL, "/"),
	}, nil
}

// Upload はオブジェクトを書き込み、公開URLを返す。
// Writer.Closeが成功した時点でオブジェクトは永続化されている。
func (s *GCSStore) Upload(ctx context.Context, name string, data []byte, contentType string) (string, error) {
	w := s.client.Bucket(s.bucket).Object(name).NewWriter(ctx)
	w.ContentType = contentType
	w.CacheControl = "public, max-age=31536000, immutable"

	if _, err := w.Write(data); err != nil {
		_ = w.Close()
		return "", fmt.Errorf("writing object %s: %w", name, err)
	}
	if err := w.Close(); err != nil {
		return "", fmt.Errorf("committing object %s: %w", name, err)
	}

	return s.baseURL + "/" + s.bucket + "/" + name, nil
}

// Delete はオブジェクトを削除する。存在しない場合は成功とみなす。
func (s *GCSStore) Delete(ctx context.Context, name string) error {
	err := s.client.Bucket(s.bucket).Object(name).Delete(ctx)
	if err != nil && !errors.Is(err, storage.ErrObjectNotExist) {
		return fmt.Errorf("deleting object %s: %w", name, err)
	}
	return nil
}

// Close はCloud Storageクライアントを閉じる。
func (s *GCSStore) Close() error {
	return s.client.Close()
}
