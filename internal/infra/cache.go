package infra

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"certificate-service/internal/domain"
)

const cacheKeyPrefix = "certificate:"

// NewRedisClient はREDIS_URLからクライアントを生成し疎通を確認する。
// URLが空の場合はnilを返す（キャッシュ無効）。
func NewRedisClient(ctx context.Context, url string) (*redis.Client, error) {
	if url == "" {
		return nil, nil
	}

	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis URL: %w", err)
	}

	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}
	return client, nil
}

// cachedCertificate はキャッシュに保存する形式。
type cachedCertificate struct {
	Identifier  string    `json:"identifier"`
	StudentID   string    `json:"student_id"`
	StudentName string    `json:"student_name"`
	Course      string    `json:"course"`
	University  string    `json:"university"`
	IssuedAt    time.Time `json:"issued_at"`
	DocumentRef string    `json:"document_ref"`
}

// CertificateCache は検証用の証明書レコードをRedisにキャッシュする。
// レコードは発行後に変更されないため、無効化は不要でTTLのみで管理する。
type CertificateCache struct {
	client redis.Cmdable
	ttl    time.Duration
}

// NewCertificateCache は新しいCertificateCacheを生成する。
func NewCertificateCache(client redis.Cmdable, ttl time.Duration) *CertificateCache {
	return &CertificateCache{client: client, ttl: ttl}
}

// Get はキャッシュから証明書を取得する。存在しない場合はnilを返す。
func (c *CertificateCache) Get(ctx context.Context, identifier string) (*domain.Certificate, error) {
	raw, err := c.client.Get(ctx, cacheKeyPrefix+identifier).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading cache: %w", err)
	}

	var entry cachedCertificate
	if err := json.Unmarshal(raw, &entry); err != nil {
		return nil, fmt.Errorf("decoding cache entry: %w", err)
	}
	return &domain.Certificate{
		Identifier:  entry.Identifier,
		StudentID:   entry.StudentID,
		StudentName: entry.StudentName,
		Course:      entry.Course,
		University:  entry.University,
		IssuedAt:    entry.IssuedAt,
		DocumentRef: entry.DocumentRef,
	}, nil
}

// Set は証明書をキャッシュに保存する。
func (c *CertificateCache) Set(ctx context.Context, cert *domain.Certificate) error {
	raw, err := json.Marshal(cachedCertificate{
		Identifier:  cert.Identifier,
		StudentID:   cert.StudentID,
		StudentName: cert.StudentName,
		Course:      cert.Course,
		University:  cert.University,
		IssuedAt:    cert.IssuedAt,
		DocumentRef: cert.DocumentRef,
	})
	if err != nil {
		return fmt.Errorf("encoding cache entry: %w", err)
	}
	if err := c.client.Set(ctx, cacheKeyPrefix+cert.Identifier, raw, c.ttl).Err(); err != nil {
		return fmt.Errorf("writing cache: %w", err)
	}
	return nil
}
