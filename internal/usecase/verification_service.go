package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/vincent-petithory/dataurl"

	"certificate-service/internal/domain"
	"certificate-service/internal/identifier"
	"certificate-service/internal/payload"
)

const maxIdentifierLen = 64

// CertificateCache は検証用レコードキャッシュのインターフェース。
type CertificateCache interface {
	Get(ctx context.Context, identifier string) (*domain.Certificate, error)
	Set(ctx context.Context, cert *domain.Certificate) error
}

// Document は証明書PDFの取得結果。URLが空でなければDataは空。
type Document struct {
	ContentType string
	Data        []byte
	URL         string
}

// PayloadReport はスキャンされたペイロードと保存済みレコードの照合結果。
type PayloadReport struct {
	Certificate *domain.Certificate
	// Mismatches はペイロードとレコードで値が異なる項目のラベル。空なら一致。
	Mismatches []string
}

// VerificationService は証明書検証のビジネスロジックを提供する。
// 参照のみで副作用はなく、同じIDに対して常に同じ結果を返す。
type VerificationService struct {
	repo    CertificateRepository
	cache   CertificateCache
	metrics MetricsRecorder
}

// NewVerificationService は新しいVerificationServiceを生成する。cacheとmetricsはnil可。
func NewVerificationService(repo CertificateRepository, cache CertificateCache, metrics MetricsRecorder) *VerificationService {
	if metrics == nil {
		metrics = noopMetrics{}
	}
	return &VerificationService{
		repo:    repo,
		cache:   cache,
		metrics: metrics,
	}
}

// NormalizeIdentifier は入力された証明書IDを正規化する。
func NormalizeIdentifier(id string) (string, error) {
	id = strings.ToUpper(strings.TrimSpace(id))
	if id == "" || len(id) > maxIdentifierLen {
		return "", domain.ErrInvalidIdentifier
	}
	return id, nil
}

// Verify は証明書IDでレコードを検索する。照合にはIDのみを使い、表示項目はすべて保存済みレコードから返す。
func (s *VerificationService) Verify(ctx context.Context, id string) (*domain.Certificate, error) {
	ctx, span := tracer.Start(ctx, "VerificationService.Verify")
	defer span.End()

	cert, err := s.verify(ctx, id)
	s.metrics.VerificationCompleted(verifyResultLabel(cert, err))
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	return cert, nil
}

func (s *VerificationService) verify(ctx context.Context, id string) (*domain.Certificate, error) {
	id, err := NormalizeIdentifier(id)
	if err != nil {
		return nil, err
	}
	// 生成しえない形式のIDはストアに問い合わせない
	if !identifier.Valid(id) {
		return nil, domain.ErrCertificateNotFound
	}

	if s.cache != nil {
		cert, err := s.cache.Get(ctx, id)
		if err != nil {
			slog.WarnContext(ctx, "certificate cache unavailable",
				"operation", "verify",
				"identifier", id,
				"error", err,
			)
		} else if cert != nil {
			return cert, nil
		}
	}

	cert, err := s.repo.FindByIdentifier(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("%w: finding certificate: %w", domain.ErrStore, err)
	}
	if cert == nil {
		return nil, domain.ErrCertificateNotFound
	}

	if s.cache != nil {
		if err := s.cache.Set(ctx, cert); err != nil {
			slog.WarnContext(ctx, "failed to cache certificate",
				"operation", "verify",
				"identifier", id,
				"error", err,
			)
		}
	}
	return cert, nil
}

// Payload は保存済みレコードから正規のQRペイロードを返す。
func (s *VerificationService) Payload(ctx context.Context, id string) (string, error) {
	cert, err := s.Verify(ctx, id)
	if err != nil {
		return "", err
	}
	return payload.Encode(cert), nil
}

// VerifyPayload はスキャンされたペイロードのIDでレコードを検索し、他の項目を照合する。
func (s *VerificationService) VerifyPayload(ctx context.Context, scanned string) (*PayloadReport, error) {
	fields, err := payload.Decode(scanned)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrValidation, err)
	}

	cert, err := s.Verify(ctx, fields.Identifier)
	if err != nil {
		return nil, err
	}
	return &PayloadReport{
		Certificate: cert,
		Mismatches:  fields.Mismatches(cert),
	}, nil
}

// Document は証明書PDFを返す。埋め込み形式ならデータを、URL形式ならURLを返す。
func (s *VerificationService) Document(ctx context.Context, id string) (*Document, error) {
	cert, err := s.Verify(ctx, id)
	if err != nil {
		return nil, err
	}

	if !strings.HasPrefix(cert.DocumentRef, "data:") {
		return &Document{ContentType: documentContentType, URL: cert.DocumentRef}, nil
	}
	decoded, err := dataurl.DecodeString(cert.DocumentRef)
	if err != nil {
		return nil, fmt.Errorf("%w: decoding embedded document: %w", domain.ErrStore, err)
	}
	return &Document{
		ContentType: decoded.MediaType.ContentType(),
		Data:        decoded.Data,
	}, nil
}

func verifyResultLabel(cert *domain.Certificate, err error) string {
	switch {
	case err == nil && cert != nil:
		return ResultSuccess
	case errors.Is(err, domain.ErrInvalidIdentifier):
		return ResultInvalid
	case errors.Is(err, domain.ErrCertificateNotFound):
		return ResultNotFound
	default:
		return ResultStoreError
	}
}
