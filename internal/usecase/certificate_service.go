// Package usecase はアプリケーションのユースケースを実装する。
package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"certificate-service/internal/domain"
)

const (
	documentContentType  = "application/pdf"
	defaultUploadTimeout = 30 * time.Second
	discardTimeout       = 10 * time.Second

	maxStudentIDLen = 128
	maxTextLen      = 255
)

// 発行・検証結果のメトリクスラベル。
const (
	ResultSuccess     = "success"
	ResultInvalid     = "invalid"
	ResultDuplicate   = "duplicate"
	ResultNotFound    = "not_found"
	ResultRenderError = "render_error"
	ResultUploadError = "upload_error"
	ResultStoreError  = "store_error"
)

var tracer = otel.Tracer("certificate-service/internal/usecase")

// CertificateRepository は証明書レコードのデータアクセスのインターフェース。
type CertificateRepository interface {
	Insert(ctx context.Context, cert *domain.Certificate) error
	FindByIdentifier(ctx context.Context, identifier string) (*domain.Certificate, error)
	FindByStudentAndCourse(ctx context.Context, studentID, course string) (*domain.Certificate, error)
	List(ctx context.Context, filter domain.ListFilter) ([]*domain.Certificate, error)
}

// IdentifierGenerator は証明書ID生成のインターフェース。
type IdentifierGenerator interface {
	Generate(course string) string
}

// DocumentRenderer は証明書PDF生成のインターフェース。
// Validateは印字できない文字をdomain.ErrValidationとして報告する。
type DocumentRenderer interface {
	Validate(cert *domain.Certificate) error
	Render(cert *domain.Certificate, issuedAt time.Time) (*domain.RenderedDocument, error)
}

// BlobStore はドキュメント保存先のインターフェース。
type BlobStore interface {
	Upload(ctx context.Context, name string, data []byte, contentType string) (string, error)
	Delete(ctx context.Context, name string) error
}

// MetricsRecorder は発行・検証結果の記録先のインターフェース。
type MetricsRecorder interface {
	IssuanceCompleted(result string)
	VerificationCompleted(result string)
	ObserveRender(d time.Duration)
}

type noopMetrics struct{}

func (noopMetrics) IssuanceCompleted(string)     {}
func (noopMetrics) VerificationCompleted(string) {}
func (noopMetrics) ObserveRender(time.Duration)  {}

// CertificateService は証明書発行のビジネスロジックを提供する。
type CertificateService struct {
	repo          CertificateRepository
	ids           IdentifierGenerator
	renderer      DocumentRenderer
	blobs         BlobStore
	metrics       MetricsRecorder
	now           func() time.Time
	uploadTimeout time.Duration
}

// Option はCertificateServiceの設定を変更する。
type Option func(*CertificateService)

// WithClock は発行日時の取得元を差し替える。
func WithClock(now func() time.Time) Option {
	return func(s *CertificateService) { s.now = now }
}

// WithUploadTimeout はドキュメントアップロードのタイムアウトを設定する。
func WithUploadTimeout(d time.Duration) Option {
	return func(s *CertificateService) {
		if d > 0 {
			s.uploadTimeout = d
		}
	}
}

// WithMetrics はメトリクスの記録先を設定する。
func WithMetrics(m MetricsRecorder) Option {
	return func(s *CertificateService) {
		if m != nil {
			s.metrics = m
		}
	}
}

// NewCertificateService は新しいCertificateServiceを生成する。
func NewCertificateService(repo CertificateRepository, ids IdentifierGenerator, renderer DocumentRenderer, blobs BlobStore, opts ...Option) *CertificateService {
	s := &CertificateService{
		repo:          repo,
		ids:           ids,
		renderer:      renderer,
		blobs:         blobs,
		metrics:       noopMetrics{},
		now:           time.Now,
		uploadTimeout: defaultUploadTimeout,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Exists は学生・コースの組に証明書が発行済みかを確認する。
// 確認に失敗した場合はfalseではなくdomain.ErrStoreを返す。
func (s *CertificateService) Exists(ctx context.Context, studentID, course string) (bool, error) {
	cert, err := s.repo.FindByStudentAndCourse(ctx, studentID, course)
	if err != nil {
		return false, fmt.Errorf("%w: checking existing certificate: %w", domain.ErrStore, err)
	}
	return cert != nil, nil
}

// Issue は証明書を発行する。
// PDFの保存が確定してからレコードを登録するため、失敗時に部分的なレコードは残らない。
func (s *CertificateService) Issue(ctx context.Context, req domain.IssueRequest) (*domain.IssueResult, error) {
	ctx, span := tracer.Start(ctx, "CertificateService.Issue")
	defer span.End()

	result, err := s.issue(ctx, req)
	s.metrics.IssuanceCompleted(issueResultLabel(err))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	span.SetAttributes(attribute.String("certificate.identifier", result.Identifier))
	return result, nil
}

func (s *CertificateService) issue(ctx context.Context, req domain.IssueRequest) (*domain.IssueResult, error) {
	req, err := normalizeIssueRequest(req)
	if err != nil {
		return nil, err
	}
	cert := &domain.Certificate{
		StudentID:   req.StudentID,
		StudentName: req.StudentName,
		Course:      req.Course,
		University:  req.University,
	}
	if err := s.renderer.Validate(cert); err != nil {
		return nil, err
	}

	// 事前チェック（一意性の保証はDBの一意制約が担う）
	exists, err := s.Exists(ctx, req.StudentID, req.Course)
	if err != nil {
		return nil, err
	}
	if exists {
		return nil, domain.ErrCertificateAlreadyIssued
	}

	issuedAt := s.now().UTC().Truncate(time.Second)
	cert.Identifier = s.ids.Generate(req.Course)
	cert.IssuedAt = issuedAt

	// PDF生成
	start := time.Now()
	doc, err := s.renderer.Render(cert, issuedAt)
	s.metrics.ObserveRender(time.Since(start))
	if err != nil {
		if !errors.Is(err, domain.ErrRender) && !errors.Is(err, domain.ErrValidation) {
			err = fmt.Errorf("%w: %w", domain.ErrRender, err)
		}
		return nil, err
	}

	// PDF保存
	name := DocumentObjectName(cert.Identifier)
	uploadCtx, cancel := context.WithTimeout(ctx, s.uploadTimeout)
	ref, err := s.blobs.Upload(uploadCtx, name, doc.PDF, documentContentType)
	cancel()
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", domain.ErrUpload, name, err)
	}
	cert.DocumentRef = ref

	// レコード登録
	if err := s.repo.Insert(ctx, cert); err != nil {
		s.discardDocument(ctx, name)
		if errors.Is(err, domain.ErrCertificateAlreadyIssued) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: inserting certificate: %w", domain.ErrStore, err)
	}

	slog.InfoContext(ctx, "certificate issued",
		"identifier", cert.Identifier,
		"student_id", cert.StudentID,
		"course", cert.Course,
	)
	return &domain.IssueResult{
		Identifier:  cert.Identifier,
		DocumentRef: cert.DocumentRef,
		IssuedAt:    cert.IssuedAt,
	}, nil
}

// discardDocument は登録に失敗した証明書のPDFを削除する。失敗してもログのみ。
func (s *CertificateService) discardDocument(ctx context.Context, name string) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), discardTimeout)
	defer cancel()
	if err := s.blobs.Delete(ctx, name); err != nil {
		slog.WarnContext(ctx, "failed to discard orphaned document",
			"operation", "discard_document",
			"object", name,
			"error", err,
		)
	}
}

// List は証明書一覧を発行日時の新しい順に返す。
func (s *CertificateService) List(ctx context.Context, filter domain.ListFilter) ([]*domain.Certificate, error) {
	certs, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("%w: listing certificates: %w", domain.ErrStore, err)
	}
	return certs, nil
}

// DocumentObjectName は証明書IDに対応するPDFのオブジェクト名を返す。
func DocumentObjectName(identifier string) string {
	return "certificates/" + identifier + ".pdf"
}

// normalizeIssueRequest は前後の空白を除き、必須・長さ・制御文字をチェックする。
func normalizeIssueRequest(req domain.IssueRequest) (domain.IssueRequest, error) {
	req.StudentID = strings.TrimSpace(req.StudentID)
	req.StudentName = strings.TrimSpace(req.StudentName)
	req.Course = strings.TrimSpace(req.Course)
	req.University = strings.TrimSpace(req.University)

	fields := []struct {
		name   string
		value  string
		maxLen int
	}{
		{"student_id", req.StudentID, maxStudentIDLen},
		{"student_name", req.StudentName, maxTextLen},
		{"course", req.Course, maxTextLen},
		{"university", req.University, maxTextLen},
	}
	for _, f := range fields {
		if f.value == "" {
			return req, fmt.Errorf("%w: %s is required", domain.ErrValidation, f.name)
		}
		if !utf8.ValidString(f.value) {
			return req, fmt.Errorf("%w: %s is not valid UTF-8", domain.ErrValidation, f.name)
		}
		if utf8.RuneCountInString(f.value) > f.maxLen {
			return req, fmt.Errorf("%w: %s must be at most %d characters", domain.ErrValidation, f.name, f.maxLen)
		}
		// 改行はQRペイロードの区切りと衝突する
		if strings.IndexFunc(f.value, unicode.IsControl) >= 0 {
			return req, fmt.Errorf("%w: %s must not contain control characters", domain.ErrValidation, f.name)
		}
	}
	return req, nil
}

func issueResultLabel(err error) string {
	switch {
	case err == nil:
		return ResultSuccess
	case errors.Is(err, domain.ErrValidation):
		return ResultInvalid
	case errors.Is(err, domain.ErrCertificateAlreadyIssued):
		return ResultDuplicate
	case errors.Is(err, domain.ErrRender):
		return ResultRenderError
	case errors.Is(err, domain.ErrUpload):
		return ResultUploadError
	default:
		return ResultStoreError
	}
}
