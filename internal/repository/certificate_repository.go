// Package repository はデータアクセス層の実装を提供する。
package repository

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"
	"unicode"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"certificate-service/internal/domain"
)

// CertificateModel はgorm用のモデル定義。
// (student_id, course) と identifier の一意性はDBの一意制約で保証する。
type CertificateModel struct {
	ID          string    `gorm:"type:char(36);primaryKey"`
	Identifier  string    `gorm:"type:varchar(32);not null;uniqueIndex:uk_identifier"`
	StudentID   string    `gorm:"type:varchar(128);not null;uniqueIndex:uk_student_course,priority:1"`
	StudentName string    `gorm:"type:varchar(255);not null"`
	Course      string    `gorm:"type:varchar(255);not null;uniqueIndex:uk_student_course,priority:2"`
	University  string    `gorm:"type:varchar(255);not null"`
	DocumentRef string    `gorm:"type:text;not null"`
	SearchKey   string    `gorm:"type:varchar(600);not null;default:''"`
	IssuedAt    time.Time `gorm:"not null;index:idx_issued_at"`
	CreatedAt   time.Time `gorm:"not null;autoCreateTime"`
}

// TableName はテーブル名を返す。
func (CertificateModel) TableName() string {
	return "certificates"
}

// BeforeCreate はレコード作成前にUUIDを生成する。
func (m *CertificateModel) BeforeCreate(tx *gorm.DB) error {
	if m.ID == "" {
		m.ID = uuid.New().String()
	}
	return nil
}

// toDomain はモデルをドメインエンティティに変換する。
func (m *CertificateModel) toDomain() *domain.Certificate {
	return &domain.Certificate{
		ID:          m.ID,
		Identifier:  m.Identifier,
		StudentID:   m.StudentID,
		StudentName: m.StudentName,
		Course:      m.Course,
		University:  m.University,
		IssuedAt:    m.IssuedAt.UTC(),
		DocumentRef: m.DocumentRef,
	}
}

// CertificateRepository は証明書レコードの永続化を提供する。
type CertificateRepository struct {
	db *gorm.DB
}

// NewCertificateRepository は新しいCertificateRepositoryを生成する。
func NewCertificateRepository(db *gorm.DB) *CertificateRepository {
	return &CertificateRepository{db: db}
}

// Insert は証明書レコードを1行で保存する。
// 同じ学生・コースのレコードが既にある場合はdomain.ErrCertificateAlreadyIssuedを返す。
func (r *CertificateRepository) Insert(ctx context.Context, cert *domain.Certificate) error {
	model := &CertificateModel{
		ID:          cert.ID,
		Identifier:  cert.Identifier,
		StudentID:   cert.StudentID,
		StudentName: cert.StudentName,
		Course:      cert.Course,
		University:  cert.University,
		DocumentRef: cert.DocumentRef,
		SearchKey:   searchKey(cert),
		IssuedAt:    cert.IssuedAt,
	}
	if err := r.db.WithContext(ctx).Create(model).Error; err != nil {
		existing, findErr := r.FindByStudentAndCourse(ctx, cert.StudentID, cert.Course)
		// コミット後にエラーが返った場合、見つかるのは自分自身の行
		if findErr == nil && existing != nil && existing.Identifier == cert.Identifier {
			slog.WarnContext(ctx, "insert reported an error but the certificate was stored",
				"operation", "insert",
				"identifier", cert.Identifier,
				"error", err,
			)
			cert.ID = existing.ID
			return nil
		}
		// 一意制約違反のうち、学生・コースの重複だけを業務エラーとして扱う
		if findErr == nil && existing != nil {
			slog.InfoContext(ctx, "certificate already issued",
				"operation", "insert",
				"student_id", cert.StudentID,
				"course", cert.Course,
				"existing_identifier", existing.Identifier,
			)
			return domain.ErrCertificateAlreadyIssued
		}
		slog.ErrorContext(ctx, "failed to insert certificate",
			"operation", "insert",
			"identifier", cert.Identifier,
			"duplicated_key", errors.Is(err, gorm.ErrDuplicatedKey),
			"error", err,
		)
		return err
	}
	cert.ID = model.ID
	return nil
}

// FindByIdentifier は証明書IDでレコードを取得する。存在しない場合はnilを返す。
func (r *CertificateRepository) FindByIdentifier(ctx context.Context, identifier string) (*domain.Certificate, error) {
	var model CertificateModel
	err := r.db.WithContext(ctx).
		Where("identifier = ?", identifier).
		First(&model).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		slog.ErrorContext(ctx, "failed to find certificate",
			"operation", "find_by_identifier",
			"identifier", identifier,
			"error", err,
		)
		return nil, err
	}
	return model.toDomain(), nil
}

// FindByStudentAndCourse は学生ID・コースでレコードを取得する。存在しない場合はnilを返す。
func (r *CertificateRepository) FindByStudentAndCourse(ctx context.Context, studentID, course string) (*domain.Certificate, error) {
	var model CertificateModel
	err := r.db.WithContext(ctx).
		Where("student_id = ? AND course = ?", studentID, course).
		First(&model).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		slog.ErrorContext(ctx, "failed to find certificate by student and course",
			"operation", "find_by_student_and_course",
			"student_id", studentID,
			"course", course,
			"error", err,
		)
		return nil, err
	}
	return model.toDomain(), nil
}

// List は証明書を発行日時の新しい順に取得する。
// filter.Searchが空でなければ学生名・証明書ID・コース名の部分一致で絞り込む。
func (r *CertificateRepository) List(ctx context.Context, filter domain.ListFilter) ([]*domain.Certificate, error) {
	query := r.db.WithContext(ctx)
	if q := searchNeedle(filter.Search); q != "" {
		query = query.Where("search_key LIKE ? ESCAPE '!'", "%"+likeEscaper.Replace(q)+"%")
	}

	var models []CertificateModel
	err := query.
		Order("issued_at DESC").
		Order("identifier DESC").
		Find(&models).Error
	if err != nil {
		slog.ErrorContext(ctx, "failed to list certificates",
			"operation", "list",
			"search", filter.Search,
			"error", err,
		)
		return nil, err
	}

	certs := make([]*domain.Certificate, len(models))
	for i := range models {
		certs[i] = models[i].toDomain()
	}
	return certs, nil
}

// likeEscaper はLIKEのワイルドカードをリテラルとして扱うためのエスケープ。
var likeEscaper = strings.NewReplacer("!", "!!", "%", "!%", "_", "!_")

// searchKeySeparator は検索キーの項目区切り。項目は制御文字を含まないため、検索語が項目をまたぐことはない。
const searchKeySeparator = "\n"

// searchKey は氏名・証明書ID・コース名を小文字化して連結する。
// DBのLOWERはASCIIしか畳まないものがあるため、アプリ側で畳んだ値を保存する。
func searchKey(cert *domain.Certificate) string {
	return strings.ToLower(strings.Join([]string{cert.StudentName, cert.Identifier, cert.Course}, searchKeySeparator))
}

// searchNeedle は検索語を検索キーと同じ規則で正規化する。
func searchNeedle(q string) string {
	q = strings.Map(func(r rune) rune {
		if unicode.IsControl(r) {
			return -1
		}
		return r
	}, q)
	return strings.ToLower(strings.TrimSpace(q))
}
