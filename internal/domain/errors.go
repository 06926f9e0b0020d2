package domain

import "errors"

var (
	// ErrValidation は必須項目の欠落や形式不正の場合のエラー。
	ErrValidation = errors.New("validation failed")

	// ErrInvalidIdentifier は証明書IDの形式が不正な場合のエラー。
	ErrInvalidIdentifier = errors.New("invalid certificate identifier")

	// ErrCertificateAlreadyIssued は同じ学生・コースに既に証明書が発行されている場合のエラー。
	ErrCertificateAlreadyIssued = errors.New("certificate already issued for this student and course")

	// ErrCertificateNotFound は指定された証明書が存在しない場合のエラー。
	ErrCertificateNotFound = errors.New("certificate not found")

	// ErrRender はQRコードまたはPDFの生成に失敗した場合のエラー。
	ErrRender = errors.New("certificate rendering failed")

	// ErrStore はストアへのアクセスに失敗した場合のエラー（リトライ可能）。
	ErrStore = errors.New("certificate store unavailable")

	// ErrUpload はドキュメントのアップロードに失敗した場合のエラー（リトライ可能）。
	ErrUpload = errors.New("document upload failed")

	// ErrMigrationFailed はマイグレーション実行時のエラー。
	ErrMigrationFailed = errors.New("migration failed")

	// ErrMigrationFileNotFound はマイグレーションファイルが見つからない場合のエラー。
	ErrMigrationFileNotFound = errors.New("migration file not found")

	// ErrInvalidMigrationFile はマイグレーションファイルのフォーマットが不正な場合のエラー。
	ErrInvalidMigrationFile = errors.New("invalid migration file")
)

// IsRetryable は発行フローを最初からやり直してよいエラーかどうかを返す。
func IsRetryable(err error) bool {
	return errors.Is(err, ErrStore) || errors.Is(err, ErrUpload) || errors.Is(err, ErrRender)
}
