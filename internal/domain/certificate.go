// Package domain はドメインモデルとビジネスルールを定義する。
package domain

import "time"

// Certificate は発行済み修了証明書のエンティティを表す。
// 発行後に更新・削除されることはない。
type Certificate struct {
	ID          string
	Identifier  string
	StudentID   string
	StudentName string
	Course      string
	University  string
	IssuedAt    time.Time
	DocumentRef string // 公開URLまたはdata URI
}

// IssueRequest は証明書発行の入力を表す。
type IssueRequest struct {
	StudentID   string
	StudentName string
	Course      string
	University  string
}

// IssueResult は証明書発行の結果を表す。
type IssueResult struct {
	Identifier  string
	DocumentRef string
	IssuedAt    time.Time
}

// RenderedDocument はレンダリング済みの証明書PDFを表す。
type RenderedDocument struct {
	PDF     []byte
	Payload string // QRコードに埋め込んだ文字列
	QRCode  []byte // PNG
}

// ListFilter は証明書一覧の絞り込み条件を表す。
type ListFilter struct {
	// Search は学生名・証明書ID・コース名に対する部分一致（大文字小文字を区別しない）。
	Search string
}
