package domain

import "time"

// MigrationStatus は証明書スキーマの変更ファイルが適用済みかどうか。
type MigrationStatus string

// スキーマ変更の状態。
const (
	MigrationStatusPending MigrationStatus = "pending"
	MigrationStatusApplied MigrationStatus = "applied"
)

// Migration はmigrations/配下の連番SQLファイル1つ分のスキーマ変更。
// 適用済みのものはschema_migrationsに記録され、AppliedAtを持つ。
type Migration struct {
	Version   string // ファイル名先頭の連番。この順に適用する
	Name      string
	FilePath  string
	Status    MigrationStatus
	AppliedAt *time.Time
}

// MarkApplied は適用日時を記録して適用済みにする。
func (m *Migration) MarkApplied(at time.Time) {
	at = at.UTC()
	m.Status = MigrationStatusApplied
	m.AppliedAt = &at
}

// Applied は適用済みかを返す。
func (m *Migration) Applied() bool {
	return m.Status == MigrationStatusApplied
}

// AppliedAtText は適用日時をlayoutで整形する。未適用なら"-"。
func (m *Migration) AppliedAtText(layout string) string {
	if m.AppliedAt == nil {
		return "-"
	}
	return m.AppliedAt.UTC().Format(layout)
}
