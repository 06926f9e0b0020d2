package usecase

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"testing"
	"time"

	"certificate-service/internal/domain"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

// mockMigrationRepository はテスト用のモック。
type mockMigrationRepository struct {
	appliedMigrations map[string]*domain.Migration
	ensureCalls       int
}

func newMockMigrationRepository() *mockMigrationRepository {
	return &mockMigrationRepository{
		appliedMigrations: make(map[string]*domain.Migration),
	}
}

func (m *mockMigrationRepository) EnsureTable(ctx context.Context) error {
	m.ensureCalls++
	return nil
}

func (m *mockMigrationRepository) FindAllApplied(ctx context.Context) ([]*domain.Migration, error) {
	var result []*domain.Migration
	for _, migration := range m.appliedMigrations {
		result = append(result, migration)
	}
	return result, nil
}

func (m *mockMigrationRepository) IsMigrationApplied(ctx context.Context, version string) (bool, error) {
	_, exists := m.appliedMigrations[version]
	return exists, nil
}

// setupTestMigrationsDir はテスト用のmigrationsディレクトリを作成する。
func setupTestMigrationsDir(t *testing.T) string {
	t.Helper()

	migrationsDir := filepath.Join(t.TempDir(), "migrations")
	if err := os.MkdirAll(migrationsDir, 0755); err != nil {
		t.Fatalf("failed to create migrations dir: %v", err)
	}

	// 実際のマイグレーションに加えて、複数文を含むファイルを用意する
	real, err := os.ReadFile(filepath.Join("..", "..", "migrations", "001_create_certificates.sql"))
	if err != nil {
		t.Fatalf("failed to read migration: %v", err)
	}
	files := map[string]string{
		"001_create_certificates.sql": string(real),
		"002_create_notes.sql":        "-- notes\nCREATE TABLE notes (id INT);\nCREATE INDEX idx_notes_id ON notes (id);",
		"003_create_tags.sql":         "CREATE TABLE tags (id INT);",
	}
	for filename, content := range files {
		if err := os.WriteFile(filepath.Join(migrationsDir, filename), []byte(content), 0644); err != nil {
			t.Fatalf("failed to create test migration file: %v", err)
		}
	}

	return migrationsDir
}

// setupMigrationTestDB はテスト用のインメモリSQLiteデータベースを作成する。
func setupMigrationTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("failed to get sql.DB: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)

	if err := db.Exec("CREATE TABLE schema_migrations (version VARCHAR(14) PRIMARY KEY, applied_at DATETIME)").Error; err != nil {
		t.Fatalf("failed to create schema_migrations table: %v", err)
	}

	return db
}

func TestMigrationService_ApplyMigrations(t *testing.T) {
	ctx := context.Background()
	migrationsDir := setupTestMigrationsDir(t)
	db := setupMigrationTestDB(t)
	repo := newMockMigrationRepository()

	service := NewMigrationService(repo, db, migrationsDir)

	count, err := service.ApplyMigrations(ctx)
	if err != nil {
		t.Fatalf("ApplyMigrations failed: %v", err)
	}
	if count != 3 {
		t.Errorf("expected 3 migrations applied, got %d", count)
	}
	if repo.ensureCalls != 1 {
		t.Errorf("expected EnsureTable to be called once, got %d", repo.ensureCalls)
	}

	for _, table := range []string{"certificates", "notes", "tags"} {
		var n int64
		if err := db.Raw("SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name=?", table).Scan(&n).Error; err != nil {
			t.Errorf("failed to check table %s: %v", table, err)
		}
		if n != 1 {
			t.Errorf("table %s was not created", table)
		}
	}

	// 一意制約が効いていることを確認
	insert := "INSERT INTO certificates (id, identifier, student_id, student_name, course, university, document_ref, issued_at) VALUES (?, ?, 'S1', 'Ada', 'Algorithms', 'Tech U', 'ref', CURRENT_TIMESTAMP)"
	if err := db.Exec(insert, "id-1", "ID1").Error; err != nil {
		t.Fatalf("failed to insert certificate: %v", err)
	}
	if err := db.Exec(insert, "id-2", "ID2").Error; err == nil {
		t.Error("expected unique constraint violation for duplicate student/course")
	}

	var recorded int64
	if err := db.Raw("SELECT COUNT(*) FROM schema_migrations").Scan(&recorded).Error; err != nil {
		t.Fatalf("failed to count schema_migrations: %v", err)
	}
	if recorded != 3 {
		t.Errorf("expected 3 recorded migrations, got %d", recorded)
	}
}

func TestMigrationService_ApplyMigrations_AlreadyApplied(t *testing.T) {
	ctx := context.Background()
	migrationsDir := setupTestMigrationsDir(t)
	db := setupMigrationTestDB(t)
	repo := newMockMigrationRepository()

	now := time.Now()
	for _, v := range []string{"001", "002"} {
		repo.appliedMigrations[v] = &domain.Migration{
			Version:   v,
			AppliedAt: &now,
			Status:    domain.MigrationStatusApplied,
		}
	}

	service := NewMigrationService(repo, db, migrationsDir)

	count, err := service.ApplyMigrations(ctx)
	if err != nil {
		t.Fatalf("ApplyMigrations failed: %v", err)
	}
	// 未適用のマイグレーションのみ実行される
	if count != 1 {
		t.Errorf("expected 1 migration applied, got %d", count)
	}
}

func TestMigrationService_ApplyMigrations_Error(t *testing.T) {
	ctx := context.Background()
	migrationsDir := setupTestMigrationsDir(t)
	db := setupMigrationTestDB(t)
	repo := newMockMigrationRepository()

	service := NewMigrationService(repo, db, migrationsDir)

	invalidFile := filepath.Join(migrationsDir, "004_invalid.sql")
	if err := os.WriteFile(invalidFile, []byte("INVALID SQL SYNTAX;"), 0644); err != nil {
		t.Fatalf("failed to create invalid migration file: %v", err)
	}

	count, err := service.ApplyMigrations(ctx)
	if !errors.Is(err, domain.ErrMigrationFailed) {
		t.Errorf("want ErrMigrationFailed, got %v", err)
	}
	if count != 3 {
		t.Errorf("expected 3 migrations applied before failure, got %d", count)
	}
}

func TestMigrationService_MissingDir(t *testing.T) {
	service := NewMigrationService(newMockMigrationRepository(), setupMigrationTestDB(t), filepath.Join(t.TempDir(), "nope"))

	_, err := service.ApplyMigrations(context.Background())
	if !errors.Is(err, domain.ErrMigrationFileNotFound) {
		t.Errorf("want ErrMigrationFileNotFound, got %v", err)
	}
}

func TestMigrationService_GetMigrationStatus(t *testing.T) {
	ctx := context.Background()
	migrationsDir := setupTestMigrationsDir(t)
	db := setupMigrationTestDB(t)
	repo := newMockMigrationRepository()

	now := time.Now()
	repo.appliedMigrations["001"] = &domain.Migration{
		Version:   "001",
		AppliedAt: &now,
		Status:    domain.MigrationStatusApplied,
	}

	service := NewMigrationService(repo, db, migrationsDir)

	migrations, err := service.GetMigrationStatus(ctx)
	if err != nil {
		t.Fatalf("GetMigrationStatus failed: %v", err)
	}
	if len(migrations) != 3 {
		t.Fatalf("expected 3 migrations, got %d", len(migrations))
	}

	expectedStatuses := []domain.MigrationStatus{
		domain.MigrationStatusApplied,
		domain.MigrationStatusPending,
		domain.MigrationStatusPending,
	}
	for i, migration := range migrations {
		if migration.Status != expectedStatuses[i] {
			t.Errorf("migration %s: expected status %s, got %s", migration.Version, expectedStatuses[i], migration.Status)
		}
	}
	if migrations[0].Name != "create_certificates" {
		t.Errorf("expected name create_certificates, got %s", migrations[0].Name)
	}
}

func TestParseMigrationFileName_Invalid(t *testing.T) {
	if _, _, err := parseMigrationFileName("create.sql"); !errors.Is(err, domain.ErrInvalidMigrationFile) {
		t.Errorf("want ErrInvalidMigrationFile, got %v", err)
	}
}

func TestSplitStatements(t *testing.T) {
	got := splitStatements("-- comment\nCREATE TABLE a (id INT);\n\nCREATE INDEX i ON a (id);\n")
	want := []string{"CREATE TABLE a (id INT)", "CREATE INDEX i ON a (id)"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("splitStatements = %q, want %q", got, want)
	}
}
