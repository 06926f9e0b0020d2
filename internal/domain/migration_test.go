package domain

import (
	"testing"
	"time"
)

func TestMigration_MarkApplied(t *testing.T) {
	m := &Migration{Version: "001", Name: "create_certificates", Status: MigrationStatusPending}
	if m.Applied() {
		t.Fatal("new migration must be pending")
	}
	if got := m.AppliedAtText(time.DateTime); got != "-" {
		t.Errorf("want -, got %s", got)
	}

	jst := time.FixedZone("JST", 9*60*60)
	m.MarkApplied(time.Date(2026, 10, 18, 9, 0, 0, 0, jst))

	if !m.Applied() {
		t.Error("want applied")
	}
	if got := m.AppliedAtText(time.DateTime); got != "2026-10-18 00:00:00" {
		t.Errorf("want UTC time, got %s", got)
	}
}
