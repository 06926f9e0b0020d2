package identifier

import (
	"strings"
	"testing"
	"time"
)

func TestGenerator_Generate_Distinct(t *testing.T) {
	g := NewGenerator(nil)

	seen := make(map[string]struct{}, 10000)
	for i := 0; i < 10000; i++ {
		id := g.Generate("Algorithms")
		if id == "" {
			t.Fatal("expected non-empty identifier")
		}
		if _, dup := seen[id]; dup {
			t.Fatalf("duplicate identifier at call %d: %s", i, id)
		}
		seen[id] = struct{}{}
	}
}

func TestGenerator_Generate_FrozenClock(t *testing.T) {
	// 時計が進まなくてもIDは重複しない
	fixed := time.Date(2026, 10, 17, 12, 0, 0, 0, time.UTC)
	g := NewGenerator(func() time.Time { return fixed })

	first := g.Generate("Algorithms")
	second := g.Generate("Algorithms")
	if first == second {
		t.Errorf("expected distinct identifiers, got %s twice", first)
	}
}

func TestGenerator_Generate_Fragment(t *testing.T) {
	fixed := time.Date(2026, 10, 17, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name       string
		course     string
		wantSuffix string
	}{
		{"ascii course", "Algorithms", "-ALGO"},
		{"short course", "AI", "-AI"},
		{"punctuation skipped", "C++ / Go 101", "-CGO1"},
		{"empty course", "", ""},
		{"non-ascii only", "数学", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := NewGenerator(func() time.Time { return fixed })
			id := g.Generate(tt.course)

			if tt.wantSuffix == "" {
				if strings.Contains(id, "-") {
					t.Errorf("expected no fragment, got %s", id)
				}
			} else if !strings.HasSuffix(id, tt.wantSuffix) {
				t.Errorf("expected suffix %s, got %s", tt.wantSuffix, id)
			}
			if !Valid(id) {
				t.Errorf("generated identifier %s does not pass Valid", id)
			}
		})
	}
}

func TestValid(t *testing.T) {
	tests := []struct {
		in   string
		want bool
	}{
		{"MGQ7Z1K2A3B4-ALGO", true},
		{"MGQ7Z1K2A3B4", true},
		{"", false},
		{"abc", false},
		{"MGQ7Z1K2A3B4-TOOLONG", false},
		{"MGQ7Z1K2'; DROP", false},
	}

	for _, tt := range tests {
		if got := Valid(tt.in); got != tt.want {
			t.Errorf("Valid(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}
