package render

import (
	"bytes"
	"encoding/binary"
	"errors"
	"strings"
	"testing"
	"time"
	"unicode/utf16"

	qrcode "github.com/skip2/go-qrcode"

	"certificate-service/internal/domain"
	"certificate-service/internal/payload"
)

func testCertificate() *domain.Certificate {
	return &domain.Certificate{
		Identifier:  "MGQ7Z1K2A3B4-ALGO",
		StudentID:   "S1",
		StudentName: "Ada Lovelace",
		Course:      "Algorithms",
		University:  "Tech U",
		IssuedAt:    time.Date(2026, 10, 17, 9, 30, 0, 0, time.UTC),
	}
}

func TestRenderer_Render_Success(t *testing.T) {
	r := NewRenderer()
	c := testCertificate()

	doc, err := r.Render(c, c.IssuedAt)
	if err != nil {
		t.Fatalf("Render failed: %v", err)
	}

	if !bytes.HasPrefix(doc.PDF, []byte("%PDF-")) {
		t.Error("expected PDF header")
	}
	if !bytes.HasPrefix(doc.QRCode, []byte("\x89PNG")) {
		t.Error("expected PNG QR code")
	}
	if doc.Payload != payload.Encode(c) {
		t.Errorf("payload mismatch: %q", doc.Payload)
	}
}

func TestRenderer_Render_Deterministic(t *testing.T) {
	r := NewRenderer()
	c := testCertificate()

	first, err := r.Render(c, c.IssuedAt)
	if err != nil {
		t.Fatalf("Render failed: %v", err)
	}
	second, err := r.Render(c, c.IssuedAt)
	if err != nil {
		t.Fatalf("Render failed: %v", err)
	}

	if first.Payload != second.Payload {
		t.Errorf("payload differs between renders")
	}
	if !bytes.Equal(first.QRCode, second.QRCode) {
		t.Errorf("QR image differs between renders")
	}
}

func TestRenderer_Render_PayloadMatchesRecord(t *testing.T) {
	r := NewRenderer()
	c := testCertificate()

	doc, err := r.Render(c, c.IssuedAt)
	if err != nil {
		t.Fatalf("Render failed: %v", err)
	}

	f, err := payload.Decode(doc.Payload)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if diff := f.Mismatches(c); len(diff) != 0 {
		t.Errorf("payload drifted from record: %v", diff)
	}
}

// utf16be はUTF-8フォント使用時にページ内容へ書き出される形式に変換する。
func utf16be(s string) []byte {
	var b []byte
	for _, u := range utf16.Encode([]rune(s)) {
		b = binary.BigEndian.AppendUint16(b, u)
	}
	return b
}

func TestRenderer_Render_NonLatinText(t *testing.T) {
	tests := []struct {
		name        string
		studentName string
		university  string
	}{
		{"latin extended", "José Müller-Łukasiewicz", "Université de Montréal"},
		{"cyrillic", "Ада Лавлейс", "Московский университет"},
		{"greek", "Αικατερίνη Παπαδοπούλου", "Πανεπιστήμιο Αθηνών"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := &Renderer{recovery: qrcode.Medium}
			c := testCertificate()
			c.StudentName = tt.studentName
			c.University = tt.university

			doc, err := r.Render(c, c.IssuedAt)
			if err != nil {
				t.Fatalf("Render failed: %v", err)
			}
			// 名前が置換文字にならずそのまま印字されていること
			if !bytes.Contains(doc.PDF, utf16be(tt.studentName)) {
				t.Errorf("student name %q not found in page content", tt.studentName)
			}
			if !bytes.Contains(doc.PDF, utf16be("at "+tt.university)) {
				t.Errorf("university %q not found in page content", tt.university)
			}
		})
	}
}

func TestRenderer_Render_UnsupportedCharacters(t *testing.T) {
	tests := []struct {
		name  string
		apply func(c *domain.Certificate)
	}{
		{"cjk name", func(c *domain.Certificate) { c.StudentName = "山田 太郎" }},
		{"cjk course", func(c *domain.Certificate) { c.Course = "数学" }},
		{"emoji university", func(c *domain.Certificate) { c.University = "Tech U \U0001F393" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := NewRenderer()
			c := testCertificate()
			tt.apply(c)

			if err := r.Validate(c); !errors.Is(err, domain.ErrValidation) {
				t.Errorf("Validate: want ErrValidation, got %v", err)
			}
			doc, err := r.Render(c, c.IssuedAt)
			if !errors.Is(err, domain.ErrValidation) {
				t.Fatalf("Render: want ErrValidation, got %v", err)
			}
			if doc != nil {
				t.Error("expected no document for unprintable text")
			}
		})
	}
}

func TestRenderer_Validate_Printable(t *testing.T) {
	r := NewRenderer()
	c := testCertificate()
	c.StudentName = "Zoë O'Brien-Šimić"
	if err := r.Validate(c); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestRenderer_Render_LongName(t *testing.T) {
	r := NewRenderer()
	c := testCertificate()
	c.StudentName = strings.Repeat("Augusta Ada King ", 10)

	if _, err := r.Render(c, c.IssuedAt); err != nil {
		t.Fatalf("Render failed: %v", err)
	}
}

func TestRenderer_Render_PayloadTooLarge(t *testing.T) {
	r := NewRenderer()
	c := testCertificate()
	c.University = strings.Repeat("X", 4000)

	doc, err := r.Render(c, c.IssuedAt)
	if !errors.Is(err, domain.ErrRender) {
		t.Fatalf("want ErrRender, got %v", err)
	}
	if doc != nil {
		t.Error("expected no document on render failure")
	}
}
