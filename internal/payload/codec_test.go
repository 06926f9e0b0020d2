package payload

import (
	"errors"
	"testing"

	"certificate-service/internal/domain"
)

func testCertificate() *domain.Certificate {
	return &domain.Certificate{
		Identifier:  "MGQ7Z1K2A3B4-ALGO",
		StudentID:   "S1",
		StudentName: "Ada Lovelace",
		Course:      "Algorithms",
		University:  "Tech U",
	}
}

func TestEncode_WireFormat(t *testing.T) {
	got := Encode(testCertificate())
	want := "Certificate ID: MGQ7Z1K2A3B4-ALGO\n" +
		"Student ID: S1\n" +
		"Student Name: Ada Lovelace\n" +
		"Course: Algorithms\n" +
		"University: Tech U"

	if got != want {
		t.Errorf("unexpected payload:\n got: %q\nwant: %q", got, want)
	}
}

func TestEncodeDecode(t *testing.T) {
	c := testCertificate()
	c.University = "Universidad: Técnica"

	f, err := Decode(Encode(c))
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if diff := f.Mismatches(c); len(diff) != 0 {
		t.Errorf("expected no mismatches, got %v", diff)
	}
}

func TestDecode_Lenient(t *testing.T) {
	// 行順の入れ替え、CRLF、未知のラベルは許容する
	in := "University: Tech U\r\n" +
		"Certificate ID: MGQ7Z1K2A3B4-ALGO\r\n" +
		"Issued: 17 October 2026\r\n" +
		"Course: Algorithms\r\n" +
		"Student Name: Ada Lovelace\r\n" +
		"Student ID: S1\r\n"

	f, err := Decode(in)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if f.Identifier != "MGQ7Z1K2A3B4-ALGO" {
		t.Errorf("expected identifier MGQ7Z1K2A3B4-ALGO, got %s", f.Identifier)
	}
	if f.University != "Tech U" {
		t.Errorf("expected university Tech U, got %q", f.University)
	}
}

func TestDecode_Malformed(t *testing.T) {
	tests := []struct {
		name string
		in   string
	}{
		{"empty", ""},
		{"json", `{"certificateId":"X"}`},
		{"missing university", "Certificate ID: X\nStudent ID: S1\nStudent Name: A\nCourse: C"},
		{"duplicate label", "Certificate ID: X\nCertificate ID: Y\nStudent ID: S1\nStudent Name: A\nCourse: C\nUniversity: U"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Decode(tt.in)
			if !errors.Is(err, ErrMalformedPayload) {
				t.Errorf("want ErrMalformedPayload, got %v", err)
			}
		})
	}
}

func TestFields_Mismatches(t *testing.T) {
	c := testCertificate()
	f := FromCertificate(c)
	f.StudentName = "Forged Name"
	f.Course = "Forged Course"

	diff := f.Mismatches(c)
	if len(diff) != 2 || diff[0] != LabelStudentName || diff[1] != LabelCourse {
		t.Errorf("unexpected mismatches: %v", diff)
	}
}
