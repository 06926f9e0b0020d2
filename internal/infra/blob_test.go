package infra

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/vincent-petithory/dataurl"
)

func TestInlineStore_Upload(t *testing.T) {
	s := NewInlineStore()
	pdf := []byte("%PDF-1.3 test")

	ref, err := s.Upload(context.Background(), "certificates/X.pdf", pdf, "application/pdf")
	if err != nil {
		t.Fatalf("Upload failed: %v", err)
	}
	if !strings.HasPrefix(ref, "data:application/pdf;base64,") {
		t.Errorf("unexpected ref prefix: %s", ref)
	}

	decoded, err := dataurl.DecodeString(ref)
	if err != nil {
		t.Fatalf("DecodeString failed: %v", err)
	}
	if !bytes.Equal(decoded.Data, pdf) {
		t.Errorf("round trip mismatch: %q", decoded.Data)
	}
}

func TestInlineStore_Upload_Cancelled(t *testing.T) {
	s := NewInlineStore()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := s.Upload(ctx, "certificates/X.pdf", []byte("x"), "application/pdf"); err == nil {
		t.Error("expected error for cancelled context")
	}
}
