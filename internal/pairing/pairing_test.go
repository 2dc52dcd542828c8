package pairing

import (
	"bytes"
	"image/png"
	"testing"
)

func TestCodeValidates(t *testing.T) {
	m, err := New("fuguemuxd", "localhost:7777")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	code, err := m.Code()
	if err != nil {
		t.Fatalf("Code: %v", err)
	}
	if !m.Validate(code) {
		t.Fatalf("Validate(%q) = false, want true", code)
	}
}

func TestValidateRejectsGarbage(t *testing.T) {
	m, err := New("fuguemuxd", "localhost:7777")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if m.Validate("000000") {
		t.Fatal("Validate accepted an arbitrary code")
	}
}

func TestRotateInvalidatesOldCode(t *testing.T) {
	m, err := New("fuguemuxd", "localhost:7777")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	oldCode, err := m.Code()
	if err != nil {
		t.Fatalf("Code: %v", err)
	}
	if err := m.Rotate("localhost:7777"); err != nil {
		t.Fatalf("Rotate: %v", err)
	}
	if m.Validate(oldCode) {
		t.Fatal("old code still validated after rotation")
	}
}

func TestQRPNGProducesDecodablePNG(t *testing.T) {
	data, err := QRPNG("otpauth://totp/fuguemuxd?secret=ABC")
	if err != nil {
		t.Fatalf("QRPNG: %v", err)
	}
	img, err := png.Decode(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("decode produced PNG: %v", err)
	}
	b := img.Bounds()
	if b.Dx() != qrFinalSize || b.Dy() != qrFinalSize {
		t.Fatalf("image size = %dx%d, want %dx%d", b.Dx(), b.Dy(), qrFinalSize, qrFinalSize)
	}
}
