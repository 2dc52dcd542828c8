// Package pairing implements the connection-admission step a new TUI
// client completes before a TCP or websocket-gateway attach is
// accepted: a short-lived TOTP code, plus a QR rendering of the
// pairing payload for quick mobile/tablet onboarding. Spec's
// Non-goals rule out a real authentication model beyond what a Unix
// socket or SSH tunnel provides; a pairing code doesn't add one — it
// is a connection-admission gate in front of sockets that already
// have no auth of their own, the same role an SSH tunnel or a Unix
// socket's filesystem permissions play for the other transports.
//
// No kojo equivalent exists for this component (kojo accepts any
// websocket connection with no pairing step at all); it is grounded
// purely in giving the teacher's own go.mod dependencies — pquerna/otp,
// makiuchi-d/gozxing, golang.org/x/image — their first call site.
package pairing

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/png"
	"sync"
	"time"

	"github.com/makiuchi-d/gozxing"
	"github.com/makiuchi-d/gozxing/qrcode"
	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"
	xdraw "golang.org/x/image/draw"
)

// qrRequestSize is the width/height handed to gozxing's encoder;
// qrFinalSize is what the PNG is scaled to afterward via
// golang.org/x/image/draw, independent of whatever pixel dimensions
// gozxing's QR version/quiet-zone math actually produced.
const (
	qrRequestSize = 256
	qrFinalSize   = 320
)

// Manager holds the daemon's current pairing secret. A fresh secret
// is generated at daemon startup; there is exactly one live secret at
// a time, matching the User-Priority Lock's "one thing holds priority"
// shape elsewhere in this daemon.
type Manager struct {
	mu     sync.Mutex
	issuer string
	key    *otp.Key
}

// New generates a fresh TOTP secret for issuer/accountName (typically
// the daemon's hostname or listen address).
func New(issuer, accountName string) (*Manager, error) {
	key, err := totp.Generate(totp.GenerateOpts{
		Issuer:      issuer,
		AccountName: accountName,
	})
	if err != nil {
		return nil, fmt.Errorf("generate pairing secret: %w", err)
	}
	return &Manager{issuer: issuer, key: key}, nil
}

// Code returns the pairing code valid right now.
func (m *Manager) Code() (string, error) {
	m.mu.Lock()
	secret := m.key.Secret()
	m.mu.Unlock()
	return totp.GenerateCode(secret, time.Now())
}

// Validate reports whether code is a currently-valid pairing code,
// allowing the standard one-step clock skew.
func (m *Manager) Validate(code string) bool {
	m.mu.Lock()
	secret := m.key.Secret()
	m.mu.Unlock()
	ok, _ := totp.ValidateCustom(code, secret, time.Now(), totp.ValidateOpts{
		Period:    30,
		Skew:      1,
		Digits:    otp.DigitsSix,
		Algorithm: otp.AlgorithmSHA1,
	})
	return ok
}

// Rotate replaces the live secret with a freshly generated one,
// invalidating every code issued against the old one.
func (m *Manager) Rotate(accountName string) error {
	key, err := totp.Generate(totp.GenerateOpts{
		Issuer:      m.issuer,
		AccountName: accountName,
	})
	if err != nil {
		return fmt.Errorf("rotate pairing secret: %w", err)
	}
	m.mu.Lock()
	m.key = key
	m.mu.Unlock()
	return nil
}

// URL returns the otpauth:// URL a client's authenticator app would
// scan instead of typing the code, for parity with the QR path.
func (m *Manager) URL() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.key.URL()
}

// QRPNG renders content (typically "<otpauth URL>|<listen address>")
// as a QR code PNG, scaled up for legibility.
func QRPNG(content string) ([]byte, error) {
	writer := qrcode.NewQRCodeWriter()
	matrix, err := writer.Encode(content, gozxing.BarcodeFormat_QR_CODE, qrRequestSize, qrRequestSize, nil)
	if err != nil {
		return nil, fmt.Errorf("encode qr: %w", err)
	}

	modules := bitMatrixToImage(matrix)
	scaled := image.NewGray(image.Rect(0, 0, qrFinalSize, qrFinalSize))
	xdraw.NearestNeighbor.Scale(scaled, scaled.Bounds(), modules, modules.Bounds(), draw.Over, nil)

	var buf bytes.Buffer
	if err := png.Encode(&buf, scaled); err != nil {
		return nil, fmt.Errorf("png encode qr: %w", err)
	}
	return buf.Bytes(), nil
}

func bitMatrixToImage(m *gozxing.BitMatrix) *image.Gray {
	w, h := m.GetWidth(), m.GetHeight()
	img := image.NewGray(image.Rect(0, 0, w, h))
	black := color.Gray{Y: 0}
	white := color.Gray{Y: 255}
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			if m.Get(x, y) {
				img.SetGray(x, y, black)
			} else {
				img.SetGray(x, y, white)
			}
		}
	}
	return img
}
