package whatsapp

import (
	"encoding/base64"
	"fmt"

	"github.com/skip2/go-qrcode"

	"whatsapp-connector/internal/config"
)

// QRGenerator renders pairing codes as PNG data URIs for the frontend
type QRGenerator struct {
	config *config.Config
}

// NewQRGenerator creates a new QR generator
func NewQRGenerator(cfg *config.Config) *QRGenerator {
	return &QRGenerator{
		config: cfg,
	}
}

// DataURI encodes the pairing code as a data:image/png;base64 URI
func (g *QRGenerator) DataURI(code string) (string, error) {
	pngBytes, err := g.PNG(code)
	if err != nil {
		return "", err
	}

	return fmt.Sprintf("data:image/png;base64,%s", base64.StdEncoding.EncodeToString(pngBytes)), nil
}

// PNG encodes the pairing code as PNG bytes
func (g *QRGenerator) PNG(code string) ([]byte, error) {
	if code == "" {
		return nil, fmt.Errorf("QR code data cannot be empty")
	}

	size := g.config.QRCode.Size
	if size <= 0 {
		size = 256
	}

	pngBytes, err := qrcode.Encode(code, g.recoveryLevel(), size)
	if err != nil {
		return nil, fmt.Errorf("failed to generate QR code PNG: %w", err)
	}

	return pngBytes, nil
}

func (g *QRGenerator) recoveryLevel() qrcode.RecoveryLevel {
	switch g.config.QRCode.RecoveryLevel {
	case "low":
		return qrcode.Low
	case "high":
		return qrcode.High
	case "highest":
		return qrcode.Highest
	default:
		return qrcode.Medium
	}
}
