package models

import (
	"time"

	"gorm.io/gorm"
)

// ConnectionStatus represents the status of an administrator's WhatsApp connection
type ConnectionStatus string

const (
	StatusNotInitialized ConnectionStatus = "not_initialized"
	StatusWaitingQR      ConnectionStatus = "waiting_qr"
	StatusConnecting     ConnectionStatus = "connecting"
	StatusConnected      ConnectionStatus = "connected"
	StatusAuthFailed     ConnectionStatus = "auth_failed"
	StatusDisconnected   ConnectionStatus = "disconnected"
)

// IsValid checks if the connection status is valid
func (s ConnectionStatus) IsValid() bool {
	switch s {
	case StatusNotInitialized, StatusWaitingQR, StatusConnecting,
		StatusConnected, StatusAuthFailed, StatusDisconnected:
		return true
	default:
		return false
	}
}

// IsTerminal checks if the status is a terminal state for the current client
func (s ConnectionStatus) IsTerminal() bool {
	return s == StatusAuthFailed || s == StatusDisconnected
}

// WhatsAppConnection is the persisted last-known connection state for one
// administrator. Exactly one row exists per admin.
type WhatsAppConnection struct {
	ID             uint             `gorm:"primaryKey" json:"-"`
	AdminUserID    string           `gorm:"type:varchar(255);not null;uniqueIndex:idx_connections_admin" json:"admin_user_id"`
	Status         ConnectionStatus `gorm:"type:varchar(50);not null;default:'not_initialized'" json:"status"`
	PhoneNumber    *string          `gorm:"type:varchar(20)" json:"phone_number,omitempty"`
	QRCode         *string          `gorm:"type:text" json:"qr_code,omitempty"`
	LastConnection *time.Time       `json:"last_connection,omitempty"`
	CreatedAt      time.Time        `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt      time.Time        `gorm:"autoUpdateTime" json:"updated_at"`
}

// TableName specifies the table name for WhatsAppConnection
func (WhatsAppConnection) TableName() string {
	return "whatsapp_connections"
}

// BeforeSave enforces the column invariants: the QR code exists only while
// waiting for a scan, and the phone number only while connected.
func (c *WhatsAppConnection) BeforeSave(tx *gorm.DB) error {
	if c.Status != StatusWaitingQR {
		c.QRCode = nil
	}
	if c.Status != StatusConnected {
		c.PhoneNumber = nil
	}
	return nil
}

// SetWaitingQR records a freshly issued pairing code
func (c *WhatsAppConnection) SetWaitingQR(qrCode string) {
	c.Status = StatusWaitingQR
	c.QRCode = &qrCode
	c.PhoneNumber = nil
}

// SetConnected marks the connection as established, clearing the QR code in
// the same mutation
func (c *WhatsAppConnection) SetConnected(phoneNumber string) {
	now := time.Now()
	c.Status = StatusConnected
	c.PhoneNumber = &phoneNumber
	c.QRCode = nil
	c.LastConnection = &now
}

// SetDisconnected marks the connection as torn down
func (c *WhatsAppConnection) SetDisconnected() {
	c.Status = StatusDisconnected
	c.QRCode = nil
	c.PhoneNumber = nil
}

// SetAuthFailed marks the connection as failed authentication
func (c *WhatsAppConnection) SetAuthFailed() {
	c.Status = StatusAuthFailed
	c.QRCode = nil
	c.PhoneNumber = nil
}

// IsConnected reports whether the last observed state was an open session
func (c *WhatsAppConnection) IsConnected() bool {
	return c.Status == StatusConnected
}
