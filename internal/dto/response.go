package dto

// InitSessionResponse is the payload of POST /whatsapp/init-session
type InitSessionResponse struct {
	Status  string `json:"status"`
	QRCode  string `json:"qrCode,omitempty"`
	Phone   string `json:"phoneNumber,omitempty"`
	Message string `json:"message"`
}

// QRCodeResponse is the payload of GET /whatsapp/qrcode
type QRCodeResponse struct {
	QRCode string `json:"qrCode"`
}

// SendMessageResponse is the payload of POST /whatsapp/send-message
type SendMessageResponse struct {
	MessageID   string `json:"messageId"`
	PhoneNumber string `json:"phoneNumber"`
}

// RestoreSessionResponse is the payload of POST /whatsapp/restore-session
type RestoreSessionResponse struct {
	Restored bool   `json:"restored"`
	QRCode   string `json:"qrCode,omitempty"`
}
