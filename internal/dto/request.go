package dto

import (
	"errors"
	"strings"
)

var (
	// ErrPhoneNumberRequired is returned when the recipient is missing
	ErrPhoneNumberRequired = errors.New("phone number is required")
	// ErrPhoneNumberInvalid is returned when the recipient has no digits
	ErrPhoneNumberInvalid = errors.New("phone number must contain digits")
	// ErrMessageRequired is returned when the message body is missing
	ErrMessageRequired = errors.New("message is required")
	// ErrMessageTooLong is returned when the message body exceeds the cap
	ErrMessageTooLong = errors.New("message exceeds the 4096 character limit")
)

// SendMessageRequest is the body of POST /whatsapp/send-message
type SendMessageRequest struct {
	PhoneNumber string `json:"phoneNumber" binding:"required" example:"5511999999999"`
	Message     string `json:"message" binding:"required" example:"Hello from support"`
}

// Validate validates the send message request
func (r *SendMessageRequest) Validate() error {
	if strings.TrimSpace(r.PhoneNumber) == "" {
		return ErrPhoneNumberRequired
	}
	if !strings.ContainsAny(r.PhoneNumber, "0123456789") {
		return ErrPhoneNumberInvalid
	}
	if strings.TrimSpace(r.Message) == "" {
		return ErrMessageRequired
	}
	if len(r.Message) > 4096 {
		return ErrMessageTooLong
	}
	return nil
}

// GetMessagesRequest carries the query parameters of GET /whatsapp/messages/:chatId
type GetMessagesRequest struct {
	Limit int `form:"limit" binding:"omitempty,min=1,max=100" example:"50"`
}
