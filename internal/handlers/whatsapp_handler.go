package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"whatsapp-connector/internal/dto"
	"whatsapp-connector/internal/middleware"
	"whatsapp-connector/internal/models"
	"whatsapp-connector/internal/whatsapp"
	"whatsapp-connector/pkg/logger"
	"whatsapp-connector/pkg/response"
)

// WhatsAppHandler exposes the session manager over REST
type WhatsAppHandler struct {
	sessions *whatsapp.SessionManager
	logger   *logger.Logger
}

// NewWhatsAppHandler creates a new WhatsApp handler
func NewWhatsAppHandler(sessions *whatsapp.SessionManager, log *logger.Logger) *WhatsAppHandler {
	return &WhatsAppHandler{sessions: sessions, logger: log}
}

// InitSession starts or joins the pairing handshake for the calling admin
// POST /whatsapp/init-session
func (h *WhatsAppHandler) InitSession(c *gin.Context) {
	adminID, err := middleware.GetAdminID(c)
	if err != nil {
		response.Unauthorized(c, "Administrator identity required")
		return
	}

	res, err := h.sessions.InitializeSession(c.Request.Context(), adminID)
	if err != nil {
		h.respondError(c, adminID, err)
		return
	}

	payload := dto.InitSessionResponse{
		Status: string(res.Status),
		QRCode: res.QRCode,
		Phone:  res.PhoneNumber,
	}
	if res.Status == models.StatusConnected {
		payload.Message = "Session already connected"
	} else {
		payload.Message = "Scan the QR code with the WhatsApp app to pair"
	}
	response.Success(c, payload)
}

// GetStatus reports the current connection state for the calling admin
// GET /whatsapp/status
func (h *WhatsAppHandler) GetStatus(c *gin.Context) {
	adminID, err := middleware.GetAdminID(c)
	if err != nil {
		response.Unauthorized(c, "Administrator identity required")
		return
	}

	info, err := h.sessions.GetStatus(c.Request.Context(), adminID)
	if err != nil {
		h.respondError(c, adminID, err)
		return
	}
	response.Success(c, info)
}

// GetQRCode returns the current pairing QR. Absence is a normal state, not
// an error condition.
// GET /whatsapp/qrcode
func (h *WhatsAppHandler) GetQRCode(c *gin.Context) {
	adminID, err := middleware.GetAdminID(c)
	if err != nil {
		response.Unauthorized(c, "Administrator identity required")
		return
	}

	qr, ok := h.sessions.GetQRCode(adminID)
	if !ok {
		response.NotFound(c, "No QR code available. Initialize a session to start pairing.")
		return
	}
	response.Success(c, dto.QRCodeResponse{QRCode: qr})
}

// Disconnect tears down the calling admin's session
// POST /whatsapp/disconnect
func (h *WhatsAppHandler) Disconnect(c *gin.Context) {
	adminID, err := middleware.GetAdminID(c)
	if err != nil {
		response.Unauthorized(c, "Administrator identity required")
		return
	}

	if err := h.sessions.Disconnect(c.Request.Context(), adminID); err != nil {
		h.respondError(c, adminID, err)
		return
	}
	response.SuccessWithMessage(c, "Session disconnected", nil)
}

// GetChats lists recent conversations
// GET /whatsapp/chats
func (h *WhatsAppHandler) GetChats(c *gin.Context) {
	adminID, err := middleware.GetAdminID(c)
	if err != nil {
		response.Unauthorized(c, "Administrator identity required")
		return
	}

	chats, err := h.sessions.GetChats(c.Request.Context(), adminID)
	if err != nil {
		h.respondError(c, adminID, err)
		return
	}
	response.Success(c, gin.H{"chats": chats})
}

// GetContacts lists address-book entries
// GET /whatsapp/contacts
func (h *WhatsAppHandler) GetContacts(c *gin.Context) {
	adminID, err := middleware.GetAdminID(c)
	if err != nil {
		response.Unauthorized(c, "Administrator identity required")
		return
	}

	contacts, err := h.sessions.GetContacts(c.Request.Context(), adminID)
	if err != nil {
		h.respondError(c, adminID, err)
		return
	}
	response.Success(c, gin.H{"contacts": contacts})
}

// GetMessages returns recent messages for one chat
// GET /whatsapp/messages/:chatId
func (h *WhatsAppHandler) GetMessages(c *gin.Context) {
	adminID, err := middleware.GetAdminID(c)
	if err != nil {
		response.Unauthorized(c, "Administrator identity required")
		return
	}

	chatID := c.Param("chatId")
	if chatID == "" {
		response.BadRequest(c, "Chat ID is required")
		return
	}

	var req dto.GetMessagesRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		response.BadRequest(c, "Invalid limit parameter")
		return
	}

	messages, err := h.sessions.GetMessages(c.Request.Context(), adminID, chatID, req.Limit)
	if err != nil {
		h.respondError(c, adminID, err)
		return
	}
	response.Success(c, gin.H{"messages": messages})
}

// SendMessage sends a text message to a phone number
// POST /whatsapp/send-message
func (h *WhatsAppHandler) SendMessage(c *gin.Context) {
	adminID, err := middleware.GetAdminID(c)
	if err != nil {
		response.Unauthorized(c, "Administrator identity required")
		return
	}

	var req dto.SendMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "Invalid request body")
		return
	}
	if err := req.Validate(); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	messageID, err := h.sessions.SendMessage(c.Request.Context(), adminID, req.PhoneNumber, req.Message)
	if err != nil {
		h.respondError(c, adminID, err)
		return
	}
	response.Success(c, dto.SendMessageResponse{
		MessageID:   messageID,
		PhoneNumber: req.PhoneNumber,
	})
}

// RestoreSession re-establishes the admin's previously connected session
// POST /whatsapp/restore-session
func (h *WhatsAppHandler) RestoreSession(c *gin.Context) {
	adminID, err := middleware.GetAdminID(c)
	if err != nil {
		response.Unauthorized(c, "Administrator identity required")
		return
	}

	qr, err := h.sessions.RestoreSession(c.Request.Context(), adminID)
	if err != nil {
		h.respondError(c, adminID, err)
		return
	}
	response.Success(c, dto.RestoreSessionResponse{
		Restored: qr == "",
		QRCode:   qr,
	})
}

// respondError maps session manager failures to HTTP responses with
// actionable messages
func (h *WhatsAppHandler) respondError(c *gin.Context, adminID string, err error) {
	var clientErr *whatsapp.ClientError

	switch {
	case errors.Is(err, whatsapp.ErrPairingTimeout):
		response.GatewayTimeout(c, "Pairing timed out before a QR code was issued. Try again.")
	case errors.Is(err, whatsapp.ErrSessionNotReady):
		response.Conflict(c, "No active WhatsApp session. Initialize a session first.")
	case errors.Is(err, whatsapp.ErrNothingToRestore):
		response.NotFound(c, "No previous session to restore for this administrator.")
	case errors.As(err, &clientErr):
		h.logger.Error("Client failure for admin %s: %v", adminID, err)
		response.ErrorResponse(c, http.StatusBadGateway, "The WhatsApp connection reported an error. Try again later.")
	default:
		h.logger.Error("Request failed for admin %s: %v", adminID, err)
		response.InternalError(c, "Internal server error")
	}
}
