package whatsapp

import (
	"context"
	"strings"
	"time"
)

// Chat is a flattened conversation summary
type Chat struct {
	ID            string     `json:"id"`
	Name          string     `json:"name"`
	Phone         string     `json:"phone"`
	LastMessage   string     `json:"last_message,omitempty"`
	LastMessageAt *time.Time `json:"last_message_at,omitempty"`
	UnreadCount   int        `json:"unread_count"`
}

// Contact is a flattened address-book entry
type Contact struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Phone string `json:"phone"`
}

// Message is a flattened chat message
type Message struct {
	ID        string    `json:"id"`
	ChatID    string    `json:"chat_id"`
	From      string    `json:"from"`
	Text      string    `json:"text"`
	FromMe    bool      `json:"from_me"`
	Timestamp time.Time `json:"timestamp"`
}

// Client is the underlying messaging-network connection for one
// administrator. Implementations own the protocol work; the session manager
// only drives lifecycle and relays operations.
type Client interface {
	// Connect starts the connection. For unpaired credentials this triggers
	// the QR pairing flow; lifecycle progress is reported through the event
	// handler registered before Connect is called.
	Connect() error
	Disconnect()
	IsLoggedIn() bool

	// SetEventHandler registers the single lifecycle event handler. Must be
	// called before Connect.
	SetEventHandler(h func(ClientEvent))

	ListChats(ctx context.Context) ([]Chat, error)
	ListContacts(ctx context.Context) ([]Contact, error)
	GetMessages(ctx context.Context, chatID string, limit int) ([]Message, error)
	SendMessage(ctx context.Context, chatJID, text string) (string, error)
}

// ClientFactory builds a Client scoped to one administrator's persistent
// credential store.
type ClientFactory interface {
	NewClient(ctx context.Context, adminID string) (Client, error)
}

// userServer is the JID server suffix for individual WhatsApp accounts
const userServer = "s.whatsapp.net"

// NormalizeRecipient strips formatting characters from a phone number and
// appends the user-server suffix. Input that already carries a server suffix
// keeps it, so normalization is idempotent.
func NormalizeRecipient(input string) string {
	if i := strings.IndexByte(input, '@'); i >= 0 {
		return keepDigits(input[:i]) + input[i:]
	}
	return keepDigits(input) + "@" + userServer
}

func keepDigits(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}
