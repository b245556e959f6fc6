package whatsapp

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/mdp/qrterminal/v3"
	"go.mau.fi/whatsmeow"
	"go.mau.fi/whatsmeow/proto/waE2E"
	"go.mau.fi/whatsmeow/store/sqlstore"
	"go.mau.fi/whatsmeow/types"
	"go.mau.fi/whatsmeow/types/events"
	waLog "go.mau.fi/whatsmeow/util/log"
	"google.golang.org/protobuf/proto"
	_ "modernc.org/sqlite"

	"whatsapp-connector/internal/config"
	"whatsapp-connector/pkg/logger"
)

// meowFactory builds whatsmeow-backed clients, one sqlite credential store
// per administrator so pairing survives process restarts.
type meowFactory struct {
	cfg    *config.Config
	logger *logger.Logger
}

// NewClientFactory creates the production client factory
func NewClientFactory(cfg *config.Config, log *logger.Logger) ClientFactory {
	return &meowFactory{
		cfg:    cfg,
		logger: log,
	}
}

func (f *meowFactory) NewClient(ctx context.Context, adminID string) (Client, error) {
	if err := os.MkdirAll(f.cfg.WhatsApp.SessionDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create session directory: %w", err)
	}

	dbPath := filepath.Join(f.cfg.WhatsApp.SessionDir, sanitizeAdminID(adminID)+".db")

	dbLog := waLog.Stdout("Database", "ERROR", true)
	container, err := sqlstore.New(ctx, "sqlite", fmt.Sprintf("file:%s?_pragma=foreign_keys(1)", dbPath), dbLog)
	if err != nil {
		return nil, fmt.Errorf("failed to open credential store: %w", err)
	}

	device, err := container.GetFirstDevice(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load device: %w", err)
	}

	clientLog := waLog.Stdout("Client", strings.ToUpper(f.cfg.Logging.Level), true)
	client := whatsmeow.NewClient(device, clientLog)

	return newMeowClient(adminID, client, f.cfg, f.logger), nil
}

// sanitizeAdminID keeps the credential file name safe for the filesystem
func sanitizeAdminID(adminID string) string {
	var b strings.Builder
	b.Grow(len(adminID))
	for _, r := range adminID {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	return b.String()
}

// meowClient adapts a whatsmeow client to the Client interface. Chats and
// recent messages are cached in memory from incoming events, capped per chat
// to bound memory use.
type meowClient struct {
	adminID string
	client  *whatsmeow.Client
	cfg     *config.Config
	logger  *logger.Logger

	mu       sync.Mutex
	handler  func(ClientEvent)
	chats    map[string]*chatEntry
	messages map[string][]Message
}

type chatEntry struct {
	name          string
	lastMessage   string
	lastMessageAt time.Time
	unread        int
}

func newMeowClient(adminID string, client *whatsmeow.Client, cfg *config.Config, log *logger.Logger) *meowClient {
	c := &meowClient{
		adminID:  adminID,
		client:   client,
		cfg:      cfg,
		logger:   log,
		chats:    make(map[string]*chatEntry),
		messages: make(map[string][]Message),
	}
	client.AddEventHandler(c.handleEvent)
	return c
}

func (c *meowClient) SetEventHandler(h func(ClientEvent)) {
	c.mu.Lock()
	c.handler = h
	c.mu.Unlock()
}

func (c *meowClient) emit(evt ClientEvent) {
	c.mu.Lock()
	h := c.handler
	c.mu.Unlock()
	if h != nil {
		h(evt)
	}
}

func (c *meowClient) Connect() error {
	if c.client.Store.ID == nil {
		// Unpaired credentials: attach the QR channel before connecting so
		// pairing codes are not dropped.
		qrChan, err := c.client.GetQRChannel(context.Background())
		if err != nil {
			return fmt.Errorf("failed to get QR channel: %w", err)
		}
		go c.watchQR(qrChan)
	}

	return c.client.Connect()
}

func (c *meowClient) watchQR(qrChan <-chan whatsmeow.QRChannelItem) {
	for item := range qrChan {
		switch item.Event {
		case "code":
			if c.cfg.Server.Debug {
				qrterminal.GenerateWithConfig(item.Code, qrterminal.Config{
					Level:     qrterminal.L,
					Writer:    os.Stdout,
					BlackChar: qrterminal.WHITE,
					WhiteChar: qrterminal.BLACK,
				})
			}
			c.emit(ClientEvent{Type: EventPairingCode, Code: item.Code})
		case "success":
			// The Connected event carries the ready signal.
		default:
			c.logger.Debug("QR channel closed for admin %s: %s", c.adminID, item.Event)
		}
	}
}

func (c *meowClient) Disconnect() {
	c.client.Disconnect()
}

func (c *meowClient) IsLoggedIn() bool {
	return c.client.IsLoggedIn()
}

func (c *meowClient) phoneNumber() string {
	if c.client.Store.ID != nil {
		return c.client.Store.ID.User
	}
	return ""
}

func (c *meowClient) handleEvent(evt interface{}) {
	switch v := evt.(type) {
	case *events.Connected:
		c.emit(ClientEvent{Type: EventReady, Phone: c.phoneNumber()})
	case *events.PairSuccess:
		c.emit(ClientEvent{Type: EventAuthenticated})
	case *events.LoggedOut:
		c.emit(ClientEvent{Type: EventAuthFailed, Reason: v.Reason.String()})
	case *events.StreamReplaced:
		c.emit(ClientEvent{Type: EventDisconnected, Reason: "stream replaced"})
	case *events.Disconnected:
		c.emit(ClientEvent{Type: EventDisconnected})
	case *events.Message:
		c.recordMessage(v)
	}
}

// recordMessage feeds the in-memory chat index and per-chat message cache
func (c *meowClient) recordMessage(evt *events.Message) {
	text := extractText(evt.Message)
	if text == "" {
		return
	}

	chatID := evt.Info.Chat.String()
	msg := Message{
		ID:        string(evt.Info.ID),
		ChatID:    chatID,
		From:      evt.Info.Sender.String(),
		Text:      text,
		FromMe:    evt.Info.IsFromMe,
		Timestamp: evt.Info.Timestamp,
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.chats[chatID]
	if !ok {
		entry = &chatEntry{}
		c.chats[chatID] = entry
	}
	if evt.Info.PushName != "" {
		entry.name = evt.Info.PushName
	}
	entry.lastMessage = text
	entry.lastMessageAt = evt.Info.Timestamp
	if evt.Info.IsFromMe {
		entry.unread = 0
	} else {
		entry.unread++
	}

	cache := append(c.messages[chatID], msg)
	if max := c.cfg.WhatsApp.MessageCacheSize; len(cache) > max {
		cache = cache[len(cache)-max:]
	}
	c.messages[chatID] = cache
}

func extractText(msg *waE2E.Message) string {
	if msg == nil {
		return ""
	}
	if text := msg.GetConversation(); text != "" {
		return text
	}
	if ext := msg.GetExtendedTextMessage(); ext != nil {
		return ext.GetText()
	}
	return ""
}

func (c *meowClient) ListChats(ctx context.Context) ([]Chat, error) {
	contacts, err := c.client.Store.Contacts.GetAllContacts(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read contact store: %w", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	chats := make([]Chat, 0, len(c.chats))
	for id, entry := range c.chats {
		chat := Chat{
			ID:          id,
			Name:        entry.name,
			UnreadCount: entry.unread,
			LastMessage: entry.lastMessage,
		}
		if !entry.lastMessageAt.IsZero() {
			at := entry.lastMessageAt
			chat.LastMessageAt = &at
		}
		if jid, err := types.ParseJID(id); err == nil {
			chat.Phone = jid.User
			if info, ok := contacts[jid]; ok && info.FullName != "" {
				chat.Name = info.FullName
			}
		}
		chats = append(chats, chat)
	}

	sort.Slice(chats, func(i, j int) bool {
		a, b := chats[i].LastMessageAt, chats[j].LastMessageAt
		if a == nil || b == nil {
			return b == nil
		}
		return a.After(*b)
	})

	return chats, nil
}

func (c *meowClient) ListContacts(ctx context.Context) ([]Contact, error) {
	all, err := c.client.Store.Contacts.GetAllContacts(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read contact store: %w", err)
	}

	contacts := make([]Contact, 0, len(all))
	for jid, info := range all {
		if jid.Server != types.DefaultUserServer {
			continue
		}
		name := info.FullName
		if name == "" {
			name = info.PushName
		}
		contacts = append(contacts, Contact{
			ID:    jid.String(),
			Name:  name,
			Phone: jid.User,
		})
	}

	sort.Slice(contacts, func(i, j int) bool {
		return contacts[i].Name < contacts[j].Name
	})

	return contacts, nil
}

func (c *meowClient) GetMessages(ctx context.Context, chatID string, limit int) ([]Message, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	cache := c.messages[chatID]
	if limit > 0 && len(cache) > limit {
		cache = cache[len(cache)-limit:]
	}

	out := make([]Message, len(cache))
	copy(out, cache)
	return out, nil
}

func (c *meowClient) SendMessage(ctx context.Context, chatJID, text string) (string, error) {
	jid, err := types.ParseJID(chatJID)
	if err != nil {
		return "", fmt.Errorf("invalid recipient %q: %w", chatJID, err)
	}

	resp, err := c.client.SendMessage(ctx, jid, &waE2E.Message{
		Conversation: proto.String(text),
	})
	if err != nil {
		return "", err
	}

	// Keep the outgoing message visible in the chat cache.
	c.mu.Lock()
	chatID := jid.String()
	entry, ok := c.chats[chatID]
	if !ok {
		entry = &chatEntry{}
		c.chats[chatID] = entry
	}
	entry.lastMessage = text
	entry.lastMessageAt = resp.Timestamp
	entry.unread = 0
	cache := append(c.messages[chatID], Message{
		ID:        string(resp.ID),
		ChatID:    chatID,
		Text:      text,
		FromMe:    true,
		Timestamp: resp.Timestamp,
	})
	if max := c.cfg.WhatsApp.MessageCacheSize; len(cache) > max {
		cache = cache[len(cache)-max:]
	}
	c.messages[chatID] = cache
	c.mu.Unlock()

	return string(resp.ID), nil
}
