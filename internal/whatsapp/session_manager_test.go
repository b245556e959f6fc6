package whatsapp

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"whatsapp-connector/internal/config"
	"whatsapp-connector/internal/models"
	"whatsapp-connector/internal/repositories"
	"whatsapp-connector/pkg/logger"
)

type fakeClient struct {
	mu           sync.Mutex
	handler      func(ClientEvent)
	script       []ClientEvent
	connectErr   error
	disconnected bool

	chats    []Chat
	contacts []Contact
	messages map[string][]Message

	sentTo   []string
	sentText []string
}

func (c *fakeClient) SetEventHandler(h func(ClientEvent)) {
	c.mu.Lock()
	c.handler = h
	c.mu.Unlock()
}

func (c *fakeClient) emit(evt ClientEvent) {
	c.mu.Lock()
	h := c.handler
	c.mu.Unlock()
	if h != nil {
		h(evt)
	}
}

func (c *fakeClient) Connect() error {
	if c.connectErr != nil {
		return c.connectErr
	}
	for _, evt := range c.script {
		c.emit(evt)
	}
	return nil
}

func (c *fakeClient) Disconnect() {
	c.mu.Lock()
	c.disconnected = true
	c.mu.Unlock()
}

func (c *fakeClient) wasDisconnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.disconnected
}

func (c *fakeClient) IsLoggedIn() bool { return true }

func (c *fakeClient) ListChats(ctx context.Context) ([]Chat, error) {
	return c.chats, nil
}

func (c *fakeClient) ListContacts(ctx context.Context) ([]Contact, error) {
	return c.contacts, nil
}

func (c *fakeClient) GetMessages(ctx context.Context, chatID string, limit int) ([]Message, error) {
	msgs := c.messages[chatID]
	if limit > 0 && len(msgs) > limit {
		msgs = msgs[len(msgs)-limit:]
	}
	return msgs, nil
}

func (c *fakeClient) SendMessage(ctx context.Context, chatJID, text string) (string, error) {
	c.mu.Lock()
	c.sentTo = append(c.sentTo, chatJID)
	c.sentText = append(c.sentText, text)
	c.mu.Unlock()
	return "MSG1", nil
}

type fakeFactory struct {
	mu     sync.Mutex
	client *fakeClient
	calls  int
	delay  time.Duration
	err    error
}

func (f *fakeFactory) NewClient(ctx context.Context, adminID string) (Client, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	if f.delay > 0 {
		time.Sleep(f.delay)
	}
	if f.err != nil {
		return nil, f.err
	}
	return f.client, nil
}

func (f *fakeFactory) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type fakeStore struct {
	mu      sync.Mutex
	records map[string]*models.WhatsAppConnection
	failErr error
	writes  int
}

func newFakeStore() *fakeStore {
	return &fakeStore{records: make(map[string]*models.WhatsAppConnection)}
}

func (s *fakeStore) setFailure(err error) {
	s.mu.Lock()
	s.failErr = err
	s.mu.Unlock()
}

func (s *fakeStore) Get(ctx context.Context, adminID string) (*models.WhatsAppConnection, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[adminID]
	if !ok {
		return nil, repositories.ErrConnectionNotFound
	}
	copied := *rec
	return &copied, nil
}

func (s *fakeStore) SaveWaitingQR(ctx context.Context, adminID, qrCode string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.writes++
	if s.failErr != nil {
		return s.failErr
	}
	s.records[adminID] = &models.WhatsAppConnection{
		AdminUserID: adminID,
		Status:      models.StatusWaitingQR,
		QRCode:      &qrCode,
	}
	return nil
}

func (s *fakeStore) SaveConnected(ctx context.Context, adminID, phoneNumber string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.writes++
	if s.failErr != nil {
		return s.failErr
	}
	now := time.Now()
	s.records[adminID] = &models.WhatsAppConnection{
		AdminUserID:    adminID,
		Status:         models.StatusConnected,
		PhoneNumber:    &phoneNumber,
		LastConnection: &now,
	}
	return nil
}

func (s *fakeStore) SaveStatus(ctx context.Context, adminID string, status models.ConnectionStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.writes++
	if s.failErr != nil {
		return s.failErr
	}
	s.records[adminID] = &models.WhatsAppConnection{
		AdminUserID: adminID,
		Status:      status,
	}
	return nil
}

func (s *fakeStore) ListConnectedAdmins(ctx context.Context) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var admins []string
	for adminID, rec := range s.records {
		if rec.Status == models.StatusConnected {
			admins = append(admins, adminID)
		}
	}
	return admins, nil
}

func (s *fakeStore) record(adminID string) *models.WhatsAppConnection {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[adminID]
	if !ok {
		return nil
	}
	copied := *rec
	return &copied
}

func testConfig() *config.Config {
	return &config.Config{
		WhatsApp: config.WhatsAppConfig{
			QRTimeout:         500 * time.Millisecond,
			AutoReconnect:     true,
			ReconcileInterval: time.Minute,
			ChatListLimit:     50,
			ContactListLimit:  50,
			MessageCacheSize:  100,
		},
		QRCode: config.QRCodeConfig{
			Size:          128,
			RecoveryLevel: "medium",
		},
	}
}

func newTestManager(store ConnectionStore, factory ClientFactory) *SessionManager {
	return NewSessionManager(testConfig(), store, factory, nil, logger.New("error"))
}

// connectAdmin drives an admin through pairing and ready so operation tests
// start from a live session
func connectAdmin(t *testing.T, m *SessionManager, client *fakeClient, adminID, phone string) {
	t.Helper()
	client.script = []ClientEvent{{Type: EventPairingCode, Code: "pair-code"}}
	if _, err := m.InitializeSession(context.Background(), adminID); err != nil {
		t.Fatalf("InitializeSession: %v", err)
	}
	client.emit(ClientEvent{Type: EventReady, Phone: phone})
}

func TestInitializeSessionReturnsQR(t *testing.T) {
	store := newFakeStore()
	client := &fakeClient{script: []ClientEvent{{Type: EventPairingCode, Code: "pair-code"}}}
	m := newTestManager(store, &fakeFactory{client: client})

	res, err := m.InitializeSession(context.Background(), "admin-1")
	if err != nil {
		t.Fatalf("InitializeSession: %v", err)
	}
	if res.Status != models.StatusWaitingQR {
		t.Errorf("status = %s, want %s", res.Status, models.StatusWaitingQR)
	}
	if !strings.HasPrefix(res.QRCode, "data:image/png;base64,") {
		t.Errorf("QR code is not a PNG data URI: %.40q", res.QRCode)
	}

	rec := store.record("admin-1")
	if rec == nil {
		t.Fatal("no connection record written")
	}
	if rec.Status != models.StatusWaitingQR {
		t.Errorf("stored status = %s, want %s", rec.Status, models.StatusWaitingQR)
	}
	if rec.QRCode == nil || *rec.QRCode != res.QRCode {
		t.Error("stored QR code does not match the returned one")
	}
}

func TestInitializeSessionSingleFlight(t *testing.T) {
	store := newFakeStore()
	client := &fakeClient{script: []ClientEvent{{Type: EventPairingCode, Code: "pair-code"}}}
	factory := &fakeFactory{client: client, delay: 50 * time.Millisecond}
	m := newTestManager(store, factory)

	const callers = 5
	results := make([]*InitResult, callers)
	errs := make([]error, callers)
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = m.InitializeSession(context.Background(), "admin-1")
		}(i)
	}
	wg.Wait()

	if got := factory.callCount(); got != 1 {
		t.Errorf("factory called %d times, want 1", got)
	}
	for i := 0; i < callers; i++ {
		if errs[i] != nil {
			t.Fatalf("caller %d: %v", i, errs[i])
		}
		if results[i].QRCode != results[0].QRCode {
			t.Errorf("caller %d got a different QR code", i)
		}
	}
}

func TestInitializeSessionAlreadyConnected(t *testing.T) {
	store := newFakeStore()
	client := &fakeClient{}
	m := newTestManager(store, &fakeFactory{client: client})
	connectAdmin(t, m, client, "admin-1", "5511999999999")

	res, err := m.InitializeSession(context.Background(), "admin-1")
	if err != nil {
		t.Fatalf("InitializeSession: %v", err)
	}
	if res.Status != models.StatusConnected {
		t.Errorf("status = %s, want %s", res.Status, models.StatusConnected)
	}
	if res.PhoneNumber != "5511999999999" {
		t.Errorf("phone = %q, want 5511999999999", res.PhoneNumber)
	}
	if res.QRCode != "" {
		t.Error("connected result should carry no QR code")
	}
}

func TestReadyTransitionClearsQR(t *testing.T) {
	store := newFakeStore()
	client := &fakeClient{}
	m := newTestManager(store, &fakeFactory{client: client})
	connectAdmin(t, m, client, "admin-1", "5511999999999")

	info, err := m.GetStatus(context.Background(), "admin-1")
	if err != nil {
		t.Fatalf("GetStatus: %v", err)
	}
	if !info.Connected || info.Status != models.StatusConnected {
		t.Errorf("status = %+v, want connected", info)
	}
	if info.PhoneNumber != "5511999999999" {
		t.Errorf("phone = %q, want 5511999999999", info.PhoneNumber)
	}
	if info.QRCode != "" {
		t.Error("QR code must be cleared once connected")
	}

	rec := store.record("admin-1")
	if rec == nil || rec.Status != models.StatusConnected {
		t.Fatalf("stored record = %+v, want connected", rec)
	}
	if rec.QRCode != nil {
		t.Error("stored QR code must be nil once connected")
	}
	if rec.PhoneNumber == nil || *rec.PhoneNumber != "5511999999999" {
		t.Error("stored phone number missing")
	}
	if rec.LastConnection == nil {
		t.Error("last_connection not set on connect")
	}
}

func TestGetQRCode(t *testing.T) {
	store := newFakeStore()
	client := &fakeClient{script: []ClientEvent{{Type: EventPairingCode, Code: "pair-code"}}}
	m := newTestManager(store, &fakeFactory{client: client})

	if _, ok := m.GetQRCode("admin-1"); ok {
		t.Error("QR reported before initialization")
	}

	res, err := m.InitializeSession(context.Background(), "admin-1")
	if err != nil {
		t.Fatalf("InitializeSession: %v", err)
	}

	qr, ok := m.GetQRCode("admin-1")
	if !ok || qr != res.QRCode {
		t.Errorf("GetQRCode = (%.20q, %v), want the issued code", qr, ok)
	}

	client.emit(ClientEvent{Type: EventReady, Phone: "5511999999999"})
	if _, ok := m.GetQRCode("admin-1"); ok {
		t.Error("QR still reported after connect")
	}
}

func TestSendMessageNormalizesRecipient(t *testing.T) {
	store := newFakeStore()
	client := &fakeClient{}
	m := newTestManager(store, &fakeFactory{client: client})
	connectAdmin(t, m, client, "admin-1", "5511999999999")

	id, err := m.SendMessage(context.Background(), "admin-1", "+55 (11) 99999-9999", "hello")
	if err != nil {
		t.Fatalf("SendMessage: %v", err)
	}
	if id != "MSG1" {
		t.Errorf("message id = %q, want MSG1", id)
	}
	if len(client.sentTo) != 1 || client.sentTo[0] != "5511999999999@s.whatsapp.net" {
		t.Errorf("recipient = %v, want [5511999999999@s.whatsapp.net]", client.sentTo)
	}
}

func TestOperationsRequireReadySession(t *testing.T) {
	store := newFakeStore()
	m := newTestManager(store, &fakeFactory{client: &fakeClient{}})
	ctx := context.Background()

	if _, err := m.GetChats(ctx, "nobody"); !errors.Is(err, ErrSessionNotReady) {
		t.Errorf("GetChats error = %v, want ErrSessionNotReady", err)
	}
	if _, err := m.GetContacts(ctx, "nobody"); !errors.Is(err, ErrSessionNotReady) {
		t.Errorf("GetContacts error = %v, want ErrSessionNotReady", err)
	}
	if _, err := m.GetMessages(ctx, "nobody", "chat", 10); !errors.Is(err, ErrSessionNotReady) {
		t.Errorf("GetMessages error = %v, want ErrSessionNotReady", err)
	}
	if _, err := m.SendMessage(ctx, "nobody", "5511999999999", "hi"); !errors.Is(err, ErrSessionNotReady) {
		t.Errorf("SendMessage error = %v, want ErrSessionNotReady", err)
	}
}

func TestMidPairingOperationsNotReady(t *testing.T) {
	store := newFakeStore()
	client := &fakeClient{script: []ClientEvent{{Type: EventPairingCode, Code: "pair-code"}}}
	m := newTestManager(store, &fakeFactory{client: client})

	if _, err := m.InitializeSession(context.Background(), "admin-1"); err != nil {
		t.Fatalf("InitializeSession: %v", err)
	}
	if _, err := m.GetChats(context.Background(), "admin-1"); !errors.Is(err, ErrSessionNotReady) {
		t.Errorf("GetChats mid-pairing error = %v, want ErrSessionNotReady", err)
	}
}

func TestGetChatsCapped(t *testing.T) {
	store := newFakeStore()
	client := &fakeClient{}
	for i := 0; i < 60; i++ {
		client.chats = append(client.chats, Chat{ID: fmt.Sprintf("%d@s.whatsapp.net", i)})
	}
	m := newTestManager(store, &fakeFactory{client: client})
	connectAdmin(t, m, client, "admin-1", "5511999999999")

	chats, err := m.GetChats(context.Background(), "admin-1")
	if err != nil {
		t.Fatalf("GetChats: %v", err)
	}
	if len(chats) != 50 {
		t.Errorf("len(chats) = %d, want 50", len(chats))
	}
}

func TestDisconnect(t *testing.T) {
	store := newFakeStore()
	client := &fakeClient{}
	m := newTestManager(store, &fakeFactory{client: client})
	connectAdmin(t, m, client, "admin-1", "5511999999999")

	if err := m.Disconnect(context.Background(), "admin-1"); err != nil {
		t.Fatalf("Disconnect: %v", err)
	}

	if !client.wasDisconnected() {
		t.Error("underlying client not torn down")
	}
	if _, err := m.SendMessage(context.Background(), "admin-1", "5511999999999", "hi"); !errors.Is(err, ErrSessionNotReady) {
		t.Errorf("post-disconnect send error = %v, want ErrSessionNotReady", err)
	}

	rec := store.record("admin-1")
	if rec == nil || rec.Status != models.StatusDisconnected {
		t.Fatalf("stored record = %+v, want disconnected", rec)
	}
	if rec.PhoneNumber != nil || rec.QRCode != nil {
		t.Error("phone number and QR must be cleared on disconnect")
	}
}

func TestDisconnectWithoutSessionStillPersists(t *testing.T) {
	store := newFakeStore()
	m := newTestManager(store, &fakeFactory{client: &fakeClient{}})

	if err := m.Disconnect(context.Background(), "admin-1"); err != nil {
		t.Fatalf("Disconnect: %v", err)
	}
	rec := store.record("admin-1")
	if rec == nil || rec.Status != models.StatusDisconnected {
		t.Fatalf("stored record = %+v, want disconnected", rec)
	}
}

func TestPairingTimeout(t *testing.T) {
	store := newFakeStore()
	client := &fakeClient{} // never emits a pairing code
	m := newTestManager(store, &fakeFactory{client: client})
	m.cfg.WhatsApp.QRTimeout = 50 * time.Millisecond

	start := time.Now()
	_, err := m.InitializeSession(context.Background(), "admin-1")
	if !errors.Is(err, ErrPairingTimeout) {
		t.Fatalf("error = %v, want ErrPairingTimeout", err)
	}
	if elapsed := time.Since(start); elapsed < 50*time.Millisecond {
		t.Errorf("returned after %s, before the timeout", elapsed)
	}

	if !client.wasDisconnected() {
		t.Error("client not torn down after timeout")
	}
	if rec := store.record("admin-1"); rec != nil {
		t.Errorf("timeout must not write a record, got %+v", rec)
	}

	// A retry starts a fresh handshake rather than joining the dead one.
	client.script = []ClientEvent{{Type: EventPairingCode, Code: "pair-code"}}
	m.cfg.WhatsApp.QRTimeout = 500 * time.Millisecond
	if _, err := m.InitializeSession(context.Background(), "admin-1"); err != nil {
		t.Fatalf("retry after timeout: %v", err)
	}
}

func TestAuthFailedRemovesHandle(t *testing.T) {
	store := newFakeStore()
	client := &fakeClient{}
	m := newTestManager(store, &fakeFactory{client: client})
	connectAdmin(t, m, client, "admin-1", "5511999999999")

	client.emit(ClientEvent{Type: EventAuthFailed, Reason: "credentials revoked"})

	rec := store.record("admin-1")
	if rec == nil || rec.Status != models.StatusAuthFailed {
		t.Fatalf("stored record = %+v, want auth_failed", rec)
	}

	info, err := m.GetStatus(context.Background(), "admin-1")
	if err != nil {
		t.Fatalf("GetStatus: %v", err)
	}
	if info.Connected || info.Status != models.StatusAuthFailed {
		t.Errorf("status after auth failure = %+v, want auth_failed from the record", info)
	}
}

func TestUnexpectedDisconnectEvent(t *testing.T) {
	store := newFakeStore()
	client := &fakeClient{}
	m := newTestManager(store, &fakeFactory{client: client})
	connectAdmin(t, m, client, "admin-1", "5511999999999")

	client.emit(ClientEvent{Type: EventDisconnected})

	rec := store.record("admin-1")
	if rec == nil || rec.Status != models.StatusDisconnected {
		t.Fatalf("stored record = %+v, want disconnected", rec)
	}
	if _, err := m.GetChats(context.Background(), "admin-1"); !errors.Is(err, ErrSessionNotReady) {
		t.Errorf("GetChats after drop error = %v, want ErrSessionNotReady", err)
	}
}

// waitDisconnected polls because lifecycle teardown disconnects off the
// event goroutine
func waitDisconnected(t *testing.T, client *fakeClient) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !client.wasDisconnected() {
		if time.Now().After(deadline) {
			t.Fatal("client was never disconnected")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestLifecycleRemovalDisconnectsClient(t *testing.T) {
	tests := []struct {
		name string
		evt  ClientEvent
	}{
		{"auth failed", ClientEvent{Type: EventAuthFailed, Reason: "credentials revoked"}},
		{"disconnected", ClientEvent{Type: EventDisconnected}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := newFakeStore()
			client := &fakeClient{}
			factory := &fakeFactory{client: client}
			m := newTestManager(store, factory)
			connectAdmin(t, m, client, "admin-1", "5511999999999")

			client.emit(tt.evt)
			waitDisconnected(t, client)

			// A retry must build a fresh client rather than revive the
			// torn-down one.
			replacement := &fakeClient{script: []ClientEvent{{Type: EventPairingCode, Code: "pair-code"}}}
			factory.mu.Lock()
			factory.client = replacement
			factory.mu.Unlock()

			res, err := m.InitializeSession(context.Background(), "admin-1")
			if err != nil {
				t.Fatalf("InitializeSession after %s: %v", tt.name, err)
			}
			if res.Status != models.StatusWaitingQR {
				t.Errorf("retry status = %s, want %s", res.Status, models.StatusWaitingQR)
			}
			if got := factory.callCount(); got != 2 {
				t.Errorf("factory called %d times, want 2", got)
			}
		})
	}
}

func TestInitializeSessionReplacesStaleHandle(t *testing.T) {
	store := newFakeStore()
	stale := &fakeClient{}
	fresh := &fakeClient{script: []ClientEvent{{Type: EventPairingCode, Code: "pair-code"}}}
	factory := &fakeFactory{client: fresh}
	m := newTestManager(store, factory)

	// A handle left behind by a torn-down session: not connected, not
	// pairing, no QR to hand out.
	m.mu.Lock()
	m.sessions["admin-1"] = &session{adminID: "admin-1", state: StateDisconnected, client: stale}
	m.mu.Unlock()

	res, err := m.InitializeSession(context.Background(), "admin-1")
	if err != nil {
		t.Fatalf("InitializeSession: %v", err)
	}
	if res.Status != models.StatusWaitingQR {
		t.Errorf("status = %s, want %s", res.Status, models.StatusWaitingQR)
	}
	if !stale.wasDisconnected() {
		t.Error("stale client left connected after its handle was replaced")
	}
	if got := factory.callCount(); got != 1 {
		t.Errorf("factory called %d times, want 1", got)
	}
}

func TestPairingCodeRenderFailureFailsWait(t *testing.T) {
	store := newFakeStore()
	client := &fakeClient{script: []ClientEvent{{Type: EventPairingCode, Code: ""}}}
	m := newTestManager(store, &fakeFactory{client: client})

	_, err := m.InitializeSession(context.Background(), "admin-1")
	if err == nil {
		t.Fatal("initialization succeeded with an unrenderable pairing code")
	}
	var cerr *ClientError
	if !errors.As(err, &cerr) {
		t.Fatalf("error = %v, want *ClientError", err)
	}
	if rec := store.record("admin-1"); rec != nil {
		t.Errorf("record written for a failed pairing: %+v", rec)
	}
	waitDisconnected(t, client)
}

func TestRestoreSession(t *testing.T) {
	store := newFakeStore()
	_ = store.SaveConnected(context.Background(), "admin-1", "5511999999999")

	client := &fakeClient{script: []ClientEvent{{Type: EventReady, Phone: "5511999999999"}}}
	m := newTestManager(store, &fakeFactory{client: client})

	qr, err := m.RestoreSession(context.Background(), "admin-1")
	if err != nil {
		t.Fatalf("RestoreSession: %v", err)
	}
	if qr != "" {
		t.Errorf("restore with valid credentials returned a QR: %.20q", qr)
	}

	info, err := m.GetStatus(context.Background(), "admin-1")
	if err != nil {
		t.Fatalf("GetStatus: %v", err)
	}
	if !info.Connected {
		t.Error("session not live after restore")
	}
}

func TestRestoreSessionInvalidatedCredentials(t *testing.T) {
	store := newFakeStore()
	_ = store.SaveConnected(context.Background(), "admin-1", "5511999999999")

	// Network rejected the stored credentials, so a fresh pairing code comes
	// back instead of a ready event.
	client := &fakeClient{script: []ClientEvent{{Type: EventPairingCode, Code: "pair-code"}}}
	m := newTestManager(store, &fakeFactory{client: client})

	qr, err := m.RestoreSession(context.Background(), "admin-1")
	if err != nil {
		t.Fatalf("RestoreSession: %v", err)
	}
	if !strings.HasPrefix(qr, "data:image/png;base64,") {
		t.Errorf("expected a fresh QR data URI, got %.40q", qr)
	}
}

func TestRestoreSessionNothingToRestore(t *testing.T) {
	store := newFakeStore()
	m := newTestManager(store, &fakeFactory{client: &fakeClient{}})

	if _, err := m.RestoreSession(context.Background(), "admin-1"); !errors.Is(err, ErrNothingToRestore) {
		t.Errorf("no record: error = %v, want ErrNothingToRestore", err)
	}

	_ = store.SaveStatus(context.Background(), "admin-1", models.StatusDisconnected)
	if _, err := m.RestoreSession(context.Background(), "admin-1"); !errors.Is(err, ErrNothingToRestore) {
		t.Errorf("disconnected record: error = %v, want ErrNothingToRestore", err)
	}
}

func TestStartRestoresConnectedAdmins(t *testing.T) {
	store := newFakeStore()
	_ = store.SaveConnected(context.Background(), "admin-1", "5511999999999")

	client := &fakeClient{script: []ClientEvent{{Type: EventReady, Phone: "5511999999999"}}}
	m := newTestManager(store, &fakeFactory{client: client})

	if err := m.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer m.Stop()

	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		info, err := m.GetStatus(context.Background(), "admin-1")
		if err != nil {
			t.Fatalf("GetStatus: %v", err)
		}
		if info.Connected {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("session not restored within the deadline")
}

func TestReconcileRetriesFailedWrite(t *testing.T) {
	store := newFakeStore()
	client := &fakeClient{}
	m := newTestManager(store, &fakeFactory{client: client})
	connectAdmin(t, m, client, "admin-1", "5511999999999")

	store.setFailure(errors.New("database gone"))
	client.emit(ClientEvent{Type: EventAuthFailed, Reason: "revoked"})

	// The handle is gone but the record still says connected.
	if rec := store.record("admin-1"); rec == nil || rec.Status != models.StatusConnected {
		t.Fatalf("record = %+v, want the stale connected row", rec)
	}

	store.setFailure(nil)
	m.reconcile(context.Background())

	rec := store.record("admin-1")
	if rec == nil || rec.Status != models.StatusAuthFailed {
		t.Fatalf("record after reconcile = %+v, want auth_failed", rec)
	}
}

func TestAdminIsolation(t *testing.T) {
	store := newFakeStore()
	clientA := &fakeClient{}
	clientB := &fakeClient{}
	factoryA := &fakeFactory{client: clientA}
	factoryB := &fakeFactory{client: clientB}

	// Two managers sharing one store would be two processes; isolation within
	// one process is the interesting case, so route per-admin clients through
	// a switching factory.
	m := newTestManager(store, clientSwitch{"admin-a": factoryA, "admin-b": factoryB})
	connectAdmin(t, m, clientA, "admin-a", "15550000001")
	connectAdmin(t, m, clientB, "admin-b", "15550000002")

	clientA.emit(ClientEvent{Type: EventDisconnected})

	if _, err := m.GetChats(context.Background(), "admin-a"); !errors.Is(err, ErrSessionNotReady) {
		t.Errorf("admin-a should be down, got %v", err)
	}
	info, err := m.GetStatus(context.Background(), "admin-b")
	if err != nil {
		t.Fatalf("GetStatus admin-b: %v", err)
	}
	if !info.Connected {
		t.Error("admin-b dropped by admin-a's disconnect")
	}
}

type clientSwitch map[string]*fakeFactory

func (s clientSwitch) NewClient(ctx context.Context, adminID string) (Client, error) {
	f, ok := s[adminID]
	if !ok {
		return nil, fmt.Errorf("no client configured for %s", adminID)
	}
	return f.NewClient(ctx, adminID)
}
