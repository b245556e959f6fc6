package whatsapp

import (
	"context"
	"errors"
	"sync"
	"time"

	"whatsapp-connector/internal/config"
	"whatsapp-connector/internal/models"
	"whatsapp-connector/internal/repositories"
	"whatsapp-connector/pkg/logger"
)

// ConnectionStore persists connection records keyed by administrator
type ConnectionStore interface {
	Get(ctx context.Context, adminID string) (*models.WhatsAppConnection, error)
	SaveWaitingQR(ctx context.Context, adminID, qrCode string) error
	SaveConnected(ctx context.Context, adminID, phoneNumber string) error
	SaveStatus(ctx context.Context, adminID string, status models.ConnectionStatus) error
	ListConnectedAdmins(ctx context.Context) ([]string, error)
}

// Notifier pushes lifecycle notifications to connected frontends
type Notifier interface {
	Publish(adminID, event string, data interface{})
}

// InitResult is the outcome of an initialize or restore call
type InitResult struct {
	Status      models.ConnectionStatus `json:"status"`
	QRCode      string                  `json:"qr_code,omitempty"`
	PhoneNumber string                  `json:"phone_number,omitempty"`
}

// StatusInfo is the merged live-plus-persisted connection view
type StatusInfo struct {
	Connected      bool                    `json:"connected"`
	Status         models.ConnectionStatus `json:"status"`
	PhoneNumber    string                  `json:"phone_number,omitempty"`
	QRCode         string                  `json:"qr_code,omitempty"`
	LastConnection *time.Time              `json:"last_connection,omitempty"`
}

// pairingWait is the shared result of one in-flight pairing handshake.
// Concurrent initialize calls for the same admin all wait on the same done
// channel; the close provides the happens-before for the result fields.
type pairingWait struct {
	done      chan struct{}
	qr        string
	connected bool
	phone     string
	err       error
}

// session is one administrator's live handle
type session struct {
	adminID string

	mu      sync.Mutex
	client  Client
	state   State
	phone   string
	qrCode  string
	pairing *pairingWait
	dirty   bool
}

// SessionManager owns the registry of live sessions and drives the pairing
// handshake, lifecycle event routing, and the operations facade. All state
// shared across goroutines sits behind the registry mutex or a per-session
// mutex.
type SessionManager struct {
	cfg      *config.Config
	store    ConnectionStore
	factory  ClientFactory
	qr       *QRGenerator
	notifier Notifier
	logger   *logger.Logger

	mu       sync.RWMutex
	sessions map[string]*session
	pending  map[string]models.ConnectionStatus

	done     chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// NewSessionManager creates a session manager with its collaborators injected
func NewSessionManager(cfg *config.Config, store ConnectionStore, factory ClientFactory, notifier Notifier, log *logger.Logger) *SessionManager {
	return &SessionManager{
		cfg:      cfg,
		store:    store,
		factory:  factory,
		qr:       NewQRGenerator(cfg),
		notifier: notifier,
		logger:   log,
		sessions: make(map[string]*session),
		pending:  make(map[string]models.ConnectionStatus),
		done:     make(chan struct{}),
	}
}

// Start restores previously connected sessions and launches the store
// reconciliation loop. Restores run in the background so startup is not
// gated on the pairing timeout.
func (m *SessionManager) Start(ctx context.Context) error {
	var admins []string
	if m.cfg.WhatsApp.AutoReconnect {
		var err error
		admins, err = m.store.ListConnectedAdmins(ctx)
		if err != nil {
			return err
		}
	}

	for _, adminID := range admins {
		adminID := adminID
		m.wg.Add(1)
		go func() {
			defer m.wg.Done()
			if _, err := m.RestoreSession(context.Background(), adminID); err != nil {
				m.logger.Warn("Could not restore session for admin %s: %v", adminID, err)
			}
		}()
	}

	m.wg.Add(1)
	go m.reconcileLoop()

	return nil
}

// Stop disconnects every live session and halts background work
func (m *SessionManager) Stop() {
	m.stopOnce.Do(func() {
		close(m.done)
	})
	m.wg.Wait()

	m.mu.Lock()
	sessions := m.sessions
	m.sessions = make(map[string]*session)
	m.mu.Unlock()

	for _, s := range sessions {
		s.mu.Lock()
		client := s.client
		s.mu.Unlock()
		if client != nil {
			client.Disconnect()
		}
	}
}

// InitializeSession starts (or joins) the pairing handshake for an admin.
// Already-connected sessions return immediately; an in-flight handshake is
// joined rather than duplicated, so concurrent calls share one client.
func (m *SessionManager) InitializeSession(ctx context.Context, adminID string) (*InitResult, error) {
	var staleClient Client

	m.mu.Lock()
	if s, ok := m.sessions[adminID]; ok {
		s.mu.Lock()
		switch {
		case s.state == StateConnected:
			phone := s.phone
			s.mu.Unlock()
			m.mu.Unlock()
			return &InitResult{Status: models.StatusConnected, PhoneNumber: phone}, nil
		case s.pairing != nil:
			p := s.pairing
			s.mu.Unlock()
			m.mu.Unlock()
			return m.waitPairing(ctx, adminID, p)
		case s.state == StateWaitingQR && s.qrCode != "":
			qr := s.qrCode
			s.mu.Unlock()
			m.mu.Unlock()
			return &InitResult{Status: models.StatusWaitingQR, QRCode: qr}, nil
		default:
			// Stale handle from a failed or torn-down session. Replace it,
			// tearing its client down once the registry lock is released.
			staleClient = s.client
			s.mu.Unlock()
			delete(m.sessions, adminID)
		}
	}

	s := &session{adminID: adminID, state: StateUninitialized}
	p := &pairingWait{done: make(chan struct{})}
	s.pairing = p
	m.sessions[adminID] = s
	m.mu.Unlock()

	if staleClient != nil {
		staleClient.Disconnect()
	}

	go m.pair(adminID, s, p)

	return m.waitPairing(ctx, adminID, p)
}

// pair builds the client and connects. All progress beyond this point is
// delivered through routeEvent.
func (m *SessionManager) pair(adminID string, s *session, p *pairingWait) {
	client, err := m.factory.NewClient(context.Background(), adminID)
	if err != nil {
		m.failPairing(adminID, s, p, &ClientError{AdminID: adminID, Op: "create", Err: err})
		return
	}

	client.SetEventHandler(func(evt ClientEvent) {
		m.routeEvent(adminID, evt)
	})

	s.mu.Lock()
	s.client = client
	s.mu.Unlock()

	if err := client.Connect(); err != nil {
		m.failPairing(adminID, s, p, &ClientError{AdminID: adminID, Op: "connect", Err: err})
	}
}

// waitPairing blocks until the handshake resolves, the pairing timeout
// elapses, or the caller's context is cancelled
func (m *SessionManager) waitPairing(ctx context.Context, adminID string, p *pairingWait) (*InitResult, error) {
	timer := time.NewTimer(m.cfg.WhatsApp.QRTimeout)
	defer timer.Stop()

	select {
	case <-p.done:
		if p.err != nil {
			return nil, p.err
		}
		if p.connected {
			return &InitResult{Status: models.StatusConnected, PhoneNumber: p.phone}, nil
		}
		return &InitResult{Status: models.StatusWaitingQR, QRCode: p.qr}, nil
	case <-timer.C:
		m.timeoutPairing(adminID, p)
		return nil, ErrPairingTimeout
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// timeoutPairing tears down a handshake that produced nothing before the
// deadline. Only the first waiter to act performs the teardown; the
// connection record is left untouched so a retry starts clean.
func (m *SessionManager) timeoutPairing(adminID string, p *pairingWait) {
	m.mu.Lock()
	s := m.sessions[adminID]
	if s == nil {
		m.mu.Unlock()
		return
	}

	s.mu.Lock()
	if s.pairing != p {
		s.mu.Unlock()
		m.mu.Unlock()
		return
	}
	s.pairing = nil
	p.err = ErrPairingTimeout
	close(p.done)
	client := s.client
	s.mu.Unlock()

	delete(m.sessions, adminID)
	m.mu.Unlock()

	if client != nil {
		client.Disconnect()
	}

	m.logger.Warn("Pairing timed out for admin %s after %s", adminID, m.cfg.WhatsApp.QRTimeout)
}

// failPairing resolves a handshake with an error before any lifecycle event
// arrived, then drops the dead handle
func (m *SessionManager) failPairing(adminID string, s *session, p *pairingWait, err error) {
	s.mu.Lock()
	if s.pairing == p {
		s.pairing = nil
		p.err = err
		close(p.done)
	}
	s.mu.Unlock()

	m.removeSession(adminID, s)
	m.logger.Error("Pairing failed for admin %s: %v", adminID, err)
}

// removeSession deletes the handle from the registry if it is still the
// registered one
func (m *SessionManager) removeSession(adminID string, s *session) {
	m.mu.Lock()
	if m.sessions[adminID] == s {
		delete(m.sessions, adminID)
	}
	m.mu.Unlock()
}

// routeEvent applies one lifecycle event to the state machine and, on an
// accepted transition, writes the registry and the store together. Events
// for admins with no registered handle are dropped.
func (m *SessionManager) routeEvent(adminID string, evt ClientEvent) {
	m.mu.RLock()
	s := m.sessions[adminID]
	m.mu.RUnlock()
	if s == nil {
		return
	}

	ctx := context.Background()

	s.mu.Lock()
	next, ok := apply(s.state, evt.Type)
	if !ok {
		if evt.Type == EventAuthenticated {
			m.logger.Info("Admin %s authenticated with the network", adminID)
		} else {
			m.logger.Debug("Ignoring %s event for admin %s in state %s", evt.Type, adminID, s.state)
		}
		s.mu.Unlock()
		return
	}
	s.state = next

	var persistErr error
	var notifyEvent string
	var notifyData interface{}
	remove := false

	switch evt.Type {
	case EventPairingCode:
		uri, err := m.qr.DataURI(evt.Code)
		if err != nil {
			// A pairing nobody can scan is a failed pairing. Fail the waiters
			// and tear the session down so a retry starts clean.
			m.logger.Error("Could not render QR code for admin %s: %v", adminID, err)
			if s.pairing != nil {
				p := s.pairing
				s.pairing = nil
				p.err = &ClientError{AdminID: adminID, Op: "render qr", Err: err}
				close(p.done)
			}
			client := s.client
			s.mu.Unlock()
			m.removeSession(adminID, s)
			if client != nil {
				go client.Disconnect()
			}
			return
		}
		s.qrCode = uri
		s.phone = ""
		persistErr = m.store.SaveWaitingQR(ctx, adminID, uri)
		if s.pairing != nil {
			p := s.pairing
			s.pairing = nil
			p.qr = uri
			close(p.done)
		}
		notifyEvent = "qr"
		notifyData = map[string]string{"qr_code": uri}

	case EventReady:
		s.phone = evt.Phone
		s.qrCode = ""
		persistErr = m.store.SaveConnected(ctx, adminID, evt.Phone)
		if s.pairing != nil {
			p := s.pairing
			s.pairing = nil
			p.connected = true
			p.phone = evt.Phone
			close(p.done)
		}
		notifyEvent = "connected"
		notifyData = map[string]string{"phone_number": evt.Phone}

	case EventAuthFailed:
		s.qrCode = ""
		s.phone = ""
		persistErr = m.store.SaveStatus(ctx, adminID, models.StatusAuthFailed)
		if s.pairing != nil {
			p := s.pairing
			s.pairing = nil
			p.err = &ClientError{AdminID: adminID, Op: "pairing", Err: errors.New("authentication rejected: " + evt.Reason)}
			close(p.done)
		}
		notifyEvent = "auth_failed"
		notifyData = map[string]string{"reason": evt.Reason}
		remove = true

	case EventDisconnected:
		s.qrCode = ""
		s.phone = ""
		persistErr = m.store.SaveStatus(ctx, adminID, models.StatusDisconnected)
		if s.pairing != nil {
			p := s.pairing
			s.pairing = nil
			p.err = &ClientError{AdminID: adminID, Op: "pairing", Err: errors.New("connection dropped before pairing completed")}
			close(p.done)
		}
		notifyEvent = "disconnected"
		remove = true
	}

	s.dirty = persistErr != nil
	finalStatus := s.state.Status()
	client := s.client
	s.mu.Unlock()

	if persistErr != nil {
		m.logger.Error("Store write failed for admin %s on %s: %v", adminID, evt.Type, persistErr)
	}

	if remove {
		m.removeSession(adminID, s)
		if persistErr != nil {
			// The handle is gone, so the retry has to live with the manager.
			m.mu.Lock()
			m.pending[adminID] = finalStatus
			m.mu.Unlock()
		}
		// Tear the client down off the event goroutine: Disconnect blocks on
		// the underlying read loop, which is what delivered this event.
		if client != nil {
			go client.Disconnect()
		}
	}

	m.logger.Info("Admin %s transitioned to %s on %s", adminID, finalStatus, evt.Type)
	m.notify(adminID, notifyEvent, notifyData)
}

func (m *SessionManager) notify(adminID, event string, data interface{}) {
	if m.notifier != nil && event != "" {
		m.notifier.Publish(adminID, event, data)
	}
}

// GetStatus reports the live session state when a handle exists, falling back
// to the persisted record for process-restart scenarios
func (m *SessionManager) GetStatus(ctx context.Context, adminID string) (*StatusInfo, error) {
	m.mu.RLock()
	s := m.sessions[adminID]
	m.mu.RUnlock()

	if s != nil {
		s.mu.Lock()
		info := &StatusInfo{
			Connected:   s.state == StateConnected,
			Status:      s.state.Status(),
			PhoneNumber: s.phone,
			QRCode:      s.qrCode,
		}
		s.mu.Unlock()

		if rec, err := m.store.Get(ctx, adminID); err == nil {
			info.LastConnection = rec.LastConnection
		}
		return info, nil
	}

	rec, err := m.store.Get(ctx, adminID)
	if err != nil {
		if errors.Is(err, repositories.ErrConnectionNotFound) {
			return &StatusInfo{Status: models.StatusNotInitialized}, nil
		}
		return nil, err
	}

	info := &StatusInfo{
		Status:         rec.Status,
		LastConnection: rec.LastConnection,
	}
	if rec.PhoneNumber != nil {
		info.PhoneNumber = *rec.PhoneNumber
	}
	return info, nil
}

// GetQRCode returns the cached QR for an admin mid-pairing. Absence is a
// normal state, not an error.
func (m *SessionManager) GetQRCode(adminID string) (string, bool) {
	m.mu.RLock()
	s := m.sessions[adminID]
	m.mu.RUnlock()
	if s == nil {
		return "", false
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateWaitingQR || s.qrCode == "" {
		return "", false
	}
	return s.qrCode, true
}

// Disconnect tears down the admin's session. The handle is removed and the
// store forced to disconnected even when no live session exists or the
// client teardown misbehaves.
func (m *SessionManager) Disconnect(ctx context.Context, adminID string) error {
	m.mu.Lock()
	s := m.sessions[adminID]
	delete(m.sessions, adminID)
	m.mu.Unlock()

	if s != nil {
		s.mu.Lock()
		if s.pairing != nil {
			p := s.pairing
			s.pairing = nil
			p.err = errors.New("pairing aborted: session disconnected")
			close(p.done)
		}
		s.state = StateDisconnected
		s.qrCode = ""
		s.phone = ""
		client := s.client
		s.mu.Unlock()

		if client != nil {
			client.Disconnect()
		}
	}

	if err := m.store.SaveStatus(ctx, adminID, models.StatusDisconnected); err != nil {
		m.mu.Lock()
		m.pending[adminID] = models.StatusDisconnected
		m.mu.Unlock()
		return err
	}

	m.notify(adminID, "disconnected", nil)
	return nil
}

// GetChats lists conversations for a ready session, capped to bound response
// size
func (m *SessionManager) GetChats(ctx context.Context, adminID string) ([]Chat, error) {
	client, err := m.readyClient(adminID)
	if err != nil {
		return nil, err
	}

	chats, err := client.ListChats(ctx)
	if err != nil {
		return nil, &ClientError{AdminID: adminID, Op: "list chats", Err: err}
	}

	if max := m.cfg.WhatsApp.ChatListLimit; max > 0 && len(chats) > max {
		chats = chats[:max]
	}
	return chats, nil
}

// GetContacts lists address-book entries for a ready session, capped
func (m *SessionManager) GetContacts(ctx context.Context, adminID string) ([]Contact, error) {
	client, err := m.readyClient(adminID)
	if err != nil {
		return nil, err
	}

	contacts, err := client.ListContacts(ctx)
	if err != nil {
		return nil, &ClientError{AdminID: adminID, Op: "list contacts", Err: err}
	}

	if max := m.cfg.WhatsApp.ContactListLimit; max > 0 && len(contacts) > max {
		contacts = contacts[:max]
	}
	return contacts, nil
}

// GetMessages returns recent messages for one chat
func (m *SessionManager) GetMessages(ctx context.Context, adminID, chatID string, limit int) ([]Message, error) {
	client, err := m.readyClient(adminID)
	if err != nil {
		return nil, err
	}

	if limit <= 0 || limit > m.cfg.WhatsApp.MessageCacheSize {
		limit = m.cfg.WhatsApp.MessageCacheSize
	}

	messages, err := client.GetMessages(ctx, chatID, limit)
	if err != nil {
		return nil, &ClientError{AdminID: adminID, Op: "get messages", Err: err}
	}
	return messages, nil
}

// SendMessage normalizes the recipient and sends a text message through the
// admin's ready session, returning the network message ID
func (m *SessionManager) SendMessage(ctx context.Context, adminID, phoneNumber, text string) (string, error) {
	client, err := m.readyClient(adminID)
	if err != nil {
		return "", err
	}

	recipient := NormalizeRecipient(phoneNumber)
	id, err := client.SendMessage(ctx, recipient, text)
	if err != nil {
		return "", &ClientError{AdminID: adminID, Op: "send message", Err: err}
	}
	return id, nil
}

// RestoreSession re-establishes a session whose last persisted status was
// connected. Persisted credentials usually reconnect without a new scan; if
// the network invalidated them, the fresh QR is returned for re-pairing.
func (m *SessionManager) RestoreSession(ctx context.Context, adminID string) (string, error) {
	rec, err := m.store.Get(ctx, adminID)
	if err != nil {
		if errors.Is(err, repositories.ErrConnectionNotFound) {
			return "", ErrNothingToRestore
		}
		return "", err
	}
	if rec.Status != models.StatusConnected {
		return "", ErrNothingToRestore
	}

	res, err := m.InitializeSession(ctx, adminID)
	if err != nil {
		return "", err
	}
	return res.QRCode, nil
}

// readyClient re-reads the handle immediately before use; not found or not
// ready is a hard failure for the caller
func (m *SessionManager) readyClient(adminID string) (Client, error) {
	m.mu.RLock()
	s := m.sessions[adminID]
	m.mu.RUnlock()
	if s == nil {
		return nil, ErrSessionNotReady
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateConnected || s.client == nil {
		return nil, ErrSessionNotReady
	}
	return s.client, nil
}

// reconcileLoop retries store writes that failed during event routing so the
// record eventually matches what the registry observed
func (m *SessionManager) reconcileLoop() {
	defer m.wg.Done()

	interval := m.cfg.WhatsApp.ReconcileInterval
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-m.done:
			return
		case <-ticker.C:
			m.reconcile(context.Background())
		}
	}
}

func (m *SessionManager) reconcile(ctx context.Context) {
	m.mu.RLock()
	sessions := make([]*session, 0, len(m.sessions))
	for _, s := range m.sessions {
		sessions = append(sessions, s)
	}
	pending := make(map[string]models.ConnectionStatus, len(m.pending))
	for adminID, status := range m.pending {
		pending[adminID] = status
	}
	m.mu.RUnlock()

	for _, s := range sessions {
		s.mu.Lock()
		if !s.dirty {
			s.mu.Unlock()
			continue
		}
		state := s.state
		phone := s.phone
		qr := s.qrCode
		s.mu.Unlock()

		var err error
		switch state {
		case StateConnected:
			err = m.store.SaveConnected(ctx, s.adminID, phone)
		case StateWaitingQR:
			err = m.store.SaveWaitingQR(ctx, s.adminID, qr)
		default:
			err = m.store.SaveStatus(ctx, s.adminID, state.Status())
		}
		if err != nil {
			m.logger.Warn("Reconciliation write still failing for admin %s: %v", s.adminID, err)
			continue
		}

		s.mu.Lock()
		if s.state == state {
			s.dirty = false
		}
		s.mu.Unlock()
		m.logger.Info("Reconciled connection record for admin %s to %s", s.adminID, state.Status())
	}

	for adminID, status := range pending {
		if err := m.store.SaveStatus(ctx, adminID, status); err != nil {
			m.logger.Warn("Reconciliation write still failing for admin %s: %v", adminID, err)
			continue
		}
		m.mu.Lock()
		if m.pending[adminID] == status {
			delete(m.pending, adminID)
		}
		m.mu.Unlock()
		m.logger.Info("Reconciled connection record for admin %s to %s", adminID, status)
	}
}
