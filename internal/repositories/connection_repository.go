package repositories

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"whatsapp-connector/internal/models"
)

// ErrConnectionNotFound is returned when no connection record exists for an admin
var ErrConnectionNotFound = errors.New("connection record not found")

// ConnectionRepository handles database operations for WhatsApp connection records
type ConnectionRepository struct {
	db *gorm.DB
}

// NewConnectionRepository creates a new connection repository
func NewConnectionRepository(db *gorm.DB) *ConnectionRepository {
	return &ConnectionRepository{
		db: db,
	}
}

// Get retrieves the connection record for an administrator
func (r *ConnectionRepository) Get(ctx context.Context, adminID string) (*models.WhatsAppConnection, error) {
	var conn models.WhatsAppConnection
	err := r.db.WithContext(ctx).
		Where("admin_user_id = ?", adminID).
		First(&conn).Error

	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrConnectionNotFound
		}
		return nil, fmt.Errorf("failed to read connection record: %w", err)
	}

	return &conn, nil
}

// SaveWaitingQR upserts the record with a freshly issued pairing code
func (r *ConnectionRepository) SaveWaitingQR(ctx context.Context, adminID, qrCode string) error {
	conn := &models.WhatsAppConnection{AdminUserID: adminID}
	conn.SetWaitingQR(qrCode)
	return r.upsert(ctx, conn, false)
}

// SaveConnected upserts the record as connected with the resolved phone number
func (r *ConnectionRepository) SaveConnected(ctx context.Context, adminID, phoneNumber string) error {
	conn := &models.WhatsAppConnection{AdminUserID: adminID}
	conn.SetConnected(phoneNumber)
	return r.upsert(ctx, conn, true)
}

// SaveStatus upserts the record with a bare status transition. The QR code
// and phone number columns are cleared, per the record invariants.
func (r *ConnectionRepository) SaveStatus(ctx context.Context, adminID string, status models.ConnectionStatus) error {
	if !status.IsValid() {
		return fmt.Errorf("invalid connection status %q", status)
	}
	conn := &models.WhatsAppConnection{AdminUserID: adminID, Status: status}
	return r.upsert(ctx, conn, false)
}

// ListConnectedAdmins returns the administrators whose last observed state
// was an open session. Used by the restore-on-restart sweep.
func (r *ConnectionRepository) ListConnectedAdmins(ctx context.Context) ([]string, error) {
	var adminIDs []string
	err := r.db.WithContext(ctx).
		Model(&models.WhatsAppConnection{}).
		Where("status = ?", models.StatusConnected).
		Pluck("admin_user_id", &adminIDs).Error

	if err != nil {
		return nil, fmt.Errorf("failed to list connected admins: %w", err)
	}

	return adminIDs, nil
}

// upsert writes the record keyed by admin_user_id. A single statement, so the
// native atomicity of ON CONFLICT covers all callers. last_connection is only
// touched on transitions into connected so the last successful connect
// timestamp survives disconnects.
func (r *ConnectionRepository) upsert(ctx context.Context, conn *models.WhatsAppConnection, touchLastConnection bool) error {
	columns := []string{"status", "phone_number", "qr_code", "updated_at"}
	if touchLastConnection {
		columns = append(columns, "last_connection")
	}

	err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "admin_user_id"}},
			DoUpdates: clause.AssignmentColumns(columns),
		}).
		Create(conn).Error

	if err != nil {
		return fmt.Errorf("failed to upsert connection record: %w", err)
	}

	return nil
}
