package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"nobat/internal/models"
)

// UpsertBinding records that deviceID logged in as phone. Both sides
// are unique, so first any stale row holding the same device under a
// different phone, or the same phone under a different device, is
// evicted inside the transaction, then the fresh binding is written.
func (db *DB) UpsertBinding(ctx context.Context, phone, deviceID, userAgent, ip string) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM user_devices WHERE device_id = ? AND phone_number <> ?`, deviceID, phone); err != nil {
		return fmt.Errorf("failed to evict stale device binding: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		`DELETE FROM user_devices WHERE phone_number = ? AND device_id <> ?`, phone, deviceID); err != nil {
		return fmt.Errorf("failed to evict stale phone binding: %w", err)
	}

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO user_devices (phone_number, device_id, user_agent, last_login_ip, last_activity_time)
         VALUES (?, ?, ?, NULLIF(?, ''), CURRENT_TIMESTAMP)
         ON CONFLICT(phone_number) DO UPDATE SET
             device_id = excluded.device_id,
             user_agent = excluded.user_agent,
             last_login_ip = COALESCE(excluded.last_login_ip, user_devices.last_login_ip),
             last_activity_time = CURRENT_TIMESTAMP`,
		phone, deviceID, userAgent, ip); err != nil {
		return fmt.Errorf("failed to upsert device binding: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit device binding: %w", err)
	}

	db.log.Debug().Str("device_id", deviceID).Msg("device binding updated")
	return nil
}

// GetBindingByDeviceID resolves the phone bound to a device cookie.
// Returns ErrBindingNotFound for unknown devices.
func (db *DB) GetBindingByDeviceID(ctx context.Context, deviceID string) (*models.DeviceBinding, error) {
	return db.getBinding(ctx, `device_id = ?`, deviceID)
}

// GetBindingByPhone resolves the device currently bound to a phone.
func (db *DB) GetBindingByPhone(ctx context.Context, phone string) (*models.DeviceBinding, error) {
	return db.getBinding(ctx, `phone_number = ?`, phone)
}

func (db *DB) getBinding(ctx context.Context, where string, arg string) (*models.DeviceBinding, error) {
	var b models.DeviceBinding
	err := db.QueryRowContext(ctx,
		`SELECT id, phone_number, device_id, COALESCE(user_agent, ''), COALESCE(last_login_ip, ''), last_activity_time
         FROM user_devices WHERE `+where, arg).
		Scan(&b.ID, &b.PhoneNumber, &b.DeviceID, &b.UserAgent, &b.LastLoginIP, &b.LastActivityTime)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrBindingNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query device binding: %w", err)
	}
	return &b, nil
}

// TouchDeviceActivity bumps the binding's last activity time and, when
// the caller knows it, the login IP. A miss is not an error; the
// binding may have been evicted by another login.
func (db *DB) TouchDeviceActivity(ctx context.Context, deviceID, ip string) error {
	_, err := db.ExecContext(ctx,
		`UPDATE user_devices SET
             last_activity_time = CURRENT_TIMESTAMP,
             last_login_ip = COALESCE(NULLIF(?, ''), last_login_ip)
         WHERE device_id = ?`, ip, deviceID)
	if err != nil {
		return fmt.Errorf("failed to touch device activity: %w", err)
	}
	return nil
}
