package database

import (
	"context"
	"database/sql"
	"fmt"

	"nobat/internal/models"
)

// ListBookedSlots returns every timeslot value currently held in the
// ledger, for filtering the availability grid.
func (db *DB) ListBookedSlots(ctx context.Context) (map[string]struct{}, error) {
	rows, err := db.QueryContext(ctx, `SELECT timeslot FROM appointments`)
	if err != nil {
		return nil, fmt.Errorf("failed to list booked slots: %w", err)
	}
	defer rows.Close()

	booked := make(map[string]struct{})
	for rows.Next() {
		var ts string
		if err := rows.Scan(&ts); err != nil {
			return nil, fmt.Errorf("failed to scan timeslot: %w", err)
		}
		booked[ts] = struct{}{}
	}
	return booked, rows.Err()
}

// InsertAppointment records a single booking. Returns ErrSlotTaken when
// the timeslot is already held.
func (db *DB) InsertAppointment(ctx context.Context, appt *models.Appointment) error {
	res, err := db.ExecContext(ctx,
		`INSERT INTO appointments (timeslot, phone_number, invoice_id, payment_trans_id)
         VALUES (?, ?, ?, ?)`,
		appt.Timeslot, appt.PhoneNumber, nullable(appt.InvoiceID), nullable(appt.PaymentTransID))
	if err != nil {
		if isUniqueViolation(err) {
			return ErrSlotTaken
		}
		return fmt.Errorf("failed to insert appointment: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get appointment id: %w", err)
	}
	appt.ID = id

	db.log.Info().Str("timeslot", appt.Timeslot).Int64("id", id).Msg("appointment recorded")
	return nil
}

// InsertAppointments records a batch of bookings in one transaction.
// Slots that are already held are skipped and reported in taken; the
// remaining inserts still commit. Each booked appointment comes back
// with its assigned id.
func (db *DB) InsertAppointments(ctx context.Context, phone, invoiceID, transID string, timeslots []string) (booked []models.Appointment, taken []string, err error) {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO appointments (timeslot, phone_number, invoice_id, payment_trans_id)
         VALUES (?, ?, ?, ?)`)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to prepare insert: %w", err)
	}
	defer stmt.Close()

	for _, ts := range timeslots {
		res, execErr := stmt.ExecContext(ctx, ts, phone, nullable(invoiceID), nullable(transID))
		if execErr != nil {
			if isUniqueViolation(execErr) {
				taken = append(taken, ts)
				continue
			}
			err = fmt.Errorf("failed to insert appointment %s: %w", ts, execErr)
			return nil, nil, err
		}
		id, idErr := res.LastInsertId()
		if idErr != nil {
			err = fmt.Errorf("failed to get appointment id: %w", idErr)
			return nil, nil, err
		}
		booked = append(booked, models.Appointment{
			ID:             id,
			Timeslot:       ts,
			PhoneNumber:    phone,
			InvoiceID:      invoiceID,
			PaymentTransID: transID,
		})
	}

	if err = tx.Commit(); err != nil {
		return nil, nil, fmt.Errorf("failed to commit bookings: %w", err)
	}

	db.log.Info().
		Int("booked", len(booked)).
		Int("taken", len(taken)).
		Str("phone", phone).
		Msg("batch booking committed")
	return booked, taken, nil
}

// ListForPhone returns every timeslot booked under the phone number, in
// chronological order of the slot value.
func (db *DB) ListForPhone(ctx context.Context, phone string) ([]string, error) {
	rows, err := db.QueryContext(ctx,
		`SELECT timeslot FROM appointments WHERE phone_number = ? ORDER BY timeslot`, phone)
	if err != nil {
		return nil, fmt.Errorf("failed to list appointments for phone: %w", err)
	}
	defer rows.Close()

	var slots []string
	for rows.Next() {
		var ts string
		if err := rows.Scan(&ts); err != nil {
			return nil, fmt.Errorf("failed to scan timeslot: %w", err)
		}
		slots = append(slots, ts)
	}
	return slots, rows.Err()
}

// ListRange returns full appointment rows whose timeslot falls within
// [from, to], ordered by slot. Bounds use the slot string format, which
// sorts chronologically.
func (db *DB) ListRange(ctx context.Context, from, to string) ([]models.Appointment, error) {
	rows, err := db.QueryContext(ctx,
		`SELECT id, timeslot, phone_number,
                COALESCE(invoice_id, ''), COALESCE(payment_trans_id, ''), created_at
         FROM appointments
         WHERE timeslot >= ? AND timeslot <= ?
         ORDER BY timeslot`, from, to)
	if err != nil {
		return nil, fmt.Errorf("failed to list appointments in range: %w", err)
	}
	defer rows.Close()

	var appts []models.Appointment
	for rows.Next() {
		var a models.Appointment
		if err := rows.Scan(&a.ID, &a.Timeslot, &a.PhoneNumber, &a.InvoiceID, &a.PaymentTransID, &a.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan appointment: %w", err)
		}
		appts = append(appts, a)
	}
	return appts, rows.Err()
}

func nullable(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
