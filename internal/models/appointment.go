package models

import "time"

// Appointment is a confirmed reservation of a single timeslot.
// Rows are insert-only; the UNIQUE timeslot column is the consistency guard.
type Appointment struct {
	ID             int64     `json:"id"`
	Timeslot       string    `json:"timeslot"`
	PhoneNumber    string    `json:"phone_number"`
	InvoiceID      string    `json:"invoice_id,omitempty"`
	PaymentTransID string    `json:"payment_trans_id,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
}

// AppointmentView is an appointment annotated with its derived status
// (passed, ongoing, future) for display. The status is never persisted.
type AppointmentView struct {
	Timeslot string `json:"timeslot"`
	Status   string `json:"status"`
}
