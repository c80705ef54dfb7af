package models

import "time"

// PendingBooking bridges the payment create call and the gateway callback.
// It is consumed exactly once by the verify step; the only case where it
// survives verification is an ambiguous transport failure, kept on purpose
// so support can reconcile by invoice id.
type PendingBooking struct {
	Timeslots []string  `json:"timeslots"`
	Phone     string    `json:"phone"`
	Amount    int64     `json:"amount"`
	InvoiceID string    `json:"invoice_id"`
	TransID   string    `json:"trans_id"`
	CreatedAt time.Time `json:"created_at"`
}

// SessionState is the server-side state behind a session token cookie.
// Stored with a TTL; never holds anything durable.
type SessionState struct {
	Token           string          `json:"token"`
	Phone           string          `json:"phone,omitempty"`
	Pending         *PendingBooking `json:"pending,omitempty"`
	LastBookedSlots []string        `json:"last_booked_slots,omitempty"`
	LastBookedPhone string          `json:"last_booked_phone,omitempty"`
}
