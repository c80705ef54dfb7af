package domain

import (
	"context"
	"time"

	"nobat/internal/models"
)

// Ledger is the durable booking store.
type Ledger interface {
	ListBookedSlots(ctx context.Context) (map[string]struct{}, error)
	InsertAppointment(ctx context.Context, appt *models.Appointment) error
	InsertAppointments(ctx context.Context, phone, invoiceID, transID string, timeslots []string) (booked []models.Appointment, taken []string, err error)
	ListForPhone(ctx context.Context, phone string) ([]string, error)
	ListRange(ctx context.Context, from, to string) ([]models.Appointment, error)
}

// DeviceRegistry remembers which device cookie belongs to which phone.
type DeviceRegistry interface {
	UpsertBinding(ctx context.Context, phone, deviceID, userAgent, ip string) error
	GetBindingByDeviceID(ctx context.Context, deviceID string) (*models.DeviceBinding, error)
	GetBindingByPhone(ctx context.Context, phone string) (*models.DeviceBinding, error)
	TouchDeviceActivity(ctx context.Context, deviceID, ip string) error
}

// SessionRepository holds per-visitor session state keyed by session token.
type SessionRepository interface {
	GetSession(ctx context.Context, token string) (*models.SessionState, error)
	SetSession(ctx context.Context, state *models.SessionState) error
	ClearSession(ctx context.Context, token string) error
	CheckRateLimit(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
}

type EventPublisher interface {
	PublishJSON(eventType string, payload interface{}) error
}

// PaymentGateway is the external payment provider handshake.
type PaymentGateway interface {
	Create(ctx context.Context, req models.PaymentCreateRequest) (transID string, err error)
	RedirectURL(transID string) string
	Verify(ctx context.Context, amount int64, transID string) (models.PaymentVerifyResult, error)
}

// SheetsWriter mirrors appointments to an external spreadsheet.
type SheetsWriter interface {
	AppendAppointment(ctx context.Context, appt *models.Appointment) error
	TestConnection(ctx context.Context) error
}

// SyncEnqueuer accepts durable mirror tasks from the booking path.
type SyncEnqueuer interface {
	EnqueueAppointment(ctx context.Context, appt *models.Appointment) error
}
