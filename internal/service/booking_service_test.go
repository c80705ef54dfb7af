package service

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"nobat/internal/config"
	"nobat/internal/database"
	"nobat/internal/events"
	"nobat/internal/models"
	"nobat/internal/repository"
	"nobat/internal/schedule"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeGateway scripts the payment provider for tests.
type fakeGateway struct {
	createTransID string
	createErr     error
	verifyResult  models.PaymentVerifyResult
	verifyErr     error
	createCalls   int
	verifyCalls   int
}

func (g *fakeGateway) Create(_ context.Context, _ models.PaymentCreateRequest) (string, error) {
	g.createCalls++
	return g.createTransID, g.createErr
}

func (g *fakeGateway) RedirectURL(transID string) string {
	return "https://gw.example/pay/" + transID
}

func (g *fakeGateway) Verify(_ context.Context, _ int64, _ string) (models.PaymentVerifyResult, error) {
	g.verifyCalls++
	return g.verifyResult, g.verifyErr
}

type bookingFixture struct {
	svc      *BookingService
	db       *database.DB
	sessions *repository.MemorySessionRepository
	gateway  *fakeGateway
	bus      *events.EventBus
	now      time.Time
}

// newBookingFixture wires a service against a real in-memory ledger.
// The clock is pinned to a Monday morning before opening time.
func newBookingFixture(t *testing.T) *bookingFixture {
	t.Helper()

	logger := zerolog.Nop()
	db, err := database.NewDB(":memory:", &logger)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	grid, err := schedule.NewGrid(config.ScheduleConfig{
		Timezone:    "UTC",
		Open:        "10:00",
		Close:       "22:00",
		SlotMinutes: 45,
		HorizonDays: 7,
		RestDays:    []string{"Thursday", "Friday"},
	})
	require.NoError(t, err)

	sessions := repository.NewMemorySessionRepository(time.Hour)
	gateway := &fakeGateway{createTransID: "tok-1", verifyResult: models.PaymentVerifyResult{Captured: true, Code: 1}}
	bus := events.NewEventBus()

	svc := NewBookingService(db, sessions, gateway, bus, nil, grid, nil, 500000, "https://example.com/payment/verify", &logger)
	now := time.Date(2026, 8, 31, 9, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return now }

	return &bookingFixture{svc: svc, db: db, sessions: sessions, gateway: gateway, bus: bus, now: now}
}

func (f *bookingFixture) capture(eventType string) *[]events.BookingEventPayload {
	var got []events.BookingEventPayload
	f.bus.Subscribe(eventType, func(e *events.Event) error {
		var p events.BookingEventPayload
		if err := json.Unmarshal(e.Payload, &p); err != nil {
			return err
		}
		got = append(got, p)
		return nil
	})
	return &got
}

func TestBook_Direct(t *testing.T) {
	f := newBookingFixture(t)
	booked := f.capture(events.EventAppointmentBooked)
	ctx := context.Background()

	result, err := f.svc.Book(ctx, "5551234567", []string{"2026-08-31 10:00", "2026-08-31 10:45"})
	require.NoError(t, err)
	require.Len(t, result.Booked, 2)
	assert.Empty(t, result.Taken)

	slots, err := f.db.ListForPhone(ctx, "5551234567")
	require.NoError(t, err)
	assert.Equal(t, []string{"2026-08-31 10:00", "2026-08-31 10:45"}, slots)

	require.Len(t, *booked, 1)
	assert.Equal(t, "direct", (*booked)[0].Mode)
	assert.Equal(t, "5551234567", (*booked)[0].PhoneNumber)
}

func TestBook_Validation(t *testing.T) {
	f := newBookingFixture(t)
	ctx := context.Background()

	cases := []struct {
		name    string
		phone   string
		slots   []string
		wantErr error
	}{
		{"NoSlots", "5551234567", nil, ErrNoSlotsSelected},
		{"ShortPhone", "12345", []string{"2026-08-31 10:00"}, ErrInvalidPhone},
		{"NonDigitPhone", "555-123-4567", []string{"2026-08-31 10:00"}, ErrInvalidPhone},
		{"OffGridSlot", "5551234567", []string{"2026-08-31 10:20"}, ErrInvalidSlot},
		{"RestDaySlot", "5551234567", []string{"2026-09-03 10:00"}, ErrInvalidSlot},
		{"PastSlot", "5551234567", []string{"2026-08-24 10:00"}, ErrInvalidSlot},
		{"AfterCloseSlot", "5551234567", []string{"2026-08-31 22:00"}, ErrInvalidSlot},
		{"GarbageSlot", "5551234567", []string{"tomorrow at ten"}, ErrInvalidSlot},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := f.svc.Book(ctx, tc.phone, tc.slots)
			assert.ErrorIs(t, err, tc.wantErr)
		})
	}

	// Nothing leaked into the ledger
	bookedSlots, err := f.db.ListBookedSlots(ctx)
	require.NoError(t, err)
	assert.Empty(t, bookedSlots)
}

func TestBook_FullConflict(t *testing.T) {
	f := newBookingFixture(t)
	ctx := context.Background()

	_, err := f.svc.Book(ctx, "5551111111", []string{"2026-08-31 10:00"})
	require.NoError(t, err)

	result, err := f.svc.Book(ctx, "5552222222", []string{"2026-08-31 10:00"})
	var conflict *ConflictError
	require.ErrorAs(t, err, &conflict)
	assert.Equal(t, []string{"2026-08-31 10:00"}, conflict.Taken)
	assert.Empty(t, result.Booked)
}

func TestBook_PartialConflict(t *testing.T) {
	f := newBookingFixture(t)
	ctx := context.Background()

	_, err := f.svc.Book(ctx, "5551111111", []string{"2026-08-31 11:30"})
	require.NoError(t, err)

	result, err := f.svc.Book(ctx, "5552222222", []string{"2026-08-31 10:45", "2026-08-31 11:30"})
	require.NoError(t, err)
	require.Len(t, result.Booked, 1)
	assert.Equal(t, "2026-08-31 10:45", result.Booked[0].Timeslot)
	assert.Equal(t, []string{"2026-08-31 11:30"}, result.Taken)
}

func TestAvailableSlots_ExcludesBooked(t *testing.T) {
	f := newBookingFixture(t)
	ctx := context.Background()

	_, err := f.svc.Book(ctx, "5551234567", []string{"2026-08-31 10:00"})
	require.NoError(t, err)

	slots, err := f.svc.AvailableSlots(ctx)
	require.NoError(t, err)
	require.NotEmpty(t, slots)
	assert.NotEqual(t, "2026-08-31 10:00", slots[0].Value)
	assert.Equal(t, "2026-08-31 10:45", slots[0].Value)
}

func TestInitiatePayment(t *testing.T) {
	f := newBookingFixture(t)
	ctx := context.Background()

	session := &models.SessionState{Token: "tok-session"}
	url, err := f.svc.InitiatePayment(ctx, session, "5551234567", []string{"2026-08-31 10:00", "2026-08-31 10:45"})
	require.NoError(t, err)
	assert.Equal(t, "https://gw.example/pay/tok-1", url)

	require.NotNil(t, session.Pending)
	assert.Equal(t, int64(1000000), session.Pending.Amount)
	assert.Equal(t, "tok-1", session.Pending.TransID)
	assert.NotEmpty(t, session.Pending.InvoiceID)

	// The pending booking is persisted, not just in memory
	stored, err := f.sessions.GetSession(ctx, "tok-session")
	require.NoError(t, err)
	require.NotNil(t, stored.Pending)
	assert.Equal(t, session.Pending.InvoiceID, stored.Pending.InvoiceID)

	// No slots are held before the money clears
	bookedSlots, err := f.db.ListBookedSlots(ctx)
	require.NoError(t, err)
	assert.Empty(t, bookedSlots)
}

func TestInitiatePayment_GatewayDown(t *testing.T) {
	f := newBookingFixture(t)
	f.gateway.createErr = errors.New("connection refused")
	ctx := context.Background()

	session := &models.SessionState{Token: "tok-session"}
	_, err := f.svc.InitiatePayment(ctx, session, "5551234567", []string{"2026-08-31 10:00"})
	require.Error(t, err)
	assert.Nil(t, session.Pending)
}

func TestFinalizePayment_Captured(t *testing.T) {
	f := newBookingFixture(t)
	booked := f.capture(events.EventAppointmentBooked)
	ctx := context.Background()

	session := &models.SessionState{Token: "tok-session"}
	_, err := f.svc.InitiatePayment(ctx, session, "5551234567", []string{"2026-08-31 10:00"})
	require.NoError(t, err)
	invoiceID := session.Pending.InvoiceID

	result, err := f.svc.FinalizePayment(ctx, session, invoiceID, "tok-1")
	require.NoError(t, err)
	require.Len(t, result.Booked, 1)
	assert.Equal(t, invoiceID, result.Booked[0].InvoiceID)
	assert.Equal(t, "tok-1", result.Booked[0].PaymentTransID)
	assert.Nil(t, session.Pending)

	require.Len(t, *booked, 1)
	assert.Equal(t, "payment", (*booked)[0].Mode)
}

func TestFinalizePayment_Declined(t *testing.T) {
	f := newBookingFixture(t)
	failed := f.capture(events.EventPaymentFailed)
	f.gateway.verifyResult = models.PaymentVerifyResult{Captured: false, Code: -2, Message: "not paid"}
	ctx := context.Background()

	session := &models.SessionState{Token: "tok-session"}
	_, err := f.svc.InitiatePayment(ctx, session, "5551234567", []string{"2026-08-31 10:00"})
	require.NoError(t, err)

	_, err = f.svc.FinalizePayment(ctx, session, "", "")
	assert.ErrorIs(t, err, ErrPaymentDeclined)
	assert.Nil(t, session.Pending)

	// The slots were never recorded
	bookedSlots, err := f.db.ListBookedSlots(ctx)
	require.NoError(t, err)
	assert.Empty(t, bookedSlots)

	require.Len(t, *failed, 1)
	assert.Equal(t, "not paid", (*failed)[0].Reason)
}

func TestFinalizePayment_AmbiguousKeepsPending(t *testing.T) {
	f := newBookingFixture(t)
	ambiguous := f.capture(events.EventPaymentAmbiguous)
	f.gateway.verifyErr = errors.New("gateway timeout")
	ctx := context.Background()

	session := &models.SessionState{Token: "tok-session"}
	_, err := f.svc.InitiatePayment(ctx, session, "5551234567", []string{"2026-08-31 10:00"})
	require.NoError(t, err)

	_, err = f.svc.FinalizePayment(ctx, session, "", "")
	assert.ErrorIs(t, err, ErrPaymentAmbiguous)

	// The pending booking survives for a retry
	require.NotNil(t, session.Pending)
	require.Len(t, *ambiguous, 1)

	// A later successful verify still lands the booking
	f.gateway.verifyErr = nil
	result, err := f.svc.FinalizePayment(ctx, session, "", "")
	require.NoError(t, err)
	assert.Len(t, result.Booked, 1)
}

func TestFinalizePayment_OrphanedCapture(t *testing.T) {
	f := newBookingFixture(t)
	orphaned := f.capture(events.EventPaymentOrphaned)
	ctx := context.Background()

	session := &models.SessionState{Token: "tok-session"}
	_, err := f.svc.InitiatePayment(ctx, session, "5551234567", []string{"2026-08-31 10:00"})
	require.NoError(t, err)

	// Someone else wins the slot while the visitor is on the payment page
	_, err = f.svc.Book(ctx, "5559999999", []string{"2026-08-31 10:00"})
	require.NoError(t, err)

	_, err = f.svc.FinalizePayment(ctx, session, "", "")
	var conflict *ConflictError
	require.ErrorAs(t, err, &conflict)
	assert.Equal(t, []string{"2026-08-31 10:00"}, conflict.Taken)
	assert.Nil(t, session.Pending)

	require.Len(t, *orphaned, 1)
	assert.Equal(t, []string{"2026-08-31 10:00"}, (*orphaned)[0].Timeslots)
}

func TestInitiatePayment_TakenSlotAbortsWholeAttempt(t *testing.T) {
	f := newBookingFixture(t)
	ctx := context.Background()

	_, err := f.svc.Book(ctx, "5559999999", []string{"2026-08-31 10:00"})
	require.NoError(t, err)

	session := &models.SessionState{Token: "tok-session"}
	_, err = f.svc.InitiatePayment(ctx, session, "5551234567", []string{"2026-08-31 10:00", "2026-08-31 10:45"})

	var conflict *ConflictError
	require.ErrorAs(t, err, &conflict)
	assert.Equal(t, []string{"2026-08-31 10:00"}, conflict.Taken)
	assert.Equal(t, 0, f.gateway.createCalls)
	assert.Nil(t, session.Pending)
}

func TestFinalizePayment_InvoiceMismatch(t *testing.T) {
	f := newBookingFixture(t)
	ctx := context.Background()

	session := &models.SessionState{Token: "tok-session"}
	_, err := f.svc.InitiatePayment(ctx, session, "5551234567", []string{"2026-08-31 10:00"})
	require.NoError(t, err)

	_, err = f.svc.FinalizePayment(ctx, session, "someone-elses-invoice", "")
	assert.ErrorIs(t, err, ErrSessionExpired)
	assert.Equal(t, 0, f.gateway.verifyCalls)
}

func TestFinalizePayment_NoPending(t *testing.T) {
	f := newBookingFixture(t)

	session := &models.SessionState{Token: "tok-session"}
	_, err := f.svc.FinalizePayment(context.Background(), session, "", "")
	assert.ErrorIs(t, err, ErrSessionExpired)
	assert.Equal(t, 0, f.gateway.verifyCalls)
}

func TestAppointments_Statuses(t *testing.T) {
	f := newBookingFixture(t)
	ctx := context.Background()

	// Insert directly: past and ongoing slots can no longer go through Book
	for _, ts := range []string{"2026-08-24 10:00", "2026-08-31 10:00"} {
		require.NoError(t, f.db.InsertAppointment(ctx, &models.Appointment{
			Timeslot:    ts,
			PhoneNumber: "5551234567",
		}))
	}

	// Clock inside the 10:00 slot
	f.svc.now = func() time.Time { return time.Date(2026, 8, 31, 10, 20, 0, 0, time.UTC) }

	views, err := f.svc.Appointments(ctx, "5551234567")
	require.NoError(t, err)
	require.Len(t, views, 2)
	assert.Equal(t, models.StatusPassed, views[0].Status)
	assert.Equal(t, models.StatusOngoing, views[1].Status)
}

func TestValidatePhone(t *testing.T) {
	assert.NoError(t, ValidatePhone("1234567"))
	assert.NoError(t, ValidatePhone("123456789012345"))
	assert.ErrorIs(t, ValidatePhone("123456"), ErrInvalidPhone)
	assert.ErrorIs(t, ValidatePhone("1234567890123456"), ErrInvalidPhone)
	assert.ErrorIs(t, ValidatePhone("12345a7"), ErrInvalidPhone)
	assert.ErrorIs(t, ValidatePhone("+15551234567"), ErrInvalidPhone)
}
