package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"nobat/internal/domain"
	"nobat/internal/events"
	"nobat/internal/metrics"
	"nobat/internal/models"
	"nobat/internal/schedule"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

var (
	ErrNoSlotsSelected  = errors.New("no timeslots selected")
	ErrInvalidPhone     = errors.New("phone number must be 7 to 15 digits")
	ErrInvalidSlot      = errors.New("timeslot is not on the booking grid")
	ErrSessionExpired   = errors.New("session expired")
	ErrPaymentDeclined  = errors.New("payment was not captured")
	ErrPaymentAmbiguous = errors.New("payment outcome unknown")
)

// ConflictError reports slots lost to other bookers. When it is the
// whole batch, nothing was recorded.
type ConflictError struct {
	Taken []string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("timeslots already taken: %v", e.Taken)
}

// BookResult is the outcome of a booking attempt. Booked and Taken can
// both be non-empty: winners commit even when part of the batch is lost.
type BookResult struct {
	Booked []models.Appointment
	Taken  []string
}

type BookingService struct {
	ledger    domain.Ledger
	sessions  domain.SessionRepository
	gateway   domain.PaymentGateway
	eventBus  domain.EventPublisher
	syncer    domain.SyncEnqueuer
	grid      schedule.Grid
	closures  map[string]struct{}
	slotPrice int64
	callback  string
	now       func() time.Time
	logger    *zerolog.Logger
}

func NewBookingService(
	ledger domain.Ledger,
	sessions domain.SessionRepository,
	gateway domain.PaymentGateway,
	eventBus domain.EventPublisher,
	syncer domain.SyncEnqueuer,
	grid schedule.Grid,
	closures map[string]struct{},
	slotPrice int64,
	callbackURL string,
	logger *zerolog.Logger,
) *BookingService {
	if closures == nil {
		closures = map[string]struct{}{}
	}
	return &BookingService{
		ledger:    ledger,
		sessions:  sessions,
		gateway:   gateway,
		eventBus:  eventBus,
		syncer:    syncer,
		grid:      grid,
		closures:  closures,
		slotPrice: slotPrice,
		callback:  callbackURL,
		now:       time.Now,
		logger:    logger,
	}
}

// SlotPrice is the price of one slot in the gateway's minor unit.
func (s *BookingService) SlotPrice() int64 { return s.slotPrice }

// AvailableSlots returns the bookable slots of the rolling window.
func (s *BookingService) AvailableSlots(ctx context.Context) ([]schedule.Slot, error) {
	booked, err := s.ledger.ListBookedSlots(ctx)
	if err != nil {
		return nil, err
	}
	return s.grid.Generate(s.now(), booked, s.closures), nil
}

// Book records the selected slots for the phone without payment.
// Winners commit even when part of the batch is lost; when every slot
// is lost the error is a ConflictError.
func (s *BookingService) Book(ctx context.Context, phone string, timeslots []string) (*BookResult, error) {
	if err := s.validateRequest(phone, timeslots); err != nil {
		return nil, err
	}

	return s.commit(ctx, phone, "", "", timeslots, models.ModeDirect)
}

// InitiatePayment opens a gateway transaction for the selected slots,
// parks them on the session and returns the hosted payment page URL.
func (s *BookingService) InitiatePayment(ctx context.Context, session *models.SessionState, phone string, timeslots []string) (string, error) {
	if err := s.validateRequest(phone, timeslots); err != nil {
		return "", err
	}

	// No partial payment for partial slots: the whole attempt aborts
	// when any selected slot is already taken.
	booked, err := s.ledger.ListBookedSlots(ctx)
	if err != nil {
		return "", err
	}
	var taken []string
	for _, ts := range timeslots {
		if _, exists := booked[ts]; exists {
			taken = append(taken, ts)
		}
	}
	if len(taken) > 0 {
		return "", &ConflictError{Taken: taken}
	}

	amount := s.slotPrice * int64(len(timeslots))
	invoiceID := uuid.NewString()

	transID, err := s.gateway.Create(ctx, models.PaymentCreateRequest{
		Amount:      amount,
		InvoiceID:   invoiceID,
		Phone:       phone,
		CallbackURL: s.callback,
		Description: fmt.Sprintf("%d slot(s)", len(timeslots)),
	})
	if err != nil {
		metrics.IncPaymentOp("create", "error")
		return "", err
	}
	metrics.IncPaymentOp("create", "ok")

	session.Pending = &models.PendingBooking{
		Timeslots: timeslots,
		Phone:     phone,
		Amount:    amount,
		InvoiceID: invoiceID,
		TransID:   transID,
		CreatedAt: s.now(),
	}
	if err := s.sessions.SetSession(ctx, session); err != nil {
		return "", fmt.Errorf("failed to park pending booking: %w", err)
	}

	s.logger.Info().
		Str("invoice_id", invoiceID).
		Int("slots", len(timeslots)).
		Int64("amount", amount).
		Msg("payment initiated")
	return s.gateway.RedirectURL(transID), nil
}

// FinalizePayment resolves the gateway callback for the session's
// pending booking. A captured charge books the parked slots; a decline
// drops them; an unresolved verify keeps the pending booking so the
// visitor can retry and support can reconcile by invoice id.
func (s *BookingService) FinalizePayment(ctx context.Context, session *models.SessionState, invoiceID, transID string) (*BookResult, error) {
	pending := session.Pending
	if pending == nil {
		return nil, ErrSessionExpired
	}
	if invoiceID != "" && invoiceID != pending.InvoiceID {
		return nil, ErrSessionExpired
	}
	if transID == "" {
		transID = pending.TransID
	}

	verify, err := s.gateway.Verify(ctx, pending.Amount, transID)
	if err != nil {
		metrics.IncPaymentOp("verify", "ambiguous")
		s.logger.Error().Err(err).Str("invoice_id", pending.InvoiceID).Msg("verify unresolved, pending booking retained")
		s.eventBus.PublishJSON(events.EventPaymentAmbiguous, events.BookingEventPayload{
			Timeslots:   pending.Timeslots,
			PhoneNumber: pending.Phone,
			InvoiceID:   pending.InvoiceID,
			TransID:     pending.TransID,
			Amount:      pending.Amount,
			Reason:      err.Error(),
		})
		return nil, fmt.Errorf("%w: %v", ErrPaymentAmbiguous, err)
	}

	if !verify.Captured {
		metrics.IncPaymentOp("verify", "declined")
		session.Pending = nil
		if err := s.sessions.SetSession(ctx, session); err != nil {
			s.logger.Error().Err(err).Msg("failed to drop declined pending booking")
		}
		s.eventBus.PublishJSON(events.EventPaymentFailed, events.BookingEventPayload{
			Timeslots:   pending.Timeslots,
			PhoneNumber: pending.Phone,
			InvoiceID:   pending.InvoiceID,
			TransID:     pending.TransID,
			Amount:      pending.Amount,
			Reason:      verify.Message,
		})
		return nil, ErrPaymentDeclined
	}
	metrics.IncPaymentOp("verify", "captured")

	session.Pending = nil
	if err := s.sessions.SetSession(ctx, session); err != nil {
		s.logger.Error().Err(err).Msg("failed to consume pending booking")
	}

	result, err := s.commit(ctx, pending.Phone, pending.InvoiceID, transID, pending.Timeslots, models.ModePayment)
	if result != nil && len(result.Taken) > 0 {
		// Money captured for slots we could not record.
		s.eventBus.PublishJSON(events.EventPaymentOrphaned, events.BookingEventPayload{
			Timeslots:   result.Taken,
			PhoneNumber: pending.Phone,
			InvoiceID:   pending.InvoiceID,
			TransID:     transID,
			Amount:      pending.Amount,
			Reason:      "captured payment lost the slot race",
		})
	}
	return result, err
}

// Appointments lists the phone's bookings with their progress status.
func (s *BookingService) Appointments(ctx context.Context, phone string) ([]models.AppointmentView, error) {
	if err := ValidatePhone(phone); err != nil {
		return nil, err
	}

	slots, err := s.ledger.ListForPhone(ctx, phone)
	if err != nil {
		return nil, err
	}

	now := s.now()
	views := make([]models.AppointmentView, 0, len(slots))
	for _, ts := range slots {
		start, err := schedule.ParseSlot(ts, s.grid.Location)
		if err != nil {
			s.logger.Warn().Str("timeslot", ts).Msg("unparseable timeslot in ledger")
			continue
		}
		views = append(views, models.AppointmentView{
			Timeslot: ts,
			Status:   schedule.Status(start, s.grid.Duration, now),
		})
	}
	return views, nil
}

func (s *BookingService) commit(ctx context.Context, phone, invoiceID, transID string, timeslots []string, mode string) (*BookResult, error) {
	booked, taken, err := s.ledger.InsertAppointments(ctx, phone, invoiceID, transID, timeslots)
	if err != nil {
		return nil, err
	}

	for range taken {
		metrics.IncBookingConflict()
	}
	if len(booked) == 0 {
		return &BookResult{Taken: taken}, &ConflictError{Taken: taken}
	}
	metrics.IncBookings(mode, len(booked))

	slots := make([]string, 0, len(booked))
	for i := range booked {
		slots = append(slots, booked[i].Timeslot)
		if s.syncer != nil {
			if err := s.syncer.EnqueueAppointment(ctx, &booked[i]); err != nil {
				s.logger.Error().Err(err).Str("timeslot", booked[i].Timeslot).Msg("failed to enqueue sheet sync")
			}
		}
	}

	s.eventBus.PublishJSON(events.EventAppointmentBooked, events.BookingEventPayload{
		Timeslots:   slots,
		PhoneNumber: phone,
		Mode:        mode,
		InvoiceID:   invoiceID,
		TransID:     transID,
	})

	return &BookResult{Booked: booked, Taken: taken}, nil
}

func (s *BookingService) validateRequest(phone string, timeslots []string) error {
	if len(timeslots) == 0 {
		return ErrNoSlotsSelected
	}
	if err := ValidatePhone(phone); err != nil {
		return err
	}

	now := s.now()
	for _, ts := range timeslots {
		start, err := schedule.ParseSlot(ts, s.grid.Location)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidSlot, err)
		}
		if !s.grid.InGrid(start) || !start.After(now) {
			return fmt.Errorf("%w: %s", ErrInvalidSlot, ts)
		}
		if _, closed := s.closures[start.Format("2006-01-02")]; closed {
			return fmt.Errorf("%w: %s", ErrInvalidSlot, ts)
		}
	}
	return nil
}

// ValidatePhone enforces the digits-only 7 to 15 character phone rule.
func ValidatePhone(phone string) error {
	if len(phone) < 7 || len(phone) > 15 {
		return ErrInvalidPhone
	}
	for _, r := range phone {
		if r < '0' || r > '9' {
			return ErrInvalidPhone
		}
	}
	return nil
}
