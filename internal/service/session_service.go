package service

import (
	"context"
	"errors"
	"time"

	"nobat/internal/database"
	"nobat/internal/domain"
	"nobat/internal/models"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// ErrNoConfirmation means the one-shot confirmation was already shown
// or never existed for this session.
var ErrNoConfirmation = errors.New("no booking confirmation to show")

// SessionService manages visitor identity: the session token cookie,
// the long-lived device cookie and the phone bound to it.
type SessionService struct {
	sessions domain.SessionRepository
	devices  domain.DeviceRegistry
	logger   *zerolog.Logger
}

func NewSessionService(sessions domain.SessionRepository, devices domain.DeviceRegistry, logger *zerolog.Logger) *SessionService {
	return &SessionService{
		sessions: sessions,
		devices:  devices,
		logger:   logger,
	}
}

// Resolve returns the session for the token, minting a fresh one when
// the token is absent or expired. A fresh session auto-logs-in from the
// device cookie when the device is still bound to a phone, refreshing
// the binding's last activity and login IP.
func (s *SessionService) Resolve(ctx context.Context, token, deviceID, ip string) (*models.SessionState, error) {
	if token != "" {
		state, err := s.sessions.GetSession(ctx, token)
		if err != nil {
			return nil, err
		}
		if state != nil {
			return state, nil
		}
	}

	state := &models.SessionState{Token: uuid.NewString()}

	if deviceID != "" {
		binding, err := s.devices.GetBindingByDeviceID(ctx, deviceID)
		if err == nil {
			state.Phone = binding.PhoneNumber
			if err := s.devices.TouchDeviceActivity(ctx, deviceID, ip); err != nil {
				s.logger.Warn().Err(err).Msg("failed to touch device activity")
			}
			s.logger.Debug().Str("device_id", deviceID).Msg("device auto-login")
		}
	}

	if err := s.sessions.SetSession(ctx, state); err != nil {
		return nil, err
	}
	return state, nil
}

// Login binds the phone to the session and to the device cookie.
func (s *SessionService) Login(ctx context.Context, session *models.SessionState, phone, deviceID, userAgent, ip string) error {
	if err := ValidatePhone(phone); err != nil {
		return err
	}

	session.Phone = phone
	if err := s.sessions.SetSession(ctx, session); err != nil {
		return err
	}

	if deviceID != "" {
		if err := s.devices.UpsertBinding(ctx, phone, deviceID, userAgent, ip); err != nil {
			// The session login stands even when the durable binding fails.
			s.logger.Error().Err(err).Msg("failed to persist device binding")
		}
	}
	return nil
}

// DeviceInfo returns the device on record for the phone, or nil when
// no device ever logged in as it.
func (s *SessionService) DeviceInfo(ctx context.Context, phone string) (*models.DeviceBinding, error) {
	binding, err := s.devices.GetBindingByPhone(ctx, phone)
	if errors.Is(err, database.ErrBindingNotFound) {
		return nil, nil
	}
	return binding, err
}

// Logout drops the server-side session. The device binding survives,
// so the next visit auto-logs-in again; forgetting the device would
// need the binding row removed.
func (s *SessionService) Logout(ctx context.Context, token string) error {
	return s.sessions.ClearSession(ctx, token)
}

// CheckRateLimit counts a request against the key's window.
func (s *SessionService) CheckRateLimit(ctx context.Context, key string, limit int, window time.Duration) (bool, error) {
	return s.sessions.CheckRateLimit(ctx, key, limit, window)
}

// Save persists the session as-is.
func (s *SessionService) Save(ctx context.Context, session *models.SessionState) error {
	return s.sessions.SetSession(ctx, session)
}

// RememberBooking parks a just-booked summary for the one-shot
// confirmation page.
func (s *SessionService) RememberBooking(ctx context.Context, session *models.SessionState, slots []string, phone string) error {
	session.LastBookedSlots = slots
	session.LastBookedPhone = phone
	return s.sessions.SetSession(ctx, session)
}

// ConsumeConfirmation returns the parked booking summary and clears it,
// so a reload of the confirmation page has nothing to show.
func (s *SessionService) ConsumeConfirmation(ctx context.Context, session *models.SessionState) (slots []string, phone string, err error) {
	if len(session.LastBookedSlots) == 0 {
		return nil, "", ErrNoConfirmation
	}

	slots = session.LastBookedSlots
	phone = session.LastBookedPhone
	session.LastBookedSlots = nil
	session.LastBookedPhone = ""

	if err := s.sessions.SetSession(ctx, session); err != nil {
		return nil, "", err
	}
	return slots, phone, nil
}
