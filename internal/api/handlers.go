package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"nobat/internal/models"
	"nobat/internal/payment"
	"nobat/internal/service"
)

const (
	bookRateLimit  = 20
	bookRateWindow = time.Minute
)

type bookRequest struct {
	Phone     string   `json:"phone"`
	Timeslots []string `json:"timeslots"`
}

// resolveSession loads or mints the visitor's session and refreshes
// the session cookie when the token changed.
func (s *Server) resolveSession(w http.ResponseWriter, r *http.Request) (*models.SessionState, string, error) {
	deviceID := s.deviceID(w, r)
	token := s.sessionToken(r)

	session, err := s.sessions.Resolve(r.Context(), token, deviceID, clientIP(r))
	if err != nil {
		return nil, "", err
	}
	if session.Token != token {
		s.setSessionCookie(w, session.Token)
	}
	return session, deviceID, nil
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		writeError(w, http.StatusNotFound, "not found")
		return
	}
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	session, _, err := s.resolveSession(w, r)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "session unavailable")
		return
	}

	slots, err := s.booking.AvailableSlots(r.Context())
	if err != nil {
		s.logger.Error().Err(err).Msg("failed to list available slots")
		writeError(w, http.StatusInternalServerError, "failed to list slots")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"slots":           slots,
		"phone":           session.Phone,
		"payment_enabled": s.cfg.Payment.Enabled,
		"slot_price":      s.booking.SlotPrice(),
	})
}

func (s *Server) handleBook(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	allowed, err := s.sessions.CheckRateLimit(r.Context(), "book:"+clientIP(r), bookRateLimit, bookRateWindow)
	if err != nil {
		s.logger.Error().Err(err).Msg("rate limit check failed")
	} else if !allowed {
		writeError(w, http.StatusTooManyRequests, "too many booking attempts")
		return
	}

	var body bookRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	session, deviceID, err := s.resolveSession(w, r)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "session unavailable")
		return
	}

	if s.cfg.Payment.Enabled {
		url, err := s.booking.InitiatePayment(r.Context(), session, body.Phone, body.Timeslots)
		if err != nil {
			s.writeServiceError(w, err)
			return
		}
		s.login(r, session, body.Phone, deviceID)
		writeJSON(w, http.StatusOK, map[string]string{"redirect_url": url})
		return
	}

	result, err := s.booking.Book(r.Context(), body.Phone, body.Timeslots)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}

	s.login(r, session, body.Phone, deviceID)
	slots := bookedSlots(result)
	if err := s.sessions.RememberBooking(r.Context(), session, slots, body.Phone); err != nil {
		s.logger.Error().Err(err).Msg("failed to remember booking")
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"booked": slots,
		"taken":  result.Taken,
	})
}

func (s *Server) handlePaymentVerify(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	session, deviceID, err := s.resolveSession(w, r)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "session unavailable")
		return
	}

	q := r.URL.Query()
	result, err := s.booking.FinalizePayment(r.Context(), session, q.Get("invoice_id"), q.Get("transid"))
	if err != nil {
		s.writeServiceError(w, err)
		return
	}

	phone := result.Booked[0].PhoneNumber
	s.login(r, session, phone, deviceID)
	if err := s.sessions.RememberBooking(r.Context(), session, bookedSlots(result), phone); err != nil {
		s.logger.Error().Err(err).Msg("failed to remember booking")
	}

	http.Redirect(w, r, "/confirmation", http.StatusSeeOther)
}

func (s *Server) handleConfirmation(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	session, _, err := s.resolveSession(w, r)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "session unavailable")
		return
	}

	slots, phone, err := s.sessions.ConsumeConfirmation(r.Context(), session)
	if errors.Is(err, service.ErrNoConfirmation) {
		writeError(w, http.StatusGone, "no booking confirmation to show")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "session unavailable")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"timeslots": slots,
		"phone":     phone,
	})
}

func (s *Server) handleMyAppointments(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	session, deviceID, err := s.resolveSession(w, r)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "session unavailable")
		return
	}

	phone := session.Phone
	if r.Method == http.MethodPost {
		var body struct {
			Phone string `json:"phone"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			writeError(w, http.StatusBadRequest, "invalid JSON body")
			return
		}
		if body.Phone != "" {
			phone = body.Phone
		}
	}
	if phone == "" {
		writeError(w, http.StatusUnauthorized, "phone is required")
		return
	}

	views, err := s.booking.Appointments(r.Context(), phone)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}

	// A successful lookup acts as a login for this device.
	if phone != session.Phone {
		s.login(r, session, phone, deviceID)
	}

	var deviceInfo map[string]any
	if binding, err := s.sessions.DeviceInfo(r.Context(), phone); err != nil {
		s.logger.Error().Err(err).Msg("failed to load device info")
	} else if binding != nil {
		deviceInfo = map[string]any{
			"device_id":          binding.DeviceID,
			"user_agent":         binding.UserAgent,
			"last_login_ip":      binding.LastLoginIP,
			"last_activity_time": binding.LastActivityTime,
		}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"phone":        phone,
		"appointments": views,
		"device_info":  deviceInfo,
	})
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	if token := s.sessionToken(r); token != "" {
		if err := s.sessions.Logout(r.Context(), token); err != nil {
			s.logger.Error().Err(err).Msg("failed to clear session")
		}
	}
	// The device cookie stays; only the session ends.
	s.clearSessionCookie(w)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// login binds the phone to the session and the device after an
// operation that proves the visitor controls the phone number.
func (s *Server) login(r *http.Request, session *models.SessionState, phone, deviceID string) {
	if err := s.sessions.Login(r.Context(), session, phone, deviceID, r.UserAgent(), clientIP(r)); err != nil {
		s.logger.Error().Err(err).Msg("failed to log session in")
	}
}

func bookedSlots(result *service.BookResult) []string {
	slots := make([]string, 0, len(result.Booked))
	for _, a := range result.Booked {
		slots = append(slots, a.Timeslot)
	}
	return slots
}

func (s *Server) writeServiceError(w http.ResponseWriter, err error) {
	var conflict *service.ConflictError
	switch {
	case errors.Is(err, service.ErrNoSlotsSelected),
		errors.Is(err, service.ErrInvalidPhone),
		errors.Is(err, service.ErrInvalidSlot):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.As(err, &conflict):
		writeJSON(w, http.StatusConflict, map[string]any{
			"error": "timeslots already taken",
			"taken": conflict.Taken,
		})
	case errors.Is(err, service.ErrSessionExpired):
		writeError(w, http.StatusGone, err.Error())
	case errors.Is(err, service.ErrPaymentDeclined):
		writeError(w, http.StatusPaymentRequired, err.Error())
	case errors.Is(err, service.ErrPaymentAmbiguous),
		errors.Is(err, payment.ErrGatewayRejected),
		errors.Is(err, payment.ErrTransport),
		errors.Is(err, payment.ErrMalformedResponse):
		writeError(w, http.StatusBadGateway, err.Error())
	default:
		s.logger.Error().Err(err).Msg("internal error")
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}
