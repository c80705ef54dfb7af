package api

import (
	"net/http"
	"time"

	"github.com/google/uuid"
)

// deviceID reads the long-lived device cookie, minting one when the
// browser has none. The cookie survives logout; it is the key for
// auto-login on the next visit.
func (s *Server) deviceID(w http.ResponseWriter, r *http.Request) string {
	if c, err := r.Cookie(s.cfg.Server.DeviceCookie); err == nil && c.Value != "" {
		return c.Value
	}

	id := uuid.NewString()
	http.SetCookie(w, &http.Cookie{
		Name:     s.cfg.Server.DeviceCookie,
		Value:    id,
		Path:     "/",
		Domain:   s.cfg.Server.CookieDomain,
		MaxAge:   int((365 * 24 * time.Hour).Seconds()),
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	return id
}

func (s *Server) sessionToken(r *http.Request) string {
	if c, err := r.Cookie(s.cfg.Server.SessionCookie); err == nil {
		return c.Value
	}
	return ""
}

func (s *Server) setSessionCookie(w http.ResponseWriter, token string) {
	http.SetCookie(w, &http.Cookie{
		Name:     s.cfg.Server.SessionCookie,
		Value:    token,
		Path:     "/",
		Domain:   s.cfg.Server.CookieDomain,
		MaxAge:   int(s.cfg.Session.TTL.Seconds()),
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
}

func (s *Server) clearSessionCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     s.cfg.Server.SessionCookie,
		Value:    "",
		Path:     "/",
		Domain:   s.cfg.Server.CookieDomain,
		MaxAge:   -1,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
}
