package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"nobat/internal/config"
	"nobat/internal/domain"
	"nobat/internal/export"
	"nobat/internal/metrics"
	"nobat/internal/service"

	"github.com/rs/zerolog"
)

// Server is the public booking API plus the authenticated operator
// endpoints.
type Server struct {
	cfg      *config.Config
	booking  *service.BookingService
	sessions *service.SessionService
	exporter *export.Service
	ledger   domain.Ledger
	auth     *AdminAuth
	logger   zerolog.Logger
	server   *http.Server
}

func NewServer(
	cfg *config.Config,
	booking *service.BookingService,
	sessions *service.SessionService,
	exporter *export.Service,
	ledger domain.Ledger,
	logger *zerolog.Logger,
) *Server {
	srv := &Server{
		cfg:      cfg,
		booking:  booking,
		sessions: sessions,
		exporter: exporter,
		ledger:   ledger,
		auth:     NewAdminAuth(cfg.Admin),
		logger:   logger.With().Str("component", "api").Logger(),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/", srv.handleIndex)
	mux.HandleFunc("/book", srv.handleBook)
	mux.HandleFunc("/payment/verify", srv.handlePaymentVerify)
	mux.HandleFunc("/confirmation", srv.handleConfirmation)
	mux.HandleFunc("/my-appointments", srv.handleMyAppointments)
	mux.HandleFunc("/logout", srv.handleLogout)
	mux.HandleFunc("/healthz", srv.handleHealthz)

	admin := http.NewServeMux()
	admin.HandleFunc("/admin/appointments", srv.handleAdminAppointments)
	admin.HandleFunc("/admin/export", srv.handleAdminExport)
	mux.Handle("/admin/", srv.auth.Wrap(admin))

	handler := srv.loggingMiddleware(mux)

	srv.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      15 * time.Second,
	}

	return srv
}

func (s *Server) Start() error {
	if s.server == nil {
		return fmt.Errorf("http server is not initialized")
	}
	s.logger.Info().Str("addr", s.server.Addr).Msg("HTTP server listening")
	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

// Handler exposes the configured root handler for tests.
func (s *Server) Handler() http.Handler {
	return s.server.Handler
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(recorder, r)

		metrics.IncHTTP(r.URL.Path)
		s.logger.Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", recorder.status).
			Dur("duration", time.Since(start)).
			Msg("http request")
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func writeJSON(w http.ResponseWriter, statusCode int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, statusCode int, message string) {
	writeJSON(w, statusCode, map[string]string{"error": message})
}
