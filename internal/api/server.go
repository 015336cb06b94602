package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"autoservice/internal/config"
	"autoservice/internal/domain"
	"autoservice/internal/events"
	"autoservice/internal/metrics"

	"github.com/rs/zerolog"
)

const prefix = "/api/v1"

// Services are the use cases the HTTP layer drives.
type Services struct {
	Holds        domain.HoldService
	Availability domain.AvailabilityService
	Bookings     domain.BookingService
	Parts        domain.PartService
}

// HTTPServer exposes the booking core over JSON/HTTP and the event fanout
// over websockets.
type HTTPServer struct {
	cfg      config.APIConfig
	svc      Services
	hub      *events.Hub
	upgrader *wsUpgrader
	server   *http.Server
	logger   *zerolog.Logger
}

func NewHTTPServer(cfg config.APIConfig, svc Services, hub *events.Hub, logger *zerolog.Logger) *HTTPServer {
	mux := http.NewServeMux()
	srv := &HTTPServer{
		cfg:      cfg,
		svc:      svc,
		hub:      hub,
		upgrader: newWSUpgrader(cfg.HTTP.AllowedOrigins),
		logger:   logger,
	}

	srv.handle(mux, "GET /healthz", srv.handleHealth)
	srv.handle(mux, "GET "+prefix+"/ws", srv.handleWebsocket)

	srv.handle(mux, "GET "+prefix+"/availability", srv.handleAvailability)
	srv.handle(mux, "POST "+prefix+"/reserve-slot", srv.handleReserveSlot)
	srv.handle(mux, "POST "+prefix+"/release-slot", srv.handleReleaseSlot)

	srv.handle(mux, "POST "+prefix+"/bookings", srv.handleCreateBooking)
	srv.handle(mux, "GET "+prefix+"/bookings", srv.handleListBookings)
	srv.handle(mux, "GET "+prefix+"/bookings/{id}", srv.handleGetBooking)
	srv.handle(mux, "PUT "+prefix+"/bookings/{id}/status", srv.handleUpdateStatus)
	srv.handle(mux, "POST "+prefix+"/bookings/{id}/check-in", srv.handleCheckIn)
	srv.handle(mux, "POST "+prefix+"/bookings/{id}/cancel", srv.handleCancel)
	srv.handle(mux, "GET "+prefix+"/bookings/{id}/checklist", srv.handleGetChecklist)
	srv.handle(mux, "PUT "+prefix+"/bookings/{id}/checklist/{categoryId}", srv.handleRecordChecklist)

	srv.handle(mux, "GET "+prefix+"/bookings/{id}/parts", srv.handleListParts)
	srv.handle(mux, "POST "+prefix+"/bookings/{id}/parts", srv.handleProposePart)
	srv.handle(mux, "PUT "+prefix+"/bookings/{id}/parts/{partId}", srv.handleUpdatePart)
	srv.handle(mux, "DELETE "+prefix+"/bookings/{id}/parts/{partId}", srv.handleDeletePart)
	srv.handle(mux, "PUT "+prefix+"/bookings/{id}/parts/{partId}/approve-and-consume", srv.handleApproveAndConsume)
	srv.handle(mux, "PUT "+prefix+"/bookings/{id}/parts/{partId}/reject", srv.handleStaffReject)
	srv.handle(mux, "PUT "+prefix+"/bookings/{id}/parts/{partId}/customer-approve", srv.handleCustomerApprove)
	srv.handle(mux, "PUT "+prefix+"/bookings/{id}/parts/{partId}/customer-reject", srv.handleCustomerReject)
	srv.handle(mux, "PUT "+prefix+"/bookings/{id}/parts/{partId}/replace-part", srv.handleReplacePart)
	srv.handle(mux, "PUT "+prefix+"/bookings/{id}/parts/{partId}/consume-customer-supplied", srv.handleConsumeCustomerSupplied)

	srv.handle(mux, "POST "+prefix+"/payments/confirmed", srv.handlePaymentConfirmed)

	limiter := newRateLimiter(cfg.RateLimit)
	handler := loggingMiddleware(logger, identityMiddleware(limiter.Wrap(mux)))

	srv.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.HTTP.Port),
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}
	return srv
}

func (s *HTTPServer) handle(mux *http.ServeMux, pattern string, fn http.HandlerFunc) {
	mux.HandleFunc(pattern, func(w http.ResponseWriter, r *http.Request) {
		metrics.IncHTTP(pattern)
		fn(w, r)
	})
}

// Handler returns the fully wrapped handler, for tests and embedding.
func (s *HTTPServer) Handler() http.Handler {
	return s.server.Handler
}

func (s *HTTPServer) Start() error {
	if s.server == nil {
		return fmt.Errorf("http server is not initialized")
	}
	s.logger.Info().Str("addr", s.server.Addr).Msg("HTTP API listening")
	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

func (s *HTTPServer) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

func (s *HTTPServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
