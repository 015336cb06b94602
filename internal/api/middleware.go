package api

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	"autoservice/internal/domain"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

const (
	headerActorID   = "X-Actor-ID"
	headerActorRole = "X-Actor-Role"
	headerRequestID = "X-Request-ID"
)

type ctxKey int

const actorKey ctxKey = iota

// identityMiddleware turns the trusted identity headers set by the gateway
// into a domain.Actor. Requests without them run as an anonymous customer.
func identityMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		actor := domain.Actor{Role: domain.RoleCustomer}

		if raw := strings.TrimSpace(r.Header.Get(headerActorID)); raw != "" {
			id, err := strconv.ParseInt(raw, 10, 64)
			if err != nil || id < 0 {
				writeError(w, http.StatusBadRequest, "invalid "+headerActorID)
				return
			}
			actor.ID = id
		}
		if raw := strings.TrimSpace(strings.ToLower(r.Header.Get(headerActorRole))); raw != "" {
			switch role := domain.Role(raw); role {
			case domain.RoleCustomer, domain.RoleTechnician, domain.RoleStaff, domain.RoleSystem:
				actor.Role = role
			default:
				writeError(w, http.StatusBadRequest, "invalid "+headerActorRole)
				return
			}
		}

		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), actorKey, actor)))
	})
}

func actorFrom(r *http.Request) domain.Actor {
	if actor, ok := r.Context().Value(actorKey).(domain.Actor); ok {
		return actor
	}
	return domain.Actor{Role: domain.RoleCustomer}
}

func loggingMiddleware(logger *zerolog.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		requestID := r.Header.Get(headerRequestID)
		if requestID == "" {
			requestID = uuid.NewString()
		}
		w.Header().Set(headerRequestID, requestID)

		recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(recorder, r)

		event := logger.Info()
		if recorder.status >= http.StatusInternalServerError {
			event = logger.Error()
		}
		event.
			Str("request_id", requestID).
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", recorder.status).
			Dur("duration", time.Since(start)).
			Msg("http request")
	})
}
