// Package httperr is the one central place that maps the apierr taxonomy
// to HTTP status codes and response bodies.
package httperr

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog/log"

	"github.com/websoft9/dropcode/internal/apierr"
)

// body is the client-facing error shape. It never carries storage keys or
// stack frames.
type body struct {
	Message          string `json:"message"`
	RequiresPassword bool   `json:"requiresPassword,omitempty"`
}

// Write maps err to a status code and writes the {message} JSON body,
// logging the underlying cause with the request's correlation id.
func Write(w http.ResponseWriter, r *http.Request, err error) {
	ae, ok := apierr.As(err)
	if !ok {
		ae = apierr.New(apierr.KindFatal, "internal error")
		log.Error().Err(err).Str("requestId", middleware.GetReqID(r.Context())).Msg("httpapi: unmapped error")
	}

	status := statusFor(ae.Kind)
	logEvent(r, ae, status)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body{Message: ae.Message})
}

// WriteLocked writes the 401 "requires password" response shape the
// download-resolve endpoint needs in addition to a plain message.
func WriteLocked(w http.ResponseWriter, message string, extra map[string]any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	out := map[string]any{"message": message, "requiresPassword": true}
	for k, v := range extra {
		out[k] = v
	}
	_ = json.NewEncoder(w).Encode(out)
}

func statusFor(kind apierr.Kind) int {
	switch kind {
	case apierr.KindValidation:
		return http.StatusBadRequest
	case apierr.KindUnauthenticated:
		return http.StatusUnauthorized
	case apierr.KindForbidden:
		return http.StatusForbidden
	case apierr.KindNotFound:
		return http.StatusNotFound
	case apierr.KindGone:
		return http.StatusGone
	case apierr.KindLocked:
		return http.StatusUnauthorized
	case apierr.KindUpstream:
		return http.StatusBadGateway
	case apierr.KindCollision:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func logEvent(r *http.Request, ae *apierr.Error, status int) {
	ev := log.Error()
	if status < 500 {
		ev = log.Debug()
	}
	ev.Err(ae.Detail).
		Str("requestId", middleware.GetReqID(r.Context())).
		Str("path", r.URL.Path).
		Int("status", status).
		Msg(ae.Message)
}
