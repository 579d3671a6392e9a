package http

import (
	"net/http"
	"strings"
	"time"

	apperrors "clinicflow/pkg/errors"
	"clinicflow/pkg/locale"
)

const (
	HeaderActorID    = "X-Actor-ID"
	HeaderTerminalID = "X-Terminal-ID"
)

// ExtractDate reads the "date" query parameter (YYYY-MM-DD) or falls back to
// today in the clinic's timezone.
func ExtractDate(r *http.Request, loc *time.Location, now time.Time) (string, error) {
	s := strings.TrimSpace(r.URL.Query().Get("date"))
	if s == "" {
		return locale.DateOf(now, loc), nil
	}
	if !locale.ValidDate(s) {
		return "", apperrors.InvalidInput("invalid date parameter (expected YYYY-MM-DD): " + s)
	}
	return s, nil
}

// ActorFromRequest returns the staff member recorded against status changes.
// Authentication happens upstream; the gateway sets the header.
func ActorFromRequest(r *http.Request) string {
	if actor := strings.TrimSpace(r.Header.Get(HeaderActorID)); actor != "" {
		return actor
	}
	return "system"
}
