package testutil

import (
	"net/http"
	"time"

	id "timeclock/pkg/domain"
	"timeclock/pkg/requestcontext"
)

// WithUser does what the auth middleware does for an authenticated request.
func WithUser(req *http.Request, userID id.UserID) *http.Request {
	return req.WithContext(requestcontext.WithUserID(req.Context(), userID))
}

// At pins the request instant, as the requesttime middleware would.
func At(req *http.Request, t time.Time) *http.Request {
	return req.WithContext(requestcontext.WithTime(req.Context(), t))
}
