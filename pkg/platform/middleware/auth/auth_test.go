package auth

import (
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"

	"timeclock/pkg/requestcontext"
)

type stubValidator struct {
	claims *Claims
	err    error
}

func (s stubValidator) ValidateToken(string) (*Claims, error) { return s.claims, s.err }

func TestRequireAuth(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	subject := uuid.New()

	var reached bool
	var seenUser string
	next := http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		reached = true
		seenUser = requestcontext.UserID(r.Context()).String()
	})

	tests := []struct {
		name       string
		header     string
		validator  stubValidator
		wantStatus int
		wantReach  bool
	}{
		{"valid token", "Bearer good", stubValidator{claims: &Claims{UserID: subject.String()}}, http.StatusOK, true},
		{"missing header", "", stubValidator{}, http.StatusUnauthorized, false},
		{"wrong scheme", "Basic abc", stubValidator{}, http.StatusUnauthorized, false},
		{"rejected token", "Bearer bad", stubValidator{err: errors.New("expired")}, http.StatusUnauthorized, false},
		{"non-uuid subject", "Bearer good", stubValidator{claims: &Claims{UserID: "alice"}}, http.StatusUnauthorized, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reached, seenUser = false, ""
			w := httptest.NewRecorder()
			r := httptest.NewRequest(http.MethodGet, "/attendance/current", nil)
			if tt.header != "" {
				r.Header.Set("Authorization", tt.header)
			}

			RequireAuth(tt.validator, logger)(next).ServeHTTP(w, r)

			assert.Equal(t, tt.wantStatus, w.Code)
			assert.Equal(t, tt.wantReach, reached)
			if tt.wantReach {
				assert.Equal(t, subject.String(), seenUser)
			}
		})
	}
}
