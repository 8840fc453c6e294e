package httptransport

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"timeclock/pkg/testutil"
)

func TestRouteTable(t *testing.T) {
	testutil.Given(t, "the HTTP router without a token", func(t *testing.T) {
		router, _ := newTestRouter(t, time.Now(), nil)

		for _, route := range []struct{ method, path string }{
			{http.MethodPost, "/attendance/check-in"},
			{http.MethodPost, "/attendance/check-out"},
			{http.MethodPost, "/attendance/location"},
			{http.MethodGet, "/attendance/current"},
			{http.MethodGet, "/attendance/history"},
			{http.MethodGet, "/attendance/sessions/00000000-0000-0000-0000-000000000001/pings"},
		} {
			testutil.When(t, "calling "+route.method+" "+route.path, func(t *testing.T) {
				rec := testutil.DoRequest(router, httptest.NewRequest(route.method, route.path, nil))

				testutil.Then(t, "it should respond with unauthorized", func(t *testing.T) {
					if rec.Code != http.StatusUnauthorized {
						t.Fatalf("expected status %d, got %d", http.StatusUnauthorized, rec.Code)
					}
				})
			})
		}

		testutil.When(t, "calling GET /healthz", func(t *testing.T) {
			rec := testutil.DoRequest(router, httptest.NewRequest(http.MethodGet, "/healthz", nil))

			testutil.Then(t, "it should respond without authentication", func(t *testing.T) {
				if rec.Code != http.StatusOK {
					t.Fatalf("expected status %d, got %d", http.StatusOK, rec.Code)
				}
			})
		})

		testutil.When(t, "calling an unknown route", func(t *testing.T) {
			rec := testutil.DoRequest(router, httptest.NewRequest(http.MethodGet, "/me/data-export", nil))

			testutil.Then(t, "it should respond with not found", func(t *testing.T) {
				if rec.Code != http.StatusNotFound {
					t.Fatalf("expected status %d, got %d", http.StatusNotFound, rec.Code)
				}
			})
		})
	})
}
