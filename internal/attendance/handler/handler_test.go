package handler

//go:generate mockgen -source=handler.go -destination=mocks/mocks.go -package=mocks

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	"timeclock/internal/attendance/handler/mocks"
	"timeclock/internal/attendance/models"
	"timeclock/internal/attendance/service"
	"timeclock/internal/device"
	id "timeclock/pkg/domain"
	dErrors "timeclock/pkg/domain-errors"
	devicemw "timeclock/pkg/platform/middleware/device"
	"timeclock/pkg/testutil"
)

type HandlerSuite struct {
	suite.Suite
	ctrl    *gomock.Controller
	service *mocks.MockService
	router  chi.Router
	userID  id.UserID
	now     time.Time
}

func TestHandlerSuite(t *testing.T) {
	suite.Run(t, new(HandlerSuite))
}

func (s *HandlerSuite) SetupTest() {
	s.ctrl = gomock.NewController(s.T())
	s.service = mocks.NewMockService(s.ctrl)
	s.router = chi.NewRouter()
	s.router.Use(devicemw.Middleware(device.ParseUserAgent))
	New(s.service, slog.New(slog.NewTextHandler(io.Discard, nil))).Register(s.router)
	s.userID = id.UserID(uuid.New())
	s.now = time.Date(2024, 3, 4, 4, 0, 0, 0, time.UTC)
}

func (s *HandlerSuite) do(req *http.Request) *httptest.ResponseRecorder {
	req = testutil.At(testutil.WithUser(req, s.userID), s.now)
	return testutil.DoRequest(s.router, req)
}

func (s *HandlerSuite) sampleSession() *models.Session {
	return &models.Session{
		ID:              id.NewSessionID(),
		UserID:          s.userID,
		CheckInAt:       s.now,
		CheckInLocation: &models.Location{Latitude: 27.7172, Longitude: 85.3240},
		WorkLocation:    id.WorkLocationPrimarySite,
		Status:          models.StatusActive,
	}
}

func (s *HandlerSuite) TestCheckIn() {
	s.Run("unauthenticated request is rejected", func() {
		req := testutil.NewJSONRequest(s.T(), http.MethodPost, "/attendance/check-in", map[string]any{})
		rr := testutil.DoRequest(s.router, req)
		testutil.AssertStatusAndError(s.T(), rr, http.StatusUnauthorized, "unauthorized")
	})

	s.Run("missing coordinates are location_required", func() {
		req := testutil.NewJSONRequest(s.T(), http.MethodPost, "/attendance/check-in", map[string]any{
			"work_location": "PRIMARY_SITE",
		})
		testutil.AssertStatusAndError(s.T(), s.do(req), http.StatusBadRequest, "location_required")
	})

	s.Run("out of range latitude is a validation error", func() {
		req := testutil.NewJSONRequest(s.T(), http.MethodPost, "/attendance/check-in", map[string]any{
			"work_location": "PRIMARY_SITE", "latitude": 123.0, "longitude": 85.3,
		})
		rr := s.do(req)
		testutil.AssertStatusAndError(s.T(), rr, http.StatusBadRequest, "validation_error")
		s.Contains(rr.Body.String(), "latitude")
	})

	s.Run("unknown work location is a validation error", func() {
		req := testutil.NewJSONRequest(s.T(), http.MethodPost, "/attendance/check-in", map[string]any{
			"work_location": "HOME", "latitude": 27.7, "longitude": 85.3,
		})
		testutil.AssertStatusAndError(s.T(), s.do(req), http.StatusBadRequest, "validation_error")
	})

	s.Run("valid request passes a parsed command and returns 201", func() {
		session := s.sampleSession()
		s.service.EXPECT().CheckIn(gomock.Any(), gomock.Any()).DoAndReturn(
			func(_ context.Context, cmd service.CheckInCommand) (*models.Session, error) {
				s.Equal(s.userID, cmd.UserID)
				s.Equal(s.now, cmd.At)
				s.Equal(id.WorkLocationFieldSite, cmd.WorkLocation)
				s.Require().NotNil(cmd.Location)
				s.Equal(27.7172, cmd.Location.Latitude)
				s.Equal("traffic", cmd.LateReason)
				s.Contains(cmd.Device, "Firefox")
				return session, nil
			})

		req := testutil.NewJSONRequest(s.T(), http.MethodPost, "/attendance/check-in", map[string]any{
			"work_location": "field_site", "latitude": 27.7172, "longitude": 85.3240, "late_reason": " traffic ",
		})
		req.Header.Set("User-Agent", "Mozilla/5.0 (X11; Linux x86_64; rv:121.0) Gecko/20100101 Firefox/121.0")
		rr := s.do(req)
		s.Equal(http.StatusCreated, rr.Code, rr.Body.String())

		body := testutil.UnmarshalResponse[SessionResponse](s.T(), rr)
		s.Equal(session.ID.String(), body.ID)
		s.Equal("ACTIVE", body.Status)
		s.Nil(body.CheckOutLocation)
	})

	s.Run("engine errors are rendered with their code", func() {
		s.service.EXPECT().CheckIn(gomock.Any(), gomock.Any()).
			Return(nil, dErrors.New(dErrors.CodeLateJustificationRequired, "a reason is required"))

		req := testutil.NewJSONRequest(s.T(), http.MethodPost, "/attendance/check-in", map[string]any{
			"work_location": "PRIMARY_SITE", "latitude": 27.7172, "longitude": 85.3240,
		})
		testutil.AssertStatusAndError(s.T(), s.do(req), http.StatusUnprocessableEntity, "late_justification_required")
	})
}

func (s *HandlerSuite) TestCheckOut() {
	s.Run("out of radius is 403", func() {
		s.service.EXPECT().CheckOut(gomock.Any(), gomock.Any()).
			Return(nil, dErrors.New(dErrors.CodeOutOfRadius, "you are 612 m from your check-in location; the limit is 500 m"))

		req := testutil.NewJSONRequest(s.T(), http.MethodPost, "/attendance/check-out", map[string]any{
			"latitude": 27.7226, "longitude": 85.3240,
		})
		rr := s.do(req)
		testutil.AssertStatusAndError(s.T(), rr, http.StatusForbidden, "out_of_radius")
		s.Contains(rr.Body.String(), "612 m")
	})

	s.Run("missing check-in location is a 500 with a description", func() {
		s.service.EXPECT().CheckOut(gomock.Any(), gomock.Any()).
			Return(nil, dErrors.New(dErrors.CodeCheckInLocationMissing, "contact an administrator"))

		req := testutil.NewJSONRequest(s.T(), http.MethodPost, "/attendance/check-out", map[string]any{
			"latitude": 27.7172, "longitude": 85.3240,
		})
		rr := s.do(req)
		testutil.AssertStatusAndError(s.T(), rr, http.StatusInternalServerError, "check_in_location_missing")
		s.Contains(rr.Body.String(), "administrator")
	})

	s.Run("no active session is 409", func() {
		s.service.EXPECT().CheckOut(gomock.Any(), gomock.Any()).
			Return(nil, dErrors.New(dErrors.CodeNoActiveSession, "no active session"))

		req := testutil.NewJSONRequest(s.T(), http.MethodPost, "/attendance/check-out", map[string]any{
			"latitude": 27.7172, "longitude": 85.3240,
		})
		testutil.AssertStatusAndError(s.T(), s.do(req), http.StatusConflict, "no_active_session")
	})

	s.Run("closed session is returned", func() {
		session := s.sampleSession()
		session.Status = models.StatusClosed
		out := s.now.Add(8 * time.Hour)
		hours := 8.0
		session.CheckOutAt = &out
		session.TotalHours = &hours
		s.service.EXPECT().CheckOut(gomock.Any(), gomock.Any()).Return(session, nil)

		req := testutil.NewJSONRequest(s.T(), http.MethodPost, "/attendance/check-out", map[string]any{
			"latitude": 27.7172, "longitude": 85.3240, "notes": "bye",
		})
		rr := s.do(req)
		s.Equal(http.StatusOK, rr.Code)
		body := testutil.UnmarshalResponse[SessionResponse](s.T(), rr)
		s.Equal("CLOSED", body.Status)
		s.Require().NotNil(body.TotalHours)
		s.Equal(8.0, *body.TotalHours)
	})
}

func (s *HandlerSuite) TestRecordLocation() {
	s.Run("malformed body is still accepted", func() {
		req := httptest.NewRequest(http.MethodPost, "/attendance/location", strings.NewReader("{not json"))
		rr := s.do(req)
		s.Equal(http.StatusAccepted, rr.Code)
	})

	s.Run("sample is forwarded with its capture time", func() {
		captured := s.now.Add(-2 * time.Minute)
		s.service.EXPECT().RecordLocation(gomock.Any(), gomock.Any()).DoAndReturn(
			func(_ context.Context, cmd service.RecordLocationCommand) bool {
				s.True(captured.Equal(cmd.At))
				s.Require().NotNil(cmd.Location)
				return true
			})

		req := testutil.NewJSONRequest(s.T(), http.MethodPost, "/attendance/location", map[string]any{
			"latitude": 27.7172, "longitude": 85.3240, "recorded_at": captured,
		})
		rr := s.do(req)
		s.Equal(http.StatusAccepted, rr.Code)
		s.JSONEq(`{"recorded":true}`, rr.Body.String())
	})

	s.Run("future capture time is pinned to the request time", func() {
		s.service.EXPECT().RecordLocation(gomock.Any(), gomock.Any()).DoAndReturn(
			func(_ context.Context, cmd service.RecordLocationCommand) bool {
				s.True(s.now.Equal(cmd.At))
				return false
			})

		req := testutil.NewJSONRequest(s.T(), http.MethodPost, "/attendance/location", map[string]any{
			"latitude": 27.7172, "longitude": 85.3240, "recorded_at": s.now.Add(time.Hour),
		})
		rr := s.do(req)
		s.Equal(http.StatusAccepted, rr.Code)
		s.JSONEq(`{"recorded":false}`, rr.Body.String())
	})
}

func (s *HandlerSuite) TestQueries() {
	s.Run("current without a session returns null", func() {
		s.service.EXPECT().CurrentSession(gomock.Any(), s.userID).Return(nil, nil)

		req := testutil.NewJSONRequest(s.T(), http.MethodGet, "/attendance/current", nil)
		rr := s.do(req)
		s.Equal(http.StatusOK, rr.Code)
		s.JSONEq(`{"session":null}`, rr.Body.String())
	})

	s.Run("history passes the limit through", func() {
		session := s.sampleSession()
		s.service.EXPECT().History(gomock.Any(), s.userID, 5).
			Return([]service.SessionSummary{{Session: session, PingCount: 2}}, nil)

		req := testutil.NewJSONRequest(s.T(), http.MethodGet, "/attendance/history?limit=5", nil)
		rr := s.do(req)
		s.Equal(http.StatusOK, rr.Code)
		body := testutil.UnmarshalResponse[HistoryResponse](s.T(), rr)
		s.Require().Len(body.Sessions, 1)
		s.Require().NotNil(body.Sessions[0].PingCount)
		s.Equal(2, *body.Sessions[0].PingCount)
	})

	s.Run("history rejects a bad limit", func() {
		req := testutil.NewJSONRequest(s.T(), http.MethodGet, "/attendance/history?limit=-1", nil)
		testutil.AssertStatusAndError(s.T(), s.do(req), http.StatusBadRequest, "validation_error")
	})

	s.Run("pings with a malformed id are rejected", func() {
		req := testutil.NewJSONRequest(s.T(), http.MethodGet, "/attendance/sessions/nope/pings", nil)
		testutil.AssertStatusAndError(s.T(), s.do(req), http.StatusBadRequest, "invalid_input")
	})

	s.Run("pings of a foreign session are 404", func() {
		sessionID := id.NewSessionID()
		s.service.EXPECT().SessionPings(gomock.Any(), s.userID, sessionID).
			Return(nil, dErrors.New(dErrors.CodeNotFound, "session not found"))

		req := testutil.NewJSONRequest(s.T(), http.MethodGet, "/attendance/sessions/"+sessionID.String()+"/pings", nil)
		testutil.AssertStatusAndError(s.T(), s.do(req), http.StatusNotFound, "not_found")
	})

	s.Run("store failures hide their detail", func() {
		s.service.EXPECT().CurrentSession(gomock.Any(), s.userID).
			Return(nil, dErrors.Wrap(errors.New("pq: connection refused"), dErrors.CodeInternal, "failed"))

		req := testutil.NewJSONRequest(s.T(), http.MethodGet, "/attendance/current", nil)
		rr := s.do(req)
		testutil.AssertStatusAndError(s.T(), rr, http.StatusInternalServerError, "internal_error")
		s.NotContains(rr.Body.String(), "connection refused")
	})
}
