package store

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"

	"timeclock/internal/attendance/models"
	id "timeclock/pkg/domain"
	"timeclock/pkg/platform/sentinel"
)

type sessionStore interface {
	CreateIfNoneActive(ctx context.Context, session *models.Session) error
	FindByID(ctx context.Context, sessionID id.SessionID) (*models.Session, error)
	FindActiveByUser(ctx context.Context, userID id.UserID) (*models.Session, error)
	CloseIfActive(ctx context.Context, sessionID id.SessionID, params models.CloseParams) (*models.Session, error)
	AutoCloseIfActive(ctx context.Context, sessionID id.SessionID, at time.Time, totalHours float64) (*models.Session, error)
	AppendPing(ctx context.Context, ping *models.LocationPing) error
	ListPings(ctx context.Context, sessionID id.SessionID) ([]models.LocationPing, error)
	CountPings(ctx context.Context, sessionIDs []id.SessionID) (map[id.SessionID]int, error)
	ListActiveOpenedBefore(ctx context.Context, cutoff time.Time) ([]*models.Session, error)
	ListByUser(ctx context.Context, userID id.UserID, limit int) ([]*models.Session, error)
	Delete(ctx context.Context, sessionID id.SessionID) error
}

// storeContractSuite runs the same invariants against every implementation.
type storeContractSuite struct {
	suite.Suite
	newStore func() sessionStore
	store    sessionStore
	ctx      context.Context
	base     time.Time
}

func (s *storeContractSuite) SetupTest() {
	s.store = s.newStore()
	s.ctx = context.Background()
	s.base = time.Date(2024, 3, 4, 3, 30, 0, 0, time.UTC)
}

func (s *storeContractSuite) newActive(userID id.UserID, checkIn time.Time) *models.Session {
	return &models.Session{
		ID:              id.NewSessionID(),
		UserID:          userID,
		CheckInAt:       checkIn,
		CheckInLocation: &models.Location{Latitude: 27.7172, Longitude: 85.3240, Address: "Kathmandu"},
		WorkLocation:    id.WorkLocationPrimarySite,
		Status:          models.StatusActive,
		CreatedAt:       checkIn,
		UpdatedAt:       checkIn,
	}
}

func (s *storeContractSuite) create(userID id.UserID, checkIn time.Time) *models.Session {
	session := s.newActive(userID, checkIn)
	s.Require().NoError(s.store.CreateIfNoneActive(s.ctx, session))
	return session
}

func (s *storeContractSuite) TestCreateAndFind() {
	userID := id.UserID(uuid.New())
	session := s.newActive(userID, s.base)
	late := 4
	session.IsLate = true
	session.LateMinutes = &late
	session.LateReason = "traffic"
	s.Require().NoError(s.store.CreateIfNoneActive(s.ctx, session))

	s.Run("by id", func() {
		found, err := s.store.FindByID(s.ctx, session.ID)
		s.Require().NoError(err)
		s.Equal(session.ID, found.ID)
		s.True(found.CheckInAt.Equal(session.CheckInAt))
		s.Require().NotNil(found.CheckInLocation)
		s.Equal("Kathmandu", found.CheckInLocation.Address)
		s.Require().NotNil(found.LateMinutes)
		s.Equal(4, *found.LateMinutes)
		s.Nil(found.CheckOutAt)
		s.Nil(found.CheckOutLocation)
	})

	s.Run("active by user", func() {
		found, err := s.store.FindActiveByUser(s.ctx, userID)
		s.Require().NoError(err)
		s.Equal(session.ID, found.ID)
	})

	s.Run("missing", func() {
		_, err := s.store.FindByID(s.ctx, id.NewSessionID())
		s.ErrorIs(err, sentinel.ErrNotFound)
		_, err = s.store.FindActiveByUser(s.ctx, id.UserID(uuid.New()))
		s.ErrorIs(err, sentinel.ErrNotFound)
	})
}

func (s *storeContractSuite) TestOneActivePerUser() {
	userID := id.UserID(uuid.New())
	s.create(userID, s.base)

	err := s.store.CreateIfNoneActive(s.ctx, s.newActive(userID, s.base.Add(time.Minute)))
	s.ErrorIs(err, sentinel.ErrConflict)

	s.Run("another user is unaffected", func() {
		s.create(id.UserID(uuid.New()), s.base)
	})
}

func (s *storeContractSuite) TestConcurrentCreateHasOneWinner() {
	userID := id.UserID(uuid.New())
	var wins, conflicts atomic.Int32
	var wg sync.WaitGroup
	for range 16 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := s.store.CreateIfNoneActive(s.ctx, s.newActive(userID, s.base))
			switch {
			case err == nil:
				wins.Add(1)
			case isConflict(err):
				conflicts.Add(1)
			}
		}()
	}
	wg.Wait()
	s.Equal(int32(1), wins.Load())
	s.Equal(int32(15), conflicts.Load())
}

func (s *storeContractSuite) TestCloseIfActive() {
	userID := id.UserID(uuid.New())
	session := s.create(userID, s.base)
	at := s.base.Add(8*time.Hour + 15*time.Minute)

	closed, err := s.store.CloseIfActive(s.ctx, session.ID, models.CloseParams{
		At:         at,
		Location:   models.Location{Latitude: 27.7180, Longitude: 85.3240},
		Notes:      "done",
		TotalHours: 8.25,
	})
	s.Require().NoError(err)
	s.Equal(models.StatusClosed, closed.Status)
	s.Require().NotNil(closed.CheckOutAt)
	s.True(closed.CheckOutAt.Equal(at))
	s.Require().NotNil(closed.TotalHours)
	s.InDelta(8.25, *closed.TotalHours, 1e-9)
	s.Require().NotNil(closed.CheckOutLocation)
	s.Equal("done", closed.CheckOutNotes)

	s.Run("user may check in again", func() {
		s.create(userID, at.Add(time.Hour))
	})

	s.Run("second close is rejected", func() {
		_, err := s.store.CloseIfActive(s.ctx, session.ID, models.CloseParams{At: at.Add(time.Minute)})
		s.ErrorIs(err, sentinel.ErrInvalidState)
	})

	s.Run("auto-close after close is rejected and changes nothing", func() {
		_, err := s.store.AutoCloseIfActive(s.ctx, session.ID, at.Add(time.Hour), 9)
		s.ErrorIs(err, sentinel.ErrInvalidState)

		found, err := s.store.FindByID(s.ctx, session.ID)
		s.Require().NoError(err)
		s.Equal(models.StatusClosed, found.Status)
		s.True(found.CheckOutAt.Equal(at))
		s.NotNil(found.CheckOutLocation)
	})

	s.Run("unknown session", func() {
		_, err := s.store.CloseIfActive(s.ctx, id.NewSessionID(), models.CloseParams{At: at})
		s.ErrorIs(err, sentinel.ErrNotFound)
	})
}

func (s *storeContractSuite) TestAutoCloseIfActive() {
	userID := id.UserID(uuid.New())
	session := s.create(userID, s.base)
	at := s.base.Add(17 * time.Hour)

	closed, err := s.store.AutoCloseIfActive(s.ctx, session.ID, at, 17)
	s.Require().NoError(err)
	s.Equal(models.StatusAutoClosed, closed.Status)
	s.Nil(closed.CheckOutLocation)
	s.True(closed.CheckOutAt.Equal(at))

	_, err = s.store.FindActiveByUser(s.ctx, userID)
	s.ErrorIs(err, sentinel.ErrNotFound)
}

func (s *storeContractSuite) TestCloseRaceHasOneWinner() {
	session := s.create(id.UserID(uuid.New()), s.base)
	at := s.base.Add(20 * time.Hour)

	var wins atomic.Int32
	var wg sync.WaitGroup
	for i := range 10 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			var err error
			if i%2 == 0 {
				_, err = s.store.CloseIfActive(s.ctx, session.ID, models.CloseParams{At: at, TotalHours: 20})
			} else {
				_, err = s.store.AutoCloseIfActive(s.ctx, session.ID, at, 20)
			}
			if err == nil {
				wins.Add(1)
			}
		}()
	}
	wg.Wait()
	s.Equal(int32(1), wins.Load())
}

func (s *storeContractSuite) TestPings() {
	session := s.create(id.UserID(uuid.New()), s.base)

	// arrive out of order
	for _, offset := range []time.Duration{10, 5, 15, 5} {
		s.Require().NoError(s.store.AppendPing(s.ctx, &models.LocationPing{
			ID:         id.NewPingID(),
			SessionID:  session.ID,
			RecordedAt: s.base.Add(offset * time.Minute),
			Latitude:   27.7172,
			Longitude:  85.3240,
		}))
	}

	pings, err := s.store.ListPings(s.ctx, session.ID)
	s.Require().NoError(err)
	s.Require().Len(pings, 4)
	for i := 1; i < len(pings); i++ {
		s.False(pings[i].RecordedAt.Before(pings[i-1].RecordedAt), "pings ordered by timestamp")
	}

	counts, err := s.store.CountPings(s.ctx, []id.SessionID{session.ID, id.NewSessionID()})
	s.Require().NoError(err)
	s.Equal(map[id.SessionID]int{session.ID: 4}, counts)

	s.Run("no pings after close", func() {
		_, err := s.store.AutoCloseIfActive(s.ctx, session.ID, s.base.Add(time.Hour), 1)
		s.Require().NoError(err)

		err = s.store.AppendPing(s.ctx, &models.LocationPing{
			ID: id.NewPingID(), SessionID: session.ID, RecordedAt: s.base.Add(2 * time.Hour),
		})
		s.ErrorIs(err, sentinel.ErrInvalidState)
	})

	s.Run("unknown session", func() {
		err := s.store.AppendPing(s.ctx, &models.LocationPing{ID: id.NewPingID(), SessionID: id.NewSessionID()})
		s.ErrorIs(err, sentinel.ErrNotFound)
		_, err = s.store.ListPings(s.ctx, id.NewSessionID())
		s.ErrorIs(err, sentinel.ErrNotFound)
	})

	s.Run("pings are deleted with their session", func() {
		s.Require().NoError(s.store.Delete(s.ctx, session.ID))
		_, err := s.store.ListPings(s.ctx, session.ID)
		s.ErrorIs(err, sentinel.ErrNotFound)
		counts, err := s.store.CountPings(s.ctx, []id.SessionID{session.ID})
		s.Require().NoError(err)
		s.Empty(counts)
	})
}

func (s *storeContractSuite) TestListActiveOpenedBefore() {
	old := s.create(id.UserID(uuid.New()), s.base)
	older := s.create(id.UserID(uuid.New()), s.base.Add(-time.Hour))
	s.create(id.UserID(uuid.New()), s.base.Add(time.Hour))
	closed := s.create(id.UserID(uuid.New()), s.base.Add(-2*time.Hour))
	_, err := s.store.CloseIfActive(s.ctx, closed.ID, models.CloseParams{At: s.base, TotalHours: 2})
	s.Require().NoError(err)

	got, err := s.store.ListActiveOpenedBefore(s.ctx, s.base.Add(time.Minute))
	s.Require().NoError(err)
	s.Require().Len(got, 2)
	s.Equal(older.ID, got[0].ID)
	s.Equal(old.ID, got[1].ID)
}

func (s *storeContractSuite) TestListByUser() {
	userID := id.UserID(uuid.New())
	first := s.create(userID, s.base)
	_, err := s.store.CloseIfActive(s.ctx, first.ID, models.CloseParams{At: s.base.Add(time.Hour), TotalHours: 1})
	s.Require().NoError(err)
	second := s.create(userID, s.base.Add(24*time.Hour))
	s.create(id.UserID(uuid.New()), s.base)

	all, err := s.store.ListByUser(s.ctx, userID, 10)
	s.Require().NoError(err)
	s.Require().Len(all, 2)
	s.Equal(second.ID, all[0].ID, "newest first")

	limited, err := s.store.ListByUser(s.ctx, userID, 1)
	s.Require().NoError(err)
	s.Len(limited, 1)
}

func isConflict(err error) bool {
	return err != nil && errors.Is(err, sentinel.ErrConflict)
}
