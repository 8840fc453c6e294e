package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"timeclock/internal/attendance/models"
	"timeclock/internal/platform/postgres"
	id "timeclock/pkg/domain"
	"timeclock/pkg/platform/sentinel"
	txcontext "timeclock/pkg/platform/tx"
)

const oneActiveIndex = "attendance_sessions_one_active"

const sessionColumns = `
	id, user_id, check_in_at, check_out_at, total_hours,
	check_in_lat, check_in_lng, check_in_address,
	check_out_lat, check_out_lng, check_out_address,
	work_location, is_late, late_minutes, late_reason,
	check_in_notes, check_out_notes, check_in_device,
	status, created_at, updated_at`

// PostgresStore persists sessions and pings in PostgreSQL. The partial
// unique index attendance_sessions_one_active enforces one ACTIVE session
// per user; terminal transitions are conditional UPDATEs.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

type dbtx interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// conn joins the transaction carried in ctx, if any.
func (s *PostgresStore) conn(ctx context.Context) dbtx {
	if tx, ok := txcontext.From(ctx); ok {
		return tx
	}
	return s.db
}

func (s *PostgresStore) CreateIfNoneActive(ctx context.Context, session *models.Session) error {
	query := `
		INSERT INTO attendance_sessions (` + sessionColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, $21)
	`
	inLat, inLng, inAddr := splitLocation(session.CheckInLocation)
	outLat, outLng, outAddr := splitLocation(session.CheckOutLocation)
	_, err := s.conn(ctx).ExecContext(ctx, query,
		uuid.UUID(session.ID),
		uuid.UUID(session.UserID),
		session.CheckInAt,
		session.CheckOutAt,
		session.TotalHours,
		inLat, inLng, inAddr,
		outLat, outLng, outAddr,
		session.WorkLocation.String(),
		session.IsLate,
		session.LateMinutes,
		session.LateReason,
		session.CheckInNotes,
		session.CheckOutNotes,
		session.CheckInDevice,
		session.Status.String(),
		session.CreatedAt,
		session.UpdatedAt,
	)
	if err != nil {
		if postgres.IsUniqueViolation(err, oneActiveIndex) {
			return fmt.Errorf("user %s already has an active session: %w", session.UserID, sentinel.ErrConflict)
		}
		if postgres.IsUniqueViolation(err, "") {
			return fmt.Errorf("session %s: %w", session.ID, sentinel.ErrConflict)
		}
		return fmt.Errorf("insert session: %w", err)
	}
	return nil
}

func (s *PostgresStore) FindByID(ctx context.Context, sessionID id.SessionID) (*models.Session, error) {
	query := `SELECT ` + sessionColumns + ` FROM attendance_sessions WHERE id = $1`
	session, err := scanSession(s.conn(ctx).QueryRowContext(ctx, query, uuid.UUID(sessionID)))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("find session: %w", err)
	}
	return session, nil
}

func (s *PostgresStore) FindActiveByUser(ctx context.Context, userID id.UserID) (*models.Session, error) {
	query := `SELECT ` + sessionColumns + ` FROM attendance_sessions WHERE user_id = $1 AND status = 'ACTIVE'`
	session, err := scanSession(s.conn(ctx).QueryRowContext(ctx, query, uuid.UUID(userID)))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("find active session: %w", err)
	}
	return session, nil
}

func (s *PostgresStore) CloseIfActive(ctx context.Context, sessionID id.SessionID, params models.CloseParams) (*models.Session, error) {
	query := `
		UPDATE attendance_sessions SET
			status = 'CLOSED',
			check_out_at = $2,
			total_hours = $3,
			check_out_lat = $4,
			check_out_lng = $5,
			check_out_address = $6,
			check_out_notes = $7,
			updated_at = $2
		WHERE id = $1 AND status = 'ACTIVE'
		RETURNING ` + sessionColumns
	session, err := scanSession(s.conn(ctx).QueryRowContext(ctx, query,
		uuid.UUID(sessionID),
		params.At,
		params.TotalHours,
		params.Location.Latitude,
		params.Location.Longitude,
		params.Location.Address,
		params.Notes,
	))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, s.transitionMiss(ctx, sessionID)
		}
		return nil, fmt.Errorf("close session: %w", err)
	}
	return session, nil
}

func (s *PostgresStore) AutoCloseIfActive(ctx context.Context, sessionID id.SessionID, at time.Time, totalHours float64) (*models.Session, error) {
	query := `
		UPDATE attendance_sessions SET
			status = 'AUTO_CLOSED',
			check_out_at = $2,
			total_hours = $3,
			updated_at = $2
		WHERE id = $1 AND status = 'ACTIVE'
		RETURNING ` + sessionColumns
	session, err := scanSession(s.conn(ctx).QueryRowContext(ctx, query, uuid.UUID(sessionID), at, totalHours))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, s.transitionMiss(ctx, sessionID)
		}
		return nil, fmt.Errorf("auto-close session: %w", err)
	}
	return session, nil
}

// transitionMiss explains why a conditional update matched no row.
func (s *PostgresStore) transitionMiss(ctx context.Context, sessionID id.SessionID) error {
	var status string
	err := s.conn(ctx).QueryRowContext(ctx,
		`SELECT status FROM attendance_sessions WHERE id = $1`, uuid.UUID(sessionID),
	).Scan(&status)
	if errors.Is(err, sql.ErrNoRows) {
		return sentinel.ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("read session status: %w", err)
	}
	return fmt.Errorf("session %s is %s: %w", sessionID, status, sentinel.ErrInvalidState)
}

func (s *PostgresStore) AppendPing(ctx context.Context, ping *models.LocationPing) error {
	query := `
		INSERT INTO attendance_pings (id, session_id, recorded_at, latitude, longitude, address)
		SELECT $1, id, $3, $4, $5, $6
		FROM attendance_sessions
		WHERE id = $2 AND status = 'ACTIVE'
	`
	res, err := s.conn(ctx).ExecContext(ctx, query,
		uuid.UUID(ping.ID),
		uuid.UUID(ping.SessionID),
		ping.RecordedAt,
		ping.Latitude,
		ping.Longitude,
		ping.Address,
	)
	if err != nil {
		return fmt.Errorf("insert ping: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("insert ping rows affected: %w", err)
	}
	if n == 0 {
		return s.transitionMiss(ctx, ping.SessionID)
	}
	return nil
}

func (s *PostgresStore) ListPings(ctx context.Context, sessionID id.SessionID) ([]models.LocationPing, error) {
	var exists bool
	if err := s.conn(ctx).QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM attendance_sessions WHERE id = $1)`, uuid.UUID(sessionID),
	).Scan(&exists); err != nil {
		return nil, fmt.Errorf("check session: %w", err)
	}
	if !exists {
		return nil, sentinel.ErrNotFound
	}

	query := `
		SELECT id, session_id, recorded_at, latitude, longitude, address
		FROM attendance_pings
		WHERE session_id = $1
		ORDER BY recorded_at, seq
	`
	rows, err := s.conn(ctx).QueryContext(ctx, query, uuid.UUID(sessionID))
	if err != nil {
		return nil, fmt.Errorf("query pings: %w", err)
	}
	defer rows.Close()

	var out []models.LocationPing
	for rows.Next() {
		var p models.LocationPing
		var pingID, sid uuid.UUID
		if err := rows.Scan(&pingID, &sid, &p.RecordedAt, &p.Latitude, &p.Longitude, &p.Address); err != nil {
			return nil, fmt.Errorf("scan ping: %w", err)
		}
		p.ID = id.PingID(pingID)
		p.SessionID = id.SessionID(sid)
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate pings: %w", err)
	}
	return out, nil
}

// CountPings counts pings for a page of sessions in one round trip.
func (s *PostgresStore) CountPings(ctx context.Context, sessionIDs []id.SessionID) (map[id.SessionID]int, error) {
	out := make(map[id.SessionID]int, len(sessionIDs))
	if len(sessionIDs) == 0 {
		return out, nil
	}
	raw := make([]string, len(sessionIDs))
	for i, sessionID := range sessionIDs {
		raw[i] = sessionID.String()
	}
	query := `
		SELECT session_id, COUNT(*)
		FROM attendance_pings
		WHERE session_id = ANY($1::uuid[])
		GROUP BY session_id
	`
	rows, err := s.conn(ctx).QueryContext(ctx, query, pq.Array(raw))
	if err != nil {
		return nil, fmt.Errorf("count pings: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var sid uuid.UUID
		var n int
		if err := rows.Scan(&sid, &n); err != nil {
			return nil, fmt.Errorf("scan ping count: %w", err)
		}
		out[id.SessionID(sid)] = n
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate ping counts: %w", err)
	}
	return out, nil
}

func (s *PostgresStore) ListActiveOpenedBefore(ctx context.Context, cutoff time.Time) ([]*models.Session, error) {
	query := `
		SELECT ` + sessionColumns + `
		FROM attendance_sessions
		WHERE status = 'ACTIVE' AND check_in_at < $1
		ORDER BY check_in_at, id
	`
	return s.querySessions(ctx, "list stale sessions", query, cutoff)
}

func (s *PostgresStore) ListByUser(ctx context.Context, userID id.UserID, limit int) ([]*models.Session, error) {
	query := `
		SELECT ` + sessionColumns + `
		FROM attendance_sessions
		WHERE user_id = $1
		ORDER BY check_in_at DESC, id
		LIMIT $2
	`
	var lim any
	if limit > 0 {
		lim = limit
	}
	return s.querySessions(ctx, "list user sessions", query, uuid.UUID(userID), lim)
}

func (s *PostgresStore) Delete(ctx context.Context, sessionID id.SessionID) error {
	res, err := s.conn(ctx).ExecContext(ctx, `DELETE FROM attendance_sessions WHERE id = $1`, uuid.UUID(sessionID))
	if err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}

func (s *PostgresStore) querySessions(ctx context.Context, op, query string, args ...any) ([]*models.Session, error) {
	rows, err := s.conn(ctx).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer rows.Close()

	var out []*models.Session
	for rows.Next() {
		session, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		out = append(out, session)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return out, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanSession(row scanner) (*models.Session, error) {
	var (
		s                    models.Session
		sessionID, userID    uuid.UUID
		checkOutAt           sql.NullTime
		totalHours           sql.NullFloat64
		inLat, inLng         sql.NullFloat64
		outLat, outLng       sql.NullFloat64
		inAddr, outAddr      string
		workLocation, status string
		lateMinutes          sql.NullInt32
	)
	err := row.Scan(
		&sessionID, &userID, &s.CheckInAt, &checkOutAt, &totalHours,
		&inLat, &inLng, &inAddr,
		&outLat, &outLng, &outAddr,
		&workLocation, &s.IsLate, &lateMinutes, &s.LateReason,
		&s.CheckInNotes, &s.CheckOutNotes, &s.CheckInDevice,
		&status, &s.CreatedAt, &s.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	s.ID = id.SessionID(sessionID)
	s.UserID = id.UserID(userID)
	s.WorkLocation = id.WorkLocation(workLocation)
	s.Status = models.Status(status)
	if checkOutAt.Valid {
		t := checkOutAt.Time
		s.CheckOutAt = &t
	}
	if totalHours.Valid {
		h := totalHours.Float64
		s.TotalHours = &h
	}
	if lateMinutes.Valid {
		m := int(lateMinutes.Int32)
		s.LateMinutes = &m
	}
	if inLat.Valid && inLng.Valid {
		s.CheckInLocation = &models.Location{Latitude: inLat.Float64, Longitude: inLng.Float64, Address: inAddr}
	}
	if outLat.Valid && outLng.Valid {
		s.CheckOutLocation = &models.Location{Latitude: outLat.Float64, Longitude: outLng.Float64, Address: outAddr}
	}
	return &s, nil
}

func splitLocation(loc *models.Location) (lat, lng *float64, addr string) {
	if loc == nil {
		return nil, nil, ""
	}
	la, ln := loc.Latitude, loc.Longitude
	return &la, &ln, loc.Address
}
