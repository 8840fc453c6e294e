package main

import (
	"context"
	"database/sql"
	"time"

	dErrors "timeclock/pkg/domain-errors"
	txcontext "timeclock/pkg/platform/tx"
)

const defaultAttendanceTxTimeout = 5 * time.Second

// attendancePostgresTx runs a session transition and its audit outbox row in
// one database transaction. Stores join it through the context.
type attendancePostgresTx struct {
	db      *sql.DB
	timeout time.Duration
}

func newAttendancePostgresTx(db *sql.DB) *attendancePostgresTx {
	return &attendancePostgresTx{db: db}
}

func (t *attendancePostgresTx) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if err := ctx.Err(); err != nil {
		return dErrors.Wrap(err, dErrors.CodeTimeout, "transaction aborted: context cancelled")
	}

	timeout := t.timeout
	if timeout == 0 {
		timeout = defaultAttendanceTxTimeout
	}
	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	return txcontext.Run(ctx, t.db, fn)
}
