package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

var ErrLockNotAcquired = errors.New("job lock is held by another process")

// JobLock serializes batch jobs across processes with MySQL named locks.
// The lock lives on a dedicated connection and is dropped when that connection closes.
type JobLock struct {
	db      *sql.DB
	timeout time.Duration
}

func NewJobLock(db *sql.DB, timeout time.Duration) *JobLock {
	return &JobLock{db: db, timeout: timeout}
}

func (l *JobLock) Acquire(ctx context.Context, name string) (func(), error) {
	conn, err := l.db.Conn(ctx)
	if err != nil {
		return nil, err
	}

	var acquired sql.NullInt64
	if err := conn.QueryRowContext(ctx, `SELECT GET_LOCK(?, ?)`, name, int(l.timeout.Seconds())).Scan(&acquired); err != nil {
		_ = conn.Close()
		return nil, err
	}
	if !acquired.Valid || acquired.Int64 != 1 {
		_ = conn.Close()
		return nil, ErrLockNotAcquired
	}

	release := func() {
		_, _ = conn.ExecContext(context.Background(), `SELECT RELEASE_LOCK(?)`, name)
		_ = conn.Close()
	}
	return release, nil
}
