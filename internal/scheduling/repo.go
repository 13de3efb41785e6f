package scheduling

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
)

// Repository persists schedules in Postgres. All check-then-insert paths
// run inside a SERIALIZABLE transaction so two concurrent bookings cannot
// both pass the capacity check and overshoot the cap; serialization
// failures are retried.
type Repository struct {
	db *sql.DB
}

// NewRepository creates a repo.
func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

const maxTxAttempts = 3

const scheduleColumns = `id, org_id, program_id, student_id, starts_at, ends_at,
	recurrence_rule, parent_schedule_id, is_exception, created_by, created_at`

// availabilityQuery counts, in one consistent read, every schedule in the
// organization overlapping [start,end) and, of those, the ones held by the
// requesting student. Overlap is half-open: starts_at < end AND ends_at > start.
const availabilityQuery = `
	SELECT count(*),
	       count(*) FILTER (WHERE student_id = $2)
	FROM schedules
	WHERE org_id = $1
	  AND starts_at < $4
	  AND ends_at > $3
	  AND ($5::uuid IS NULL OR id <> $5)
`

type querier interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func checkInterval(ctx context.Context, q querier, orgID, studentID uuid.UUID, start, end time.Time, maxCount int, exclude *uuid.UUID) (Availability, error) {
	var current, mine int
	if err := q.QueryRowContext(ctx, availabilityQuery, orgID, studentID, start, end, exclude).Scan(&current, &mine); err != nil {
		return Availability{}, fmt.Errorf("check interval: %w", err)
	}
	return Availability{
		Allowed:      current < maxCount && mine == 0,
		CurrentCount: current,
		MaxCount:     maxCount,
		HasConflict:  mine > 0,
	}, nil
}

// CheckAvailability answers whether a slot could be booked right now,
// without reserving anything. The authoritative check runs again inside
// the insert transaction.
func (r *Repository) CheckAvailability(ctx context.Context, orgID, studentID uuid.UUID, start, end time.Time, maxCount int) (Availability, error) {
	return checkInterval(ctx, r.db, orgID, studentID, start, end, maxCount, nil)
}

// CreateChecked atomically re-checks capacity and the student's own
// bookings for the slot interval, then inserts the row. On rejection the
// transaction rolls back and the verdict carries the counts.
func (r *Repository) CreateChecked(ctx context.Context, sched *Schedule, maxCount int) (Availability, error) {
	var verdict Availability
	err := r.withSerializable(ctx, func(tx *sql.Tx) error {
		avail, err := checkInterval(ctx, tx, sched.OrgID, sched.StudentID, sched.StartsAt, sched.EndsAt, maxCount, nil)
		if err != nil {
			return err
		}
		verdict = avail
		if !avail.Allowed {
			return nil
		}
		return insertSchedule(ctx, tx, sched)
	})
	return verdict, err
}

// CreateSeriesChecked inserts a whole recurring series in one transaction,
// re-checking every occurrence. Any rejection aborts the entire series;
// the failing occurrence index is returned alongside the verdict.
func (r *Repository) CreateSeriesChecked(ctx context.Context, series []*Schedule, maxCount int) (Availability, int, error) {
	verdict := Availability{Allowed: true, MaxCount: maxCount}
	failed := -1
	err := r.withSerializable(ctx, func(tx *sql.Tx) error {
		verdict = Availability{Allowed: true, MaxCount: maxCount}
		failed = -1
		for i, sched := range series {
			avail, err := checkInterval(ctx, tx, sched.OrgID, sched.StudentID, sched.StartsAt, sched.EndsAt, maxCount, nil)
			if err != nil {
				return err
			}
			if !avail.Allowed {
				verdict = avail
				failed = i
				return nil
			}
			if err := insertSchedule(ctx, tx, sched); err != nil {
				return err
			}
		}
		return nil
	})
	return verdict, failed, err
}

// UpdateChecked moves a schedule to a new interval, re-checking the
// target interval with the row itself excluded from the counts. When
// markException is set the row is flagged as an exception to its
// recurring series.
func (r *Repository) UpdateChecked(ctx context.Context, sched *Schedule, newStart, newEnd time.Time, maxCount int, markException bool) (Availability, error) {
	var verdict Availability
	err := r.withSerializable(ctx, func(tx *sql.Tx) error {
		avail, err := checkInterval(ctx, tx, sched.OrgID, sched.StudentID, newStart, newEnd, maxCount, &sched.ID)
		if err != nil {
			return err
		}
		verdict = avail
		if !avail.Allowed {
			return nil
		}
		res, err := tx.ExecContext(ctx, `
			UPDATE schedules
			SET starts_at = $2, ends_at = $3, is_exception = is_exception OR $4
			WHERE id = $1
		`, sched.ID, newStart, newEnd, markException)
		if err != nil {
			return fmt.Errorf("update schedule: %w", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return ErrNotFound
		}
		sched.StartsAt = newStart
		sched.EndsAt = newEnd
		sched.IsException = sched.IsException || markException
		return nil
	})
	return verdict, err
}

func insertSchedule(ctx context.Context, tx *sql.Tx, sched *Schedule) error {
	if sched.ID == uuid.Nil {
		sched.ID = uuid.New()
	}
	row := tx.QueryRowContext(ctx, `
		INSERT INTO schedules (id, org_id, program_id, student_id, starts_at, ends_at,
			recurrence_rule, parent_schedule_id, is_exception, created_by)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
		RETURNING created_at
	`, sched.ID, sched.OrgID, sched.ProgramID, sched.StudentID, sched.StartsAt, sched.EndsAt,
		sched.RecurrenceRule, sched.ParentID, sched.IsException, sched.CreatedBy)
	if err := row.Scan(&sched.CreatedAt); err != nil {
		return fmt.Errorf("insert schedule: %w", err)
	}
	return nil
}

// GetByID returns a schedule, nil when absent.
func (r *Repository) GetByID(ctx context.Context, id uuid.UUID) (*Schedule, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+scheduleColumns+` FROM schedules WHERE id = $1`, id)
	sched, err := scanSchedule(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get schedule: %w", err)
	}
	return sched, nil
}

// Delete removes a schedule row.
func (r *Repository) Delete(ctx context.Context, id uuid.UUID) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM schedules WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete schedule: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// ListByStudent returns a student's schedules intersecting [from,to).
func (r *Repository) ListByStudent(ctx context.Context, studentID uuid.UUID, from, to time.Time) ([]*Schedule, error) {
	return r.list(ctx, `
		SELECT `+scheduleColumns+` FROM schedules
		WHERE student_id = $1 AND starts_at < $3 AND ends_at > $2
		ORDER BY starts_at ASC
	`, studentID, from, to)
}

// ListByOrg returns every schedule in an organization intersecting [from,to).
func (r *Repository) ListByOrg(ctx context.Context, orgID uuid.UUID, from, to time.Time) ([]*Schedule, error) {
	return r.list(ctx, `
		SELECT `+scheduleColumns+` FROM schedules
		WHERE org_id = $1 AND starts_at < $3 AND ends_at > $2
		ORDER BY starts_at ASC
	`, orgID, from, to)
}

func (r *Repository) list(ctx context.Context, query string, args ...any) ([]*Schedule, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list schedules: %w", err)
	}
	defer rows.Close()

	var out []*Schedule
	for rows.Next() {
		sched, err := scanSchedule(rows)
		if err != nil {
			return nil, fmt.Errorf("scan schedule: %w", err)
		}
		out = append(out, sched)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSchedule(row rowScanner) (*Schedule, error) {
	var s Schedule
	err := row.Scan(
		&s.ID,
		&s.OrgID,
		&s.ProgramID,
		&s.StudentID,
		&s.StartsAt,
		&s.EndsAt,
		&s.RecurrenceRule,
		&s.ParentID,
		&s.IsException,
		&s.CreatedBy,
		&s.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &s, nil
}

// withSerializable runs fn inside a SERIALIZABLE transaction, retrying on
// serialization failures (40001) and deadlocks (40P01).
func (r *Repository) withSerializable(ctx context.Context, fn func(tx *sql.Tx) error) error {
	var lastErr error
	for attempt := 0; attempt < maxTxAttempts; attempt++ {
		tx, err := r.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
		if err != nil {
			return fmt.Errorf("begin transaction: %w", err)
		}
		if err := fn(tx); err != nil {
			_ = tx.Rollback()
			if isRetryable(err) {
				lastErr = err
				continue
			}
			return err
		}
		if err := tx.Commit(); err != nil {
			if isRetryable(err) {
				lastErr = err
				continue
			}
			return fmt.Errorf("commit transaction: %w", err)
		}
		return nil
	}
	return fmt.Errorf("transaction retries exhausted: %w", lastErr)
}

func isRetryable(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "40001" || pgErr.Code == "40P01"
	}
	return false
}
