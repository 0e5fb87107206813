package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/MrJamesThe3rd/tesoro/internal/catalog"
	"github.com/MrJamesThe3rd/tesoro/internal/database"
	"github.com/MrJamesThe3rd/tesoro/internal/failure"
	"github.com/MrJamesThe3rd/tesoro/internal/finance"
	"github.com/MrJamesThe3rd/tesoro/internal/reservation"
)

type Store struct {
	db *sql.DB
}

func New(db *sql.DB) *Store {
	return &Store{db: db}
}

func (s *Store) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return database.WithTx(ctx, s.db, fn)
}

// scanner is satisfied by both *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

const selectReservationColumns = `
	r.id, r.budget_line_id, r.holder_id, r.state, r.expires_at, r.request_id,
	r.committed_net, r.committed_gross, r.created_at, r.updated_at,
	(q.id IS NOT NULL AND q.deleted_at IS NULL) AS request_live
`

const fromReservations = `
	FROM reservations r
	LEFT JOIN requests q ON q.id = r.request_id
`

func scanReservation(s scanner) (reservation.Reservation, error) {
	var (
		r     reservation.Reservation
		state string
	)

	err := s.Scan(
		&r.ID, &r.BudgetLineID, &r.HolderID, &state, &r.ExpiresAt, &r.RequestID,
		&r.CommittedNet, &r.CommittedGross, &r.CreatedAt, &r.UpdatedAt,
		&r.RequestLive,
	)
	r.State = reservation.State(state)

	return r, err
}

func (s *Store) queryReservations(ctx context.Context, query string, args ...any) ([]reservation.Reservation, error) {
	rows, err := database.Q(ctx, s.db).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing reservations: %w", err)
	}
	defer rows.Close()

	var out []reservation.Reservation

	for rows.Next() {
		r, err := scanReservation(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning reservation: %w", err)
		}

		out = append(out, r)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating reservations: %w", err)
	}

	return out, nil
}

func idStrings(ids []uuid.UUID) []string {
	out := make([]string, len(ids))
	for i, id := range ids {
		out[i] = id.String()
	}

	return out
}

func (s *Store) GetBudgetLine(ctx context.Context, id uuid.UUID) (*catalog.BudgetLine, error) {
	query := `SELECT id, code, label, category, total_amount FROM budget_lines WHERE id = $1`

	var l catalog.BudgetLine

	err := database.Q(ctx, s.db).QueryRowContext(ctx, query, id).
		Scan(&l.ID, &l.Code, &l.Label, &l.Category, &l.TotalAmount)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: budget line %s", failure.ErrNotFound, id)
		}

		return nil, fmt.Errorf("getting budget line: %w", err)
	}

	return &l, nil
}

// LockBudgetLines takes row locks on the given lines in id order.
func (s *Store) LockBudgetLines(ctx context.Context, ids []uuid.UUID) ([]catalog.BudgetLine, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	query := `
		SELECT id, code, label, category, total_amount
		FROM budget_lines
		WHERE id = ANY($1::uuid[])
		ORDER BY id
		FOR UPDATE
	`

	rows, err := database.Q(ctx, s.db).QueryContext(ctx, query, idStrings(ids))
	if err != nil {
		return nil, fmt.Errorf("locking budget lines: %w", err)
	}
	defer rows.Close()

	var lines []catalog.BudgetLine

	for rows.Next() {
		var l catalog.BudgetLine
		if err := rows.Scan(&l.ID, &l.Code, &l.Label, &l.Category, &l.TotalAmount); err != nil {
			return nil, fmt.Errorf("scanning budget line: %w", err)
		}

		lines = append(lines, l)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating budget lines: %w", err)
	}

	if len(lines) != len(ids) {
		return nil, fmt.Errorf("%w: %d budget lines missing", failure.ErrNotFound, len(ids)-len(lines))
	}

	return lines, nil
}

func (s *Store) SumCommitted(ctx context.Context, budgetLineID uuid.UUID) (decimal.Decimal, error) {
	query := `
		SELECT COALESCE(SUM(r.committed_gross), 0)
		FROM reservations r
		JOIN requests q ON q.id = r.request_id
		WHERE r.budget_line_id = $1
		  AND r.state = 'confirmed'
		  AND q.deleted_at IS NULL
		  AND q.state IN ('pending', 'observed', 'disbursed')
	`

	var sum decimal.Decimal
	if err := database.Q(ctx, s.db).QueryRowContext(ctx, query, budgetLineID).Scan(&sum); err != nil {
		return decimal.Zero, fmt.Errorf("summing committed: %w", err)
	}

	return sum, nil
}

func (s *Store) ListOnBudgetLine(ctx context.Context, budgetLineID uuid.UUID) ([]reservation.Reservation, error) {
	query := `SELECT ` + selectReservationColumns + fromReservations + `
		WHERE r.budget_line_id = $1
		ORDER BY r.created_at`

	return s.queryReservations(ctx, query, budgetLineID)
}

func (s *Store) ListHeldByHolder(ctx context.Context, holderID uuid.UUID, now time.Time) ([]reservation.Reservation, error) {
	query := `SELECT ` + selectReservationColumns + fromReservations + `
		WHERE r.holder_id = $1 AND r.state = 'held' AND r.expires_at > $2
		ORDER BY r.expires_at`

	return s.queryReservations(ctx, query, holderID, now)
}

func (s *Store) ListByRequest(ctx context.Context, requestID uuid.UUID) ([]reservation.Reservation, error) {
	query := `SELECT ` + selectReservationColumns + fromReservations + `
		WHERE r.request_id = $1
		ORDER BY r.id`

	return s.queryReservations(ctx, query, requestID)
}

func (s *Store) GetReservations(ctx context.Context, ids []uuid.UUID) ([]reservation.Reservation, error) {
	query := `SELECT ` + selectReservationColumns + fromReservations + `
		WHERE r.id = ANY($1::uuid[])
		ORDER BY r.id`

	return s.queryReservations(ctx, query, idStrings(ids))
}

func (s *Store) LockReservation(ctx context.Context, id uuid.UUID) (*reservation.Reservation, error) {
	query := `SELECT ` + selectReservationColumns + fromReservations + `
		WHERE r.id = $1
		FOR UPDATE OF r`

	r, err := scanReservation(database.Q(ctx, s.db).QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: reservation %s", failure.ErrNotFound, id)
		}

		return nil, fmt.Errorf("locking reservation: %w", err)
	}

	return &r, nil
}

func (s *Store) LockReservations(ctx context.Context, ids []uuid.UUID) ([]reservation.Reservation, error) {
	query := `SELECT ` + selectReservationColumns + fromReservations + `
		WHERE r.id = ANY($1::uuid[])
		ORDER BY r.id
		FOR UPDATE OF r`

	return s.queryReservations(ctx, query, idStrings(ids))
}

func (s *Store) CreateReservation(ctx context.Context, r *reservation.Reservation) error {
	query := `
		INSERT INTO reservations (id, budget_line_id, holder_id, state, expires_at, committed_net, committed_gross, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`

	_, err := database.Q(ctx, s.db).ExecContext(ctx, query,
		r.ID, r.BudgetLineID, r.HolderID, r.State, r.ExpiresAt,
		r.CommittedNet, r.CommittedGross, r.CreatedAt, r.UpdatedAt,
	)
	if err != nil {
		if database.IsUniqueViolation(err) {
			return fmt.Errorf("%w: holder already has a hold on this line", failure.ErrConflict)
		}

		return fmt.Errorf("creating reservation: %w", err)
	}

	return nil
}

func (s *Store) RenewReservation(ctx context.Context, id uuid.UUID, expiresAt, now time.Time) error {
	query := `
		UPDATE reservations
		SET state = 'held', expires_at = $1, updated_at = $2
		WHERE id = $3 AND state = 'held'
	`

	res, err := database.Q(ctx, s.db).ExecContext(ctx, query, expiresAt, now, id)
	if err != nil {
		return fmt.Errorf("renewing reservation: %w", err)
	}

	return expectRows(res, 1, id)
}

func (s *Store) ConfirmReservations(ctx context.Context, ids []uuid.UUID, requestID uuid.UUID, now time.Time) error {
	query := `
		UPDATE reservations
		SET state = 'confirmed', expires_at = NULL, request_id = $1, updated_at = $2
		WHERE id = ANY($3::uuid[]) AND state = 'held'
	`

	res, err := database.Q(ctx, s.db).ExecContext(ctx, query, requestID, now, idStrings(ids))
	if err != nil {
		return fmt.Errorf("confirming reservations: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("confirming reservations: %w", err)
	}

	if n != int64(len(ids)) {
		return fmt.Errorf("%w: confirmed %d of %d reservations", failure.ErrConflict, n, len(ids))
	}

	return nil
}

func (s *Store) UpdateCommitted(ctx context.Context, id uuid.UUID, totals finance.Totals, now time.Time) error {
	query := `
		UPDATE reservations
		SET committed_net = $1, committed_gross = $2, updated_at = $3
		WHERE id = $4
	`

	res, err := database.Q(ctx, s.db).ExecContext(ctx, query, totals.Net, totals.Gross, now, id)
	if err != nil {
		return fmt.Errorf("updating committed amounts: %w", err)
	}

	return expectRows(res, 1, id)
}

func (s *Store) DeleteReservation(ctx context.Context, id uuid.UUID) error {
	res, err := database.Q(ctx, s.db).ExecContext(ctx, `DELETE FROM reservations WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("deleting reservation: %w", err)
	}

	return expectRows(res, 1, id)
}

// DeleteExpiredHeld removes held reservations whose expiry lies before now.
// Rows locked by an in-flight confirmation are skipped and left for the
// next run; the outer predicate re-checks state after the lock is taken.
func (s *Store) DeleteExpiredHeld(ctx context.Context, now time.Time) (int64, error) {
	query := `
		DELETE FROM reservations
		WHERE id IN (
			SELECT id FROM reservations
			WHERE state = 'held' AND expires_at < $1
			FOR UPDATE SKIP LOCKED
		)
		AND state = 'held' AND expires_at < $1
	`

	res, err := database.Q(ctx, s.db).ExecContext(ctx, query, now)
	if err != nil {
		return 0, fmt.Errorf("sweeping expired reservations: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("sweeping expired reservations: %w", err)
	}

	return n, nil
}

func expectRows(res sql.Result, want int64, id uuid.UUID) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("reading affected rows: %w", err)
	}

	if n != want {
		return fmt.Errorf("%w: reservation %s", failure.ErrNotFound, id)
	}

	return nil
}
