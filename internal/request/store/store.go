package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/MrJamesThe3rd/tesoro/internal/database"
	"github.com/MrJamesThe3rd/tesoro/internal/failure"
	"github.com/MrJamesThe3rd/tesoro/internal/finance"
	"github.com/MrJamesThe3rd/tesoro/internal/request"
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

// Expected column order: id, code, state, requester_id, approver_id, beneficiary_id, place, reason,
// description, total_net, total_gross, observation_note, disbursement_code, start_date, end_date,
// created_at, updated_at, deleted_at
const selectRequestColumns = `
	id, code, state, requester_id, approver_id, beneficiary_id, place, reason,
	description, total_net, total_gross, observation_note, disbursement_code, start_date, end_date,
	created_at, updated_at, deleted_at
`

func scanRequest(s scanner) (*request.Request, error) {
	var (
		r     request.Request
		state string
	)

	if err := s.Scan(
		&r.ID, &r.Code, &state, &r.RequesterID, &r.ApproverID, &r.BeneficiaryID, &r.Place, &r.Reason,
		&r.Description, &r.TotalNet, &r.TotalGross, &r.ObservationNote, &r.DisbursementCode, &r.StartDate, &r.EndDate,
		&r.CreatedAt, &r.UpdatedAt, &r.DeletedAt,
	); err != nil {
		return nil, err
	}

	r.State = request.State(state)

	return &r, nil
}

// NextSequence allocates the next request number of the year. The counter
// row stays locked until the surrounding transaction ends.
func (s *Store) NextSequence(ctx context.Context, year int) (int, error) {
	query := `
		INSERT INTO request_sequences (year, last_value) VALUES ($1, 1)
		ON CONFLICT (year) DO UPDATE SET last_value = request_sequences.last_value + 1
		RETURNING last_value
	`

	var n int
	if err := database.Q(ctx, s.db).QueryRowContext(ctx, query, year).Scan(&n); err != nil {
		return 0, fmt.Errorf("allocating request sequence: %w", err)
	}

	return n, nil
}

func (s *Store) CreateRequest(ctx context.Context, r *request.Request) error {
	query := `
		INSERT INTO requests (
			id, code, state, requester_id, approver_id, beneficiary_id, place, reason,
			description, total_net, total_gross, observation_note, disbursement_code, start_date, end_date,
			created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)
	`

	_, err := database.Q(ctx, s.db).ExecContext(ctx, query,
		r.ID, r.Code, r.State, r.RequesterID, r.ApproverID, r.BeneficiaryID, r.Place, r.Reason,
		r.Description, r.TotalNet, r.TotalGross, r.ObservationNote, r.DisbursementCode, r.StartDate, r.EndDate,
		r.CreatedAt, r.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}

	return nil
}

func (s *Store) SaveRequest(ctx context.Context, r *request.Request) error {
	query := `
		UPDATE requests
		SET state = $1, approver_id = $2, place = $3, reason = $4, description = $5,
			total_net = $6, total_gross = $7, observation_note = $8, disbursement_code = $9,
			start_date = $10, end_date = $11, updated_at = $12, deleted_at = $13
		WHERE id = $14
	`

	res, err := database.Q(ctx, s.db).ExecContext(ctx, query,
		r.State, r.ApproverID, r.Place, r.Reason, r.Description,
		r.TotalNet, r.TotalGross, r.ObservationNote, r.DisbursementCode,
		r.StartDate, r.EndDate, r.UpdatedAt, r.DeletedAt,
		r.ID,
	)
	if err != nil {
		return fmt.Errorf("saving request: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("saving request: %w", err)
	}

	if n == 0 {
		return fmt.Errorf("%w: request %s", failure.ErrNotFound, r.ID)
	}

	return nil
}

// ReplaceChildren deletes every child row of the request and inserts the
// ones currently on r.
func (s *Store) ReplaceChildren(ctx context.Context, r *request.Request) error {
	q := database.Q(ctx, s.db)

	for _, table := range []string{"per_diem_charges", "expense_charges", "external_parties", "planning_entries"} {
		if _, err := q.ExecContext(ctx, `DELETE FROM `+table+` WHERE request_id = $1`, r.ID); err != nil {
			return fmt.Errorf("clearing %s: %w", table, err)
		}
	}

	for _, p := range r.Planning {
		_, err := q.ExecContext(ctx, `
			INSERT INTO planning_entries (id, request_id, position, activity, start_date, end_date, days,
				institutional_headcount, third_party_headcount)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
			p.ID, r.ID, p.Position, p.Activity, p.StartDate, p.EndDate, p.Days,
			p.InstitutionalHeadcount, p.ThirdPartyHeadcount,
		)
		if err != nil {
			return fmt.Errorf("inserting planning entry: %w", err)
		}
	}

	for _, c := range r.PerDiems {
		_, err := q.ExecContext(ctx, `
			INSERT INTO per_diem_charges (id, request_id, reservation_id, planning_entry_id, concept_id, destination,
				days, people, unit_rate, net_amount, iva, it, gross_amount)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`,
			c.ID, r.ID, c.ReservationID, c.PlanningEntryID, c.ConceptID, c.Destination,
			c.Days, c.People, c.UnitRate, c.Amounts.Net, c.Amounts.IVA, c.Amounts.IT, c.Amounts.Gross,
		)
		if err != nil {
			return fmt.Errorf("inserting per-diem charge: %w", err)
		}
	}

	for _, c := range r.Expenses {
		_, err := q.ExecContext(ctx, `
			INSERT INTO expense_charges (id, request_id, reservation_id, expense_type_id, document_type,
				quantity, unit_rate, net_amount, iva, it, iue, gross_amount, detail)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`,
			c.ID, r.ID, c.ReservationID, c.ExpenseTypeID, c.DocumentType,
			c.Quantity, c.UnitRate, c.Amounts.Net, c.Amounts.IVA, c.Amounts.IT, c.Amounts.IUE, c.Amounts.Gross, c.Detail,
		)
		if err != nil {
			return fmt.Errorf("inserting expense charge: %w", err)
		}
	}

	for _, p := range r.Parties {
		_, err := q.ExecContext(ctx, `
			INSERT INTO external_parties (id, request_id, full_name, document_id, institution)
			VALUES ($1, $2, $3, $4, $5)`,
			p.ID, r.ID, p.FullName, p.DocumentID, p.Institution,
		)
		if err != nil {
			return fmt.Errorf("inserting external party: %w", err)
		}
	}

	return nil
}

func (s *Store) GetRequest(ctx context.Context, id uuid.UUID) (*request.Request, error) {
	query := `SELECT ` + selectRequestColumns + ` FROM requests WHERE id = $1 AND deleted_at IS NULL`

	r, err := scanRequest(database.Q(ctx, s.db).QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: request %s", failure.ErrNotFound, id)
		}

		return nil, fmt.Errorf("getting request: %w", err)
	}

	if err := s.loadChildren(ctx, r); err != nil {
		return nil, err
	}

	return r, nil
}

// LockRequest reads the request header with a row lock. Children are not
// loaded.
func (s *Store) LockRequest(ctx context.Context, id uuid.UUID, includeDeleted bool) (*request.Request, error) {
	query := `SELECT ` + selectRequestColumns + ` FROM requests WHERE id = $1`
	if !includeDeleted {
		query += ` AND deleted_at IS NULL`
	}

	query += ` FOR UPDATE`

	r, err := scanRequest(database.Q(ctx, s.db).QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: request %s", failure.ErrNotFound, id)
		}

		return nil, fmt.Errorf("locking request: %w", err)
	}

	return r, nil
}

func (s *Store) ListRequests(ctx context.Context, filter request.ListFilter) ([]*request.Request, error) {
	query := `SELECT ` + selectRequestColumns + ` FROM requests WHERE deleted_at IS NULL`

	var args []any

	argIdx := 1

	if !filter.All {
		query += fmt.Sprintf(" AND (requester_id = $%d OR approver_id = $%d)", argIdx, argIdx)

		args = append(args, filter.ActorID)
		argIdx++
	}

	if filter.State != nil {
		query += fmt.Sprintf(" AND state = $%d", argIdx)

		args = append(args, *filter.State)
	}

	query += " ORDER BY created_at DESC"

	rows, err := database.Q(ctx, s.db).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing requests: %w", err)
	}
	defer rows.Close()

	var out []*request.Request

	for rows.Next() {
		r, err := scanRequest(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning request: %w", err)
		}

		out = append(out, r)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating requests: %w", err)
	}

	return out, nil
}

func (s *Store) loadChildren(ctx context.Context, r *request.Request) error {
	q := database.Q(ctx, s.db)

	planning, err := q.QueryContext(ctx, `
		SELECT id, position, activity, start_date, end_date, days, institutional_headcount, third_party_headcount
		FROM planning_entries WHERE request_id = $1 ORDER BY position`, r.ID)
	if err != nil {
		return fmt.Errorf("listing planning entries: %w", err)
	}
	defer planning.Close()

	for planning.Next() {
		var p request.PlanningEntry
		if err := planning.Scan(&p.ID, &p.Position, &p.Activity, &p.StartDate, &p.EndDate, &p.Days,
			&p.InstitutionalHeadcount, &p.ThirdPartyHeadcount); err != nil {
			return fmt.Errorf("scanning planning entry: %w", err)
		}

		r.Planning = append(r.Planning, p)
	}

	if err := planning.Err(); err != nil {
		return fmt.Errorf("iterating planning entries: %w", err)
	}

	perDiems, err := q.QueryContext(ctx, `
		SELECT id, reservation_id, planning_entry_id, concept_id, destination, days, people, unit_rate,
			net_amount, iva, it, gross_amount
		FROM per_diem_charges WHERE request_id = $1 ORDER BY id`, r.ID)
	if err != nil {
		return fmt.Errorf("listing per-diem charges: %w", err)
	}
	defer perDiems.Close()

	for perDiems.Next() {
		var (
			c    request.PerDiemCharge
			dest string
		)

		if err := perDiems.Scan(&c.ID, &c.ReservationID, &c.PlanningEntryID, &c.ConceptID, &dest, &c.Days, &c.People,
			&c.UnitRate, &c.Amounts.Net, &c.Amounts.IVA, &c.Amounts.IT, &c.Amounts.Gross); err != nil {
			return fmt.Errorf("scanning per-diem charge: %w", err)
		}

		c.Destination = finance.Destination(dest)
		r.PerDiems = append(r.PerDiems, c)
	}

	if err := perDiems.Err(); err != nil {
		return fmt.Errorf("iterating per-diem charges: %w", err)
	}

	expenses, err := q.QueryContext(ctx, `
		SELECT id, reservation_id, expense_type_id, document_type, quantity, unit_rate,
			net_amount, iva, it, iue, gross_amount, detail
		FROM expense_charges WHERE request_id = $1 ORDER BY id`, r.ID)
	if err != nil {
		return fmt.Errorf("listing expense charges: %w", err)
	}
	defer expenses.Close()

	for expenses.Next() {
		var (
			c   request.ExpenseCharge
			doc string
		)

		if err := expenses.Scan(&c.ID, &c.ReservationID, &c.ExpenseTypeID, &doc, &c.Quantity, &c.UnitRate,
			&c.Amounts.Net, &c.Amounts.IVA, &c.Amounts.IT, &c.Amounts.IUE, &c.Amounts.Gross, &c.Detail); err != nil {
			return fmt.Errorf("scanning expense charge: %w", err)
		}

		c.DocumentType = finance.DocumentType(doc)
		r.Expenses = append(r.Expenses, c)
	}

	if err := expenses.Err(); err != nil {
		return fmt.Errorf("iterating expense charges: %w", err)
	}

	parties, err := q.QueryContext(ctx, `
		SELECT id, full_name, document_id, institution
		FROM external_parties WHERE request_id = $1 ORDER BY full_name`, r.ID)
	if err != nil {
		return fmt.Errorf("listing external parties: %w", err)
	}
	defer parties.Close()

	for parties.Next() {
		var p request.ExternalParty
		if err := parties.Scan(&p.ID, &p.FullName, &p.DocumentID, &p.Institution); err != nil {
			return fmt.Errorf("scanning external party: %w", err)
		}

		r.Parties = append(r.Parties, p)
	}

	return parties.Err()
}
