package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/MrJamesThe3rd/tesoro/internal/catalog"
	"github.com/MrJamesThe3rd/tesoro/internal/database"
	"github.com/MrJamesThe3rd/tesoro/internal/failure"
	"github.com/MrJamesThe3rd/tesoro/internal/finance"
)

type Store struct {
	db *sql.DB
}

func New(db *sql.DB) *Store {
	return &Store{db: db}
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

func (s *Store) GetPerDiemConcept(ctx context.Context, id uuid.UUID) (*catalog.PerDiemConcept, error) {
	query := `SELECT id, name, institutional_rate, third_party_rate FROM per_diem_concepts WHERE id = $1`

	var c catalog.PerDiemConcept

	err := database.Q(ctx, s.db).QueryRowContext(ctx, query, id).
		Scan(&c.ID, &c.Name, &c.InstitutionalRate, &c.ThirdPartyRate)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: per-diem concept %s", failure.ErrNotFound, id)
		}

		return nil, fmt.Errorf("getting per-diem concept: %w", err)
	}

	return &c, nil
}

func (s *Store) GetExpenseType(ctx context.Context, id uuid.UUID) (*catalog.ExpenseType, error) {
	query := `SELECT id, code, name FROM expense_types WHERE id = $1`

	var t catalog.ExpenseType

	err := database.Q(ctx, s.db).QueryRowContext(ctx, query, id).Scan(&t.ID, &t.Code, &t.Name)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: expense type %s", failure.ErrNotFound, id)
		}

		return nil, fmt.Errorf("getting expense type: %w", err)
	}

	t.Category = finance.ParseExpenseCategory(t.Code)

	return &t, nil
}

// LoadSnapshot reads both rate tables in full.
func (s *Store) LoadSnapshot(ctx context.Context) (*catalog.Snapshot, error) {
	q := database.Q(ctx, s.db)

	rows, err := q.QueryContext(ctx, `SELECT id, name, institutional_rate, third_party_rate FROM per_diem_concepts`)
	if err != nil {
		return nil, fmt.Errorf("listing per-diem concepts: %w", err)
	}
	defer rows.Close()

	var concepts []catalog.PerDiemConcept

	for rows.Next() {
		var c catalog.PerDiemConcept
		if err := rows.Scan(&c.ID, &c.Name, &c.InstitutionalRate, &c.ThirdPartyRate); err != nil {
			return nil, fmt.Errorf("scanning per-diem concept: %w", err)
		}

		concepts = append(concepts, c)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating per-diem concepts: %w", err)
	}

	typeRows, err := q.QueryContext(ctx, `SELECT id, code, name FROM expense_types`)
	if err != nil {
		return nil, fmt.Errorf("listing expense types: %w", err)
	}
	defer typeRows.Close()

	var types []catalog.ExpenseType

	for typeRows.Next() {
		var t catalog.ExpenseType
		if err := typeRows.Scan(&t.ID, &t.Code, &t.Name); err != nil {
			return nil, fmt.Errorf("scanning expense type: %w", err)
		}

		t.Category = finance.ParseExpenseCategory(t.Code)
		types = append(types, t)
	}

	if err := typeRows.Err(); err != nil {
		return nil, fmt.Errorf("iterating expense types: %w", err)
	}

	return catalog.NewSnapshot(concepts, types), nil
}
