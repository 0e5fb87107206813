// Package catalog holds the read-only lookup tables the core consults:
// budget lines, per-diem concepts and expense types.
package catalog

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/MrJamesThe3rd/tesoro/internal/failure"
	"github.com/MrJamesThe3rd/tesoro/internal/finance"
)

// BudgetLine is a fixed, pre-allocated spending ceiling. TotalAmount never
// changes once the line exists.
type BudgetLine struct {
	ID          uuid.UUID
	Code        string
	Label       string
	Category    string
	TotalAmount decimal.Decimal
}

// PerDiemConcept carries the daily unit rates per destination.
type PerDiemConcept struct {
	ID                uuid.UUID
	Name              string
	InstitutionalRate decimal.Decimal
	ThirdPartyRate    decimal.Decimal
}

func (c PerDiemConcept) Rate(dest finance.Destination) decimal.Decimal {
	if dest == finance.DestinationInstitutional {
		return c.InstitutionalRate
	}

	return c.ThirdPartyRate
}

// ExpenseType is resolved to a closed category when read from storage.
type ExpenseType struct {
	ID       uuid.UUID
	Code     string
	Name     string
	Category finance.ExpenseCategory
}

// Reader is implemented by catalog/store.
type Reader interface {
	GetBudgetLine(ctx context.Context, id uuid.UUID) (*BudgetLine, error)
	GetPerDiemConcept(ctx context.Context, id uuid.UUID) (*PerDiemConcept, error)
	GetExpenseType(ctx context.Context, id uuid.UUID) (*ExpenseType, error)
	LoadSnapshot(ctx context.Context) (*Snapshot, error)
}

// Snapshot is an immutable in-memory copy of the rate tables, taken once per
// request computation.
type Snapshot struct {
	concepts     map[uuid.UUID]PerDiemConcept
	expenseTypes map[uuid.UUID]ExpenseType
}

func NewSnapshot(concepts []PerDiemConcept, expenseTypes []ExpenseType) *Snapshot {
	s := &Snapshot{
		concepts:     make(map[uuid.UUID]PerDiemConcept, len(concepts)),
		expenseTypes: make(map[uuid.UUID]ExpenseType, len(expenseTypes)),
	}

	for _, c := range concepts {
		s.concepts[c.ID] = c
	}

	for _, t := range expenseTypes {
		s.expenseTypes[t.ID] = t
	}

	return s
}

func (s *Snapshot) Concept(id uuid.UUID) (PerDiemConcept, error) {
	c, ok := s.concepts[id]
	if !ok {
		return PerDiemConcept{}, fmt.Errorf("%w: per-diem concept %s", failure.ErrNotFound, id)
	}

	return c, nil
}

func (s *Snapshot) ExpenseType(id uuid.UUID) (ExpenseType, error) {
	t, ok := s.expenseTypes[id]
	if !ok {
		return ExpenseType{}, fmt.Errorf("%w: expense type %s", failure.ErrNotFound, id)
	}

	return t, nil
}
