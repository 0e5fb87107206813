package reservation_test

import (
	"bytes"
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/MrJamesThe3rd/tesoro/internal/catalog"
	"github.com/MrJamesThe3rd/tesoro/internal/failure"
	"github.com/MrJamesThe3rd/tesoro/internal/finance"
	"github.com/MrJamesThe3rd/tesoro/internal/reservation"
)

type txKey struct{}

// fakeRepo is an in-memory Repository. WithTx serializes whole transactions,
// which stands in for the budget line row lock.
type fakeRepo struct {
	txMu sync.Mutex
	mu   sync.Mutex

	lines        map[uuid.UUID]catalog.BudgetLine
	reservations map[uuid.UUID]reservation.Reservation
	deleted      map[uuid.UUID]bool // request id -> soft-deleted
}

func newFakeRepo(lines ...catalog.BudgetLine) *fakeRepo {
	f := &fakeRepo{
		lines:        make(map[uuid.UUID]catalog.BudgetLine),
		reservations: make(map[uuid.UUID]reservation.Reservation),
		deleted:      make(map[uuid.UUID]bool),
	}

	for _, l := range lines {
		f.lines[l.ID] = l
	}

	return f
}

func (f *fakeRepo) addConfirmed(lineID, holderID, requestID uuid.UUID, gross string, requestDeleted bool) reservation.Reservation {
	f.mu.Lock()
	defer f.mu.Unlock()

	r := reservation.Reservation{
		ID:             uuid.New(),
		BudgetLineID:   lineID,
		HolderID:       holderID,
		State:          reservation.StateConfirmed,
		RequestID:      &requestID,
		CommittedNet:   decimal.RequireFromString(gross),
		CommittedGross: decimal.RequireFromString(gross),
	}
	f.reservations[r.ID] = r
	f.deleted[requestID] = requestDeleted

	return r
}

func (f *fakeRepo) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()

	return len(f.reservations)
}

func (f *fakeRepo) get(id uuid.UUID) (reservation.Reservation, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()

	r, ok := f.reservations[id]

	return f.decorate(r), ok
}

func (f *fakeRepo) decorate(r reservation.Reservation) reservation.Reservation {
	r.RequestLive = false
	if r.RequestID != nil {
		deleted, known := f.deleted[*r.RequestID]
		r.RequestLive = known && !deleted
	}

	return r
}

func (f *fakeRepo) filter(keep func(reservation.Reservation) bool) []reservation.Reservation {
	f.mu.Lock()
	defer f.mu.Unlock()

	var out []reservation.Reservation

	for _, r := range f.reservations {
		r = f.decorate(r)
		if keep(r) {
			out = append(out, r)
		}
	}

	slices.SortFunc(out, func(a, b reservation.Reservation) int { return bytes.Compare(a.ID[:], b.ID[:]) })

	return out
}

func (f *fakeRepo) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if ctx.Value(txKey{}) != nil {
		return fn(ctx)
	}

	f.txMu.Lock()
	defer f.txMu.Unlock()

	f.mu.Lock()
	snapshot := make(map[uuid.UUID]reservation.Reservation, len(f.reservations))
	for k, v := range f.reservations {
		snapshot[k] = v
	}
	f.mu.Unlock()

	if err := fn(context.WithValue(ctx, txKey{}, true)); err != nil {
		f.mu.Lock()
		f.reservations = snapshot
		f.mu.Unlock()

		return err
	}

	return nil
}

func (f *fakeRepo) GetBudgetLine(_ context.Context, id uuid.UUID) (*catalog.BudgetLine, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	l, ok := f.lines[id]
	if !ok {
		return nil, fmt.Errorf("%w: budget line %s", failure.ErrNotFound, id)
	}

	return &l, nil
}

func (f *fakeRepo) LockBudgetLines(ctx context.Context, ids []uuid.UUID) ([]catalog.BudgetLine, error) {
	out := make([]catalog.BudgetLine, 0, len(ids))

	for _, id := range ids {
		l, err := f.GetBudgetLine(ctx, id)
		if err != nil {
			return nil, err
		}

		out = append(out, *l)
	}

	return out, nil
}

func (f *fakeRepo) SumCommitted(_ context.Context, budgetLineID uuid.UUID) (decimal.Decimal, error) {
	sum := decimal.Zero

	for _, r := range f.filter(func(r reservation.Reservation) bool {
		return r.BudgetLineID == budgetLineID && r.State == reservation.StateConfirmed && r.RequestLive
	}) {
		sum = sum.Add(r.CommittedGross)
	}

	return sum, nil
}

func (f *fakeRepo) ListOnBudgetLine(_ context.Context, budgetLineID uuid.UUID) ([]reservation.Reservation, error) {
	return f.filter(func(r reservation.Reservation) bool { return r.BudgetLineID == budgetLineID }), nil
}

func (f *fakeRepo) ListHeldByHolder(_ context.Context, holderID uuid.UUID, now time.Time) ([]reservation.Reservation, error) {
	return f.filter(func(r reservation.Reservation) bool { return r.HolderID == holderID && r.Active(now) }), nil
}

func (f *fakeRepo) ListByRequest(_ context.Context, requestID uuid.UUID) ([]reservation.Reservation, error) {
	return f.filter(func(r reservation.Reservation) bool { return r.RequestID != nil && *r.RequestID == requestID }), nil
}

func (f *fakeRepo) GetReservations(_ context.Context, ids []uuid.UUID) ([]reservation.Reservation, error) {
	return f.filter(func(r reservation.Reservation) bool { return slices.Contains(ids, r.ID) }), nil
}

func (f *fakeRepo) LockReservation(_ context.Context, id uuid.UUID) (*reservation.Reservation, error) {
	r, ok := f.get(id)
	if !ok {
		return nil, fmt.Errorf("%w: reservation %s", failure.ErrNotFound, id)
	}

	return &r, nil
}

func (f *fakeRepo) LockReservations(ctx context.Context, ids []uuid.UUID) ([]reservation.Reservation, error) {
	return f.GetReservations(ctx, ids)
}

func (f *fakeRepo) CreateReservation(_ context.Context, r *reservation.Reservation) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	for _, existing := range f.reservations {
		if existing.State == reservation.StateHeld && existing.BudgetLineID == r.BudgetLineID && existing.HolderID == r.HolderID {
			return fmt.Errorf("%w: duplicate held reservation", failure.ErrConflict)
		}
	}

	f.reservations[r.ID] = *r

	return nil
}

func (f *fakeRepo) RenewReservation(_ context.Context, id uuid.UUID, expiresAt, now time.Time) error {
	return f.update(id, func(r *reservation.Reservation) {
		r.ExpiresAt = &expiresAt
		r.UpdatedAt = now
	})
}

func (f *fakeRepo) ConfirmReservations(_ context.Context, ids []uuid.UUID, requestID uuid.UUID, now time.Time) error {
	f.mu.Lock()
	if _, ok := f.deleted[requestID]; !ok {
		f.deleted[requestID] = false
	}
	f.mu.Unlock()

	for _, id := range ids {
		err := f.update(id, func(r *reservation.Reservation) {
			r.State = reservation.StateConfirmed
			r.ExpiresAt = nil
			r.RequestID = &requestID
			r.UpdatedAt = now
		})
		if err != nil {
			return err
		}
	}

	return nil
}

func (f *fakeRepo) UpdateCommitted(_ context.Context, id uuid.UUID, totals finance.Totals, now time.Time) error {
	return f.update(id, func(r *reservation.Reservation) {
		r.CommittedNet = totals.Net
		r.CommittedGross = totals.Gross
		r.UpdatedAt = now
	})
}

func (f *fakeRepo) DeleteReservation(_ context.Context, id uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if _, ok := f.reservations[id]; !ok {
		return fmt.Errorf("%w: reservation %s", failure.ErrNotFound, id)
	}

	delete(f.reservations, id)

	return nil
}

func (f *fakeRepo) DeleteExpiredHeld(_ context.Context, now time.Time) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	var n int64

	for id, r := range f.reservations {
		if r.State == reservation.StateHeld && r.ExpiresAt != nil && r.ExpiresAt.Before(now) {
			delete(f.reservations, id)
			n++
		}
	}

	return n, nil
}

func (f *fakeRepo) update(id uuid.UUID, fn func(r *reservation.Reservation)) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	r, ok := f.reservations[id]
	if !ok {
		return fmt.Errorf("%w: reservation %s", failure.ErrNotFound, id)
	}

	fn(&r)
	f.reservations[id] = r

	return nil
}

func (f *fakeRepo) setDeleted(requestID uuid.UUID, deleted bool) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.deleted[requestID] = deleted
}
