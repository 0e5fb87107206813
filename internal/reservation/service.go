package reservation

import (
	"bytes"
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/MrJamesThe3rd/tesoro/internal/catalog"
	"github.com/MrJamesThe3rd/tesoro/internal/clock"
	"github.com/MrJamesThe3rd/tesoro/internal/failure"
	"github.com/MrJamesThe3rd/tesoro/internal/finance"
	"github.com/MrJamesThe3rd/tesoro/internal/logger"
	"github.com/MrJamesThe3rd/tesoro/internal/metrics"
)

// Repository is the storage contract of the reservation manager. Lock* methods
// take row locks and must run inside WithTx; budget lines are always locked
// before reservations.
type Repository interface {
	WithTx(ctx context.Context, fn func(ctx context.Context) error) error

	GetBudgetLine(ctx context.Context, id uuid.UUID) (*catalog.BudgetLine, error)
	LockBudgetLines(ctx context.Context, ids []uuid.UUID) ([]catalog.BudgetLine, error)
	SumCommitted(ctx context.Context, budgetLineID uuid.UUID) (decimal.Decimal, error)

	ListOnBudgetLine(ctx context.Context, budgetLineID uuid.UUID) ([]Reservation, error)
	ListHeldByHolder(ctx context.Context, holderID uuid.UUID, now time.Time) ([]Reservation, error)
	ListByRequest(ctx context.Context, requestID uuid.UUID) ([]Reservation, error)
	GetReservations(ctx context.Context, ids []uuid.UUID) ([]Reservation, error)
	LockReservation(ctx context.Context, id uuid.UUID) (*Reservation, error)
	LockReservations(ctx context.Context, ids []uuid.UUID) ([]Reservation, error)

	CreateReservation(ctx context.Context, r *Reservation) error
	RenewReservation(ctx context.Context, id uuid.UUID, expiresAt, now time.Time) error
	ConfirmReservations(ctx context.Context, ids []uuid.UUID, requestID uuid.UUID, now time.Time) error
	UpdateCommitted(ctx context.Context, id uuid.UUID, totals finance.Totals, now time.Time) error
	DeleteReservation(ctx context.Context, id uuid.UUID) error
}

const (
	defaultRequestTTL = 30 * time.Minute
	defaultLockTTL    = 2 * time.Minute
)

type Service struct {
	repo       Repository
	clock      clock.Clock
	log        *logger.Logger
	requestTTL time.Duration
	lockTTL    time.Duration
}

type Option func(*Service)

func WithRequestTTL(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.requestTTL = d
		}
	}
}

func WithLockTTL(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.lockTTL = d
		}
	}
}

func WithLogger(l *logger.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.log = l
		}
	}
}

func NewService(repo Repository, clk clock.Clock, opts ...Option) *Service {
	s := &Service{
		repo:       repo,
		clock:      clk,
		log:        logger.NewNop(),
		requestTTL: defaultRequestTTL,
		lockTTL:    defaultLockTTL,
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

type HoldParams struct {
	BudgetLineID uuid.UUID
	HolderID     uuid.UUID
	Kind         Kind
}

func (s *Service) ttl(k Kind) time.Duration {
	if k == KindLock {
		return s.lockTTL
	}

	return s.requestTTL
}

// Hold claims a budget line for the holder, renewing the holder's existing
// held reservation when there is one. The budget line row stays locked for
// the whole check-then-act sequence.
func (s *Service) Hold(ctx context.Context, params HoldParams) (*Reservation, error) {
	now := s.clock.Now()
	expiresAt := now.Add(s.ttl(params.Kind))

	var (
		result  *Reservation
		outcome string
	)

	err := s.repo.WithTx(ctx, func(ctx context.Context) error {
		lines, err := s.repo.LockBudgetLines(ctx, []uuid.UUID{params.BudgetLineID})
		if err != nil {
			return err
		}

		existing, err := s.repo.ListOnBudgetLine(ctx, params.BudgetLineID)
		if err != nil {
			return err
		}

		var own *Reservation

		for i := range existing {
			r := existing[i]

			if r.HolderID != params.HolderID {
				if r.Live(now) {
					outcome = metrics.HoldConflict
					return fmt.Errorf("%w: budget line %s is reserved by another user", failure.ErrConflict, params.BudgetLineID)
				}

				continue
			}

			if r.State == StateHeld {
				own = &existing[i]
			}
		}

		if own != nil {
			if err := s.repo.RenewReservation(ctx, own.ID, expiresAt, now); err != nil {
				return err
			}

			own.ExpiresAt = &expiresAt
			own.UpdatedAt = now
			result = own
			outcome = metrics.HoldRenewed

			return nil
		}

		committed, err := s.repo.SumCommitted(ctx, params.BudgetLineID)
		if err != nil {
			return err
		}

		if !lines[0].TotalAmount.Sub(committed).IsPositive() {
			outcome = metrics.HoldExhausted
			return fmt.Errorf("%w: budget line %s", failure.ErrBudgetExhausted, params.BudgetLineID)
		}

		r := &Reservation{
			ID:             uuid.New(),
			BudgetLineID:   params.BudgetLineID,
			HolderID:       params.HolderID,
			State:          StateHeld,
			ExpiresAt:      &expiresAt,
			CommittedNet:   decimal.Zero,
			CommittedGross: decimal.Zero,
			CreatedAt:      now,
			UpdatedAt:      now,
		}

		if err := s.repo.CreateReservation(ctx, r); err != nil {
			return err
		}

		result = r
		outcome = metrics.HoldCreated

		return nil
	})

	if outcome != "" {
		metrics.ReservationHolds.WithLabelValues(outcome).Inc()
	}

	if err != nil {
		return nil, err
	}

	s.log.Info("budget line held",
		"reservation_id", result.ID,
		"budget_line_id", result.BudgetLineID,
		"holder_id", result.HolderID,
		"outcome", outcome,
		"expires_at", expiresAt,
	)

	return result, nil
}

func (s *Service) Release(ctx context.Context, id, userID uuid.UUID) error {
	err := s.repo.WithTx(ctx, func(ctx context.Context) error {
		r, err := s.repo.LockReservation(ctx, id)
		if err != nil {
			return err
		}

		if r.HolderID != userID {
			return fmt.Errorf("%w: reservation %s belongs to another user", failure.ErrForbidden, id)
		}

		if r.State == StateConfirmed {
			return fmt.Errorf("%w: reservation %s is confirmed", failure.ErrConflict, id)
		}

		return s.repo.DeleteReservation(ctx, id)
	})
	if err != nil {
		return err
	}

	metrics.ReservationsReleased.Inc()
	s.log.Info("reservation released", "reservation_id", id, "holder_id", userID)

	return nil
}

// Confirm attaches held reservations to a request. It joins the caller's
// transaction when there is one.
func (s *Service) Confirm(ctx context.Context, ids []uuid.UUID, requestID, userID uuid.UUID) error {
	ids = dedupe(ids)
	if len(ids) == 0 {
		return failure.ErrEmptySelection
	}

	now := s.clock.Now()

	err := s.repo.WithTx(ctx, func(ctx context.Context) error {
		found, err := s.repo.GetReservations(ctx, ids)
		if err != nil {
			return err
		}

		if len(found) != len(ids) {
			return fmt.Errorf("%w: %d of %d reservations not found", failure.ErrConflict, len(ids)-len(found), len(ids))
		}

		lineIDs := make([]uuid.UUID, 0, len(found))
		for _, r := range found {
			lineIDs = append(lineIDs, r.BudgetLineID)
		}

		if _, err := s.repo.LockBudgetLines(ctx, dedupe(lineIDs)); err != nil {
			return err
		}

		locked, err := s.repo.LockReservations(ctx, ids)
		if err != nil {
			return err
		}

		if len(locked) != len(ids) {
			return fmt.Errorf("%w: reservations changed while confirming", failure.ErrConflict)
		}

		for _, r := range locked {
			if r.HolderID != userID || !r.Active(now) {
				return fmt.Errorf("%w: reservation %s is not an active hold of the requester", failure.ErrConflict, r.ID)
			}
		}

		return s.repo.ConfirmReservations(ctx, ids, requestID, now)
	})
	if err != nil {
		return err
	}

	metrics.ReservationsConfirmed.Add(float64(len(ids)))

	return nil
}

func (s *Service) ListActiveFor(ctx context.Context, userID uuid.UUID) ([]Reservation, error) {
	return s.repo.ListHeldByHolder(ctx, userID, s.clock.Now())
}

func (s *Service) ListByRequest(ctx context.Context, requestID uuid.UUID) ([]Reservation, error) {
	return s.repo.ListByRequest(ctx, requestID)
}

// Available is the line's allocation minus the gross committed by
// non-deleted requests. It is computed on every call.
func (s *Service) Available(ctx context.Context, budgetLineID uuid.UUID) (decimal.Decimal, error) {
	line, err := s.repo.GetBudgetLine(ctx, budgetLineID)
	if err != nil {
		return decimal.Zero, err
	}

	committed, err := s.repo.SumCommitted(ctx, budgetLineID)
	if err != nil {
		return decimal.Zero, err
	}

	return line.TotalAmount.Sub(committed), nil
}

// RecalculateCommitted overwrites the committed subtotals of every
// reservation attached to the request. Reservations absent from subtotals
// are zeroed. The touched budget lines must stay within their allocation.
func (s *Service) RecalculateCommitted(ctx context.Context, requestID uuid.UUID, subtotals map[uuid.UUID]finance.Totals) error {
	now := s.clock.Now()

	return s.repo.WithTx(ctx, func(ctx context.Context) error {
		attached, err := s.repo.ListByRequest(ctx, requestID)
		if err != nil {
			return err
		}

		for _, r := range attached {
			if err := s.repo.UpdateCommitted(ctx, r.ID, subtotals[r.ID], now); err != nil {
				return err
			}
		}

		return s.checkAllocation(ctx, lineIDsOf(attached))
	})
}

// Recommit validates that a restored request may take its budget lines back:
// no other user may hold them and their allocation must cover the request.
func (s *Service) Recommit(ctx context.Context, requestID uuid.UUID) error {
	now := s.clock.Now()

	return s.repo.WithTx(ctx, func(ctx context.Context) error {
		attached, err := s.repo.ListByRequest(ctx, requestID)
		if err != nil {
			return err
		}

		lineIDs := lineIDsOf(attached)

		if _, err := s.repo.LockBudgetLines(ctx, lineIDs); err != nil {
			return err
		}

		for _, lineID := range lineIDs {
			others, err := s.repo.ListOnBudgetLine(ctx, lineID)
			if err != nil {
				return err
			}

			for _, o := range others {
				if o.RequestID != nil && *o.RequestID == requestID {
					continue
				}

				if o.Live(now) && !holdsAny(attached, o.HolderID) {
					return fmt.Errorf("%w: budget line %s is reserved by another user", failure.ErrConflict, lineID)
				}
			}
		}

		return s.checkAllocation(ctx, lineIDs)
	})
}

func (s *Service) checkAllocation(ctx context.Context, lineIDs []uuid.UUID) error {
	lines, err := s.repo.LockBudgetLines(ctx, lineIDs)
	if err != nil {
		return err
	}

	for _, line := range lines {
		committed, err := s.repo.SumCommitted(ctx, line.ID)
		if err != nil {
			return err
		}

		if line.TotalAmount.Sub(committed).IsNegative() {
			return fmt.Errorf("%w: budget line %s would be over-committed by %s",
				failure.ErrBudgetExhausted, line.Code, committed.Sub(line.TotalAmount).StringFixed(2))
		}
	}

	return nil
}

func holdsAny(rs []Reservation, holderID uuid.UUID) bool {
	return slices.ContainsFunc(rs, func(r Reservation) bool { return r.HolderID == holderID })
}

func lineIDsOf(rs []Reservation) []uuid.UUID {
	ids := make([]uuid.UUID, 0, len(rs))
	for _, r := range rs {
		ids = append(ids, r.BudgetLineID)
	}

	return dedupe(ids)
}

// dedupe returns the distinct ids in ascending order, the order in which
// rows are locked.
func dedupe(ids []uuid.UUID) []uuid.UUID {
	out := slices.Clone(ids)
	slices.SortFunc(out, func(a, b uuid.UUID) int { return bytes.Compare(a[:], b[:]) })

	return slices.Compact(out)
}
