// Package request implements the lifecycle of a disbursement request:
// creation against held reservations, derivation between approvers,
// observation and resubmission, disbursement, and soft-delete/restore.
package request

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/MrJamesThe3rd/tesoro/internal/catalog"
	"github.com/MrJamesThe3rd/tesoro/internal/clock"
	"github.com/MrJamesThe3rd/tesoro/internal/failure"
	"github.com/MrJamesThe3rd/tesoro/internal/finance"
	"github.com/MrJamesThe3rd/tesoro/internal/logger"
	"github.com/MrJamesThe3rd/tesoro/internal/metrics"
	"github.com/MrJamesThe3rd/tesoro/internal/reservation"
)

//go:generate mockgen -source=service.go -destination=repository_mock.go -package=request
type Repository interface {
	WithTx(ctx context.Context, fn func(ctx context.Context) error) error

	NextSequence(ctx context.Context, year int) (int, error)
	CreateRequest(ctx context.Context, r *Request) error
	SaveRequest(ctx context.Context, r *Request) error
	ReplaceChildren(ctx context.Context, r *Request) error

	GetRequest(ctx context.Context, id uuid.UUID) (*Request, error)
	LockRequest(ctx context.Context, id uuid.UUID, includeDeleted bool) (*Request, error)
	ListRequests(ctx context.Context, filter ListFilter) ([]*Request, error)
}

// Reservations is the part of the reservation manager a request drives. All
// calls join the caller's transaction.
type Reservations interface {
	Confirm(ctx context.Context, ids []uuid.UUID, requestID, userID uuid.UUID) error
	ListByRequest(ctx context.Context, requestID uuid.UUID) ([]reservation.Reservation, error)
	RecalculateCommitted(ctx context.Context, requestID uuid.UUID, subtotals map[uuid.UUID]finance.Totals) error
	Recommit(ctx context.Context, requestID uuid.UUID) error
}

type Catalog interface {
	LoadSnapshot(ctx context.Context) (*catalog.Snapshot, error)
}

type Directory interface {
	Exists(ctx context.Context, id uuid.UUID) (bool, error)
}

type Service struct {
	repo         Repository
	reservations Reservations
	catalog      Catalog
	directory    Directory
	engine       *finance.Engine
	clock        clock.Clock
	log          *logger.Logger
}

type Option func(*Service)

func WithLogger(l *logger.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.log = l
		}
	}
}

func NewService(
	repo Repository,
	reservations Reservations,
	cat Catalog,
	directory Directory,
	engine *finance.Engine,
	clk clock.Clock,
	opts ...Option,
) *Service {
	s := &Service{
		repo:         repo,
		reservations: reservations,
		catalog:      cat,
		directory:    directory,
		engine:       engine,
		clock:        clk,
		log:          logger.NewNop(),
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

type CreateParams struct {
	RequesterID    uuid.UUID
	ApproverID     uuid.UUID
	ReservationIDs []uuid.UUID
	Place          string
	Reason         string
	Description    string
	Details
}

type UpdateParams struct {
	RequestID   uuid.UUID
	RequesterID uuid.UUID
	ApproverID  uuid.UUID
	// AddReservationIDs are further held reservations to bind to the request.
	AddReservationIDs []uuid.UUID
	// Nil header fields keep their current value.
	Place       *string
	Reason      *string
	Description *string
	Details
}

type ListFilter struct {
	ActorID uuid.UUID
	// All lifts the requester-or-approver restriction.
	All   bool
	State *State
}

func CodeFor(year, seq int) string {
	return fmt.Sprintf("SOL-%d-%03d", year, seq)
}

func (s *Service) Create(ctx context.Context, params CreateParams) (*Request, error) {
	if err := checkApprover(params.ApproverID, params.RequesterID); err != nil {
		return nil, err
	}

	ids := distinct(params.ReservationIDs)
	if len(ids) == 0 {
		return nil, fmt.Errorf("%w: at least one held reservation is required", failure.ErrEmptySelection)
	}

	if err := s.ensureUser(ctx, params.ApproverID); err != nil {
		return nil, err
	}

	snap, err := s.catalog.LoadSnapshot(ctx)
	if err != nil {
		return nil, err
	}

	p, err := price(s.engine, snap, params.Details, setOf(ids))
	if err != nil {
		return nil, err
	}

	now := s.clock.Now()
	req := &Request{
		ID:            uuid.New(),
		State:         StatePending,
		RequesterID:   params.RequesterID,
		ApproverID:    &params.ApproverID,
		BeneficiaryID: params.RequesterID,
		Place:         strings.TrimSpace(params.Place),
		Reason:        strings.TrimSpace(params.Reason),
		Description:   strings.TrimSpace(params.Description),
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	p.apply(req)

	err = s.repo.WithTx(ctx, func(ctx context.Context) error {
		seq, err := s.repo.NextSequence(ctx, now.Year())
		if err != nil {
			return err
		}

		req.Code = CodeFor(now.Year(), seq)

		if err := s.repo.CreateRequest(ctx, req); err != nil {
			return err
		}

		if err := s.reservations.Confirm(ctx, ids, req.ID, params.RequesterID); err != nil {
			return err
		}

		if err := s.repo.ReplaceChildren(ctx, req); err != nil {
			return err
		}

		return s.reservations.RecalculateCommitted(ctx, req.ID, p.subtotals)
	})
	if err != nil {
		return nil, err
	}

	s.committed("create", req, "total_gross", req.TotalGross.StringFixed(2), "reservations", len(ids))

	return req, nil
}

// Derive hands a pending request to another approver.
func (s *Service) Derive(ctx context.Context, requestID, actingApproverID, newApproverID uuid.UUID) (*Request, error) {
	var req *Request

	err := s.repo.WithTx(ctx, func(ctx context.Context) error {
		r, err := s.pendingFor(ctx, requestID, actingApproverID)
		if err != nil {
			return err
		}

		if err := checkApprover(newApproverID, r.RequesterID); err != nil {
			return err
		}

		if err := s.ensureUser(ctx, newApproverID); err != nil {
			return err
		}

		r.ApproverID = &newApproverID
		r.UpdatedAt = s.clock.Now()
		req = r

		return s.repo.SaveRequest(ctx, r)
	})
	if err != nil {
		return nil, err
	}

	s.committed("derive", req, "approver_id", newApproverID)

	return req, nil
}

// Observe sends a pending request back to its requester with a note.
func (s *Service) Observe(ctx context.Context, requestID, actingApproverID uuid.UUID, note string) (*Request, error) {
	note = strings.TrimSpace(note)

	var req *Request

	err := s.repo.WithTx(ctx, func(ctx context.Context) error {
		r, err := s.pendingFor(ctx, requestID, actingApproverID)
		if err != nil {
			return err
		}

		if note == "" {
			return fmt.Errorf("%w: an observation note is required", failure.ErrValidation)
		}

		r.State = StateObserved
		r.ObservationNote = &note
		r.ApproverID = &r.RequesterID
		r.UpdatedAt = s.clock.Now()
		req = r

		return s.repo.SaveRequest(ctx, r)
	})
	if err != nil {
		return nil, err
	}

	s.committed("observe", req)

	return req, nil
}

// Update resubmits an observed request. Supplying any child collection
// replaces all of them and reprices the request; otherwise only the header
// changes and the totals stay as they were.
func (s *Service) Update(ctx context.Context, params UpdateParams) (*Request, error) {
	var snap *catalog.Snapshot

	if params.HasChildren() {
		var err error
		if snap, err = s.catalog.LoadSnapshot(ctx); err != nil {
			return nil, err
		}
	}

	added := distinct(params.AddReservationIDs)

	var req *Request

	err := s.repo.WithTx(ctx, func(ctx context.Context) error {
		r, err := s.repo.LockRequest(ctx, params.RequestID, false)
		if err != nil {
			return err
		}

		if r.RequesterID != params.RequesterID {
			return fmt.Errorf("%w: only the requester may update request %s", failure.ErrForbidden, r.Code)
		}

		if r.State != StateObserved {
			return fmt.Errorf("%w: request %s is %s, not observed", failure.ErrInvalidState, r.Code, r.State)
		}

		if err := checkApprover(params.ApproverID, r.RequesterID); err != nil {
			return err
		}

		if err := s.ensureUser(ctx, params.ApproverID); err != nil {
			return err
		}

		if len(added) > 0 {
			if err := s.reservations.Confirm(ctx, added, r.ID, r.RequesterID); err != nil {
				return err
			}
		}

		now := s.clock.Now()
		patchText(&r.Place, params.Place)
		patchText(&r.Reason, params.Reason)
		patchText(&r.Description, params.Description)
		r.ApproverID = &params.ApproverID
		r.ObservationNote = nil
		r.State = StatePending
		r.UpdatedAt = now

		if snap != nil {
			bound, err := s.reservations.ListByRequest(ctx, r.ID)
			if err != nil {
				return err
			}

			allowed := make(map[uuid.UUID]bool, len(bound))
			for _, b := range bound {
				allowed[b.ID] = true
			}

			p, err := price(s.engine, snap, params.Details, allowed)
			if err != nil {
				return err
			}

			p.apply(r)

			if err := s.repo.ReplaceChildren(ctx, r); err != nil {
				return err
			}

			if err := s.reservations.RecalculateCommitted(ctx, r.ID, p.subtotals); err != nil {
				return err
			}
		}

		req = r

		return s.repo.SaveRequest(ctx, r)
	})
	if err != nil {
		return nil, err
	}

	s.committed("update", req, "repriced", snap != nil, "added_reservations", len(added))

	return req, nil
}

// Disburse closes a pending request. canDisburse is the treasury capability
// established by the caller.
func (s *Service) Disburse(ctx context.Context, requestID, actingUserID uuid.UUID, canDisburse bool, code string) (*Request, error) {
	if !canDisburse {
		return nil, fmt.Errorf("%w: user %s lacks the treasury capability", failure.ErrForbidden, actingUserID)
	}

	var req *Request

	err := s.repo.WithTx(ctx, func(ctx context.Context) error {
		r, err := s.repo.LockRequest(ctx, requestID, false)
		if err != nil {
			return err
		}

		if r.State != StatePending {
			return fmt.Errorf("%w: request %s is %s, not pending", failure.ErrInvalidState, r.Code, r.State)
		}

		code = strings.TrimSpace(code)
		if code == "" {
			return fmt.Errorf("%w: a disbursement code is required", failure.ErrValidation)
		}

		r.State = StateDisbursed
		r.DisbursementCode = &code
		r.ApproverID = nil
		r.UpdatedAt = s.clock.Now()
		req = r

		return s.repo.SaveRequest(ctx, r)
	})
	if err != nil {
		return nil, err
	}

	s.committed("disburse", req, "disbursed_by", actingUserID)

	return req, nil
}

// SoftDelete hides a request and frees the budget it committed.
func (s *Service) SoftDelete(ctx context.Context, requestID, requesterID uuid.UUID) error {
	var req *Request

	err := s.repo.WithTx(ctx, func(ctx context.Context) error {
		r, err := s.repo.LockRequest(ctx, requestID, false)
		if err != nil {
			return err
		}

		if r.RequesterID != requesterID {
			return fmt.Errorf("%w: only the requester may delete request %s", failure.ErrForbidden, r.Code)
		}

		now := s.clock.Now()
		r.DeletedAt = &now
		r.UpdatedAt = now
		req = r

		return s.repo.SaveRequest(ctx, r)
	})
	if err != nil {
		return err
	}

	s.committed("delete", req)

	return nil
}

// Restore brings back a soft-deleted request provided its budget lines can
// still carry it.
func (s *Service) Restore(ctx context.Context, requestID uuid.UUID) (*Request, error) {
	var req *Request

	err := s.repo.WithTx(ctx, func(ctx context.Context) error {
		r, err := s.repo.LockRequest(ctx, requestID, true)
		if err != nil {
			return err
		}

		if !r.Deleted() {
			return fmt.Errorf("%w: request %s is not deleted", failure.ErrInvalidState, r.Code)
		}

		r.DeletedAt = nil
		r.UpdatedAt = s.clock.Now()

		if err := s.repo.SaveRequest(ctx, r); err != nil {
			return err
		}

		req = r

		return s.reservations.Recommit(ctx, r.ID)
	})
	if err != nil {
		return nil, err
	}

	s.committed("restore", req)

	return req, nil
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*Request, error) {
	return s.repo.GetRequest(ctx, id)
}

func (s *Service) List(ctx context.Context, filter ListFilter) ([]*Request, error) {
	return s.repo.ListRequests(ctx, filter)
}

// pendingFor locks a pending request whose current approver is actor.
func (s *Service) pendingFor(ctx context.Context, requestID, actor uuid.UUID) (*Request, error) {
	r, err := s.repo.LockRequest(ctx, requestID, false)
	if err != nil {
		return nil, err
	}

	if !r.HasApprover(actor) {
		return nil, fmt.Errorf("%w: request %s is not awaiting user %s", failure.ErrForbidden, r.Code, actor)
	}

	if r.State != StatePending {
		return nil, fmt.Errorf("%w: request %s is %s, not pending", failure.ErrInvalidState, r.Code, r.State)
	}

	return r, nil
}

func (s *Service) ensureUser(ctx context.Context, id uuid.UUID) error {
	ok, err := s.directory.Exists(ctx, id)
	if err != nil {
		return err
	}

	if !ok {
		return fmt.Errorf("%w: user %s", failure.ErrNotFound, id)
	}

	return nil
}

func (s *Service) committed(op string, r *Request, kv ...any) {
	metrics.RequestTransitions.WithLabelValues(op).Inc()
	s.log.Info("request "+op, append([]any{"request_id", r.ID, "code", r.Code, "state", r.State}, kv...)...)
}

func checkApprover(approverID, requesterID uuid.UUID) error {
	if approverID == uuid.Nil {
		return fmt.Errorf("%w: an approver is required", failure.ErrInvalidApprover)
	}

	if approverID == requesterID {
		return fmt.Errorf("%w: requesters cannot approve their own request", failure.ErrInvalidApprover)
	}

	return nil
}

func distinct(ids []uuid.UUID) []uuid.UUID {
	seen := make(map[uuid.UUID]bool, len(ids))
	out := make([]uuid.UUID, 0, len(ids))

	for _, id := range ids {
		if id == uuid.Nil || seen[id] {
			continue
		}

		seen[id] = true
		out = append(out, id)
	}

	return out
}

func setOf(ids []uuid.UUID) map[uuid.UUID]bool {
	set := make(map[uuid.UUID]bool, len(ids))
	for _, id := range ids {
		set[id] = true
	}

	return set
}

func patchText(dst *string, v *string) {
	if v != nil {
		*dst = strings.TrimSpace(*v)
	}
}
