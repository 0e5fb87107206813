package request_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/MrJamesThe3rd/tesoro/internal/catalog"
	"github.com/MrJamesThe3rd/tesoro/internal/clock"
	"github.com/MrJamesThe3rd/tesoro/internal/failure"
	"github.com/MrJamesThe3rd/tesoro/internal/finance"
	"github.com/MrJamesThe3rd/tesoro/internal/request"
	"github.com/MrJamesThe3rd/tesoro/internal/reservation"
)

var now = time.Date(2026, 6, 1, 9, 30, 0, 0, time.UTC)

type mocks struct {
	repo         *request.MockRepository
	reservations *request.MockReservations
	catalog      *request.MockCatalog
	directory    *request.MockDirectory
}

func newService(t *testing.T) (*request.Service, mocks) {
	t.Helper()

	ctrl := gomock.NewController(t)
	m := mocks{
		repo:         request.NewMockRepository(ctrl),
		reservations: request.NewMockReservations(ctrl),
		catalog:      request.NewMockCatalog(ctrl),
		directory:    request.NewMockDirectory(ctrl),
	}

	svc := request.NewService(m.repo, m.reservations, m.catalog, m.directory,
		finance.NewEngine(finance.TaxModeAdditive), clock.NewFixed(now))

	return svc, m
}

func expectTx(m mocks) {
	m.repo.EXPECT().
		WithTx(gomock.Any(), gomock.Any()).
		DoAndReturn(func(ctx context.Context, fn func(context.Context) error) error {
			return fn(ctx)
		})
}

type fixture struct {
	concept     catalog.PerDiemConcept
	purchase    catalog.ExpenseType
	snapshot    *catalog.Snapshot
	requester   uuid.UUID
	approver    uuid.UUID
	reservation [2]uuid.UUID
}

func newFixture() fixture {
	f := fixture{
		concept: catalog.PerDiemConcept{
			ID:                uuid.New(),
			Name:              "Viaticos",
			InstitutionalRate: decimal.RequireFromString("100"),
			ThirdPartyRate:    decimal.RequireFromString("80"),
		},
		purchase:    catalog.ExpenseType{ID: uuid.New(), Code: "COMPRA", Category: finance.CategoryPurchase},
		requester:   uuid.New(),
		approver:    uuid.New(),
		reservation: [2]uuid.UUID{uuid.New(), uuid.New()},
	}
	f.snapshot = catalog.NewSnapshot([]catalog.PerDiemConcept{f.concept}, []catalog.ExpenseType{f.purchase})

	return f
}

func (f fixture) details() request.Details {
	return request.Details{
		Planning: []request.PlanningInput{{
			Activity:               "Taller",
			StartDate:              time.Date(2026, 6, 10, 0, 0, 0, 0, time.UTC),
			EndDate:                time.Date(2026, 6, 11, 0, 0, 0, 0, time.UTC),
			InstitutionalHeadcount: 3,
			ThirdPartyHeadcount:    1,
		}},
		PerDiems: []request.PerDiemInput{{
			ReservationID: f.reservation[0],
			PlanningIndex: 0,
			ConceptID:     f.concept.ID,
			Destination:   finance.DestinationInstitutional,
			Days:          decimal.NewFromInt(2),
			People:        3,
		}},
		Expenses: []request.ExpenseInput{{
			ReservationID: f.reservation[1],
			ExpenseTypeID: f.purchase.ID,
			DocumentType:  finance.DocumentReceipt,
			Quantity:      2,
			UnitRate:      decimal.RequireFromString("50"),
			Detail:        "Material",
		}},
		Parties: []request.PartyInput{{FullName: "Ana Quispe", Institution: "UMSS"}},
	}
}

func (f fixture) createParams() request.CreateParams {
	return request.CreateParams{
		RequesterID:    f.requester,
		ApproverID:     f.approver,
		ReservationIDs: f.reservation[:],
		Details:        f.details(),
	}
}

func TestService_Create(t *testing.T) {
	ctx := context.Background()

	t.Run("Success", func(t *testing.T) {
		svc, m := newService(t)
		f := newFixture()

		m.directory.EXPECT().Exists(gomock.Any(), f.approver).Return(true, nil)
		m.catalog.EXPECT().LoadSnapshot(gomock.Any()).Return(f.snapshot, nil)
		expectTx(m)
		m.repo.EXPECT().NextSequence(gomock.Any(), 2026).Return(7, nil)
		m.repo.EXPECT().CreateRequest(gomock.Any(), gomock.Any()).Return(nil)
		m.reservations.EXPECT().
			Confirm(gomock.Any(), []uuid.UUID{f.reservation[0], f.reservation[1]}, gomock.Any(), f.requester).
			Return(nil)
		m.repo.EXPECT().ReplaceChildren(gomock.Any(), gomock.Any()).Return(nil)
		m.reservations.EXPECT().
			RecalculateCommitted(gomock.Any(), gomock.Any(), gomock.Any()).
			DoAndReturn(func(_ context.Context, _ uuid.UUID, subtotals map[uuid.UUID]finance.Totals) error {
				assert.Equal(t, "696.00", subtotals[f.reservation[0]].Gross.StringFixed(2))
				assert.Equal(t, "108.00", subtotals[f.reservation[1]].Gross.StringFixed(2))
				return nil
			})

		got, err := svc.Create(ctx, f.createParams())
		require.NoError(t, err)

		assert.Equal(t, "SOL-2026-007", got.Code)
		assert.Equal(t, request.StatePending, got.State)
		assert.Equal(t, f.requester, got.BeneficiaryID)
		assert.True(t, got.HasApprover(f.approver))
		assert.Equal(t, "700.00", got.TotalNet.StringFixed(2))
		assert.Equal(t, "804.00", got.TotalGross.StringFixed(2))
		require.NotNil(t, got.StartDate)
		require.NotNil(t, got.EndDate)
		assert.Equal(t, 10, got.StartDate.Day())
		assert.Equal(t, 11, got.EndDate.Day())
		require.Len(t, got.Planning, 1)
		assert.Equal(t, 2, got.Planning[0].Days)
		require.Len(t, got.PerDiems, 1)
		assert.Equal(t, got.Planning[0].ID, got.PerDiems[0].PlanningEntryID)
		assert.Equal(t, "100", got.PerDiems[0].UnitRate.String())
		require.Len(t, got.Expenses, 1)
		assert.Equal(t, "5.00", got.Expenses[0].Amounts.IUE.StringFixed(2))
		require.Len(t, got.Parties, 1)
	})

	t.Run("DanglingPlanningIndexPersistsNothing", func(t *testing.T) {
		svc, m := newService(t)
		f := newFixture()

		params := f.createParams()
		params.Expenses = nil
		params.PerDiems = []request.PerDiemInput{
			{ReservationID: f.reservation[0], PlanningIndex: 3, ConceptID: f.concept.ID,
				Destination: finance.DestinationInstitutional, Days: decimal.NewFromInt(1), People: 1},
			{ReservationID: f.reservation[1], PlanningIndex: 5, ConceptID: f.concept.ID,
				Destination: finance.DestinationInstitutional, Days: decimal.NewFromInt(1), People: 1},
		}

		m.directory.EXPECT().Exists(gomock.Any(), f.approver).Return(true, nil)
		m.catalog.EXPECT().LoadSnapshot(gomock.Any()).Return(f.snapshot, nil)

		_, err := svc.Create(ctx, params)
		require.ErrorIs(t, err, failure.ErrValidation)
	})

	t.Run("SelfApproval", func(t *testing.T) {
		svc, _ := newService(t)
		f := newFixture()

		params := f.createParams()
		params.ApproverID = f.requester

		_, err := svc.Create(ctx, params)
		assert.ErrorIs(t, err, failure.ErrInvalidApprover)
	})

	t.Run("EmptySelection", func(t *testing.T) {
		svc, _ := newService(t)
		f := newFixture()

		params := f.createParams()
		params.ReservationIDs = nil

		_, err := svc.Create(ctx, params)
		assert.ErrorIs(t, err, failure.ErrEmptySelection)
	})

	t.Run("UnknownApprover", func(t *testing.T) {
		svc, m := newService(t)
		f := newFixture()

		m.directory.EXPECT().Exists(gomock.Any(), f.approver).Return(false, nil)

		_, err := svc.Create(ctx, f.createParams())
		assert.ErrorIs(t, err, failure.ErrNotFound)
	})

	t.Run("PeopleAboveHeadcount", func(t *testing.T) {
		svc, m := newService(t)
		f := newFixture()

		params := f.createParams()
		params.PerDiems[0].People = 4

		m.directory.EXPECT().Exists(gomock.Any(), f.approver).Return(true, nil)
		m.catalog.EXPECT().LoadSnapshot(gomock.Any()).Return(f.snapshot, nil)

		_, err := svc.Create(ctx, params)
		assert.ErrorIs(t, err, failure.ErrOutOfRange)
	})

	t.Run("LineItemOnForeignReservation", func(t *testing.T) {
		svc, m := newService(t)
		f := newFixture()

		params := f.createParams()
		params.Expenses[0].ReservationID = uuid.New()

		m.directory.EXPECT().Exists(gomock.Any(), f.approver).Return(true, nil)
		m.catalog.EXPECT().LoadSnapshot(gomock.Any()).Return(f.snapshot, nil)

		_, err := svc.Create(ctx, params)
		assert.ErrorIs(t, err, failure.ErrValidation)
	})

	t.Run("AmountsFinerThanCents", func(t *testing.T) {
		tests := []struct {
			name   string
			adjust func(*request.CreateParams)
		}{
			{
				name: "PerDiemRateOverride",
				adjust: func(p *request.CreateParams) {
					p.PerDiems[0].UnitRate = new(decimal.RequireFromString("33.335"))
				},
			},
			{
				name: "PerDiemDays",
				adjust: func(p *request.CreateParams) {
					p.PerDiems[0].Days = decimal.RequireFromString("1.125")
				},
			},
			{
				name: "ExpenseRate",
				adjust: func(p *request.CreateParams) {
					p.Expenses[0].UnitRate = decimal.RequireFromString("33.335")
				},
			},
		}

		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				svc, m := newService(t)
				f := newFixture()

				params := f.createParams()
				tt.adjust(&params)

				m.directory.EXPECT().Exists(gomock.Any(), f.approver).Return(true, nil)
				m.catalog.EXPECT().LoadSnapshot(gomock.Any()).Return(f.snapshot, nil)

				_, err := svc.Create(ctx, params)
				assert.ErrorIs(t, err, failure.ErrValidation)
			})
		}
	})

	t.Run("TrailingZerosAccepted", func(t *testing.T) {
		f := newFixture()
		params := f.createParams()
		params.Expenses[0].UnitRate = decimal.RequireFromString("50.500")

		svc, m := newService(t)
		m.directory.EXPECT().Exists(gomock.Any(), f.approver).Return(true, nil)
		m.catalog.EXPECT().LoadSnapshot(gomock.Any()).Return(f.snapshot, nil)
		expectTx(m)
		m.repo.EXPECT().NextSequence(gomock.Any(), 2026).Return(1, nil)
		m.repo.EXPECT().CreateRequest(gomock.Any(), gomock.Any()).Return(nil)
		m.reservations.EXPECT().Confirm(gomock.Any(), gomock.Any(), gomock.Any(), f.requester).Return(nil)
		m.repo.EXPECT().ReplaceChildren(gomock.Any(), gomock.Any()).Return(nil)
		m.reservations.EXPECT().RecalculateCommitted(gomock.Any(), gomock.Any(), gomock.Any()).Return(nil)

		got, err := svc.Create(ctx, params)
		require.NoError(t, err)
		require.Len(t, got.Expenses, 1)
		assert.Equal(t, "50.50", got.Expenses[0].UnitRate.StringFixed(2))
	})

	t.Run("ConfirmConflictAbortsBeforeChildren", func(t *testing.T) {
		svc, m := newService(t)
		f := newFixture()

		m.directory.EXPECT().Exists(gomock.Any(), f.approver).Return(true, nil)
		m.catalog.EXPECT().LoadSnapshot(gomock.Any()).Return(f.snapshot, nil)
		expectTx(m)
		m.repo.EXPECT().NextSequence(gomock.Any(), 2026).Return(1, nil)
		m.repo.EXPECT().CreateRequest(gomock.Any(), gomock.Any()).Return(nil)
		m.reservations.EXPECT().
			Confirm(gomock.Any(), gomock.Any(), gomock.Any(), f.requester).
			Return(failure.ErrConflict)

		_, err := svc.Create(ctx, f.createParams())
		assert.ErrorIs(t, err, failure.ErrConflict)
	})

	t.Run("StorageErrorIsInternal", func(t *testing.T) {
		svc, m := newService(t)
		f := newFixture()

		m.directory.EXPECT().Exists(gomock.Any(), f.approver).Return(true, nil)
		m.catalog.EXPECT().LoadSnapshot(gomock.Any()).Return(f.snapshot, nil)
		expectTx(m)
		m.repo.EXPECT().NextSequence(gomock.Any(), 2026).Return(0, errors.New("connection reset"))

		_, err := svc.Create(ctx, f.createParams())
		require.Error(t, err)
		assert.Equal(t, failure.KindInternal, failure.KindOf(err))
	})
}

func pendingRequest(requester, approver uuid.UUID) *request.Request {
	return &request.Request{
		ID:          uuid.New(),
		Code:        "SOL-2026-001",
		State:       request.StatePending,
		RequesterID: requester,
		ApproverID:  &approver,
		TotalNet:    decimal.RequireFromString("700"),
		TotalGross:  decimal.RequireFromString("804"),
	}
}

func TestService_Derive(t *testing.T) {
	ctx := context.Background()
	requester, approver, next := uuid.New(), uuid.New(), uuid.New()

	tests := []struct {
		name    string
		actor   uuid.UUID
		state   request.State
		target  uuid.UUID
		exists  *bool
		wantErr error
	}{
		{name: "Success", actor: approver, state: request.StatePending, target: next, exists: new(true)},
		{name: "NotTheApprover", actor: requester, state: request.StatePending, target: next, wantErr: failure.ErrForbidden},
		{name: "NotPending", actor: approver, state: request.StateObserved, target: next, wantErr: failure.ErrInvalidState},
		{name: "UnknownTarget", actor: approver, state: request.StatePending, target: next, exists: new(false), wantErr: failure.ErrNotFound},
		{name: "ToRequester", actor: approver, state: request.StatePending, target: requester, wantErr: failure.ErrInvalidApprover},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, m := newService(t)
			req := pendingRequest(requester, approver)
			req.State = tt.state

			expectTx(m)
			m.repo.EXPECT().LockRequest(gomock.Any(), req.ID, false).Return(req, nil)

			if tt.exists != nil {
				m.directory.EXPECT().Exists(gomock.Any(), tt.target).Return(*tt.exists, nil)
			}

			if tt.wantErr == nil {
				m.repo.EXPECT().SaveRequest(gomock.Any(), req).Return(nil)
			}

			got, err := svc.Derive(ctx, req.ID, tt.actor, tt.target)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}

			require.NoError(t, err)
			assert.True(t, got.HasApprover(next))
			assert.Equal(t, request.StatePending, got.State)
			assert.Equal(t, "804.00", got.TotalGross.StringFixed(2))
		})
	}
}

func TestService_ObserveThenUpdateWithoutApprover(t *testing.T) {
	ctx := context.Background()
	svc, m := newService(t)
	requester, approver := uuid.New(), uuid.New()
	req := pendingRequest(requester, approver)

	m.repo.EXPECT().
		WithTx(gomock.Any(), gomock.Any()).
		DoAndReturn(func(ctx context.Context, fn func(context.Context) error) error { return fn(ctx) }).
		Times(2)
	m.repo.EXPECT().LockRequest(gomock.Any(), req.ID, false).Return(req, nil).Times(2)
	m.repo.EXPECT().SaveRequest(gomock.Any(), req).Return(nil)

	observed, err := svc.Observe(ctx, req.ID, approver, "Falta el itinerario")
	require.NoError(t, err)
	assert.Equal(t, request.StateObserved, observed.State)
	assert.True(t, observed.HasApprover(requester))
	require.NotNil(t, observed.ObservationNote)
	assert.Equal(t, "Falta el itinerario", *observed.ObservationNote)

	_, err = svc.Update(ctx, request.UpdateParams{RequestID: req.ID, RequesterID: requester})
	assert.ErrorIs(t, err, failure.ErrInvalidApprover)
	assert.Equal(t, request.StateObserved, req.State)
}

func TestService_Observe(t *testing.T) {
	ctx := context.Background()
	requester, approver := uuid.New(), uuid.New()

	t.Run("NotTheApprover", func(t *testing.T) {
		svc, m := newService(t)
		req := pendingRequest(requester, approver)

		expectTx(m)
		m.repo.EXPECT().LockRequest(gomock.Any(), req.ID, false).Return(req, nil)

		_, err := svc.Observe(ctx, req.ID, uuid.New(), "nota")
		assert.ErrorIs(t, err, failure.ErrForbidden)
	})

	t.Run("BlankNote", func(t *testing.T) {
		svc, m := newService(t)
		req := pendingRequest(requester, approver)

		expectTx(m)
		m.repo.EXPECT().LockRequest(gomock.Any(), req.ID, false).Return(req, nil)

		_, err := svc.Observe(ctx, req.ID, approver, "   ")
		assert.ErrorIs(t, err, failure.ErrValidation)
	})
}

func observedRequest(requester uuid.UUID) *request.Request {
	req := pendingRequest(requester, requester)
	req.State = request.StateObserved
	req.ObservationNote = new("corregir montos")

	return req
}

func TestService_Update(t *testing.T) {
	ctx := context.Background()

	t.Run("HeaderOnlyKeepsTotals", func(t *testing.T) {
		svc, m := newService(t)
		requester, approver := uuid.New(), uuid.New()
		req := observedRequest(requester)

		expectTx(m)
		m.repo.EXPECT().LockRequest(gomock.Any(), req.ID, false).Return(req, nil)
		m.directory.EXPECT().Exists(gomock.Any(), approver).Return(true, nil)
		m.repo.EXPECT().SaveRequest(gomock.Any(), req).Return(nil)

		got, err := svc.Update(ctx, request.UpdateParams{
			RequestID:   req.ID,
			RequesterID: requester,
			ApproverID:  approver,
			Place:       new(" La Paz "),
			Reason:      new("Reunion"),
		})
		require.NoError(t, err)

		assert.Equal(t, request.StatePending, got.State)
		assert.Nil(t, got.ObservationNote)
		assert.True(t, got.HasApprover(approver))
		assert.Equal(t, "La Paz", got.Place)
		assert.Equal(t, "Reunion", got.Reason)
		assert.Equal(t, "804.00", got.TotalGross.StringFixed(2))
	})

	t.Run("HeaderOnlyOmittedFieldsKept", func(t *testing.T) {
		svc, m := newService(t)
		requester, approver := uuid.New(), uuid.New()
		req := observedRequest(requester)
		req.Place = "Cochabamba"
		req.Reason = "Taller regional"
		req.Description = "Segunda jornada"

		expectTx(m)
		m.repo.EXPECT().LockRequest(gomock.Any(), req.ID, false).Return(req, nil)
		m.directory.EXPECT().Exists(gomock.Any(), approver).Return(true, nil)
		m.repo.EXPECT().SaveRequest(gomock.Any(), req).Return(nil)

		got, err := svc.Update(ctx, request.UpdateParams{
			RequestID:   req.ID,
			RequesterID: requester,
			ApproverID:  approver,
			Reason:      new(""),
		})
		require.NoError(t, err)

		assert.Equal(t, "Cochabamba", got.Place)
		assert.Equal(t, "", got.Reason)
		assert.Equal(t, "Segunda jornada", got.Description)
		assert.True(t, got.HasApprover(approver))
	})

	t.Run("FullReplaceReprices", func(t *testing.T) {
		svc, m := newService(t)
		f := newFixture()
		req := observedRequest(f.requester)
		added := uuid.New()

		details := f.details()
		details.PerDiems[0].UnitRate = new(decimal.RequireFromString("50"))
		details.Expenses[0].ReservationID = added

		m.catalog.EXPECT().LoadSnapshot(gomock.Any()).Return(f.snapshot, nil)
		expectTx(m)
		m.repo.EXPECT().LockRequest(gomock.Any(), req.ID, false).Return(req, nil)
		m.directory.EXPECT().Exists(gomock.Any(), f.approver).Return(true, nil)
		m.reservations.EXPECT().Confirm(gomock.Any(), []uuid.UUID{added}, req.ID, f.requester).Return(nil)
		m.reservations.EXPECT().ListByRequest(gomock.Any(), req.ID).Return([]reservation.Reservation{
			{ID: f.reservation[0]}, {ID: added},
		}, nil)
		m.repo.EXPECT().ReplaceChildren(gomock.Any(), req).Return(nil)
		m.reservations.EXPECT().RecalculateCommitted(gomock.Any(), req.ID, gomock.Any()).Return(nil)
		m.repo.EXPECT().SaveRequest(gomock.Any(), req).Return(nil)

		got, err := svc.Update(ctx, request.UpdateParams{
			RequestID:         req.ID,
			RequesterID:       f.requester,
			ApproverID:        f.approver,
			AddReservationIDs: []uuid.UUID{added},
			Details:           details,
		})
		require.NoError(t, err)

		// 50 x 2 days x 3 people = 300 -> 348; 100 -> 108
		assert.Equal(t, "400.00", got.TotalNet.StringFixed(2))
		assert.Equal(t, "456.00", got.TotalGross.StringFixed(2))
		assert.Equal(t, request.StatePending, got.State)
	})

	t.Run("NotTheRequester", func(t *testing.T) {
		svc, m := newService(t)
		req := observedRequest(uuid.New())

		expectTx(m)
		m.repo.EXPECT().LockRequest(gomock.Any(), req.ID, false).Return(req, nil)

		_, err := svc.Update(ctx, request.UpdateParams{RequestID: req.ID, RequesterID: uuid.New(), ApproverID: uuid.New()})
		assert.ErrorIs(t, err, failure.ErrForbidden)
	})

	t.Run("NotObserved", func(t *testing.T) {
		svc, m := newService(t)
		requester := uuid.New()
		req := pendingRequest(requester, uuid.New())

		expectTx(m)
		m.repo.EXPECT().LockRequest(gomock.Any(), req.ID, false).Return(req, nil)

		_, err := svc.Update(ctx, request.UpdateParams{RequestID: req.ID, RequesterID: requester, ApproverID: uuid.New()})
		assert.ErrorIs(t, err, failure.ErrInvalidState)
	})
}

func TestService_Disburse(t *testing.T) {
	ctx := context.Background()
	requester, approver, treasurer := uuid.New(), uuid.New(), uuid.New()

	t.Run("Success", func(t *testing.T) {
		svc, m := newService(t)
		req := pendingRequest(requester, approver)

		expectTx(m)
		m.repo.EXPECT().LockRequest(gomock.Any(), req.ID, false).Return(req, nil)
		m.repo.EXPECT().SaveRequest(gomock.Any(), req).Return(nil)

		got, err := svc.Disburse(ctx, req.ID, treasurer, true, "CH-0042")
		require.NoError(t, err)
		assert.Equal(t, request.StateDisbursed, got.State)
		assert.Nil(t, got.ApproverID)
		require.NotNil(t, got.DisbursementCode)
		assert.Equal(t, "CH-0042", *got.DisbursementCode)
	})

	t.Run("AlreadyDisbursed", func(t *testing.T) {
		svc, m := newService(t)
		req := pendingRequest(requester, approver)
		req.State = request.StateDisbursed
		req.ApproverID = nil

		expectTx(m)
		m.repo.EXPECT().LockRequest(gomock.Any(), req.ID, false).Return(req, nil)

		_, err := svc.Disburse(ctx, req.ID, treasurer, true, "CH-0043")
		assert.ErrorIs(t, err, failure.ErrInvalidState)
	})

	t.Run("MissingCapability", func(t *testing.T) {
		svc, _ := newService(t)

		_, err := svc.Disburse(ctx, uuid.New(), requester, false, "CH-0044")
		assert.ErrorIs(t, err, failure.ErrForbidden)
	})

	t.Run("MissingCode", func(t *testing.T) {
		svc, m := newService(t)
		req := pendingRequest(requester, approver)

		expectTx(m)
		m.repo.EXPECT().LockRequest(gomock.Any(), req.ID, false).Return(req, nil)

		_, err := svc.Disburse(ctx, req.ID, treasurer, true, " ")
		assert.ErrorIs(t, err, failure.ErrValidation)
	})
}

func TestService_SoftDeleteAndRestore(t *testing.T) {
	ctx := context.Background()
	requester, approver := uuid.New(), uuid.New()

	t.Run("OnlyRequesterDeletes", func(t *testing.T) {
		svc, m := newService(t)
		req := pendingRequest(requester, approver)

		expectTx(m)
		m.repo.EXPECT().LockRequest(gomock.Any(), req.ID, false).Return(req, nil)

		err := svc.SoftDelete(ctx, req.ID, approver)
		assert.ErrorIs(t, err, failure.ErrForbidden)
	})

	t.Run("DeleteSetsTimestamp", func(t *testing.T) {
		svc, m := newService(t)
		req := pendingRequest(requester, approver)

		expectTx(m)
		m.repo.EXPECT().LockRequest(gomock.Any(), req.ID, false).Return(req, nil)
		m.repo.EXPECT().SaveRequest(gomock.Any(), req).Return(nil)

		require.NoError(t, svc.SoftDelete(ctx, req.ID, requester))
		require.NotNil(t, req.DeletedAt)
		assert.True(t, req.DeletedAt.Equal(now))
	})

	t.Run("RestoreRecommits", func(t *testing.T) {
		svc, m := newService(t)
		req := pendingRequest(requester, approver)
		req.DeletedAt = new(now.Add(-time.Hour))

		expectTx(m)
		m.repo.EXPECT().LockRequest(gomock.Any(), req.ID, true).Return(req, nil)
		m.repo.EXPECT().SaveRequest(gomock.Any(), req).Return(nil)
		m.reservations.EXPECT().Recommit(gomock.Any(), req.ID).Return(nil)

		got, err := svc.Restore(ctx, req.ID)
		require.NoError(t, err)
		assert.False(t, got.Deleted())
	})

	t.Run("RestoreLosesLine", func(t *testing.T) {
		svc, m := newService(t)
		req := pendingRequest(requester, approver)
		req.DeletedAt = new(now.Add(-time.Hour))

		expectTx(m)
		m.repo.EXPECT().LockRequest(gomock.Any(), req.ID, true).Return(req, nil)
		m.repo.EXPECT().SaveRequest(gomock.Any(), req).Return(nil)
		m.reservations.EXPECT().Recommit(gomock.Any(), req.ID).Return(failure.ErrConflict)

		_, err := svc.Restore(ctx, req.ID)
		assert.ErrorIs(t, err, failure.ErrConflict)
	})

	t.Run("RestoreLiveRequest", func(t *testing.T) {
		svc, m := newService(t)
		req := pendingRequest(requester, approver)

		expectTx(m)
		m.repo.EXPECT().LockRequest(gomock.Any(), req.ID, true).Return(req, nil)

		_, err := svc.Restore(ctx, req.ID)
		assert.ErrorIs(t, err, failure.ErrInvalidState)
	})
}
