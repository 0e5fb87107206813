package request

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/MrJamesThe3rd/tesoro/internal/failure"
	"github.com/MrJamesThe3rd/tesoro/internal/finance"
	"github.com/MrJamesThe3rd/tesoro/internal/request"
)

const dateLayout = "2006-01-02"

type planningDTO struct {
	Activity               string `json:"activity" validate:"required"`
	StartDate              string `json:"start_date" validate:"required,datetime=2006-01-02"`
	EndDate                string `json:"end_date" validate:"required,datetime=2006-01-02"`
	InstitutionalHeadcount int    `json:"institutional_headcount" validate:"gte=0"`
	ThirdPartyHeadcount    int    `json:"third_party_headcount" validate:"gte=0"`
}

type perDiemDTO struct {
	ReservationID uuid.UUID        `json:"reservation_id" validate:"required"`
	PlanningIndex int              `json:"planning_index" validate:"gte=0"`
	ConceptID     uuid.UUID        `json:"concept_id" validate:"required"`
	Destination   string           `json:"destination" validate:"required,oneof=institutional third_party"`
	Days          decimal.Decimal  `json:"days"`
	People        int              `json:"people" validate:"gte=1"`
	UnitRate      *decimal.Decimal `json:"unit_rate,omitempty"`
}

type expenseDTO struct {
	ReservationID uuid.UUID       `json:"reservation_id" validate:"required"`
	ExpenseTypeID uuid.UUID       `json:"expense_type_id" validate:"required"`
	DocumentType  string          `json:"document_type" validate:"required,oneof=invoice receipt"`
	Quantity      int             `json:"quantity" validate:"gte=1"`
	UnitRate      decimal.Decimal `json:"unit_rate"`
	Detail        string          `json:"detail" validate:"max=500"`
}

type partyDTO struct {
	FullName    string `json:"full_name" validate:"required"`
	DocumentID  string `json:"document_id"`
	Institution string `json:"institution"`
}

type detailsDTO struct {
	Planning []planningDTO `json:"planning" validate:"dive"`
	PerDiems []perDiemDTO  `json:"per_diems" validate:"dive"`
	Expenses []expenseDTO  `json:"expenses" validate:"dive"`
	Parties  []partyDTO    `json:"external_parties" validate:"dive"`
}

type createRequest struct {
	ApproverID     uuid.UUID   `json:"approver_id"`
	ReservationIDs []uuid.UUID `json:"reservation_ids"`
	Place          string      `json:"place" validate:"max=200"`
	Reason         string      `json:"reason" validate:"max=500"`
	Description    string      `json:"description"`
	detailsDTO
}

// updateRequest leaves a header field untouched when it is absent.
type updateRequest struct {
	ApproverID        uuid.UUID   `json:"approver_id"`
	AddReservationIDs []uuid.UUID `json:"add_reservation_ids"`
	Place             *string     `json:"place" validate:"omitnil,max=200"`
	Reason            *string     `json:"reason" validate:"omitnil,max=500"`
	Description       *string     `json:"description"`
	detailsDTO
}

type deriveRequest struct {
	ApproverID uuid.UUID `json:"approver_id" validate:"required"`
}

type observeRequest struct {
	Note string `json:"note" validate:"required"`
}

type disburseRequest struct {
	Code string `json:"code" validate:"required,max=64"`
}

func (d detailsDTO) toDetails() (request.Details, error) {
	var out request.Details

	for i, p := range d.Planning {
		start, err := time.Parse(dateLayout, p.StartDate)
		if err != nil {
			return request.Details{}, fmt.Errorf("%w: planning[%d].start_date", failure.ErrValidation, i)
		}

		end, err := time.Parse(dateLayout, p.EndDate)
		if err != nil {
			return request.Details{}, fmt.Errorf("%w: planning[%d].end_date", failure.ErrValidation, i)
		}

		out.Planning = append(out.Planning, request.PlanningInput{
			Activity:               p.Activity,
			StartDate:              start,
			EndDate:                end,
			InstitutionalHeadcount: p.InstitutionalHeadcount,
			ThirdPartyHeadcount:    p.ThirdPartyHeadcount,
		})
	}

	for _, p := range d.PerDiems {
		out.PerDiems = append(out.PerDiems, request.PerDiemInput{
			ReservationID: p.ReservationID,
			PlanningIndex: p.PlanningIndex,
			ConceptID:     p.ConceptID,
			Destination:   finance.Destination(p.Destination),
			Days:          p.Days,
			People:        p.People,
			UnitRate:      p.UnitRate,
		})
	}

	for _, e := range d.Expenses {
		out.Expenses = append(out.Expenses, request.ExpenseInput{
			ReservationID: e.ReservationID,
			ExpenseTypeID: e.ExpenseTypeID,
			DocumentType:  finance.DocumentType(e.DocumentType),
			Quantity:      e.Quantity,
			UnitRate:      e.UnitRate,
			Detail:        e.Detail,
		})
	}

	for _, p := range d.Parties {
		out.Parties = append(out.Parties, request.PartyInput{
			FullName:    p.FullName,
			DocumentID:  p.DocumentID,
			Institution: p.Institution,
		})
	}

	return out, nil
}
