package request

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/MrJamesThe3rd/tesoro/internal/finance"
)

type State string

const (
	StatePending   State = "pending"
	StateObserved  State = "observed"
	StateDisbursed State = "disbursed"
)

// Request is the aggregate root of a disbursement request. Its children and
// totals are always replaced together.
type Request struct {
	ID               uuid.UUID       `json:"id"`
	Code             string          `json:"code"`
	State            State           `json:"state"`
	RequesterID      uuid.UUID       `json:"requester_id"`
	ApproverID       *uuid.UUID      `json:"approver_id,omitempty"`
	BeneficiaryID    uuid.UUID       `json:"beneficiary_id"`
	Place            string          `json:"place"`
	Reason           string          `json:"reason"`
	Description      string          `json:"description"`
	TotalNet         decimal.Decimal `json:"total_net"`
	TotalGross       decimal.Decimal `json:"total_gross"`
	ObservationNote  *string         `json:"observation_note,omitempty"`
	DisbursementCode *string         `json:"disbursement_code,omitempty"`
	StartDate        *time.Time      `json:"start_date,omitempty"`
	EndDate          *time.Time      `json:"end_date,omitempty"`
	CreatedAt        time.Time       `json:"created_at"`
	UpdatedAt        time.Time       `json:"updated_at"`
	DeletedAt        *time.Time      `json:"deleted_at,omitempty"`

	Planning []PlanningEntry `json:"planning"`
	PerDiems []PerDiemCharge `json:"per_diems"`
	Expenses []ExpenseCharge `json:"expenses"`
	Parties  []ExternalParty `json:"external_parties"`
}

// Deleted reports whether the request is soft-deleted.
func (r *Request) Deleted() bool {
	return r.DeletedAt != nil
}

// HasApprover reports whether id is the approver the request waits on.
func (r *Request) HasApprover(id uuid.UUID) bool {
	return r.ApproverID != nil && *r.ApproverID == id
}

type PlanningEntry struct {
	ID                     uuid.UUID `json:"id"`
	Position               int       `json:"position"`
	Activity               string    `json:"activity"`
	StartDate              time.Time `json:"start_date"`
	EndDate                time.Time `json:"end_date"`
	Days                   int       `json:"days"`
	InstitutionalHeadcount int       `json:"institutional_headcount"`
	ThirdPartyHeadcount    int       `json:"third_party_headcount"`
}

func (p PlanningEntry) Span() finance.Span {
	return finance.Span{
		Start:         p.StartDate,
		End:           p.EndDate,
		Institutional: p.InstitutionalHeadcount,
		ThirdParty:    p.ThirdPartyHeadcount,
	}
}

type PerDiemCharge struct {
	ID              uuid.UUID           `json:"id"`
	ReservationID   uuid.UUID           `json:"reservation_id"`
	PlanningEntryID uuid.UUID           `json:"planning_entry_id"`
	ConceptID       uuid.UUID           `json:"concept_id"`
	Destination     finance.Destination `json:"destination"`
	Days            decimal.Decimal     `json:"days"`
	People          int                 `json:"people"`
	UnitRate        decimal.Decimal     `json:"unit_rate"`
	Amounts         finance.Breakdown   `json:"amounts"`
}

type ExpenseCharge struct {
	ID            uuid.UUID            `json:"id"`
	ReservationID uuid.UUID            `json:"reservation_id"`
	ExpenseTypeID uuid.UUID            `json:"expense_type_id"`
	DocumentType  finance.DocumentType `json:"document_type"`
	Quantity      int                  `json:"quantity"`
	UnitRate      decimal.Decimal      `json:"unit_rate"`
	Amounts       finance.Breakdown    `json:"amounts"`
	Detail        string               `json:"detail"`
}

type ExternalParty struct {
	ID          uuid.UUID `json:"id"`
	FullName    string    `json:"full_name"`
	DocumentID  string    `json:"document_id"`
	Institution string    `json:"institution"`
}
