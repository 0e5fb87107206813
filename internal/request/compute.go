package request

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/MrJamesThe3rd/tesoro/internal/catalog"
	"github.com/MrJamesThe3rd/tesoro/internal/failure"
	"github.com/MrJamesThe3rd/tesoro/internal/finance"
)

type PlanningInput struct {
	Activity               string
	StartDate              time.Time
	EndDate                time.Time
	InstitutionalHeadcount int
	ThirdPartyHeadcount    int
}

// PerDiemInput references its planning entry by position in Details.Planning.
// A nil UnitRate takes the concept's catalog rate for the destination.
type PerDiemInput struct {
	ReservationID uuid.UUID
	PlanningIndex int
	ConceptID     uuid.UUID
	Destination   finance.Destination
	Days          decimal.Decimal
	People        int
	UnitRate      *decimal.Decimal
}

type ExpenseInput struct {
	ReservationID uuid.UUID
	ExpenseTypeID uuid.UUID
	DocumentType  finance.DocumentType
	Quantity      int
	UnitRate      decimal.Decimal
	Detail        string
}

type PartyInput struct {
	FullName    string
	DocumentID  string
	Institution string
}

// Details are the caller-supplied child collections of a request. They are
// always priced and replaced as a whole.
type Details struct {
	Planning []PlanningInput
	PerDiems []PerDiemInput
	Expenses []ExpenseInput
	Parties  []PartyInput
}

// HasChildren reports whether any child collection was supplied.
func (d Details) HasChildren() bool {
	return len(d.Planning) > 0 || len(d.PerDiems) > 0 || len(d.Expenses) > 0 || len(d.Parties) > 0
}

// priced is the output of one full computation over Details.
type priced struct {
	planning  []PlanningEntry
	perDiems  []PerDiemCharge
	expenses  []ExpenseCharge
	parties   []ExternalParty
	totals    finance.Totals
	subtotals map[uuid.UUID]finance.Totals
	start     *time.Time
	end       *time.Time
}

// apply overwrites the request's children, totals and date range.
func (p *priced) apply(r *Request) {
	r.Planning = p.planning
	r.PerDiems = p.perDiems
	r.Expenses = p.expenses
	r.Parties = p.parties
	r.TotalNet = p.totals.Net
	r.TotalGross = p.totals.Gross
	r.StartDate = p.start
	r.EndDate = p.end
}

// price runs the engine over every line item. Line items may only bind to
// reservations in allowed.
func price(engine *finance.Engine, snap *catalog.Snapshot, d Details, allowed map[uuid.UUID]bool) (*priced, error) {
	out := &priced{
		totals:    finance.Totals{Net: decimal.Zero, Gross: decimal.Zero},
		subtotals: make(map[uuid.UUID]finance.Totals),
	}

	for i, in := range d.Planning {
		if in.EndDate.Before(in.StartDate) {
			return nil, fmt.Errorf("%w: planning entry %d ends before it starts", failure.ErrValidation, i)
		}

		if in.InstitutionalHeadcount < 0 || in.ThirdPartyHeadcount < 0 {
			return nil, fmt.Errorf("%w: planning entry %d has a negative headcount", failure.ErrValidation, i)
		}

		out.planning = append(out.planning, PlanningEntry{
			ID:                     uuid.New(),
			Position:               i,
			Activity:               strings.TrimSpace(in.Activity),
			StartDate:              in.StartDate,
			EndDate:                in.EndDate,
			Days:                   finance.SpanDays(in.StartDate, in.EndDate),
			InstitutionalHeadcount: in.InstitutionalHeadcount,
			ThirdPartyHeadcount:    in.ThirdPartyHeadcount,
		})

		if out.start == nil || in.StartDate.Before(*out.start) {
			out.start = new(in.StartDate)
		}

		if out.end == nil || in.EndDate.After(*out.end) {
			out.end = new(in.EndDate)
		}
	}

	for i, in := range d.PerDiems {
		if in.PlanningIndex < 0 || in.PlanningIndex >= len(out.planning) {
			return nil, fmt.Errorf("%w: per-diem %d references planning index %d of %d",
				failure.ErrValidation, i, in.PlanningIndex, len(out.planning))
		}

		if !allowed[in.ReservationID] {
			return nil, fmt.Errorf("%w: per-diem %d is bound to reservation %s outside this request",
				failure.ErrValidation, i, in.ReservationID)
		}

		if !in.Destination.Valid() {
			return nil, fmt.Errorf("%w: per-diem %d has unknown destination %q", failure.ErrValidation, i, in.Destination)
		}

		if !storable(in.Days) {
			return nil, fmt.Errorf("%w: per-diem %d days %s exceed %d decimal places",
				failure.ErrValidation, i, in.Days, storedPlaces)
		}

		if in.UnitRate != nil && !storable(*in.UnitRate) {
			return nil, fmt.Errorf("%w: per-diem %d unit rate %s exceeds %d decimal places",
				failure.ErrValidation, i, in.UnitRate, storedPlaces)
		}

		concept, err := snap.Concept(in.ConceptID)
		if err != nil {
			return nil, err
		}

		entry := out.planning[in.PlanningIndex]
		if err := finance.CheckPerDiemLimits(in.Days, in.People, in.Destination, entry.Span()); err != nil {
			return nil, fmt.Errorf("per-diem %d: %w", i, err)
		}

		rate := concept.Rate(in.Destination)
		if in.UnitRate != nil {
			rate = *in.UnitRate
		}

		amounts, err := engine.PerDiem(rate, in.Days, in.People)
		if err != nil {
			return nil, fmt.Errorf("per-diem %d: %w", i, err)
		}

		out.perDiems = append(out.perDiems, PerDiemCharge{
			ID:              uuid.New(),
			ReservationID:   in.ReservationID,
			PlanningEntryID: entry.ID,
			ConceptID:       concept.ID,
			Destination:     in.Destination,
			Days:            in.Days,
			People:          in.People,
			UnitRate:        rate,
			Amounts:         amounts,
		})
		out.add(in.ReservationID, amounts)
	}

	for i, in := range d.Expenses {
		if !allowed[in.ReservationID] {
			return nil, fmt.Errorf("%w: expense %d is bound to reservation %s outside this request",
				failure.ErrValidation, i, in.ReservationID)
		}

		if !storable(in.UnitRate) {
			return nil, fmt.Errorf("%w: expense %d unit rate %s exceeds %d decimal places",
				failure.ErrValidation, i, in.UnitRate, storedPlaces)
		}

		expenseType, err := snap.ExpenseType(in.ExpenseTypeID)
		if err != nil {
			return nil, err
		}

		amounts, err := engine.Expense(in.UnitRate, in.Quantity, in.DocumentType, expenseType.Category)
		if err != nil {
			return nil, fmt.Errorf("expense %d: %w", i, err)
		}

		out.expenses = append(out.expenses, ExpenseCharge{
			ID:            uuid.New(),
			ReservationID: in.ReservationID,
			ExpenseTypeID: expenseType.ID,
			DocumentType:  in.DocumentType,
			Quantity:      in.Quantity,
			UnitRate:      in.UnitRate,
			Amounts:       amounts,
			Detail:        strings.TrimSpace(in.Detail),
		})
		out.add(in.ReservationID, amounts)
	}

	for i, in := range d.Parties {
		name := strings.TrimSpace(in.FullName)
		if name == "" {
			return nil, fmt.Errorf("%w: external party %d has no name", failure.ErrValidation, i)
		}

		out.parties = append(out.parties, ExternalParty{
			ID:          uuid.New(),
			FullName:    name,
			DocumentID:  strings.TrimSpace(in.DocumentID),
			Institution: strings.TrimSpace(in.Institution),
		})
	}

	return out, nil
}

func (p *priced) add(reservationID uuid.UUID, b finance.Breakdown) {
	p.totals = p.totals.Add(b)

	sub, ok := p.subtotals[reservationID]
	if !ok {
		sub = finance.Totals{Net: decimal.Zero, Gross: decimal.Zero}
	}

	p.subtotals[reservationID] = sub.Add(b)
}

// storedPlaces is the scale of the days and unit_rate columns.
const storedPlaces = 2

// storable reports whether d fits storedPlaces without rounding.
func storable(d decimal.Decimal) bool {
	return d.Equal(d.Round(storedPlaces))
}
