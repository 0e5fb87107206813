// Package reservation implements time-boxed, user-scoped claims on budget
// lines and the availability arithmetic that keeps a line's commitments
// within its allocation.
package reservation

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type State string

const (
	StateHeld      State = "held"
	StateConfirmed State = "confirmed"
)

// Kind selects which TTL a hold receives.
type Kind string

const (
	KindRequest Kind = "request"
	KindLock    Kind = "lock"
)

type Reservation struct {
	ID             uuid.UUID       `json:"id"`
	BudgetLineID   uuid.UUID       `json:"budget_line_id"`
	HolderID       uuid.UUID       `json:"holder_id"`
	State          State           `json:"state"`
	ExpiresAt      *time.Time      `json:"expires_at,omitempty"`
	RequestID      *uuid.UUID      `json:"request_id,omitempty"`
	CommittedNet   decimal.Decimal `json:"committed_net"`
	CommittedGross decimal.Decimal `json:"committed_gross"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`

	// RequestLive is true when the reservation is attached to a request
	// that has not been soft-deleted. It is read-only and filled by storage.
	RequestLive bool `json:"-"`
}

// Active reports whether a held reservation has not yet expired at now.
func (r Reservation) Active(now time.Time) bool {
	return r.State == StateHeld && r.ExpiresAt != nil && r.ExpiresAt.After(now)
}

// Live reports whether the reservation currently excludes other users from
// its budget line.
func (r Reservation) Live(now time.Time) bool {
	if r.State == StateConfirmed {
		return r.RequestLive
	}

	return r.Active(now)
}
