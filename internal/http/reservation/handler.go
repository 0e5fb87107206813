package reservation

import (
	"context"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/MrJamesThe3rd/tesoro/internal/failure"
	"github.com/MrJamesThe3rd/tesoro/internal/http/auth"
	"github.com/MrJamesThe3rd/tesoro/internal/http/respond"
	"github.com/MrJamesThe3rd/tesoro/internal/logger"
	"github.com/MrJamesThe3rd/tesoro/internal/reservation"
)

type Service interface {
	Hold(ctx context.Context, params reservation.HoldParams) (*reservation.Reservation, error)
	Release(ctx context.Context, id, userID uuid.UUID) error
	ListActiveFor(ctx context.Context, userID uuid.UUID) ([]reservation.Reservation, error)
	Available(ctx context.Context, budgetLineID uuid.UUID) (decimal.Decimal, error)
}

type Handler struct {
	svc Service
	log *logger.Logger
}

func NewHandler(svc Service, log *logger.Logger) *Handler {
	return &Handler{svc: svc, log: log}
}

func (h *Handler) Routes(r chi.Router) {
	r.Route("/reservations", func(r chi.Router) {
		r.Post("/", h.hold)
		r.Get("/", h.listActive)
		r.Delete("/{id}", h.release)
	})
	r.Get("/budget-lines/{id}/available", h.available)
}

type holdRequest struct {
	BudgetLineID uuid.UUID `json:"budget_line_id" validate:"required"`
	Kind         string    `json:"kind" validate:"omitempty,oneof=request lock"`
}

func (h *Handler) hold(w http.ResponseWriter, r *http.Request) {
	actor, _ := auth.ActorFrom(r.Context())

	var req holdRequest
	if err := respond.Decode(r, &req); err != nil {
		respond.Error(w, h.log, err)
		return
	}

	kind := reservation.Kind(req.Kind)
	if kind == "" {
		kind = reservation.KindRequest
	}

	res, err := h.svc.Hold(r.Context(), reservation.HoldParams{
		BudgetLineID: req.BudgetLineID,
		HolderID:     actor.ID,
		Kind:         kind,
	})
	if err != nil {
		respond.Error(w, h.log, err)
		return
	}

	respond.JSON(w, h.log, http.StatusOK, res)
}

func (h *Handler) listActive(w http.ResponseWriter, r *http.Request) {
	actor, _ := auth.ActorFrom(r.Context())

	res, err := h.svc.ListActiveFor(r.Context(), actor.ID)
	if err != nil {
		respond.Error(w, h.log, err)
		return
	}

	if res == nil {
		res = []reservation.Reservation{}
	}

	respond.JSON(w, h.log, http.StatusOK, res)
}

func (h *Handler) release(w http.ResponseWriter, r *http.Request) {
	actor, _ := auth.ActorFrom(r.Context())

	id, err := pathID(r)
	if err != nil {
		respond.Error(w, h.log, err)
		return
	}

	if err := h.svc.Release(r.Context(), id, actor.ID); err != nil {
		respond.Error(w, h.log, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

type availableResponse struct {
	BudgetLineID uuid.UUID       `json:"budget_line_id"`
	Available    decimal.Decimal `json:"available"`
}

func (h *Handler) available(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		respond.Error(w, h.log, err)
		return
	}

	amount, err := h.svc.Available(r.Context(), id)
	if err != nil {
		respond.Error(w, h.log, err)
		return
	}

	respond.JSON(w, h.log, http.StatusOK, availableResponse{BudgetLineID: id, Available: amount})
}

func pathID(r *http.Request) (uuid.UUID, error) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		return uuid.Nil, fmt.Errorf("%w: bad id %q", failure.ErrValidation, chi.URLParam(r, "id"))
	}

	return id, nil
}
