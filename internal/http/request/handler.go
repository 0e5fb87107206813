package request

import (
	"context"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/MrJamesThe3rd/tesoro/internal/failure"
	"github.com/MrJamesThe3rd/tesoro/internal/http/auth"
	"github.com/MrJamesThe3rd/tesoro/internal/http/respond"
	"github.com/MrJamesThe3rd/tesoro/internal/logger"
	"github.com/MrJamesThe3rd/tesoro/internal/request"
)

type Service interface {
	Create(ctx context.Context, params request.CreateParams) (*request.Request, error)
	Update(ctx context.Context, params request.UpdateParams) (*request.Request, error)
	Derive(ctx context.Context, requestID, actingApproverID, newApproverID uuid.UUID) (*request.Request, error)
	Observe(ctx context.Context, requestID, actingApproverID uuid.UUID, note string) (*request.Request, error)
	Disburse(ctx context.Context, requestID, actingUserID uuid.UUID, canDisburse bool, code string) (*request.Request, error)
	SoftDelete(ctx context.Context, requestID, requesterID uuid.UUID) error
	Restore(ctx context.Context, requestID uuid.UUID) (*request.Request, error)
	Get(ctx context.Context, id uuid.UUID) (*request.Request, error)
	List(ctx context.Context, filter request.ListFilter) ([]*request.Request, error)
}

type Handler struct {
	svc Service
	log *logger.Logger
}

func NewHandler(svc Service, log *logger.Logger) *Handler {
	return &Handler{svc: svc, log: log}
}

func (h *Handler) Routes(r chi.Router) {
	r.Route("/requests", func(r chi.Router) {
		r.Post("/", h.create)
		r.Get("/", h.list)

		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", h.get)
			r.Put("/", h.update)
			r.Delete("/", h.softDelete)
			r.Post("/derive", h.derive)
			r.Post("/observe", h.observe)
			r.Post("/disburse", h.disburse)
			r.Post("/restore", h.restore)
		})
	})
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	actor, _ := auth.ActorFrom(r.Context())

	var body createRequest
	if err := respond.Decode(r, &body); err != nil {
		respond.Error(w, h.log, err)
		return
	}

	details, err := body.toDetails()
	if err != nil {
		respond.Error(w, h.log, err)
		return
	}

	req, err := h.svc.Create(r.Context(), request.CreateParams{
		RequesterID:    actor.ID,
		ApproverID:     body.ApproverID,
		ReservationIDs: body.ReservationIDs,
		Place:          body.Place,
		Reason:         body.Reason,
		Description:    body.Description,
		Details:        details,
	})
	if err != nil {
		respond.Error(w, h.log, err)
		return
	}

	respond.JSON(w, h.log, http.StatusCreated, req)
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	actor, _ := auth.ActorFrom(r.Context())

	filter := request.ListFilter{ActorID: actor.ID, All: actor.Role.SeesAll()}

	if s := r.URL.Query().Get("state"); s != "" {
		state := request.State(s)
		switch state {
		case request.StatePending, request.StateObserved, request.StateDisbursed:
		default:
			respond.Error(w, h.log, fmt.Errorf("%w: unknown state %q", failure.ErrValidation, s))
			return
		}

		filter.State = &state
	}

	reqs, err := h.svc.List(r.Context(), filter)
	if err != nil {
		respond.Error(w, h.log, err)
		return
	}

	if reqs == nil {
		reqs = []*request.Request{}
	}

	respond.JSON(w, h.log, http.StatusOK, reqs)
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	actor, _ := auth.ActorFrom(r.Context())

	id, err := pathID(r)
	if err != nil {
		respond.Error(w, h.log, err)
		return
	}

	req, err := h.svc.Get(r.Context(), id)
	if err != nil {
		respond.Error(w, h.log, err)
		return
	}

	if req.RequesterID != actor.ID && !req.HasApprover(actor.ID) && !actor.Role.SeesAll() {
		respond.Error(w, h.log, fmt.Errorf("%w: request %s", failure.ErrForbidden, req.Code))
		return
	}

	respond.JSON(w, h.log, http.StatusOK, req)
}

func (h *Handler) update(w http.ResponseWriter, r *http.Request) {
	actor, _ := auth.ActorFrom(r.Context())

	id, err := pathID(r)
	if err != nil {
		respond.Error(w, h.log, err)
		return
	}

	var body updateRequest
	if err := respond.Decode(r, &body); err != nil {
		respond.Error(w, h.log, err)
		return
	}

	details, err := body.toDetails()
	if err != nil {
		respond.Error(w, h.log, err)
		return
	}

	req, err := h.svc.Update(r.Context(), request.UpdateParams{
		RequestID:         id,
		RequesterID:       actor.ID,
		ApproverID:        body.ApproverID,
		AddReservationIDs: body.AddReservationIDs,
		Place:             body.Place,
		Reason:            body.Reason,
		Description:       body.Description,
		Details:           details,
	})
	if err != nil {
		respond.Error(w, h.log, err)
		return
	}

	respond.JSON(w, h.log, http.StatusOK, req)
}

func (h *Handler) softDelete(w http.ResponseWriter, r *http.Request) {
	actor, _ := auth.ActorFrom(r.Context())

	id, err := pathID(r)
	if err != nil {
		respond.Error(w, h.log, err)
		return
	}

	if err := h.svc.SoftDelete(r.Context(), id, actor.ID); err != nil {
		respond.Error(w, h.log, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) derive(w http.ResponseWriter, r *http.Request) {
	actor, _ := auth.ActorFrom(r.Context())

	id, err := pathID(r)
	if err != nil {
		respond.Error(w, h.log, err)
		return
	}

	var body deriveRequest
	if err := respond.Decode(r, &body); err != nil {
		respond.Error(w, h.log, err)
		return
	}

	req, err := h.svc.Derive(r.Context(), id, actor.ID, body.ApproverID)
	if err != nil {
		respond.Error(w, h.log, err)
		return
	}

	respond.JSON(w, h.log, http.StatusOK, req)
}

func (h *Handler) observe(w http.ResponseWriter, r *http.Request) {
	actor, _ := auth.ActorFrom(r.Context())

	id, err := pathID(r)
	if err != nil {
		respond.Error(w, h.log, err)
		return
	}

	var body observeRequest
	if err := respond.Decode(r, &body); err != nil {
		respond.Error(w, h.log, err)
		return
	}

	req, err := h.svc.Observe(r.Context(), id, actor.ID, body.Note)
	if err != nil {
		respond.Error(w, h.log, err)
		return
	}

	respond.JSON(w, h.log, http.StatusOK, req)
}

func (h *Handler) disburse(w http.ResponseWriter, r *http.Request) {
	actor, _ := auth.ActorFrom(r.Context())

	id, err := pathID(r)
	if err != nil {
		respond.Error(w, h.log, err)
		return
	}

	var body disburseRequest
	if err := respond.Decode(r, &body); err != nil {
		respond.Error(w, h.log, err)
		return
	}

	req, err := h.svc.Disburse(r.Context(), id, actor.ID, actor.Role.CanDisburse(), body.Code)
	if err != nil {
		respond.Error(w, h.log, err)
		return
	}

	respond.JSON(w, h.log, http.StatusOK, req)
}

// restore is administrative: only roles that see every request may use it.
func (h *Handler) restore(w http.ResponseWriter, r *http.Request) {
	actor, _ := auth.ActorFrom(r.Context())

	id, err := pathID(r)
	if err != nil {
		respond.Error(w, h.log, err)
		return
	}

	if !actor.Role.SeesAll() {
		respond.Error(w, h.log, fmt.Errorf("%w: restore requires an administrative role", failure.ErrForbidden))
		return
	}

	req, err := h.svc.Restore(r.Context(), id)
	if err != nil {
		respond.Error(w, h.log, err)
		return
	}

	respond.JSON(w, h.log, http.StatusOK, req)
}

func pathID(r *http.Request) (uuid.UUID, error) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		return uuid.Nil, fmt.Errorf("%w: bad id %q", failure.ErrValidation, chi.URLParam(r, "id"))
	}

	return id, nil
}
