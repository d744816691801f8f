package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"kiosk/internal/insurance/models"
	patientModels "kiosk/internal/patient/models"
	"kiosk/pkg/domain"
	dErrors "kiosk/pkg/domain-errors"
	"kiosk/pkg/platform/httputil"
	"kiosk/pkg/requestcontext"
)

// Service defines the registry operations exposed over HTTP.
type Service interface {
	Create(ctx context.Context, p models.Params) (*models.Insurance, error)
	GetByCitizen(ctx context.Context, citizenID domain.CitizenID) (*models.Insurance, error)
	CheckValidity(ctx context.Context, citizenID domain.CitizenID) (*models.Validity, error)
	Delete(ctx context.Context, citizenID domain.CitizenID) error
	List(ctx context.Context, state models.ListState, days int) ([]*models.Insurance, error)
}

// Syncer refreshes the patient's insurance flag after a registry change.
type Syncer interface {
	Sync(ctx context.Context, citizenID domain.CitizenID) (*patientModels.Patient, error)
}

// Handler serves the insurance registry endpoints.
type Handler struct {
	service Service
	syncer  Syncer
	logger  *slog.Logger
}

func New(service Service, syncer Syncer, logger *slog.Logger) *Handler {
	return &Handler{service: service, syncer: syncer, logger: logger}
}

// Register mounts the operator routes.
func (h *Handler) Register(r chi.Router) {
	r.Post("/insurance", h.HandleCreate)
	r.Get("/insurance", h.HandleList)
	r.Get("/insurance/{citizenID}", h.HandleGet)
	r.Get("/insurance/{citizenID}/validity", h.HandleCheckValidity)
}

// RegisterAdmin mounts routes that require the admin token.
func (h *Handler) RegisterAdmin(r chi.Router) {
	r.Delete("/insurance/{citizenID}", h.HandleDelete)
}

type insuranceResponse struct {
	*models.Insurance
	PatientSynced bool `json:"patient_synced"`
}

type listResponse struct {
	State models.ListState    `json:"state"`
	Count int                 `json:"count"`
	Items []*models.Insurance `json:"items"`
}

func (h *Handler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	req, ok := httputil.DecodeAndPrepare[models.CreateInsuranceRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}
	params, err := req.Params()
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	ins, err := h.service.Create(ctx, params)
	if err != nil {
		h.logFailure(ctx, "failed to create insurance", requestID, err)
		httputil.WriteError(w, err)
		return
	}

	httputil.WriteJSON(w, http.StatusCreated, insuranceResponse{
		Insurance:     ins,
		PatientSynced: h.syncPatient(ctx, ins.CitizenID, requestID),
	})
}

func (h *Handler) HandleGet(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	citizenID, ok := h.citizenParam(w, r)
	if !ok {
		return
	}
	ins, err := h.service.GetByCitizen(ctx, citizenID)
	if err != nil {
		h.logFailure(ctx, "failed to get insurance", requestcontext.RequestID(ctx), err)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, ins)
}

func (h *Handler) HandleCheckValidity(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	citizenID, ok := h.citizenParam(w, r)
	if !ok {
		return
	}
	v, err := h.service.CheckValidity(ctx, citizenID)
	if err != nil {
		h.logFailure(ctx, "failed to check insurance validity", requestcontext.RequestID(ctx), err)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, v)
}

func (h *Handler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)
	citizenID, ok := h.citizenParam(w, r)
	if !ok {
		return
	}
	if err := h.service.Delete(ctx, citizenID); err != nil {
		h.logFailure(ctx, "failed to delete insurance", requestID, err)
		httputil.WriteError(w, err)
		return
	}
	h.syncPatient(ctx, citizenID, requestID)
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) HandleList(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	q := r.URL.Query()

	state, err := models.ParseListState(q.Get("state"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	days := 0
	if raw := q.Get("days"); raw != "" {
		days, err = strconv.Atoi(raw)
		if err != nil || days <= 0 {
			httputil.WriteError(w, dErrors.New(dErrors.CodeValidation, "days must be a positive integer"))
			return
		}
	}

	items, err := h.service.List(ctx, state, days)
	if err != nil {
		h.logFailure(ctx, "failed to list insurance", requestcontext.RequestID(ctx), err)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, listResponse{State: state, Count: len(items), Items: items})
}

// syncPatient runs the explicit follow-up sync. A citizen without a patient
// record is not an error; other failures are logged and reported as not synced.
func (h *Handler) syncPatient(ctx context.Context, citizenID domain.CitizenID, requestID string) bool {
	if h.syncer == nil {
		return false
	}
	if _, err := h.syncer.Sync(ctx, citizenID); err != nil {
		if !dErrors.HasCode(err, dErrors.CodeNotFound) {
			h.logger.ErrorContext(ctx, "patient insurance sync failed",
				"request_id", requestID,
				"citizen_id", citizenID.String(),
				"error", err,
			)
		}
		return false
	}
	return true
}

func (h *Handler) citizenParam(w http.ResponseWriter, r *http.Request) (domain.CitizenID, bool) {
	citizenID, err := domain.ParseCitizenID(chi.URLParam(r, "citizenID"))
	if err != nil {
		httputil.WriteError(w, err)
		return "", false
	}
	return citizenID, true
}

func (h *Handler) logFailure(ctx context.Context, msg, requestID string, err error) {
	if dErrors.CodeOf(err) == dErrors.CodeInternal {
		h.logger.ErrorContext(ctx, msg, "request_id", requestID, "error", err)
		return
	}
	h.logger.WarnContext(ctx, msg, "request_id", requestID, "error", err)
}
