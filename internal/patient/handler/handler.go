package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"kiosk/internal/insurancesync"
	"kiosk/internal/patient/models"
	"kiosk/pkg/domain"
	dErrors "kiosk/pkg/domain-errors"
	"kiosk/pkg/platform/httputil"
	"kiosk/pkg/platform/strings"
	"kiosk/pkg/requestcontext"
)

// Service defines the patient directory operations exposed over HTTP.
type Service interface {
	Register(ctx context.Context, p models.Params) (*models.Patient, error)
	RegisterFromInsurance(ctx context.Context, citizenID domain.CitizenID, extras models.Extras) (*models.Patient, error)
	Get(ctx context.Context, citizenID domain.CitizenID) (*models.Patient, error)
	ListWithValidInsurance(ctx context.Context) ([]*models.Patient, error)
	Update(ctx context.Context, citizenID domain.CitizenID, patch models.Patch) (*models.Patient, error)
}

// Syncer is the explicit insurance sync command.
type Syncer interface {
	Sync(ctx context.Context, citizenID domain.CitizenID) (*models.Patient, error)
	SyncBatch(ctx context.Context, ids []domain.CitizenID) (*insurancesync.Report, error)
}

type Handler struct {
	service Service
	syncer  Syncer
	logger  *slog.Logger
	loc     *time.Location
}

type Option func(*Handler)

// WithLocation sets the location used to compute ages.
func WithLocation(loc *time.Location) Option {
	return func(h *Handler) {
		if loc != nil {
			h.loc = loc
		}
	}
}

func New(service Service, syncer Syncer, logger *slog.Logger, opts ...Option) *Handler {
	h := &Handler{service: service, syncer: syncer, logger: logger, loc: time.UTC}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

func (h *Handler) Register(r chi.Router) {
	r.Post("/patients", h.HandleRegister)
	r.Post("/patients/from-insurance", h.HandleRegisterFromInsurance)
	r.Get("/patients/with-insurance", h.HandleListWithInsurance)
	r.Get("/patients/{citizenID}", h.HandleGet)
	r.Patch("/patients/{citizenID}", h.HandleUpdate)
	r.Post("/patients/{citizenID}/sync", h.HandleSync)
}

func (h *Handler) RegisterAdmin(r chi.Router) {
	r.Post("/patients/sync", h.HandleSyncBatch)
}

type patientResponse struct {
	*models.Patient
	Age int `json:"age"`
}

func (h *Handler) respond(w http.ResponseWriter, r *http.Request, status int, p *models.Patient) {
	httputil.WriteJSON(w, status, h.view(r, p))
}

func (h *Handler) view(r *http.Request, p *models.Patient) patientResponse {
	return patientResponse{
		Patient: p,
		Age:     p.Age(domain.DayOf(requestcontext.Now(r.Context()), h.loc)),
	}
}

func (h *Handler) HandleRegister(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)
	req, ok := httputil.DecodeAndPrepare[models.RegisterPatientRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}
	params, err := req.Params()
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	p, err := h.service.Register(ctx, params)
	if err != nil {
		h.logFailure(ctx, "failed to register patient", requestID, err)
		httputil.WriteError(w, err)
		return
	}
	h.respond(w, r, http.StatusCreated, p)
}

func (h *Handler) HandleRegisterFromInsurance(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)
	req, ok := httputil.DecodeAndPrepare[models.RegisterFromInsuranceRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}
	p, err := h.service.RegisterFromInsurance(ctx, domain.CitizenID(req.CitizenID), req.Extras())
	if err != nil {
		h.logFailure(ctx, "failed to register patient from insurance", requestID, err)
		httputil.WriteError(w, err)
		return
	}
	h.respond(w, r, http.StatusCreated, p)
}

func (h *Handler) HandleGet(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	citizenID, ok := citizenParam(w, r)
	if !ok {
		return
	}
	p, err := h.service.Get(ctx, citizenID)
	if err != nil {
		h.logFailure(ctx, "failed to get patient", requestcontext.RequestID(ctx), err)
		httputil.WriteError(w, err)
		return
	}
	h.respond(w, r, http.StatusOK, p)
}

func (h *Handler) HandleListWithInsurance(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	patients, err := h.service.ListWithValidInsurance(ctx)
	if err != nil {
		h.logFailure(ctx, "failed to list insured patients", requestcontext.RequestID(ctx), err)
		httputil.WriteError(w, err)
		return
	}
	out := make([]patientResponse, len(patients))
	for i, p := range patients {
		out[i] = h.view(r, p)
	}
	httputil.WriteJSON(w, http.StatusOK, out)
}

func (h *Handler) HandleUpdate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)
	citizenID, ok := citizenParam(w, r)
	if !ok {
		return
	}
	req, ok := httputil.DecodeAndPrepare[models.UpdatePatientRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}
	patch, err := req.Patch()
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	p, err := h.service.Update(ctx, citizenID, patch)
	if err != nil {
		h.logFailure(ctx, "failed to update patient", requestID, err)
		httputil.WriteError(w, err)
		return
	}
	h.respond(w, r, http.StatusOK, p)
}

func (h *Handler) HandleSync(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	citizenID, ok := citizenParam(w, r)
	if !ok {
		return
	}
	p, err := h.syncer.Sync(ctx, citizenID)
	if err != nil {
		h.logFailure(ctx, "failed to sync patient insurance", requestcontext.RequestID(ctx), err)
		httputil.WriteError(w, err)
		return
	}
	h.respond(w, r, http.StatusOK, p)
}

type syncBatchRequest struct {
	CitizenIDs []string `json:"citizen_ids"`
}

// Normalize drops blank and repeated ids so each citizen is synced once.
func (r *syncBatchRequest) Normalize() {
	r.CitizenIDs = strings.DedupeAndTrim(r.CitizenIDs)
}

func (r *syncBatchRequest) Validate() error {
	if len(r.CitizenIDs) == 0 {
		return dErrors.New(dErrors.CodeValidation, "citizen_ids is required")
	}
	for _, raw := range r.CitizenIDs {
		if _, err := domain.ParseCitizenID(raw); err != nil {
			return err
		}
	}
	return nil
}

func (h *Handler) HandleSyncBatch(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)
	req, ok := httputil.DecodeAndPrepare[syncBatchRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}
	ids := make([]domain.CitizenID, len(req.CitizenIDs))
	for i, raw := range req.CitizenIDs {
		ids[i] = domain.CitizenID(raw)
	}
	report, err := h.syncer.SyncBatch(ctx, ids)
	if err != nil {
		h.logFailure(ctx, "failed to sync patients", requestID, err)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, report)
}

func citizenParam(w http.ResponseWriter, r *http.Request) (domain.CitizenID, bool) {
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
