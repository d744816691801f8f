package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"kiosk/internal/catalog/models"
	"kiosk/pkg/domain"
	dErrors "kiosk/pkg/domain-errors"
	"kiosk/pkg/platform/httputil"
	"kiosk/pkg/requestcontext"
)

// CatalogService defines the catalog operations exposed over HTTP.
type CatalogService interface {
	Create(ctx context.Context, name, description string, insurancePrice, servicePrice decimal.Decimal) (*models.Service, error)
	Get(ctx context.Context, id domain.ServiceID) (*models.Service, error)
	List(ctx context.Context, activeOnly bool) ([]*models.Service, error)
	SetActive(ctx context.Context, id domain.ServiceID, active bool) (*models.Service, error)
}

type Handler struct {
	service CatalogService
	logger  *slog.Logger
}

func New(service CatalogService, logger *slog.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

func (h *Handler) Register(r chi.Router) {
	r.Get("/services", h.HandleList)
	r.Get("/services/{serviceID}", h.HandleGet)
}

func (h *Handler) RegisterAdmin(r chi.Router) {
	r.Post("/services", h.HandleCreate)
	r.Patch("/services/{serviceID}/active", h.HandleSetActive)
}

type listResponse struct {
	Count int               `json:"count"`
	Items []*models.Service `json:"items"`
}

// HandleList returns active services unless ?all=true is given.
func (h *Handler) HandleList(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	activeOnly := true
	if raw := r.URL.Query().Get("all"); raw != "" {
		all, err := strconv.ParseBool(raw)
		if err != nil {
			httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "all must be a boolean"))
			return
		}
		activeOnly = !all
	}
	items, err := h.service.List(ctx, activeOnly)
	if err != nil {
		h.logger.ErrorContext(ctx, "failed to list services", "request_id", requestcontext.RequestID(ctx), "error", err)
		httputil.WriteError(w, err)
		return
	}
	if items == nil {
		items = []*models.Service{}
	}
	httputil.WriteJSON(w, http.StatusOK, listResponse{Count: len(items), Items: items})
}

func (h *Handler) HandleGet(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id, err := domain.ParseServiceID(chi.URLParam(r, "serviceID"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	svc, err := h.service.Get(ctx, id)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, svc)
}

func (h *Handler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	req, ok := httputil.DecodeAndPrepare[models.CreateServiceRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}
	svc, err := h.service.Create(ctx, req.Name, req.Description, req.InsurancePrice, req.ServicePrice)
	if err != nil {
		h.logger.WarnContext(ctx, "failed to create service", "request_id", requestID, "error", err)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, svc)
}

func (h *Handler) HandleSetActive(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	id, err := domain.ParseServiceID(chi.URLParam(r, "serviceID"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	req, ok := httputil.DecodeAndPrepare[models.SetActiveRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}
	svc, err := h.service.SetActive(ctx, id, *req.Active)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, svc)
}
