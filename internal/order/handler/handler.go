package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"kiosk/internal/order/models"
	"kiosk/pkg/domain"
	dErrors "kiosk/pkg/domain-errors"
	"kiosk/pkg/platform/httputil"
	"kiosk/pkg/requestcontext"
)

// Service defines the ledger operations exposed over HTTP.
type Service interface {
	Create(ctx context.Context, p models.CreateParams) (*models.Order, error)
	UpdateStatus(ctx context.Context, id domain.OrderID, status string) (*models.Order, error)
	RecordPayment(ctx context.Context, id domain.OrderID, paymentStatus, paymentMethod string) (*models.Order, error)
	Get(ctx context.Context, id domain.OrderID) (*models.Order, error)
	ListQueue(ctx context.Context, serviceID domain.ServiceID, day domain.Day) ([]*models.Order, error)
}

// Handler serves the order ledger endpoints.
type Handler struct {
	service Service
	logger  *slog.Logger
}

func New(service Service, logger *slog.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

func (h *Handler) Register(r chi.Router) {
	r.Post("/orders", h.HandleCreate)
	r.Get("/orders/{orderID}", h.HandleGet)
	r.Patch("/orders/{orderID}/status", h.HandleUpdateStatus)
	r.Patch("/orders/{orderID}/payment", h.HandleRecordPayment)
	r.Get("/services/{serviceID}/queue", h.HandleListQueue)
}

type orderResponse struct {
	*models.Order
	OrderNumber string `json:"order_number"`
}

func newOrderResponse(o *models.Order) orderResponse {
	return orderResponse{Order: o, OrderNumber: o.Number()}
}

type queueResponse struct {
	ServiceID domain.ServiceID `json:"service_id"`
	Day       string           `json:"day"`
	Count     int              `json:"count"`
	Items     []orderResponse  `json:"items"`
}

func (h *Handler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	req, ok := httputil.DecodeAndPrepare[models.CreateOrderRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}
	params, err := req.Params()
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	order, err := h.service.Create(ctx, params)
	if err != nil {
		h.logFailure(ctx, "failed to create order", requestID, err)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, newOrderResponse(order))
}

func (h *Handler) HandleGet(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id, ok := orderParam(w, r)
	if !ok {
		return
	}
	order, err := h.service.Get(ctx, id)
	if err != nil {
		h.logFailure(ctx, "failed to get order", requestcontext.RequestID(ctx), err)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, newOrderResponse(order))
}

func (h *Handler) HandleUpdateStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)
	id, ok := orderParam(w, r)
	if !ok {
		return
	}
	req, ok := httputil.DecodeAndPrepare[models.UpdateStatusRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}
	order, err := h.service.UpdateStatus(ctx, id, req.Status)
	if err != nil {
		h.logFailure(ctx, "failed to update order status", requestID, err)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, newOrderResponse(order))
}

func (h *Handler) HandleRecordPayment(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)
	id, ok := orderParam(w, r)
	if !ok {
		return
	}
	req, ok := httputil.DecodeAndPrepare[models.RecordPaymentRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}
	order, err := h.service.RecordPayment(ctx, id, req.PaymentStatus, req.PaymentMethod)
	if err != nil {
		h.logFailure(ctx, "failed to record payment", requestID, err)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, newOrderResponse(order))
}

// HandleListQueue lists a service's orders for ?day=YYYY-MM-DD, today by default.
func (h *Handler) HandleListQueue(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	serviceID, err := domain.ParseServiceID(chi.URLParam(r, "serviceID"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	var day domain.Day
	if raw := r.URL.Query().Get("day"); raw != "" {
		day, err = domain.ParseDay(raw)
		if err != nil {
			httputil.WriteError(w, err)
			return
		}
	}

	orders, err := h.service.ListQueue(ctx, serviceID, day)
	if err != nil {
		h.logFailure(ctx, "failed to list queue", requestcontext.RequestID(ctx), err)
		httputil.WriteError(w, err)
		return
	}
	items := make([]orderResponse, len(orders))
	for i, o := range orders {
		items[i] = newOrderResponse(o)
	}
	resp := queueResponse{ServiceID: serviceID, Count: len(items), Items: items}
	if !day.IsZero() {
		resp.Day = day.String()
	} else if len(orders) > 0 {
		resp.Day = orders[0].ServiceDay.String()
	}
	httputil.WriteJSON(w, http.StatusOK, resp)
}

func orderParam(w http.ResponseWriter, r *http.Request) (domain.OrderID, bool) {
	id, err := domain.ParseOrderID(chi.URLParam(r, "orderID"))
	if err != nil {
		httputil.WriteError(w, err)
		return 0, false
	}
	return id, true
}

func (h *Handler) logFailure(ctx context.Context, msg, requestID string, err error) {
	if dErrors.CodeOf(err) == dErrors.CodeInternal {
		h.logger.ErrorContext(ctx, msg, "request_id", requestID, "error", err)
		return
	}
	h.logger.WarnContext(ctx, msg, "request_id", requestID, "error", err)
}
