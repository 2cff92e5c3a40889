package http

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/shoply/tracking/internal/adapter/logger"
	"github.com/shoply/tracking/internal/domain"
	"github.com/shoply/tracking/internal/interfaces"
)

type OrderHandler struct {
	service interfaces.OrderService
	logger  logger.Logger
}

func NewOrderHandler(service interfaces.OrderService, lgr logger.Logger) *OrderHandler {
	return &OrderHandler{
		service: service,
		logger:  lgr,
	}
}

type UpdateStatusRequest struct {
	Status            string           `json:"status"`
	ChangedBy         string           `json:"changed_by,omitempty"`
	Location          *domain.Location `json:"location,omitempty"`
	EstimatedDelivery *time.Time       `json:"estimated_delivery,omitempty"`
}

type OrderStatusResponse struct {
	OrderID           string     `json:"order_id"`
	CurrentStatus     string     `json:"current_status"`
	UpdatedAt         time.Time  `json:"updated_at"`
	EstimatedDelivery *time.Time `json:"estimated_delivery,omitempty"`
	ProcessedBy       *string    `json:"processed_by,omitempty"`
}

type ErrorResponse struct {
	Error string `json:"error"`
}

// HandleOrders routes /orders/{id}/status and /orders/{id}/history.
func (h *OrderHandler) HandleOrders(w http.ResponseWriter, r *http.Request) {
	parts := strings.Split(strings.Trim(r.URL.Path, "/"), "/")
	if len(parts) != 3 || parts[0] != "orders" {
		http.Error(w, "Not found", http.StatusNotFound)
		return
	}

	orderID := parts[1]

	switch parts[2] {
	case "status":
		switch r.Method {
		case http.MethodGet:
			h.getStatus(w, r, orderID)
		case http.MethodPatch:
			h.updateStatus(w, r, orderID)
		default:
			h.respondError(w, "Method not allowed", http.StatusMethodNotAllowed)
		}
	case "history":
		if r.Method != http.MethodGet {
			h.respondError(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		h.getHistory(w, r, orderID)
	default:
		http.Error(w, "Not found", http.StatusNotFound)
	}
}

func (h *OrderHandler) getStatus(w http.ResponseWriter, r *http.Request, orderID string) {
	order, err := h.service.GetOrder(r.Context(), orderID)
	if err != nil {
		if errors.Is(err, domain.ErrOrderNotFound) {
			h.respondError(w, "Order not found", http.StatusNotFound)
			return
		}
		h.logger.Error("order_load_failed", "Failed to load order", orderID, nil, err)
		h.respondError(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	h.respondJSON(w, http.StatusOK, OrderStatusResponse{
		OrderID:           order.ID,
		CurrentStatus:     string(order.Status),
		UpdatedAt:         order.UpdatedAt,
		EstimatedDelivery: order.EstimatedDeliveryDate,
		ProcessedBy:       order.ProcessedBy,
	})
}

// updateStatus is the order-update endpoint: it rejects illegal transitions
// before anything reaches the tracking fan-out.
func (h *OrderHandler) updateStatus(w http.ResponseWriter, r *http.Request, orderID string) {
	var req UpdateStatusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondError(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	next := domain.Status(req.Status)
	if !next.IsValid() {
		h.respondError(w, "Unknown status", http.StatusBadRequest)
		return
	}

	changedBy := req.ChangedBy
	if changedBy == "" {
		changedBy = "storefront"
	}

	order, err := h.service.UpdateStatus(r.Context(), interfaces.UpdateStatusCommand{
		OrderID:           orderID,
		NewStatus:         next,
		ChangedBy:         changedBy,
		Location:          req.Location,
		EstimatedDelivery: req.EstimatedDelivery,
	})
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrOrderNotFound):
			h.respondError(w, "Order not found", http.StatusNotFound)
		case errors.Is(err, domain.ErrInvalidStatusTransition):
			h.respondError(w, "Invalid status transition", http.StatusBadRequest)
		default:
			h.logger.Error("status_update_failed", "Failed to update order status", orderID, nil, err)
			h.respondError(w, "Internal server error", http.StatusInternalServerError)
		}
		return
	}

	h.respondJSON(w, http.StatusOK, OrderStatusResponse{
		OrderID:           order.ID,
		CurrentStatus:     string(order.Status),
		UpdatedAt:         order.UpdatedAt,
		EstimatedDelivery: order.EstimatedDeliveryDate,
		ProcessedBy:       order.ProcessedBy,
	})
}

func (h *OrderHandler) getHistory(w http.ResponseWriter, r *http.Request, orderID string) {
	history, err := h.service.GetStatusHistory(r.Context(), orderID)
	if err != nil {
		if errors.Is(err, domain.ErrOrderNotFound) {
			h.respondError(w, "Order not found", http.StatusNotFound)
			return
		}
		h.logger.Error("history_load_failed", "Failed to load status history", orderID, nil, err)
		h.respondError(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	resp := make([]map[string]interface{}, len(history))
	for i, entry := range history {
		resp[i] = map[string]interface{}{
			"status":     entry.Status,
			"timestamp":  entry.ChangedAt,
			"changed_by": entry.ChangedBy,
		}
	}

	h.respondJSON(w, http.StatusOK, resp)
}

func (h *OrderHandler) respondJSON(w http.ResponseWriter, statusCode int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(body)
}

func (h *OrderHandler) respondError(w http.ResponseWriter, message string, statusCode int) {
	h.respondJSON(w, statusCode, ErrorResponse{Error: message})
}
