package handlers

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/draftea/order-saga/order-service/application"
	"github.com/draftea/order-saga/order-service/domain"
	"github.com/draftea/order-saga/shared/models"
	"github.com/go-chi/chi/v5"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// OrderHandlers contains the intake HTTP handlers
type OrderHandlers struct {
	createOrder *application.CreateOrder
	getOrder    *application.GetOrder
	logger      *zap.Logger
}

// NewOrderHandlers creates new order handlers
func NewOrderHandlers(createOrder *application.CreateOrder, getOrder *application.GetOrder, logger *zap.Logger) *OrderHandlers {
	return &OrderHandlers{
		createOrder: createOrder,
		getOrder:    getOrder,
		logger:      logger,
	}
}

type createOrderResponse struct {
	Message string               `json:"message"`
	Order   models.OrderSnapshot `json:"order"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// CreateOrder handles order intake; the saga continues asynchronously
func (h *OrderHandlers) CreateOrder(w http.ResponseWriter, r *http.Request) {
	var cmd application.CreateOrderCommand
	if err := json.NewDecoder(r.Body).Decode(&cmd); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "Invalid request body"})
		return
	}

	order, err := h.createOrder.Execute(r.Context(), &cmd)
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrInvalidOrder):
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: validationReason(err)})
		default:
			h.logger.Error("failed to create order", zap.Error(err))
			writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "Internal server error"})
		}
		return
	}

	writeJSON(w, http.StatusCreated, createOrderResponse{Message: "Order received", Order: order})
}

// GetOrder handles status lookups
func (h *OrderHandlers) GetOrder(w http.ResponseWriter, r *http.Request) {
	order, err := h.getOrder.Execute(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		if errors.Is(err, domain.ErrOrderNotFound) {
			writeJSON(w, http.StatusNotFound, errorResponse{Error: "Order not found"})
			return
		}
		h.logger.Error("failed to get order", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "Internal server error"})
		return
	}

	writeJSON(w, http.StatusOK, order)
}

// RegisterRoutes registers order routes
func (h *OrderHandlers) RegisterRoutes(r chi.Router) {
	r.Post("/create-order", h.CreateOrder)
	r.Get("/order/{id}", h.GetOrder)

	r.Route("/api/v1/orders", func(r chi.Router) {
		r.Post("/", h.CreateOrder)
		r.Get("/{id}", h.GetOrder)
	})
}

// CORS lets the polling presentation layer call the intake API from a browser
func CORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// validationReason extracts the message added on top of ErrInvalidOrder
func validationReason(err error) string {
	return strings.TrimSuffix(err.Error(), ": "+domain.ErrInvalidOrder.Error())
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}
