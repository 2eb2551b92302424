package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/draftea/order-saga/inventory-service/application"
	"github.com/draftea/order-saga/inventory-service/domain"
	"github.com/go-chi/chi/v5"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// InventoryHandlers exposes a read-only view of the stock store
type InventoryHandlers struct {
	getStock *application.GetStock
	logger   *zap.Logger
}

// NewInventoryHandlers creates new inventory handlers
func NewInventoryHandlers(getStock *application.GetStock, logger *zap.Logger) *InventoryHandlers {
	return &InventoryHandlers{
		getStock: getStock,
		logger:   logger,
	}
}

type errorResponse struct {
	Error string `json:"error"`
}

// GetStock handles GET /api/v1/stock/{sku}
func (h *InventoryHandlers) GetStock(w http.ResponseWriter, r *http.Request) {
	stock, err := h.getStock.Execute(r.Context(), chi.URLParam(r, "sku"))
	if err != nil {
		if errors.Is(err, domain.ErrStockNotFound) {
			writeJSON(w, http.StatusNotFound, errorResponse{Error: "Stock item not found"})
			return
		}
		h.logger.Error("failed to get stock", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "Internal server error"})
		return
	}

	writeJSON(w, http.StatusOK, stock)
}

// RegisterRoutes registers inventory routes
func (h *InventoryHandlers) RegisterRoutes(r chi.Router) {
	r.Route("/api/v1/stock", func(r chi.Router) {
		r.Get("/{sku}", h.GetStock)
	})
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}
