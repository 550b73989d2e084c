package handlers

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/linemk/food-market/internal/domain/models"
	"github.com/linemk/food-market/internal/jwt-new/jwtmiddleware"
	"github.com/linemk/food-market/internal/service"
)

// OrderLineRequest — запрошенная позиция заказа
type OrderLineRequest struct {
	MenuID   int64 `json:"menu_id" validate:"required"`
	Quantity int   `json:"quantity" validate:"required,gt=0"`
}

// CreateOrderRequest представляет входной JSON для создания заказа
type CreateOrderRequest struct {
	StoreID int64              `json:"store_id" validate:"required"`
	Address string             `json:"address" validate:"required"`
	Lines   []OrderLineRequest `json:"lines" validate:"required,min=1,dive"`
}

// SetOrderStatusRequest — запрос административной смены статуса
type SetOrderStatusRequest struct {
	Status string `json:"status" validate:"required"`
}

// CreateOrderHandler обрабатывает запрос POST /api/orders
func CreateOrderHandler(log *slog.Logger, orderService service.OrderService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.CreateOrderHandler"
		logger := log.With(slog.String("op", op))

		actor, ok := jwtmiddleware.FromContext(r.Context())
		if !ok {
			logger.Error("actor not found in context")
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}

		var req CreateOrderRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			logger.Error("invalid request: decoding error", slog.Any("error", err))
			http.Error(w, "invalid request", http.StatusBadRequest)
			return
		}
		if err := validate.Struct(req); err != nil {
			logger.Error("invalid request: validation error", slog.Any("error", err))
			http.Error(w, "validation error", http.StatusBadRequest)
			return
		}

		in := service.CreateOrderInput{
			StoreID: req.StoreID,
			Address: req.Address,
		}
		for _, line := range req.Lines {
			in.Lines = append(in.Lines, service.OrderLine{MenuID: line.MenuID, Quantity: line.Quantity})
		}

		order, err := orderService.CreateOrder(r.Context(), actor, in)
		if err != nil {
			writeServiceError(w, logger, err)
			return
		}
		writeJSON(w, logger, http.StatusCreated, order)
	}
}

// GetOrderHandler обрабатывает запрос GET /api/orders/{id}
func GetOrderHandler(log *slog.Logger, orderService service.OrderService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.GetOrderHandler"
		logger := log.With(slog.String("op", op))

		actor, ok := jwtmiddleware.FromContext(r.Context())
		if !ok {
			logger.Error("actor not found in context")
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}

		id, err := parseID(r, "id")
		if err != nil {
			http.Error(w, "invalid order id", http.StatusBadRequest)
			return
		}

		order, err := orderService.GetOrder(r.Context(), actor, id)
		if err != nil {
			writeServiceError(w, logger, err)
			return
		}
		writeJSON(w, logger, http.StatusOK, order)
	}
}

// ListOrdersHandler обрабатывает запрос GET /api/orders (опционально ?store_id=N)
func ListOrdersHandler(log *slog.Logger, orderService service.OrderService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.ListOrdersHandler"
		logger := log.With(slog.String("op", op))

		actor, ok := jwtmiddleware.FromContext(r.Context())
		if !ok {
			logger.Error("actor not found in context")
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}

		var storeID *int64
		if raw := r.URL.Query().Get("store_id"); raw != "" {
			parsed, err := strconv.ParseInt(raw, 10, 64)
			if err != nil {
				http.Error(w, "invalid store_id", http.StatusBadRequest)
				return
			}
			storeID = &parsed
		}

		orders, err := orderService.ListOrders(r.Context(), actor, storeID)
		if err != nil {
			writeServiceError(w, logger, err)
			return
		}
		writeJSON(w, logger, http.StatusOK, orders)
	}
}

// AdvanceOrderStatusHandler обрабатывает запрос POST /api/orders/{id}/advance
func AdvanceOrderStatusHandler(log *slog.Logger, orderService service.OrderService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.AdvanceOrderStatusHandler"
		logger := log.With(slog.String("op", op))

		actor, ok := jwtmiddleware.FromContext(r.Context())
		if !ok {
			logger.Error("actor not found in context")
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}

		id, err := parseID(r, "id")
		if err != nil {
			http.Error(w, "invalid order id", http.StatusBadRequest)
			return
		}

		order, err := orderService.AdvanceOrderStatus(r.Context(), actor, id)
		if err != nil {
			writeServiceError(w, logger, err)
			return
		}
		writeJSON(w, logger, http.StatusOK, order)
	}
}

// SetOrderStatusHandler обрабатывает запрос PATCH /api/orders/{id}/status
func SetOrderStatusHandler(log *slog.Logger, orderService service.OrderService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.SetOrderStatusHandler"
		logger := log.With(slog.String("op", op))

		actor, ok := jwtmiddleware.FromContext(r.Context())
		if !ok {
			logger.Error("actor not found in context")
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}

		id, err := parseID(r, "id")
		if err != nil {
			http.Error(w, "invalid order id", http.StatusBadRequest)
			return
		}

		var req SetOrderStatusRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			logger.Error("invalid request: decoding error", slog.Any("error", err))
			http.Error(w, "invalid request", http.StatusBadRequest)
			return
		}
		if err := validate.Struct(req); err != nil {
			logger.Error("invalid request: validation error", slog.Any("error", err))
			http.Error(w, "validation error", http.StatusBadRequest)
			return
		}

		order, err := orderService.SetOrderStatus(r.Context(), actor, id, models.OrderStatus(req.Status))
		if err != nil {
			writeServiceError(w, logger, err)
			return
		}
		writeJSON(w, logger, http.StatusOK, order)
	}
}

// CancelOrderHandler обрабатывает запрос DELETE /api/orders/{id}
func CancelOrderHandler(log *slog.Logger, orderService service.OrderService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.CancelOrderHandler"
		logger := log.With(slog.String("op", op))

		actor, ok := jwtmiddleware.FromContext(r.Context())
		if !ok {
			logger.Error("actor not found in context")
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}

		id, err := parseID(r, "id")
		if err != nil {
			http.Error(w, "invalid order id", http.StatusBadRequest)
			return
		}

		if err := orderService.CancelOrder(r.Context(), actor, id); err != nil {
			writeServiceError(w, logger, err)
			return
		}
		writeJSON(w, logger, http.StatusOK, map[string]string{"message": "Order cancelled"})
	}
}

func parseID(r *http.Request, name string) (int64, error) {
	return strconv.ParseInt(chi.URLParam(r, name), 10, 64)
}
