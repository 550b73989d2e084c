package handlers

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/linemk/food-market/internal/domain/models"
	"github.com/linemk/food-market/internal/jwt-new/jwtmiddleware"
	"github.com/linemk/food-market/internal/service"
)

// RequestPaymentRequest представляет входной JSON для создания платежа.
// Суммы в запросе нет: она всегда считается из заказа на сервере.
type RequestPaymentRequest struct {
	OrderID      int64  `json:"order_id" validate:"required"`
	CardNumber   string `json:"card_number" validate:"required,min=12,max=19"`
	UserCouponID *int64 `json:"user_coupon_id,omitempty"`
}

// SetPaymentStatusRequest — запрос административной смены статуса платежа
type SetPaymentStatusRequest struct {
	Status string `json:"status" validate:"required"`
}

// RequestPaymentHandler обрабатывает запрос POST /api/payments
func RequestPaymentHandler(log *slog.Logger, paymentService service.PaymentService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.RequestPaymentHandler"
		logger := log.With(slog.String("op", op))

		actor, ok := jwtmiddleware.FromContext(r.Context())
		if !ok {
			logger.Error("actor not found in context")
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}

		var req RequestPaymentRequest
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

		payment, err := paymentService.RequestPayment(r.Context(), actor, service.RequestPaymentInput{
			OrderID:      req.OrderID,
			CardNumber:   req.CardNumber,
			UserCouponID: req.UserCouponID,
		})
		if err != nil {
			writeServiceError(w, logger, err)
			return
		}
		writeJSON(w, logger, http.StatusCreated, payment)
	}
}

// GetPaymentHandler обрабатывает запрос GET /api/payments/{id}
func GetPaymentHandler(log *slog.Logger, paymentService service.PaymentService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.GetPaymentHandler"
		logger := log.With(slog.String("op", op))

		actor, ok := jwtmiddleware.FromContext(r.Context())
		if !ok {
			logger.Error("actor not found in context")
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}

		id, err := parseID(r, "id")
		if err != nil {
			http.Error(w, "invalid payment id", http.StatusBadRequest)
			return
		}

		payment, err := paymentService.GetPayment(r.Context(), actor, id)
		if err != nil {
			writeServiceError(w, logger, err)
			return
		}
		writeJSON(w, logger, http.StatusOK, payment)
	}
}

// SetPaymentStatusHandler обрабатывает запрос PATCH /api/payments/{id}/status
func SetPaymentStatusHandler(log *slog.Logger, paymentService service.PaymentService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.SetPaymentStatusHandler"
		logger := log.With(slog.String("op", op))

		actor, ok := jwtmiddleware.FromContext(r.Context())
		if !ok {
			logger.Error("actor not found in context")
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}

		id, err := parseID(r, "id")
		if err != nil {
			http.Error(w, "invalid payment id", http.StatusBadRequest)
			return
		}

		var req SetPaymentStatusRequest
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

		payment, err := paymentService.SetPaymentStatus(r.Context(), actor, id, models.PaymentStatus(req.Status))
		if err != nil {
			writeServiceError(w, logger, err)
			return
		}
		writeJSON(w, logger, http.StatusOK, payment)
	}
}
