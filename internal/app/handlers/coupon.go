package handlers

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/linemk/food-market/internal/domain/models"
	"github.com/linemk/food-market/internal/jwt-new/jwtmiddleware"
	"github.com/linemk/food-market/internal/service"
	"github.com/shopspring/decimal"
)

// CouponRequest представляет условия купона при создании и изменении
type CouponRequest struct {
	Scope         string          `json:"scope" validate:"required,oneof=STORE MASTER"`
	StoreID       *int64          `json:"store_id,omitempty"`
	DiscountType  string          `json:"discount_type" validate:"required,oneof=FIXED PERCENT"`
	DiscountValue decimal.Decimal `json:"discount_value"`
	MinOrderPrice decimal.Decimal `json:"min_order_price"`
	Quantity      int             `json:"quantity" validate:"required,gte=1"`
	ExpiresAt     time.Time       `json:"expires_at" validate:"required"`
}

// RedeemCouponRequest — запрос на погашение купона с суммой заказа-кандидата
type RedeemCouponRequest struct {
	OrderTotal decimal.Decimal `json:"order_total"`
}

// RedeemCouponResponse возвращает размер скидки для применения к платежу
type RedeemCouponResponse struct {
	Discount decimal.Decimal `json:"discount"`
}

func couponInput(req CouponRequest) service.CouponInput {
	return service.CouponInput{
		Scope:         models.CouponScope(req.Scope),
		StoreID:       req.StoreID,
		DiscountType:  models.DiscountType(req.DiscountType),
		DiscountValue: req.DiscountValue,
		MinOrderPrice: req.MinOrderPrice,
		Quantity:      req.Quantity,
		ExpiresAt:     req.ExpiresAt,
	}
}

// CreateCouponHandler обрабатывает запрос POST /api/coupons
func CreateCouponHandler(log *slog.Logger, couponService service.CouponService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.CreateCouponHandler"
		logger := log.With(slog.String("op", op))

		actor, ok := jwtmiddleware.FromContext(r.Context())
		if !ok {
			logger.Error("actor not found in context")
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}

		var req CouponRequest
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

		coupon, err := couponService.CreateCoupon(r.Context(), actor, couponInput(req))
		if err != nil {
			writeServiceError(w, logger, err)
			return
		}
		writeJSON(w, logger, http.StatusCreated, coupon)
	}
}

// GetCouponHandler обрабатывает запрос GET /api/coupons/{id}
func GetCouponHandler(log *slog.Logger, couponService service.CouponService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.GetCouponHandler"
		logger := log.With(slog.String("op", op))

		actor, ok := jwtmiddleware.FromContext(r.Context())
		if !ok {
			logger.Error("actor not found in context")
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}

		id, err := parseID(r, "id")
		if err != nil {
			http.Error(w, "invalid coupon id", http.StatusBadRequest)
			return
		}

		coupon, err := couponService.GetCoupon(r.Context(), actor, id)
		if err != nil {
			writeServiceError(w, logger, err)
			return
		}
		writeJSON(w, logger, http.StatusOK, coupon)
	}
}

// UpdateCouponHandler обрабатывает запрос PATCH /api/coupons/{id}
func UpdateCouponHandler(log *slog.Logger, couponService service.CouponService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.UpdateCouponHandler"
		logger := log.With(slog.String("op", op))

		actor, ok := jwtmiddleware.FromContext(r.Context())
		if !ok {
			logger.Error("actor not found in context")
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}

		id, err := parseID(r, "id")
		if err != nil {
			http.Error(w, "invalid coupon id", http.StatusBadRequest)
			return
		}

		var req CouponRequest
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

		coupon, err := couponService.UpdateCoupon(r.Context(), actor, id, couponInput(req))
		if err != nil {
			writeServiceError(w, logger, err)
			return
		}
		writeJSON(w, logger, http.StatusOK, coupon)
	}
}

// DeleteCouponHandler обрабатывает запрос DELETE /api/coupons/{id}
func DeleteCouponHandler(log *slog.Logger, couponService service.CouponService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.DeleteCouponHandler"
		logger := log.With(slog.String("op", op))

		actor, ok := jwtmiddleware.FromContext(r.Context())
		if !ok {
			logger.Error("actor not found in context")
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}

		id, err := parseID(r, "id")
		if err != nil {
			http.Error(w, "invalid coupon id", http.StatusBadRequest)
			return
		}

		if err := couponService.DeleteCoupon(r.Context(), actor, id); err != nil {
			writeServiceError(w, logger, err)
			return
		}
		writeJSON(w, logger, http.StatusOK, map[string]string{"message": "Coupon deleted"})
	}
}

// IssueUserCouponHandler обрабатывает запрос POST /api/coupons/{id}/issue
func IssueUserCouponHandler(log *slog.Logger, couponService service.CouponService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.IssueUserCouponHandler"
		logger := log.With(slog.String("op", op))

		actor, ok := jwtmiddleware.FromContext(r.Context())
		if !ok {
			logger.Error("actor not found in context")
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}

		id, err := parseID(r, "id")
		if err != nil {
			http.Error(w, "invalid coupon id", http.StatusBadRequest)
			return
		}

		uc, err := couponService.IssueUserCoupon(r.Context(), actor, id)
		if err != nil {
			writeServiceError(w, logger, err)
			return
		}
		writeJSON(w, logger, http.StatusCreated, uc)
	}
}

// RedeemUserCouponHandler обрабатывает запрос POST /api/user-coupons/{id}/redeem
func RedeemUserCouponHandler(log *slog.Logger, couponService service.CouponService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.RedeemUserCouponHandler"
		logger := log.With(slog.String("op", op))

		actor, ok := jwtmiddleware.FromContext(r.Context())
		if !ok {
			logger.Error("actor not found in context")
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}

		id, err := parseID(r, "id")
		if err != nil {
			http.Error(w, "invalid user coupon id", http.StatusBadRequest)
			return
		}

		var req RedeemCouponRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			logger.Error("invalid request: decoding error", slog.Any("error", err))
			http.Error(w, "invalid request", http.StatusBadRequest)
			return
		}

		discount, err := couponService.RedeemUserCoupon(r.Context(), actor, id, req.OrderTotal)
		if err != nil {
			writeServiceError(w, logger, err)
			return
		}
		writeJSON(w, logger, http.StatusOK, RedeemCouponResponse{Discount: discount})
	}
}
