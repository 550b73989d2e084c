package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// CouponScope — область действия купона: один магазин или весь маркетплейс
type CouponScope string

const (
	CouponScopeStore  CouponScope = "STORE"
	CouponScopeMaster CouponScope = "MASTER"
)

// DiscountType — тип скидки: фиксированная сумма или процент от заказа
type DiscountType string

const (
	DiscountTypeFixed   DiscountType = "FIXED"
	DiscountTypePercent DiscountType = "PERCENT"
)

// Coupon — шаблон купона с конечным тиражом. Инвариант: issued_count <= quantity;
// после первой выдачи условия купона неизменяемы.
type Coupon struct {
	ID            int64           `json:"id"`
	Scope         CouponScope     `json:"scope"`
	StoreID       *int64          `json:"store_id,omitempty"` // только для scope = STORE
	DiscountType  DiscountType    `json:"discount_type"`
	DiscountValue decimal.Decimal `json:"discount_value"`
	MinOrderPrice decimal.Decimal `json:"min_order_price"`
	Quantity      int             `json:"quantity"`
	IssuedCount   int             `json:"issued_count"`
	ExpiresAt     time.Time       `json:"expires_at"`
	CreatedAt     time.Time       `json:"created_at"`
	DeletedAt     *time.Time      `json:"-"`
}

// Discount вычисляет размер скидки для указанной суммы заказа.
// Скидка не может превышать саму сумму.
func (c *Coupon) Discount(orderTotal decimal.Decimal) decimal.Decimal {
	var d decimal.Decimal
	switch c.DiscountType {
	case DiscountTypePercent:
		d = orderTotal.Mul(c.DiscountValue).Div(decimal.NewFromInt(100)).Round(2)
	default:
		d = c.DiscountValue
	}
	if d.GreaterThan(orderTotal) {
		return orderTotal
	}
	return d
}

// UserCouponStatus — статус выданного пользователю купона
type UserCouponStatus string

const (
	UserCouponStatusActive UserCouponStatus = "ACTIVE"
	UserCouponStatusUsed   UserCouponStatus = "USED"
)

// UserCoupon — запись о выдаче купона пользователю, уникальна по (user, coupon).
// Переход ACTIVE -> USED однократный и необратимый.
type UserCoupon struct {
	ID        int64            `json:"id"`
	UserID    int64            `json:"user_id"`
	CouponID  int64            `json:"coupon_id"`
	Status    UserCouponStatus `json:"status"`
	UsedAt    *time.Time       `json:"used_at,omitempty"`
	CreatedAt time.Time        `json:"created_at"`
}
