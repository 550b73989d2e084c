package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// OrderStatus — статус жизненного цикла заказа
type OrderStatus string

const (
	OrderStatusPending    OrderStatus = "PENDING"
	OrderStatusAccepted   OrderStatus = "ACCEPTED"
	OrderStatusCooking    OrderStatus = "COOKING"
	OrderStatusInDelivery OrderStatus = "IN_DELIVERY"
	OrderStatusDelivered  OrderStatus = "DELIVERED"
	OrderStatusCancelled  OrderStatus = "CANCELLED"
)

// nextOrderStatus — таблица переходов для прямой последовательности.
// CANCELLED стоит вне последовательности и достижим только через отмену.
var nextOrderStatus = map[OrderStatus]OrderStatus{
	OrderStatusPending:    OrderStatusAccepted,
	OrderStatusAccepted:   OrderStatusCooking,
	OrderStatusCooking:    OrderStatusInDelivery,
	OrderStatusInDelivery: OrderStatusDelivered,
}

// NextOrderStatus возвращает следующий статус в прямой последовательности.
// Для терминальных статусов (DELIVERED, CANCELLED) второй результат — false.
func NextOrderStatus(s OrderStatus) (OrderStatus, bool) {
	next, ok := nextOrderStatus[s]
	return next, ok
}

// IsValidOrderStatus проверяет, что статус входит в список известных
func IsValidOrderStatus(s OrderStatus) bool {
	switch s {
	case OrderStatusPending, OrderStatusAccepted, OrderStatusCooking,
		OrderStatusInDelivery, OrderStatusDelivered, OrderStatusCancelled:
		return true
	}
	return false
}

// Order представляет заказ покупателя в одном магазине
type Order struct {
	ID         int64           `json:"id"`
	UserID     int64           `json:"user_id"`
	StoreID    int64           `json:"store_id"`
	Address    string          `json:"address"`
	Status     OrderStatus     `json:"status"`
	TotalPrice decimal.Decimal `json:"total_price"`
	Items      []*OrderItem    `json:"items,omitempty"`
	CreatedAt  time.Time       `json:"created_at"`
	DeletedAt  *time.Time      `json:"-"`
}

// OrderItem — позиция заказа со снапшотом цены на момент сборки.
// Последующие изменения цены в каталоге на заказ не влияют.
type OrderItem struct {
	ID       int64           `json:"id"`
	OrderID  int64           `json:"order_id"`
	MenuID   int64           `json:"menu_id"`
	MenuName string          `json:"menu_name"`
	Quantity int             `json:"quantity"`
	Price    decimal.Decimal `json:"price"`
}
