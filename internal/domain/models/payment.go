package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// PaymentStatus — статус платежа. PENDING достижим только как начальный,
// остальные статусы терминальны для самого платежа.
type PaymentStatus string

const (
	PaymentStatusPending   PaymentStatus = "PENDING"
	PaymentStatusCompleted PaymentStatus = "COMPLETED"
	PaymentStatusCancelled PaymentStatus = "CANCELLED"
	PaymentStatusFailed    PaymentStatus = "FAILED"
)

// IsValidPaymentStatus проверяет, что статус входит в список известных
func IsValidPaymentStatus(s PaymentStatus) bool {
	switch s {
	case PaymentStatusPending, PaymentStatusCompleted, PaymentStatusCancelled, PaymentStatusFailed:
		return true
	}
	return false
}

// Payment представляет платеж по заказу (ровно один на заказ).
// Сумма всегда вычисляется из снапшота заказа, никогда не приходит от клиента.
type Payment struct {
	ID          int64           `json:"id"`
	OrderID     int64           `json:"order_id"`
	Amount      decimal.Decimal `json:"amount"`
	CardNumber  string          `json:"card_number"`
	Status      PaymentStatus   `json:"status"`
	ProcessedAt *time.Time      `json:"processed_at,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
}
