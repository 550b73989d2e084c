package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Store представляет магазин (ресторан), принадлежащий владельцу
type Store struct {
	ID        int64      `json:"id"`
	Name      string     `json:"name"`
	OwnerID   int64      `json:"owner_id"`
	CreatedAt time.Time  `json:"created_at"`
	DeletedAt *time.Time `json:"-"`
}

// Menu представляет позицию меню магазина. Цена используется только
// в момент сборки заказа — дальше заказ живет со своим снапшотом цены.
type Menu struct {
	ID        int64           `json:"id"`
	StoreID   int64           `json:"store_id"`
	Name      string          `json:"name"`
	Price     decimal.Decimal `json:"price"`
	CreatedAt time.Time       `json:"created_at"`
	DeletedAt *time.Time      `json:"-"`
}
