package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"
	"github.com/linemk/food-market/internal/domain/models"
)

var ErrOrderNotFound = errors.New("order not found")

// OrderFilter задает выборку для списка заказов. Пустой фильтр — все заказы.
type OrderFilter struct {
	UserID  *int64 // заказы конкретного покупателя
	StoreID *int64 // заказы конкретного магазина
	OwnerID *int64 // заказы всех магазинов владельца (join по stores)
}

// OrderStorage описывает методы для работы с заказами.
type OrderStorage interface {
	// CreateOrder вставляет заказ вместе с позициями в рамках транзакции.
	CreateOrder(ctx context.Context, tx *sql.Tx, order *models.Order) (*models.Order, error)
	// GetOrderByID возвращает заказ с позициями, tombstone-строки отфильтрованы.
	GetOrderByID(ctx context.Context, id int64) (*models.Order, error)
	ListOrders(ctx context.Context, filter OrderFilter) ([]*models.Order, error)
	// LockOrderByIDTx блокирует строку заказа на время транзакции (FOR UPDATE NOWAIT).
	LockOrderByIDTx(ctx context.Context, tx *sql.Tx, id int64) (*models.Order, error)
	UpdateOrderStatus(ctx context.Context, tx *sql.Tx, id int64, status models.OrderStatus) error
	// CancelOrder переводит заказ в CANCELLED и проставляет tombstone одним запросом.
	CancelOrder(ctx context.Context, tx *sql.Tx, id int64) error
}

type orderRepository struct {
	db *sql.DB
}

func NewOrderRepository(db *sql.DB) OrderStorage {
	return &orderRepository{db: db}
}

func (r *orderRepository) CreateOrder(ctx context.Context, tx *sql.Tx, order *models.Order) (*models.Order, error) {
	var id int64
	var createdAt time.Time
	err := tx.QueryRowContext(ctx,
		`INSERT INTO orders (user_id, store_id, address, status, total_price, created_at)
		 VALUES ($1, $2, $3, $4, $5, NOW())
		 RETURNING id, created_at`,
		order.UserID, order.StoreID, order.Address, order.Status, order.TotalPrice,
	).Scan(&id, &createdAt)
	if err != nil {
		return nil, fmt.Errorf("failed to create order: %w", err)
	}
	order.ID = id
	order.CreatedAt = createdAt

	for _, item := range order.Items {
		err := tx.QueryRowContext(ctx,
			`INSERT INTO order_items (order_id, menu_id, quantity, price)
			 VALUES ($1, $2, $3, $4)
			 RETURNING id`,
			id, item.MenuID, item.Quantity, item.Price,
		).Scan(&item.ID)
		if err != nil {
			return nil, fmt.Errorf("failed to create order item: %w", err)
		}
		item.OrderID = id
	}
	return order, nil
}

func (r *orderRepository) GetOrderByID(ctx context.Context, id int64) (*models.Order, error) {
	order := &models.Order{}
	row := r.db.QueryRowContext(ctx,
		`SELECT id, user_id, store_id, address, status, total_price, created_at
		 FROM orders
		 WHERE id = $1 AND deleted_at IS NULL`, id)
	if err := row.Scan(&order.ID, &order.UserID, &order.StoreID, &order.Address,
		&order.Status, &order.TotalPrice, &order.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrOrderNotFound
		}
		return nil, err
	}

	items, err := r.getOrderItems(ctx, id)
	if err != nil {
		return nil, err
	}
	order.Items = items
	return order, nil
}

// getOrderItems возвращает позиции заказа с JOIN, чтобы получить имя блюда.
func (r *orderRepository) getOrderItems(ctx context.Context, orderID int64) ([]*models.OrderItem, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT oi.id, oi.order_id, oi.menu_id, m.name, oi.quantity, oi.price
		 FROM order_items oi
		 JOIN menus m ON oi.menu_id = m.id
		 WHERE oi.order_id = $1
		 ORDER BY oi.id`, orderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []*models.OrderItem
	for rows.Next() {
		item := &models.OrderItem{}
		if err := rows.Scan(&item.ID, &item.OrderID, &item.MenuID, &item.MenuName, &item.Quantity, &item.Price); err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

func (r *orderRepository) ListOrders(ctx context.Context, filter OrderFilter) ([]*models.Order, error) {
	query := `SELECT o.id, o.user_id, o.store_id, o.address, o.status, o.total_price, o.created_at
	          FROM orders o`
	where := " WHERE o.deleted_at IS NULL"
	var args []interface{}

	if filter.OwnerID != nil {
		query += " JOIN stores s ON o.store_id = s.id"
		args = append(args, *filter.OwnerID)
		where += fmt.Sprintf(" AND s.owner_id = $%d", len(args))
	}
	if filter.UserID != nil {
		args = append(args, *filter.UserID)
		where += fmt.Sprintf(" AND o.user_id = $%d", len(args))
	}
	if filter.StoreID != nil {
		args = append(args, *filter.StoreID)
		where += fmt.Sprintf(" AND o.store_id = $%d", len(args))
	}
	query += where + " ORDER BY o.created_at DESC"

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var orders []*models.Order
	for rows.Next() {
		order := &models.Order{}
		if err := rows.Scan(&order.ID, &order.UserID, &order.StoreID, &order.Address,
			&order.Status, &order.TotalPrice, &order.CreatedAt); err != nil {
			return nil, err
		}
		orders = append(orders, order)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return orders, nil
}

func (r *orderRepository) LockOrderByIDTx(ctx context.Context, tx *sql.Tx, id int64) (*models.Order, error) {
	order := &models.Order{}
	row := tx.QueryRowContext(ctx,
		`SELECT id, user_id, store_id, address, status, total_price, created_at
		 FROM orders
		 WHERE id = $1 AND deleted_at IS NULL
		 FOR UPDATE NOWAIT`, id)
	if err := row.Scan(&order.ID, &order.UserID, &order.StoreID, &order.Address,
		&order.Status, &order.TotalPrice, &order.CreatedAt); err != nil {
		if pqErr, ok := err.(*pq.Error); ok {
			if pqErr.Code == "55P03" { // lock
				return nil, fmt.Errorf("resource is locked, please try again: %w", err)
			}
		}
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrOrderNotFound
		}
		return nil, err
	}
	return order, nil
}

func (r *orderRepository) UpdateOrderStatus(ctx context.Context, tx *sql.Tx, id int64, status models.OrderStatus) error {
	res, err := tx.ExecContext(ctx,
		"UPDATE orders SET status = $1 WHERE id = $2 AND deleted_at IS NULL", status, id)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrOrderNotFound
	}
	return nil
}

func (r *orderRepository) CancelOrder(ctx context.Context, tx *sql.Tx, id int64) error {
	res, err := tx.ExecContext(ctx,
		`UPDATE orders SET status = $1, deleted_at = NOW()
		 WHERE id = $2 AND deleted_at IS NULL`,
		models.OrderStatusCancelled, id)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrOrderNotFound
	}
	return nil
}
