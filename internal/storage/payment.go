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

var (
	ErrPaymentNotFound = errors.New("payment not found")
	// ErrPaymentExists — по заказу уже есть платеж (уникальный индекс по order_id)
	ErrPaymentExists = errors.New("payment already exists for order")
)

// PaymentStorage описывает методы для работы с платежами.
type PaymentStorage interface {
	// CreatePayment вставляет платеж; дубликат по order_id отдает ErrPaymentExists.
	CreatePayment(ctx context.Context, tx *sql.Tx, payment *models.Payment) (*models.Payment, error)
	GetPaymentByID(ctx context.Context, id int64) (*models.Payment, error)
	// LockPaymentByIDTx блокирует строку платежа на время транзакции.
	LockPaymentByIDTx(ctx context.Context, tx *sql.Tx, id int64) (*models.Payment, error)
	UpdatePaymentStatus(ctx context.Context, tx *sql.Tx, id int64, status models.PaymentStatus, processedAt time.Time) error
}

type paymentRepository struct {
	db *sql.DB
}

func NewPaymentRepository(db *sql.DB) PaymentStorage {
	return &paymentRepository{db: db}
}

func (r *paymentRepository) CreatePayment(ctx context.Context, tx *sql.Tx, payment *models.Payment) (*models.Payment, error) {
	var id int64
	var createdAt time.Time
	err := tx.QueryRowContext(ctx,
		`INSERT INTO payments (order_id, amount, card_number, status, created_at)
		 VALUES ($1, $2, $3, $4, NOW())
		 RETURNING id, created_at`,
		payment.OrderID, payment.Amount, payment.CardNumber, payment.Status,
	).Scan(&id, &createdAt)
	if err != nil {
		if pqErr, ok := err.(*pq.Error); ok {
			if pqErr.Code == "23505" { // unique_violation
				return nil, ErrPaymentExists
			}
		}
		return nil, fmt.Errorf("failed to create payment: %w", err)
	}
	payment.ID = id
	payment.CreatedAt = createdAt
	return payment, nil
}

func (r *paymentRepository) GetPaymentByID(ctx context.Context, id int64) (*models.Payment, error) {
	payment := &models.Payment{}
	row := r.db.QueryRowContext(ctx,
		`SELECT id, order_id, amount, card_number, status, processed_at, created_at
		 FROM payments WHERE id = $1`, id)
	if err := row.Scan(&payment.ID, &payment.OrderID, &payment.Amount, &payment.CardNumber,
		&payment.Status, &payment.ProcessedAt, &payment.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrPaymentNotFound
		}
		return nil, err
	}
	return payment, nil
}

func (r *paymentRepository) LockPaymentByIDTx(ctx context.Context, tx *sql.Tx, id int64) (*models.Payment, error) {
	payment := &models.Payment{}
	row := tx.QueryRowContext(ctx,
		`SELECT id, order_id, amount, card_number, status, processed_at, created_at
		 FROM payments WHERE id = $1
		 FOR UPDATE NOWAIT`, id)
	if err := row.Scan(&payment.ID, &payment.OrderID, &payment.Amount, &payment.CardNumber,
		&payment.Status, &payment.ProcessedAt, &payment.CreatedAt); err != nil {
		if pqErr, ok := err.(*pq.Error); ok {
			if pqErr.Code == "55P03" { // lock
				return nil, fmt.Errorf("resource is locked, please try again: %w", err)
			}
		}
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrPaymentNotFound
		}
		return nil, err
	}
	return payment, nil
}

func (r *paymentRepository) UpdatePaymentStatus(ctx context.Context, tx *sql.Tx, id int64, status models.PaymentStatus, processedAt time.Time) error {
	res, err := tx.ExecContext(ctx,
		"UPDATE payments SET status = $1, processed_at = $2 WHERE id = $3",
		status, processedAt, id)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrPaymentNotFound
	}
	return nil
}
