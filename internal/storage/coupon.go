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
	ErrCouponNotFound = errors.New("coupon not found")
	// ErrCouponSoldOut — тираж купона исчерпан, условный UPDATE не прошел
	ErrCouponSoldOut = errors.New("coupon is sold out")
)

// CouponStorage описывает методы для работы с шаблонами купонов.
type CouponStorage interface {
	CreateCoupon(ctx context.Context, coupon *models.Coupon) (*models.Coupon, error)
	GetCouponByID(ctx context.Context, id int64) (*models.Coupon, error)
	// GetCouponTermsTx читает купон без фильтра по tombstone: распроданный
	// купон тоже tombstone-ится, но его условия нужны для выдачи и погашения.
	GetCouponTermsTx(ctx context.Context, tx *sql.Tx, id int64) (*models.Coupon, error)
	// LockCouponByIDTx блокирует строку купона — нужен для update/delete,
	// где проверка issued_count и изменение должны быть согласованы.
	LockCouponByIDTx(ctx context.Context, tx *sql.Tx, id int64) (*models.Coupon, error)
	UpdateCoupon(ctx context.Context, tx *sql.Tx, coupon *models.Coupon) error
	SoftDeleteCoupon(ctx context.Context, tx *sql.Tx, id int64) error
	// ReserveCouponUnit атомарно резервирует одну единицу тиража: проверка
	// issued_count < quantity и инкремент выполняются одним условным UPDATE,
	// последняя единица дополнительно проставляет tombstone тем же запросом.
	// Ноль затронутых строк означает, что тираж исчерпан.
	ReserveCouponUnit(ctx context.Context, tx *sql.Tx, id int64) error
}

type couponRepository struct {
	db *sql.DB
}

func NewCouponRepository(db *sql.DB) CouponStorage {
	return &couponRepository{db: db}
}

const couponColumns = "id, scope, store_id, discount_type, discount_value, min_order_price, quantity, issued_count, expires_at, created_at"

func (r *couponRepository) CreateCoupon(ctx context.Context, coupon *models.Coupon) (*models.Coupon, error) {
	var id int64
	var createdAt time.Time
	err := r.db.QueryRowContext(ctx,
		`INSERT INTO coupons (scope, store_id, discount_type, discount_value, min_order_price, quantity, expires_at, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, NOW())
		 RETURNING id, created_at`,
		coupon.Scope, coupon.StoreID, coupon.DiscountType, coupon.DiscountValue,
		coupon.MinOrderPrice, coupon.Quantity, coupon.ExpiresAt,
	).Scan(&id, &createdAt)
	if err != nil {
		return nil, fmt.Errorf("failed to create coupon: %w", err)
	}
	coupon.ID = id
	coupon.CreatedAt = createdAt
	return coupon, nil
}

func scanCoupon(row *sql.Row) (*models.Coupon, error) {
	coupon := &models.Coupon{}
	err := row.Scan(&coupon.ID, &coupon.Scope, &coupon.StoreID, &coupon.DiscountType,
		&coupon.DiscountValue, &coupon.MinOrderPrice, &coupon.Quantity,
		&coupon.IssuedCount, &coupon.ExpiresAt, &coupon.CreatedAt)
	if err != nil {
		return nil, err
	}
	return coupon, nil
}

func (r *couponRepository) GetCouponByID(ctx context.Context, id int64) (*models.Coupon, error) {
	row := r.db.QueryRowContext(ctx,
		"SELECT "+couponColumns+" FROM coupons WHERE id = $1 AND deleted_at IS NULL", id)
	coupon, err := scanCoupon(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrCouponNotFound
		}
		return nil, err
	}
	return coupon, nil
}

func (r *couponRepository) GetCouponTermsTx(ctx context.Context, tx *sql.Tx, id int64) (*models.Coupon, error) {
	coupon := &models.Coupon{}
	row := tx.QueryRowContext(ctx,
		"SELECT "+couponColumns+", deleted_at FROM coupons WHERE id = $1", id)
	err := row.Scan(&coupon.ID, &coupon.Scope, &coupon.StoreID, &coupon.DiscountType,
		&coupon.DiscountValue, &coupon.MinOrderPrice, &coupon.Quantity,
		&coupon.IssuedCount, &coupon.ExpiresAt, &coupon.CreatedAt, &coupon.DeletedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrCouponNotFound
		}
		return nil, err
	}
	return coupon, nil
}

func (r *couponRepository) LockCouponByIDTx(ctx context.Context, tx *sql.Tx, id int64) (*models.Coupon, error) {
	row := tx.QueryRowContext(ctx,
		"SELECT "+couponColumns+" FROM coupons WHERE id = $1 AND deleted_at IS NULL FOR UPDATE NOWAIT", id)
	coupon, err := scanCoupon(row)
	if err != nil {
		if pqErr, ok := err.(*pq.Error); ok {
			if pqErr.Code == "55P03" { // lock
				return nil, fmt.Errorf("resource is locked, please try again: %w", err)
			}
		}
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrCouponNotFound
		}
		return nil, err
	}
	return coupon, nil
}

func (r *couponRepository) UpdateCoupon(ctx context.Context, tx *sql.Tx, coupon *models.Coupon) error {
	res, err := tx.ExecContext(ctx,
		`UPDATE coupons
		 SET discount_type = $1, discount_value = $2, min_order_price = $3, quantity = $4, expires_at = $5
		 WHERE id = $6 AND deleted_at IS NULL`,
		coupon.DiscountType, coupon.DiscountValue, coupon.MinOrderPrice,
		coupon.Quantity, coupon.ExpiresAt, coupon.ID)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrCouponNotFound
	}
	return nil
}

func (r *couponRepository) SoftDeleteCoupon(ctx context.Context, tx *sql.Tx, id int64) error {
	res, err := tx.ExecContext(ctx,
		"UPDATE coupons SET deleted_at = NOW() WHERE id = $1 AND deleted_at IS NULL", id)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrCouponNotFound
	}
	return nil
}

func (r *couponRepository) ReserveCouponUnit(ctx context.Context, tx *sql.Tx, id int64) error {
	res, err := tx.ExecContext(ctx,
		`UPDATE coupons
		 SET issued_count = issued_count + 1,
		     deleted_at = CASE WHEN issued_count + 1 >= quantity THEN NOW() ELSE deleted_at END
		 WHERE id = $1 AND deleted_at IS NULL AND issued_count < quantity`, id)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrCouponSoldOut
	}
	return nil
}
