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
	ErrUserCouponNotFound = errors.New("user coupon not found")
	// ErrUserCouponExists — у пользователя уже есть этот купон (уникальный индекс user_id+coupon_id)
	ErrUserCouponExists = errors.New("user already has this coupon")
	// ErrUserCouponUsed — купон уже погашен, условный UPDATE по статусу не прошел
	ErrUserCouponUsed = errors.New("user coupon already used")
)

// UserCouponStorage описывает методы для работы с выданными купонами.
type UserCouponStorage interface {
	// CreateUserCoupon создает запись о выдаче; повтор по (user, coupon) отдает ErrUserCouponExists.
	CreateUserCoupon(ctx context.Context, tx *sql.Tx, userID, couponID int64) (*models.UserCoupon, error)
	GetUserCouponByIDTx(ctx context.Context, tx *sql.Tx, id int64) (*models.UserCoupon, error)
	// MarkUserCouponUsed гасит купон условным UPDATE по статусу ACTIVE:
	// повторное погашение не проходит по условию и отдает ErrUserCouponUsed.
	MarkUserCouponUsed(ctx context.Context, tx *sql.Tx, id int64, usedAt time.Time) error
}

type userCouponRepository struct {
	db *sql.DB
}

func NewUserCouponRepository(db *sql.DB) UserCouponStorage {
	return &userCouponRepository{db: db}
}

func (r *userCouponRepository) CreateUserCoupon(ctx context.Context, tx *sql.Tx, userID, couponID int64) (*models.UserCoupon, error) {
	uc := &models.UserCoupon{
		UserID:   userID,
		CouponID: couponID,
		Status:   models.UserCouponStatusActive,
	}
	err := tx.QueryRowContext(ctx,
		`INSERT INTO user_coupons (user_id, coupon_id, status, created_at)
		 VALUES ($1, $2, $3, NOW())
		 RETURNING id, created_at`,
		userID, couponID, uc.Status,
	).Scan(&uc.ID, &uc.CreatedAt)
	if err != nil {
		if pqErr, ok := err.(*pq.Error); ok {
			if pqErr.Code == "23505" { // unique_violation
				return nil, ErrUserCouponExists
			}
		}
		return nil, fmt.Errorf("failed to create user coupon: %w", err)
	}
	return uc, nil
}

func (r *userCouponRepository) GetUserCouponByIDTx(ctx context.Context, tx *sql.Tx, id int64) (*models.UserCoupon, error) {
	return scanUserCoupon(tx.QueryRowContext(ctx,
		`SELECT id, user_id, coupon_id, status, used_at, created_at
		 FROM user_coupons WHERE id = $1`, id))
}

func scanUserCoupon(row *sql.Row) (*models.UserCoupon, error) {
	uc := &models.UserCoupon{}
	if err := row.Scan(&uc.ID, &uc.UserID, &uc.CouponID, &uc.Status, &uc.UsedAt, &uc.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrUserCouponNotFound
		}
		return nil, err
	}
	return uc, nil
}

func (r *userCouponRepository) MarkUserCouponUsed(ctx context.Context, tx *sql.Tx, id int64, usedAt time.Time) error {
	res, err := tx.ExecContext(ctx,
		`UPDATE user_coupons SET status = $1, used_at = $2
		 WHERE id = $3 AND status = $4`,
		models.UserCouponStatusUsed, usedAt, id, models.UserCouponStatusActive)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrUserCouponUsed
	}
	return nil
}
