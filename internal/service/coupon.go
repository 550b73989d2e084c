package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/linemk/food-market/internal/domain/models"
	"github.com/linemk/food-market/internal/storage"
	"github.com/shopspring/decimal"
)

// CouponInput — условия купона при создании/изменении
type CouponInput struct {
	Scope         models.CouponScope
	StoreID       *int64
	DiscountType  models.DiscountType
	DiscountValue decimal.Decimal
	MinOrderPrice decimal.Decimal
	Quantity      int
	ExpiresAt     time.Time
}

type CouponService interface {
	CreateCoupon(ctx context.Context, actor models.Actor, in CouponInput) (*models.Coupon, error)
	GetCoupon(ctx context.Context, actor models.Actor, id int64) (*models.Coupon, error)
	UpdateCoupon(ctx context.Context, actor models.Actor, id int64, in CouponInput) (*models.Coupon, error)
	DeleteCoupon(ctx context.Context, actor models.Actor, id int64) error
	IssueUserCoupon(ctx context.Context, actor models.Actor, couponID int64) (*models.UserCoupon, error)
	RedeemUserCoupon(ctx context.Context, actor models.Actor, userCouponID int64, orderTotal decimal.Decimal) (decimal.Decimal, error)
}

type couponService struct {
	log            *slog.Logger
	db             *sql.DB
	couponRepo     storage.CouponStorage
	userCouponRepo storage.UserCouponStorage
	storeRepo      storage.StoreStorage
}

func NewCouponService(log *slog.Logger, db *sql.DB, couponRepo storage.CouponStorage, userCouponRepo storage.UserCouponStorage, storeRepo storage.StoreStorage) CouponService {
	return &couponService{
		log:            log,
		db:             db,
		couponRepo:     couponRepo,
		userCouponRepo: userCouponRepo,
		storeRepo:      storeRepo,
	}
}

// validateTerms проверяет условия купона до обращения к базе
func validateTerms(op string, in CouponInput) error {
	switch in.DiscountType {
	case models.DiscountTypeFixed, models.DiscountTypePercent:
	default:
		return fmt.Errorf("%s: unknown discount type %q: %w", op, in.DiscountType, ErrValidation)
	}
	if !in.DiscountValue.IsPositive() {
		return fmt.Errorf("%s: discount value must be positive: %w", op, ErrValidation)
	}
	if in.DiscountType == models.DiscountTypePercent && in.DiscountValue.GreaterThan(decimal.NewFromInt(100)) {
		return fmt.Errorf("%s: percent discount cannot exceed 100: %w", op, ErrValidation)
	}
	if in.MinOrderPrice.IsNegative() {
		return fmt.Errorf("%s: min order price cannot be negative: %w", op, ErrValidation)
	}
	if in.Quantity < 1 {
		return fmt.Errorf("%s: quantity must be at least 1: %w", op, ErrValidation)
	}
	return nil
}

// checkCouponAccess проверяет сочетание области действия и права актора:
// STORE требует магазин и его владельца, MASTER запрещает привязку к магазину.
func (s *couponService) checkCouponAccess(ctx context.Context, op string, actor models.Actor, scope models.CouponScope, storeID *int64) error {
	switch scope {
	case models.CouponScopeStore:
		if storeID == nil {
			return fmt.Errorf("%s: store coupon requires store id: %w", op, ErrValidation)
		}
		store, err := s.storeRepo.GetStoreByID(ctx, *storeID)
		if err != nil {
			if errors.Is(err, storage.ErrStoreNotFound) {
				return fmt.Errorf("%s: store %d: %w", op, *storeID, ErrNotFound)
			}
			return fmt.Errorf("%s: failed to get store: %w", op, err)
		}
		if !Allowed(actor, ActionCouponStore, store.OwnerID == actor.UserID) {
			return fmt.Errorf("%s: store %d: %w", op, *storeID, ErrPermissionDenied)
		}
	case models.CouponScopeMaster:
		if storeID != nil {
			return fmt.Errorf("%s: master coupon cannot be attached to a store: %w", op, ErrValidation)
		}
		if !Allowed(actor, ActionCouponMaster, false) {
			return fmt.Errorf("%s: %w", op, ErrPermissionDenied)
		}
	default:
		return fmt.Errorf("%s: unknown coupon scope %q: %w", op, scope, ErrValidation)
	}
	return nil
}

func (s *couponService) CreateCoupon(ctx context.Context, actor models.Actor, in CouponInput) (*models.Coupon, error) {
	const op = "service.CouponService.CreateCoupon"
	logger := s.log.With(slog.String("op", op), slog.Int64("userID", actor.UserID))

	if err := s.checkCouponAccess(ctx, op, actor, in.Scope, in.StoreID); err != nil {
		return nil, err
	}
	if err := validateTerms(op, in); err != nil {
		return nil, err
	}

	coupon := &models.Coupon{
		Scope:         in.Scope,
		StoreID:       in.StoreID,
		DiscountType:  in.DiscountType,
		DiscountValue: in.DiscountValue,
		MinOrderPrice: in.MinOrderPrice,
		Quantity:      in.Quantity,
		ExpiresAt:     in.ExpiresAt,
	}
	coupon, err := s.couponRepo.CreateCoupon(ctx, coupon)
	if err != nil {
		logger.Error("failed to create coupon", slog.Any("error", err))
		return nil, fmt.Errorf("%s: failed to create coupon: %w", op, err)
	}

	logger.Info("coupon created", slog.Int64("couponID", coupon.ID), slog.String("scope", string(coupon.Scope)))
	return coupon, nil
}

// GetCoupon возвращает действующий купон: условия открыты любому
// аутентифицированному пользователю, распроданные и удаленные скрыты.
func (s *couponService) GetCoupon(ctx context.Context, actor models.Actor, id int64) (*models.Coupon, error) {
	const op = "service.CouponService.GetCoupon"

	coupon, err := s.couponRepo.GetCouponByID(ctx, id)
	if err != nil {
		if errors.Is(err, storage.ErrCouponNotFound) {
			return nil, fmt.Errorf("%s: coupon %d: %w", op, id, ErrNotFound)
		}
		return nil, fmt.Errorf("%s: failed to get coupon: %w", op, err)
	}
	return coupon, nil
}

// UpdateCoupon меняет условия купона. Блокируется после первой выдачи:
// уже выданные купоны должны сохранять условия, под которыми выдавались.
func (s *couponService) UpdateCoupon(ctx context.Context, actor models.Actor, id int64, in CouponInput) (*models.Coupon, error) {
	const op = "service.CouponService.UpdateCoupon"
	logger := s.log.With(slog.String("op", op), slog.Int64("couponID", id))

	if err := validateTerms(op, in); err != nil {
		return nil, err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		logger.Error("failed to begin transaction", slog.Any("error", err))
		return nil, fmt.Errorf("%s: failed to begin transaction: %w", op, err)
	}

	coupon, err := s.lockEditableCoupon(ctx, tx, op, actor, id, logger)
	if err != nil {
		s.rollback(tx, logger)
		return nil, err
	}

	coupon.DiscountType = in.DiscountType
	coupon.DiscountValue = in.DiscountValue
	coupon.MinOrderPrice = in.MinOrderPrice
	coupon.Quantity = in.Quantity
	coupon.ExpiresAt = in.ExpiresAt

	if err := s.couponRepo.UpdateCoupon(ctx, tx, coupon); err != nil {
		s.rollback(tx, logger)
		logger.Error("failed to update coupon", slog.Any("error", err))
		return nil, fmt.Errorf("%s: failed to update coupon: %w", op, err)
	}

	if err := tx.Commit(); err != nil {
		logger.Error("failed to commit transaction", slog.Any("error", err))
		return nil, fmt.Errorf("%s: failed to commit transaction: %w", op, err)
	}

	logger.Info("coupon updated")
	return coupon, nil
}

func (s *couponService) DeleteCoupon(ctx context.Context, actor models.Actor, id int64) error {
	const op = "service.CouponService.DeleteCoupon"
	logger := s.log.With(slog.String("op", op), slog.Int64("couponID", id))

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		logger.Error("failed to begin transaction", slog.Any("error", err))
		return fmt.Errorf("%s: failed to begin transaction: %w", op, err)
	}

	if _, err := s.lockEditableCoupon(ctx, tx, op, actor, id, logger); err != nil {
		s.rollback(tx, logger)
		return err
	}

	if err := s.couponRepo.SoftDeleteCoupon(ctx, tx, id); err != nil {
		s.rollback(tx, logger)
		logger.Error("failed to delete coupon", slog.Any("error", err))
		return fmt.Errorf("%s: failed to delete coupon: %w", op, err)
	}

	if err := tx.Commit(); err != nil {
		logger.Error("failed to commit transaction", slog.Any("error", err))
		return fmt.Errorf("%s: failed to commit transaction: %w", op, err)
	}

	logger.Info("coupon deleted")
	return nil
}

// lockEditableCoupon блокирует купон и проверяет, что его еще можно менять
func (s *couponService) lockEditableCoupon(ctx context.Context, tx *sql.Tx, op string, actor models.Actor, id int64, logger *slog.Logger) (*models.Coupon, error) {
	coupon, err := s.couponRepo.LockCouponByIDTx(ctx, tx, id)
	if err != nil {
		if errors.Is(err, storage.ErrCouponNotFound) {
			return nil, fmt.Errorf("%s: coupon %d: %w", op, id, ErrNotFound)
		}
		logger.Error("failed to lock coupon", slog.Any("error", err))
		return nil, fmt.Errorf("%s: failed to lock coupon: %w", op, err)
	}
	if err := s.checkCouponAccess(ctx, op, actor, coupon.Scope, coupon.StoreID); err != nil {
		return nil, err
	}
	if coupon.IssuedCount > 0 {
		logger.Warn("coupon already issued, terms are frozen", slog.Int("issued", coupon.IssuedCount))
		return nil, fmt.Errorf("%s: coupon already issued: %w", op, ErrConflict)
	}
	return coupon, nil
}

// IssueUserCoupon выдает купон актору. Единственная настоящая гонка системы:
// проверка остатка тиража и инкремент выполняются одним условным UPDATE,
// поэтому из двух конкурентных запросов за последнюю единицу выигрывает
// ровно один, второй получает Conflict.
func (s *couponService) IssueUserCoupon(ctx context.Context, actor models.Actor, couponID int64) (*models.UserCoupon, error) {
	const op = "service.CouponService.IssueUserCoupon"
	logger := s.log.With(slog.String("op", op), slog.Int64("couponID", couponID), slog.Int64("userID", actor.UserID))
	logger.Info("starting coupon issuance")

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		logger.Error("failed to begin transaction", slog.Any("error", err))
		return nil, fmt.Errorf("%s: failed to begin transaction: %w", op, err)
	}

	coupon, err := s.couponRepo.GetCouponTermsTx(ctx, tx, couponID)
	if err != nil {
		s.rollback(tx, logger)
		if errors.Is(err, storage.ErrCouponNotFound) {
			return nil, fmt.Errorf("%s: coupon %d: %w", op, couponID, ErrNotFound)
		}
		logger.Error("failed to get coupon", slog.Any("error", err))
		return nil, fmt.Errorf("%s: failed to get coupon: %w", op, err)
	}
	if coupon.DeletedAt != nil {
		s.rollback(tx, logger)
		// распроданный купон tombstone-ится при выдаче последней единицы,
		// удаленный администратором — скрыт совсем
		if coupon.IssuedCount >= coupon.Quantity {
			return nil, fmt.Errorf("%s: coupon %d is sold out: %w", op, couponID, ErrConflict)
		}
		return nil, fmt.Errorf("%s: coupon %d: %w", op, couponID, ErrNotFound)
	}
	if time.Now().After(coupon.ExpiresAt) {
		s.rollback(tx, logger)
		return nil, fmt.Errorf("%s: coupon %d is expired: %w", op, couponID, ErrConflict)
	}

	if err := s.couponRepo.ReserveCouponUnit(ctx, tx, couponID); err != nil {
		s.rollback(tx, logger)
		if errors.Is(err, storage.ErrCouponSoldOut) {
			logger.Warn("coupon sold out")
			return nil, fmt.Errorf("%s: coupon %d is sold out: %w", op, couponID, ErrConflict)
		}
		logger.Error("failed to reserve coupon unit", slog.Any("error", err))
		return nil, fmt.Errorf("%s: failed to reserve coupon unit: %w", op, err)
	}

	uc, err := s.userCouponRepo.CreateUserCoupon(ctx, tx, actor.UserID, couponID)
	if err != nil {
		s.rollback(tx, logger) // откат возвращает и зарезервированную единицу
		if errors.Is(err, storage.ErrUserCouponExists) {
			return nil, fmt.Errorf("%s: user already has coupon %d: %w", op, couponID, ErrConflict)
		}
		logger.Error("failed to create user coupon", slog.Any("error", err))
		return nil, fmt.Errorf("%s: failed to create user coupon: %w", op, err)
	}

	if err := tx.Commit(); err != nil {
		logger.Error("failed to commit transaction", slog.Any("error", err))
		return nil, fmt.Errorf("%s: failed to commit transaction: %w", op, err)
	}

	logger.Info("coupon issued", slog.Int64("userCouponID", uc.ID))
	return uc, nil
}

// RedeemUserCoupon гасит купон пользователя и возвращает размер скидки,
// которую вызывающая сторона применяет к сумме платежа.
func (s *couponService) RedeemUserCoupon(ctx context.Context, actor models.Actor, userCouponID int64, orderTotal decimal.Decimal) (decimal.Decimal, error) {
	const op = "service.CouponService.RedeemUserCoupon"
	logger := s.log.With(slog.String("op", op), slog.Int64("userCouponID", userCouponID), slog.Int64("userID", actor.UserID))

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		logger.Error("failed to begin transaction", slog.Any("error", err))
		return decimal.Zero, fmt.Errorf("%s: failed to begin transaction: %w", op, err)
	}

	discount, err := redeemUserCouponTx(ctx, tx, op, s.userCouponRepo, s.couponRepo, actor.UserID, userCouponID, orderTotal, nil)
	if err != nil {
		s.rollback(tx, logger)
		return decimal.Zero, err
	}

	if err := tx.Commit(); err != nil {
		logger.Error("failed to commit transaction", slog.Any("error", err))
		return decimal.Zero, fmt.Errorf("%s: failed to commit transaction: %w", op, err)
	}

	logger.Info("coupon redeemed", slog.String("discount", discount.String()))
	return discount, nil
}

// redeemUserCouponTx выполняет погашение внутри уже открытой транзакции.
// Используется и самостоятельной операцией погашения, и созданием платежа —
// во втором случае погашение и платеж коммитятся одним блоком, чтобы купон
// не сгорал без применённой скидки. storeID заказа (если известен) проверяет
// область действия STORE-купона.
func redeemUserCouponTx(ctx context.Context, tx *sql.Tx, op string, ucRepo storage.UserCouponStorage, couponRepo storage.CouponStorage, userID, userCouponID int64, orderTotal decimal.Decimal, storeID *int64) (decimal.Decimal, error) {
	uc, err := ucRepo.GetUserCouponByIDTx(ctx, tx, userCouponID)
	if err != nil {
		if errors.Is(err, storage.ErrUserCouponNotFound) {
			return decimal.Zero, fmt.Errorf("%s: user coupon %d: %w", op, userCouponID, ErrNotFound)
		}
		return decimal.Zero, fmt.Errorf("%s: failed to get user coupon: %w", op, err)
	}
	if uc.UserID != userID {
		return decimal.Zero, fmt.Errorf("%s: user coupon %d: %w", op, userCouponID, ErrPermissionDenied)
	}

	coupon, err := couponRepo.GetCouponTermsTx(ctx, tx, uc.CouponID)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%s: failed to get coupon terms: %w", op, err)
	}
	if storeID != nil && coupon.Scope == models.CouponScopeStore && (coupon.StoreID == nil || *coupon.StoreID != *storeID) {
		return decimal.Zero, fmt.Errorf("%s: coupon is not valid for this store: %w", op, ErrValidation)
	}
	if time.Now().After(coupon.ExpiresAt) {
		return decimal.Zero, fmt.Errorf("%s: coupon is expired: %w", op, ErrConflict)
	}
	if orderTotal.LessThan(coupon.MinOrderPrice) {
		return decimal.Zero, fmt.Errorf("%s: order total %s is below coupon minimum %s: %w",
			op, orderTotal, coupon.MinOrderPrice, ErrConflict)
	}

	if err := ucRepo.MarkUserCouponUsed(ctx, tx, userCouponID, time.Now()); err != nil {
		if errors.Is(err, storage.ErrUserCouponUsed) {
			return decimal.Zero, fmt.Errorf("%s: user coupon %d already used: %w", op, userCouponID, ErrConflict)
		}
		return decimal.Zero, fmt.Errorf("%s: failed to mark user coupon used: %w", op, err)
	}

	return coupon.Discount(orderTotal), nil
}

func (s *couponService) rollback(tx *sql.Tx, logger *slog.Logger) {
	if rbErr := tx.Rollback(); rbErr != nil {
		logger.Error("transaction rollback failed", slog.Any("error", rbErr))
	}
}
