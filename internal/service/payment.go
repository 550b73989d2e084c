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
)

// paymentCancelWindow — период после создания платежа, в течение которого
// его можно отменить административно. Граница включительная.
const paymentCancelWindow = 5 * time.Minute

// RequestPaymentInput — входные данные для создания платежа.
// Сумма не принимается от клиента и считается из снапшота заказа.
type RequestPaymentInput struct {
	OrderID      int64
	CardNumber   string
	UserCouponID *int64 // опционально: погасить купон в той же транзакции
}

type PaymentService interface {
	RequestPayment(ctx context.Context, actor models.Actor, in RequestPaymentInput) (*models.Payment, error)
	GetPayment(ctx context.Context, actor models.Actor, paymentID int64) (*models.Payment, error)
	SetPaymentStatus(ctx context.Context, actor models.Actor, paymentID int64, target models.PaymentStatus) (*models.Payment, error)
}

type paymentService struct {
	log            *slog.Logger
	db             *sql.DB
	paymentRepo    storage.PaymentStorage
	orderRepo      storage.OrderStorage
	couponRepo     storage.CouponStorage
	userCouponRepo storage.UserCouponStorage
}

func NewPaymentService(log *slog.Logger, db *sql.DB, paymentRepo storage.PaymentStorage, orderRepo storage.OrderStorage, couponRepo storage.CouponStorage, userCouponRepo storage.UserCouponStorage) PaymentService {
	return &paymentService{
		log:            log,
		db:             db,
		paymentRepo:    paymentRepo,
		orderRepo:      orderRepo,
		couponRepo:     couponRepo,
		userCouponRepo: userCouponRepo,
	}
}

// RequestPayment создает платеж по заказу в статусе PENDING.
// Повторный запрос по тому же заказу упирается в уникальный индекс и
// отдает Conflict — вторая строка платежа не появляется никогда.
// Если передан купон, его погашение коммитится вместе с платежом.
func (s *paymentService) RequestPayment(ctx context.Context, actor models.Actor, in RequestPaymentInput) (*models.Payment, error) {
	const op = "service.PaymentService.RequestPayment"
	logger := s.log.With(slog.String("op", op), slog.Int64("orderID", in.OrderID), slog.Int64("userID", actor.UserID))
	logger.Info("starting payment request")

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		logger.Error("failed to begin transaction", slog.Any("error", err))
		return nil, fmt.Errorf("%s: failed to begin transaction: %w", op, err)
	}

	// Блокируем заказ, чтобы конкурентная отмена не проскочила между
	// проверкой и созданием платежа.
	order, err := s.orderRepo.LockOrderByIDTx(ctx, tx, in.OrderID)
	if err != nil {
		s.rollback(tx, logger)
		if errors.Is(err, storage.ErrOrderNotFound) {
			return nil, fmt.Errorf("%s: order %d: %w", op, in.OrderID, ErrNotFound)
		}
		logger.Error("failed to lock order", slog.Any("error", err))
		return nil, fmt.Errorf("%s: failed to lock order: %w", op, err)
	}

	if !Allowed(actor, ActionPaymentCreate, order.UserID == actor.UserID) {
		s.rollback(tx, logger)
		return nil, fmt.Errorf("%s: order %d: %w", op, in.OrderID, ErrPermissionDenied)
	}

	amount := order.TotalPrice
	if in.UserCouponID != nil {
		discount, err := redeemUserCouponTx(ctx, tx, op, s.userCouponRepo, s.couponRepo,
			actor.UserID, *in.UserCouponID, order.TotalPrice, &order.StoreID)
		if err != nil {
			s.rollback(tx, logger)
			return nil, err
		}
		amount = amount.Sub(discount)
		logger.Info("coupon applied", slog.String("discount", discount.String()))
	}

	payment := &models.Payment{
		OrderID:    order.ID,
		Amount:     amount,
		CardNumber: in.CardNumber,
		Status:     models.PaymentStatusPending,
	}
	payment, err = s.paymentRepo.CreatePayment(ctx, tx, payment)
	if err != nil {
		s.rollback(tx, logger)
		if errors.Is(err, storage.ErrPaymentExists) {
			logger.Warn("duplicate payment request")
			return nil, fmt.Errorf("%s: order %d already has a payment: %w", op, in.OrderID, ErrConflict)
		}
		logger.Error("failed to create payment", slog.Any("error", err))
		return nil, fmt.Errorf("%s: failed to create payment: %w", op, err)
	}

	if err := tx.Commit(); err != nil {
		logger.Error("failed to commit transaction", slog.Any("error", err))
		return nil, fmt.Errorf("%s: failed to commit transaction: %w", op, err)
	}

	logger.Info("payment created", slog.Int64("paymentID", payment.ID), slog.String("amount", payment.Amount.String()))
	return payment, nil
}

// GetPayment возвращает платеж; принадлежность определяется через заказ
func (s *paymentService) GetPayment(ctx context.Context, actor models.Actor, paymentID int64) (*models.Payment, error) {
	const op = "service.PaymentService.GetPayment"

	payment, err := s.paymentRepo.GetPaymentByID(ctx, paymentID)
	if err != nil {
		if errors.Is(err, storage.ErrPaymentNotFound) {
			return nil, fmt.Errorf("%s: payment %d: %w", op, paymentID, ErrNotFound)
		}
		return nil, fmt.Errorf("%s: failed to get payment: %w", op, err)
	}

	order, err := s.orderRepo.GetOrderByID(ctx, payment.OrderID)
	if err != nil {
		if errors.Is(err, storage.ErrOrderNotFound) {
			return nil, fmt.Errorf("%s: order %d: %w", op, payment.OrderID, ErrNotFound)
		}
		return nil, fmt.Errorf("%s: failed to get order: %w", op, err)
	}
	if !Allowed(actor, ActionPaymentRead, order.UserID == actor.UserID) {
		return nil, fmt.Errorf("%s: payment %d: %w", op, paymentID, ErrPermissionDenied)
	}
	return payment, nil
}

// SetPaymentStatus — административная смена статуса платежа с согласованием
// статуса заказа в той же транзакции, чтобы платеж и заказ не разъезжались.
func (s *paymentService) SetPaymentStatus(ctx context.Context, actor models.Actor, paymentID int64, target models.PaymentStatus) (*models.Payment, error) {
	const op = "service.PaymentService.SetPaymentStatus"
	logger := s.log.With(slog.String("op", op), slog.Int64("paymentID", paymentID), slog.String("target", string(target)))

	if !Allowed(actor, ActionPaymentSettle, false) {
		return nil, fmt.Errorf("%s: payment %d: %w", op, paymentID, ErrPermissionDenied)
	}
	if !models.IsValidPaymentStatus(target) {
		return nil, fmt.Errorf("%s: unknown payment status %q: %w", op, target, ErrValidation)
	}
	// PENDING достижим только как начальное состояние
	if target == models.PaymentStatusPending {
		return nil, fmt.Errorf("%s: PENDING is not an assignable target: %w", op, ErrStateViolation)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		logger.Error("failed to begin transaction", slog.Any("error", err))
		return nil, fmt.Errorf("%s: failed to begin transaction: %w", op, err)
	}

	payment, err := s.paymentRepo.LockPaymentByIDTx(ctx, tx, paymentID)
	if err != nil {
		s.rollback(tx, logger)
		if errors.Is(err, storage.ErrPaymentNotFound) {
			return nil, fmt.Errorf("%s: payment %d: %w", op, paymentID, ErrNotFound)
		}
		logger.Error("failed to lock payment", slog.Any("error", err))
		return nil, fmt.Errorf("%s: failed to lock payment: %w", op, err)
	}

	order, err := s.orderRepo.LockOrderByIDTx(ctx, tx, payment.OrderID)
	if err != nil {
		s.rollback(tx, logger)
		if errors.Is(err, storage.ErrOrderNotFound) {
			return nil, fmt.Errorf("%s: order %d: %w", op, payment.OrderID, ErrNotFound)
		}
		logger.Error("failed to lock order", slog.Any("error", err))
		return nil, fmt.Errorf("%s: failed to lock order: %w", op, err)
	}

	now := time.Now()
	switch target {
	case models.PaymentStatusCompleted:
		// Заказ в терминальном успехе больше не двигается, платеж при этом
		// все равно обновляется — повторное завершение идемпотентно.
		if order.Status != models.OrderStatusDelivered {
			if next, ok := models.NextOrderStatus(order.Status); ok {
				if err := s.orderRepo.UpdateOrderStatus(ctx, tx, order.ID, next); err != nil {
					s.rollback(tx, logger)
					logger.Error("failed to advance order", slog.Any("error", err))
					return nil, fmt.Errorf("%s: failed to advance order: %w", op, err)
				}
			}
		}
	case models.PaymentStatusCancelled:
		if now.Sub(payment.CreatedAt) > paymentCancelWindow {
			s.rollback(tx, logger)
			logger.Warn("payment cancellation window expired", slog.Time("createdAt", payment.CreatedAt))
			return nil, fmt.Errorf("%s: payment cancellation window expired: %w", op, ErrConflict)
		}
		if err := s.revertOrder(ctx, tx, op, order, logger); err != nil {
			s.rollback(tx, logger)
			return nil, err
		}
	case models.PaymentStatusFailed:
		// возврат заказа в начальный статус открывает повторную оплату
		if err := s.revertOrder(ctx, tx, op, order, logger); err != nil {
			s.rollback(tx, logger)
			return nil, err
		}
	}

	if err := s.paymentRepo.UpdatePaymentStatus(ctx, tx, paymentID, target, now); err != nil {
		s.rollback(tx, logger)
		logger.Error("failed to update payment status", slog.Any("error", err))
		return nil, fmt.Errorf("%s: failed to update payment status: %w", op, err)
	}

	if err := tx.Commit(); err != nil {
		logger.Error("failed to commit transaction", slog.Any("error", err))
		return nil, fmt.Errorf("%s: failed to commit transaction: %w", op, err)
	}

	payment.Status = target
	payment.ProcessedAt = &now
	logger.Info("payment status updated", slog.Int64("orderID", order.ID))
	return payment, nil
}

func (s *paymentService) revertOrder(ctx context.Context, tx *sql.Tx, op string, order *models.Order, logger *slog.Logger) error {
	if order.Status == models.OrderStatusPending {
		return nil
	}
	if err := s.orderRepo.UpdateOrderStatus(ctx, tx, order.ID, models.OrderStatusPending); err != nil {
		logger.Error("failed to revert order", slog.Any("error", err))
		return fmt.Errorf("%s: failed to revert order: %w", op, err)
	}
	return nil
}

func (s *paymentService) rollback(tx *sql.Tx, logger *slog.Logger) {
	if rbErr := tx.Rollback(); rbErr != nil {
		logger.Error("transaction rollback failed", slog.Any("error", rbErr))
	}
}
