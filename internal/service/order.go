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

// cancelWindow — период после создания заказа, в течение которого отмена
// разрешена. Граница включительная: ровно 5 минут — ещё можно.
const cancelWindow = 5 * time.Minute

// OrderLine — запрошенная позиция заказа
type OrderLine struct {
	MenuID   int64
	Quantity int
}

// CreateOrderInput — входные данные для создания заказа
type CreateOrderInput struct {
	StoreID int64
	Address string
	Lines   []OrderLine
}

type OrderService interface {
	CreateOrder(ctx context.Context, actor models.Actor, in CreateOrderInput) (*models.Order, error)
	GetOrder(ctx context.Context, actor models.Actor, id int64) (*models.Order, error)
	ListOrders(ctx context.Context, actor models.Actor, storeID *int64) ([]*models.Order, error)
	AdvanceOrderStatus(ctx context.Context, actor models.Actor, id int64) (*models.Order, error)
	SetOrderStatus(ctx context.Context, actor models.Actor, id int64, status models.OrderStatus) (*models.Order, error)
	CancelOrder(ctx context.Context, actor models.Actor, id int64) error
}

type orderService struct {
	log       *slog.Logger
	db        *sql.DB
	orderRepo storage.OrderStorage
	storeRepo storage.StoreStorage
	menuRepo  storage.MenuStorage
}

func NewOrderService(log *slog.Logger, db *sql.DB, orderRepo storage.OrderStorage, storeRepo storage.StoreStorage, menuRepo storage.MenuStorage) OrderService {
	return &orderService{
		log:       log,
		db:        db,
		orderRepo: orderRepo,
		storeRepo: storeRepo,
		menuRepo:  menuRepo,
	}
}

// CreateOrder собирает заказ: сверяет запрошенные позиции с каталогом магазина
// и фиксирует снапшот цен. Последующие изменения каталога заказ не трогают.
func (s *orderService) CreateOrder(ctx context.Context, actor models.Actor, in CreateOrderInput) (*models.Order, error) {
	const op = "service.OrderService.CreateOrder"
	logger := s.log.With(slog.String("op", op), slog.Int64("userID", actor.UserID), slog.Int64("storeID", in.StoreID))
	logger.Info("starting order creation")

	if !Allowed(actor, ActionOrderCreate, true) {
		return nil, fmt.Errorf("%s: role %s cannot create orders: %w", op, actor.Role, ErrPermissionDenied)
	}
	if len(in.Lines) == 0 {
		return nil, fmt.Errorf("%s: order must contain at least one line: %w", op, ErrValidation)
	}
	for _, line := range in.Lines {
		if line.Quantity <= 0 {
			return nil, fmt.Errorf("%s: quantity must be positive: %w", op, ErrValidation)
		}
	}

	if _, err := s.storeRepo.GetStoreByID(ctx, in.StoreID); err != nil {
		if errors.Is(err, storage.ErrStoreNotFound) {
			return nil, fmt.Errorf("%s: store %d: %w", op, in.StoreID, ErrNotFound)
		}
		return nil, fmt.Errorf("%s: failed to get store: %w", op, err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		logger.Error("failed to begin transaction", slog.Any("error", err))
		return nil, fmt.Errorf("%s: failed to begin transaction: %w", op, err)
	}

	menuIDs := make([]int64, 0, len(in.Lines))
	for _, line := range in.Lines {
		menuIDs = append(menuIDs, line.MenuID)
	}

	menus, err := s.menuRepo.GetMenusByStoreAndIDs(ctx, tx, in.StoreID, menuIDs)
	if err != nil {
		s.rollback(tx, logger)
		logger.Error("failed to resolve menus", slog.Any("error", err))
		return nil, fmt.Errorf("%s: failed to resolve menus: %w", op, err)
	}
	// Одна проверка ловит и несуществующие, и чужие id: число найденных
	// позиций каталога должно совпадать с числом запрошенных.
	if len(menus) != len(menuIDs) {
		s.rollback(tx, logger)
		logger.Warn("invalid menu info", slog.Int("requested", len(menuIDs)), slog.Int("resolved", len(menus)))
		return nil, fmt.Errorf("%s: invalid menu info: %w", op, ErrValidation)
	}

	menuByID := make(map[int64]*models.Menu, len(menus))
	for _, m := range menus {
		menuByID[m.ID] = m
	}

	total := decimal.Zero
	items := make([]*models.OrderItem, 0, len(in.Lines))
	for _, line := range in.Lines {
		menu := menuByID[line.MenuID]
		items = append(items, &models.OrderItem{
			MenuID:   menu.ID,
			MenuName: menu.Name,
			Quantity: line.Quantity,
			Price:    menu.Price, // снапшот цены на момент сборки
		})
		total = total.Add(menu.Price.Mul(decimal.NewFromInt(int64(line.Quantity))))
	}

	order := &models.Order{
		UserID:     actor.UserID,
		StoreID:    in.StoreID,
		Address:    in.Address,
		Status:     models.OrderStatusPending,
		TotalPrice: total,
		Items:      items,
	}
	order, err = s.orderRepo.CreateOrder(ctx, tx, order)
	if err != nil {
		s.rollback(tx, logger)
		logger.Error("failed to create order", slog.Any("error", err))
		return nil, fmt.Errorf("%s: failed to create order: %w", op, err)
	}

	if err := tx.Commit(); err != nil {
		logger.Error("failed to commit transaction", slog.Any("error", err))
		return nil, fmt.Errorf("%s: failed to commit transaction: %w", op, err)
	}

	logger.Info("order created", slog.Int64("orderID", order.ID))
	return order, nil
}

func (s *orderService) GetOrder(ctx context.Context, actor models.Actor, id int64) (*models.Order, error) {
	const op = "service.OrderService.GetOrder"

	order, err := s.orderRepo.GetOrderByID(ctx, id)
	if err != nil {
		if errors.Is(err, storage.ErrOrderNotFound) {
			return nil, fmt.Errorf("%s: order %d: %w", op, id, ErrNotFound)
		}
		return nil, fmt.Errorf("%s: failed to get order: %w", op, err)
	}

	owns, err := s.ownsOrder(ctx, actor, order)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if !Allowed(actor, ActionOrderRead, owns) {
		return nil, fmt.Errorf("%s: order %d: %w", op, id, ErrPermissionDenied)
	}
	return order, nil
}

func (s *orderService) ListOrders(ctx context.Context, actor models.Actor, storeID *int64) ([]*models.Order, error) {
	const op = "service.OrderService.ListOrders"

	// Фильтр списка определяется ролью: покупатель и владелец магазина
	// видят только свое, менеджеры — всё.
	filter := storage.OrderFilter{StoreID: storeID}
	switch actor.Role {
	case models.RoleCustomer:
		filter.UserID = &actor.UserID
	case models.RoleStoreOwner:
		filter.OwnerID = &actor.UserID
	case models.RoleManager, models.RoleMaster:
		// без ограничений
	default:
		return nil, fmt.Errorf("%s: role %s cannot list orders: %w", op, actor.Role, ErrPermissionDenied)
	}

	orders, err := s.orderRepo.ListOrders(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("%s: failed to list orders: %w", op, err)
	}
	return orders, nil
}

// AdvanceOrderStatus двигает заказ ровно на один шаг вперед по последовательности
func (s *orderService) AdvanceOrderStatus(ctx context.Context, actor models.Actor, id int64) (*models.Order, error) {
	const op = "service.OrderService.AdvanceOrderStatus"
	logger := s.log.With(slog.String("op", op), slog.Int64("orderID", id), slog.Int64("userID", actor.UserID))

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		logger.Error("failed to begin transaction", slog.Any("error", err))
		return nil, fmt.Errorf("%s: failed to begin transaction: %w", op, err)
	}

	order, err := s.orderRepo.LockOrderByIDTx(ctx, tx, id)
	if err != nil {
		s.rollback(tx, logger)
		if errors.Is(err, storage.ErrOrderNotFound) {
			return nil, fmt.Errorf("%s: order %d: %w", op, id, ErrNotFound)
		}
		logger.Error("failed to lock order", slog.Any("error", err))
		return nil, fmt.Errorf("%s: failed to lock order: %w", op, err)
	}

	owns, err := s.ownsStore(ctx, actor, order.StoreID)
	if err != nil {
		s.rollback(tx, logger)
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if !Allowed(actor, ActionOrderAdvance, owns) {
		s.rollback(tx, logger)
		return nil, fmt.Errorf("%s: order %d: %w", op, id, ErrPermissionDenied)
	}

	next, ok := models.NextOrderStatus(order.Status)
	if !ok {
		s.rollback(tx, logger)
		return nil, fmt.Errorf("%s: no forward transition from %s: %w", op, order.Status, ErrStateViolation)
	}

	if err := s.orderRepo.UpdateOrderStatus(ctx, tx, id, next); err != nil {
		s.rollback(tx, logger)
		logger.Error("failed to update order status", slog.Any("error", err))
		return nil, fmt.Errorf("%s: failed to update order status: %w", op, err)
	}

	if err := tx.Commit(); err != nil {
		logger.Error("failed to commit transaction", slog.Any("error", err))
		return nil, fmt.Errorf("%s: failed to commit transaction: %w", op, err)
	}

	order.Status = next
	logger.Info("order status advanced", slog.String("status", string(next)))
	return order, nil
}

// SetOrderStatus — административный обход машины состояний: прыжок в любой
// известный статус без валидации ребер. Каждый вызов попадает в журнал.
func (s *orderService) SetOrderStatus(ctx context.Context, actor models.Actor, id int64, status models.OrderStatus) (*models.Order, error) {
	const op = "service.OrderService.SetOrderStatus"
	logger := s.log.With(slog.String("op", op), slog.Int64("orderID", id), slog.Int64("userID", actor.UserID))

	if !Allowed(actor, ActionOrderOverride, false) {
		return nil, fmt.Errorf("%s: order %d: %w", op, id, ErrPermissionDenied)
	}
	if !models.IsValidOrderStatus(status) {
		return nil, fmt.Errorf("%s: unknown status %q: %w", op, status, ErrValidation)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		logger.Error("failed to begin transaction", slog.Any("error", err))
		return nil, fmt.Errorf("%s: failed to begin transaction: %w", op, err)
	}

	order, err := s.orderRepo.LockOrderByIDTx(ctx, tx, id)
	if err != nil {
		s.rollback(tx, logger)
		if errors.Is(err, storage.ErrOrderNotFound) {
			return nil, fmt.Errorf("%s: order %d: %w", op, id, ErrNotFound)
		}
		logger.Error("failed to lock order", slog.Any("error", err))
		return nil, fmt.Errorf("%s: failed to lock order: %w", op, err)
	}

	if err := s.orderRepo.UpdateOrderStatus(ctx, tx, id, status); err != nil {
		s.rollback(tx, logger)
		logger.Error("failed to update order status", slog.Any("error", err))
		return nil, fmt.Errorf("%s: failed to update order status: %w", op, err)
	}

	if err := tx.Commit(); err != nil {
		logger.Error("failed to commit transaction", slog.Any("error", err))
		return nil, fmt.Errorf("%s: failed to commit transaction: %w", op, err)
	}

	logger.Warn("administrative status override",
		slog.String("from", string(order.Status)),
		slog.String("to", string(status)))
	order.Status = status
	return order, nil
}

// CancelOrder отменяет заказ в пределах окна отмены и проставляет tombstone
func (s *orderService) CancelOrder(ctx context.Context, actor models.Actor, id int64) error {
	const op = "service.OrderService.CancelOrder"
	logger := s.log.With(slog.String("op", op), slog.Int64("orderID", id), slog.Int64("userID", actor.UserID))

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		logger.Error("failed to begin transaction", slog.Any("error", err))
		return fmt.Errorf("%s: failed to begin transaction: %w", op, err)
	}

	order, err := s.orderRepo.LockOrderByIDTx(ctx, tx, id)
	if err != nil {
		s.rollback(tx, logger)
		if errors.Is(err, storage.ErrOrderNotFound) {
			return fmt.Errorf("%s: order %d: %w", op, id, ErrNotFound)
		}
		logger.Error("failed to lock order", slog.Any("error", err))
		return fmt.Errorf("%s: failed to lock order: %w", op, err)
	}

	owns, err := s.ownsOrder(ctx, actor, order)
	if err != nil {
		s.rollback(tx, logger)
		return fmt.Errorf("%s: %w", op, err)
	}
	if !Allowed(actor, ActionOrderCancel, owns) {
		s.rollback(tx, logger)
		return fmt.Errorf("%s: order %d: %w", op, id, ErrPermissionDenied)
	}

	// Окно проверяется по сохраненному времени создания против "сейчас":
	// никакого планировщика — по истечении окна действие просто недоступно.
	if time.Since(order.CreatedAt) > cancelWindow {
		s.rollback(tx, logger)
		logger.Warn("cancellation window expired", slog.Time("createdAt", order.CreatedAt))
		return fmt.Errorf("%s: cancellation window expired: %w", op, ErrConflict)
	}

	if err := s.orderRepo.CancelOrder(ctx, tx, id); err != nil {
		s.rollback(tx, logger)
		logger.Error("failed to cancel order", slog.Any("error", err))
		return fmt.Errorf("%s: failed to cancel order: %w", op, err)
	}

	if err := tx.Commit(); err != nil {
		logger.Error("failed to commit transaction", slog.Any("error", err))
		return fmt.Errorf("%s: failed to commit transaction: %w", op, err)
	}

	logger.Info("order cancelled")
	return nil
}

// ownsOrder определяет принадлежность заказа актору: покупателю — свой заказ,
// владельцу — заказ его магазина.
func (s *orderService) ownsOrder(ctx context.Context, actor models.Actor, order *models.Order) (bool, error) {
	if actor.Role == models.RoleStoreOwner {
		return s.ownsStore(ctx, actor, order.StoreID)
	}
	return order.UserID == actor.UserID, nil
}

func (s *orderService) ownsStore(ctx context.Context, actor models.Actor, storeID int64) (bool, error) {
	if actor.Role != models.RoleStoreOwner {
		return false, nil
	}
	store, err := s.storeRepo.GetStoreByID(ctx, storeID)
	if err != nil {
		if errors.Is(err, storage.ErrStoreNotFound) {
			return false, nil
		}
		return false, fmt.Errorf("failed to get store: %w", err)
	}
	return store.OwnerID == actor.UserID, nil
}

func (s *orderService) rollback(tx *sql.Tx, logger *slog.Logger) {
	if rbErr := tx.Rollback(); rbErr != nil {
		logger.Error("transaction rollback failed", slog.Any("error", rbErr))
	}
}
