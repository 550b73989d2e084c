package storage

import (
	"context"
	"database/sql"
	"errors"

	"github.com/lib/pq"
	"github.com/linemk/food-market/internal/domain/models"
)

var ErrMenuNotFound = errors.New("menu not found")

// MenuStorage описывает доступ к каталогу меню. Используется только
// при сборке заказа — заказ хранит собственный снапшот цен.
type MenuStorage interface {
	// GetMenusByStoreAndIDs возвращает позиции меню указанного магазина по списку id.
	// Чужие и несуществующие id просто не попадают в результат.
	GetMenusByStoreAndIDs(ctx context.Context, tx *sql.Tx, storeID int64, ids []int64) ([]*models.Menu, error)
}

type menuRepository struct {
	db *sql.DB
}

func NewMenuRepository(db *sql.DB) MenuStorage {
	return &menuRepository{db: db}
}

func (r *menuRepository) GetMenusByStoreAndIDs(ctx context.Context, tx *sql.Tx, storeID int64, ids []int64) ([]*models.Menu, error) {
	query := `
		SELECT id, store_id, name, price, created_at
		FROM menus
		WHERE store_id = $1 AND id = ANY($2) AND deleted_at IS NULL`
	rows, err := tx.QueryContext(ctx, query, storeID, pq.Array(ids))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var menus []*models.Menu
	for rows.Next() {
		menu := &models.Menu{}
		if err := rows.Scan(&menu.ID, &menu.StoreID, &menu.Name, &menu.Price, &menu.CreatedAt); err != nil {
			return nil, err
		}
		menus = append(menus, menu)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return menus, nil
}
