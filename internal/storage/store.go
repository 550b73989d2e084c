package storage

import (
	"context"
	"database/sql"
	"errors"

	"github.com/linemk/food-market/internal/domain/models"
)

var ErrStoreNotFound = errors.New("store not found")

// StoreStorage описывает методы для работы с магазинами.
// Ядру от магазина нужна только принадлежность владельцу.
type StoreStorage interface {
	GetStoreByID(ctx context.Context, id int64) (*models.Store, error)
}

type storeRepository struct {
	db *sql.DB
}

func NewStoreRepository(db *sql.DB) StoreStorage {
	return &storeRepository{db: db}
}

func (r *storeRepository) GetStoreByID(ctx context.Context, id int64) (*models.Store, error) {
	store := &models.Store{}
	row := r.db.QueryRowContext(ctx,
		"SELECT id, name, owner_id, created_at FROM stores WHERE id = $1 AND deleted_at IS NULL", id)
	if err := row.Scan(&store.ID, &store.Name, &store.OwnerID, &store.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrStoreNotFound
		}
		return nil, err
	}
	return store, nil
}
