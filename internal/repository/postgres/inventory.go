package postgres

import (
	"context"
	"database/sql"
	"errors"

	"storage-booking-backend/internal/domain"
	"storage-booking-backend/internal/repository"
)

const inventoryColumns = `id, org_id, location_id, items_number_total, items_number_currently_in_storage, is_active, is_deleted`

type inventoryRepository struct {
	db querier
}

func NewInventoryRepository(db querier) repository.InventoryRepository {
	return &inventoryRepository{db: db}
}

func (r *inventoryRepository) GetByID(ctx context.Context, id string) (*domain.InventoryItem, error) {
	query := `SELECT ` + inventoryColumns + ` FROM storage_items WHERE id = $1`
	return r.scanOne(ctx, query, id)
}

func (r *inventoryRepository) LockByID(ctx context.Context, id string) (*domain.InventoryItem, error) {
	query := `SELECT ` + inventoryColumns + ` FROM storage_items WHERE id = $1 FOR UPDATE`
	return r.scanOne(ctx, query, id)
}

func (r *inventoryRepository) scanOne(ctx context.Context, query, id string) (*domain.InventoryItem, error) {
	it := &domain.InventoryItem{}
	var locationID sql.NullString
	err := r.db.QueryRowContext(ctx, query, id).Scan(&it.ID, &it.OrgID, &locationID, &it.TotalUnits, &it.UnitsInStorage, &it.IsActive, &it.IsDeleted)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.NotFound("item")
	}
	if err != nil {
		return nil, err
	}
	it.LocationID = locationID.String
	return it, nil
}

func (r *inventoryRepository) AdjustStorage(ctx context.Context, id string, delta int) error {
	query := `UPDATE storage_items
	          SET items_number_currently_in_storage = items_number_currently_in_storage + $1, updated_at = now()
	          WHERE id = $2
	            AND items_number_currently_in_storage + $1 >= 0
	            AND items_number_currently_in_storage + $1 <= items_number_total`
	res, err := r.db.ExecContext(ctx, query, delta, id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return domain.Integrityf(id, "storage count adjustment of %d out of range", delta)
	}
	return nil
}
