package postgres

import (
	"context"
	"database/sql"
	"errors"

	"storage-booking-backend/internal/domain"
	"storage-booking-backend/internal/repository"
)

type userRepository struct {
	db querier
}

func NewUserRepository(db querier) repository.UserRepository {
	return &userRepository{db: db}
}

func (r *userRepository) GetByID(ctx context.Context, id string) (*domain.User, error) {
	u := &domain.User{}
	query := `SELECT id, email, COALESCE(full_name, '') FROM user_profiles WHERE id = $1`
	err := r.db.QueryRowContext(ctx, query, id).Scan(&u.ID, &u.Email, &u.FullName)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.NotFound("user")
	}
	if err != nil {
		return nil, err
	}
	return u, nil
}

type roleRepository struct {
	db querier
}

func NewRoleRepository(db querier) repository.RoleRepository {
	return &roleRepository{db: db}
}

func (r *roleRepository) ListByUser(ctx context.Context, userID string) ([]domain.RoleAssignment, error) {
	query := `SELECT user_id, organization_id, role_name FROM user_organization_roles
	          WHERE user_id = $1 AND is_active = true`
	rows, err := r.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var roles []domain.RoleAssignment
	for rows.Next() {
		var ra domain.RoleAssignment
		if err := rows.Scan(&ra.UserID, &ra.OrgID, &ra.Role); err != nil {
			return nil, err
		}
		roles = append(roles, ra)
	}
	return roles, rows.Err()
}
