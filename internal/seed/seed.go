// Package seed loads inventory, users and role assignments from a YAML file
// into either store. It backs local development and demo environments.
package seed

import (
	"context"
	"database/sql"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"storage-booking-backend/internal/domain"
	"storage-booking-backend/internal/repository/memory"
)

type Data struct {
	Users []User `yaml:"users"`
	Items []Item `yaml:"items"`
}

type User struct {
	ID       string `yaml:"id"`
	Email    string `yaml:"email"`
	FullName string `yaml:"full_name"`
	Roles    []Role `yaml:"roles"`
}

type Role struct {
	OrgID string `yaml:"organization_id"`
	Role  string `yaml:"role"`
}

type Item struct {
	ID         string `yaml:"id"`
	OrgID      string `yaml:"org_id"`
	LocationID string `yaml:"location_id"`
	Total      int    `yaml:"total"`
	InStorage  *int   `yaml:"in_storage"` // defaults to total
}

// Load reads and validates a seed file.
func Load(path string) (*Data, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read seed file: %w", err)
	}
	var d Data
	if err := yaml.Unmarshal(raw, &d); err != nil {
		return nil, fmt.Errorf("failed to parse seed file: %w", err)
	}
	if err := d.validate(); err != nil {
		return nil, fmt.Errorf("invalid seed file: %w", err)
	}
	return &d, nil
}

func (d *Data) validate() error {
	for _, u := range d.Users {
		if u.ID == "" || u.Email == "" {
			return fmt.Errorf("user needs id and email")
		}
		for _, r := range u.Roles {
			if r.OrgID == "" || r.Role == "" {
				return fmt.Errorf("user %s: role needs organization_id and role", u.ID)
			}
		}
	}
	for _, it := range d.Items {
		if it.ID == "" || it.OrgID == "" {
			return fmt.Errorf("item needs id and org_id")
		}
		inv := it.inventory()
		if inv.TotalUnits < 0 || inv.UnitsInStorage < 0 || inv.UnitsInStorage > inv.TotalUnits {
			return fmt.Errorf("item %s: in_storage must be between 0 and total", it.ID)
		}
	}
	return nil
}

func (it Item) inventory() domain.InventoryItem {
	inStorage := it.Total
	if it.InStorage != nil {
		inStorage = *it.InStorage
	}
	return domain.InventoryItem{
		ID:             it.ID,
		OrgID:          it.OrgID,
		LocationID:     it.LocationID,
		TotalUnits:     it.Total,
		UnitsInStorage: inStorage,
		IsActive:       true,
	}
}

// ApplyMemory loads the data into an in-memory store.
func (d *Data) ApplyMemory(s *memory.Store) {
	for _, u := range d.Users {
		s.AddUser(domain.User{ID: u.ID, Email: u.Email, FullName: u.FullName})
		for _, r := range u.Roles {
			s.AddRole(domain.RoleAssignment{UserID: u.ID, OrgID: r.OrgID, Role: domain.RoleName(r.Role)})
		}
	}
	for _, it := range d.Items {
		s.AddItem(it.inventory())
	}
}

// ApplyPostgres upserts the data in one transaction. Existing stock counts
// are overwritten.
func (d *Data) ApplyPostgres(ctx context.Context, db *sql.DB) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for _, u := range d.Users {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO user_profiles (id, email, full_name)
			VALUES ($1, $2, $3)
			ON CONFLICT (id) DO UPDATE SET email = EXCLUDED.email, full_name = EXCLUDED.full_name`,
			u.ID, u.Email, u.FullName)
		if err != nil {
			return fmt.Errorf("failed to upsert user %s: %w", u.ID, err)
		}
		for _, r := range u.Roles {
			_, err := tx.ExecContext(ctx, `
				INSERT INTO user_organization_roles (user_id, organization_id, role_name, is_active)
				VALUES ($1, $2, $3, true)
				ON CONFLICT (user_id, organization_id, role_name) DO UPDATE SET is_active = true`,
				u.ID, r.OrgID, r.Role)
			if err != nil {
				return fmt.Errorf("failed to upsert role %s for user %s: %w", r.Role, u.ID, err)
			}
		}
	}

	for _, it := range d.Items {
		inv := it.inventory()
		_, err := tx.ExecContext(ctx, `
			INSERT INTO storage_items (id, org_id, location_id, items_number_total, items_number_currently_in_storage, is_active, is_deleted)
			VALUES ($1, $2, NULLIF($3, ''), $4, $5, true, false)
			ON CONFLICT (id) DO UPDATE SET
				org_id = EXCLUDED.org_id,
				location_id = EXCLUDED.location_id,
				items_number_total = EXCLUDED.items_number_total,
				items_number_currently_in_storage = EXCLUDED.items_number_currently_in_storage`,
			inv.ID, inv.OrgID, inv.LocationID, inv.TotalUnits, inv.UnitsInStorage)
		if err != nil {
			return fmt.Errorf("failed to upsert item %s: %w", it.ID, err)
		}
	}

	return tx.Commit()
}
