package postgres

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/dtroode/pizzeria-auth/internal/model"
)

var _ model.RoleResolver = (*RoleRepository)(nil)

type RoleRepository struct {
	db *Connection
}

func NewRoleRepository(db *Connection) *RoleRepository {
	return &RoleRepository{db: db}
}

// RolesForUser returns role names of the user ordered by name.
func (r *RoleRepository) RolesForUser(ctx context.Context, userID uuid.UUID) ([]string, error) {
	const query = `
        SELECT r.name
        FROM roles r
        JOIN user_roles ur ON ur.role_id = r.id
        WHERE ur.user_id = $1
        ORDER BY r.name
    `

	rows, err := r.db.Query(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to get roles for user: %w", err)
	}

	roles, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("failed to scan roles: %w", err)
	}

	return roles, nil
}

// Assign grants a role to the user, creating the role if needed.
func (r *RoleRepository) Assign(ctx context.Context, userID uuid.UUID, role string) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var roleID uuid.UUID
	err = tx.QueryRow(ctx, `
        INSERT INTO roles (id, name) VALUES ($1, $2)
        ON CONFLICT (name) DO UPDATE SET name = EXCLUDED.name
        RETURNING id
    `, uuid.New(), role).Scan(&roleID)
	if err != nil {
		return fmt.Errorf("failed to upsert role: %w", err)
	}

	_, err = tx.Exec(ctx, `
        INSERT INTO user_roles (user_id, role_id) VALUES ($1, $2)
        ON CONFLICT DO NOTHING
    `, userID, roleID)
	if err != nil {
		return fmt.Errorf("failed to assign role: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit role assignment: %w", err)
	}

	return nil
}
