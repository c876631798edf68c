package repository

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/garyjia/excise-workflow/internal/application/port"
	"github.com/garyjia/excise-workflow/internal/domain/entity"
	"github.com/garyjia/excise-workflow/internal/infrastructure/persistence/sqldb"
)

// RoleRepository implements port.RoleRepository
type RoleRepository struct {
	db     *sqldb.DB
	logger *zap.Logger
}

// NewRoleRepository creates a new role repository
func NewRoleRepository(db *sqldb.DB, logger *zap.Logger) port.RoleRepository {
	return &RoleRepository{
		db:     db,
		logger: logger,
	}
}

const roleColumns = `id, name, role_precedence, can_manage_workflows`

// Create creates a new role
func (r *RoleRepository) Create(ctx context.Context, role *entity.Role) error {
	query := `
		INSERT INTO roles (name, role_precedence, can_manage_workflows)
		VALUES (?, ?, ?)
		RETURNING id
	`

	err := r.db.QueryRowContext(ctx, query, role.Name, role.Precedence, role.CanManageWorkflows).Scan(&role.ID)
	if err != nil {
		r.logger.Error("Failed to create role", zap.String("name", role.Name), zap.Error(err))
		return fmt.Errorf("failed to create role: %w", constraintError(err, "name", "role name already exists"))
	}
	return nil
}

// GetByID retrieves a role by ID
func (r *RoleRepository) GetByID(ctx context.Context, id int64) (*entity.Role, error) {
	return r.getOne(ctx, `SELECT `+roleColumns+` FROM roles WHERE id = ?`, id)
}

// GetByName retrieves a role by name
func (r *RoleRepository) GetByName(ctx context.Context, name string) (*entity.Role, error) {
	return r.getOne(ctx, `SELECT `+roleColumns+` FROM roles WHERE name = ?`, name)
}

func (r *RoleRepository) getOne(ctx context.Context, query string, arg any) (*entity.Role, error) {
	var role entity.Role
	err := r.db.QueryRowContext(ctx, query, arg).
		Scan(&role.ID, &role.Name, &role.Precedence, &role.CanManageWorkflows)
	if sqldb.IsNoRows(err) {
		return nil, nil
	}
	if err != nil {
		r.logger.Error("Failed to get role", zap.Any("key", arg), zap.Error(err))
		return nil, fmt.Errorf("failed to get role: %w", sqldb.Classify(err))
	}
	return &role, nil
}

// List retrieves all roles ordered by precedence then name
func (r *RoleRepository) List(ctx context.Context) ([]*entity.Role, error) {
	query := `SELECT ` + roleColumns + ` FROM roles ORDER BY role_precedence ASC, name ASC`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		r.logger.Error("Failed to list roles", zap.Error(err))
		return nil, fmt.Errorf("failed to list roles: %w", sqldb.Classify(err))
	}
	defer rows.Close()

	var roles []*entity.Role
	for rows.Next() {
		var role entity.Role
		if err := rows.Scan(&role.ID, &role.Name, &role.Precedence, &role.CanManageWorkflows); err != nil {
			return nil, fmt.Errorf("failed to scan role: %w", err)
		}
		roles = append(roles, &role)
	}
	return roles, rows.Err()
}

// Update updates a role
func (r *RoleRepository) Update(ctx context.Context, role *entity.Role) error {
	query := `
		UPDATE roles
		SET name = ?, role_precedence = ?, can_manage_workflows = ?
		WHERE id = ?
	`

	res, err := r.db.ExecContext(ctx, query, role.Name, role.Precedence, role.CanManageWorkflows, role.ID)
	if err != nil {
		r.logger.Error("Failed to update role", zap.Int64("id", role.ID), zap.Error(err))
		return fmt.Errorf("failed to update role: %w", constraintError(err, "name", "role name already exists"))
	}
	return expectAffected(res, "role", role.ID)
}

// Delete removes a role and its stage permissions
func (r *RoleRepository) Delete(ctx context.Context, id int64) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM roles WHERE id = ?`, id)
	if err != nil {
		r.logger.Error("Failed to delete role", zap.Int64("id", id), zap.Error(err))
		return fmt.Errorf("failed to delete role: %w", sqldb.Classify(err))
	}
	return expectAffected(res, "role", id)
}

// Verify interface compliance
var _ port.RoleRepository = (*RoleRepository)(nil)
