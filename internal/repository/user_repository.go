package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/iliyamo/storefront-api/internal/model"
)

type UserRepo struct{ db *sql.DB }

func NewUserRepo(db *sql.DB) *UserRepo { return &UserRepo{db: db} }

const userSelect = "SELECT u.id, u.username, u.email, u.password_hash, u.first_name, u.last_name, u.display_name, " +
	"u.date_of_birth, u.address, u.avatar, u.is_active, "

func scanUser(s scanner) (*model.User, error) {
	var u model.User
	dest := []any{&u.ID, &u.Username, &u.Email, &u.PasswordHash, &u.FirstName, &u.LastName, &u.DisplayName,
		&u.DateOfBirth, &u.Address, &u.Avatar, &u.IsActive}
	if err := s.Scan(append(dest, auditDest(&u.Audit)...)...); err != nil {
		return nil, notFound(err)
	}
	return &u, nil
}

// CreateTx inserts a user. ID and CreatedAt are filled in on u.
// A duplicate username or email yields ErrDuplicate.
func (r *UserRepo) CreateTx(ctx context.Context, tx *sql.Tx, actor Actor, u *model.User) error {
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	u.CreatedAt = nowUTC()
	u.CreatedByID = actor.AuditID()
	_, err := tx.ExecContext(ctx,
		`INSERT INTO security_users (id, username, email, password_hash, first_name, last_name, display_name,
		 date_of_birth, address, avatar, is_active, is_deleted, created_at, created_by_id)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 0, ?, ?)`,
		u.ID, u.Username, strings.ToLower(u.Email), u.PasswordHash, u.FirstName, u.LastName, u.DisplayName,
		u.DateOfBirth, u.Address, u.Avatar, u.IsActive, u.CreatedAt, u.CreatedByID)
	if isDuplicate(err) {
		return ErrDuplicate
	}
	return err
}

// AssignRoleTx links the user to the role with the given name.
func (r *UserRepo) AssignRoleTx(ctx context.Context, tx *sql.Tx, userID, roleName string) error {
	res, err := tx.ExecContext(ctx,
		`INSERT INTO security_user_roles (user_id, role_id)
		 SELECT ?, id FROM security_roles WHERE name = ? AND is_deleted = 0`,
		userID, roleName)
	if isDuplicate(err) {
		return nil
	}
	if err := mustAffect(res, err, ErrNotFound); err != nil {
		return fmt.Errorf("assign role %q: %w", roleName, err)
	}
	return nil
}

// GetByUsername loads a non-deleted user with its role names.
func (r *UserRepo) GetByUsername(ctx context.Context, username string) (*model.User, error) {
	u, err := scanUser(r.db.QueryRowContext(ctx,
		userSelect+auditColumns("u")+" FROM security_users u WHERE u.username = ? AND u.is_deleted = 0 LIMIT 1",
		strings.TrimSpace(username)))
	if err != nil {
		return nil, err
	}
	if u.Roles, err = r.Roles(ctx, u.ID); err != nil {
		return nil, err
	}
	return u, nil
}

// GetByID loads a non-deleted user with its role names.
func (r *UserRepo) GetByID(ctx context.Context, id string) (*model.User, error) {
	u, err := scanUser(r.db.QueryRowContext(ctx,
		userSelect+auditColumns("u")+" FROM security_users u WHERE u.id = ? AND u.is_deleted = 0 LIMIT 1", id))
	if err != nil {
		return nil, err
	}
	if u.Roles, err = r.Roles(ctx, u.ID); err != nil {
		return nil, err
	}
	return u, nil
}

// Taken reports whether the username or the email is already registered.
func (r *UserRepo) Taken(ctx context.Context, username, email string) (usernameTaken, emailTaken bool, err error) {
	err = r.db.QueryRowContext(ctx,
		`SELECT COALESCE(SUM(username = ?), 0) > 0, COALESCE(SUM(email = ?), 0) > 0
		 FROM security_users WHERE (username = ? OR email = ?) AND is_deleted = 0`,
		username, strings.ToLower(email), username, strings.ToLower(email)).Scan(&usernameTaken, &emailTaken)
	return usernameTaken, emailTaken, err
}

// Roles returns the names of the user's active roles, sorted.
func (r *UserRepo) Roles(ctx context.Context, userID string) ([]string, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT r.name FROM security_user_roles ur
		 JOIN security_roles r ON r.id = ur.role_id
		 WHERE ur.user_id = ? AND r.is_deleted = 0 AND r.is_active = 1
		 ORDER BY r.name`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	roles := []string{}
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		roles = append(roles, name)
	}
	return roles, rows.Err()
}

// EnsureRole inserts the role when no row with that name exists yet.
func (r *UserRepo) EnsureRole(ctx context.Context, actor Actor, name, description string) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO security_roles (id, name, description, is_active, is_deleted, created_at, created_by_id)
		 SELECT ?, ?, ?, 1, 0, ?, ? FROM DUAL
		 WHERE NOT EXISTS (SELECT 1 FROM security_roles WHERE name = ?)`,
		uuid.NewString(), name, description, nowUTC(), actor.AuditID(), name)
	if isDuplicate(err) {
		return nil
	}
	return err
}
