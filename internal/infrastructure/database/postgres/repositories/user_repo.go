package repositories

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/mirono/webtrees/internal/domain/user"
	"github.com/mirono/webtrees/internal/infrastructure/database/postgres"
	"github.com/mirono/webtrees/internal/infrastructure/monitoring/logging"
	"github.com/mirono/webtrees/pkg/errors"
	"github.com/mirono/webtrees/pkg/types/common"
)

// userColumns is the canonical select list; scanUser scans in this order.
const userColumns = `id, email, username, real_name, password_hash, role, status, language,
	preferences, email_verified_at, failed_login_count, locked_until,
	last_login_at, last_login_ip, created_at, updated_at, deleted_at`

type userRepository struct {
	conn     *postgres.Connection
	log      logging.Logger
	executor queryExecutor
}

// NewUserRepository builds the PostgreSQL implementation of the account
// persistence contract.
func NewUserRepository(conn *postgres.Connection, log logging.Logger) user.UserRepository {
	return &userRepository{
		conn:     conn,
		log:      log,
		executor: conn.DB(),
	}
}

func (r *userRepository) Create(ctx context.Context, u *user.User) error {
	if u.ID == uuid.Nil {
		u.ID = uuid.New()
	}
	query := `
		INSERT INTO users (
			id, email, username, real_name, password_hash, role, status, language,
			preferences, email_verified_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING created_at, updated_at
	`
	err := r.executor.QueryRowContext(ctx, query,
		u.ID, user.NormalizeEmail(u.Email), u.Username, u.RealName, u.PasswordHash,
		u.Role, u.Status, u.Language, prefsValue(u.Preferences), u.EmailVerifiedAt,
	).Scan(&u.CreatedAt, &u.UpdatedAt)

	if err != nil {
		switch {
		case uniqueViolation(err, "users_email_key"):
			return errors.Wrap(err, errors.ErrCodeDuplicateEmail, "email address already in use")
		case uniqueViolation(err, "users_username_key"):
			return errors.Wrap(err, errors.ErrCodeDuplicateUsername, "username already in use")
		case uniqueViolation(err, ""):
			return errors.Wrap(err, errors.ErrCodeConflict, "user already exists")
		}
		return errors.Wrap(err, errors.ErrCodeDatabaseError, "failed to create user")
	}
	return nil
}

func (r *userRepository) GetByID(ctx context.Context, id uuid.UUID) (*user.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE id = $1 AND deleted_at IS NULL`
	return scanUser(r.executor.QueryRowContext(ctx, query, id))
}

func (r *userRepository) GetByEmail(ctx context.Context, email string) (*user.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE email = $1 AND deleted_at IS NULL`
	return scanUser(r.executor.QueryRowContext(ctx, query, user.NormalizeEmail(email)))
}

func (r *userRepository) GetByUsername(ctx context.Context, username string) (*user.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE username = $1 AND deleted_at IS NULL`
	return scanUser(r.executor.QueryRowContext(ctx, query, username))
}

func (r *userRepository) Update(ctx context.Context, u *user.User) error {
	query := `
		UPDATE users SET
			email = $2, username = $3, real_name = $4, role = $5, status = $6,
			language = $7, preferences = $8, updated_at = NOW()
		WHERE id = $1 AND deleted_at IS NULL
	`
	res, err := r.executor.ExecContext(ctx, query,
		u.ID, user.NormalizeEmail(u.Email), u.Username, u.RealName,
		u.Role, u.Status, u.Language, prefsValue(u.Preferences),
	)
	if err != nil {
		switch {
		case uniqueViolation(err, "users_email_key"):
			return errors.Wrap(err, errors.ErrCodeDuplicateEmail, "email address already in use")
		case uniqueViolation(err, "users_username_key"):
			return errors.Wrap(err, errors.ErrCodeDuplicateUsername, "username already in use")
		}
		return errors.Wrap(err, errors.ErrCodeDatabaseError, "failed to update user")
	}
	if rows, _ := res.RowsAffected(); rows == 0 {
		return errors.New(errors.ErrCodeUserNotFound, "user not found").WithDetail(u.ID.String())
	}
	return nil
}

func (r *userRepository) SoftDelete(ctx context.Context, id uuid.UUID) error {
	query := `UPDATE users SET deleted_at = NOW(), status = $2, updated_at = NOW()
		WHERE id = $1 AND deleted_at IS NULL`
	res, err := r.executor.ExecContext(ctx, query, id, user.StatusDisabled)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeDatabaseError, "failed to delete user")
	}
	if rows, _ := res.RowsAffected(); rows == 0 {
		return errors.New(errors.ErrCodeUserNotFound, "user not found").WithDetail(id.String())
	}
	return nil
}

func (r *userRepository) List(ctx context.Context, filter user.ListFilter) ([]*user.User, int64, error) {
	where := "WHERE deleted_at IS NULL"
	args := []interface{}{}

	if filter.Search != "" {
		where += fmt.Sprintf(" AND (email ILIKE $%d OR username ILIKE $%d OR real_name ILIKE $%d)",
			len(args)+1, len(args)+1, len(args)+1)
		args = append(args, "%"+filter.Search+"%")
	}
	if filter.Role != "" {
		where += fmt.Sprintf(" AND role = $%d", len(args)+1)
		args = append(args, filter.Role)
	}
	if filter.Status != "" {
		where += fmt.Sprintf(" AND status = $%d", len(args)+1)
		args = append(args, filter.Status)
	}

	var total int64
	countQuery := "SELECT COUNT(*) FROM users " + where
	if err := r.executor.QueryRowContext(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, errors.Wrap(err, errors.ErrCodeDatabaseError, "failed to count users")
	}

	page := filter.Page
	if page.PageSize <= 0 {
		page = common.DefaultPagination()
	}
	query := fmt.Sprintf("SELECT "+userColumns+" FROM users "+where+
		" ORDER BY username ASC LIMIT $%d OFFSET $%d", len(args)+1, len(args)+2)
	args = append(args, page.PageSize, page.Offset())

	rows, err := r.executor.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, errors.Wrap(err, errors.ErrCodeDatabaseError, "failed to list users")
	}
	defer rows.Close()

	var users []*user.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, 0, err
		}
		users = append(users, u)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, errors.Wrap(err, errors.ErrCodeDatabaseError, "failed to list users")
	}
	return users, total, nil
}

// UpdatePassword replaces the hash and clears lockout state so a completed
// password reset immediately unlocks the account.
func (r *userRepository) UpdatePassword(ctx context.Context, id uuid.UUID, passwordHash string) error {
	query := `
		UPDATE users SET
			password_hash = $2, failed_login_count = 0, locked_until = NULL, updated_at = NOW()
		WHERE id = $1 AND deleted_at IS NULL
	`
	res, err := r.executor.ExecContext(ctx, query, id, passwordHash)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeDatabaseError, "failed to update password")
	}
	if rows, _ := res.RowsAffected(); rows == 0 {
		return errors.New(errors.ErrCodeUserNotFound, "user not found").WithDetail(id.String())
	}
	return nil
}

func (r *userRepository) RecordLogin(ctx context.Context, id uuid.UUID, ip string, at time.Time) error {
	query := `
		UPDATE users SET
			last_login_at = $2, last_login_ip = $3,
			failed_login_count = 0, locked_until = NULL, updated_at = NOW()
		WHERE id = $1 AND deleted_at IS NULL
	`
	res, err := r.executor.ExecContext(ctx, query, id, at, ip)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeDatabaseError, "failed to record login")
	}
	if rows, _ := res.RowsAffected(); rows == 0 {
		return errors.New(errors.ErrCodeUserNotFound, "user not found").WithDetail(id.String())
	}
	return nil
}

func (r *userRepository) RecordFailedLogin(ctx context.Context, id uuid.UUID, until *time.Time) error {
	query := `
		UPDATE users SET
			failed_login_count = failed_login_count + 1,
			locked_until = COALESCE($2, locked_until),
			updated_at = NOW()
		WHERE id = $1 AND deleted_at IS NULL
	`
	res, err := r.executor.ExecContext(ctx, query, id, until)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeDatabaseError, "failed to record failed login")
	}
	if rows, _ := res.RowsAffected(); rows == 0 {
		return errors.New(errors.ErrCodeUserNotFound, "user not found").WithDetail(id.String())
	}
	return nil
}

func (r *userRepository) VerifyEmail(ctx context.Context, id uuid.UUID, at time.Time) error {
	query := `UPDATE users SET email_verified_at = $2, updated_at = NOW()
		WHERE id = $1 AND deleted_at IS NULL`
	res, err := r.executor.ExecContext(ctx, query, id, at)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeDatabaseError, "failed to verify email")
	}
	if rows, _ := res.RowsAffected(); rows == 0 {
		return errors.New(errors.ErrCodeUserNotFound, "user not found").WithDetail(id.String())
	}
	return nil
}

// SetPreference writes one entry of the JSONB preference bag in place; an
// empty value removes the key.
func (r *userRepository) SetPreference(ctx context.Context, id uuid.UUID, name, value string) error {
	var (
		res sql.Result
		err error
	)
	if value == "" {
		query := `UPDATE users SET preferences = preferences - $2, updated_at = NOW()
			WHERE id = $1 AND deleted_at IS NULL`
		res, err = r.executor.ExecContext(ctx, query, id, name)
	} else {
		query := `UPDATE users SET
			preferences = jsonb_set(COALESCE(preferences, '{}'::jsonb), ARRAY[$2], to_jsonb($3::text)),
			updated_at = NOW()
			WHERE id = $1 AND deleted_at IS NULL`
		res, err = r.executor.ExecContext(ctx, query, id, name, value)
	}
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeDatabaseError, "failed to set user preference")
	}
	if rows, _ := res.RowsAffected(); rows == 0 {
		return errors.New(errors.ErrCodeUserNotFound, "user not found").WithDetail(id.String())
	}
	return nil
}

func scanUser(row scanner) (*user.User, error) {
	var (
		u          user.User
		prefsJSON  []byte
		verifiedAt sql.NullTime
		lockedAt   sql.NullTime
		loginAt    sql.NullTime
		deletedAt  sql.NullTime
		loginIP    sql.NullString
	)
	err := row.Scan(
		&u.ID, &u.Email, &u.Username, &u.RealName, &u.PasswordHash, &u.Role, &u.Status, &u.Language,
		&prefsJSON, &verifiedAt, &u.FailedLoginCount, &lockedAt,
		&loginAt, &loginIP, &u.CreatedAt, &u.UpdatedAt, &deletedAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, errors.New(errors.ErrCodeUserNotFound, "user not found")
		}
		return nil, errors.Wrap(err, errors.ErrCodeDatabaseError, "failed to scan user")
	}
	u.Preferences = scanPrefs(prefsJSON)
	u.EmailVerifiedAt = timePtr(verifiedAt)
	u.LockedUntil = timePtr(lockedAt)
	u.LastLoginAt = timePtr(loginAt)
	u.DeletedAt = timePtr(deletedAt)
	u.LastLoginIP = loginIP.String
	return &u, nil
}
