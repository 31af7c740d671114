package storage

import (
	"context"
	"fmt"
	"time"

	"feeledger/internal/core"
)

type userRow struct {
	ID           int64      `db:"id"`
	Email        string     `db:"email"`
	PasswordHash string     `db:"password_hash"`
	FirstName    string     `db:"first_name"`
	LastName     string     `db:"last_name"`
	Role         string     `db:"role"`
	IsActive     bool       `db:"is_active"`
	LastLogin    *time.Time `db:"last_login"`
	CreatedAt    time.Time  `db:"created_at"`
	UpdatedAt    time.Time  `db:"updated_at"`
}

func (r userRow) toCore() core.User {
	var last *time.Time
	if r.LastLogin != nil {
		t := r.LastLogin.UTC()
		last = &t
	}
	return core.User{
		ID:           r.ID,
		Email:        r.Email,
		PasswordHash: r.PasswordHash,
		FirstName:    r.FirstName,
		LastName:     r.LastName,
		Role:         core.Role(r.Role),
		IsActive:     r.IsActive,
		LastLogin:    last,
		CreatedAt:    r.CreatedAt.UTC(),
		UpdatedAt:    r.UpdatedAt.UTC(),
	}
}

const userColumns = `id, email, password_hash, first_name, last_name, role, is_active, last_login, created_at, updated_at`

func (q *Queries) CountUsers(ctx context.Context) (int64, error) {
	var n int64
	if err := q.get(ctx, &n, `SELECT COUNT(*) FROM users`); err != nil {
		return 0, fmt.Errorf("count users: %w", err)
	}
	return n, nil
}

// LockUsers serializes user creation until the surrounding transaction
// ends, so a count taken after it stays true until commit. It must run
// inside WithTx. SQLite takes the database write lock with a no-op write.
func (q *Queries) LockUsers(ctx context.Context) error {
	query := `UPDATE users SET id = id WHERE id = 0`
	if q.driver == DriverPostgres {
		query = `LOCK TABLE users IN SHARE ROW EXCLUSIVE MODE`
	}
	if _, err := q.exec(ctx, query); err != nil {
		return fmt.Errorf("lock users: %w", err)
	}
	return nil
}

// CreateUser stores u with its password hash already computed.
func (q *Queries) CreateUser(ctx context.Context, u core.User, now time.Time) (core.User, error) {
	id, err := q.insert(ctx, `INSERT INTO users (email, password_hash, first_name, last_name, role,
		is_active, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?, ?, ?) RETURNING id`,
		u.Email, u.PasswordHash, u.FirstName, u.LastName, string(u.Role), u.IsActive, now, now)
	if err != nil {
		return core.User{}, fmt.Errorf("create user: %w", err)
	}
	return q.GetUser(ctx, id)
}

func (q *Queries) GetUser(ctx context.Context, id int64) (core.User, error) {
	var row userRow
	if err := q.get(ctx, &row, `SELECT `+userColumns+` FROM users WHERE id = ?`, id); err != nil {
		return core.User{}, fmt.Errorf("get user %d: %w", id, classify(err))
	}
	return row.toCore(), nil
}

func (q *Queries) GetUserByEmail(ctx context.Context, email string) (core.User, error) {
	var row userRow
	if err := q.get(ctx, &row, `SELECT `+userColumns+` FROM users WHERE email = ?`, email); err != nil {
		return core.User{}, fmt.Errorf("get user by email: %w", classify(err))
	}
	return row.toCore(), nil
}

func (q *Queries) TouchLastLogin(ctx context.Context, id int64, at time.Time) error {
	res, err := q.exec(ctx, `UPDATE users SET last_login = ?, updated_at = ? WHERE id = ?`, at, at, id)
	if err != nil {
		return fmt.Errorf("touch last login for user %d: %w", id, err)
	}
	return requireAffected(res)
}

// SetUserActive enables or disables a login without deleting the account.
func (q *Queries) SetUserActive(ctx context.Context, email string, active bool, now time.Time) error {
	res, err := q.exec(ctx, `UPDATE users SET is_active = ?, updated_at = ? WHERE email = ?`, active, now, email)
	if err != nil {
		return fmt.Errorf("set user active: %w", err)
	}
	if err := requireAffected(res); err != nil {
		return fmt.Errorf("set user active: %w", err)
	}
	return nil
}
