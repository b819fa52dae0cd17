package postgres

import (
	"context"
	"errors"
	"net"
	"time"

	"github.com/geocoder89/accounthub/internal/domain/user"
	"github.com/geocoder89/accounthub/internal/observability"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const (
	uniqueViolation    = "23505"
	emailUniqueIndex   = "users_email_key"
	userColumns        = `id, name, email, role, is_active, created_at, updated_at`
	userColumnsWithPwd = `id, name, email, role, is_active, created_at, updated_at, password_hash`
)

type UsersRepo struct {
	pool *pgxpool.Pool
	prom *observability.Prom
}

func NewUsersRepo(pool *pgxpool.Pool, prom *observability.Prom) *UsersRepo {
	return &UsersRepo{pool: pool, prom: prom}
}

func (r *UsersRepo) observe(op string, fn func() error) error {
	if r.prom != nil {
		return r.prom.ObserveDB(op, fn)
	}
	return fn()
}

func (r *UsersRepo) Ping(ctx context.Context) error {
	return r.pool.Ping(ctx)
}

func (r *UsersRepo) Insert(ctx context.Context, u user.User) error {
	err := r.observe("users.insert", func() error {
		_, e := r.pool.Exec(ctx,
			`INSERT INTO users (id, name, email, password_hash, role, is_active, created_at, updated_at)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`,
			u.ID, u.Name, u.Email, u.PasswordHash, string(u.Role), u.IsActive, u.CreatedAt, u.UpdatedAt,
		)
		return e
	})

	return mapErr(err)
}

func (r *UsersRepo) GetByID(ctx context.Context, id string) (user.User, error) {
	var u user.User

	err := r.observe("users.get_by_id", func() error {
		row := r.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id)
		var e error
		u, e = scanUser(row, false)
		return e
	})

	return u, mapErr(err)
}

func (r *UsersRepo) GetByEmailWithHash(ctx context.Context, email string) (user.User, error) {
	var u user.User

	err := r.observe("users.get_by_email", func() error {
		row := r.pool.QueryRow(ctx, `SELECT `+userColumnsWithPwd+` FROM users WHERE email = $1`, email)
		var e error
		u, e = scanUser(row, true)
		return e
	})

	return u, mapErr(err)
}

func (r *UsersRepo) GetPasswordHash(ctx context.Context, id string) (string, error) {
	var hash string

	err := r.observe("users.get_password_hash", func() error {
		return r.pool.QueryRow(ctx, `SELECT password_hash FROM users WHERE id = $1`, id).Scan(&hash)
	})

	return hash, mapErr(err)
}

func (r *UsersRepo) ExistsByEmail(ctx context.Context, email string) (bool, error) {
	var exists bool

	err := r.observe("users.exists_by_email", func() error {
		return r.pool.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM users WHERE email = $1)`, email).Scan(&exists)
	})

	return exists, mapErr(err)
}

func (r *UsersRepo) List(ctx context.Context, q user.ListQuery) ([]user.User, error) {
	var (
		afterAt *time.Time
		afterID *string
		limit   *int
	)
	if q.After != nil {
		afterAt, afterID = &q.After.CreatedAt, &q.After.ID
	}
	if q.Limit > 0 {
		limit = &q.Limit
	}

	var out []user.User

	err := r.observe("users.list", func() error {
		rows, e := r.pool.Query(ctx, `
			SELECT `+userColumns+`
			FROM users
			WHERE $1::timestamptz IS NULL OR (created_at, id) > ($1::timestamptz, $2::text)
			ORDER BY created_at, id
			LIMIT $3`,
			afterAt, afterID, limit,
		)
		if e != nil {
			return e
		}
		defer rows.Close()

		out = make([]user.User, 0)
		for rows.Next() {
			u, e := scanUser(rows, false)
			if e != nil {
				return e
			}
			out = append(out, u)
		}
		return rows.Err()
	})

	if err != nil {
		return nil, mapErr(err)
	}
	return out, nil
}

func (r *UsersRepo) Count(ctx context.Context) (int, error) {
	var n int

	err := r.observe("users.count", func() error {
		return r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM users`).Scan(&n)
	})

	return n, mapErr(err)
}

// UpdateProfile leaves nil fields untouched. A colliding email surfaces as
// a unique violation on users_email_key.
func (r *UsersRepo) UpdateProfile(ctx context.Context, id string, p user.ProfileUpdate, at time.Time) (user.User, error) {
	var u user.User

	err := r.observe("users.update_profile", func() error {
		row := r.pool.QueryRow(ctx,
			`UPDATE users
			SET name = COALESCE($2, name),
				email = COALESCE($3, email),
				updated_at = $4
			WHERE id = $1
			RETURNING `+userColumns,
			id, p.Name, p.Email, at,
		)
		var e error
		u, e = scanUser(row, false)
		return e
	})

	return u, mapErr(err)
}

func (r *UsersRepo) UpdatePasswordHash(ctx context.Context, id, hash string, at time.Time) error {
	var tag pgconn.CommandTag

	err := r.observe("users.update_password", func() error {
		var e error
		tag, e = r.pool.Exec(ctx,
			`UPDATE users SET password_hash = $2, updated_at = $3 WHERE id = $1`,
			id, hash, at,
		)
		return e
	})

	if err != nil {
		return mapErr(err)
	}
	if tag.RowsAffected() == 0 {
		return user.ErrNotFound
	}
	return nil
}

func (r *UsersRepo) UpdateRole(ctx context.Context, id string, role user.Role, at time.Time) (user.User, error) {
	var u user.User

	err := r.observe("users.update_role", func() error {
		row := r.pool.QueryRow(ctx,
			`UPDATE users SET role = $2, updated_at = $3 WHERE id = $1 RETURNING `+userColumns,
			id, string(role), at,
		)
		var e error
		u, e = scanUser(row, false)
		return e
	})

	return u, mapErr(err)
}

func (r *UsersRepo) UpdateActive(ctx context.Context, id string, active bool, at time.Time) (user.User, error) {
	var u user.User

	err := r.observe("users.update_active", func() error {
		row := r.pool.QueryRow(ctx,
			`UPDATE users SET is_active = $2, updated_at = $3 WHERE id = $1 RETURNING `+userColumns,
			id, active, at,
		)
		var e error
		u, e = scanUser(row, false)
		return e
	})

	return u, mapErr(err)
}

func (r *UsersRepo) Delete(ctx context.Context, id string) error {
	var tag pgconn.CommandTag

	err := r.observe("users.delete", func() error {
		var e error
		tag, e = r.pool.Exec(ctx, `DELETE FROM users WHERE id = $1`, id)
		return e
	})

	if err != nil {
		return mapErr(err)
	}
	if tag.RowsAffected() == 0 {
		return user.ErrNotFound
	}
	return nil
}

func scanUser(row pgx.Row, withHash bool) (user.User, error) {
	var u user.User
	var role string

	dest := []any{&u.ID, &u.Name, &u.Email, &role, &u.IsActive, &u.CreatedAt, &u.UpdatedAt}
	if withHash {
		dest = append(dest, &u.PasswordHash)
	}

	if err := row.Scan(dest...); err != nil {
		return user.User{}, err
	}

	u.Role = user.Role(role)
	u.CreatedAt = u.CreatedAt.UTC()
	u.UpdatedAt = u.UpdatedAt.UTC()
	return u, nil
}

// mapErr converts driver errors into the user package's sentinels where
// one applies.
func mapErr(err error) error {
	if err == nil {
		return nil
	}

	if errors.Is(err, pgx.ErrNoRows) {
		return user.ErrNotFound
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		if pgErr.Code == uniqueViolation && pgErr.ConstraintName == emailUniqueIndex {
			return user.ErrEmailTaken
		}
		return err
	}

	if IsUnavailable(err) {
		return errors.Join(user.ErrStoreUnavailable, err)
	}

	return err
}

// IsUnavailable reports connection-class failures such as dial errors
// and timeouts.
func IsUnavailable(err error) bool {
	var connErr *pgconn.ConnectError
	if errors.As(err, &connErr) {
		return true
	}

	if pgconn.Timeout(err) || errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}

	return errors.Is(err, net.ErrClosed)
}
