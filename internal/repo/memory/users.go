package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/geocoder89/accounthub/internal/domain/user"
)

// UsersRepo keeps users in a map. The byEmail index plays the role of the
// unique constraint: every write that touches an email checks it under
// the write lock.
type UsersRepo struct {
	mu      sync.RWMutex
	items   map[string]user.User
	byEmail map[string]string // email -> id
}

func NewUsersRepo() *UsersRepo {
	return &UsersRepo{
		items:   make(map[string]user.User),
		byEmail: make(map[string]string),
	}
}

func (r *UsersRepo) Ping(_ context.Context) error {
	return nil
}

func (r *UsersRepo) Insert(ctx context.Context, u user.User) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, taken := r.byEmail[u.Email]; taken {
		return user.ErrEmailTaken
	}

	r.items[u.ID] = u
	r.byEmail[u.Email] = u.ID
	return nil
}

func (r *UsersRepo) GetByID(_ context.Context, id string) (user.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	u, ok := r.items[id]
	if !ok {
		return user.User{}, user.ErrNotFound
	}
	return withoutHash(u), nil
}

func (r *UsersRepo) GetByEmailWithHash(_ context.Context, email string) (user.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	id, ok := r.byEmail[email]
	if !ok {
		return user.User{}, user.ErrNotFound
	}
	return r.items[id], nil
}

func (r *UsersRepo) GetPasswordHash(_ context.Context, id string) (string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	u, ok := r.items[id]
	if !ok {
		return "", user.ErrNotFound
	}
	return u.PasswordHash, nil
}

func (r *UsersRepo) ExistsByEmail(_ context.Context, email string) (bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	_, ok := r.byEmail[email]
	return ok, nil
}

func (r *UsersRepo) List(_ context.Context, q user.ListQuery) ([]user.User, error) {
	r.mu.RLock()
	out := make([]user.User, 0, len(r.items))
	for _, u := range r.items {
		if q.After != nil && !after(u, *q.After) {
			continue
		}
		out = append(out, withoutHash(u))
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		return after(out[j], user.CursorOf(out[i]))
	})

	if q.Limit > 0 && len(out) > q.Limit {
		out = out[:q.Limit]
	}
	return out, nil
}

// after reports whether u sorts strictly after c in (CreatedAt, ID) order.
func after(u user.User, c user.Cursor) bool {
	if u.CreatedAt.Equal(c.CreatedAt) {
		return u.ID > c.ID
	}
	return u.CreatedAt.After(c.CreatedAt)
}

func (r *UsersRepo) Count(_ context.Context) (int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.items), nil
}

func (r *UsersRepo) UpdateProfile(_ context.Context, id string, p user.ProfileUpdate, at time.Time) (user.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	u, ok := r.items[id]
	if !ok {
		return user.User{}, user.ErrNotFound
	}

	if p.Email != nil && *p.Email != u.Email {
		if owner, taken := r.byEmail[*p.Email]; taken && owner != id {
			return user.User{}, user.ErrEmailTaken
		}
		delete(r.byEmail, u.Email)
		u.Email = *p.Email
		r.byEmail[u.Email] = id
	}
	if p.Name != nil {
		u.Name = *p.Name
	}
	u.UpdatedAt = at

	r.items[id] = u
	return withoutHash(u), nil
}

func (r *UsersRepo) UpdatePasswordHash(_ context.Context, id, hash string, at time.Time) error {
	return r.mutate(id, at, func(u *user.User) {
		u.PasswordHash = hash
	})
}

func (r *UsersRepo) UpdateRole(_ context.Context, id string, role user.Role, at time.Time) (user.User, error) {
	var out user.User
	err := r.mutate(id, at, func(u *user.User) {
		u.Role = role
		out = withoutHash(*u)
	})
	return out, err
}

func (r *UsersRepo) UpdateActive(_ context.Context, id string, active bool, at time.Time) (user.User, error) {
	var out user.User
	err := r.mutate(id, at, func(u *user.User) {
		u.IsActive = active
		out = withoutHash(*u)
	})
	return out, err
}

func (r *UsersRepo) Delete(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	u, ok := r.items[id]
	if !ok {
		return user.ErrNotFound
	}

	delete(r.items, id)
	delete(r.byEmail, u.Email)
	return nil
}

func (r *UsersRepo) mutate(id string, at time.Time, fn func(u *user.User)) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	u, ok := r.items[id]
	if !ok {
		return user.ErrNotFound
	}

	u.UpdatedAt = at
	fn(&u)
	r.items[id] = u
	return nil
}

func withoutHash(u user.User) user.User {
	u.PasswordHash = ""
	return u
}
