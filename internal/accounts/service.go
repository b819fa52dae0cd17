// Package accounts owns the user record lifecycle: registration,
// credential checks, self-service changes and the admin-only mutations.
package accounts

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/geocoder89/accounthub/internal/cache"
	"github.com/geocoder89/accounthub/internal/domain/user"
	"github.com/geocoder89/accounthub/internal/security"
)

var ErrWrongCurrentPassword = errors.New("current password is incorrect")

// Store is the persistence mechanism. It enforces email uniqueness and
// never returns a password hash except from GetByEmailWithHash and
// GetPasswordHash.
type Store interface {
	Insert(ctx context.Context, u user.User) error
	GetByID(ctx context.Context, id string) (user.User, error)
	GetByEmailWithHash(ctx context.Context, email string) (user.User, error)
	GetPasswordHash(ctx context.Context, id string) (string, error)
	ExistsByEmail(ctx context.Context, email string) (bool, error)
	List(ctx context.Context, q user.ListQuery) ([]user.User, error)
	Count(ctx context.Context) (int, error)
	UpdateProfile(ctx context.Context, id string, p user.ProfileUpdate, at time.Time) (user.User, error)
	UpdatePasswordHash(ctx context.Context, id, hash string, at time.Time) error
	UpdateRole(ctx context.Context, id string, role user.Role, at time.Time) (user.User, error)
	UpdateActive(ctx context.Context, id string, active bool, at time.Time) (user.User, error)
	Delete(ctx context.Context, id string) error
}

type Service struct {
	store  Store
	hasher *security.Hasher
	users  cache.Users
	now    func() time.Time

	dummyOnce sync.Once
	dummyHash string
}

type Option func(*Service)

// WithClock replaces the time source used for CreatedAt and UpdatedAt.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = func() time.Time { return now().UTC() }
		}
	}
}

// NewService wires the store and hasher. users may be nil to disable the
// read-through cache used by FindByID.
func NewService(store Store, hasher *security.Hasher, users cache.Users, opts ...Option) *Service {
	s := &Service{
		store:  store,
		hasher: hasher,
		users:  users,
		now:    func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// hashAndSetPassword is the only place a plaintext password becomes a hash.
// Create and ChangePassword are its only callers.
func (s *Service) hashAndSetPassword(u *user.User, plain string) error {
	hash, err := s.hasher.Hash(plain)
	if err != nil {
		return err
	}
	u.PasswordHash = hash
	return nil
}

func (s *Service) Create(ctx context.Context, name, email, plain string) (user.User, error) {
	u := user.NewAt(name, email, "", s.now())

	exists, err := s.store.ExistsByEmail(ctx, u.Email)
	if err != nil {
		return user.User{}, err
	}
	if exists {
		return user.User{}, user.ErrEmailTaken
	}

	if err := s.hashAndSetPassword(&u, plain); err != nil {
		return user.User{}, err
	}

	// the unique constraint still decides races between concurrent creates
	if err := s.store.Insert(ctx, u); err != nil {
		return user.User{}, err
	}

	u.PasswordHash = ""
	return u, nil
}

// CreateAdmin registers a user and promotes it. Used for startup seeding.
func (s *Service) CreateAdmin(ctx context.Context, name, email, plain string) (user.User, error) {
	u, err := s.Create(ctx, name, email, plain)
	if err != nil {
		return user.User{}, err
	}
	return s.setRole(ctx, u.ID, user.RoleAdmin)
}

func (s *Service) FindByID(ctx context.Context, id string) (user.User, error) {
	if s.users != nil {
		if u, ok := s.users.GetUser(ctx, id); ok {
			return u, nil
		}
	}

	u, err := s.store.GetByID(ctx, id)
	if err != nil {
		return user.User{}, err
	}

	if s.users != nil {
		s.users.SetUser(ctx, u)
	}
	return u, nil
}

// FindByEmailWithSecret is the only read that exposes the stored hash.
func (s *Service) FindByEmailWithSecret(ctx context.Context, email string) (user.User, string, error) {
	u, err := s.store.GetByEmailWithHash(ctx, user.NormalizeEmail(email))
	if err != nil {
		return user.User{}, "", err
	}

	hash := u.PasswordHash
	u.PasswordHash = ""
	return u, hash, nil
}

// Authenticate checks credentials. Unknown emails still cost one bcrypt
// comparison so timing does not reveal which emails are registered.
func (s *Service) Authenticate(ctx context.Context, email, plain string) (user.User, error) {
	u, hash, err := s.FindByEmailWithSecret(ctx, email)
	if err != nil {
		if errors.Is(err, user.ErrNotFound) {
			s.hasher.Verify(s.dummy(), plain)
			return user.User{}, user.ErrInvalidCredentials
		}
		return user.User{}, err
	}

	if !s.hasher.Verify(hash, plain) {
		return user.User{}, user.ErrInvalidCredentials
	}

	if !u.IsActive {
		return user.User{}, user.ErrAccountDisabled
	}

	if s.hasher.NeedsRehash(hash) {
		if err := s.ChangePassword(ctx, u.ID, plain); err != nil {
			slog.Default().WarnContext(ctx, "password rehash failed", "user_id", u.ID, "err", err)
		}
	}

	return u, nil
}

func (s *Service) dummy() string {
	s.dummyOnce.Do(func() {
		h, err := s.hasher.Hash("dummy-password-for-timing")
		if err == nil {
			s.dummyHash = h
		}
	})
	return s.dummyHash
}

// List returns one page of users. The limit is clamped to
// [1, user.MaxPageSize] and defaults to user.DefaultPageSize.
func (s *Service) List(ctx context.Context, q user.ListQuery) (user.Page, error) {
	switch {
	case q.Limit <= 0:
		q.Limit = user.DefaultPageSize
	case q.Limit > user.MaxPageSize:
		q.Limit = user.MaxPageSize
	}
	limit := q.Limit

	// one extra row tells us whether another page exists
	q.Limit++
	users, err := s.store.List(ctx, q)
	if err != nil {
		return user.Page{}, err
	}

	page := user.Page{Users: users}
	if len(users) > limit {
		page.Users = users[:limit]
		next := user.CursorOf(page.Users[limit-1])
		page.Next = &next
	}
	return page, nil
}

func (s *Service) Count(ctx context.Context) (int, error) {
	return s.store.Count(ctx)
}

func (s *Service) UpdateProfile(ctx context.Context, id string, p user.ProfileUpdate) (user.User, error) {
	if p.Name != nil {
		n := user.NormalizeName(*p.Name)
		p.Name = &n
	}
	if p.Email != nil {
		e := user.NormalizeEmail(*p.Email)
		p.Email = &e
	}

	u, err := s.store.UpdateProfile(ctx, id, p, s.now())
	if err != nil {
		return user.User{}, err
	}

	s.invalidate(ctx, id)
	return u, nil
}

func (s *Service) ChangePassword(ctx context.Context, id, newPlain string) error {
	var u user.User
	if err := s.hashAndSetPassword(&u, newPlain); err != nil {
		return err
	}

	if err := s.store.UpdatePasswordHash(ctx, id, u.PasswordHash, s.now()); err != nil {
		return err
	}

	s.invalidate(ctx, id)
	return nil
}

// ChangeOwnPassword verifies the current password before replacing it.
func (s *Service) ChangeOwnPassword(ctx context.Context, id, current, newPlain string) error {
	hash, err := s.store.GetPasswordHash(ctx, id)
	if err != nil {
		return err
	}

	if !s.hasher.Verify(hash, current) {
		return ErrWrongCurrentPassword
	}

	return s.ChangePassword(ctx, id, newPlain)
}

func (s *Service) setRole(ctx context.Context, id string, role user.Role) (user.User, error) {
	if _, err := user.ParseRole(string(role)); err != nil {
		return user.User{}, err
	}

	u, err := s.store.UpdateRole(ctx, id, role, s.now())
	if err != nil {
		return user.User{}, err
	}

	s.invalidate(ctx, id)
	return u, nil
}

func (s *Service) setActive(ctx context.Context, id string, active bool) (user.User, error) {
	u, err := s.store.UpdateActive(ctx, id, active, s.now())
	if err != nil {
		return user.User{}, err
	}

	s.invalidate(ctx, id)
	return u, nil
}

func (s *Service) delete(ctx context.Context, id string) error {
	if err := s.store.Delete(ctx, id); err != nil {
		return err
	}

	s.invalidate(ctx, id)
	return nil
}

func (s *Service) invalidate(ctx context.Context, id string) {
	if s.users != nil {
		s.users.DeleteUser(ctx, id)
	}
}
