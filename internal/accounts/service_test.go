package accounts_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/geocoder89/accounthub/internal/accounts"
	"github.com/geocoder89/accounthub/internal/cache"
	"github.com/geocoder89/accounthub/internal/domain/user"
	"github.com/geocoder89/accounthub/internal/repo/memory"
	"github.com/geocoder89/accounthub/internal/security"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func newService(t *testing.T) (*accounts.Service, *memory.UsersRepo, *security.Hasher) {
	t.Helper()

	repo := memory.NewUsersRepo()
	hasher := security.NewHasher(bcrypt.MinCost)
	return accounts.NewService(repo, hasher, cache.NewMemoryUsers(time.Minute)), repo, hasher
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newClockedService(t *testing.T) (*accounts.Service, *fakeClock) {
	t.Helper()

	clock := newFakeClock()
	svc := accounts.NewService(memory.NewUsersRepo(), security.NewHasher(bcrypt.MinCost),
		cache.NewMemoryUsers(time.Minute), accounts.WithClock(clock.Now))
	return svc, clock
}

func TestService_CreateThenVerify(t *testing.T) {
	svc, _, hasher := newService(t)
	ctx := context.Background()

	u, err := svc.Create(ctx, "Alice Smith", "Alice@Example.com", "Password123")
	require.NoError(t, err)
	assert.NotEmpty(t, u.ID)
	assert.Empty(t, u.PasswordHash)
	assert.Equal(t, "alice@example.com", u.Email)
	assert.Equal(t, user.RoleUser, u.Role)
	assert.True(t, u.IsActive)
	assert.Equal(t, u.CreatedAt, u.UpdatedAt)

	found, hash, err := svc.FindByEmailWithSecret(ctx, "ALICE@example.com")
	require.NoError(t, err)
	assert.Equal(t, u.ID, found.ID)
	assert.Empty(t, found.PasswordHash, "hash is returned separately")
	assert.NotEqual(t, "Password123", hash)
	assert.True(t, hasher.Verify(hash, "Password123"))

	byID, err := svc.FindByID(ctx, u.ID)
	require.NoError(t, err)
	assert.Empty(t, byID.PasswordHash)
}

func TestService_CreateDuplicateEmail(t *testing.T) {
	svc, repo, _ := newService(t)
	ctx := context.Background()

	_, err := svc.Create(ctx, "Alice", "alice@example.com", "Password123")
	require.NoError(t, err)

	_, err = svc.Create(ctx, "Impostor", " ALICE@example.com ", "Password123")
	assert.ErrorIs(t, err, user.ErrEmailTaken)

	n, _ := repo.Count(ctx)
	assert.Equal(t, 1, n, "no new record created")
}

func TestService_ConcurrentCreateSameEmail(t *testing.T) {
	svc, _, _ := newService(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	results := make([]error, 2)

	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, results[i] = svc.Create(ctx, "Racer", "race@example.com", "Password123")
		}(i)
	}
	wg.Wait()

	succeeded := 0
	for _, err := range results {
		if err == nil {
			succeeded++
			continue
		}
		assert.ErrorIs(t, err, user.ErrEmailTaken)
	}
	assert.Equal(t, 1, succeeded)
}

func TestService_Authenticate(t *testing.T) {
	svc, _, _ := newService(t)
	ctx := context.Background()

	u, err := svc.Create(ctx, "Alice", "alice@example.com", "Password123")
	require.NoError(t, err)

	got, err := svc.Authenticate(ctx, "alice@example.com", "Password123")
	require.NoError(t, err)
	assert.Equal(t, u.ID, got.ID)
	assert.Empty(t, got.PasswordHash)

	_, err = svc.Authenticate(ctx, "alice@example.com", "WrongPass1")
	assert.ErrorIs(t, err, user.ErrInvalidCredentials)

	_, err = svc.Authenticate(ctx, "nobody@example.com", "Password123")
	assert.ErrorIs(t, err, user.ErrInvalidCredentials)
}

func TestService_ChangePassword(t *testing.T) {
	svc, clock := newClockedService(t)
	ctx := context.Background()

	u, err := svc.Create(ctx, "Alice", "alice@example.com", "Password123")
	require.NoError(t, err)
	created := clock.Now()
	assert.True(t, created.Equal(u.CreatedAt))

	clock.Advance(time.Minute)
	require.NoError(t, svc.ChangePassword(ctx, u.ID, "NewPassword456"))

	_, err = svc.Authenticate(ctx, "alice@example.com", "Password123")
	assert.ErrorIs(t, err, user.ErrInvalidCredentials)

	_, err = svc.Authenticate(ctx, "alice@example.com", "NewPassword456")
	assert.NoError(t, err)

	after, err := svc.FindByID(ctx, u.ID)
	require.NoError(t, err)
	assert.True(t, created.Add(time.Minute).Equal(after.UpdatedAt))
	assert.True(t, created.Equal(after.CreatedAt))

	assert.ErrorIs(t, svc.ChangePassword(ctx, "missing", "NewPassword456"), user.ErrNotFound)
}

func TestService_ChangeOwnPassword(t *testing.T) {
	svc, _, _ := newService(t)
	ctx := context.Background()

	u, err := svc.Create(ctx, "Alice", "alice@example.com", "Password123")
	require.NoError(t, err)

	err = svc.ChangeOwnPassword(ctx, u.ID, "NotTheOne1", "NewPassword456")
	assert.ErrorIs(t, err, accounts.ErrWrongCurrentPassword)

	require.NoError(t, svc.ChangeOwnPassword(ctx, u.ID, "Password123", "NewPassword456"))
	_, err = svc.Authenticate(ctx, "alice@example.com", "NewPassword456")
	assert.NoError(t, err)
}

func TestService_UpdateProfile(t *testing.T) {
	svc, clock := newClockedService(t)
	ctx := context.Background()

	alice, err := svc.Create(ctx, "Alice", "alice@example.com", "Password123")
	require.NoError(t, err)
	assert.True(t, clock.Now().Equal(alice.CreatedAt))
	assert.True(t, alice.CreatedAt.Equal(alice.UpdatedAt))
	_, err = svc.Create(ctx, "Bob", "bob@example.com", "Password123")
	require.NoError(t, err)

	// warm the cache so the update has to invalidate it
	_, err = svc.FindByID(ctx, alice.ID)
	require.NoError(t, err)

	clock.Advance(time.Hour)
	name := "  Alice Cooper "
	got, err := svc.UpdateProfile(ctx, alice.ID, user.ProfileUpdate{Name: &name})
	require.NoError(t, err)
	assert.Equal(t, "Alice Cooper", got.Name)
	assert.Equal(t, "alice@example.com", got.Email)
	assert.True(t, alice.CreatedAt.Add(time.Hour).Equal(got.UpdatedAt))
	assert.True(t, alice.CreatedAt.Equal(got.CreatedAt))

	cached, err := svc.FindByID(ctx, alice.ID)
	require.NoError(t, err)
	assert.Equal(t, "Alice Cooper", cached.Name)

	bobs := "BOB@example.com"
	_, err = svc.UpdateProfile(ctx, alice.ID, user.ProfileUpdate{Email: &bobs})
	assert.ErrorIs(t, err, user.ErrEmailTaken)

	same := "alice@example.com"
	_, err = svc.UpdateProfile(ctx, alice.ID, user.ProfileUpdate{Email: &same})
	assert.NoError(t, err)

	_, err = svc.UpdateProfile(ctx, "missing", user.ProfileUpdate{Name: &name})
	assert.ErrorIs(t, err, user.ErrNotFound)
}

func TestService_AsAdmin(t *testing.T) {
	svc, _, _ := newService(t)
	ctx := context.Background()

	admin, err := svc.CreateAdmin(ctx, "Root", "root@example.com", "Password123")
	require.NoError(t, err)
	assert.Equal(t, user.RoleAdmin, admin.Role)

	regular, err := svc.Create(ctx, "Alice", "alice@example.com", "Password123")
	require.NoError(t, err)

	_, err = svc.AsAdmin(regular)
	assert.ErrorIs(t, err, user.ErrForbidden)

	disabled := admin
	disabled.IsActive = false
	_, err = svc.AsAdmin(disabled)
	assert.ErrorIs(t, err, user.ErrForbidden)

	actions, err := svc.AsAdmin(admin)
	require.NoError(t, err)
	assert.Equal(t, admin.ID, actions.Actor().ID)

	page, err := actions.List(ctx, user.ListQuery{})
	require.NoError(t, err)
	assert.Len(t, page.Users, 2)
	assert.Nil(t, page.Next)
	for _, u := range page.Users {
		assert.Empty(t, u.PasswordHash)
	}
}

func TestAdminActions_SelfActionsRejected(t *testing.T) {
	svc, _, _ := newService(t)
	ctx := context.Background()

	admin, err := svc.CreateAdmin(ctx, "Root", "root@example.com", "Password123")
	require.NoError(t, err)
	actions, err := svc.AsAdmin(admin)
	require.NoError(t, err)

	assert.ErrorIs(t, actions.Delete(ctx, admin.ID), user.ErrSelfAction)

	_, err = actions.SetActive(ctx, admin.ID, false)
	assert.ErrorIs(t, err, user.ErrSelfAction)

	_, err = actions.ChangeRole(ctx, admin.ID, user.RoleUser)
	assert.ErrorIs(t, err, user.ErrSelfAction)

	still, err := svc.FindByID(ctx, admin.ID)
	require.NoError(t, err)
	assert.True(t, still.IsActive)
	assert.Equal(t, user.RoleAdmin, still.Role)
}

func TestAdminActions_ManageOthers(t *testing.T) {
	svc, _, _ := newService(t)
	ctx := context.Background()

	admin, err := svc.CreateAdmin(ctx, "Root", "root@example.com", "Password123")
	require.NoError(t, err)
	target, err := svc.Create(ctx, "Alice", "alice@example.com", "Password123")
	require.NoError(t, err)

	actions, err := svc.AsAdmin(admin)
	require.NoError(t, err)

	// cached before the mutations below
	_, err = svc.FindByID(ctx, target.ID)
	require.NoError(t, err)

	promoted, err := actions.ChangeRole(ctx, target.ID, user.RoleAdmin)
	require.NoError(t, err)
	assert.Equal(t, user.RoleAdmin, promoted.Role)

	resolved, err := svc.FindByID(ctx, target.ID)
	require.NoError(t, err)
	assert.Equal(t, user.RoleAdmin, resolved.Role, "cache invalidated on role change")

	_, err = actions.ChangeRole(ctx, target.ID, user.Role("root"))
	assert.ErrorIs(t, err, user.ErrInvalidRole)

	deactivated, err := actions.SetActive(ctx, target.ID, false)
	require.NoError(t, err)
	assert.False(t, deactivated.IsActive)

	_, err = svc.Authenticate(ctx, "alice@example.com", "Password123")
	assert.ErrorIs(t, err, user.ErrAccountDisabled)

	got, err := actions.Get(ctx, target.ID)
	require.NoError(t, err)
	assert.False(t, got.IsActive)

	require.NoError(t, actions.Delete(ctx, target.ID))
	_, err = svc.FindByID(ctx, target.ID)
	assert.ErrorIs(t, err, user.ErrNotFound, "cache invalidated on delete")

	assert.ErrorIs(t, actions.Delete(ctx, target.ID), user.ErrNotFound)
}

type failingStore struct {
	accounts.Store
	err error
}

func (f failingStore) ExistsByEmail(context.Context, string) (bool, error) {
	return false, f.err
}

func (f failingStore) GetByEmailWithHash(context.Context, string) (user.User, error) {
	return user.User{}, f.err
}

func TestService_StoreUnavailablePropagates(t *testing.T) {
	unavailable := errors.Join(user.ErrStoreUnavailable, errors.New("dial tcp: refused"))
	svc := accounts.NewService(failingStore{err: unavailable}, security.NewHasher(bcrypt.MinCost), nil)
	ctx := context.Background()

	_, err := svc.Create(ctx, "Alice", "alice@example.com", "Password123")
	assert.ErrorIs(t, err, user.ErrStoreUnavailable)

	_, err = svc.Authenticate(ctx, "alice@example.com", "Password123")
	assert.ErrorIs(t, err, user.ErrStoreUnavailable)
	assert.NotErrorIs(t, err, user.ErrInvalidCredentials)
}

func TestService_ListPaginates(t *testing.T) {
	svc, _, _ := newService(t)
	ctx := context.Background()

	for _, email := range []string{"a@example.com", "b@example.com", "c@example.com", "d@example.com", "e@example.com"} {
		_, err := svc.Create(ctx, "User", email, "Password123")
		require.NoError(t, err)
	}

	seen := map[string]bool{}
	q := user.ListQuery{Limit: 2}
	pages := 0
	for {
		page, err := svc.List(ctx, q)
		require.NoError(t, err)
		pages++
		assert.LessOrEqual(t, len(page.Users), 2)
		for _, u := range page.Users {
			assert.False(t, seen[u.ID], "user %s returned twice", u.ID)
			seen[u.ID] = true
		}
		if page.Next == nil {
			break
		}
		q.After = page.Next
	}

	assert.Len(t, seen, 5)
	assert.Equal(t, 3, pages)

	page, err := svc.List(ctx, user.ListQuery{Limit: 1000})
	require.NoError(t, err)
	assert.Len(t, page.Users, 5, "oversized limits are clamped, not rejected")
}

func TestService_AuthenticateUpgradesWeakHash(t *testing.T) {
	repo := memory.NewUsersRepo()
	ctx := context.Background()

	weak := accounts.NewService(repo, security.NewHasher(bcrypt.MinCost), nil)
	u, err := weak.Create(ctx, "Alice", "alice@example.com", "Password123")
	require.NoError(t, err)

	stronger := security.NewHasher(bcrypt.MinCost + 1)
	svc := accounts.NewService(repo, stronger, nil)

	_, err = svc.Authenticate(ctx, "alice@example.com", "Password123")
	require.NoError(t, err)

	hash, err := repo.GetPasswordHash(ctx, u.ID)
	require.NoError(t, err)
	cost, err := stronger.Cost(hash)
	require.NoError(t, err)
	assert.Equal(t, bcrypt.MinCost+1, cost)
	assert.True(t, stronger.Verify(hash, "Password123"))
}
