package user_test

import (
	"strings"
	"testing"
	"time"

	"github.com/geocoder89/accounthub/internal/domain/user"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidName(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want bool
	}{
		{"latin", "Alice Smith", true},
		{"cyrillic", "Иван Петров", true},
		{"accented", "José Álvarez", true},
		{"single letter", "A", true},
		{"trimmed", "  Bob  ", true},
		{"empty", "", false},
		{"only spaces", "   ", false},
		{"digits", "Agent 007", false},
		{"punctuation", "O'Brien", false},
		{"fifty letters", strings.Repeat("a", 50), true},
		{"fifty one letters", strings.Repeat("a", 51), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, user.ValidName(tt.in))
		})
	}
}

func TestValidPassword(t *testing.T) {
	tests := []struct {
		in   string
		want bool
	}{
		{"Password123", true},
		{"aB3def", true},
		{"aB3de", false},
		{"password123", false},
		{"PASSWORD123", false},
		{"Password", false},
		{"", false},
		{"Aa1" + strings.Repeat("x", 69), true},
		{"Aa1" + strings.Repeat("x", 70), false},
		{"A1" + strings.Repeat("ж", 35), true},
		{"A1" + strings.Repeat("ж", 40), false},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, user.ValidPassword(tt.in))
		})
	}
}

func TestParseRole(t *testing.T) {
	r, err := user.ParseRole("admin")
	require.NoError(t, err)
	assert.Equal(t, user.RoleAdmin, r)

	r, err = user.ParseRole("user")
	require.NoError(t, err)
	assert.Equal(t, user.RoleUser, r)

	_, err = user.ParseRole("root")
	assert.ErrorIs(t, err, user.ErrInvalidRole)
}

func TestNew_Defaults(t *testing.T) {
	u := user.New("  Alice Smith ", " Alice@Example.COM ", "hash")

	assert.NotEmpty(t, u.ID)
	assert.Equal(t, "Alice Smith", u.Name)
	assert.Equal(t, "alice@example.com", u.Email)
	assert.Equal(t, user.RoleUser, u.Role)
	assert.True(t, u.IsActive)
	assert.Equal(t, u.CreatedAt, u.UpdatedAt)
	assert.False(t, u.IsAdmin())
}

func TestUpdateProfileRequest_Normalizes(t *testing.T) {
	name := " Bob "
	email := "BOB@Example.com"

	p := user.UpdateProfileRequest{Name: &name, Email: &email}.ToProfileUpdate()
	require.NotNil(t, p.Name)
	require.NotNil(t, p.Email)
	assert.Equal(t, "Bob", *p.Name)
	assert.Equal(t, "bob@example.com", *p.Email)

	assert.True(t, user.UpdateProfileRequest{}.ToProfileUpdate().Empty())
}

func TestNewAt_UsesGivenTime(t *testing.T) {
	at := time.Date(2026, 5, 1, 12, 0, 0, 0, time.FixedZone("CEST", 2*60*60))
	u := user.NewAt("Alice", "alice@example.com", "h", at)

	assert.True(t, at.Equal(u.CreatedAt))
	assert.Equal(t, time.UTC, u.CreatedAt.Location())
	assert.Equal(t, u.CreatedAt, u.UpdatedAt)
}
