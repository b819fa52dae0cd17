package user

import (
	"errors"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/google/uuid"
)

type Role string

const (
	RoleUser  Role = "user"
	RoleAdmin Role = "admin"
)

var (
	ErrNotFound           = errors.New("user not found")
	ErrEmailTaken         = errors.New("email already in use")
	ErrSelfAction         = errors.New("cannot perform this action on your own account")
	ErrInvalidRole        = errors.New("invalid role")
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrAccountDisabled    = errors.New("account is disabled")
	ErrForbidden          = errors.New("admin role required")
	ErrStoreUnavailable   = errors.New("user store unavailable")
)

func ParseRole(s string) (Role, error) {
	switch Role(s) {
	case RoleUser, RoleAdmin:
		return Role(s), nil
	}
	return "", ErrInvalidRole
}

func (r Role) String() string {
	return string(r)
}

type User struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"` // never expose hash in JSON
	Role         Role      `json:"role"`
	IsActive     bool      `json:"isActive"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

func (u User) IsAdmin() bool {
	return u.Role == RoleAdmin
}

// ProfileUpdate is the only shape a user can change about themselves.
// nil fields are left untouched.
type ProfileUpdate struct {
	Name  *string
	Email *string
}

func (p ProfileUpdate) Empty() bool {
	return p.Name == nil && p.Email == nil
}

const (
	DefaultPageSize = 50
	MaxPageSize     = 100
)

// Cursor is a keyset position in the (CreatedAt, ID) ordering.
type Cursor struct {
	CreatedAt time.Time
	ID        string
}

func CursorOf(u User) Cursor {
	return Cursor{CreatedAt: u.CreatedAt, ID: u.ID}
}

// ListQuery asks for up to Limit users strictly after After, oldest first.
// Limit <= 0 means no limit.
type ListQuery struct {
	Limit int
	After *Cursor
}

type Page struct {
	Users []User
	Next  *Cursor
}

// New builds a fresh record for insertion. The caller supplies the hash.
func New(name, email, passwordHash string) User {
	return NewAt(name, email, passwordHash, time.Now())
}

// NewAt is New with an explicit creation time.
func NewAt(name, email, passwordHash string, now time.Time) User {
	now = now.UTC()

	return User{
		ID:           uuid.NewString(),
		Name:         NormalizeName(name),
		Email:        NormalizeEmail(email),
		PasswordHash: passwordHash,
		Role:         RoleUser,
		IsActive:     true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}

func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func NormalizeName(name string) string {
	return strings.TrimSpace(name)
}

const (
	NameMaxLen     = 50
	PasswordMinLen = 6

	// bcrypt only accepts 72 bytes of input
	PasswordMaxBytes = 72
)

// ValidName reports whether name, once trimmed, is 1-50 letters or whitespace.
func ValidName(name string) bool {
	name = NormalizeName(name)
	n := utf8.RuneCountInString(name)
	if n < 1 || n > NameMaxLen {
		return false
	}

	for _, r := range name {
		if !unicode.IsLetter(r) && !unicode.IsSpace(r) {
			return false
		}
	}
	return true
}

// ValidPassword enforces the length bounds and the lower/upper/digit mix.
// The upper bound is in bytes, so multibyte passwords reach it sooner.
func ValidPassword(pw string) bool {
	if utf8.RuneCountInString(pw) < PasswordMinLen || len(pw) > PasswordMaxBytes {
		return false
	}

	var lower, upper, digit bool
	for _, r := range pw {
		switch {
		case unicode.IsLower(r):
			lower = true
		case unicode.IsUpper(r):
			upper = true
		case unicode.IsDigit(r):
			digit = true
		}
	}
	return lower && upper && digit
}

// request DTOs

type RegisterRequest struct {
	Name     string `json:"name" binding:"required,personname"`
	Email    string `json:"email" binding:"required,email,max=254"`
	Password string `json:"password" binding:"required,password"`
}

type LoginRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

type UpdateProfileRequest struct {
	Name  *string `json:"name" binding:"omitempty,personname"`
	Email *string `json:"email" binding:"omitempty,email,max=254"`
}

func (r UpdateProfileRequest) ToProfileUpdate() ProfileUpdate {
	var p ProfileUpdate
	if r.Name != nil {
		n := NormalizeName(*r.Name)
		p.Name = &n
	}
	if r.Email != nil {
		e := NormalizeEmail(*r.Email)
		p.Email = &e
	}
	return p
}

type ChangePasswordRequest struct {
	CurrentPassword string `json:"currentPassword" binding:"required"`
	NewPassword     string `json:"newPassword" binding:"required,password"`
}

type ChangeRoleRequest struct {
	Role string `json:"role" binding:"required,oneof=user admin"`
}

// pointer so an explicit false is distinguishable from a missing field
type ChangeStatusRequest struct {
	IsActive *bool `json:"isActive" binding:"required"`
}
