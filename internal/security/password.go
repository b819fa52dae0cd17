package security

import (
	"errors"

	"golang.org/x/crypto/bcrypt"
)

const DefaultCost = 12

var ErrPasswordTooLong = errors.New("password exceeds 72 bytes")

// Hasher wraps bcrypt with a fixed work factor. Verification accepts
// hashes produced at any cost, so the factor can be raised later.
type Hasher struct {
	cost int
}

func NewHasher(cost int) *Hasher {
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		cost = DefaultCost
	}
	return &Hasher{cost: cost}
}

// Hash hashes a plain text password with bcrypt.
func (h *Hasher) Hash(plain string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(plain), h.cost)

	if err != nil {
		if errors.Is(err, bcrypt.ErrPasswordTooLong) {
			return "", ErrPasswordTooLong
		}
		return "", err
	}

	return string(hash), nil
}

// Verify compares a bcrypt hash with a plaintext candidate in constant time.
func (h *Hasher) Verify(hash, plain string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(plain)) == nil
}

// Cost reports the work factor embedded in a stored hash.
func (h *Hasher) Cost(hash string) (int, error) {
	return bcrypt.Cost([]byte(hash))
}

func (h *Hasher) CurrentCost() int {
	return h.cost
}

// NeedsRehash reports whether a stored hash was produced at a lower cost
// than the one currently configured. Unparseable hashes need a rehash.
func (h *Hasher) NeedsRehash(hash string) bool {
	cost, err := h.Cost(hash)
	if err != nil {
		return true
	}
	return cost < h.cost
}
