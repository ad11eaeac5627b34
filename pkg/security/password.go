package security

import (
	"errors"

	"golang.org/x/crypto/bcrypt"
)

var ErrHashingFailed = errors.New("password hashing failed")

// PasswordHasher provides interface for password operations
type PasswordHasher interface {
	Hash(password string) (string, error)
	Compare(hashedPassword, password string) error
}

type bcryptHasher struct {
	cost   int
	policy *PolicyStore
}

// NewBcryptHasher creates a password hasher that only hashes passwords the
// active policy accepts.
func NewBcryptHasher(cost int, policy *PolicyStore) PasswordHasher {
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		cost = bcrypt.DefaultCost
	}
	return &bcryptHasher{cost: cost, policy: policy}
}

func (b *bcryptHasher) Hash(password string) (string, error) {
	if err := b.policy.Load().Validate(password).Err(); err != nil {
		return "", err
	}

	bytes, err := bcrypt.GenerateFromPassword([]byte(password), b.cost)
	if err != nil {
		return "", ErrHashingFailed
	}
	return string(bytes), nil
}

func (b *bcryptHasher) Compare(hashedPassword, password string) error {
	return bcrypt.CompareHashAndPassword([]byte(hashedPassword), []byte(password))
}
