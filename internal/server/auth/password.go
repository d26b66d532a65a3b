package auth

import "golang.org/x/crypto/bcrypt"

// PasswordHasher produces one-way salted hashes for storage.
type PasswordHasher interface {
	Hash(password string) (string, error)
}

// PasswordChecker verifies a plaintext candidate against a stored hash.
type PasswordChecker interface {
	Check(password string, hash string) bool
}

// BcryptHasher implements PasswordHasher and PasswordChecker on top of
// bcrypt. The zero value is not usable; construct it with NewBcryptHasher.
type BcryptHasher struct {
	cost int
}

// NewBcryptHasher returns a hasher with the given work factor. A cost
// outside the range bcrypt accepts falls back to the library default.
func NewBcryptHasher(cost int) *BcryptHasher {
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		cost = bcrypt.DefaultCost
	}
	return &BcryptHasher{cost: cost}
}

func (h *BcryptHasher) Hash(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), h.cost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

func (h *BcryptHasher) Check(password string, hash string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}
