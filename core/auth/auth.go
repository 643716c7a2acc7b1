package auth

import (
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

// HashPassword generates a bcrypt hash of the password.
func HashPassword(password string) (string, error) {
	bytes, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("failed to hash password: %w", err)
	}
	return string(bytes), nil
}

// CheckPasswordHash compares a password with a bcrypt hash.
func CheckPasswordHash(password, hash string) bool {
	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password))
	return err == nil
}

// Verifier checks role passphrases. The plaintext from the environment is
// hashed once at startup; an empty passphrase disables that login entirely.
type Verifier struct {
	adminHash string
	djHash    string
}

// NewVerifier hashes the configured passphrases.
func NewVerifier(adminPassword, djPassword string) (*Verifier, error) {
	v := &Verifier{}
	if adminPassword != "" {
		hash, err := HashPassword(adminPassword)
		if err != nil {
			return nil, err
		}
		v.adminHash = hash
	}
	if djPassword != "" {
		hash, err := HashPassword(djPassword)
		if err != nil {
			return nil, err
		}
		v.djHash = hash
	}
	return v, nil
}

// VerifyAdmin reports whether the password unlocks the admin role.
func (v *Verifier) VerifyAdmin(password string) bool {
	if v.adminHash == "" {
		return false
	}
	return CheckPasswordHash(password, v.adminHash)
}

// VerifyDJ reports whether the password unlocks the DJ role.
func (v *Verifier) VerifyDJ(password string) bool {
	if v.djHash == "" {
		return false
	}
	return CheckPasswordHash(password, v.djHash)
}

// AdminEnabled reports whether an admin passphrase is configured.
func (v *Verifier) AdminEnabled() bool { return v.adminHash != "" }

// DJEnabled reports whether a DJ passphrase is configured.
func (v *Verifier) DJEnabled() bool { return v.djHash != "" }
