package users

import (
	"maps"

	"golang.org/x/crypto/bcrypt"
)

type User struct {
	ID           string         `json:"id,omitempty" yaml:"id"`             // Subject identifier
	Username     string         `json:"username,omitempty" yaml:"username"` // Unique username used by the password grant
	PasswordHash string         `json:"-" yaml:"passwordHash"`              // Hashed version of the user's password - never serialize
	Disabled     bool           `json:"disabled,omitempty" yaml:"disabled"` // Disabled users cannot authenticate
	Claims       map[string]any `json:"claims,omitempty" yaml:"claims"`     // Profile claims, e.g. email, role, address
}

// ProfileClaims returns a copy of the user's claims with the preferred_username claim added.
func (u *User) ProfileClaims() map[string]any {
	claims := maps.Clone(u.Claims)
	if claims == nil {
		claims = make(map[string]any)
	}
	if _, ok := claims["preferred_username"]; !ok && u.Username != "" {
		claims["preferred_username"] = u.Username
	}
	return claims
}

func HashPassword(password string) (string, error) {
	bytes, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	return string(bytes), err
}

func CheckPasswordHash(password, hash string) bool {
	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password))
	return err == nil
}
