package users

import "context"

// Store is the user store consulted by the password grant and the profile service.
type Store interface {
	// Verify checks the username and password and returns the user.
	// Unknown users and wrong passwords both return errors.ErrInvalidCredentials.
	Verify(ctx context.Context, username, password string) (*User, error)

	// GetByID returns a user by subject identifier, or errors.ErrNotFound.
	GetByID(ctx context.Context, id string) (*User, error)
}
