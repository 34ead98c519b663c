package devserver

import (
	"github.com/pkg/errors"
	"golang.org/x/crypto/bcrypt"
)

// Roles known to the campus backend.
const (
	RoleUser  = "user"
	RoleAdmin = "admin"
)

type user struct {
	ID           int64
	Username     string
	Email        string
	Role         string
	PasswordHash string
}

func newUser(id int64, username, password, email, role string) (*user, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	if err != nil {
		return nil, errors.Wrap(err, "[newUser] hash password")
	}
	if role == "" {
		role = RoleUser
	}
	return &user{ID: id, Username: username, Email: email, Role: role, PasswordHash: string(hash)}, nil
}

func (u *user) checkPassword(password string) bool {
	return bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)) == nil
}
