// Package auth checks credentials and keeps login sessions.
package auth

import (
	"crypto/subtle"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"evcal/internal/config"
	"evcal/internal/model"
)

// ErrInvalidCredentials is returned for an unknown user or a wrong password.
var ErrInvalidCredentials = errors.New("invalid username or password")

var userNamespace = uuid.MustParse("5b0f3a2e-6c51-4d8e-9a57-0f2b1c7de410")

type account struct {
	user     model.User
	hash     []byte
	password string
}

// Users is the fixed set of accounts from the configuration.
type Users struct {
	byName map[string]account
	byID   map[string]model.User
	dummy  []byte
}

// UserID derives a stable id from a username so analytics survive restarts.
func UserID(username string) string {
	return uuid.NewSHA1(userNamespace, []byte(username)).String()
}

// NewUsers validates cfgs and builds the account table.
func NewUsers(cfgs []config.UserConfig) (*Users, error) {
	u := &Users{
		byName: make(map[string]account, len(cfgs)),
		byID:   make(map[string]model.User, len(cfgs)),
	}
	for i, c := range cfgs {
		name := strings.TrimSpace(c.Username)
		if name == "" {
			return nil, fmt.Errorf("users[%d]: username is empty", i)
		}
		if _, dup := u.byName[name]; dup {
			return nil, fmt.Errorf("users[%d]: duplicate username %q", i, name)
		}
		acc := account{
			user:     model.User{ID: UserID(name), Username: name, IsAdmin: c.Admin},
			password: c.Password,
		}
		switch {
		case c.PasswordHash != "":
			if _, err := bcrypt.Cost([]byte(c.PasswordHash)); err != nil {
				return nil, fmt.Errorf("users[%d] %q: bad password_hash: %w", i, name, err)
			}
			acc.hash = []byte(c.PasswordHash)
		case c.Password == "":
			return nil, fmt.Errorf("users[%d] %q: password or password_hash required", i, name)
		}
		u.byName[name] = acc
		u.byID[acc.user.ID] = acc.user
	}

	// Unknown usernames still pay for one bcrypt comparison.
	dummy, err := bcrypt.GenerateFromPassword([]byte("evcal"), bcrypt.MinCost)
	if err != nil {
		return nil, err
	}
	u.dummy = dummy
	return u, nil
}

// Authenticate returns the user for a matching username and password.
func (u *Users) Authenticate(username, password string) (model.User, error) {
	acc, ok := u.byName[strings.TrimSpace(username)]
	if !ok {
		_ = bcrypt.CompareHashAndPassword(u.dummy, []byte(password))
		return model.User{}, ErrInvalidCredentials
	}
	if acc.hash != nil {
		if bcrypt.CompareHashAndPassword(acc.hash, []byte(password)) != nil {
			return model.User{}, ErrInvalidCredentials
		}
		return acc.user, nil
	}
	if !secureCompare(password, acc.password) {
		return model.User{}, ErrInvalidCredentials
	}
	return acc.user, nil
}

// Lookup finds a user by id.
func (u *Users) Lookup(id string) (model.User, bool) {
	user, ok := u.byID[id]
	return user, ok
}

// Len returns the number of accounts.
func (u *Users) Len() int { return len(u.byName) }

// HashPassword returns a bcrypt hash suitable for password_hash.
func HashPassword(password string) (string, error) {
	if password == "" {
		return "", errors.New("password is empty")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// secureCompare compares two strings in constant time.
func secureCompare(a, b string) bool {
	if len(a) != len(b) {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}
