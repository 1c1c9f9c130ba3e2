// Package access holds the identity asserted by the identity provider and the
// ownership rules shared by every write path.
package access

import (
	"errors"
	"strings"
)

var (
	// ErrUnauthenticated indicates an action that needs a signed-in user was attempted anonymously.
	ErrUnauthenticated = errors.New("authentication required")
	// ErrForbidden indicates the signed-in user may not perform the action.
	ErrForbidden = errors.New("action not permitted")
)

// Identity is the signed-in user as carried by the access token.
type Identity struct {
	UserID    string `json:"id"`
	Username  string `json:"username"`
	AvatarURL string `json:"avatarUrl"`
}

// Anonymous reports whether the identity names no user.
func (i Identity) Anonymous() bool {
	return strings.TrimSpace(i.UserID) == ""
}

// Require returns ErrUnauthenticated for an anonymous identity.
func Require(i Identity) error {
	if i.Anonymous() {
		return ErrUnauthenticated
	}
	return nil
}

// RequireAdmin returns ErrForbidden unless isAdmin is set.
func RequireAdmin(i Identity, isAdmin bool) error {
	if err := Require(i); err != nil {
		return err
	}
	if !isAdmin {
		return ErrForbidden
	}
	return nil
}

// RequireOwnerOrAdmin allows the action when the identity owns one of the
// listed user ids or is an admin.
func RequireOwnerOrAdmin(i Identity, isAdmin bool, ownerIDs ...string) error {
	if err := Require(i); err != nil {
		return err
	}
	if isAdmin {
		return nil
	}
	for _, id := range ownerIDs {
		if id != "" && id == i.UserID {
			return nil
		}
	}
	return ErrForbidden
}
