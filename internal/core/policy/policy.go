// Package policy decides who may act on an account.
package policy

import "github.com/ibrahimkeyboad/gobank/internal/core/domain"

// CanAccess reports whether id may read, modify or transact on acc:
// the owner always can, and so can any ADMIN.
func CanAccess(id domain.Identity, acc domain.Account) bool {
	return id.IsAdmin() || id.UserID == acc.OwnerID
}

// IsOwner reports whether id owns acc, regardless of role.
func IsOwner(id domain.Identity, acc domain.Account) bool {
	return id.UserID == acc.OwnerID
}
