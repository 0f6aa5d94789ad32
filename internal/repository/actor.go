package repository

import (
	"slices"

	"github.com/iliyamo/storefront-api/internal/model"
)

// Actor is the user on whose behalf a write is performed. Its ID is stamped
// into the created_by_id, updated_by_id and deleted_by_id audit columns.
// The zero Actor is the system itself and leaves those columns NULL.
type Actor struct {
	ID    string
	Name  string
	Roles []string
}

// System is used for startup tasks such as seeding.
var System = Actor{Name: "system"}

// AuditID returns the id to store in audit columns, or nil for the system.
func (a Actor) AuditID() *string {
	if a.ID == "" {
		return nil
	}
	id := a.ID
	return &id
}

// HasRole reports whether the actor holds any of roles.
func (a Actor) HasRole(roles ...string) bool {
	for _, r := range roles {
		if slices.Contains(a.Roles, r) {
			return true
		}
	}
	return false
}

func (a Actor) IsAdmin() bool { return a.HasRole(model.AdminRoles...) }
