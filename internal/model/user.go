package model

import "time"

// Role names recognised by the authorization guards.
const (
	RoleSystemAdministrator = "System Administrator"
	RoleAdministrator       = "Administrator"
	RoleManager             = "Manager"
	RoleUser                = "User"
)

// AdminRoles are allowed to mutate the catalog and manage any order.
var AdminRoles = []string{RoleSystemAdministrator, RoleAdministrator}

// User represents an identity principal stored in `security_users`.
// The password is only ever held as a bcrypt hash. Roles is filled by
// the repository when the caller asks for it and is empty otherwise.
//
// Fields:
//
//	ID           – uuid primary key.
//	Username     – unique login name.
//	Email        – unique email address.
//	DisplayName  – "First Last", emitted as the fullName claim.
//	IsActive     – deactivated users cannot log in or refresh.
type User struct {
	ID           string     // security_users.id
	Username     string     // security_users.username
	Email        string     // security_users.email
	PasswordHash string     // security_users.password_hash
	FirstName    string     // security_users.first_name
	LastName     string     // security_users.last_name
	DisplayName  string     // security_users.display_name
	DateOfBirth  *time.Time // security_users.date_of_birth (nullable)
	Address      *string    // security_users.address (nullable)
	Avatar       *string    // security_users.avatar (nullable)
	MasterData
	Roles []string // joined from security_user_roles
}

// Role is a row in `security_roles`.
type Role struct {
	ID          string  // security_roles.id
	Name        string  // security_roles.name
	Description *string // security_roles.description (nullable)
	MasterData
}
