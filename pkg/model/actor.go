package model

type Role string

const (
	RoleMember Role = "member"
	RoleStaff  Role = "staff"
	RoleAdmin  Role = "admin"
)

// Actor is the authenticated caller of an operation.
type Actor struct {
	UserID string `json:"user_id"`
	Roles  []Role `json:"roles"`
}

func (a Actor) HasRole(role Role) bool {
	for _, r := range a.Roles {
		if r == role {
			return true
		}
	}
	return false
}

func (a Actor) HasAnyRole(roles []Role) bool {
	for _, r := range roles {
		if a.HasRole(r) {
			return true
		}
	}
	return false
}

func (a Actor) IsAdmin() bool {
	return a.HasRole(RoleAdmin)
}

// Privileged actors are exempt from duration caps and role restrictions.
func (a Actor) Privileged() bool {
	return a.HasRole(RoleAdmin) || a.HasRole(RoleStaff)
}

// CanActOn reports whether the actor owns the resource or is an admin.
func (a Actor) CanActOn(ownerID string) bool {
	return a.UserID == ownerID || a.IsAdmin()
}
