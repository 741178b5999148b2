package domain

// Role 使用者在群組內的身份
type Role string

const (
	// RoleNone not related to the group
	RoleNone Role = "none"
	// RoleMember group member
	RoleMember Role = "member"
	// RoleAdmin group admin
	RoleAdmin Role = "admin"
	// RoleOwner group owner
	RoleOwner Role = "owner"
)

// CanAccess owner, admin or member can read and post
func (r Role) CanAccess() bool {
	switch r {
	case RoleOwner, RoleAdmin, RoleMember:
		return true
	}
	return false
}

// CanModerate owner or admin can edit/delete other's message
func (r Role) CanModerate() bool {
	return r == RoleOwner || r == RoleAdmin
}
