package domain

// Role is a participant's role inside a group conversation.
type Role string

const (
	RoleAdmin   Role = "admin"
	RoleCoAdmin Role = "co-admin"
	RoleMember  Role = "member"
)

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	switch r {
	case RoleAdmin, RoleCoAdmin, RoleMember:
		return true
	}
	return false
}

// PolicyKey names a configurable group capability.
type PolicyKey string

const (
	PolicyUpdateGroupInfo PolicyKey = "WHO_CAN_UPDATE_GROUP_INFO"
	PolicyAddMember       PolicyKey = "WHO_CAN_ADD_MEMBER"
	PolicyRemoveMember    PolicyKey = "WHO_CAN_REMOVE_MEMBER"
	PolicyAssignRole      PolicyKey = "WHO_CAN_ASSIGN_PERMS"
)

// Valid reports whether k is one of the known policy keys.
func (k PolicyKey) Valid() bool {
	_, ok := defaultPolicies[k]
	return ok
}

// GroupSettings maps a policy key to the roles allowed to perform it.
type GroupSettings map[PolicyKey][]Role

var defaultPolicies = GroupSettings{
	PolicyUpdateGroupInfo: {RoleAdmin},
	PolicyAddMember:       {RoleAdmin, RoleCoAdmin},
	PolicyRemoveMember:    {RoleAdmin, RoleCoAdmin},
	PolicyAssignRole:      {RoleAdmin},
}

// DefaultGroupSettings returns a fresh copy of the default policy table.
func DefaultGroupSettings() GroupSettings {
	out := make(GroupSettings, len(defaultPolicies))
	for k, roles := range defaultPolicies {
		out[k] = append([]Role(nil), roles...)
	}
	return out
}

// Allowed returns the configured roles for key, falling back to the default.
func (s GroupSettings) Allowed(key PolicyKey) []Role {
	if roles, ok := s[key]; ok && len(roles) > 0 {
		return roles
	}
	return defaultPolicies[key]
}

// Merge returns a copy of s with the entries of patch applied on top.
func (s GroupSettings) Merge(patch GroupSettings) GroupSettings {
	out := DefaultGroupSettings()
	for k, roles := range s {
		out[k] = append([]Role(nil), roles...)
	}
	for k, roles := range patch {
		out[k] = append([]Role(nil), roles...)
	}
	return out
}

// Validate checks that every key and role in s is known.
func (s GroupSettings) Validate() error {
	for k, roles := range s {
		if !k.Valid() {
			return ErrInvalidRequest
		}
		for _, r := range roles {
			if !r.Valid() {
				return ErrInvalidRequest
			}
		}
	}
	return nil
}

// CanPerform reports whether actor may perform key under settings.
func CanPerform(settings GroupSettings, actor Role, key PolicyKey) bool {
	for _, r := range settings.Allowed(key) {
		if r == actor {
			return true
		}
	}
	return false
}

// CanUpdateSettings is admin-only and cannot be reconfigured.
func CanUpdateSettings(actor Role) bool {
	return actor == RoleAdmin
}

// CanActOnTarget applies the admin protection rule: an admin can only be
// removed or demoted by another admin.
func CanActOnTarget(actor, target Role) bool {
	if target == RoleAdmin {
		return actor == RoleAdmin
	}
	return true
}
