package policy

import "time"

// Policy types. Only RBAC is authoritative in the decision path; ABAC and
// CUSTOM are reserved and deny by default since the engine intersects policy
// ids of active policies assigned through the junction tables.
const (
	TypeRBAC   = "RBAC"
	TypeABAC   = "ABAC"
	TypeCustom = "CUSTOM"
)

// Policy is a named gate. Access to an endpoint is permitted to any role
// whose policy set intersects the endpoint's policy set.
type Policy struct {
	ID          int64     `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	Type        string    `json:"type"`
	IsActive    bool      `json:"isActive"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// Role is a named bag of policies assigned to users.
type Role struct {
	ID          int64     `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	IsActive    bool      `json:"isActive"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// RolePolicy links a policy to a role. Deactivated rows are semantically
// equivalent to absent ones; assignment reactivates them.
type RolePolicy struct {
	RoleID     int64     `json:"roleId"`
	PolicyID   int64     `json:"policyId"`
	IsActive   bool      `json:"isActive"`
	AssignedAt time.Time `json:"assignedAt"`
	AssignedBy *int64    `json:"assignedBy,omitempty"`
}
