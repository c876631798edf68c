package entity

import (
	"fmt"
	"time"
)

// AppRef identifies an application record by type tag and id.
// The tag is the stable short identifier stored in the log tables.
type AppRef struct {
	Type string `json:"type"`
	ID   int64  `json:"id"`
}

// String returns "type#id"
func (r AppRef) String() string {
	return fmt.Sprintf("%s#%d", r.Type, r.ID)
}

// IsZero reports whether the reference is unset
func (r AppRef) IsZero() bool {
	return r.Type == "" && r.ID == 0
}

// User is the authenticated principal acting on an application
type User struct {
	ID          int64  `json:"id"`
	Username    string `json:"username"`
	Role        *Role  `json:"role,omitempty"`
	IsSuperuser bool   `json:"is_superuser"`
}

// RoleID returns the user's role id, or nil when the user has no role
func (u *User) RoleID() *int64 {
	if u == nil || u.Role == nil {
		return nil
	}
	id := u.Role.ID
	return &id
}

// RoleName returns the user's role name, or "" when the user has no role
func (u *User) RoleName() string {
	if u == nil || u.Role == nil {
		return ""
	}
	return u.Role.Name
}

// ApplicationRecord is the physical row shared by every concrete application type
type ApplicationRecord struct {
	ID             int64           `json:"id"`
	Type           string          `json:"type"`
	WorkflowID     int64           `json:"workflow_id"`
	CurrentStageID int64           `json:"current_stage_id"`
	ApplicantID    int64           `json:"applicant_id"`
	Payload        map[string]any  `json:"payload"`
	Flags          map[string]bool `json:"flags"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
}

// Ref returns the polymorphic reference of the record
func (r *ApplicationRecord) Ref() AppRef {
	return AppRef{Type: r.Type, ID: r.ID}
}
