package models

import "github.com/google/uuid"

// Roles, from most to least privileged.
const (
	RoleOwner    = "owner"
	RoleAdmin    = "admin"
	RoleTeacher  = "teacher"
	RoleReadonly = "readonly"
)

type User struct {
	Base
	Email          string    `gorm:"uniqueIndex;not null" json:"email"`
	PasswordHash   string    `gorm:"not null" json:"-"`
	Name           string    `json:"name"`
	OrganizationID uuid.UUID `gorm:"type:uuid;index" json:"organization_id"`
	Role           string    `gorm:"default:'teacher'" json:"role"`
	IsActive       bool      `gorm:"default:true" json:"is_active"`

	// Relationships
	Organization *Organization `gorm:"foreignKey:OrganizationID" json:"organization,omitempty"`
}

func (User) TableName() string {
	return "users"
}
