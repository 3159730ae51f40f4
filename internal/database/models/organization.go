package models

type Organization struct {
	Base
	Name     string `gorm:"not null" json:"name"`
	Slug     string `gorm:"uniqueIndex;not null" json:"slug"`
	IsActive bool   `gorm:"default:true" json:"is_active"`

	// Relationships
	Users []User `gorm:"foreignKey:OrganizationID" json:"-"`
}

func (Organization) TableName() string {
	return "organizations"
}
