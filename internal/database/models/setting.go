package models

import "github.com/google/uuid"

// OrganizationSetting holds per-tenant configuration. The third-party API
// key is encrypted at rest ("nonce:ciphertext" form); rows written before
// the encryption migration may still hold plaintext and are re-encrypted
// on the next update.
type OrganizationSetting struct {
	Base
	OrganizationID uuid.UUID `gorm:"type:uuid;uniqueIndex;not null" json:"organization_id"`
	APIKey         string    `json:"-"`

	// Relationships
	Organization *Organization `gorm:"foreignKey:OrganizationID" json:"-"`
}

func (OrganizationSetting) TableName() string {
	return "organization_settings"
}
