package models

// LoginAttempt is an append-only record of one login try. Rows are only
// inserted and read; the lockout decision is a count over a rolling window,
// which keeps it correct across multiple server instances and restarts.
type LoginAttempt struct {
	Base
	Identifier string `gorm:"index:idx_attempts_identifier_created;not null" json:"identifier"`
	Succeeded  bool   `gorm:"not null" json:"succeeded"`
}

func (LoginAttempt) TableName() string {
	return "login_attempts"
}
