package model

import "time"

// Credential is one row of the broker's credential table. The table is handed
// to peers as the auth policy.
type Credential struct {
	ID           uint      `gorm:"primaryKey" json:"id"`
	Username     string    `gorm:"uniqueIndex;size:64" json:"username"`
	PasswordHash string    `json:"-"`
	CreatedAt    time.Time `json:"createdAt"`
}
