package models

import (
	"time"
)

// APIKey is one entry of the shared-secret allow-list guarding the control
// API. Keys are created out of band (ops tooling inserts rows).
type APIKey struct {
	ID         string    `gorm:"primaryKey;type:varchar(64)" json:"id"`
	Key        string    `gorm:"type:varchar(128);uniqueIndex" json:"-"`
	Label      string    `json:"label"`
	Disabled   bool      `json:"disabled"`
	LastUsedAt time.Time `json:"lastUsedAt"`
	CreatedAt  time.Time `json:"createdAt"`
}

func (APIKey) TableName() string {
	return "api_key"
}

// LookupAPIKey returns the allow-list entry for a presented secret, or an
// error when no such key exists.
func LookupAPIKey(key string) (*APIKey, error) {
	var row APIKey
	if err := GormDB.First(&row, "`key` = ?", key).Error; err != nil {
		return nil, err
	}
	return &row, nil
}

// TouchAPIKey updates the last-used timestamp. Best effort: callers ignore
// the returned error beyond logging.
func TouchAPIKey(id string) error {
	return GormDB.Model(&APIKey{}).Where("id = ?", id).Update("last_used_at", time.Now()).Error
}
