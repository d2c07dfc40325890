package models

import "time"

type Profile struct {
	UserID      uint64    `gorm:"primaryKey" json:"user_id"`
	DisplayName *string   `gorm:"type:varchar(100)" json:"display_name"`
	AvatarURL   *string   `gorm:"type:varchar(500)" json:"avatar_url"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

func (Profile) TableName() string { return "profiles" }
