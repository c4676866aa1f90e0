package models

import (
	"time"
)

// User 由 Google OAuth 回调创建和更新，评论引擎只读取（用于装饰评论的作者信息）
type User struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	GoogleID  string    `gorm:"uniqueIndex;size:64;not null" json:"-"` // Google OAuth ID
	Username  string    `gorm:"size:100;not null" json:"username"`
	Email     string    `gorm:"uniqueIndex;size:255;not null" json:"email"`
	AvatarURL string    `gorm:"size:512" json:"avatar_url"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
