package models

import (
	"time"
)

// 评论状态。软删除：visible -> deleted 是终态，行和点赞数保留用于审计
const (
	CommentStatusVisible = "visible"
	CommentStatusDeleted = "deleted"
)

type Comment struct {
	ID        uint   `gorm:"primaryKey" json:"id"`
	ContentID string `gorm:"size:255;not null;index:idx_content_status,priority:1" json:"content_id"`
	ParentID  *uint  `gorm:"index" json:"parent_id"` // Nullable for root comments
	UserID    uint   `gorm:"not null;index" json:"user_id"`
	User      User   `gorm:"constraint:OnUpdate:CASCADE,OnDelete:CASCADE;" json:"-"`
	Content   string `gorm:"type:text;not null" json:"content"`
	// 冗余计数器，由点赞事务维护，与 likes 表保持一致
	Likes     int       `gorm:"not null;default:0" json:"likes"`
	Status    string    `gorm:"size:10;not null;default:'visible';index:idx_content_status,priority:2" json:"status"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
