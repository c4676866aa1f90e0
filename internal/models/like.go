package models

import (
	"time"
)

// Like 只由点赞切换事务创建和删除，从不更新。
// 唯一索引保证同一用户对同一评论最多存在一条记录，是并发切换的最后防线
type Like struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	UserID    uint      `gorm:"not null;uniqueIndex:idx_user_comment" json:"user_id"`
	CommentID uint      `gorm:"not null;uniqueIndex:idx_user_comment" json:"comment_id"`
	CreatedAt time.Time `json:"created_at"`
}
