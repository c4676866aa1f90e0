package services

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"commentbox/internal/db"
	"commentbox/internal/errs"
	"commentbox/internal/models"
	"commentbox/internal/utils"

	"gorm.io/gorm"
)

// 速率闸门：同一用户 10 秒内最多 2 条评论，专门拦截机器人连发
const (
	velocityWindow = 10 * time.Second
	velocityMax    = 2
)

// CommentInfo 评论及其作者信息，根评论额外携带全部回复（按时间正序）
type CommentInfo struct {
	models.Comment
	Username   string        `json:"username"`
	AvatarURL  string        `json:"avatar_url"`
	ReplyCount int           `json:"reply_count"`
	Replies    []CommentInfo `json:"replies,omitempty"`
}

type Pagination struct {
	Page       int   `json:"page"`
	Limit      int   `json:"limit"`
	Total      int64 `json:"total"`
	TotalPages int   `json:"totalPages"`
}

type CommentPage struct {
	Comments   []CommentInfo `json:"comments"`
	Pagination Pagination    `json:"pagination"`
}

type CommentService struct{}

func NewCommentService() *CommentService {
	return &CommentService{}
}

func newCommentInfo(c models.Comment) CommentInfo {
	return CommentInfo{
		Comment:   c,
		Username:  c.User.Username,
		AvatarURL: c.User.AvatarURL,
	}
}

// storeErr 区分超时/取消和其它存储失败，统一归类为 StoreUnavailable
func storeErr(err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return errs.ErrStoreUnavailable
	}
	return fmt.Errorf("%w: %v", errs.ErrStoreUnavailable, err)
}

// Create 发布评论。内容在此处做持久层清洗；速率闸门必须查实时数据，不能走缓存
func (s *CommentService) Create(ctx context.Context, contentID string, parentID *uint, userID uint, content string) (*CommentInfo, error) {
	sanitized := utils.SanitizeCommentStorage(content)

	var recent int64
	since := time.Now().Add(-velocityWindow)
	if err := db.DB.WithContext(ctx).Model(&models.Comment{}).
		Where("user_id = ? AND created_at > ?", userID, since).
		Count(&recent).Error; err != nil {
		return nil, storeErr(err)
	}
	if recent >= velocityMax {
		return nil, errs.ErrRateRejected
	}

	if parentID != nil {
		var parent models.Comment
		err := db.DB.WithContext(ctx).
			Where("id = ? AND status = ?", *parentID, models.CommentStatusVisible).
			First(&parent).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: parent comment not found", errs.ErrNotFound)
		}
		if err != nil {
			return nil, storeErr(err)
		}
		if parent.ContentID != contentID {
			return nil, fmt.Errorf("%w: parent comment belongs to different content", errs.ErrInvalidInput)
		}
		// 只有两级嵌套：回复的对象必须是根评论
		if parent.ParentID != nil {
			return nil, fmt.Errorf("%w: replies to replies are not allowed", errs.ErrInvalidInput)
		}
	}

	comment := models.Comment{
		ContentID: contentID,
		ParentID:  parentID,
		UserID:    userID,
		Content:   sanitized,
		Status:    models.CommentStatusVisible,
	}
	if err := db.DB.WithContext(ctx).Create(&comment).Error; err != nil {
		return nil, storeErr(err)
	}

	return s.GetByID(ctx, comment.ID)
}

// GetByID 查询单条评论并带上作者信息
func (s *CommentService) GetByID(ctx context.Context, id uint) (*CommentInfo, error) {
	var comment models.Comment
	err := db.DB.WithContext(ctx).Preload("User").First(&comment, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, errs.ErrNotFound
	}
	if err != nil {
		return nil, storeErr(err)
	}
	info := newCommentInfo(comment)
	return &info, nil
}

// ListByContentID 分页查询讨论串：根评论按创建时间倒序（新的在前），
// 每条根评论的回复全部取出、按时间正序附上（串内保持自然阅读顺序）
func (s *CommentService) ListByContentID(ctx context.Context, contentID string, page, limit int) (*CommentPage, error) {
	// 防御性收敛，严格校验在入口层已经做过
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = utils.DefaultLimit
	}
	if limit > utils.MaxLimit {
		limit = utils.MaxLimit
	}

	rootScope := func(tx *gorm.DB) *gorm.DB {
		return tx.Where("content_id = ? AND parent_id IS NULL AND status = ?",
			contentID, models.CommentStatusVisible)
	}

	var total int64
	if err := rootScope(db.DB.WithContext(ctx).Model(&models.Comment{})).
		Count(&total).Error; err != nil {
		return nil, storeErr(err)
	}

	var roots []models.Comment
	if err := rootScope(db.DB.WithContext(ctx).Preload("User")).
		Order("created_at DESC").
		Limit(limit).
		Offset((page - 1) * limit).
		Find(&roots).Error; err != nil {
		return nil, storeErr(err)
	}

	comments := make([]CommentInfo, 0, len(roots))
	for _, root := range roots {
		var replies []models.Comment
		if err := db.DB.WithContext(ctx).Preload("User").
			Where("parent_id = ? AND status = ?", root.ID, models.CommentStatusVisible).
			Order("created_at ASC").
			Find(&replies).Error; err != nil {
			return nil, storeErr(err)
		}

		info := newCommentInfo(root)
		info.ReplyCount = len(replies)
		info.Replies = make([]CommentInfo, 0, len(replies))
		for _, reply := range replies {
			info.Replies = append(info.Replies, newCommentInfo(reply))
		}
		comments = append(comments, info)
	}

	return &CommentPage{
		Comments: comments,
		Pagination: Pagination{
			Page:       page,
			Limit:      limit,
			Total:      total,
			TotalPages: int(math.Ceil(float64(total) / float64(limit))),
		},
	}, nil
}

// Update 编辑自己的评论。条件更新一步完成：非本人、不存在、已删除都表现为 0 行受影响，
// 对外不区分（避免向非所有者泄露评论是否存在）
func (s *CommentService) Update(ctx context.Context, id, userID uint, content string) (*CommentInfo, error) {
	sanitized := utils.SanitizeCommentStorage(content)

	result := db.DB.WithContext(ctx).Model(&models.Comment{}).
		Where("id = ? AND user_id = ? AND status = ?", id, userID, models.CommentStatusVisible).
		Update("content", sanitized)
	if result.Error != nil {
		return nil, storeErr(result.Error)
	}
	if result.RowsAffected == 0 {
		return nil, errs.ErrNotFound
	}

	return s.GetByID(ctx, id)
}

// Delete 软删除自己的评论。状态条件保证重复删除影响 0 行并报 not-found，
// 回复不级联：根评论删除后其回复依然可见
func (s *CommentService) Delete(ctx context.Context, id, userID uint) (contentID string, err error) {
	var comment models.Comment
	findErr := db.DB.WithContext(ctx).Select("id", "content_id").First(&comment, id).Error
	if findErr == nil {
		contentID = comment.ContentID
	}

	result := db.DB.WithContext(ctx).Model(&models.Comment{}).
		Where("id = ? AND user_id = ? AND status = ?", id, userID, models.CommentStatusVisible).
		Update("status", models.CommentStatusDeleted)
	if result.Error != nil {
		return "", storeErr(result.Error)
	}
	if result.RowsAffected == 0 {
		return "", errs.ErrNotFound
	}
	return contentID, nil
}

// Like 切换点赞状态。存在性检查和写入必须在同一个事务里：
// 依赖数据库隔离级别串行化同一用户的并发切换，(user_id, comment_id)
// 唯一索引兜底，保证重复的 Like 行永远不会被提交；任一步失败整体回滚，
// 计数器和 Like 行的不一致永远不可见
func (s *CommentService) Like(ctx context.Context, commentID, userID uint) (*CommentInfo, bool, error) {
	liked := false
	err := db.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// 已删除的评论不能再被点赞
		var comment models.Comment
		err := tx.Where("id = ? AND status = ?", commentID, models.CommentStatusVisible).
			First(&comment).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return errs.ErrNotFound
		}
		if err != nil {
			return err
		}

		var existing models.Like
		err = tx.Where("user_id = ? AND comment_id = ?", userID, commentID).First(&existing).Error
		switch {
		case err == nil:
			// 取消点赞，计数器下限为 0
			if err := tx.Delete(&existing).Error; err != nil {
				return err
			}
			if err := tx.Model(&models.Comment{}).Where("id = ?", commentID).
				UpdateColumn("likes", gorm.Expr("CASE WHEN likes > 0 THEN likes - 1 ELSE 0 END")).
				Error; err != nil {
				return err
			}
			liked = false
		case errors.Is(err, gorm.ErrRecordNotFound):
			if err := tx.Create(&models.Like{UserID: userID, CommentID: commentID}).Error; err != nil {
				return err
			}
			if err := tx.Model(&models.Comment{}).Where("id = ?", commentID).
				UpdateColumn("likes", gorm.Expr("likes + ?", 1)).
				Error; err != nil {
				return err
			}
			liked = true
		default:
			return err
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, errs.ErrNotFound) {
			return nil, false, err
		}
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
			return nil, false, errs.ErrStoreUnavailable
		}
		return nil, false, fmt.Errorf("%w: %v", errs.ErrTransactionFailed, err)
	}

	info, err := s.GetByID(ctx, commentID)
	if err != nil {
		return nil, false, err
	}
	return info, liked, nil
}
