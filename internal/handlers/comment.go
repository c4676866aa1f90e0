package handlers

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"commentbox/internal/errs"
	"commentbox/internal/services"
	"commentbox/internal/utils"

	"github.com/gin-gonic/gin"
)

const (
	// 存储调用的请求级超时：超过只会得到 StoreUnavailable，不会无限挂起
	storeTimeout = 5 * time.Second

	listCacheTTL = 30 * time.Second
)

type CommentHandler struct {
	comments *services.CommentService
}

func NewCommentHandler() *CommentHandler {
	return &CommentHandler{
		comments: services.NewCommentService(),
	}
}

func storeContext(c *gin.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(c.Request.Context(), storeTimeout)
}

// contentGeneration 读缓存按 content_id 分代：写操作把代号 +1，
// 旧代的缓存键不再被访问，自然被 LRU 淘汰
func contentGeneration(contentID string) int {
	if gen, ok := utils.GetCache().Get("gen:" + contentID).(int); ok {
		return gen
	}
	return 0
}

func bumpContentGeneration(contentID string) {
	key := "gen:" + contentID
	utils.GetCache().Set(key, contentGeneration(contentID)+1, 24*time.Hour)
}

type createCommentRequest struct {
	ContentID string `json:"content_id"`
	ParentID  *uint  `json:"parent_id"`
	Content   string `json:"content"`
}

type updateCommentRequest struct {
	Content string `json:"content"`
}

func (h *CommentHandler) Create(c *gin.Context) {
	user := currentUser(c)

	var req createCommentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		Error(c, http.StatusBadRequest, "Invalid request body")
		return
	}

	contentID, err := utils.ValidateContentID(req.ContentID)
	if err != nil {
		FailWith(c, err)
		return
	}
	content, err := utils.ValidateComment(req.Content)
	if err != nil {
		FailWith(c, err)
		return
	}

	ctx, cancel := storeContext(c)
	defer cancel()

	info, err := h.comments.Create(ctx, contentID, req.ParentID, user.ID, content)
	if err != nil {
		FailWith(c, err)
		return
	}

	bumpContentGeneration(contentID)
	Success(c, http.StatusCreated, "Comment created successfully", info)
}

func (h *CommentHandler) List(c *gin.Context) {
	contentID, err := utils.ValidateContentID(c.Query("content_id"))
	if err != nil {
		FailWith(c, err)
		return
	}
	page, limit, err := utils.ValidatePagination(c.Query("page"), c.Query("limit"))
	if err != nil {
		FailWith(c, err)
		return
	}

	cacheKey := fmt.Sprintf("comments:%s:g%d:p%d:l%d", contentID, contentGeneration(contentID), page, limit)
	if cached, ok := utils.GetCache().Get(cacheKey).(*services.CommentPage); ok {
		Success(c, http.StatusOK, "", cached)
		return
	}

	ctx, cancel := storeContext(c)
	defer cancel()

	result, err := h.comments.ListByContentID(ctx, contentID, page, limit)
	if err != nil {
		FailWith(c, err)
		return
	}

	utils.GetCache().Set(cacheKey, result, listCacheTTL)
	Success(c, http.StatusOK, "", result)
}

func (h *CommentHandler) Update(c *gin.Context) {
	user := currentUser(c)

	id, err := parseCommentID(c)
	if err != nil {
		FailWith(c, err)
		return
	}

	var req updateCommentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		Error(c, http.StatusBadRequest, "Invalid request body")
		return
	}
	content, err := utils.ValidateComment(req.Content)
	if err != nil {
		FailWith(c, err)
		return
	}

	ctx, cancel := storeContext(c)
	defer cancel()

	info, err := h.comments.Update(ctx, id, user.ID, content)
	if err != nil {
		FailWith(c, err)
		return
	}

	bumpContentGeneration(info.ContentID)
	Success(c, http.StatusOK, "Comment updated successfully", info)
}

func (h *CommentHandler) Delete(c *gin.Context) {
	user := currentUser(c)

	id, err := parseCommentID(c)
	if err != nil {
		FailWith(c, err)
		return
	}

	ctx, cancel := storeContext(c)
	defer cancel()

	contentID, err := h.comments.Delete(ctx, id, user.ID)
	if err != nil {
		FailWith(c, err)
		return
	}

	bumpContentGeneration(contentID)
	Success(c, http.StatusOK, "Comment deleted successfully", nil)
}

func (h *CommentHandler) Like(c *gin.Context) {
	user := currentUser(c)

	id, err := parseCommentID(c)
	if err != nil {
		FailWith(c, err)
		return
	}

	ctx, cancel := storeContext(c)
	defer cancel()

	info, liked, err := h.comments.Like(ctx, id, user.ID)
	if err != nil {
		FailWith(c, err)
		return
	}

	bumpContentGeneration(info.ContentID)
	Success(c, http.StatusOK, "Comment like toggled successfully", gin.H{
		"comment": info,
		"liked":   liked,
	})
}

func parseCommentID(c *gin.Context) (uint, error) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil || id == 0 {
		return 0, fmt.Errorf("%w: invalid comment ID", errs.ErrInvalidInput)
	}
	return uint(id), nil
}
