package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"commentbox/internal/db"
	"commentbox/internal/errs"
	"commentbox/internal/models"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
)

// setupDB 每个测试用独立的内存库。:memory: 是按连接隔离的，
// 必须把连接池限制为 1，否则不同连接看到的是不同的空库
func setupDB(t *testing.T) {
	t.Helper()
	gdb, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sqlDB, err := gdb.DB()
	if err != nil {
		t.Fatalf("connection pool: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)

	if err := gdb.AutoMigrate(&models.User{}, &models.Comment{}, &models.Like{}); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	db.DB = gdb
}

func makeUser(t *testing.T, name string) *models.User {
	t.Helper()
	user := &models.User{
		GoogleID: "google-" + name,
		Username: name,
		Email:    name + "@example.com",
	}
	if err := db.DB.Create(user).Error; err != nil {
		t.Fatalf("create user: %v", err)
	}
	return user
}

// seedComment 直接入库,绕过速率闸门,并用显式时间保证排序可断言
func seedComment(t *testing.T, contentID string, parentID *uint, userID uint, content string, at time.Time) *models.Comment {
	t.Helper()
	c := &models.Comment{
		ContentID: contentID,
		ParentID:  parentID,
		UserID:    userID,
		Content:   content,
		Status:    models.CommentStatusVisible,
		CreatedAt: at,
	}
	if err := db.DB.Create(c).Error; err != nil {
		t.Fatalf("seed comment: %v", err)
	}
	return c
}

func TestCreateAndGet(t *testing.T) {
	setupDB(t)
	svc := NewCommentService()
	user := makeUser(t, "alice")

	info, err := svc.Create(context.Background(), "post/1", nil, user.ID, "first <b>comment</b>")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if info.ID == 0 {
		t.Error("expected assigned ID")
	}
	if info.Content != "first <b>comment</b>" {
		t.Errorf("content = %q", info.Content)
	}
	if info.Username != "alice" {
		t.Errorf("username = %q, want alice", info.Username)
	}
	if info.Status != models.CommentStatusVisible {
		t.Errorf("status = %q", info.Status)
	}

	got, err := svc.GetByID(context.Background(), info.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.ContentID != "post/1" {
		t.Errorf("content_id = %q", got.ContentID)
	}
}

func TestCreateSanitizesStorage(t *testing.T) {
	setupDB(t)
	svc := NewCommentService()
	user := makeUser(t, "bob")

	info, err := svc.Create(context.Background(), "post/1", nil, user.ID, `hi <script>alert(1)</script><p>there</p>`)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if info.Content != "hi there" {
		t.Errorf("stored content = %q, want script and p stripped", info.Content)
	}
}

func TestCreateReplyRules(t *testing.T) {
	setupDB(t)
	svc := NewCommentService()
	user := makeUser(t, "carol")
	// 种子数据放到速率窗口之外,不干扰后面的 Create
	now := time.Now().Add(-time.Minute)
	root := seedComment(t, "post/1", nil, user.ID, "root", now)
	reply := seedComment(t, "post/1", &root.ID, user.ID, "reply", now)

	// 跨讨论串回复
	if _, err := svc.Create(context.Background(), "post/2", &root.ID, user.ID, "hi"); !errors.Is(err, errs.ErrInvalidInput) {
		t.Errorf("cross-content reply err = %v, want ErrInvalidInput", err)
	}

	// 回复的回复
	if _, err := svc.Create(context.Background(), "post/1", &reply.ID, user.ID, "hi"); !errors.Is(err, errs.ErrInvalidInput) {
		t.Errorf("nested reply err = %v, want ErrInvalidInput", err)
	}

	// 父评论不存在
	missing := uint(9999)
	if _, err := svc.Create(context.Background(), "post/1", &missing, user.ID, "hi"); !errors.Is(err, errs.ErrNotFound) {
		t.Errorf("missing parent err = %v, want ErrNotFound", err)
	}

	// 父评论已删除
	db.DB.Model(root).Update("status", models.CommentStatusDeleted)
	if _, err := svc.Create(context.Background(), "post/1", &root.ID, user.ID, "hi"); !errors.Is(err, errs.ErrNotFound) {
		t.Errorf("deleted parent err = %v, want ErrNotFound", err)
	}
}

func TestCreateVelocityGate(t *testing.T) {
	setupDB(t)
	svc := NewCommentService()
	user := makeUser(t, "dave")
	other := makeUser(t, "erin")

	for i := 0; i < 2; i++ {
		if _, err := svc.Create(context.Background(), "post/1", nil, user.ID, fmt.Sprintf("comment %d", i)); err != nil {
			t.Fatalf("create %d: %v", i, err)
		}
	}
	if _, err := svc.Create(context.Background(), "post/1", nil, user.ID, "one more"); !errors.Is(err, errs.ErrRateRejected) {
		t.Errorf("third rapid comment err = %v, want ErrRateRejected", err)
	}
	// 闸门按用户计,其他用户不受影响
	if _, err := svc.Create(context.Background(), "post/1", nil, other.ID, "hello"); err != nil {
		t.Errorf("other user should not be gated: %v", err)
	}
}

func TestListOrderingAndPagination(t *testing.T) {
	setupDB(t)
	svc := NewCommentService()
	user := makeUser(t, "frank")
	base := time.Now().Add(-time.Hour)

	r1 := seedComment(t, "post/1", nil, user.ID, "oldest root", base)
	r2 := seedComment(t, "post/1", nil, user.ID, "middle root", base.Add(time.Minute))
	r3 := seedComment(t, "post/1", nil, user.ID, "newest root", base.Add(2*time.Minute))
	seedComment(t, "post/1", &r2.ID, user.ID, "reply b", base.Add(3*time.Minute))
	seedComment(t, "post/1", &r2.ID, user.ID, "reply a", base.Add(2*time.Minute))
	seedComment(t, "post/other", nil, user.ID, "unrelated", base)

	page, err := svc.ListByContentID(context.Background(), "post/1", 1, 20)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if page.Pagination.Total != 3 {
		t.Errorf("total = %d, want 3 (replies and other content excluded)", page.Pagination.Total)
	}
	if page.Pagination.TotalPages != 1 {
		t.Errorf("totalPages = %d, want 1", page.Pagination.TotalPages)
	}
	if len(page.Comments) != 3 {
		t.Fatalf("got %d roots", len(page.Comments))
	}
	// 根评论新的在前
	if page.Comments[0].ID != r3.ID || page.Comments[2].ID != r1.ID {
		t.Errorf("root order = [%d %d %d], want newest first", page.Comments[0].ID, page.Comments[1].ID, page.Comments[2].ID)
	}
	// 回复挂在根下,按时间正序
	mid := page.Comments[1]
	if mid.ReplyCount != 2 || len(mid.Replies) != 2 {
		t.Fatalf("reply_count = %d, replies = %d", mid.ReplyCount, len(mid.Replies))
	}
	if mid.Replies[0].Content != "reply a" || mid.Replies[1].Content != "reply b" {
		t.Errorf("replies out of order: %q, %q", mid.Replies[0].Content, mid.Replies[1].Content)
	}

	// 第二页
	page2, err := svc.ListByContentID(context.Background(), "post/1", 2, 2)
	if err != nil {
		t.Fatalf("list page 2: %v", err)
	}
	if page2.Pagination.TotalPages != 2 {
		t.Errorf("totalPages = %d, want 2", page2.Pagination.TotalPages)
	}
	if len(page2.Comments) != 1 || page2.Comments[0].ID != r1.ID {
		t.Errorf("page 2 should hold the oldest root only")
	}

	// 空讨论串是空列表而不是错误
	empty, err := svc.ListByContentID(context.Background(), "post/none", 1, 20)
	if err != nil {
		t.Fatalf("empty list: %v", err)
	}
	if empty.Pagination.Total != 0 || len(empty.Comments) != 0 {
		t.Errorf("empty thread: total = %d, comments = %d", empty.Pagination.Total, len(empty.Comments))
	}
}

func TestUpdateOwnership(t *testing.T) {
	setupDB(t)
	svc := NewCommentService()
	owner := makeUser(t, "grace")
	stranger := makeUser(t, "heidi")
	c := seedComment(t, "post/1", nil, owner.ID, "before", time.Now())

	// 非本人编辑:不区分“不存在”和“无权限”
	if _, err := svc.Update(context.Background(), c.ID, stranger.ID, "hacked"); !errors.Is(err, errs.ErrNotFound) {
		t.Errorf("stranger update err = %v, want ErrNotFound", err)
	}

	info, err := svc.Update(context.Background(), c.ID, owner.ID, "after")
	if err != nil {
		t.Fatalf("owner update: %v", err)
	}
	if info.Content != "after" {
		t.Errorf("content = %q", info.Content)
	}

	if _, err := svc.Update(context.Background(), 9999, owner.ID, "x"); !errors.Is(err, errs.ErrNotFound) {
		t.Errorf("missing comment update err = %v, want ErrNotFound", err)
	}
}

func TestDeleteIsSoftAndfinal(t *testing.T) {
	setupDB(t)
	svc := NewCommentService()
	user := makeUser(t, "ivan")
	c := seedComment(t, "post/1", nil, user.ID, "bye", time.Now())

	contentID, err := svc.Delete(context.Background(), c.ID, user.ID)
	if err != nil {
		t.Fatalf("delete: %v", err)
	}
	if contentID != "post/1" {
		t.Errorf("contentID = %q", contentID)
	}

	// 行保留,状态翻转
	var stored models.Comment
	if err := db.DB.First(&stored, c.ID).Error; err != nil {
		t.Fatalf("row should survive soft delete: %v", err)
	}
	if stored.Status != models.CommentStatusDeleted {
		t.Errorf("status = %q", stored.Status)
	}

	// 重复删除
	if _, err := svc.Delete(context.Background(), c.ID, user.ID); !errors.Is(err, errs.ErrNotFound) {
		t.Errorf("second delete err = %v, want ErrNotFound", err)
	}

	// 已删除的不再出现在列表里
	page, err := svc.ListByContentID(context.Background(), "post/1", 1, 20)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if page.Pagination.Total != 0 {
		t.Errorf("deleted comment still listed, total = %d", page.Pagination.Total)
	}
}

func TestDeleteOwnership(t *testing.T) {
	setupDB(t)
	svc := NewCommentService()
	owner := makeUser(t, "judy")
	stranger := makeUser(t, "karl")
	c := seedComment(t, "post/1", nil, owner.ID, "mine", time.Now())

	if _, err := svc.Delete(context.Background(), c.ID, stranger.ID); !errors.Is(err, errs.ErrNotFound) {
		t.Errorf("stranger delete err = %v, want ErrNotFound", err)
	}
}

func TestLikeToggle(t *testing.T) {
	setupDB(t)
	svc := NewCommentService()
	author := makeUser(t, "liam")
	fan := makeUser(t, "mary")
	c := seedComment(t, "post/1", nil, author.ID, "nice", time.Now())

	info, liked, err := svc.Like(context.Background(), c.ID, fan.ID)
	if err != nil {
		t.Fatalf("like: %v", err)
	}
	if !liked || info.Likes != 1 {
		t.Errorf("after like: liked = %v, likes = %d", liked, info.Likes)
	}

	info, liked, err = svc.Like(context.Background(), c.ID, fan.ID)
	if err != nil {
		t.Fatalf("unlike: %v", err)
	}
	if liked || info.Likes != 0 {
		t.Errorf("after unlike: liked = %v, likes = %d", liked, info.Likes)
	}

	// 计数器和 Like 行保持一致
	var rows int64
	db.DB.Model(&models.Like{}).Where("comment_id = ?", c.ID).Count(&rows)
	if rows != 0 {
		t.Errorf("like rows = %d after toggle pair", rows)
	}
}

func TestLikeRejectsDeletedOrMissing(t *testing.T) {
	setupDB(t)
	svc := NewCommentService()
	user := makeUser(t, "nina")
	c := seedComment(t, "post/1", nil, user.ID, "gone soon", time.Now())
	if _, err := svc.Delete(context.Background(), c.ID, user.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}

	if _, _, err := svc.Like(context.Background(), c.ID, user.ID); !errors.Is(err, errs.ErrNotFound) {
		t.Errorf("like deleted err = %v, want ErrNotFound", err)
	}
	if _, _, err := svc.Like(context.Background(), 9999, user.ID); !errors.Is(err, errs.ErrNotFound) {
		t.Errorf("like missing err = %v, want ErrNotFound", err)
	}
}

// 超时/取消不能表现为挂起或裸驱动错误,统一归类为存储不可用
func TestCanceledContextIsStoreUnavailable(t *testing.T) {
	setupDB(t)
	svc := NewCommentService()
	user := makeUser(t, "pat")
	c := seedComment(t, "post/1", nil, user.ID, "still here", time.Now().Add(-time.Minute))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := svc.Create(ctx, "post/1", nil, user.ID, "hello"); !errors.Is(err, errs.ErrStoreUnavailable) {
		t.Errorf("create err = %v, want ErrStoreUnavailable", err)
	}
	if _, err := svc.ListByContentID(ctx, "post/1", 1, 20); !errors.Is(err, errs.ErrStoreUnavailable) {
		t.Errorf("list err = %v, want ErrStoreUnavailable", err)
	}
	// 点赞走事务,映射分支独立
	if _, _, err := svc.Like(ctx, c.ID, user.ID); !errors.Is(err, errs.ErrStoreUnavailable) {
		t.Errorf("like err = %v, want ErrStoreUnavailable", err)
	}

	// 取消发生在任何写入之前,数据不受影响
	page, err := svc.ListByContentID(context.Background(), "post/1", 1, 20)
	if err != nil {
		t.Fatalf("list after cancel: %v", err)
	}
	if page.Pagination.Total != 1 {
		t.Errorf("total = %d, want the seeded comment only", page.Pagination.Total)
	}
}

func TestLikeConcurrentUsers(t *testing.T) {
	setupDB(t)
	svc := NewCommentService()
	author := makeUser(t, "oscar")
	c := seedComment(t, "post/1", nil, author.ID, "popular", time.Now())

	const n = 5
	users := make([]*models.User, n)
	for i := range users {
		users[i] = makeUser(t, fmt.Sprintf("fan%d", i))
	}

	var wg sync.WaitGroup
	errCh := make(chan error, n)
	for _, u := range users {
		wg.Add(1)
		go func(userID uint) {
			defer wg.Done()
			if _, _, err := svc.Like(context.Background(), c.ID, userID); err != nil {
				errCh <- err
			}
		}(u.ID)
	}
	wg.Wait()
	close(errCh)
	for err := range errCh {
		t.Errorf("concurrent like: %v", err)
	}

	info, err := svc.GetByID(context.Background(), c.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if info.Likes != n {
		t.Errorf("likes = %d, want %d", info.Likes, n)
	}
	var rows int64
	db.DB.Model(&models.Like{}).Where("comment_id = ?", c.ID).Count(&rows)
	if rows != n {
		t.Errorf("like rows = %d, want %d", rows, n)
	}
}
