package router

import (
	"net/http"
	"time"

	"commentbox/internal/handlers"
	"commentbox/internal/middleware"

	"github.com/gin-gonic/gin"
)

func RegisterRoutes(r *gin.Engine) {
	// Handlers
	authHandler := handlers.NewAuthHandler()
	commentHandler := handlers.NewCommentHandler()

	// 健康检查 / 探活
	r.GET("/", func(c *gin.Context) {
		handlers.Success(c, http.StatusOK, "Comment service is running", nil)
	})

	// 评论接口 (Comment API)
	api := r.Group("/api")
	api.Use(middleware.RateLimit("general", 15*time.Minute, 100))
	{
		api.GET("/comments", commentHandler.List) // 读不需要登录

		authorized := api.Group("")
		authorized.Use(middleware.AuthRequired())
		{
			authorized.POST("/comments",
				middleware.RateLimit("comments", time.Minute, 5), commentHandler.Create) // 发表评论
			authorized.PUT("/comments/:id", commentHandler.Update)    // 编辑自己的评论
			authorized.DELETE("/comments/:id", commentHandler.Delete) // 软删除自己的评论
			authorized.POST("/comments/:id/like",
				middleware.RateLimit("likes", time.Minute, 20), commentHandler.Like) // 点赞/取消点赞
		}
	}

	// 认证路由 (Auth Routes)
	auth := r.Group("/auth")
	auth.Use(middleware.RateLimit("auth", time.Minute, 6))
	{
		auth.GET("/google", authHandler.GoogleLogin)             // 发起 Google 登录
		auth.GET("/google/callback", authHandler.GoogleCallback) // OAuth 回调
		auth.POST("/logout", authHandler.Logout)                 // 退出登录
		auth.GET("/status", authHandler.Status)                  // 认证状态
	}
}
