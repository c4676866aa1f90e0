package middleware

import (
	"fmt"
	"net/http"
	"time"

	"commentbox/internal/models"
	"commentbox/internal/utils"

	"github.com/gin-gonic/gin"
)

// RateLimit 固定窗口限流。登录用户按用户计数，匿名请求按 IP 计数，
// 超限直接拒绝而非排队，保证接口在高负载下的最坏延迟
func RateLimit(scope string, window time.Duration, max int) gin.HandlerFunc {
	return func(c *gin.Context) {
		key := "rl:" + scope + ":"
		if user, exists := c.Get(CheckUserKey); exists {
			key += fmt.Sprintf("user_%d", user.(*models.User).ID)
		} else {
			key += c.ClientIP()
		}

		if utils.GetCache().IncrWindow(key, window) > max {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"status":  "error",
				"message": "Too many requests, please try again later.",
			})
			return
		}
		c.Next()
	}
}
