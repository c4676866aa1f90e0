package handlers

import (
	"errors"
	"log"
	"net/http"

	"commentbox/internal/errs"
	"commentbox/internal/middleware"
	"commentbox/internal/models"

	"github.com/gin-gonic/gin"
)

// Response 统一响应信封
type Response struct {
	Status  string      `json:"status"`
	Message string      `json:"message,omitempty"`
	Data    interface{} `json:"data,omitempty"`
}

func Success(c *gin.Context, code int, message string, data interface{}) {
	c.JSON(code, Response{Status: "success", Message: message, Data: data})
}

func Error(c *gin.Context, code int, message string) {
	c.JSON(code, Response{Status: "error", Message: message})
}

// FailWith 将引擎错误映射为稳定的状态码和对外文案。
// 校验类错误的消息可以原样返回（是调用方可修正的信息），
// 基础设施类错误只返回固定文案，细节进日志
func FailWith(c *gin.Context, err error) {
	switch {
	case errors.Is(err, errs.ErrNotFound):
		Error(c, http.StatusNotFound, errs.ErrNotFound.Error())
	case errors.Is(err, errs.ErrInvalidInput),
		errors.Is(err, errs.ErrSpamRejected),
		errors.Is(err, errs.ErrRateRejected):
		Error(c, http.StatusBadRequest, err.Error())
	case errors.Is(err, errs.ErrTransactionFailed):
		log.Printf("[comments] transaction failed: %v", err)
		Error(c, http.StatusBadRequest, errs.ErrTransactionFailed.Error())
	case errors.Is(err, errs.ErrStoreUnavailable):
		log.Printf("[comments] store unavailable: %v", err)
		Error(c, http.StatusInternalServerError, errs.ErrStoreUnavailable.Error())
	default:
		log.Printf("[comments] unexpected error: %v", err)
		Error(c, http.StatusInternalServerError, "Internal server error")
	}
}

// currentUser 取出 AuthRequired 保证存在的登录用户
func currentUser(c *gin.Context) *models.User {
	return c.MustGet(middleware.CheckUserKey).(*models.User)
}
