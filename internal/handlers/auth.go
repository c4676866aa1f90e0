package handlers

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"

	"commentbox/internal/db"
	"commentbox/internal/middleware"
	"commentbox/internal/models"

	"github.com/gin-contrib/sessions"
	"github.com/gin-gonic/gin"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
)

var googleOauthConfig *oauth2.Config

// InitGoogleOAuth 初始化 Google OAuth 配置
func InitGoogleOAuth() {
	siteURL := os.Getenv("SITE_URL")
	if siteURL == "" {
		siteURL = "http://localhost:8080"
	}

	googleOauthConfig = &oauth2.Config{
		ClientID:     os.Getenv("GOOGLE_CLIENT_ID"),
		ClientSecret: os.Getenv("GOOGLE_CLIENT_SECRET"),
		RedirectURL:  siteURL + "/auth/google/callback",
		Scopes: []string{
			"https://www.googleapis.com/auth/userinfo.email",
			"https://www.googleapis.com/auth/userinfo.profile",
		},
		Endpoint: google.Endpoint,
	}
}

// GoogleUserInfo Google 用户信息结构
type GoogleUserInfo struct {
	ID            string `json:"id"`
	Email         string `json:"email"`
	VerifiedEmail bool   `json:"verified_email"`
	Name          string `json:"name"`
	GivenName     string `json:"given_name"`
	Picture       string `json:"picture"`
}

type AuthHandler struct{}

func NewAuthHandler() *AuthHandler {
	return &AuthHandler{}
}

// generateStateToken 生成随机 state token
func generateStateToken() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.URLEncoding.EncodeToString(b), nil
}

// GoogleLogin 发起 Google OAuth 登录
func (h *AuthHandler) GoogleLogin(c *gin.Context) {
	state, err := generateStateToken()
	if err != nil {
		Error(c, http.StatusInternalServerError, "Failed to generate state token")
		return
	}

	// state 存入 session 用于回调校验；return_to 记录嵌入页地址，登录完成后跳回
	session := sessions.Default(c)
	session.Set("oauth_state", state)
	if returnTo := c.Query("return_to"); returnTo != "" && strings.HasPrefix(returnTo, "/") {
		session.Set("return_to", returnTo)
	}
	session.Save()

	url := googleOauthConfig.AuthCodeURL(state, oauth2.AccessTypeOffline)
	c.Redirect(http.StatusTemporaryRedirect, url)
}

// GoogleCallback 处理 Google OAuth 回调：按 google_id/email 查找或创建用户，
// 每次登录刷新用户名和头像
func (h *AuthHandler) GoogleCallback(c *gin.Context) {
	session := sessions.Default(c)
	savedState := session.Get("oauth_state")

	if savedState == nil || c.Query("state") != savedState.(string) {
		Error(c, http.StatusBadRequest, "Invalid state parameter")
		return
	}
	session.Delete("oauth_state")

	code := c.Query("code")
	if code == "" {
		Error(c, http.StatusBadRequest, "Authorization code missing")
		return
	}

	token, err := googleOauthConfig.Exchange(context.Background(), code)
	if err != nil {
		Error(c, http.StatusInternalServerError, "Failed to exchange access token")
		return
	}

	userInfo, err := getGoogleUserInfo(token.AccessToken)
	if err != nil {
		Error(c, http.StatusInternalServerError, "Failed to fetch user info")
		return
	}
	if !userInfo.VerifiedEmail {
		Error(c, http.StatusBadRequest, "Google email not verified")
		return
	}

	var user models.User
	err = db.DB.Where("google_id = ?", userInfo.ID).Or("email = ?", userInfo.Email).First(&user).Error
	if err != nil {
		// 新用户，自动注册
		user = models.User{
			GoogleID:  userInfo.ID,
			Username:  userInfo.Name,
			Email:     userInfo.Email,
			AvatarURL: userInfo.Picture,
		}
		if user.Username == "" {
			user.Username = strings.Split(userInfo.Email, "@")[0]
		}
		if err := db.DB.Create(&user).Error; err != nil {
			Error(c, http.StatusInternalServerError, "Failed to create user")
			return
		}
	} else {
		// 老用户：刷新展示信息，补绑 GoogleID
		user.GoogleID = userInfo.ID
		user.Username = userInfo.Name
		user.AvatarURL = userInfo.Picture
		db.DB.Save(&user)
	}

	session.Set("user_id", user.ID)
	redirect := "/"
	if returnTo, ok := session.Get("return_to").(string); ok && returnTo != "" {
		redirect = returnTo
		session.Delete("return_to")
	}
	session.Save()

	c.Redirect(http.StatusFound, redirect)
}

// getGoogleUserInfo 获取 Google 用户信息
func getGoogleUserInfo(accessToken string) (*GoogleUserInfo, error) {
	resp, err := http.Get("https://www.googleapis.com/oauth2/v2/userinfo?access_token=" + accessToken)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("userinfo request failed: %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	var userInfo GoogleUserInfo
	if err := json.Unmarshal(body, &userInfo); err != nil {
		return nil, err
	}
	return &userInfo, nil
}

// Logout 退出登录，清空会话
func (h *AuthHandler) Logout(c *gin.Context) {
	session := sessions.Default(c)
	session.Clear()
	if err := session.Save(); err != nil {
		Error(c, http.StatusInternalServerError, "Logout failed")
		return
	}
	Success(c, http.StatusOK, "Logged out successfully", nil)
}

// Status 报告当前认证状态，嵌入端轮询用
func (h *AuthHandler) Status(c *gin.Context) {
	user, authenticated := c.Get(middleware.CheckUserKey)
	data := gin.H{"authenticated": authenticated}
	if authenticated {
		data["user"] = user
	} else {
		data["user"] = nil
	}
	Success(c, http.StatusOK, "", data)
}
