package handler

import (
	"crypto/subtle"
	"net/http"
	"time"

	"hailuo-batch/app/auth"
	"hailuo-batch/app/config"
	"hailuo-batch/app/utils"

	"github.com/gin-gonic/gin"
)

// AuthHandler 认证处理器
type AuthHandler struct {
	config     *config.Config
	jwtService *auth.JWTService
}

// NewAuthHandler 创建认证处理器
func NewAuthHandler(cfg *config.Config, jwtService *auth.JWTService) *AuthHandler {
	return &AuthHandler{
		config:     cfg,
		jwtService: jwtService,
	}
}

// LoginRequest 登录请求结构
type LoginRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// LoginResponse 登录响应结构
type LoginResponse struct {
	Token    string `json:"token"`
	Username string `json:"username"`
	ExpireAt int64  `json:"expire_at"`
}

// Login 使用配置的账号登录并签发令牌
func (h *AuthHandler) Login(c *gin.Context) {
	if h.config.Auth.PasswordHash == "" {
		fail(c, http.StatusForbidden, "未配置登录账号，请使用 token 命令签发令牌")
		return
	}

	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, "请求参数错误: "+err.Error())
		return
	}

	userOK := subtle.ConstantTimeCompare([]byte(req.Username), []byte(h.config.Auth.Username)) == 1
	if !utils.VerifyPassword(req.Password, h.config.Auth.PasswordHash) || !userOK {
		fail(c, http.StatusUnauthorized, "用户名或密码错误")
		return
	}

	ttl := time.Duration(h.config.JWT.ExpireTime) * time.Hour
	token, err := h.jwtService.GenerateToken(req.Username, ttl)
	if err != nil {
		fail(c, http.StatusInternalServerError, "生成令牌失败")
		return
	}

	success(c, LoginResponse{
		Token:    token,
		Username: req.Username,
		ExpireAt: time.Now().Add(ttl).Unix(),
	}, "登录成功")
}
