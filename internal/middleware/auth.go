package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"dropmail/backend/internal/auth"
)

// ownerKey 上下文中所有者标识的键
const ownerKey = "ownerID"

// OwnerAuth 所有者令牌认证中间件
type OwnerAuth struct {
	tokens *auth.Manager
	log    *zap.Logger
}

// NewOwnerAuth 创建所有者认证中间件
func NewOwnerAuth(tokens *auth.Manager, log *zap.Logger) *OwnerAuth {
	return &OwnerAuth{tokens: tokens, log: log}
}

// RequireOwner 要求携带有效的所有者令牌
func (oa *OwnerAuth) RequireOwner() gin.HandlerFunc {
	return func(c *gin.Context) {
		token := oa.extractToken(c)
		if token == "" {
			c.JSON(http.StatusUnauthorized, gin.H{
				"error": "owner token required",
			})
			c.Abort()
			return
		}

		ownerID, err := oa.tokens.Validate(token)
		if err != nil {
			oa.log.Warn("invalid owner token",
				zap.String("error", err.Error()),
				zap.String("ip", c.ClientIP()),
			)
			c.JSON(http.StatusUnauthorized, gin.H{
				"error": "invalid or expired token",
			})
			c.Abort()
			return
		}

		c.Set(ownerKey, ownerID)
		c.Next()
	}
}

// OptionalOwner 可选认证。没有令牌时放行，由处理器签发新所有者。
func (oa *OwnerAuth) OptionalOwner() gin.HandlerFunc {
	return func(c *gin.Context) {
		token := oa.extractToken(c)
		if token == "" {
			c.Next()
			return
		}

		ownerID, err := oa.tokens.Validate(token)
		if err != nil {
			// 带了令牌但无效,不能静默当作匿名
			c.JSON(http.StatusUnauthorized, gin.H{
				"error": "invalid or expired token",
			})
			c.Abort()
			return
		}

		c.Set(ownerKey, ownerID)
		c.Next()
	}
}

// OwnerID 从上下文取出已认证的所有者标识
func OwnerID(c *gin.Context) (string, bool) {
	value, ok := c.Get(ownerKey)
	if !ok {
		return "", false
	}
	ownerID, ok := value.(string)
	return ownerID, ok && ownerID != ""
}

// extractToken 从请求中提取所有者令牌
func (oa *OwnerAuth) extractToken(c *gin.Context) string {
	// 1. 从 Authorization header 提取
	authHeader := c.GetHeader("Authorization")
	if authHeader != "" {
		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) == 2 && parts[0] == "Bearer" {
			return parts[1]
		}
	}

	// 2. 从 query 参数提取(WebSocket 握手无法带自定义头)
	if token := c.Query("token"); token != "" {
		return token
	}

	return ""
}
