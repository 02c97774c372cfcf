package handler

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/AdventureDe/LinkIM/message/errs"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const (
	RequestIDHeader = "X-Request-ID"

	ctxRequestID = "requestID"
	ctxUserID    = "userID"
	ctxRole      = "role"
)

// RequestID 透传或生成请求 id
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(RequestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}
		c.Set(ctxRequestID, id)
		c.Header(RequestIDHeader, id)
		c.Next()
	}
}

// JWTAuth 校验 Bearer token，token 由用户服务签发（HS256，claims 里有 userID）
func JWTAuth(secret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		raw := strings.TrimPrefix(c.GetHeader("Authorization"), "Bearer ")
		if raw == "" {
			abortUnauthorized(c, "missing token")
			return
		}
		claims := jwt.MapClaims{}
		_, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (interface{}, error) {
			return []byte(secret), nil
		}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
		if err != nil {
			abortUnauthorized(c, "invalid token")
			return
		}
		userID, ok := claimUserID(claims)
		if !ok {
			abortUnauthorized(c, "invalid token")
			return
		}
		c.Set(ctxUserID, userID)
		if role, ok := claims["role"].(string); ok {
			c.Set(ctxRole, role)
		}
		c.Next()
	}
}

// RequireAdmin 只允许 role=admin 的 token
func RequireAdmin() gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.GetString(ctxRole) != "admin" {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
				"code":  1,
				"kind":  errs.KindPermissionDenied,
				"error": "admin only",
			})
			return
		}
		c.Next()
	}
}

func claimUserID(claims jwt.MapClaims) (int64, bool) {
	switch v := claims["userID"].(type) {
	case string:
		id, err := strconv.ParseInt(v, 10, 64)
		return id, err == nil && id > 0
	case float64:
		return int64(v), v > 0
	default:
		return 0, false
	}
}

func abortUnauthorized(c *gin.Context, msg string) {
	c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"code": 1, "error": msg})
}

// CurrentUserID 鉴权中间件写入的用户 id
func CurrentUserID(c *gin.Context) int64 {
	return c.GetInt64(ctxUserID)
}
