package middleware

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"
)

type verifyErrResp struct {
	Error string `json:"error"`
}

type VerifyClaims struct {
	UserID   uint64 `json:"userId"`
	Username string `json:"username"`
	Type     string `json:"type"` // "access"
}

// Claims 与 auth 服务签发的 access token 一致
type Claims struct {
	UserID   uint64 `json:"sub"`
	Username string `json:"username"`
	Type     string `json:"typ"`
	jwt.RegisteredClaims
}

var errNotAccessToken = errors.New("access token required")

// AuthConfig Secret 非空时本地校验 HS256 token，否则调用 {Path}/v1/auth/verify
type AuthConfig struct {
	Path   string
	Secret string
}

func AuthMiddleware(cfg AuthConfig, log *zap.Logger) gin.HandlerFunc {
	if log == nil {
		log = zap.NewNop()
	}
	if cfg.Secret != "" {
		return localAuth([]byte(cfg.Secret))
	}
	return remoteAuth(cfg.Path, log)
}

func localAuth(secret []byte) gin.HandlerFunc {
	return func(c *gin.Context) {
		tokenString := extractToken(c)
		if tokenString == "" {
			abortUnauthenticated(c, "Authorization header is missing or invalid")
			return
		}
		claims, err := ParseAccessToken(tokenString, secret)
		if err != nil {
			abortUnauthenticated(c, err.Error())
			return
		}
		c.Set("userId", claims.UserID)
		c.Set("username", claims.Username)
		c.Next()
	}
}

// ParseAccessToken 只接受 HS256 签名的 access token
func ParseAccessToken(tokenString string, secret []byte) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		return secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return nil, err
	}
	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, jwt.ErrTokenInvalidClaims
	}
	if claims.Type != "" && claims.Type != "access" {
		return nil, errNotAccessToken
	}
	return claims, nil
}

// authBaseURL 不要带路径，例如 http://localhost:3001
func remoteAuth(authBaseURL string, log *zap.Logger) gin.HandlerFunc {
	client := &http.Client{}

	// 统一拼接 verify URL（避免 double slash）
	verifyURL := strings.TrimRight(authBaseURL, "/") + "/v1/auth/verify"

	return func(c *gin.Context) {
		tokenString := extractToken(c)
		if tokenString == "" {
			abortUnauthenticated(c, "Authorization header is missing or invalid")
			return
		}

		ctx, cancel := context.WithTimeout(c.Request.Context(), 1200*time.Millisecond)
		defer cancel()

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, verifyURL, bytes.NewReader([]byte("{}")))
		if err != nil {
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"code": "INTERNAL", "message": "build verify request failed"})
			return
		}
		req.Header.Set("Authorization", "Bearer "+tokenString)
		req.Header.Set("Content-Type", "application/json")

		resp, err := client.Do(req)
		if err != nil {
			// 这里包含超时：context deadline exceeded
			log.Warn("auth_verify_failed", zap.String("url", verifyURL), zap.Error(err))
			c.AbortWithStatusJSON(http.StatusBadGateway, gin.H{
				"code":    "AUTH_UPSTREAM_ERROR",
				"message": "auth-service verify failed",
			})
			return
		}
		defer resp.Body.Close()

		if resp.StatusCode == http.StatusUnauthorized {
			var e verifyErrResp
			_ = json.NewDecoder(resp.Body).Decode(&e) // 尽力解析错误信息
			msg := e.Error
			if msg == "" {
				msg = "invalid token"
			}
			abortUnauthenticated(c, msg)
			return
		}
		if resp.StatusCode != http.StatusOK {
			c.AbortWithStatusJSON(http.StatusBadGateway, gin.H{
				"code":    "AUTH_UPSTREAM_ERROR",
				"message": "auth-service verify non-200",
			})
			return
		}

		var claims VerifyClaims
		if err := json.NewDecoder(resp.Body).Decode(&claims); err != nil {
			c.AbortWithStatusJSON(http.StatusBadGateway, gin.H{
				"code":    "AUTH_UPSTREAM_ERROR",
				"message": "invalid verify response",
			})
			return
		}
		if claims.Type != "" && claims.Type != "access" {
			abortUnauthenticated(c, errNotAccessToken.Error())
			return
		}

		c.Set("userId", claims.UserID)
		c.Set("username", claims.Username)
		c.Next()
	}
}

func abortUnauthenticated(c *gin.Context, msg string) {
	c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
		"code":    "UNAUTHENTICATED",
		"message": msg,
	})
}

// 先看 Authorization 头；浏览器 WebSocket 无法自定义 Header，允许从 ?token= 获取
func extractToken(c *gin.Context) string {
	if t := extractBearer(c.Request.Header.Get("Authorization")); t != "" {
		return t
	}
	return strings.TrimSpace(c.Query("token"))
}

func extractBearer(header string) string {
	if header == "" {
		return ""
	}
	// 处理 "Bearer" 前缀（大小写不敏感）
	const prefix = "Bearer "
	if len(header) > len(prefix) && strings.EqualFold(header[:len(prefix)], prefix) {
		return strings.TrimSpace(header[len(prefix):])
	}
	return ""
}
