package middleware

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"buy-log-backend/pkg/apperrors"
	"buy-log-backend/pkg/models"
	"buy-log-backend/pkg/utils"
)

// ContextKey 用于在context中存储用户信息的键
type ContextKey string

const (
	UserContextKey ContextKey = "user"
)

// AuthMiddleware JWT认证中间件
func AuthMiddleware(jwtService *utils.JWTService) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			// 从Authorization头获取token
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				utils.WriteUnauthorizedResponse(w, "missing authorization header")
				return
			}

			// 检查Bearer前缀
			tokenString := strings.TrimSpace(strings.TrimPrefix(authHeader, "Bearer "))
			if tokenString == authHeader || tokenString == "" {
				utils.WriteUnauthorizedResponse(w, "invalid authorization header format")
				return
			}

			user, err := jwtService.ExtractUserFromToken(tokenString)
			if err != nil {
				fmt.Printf("❌ Auth middleware: %s %s rejected: %v\n", r.Method, r.URL.Path, err)
				utils.WriteUnauthorizedResponse(w, "invalid or expired token")
				return
			}

			// 将用户信息添加到请求context中
			ctx := WithUser(r.Context(), user)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// WithUser 把已认证用户放入 context
func WithUser(ctx context.Context, user *models.User) context.Context {
	return context.WithValue(ctx, UserContextKey, user)
}

// GetUserFromContext 从context中获取用户信息
func GetUserFromContext(ctx context.Context) (*models.User, bool) {
	user, ok := ctx.Value(UserContextKey).(*models.User)
	return user, ok
}

// RequireUser 要求用户必须已认证的辅助函数
func RequireUser(ctx context.Context) (*models.User, error) {
	user, ok := GetUserFromContext(ctx)
	if !ok || user == nil {
		return nil, apperrors.Unauthorized("user not authenticated")
	}
	return user, nil
}
