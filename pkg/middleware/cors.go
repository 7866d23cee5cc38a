package middleware

import (
	"net/http"

	"buy-log-backend/pkg/config"

	"github.com/go-chi/cors"
)

// CORS 创建CORS中间件
func CORS(cfg *config.Config) func(http.Handler) http.Handler {
	corsOptions := cors.Options{
		AllowedOrigins: cfg.AllowedOrigins,
		AllowedMethods: []string{
			http.MethodGet,
			http.MethodPost,
			http.MethodPut,
			http.MethodDelete,
			http.MethodOptions,
		},
		AllowedHeaders: []string{
			"Accept",
			"Authorization",
			"Content-Type",
			"X-Requested-With",
		},
		ExposedHeaders: []string{"X-Request-Id"},
		MaxAge:         300, // 5分钟
	}

	// AllowedOrigins 为 * 时不能携带凭据
	if !allowsAnyOrigin(cfg.AllowedOrigins) {
		corsOptions.AllowCredentials = true
	}

	return cors.Handler(corsOptions)
}

func allowsAnyOrigin(origins []string) bool {
	if len(origins) == 0 {
		return true
	}
	for _, origin := range origins {
		if origin == "*" {
			return true
		}
	}
	return false
}
