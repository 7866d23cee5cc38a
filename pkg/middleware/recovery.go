package middleware

import (
	"fmt"
	"net/http"
	"runtime/debug"

	"buy-log-backend/pkg/config"
	"buy-log-backend/pkg/utils"
)

// Recovery 恢复中间件，处理panic并返回统一的错误响应
func Recovery(cfg *config.Config) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				rec := recover()
				if rec == nil {
					return
				}
				if rec == http.ErrAbortHandler {
					panic(rec)
				}

				fmt.Printf("❌ PANIC: %v\n", rec)
				fmt.Printf("📍 Stack trace:\n%s\n", debug.Stack())

				message := "internal server error"
				if cfg.IsDevelopment() {
					// 开发环境：返回panic内容
					message = fmt.Sprintf("internal server error: %v", rec)
				}
				utils.WriteInternalServerErrorResponse(w, message)
			}()

			next.ServeHTTP(w, r)
		})
	}
}
