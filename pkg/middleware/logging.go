package middleware

import (
	"fmt"
	"net/http"
	"time"

	"buy-log-backend/pkg/config"

	"github.com/go-chi/chi/v5/middleware"
)

// Logger 创建日志中间件：调试模式用 chi 默认日志，其余用 CustomLogger
func Logger(cfg *config.Config) func(http.Handler) http.Handler {
	if cfg.Debug {
		return middleware.Logger
	}
	return CustomLogger(cfg)
}

// CustomLogger 自定义日志中间件
func CustomLogger(cfg *config.Config) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

			next.ServeHTTP(ww, r)

			entry := requestLogEntry{
				method:    r.Method,
				path:      r.URL.Path,
				status:    ww.Status(),
				bytes:     ww.BytesWritten(),
				duration:  time.Since(start),
				requestID: middleware.GetReqID(r.Context()),
				ip:        r.RemoteAddr,
			}
			// 没有调用 WriteHeader 时按 200 处理
			if entry.status == 0 {
				entry.status = http.StatusOK
			}

			if cfg.IsProduction() {
				fmt.Println(entry.json())
			} else {
				fmt.Println(entry.colored())
			}
		})
	}
}

type requestLogEntry struct {
	method    string
	path      string
	status    int
	bytes     int
	duration  time.Duration
	requestID string
	ip        string
}

// json 生产环境：单行结构化日志
func (e requestLogEntry) json() string {
	return fmt.Sprintf(`{"time":%q,"method":%q,"path":%q,"status":%d,"bytes":%d,"duration":%q,"request_id":%q,"ip":%q}`,
		time.Now().Format(time.RFC3339), e.method, e.path, e.status, e.bytes, e.duration.String(), e.requestID, e.ip)
}

// colored 开发环境：彩色日志
func (e requestLogEntry) colored() string {
	return fmt.Sprintf("%s %s%s\033[0m \033[36m%s\033[0m %s%d\033[0m %s %s",
		time.Now().Format("15:04:05"),
		getMethodColor(e.method), e.method,
		e.path,
		getStatusColor(e.status), e.status,
		e.duration,
		e.requestID,
	)
}

// getStatusColor 根据HTTP状态码返回颜色代码
func getStatusColor(status int) string {
	switch {
	case status >= 200 && status < 300:
		return "\033[32m" // 绿色
	case status >= 300 && status < 400:
		return "\033[33m" // 黄色
	case status >= 400 && status < 500:
		return "\033[31m" // 红色
	case status >= 500:
		return "\033[35m" // 紫色
	default:
		return "\033[0m"
	}
}

// getMethodColor 根据HTTP方法返回颜色代码
func getMethodColor(method string) string {
	switch method {
	case http.MethodGet:
		return "\033[34m"
	case http.MethodPost:
		return "\033[32m"
	case http.MethodPut:
		return "\033[33m"
	case http.MethodDelete:
		return "\033[31m"
	default:
		return "\033[0m"
	}
}
