package middleware

import (
	"net/http"
	"strings"
)

// Normalize 规范化代理转发来的请求
//
// 去掉路径两端的空白和末尾的斜杠（"/products/" 与 "/products" 走同一路由），
// 并从 X-Forwarded-* 头恢复 scheme 和 host。
func Normalize() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			path := strings.TrimSpace(r.URL.Path)
			if len(path) > 1 {
				path = strings.TrimRight(path, "/")
				if path == "" {
					path = "/"
				}
			}
			if path != r.URL.Path {
				r.URL.Path = path
				r.URL.RawPath = ""
			}

			if proto := r.Header.Get("X-Forwarded-Proto"); proto != "" {
				r.URL.Scheme = proto
			}
			if host := r.Header.Get("X-Forwarded-Host"); host != "" {
				r.Host = host
			}
			next.ServeHTTP(w, r)
		})
	}
}
