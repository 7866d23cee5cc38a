package handler

import (
	"fmt"
	"net/http"
	"sync"

	"buy-log-backend/pkg/config"
	"buy-log-backend/pkg/database"
	"buy-log-backend/pkg/groups"
	"buy-log-backend/pkg/handlers"
	customMiddleware "buy-log-backend/pkg/middleware"
	"buy-log-backend/pkg/utils"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

var (
	routerOnce   sync.Once
	cachedRouter http.Handler
	routerErr    error
)

// Handler 是Serverless函数的入口点
// 路由器和数据库连接在同一个实例内复用
func Handler(w http.ResponseWriter, r *http.Request) {
	routerOnce.Do(func() {
		cfg, err := config.GetCached()
		if err != nil {
			routerErr = err
			return
		}
		if err := cfg.Validate(); err != nil {
			routerErr = err
			return
		}

		db, err := database.GetDatabase(DatabaseConfigFrom(cfg))
		if err != nil {
			routerErr = err
			return
		}
		cachedRouter = NewRouter(cfg, db)
	})

	if routerErr != nil {
		fmt.Printf("❌ Startup failed: %v\n", routerErr)
		utils.WriteInternalServerErrorResponse(w, "service unavailable")
		return
	}
	cachedRouter.ServeHTTP(w, r)
}

// DatabaseConfigFrom 从应用配置生成数据库配置
func DatabaseConfigFrom(cfg *config.Config) database.DatabaseConfig {
	return database.DatabaseConfig{
		UseLocalDB:  cfg.UseLocalDB,
		SQLitePath:  cfg.SQLitePath,
		PostgresDSN: cfg.PostgresDSN,
	}
}

// NewRouter 创建完整的Chi路由器
func NewRouter(cfg *config.Config, db database.DatabaseInterface) http.Handler {
	router := chi.NewRouter()
	setupMiddleware(router, cfg)
	setupRoutes(router, cfg, db)
	return router
}

// setupMiddleware 设置全局中间件
func setupMiddleware(router *chi.Mux, cfg *config.Config) {
	// 基础中间件
	router.Use(middleware.RequestID)
	router.Use(middleware.RealIP)
	router.Use(customMiddleware.Normalize())
	router.Use(customMiddleware.Logger(cfg))
	router.Use(customMiddleware.Recovery(cfg))

	// CORS中间件
	router.Use(customMiddleware.CORS(cfg))

	router.Use(middleware.Timeout(cfg.RequestTimeout))
	router.Use(customMiddleware.MaxBodySize(cfg.MaxBodyBytes))
	router.Use(customMiddleware.ContentTypeJSON)

	// 压缩中间件
	router.Use(middleware.Compress(5))

	// 开发环境额外中间件
	if cfg.IsDevelopment() {
		router.Use(middleware.Heartbeat("/ping"))
	}
}

// setupRoutes 设置所有API路由
func setupRoutes(router *chi.Mux, cfg *config.Config, db database.DatabaseInterface) {
	jwtService := utils.NewJWTService(cfg.JWTSecret, cfg.TokenTTL)
	groupService := groups.NewService(db)

	authHandler := handlers.NewAuthHandler(cfg, db, jwtService)
	productsHandler := handlers.NewProductsHandler(db, groupService)
	purchasesHandler := handlers.NewPurchasesHandler(db, groupService)
	groupHandler := handlers.NewGroupHandler(groupService)
	inviteHandler := handlers.NewInviteHandler(groupService)

	// 健康检查端点
	router.Get("/health", authHandler.HealthCheck)

	// 数据库连接池状态端点（调试用）
	if cfg.IsDevelopment() {
		router.Get("/debug/db-pool", func(w http.ResponseWriter, r *http.Request) {
			utils.WriteSuccessResponse(w, database.GetConnectionStats())
		})
	}

	// 公开路由（不需要认证）
	router.Post("/register", authHandler.Register)
	router.Post("/login", authHandler.Login)

	// 需要认证的路由
	router.Group(func(r chi.Router) {
		r.Use(customMiddleware.AuthMiddleware(jwtService))

		r.Route("/products", func(r chi.Router) {
			r.Get("/", productsHandler.List)
			r.Post("/", productsHandler.Create)
			r.Put("/", productsHandler.Update)
			r.Delete("/", productsHandler.Delete)
		})

		r.Route("/purchases", func(r chi.Router) {
			r.Get("/", purchasesHandler.List)
			r.Post("/", purchasesHandler.Create)
			r.Delete("/", purchasesHandler.Delete)
		})

		r.Route("/group", func(r chi.Router) {
			r.Get("/", groupHandler.Get)
			r.Delete("/", groupHandler.Leave)
		})

		r.Route("/invite", func(r chi.Router) {
			r.Get("/", inviteHandler.List)
			r.Post("/", inviteHandler.Send)
		})
	})

	// 404处理
	router.NotFound(func(w http.ResponseWriter, r *http.Request) {
		utils.WriteNotFoundResponse(w, fmt.Sprintf("route not found: %s %s", r.Method, r.URL.Path))
	})

	// 405处理
	router.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		utils.WriteMethodNotAllowedResponse(w, fmt.Sprintf("method %s not allowed for %s", r.Method, r.URL.Path))
	})
}
