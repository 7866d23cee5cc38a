package handlers

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"buy-log-backend/pkg/apperrors"
	"buy-log-backend/pkg/config"
	"buy-log-backend/pkg/database"
	"buy-log-backend/pkg/models"
	"buy-log-backend/pkg/utils"

	"golang.org/x/crypto/bcrypt"
)

// AuthHandler 认证处理器
type AuthHandler struct {
	config *config.Config
	db     database.DatabaseInterface
	jwt    *utils.JWTService
}

// NewAuthHandler 创建认证处理器
func NewAuthHandler(cfg *config.Config, db database.DatabaseInterface, jwtService *utils.JWTService) *AuthHandler {
	return &AuthHandler{config: cfg, db: db, jwt: jwtService}
}

// Register 用户注册
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req models.UserRegisterRequest
	if err := utils.ParseJSONBody(r, &req); err != nil {
		utils.WriteBadRequestResponse(w, "invalid request body")
		return
	}
	if err := utils.ValidateCredentials(&req); err != nil {
		utils.WriteAppError(w, err)
		return
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		utils.WriteAppError(w, fmt.Errorf("hash password: %w", err))
		return
	}

	user := &models.User{Login: req.Login, Password: string(hash)}
	if err := h.db.CreateUser(r.Context(), user); err != nil {
		if errors.Is(err, database.ErrAlreadyExists) {
			utils.WriteAppError(w, apperrors.Conflict("login already taken"))
			return
		}
		utils.WriteAppError(w, err)
		return
	}
	fmt.Printf("✅ Registered user %d (%s)\n", user.ID, user.Login)

	h.writeToken(w, user)
}

// Login 用户登录
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req models.UserLoginRequest
	if err := utils.ParseJSONBody(r, &req); err != nil {
		utils.WriteBadRequestResponse(w, "invalid request body")
		return
	}

	user, err := h.db.GetUserByLogin(r.Context(), req.Login)
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			utils.WriteUnauthorizedResponse(w, "invalid credentials")
			return
		}
		utils.WriteAppError(w, err)
		return
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(req.Password)); err != nil {
		utils.WriteUnauthorizedResponse(w, "invalid credentials")
		return
	}

	h.writeToken(w, user)
}

func (h *AuthHandler) writeToken(w http.ResponseWriter, user *models.User) {
	token, err := h.jwt.GenerateToken(user.ID, user.Login)
	if err != nil {
		utils.WriteAppError(w, err)
		return
	}
	utils.WriteSuccessResponse(w, models.TokenResponse{Token: token})
}

// HealthCheck 健康检查
func (h *AuthHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	dbStatus := "healthy"
	status := http.StatusOK
	if err := h.db.HealthCheck(); err != nil {
		dbStatus = "unhealthy: " + err.Error()
		status = http.StatusServiceUnavailable
	}

	utils.WriteJSONResponse(w, status, map[string]interface{}{
		"service":     "buy-log-backend",
		"environment": h.config.Environment,
		"database":    h.getDatabaseType(),
		"db_status":   dbStatus,
		"timestamp":   time.Now().Unix(),
	})
}

// getDatabaseType 获取数据库类型
func (h *AuthHandler) getDatabaseType() string {
	if h.config.UseLocalDB {
		return "sqlite"
	}
	return "postgresql"
}
