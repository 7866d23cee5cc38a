package utils

import (
	"fmt"
	"time"

	"buy-log-backend/pkg/models"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// TokenTypeAccess 唯一签发的令牌类型
const TokenTypeAccess = "access"

// JWTService JWT服务
type JWTService struct {
	secretKey []byte
	ttl       time.Duration
}

// NewJWTService 创建JWT服务
func NewJWTService(secretKey string, ttl time.Duration) *JWTService {
	return &JWTService{
		secretKey: []byte(secretKey),
		ttl:       ttl,
	}
}

// GenerateToken 生成访问令牌
func (j *JWTService) GenerateToken(userID int64, login string) (string, error) {
	now := time.Now()
	claims := &models.TokenClaims{
		UserID: userID,
		Login:  login,
		Type:   TokenTypeAccess,
		Exp:    now.Add(j.ttl).Unix(),
		Iat:    now.Unix(),
		ID:     uuid.NewString(),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenString, err := token.SignedString(j.secretKey)
	if err != nil {
		return "", fmt.Errorf("failed to generate access token: %w", err)
	}
	return tokenString, nil
}

// ValidateToken 验证令牌，只接受未过期的 access 令牌
func (j *JWTService) ValidateToken(tokenString string) (*models.TokenClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &models.TokenClaims{}, func(token *jwt.Token) (interface{}, error) {
		// 验证签名方法
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return j.secretKey, nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to parse token: %w", err)
	}

	claims, ok := token.Claims.(*models.TokenClaims)
	if !ok || !token.Valid {
		return nil, fmt.Errorf("invalid token claims")
	}

	if claims.Type != TokenTypeAccess {
		return nil, fmt.Errorf("invalid token type: %s", claims.Type)
	}

	// 检查是否过期
	if time.Now().Unix() > claims.Exp {
		return nil, fmt.Errorf("token expired")
	}

	if claims.UserID <= 0 {
		return nil, fmt.Errorf("token has no user")
	}

	return claims, nil
}

// ExtractUserFromToken 从令牌中提取用户信息
func (j *JWTService) ExtractUserFromToken(tokenString string) (*models.User, error) {
	claims, err := j.ValidateToken(tokenString)
	if err != nil {
		return nil, err
	}

	return &models.User{
		ID:    claims.UserID,
		Login: claims.Login,
	}, nil
}
