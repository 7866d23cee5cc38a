package models

import (
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// User represents a registered account
type User struct {
	ID        int64     `json:"id" db:"id"`
	Login     string    `json:"login" db:"login"`
	Password  string    `json:"-" db:"password_hash"` // Never return password in JSON
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// UserRegisterRequest represents the request payload for user registration
type UserRegisterRequest struct {
	Login    string `json:"login"`
	Password string `json:"password"`
}

// UserLoginRequest represents the request payload for user login
type UserLoginRequest struct {
	Login    string `json:"login"`
	Password string `json:"password"`
}

// TokenResponse 注册和登录的响应
type TokenResponse struct {
	Token string `json:"token"`
}

// TokenClaims represents the JWT token claims
type TokenClaims struct {
	UserID int64  `json:"user_id"`
	Login  string `json:"login"`
	Type   string `json:"type"` // 只签发 "access"
	Exp    int64  `json:"exp"`
	Iat    int64  `json:"iat"`
	ID     string `json:"jti,omitempty"`
}

// GetExpirationTime implements jwt.Claims interface
func (c *TokenClaims) GetExpirationTime() (*jwt.NumericDate, error) {
	return jwt.NewNumericDate(time.Unix(c.Exp, 0)), nil
}

// GetIssuedAt implements jwt.Claims interface
func (c *TokenClaims) GetIssuedAt() (*jwt.NumericDate, error) {
	return jwt.NewNumericDate(time.Unix(c.Iat, 0)), nil
}

// GetNotBefore implements jwt.Claims interface
func (c *TokenClaims) GetNotBefore() (*jwt.NumericDate, error) {
	return nil, nil
}

// GetIssuer implements jwt.Claims interface
func (c *TokenClaims) GetIssuer() (string, error) {
	return "", nil
}

// GetSubject implements jwt.Claims interface
func (c *TokenClaims) GetSubject() (string, error) {
	return strconv.FormatInt(c.UserID, 10), nil
}

// GetAudience implements jwt.Claims interface
func (c *TokenClaims) GetAudience() (jwt.ClaimStrings, error) {
	return nil, nil
}
