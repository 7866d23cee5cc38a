package utils

import (
	"regexp"
	"strings"
	"unicode/utf8"

	"buy-log-backend/pkg/apperrors"
	"buy-log-backend/pkg/models"
)

// 字段长度限制（按字符计）
const (
	maxNameLength  = 30
	maxVolumeLen   = 10
	maxTagLength   = 20
	maxTags        = 10
	maxQuantity    = 100000
	maxPrice       = 100000000
	maxLoginLength = 64
)

var (
	// reValidName 只允许字母、数字和空白
	reValidName  = regexp.MustCompile(`^[\p{L}\p{N}\s]+$`)
	reValidLogin = regexp.MustCompile(`^[A-Za-z0-9_.-]+$`)
)

func validText(value string, maxLen int, pattern *regexp.Regexp) bool {
	n := utf8.RuneCountInString(value)
	if n == 0 || n > maxLen {
		return false
	}
	return pattern == nil || pattern.MatchString(value)
}

func validateTags(tags []string, tooMany, invalid string) error {
	if len(tags) > maxTags {
		return apperrors.Validation(tooMany)
	}
	for _, tag := range tags {
		if !validText(tag, maxTagLength, reValidName) {
			return apperrors.Validation(invalid)
		}
	}
	return nil
}

// ValidateCredentials 校验注册时的登录名和密码
func ValidateCredentials(req *models.UserRegisterRequest) error {
	req.Login = strings.TrimSpace(req.Login)
	if !validText(req.Login, maxLoginLength, reValidLogin) {
		return apperrors.Validation("invalid login")
	}
	if req.Password == "" {
		return apperrors.Validation("password is required")
	}
	return nil
}

// ValidateProduct 校验商品字段
func ValidateProduct(p *models.Product) error {
	if !validText(p.Name, maxNameLength, reValidName) {
		return apperrors.Validation("invalid name")
	}
	if !validText(p.Volume, maxVolumeLen, nil) {
		return apperrors.Validation("invalid volume")
	}
	if !validText(p.Brand, maxNameLength, reValidName) {
		return apperrors.Validation("invalid brand")
	}
	return validateTags(p.DefaultTags, "too many default tags", "invalid default tag")
}

// ValidatePurchase 校验购买记录字段
func ValidatePurchase(p *models.Purchase) error {
	if p.ProductID <= 0 {
		return apperrors.Validation("invalid product_id")
	}
	if p.Quantity < 1 || p.Quantity > maxQuantity {
		return apperrors.Validation("invalid quantity")
	}
	if p.Price < 1 || p.Price > maxPrice {
		return apperrors.Validation("invalid price")
	}
	if p.Date.IsZero() {
		return apperrors.Validation("invalid date")
	}
	if !validText(p.Store, maxNameLength, reValidName) {
		return apperrors.Validation("invalid store")
	}
	return validateTags(p.Tags, "too many tags", "invalid tag")
}
