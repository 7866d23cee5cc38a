package handlers

import (
	"errors"
	"net/http"

	"buy-log-backend/pkg/apperrors"
	"buy-log-backend/pkg/database"
	"buy-log-backend/pkg/utils"
)

// writeStoreError 把存储层错误转换为响应；不存在和不属于调用方一律返回 404
func writeStoreError(w http.ResponseWriter, err error, notFoundMessage string) {
	switch {
	case errors.Is(err, database.ErrNotFound):
		utils.WriteAppError(w, apperrors.NotFound(notFoundMessage))
	case errors.Is(err, database.ErrReferenced):
		utils.WriteAppError(w, apperrors.Conflict("resource is still referenced"))
	default:
		utils.WriteAppError(w, err)
	}
}
