package utils

import (
	"encoding/json"
	"fmt"
	"net/http"

	"buy-log-backend/pkg/apperrors"
)

// APIResponse 错误响应结构
type APIResponse struct {
	Success bool      `json:"success"`
	Error   *APIError `json:"error,omitempty"`
}

// APIError 错误信息结构
type APIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// WriteJSONResponse 写入JSON响应（成功响应直接输出数据本身）
func WriteJSONResponse(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		fmt.Printf("❌ Failed to encode response: %v\n", err)
	}
}

// WriteSuccessResponse 写入200响应
func WriteSuccessResponse(w http.ResponseWriter, data interface{}) {
	WriteJSONResponse(w, http.StatusOK, data)
}

// WriteNoContentResponse 写入204响应
func WriteNoContentResponse(w http.ResponseWriter) {
	w.WriteHeader(http.StatusNoContent)
}

// WriteErrorResponseWithCode 写入带错误代码的错误响应
func WriteErrorResponseWithCode(w http.ResponseWriter, statusCode int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	response := APIResponse{
		Success: false,
		Error: &APIError{
			Code:    code,
			Message: message,
		},
	}

	if err := json.NewEncoder(w).Encode(response); err != nil {
		fmt.Printf("❌ Failed to encode error response: %v\n", err)
	}
}

// WriteAppError 按业务错误代码写入错误响应，未知错误返回500且不暴露细节
func WriteAppError(w http.ResponseWriter, err error) {
	appErr := apperrors.From(err)
	if appErr == nil {
		fmt.Printf("❌ Internal error: %v\n", err)
		WriteInternalServerErrorResponse(w, "internal server error")
		return
	}
	if appErr.Code == apperrors.CodeInternal {
		fmt.Printf("❌ Internal error: %v\n", err)
	}
	WriteErrorResponseWithCode(w, appErr.HTTPStatus(), string(appErr.Code), appErr.Message)
}

// WriteBadRequestResponse 写入400错误响应
func WriteBadRequestResponse(w http.ResponseWriter, message string) {
	WriteErrorResponseWithCode(w, http.StatusBadRequest, "BAD_REQUEST", message)
}

// WriteUnauthorizedResponse 写入401错误响应
func WriteUnauthorizedResponse(w http.ResponseWriter, message string) {
	WriteErrorResponseWithCode(w, http.StatusUnauthorized, string(apperrors.CodeUnauthorized), message)
}

// WriteNotFoundResponse 写入404错误响应
func WriteNotFoundResponse(w http.ResponseWriter, message string) {
	WriteErrorResponseWithCode(w, http.StatusNotFound, string(apperrors.CodeNotFound), message)
}

// WriteMethodNotAllowedResponse 写入405错误响应
func WriteMethodNotAllowedResponse(w http.ResponseWriter, message string) {
	WriteErrorResponseWithCode(w, http.StatusMethodNotAllowed, string(apperrors.CodeMethodNotAllowed), message)
}

// WriteInternalServerErrorResponse 写入500错误响应
func WriteInternalServerErrorResponse(w http.ResponseWriter, message string) {
	WriteErrorResponseWithCode(w, http.StatusInternalServerError, string(apperrors.CodeInternal), message)
}

// ParseJSONBody 解析JSON请求体
func ParseJSONBody(r *http.Request, v interface{}) error {
	defer r.Body.Close()
	return json.NewDecoder(r.Body).Decode(v)
}
