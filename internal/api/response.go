package api

import (
	"encoding/json"
	"net/http"

	apperrors "sudooom.im.messaging/internal/errors"
)

// errorBody 统一错误响应体
type errorBody struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError 输出业务错误，错误码映射到 HTTP 状态
func writeError(w http.ResponseWriter, err error) {
	code := apperrors.GetCode(err)
	writeJSON(w, httpStatus(code), errorBody{
		Code:    code,
		Message: apperrors.GetMessage(err),
	})
}

func httpStatus(code int) int {
	switch code {
	case apperrors.CodeSelfConversation,
		apperrors.CodeEmptyContent,
		apperrors.CodeContentTooLong:
		return http.StatusBadRequest
	case apperrors.CodeCredentialMissing,
		apperrors.CodeCredentialInvalid:
		return http.StatusUnauthorized
	case apperrors.CodeNotAParticipant,
		apperrors.CodeAccountInactive:
		return http.StatusForbidden
	case apperrors.CodeUnknownParticipant,
		apperrors.CodeConversationNotFound:
		return http.StatusNotFound
	case apperrors.CodeStoreUnavailable,
		apperrors.CodeFanoutUnreachable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
