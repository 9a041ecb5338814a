package model

import "fmt"

// APIError は統一エラーフォーマットを表す。
// HTTPレスポンスでは`{"error": Message}`のエンベロープで返す。
type APIError struct {
	Code    string // エラーコード
	Message string // クライアントに返すエラーメッセージ
	Status  int    // 対応するHTTPステータスコード
}

// Error はerrorインターフェースを実装する。
func (e *APIError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// 定義済みエラーコード
const (
	ErrCodeUnauthorized    = "UNAUTHORIZED"
	ErrCodeForbidden       = "FORBIDDEN"
	ErrCodeBanned          = "BANNED"
	ErrCodeValidation      = "VALIDATION"
	ErrCodeCommentNotFound = "COMMENT_NOT_FOUND"
	ErrCodeRoleNotFound    = "ROLE_NOT_FOUND"
)

// NewUnauthorizedError は認証エラーを生成する。
func NewUnauthorizedError() *APIError {
	return &APIError{
		Code:    ErrCodeUnauthorized,
		Message: "Unauthorized",
		Status:  401,
	}
}

// NewAdminRequiredError は管理者権限が必要な操作への認可エラーを生成する。
func NewAdminRequiredError() *APIError {
	return &APIError{
		Code:    ErrCodeForbidden,
		Message: "Forbidden. Admin access required.",
		Status:  403,
	}
}

// NewBannedError はBANされたユーザーのアクセス拒否エラーを生成する。
func NewBannedError() *APIError {
	return &APIError{
		Code:    ErrCodeBanned,
		Message: "Your account has been banned",
		Status:  403,
	}
}

// NewValidationError は入力検証エラーを生成する。
func NewValidationError(message string) *APIError {
	return &APIError{
		Code:    ErrCodeValidation,
		Message: message,
		Status:  400,
	}
}

// NewCommentNotFoundError はコメント未検出エラーを生成する。
func NewCommentNotFoundError() *APIError {
	return &APIError{
		Code:    ErrCodeCommentNotFound,
		Message: "Comment not found",
		Status:  404,
	}
}

// NewRoleNotFoundError はロール未検出エラーを生成する。
func NewRoleNotFoundError() *APIError {
	return &APIError{
		Code:    ErrCodeRoleNotFound,
		Message: "Role not found",
		Status:  404,
	}
}
