package middleware

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/Mimi-by-typh/lukavaka/internal/model"
)

// errorResponseBody はAPIエラーレスポンスの統一フォーマット。
// クライアントには`{"error": "..."}`のエンベロープで返す。
type errorResponseBody struct {
	Error string `json:"error"`
}

// WriteErrorResponse は統一エラーフォーマットでHTTPエラーレスポンスを書き込む。
// すべてのAPIエンドポイントで一貫したエラーレスポンスを提供する。
func WriteErrorResponse(w http.ResponseWriter, statusCode int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(errorResponseBody{Error: message})
}

// WriteAPIError はエラーを適切なステータスコードとメッセージに変換して書き込む。
// model.APIError以外のエラーは詳細を隠し、一般的な500レスポンスを返す。
func WriteAPIError(w http.ResponseWriter, err error) {
	var apiErr *model.APIError
	if errors.As(err, &apiErr) {
		WriteErrorResponse(w, apiErr.Status, apiErr.Message)
		return
	}
	WriteInternalServerError(w)
}

// WriteInternalServerError は内部サーバーエラーの統一レスポンスを書き込む。
// 詳細はログのみに記録し、ユーザーには一般的なメッセージを返す。
func WriteInternalServerError(w http.ResponseWriter) {
	WriteErrorResponse(w, http.StatusInternalServerError, "Internal server error")
}
