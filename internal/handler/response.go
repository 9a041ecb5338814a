// Package handler はAPIエンドポイントのHTTPハンドラーを提供する。
package handler

import (
	"encoding/json"
	"net/http"
)

// writeJSON はJSONレスポンスを書き込む。
func writeJSON(w http.ResponseWriter, statusCode int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(v)
}

// decodeJSONBody はリクエストボディをJSONとして解析する。
func decodeJSONBody(r *http.Request, dest any) error {
	return json.NewDecoder(r.Body).Decode(dest)
}
