// Package auth は認証機能を提供する。
// Telegramログインウィジェットの検証、GoogleサインインのIDトークン解析、
// 不透明トークンの発行・検証、および管理者ログインを含む。
//
// トークンは署名のないbase64エンコードJSONペイロード（明示的な設計判断）。
// 有効期限はペイロードのexpフィールド（Unixミリ秒）で管理する。
package auth

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"time"
)

// TokenPayload は不透明トークンに格納するペイロード。
type TokenPayload struct {
	ID        string `json:"id,omitempty"`
	Username  string `json:"username,omitempty"`
	FirstName string `json:"firstName,omitempty"`
	LastName  string `json:"lastName,omitempty"`
	PhotoURL  string `json:"photoUrl,omitempty"`
	Provider  string `json:"provider,omitempty"`
	Email     string `json:"email,omitempty"`
	Role      string `json:"role,omitempty"`
	Exp       int64  `json:"exp"`
}

// EncodeToken はペイロードをbase64エンコードJSONのトークンへ変換する。
func EncodeToken(payload TokenPayload) string {
	data, err := json.Marshal(payload)
	if err != nil {
		// TokenPayloadは常にシリアライズ可能
		return ""
	}
	return base64.StdEncoding.EncodeToString(data)
}

// DecodeToken はトークンを復号してペイロードを返す。
// 形式不正または期限切れの場合はエラーを返す。
func DecodeToken(token string, now time.Time) (*TokenPayload, error) {
	data, err := base64.StdEncoding.DecodeString(token)
	if err != nil {
		return nil, fmt.Errorf("トークンのデコードに失敗しました: %w", err)
	}

	var payload TokenPayload
	if err := json.Unmarshal(data, &payload); err != nil {
		return nil, fmt.Errorf("トークンペイロードのパースに失敗しました: %w", err)
	}

	if payload.Exp < now.UnixMilli() {
		return nil, fmt.Errorf("トークンの有効期限が切れています")
	}
	return &payload, nil
}
