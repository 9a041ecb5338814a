package model

import "time"

// User はコメントウィジェットの利用ユーザーを表す。
// IDは外部IdPごとにプレフィックスを付与した安定的な文字列
// （例: "google_123", "telegram_456"）。
type User struct {
	ID           string     `json:"id"`
	Username     string     `json:"username"`
	FirstName    string     `json:"firstName,omitempty"`
	LastName     string     `json:"lastName,omitempty"`
	Email        string     `json:"email,omitempty"`
	Avatar       string     `json:"avatar,omitempty"`
	Provider     string     `json:"provider"`
	CreatedAt    time.Time  `json:"createdAt"`
	UpdatedAt    time.Time  `json:"updatedAt"`
	IsBanned     bool       `json:"isBanned"`
	BannedAt     *time.Time `json:"bannedAt"`
	IPAddresses  []string   `json:"ipAddresses"`
	LastIP       string     `json:"lastIP,omitempty"`
	CustomPrefix *string    `json:"customPrefix"`
	PrefixColor  *string    `json:"prefixColor"`
}

// ProfileUpdate はプロフィール部分更新のフィールド集合。
// nilのフィールドは変更しない。
type ProfileUpdate struct {
	Username *string
	Avatar   *string
	Email    *string
}
