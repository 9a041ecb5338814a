// Package model はドメインモデルを定義する。
package model

import "time"

// CommentStatus はコメントの公開状態を表す。
type CommentStatus string

const (
	// CommentStatusPublished は公開済みのコメントを示す。
	CommentStatusPublished CommentStatus = "published"
	// CommentStatusPending はモデレーション待ちのコメントを示す。
	CommentStatusPending CommentStatus = "pending"
	// CommentStatusHidden は管理者によって非表示にされたコメントを示す。
	CommentStatusHidden CommentStatus = "hidden"
	// CommentStatusDeleted は論理削除されたコメントを示す。
	CommentStatusDeleted CommentStatus = "deleted"
)

// Valid はステータスが定義済みの4値のいずれかであるかを返す。
func (s CommentStatus) Valid() bool {
	switch s {
	case CommentStatusPublished, CommentStatusPending, CommentStatusHidden, CommentStatusDeleted:
		return true
	}
	return false
}

// RoleSnapshot はコメント表示用に切り出したロール情報のスナップショット。
// ロールが後から変更・削除されてもコメントの表示は投稿時点の見た目を保つ。
type RoleSnapshot struct {
	Name              string  `json:"name"`
	Color             string  `json:"color"`
	Icon              *string `json:"icon"`
	IsDisplaySeparate bool    `json:"isDisplaySeparate"`
}

// Comment はウィジェットに表示されるコメントを表す。
// IDは作成時刻のUnixミリ秒から採番され、一意かつ時系列で単調増加する。
type Comment struct {
	ID           int64         `json:"id"`
	Author       string        `json:"author"`
	Avatar       string        `json:"avatar"`
	Text         string        `json:"text"`
	Date         time.Time     `json:"date"`
	UserID       string        `json:"userId"`
	IsAdmin      bool          `json:"isAdmin"`
	Status       CommentStatus `json:"status"`
	Role         *RoleSnapshot `json:"role,omitempty"`
	CustomPrefix *string       `json:"customPrefix,omitempty"`
	PrefixColor  *string       `json:"prefixColor,omitempty"`
	UpdatedAt    *time.Time    `json:"updatedAt,omitempty"`
}
