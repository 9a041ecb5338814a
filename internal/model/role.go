package model

import "time"

// Permissions はロールに紐づく権限フラグの集合。
type Permissions struct {
	Comment          bool `json:"comment"`
	EditOwn          bool `json:"editOwn"`
	DeleteOwn        bool `json:"deleteOwn"`
	AttachMedia      bool `json:"attachMedia"`
	BypassModeration bool `json:"bypassModeration"`
	Moderate         bool `json:"moderate"`
	AdminPanel       bool `json:"adminPanel"`
}

// Role はユーザーに付与できる表示用ロールを表す。
// IDは作成時刻のUnixミリ秒を文字列化したもの。
// Priorityが大きいほど優先され、ユーザーの「メインロール」として表示される。
type Role struct {
	ID                string      `json:"id"`
	Name              string      `json:"name"`
	Color             string      `json:"color"`
	Icon              *string     `json:"icon"`
	Permissions       Permissions `json:"permissions"`
	IsDisplaySeparate bool        `json:"isDisplaySeparate"`
	Priority          int         `json:"priority"`
	CreatedAt         time.Time   `json:"createdAt"`
	UpdatedAt         *time.Time  `json:"updatedAt,omitempty"`
}

// Snapshot はコメント埋め込み用のRoleSnapshotを生成する。
func (r *Role) Snapshot() *RoleSnapshot {
	if r == nil {
		return nil
	}
	return &RoleSnapshot{
		Name:              r.Name,
		Color:             r.Color,
		Icon:              r.Icon,
		IsDisplaySeparate: r.IsDisplaySeparate,
	}
}

// RoleInput はロール作成時の入力フィールド。
type RoleInput struct {
	Name              string
	Color             string
	Icon              *string
	Permissions       Permissions
	IsDisplaySeparate bool
	Priority          int
}

// RoleUpdate はロール部分更新のフィールド集合。nilのフィールドは変更しない。
type RoleUpdate struct {
	Name              *string
	Color             *string
	Icon              *string
	Permissions       *Permissions
	IsDisplaySeparate *bool
	Priority          *int
}
