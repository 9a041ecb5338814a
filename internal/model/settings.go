package model

// WidgetSettings はウィジェット表示とモデレーションの設定を保持するシングルトン。
// 初回読み取り時にDefaultWidgetSettingsで遅延初期化される。
type WidgetSettings struct {
	Theme                string   `json:"theme"`
	BackgroundColor      string   `json:"backgroundColor"`
	TextColor            string   `json:"textColor"`
	AccentColor          string   `json:"accentColor"`
	BorderRadius         string   `json:"borderRadius"`
	EnableLikes          bool     `json:"enableLikes"`
	EnableReplies        bool     `json:"enableReplies"`
	EnableAttachments    bool     `json:"enableAttachments"`
	EnableGravatar       bool     `json:"enableGravatar"`
	AutoModeration       bool     `json:"autoModeration"`
	RequirePremoderation bool     `json:"requirePremoderation"`
	ModerationKeywords   []string `json:"moderationKeywords"`
}

// DefaultWidgetSettings はウィジェット設定の初期値を返す。
func DefaultWidgetSettings() *WidgetSettings {
	return &WidgetSettings{
		Theme:              "dark",
		BackgroundColor:    "#1a1a1a",
		TextColor:          "#ffffff",
		AccentColor:        "#6366f1",
		BorderRadius:       "8px",
		EnableLikes:        true,
		EnableReplies:      true,
		EnableGravatar:     true,
		ModerationKeywords: []string{},
	}
}

// WidgetSettingsUpdate はウィジェット設定の部分更新。nilのフィールドは変更しない。
type WidgetSettingsUpdate struct {
	Theme                *string  `json:"theme"`
	BackgroundColor      *string  `json:"backgroundColor"`
	TextColor            *string  `json:"textColor"`
	AccentColor          *string  `json:"accentColor"`
	BorderRadius         *string  `json:"borderRadius"`
	EnableLikes          *bool    `json:"enableLikes"`
	EnableReplies        *bool    `json:"enableReplies"`
	EnableAttachments    *bool    `json:"enableAttachments"`
	EnableGravatar       *bool    `json:"enableGravatar"`
	AutoModeration       *bool    `json:"autoModeration"`
	RequirePremoderation *bool    `json:"requirePremoderation"`
	ModerationKeywords   []string `json:"moderationKeywords"`
}

// Apply は部分更新をsettingsに浅いマージで適用する。
func (u *WidgetSettingsUpdate) Apply(s *WidgetSettings) {
	if u.Theme != nil {
		s.Theme = *u.Theme
	}
	if u.BackgroundColor != nil {
		s.BackgroundColor = *u.BackgroundColor
	}
	if u.TextColor != nil {
		s.TextColor = *u.TextColor
	}
	if u.AccentColor != nil {
		s.AccentColor = *u.AccentColor
	}
	if u.BorderRadius != nil {
		s.BorderRadius = *u.BorderRadius
	}
	if u.EnableLikes != nil {
		s.EnableLikes = *u.EnableLikes
	}
	if u.EnableReplies != nil {
		s.EnableReplies = *u.EnableReplies
	}
	if u.EnableAttachments != nil {
		s.EnableAttachments = *u.EnableAttachments
	}
	if u.EnableGravatar != nil {
		s.EnableGravatar = *u.EnableGravatar
	}
	if u.AutoModeration != nil {
		s.AutoModeration = *u.AutoModeration
	}
	if u.RequirePremoderation != nil {
		s.RequirePremoderation = *u.RequirePremoderation
	}
	if u.ModerationKeywords != nil {
		s.ModerationKeywords = u.ModerationKeywords
	}
}
