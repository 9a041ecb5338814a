package model

// OnlineSession はオンライン人数推定のための短命セッション。
// セッションIDはクライアントが生成して保持し、ハートビートごとに送信する。
// LastActivityはUnixミリ秒。タイムアウトを超えたセッションは読み取り時に破棄される。
type OnlineSession struct {
	UserID       string `json:"userId"`
	LastActivity int64  `json:"lastActivity"`
}
