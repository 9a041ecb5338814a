// Package security はアプリケーションのセキュリティ機能を提供する。
//
// CommentSanitizerService はコメント本文をサニタイズし、
// スクリプト注入などのセキュリティリスクからウィジェット閲覧者を保護する。
// bluemondayライブラリを使用した許可リストベースのポリシーで、
// 最小限のインライン装飾タグのみを通過させる。
package security

import (
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

// CommentSanitizerService はコメント本文のサニタイズ機能のインターフェースを定義する。
// コメント保存前に使用される。
type CommentSanitizerService interface {
	// Sanitize はコメント本文をサニタイズして安全なテキストを返す。
	// 許可タグ（b, i, strong, em, br）のみを通過させ、
	// script, iframe, styleタグおよびon*イベント属性を除去する。
	// 前後の空白は取り除く。
	// 同一入力に対して常に同一出力を返す（冪等）。
	Sanitize(raw string) string
}

// commentSanitizer はCommentSanitizerServiceの実装。
// bluemondayのポリシーを保持し、スレッドセーフにサニタイズ処理を行う。
type commentSanitizer struct {
	policy *bluemonday.Policy
}

// NewCommentSanitizer はCommentSanitizerServiceの新しいインスタンスを生成する。
// ポリシーの内容:
//   - 許可タグ: b, i, strong, em, br
//   - 禁止タグ: script, iframe, style および全てのon*イベント属性
//     （許可リストに含めないことで自動的に除去される）
//   - リンク・画像はコメント本文では許可しない
func NewCommentSanitizer() *commentSanitizer {
	p := bluemonday.NewPolicy()
	p.AllowElements("b", "i", "strong", "em", "br")

	return &commentSanitizer{
		policy: p,
	}
}

// Sanitize はコメント本文をサニタイズして安全なテキストを返す。
func (s *commentSanitizer) Sanitize(raw string) string {
	return strings.TrimSpace(s.policy.Sanitize(raw))
}
