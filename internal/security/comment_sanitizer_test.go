package security

import (
	"strings"
	"testing"
)

// TestSanitize_RemovesScriptTags はscriptタグが除去されることを検証する。
func TestSanitize_RemovesScriptTags(t *testing.T) {
	s := NewCommentSanitizer()

	got := s.Sanitize(`Hello <script>alert("xss")</script>world`)

	if strings.Contains(got, "<script") {
		t.Errorf("sanitized output should not contain script tag: %q", got)
	}
	if !strings.Contains(got, "Hello") || !strings.Contains(got, "world") {
		t.Errorf("sanitized output should keep text content: %q", got)
	}
}

// TestSanitize_RemovesEventHandlers はon*イベント属性が除去されることを検証する。
func TestSanitize_RemovesEventHandlers(t *testing.T) {
	s := NewCommentSanitizer()

	got := s.Sanitize(`<b onclick="steal()">bold</b>`)

	if strings.Contains(got, "onclick") {
		t.Errorf("sanitized output should not contain event handlers: %q", got)
	}
	if !strings.Contains(got, "<b>") {
		t.Errorf("allowed tag should survive without attributes: %q", got)
	}
}

// TestSanitize_KeepsAllowedInlineTags は許可タグが通過することを検証する。
func TestSanitize_KeepsAllowedInlineTags(t *testing.T) {
	s := NewCommentSanitizer()

	tests := []struct {
		name  string
		input string
		want  string
	}{
		{name: "bold", input: "<b>x</b>", want: "<b>x</b>"},
		{name: "italic", input: "<i>x</i>", want: "<i>x</i>"},
		{name: "strong", input: "<strong>x</strong>", want: "<strong>x</strong>"},
		{name: "em", input: "<em>x</em>", want: "<em>x</em>"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := s.Sanitize(tt.input); got != tt.want {
				t.Errorf("Sanitize(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

// TestSanitize_RemovesLinksAndImages はコメントではリンク・画像を許可しないことを検証する。
func TestSanitize_RemovesLinksAndImages(t *testing.T) {
	s := NewCommentSanitizer()

	got := s.Sanitize(`<a href="https://evil.example">link</a><img src="https://evil.example/x.png">`)

	if strings.Contains(got, "<a") || strings.Contains(got, "<img") {
		t.Errorf("links and images should be stripped: %q", got)
	}
}

// TestSanitize_TrimsWhitespace は前後の空白が取り除かれることを検証する。
func TestSanitize_TrimsWhitespace(t *testing.T) {
	s := NewCommentSanitizer()

	if got := s.Sanitize("  hello  "); got != "hello" {
		t.Errorf("Sanitize should trim whitespace, got %q", got)
	}
}

// TestSanitize_Idempotent は同一入力で常に同一出力になることを検証する。
func TestSanitize_Idempotent(t *testing.T) {
	s := NewCommentSanitizer()

	input := `<b onclick="x()">text</b> <script>bad()</script>`
	first := s.Sanitize(input)
	second := s.Sanitize(first)

	if first != second {
		t.Errorf("Sanitize should be idempotent: first=%q second=%q", first, second)
	}
}

// TestSanitize_EmptyInput は空入力で空文字列が返ることを検証する。
func TestSanitize_EmptyInput(t *testing.T) {
	s := NewCommentSanitizer()

	if got := s.Sanitize(""); got != "" {
		t.Errorf("Sanitize(\"\") = %q, want empty", got)
	}
}
