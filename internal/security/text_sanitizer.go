package security

import (
	"html"
	"net/url"
	"strings"
	"unicode/utf8"

	"github.com/microcosm-cc/bluemonday"
)

// TextSanitizerService はフィード由来の文字列を番組レコードに格納できる形へ整える。
type TextSanitizerService interface {
	// PlainText はHTMLタグを除去し、文字参照を展開し、空白を1つに詰めた文字列を返す。
	// maxRunes が正の場合はその文字数で切り詰める。
	PlainText(raw string, maxRunes int) string

	// ImageURL はhttpsの絶対URLのみを返し、それ以外は空文字列を返す。
	ImageURL(raw string) string
}

type textSanitizer struct {
	policy *bluemonday.Policy
}

// NewTextSanitizer はタグを一切許可しないポリシーでTextSanitizerServiceを生成する。
func NewTextSanitizer() *textSanitizer {
	return &textSanitizer{policy: bluemonday.StrictPolicy()}
}

// PlainText はHTMLをプレーンテキストに変換する。
func (s *textSanitizer) PlainText(raw string, maxRunes int) string {
	if raw == "" {
		return ""
	}
	// StrictPolicy は残したテキストを再エスケープするため、最後に一度だけ展開する
	text := html.UnescapeString(s.policy.Sanitize(raw))
	text = strings.Join(strings.Fields(text), " ")

	if maxRunes > 0 && utf8.RuneCountInString(text) > maxRunes {
		runes := []rune(text)
		text = strings.TrimSpace(string(runes[:maxRunes]))
	}
	return text
}

// ImageURL は画像URLを検証する。
func (s *textSanitizer) ImageURL(raw string) string {
	raw = strings.TrimSpace(raw)
	u, err := url.Parse(raw)
	if err != nil || !strings.EqualFold(u.Scheme, "https") || u.Host == "" {
		return ""
	}
	return u.String()
}
