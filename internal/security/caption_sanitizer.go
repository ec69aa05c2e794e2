package security

import (
	"html"
	"regexp"
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

// CaptionSanitizerService はAIが生成したキャプションからマークアップを除去する。
// SNS投稿本文はプレーンテキストのため、タグはすべて取り除き、
// 文字参照は元の文字に戻す。
type CaptionSanitizerService interface {
	Clean(caption string) string
}

// tagStart は "<name" または "</name" の開始部分にマッチする。
var tagStart = regexp.MustCompile(`<(/?)([a-zA-Z][a-zA-Z0-9]*)`)

// htmlElements はマークアップとして扱う要素名。
// これ以外の "<...>" は本文中の山括弧として残す。
var htmlElements = map[string]bool{
	"a": true, "abbr": true, "article": true, "aside": true, "audio": true,
	"b": true, "blockquote": true, "body": true, "br": true, "button": true,
	"center": true, "cite": true, "code": true, "dd": true, "del": true,
	"div": true, "dl": true, "dt": true, "em": true, "embed": true,
	"figcaption": true, "figure": true, "font": true, "footer": true, "form": true,
	"h1": true, "h2": true, "h3": true, "h4": true, "h5": true, "h6": true,
	"head": true, "header": true, "hr": true, "html": true, "i": true,
	"iframe": true, "img": true, "input": true, "label": true, "li": true,
	"link": true, "mark": true, "meta": true, "nav": true, "object": true,
	"ol": true, "option": true, "p": true, "pre": true, "q": true,
	"s": true, "script": true, "section": true, "select": true, "small": true,
	"source": true, "span": true, "strong": true, "style": true, "sub": true,
	"sup": true, "svg": true, "table": true, "tbody": true, "td": true,
	"textarea": true, "th": true, "thead": true, "title": true, "tr": true,
	"u": true, "ul": true, "video": true, "wbr": true,
}

// standaloneElements は閉じタグがなくてもマークアップとみなす要素。
var standaloneElements = map[string]bool{
	"br": true, "hr": true, "img": true, "wbr": true, "meta": true,
	"link": true, "input": true, "embed": true, "source": true,
	"script": true, "style": true, "iframe": true, "object": true,
}

type captionSanitizer struct {
	policy *bluemonday.Policy
}

// NewCaptionSanitizer はbluemondayのStrictPolicyを使うサニタイザーを生成する。
func NewCaptionSanitizer() *captionSanitizer {
	return &captionSanitizer{policy: bluemonday.StrictPolicy()}
}

// Clean はタグを除去したプレーンテキストを返す。
// 改行と絵文字・ハッシュタグ、タグとして成立しない山括弧("<b and c>" など)はそのまま残す。
func (s *captionSanitizer) Clean(caption string) string {
	if caption == "" {
		return ""
	}
	stripped := s.policy.Sanitize(escapeTextBrackets(caption))
	return strings.TrimSpace(html.UnescapeString(stripped))
}

// escapeTextBrackets はHTMLタグとして扱わない "<" を "&lt;" に置き換える。
// 既知の要素のうち、閉じタグが存在するもの、または単独で成立する要素だけをタグとみなす。
func escapeTextBrackets(caption string) string {
	matches := tagStart.FindAllStringSubmatchIndex(caption, -1)
	if len(matches) == 0 {
		return caption
	}

	closed := make(map[string]bool)
	for _, m := range matches {
		if m[3] > m[2] {
			closed[strings.ToLower(caption[m[4]:m[5]])] = true
		}
	}

	var b strings.Builder
	b.Grow(len(caption))
	last := 0
	for _, m := range matches {
		name := strings.ToLower(caption[m[4]:m[5]])
		isCloser := m[3] > m[2]
		markup := htmlElements[name] && (isCloser || closed[name] || standaloneElements[name])
		if markup {
			continue
		}
		b.WriteString(caption[last:m[0]])
		b.WriteString("&lt;")
		last = m[0] + 1
	}
	b.WriteString(caption[last:])
	return b.String()
}
