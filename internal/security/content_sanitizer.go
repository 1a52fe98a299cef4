// Package security はユーザー投稿コンテンツのサニタイズを提供する。
//
// ポストのMarkdownをHTMLに変換した結果をbluemondayの許可リストポリシーに通し、
// 安全なタグと属性のみを保存・配信する。
package security

import (
	"github.com/microcosm-cc/bluemonday"
)

// HTMLSanitizer はHTMLコンテンツのサニタイズ機能のインターフェースを定義する。
type HTMLSanitizer interface {
	// Sanitize はHTMLをサニタイズして安全なHTMLを返す。
	// 同一入力に対して常に同一出力を返す。
	Sanitize(rawHTML string) string
}

// postSanitizer はポスト本文向けのHTMLSanitizer実装。
// bluemondayのポリシーは生成後に変更しないため並行利用できる。
type postSanitizer struct {
	policy *bluemonday.Policy
}

// NewPostSanitizer はポスト本文用のサニタイザを生成する。
// ポリシーの内容:
//   - 許可タグ: p, br, hr, h1-h6, ul, ol, li, blockquote, pre, code, strong, em, del, a
//   - 画像、script, iframe, style および全てのon*イベント属性は除去
//   - aタグ: http, https, mailtoのみ。rel="nofollow noreferrer"とtarget="_blank"を付与
func NewPostSanitizer() *postSanitizer {
	p := bluemonday.NewPolicy()

	p.AllowElements(
		"p", "br", "hr",
		"h1", "h2", "h3", "h4", "h5", "h6",
		"ul", "ol", "li",
		"blockquote", "pre", "code",
		"strong", "em", "del",
	)

	// ユーザー生成リンク
	p.AllowAttrs("href").OnElements("a")
	p.AllowURLSchemes("http", "https", "mailto")
	p.AllowRelativeURLs(false)
	p.RequireParseableURLs(true)
	p.RequireNoFollowOnLinks(true)
	p.RequireNoReferrerOnLinks(true)
	p.AddTargetBlankToFullyQualifiedLinks(true)

	return &postSanitizer{policy: p}
}

// Sanitize はHTMLコンテンツをサニタイズして安全なHTMLを返す。
func (s *postSanitizer) Sanitize(rawHTML string) string {
	return s.policy.Sanitize(rawHTML)
}
