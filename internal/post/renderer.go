package post

import (
	"bytes"
	"fmt"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/renderer/html"

	"github.com/jeanikt/uniconnect/internal/security"
)

// Renderer はポストのMarkdownを表示用の安全なHTMLに変換する。
type Renderer struct {
	md        goldmark.Markdown
	sanitizer security.HTMLSanitizer
}

// NewRenderer はRendererを生成する。
// 生のHTMLはgoldmarkの既定で出力されず、変換結果はさらにsanitizerを通す。
func NewRenderer(sanitizer security.HTMLSanitizer) *Renderer {
	md := goldmark.New(
		goldmark.WithExtensions(extension.Strikethrough, extension.Linkify),
		goldmark.WithRendererOptions(html.WithHardWraps()),
	)
	return &Renderer{md: md, sanitizer: sanitizer}
}

// Render はMarkdownをHTMLに変換してサニタイズする。
func (r *Renderer) Render(content string) (string, error) {
	var buf bytes.Buffer
	if err := r.md.Convert([]byte(content), &buf); err != nil {
		return "", fmt.Errorf("failed to render markdown: %w", err)
	}
	return r.sanitizer.Sanitize(buf.String()), nil
}
