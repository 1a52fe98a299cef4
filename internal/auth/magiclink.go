package auth

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
)

// Mailer はサインインリンクの送信先。
type Mailer interface {
	SendMagicLink(ctx context.Context, email, link string) error
}

// LogMailer はリンクを送信せずにログへ出力するMailer実装。
// メール配信基盤を持たない開発環境で使う。
type LogMailer struct {
	logger *slog.Logger
}

// NewLogMailer はLogMailerを生成する。
func NewLogMailer(logger *slog.Logger) *LogMailer {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogMailer{logger: logger}
}

// SendMagicLink はリンクをINFOログに出力する。
func (m *LogMailer) SendMagicLink(ctx context.Context, email, link string) error {
	m.logger.InfoContext(ctx, "magic link issued",
		slog.String("email", email),
		slog.String("link", link),
	)
	return nil
}

// newMagicLinkToken はリンクに埋め込むトークンと保存用のハッシュを生成する。
func newMagicLinkToken() (token, hash string, err error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", "", fmt.Errorf("failed to generate magic link token: %w", err)
	}
	token = hex.EncodeToString(b)
	return token, hashMagicLinkToken(token), nil
}

// hashMagicLinkToken はトークンのSHA-256ハッシュを16進文字列で返す。
func hashMagicLinkToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

// compile-time interface check
var _ Mailer = (*LogMailer)(nil)
