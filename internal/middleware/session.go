// Package middleware はHTTPミドルウェアを提供する。
package middleware

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/jeanikt/uniconnect/internal/model"
)

// SessionCookieName はセッションIDを保持するCookieの名前。
const SessionCookieName = "session_id"

// contextKey はコンテキストに値を格納するための型安全なキー。
type contextKey string

var (
	// userIDContextKey はリクエストコンテキストにユーザーIDを格納するためのキー。
	userIDContextKey = contextKey("user_id")
	// userContextKey はリクエストコンテキストに認証済みユーザーを格納するためのキー。
	userContextKey = contextKey("user")
)

// Authenticator はセッションIDまたはトークンからユーザーを解決する。
// 資格情報が無効な場合はエラーではなくnilを返す。
type Authenticator interface {
	Authenticate(ctx context.Context, sessionID, token string) (*model.User, *model.Session, error)
}

// NewSessionMiddleware はCookieのセッションIDまたはBearerトークンを検証するミドルウェアを返す。
// 認証済みユーザーをリクエストコンテキストに注入する。
// 未認証リクエストには401 Unauthorizedを返す。
func NewSessionMiddleware(auth Authenticator) func(next http.Handler) http.Handler {
	return newSessionMiddleware(auth, true)
}

// NewOptionalSessionMiddleware は未認証リクエストも通過させるセッションミドルウェアを返す。
// 認証済みの場合のみユーザーをコンテキストに注入する。
func NewOptionalSessionMiddleware(auth Authenticator) func(next http.Handler) http.Handler {
	return newSessionMiddleware(auth, false)
}

func newSessionMiddleware(auth Authenticator, required bool) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			sessionID := ""
			if cookie, err := r.Cookie(SessionCookieName); err == nil {
				sessionID = cookie.Value
			}
			token := BearerToken(r)

			var user *model.User
			if sessionID != "" || token != "" {
				u, _, err := auth.Authenticate(r.Context(), sessionID, token)
				if err != nil {
					slog.Error("failed to authenticate request",
						slog.String("error", err.Error()),
					)
				}
				user = u
			}

			if user == nil {
				if required {
					WriteErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
					return
				}
				next.ServeHTTP(w, r)
				return
			}

			annotateUserID(r.Context(), user.ID)
			next.ServeHTTP(w, r.WithContext(ContextWithUser(r.Context(), user)))
		})
	}
}

// BearerToken はAuthorizationヘッダーのBearerトークンを返す。ない場合は空文字列。
func BearerToken(r *http.Request) string {
	h := r.Header.Get("Authorization")
	if len(h) < 7 || !strings.EqualFold(h[:7], "Bearer ") {
		return ""
	}
	return strings.TrimSpace(h[7:])
}

// UserIDFromContext はリクエストコンテキストからユーザーIDを取得する。
// セッションミドルウェアを通過したリクエストでのみ有効。
func UserIDFromContext(ctx context.Context) (string, error) {
	userID, ok := ctx.Value(userIDContextKey).(string)
	if !ok || userID == "" {
		return "", fmt.Errorf("user ID not found in context")
	}
	return userID, nil
}

// ContextWithUserID はコンテキストにユーザーIDを注入する。
// テストやミドルウェア以外のコンテキスト生成で使用する。
func ContextWithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, userIDContextKey, userID)
}

// UserFromContext はリクエストコンテキストから認証済みユーザーを取得する。
func UserFromContext(ctx context.Context) (*model.User, bool) {
	user, ok := ctx.Value(userContextKey).(*model.User)
	return user, ok && user != nil
}

// ContextWithUser はコンテキストにユーザーとユーザーIDを注入する。
func ContextWithUser(ctx context.Context, user *model.User) context.Context {
	ctx = context.WithValue(ctx, userContextKey, user)
	if user != nil {
		ctx = ContextWithUserID(ctx, user.ID)
	}
	return ctx
}
