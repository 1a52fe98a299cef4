package guard

import (
	"net/http"
	"net/url"
	"strings"

	"github.com/jeanikt/uniconnect/internal/middleware"
	"github.com/jeanikt/uniconnect/internal/model"
	"github.com/jeanikt/uniconnect/internal/verifier"
)

// tokenCookieName はトークンモードでブラウザが保持するトークンCookie名。
const tokenCookieName = "token"

// Config はガードミドルウェアの設定。
type Config struct {
	LoginPath string // 未認証時のリダイレクト先
}

// NewMiddleware は保護されたルートの前段に置くミドルウェアを返す。
// 検証が完了するまで次のハンドラを実行しない。
//   - authenticated: ユーザーをコンテキストに注入して次のハンドラへ
//   - unauthenticated: ページは303でLoginPathへ、JSON/APIは401
//   - 検証中にクライアントが切断: 何も書き込まずに終了
func NewMiddleware(g *Guard, cfg Config) func(http.Handler) http.Handler {
	loginPath := cfg.LoginPath
	if loginPath == "" {
		loginPath = "/login"
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			state, user := g.Run(r.Context(), CredentialsFromRequest(r))

			switch state {
			case StateAuthenticated:
				next.ServeHTTP(w, r.WithContext(middleware.ContextWithUser(r.Context(), user)))
			case StateUnauthenticated:
				if wantsJSON(r) {
					middleware.WriteErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
					return
				}
				http.Redirect(w, r, loginRedirect(loginPath, r), http.StatusSeeOther)
			}
		})
	}
}

// CredentialsFromRequest は受信リクエストから資格情報を取り出す。
func CredentialsFromRequest(r *http.Request) verifier.Credentials {
	var creds verifier.Credentials
	if c, err := r.Cookie(verifier.SessionCookieName); err == nil {
		creds.SessionID = c.Value
	}
	if token := middleware.BearerToken(r); token != "" {
		creds.Token = token
	} else if c, err := r.Cookie(tokenCookieName); err == nil {
		creds.Token = c.Value
	}
	return creds
}

// wantsJSON はリクエストがAPI呼び出しかを判定する。
func wantsJSON(r *http.Request) bool {
	if strings.HasPrefix(r.URL.Path, "/app/") {
		return true
	}
	return strings.Contains(r.Header.Get("Accept"), "application/json")
}

// loginRedirect は元のURLをcallbackUrlに付けたログインURLを返す。
func loginRedirect(loginPath string, r *http.Request) string {
	q := url.Values{}
	q.Set("callbackUrl", r.URL.RequestURI())
	sep := "?"
	if strings.Contains(loginPath, "?") {
		sep = "&"
	}
	return loginPath + sep + q.Encode()
}
