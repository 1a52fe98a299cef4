package preferences

import (
	"context"
	"net/http"

	"github.com/jeanikt/uniconnect/internal/model"
)

// Cookie名
const (
	ThemeCookieName    = "theme"
	LanguageCookieName = "language"
)

// cookieMaxAge は設定Cookieの有効期間（1年）。
const cookieMaxAge = 365 * 24 * 60 * 60

// CookieOptions は設定Cookieの属性。
type CookieOptions struct {
	Secure bool
	Domain string
}

// CookieStore はブラウザのCookieに設定を保存するStore実装。
// 1リクエストごとに生成する。
type CookieStore struct {
	r    *http.Request
	w    http.ResponseWriter
	opts CookieOptions
}

// NewCookieStore はリクエストとレスポンスに紐づくCookieStoreを生成する。
func NewCookieStore(w http.ResponseWriter, r *http.Request, opts CookieOptions) *CookieStore {
	return &CookieStore{r: r, w: w, opts: opts}
}

// Load はCookieから設定を読み込む。Cookieがない項目は空のまま返す。
func (s *CookieStore) Load(_ context.Context) (model.Preferences, error) {
	var prefs model.Preferences
	if c, err := s.r.Cookie(ThemeCookieName); err == nil {
		prefs.Theme = model.Theme(c.Value)
	}
	if c, err := s.r.Cookie(LanguageCookieName); err == nil {
		prefs.Language = model.Language(c.Value)
	}
	return prefs, nil
}

// Save は設定をCookieに書き込む。
func (s *CookieStore) Save(_ context.Context, prefs model.Preferences) error {
	s.setCookie(ThemeCookieName, string(prefs.Theme))
	s.setCookie(LanguageCookieName, string(prefs.Language))
	return nil
}

func (s *CookieStore) setCookie(name, value string) {
	http.SetCookie(s.w, &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		Domain:   s.opts.Domain,
		MaxAge:   cookieMaxAge,
		HttpOnly: false, // フロントエンドからも参照する
		Secure:   s.opts.Secure,
		SameSite: http.SameSiteLaxMode,
	})
}

// compile-time interface check
var _ Store = (*CookieStore)(nil)
