package handler

import (
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httputil"
	"net/url"
	"strings"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/jeanikt/uniconnect/internal/guard"
	"github.com/jeanikt/uniconnect/internal/metrics"
	"github.com/jeanikt/uniconnect/internal/middleware"
	"github.com/jeanikt/uniconnect/internal/preferences"
)

// WebRouterDeps はNewWebRouterに必要な依存関係をまとめた構造体。
type WebRouterDeps struct {
	Guard       *guard.Guard
	GuardConfig guard.Config
	Preferences preferences.CookieOptions
	APIURL      string // サインイン用エンドポイントの案内に使う
	FrontendURL string // 空の場合はプロキシせずアプリ状態をJSONで返す
	TrustProxy  bool
	Logger      *slog.Logger
	Metrics     metrics.MetricsCollector
}

// loginOptionsResponse はフロントエンドがない場合のログインページの代替。
type loginOptionsResponse struct {
	Authenticated bool              `json:"authenticated"`
	SignIn        map[string]string `json:"sign_in"`
}

// NewWebRouter はガードを前段に置いたwebゲートウェイのルーターを返す。
//
// ログインページと静的アセットはガードを通さない。それ以外のパスは検証が
// 完了するまでブロックし、認証済みの場合のみフロントエンドへ転送する。
func NewWebRouter(deps *WebRouterDeps) (http.Handler, error) {
	r := chi.NewRouter()

	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	if deps.TrustProxy {
		r.Use(chimw.RealIP)
	}
	r.Use(middleware.NewRecoveryMiddleware())
	r.Use(middleware.NewSecurityHeadersMiddleware(deps.Preferences.Secure))
	r.Use(middleware.NewLoggingMiddleware(logger))
	if deps.Metrics != nil {
		r.Use(metrics.NewHTTPStatusMiddleware(deps.Metrics))
	}

	var frontend http.Handler
	if deps.FrontendURL != "" {
		target, err := url.Parse(deps.FrontendURL)
		if err != nil || target.Scheme == "" || target.Host == "" {
			return nil, fmt.Errorf("invalid frontend URL %q", deps.FrontendURL)
		}
		frontend = httputil.NewSingleHostReverseProxy(target)
	}

	loginPath := deps.GuardConfig.LoginPath
	if loginPath == "" {
		loginPath = "/login"
	}

	r.Get("/health", NewHealthHandler(nil))

	// --- ガード対象外 ---
	unguarded := frontend
	if unguarded == nil {
		unguarded = http.NotFoundHandler()
	}
	r.Handle("/_next/*", unguarded)
	r.Handle("/static/*", unguarded)
	r.Handle("/favicon.ico", unguarded)
	if frontend != nil {
		r.Handle(loginPath, frontend)
	} else {
		r.Get(loginPath, loginOptionsHandler(deps.APIURL))
	}

	// --- ガード対象 ---
	// ミドルウェアスタック: Guard → CSRF
	prefsHandler := NewCookiePreferencesHandler(deps.Preferences)
	r.Group(func(r chi.Router) {
		r.Use(guard.NewMiddleware(deps.Guard, deps.GuardConfig))
		r.Use(middleware.NewCSRFMiddleware(middleware.CSRFConfig{
			CookieSecure: deps.Preferences.Secure,
			CookieDomain: deps.Preferences.Domain,
		}))

		r.Get("/app/state", prefsHandler.AppState)
		r.Post("/app/theme/toggle", prefsHandler.ToggleTheme)
		r.Put("/app/language", prefsHandler.SetLanguage)

		if frontend != nil {
			r.Handle("/*", frontend)
		} else {
			r.Get("/*", prefsHandler.AppState)
		}
	})

	return r, nil
}

func loginOptionsHandler(apiURL string) http.HandlerFunc {
	base := strings.TrimRight(apiURL, "/")
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, loginOptionsResponse{
			Authenticated: false,
			SignIn: map[string]string{
				"github":      base + "/auth/github/login",
				"credentials": base + "/auth/login",
				"magic_link":  base + "/auth/magic-link",
			},
		})
	}
}
