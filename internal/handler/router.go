package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/jeanikt/uniconnect/internal/metrics"
	"github.com/jeanikt/uniconnect/internal/middleware"
	"github.com/jeanikt/uniconnect/internal/repository"
)

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	// ミドルウェア依存
	Authenticator     middleware.Authenticator
	CORSAllowedOrigin string
	RateLimiter       *middleware.RateLimiter
	CSRF              middleware.CSRFConfig
	TrustProxy        bool
	Logger            *slog.Logger

	// メトリクス（nilの場合は無効）
	Metrics  metrics.MetricsCollector
	Gatherer prometheus.Gatherer

	// ヘルスチェック
	DB Pinger

	// 認証
	AuthService AuthServiceInterface
	AuthConfig  AuthHandlerConfig

	// ドメイン
	PostService      PostServiceInterface
	UserService      UserServiceInterface
	CommunityService CommunityServiceInterface
	MessageService   MessageServiceInterface
	PreferencesRepo  repository.PreferencesRepository
}

// NewRouter は全APIエンドポイントのルーティングとミドルウェアチェーンを構成したchi.Routerを返す。
//
// ミドルウェアスタックの実行順序:
//
//	Recovery → SecurityHeaders → CORS → Logging → HTTPStatusMetrics
//	  保護ルート: → Session → RateLimit(General) → CSRF
//	  サインイン: → RateLimit(Auth)
//
// 閲覧系のGETはセッションを任意とし、ログイン時のみ閲覧者の状態を含める。
func NewRouter(deps *RouterDeps) http.Handler {
	r := chi.NewRouter()

	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	if deps.TrustProxy {
		r.Use(chimw.RealIP)
	}
	r.Use(middleware.NewRecoveryMiddleware())
	r.Use(middleware.NewSecurityHeadersMiddleware(deps.CSRF.CookieSecure))
	r.Use(middleware.NewCORSMiddleware(deps.CORSAllowedOrigin))
	r.Use(middleware.NewLoggingMiddleware(logger))
	if deps.Metrics != nil {
		r.Use(metrics.NewHTTPStatusMiddleware(deps.Metrics))
	}

	authHandler := NewAuthHandler(deps.AuthService, deps.AuthConfig)
	postHandler := NewPostHandler(deps.PostService)
	userHandler := NewUserHandler(deps.UserService, deps.PostService)
	communityHandler := NewCommunityHandler(deps.CommunityService)
	messageHandler := NewMessageHandler(deps.MessageService)
	prefsHandler := NewPreferencesHandler(deps.PreferencesRepo)

	// --- 運用エンドポイント ---
	r.Get("/health", NewHealthHandler(deps.DB))
	if deps.Gatherer != nil {
		r.Handle("/metrics", metrics.Handler(deps.Gatherer))
	}
	r.Method(http.MethodGet, "/api/csrf-token", middleware.NewCSRFTokenHandler(deps.CSRF))

	// --- 認証ルート ---
	r.Route("/auth", func(r chi.Router) {
		// サインインの試行はIP単位で制限する
		r.Group(func(r chi.Router) {
			r.Use(deps.RateLimiter.AuthMiddleware())
			r.Get("/github/login", authHandler.GitHubLogin)
			r.Get("/github/callback", authHandler.GitHubCallback)
			r.Post("/register", authHandler.Register)
			r.Post("/login", authHandler.Login)
			r.Post("/magic-link", authHandler.RequestMagicLink)
			r.Get("/confirm", authHandler.Confirm)
		})

		r.Get("/verify", authHandler.Verify)
		r.Post("/logout", authHandler.Logout)
		r.With(middleware.NewSessionMiddleware(deps.Authenticator)).Get("/me", authHandler.Me)
	})
	r.With(deps.RateLimiter.AuthMiddleware()).Post("/verify-magic-link", authHandler.VerifyMagicLink)

	// --- 閲覧ルート（セッション任意） ---
	r.Group(func(r chi.Router) {
		r.Use(middleware.NewOptionalSessionMiddleware(deps.Authenticator))
		r.Use(deps.RateLimiter.GeneralMiddleware())

		r.Get("/api/posts", postHandler.ListPosts)
		r.Get("/api/posts/{id}", postHandler.GetPost)
		r.Get("/api/users/{username}", userHandler.GetProfile)
		r.Get("/api/communities", communityHandler.ListCommunities)
	})

	// --- 認証が必要なルート ---
	// ミドルウェアスタック: Session → RateLimit(General) → CSRF
	r.Group(func(r chi.Router) {
		r.Use(middleware.NewSessionMiddleware(deps.Authenticator))
		r.Use(deps.RateLimiter.GeneralMiddleware())
		r.Use(middleware.NewCSRFMiddleware(deps.CSRF))

		// フィード
		r.Post("/api/posts", postHandler.CreatePost)
		r.Delete("/api/posts/{id}", postHandler.DeletePost)
		r.Post("/api/posts/{id}/like", postHandler.ToggleLike)
		r.Post("/api/posts/{id}/repost", postHandler.ToggleRepost)

		// プロフィール
		r.Patch("/api/users/me", userHandler.UpdateProfile)
		r.Delete("/api/users/me", userHandler.Withdraw)
		r.Post("/api/users/{username}/follow", userHandler.Follow)
		r.Delete("/api/users/{username}/follow", userHandler.Unfollow)

		// コミュニティ
		r.Post("/api/communities", communityHandler.CreateCommunity)
		r.Post("/api/communities/{id}/members", communityHandler.Join)
		r.Delete("/api/communities/{id}/members", communityHandler.Leave)

		// メッセージ
		r.Get("/api/conversations", messageHandler.ListConversations)
		r.Post("/api/conversations", messageHandler.StartConversation)
		r.Get("/api/conversations/{id}/messages", messageHandler.ListMessages)
		r.Post("/api/conversations/{id}/messages", messageHandler.SendMessage)

		// UI設定
		r.Get("/api/preferences", prefsHandler.GetPreferences)
		r.Put("/api/preferences", prefsHandler.UpdatePreferences)
		r.Post("/api/preferences/theme/toggle", prefsHandler.ToggleTheme)
	})

	return r
}
