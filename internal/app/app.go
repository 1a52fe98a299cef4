package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"golang.org/x/sync/errgroup"

	"github.com/jeanikt/uniconnect/internal/auth"
	"github.com/jeanikt/uniconnect/internal/community"
	"github.com/jeanikt/uniconnect/internal/config"
	"github.com/jeanikt/uniconnect/internal/database"
	"github.com/jeanikt/uniconnect/internal/guard"
	"github.com/jeanikt/uniconnect/internal/handler"
	"github.com/jeanikt/uniconnect/internal/logger"
	"github.com/jeanikt/uniconnect/internal/message"
	"github.com/jeanikt/uniconnect/internal/metrics"
	"github.com/jeanikt/uniconnect/internal/middleware"
	"github.com/jeanikt/uniconnect/internal/post"
	"github.com/jeanikt/uniconnect/internal/preferences"
	"github.com/jeanikt/uniconnect/internal/repository"
	"github.com/jeanikt/uniconnect/internal/security"
	"github.com/jeanikt/uniconnect/internal/user"
	"github.com/jeanikt/uniconnect/internal/verifier"
	"github.com/jeanikt/uniconnect/internal/worker/cleanup"
)

const shutdownTimeout = 30 * time.Second

// Init はアプリケーションの初期化を行う。
// JSON構造化ログをセットアップし、コマンドに応じた設定を環境変数から読み込む。
// writerが指定された場合はログ出力先としてそのwriterを使用する。
func Init(w io.Writer, cmd Command) (*config.Config, error) {
	// 1. ログの初期化（設定読み込み前にログを使えるようにする）
	logger.SetupDefault(w)

	// 2. 環境変数から設定を読み込む
	load := config.Load
	if !cmd.needsDatabase() {
		load = config.LoadWeb
	}
	cfg, err := load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	return cfg, nil
}

// Run はアプリケーションのメインエントリーポイント。
// コマンドライン引数からサブコマンドを解析し、対応するモードで起動する。
// argsにはos.Args[1:]を渡す。SIGINTまたはSIGTERMで全モードが停止する。
func Run(w io.Writer, args []string) error {
	cmd := ParseCommand(args)

	// healthcheck は軽量サブコマンドのため、フル初期化をスキップする
	if cmd == CommandHealthcheck {
		return runHealthcheck(healthcheckPort(args))
	}

	cfg, err := Init(w, cmd)
	if err != nil {
		return fmt.Errorf("initialization failed: %w", err)
	}

	slog.Info("starting application",
		slog.String("command", string(cmd)),
		slog.String("port", cfg.ServerPort),
		slog.String("web_port", cfg.WebPort),
		slog.String("base_url", cfg.BaseURL),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	switch cmd {
	case CommandWeb:
		return runWeb(ctx, cfg, nil)
	case CommandWorker:
		return runWorker(ctx, cfg)
	case CommandAll:
		return runAll(ctx, cfg)
	case CommandMigrate:
		return runMigrate(cfg)
	default:
		return runServe(ctx, cfg)
	}
}

// runServe はAPIサーバーモードで起動する。
// DB接続を開き、全依存関係をワイヤリングし、HTTPサーバーを起動する。
func runServe(ctx context.Context, cfg *config.Config) error {
	db, err := database.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer db.Close()

	slog.Info("database connection established")

	reg := newRegistry()
	return serveAPI(ctx, cfg, db, reg, metrics.NewCollector(reg))
}

// runWeb はwebゲートウェイモードで起動する。
// collectorがnilの場合は検証結果を記録しない。
func runWeb(ctx context.Context, cfg *config.Config, collector *metrics.Collector) error {
	webHandler, err := newWebHandler(cfg, collector)
	if err != nil {
		return err
	}

	return listenAndServe(ctx, "web gateway", newServer(cfg.WebPort, webHandler))
}

// runWorker はワーカーモードで起動する。
// DB接続を開き、クリーンアップジョブをctxがキャンセルされるまで実行する。
func runWorker(ctx context.Context, cfg *config.Config) error {
	db, err := database.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer db.Close()

	slog.Info("database connection established (worker)")

	startWorker(ctx, cfg, db, metrics.NewCollector(prometheus.NewRegistry()))

	slog.Info("worker stopped gracefully")
	return nil
}

// runAll はAPIサーバー・webゲートウェイ・ワーカーを同一プロセスで起動する。
// いずれかが失敗した場合は残りも停止する。
func runAll(ctx context.Context, cfg *config.Config) error {
	db, err := database.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer db.Close()

	reg := newRegistry()
	collector := metrics.NewCollector(reg)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return serveAPI(ctx, cfg, db, reg, collector)
	})
	g.Go(func() error {
		return runWeb(ctx, cfg, collector)
	})
	g.Go(func() error {
		startWorker(ctx, cfg, db, collector)
		return nil
	})
	return g.Wait()
}

// serveAPI はAPIルーターを構築してctxがキャンセルされるまで提供する。
func serveAPI(ctx context.Context, cfg *config.Config, db *sql.DB, reg *prometheus.Registry, collector *metrics.Collector) error {
	rateLimiter := middleware.NewRateLimiter(middleware.NewRateLimiterConfig(cfg.RateLimitGeneral, cfg.RateLimitAuth))
	defer rateLimiter.Stop()

	router := handler.NewRouter(newRouterDeps(cfg, db, reg, collector, rateLimiter))
	return listenAndServe(ctx, "API server", newServer(cfg.ServerPort, router))
}

// newRouterDeps はリポジトリからハンドラーまでの依存関係を組み立てる。
func newRouterDeps(
	cfg *config.Config,
	db *sql.DB,
	reg *prometheus.Registry,
	collector *metrics.Collector,
	rateLimiter *middleware.RateLimiter,
) *handler.RouterDeps {
	// 1. リポジトリの初期化
	userRepo := repository.NewPostgresUserRepo(db)
	identRepo := repository.NewPostgresIdentityRepo(db)
	sessionRepo := repository.NewPostgresSessionRepo(db)
	magicLinkRepo := repository.NewPostgresMagicLinkRepo(db)
	postRepo := repository.NewPostgresPostRepo(db)
	followRepo := repository.NewPostgresFollowRepo(db)
	communityRepo := repository.NewPostgresCommunityRepo(db)
	conversationRepo := repository.NewPostgresConversationRepo(db)
	prefsRepo := repository.NewPostgresPreferencesRepo(db)

	// 2. 認証サービスの初期化
	authService := auth.NewService(newAuthDeps(cfg, userRepo, identRepo, sessionRepo, magicLinkRepo, collector),
		auth.ServiceConfig{
			SessionMaxAge: cfg.SessionMaxAge,
			MagicLinkTTL:  cfg.MagicLinkTTL,
			BaseURL:       cfg.BaseURL,
		},
	)

	// 3. ドメインサービスの初期化
	renderer := post.NewRenderer(security.NewPostSanitizer())
	postService := post.NewService(postRepo, renderer, collector)
	userService := user.NewService(userRepo, sessionRepo, followRepo)
	communityService := community.NewService(communityRepo)
	messageService := message.NewService(conversationRepo, userRepo)

	return &handler.RouterDeps{
		Authenticator:     authService,
		CORSAllowedOrigin: cfg.CORSAllowedOrigin,
		RateLimiter:       rateLimiter,
		CSRF: middleware.CSRFConfig{
			CookieSecure: cfg.CookieSecure,
			CookieDomain: cfg.CookieDomain,
		},
		TrustProxy: cfg.TrustProxy,
		Logger:     slog.Default(),

		Metrics:  collector,
		Gatherer: reg,
		DB:       db,

		AuthService: authService,
		AuthConfig: handler.AuthHandlerConfig{
			AppURL:        cfg.CORSAllowedOrigin,
			CookieDomain:  cfg.CookieDomain,
			CookieSecure:  cfg.CookieSecure,
			SessionMaxAge: cfg.SessionMaxAge,
		},

		PostService:      postService,
		UserService:      userService,
		CommunityService: communityService,
		MessageService:   messageService,
		PreferencesRepo:  prefsRepo,
	}
}

// newAuthDeps は設定に応じてサインイン方式を有効化した認証サービスの依存関係を返す。
func newAuthDeps(
	cfg *config.Config,
	users repository.UserRepository,
	identities repository.IdentityRepository,
	sessions repository.SessionRepository,
	magicLinks repository.MagicLinkRepository,
	recorder auth.SignInRecorder,
) auth.Deps {
	hasher := auth.NewBcryptHasher(0)

	deps := auth.Deps{
		Policy: auth.AllowListPolicy{
			GitHubLogins:     cfg.AllowedGitHubLogins,
			AllowCredentials: cfg.AllowCredentials,
			AllowEmail:       cfg.AllowMagicLink,
		},
		Hasher:     hasher,
		Tokens:     auth.NewTokenIssuer(cfg.SessionSecret),
		Users:      users,
		Identities: identities,
		Sessions:   sessions,
		MagicLinks: magicLinks,
		Mailer:     auth.NewLogMailer(slog.Default()),
		Recorder:   recorder,
	}

	if cfg.GitHubEnabled() {
		deps.GitHub = auth.NewGitHubOAuthBackend(auth.GitHubOAuthConfig{
			ClientID:     cfg.GitHubClientID,
			ClientSecret: cfg.GitHubClientSecret,
			RedirectURL:  cfg.GitHubRedirectURL,
		})
	} else {
		slog.Info("GitHub sign-in is disabled: GITHUB_ID or GITHUB_SECRET is not set")
	}

	switch {
	case cfg.CredentialStub:
		deps.Credentials = auth.NewStubCredentialBackend()
	case cfg.AllowCredentials:
		deps.Credentials = auth.NewPasswordCredentialBackend(users, hasher)
	}

	return deps
}

// newWebHandler はセッション検証器と認証ガードを組み立ててwebルーターを返す。
func newWebHandler(cfg *config.Config, collector *metrics.Collector) (http.Handler, error) {
	opts := []verifier.Option{verifier.WithLogger(slog.Default())}
	if collector != nil {
		opts = append(opts, verifier.WithRecorder(collector))
	}

	v, err := verifier.New(verifier.Config{
		BaseURL: cfg.APIURL,
		Mode:    verifier.ParseMode(cfg.VerifyMode),
		Timeout: cfg.VerifyTimeout,
	}, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create session verifier: %w", err)
	}

	g := guard.New(v,
		guard.WithMinVerifying(cfg.GuardMinVerifying),
		guard.WithObserver(func(s guard.State) {
			slog.Debug("auth guard transition", slog.String("state", string(s)))
		}),
	)

	deps := &handler.WebRouterDeps{
		Guard:       g,
		GuardConfig: guard.Config{LoginPath: cfg.LoginPath},
		Preferences: preferences.CookieOptions{
			Secure: cfg.CookieSecure,
			Domain: cfg.CookieDomain,
		},
		APIURL:      cfg.APIURL,
		FrontendURL: cfg.FrontendURL,
		TrustProxy:  cfg.TrustProxy,
		Logger:      slog.Default(),
	}
	if collector != nil {
		deps.Metrics = collector
	}

	slog.Info("session verifier configured",
		slog.String("api_url", cfg.APIURL),
		slog.String("mode", string(v.Mode())),
		slog.Duration("timeout", cfg.VerifyTimeout),
	)

	return handler.NewWebRouter(deps)
}

// startWorker はクリーンアップジョブをctxがキャンセルされるまで実行する。
func startWorker(ctx context.Context, cfg *config.Config, db *sql.DB, collector *metrics.Collector) {
	slog.Info("worker starting",
		slog.Duration("cleanup_interval", cfg.CleanupInterval),
	)

	cleanup.NewCleanupJob(db, slog.Default(), collector).Start(ctx, cfg.CleanupInterval)
}

// runMigrate はデータベースマイグレーションを実行する。
// すべての未適用マイグレーションを順番に適用する。
func runMigrate(cfg *config.Config) error {
	slog.Info("running database migrations",
		slog.String("database_url", maskDatabaseURL(cfg.DatabaseURL)),
	)

	version, err := database.RunMigrations(cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}

	slog.Info("database migrations completed successfully", slog.Uint64("version", uint64(version)))
	return nil
}

// newRegistry はGo・プロセスのメトリクスを含むレジストリを返す。
func newRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg
}

func newServer(port string, h http.Handler) *http.Server {
	return &http.Server{
		Addr:         ":" + port,
		Handler:      h,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
}

// listenAndServe はserverを起動し、ctxがキャンセルされたらグレースフルシャットダウンする。
func listenAndServe(ctx context.Context, name string, server *http.Server) error {
	errCh := make(chan error, 1)
	go func() {
		slog.Info(name+" starting", slog.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err, ok := <-errCh:
		if ok {
			return fmt.Errorf("%s listen error: %w", name, err)
		}
		return nil
	case <-ctx.Done():
	}

	slog.Info("shutting down " + name + "...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("%s shutdown failed: %w", name, err)
	}

	slog.Info(name + " stopped gracefully")
	return nil
}

// healthcheckPort は"healthcheck web"の場合にWEB_PORT、それ以外はSERVER_PORTを返す。
func healthcheckPort(args []string) string {
	key, fallback := "SERVER_PORT", "8080"
	if len(args) > 1 && Command(args[1]) == CommandWeb {
		key, fallback = "WEB_PORT", "3000"
	}
	if port := os.Getenv(key); port != "" {
		return port
	}
	return fallback
}

// runHealthcheck はヘルスチェックを実行する。
// distroless環境でのDockerヘルスチェック用サブコマンド。
// /health エンドポイントにHTTPリクエストを送り、結果を返す。
func runHealthcheck(port string) error {
	target := fmt.Sprintf("http://localhost:%s/health", port)
	client := &http.Client{Timeout: 5 * time.Second}

	resp, err := client.Get(target)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health check returned status %d", resp.StatusCode)
	}

	return nil
}

// maskDatabaseURL はデータベースURLのパスワードをマスクする。
// 解析できない場合は全体を伏せる。
func maskDatabaseURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return "***"
	}
	if _, ok := u.User.Password(); ok {
		u.User = url.UserPassword(u.User.Username(), "xxxxx")
	}
	u.RawQuery = ""
	return u.String()
}
