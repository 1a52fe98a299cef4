package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config はアプリケーション全体の設定を保持する。
// 環境変数から起動時に1回読み込み、イミュータブルとして扱う。
type Config struct {
	// Database
	DatabaseURL string

	// GitHub OAuth
	GitHubClientID     string
	GitHubClientSecret string
	GitHubRedirectURL  string

	// Sign-in policy
	AllowedGitHubLogins []string
	AllowCredentials    bool
	AllowMagicLink      bool
	CredentialStub      bool

	// Session
	SessionSecret string
	SessionMaxAge int
	MagicLinkTTL  time.Duration

	// Session Verifier / Auth Guard (webモード)
	APIURL            string
	VerifyMode        string // "cookie" または "token"
	VerifyTimeout     time.Duration
	GuardMinVerifying time.Duration
	LoginPath         string
	FrontendURL       string

	// Rate Limit (req/min)
	RateLimitGeneral int
	RateLimitAuth    int

	// Cleanup
	CleanupInterval time.Duration

	// Server
	ServerPort string
	WebPort    string
	BaseURL    string

	// Cookie
	CookieSecure bool
	CookieDomain string

	// CORS
	CORSAllowedOrigin string

	// TrustProxy はX-Forwarded-For等からクライアントIPを決定するか
	TrustProxy bool
}

// GitHubEnabled はGitHub OAuthの資格情報が設定されているかを返す。
func (c *Config) GitHubEnabled() bool {
	return c.GitHubClientID != "" && c.GitHubClientSecret != ""
}

// LoadDotEnv はカレントディレクトリの.envファイルを環境変数に読み込む。
// 既に設定済みの環境変数は上書きしない。ファイルが存在しない場合は何もしない。
func LoadDotEnv(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	for _, p := range paths {
		if err := godotenv.Load(p); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return fmt.Errorf("failed to load %s: %w", p, err)
		}
	}
	return nil
}

// Load はAPIサーバー用のConfigを環境変数から読み込む。
// 必須環境変数が未設定の場合はエラーを返す。
func Load() (*Config, error) {
	cfg := &Config{}

	var missing []string

	cfg.DatabaseURL = os.Getenv("DATABASE_URL")
	if cfg.DatabaseURL == "" {
		missing = append(missing, "DATABASE_URL")
	}

	cfg.SessionSecret = os.Getenv("SESSION_SECRET")
	if cfg.SessionSecret == "" {
		missing = append(missing, "SESSION_SECRET")
	}

	cfg.BaseURL = os.Getenv("BASE_URL")
	if cfg.BaseURL == "" {
		missing = append(missing, "BASE_URL")
	}

	if len(missing) > 0 {
		return nil, fmt.Errorf("required environment variables are not set: %v", missing)
	}

	loadOptional(cfg)

	// 同一プロセスでwebモードも動かす場合は自分自身のAPIを検証先にする
	if cfg.APIURL == "" {
		cfg.APIURL = "http://localhost:" + cfg.ServerPort
	}

	return cfg, nil
}

// LoadWeb はwebゲートウェイ用のConfigを環境変数から読み込む。
// webモードはDBを持たず、API_URLの検証エンドポイントのみに依存する。
func LoadWeb() (*Config, error) {
	cfg := &Config{}

	cfg.APIURL = os.Getenv("API_URL")
	if cfg.APIURL == "" {
		return nil, fmt.Errorf("required environment variables are not set: %v", []string{"API_URL"})
	}

	cfg.BaseURL = getEnvString("BASE_URL", "http://localhost:3000")
	loadOptional(cfg)

	return cfg, nil
}

// loadOptional はデフォルト値を持つ設定項目を読み込む。
func loadOptional(cfg *Config) {
	cfg.GitHubClientID = os.Getenv("GITHUB_ID")
	cfg.GitHubClientSecret = os.Getenv("GITHUB_SECRET")
	cfg.GitHubRedirectURL = getEnvString("GITHUB_REDIRECT_URL", strings.TrimRight(cfg.BaseURL, "/")+"/auth/github/callback")

	cfg.AllowedGitHubLogins = getEnvList("AUTH_ALLOWED_GITHUB_LOGINS", []string{"Jeanikt"})
	cfg.AllowCredentials = getEnvBool("AUTH_ALLOW_CREDENTIALS", true)
	cfg.AllowMagicLink = getEnvBool("AUTH_ALLOW_MAGIC_LINK", true)
	cfg.CredentialStub = getEnvBool("AUTH_CREDENTIAL_STUB", false)

	cfg.SessionMaxAge = getEnvInt("SESSION_MAX_AGE", 86400)
	cfg.MagicLinkTTL = getEnvDuration("MAGIC_LINK_TTL", 15*time.Minute)

	cfg.APIURL = strings.TrimRight(os.Getenv("API_URL"), "/")
	cfg.VerifyMode = getEnvString("VERIFY_MODE", "cookie")
	cfg.VerifyTimeout = getEnvDuration("VERIFY_TIMEOUT", 5*time.Second)
	cfg.GuardMinVerifying = getEnvDuration("GUARD_MIN_VERIFYING", 0)
	cfg.LoginPath = getEnvString("LOGIN_PATH", "/login")
	cfg.FrontendURL = os.Getenv("FRONTEND_URL")

	cfg.RateLimitGeneral = getEnvInt("RATE_LIMIT_GENERAL", 120)
	cfg.RateLimitAuth = getEnvInt("RATE_LIMIT_AUTH", 20)

	cfg.CleanupInterval = getEnvDuration("CLEANUP_INTERVAL", 24*time.Hour)

	cfg.ServerPort = getEnvString("SERVER_PORT", "8080")
	cfg.WebPort = getEnvString("WEB_PORT", "3000")
	cfg.CookieSecure = strings.HasPrefix(cfg.BaseURL, "https://")
	cfg.CookieDomain = getEnvString("COOKIE_DOMAIN", "")
	cfg.CORSAllowedOrigin = getEnvString("CORS_ALLOWED_ORIGIN", "http://localhost:3000")
	cfg.TrustProxy = getEnvBool("TRUST_PROXY", false)
}

func getEnvString(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return i
}

func getEnvBool(key string, defaultVal bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return defaultVal
	}
	return b
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return defaultVal
	}
	return d
}

// getEnvList はカンマ区切りの環境変数を空要素を除いて読み込む。
func getEnvList(key string, defaultVal []string) []string {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	var out []string
	for _, s := range strings.Split(v, ",") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	if len(out) == 0 {
		return defaultVal
	}
	return out
}
