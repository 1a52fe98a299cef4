// Package verifier はAPIサーバーの /auth/verify へ1回問い合わせ、
// リクエストの資格情報に対応するユーザーを解決する。
//
// 結果は常に「ユーザー」か「ユーザーなし」のどちらかで、エラーは返さない。
// 通信失敗・異常ステータス・不正なレスポンスはすべて未認証として扱う。
package verifier

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"time"

	"golang.org/x/net/publicsuffix"

	"github.com/jeanikt/uniconnect/internal/model"
)

// SessionCookieName はAPIサーバーが発行するセッションCookie名。
const SessionCookieName = "session_id"

// validTokenMessage はトークン検証形式のレスポンスで認証成功を表すメッセージ。
const validTokenMessage = "Token is valid"

// maxResponseBytes はレスポンスボディの読み取り上限。
const maxResponseBytes = 1 << 20

// Mode は資格情報の受け渡し方式。
type Mode string

const (
	// ModeCookie はセッションCookieを転送する。
	ModeCookie Mode = "cookie"
	// ModeToken はBearerトークンを転送する。
	ModeToken Mode = "token"
)

// ParseMode は設定値からModeを返す。未知の値はModeCookieとして扱う。
func ParseMode(s string) Mode {
	if Mode(strings.ToLower(s)) == ModeToken {
		return ModeToken
	}
	return ModeCookie
}

// Outcome は検証結果の内訳。ログとメトリクスのためだけに使う。
type Outcome string

const (
	OutcomeAuthenticated   Outcome = "authenticated"
	OutcomeUnauthenticated Outcome = "unauthenticated"
	OutcomeTransportError  Outcome = "transport_error"
	OutcomeBadStatus       Outcome = "bad_status"
	OutcomeMalformed       Outcome = "malformed"
	OutcomeNoCredential    Outcome = "no_credential"
)

// Credentials は受信リクエストから取り出した資格情報。
type Credentials struct {
	SessionID string // session_id Cookieの値
	Token     string // Bearerトークン
}

// Result は検証結果。Outcomeが認証済み以外のときUserは常にnil。
type Result struct {
	User    *model.User
	Outcome Outcome
}

// Authenticated はユーザーが解決できたかを返す。
func (r Result) Authenticated() bool {
	return r.User != nil
}

// TokenStore はトークンモードでトークンを取り出す保管先。
type TokenStore interface {
	Token(ctx context.Context) (string, error)
}

// Recorder は検証結果の記録先。
type Recorder interface {
	RecordVerification(outcome string, duration time.Duration)
}

// Config はVerifierの設定。
type Config struct {
	BaseURL string        // APIサーバーのベースURL
	Mode    Mode          // 資格情報の受け渡し方式
	Timeout time.Duration // 1回の問い合わせのタイムアウト
}

// Option はVerifierの任意設定。
type Option func(*Verifier)

// WithTransport はHTTPトランスポートを差し替える。
func WithTransport(rt http.RoundTripper) Option {
	return func(v *Verifier) { v.transport = rt }
}

// WithTokenStore はトークンモードで資格情報にトークンがない場合の保管先を設定する。
func WithTokenStore(store TokenStore) Option {
	return func(v *Verifier) { v.tokens = store }
}

// WithRecorder は検証結果の記録先を設定する。
func WithRecorder(rec Recorder) Option {
	return func(v *Verifier) { v.recorder = rec }
}

// WithLogger はロガーを設定する。
func WithLogger(logger *slog.Logger) Option {
	return func(v *Verifier) { v.logger = logger }
}

// Verifier はセッション検証クライアント。並行利用できる。
type Verifier struct {
	endpoint  *url.URL
	mode      Mode
	timeout   time.Duration
	transport http.RoundTripper
	tokens    TokenStore
	recorder  Recorder
	logger    *slog.Logger
}

// New はVerifierを生成する。BaseURLが解釈できない場合はエラーを返す。
func New(cfg Config, opts ...Option) (*Verifier, error) {
	base, err := url.Parse(strings.TrimRight(cfg.BaseURL, "/"))
	if err != nil || base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("invalid verifier base URL %q", cfg.BaseURL)
	}

	v := &Verifier{
		endpoint:  base.JoinPath("auth", "verify"),
		mode:      cfg.Mode,
		timeout:   cfg.Timeout,
		transport: http.DefaultTransport,
		logger:    slog.Default(),
	}
	if v.mode == "" {
		v.mode = ModeCookie
	}
	if v.timeout <= 0 {
		v.timeout = 5 * time.Second
	}
	for _, opt := range opts {
		opt(v)
	}
	return v, nil
}

// Mode は設定済みの受け渡し方式を返す。
func (v *Verifier) Mode() Mode {
	return v.mode
}

// Verify は資格情報を1回だけ問い合わせ、対応するユーザーを返す。
// リトライもキャッシュもしない。失敗はすべてユーザーなしとして返す。
func (v *Verifier) Verify(ctx context.Context, creds Credentials) Result {
	start := time.Now()
	res := v.verify(ctx, creds)

	if v.recorder != nil {
		v.recorder.RecordVerification(string(res.Outcome), time.Since(start))
	}
	if res.Outcome != OutcomeAuthenticated && res.Outcome != OutcomeUnauthenticated && res.Outcome != OutcomeNoCredential {
		v.logger.Warn("session verification failed closed",
			slog.String("outcome", string(res.Outcome)),
			slog.String("endpoint", v.endpoint.String()),
		)
	}
	return res
}

func (v *Verifier) verify(ctx context.Context, creds Credentials) Result {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, v.endpoint.String(), nil)
	if err != nil {
		return Result{Outcome: OutcomeTransportError}
	}
	req.Header.Set("Accept", "application/json")

	client := &http.Client{Transport: v.transport, Timeout: v.timeout}

	switch v.mode {
	case ModeToken:
		token := creds.Token
		if token == "" && v.tokens != nil {
			if token, err = v.tokens.Token(ctx); err != nil {
				v.logger.Warn("failed to read token from store", slog.String("error", err.Error()))
				token = ""
			}
		}
		if token == "" {
			// 資格情報がなければ問い合わせない
			return Result{Outcome: OutcomeNoCredential}
		}
		q := req.URL.Query()
		q.Set("token", token)
		req.URL.RawQuery = q.Encode()
		req.Header.Set("Authorization", "Bearer "+token)
	default:
		// 呼び出しごとに新しいCookieJarを使い、他のユーザーのCookieと混ざらないようにする
		jar, err := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
		if err != nil {
			return Result{Outcome: OutcomeTransportError}
		}
		if creds.SessionID != "" {
			jar.SetCookies(v.endpoint, []*http.Cookie{{Name: SessionCookieName, Value: creds.SessionID}})
		}
		client.Jar = jar
	}

	resp, err := client.Do(req)
	if err != nil {
		return Result{Outcome: OutcomeTransportError}
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return Result{Outcome: OutcomeUnauthenticated}
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		return Result{Outcome: OutcomeBadStatus}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return Result{Outcome: OutcomeTransportError}
	}
	return decode(body)
}

// verifyResponse は {authenticated, user} と {message, user} の両方の形式を受け付ける。
type verifyResponse struct {
	Authenticated *bool     `json:"authenticated"`
	Message       string    `json:"message"`
	User          *wireUser `json:"user"`
}

type wireUser struct {
	ID        flexibleID `json:"id"`
	Email     string     `json:"email"`
	Username  string     `json:"username"`
	Name      string     `json:"name"`
	AvatarURL string     `json:"avatar_url"`
	IsAdmin   bool       `json:"is_admin"`
}

// flexibleID は文字列と数値のどちらのIDも受け付ける。
type flexibleID string

func (id *flexibleID) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err == nil {
		*id = flexibleID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return fmt.Errorf("user id must be a string or number: %w", err)
	}
	*id = flexibleID(n.String())
	return nil
}

func decode(body []byte) Result {
	var payload verifyResponse
	if err := json.Unmarshal(body, &payload); err != nil {
		return Result{Outcome: OutcomeMalformed}
	}

	authenticated := false
	if payload.Authenticated != nil {
		authenticated = *payload.Authenticated
	} else {
		authenticated = payload.Message == validTokenMessage
	}
	if !authenticated {
		return Result{Outcome: OutcomeUnauthenticated}
	}

	if payload.User == nil || payload.User.ID == "" {
		return Result{Outcome: OutcomeMalformed}
	}

	return Result{
		Outcome: OutcomeAuthenticated,
		User: &model.User{
			ID:        string(payload.User.ID),
			Email:     payload.User.Email,
			Username:  payload.User.Username,
			Name:      payload.User.Name,
			AvatarURL: payload.User.AvatarURL,
			IsAdmin:   payload.User.IsAdmin,
		},
	}
}
