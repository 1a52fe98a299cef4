package handler

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/jeanikt/uniconnect/internal/auth"
	"github.com/jeanikt/uniconnect/internal/middleware"
	"github.com/jeanikt/uniconnect/internal/model"
)

const oauthStateCookie = "oauth_state"

// AuthServiceInterface は認証ハンドラーが必要とするサービスインターフェース。
type AuthServiceInterface interface {
	GitHubEnabled() bool
	GetLoginURL(state string) (string, error)
	HandleOAuthCallback(ctx context.Context, code string) (*auth.SignInResult, error)
	Register(ctx context.Context, in auth.RegisterInput) (*auth.SignInResult, error)
	Login(ctx context.Context, email, password string) (*auth.SignInResult, error)
	RequestMagicLink(ctx context.Context, email, next string) error
	ConfirmMagicLink(ctx context.Context, token, linkType string) (*auth.SignInResult, error)
	Logout(ctx context.Context, sessionID string) error
	Authenticate(ctx context.Context, sessionID, token string) (*model.User, *model.Session, error)
}

var _ AuthServiceInterface = (*auth.Service)(nil)

// AuthHandlerConfig は認証ハンドラーの設定。
type AuthHandlerConfig struct {
	AppURL        string // サインイン後のリダイレクト先（フロントエンド）
	CookieDomain  string
	CookieSecure  bool
	SessionMaxAge int // セッションCookieの有効期間（秒）
}

// AuthHandler は認証関連のHTTPハンドラー。
type AuthHandler struct {
	service AuthServiceInterface
	config  AuthHandlerConfig
}

// NewAuthHandler はAuthHandlerを生成する。
func NewAuthHandler(service AuthServiceInterface, config AuthHandlerConfig) *AuthHandler {
	return &AuthHandler{
		service: service,
		config:  config,
	}
}

// signInResponse はサインイン成功時のレスポンス。
type signInResponse struct {
	Message string       `json:"message"`
	User    userResponse `json:"user"`
	Token   string       `json:"token"`
}

// verifyUser は/auth/verifyで公開するユーザー情報。
type verifyUser struct {
	ID       string `json:"id"`
	Email    string `json:"email"`
	Username string `json:"username"`
	IsAdmin  bool   `json:"is_admin"`
}

type verifyResponse struct {
	Authenticated bool        `json:"authenticated"`
	User          *verifyUser `json:"user,omitempty"`
}

type registerRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Username string `json:"username" validate:"required,min=3,max=40,username"`
	Password string `json:"password" validate:"required,min=8,max=72"`
}

type loginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

type magicLinkRequest struct {
	Email string `json:"email" validate:"required,email"`
	Next  string `json:"next"`
}

type verifyMagicLinkRequest struct {
	Token string `json:"token" validate:"required"`
}

// GitHubLogin はGitHub OAuthフローを開始する。
// GET /auth/github/login
func (h *AuthHandler) GitHubLogin(w http.ResponseWriter, r *http.Request) {
	if !h.service.GitHubEnabled() {
		http.NotFound(w, r)
		return
	}

	state, err := generateState()
	if err != nil {
		slog.Error("failed to generate oauth state", slog.String("error", err.Error()))
		middleware.WriteInternalServerError(w)
		return
	}

	loginURL, err := h.service.GetLoginURL(state)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	// stateをCookieに保存（CSRF対策）
	http.SetCookie(w, &http.Cookie{
		Name:     oauthStateCookie,
		Value:    state,
		Path:     "/",
		MaxAge:   600, // 10分
		HttpOnly: true,
		Secure:   h.config.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	})

	http.Redirect(w, r, loginURL, http.StatusTemporaryRedirect)
}

// GitHubCallback はOAuthコールバックを処理する。
// 許可リストにないアカウントはセッションを発行せずエラーページへ戻す。
// GET /auth/github/callback?code=xxx&state=yyy
func (h *AuthHandler) GitHubCallback(w http.ResponseWriter, r *http.Request) {
	if !h.service.GitHubEnabled() {
		http.NotFound(w, r)
		return
	}

	state := r.URL.Query().Get("state")
	stateCookie, err := r.Cookie(oauthStateCookie)
	if err != nil || state == "" || stateCookie.Value != state {
		slog.Warn("oauth state mismatch", slog.String("query_state", state))
		middleware.WriteErrorResponse(w, http.StatusBadRequest, model.NewInvalidRequestError("invalid state parameter"))
		return
	}

	// stateクッキーを削除
	http.SetCookie(w, &http.Cookie{
		Name:     oauthStateCookie,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   h.config.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	})

	code := r.URL.Query().Get("code")
	if code == "" {
		middleware.WriteErrorResponse(w, http.StatusBadRequest, model.NewInvalidRequestError("missing authorization code"))
		return
	}

	result, err := h.service.HandleOAuthCallback(r.Context(), code)
	if err != nil {
		var apiErr *model.APIError
		if errors.As(err, &apiErr) && apiErr.Code == model.ErrCodeSignInDenied {
			http.Redirect(w, r, h.appURL("/error?error=AccessDenied"), http.StatusTemporaryRedirect)
			return
		}
		slog.Error("oauth callback failed", slog.String("error", err.Error()))
		http.Redirect(w, r, h.appURL("/error"), http.StatusTemporaryRedirect)
		return
	}

	h.setSessionCookie(w, result.Session.ID)
	http.Redirect(w, r, h.appURL("/"), http.StatusTemporaryRedirect)
}

// Register はメールアドレスとパスワードでアカウントを作成する。
// POST /auth/register
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	result, err := h.service.Register(r.Context(), auth.RegisterInput{
		Email:    req.Email,
		Username: req.Username,
		Password: req.Password,
	})
	if err != nil {
		handleServiceError(w, err)
		return
	}

	h.setSessionCookie(w, result.Session.ID)
	writeJSON(w, http.StatusCreated, signInResponse{
		Message: "Registration successful",
		User:    toUserResponse(result.User),
		Token:   result.Token,
	})
}

// Login はメールアドレスとパスワードでサインインする。
// POST /auth/login
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	result, err := h.service.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	h.setSessionCookie(w, result.Session.ID)
	writeJSON(w, http.StatusOK, signInResponse{
		Message: "Login successful",
		User:    toUserResponse(result.User),
		Token:   result.Token,
	})
}

// RequestMagicLink はサインインリンクをメールで送る。
// POST /auth/magic-link
func (h *AuthHandler) RequestMagicLink(w http.ResponseWriter, r *http.Request) {
	var req magicLinkRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	if err := h.service.RequestMagicLink(r.Context(), req.Email, safeNextPath(req.Next)); err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]string{
		"message": "Check your email for the sign-in link",
	})
}

// Confirm はメールのサインインリンクを確認してアプリのnextへリダイレクトする。
// GET /auth/confirm?token_hash=xxx&type=email&next=/path
func (h *AuthHandler) Confirm(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	result, err := h.service.ConfirmMagicLink(r.Context(), q.Get("token_hash"), q.Get("type"))
	if err != nil {
		var apiErr *model.APIError
		if !errors.As(err, &apiErr) {
			slog.Error("failed to confirm magic link", slog.String("error", err.Error()))
		}
		http.Redirect(w, r, h.appURL("/error"), http.StatusSeeOther)
		return
	}

	h.setSessionCookie(w, result.Session.ID)
	http.Redirect(w, r, h.appURL(safeNextPath(q.Get("next"))), http.StatusSeeOther)
}

// VerifyMagicLink はリンクのトークンをJSONで受け取ってサインインする。
// POST /verify-magic-link
func (h *AuthHandler) VerifyMagicLink(w http.ResponseWriter, r *http.Request) {
	var req verifyMagicLinkRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	result, err := h.service.ConfirmMagicLink(r.Context(), req.Token, "")
	if err != nil {
		handleServiceError(w, err)
		return
	}

	h.setSessionCookie(w, result.Session.ID)
	writeJSON(w, http.StatusOK, signInResponse{
		Message: "Login successful",
		User:    toUserResponse(result.User),
		Token:   result.Token,
	})
}

// Verify は資格情報を検証して認証状態を返す。未認証でも200を返す。
// GET /auth/verify
func (h *AuthHandler) Verify(w http.ResponseWriter, r *http.Request) {
	var sessionID string
	if c, err := r.Cookie(middleware.SessionCookieName); err == nil {
		sessionID = c.Value
	}
	token := middleware.BearerToken(r)
	if token == "" {
		token = r.URL.Query().Get("token")
	}

	user, _, err := h.service.Authenticate(r.Context(), sessionID, token)
	if err != nil {
		slog.Error("failed to verify session", slog.String("error", err.Error()))
	}
	if err != nil || user == nil {
		writeJSON(w, http.StatusOK, verifyResponse{Authenticated: false})
		return
	}

	writeJSON(w, http.StatusOK, verifyResponse{
		Authenticated: true,
		User: &verifyUser{
			ID:       user.ID,
			Email:    user.Email,
			Username: user.Username,
			IsAdmin:  user.IsAdmin,
		},
	})
}

// Logout はセッションを破棄する。
// POST /auth/logout
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	sessionID := ""
	if cookie, err := r.Cookie(middleware.SessionCookieName); err == nil {
		sessionID = cookie.Value
	}
	if sessionID == "" {
		if token := middleware.BearerToken(r); token != "" {
			if _, session, err := h.service.Authenticate(r.Context(), "", token); err == nil && session != nil {
				sessionID = session.ID
			}
		}
	}

	if sessionID != "" {
		if err := h.service.Logout(r.Context(), sessionID); err != nil {
			// ログアウトに失敗してもCookieはクリアする
			slog.Error("failed to logout", slog.String("error", err.Error()))
		}
	}

	http.SetCookie(w, &http.Cookie{
		Name:     middleware.SessionCookieName,
		Value:    "",
		Path:     "/",
		Domain:   h.config.CookieDomain,
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   h.config.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	})

	w.WriteHeader(http.StatusNoContent)
}

// Me は現在のログインユーザー情報を返す。
// GET /auth/me
func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	user, ok := currentUser(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, toUserResponse(user))
}

func (h *AuthHandler) setSessionCookie(w http.ResponseWriter, sessionID string) {
	http.SetCookie(w, &http.Cookie{
		Name:     middleware.SessionCookieName,
		Value:    sessionID,
		Path:     "/",
		Domain:   h.config.CookieDomain,
		MaxAge:   h.config.SessionMaxAge,
		HttpOnly: true,
		Secure:   h.config.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	})
}

func (h *AuthHandler) appURL(path string) string {
	return strings.TrimRight(h.config.AppURL, "/") + path
}

// safeNextPath は同一オリジンの相対パスのみを許可し、それ以外は"/"を返す。
func safeNextPath(next string) string {
	if next == "" || !strings.HasPrefix(next, "/") || strings.HasPrefix(next, "//") || strings.Contains(next, `\`) {
		return "/"
	}
	u, err := url.Parse(next)
	if err != nil || u.Scheme != "" || u.Host != "" {
		return "/"
	}
	return next
}

// generateState はCSRF対策用のランダムなstate値を生成する。
func generateState() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
