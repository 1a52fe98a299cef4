// Package auth はサインインフロー、セッション発行、認証バックエンドを提供する。
package auth

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jeanikt/uniconnect/internal/model"
	"github.com/jeanikt/uniconnect/internal/repository"
)

// サインイン判定の記録値。
const (
	decisionAllowed = "allowed"
	decisionDenied  = "denied"
)

// maxUsernameLength はユーザー名の最大長。
const maxUsernameLength = 40

var usernameDisallowed = regexp.MustCompile(`[^A-Za-z0-9_-]+`)

// ValidUsername はユーザー名が英数字と"_"、"-"のみで構成されているかを返す。
func ValidUsername(username string) bool {
	return username != "" && !usernameDisallowed.MatchString(username)
}

// SignInRecorder はサインイン判定の記録先。
type SignInRecorder interface {
	RecordSignIn(provider, decision string)
}

// ServiceConfig は認証サービスの設定。
type ServiceConfig struct {
	SessionMaxAge int           // セッション有効期間（秒）
	MagicLinkTTL  time.Duration // マジックリンクの有効期間
	BaseURL       string        // マジックリンクに埋め込むAPIのURL
}

// Deps は認証サービスの依存関係。GitHubとCredentialsはnilの場合無効になる。
type Deps struct {
	GitHub      OAuthBackend
	Credentials CredentialBackend
	Policy      SignInPolicy
	Hasher      PasswordHasher
	Tokens      *TokenIssuer
	Users       repository.UserRepository
	Identities  repository.IdentityRepository
	Sessions    repository.SessionRepository
	MagicLinks  repository.MagicLinkRepository
	Mailer      Mailer
	Recorder    SignInRecorder
}

// SignInResult はサインイン成功時に発行されたセッションとトークン。
type SignInResult struct {
	User    *model.User
	Session *model.Session
	Token   string
}

// RegisterInput はパスワード登録の入力。
type RegisterInput struct {
	Email    string
	Username string
	Password string
}

// Service は認証に関するビジネスロジックを提供する。
type Service struct {
	deps   Deps
	config ServiceConfig
}

// NewService はServiceを生成する。
func NewService(deps Deps, config ServiceConfig) *Service {
	if deps.Mailer == nil {
		deps.Mailer = NewLogMailer(nil)
	}
	if config.MagicLinkTTL <= 0 {
		config.MagicLinkTTL = 15 * time.Minute
	}
	return &Service{deps: deps, config: config}
}

// GitHubEnabled はGitHubサインインが利用可能かを返す。
func (s *Service) GitHubEnabled() bool {
	return s.deps.GitHub != nil
}

// GetLoginURL はGitHub OAuth認証URLを生成する。
func (s *Service) GetLoginURL(state string) (string, error) {
	if s.deps.GitHub == nil {
		return "", ErrProviderDisabled
	}
	return s.deps.GitHub.GetLoginURL(state), nil
}

// HandleOAuthCallback はGitHubのコールバックを処理し、許可されたIDにのみセッションを発行する。
func (s *Service) HandleOAuthCallback(ctx context.Context, code string) (*SignInResult, error) {
	if s.deps.GitHub == nil {
		return nil, ErrProviderDisabled
	}

	identity, err := s.deps.GitHub.ExchangeCode(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("failed to exchange oauth code: %w", err)
	}

	return s.signIn(ctx, identity)
}

// Register はメールアドレスとパスワードでユーザーを登録し、セッションを発行する。
func (s *Service) Register(ctx context.Context, in RegisterInput) (*SignInResult, error) {
	email := strings.TrimSpace(in.Email)
	username := strings.TrimSpace(in.Username)
	if !ValidUsername(username) {
		return nil, model.NewInvalidRequestError("username may only contain letters, digits, '_' and '-'")
	}

	candidate := ResolvedIdentity{
		Provider:       model.ProviderCredentials,
		ProviderUserID: strings.ToLower(email),
		Email:          email,
	}
	if !s.deps.Policy.Allow(candidate) {
		s.record(model.ProviderCredentials, decisionDenied)
		return nil, model.NewSignInDeniedError(model.ProviderCredentials)
	}

	existing, err := s.deps.Users.FindByEmail(ctx, email)
	if err != nil {
		return nil, fmt.Errorf("failed to find user by email: %w", err)
	}
	if existing != nil {
		return nil, model.NewEmailTakenError()
	}
	existing, err = s.deps.Users.FindByUsername(ctx, username)
	if err != nil {
		return nil, fmt.Errorf("failed to find user by username: %w", err)
	}
	if existing != nil {
		return nil, model.NewUsernameTakenError(username)
	}

	hash, err := s.deps.Hasher.Hash(in.Password)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	user := &model.User{
		ID:           uuid.New().String(),
		Email:        email,
		Username:     username,
		Name:         username,
		PasswordHash: hash,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	identity := &model.Identity{
		ID:             uuid.New().String(),
		UserID:         user.ID,
		Provider:       model.ProviderCredentials,
		ProviderUserID: candidate.ProviderUserID,
		CreatedAt:      now,
	}
	if err := s.deps.Users.CreateWithIdentity(ctx, user, identity); err != nil {
		if errors.Is(err, repository.ErrConflict) {
			if c, _ := repository.ConflictConstraint(err); c == repository.ConstraintUserUsername {
				return nil, model.NewUsernameTakenError(username)
			}
			return nil, model.NewEmailTakenError()
		}
		return nil, fmt.Errorf("failed to create user: %w", err)
	}

	slog.Info("new user registered",
		slog.String("user_id", user.ID),
		slog.String("provider", model.ProviderCredentials),
	)

	result, err := s.startSession(ctx, user)
	if err != nil {
		return nil, err
	}
	s.record(model.ProviderCredentials, decisionAllowed)
	return result, nil
}

// Login はメールアドレスとパスワードで認証し、セッションを発行する。
func (s *Service) Login(ctx context.Context, email, password string) (*SignInResult, error) {
	if s.deps.Credentials == nil {
		return nil, model.NewSignInDeniedError(model.ProviderCredentials)
	}

	identity, err := s.deps.Credentials.Authorize(ctx, email, password)
	if err != nil {
		return nil, fmt.Errorf("failed to authorize credentials: %w", err)
	}
	if identity == nil {
		return nil, model.NewInvalidCredentialsError()
	}

	return s.signIn(ctx, identity)
}

// RequestMagicLink はサインインリンクを発行してメールで送信する。
// リンクにはトークン本体を含め、DBにはハッシュのみを保存する。
func (s *Service) RequestMagicLink(ctx context.Context, email, next string) error {
	email = strings.TrimSpace(email)
	if !s.deps.Policy.Allow(ResolvedIdentity{Provider: model.ProviderEmail, Email: email}) {
		s.record(model.ProviderEmail, decisionDenied)
		return model.NewSignInDeniedError(model.ProviderEmail)
	}

	token, hash, err := newMagicLinkToken()
	if err != nil {
		return err
	}

	now := time.Now()
	link := &model.MagicLink{
		ID:        uuid.New().String(),
		Email:     email,
		TokenHash: hash,
		ExpiresAt: now.Add(s.config.MagicLinkTTL),
		CreatedAt: now,
	}
	if err := s.deps.MagicLinks.Create(ctx, link); err != nil {
		return fmt.Errorf("failed to save magic link: %w", err)
	}

	params := url.Values{"token_hash": {token}, "type": {"email"}}
	if next != "" {
		params.Set("next", next)
	}
	confirmURL := strings.TrimRight(s.config.BaseURL, "/") + "/auth/confirm?" + params.Encode()

	if err := s.deps.Mailer.SendMagicLink(ctx, email, confirmURL); err != nil {
		return fmt.Errorf("failed to send magic link: %w", err)
	}
	return nil
}

// ConfirmMagicLink はリンクのトークンを1回だけ受け付け、セッションを発行する。
// linkTypeは空、"email"、"magiclink"のいずれかのみ有効。
func (s *Service) ConfirmMagicLink(ctx context.Context, token, linkType string) (*SignInResult, error) {
	switch linkType {
	case "", "email", "magiclink":
	default:
		return nil, model.NewInvalidMagicLinkError()
	}
	if token == "" {
		return nil, model.NewInvalidMagicLinkError()
	}

	link, err := s.deps.MagicLinks.Consume(ctx, hashMagicLinkToken(token), time.Now())
	if err != nil {
		return nil, fmt.Errorf("failed to consume magic link: %w", err)
	}
	if link == nil {
		return nil, model.NewInvalidMagicLinkError()
	}

	return s.signIn(ctx, &ResolvedIdentity{
		Provider:       model.ProviderEmail,
		ProviderUserID: strings.ToLower(link.Email),
		Email:          link.Email,
	})
}

// Logout はセッションを破棄する。
func (s *Service) Logout(ctx context.Context, sessionID string) error {
	if sessionID == "" {
		return fmt.Errorf("session ID is required")
	}

	if err := s.deps.Sessions.DeleteByID(ctx, sessionID); err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}

	slog.Info("user logged out", slog.String("session_id", sessionID))
	return nil
}

// Authenticate はセッションIDまたはトークンから現在のユーザーを解決する。
// トークンが指定された場合はトークンを優先する。
// 無効な資格情報の場合はエラーではなくnilを返す。
func (s *Service) Authenticate(ctx context.Context, sessionID, token string) (*model.User, *model.Session, error) {
	if token != "" {
		sid, err := s.deps.Tokens.ParseSessionID(token)
		if err != nil {
			slog.Debug("invalid session token", slog.String("error", err.Error()))
			return nil, nil, nil
		}
		sessionID = sid
	}
	if sessionID == "" {
		return nil, nil, nil
	}

	session, err := s.deps.Sessions.FindByID(ctx, sessionID)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to find session: %w", err)
	}
	if session == nil {
		return nil, nil, nil
	}

	user, err := s.deps.Users.FindByID(ctx, session.UserID)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to find user: %w", err)
	}
	if user == nil {
		return nil, nil, nil
	}

	return user, session, nil
}

// signIn はポリシーを確認し、IDに対応するユーザーのセッションを発行する。
func (s *Service) signIn(ctx context.Context, identity *ResolvedIdentity) (*SignInResult, error) {
	if !s.deps.Policy.Allow(*identity) {
		s.record(identity.Provider, decisionDenied)
		slog.Warn("sign-in denied by policy",
			slog.String("provider", identity.Provider),
			slog.String("login", identity.Login),
		)
		return nil, model.NewSignInDeniedError(identity.Provider)
	}

	user, err := s.resolveUser(ctx, identity)
	if err != nil {
		return nil, err
	}

	result, err := s.startSession(ctx, user)
	if err != nil {
		return nil, err
	}
	s.record(identity.Provider, decisionAllowed)
	return result, nil
}

// resolveUser はIDに対応するローカルユーザーを返す。
// 未登録の場合はusersレコードとidentitiesレコードを同時に作成する。
// メールリンクで所有が確認されたアドレスは既存ユーザーに紐付ける。
func (s *Service) resolveUser(ctx context.Context, identity *ResolvedIdentity) (*model.User, error) {
	if identity.UserID != "" {
		user, err := s.deps.Users.FindByID(ctx, identity.UserID)
		if err != nil {
			return nil, fmt.Errorf("failed to find user: %w", err)
		}
		if user == nil {
			return nil, fmt.Errorf("user not found: %s", identity.UserID)
		}
		return user, nil
	}

	existing, err := s.deps.Identities.FindByProviderAndProviderUserID(ctx, identity.Provider, identity.ProviderUserID)
	if err != nil {
		return nil, fmt.Errorf("failed to find identity: %w", err)
	}
	if existing != nil {
		user, err := s.deps.Users.FindByID(ctx, existing.UserID)
		if err != nil {
			return nil, fmt.Errorf("failed to find user: %w", err)
		}
		if user == nil {
			return nil, fmt.Errorf("identity references missing user: %s", existing.UserID)
		}
		slog.Info("existing user signed in",
			slog.String("user_id", user.ID),
			slog.String("provider", identity.Provider),
		)
		return user, nil
	}

	now := time.Now()

	if identity.Provider == model.ProviderEmail {
		user, err := s.deps.Users.FindByEmail(ctx, identity.Email)
		if err != nil {
			return nil, fmt.Errorf("failed to find user by email: %w", err)
		}
		if user != nil {
			link := &model.Identity{
				ID:             uuid.New().String(),
				UserID:         user.ID,
				Provider:       identity.Provider,
				ProviderUserID: identity.ProviderUserID,
				CreatedAt:      now,
			}
			if err := s.deps.Identities.Create(ctx, link); err != nil {
				return nil, fmt.Errorf("failed to link identity: %w", err)
			}
			return user, nil
		}
	}

	if identity.Email == "" {
		return nil, model.NewInvalidRequestError("an email address is required to create an account")
	}

	username, err := s.uniqueUsername(ctx, usernameBase(identity))
	if err != nil {
		return nil, err
	}

	user := &model.User{
		ID:        uuid.New().String(),
		Email:     identity.Email,
		Username:  username,
		Name:      identity.Name,
		AvatarURL: identity.AvatarURL,
		CreatedAt: now,
		UpdatedAt: now,
	}
	newIdentity := &model.Identity{
		ID:             uuid.New().String(),
		UserID:         user.ID,
		Provider:       identity.Provider,
		ProviderUserID: identity.ProviderUserID,
		CreatedAt:      now,
	}
	if err := s.deps.Users.CreateWithIdentity(ctx, user, newIdentity); err != nil {
		if errors.Is(err, repository.ErrConflict) {
			return nil, model.NewEmailTakenError()
		}
		return nil, fmt.Errorf("failed to create user and identity: %w", err)
	}

	slog.Info("new user created",
		slog.String("user_id", user.ID),
		slog.String("provider", identity.Provider),
	)
	return user, nil
}

// usernameBase は新規ユーザーのユーザー名の候補を返す。
func usernameBase(identity *ResolvedIdentity) string {
	base := identity.Login
	if base == "" {
		base, _, _ = strings.Cut(identity.Email, "@")
	}
	base = usernameDisallowed.ReplaceAllString(base, "")
	if len(base) > maxUsernameLength-5 {
		base = base[:maxUsernameLength-5]
	}
	if base == "" {
		base = "user"
	}
	return base
}

// uniqueUsername は未使用のユーザー名を返す。衝突した場合はランダムな接尾辞を付ける。
func (s *Service) uniqueUsername(ctx context.Context, base string) (string, error) {
	candidate := base
	for i := 0; i < 5; i++ {
		existing, err := s.deps.Users.FindByUsername(ctx, candidate)
		if err != nil {
			return "", fmt.Errorf("failed to find user by username: %w", err)
		}
		if existing == nil {
			return candidate, nil
		}
		suffix := make([]byte, 2)
		if _, err := rand.Read(suffix); err != nil {
			return "", fmt.Errorf("failed to generate username suffix: %w", err)
		}
		candidate = base + "-" + hex.EncodeToString(suffix)
	}
	return "", fmt.Errorf("could not find a free username for %q", base)
}

// startSession はセッションを作成し、対応するトークンを発行する。
func (s *Service) startSession(ctx context.Context, user *model.User) (*SignInResult, error) {
	session, err := s.createSession(ctx, user.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}

	token, err := s.deps.Tokens.Issue(user, session)
	if err != nil {
		return nil, err
	}

	return &SignInResult{User: user, Session: session, Token: token}, nil
}

// createSession はセッションを作成し永続化する。
func (s *Service) createSession(ctx context.Context, userID string) (*model.Session, error) {
	sessionID, err := generateSessionID()
	if err != nil {
		return nil, fmt.Errorf("failed to generate session ID: %w", err)
	}

	now := time.Now()
	session := &model.Session{
		ID:        sessionID,
		UserID:    userID,
		ExpiresAt: now.Add(time.Duration(s.config.SessionMaxAge) * time.Second),
		CreatedAt: now,
	}

	if err := s.deps.Sessions.Create(ctx, session); err != nil {
		return nil, fmt.Errorf("failed to save session: %w", err)
	}

	return session, nil
}

func (s *Service) record(provider, decision string) {
	if s.deps.Recorder != nil {
		s.deps.Recorder.RecordSignIn(provider, decision)
	}
}

// generateSessionID は暗号的に安全なセッションIDを生成する。
func generateSessionID() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
