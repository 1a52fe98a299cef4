package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/jeanikt/uniconnect/internal/auth"
	"github.com/jeanikt/uniconnect/internal/middleware"
	"github.com/jeanikt/uniconnect/internal/model"
	"github.com/jeanikt/uniconnect/internal/post"
	"github.com/jeanikt/uniconnect/internal/user"
)

// --- テストヘルパー ---

// withUser はセッションミドルウェア通過後と同じコンテキストを持つリクエストを返す。
func withUser(req *http.Request, u *model.User) *http.Request {
	return req.WithContext(middleware.ContextWithUser(req.Context(), u))
}

func testUser() *model.User {
	return &model.User{ID: "user-1", Email: "jean@example.com", Username: "jean", Name: "Jean"}
}

// decodeBody はレスポンスボディをJSONとしてデコードする。
func decodeBody(t *testing.T, rec *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	if err := json.NewDecoder(rec.Body).Decode(v); err != nil {
		t.Fatalf("failed to decode response body: %v\nraw: %s", err, rec.Body.String())
	}
}

// assertErrorCode はエラーレスポンスのステータスとコードを検証する。
func assertErrorCode(t *testing.T, rec *httptest.ResponseRecorder, wantStatus int, wantCode string) {
	t.Helper()
	if rec.Code != wantStatus {
		t.Fatalf("status = %d, want %d (body: %s)", rec.Code, wantStatus, rec.Body.String())
	}
	var body middleware.ErrorResponseBody
	decodeBody(t, rec, &body)
	if body.Code != wantCode {
		t.Errorf("code = %q, want %q", body.Code, wantCode)
	}
}

// --- モック定義 ---

// mockAuthService はAuthServiceInterfaceのモック実装。
type mockAuthService struct {
	githubEnabled     bool
	getLoginURLFn     func(state string) (string, error)
	oauthCallbackFn   func(ctx context.Context, code string) (*auth.SignInResult, error)
	registerFn        func(ctx context.Context, in auth.RegisterInput) (*auth.SignInResult, error)
	loginFn           func(ctx context.Context, email, password string) (*auth.SignInResult, error)
	requestMagicFn    func(ctx context.Context, email, next string) error
	confirmMagicFn    func(ctx context.Context, token, linkType string) (*auth.SignInResult, error)
	logoutFn          func(ctx context.Context, sessionID string) error
	authenticateFn    func(ctx context.Context, sessionID, token string) (*model.User, *model.Session, error)
	loggedOutSessions []string
}

func (m *mockAuthService) GitHubEnabled() bool { return m.githubEnabled }

func (m *mockAuthService) GetLoginURL(state string) (string, error) {
	if m.getLoginURLFn != nil {
		return m.getLoginURLFn(state)
	}
	return "https://github.com/login/oauth/authorize?state=" + state, nil
}

func (m *mockAuthService) HandleOAuthCallback(ctx context.Context, code string) (*auth.SignInResult, error) {
	if m.oauthCallbackFn != nil {
		return m.oauthCallbackFn(ctx, code)
	}
	return nil, nil
}

func (m *mockAuthService) Register(ctx context.Context, in auth.RegisterInput) (*auth.SignInResult, error) {
	if m.registerFn != nil {
		return m.registerFn(ctx, in)
	}
	return nil, nil
}

func (m *mockAuthService) Login(ctx context.Context, email, password string) (*auth.SignInResult, error) {
	if m.loginFn != nil {
		return m.loginFn(ctx, email, password)
	}
	return nil, nil
}

func (m *mockAuthService) RequestMagicLink(ctx context.Context, email, next string) error {
	if m.requestMagicFn != nil {
		return m.requestMagicFn(ctx, email, next)
	}
	return nil
}

func (m *mockAuthService) ConfirmMagicLink(ctx context.Context, token, linkType string) (*auth.SignInResult, error) {
	if m.confirmMagicFn != nil {
		return m.confirmMagicFn(ctx, token, linkType)
	}
	return nil, model.NewInvalidMagicLinkError()
}

func (m *mockAuthService) Logout(ctx context.Context, sessionID string) error {
	m.loggedOutSessions = append(m.loggedOutSessions, sessionID)
	if m.logoutFn != nil {
		return m.logoutFn(ctx, sessionID)
	}
	return nil
}

func (m *mockAuthService) Authenticate(ctx context.Context, sessionID, token string) (*model.User, *model.Session, error) {
	if m.authenticateFn != nil {
		return m.authenticateFn(ctx, sessionID, token)
	}
	return nil, nil, nil
}

// signInResult はテスト用のサインイン結果を返す。
func signInResult(u *model.User, sessionID string) *auth.SignInResult {
	return &auth.SignInResult{
		User:    u,
		Session: &model.Session{ID: sessionID, UserID: u.ID},
		Token:   "jwt-" + sessionID,
	}
}

// mockPostService はPostServiceInterfaceのモック実装。
type mockPostService struct {
	createFn       func(ctx context.Context, author *model.User, content string) (*model.Post, error)
	getFn          func(ctx context.Context, id, viewerID string) (*model.Post, error)
	listFn         func(ctx context.Context, viewerID, authorID, cursor string, limit int) (*post.ListResult, error)
	deleteFn       func(ctx context.Context, id string, actor *model.User) error
	toggleLikeFn   func(ctx context.Context, id, userID string) (*model.Post, error)
	toggleRepostFn func(ctx context.Context, id, userID string) (*model.Post, error)
}

func (m *mockPostService) Create(ctx context.Context, author *model.User, content string) (*model.Post, error) {
	if m.createFn != nil {
		return m.createFn(ctx, author, content)
	}
	return &model.Post{ID: "post-1", AuthorID: author.ID, Content: content}, nil
}

func (m *mockPostService) Get(ctx context.Context, id, viewerID string) (*model.Post, error) {
	if m.getFn != nil {
		return m.getFn(ctx, id, viewerID)
	}
	return nil, model.NewPostNotFoundError(id)
}

func (m *mockPostService) List(ctx context.Context, viewerID, authorID, cursor string, limit int) (*post.ListResult, error) {
	if m.listFn != nil {
		return m.listFn(ctx, viewerID, authorID, cursor, limit)
	}
	return &post.ListResult{Posts: []*model.Post{}}, nil
}

func (m *mockPostService) Delete(ctx context.Context, id string, actor *model.User) error {
	if m.deleteFn != nil {
		return m.deleteFn(ctx, id, actor)
	}
	return nil
}

func (m *mockPostService) ToggleLike(ctx context.Context, id, userID string) (*model.Post, error) {
	if m.toggleLikeFn != nil {
		return m.toggleLikeFn(ctx, id, userID)
	}
	return &model.Post{ID: id}, nil
}

func (m *mockPostService) ToggleRepost(ctx context.Context, id, userID string) (*model.Post, error) {
	if m.toggleRepostFn != nil {
		return m.toggleRepostFn(ctx, id, userID)
	}
	return &model.Post{ID: id}, nil
}

// mockUserService はUserServiceInterfaceのモック実装。
type mockUserService struct {
	getProfileFn    func(ctx context.Context, username, viewerID string) (*model.Profile, error)
	updateProfileFn func(ctx context.Context, userID string, in user.ProfileUpdate) (*model.User, error)
	followFn        func(ctx context.Context, followerID, username string) error
	unfollowFn      func(ctx context.Context, followerID, username string) error
	withdrawFn      func(ctx context.Context, userID string) error
}

func (m *mockUserService) GetProfile(ctx context.Context, username, viewerID string) (*model.Profile, error) {
	if m.getProfileFn != nil {
		return m.getProfileFn(ctx, username, viewerID)
	}
	return nil, model.NewUserNotFoundError()
}

func (m *mockUserService) UpdateProfile(ctx context.Context, userID string, in user.ProfileUpdate) (*model.User, error) {
	if m.updateProfileFn != nil {
		return m.updateProfileFn(ctx, userID, in)
	}
	return &model.User{ID: userID}, nil
}

func (m *mockUserService) Follow(ctx context.Context, followerID, username string) error {
	if m.followFn != nil {
		return m.followFn(ctx, followerID, username)
	}
	return nil
}

func (m *mockUserService) Unfollow(ctx context.Context, followerID, username string) error {
	if m.unfollowFn != nil {
		return m.unfollowFn(ctx, followerID, username)
	}
	return nil
}

func (m *mockUserService) Withdraw(ctx context.Context, userID string) error {
	if m.withdrawFn != nil {
		return m.withdrawFn(ctx, userID)
	}
	return nil
}

// mockCommunityService はCommunityServiceInterfaceのモック実装。
type mockCommunityService struct {
	listFn   func(ctx context.Context, viewerID string) ([]*model.Community, error)
	createFn func(ctx context.Context, owner *model.User, name, description string) (*model.Community, error)
	joinFn   func(ctx context.Context, id, userID string) (*model.Community, error)
	leaveFn  func(ctx context.Context, id, userID string) (*model.Community, error)
}

func (m *mockCommunityService) List(ctx context.Context, viewerID string) ([]*model.Community, error) {
	if m.listFn != nil {
		return m.listFn(ctx, viewerID)
	}
	return []*model.Community{}, nil
}

func (m *mockCommunityService) Create(ctx context.Context, owner *model.User, name, description string) (*model.Community, error) {
	if m.createFn != nil {
		return m.createFn(ctx, owner, name, description)
	}
	return &model.Community{ID: "c-1", Name: name, Description: description, OwnerID: owner.ID, MemberCount: 1, Joined: true}, nil
}

func (m *mockCommunityService) Join(ctx context.Context, id, userID string) (*model.Community, error) {
	if m.joinFn != nil {
		return m.joinFn(ctx, id, userID)
	}
	return &model.Community{ID: id, Joined: true}, nil
}

func (m *mockCommunityService) Leave(ctx context.Context, id, userID string) (*model.Community, error) {
	if m.leaveFn != nil {
		return m.leaveFn(ctx, id, userID)
	}
	return &model.Community{ID: id}, nil
}

// mockMessageService はMessageServiceInterfaceのモック実装。
type mockMessageService struct {
	listFn     func(ctx context.Context, userID string) ([]*model.Conversation, error)
	startFn    func(ctx context.Context, userID, peerUsername string) (*model.Conversation, error)
	messagesFn func(ctx context.Context, conversationID, userID string, limit int) ([]*model.Message, error)
	sendFn     func(ctx context.Context, conversationID, senderID, body string) (*model.Message, error)
}

func (m *mockMessageService) List(ctx context.Context, userID string) ([]*model.Conversation, error) {
	if m.listFn != nil {
		return m.listFn(ctx, userID)
	}
	return []*model.Conversation{}, nil
}

func (m *mockMessageService) Start(ctx context.Context, userID, peerUsername string) (*model.Conversation, error) {
	if m.startFn != nil {
		return m.startFn(ctx, userID, peerUsername)
	}
	return &model.Conversation{ID: "conv-1", Peer: model.User{Username: peerUsername}}, nil
}

func (m *mockMessageService) Messages(ctx context.Context, conversationID, userID string, limit int) ([]*model.Message, error) {
	if m.messagesFn != nil {
		return m.messagesFn(ctx, conversationID, userID, limit)
	}
	return []*model.Message{}, nil
}

func (m *mockMessageService) Send(ctx context.Context, conversationID, senderID, body string) (*model.Message, error) {
	if m.sendFn != nil {
		return m.sendFn(ctx, conversationID, senderID, body)
	}
	return &model.Message{ID: "msg-1", ConversationID: conversationID, SenderID: senderID, Body: body}, nil
}

// mockPreferencesRepo はrepository.PreferencesRepositoryのインメモリ実装。
type mockPreferencesRepo struct {
	saved   map[string]model.Preferences
	findErr error
}

func (m *mockPreferencesRepo) FindByUserID(ctx context.Context, userID string) (*model.Preferences, error) {
	if m.findErr != nil {
		return nil, m.findErr
	}
	p, ok := m.saved[userID]
	if !ok {
		return nil, nil
	}
	return &p, nil
}

func (m *mockPreferencesRepo) Upsert(ctx context.Context, userID string, prefs model.Preferences) error {
	if m.saved == nil {
		m.saved = make(map[string]model.Preferences)
	}
	m.saved[userID] = prefs
	return nil
}
