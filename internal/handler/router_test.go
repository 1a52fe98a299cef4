package handler

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/time/rate"

	"github.com/jeanikt/uniconnect/internal/auth"
	"github.com/jeanikt/uniconnect/internal/metrics"
	"github.com/jeanikt/uniconnect/internal/middleware"
	"github.com/jeanikt/uniconnect/internal/model"
	"github.com/jeanikt/uniconnect/internal/post"
)

// routerAuth は"valid-session"と"valid-token"のみを受け付けるモックを返す。
func routerAuth() *mockAuthService {
	return &mockAuthService{
		authenticateFn: func(ctx context.Context, sessionID, token string) (*model.User, *model.Session, error) {
			if sessionID == "valid-session" || token == "valid-token" {
				return testUser(), &model.Session{ID: "valid-session", UserID: "user-1"}, nil
			}
			return nil, nil, nil
		},
		loginFn: func(ctx context.Context, email, password string) (*auth.SignInResult, error) {
			return signInResult(testUser(), "new-session"), nil
		},
	}
}

type failingPinger struct{}

func (failingPinger) PingContext(ctx context.Context) error { return errors.New("connection refused") }

// newTestRouter は本番と同じ構成のルーターを返す。サインインのバーストは2。
func newTestRouter(t *testing.T, mutate func(*RouterDeps)) http.Handler {
	t.Helper()

	rl := middleware.NewRateLimiter(middleware.RateLimiterConfig{
		GeneralRate:  rate.Limit(100),
		GeneralBurst: 100,
		AuthRate:     rate.Limit(0.1),
		AuthBurst:    2,
	})
	t.Cleanup(rl.Stop)

	authSvc := routerAuth()
	deps := &RouterDeps{
		Authenticator:     authSvc,
		CORSAllowedOrigin: "http://localhost:3000",
		RateLimiter:       rl,
		Logger:            slog.New(slog.NewJSONHandler(io.Discard, nil)),
		AuthService:       authSvc,
		AuthConfig:        AuthHandlerConfig{AppURL: "http://localhost:3000", SessionMaxAge: 3600},
		PostService:       &mockPostService{},
		UserService:       &mockUserService{},
		CommunityService:  &mockCommunityService{},
		MessageService:    &mockMessageService{},
		PreferencesRepo:   &mockPreferencesRepo{},
	}
	if mutate != nil {
		mutate(deps)
	}
	return NewRouter(deps)
}

func TestRouter_PublicReadRoutes(t *testing.T) {
	var viewers []string
	r := newTestRouter(t, func(d *RouterDeps) {
		d.PostService = &mockPostService{
			listFn: func(ctx context.Context, viewerID, authorID, cursor string, limit int) (*post.ListResult, error) {
				viewers = append(viewers, viewerID)
				return &post.ListResult{}, nil
			},
		}
	})

	anon := httptest.NewRequest(http.MethodGet, "/api/posts", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, anon)
	if rec.Code != http.StatusOK {
		t.Fatalf("anonymous GET /api/posts: status = %d, want 200", rec.Code)
	}

	signedIn := httptest.NewRequest(http.MethodGet, "/api/posts", nil)
	signedIn.AddCookie(&http.Cookie{Name: middleware.SessionCookieName, Value: "valid-session"})
	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, signedIn)
	if rec.Code != http.StatusOK {
		t.Fatalf("signed-in GET /api/posts: status = %d, want 200", rec.Code)
	}

	if len(viewers) != 2 || viewers[0] != "" || viewers[1] != "user-1" {
		t.Errorf("viewers = %q, want [\"\" \"user-1\"]", viewers)
	}
}

func TestRouter_ProtectedRoutesRequireSession(t *testing.T) {
	r := newTestRouter(t, nil)

	routes := []struct {
		method string
		path   string
	}{
		{http.MethodPost, "/api/posts"},
		{http.MethodDelete, "/api/posts/p1"},
		{http.MethodPost, "/api/posts/p1/like"},
		{http.MethodPost, "/api/posts/p1/repost"},
		{http.MethodPatch, "/api/users/me"},
		{http.MethodDelete, "/api/users/me"},
		{http.MethodPost, "/api/users/ana/follow"},
		{http.MethodDelete, "/api/users/ana/follow"},
		{http.MethodPost, "/api/communities"},
		{http.MethodPost, "/api/communities/c1/members"},
		{http.MethodDelete, "/api/communities/c1/members"},
		{http.MethodGet, "/api/conversations"},
		{http.MethodPost, "/api/conversations"},
		{http.MethodGet, "/api/conversations/conv-1/messages"},
		{http.MethodPost, "/api/conversations/conv-1/messages"},
		{http.MethodGet, "/api/preferences"},
		{http.MethodPut, "/api/preferences"},
		{http.MethodPost, "/api/preferences/theme/toggle"},
		{http.MethodGet, "/auth/me"},
	}

	for _, rt := range routes {
		t.Run(rt.method+" "+rt.path, func(t *testing.T) {
			rec := httptest.NewRecorder()
			r.ServeHTTP(rec, httptest.NewRequest(rt.method, rt.path, nil))
			assertErrorCode(t, rec, http.StatusUnauthorized, model.ErrCodeUnauthorized)
		})
	}
}

func TestRouter_BearerRequestSkipsCSRF(t *testing.T) {
	r := newTestRouter(t, nil)

	req := httptest.NewRequest(http.MethodPost, "/api/posts", strings.NewReader(`{"content":"hello"}`))
	req.Header.Set("Authorization", "Bearer valid-token")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusCreated {
		t.Errorf("status = %d, want 201 (body: %s)", rec.Code, rec.Body.String())
	}
}

func TestRouter_CookieRequestRequiresCSRFToken(t *testing.T) {
	r := newTestRouter(t, nil)

	req := httptest.NewRequest(http.MethodPost, "/api/posts", strings.NewReader(`{"content":"hello"}`))
	req.AddCookie(&http.Cookie{Name: middleware.SessionCookieName, Value: "valid-session"})
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	assertErrorCode(t, rec, http.StatusForbidden, "CSRF_INVALID")

	req = httptest.NewRequest(http.MethodPost, "/api/posts", strings.NewReader(`{"content":"hello"}`))
	req.AddCookie(&http.Cookie{Name: middleware.SessionCookieName, Value: "valid-session"})
	req.AddCookie(&http.Cookie{Name: "csrf_token", Value: "tok123"})
	req.Header.Set("X-CSRF-Token", "tok123")
	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	if rec.Code != http.StatusCreated {
		t.Errorf("with CSRF token: status = %d, want 201 (body: %s)", rec.Code, rec.Body.String())
	}
}

func TestRouter_SignInIsRateLimitedPerIP(t *testing.T) {
	r := newTestRouter(t, nil)

	login := func() int {
		req := httptest.NewRequest(http.MethodPost, "/auth/login", strings.NewReader(`{"email":"a@b.com","password":"x"}`))
		req.RemoteAddr = "203.0.113.7:5555"
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, req)
		return rec.Code
	}

	for i := 0; i < 2; i++ {
		if code := login(); code != http.StatusOK {
			t.Fatalf("login %d: status = %d, want 200", i+1, code)
		}
	}
	if code := login(); code != http.StatusTooManyRequests {
		t.Errorf("third login: status = %d, want 429", code)
	}
}

func TestRouter_VerifyIsNotRateLimited(t *testing.T) {
	r := newTestRouter(t, nil)

	for i := 0; i < 5; i++ {
		req := httptest.NewRequest(http.MethodGet, "/auth/verify", nil)
		req.RemoteAddr = "203.0.113.8:5555"
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, req)
		if rec.Code != http.StatusOK {
			t.Fatalf("verify %d: status = %d, want 200", i+1, rec.Code)
		}
	}
}

func TestRouter_SecurityAndCORSHeaders(t *testing.T) {
	r := newTestRouter(t, nil)

	req := httptest.NewRequest(http.MethodGet, "/auth/verify", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "http://localhost:3000" {
		t.Errorf("Access-Control-Allow-Origin = %q", got)
	}
	if got := rec.Header().Get("X-Content-Type-Options"); got != "nosniff" {
		t.Errorf("X-Content-Type-Options = %q, want nosniff", got)
	}
}

func TestRouter_HealthAndMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	collector := metrics.NewCollector(reg)
	r := newTestRouter(t, func(d *RouterDeps) {
		d.Metrics = collector
		d.Gatherer = reg
	})

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("/health: status = %d, want 200", rec.Code)
	}

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("/metrics: status = %d, want 200", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `uniconnect_http_status_total{status_code="200"}`) {
		t.Errorf("/metrics should report the earlier /health response, got:\n%s", rec.Body.String())
	}
}

func TestRouter_HealthReportsDatabaseFailure(t *testing.T) {
	r := newTestRouter(t, func(d *RouterDeps) { d.DB = failingPinger{} })

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503", rec.Code)
	}
}

func TestRouter_CSRFTokenEndpoint(t *testing.T) {
	r := newTestRouter(t, nil)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/csrf-token", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if findCookie(rec.Result(), "csrf_token") == nil {
		t.Error("csrf_token cookie should be issued")
	}
}

func TestRouter_MagicLinkConfirmRedirectsToApp(t *testing.T) {
	r := newTestRouter(t, func(d *RouterDeps) {
		authSvc := routerAuth()
		authSvc.confirmMagicFn = func(ctx context.Context, token, linkType string) (*auth.SignInResult, error) {
			return signInResult(testUser(), "magic-session"), nil
		}
		d.AuthService = authSvc
	})

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/auth/confirm?token_hash=t&type=email&next=%2Ffeed", nil))
	if rec.Code != http.StatusSeeOther {
		t.Fatalf("status = %d, want 303", rec.Code)
	}

	loc, err := url.Parse(rec.Header().Get("Location"))
	if err != nil {
		t.Fatalf("invalid Location: %v", err)
	}
	if loc.Host != "localhost:3000" || loc.Path != "/feed" {
		t.Errorf("Location = %q, want the app's /feed", loc)
	}

	// APIサーバー自身は/feedを提供しない
	follow := httptest.NewRecorder()
	r.ServeHTTP(follow, httptest.NewRequest(http.MethodGet, "/feed", nil))
	if follow.Code != http.StatusNotFound {
		t.Errorf("API GET /feed: status = %d, want 404", follow.Code)
	}
}
